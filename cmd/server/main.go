// Command server runs the employment-verification service: the claimant and
// admin HTTP APIs, the storage-event enrichment pipeline, the audit outbox
// relay and the divergence reconciler, all in one process.
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"storecred/internal/audit"
	"storecred/internal/enrichment/matcher"
	"storecred/internal/enrichment/processor"
	"storecred/internal/objectstore"
	"storecred/internal/platform/config"
	"storecred/internal/platform/httpserver"
	"storecred/internal/platform/kafka"
	"storecred/internal/platform/kafka/consumer"
	"storecred/internal/platform/logger"
	"storecred/internal/platform/metrics"
	"storecred/internal/platform/middleware"
	platformredis "storecred/internal/platform/redis"
	"storecred/internal/reconcile"
	reviewhandler "storecred/internal/review/handler"
	reviewservice "storecred/internal/review/service"
	userstore "storecred/internal/user/store"
	verificationhandler "storecred/internal/verification/handler"
	verificationservice "storecred/internal/verification/service"
	requeststore "storecred/internal/verification/store/request"
)

func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// requestStore is everything the pipeline needs from the request store.
type requestStore interface {
	verificationservice.RequestStore
	reviewservice.RequestStore
	matcher.RequestLister
	processor.RequestEnricher
	reconcile.RequestScanner
}

// userStateStore is everything the pipeline needs from the user-state store.
type userStateStore interface {
	verificationservice.UserStateStore
	reviewservice.UserStateStore
	reconcile.UserStateStore
}

// stores bundles the persistence layer so run can swap the whole set
// between memory and PostgreSQL.
type stores struct {
	requests requestStore
	users    userStateStore
	outbox   audit.Store
	tx       reviewservice.TxRunner
}

func buildStores(cfg config.Config, log *slog.Logger) (stores, func(), error) {
	if cfg.Postgres.URL == "" {
		log.Info("no POSTGRES_URL configured, running on in-memory stores")
		return stores{
			requests: requeststore.NewInMemory(),
			users:    userstore.NewInMemory(),
			outbox:   audit.NewInMemory(),
			tx:       reviewservice.NewMemoryTxRunner(),
		}, func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.Postgres.URL)
	if err != nil {
		return stores{}, nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return stores{}, nil, err
	}
	return stores{
		requests: requeststore.NewPostgres(db),
		users:    userstore.NewPostgres(db),
		outbox:   audit.NewPostgres(db),
		tx:       newDecisionPostgresTx(db),
	}, func() { db.Close() }, nil
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	st, closeStores, err := buildStores(cfg, log)
	if err != nil {
		return err
	}
	defer closeStores()

	auditor := audit.NewOutboxPublisher(st.outbox)

	producer, err := kafka.NewProducer(cfg.Kafka)
	if err != nil {
		return err
	}
	if producer != nil {
		defer producer.Close()
		if err := producer.EnsureTopics(ctx, cfg.Kafka.FinalizedTopic, cfg.Kafka.AuditTopic); err != nil {
			return err
		}
	}

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	// Storage and the enrichment pipeline. With brokers configured the
	// finalize events round-trip through Kafka; without them an in-process
	// channel carries the same events.
	var (
		objects *objectstore.InMemory
		procRef = &finalizeHandlerRef{}
	)
	if producer != nil {
		objects = objectstore.NewInMemory(objectstore.NewKafkaEmitter(producer, cfg.Kafka.FinalizedTopic))
	} else {
		emitter := objectstore.NewChannelEmitter(procRef, 64, log)
		objects = objectstore.NewInMemory(emitter)
		g.Go(func() error { return emitter.Run(ctx) })
	}

	procOpts := []processor.Option{
		processor.WithLogger(log),
		processor.WithMetrics(m),
		processor.WithRetry(cfg.Enrichment.MatchAttempts, cfg.Enrichment.MatchBackoff),
	}
	if redisClient != nil {
		procOpts = append(procOpts, processor.WithMarker(processor.NewRedisMarker(redisClient)))
	}
	proc := processor.New(objects, st.requests, matcher.NewPhotoURLMatcher(st.requests, log), procOpts...)
	procRef.handler = proc

	if producer != nil {
		cons, err := consumer.New(cfg.Kafka, []string{cfg.Kafka.FinalizedTopic}, processor.NewFinalizeConsumer(proc, log), log)
		if err != nil {
			return err
		}
		g.Go(func() error { return cons.Run(ctx) })
		g.Go(func() error {
			return audit.NewRelay(st.outbox, producer, cfg.Kafka.AuditTopic, log).Run(ctx)
		})
	}

	// Background divergence repair.
	rec := reconcile.New(st.requests, st.users, cfg.Reconcile.Interval, cfg.Reconcile.Window,
		reconcile.WithLogger(log), reconcile.WithMetrics(m))
	g.Go(func() error { return rec.Run(ctx) })

	// HTTP surface.
	validator := middleware.NewHMACValidator(cfg.Server.JWTSigningKey)

	submissions := verificationservice.New(st.requests, st.users, objects,
		verificationservice.WithLogger(log),
		verificationservice.WithMetrics(m),
		verificationservice.WithAuditPublisher(auditor),
		verificationservice.WithMaxUploadBytes(cfg.Storage.MaxUploadBytes))
	review := reviewservice.New(st.requests, st.users, st.tx,
		reviewservice.WithLogger(log),
		reviewservice.WithMetrics(m),
		reviewservice.WithAuditPublisher(auditor))

	router := chi.NewRouter()
	router.Use(middleware.Recovery(log))
	router.Use(middleware.RequestID)
	router.Use(middleware.Logger(log))
	router.Use(middleware.Timeout(30 * time.Second))
	router.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router.Handle("/metrics", promhttp.Handler())
	verificationhandler.New(submissions, log, validator, cfg.Storage.MaxUploadBytes).Register(router)
	reviewhandler.New(review, log, validator).Register(router)

	srv := httpserver.New(cfg.Server.Addr, router)
	g.Go(func() error {
		log.Info("starting verification service", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// finalizeHandlerRef breaks the construction cycle between the object store
// (which needs an emitter) and the processor (which needs the store).
type finalizeHandlerRef struct {
	handler objectstore.FinalizeHandler
}

func (r *finalizeHandlerRef) HandleFinalize(ctx context.Context, event objectstore.FinalizeEvent) error {
	if r.handler == nil {
		return nil
	}
	return r.handler.HandleFinalize(ctx, event)
}
