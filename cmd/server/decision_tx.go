package main

import (
	"context"
	"database/sql"
	"time"

	dErrors "storecred/pkg/domain-errors"
	txcontext "storecred/pkg/platform/tx"
)

const defaultDecisionTxTimeout = 5 * time.Second

// decisionPostgresTx runs the decision fan-out inside one database
// transaction. The tx rides the context so the request, user-state and
// audit-outbox stores all write through it.
type decisionPostgresTx struct {
	db      *sql.DB
	timeout time.Duration
}

func newDecisionPostgresTx(db *sql.DB) *decisionPostgresTx {
	return &decisionPostgresTx{db: db}
}

func (t *decisionPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultDecisionTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(txcontext.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit()
}

func (t *decisionPostgresTx) Atomic() bool { return true }
