package service

import (
	"context"
	"sync"
)

// MemoryTxRunner serializes fan-outs under one lock. It cannot roll back a
// partial run, so memory-backed deployments rely on the reconciler for
// divergence repair.
type MemoryTxRunner struct {
	mu sync.Mutex
}

func NewMemoryTxRunner() *MemoryTxRunner {
	return &MemoryTxRunner{}
}

func (r *MemoryTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(ctx)
}

func (r *MemoryTxRunner) Atomic() bool { return false }
