// Package storage owns the transaction boundary shared by every store.
//
// All mutating operations run through Tx.RunInTx, which serializes them
// globally: a process mutex for the memory backend, a Postgres advisory lock
// for postgres, and a single connection for sqlite. Stores join the
// transaction through the context (see pkg/platform/tx).
package storage

import (
	"context"
	"sync"
)

// Tx runs fn as one atomic, globally ordered transaction. Nested calls on the
// same context join the outer transaction.
type Tx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type memTxKey struct{}

// MemoryTx serializes in-memory transactions behind one mutex. Memory stores
// cannot roll back, so callers validate everything before the first write.
type MemoryTx struct {
	mu sync.Mutex
}

func NewMemoryTx() *MemoryTx {
	return &MemoryTx{}
}

func (t *MemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if owner, ok := ctx.Value(memTxKey{}).(*MemoryTx); ok && owner == t {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return abortErr(err)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return fn(context.WithValue(ctx, memTxKey{}, t))
}
