// Package idempotency remembers the outcome of requests carrying an
// Idempotency-Key so retries replay the first response instead of re-applying
// a contribution.
package idempotency

import (
	"context"
	"errors"
	"time"
)

// ErrInProgress is returned when another request holds the key.
var ErrInProgress = errors.New("idempotent request in progress")

// Record is a stored response.
type Record struct {
	Status int    `json:"status"`
	Body   []byte `json:"body"`
}

// Store reserves keys and keeps completed responses for ttl.
//
// Begin returns the stored record when the key completed earlier, nil when
// the caller now holds the reservation, or ErrInProgress.
type Store interface {
	Begin(ctx context.Context, key string, ttl time.Duration) (*Record, error)
	Complete(ctx context.Context, key string, rec Record, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// MaxKeyLength bounds client-supplied keys.
const MaxKeyLength = 255
