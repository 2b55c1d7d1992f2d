// Package store persists the aid ledger: the pool accumulator, donor
// balances and the unit table.
package store

import "aidchain/pkg/platform/sentinel"

var (
	// ErrNotFound is returned when a unit does not exist.
	ErrNotFound = sentinel.ErrNotFound
	// ErrConflict is returned when assigning a unit that already has custodians.
	ErrConflict = sentinel.ErrConflict
)
