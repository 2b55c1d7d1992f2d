// Package store persists custody status records, one per initialized unit.
package store

import "aidchain/pkg/platform/sentinel"

var (
	// ErrNotFound is returned for units without a custody record.
	ErrNotFound = sentinel.ErrNotFound
	// ErrConflict is returned when a record already exists or moved since it was read.
	ErrConflict = sentinel.ErrConflict
)
