// Package store persists registry participants, role enumeration sets and the authority.
package store

import "aidchain/pkg/platform/sentinel"

// ErrNotFound is returned when no participant or authority is recorded.
var ErrNotFound = sentinel.ErrNotFound
