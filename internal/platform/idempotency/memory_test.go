package idempotency

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	rec, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, rec, "first caller holds the reservation")

	_, err = s.Begin(ctx, "k", time.Minute)
	assert.ErrorIs(t, err, ErrInProgress)

	require.NoError(t, s.Complete(ctx, "k", Record{Status: 201, Body: []byte(`{"ok":true}`)}, time.Hour))
	rec, err = s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 201, rec.Status)

	now = now.Add(2 * time.Hour)
	rec, err = s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, rec, "expired record can be reserved again")
}

func TestMemoryStoreRelease(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	_, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	require.NoError(t, s.Release(ctx, "k"))

	rec, err := s.Begin(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.Nil(t, rec)
}

// TestMemoryStoreDropsExpiredKeys keeps unique keys from piling up once their TTL passes.
func TestMemoryStoreDropsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	for i := range 1000 {
		key := fmt.Sprintf("key-%d", i)
		_, err := s.Begin(ctx, key, time.Minute)
		require.NoError(t, err)
		require.NoError(t, s.Complete(ctx, key, Record{Status: 201}, time.Minute))
		now = now.Add(time.Hour)
	}
	assert.LessOrEqual(t, len(s.entries), 1)

	s.mu.Lock()
	s.sweep(now)
	s.mu.Unlock()
	assert.Empty(t, s.entries)
}

func TestMemoryStoreKeepsLiveKeysWhenSweeping(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewMemoryStore()
	s.now = func() time.Time { return now }

	_, err := s.Begin(ctx, "live", time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Complete(ctx, "live", Record{Status: 201}, time.Hour))

	now = now.Add(2 * time.Minute)
	_, err = s.Begin(ctx, "other", time.Minute)
	require.NoError(t, err)

	rec, err := s.Begin(ctx, "live", time.Hour)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, 201, rec.Status)
}
