package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTxNilKeepsContext(t *testing.T) {
	ctx := context.Background()
	got := WithTx(ctx, nil)
	assert.Equal(t, ctx, got)

	_, ok := From(got)
	assert.False(t, ok)
}

func TestExecutorFallsBackToDB(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, Executor(context.Background(), db))
}

func TestExecutorPrefersTx(t *testing.T) {
	tx := &sql.Tx{}
	ctx := WithTx(context.Background(), tx)

	got, ok := From(ctx)
	assert.True(t, ok)
	assert.Same(t, tx, got)
	assert.Same(t, tx, Executor(ctx, &sql.DB{}))
}
