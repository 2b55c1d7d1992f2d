package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/internal/custody/models"
	"aidchain/pkg/domain"
	txcontext "aidchain/pkg/platform/tx"
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Get(ctx context.Context, id domain.UnitID) (*models.Record, error) {
	rec, err := scanRecord(txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT unit_id, status, updated_by, updated_at FROM custody_statuses WHERE unit_id = $1`, int64(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query custody status: %w", err)
	}
	return rec, nil
}

// getManyChunk bounds the bind variables per statement; SQLite rejects
// statements past its variable limit.
const getManyChunk = 500

func (s *SQLStore) GetMany(ctx context.Context, ids []domain.UnitID) (map[domain.UnitID]models.Record, error) {
	out := make(map[domain.UnitID]models.Record, len(ids))
	for start := 0; start < len(ids); start += getManyChunk {
		end := min(start+getManyChunk, len(ids))
		if err := s.getChunk(ctx, ids[start:end], out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (s *SQLStore) getChunk(ctx context.Context, ids []domain.UnitID, out map[domain.UnitID]models.Record) error {
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = int64(id)
	}
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT unit_id, status, updated_by, updated_at FROM custody_statuses WHERE unit_id IN (`+
			strings.Join(placeholders, ", ")+`)`, args...)
	if err != nil {
		return fmt.Errorf("query custody statuses: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("scan custody status: %w", err)
		}
		out[rec.UnitID] = *rec
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate custody statuses: %w", err)
	}
	return nil
}

func (s *SQLStore) Create(ctx context.Context, rec *models.Record) error {
	res, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO custody_statuses (unit_id, status, updated_by, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (unit_id) DO NOTHING
	`, int64(rec.UnitID), string(rec.Status), rec.UpdatedBy.Hex(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert custody status: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrConflict
	}
	return nil
}

// Update moves the record from one status to the next. The WHERE clause makes
// it a compare-and-set.
func (s *SQLStore) Update(ctx context.Context, from models.Status, rec *models.Record) error {
	exec := txcontext.Executor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE custody_statuses SET status = $3, updated_by = $4, updated_at = $5
		WHERE unit_id = $1 AND status = $2
	`, int64(rec.UnitID), string(from), string(rec.Status), rec.UpdatedBy.Hex(), rec.UpdatedAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("update custody status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update custody status: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := s.Get(ctx, rec.UnitID); err != nil {
		return err
	}
	return ErrConflict
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.Record, error) {
	var (
		unitID    int64
		status    string
		updatedBy string
		updatedAt int64
	)
	if err := row.Scan(&unitID, &status, &updatedBy, &updatedAt); err != nil {
		return nil, err
	}
	st, ok := models.ParseStatus(status)
	if !ok {
		return nil, fmt.Errorf("unknown custody status %q", status)
	}
	return &models.Record{
		UnitID:    domain.UnitID(unitID),
		Status:    st,
		UpdatedBy: common.HexToAddress(updatedBy),
		UpdatedAt: time.UnixMilli(updatedAt).UTC(),
	}, nil
}
