package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/internal/registry/models"
	txcontext "aidchain/pkg/platform/tx"
)

// SQLStore implements the registry store on postgres or sqlite. Writes are
// expected to run inside storage.Tx so role_seq allocation is serialized.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) Authority(ctx context.Context) (common.Address, error) {
	var addr string
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT address FROM authority WHERE id = 1`).Scan(&addr)
	if errors.Is(err, sql.ErrNoRows) {
		return common.Address{}, ErrNotFound
	}
	if err != nil {
		return common.Address{}, fmt.Errorf("query authority: %w", err)
	}
	return common.HexToAddress(addr), nil
}

func (s *SQLStore) SetAuthority(ctx context.Context, addr common.Address, at time.Time) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO authority (id, address, updated_at) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET address = excluded.address, updated_at = excluded.updated_at
	`, addr.Hex(), at.UnixMilli())
	if err != nil {
		return fmt.Errorf("save authority: %w", err)
	}
	return nil
}

// Save upserts the participant, allocating a new role_seq when the role changes.
func (s *SQLStore) Save(ctx context.Context, p *models.Participant) error {
	exec := txcontext.Executor(ctx, s.db)

	var (
		prevRole string
		roleSeq  int64
	)
	err := exec.QueryRowContext(ctx,
		`SELECT role, role_seq FROM participants WHERE address = $1`, p.Address.Hex(),
	).Scan(&prevRole, &roleSeq)
	switch {
	case errors.Is(err, sql.ErrNoRows), err == nil && models.Role(prevRole) != p.Role:
		if err := exec.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(role_seq), 0) + 1 FROM participants`,
		).Scan(&roleSeq); err != nil {
			return fmt.Errorf("allocate role sequence: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query participant: %w", err)
	}

	_, err = exec.ExecContext(ctx, `
		INSERT INTO participants (address, role, location, role_seq, registered_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO UPDATE SET
			role = excluded.role,
			location = excluded.location,
			role_seq = excluded.role_seq,
			registered_at = excluded.registered_at
	`, p.Address.Hex(), string(p.Role), p.Location, roleSeq, p.RegisteredAt.UnixMilli())
	if err != nil {
		return fmt.Errorf("save participant: %w", err)
	}
	return nil
}

func (s *SQLStore) Find(ctx context.Context, addr common.Address) (*models.Participant, error) {
	var (
		role         string
		location     string
		registeredAt int64
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT role, location, registered_at FROM participants WHERE address = $1`, addr.Hex(),
	).Scan(&role, &location, &registeredAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query participant: %w", err)
	}
	return &models.Participant{
		Address:      addr,
		Role:         models.Role(role),
		Location:     location,
		RegisteredAt: time.UnixMilli(registeredAt).UTC(),
	}, nil
}

func (s *SQLStore) ListByRole(ctx context.Context, role models.Role) ([]common.Address, error) {
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx,
		`SELECT address FROM participants WHERE role = $1 ORDER BY role_seq ASC`, string(role))
	if err != nil {
		return nil, fmt.Errorf("query role holders: %w", err)
	}
	defer rows.Close()

	out := []common.Address{}
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("scan role holder: %w", err)
		}
		out = append(out, common.HexToAddress(addr))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate role holders: %w", err)
	}
	return out, nil
}
