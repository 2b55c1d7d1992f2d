package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"aidchain/internal/ledger/models"
	"aidchain/pkg/domain"
	txcontext "aidchain/pkg/platform/tx"
)

// SQLStore implements the ledger store on postgres or sqlite. Wei amounts
// travel as base-10 strings so both NUMERIC(78,0) and TEXT columns work.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

func (s *SQLStore) State(ctx context.Context) (*models.State, error) {
	var (
		pool string
		next int64
	)
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT pool, next_unit_id FROM ledger_state WHERE id = 1`).Scan(&pool, &next)
	if errors.Is(err, sql.ErrNoRows) {
		return &models.State{Pool: new(big.Int)}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query ledger state: %w", err)
	}
	p, err := parseWei(pool)
	if err != nil {
		return nil, err
	}
	return &models.State{Pool: p, NextUnitID: domain.UnitID(next)}, nil
}

func (s *SQLStore) SaveState(ctx context.Context, st *models.State) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO ledger_state (id, pool, next_unit_id) VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET pool = excluded.pool, next_unit_id = excluded.next_unit_id
	`, st.Pool.String(), int64(st.NextUnitID))
	if err != nil {
		return fmt.Errorf("save ledger state: %w", err)
	}
	return nil
}

func (s *SQLStore) Balance(ctx context.Context, donor common.Address) (*big.Int, error) {
	var balance string
	err := txcontext.Executor(ctx, s.db).QueryRowContext(ctx,
		`SELECT balance FROM donor_balances WHERE address = $1`, donor.Hex()).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("query donor balance: %w", err)
	}
	return parseWei(balance)
}

func (s *SQLStore) SaveBalance(ctx context.Context, donor common.Address, balance *big.Int) error {
	_, err := txcontext.Executor(ctx, s.db).ExecContext(ctx, `
		INSERT INTO donor_balances (address, balance) VALUES ($1, $2)
		ON CONFLICT (address) DO UPDATE SET balance = excluded.balance
	`, donor.Hex(), balance.String())
	if err != nil {
		return fmt.Errorf("save donor balance: %w", err)
	}
	return nil
}

func (s *SQLStore) CreateUnit(ctx context.Context, u *models.Unit) error {
	exec := txcontext.Executor(ctx, s.db)
	if _, err := exec.ExecContext(ctx,
		`INSERT INTO units (id, issued_at) VALUES ($1, $2)`,
		int64(u.ID), u.IssuedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("insert unit: %w", err)
	}
	for i, donor := range u.Donors {
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO unit_donors (unit_id, position, donor) VALUES ($1, $2, $3)`,
			int64(u.ID), i, donor.Hex(),
		); err != nil {
			return fmt.Errorf("insert unit donor: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) FindUnit(ctx context.Context, id domain.UnitID) (*models.Unit, error) {
	exec := txcontext.Executor(ctx, s.db)
	row := exec.QueryRowContext(ctx, `
		SELECT id, transfer_team, ground_relief, recipient, location, issued_at, assigned_at
		FROM units WHERE id = $1
	`, int64(id))
	u, err := scanUnit(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query unit: %w", err)
	}
	donors, err := s.donors(ctx, exec, []domain.UnitID{id})
	if err != nil {
		return nil, err
	}
	u.Donors = donors[id]
	return u, nil
}

// Assign sets the custodians when none are set yet. The guard lives in the
// UPDATE so a lost race reports ErrConflict.
func (s *SQLStore) Assign(ctx context.Context, id domain.UnitID, c models.Custodians, location string, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)
	res, err := exec.ExecContext(ctx, `
		UPDATE units
		SET transfer_team = $2, ground_relief = $3, recipient = $4, location = $5, assigned_at = $6
		WHERE id = $1 AND transfer_team = ''
	`, int64(id), c.TransferTeam.Hex(), c.GroundRelief.Hex(), c.Recipient.Hex(), location, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("assign unit: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("assign unit: %w", err)
	}
	if n == 1 {
		return nil
	}
	var exists int
	err = exec.QueryRowContext(ctx, `SELECT 1 FROM units WHERE id = $1`, int64(id)).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("query unit: %w", err)
	}
	return ErrConflict
}

func (s *SQLStore) ListUnits(ctx context.Context, unassignedOnly bool) ([]*models.Unit, error) {
	exec := txcontext.Executor(ctx, s.db)
	query := `SELECT id, transfer_team, ground_relief, recipient, location, issued_at, assigned_at FROM units`
	if unassignedOnly {
		query += ` WHERE transfer_team = ''`
	}
	query += ` ORDER BY id ASC`

	rows, err := exec.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query units: %w", err)
	}
	defer rows.Close()

	units := []*models.Unit{}
	ids := []domain.UnitID{}
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("scan unit: %w", err)
		}
		units = append(units, u)
		ids = append(ids, u.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate units: %w", err)
	}
	if len(units) == 0 {
		return units, nil
	}

	donors, err := s.donors(ctx, exec, ids)
	if err != nil {
		return nil, err
	}
	for _, u := range units {
		u.Donors = donors[u.ID]
	}
	return units, nil
}

func (s *SQLStore) donors(ctx context.Context, exec txcontext.DBTX, ids []domain.UnitID) (map[domain.UnitID][]common.Address, error) {
	out := make(map[domain.UnitID][]common.Address, len(ids))
	query := `SELECT unit_id, donor FROM unit_donors ORDER BY unit_id, position`
	var args []any
	if len(ids) == 1 {
		query = `SELECT unit_id, donor FROM unit_donors WHERE unit_id = $1 ORDER BY position`
		args = append(args, int64(ids[0]))
	}
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query unit donors: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			unitID int64
			donor  string
		)
		if err := rows.Scan(&unitID, &donor); err != nil {
			return nil, fmt.Errorf("scan unit donor: %w", err)
		}
		id := domain.UnitID(unitID)
		out[id] = append(out[id], common.HexToAddress(donor))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unit donors: %w", err)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUnit(row rowScanner) (*models.Unit, error) {
	var (
		id           int64
		transferTeam string
		groundRelief string
		recipient    string
		location     string
		issuedAt     int64
		assignedAt   sql.NullInt64
	)
	if err := row.Scan(&id, &transferTeam, &groundRelief, &recipient, &location, &issuedAt, &assignedAt); err != nil {
		return nil, err
	}
	u := &models.Unit{
		ID:       domain.UnitID(id),
		Location: location,
		IssuedAt: time.UnixMilli(issuedAt).UTC(),
	}
	if transferTeam != "" {
		u.Custodians = models.Custodians{
			TransferTeam: common.HexToAddress(transferTeam),
			GroundRelief: common.HexToAddress(groundRelief),
			Recipient:    common.HexToAddress(recipient),
		}
	}
	if assignedAt.Valid {
		at := time.UnixMilli(assignedAt.Int64).UTC()
		u.AssignedAt = &at
	}
	return u, nil
}

func parseWei(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid stored amount %q", s)
	}
	return v, nil
}
