package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"aidchain/pkg/domain"
	audit "aidchain/pkg/platform/audit"
	txcontext "aidchain/pkg/platform/tx"
)

// Store implements audit.Store on the events outbox table. Events are written
// inside the domain transaction and published later by the relay.
type Store struct {
	db *sql.DB
}

// New creates an outbox store. The schema is shared by the postgres and sqlite migrations.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

const selectColumns = `seq, id, kind, unit_id, actor, subject, attributes, request_id, created_at, published_at`

// Append writes an event to the outbox.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	attrs, err := json.Marshal(event.Attributes)
	if err != nil {
		return fmt.Errorf("marshal event attributes: %w", err)
	}
	var unitID sql.NullInt64
	if event.UnitID != nil {
		unitID = sql.NullInt64{Int64: int64(*event.UnitID), Valid: true}
	}

	query := `
		INSERT INTO events (id, kind, category, unit_id, actor, subject, attributes, request_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err = txcontext.Executor(ctx, s.db).ExecContext(ctx, query,
		event.ID.String(),
		string(event.Kind),
		string(event.Kind.Category()),
		unitID,
		event.Actor,
		event.Subject,
		string(attrs),
		event.RequestID,
		event.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// ListPending returns unpublished events in sequence order.
func (s *Store) ListPending(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM events WHERE published_at IS NULL ORDER BY seq ASC LIMIT $1`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query pending events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// MarkPublished stamps the given events as delivered to the sink.
func (s *Store) MarkPublished(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	exec := txcontext.Executor(ctx, s.db)
	for _, id := range ids {
		if _, err := exec.ExecContext(ctx,
			`UPDATE events SET published_at = $1 WHERE id = $2`,
			at.UnixMilli(), id.String(),
		); err != nil {
			return fmt.Errorf("mark event published: %w", err)
		}
	}
	return nil
}

// ListByUnit returns every event that references the unit.
func (s *Store) ListByUnit(ctx context.Context, unitID domain.UnitID) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM events WHERE unit_id = $1 ORDER BY seq ASC`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, int64(unitID))
	if err != nil {
		return nil, fmt.Errorf("query unit events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// ListRecent returns the N most recent events, oldest first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]audit.Event, error) {
	query := `SELECT ` + selectColumns + ` FROM (
		SELECT ` + selectColumns + ` FROM events ORDER BY seq DESC LIMIT $1
	) recent ORDER BY seq ASC`
	rows, err := txcontext.Executor(ctx, s.db).QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]audit.Event, error) {
	var events []audit.Event
	for rows.Next() {
		var (
			e           audit.Event
			id          string
			kind        string
			unitID      sql.NullInt64
			attrs       string
			createdAt   int64
			publishedAt sql.NullInt64
		)
		if err := rows.Scan(&e.Seq, &id, &kind, &unitID, &e.Actor, &e.Subject, &attrs, &e.RequestID, &createdAt, &publishedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		parsed, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("parse event id: %w", err)
		}
		e.ID = parsed
		e.Kind = audit.Kind(kind)
		if unitID.Valid {
			u := domain.UnitID(unitID.Int64)
			e.UnitID = &u
		}
		if attrs != "" && attrs != "null" {
			if err := json.Unmarshal([]byte(attrs), &e.Attributes); err != nil {
				return nil, fmt.Errorf("unmarshal event attributes: %w", err)
			}
		}
		e.Timestamp = time.UnixMilli(createdAt).UTC()
		if publishedAt.Valid {
			ts := time.UnixMilli(publishedAt.Int64).UTC()
			e.PublishedAt = &ts
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
