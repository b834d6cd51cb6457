package outbox

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/tmcgame/platform/internal/sqlutil"
)

type Repository struct {
	db sqlutil.DBTX
}

func NewRepository(db sqlutil.DBTX) *Repository {
	return &Repository{db: db}
}

// WithTx returns a copy of the repository bound to the given transaction.
// State mutations insert their event in the same transaction so the outbox
// only ever describes committed facts.
func (r *Repository) WithTx(tx *sql.Tx) *Repository {
	return &Repository{db: tx}
}

// InsertEvent writes an event row. A trigger on game_outbox raises
// pg_notify('game_outbox_events', id) on commit, which wakes the listener.
func (r *Repository) InsertEvent(ctx context.Context, req InsertEventRequest) error {
	payload := pqtype.NullRawMessage{RawMessage: req.Payload, Valid: len(req.Payload) > 0}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO game_outbox (id, game_id, event_type, payload)
		VALUES ($1, $2, $3, $4)`,
		req.ID, req.GameID, req.EventType, payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert outbox event: %w", err)
	}
	return nil
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, game_id, event_type, payload, created_at, sent_at
		FROM game_outbox WHERE id = $1`, id)
	return scanEvent(row)
}

// FetchUnsent returns events the notify path missed, oldest first.
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, game_id, event_type, payload, created_at, sent_at
		FROM game_outbox WHERE sent_at IS NULL
		ORDER BY created_at
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var payload pqtype.NullRawMessage
		var sentAt sql.NullTime
		if err := rows.Scan(&e.ID, &e.GameID, &e.EventType, &payload, &e.CreatedAt, &sentAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox event: %w", err)
		}
		if payload.Valid {
			e.Payload = payload.RawMessage
		}
		e.SentAt = sqlutil.FromSqlTime(sentAt)
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if _, err := r.db.ExecContext(ctx, `
		UPDATE game_outbox SET sent_at = now() WHERE id = $1 AND sent_at IS NULL`, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func scanEvent(row *sql.Row) (*Event, error) {
	var e Event
	var payload pqtype.NullRawMessage
	var sentAt sql.NullTime
	if err := row.Scan(&e.ID, &e.GameID, &e.EventType, &payload, &e.CreatedAt, &sentAt); err != nil {
		return nil, fmt.Errorf("failed to fetch outbox event: %w", err)
	}
	if payload.Valid {
		e.Payload = payload.RawMessage
	}
	e.SentAt = sqlutil.FromSqlTime(sentAt)
	return &e, nil
}
