package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore is a PostgreSQL-backed activity log.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the events table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS events (
			id         TEXT PRIMARY KEY,
			type       TEXT NOT NULL,
			task_id    BIGINT NOT NULL DEFAULT 0,
			payload    JSONB NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_task ON events(task_id) WHERE task_id != 0`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_events_created ON events(created_at, id)`)
	return err
}

// Append inserts a new event.
func (s *PgStore) Append(ctx context.Context, eventType string, taskID int64, payload map[string]any) (*Event, error) {
	if payload == nil {
		payload = map[string]any{}
	}
	e := &Event{
		ID:        uuid.Must(uuid.NewV7()).String(),
		Type:      eventType,
		TaskID:    taskID,
		Payload:   payload,
		CreatedAt: time.Now().Truncate(time.Microsecond),
	}

	payloadJSON, err := json.Marshal(e.Payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO events (id, type, task_id, payload, created_at)
		VALUES ($1, $2, $3, $4::jsonb, $5)`,
		e.ID, e.Type, e.TaskID, string(payloadJSON), e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("append event: %w", err)
	}
	return e, nil
}

// Recent returns the newest events, newest first.
func (s *PgStore) Recent(ctx context.Context, limit int) ([]Event, error) {
	return s.queryEvents(ctx, `
		SELECT id, type, task_id, payload, created_at
		FROM events ORDER BY created_at DESC, id DESC LIMIT $1`, limit)
}

// ByTask returns events for a task, newest first.
func (s *PgStore) ByTask(ctx context.Context, taskID int64, limit int) ([]Event, error) {
	return s.queryEvents(ctx, `
		SELECT id, type, task_id, payload, created_at
		FROM events WHERE task_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`, taskID, limit)
}

// Count returns total event count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM events`).Scan(&n)
	return n, err
}

func (s *PgStore) queryEvents(ctx context.Context, query string, args ...any) ([]Event, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []Event{}
	for rows.Next() {
		var e Event
		var payloadJSON []byte
		if err := rows.Scan(&e.ID, &e.Type, &e.TaskID, &payloadJSON, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(payloadJSON, &e.Payload); err != nil {
			e.Payload = map[string]any{}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return events, nil
}
