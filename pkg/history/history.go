// Package history records task lifecycle activity in an append-only log.
package history

import (
	"context"
	"time"
)

// Event types recorded by the server.
const (
	TypeTaskCreated   = "task.created"
	TypeTaskUpdated   = "task.updated"
	TypeTaskCompleted = "task.completed"
	TypeTaskReverted  = "task.reverted"
	TypeQueryResolved = "query.resolved"
)

// Event is a single entry in the activity log.
type Event struct {
	ID        string         `json:"id"`     // UUID v7 (time-ordered)
	Type      string         `json:"type"`   // e.g. "task.created"
	TaskID    int64          `json:"taskId"` // 0 when the event is not tied to a task
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"createdAt"`
}

// Store is the contract for activity persistence.
type Store interface {
	Append(ctx context.Context, eventType string, taskID int64, payload map[string]any) (*Event, error)
	Recent(ctx context.Context, limit int) ([]Event, error)
	ByTask(ctx context.Context, taskID int64, limit int) ([]Event, error)
	Count(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}
