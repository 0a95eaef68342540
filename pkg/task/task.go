package task

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Priority is the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "LOW"
	PriorityMedium Priority = "MEDIUM"
	PriorityHigh   Priority = "HIGH"
)

// Valid reports whether p is one of the known priority levels.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh:
		return true
	}
	return false
}

// ParsePriority converts s to a Priority, accepting any casing.
func ParsePriority(s string) (Priority, error) {
	p := Priority(strings.ToUpper(strings.TrimSpace(s)))
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q", s)
	}
	return p, nil
}

var (
	ErrNotFound         = errors.New("task not found")
	ErrAlreadyCompleted = errors.New("task already completed")
	ErrNotCompleted     = errors.New("task not completed")
	ErrEmptyDescription = errors.New("task description cannot be empty")
)

// Task represents a unit of work, possibly nested under a parent task.
// Nullable fields are pointers so the wire format carries explicit null
// rather than a zero value.
type Task struct {
	ID          int64          `json:"id"`
	Description string         `json:"description"`
	Completed   bool           `json:"completed"`
	CreatedAt   time.Time      `json:"createdAt"`
	CompletedAt *time.Time     `json:"completedAt"`
	Deadline    *time.Time     `json:"deadline"`
	Priority    *Priority      `json:"priority"`
	Constraints *string        `json:"constraints"`
	ParentID    *int64         `json:"parentId"`
	Metadata    map[string]any `json:"metadata"`
}

// Validate checks the invariants a task must satisfy before it is persisted.
func (t *Task) Validate() error {
	if strings.TrimSpace(t.Description) == "" {
		return ErrEmptyDescription
	}
	if t.Priority != nil && !t.Priority.Valid() {
		return fmt.Errorf("invalid priority %q", *t.Priority)
	}
	return nil
}

// Overdue reports whether the task has a deadline in the past and is not
// completed. Derived, never stored.
func (t *Task) Overdue(now time.Time) bool {
	return t.Deadline != nil && t.Deadline.Before(now) && !t.Completed
}

// Update holds partial fields for a task update. Nil fields are left
// unchanged.
type Update struct {
	Description *string        `json:"description"`
	Deadline    *time.Time     `json:"deadline"`
	Priority    *Priority      `json:"priority"`
	Constraints *string        `json:"constraints"`
	Metadata    map[string]any `json:"metadata"`
}

// Store is the contract for task persistence.
type Store interface {
	Create(ctx context.Context, t *Task) (*Task, error)
	Get(ctx context.Context, id int64) (*Task, error)
	Update(ctx context.Context, id int64, upd Update) (*Task, error)
	Complete(ctx context.Context, id int64) (*Task, error)
	Revert(ctx context.Context, id int64) (*Task, error)
	List(ctx context.Context) ([]Task, error)
	Active(ctx context.Context) ([]Task, error)
	Roots(ctx context.Context) ([]Task, error)
	Subtasks(ctx context.Context, parentID int64) ([]Task, error)
	ByPriority(ctx context.Context, p Priority) ([]Task, error)
	Overdue(ctx context.Context) ([]Task, error)
	Count(ctx context.Context) (int, error)
	ActiveCount(ctx context.Context) (int, error)
	EnsureTable(ctx context.Context) error
}
