package task

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const taskColumns = `id, description, completed, created_at, completed_at, deadline, priority, constraints, parent_id, metadata`

// PgStore is a PostgreSQL-backed task store.
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore creates a PgStore.
func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

// EnsureTable creates the tasks table if it doesn't exist.
func (s *PgStore) EnsureTable(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS tasks (
			id           BIGSERIAL PRIMARY KEY,
			description  TEXT NOT NULL,
			completed    BOOLEAN NOT NULL DEFAULT FALSE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			completed_at TIMESTAMPTZ,
			deadline     TIMESTAMPTZ,
			priority     TEXT,
			constraints  TEXT,
			parent_id    BIGINT,
			metadata     JSONB NOT NULL DEFAULT '{}'
		)`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_parent ON tasks(parent_id) WHERE parent_id IS NOT NULL`)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `CREATE INDEX IF NOT EXISTS idx_tasks_completed ON tasks(completed)`)
	return err
}

// Create inserts a new task. ID and CreatedAt are assigned by the database.
func (s *PgStore) Create(ctx context.Context, t *Task) (*Task, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	if t.Metadata == nil {
		t.Metadata = map[string]any{}
	}
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO tasks (description, deadline, priority, constraints, parent_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb)
		RETURNING `+taskColumns,
		t.Description, t.Deadline, t.Priority, t.Constraints, t.ParentID, string(metaJSON))
	created, err := scanTask(row)
	if err != nil {
		return nil, fmt.Errorf("create task: %w", err)
	}
	return created, nil
}

// Get retrieves a single task by ID.
func (s *PgStore) Get(ctx context.Context, id int64) (*Task, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get task %d: %w", id, err)
	}
	return t, nil
}

// Update modifies the given fields of a task. Nil fields are untouched.
func (s *PgStore) Update(ctx context.Context, id int64, upd Update) (*Task, error) {
	setClauses := ""
	var args []any
	add := func(col string, v any) {
		args = append(args, v)
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("%s = $%d", col, len(args))
	}

	if upd.Description != nil {
		if *upd.Description == "" {
			return nil, ErrEmptyDescription
		}
		add("description", *upd.Description)
	}
	if upd.Deadline != nil {
		add("deadline", *upd.Deadline)
	}
	if upd.Priority != nil {
		if !upd.Priority.Valid() {
			return nil, fmt.Errorf("invalid priority %q", *upd.Priority)
		}
		add("priority", string(*upd.Priority))
	}
	if upd.Constraints != nil {
		add("constraints", *upd.Constraints)
	}
	if upd.Metadata != nil {
		metaJSON, err := json.Marshal(upd.Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshal metadata: %w", err)
		}
		args = append(args, string(metaJSON))
		if setClauses != "" {
			setClauses += ", "
		}
		setClauses += fmt.Sprintf("metadata = $%d::jsonb", len(args))
	}

	if setClauses == "" {
		return s.Get(ctx, id)
	}

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tasks SET %s WHERE id = $%d RETURNING %s", setClauses, len(args), taskColumns)
	t, err := scanTask(s.pool.QueryRow(ctx, query, args...))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("update task %d: %w", id, err)
	}
	return t, nil
}

// Complete marks a task as completed, stamping completed_at. Completing a
// task that is already completed is a conflict, not a no-op.
func (s *PgStore) Complete(ctx context.Context, id int64) (*Task, error) {
	now := time.Now().Truncate(time.Microsecond)
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks SET completed = TRUE, completed_at = $1
		WHERE id = $2 AND completed = FALSE
		RETURNING `+taskColumns, now, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("task %d: %w", id, ErrAlreadyCompleted)
	}
	if err != nil {
		return nil, fmt.Errorf("complete task %d: %w", id, err)
	}
	return t, nil
}

// Revert clears the completed state and completed_at of a completed task.
func (s *PgStore) Revert(ctx context.Context, id int64) (*Task, error) {
	row := s.pool.QueryRow(ctx, `
		UPDATE tasks SET completed = FALSE, completed_at = NULL
		WHERE id = $1 AND completed = TRUE
		RETURNING `+taskColumns, id)
	t, err := scanTask(row)
	if errors.Is(err, pgx.ErrNoRows) {
		if _, getErr := s.Get(ctx, id); getErr != nil {
			return nil, getErr
		}
		return nil, fmt.Errorf("task %d: %w", id, ErrNotCompleted)
	}
	if err != nil {
		return nil, fmt.Errorf("revert task %d: %w", id, err)
	}
	return t, nil
}

// List returns all tasks ordered by creation time.
func (s *PgStore) List(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks ORDER BY created_at ASC, id ASC`)
}

// Active returns all tasks that are not completed.
func (s *PgStore) Active(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE completed = FALSE ORDER BY created_at ASC, id ASC`)
}

// Roots returns tasks with no parent, plus tasks whose parent no longer
// resolves. Orphans display as roots rather than vanishing from the tree.
func (s *PgStore) Roots(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `
		SELECT `+prefixColumns("t")+`
		FROM tasks t LEFT JOIN tasks p ON t.parent_id = p.id
		WHERE t.parent_id IS NULL OR p.id IS NULL
		ORDER BY t.created_at ASC, t.id ASC`)
}

// Subtasks returns all tasks whose parent is parentID.
func (s *PgStore) Subtasks(ctx context.Context, parentID int64) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE parent_id = $1 ORDER BY created_at ASC, id ASC`, parentID)
}

// ByPriority returns all tasks with the given priority.
func (s *PgStore) ByPriority(ctx context.Context, p Priority) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE priority = $1 ORDER BY created_at ASC, id ASC`, string(p))
}

// Overdue returns active tasks whose deadline has passed.
func (s *PgStore) Overdue(ctx context.Context) ([]Task, error) {
	return s.queryTasks(ctx, `SELECT `+taskColumns+` FROM tasks WHERE deadline < NOW() AND completed = FALSE ORDER BY created_at ASC, id ASC`)
}

// Count returns total task count.
func (s *PgStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`).Scan(&n)
	return n, err
}

// ActiveCount returns the count of tasks not yet completed.
func (s *PgStore) ActiveCount(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks WHERE completed = FALSE`).Scan(&n)
	return n, err
}

func (s *PgStore) queryTasks(ctx context.Context, query string, args ...any) ([]Task, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration: %w", err)
	}
	return tasks, nil
}

func prefixColumns(alias string) string {
	return alias + ".id, " + alias + ".description, " + alias + ".completed, " +
		alias + ".created_at, " + alias + ".completed_at, " + alias + ".deadline, " +
		alias + ".priority, " + alias + ".constraints, " + alias + ".parent_id, " + alias + ".metadata"
}

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	var priority *string
	var metaJSON []byte
	err := row.Scan(&t.ID, &t.Description, &t.Completed, &t.CreatedAt, &t.CompletedAt,
		&t.Deadline, &priority, &t.Constraints, &t.ParentID, &metaJSON)
	if err != nil {
		return nil, err
	}
	if priority != nil {
		p := Priority(*priority)
		t.Priority = &p
	}
	if err := json.Unmarshal(metaJSON, &t.Metadata); err != nil {
		t.Metadata = map[string]any{}
	}
	return &t, nil
}
