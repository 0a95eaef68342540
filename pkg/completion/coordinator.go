// Package completion coordinates completing and reverting tasks so that
// duplicate triggers, a double click or two concurrent callers, collapse
// into a single store write with one shared outcome.
package completion

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"taskmind/pkg/task"
)

// Repository is the slice of the task store the coordinator writes through.
type Repository interface {
	Complete(ctx context.Context, id int64) (*task.Task, error)
	Revert(ctx context.Context, id int64) (*task.Task, error)
}

// Cache receives the updated task after a successful write, so a cached
// view can patch itself without refetching. Nil is allowed.
type Cache interface {
	Apply(t task.Task)
}

// Coordinator serializes completion state changes per task.
type Coordinator struct {
	repo  Repository
	cache Cache

	group singleflight.Group
}

// New creates a Coordinator. cache may be nil.
func New(repo Repository, cache Cache) *Coordinator {
	return &Coordinator{repo: repo, cache: cache}
}

// Complete marks the task completed. Concurrent duplicate calls for the
// same task share a single store write and all receive the same task,
// stamped with one completedAt.
func (c *Coordinator) Complete(ctx context.Context, id int64) (*task.Task, error) {
	return c.run(ctx, fmt.Sprintf("complete:%d", id), id, c.repo.Complete)
}

// Revert clears the task's completed state and its completedAt stamp.
func (c *Coordinator) Revert(ctx context.Context, id int64) (*task.Task, error) {
	return c.run(ctx, fmt.Sprintf("revert:%d", id), id, c.repo.Revert)
}

func (c *Coordinator) run(ctx context.Context, key string, id int64, op func(context.Context, int64) (*task.Task, error)) (*task.Task, error) {
	v, err, _ := c.group.Do(key, func() (any, error) {
		t, err := op(ctx, id)
		if err != nil {
			return nil, err
		}
		if c.cache != nil {
			c.cache.Apply(*t)
		}
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	// Each caller gets its own copy of the shared result.
	cp := *(v.(*task.Task))
	return &cp, nil
}
