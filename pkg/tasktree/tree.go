// Package tasktree presents the flat task store as a lazily loaded forest.
//
// Children are fetched from the Source only when a node is first asked for
// them and are memoized after that. Tasks whose parent no longer exists are
// surfaced as roots by the store query; the builder additionally treats any
// task with no recorded depth as a root so a missing parent never breaks
// traversal.
package tasktree

import (
	"context"
	"sort"
	"time"

	"taskmind/pkg/task"
)

// Source supplies the two queries the builder needs.
type Source interface {
	Roots(ctx context.Context) ([]task.Task, error)
	Subtasks(ctx context.Context, parentID int64) ([]task.Task, error)
}

// Node is one task as it appears in the tree.
type Node struct {
	Task     task.Task
	Depth    int
	Overdue  bool
	Expanded bool
}

// Builder materializes the task forest on demand. It is not safe for
// concurrent use; callers drive it from a single goroutine.
type Builder struct {
	source Source

	roots    []task.Task
	haveRoot bool
	children map[int64][]task.Task
	expanded map[int64]bool
	depth    map[int64]int

	now func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithClock overrides the time source used for overdue derivation.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) { b.now = now }
}

// New creates a Builder over the given source.
func New(source Source, opts ...Option) *Builder {
	b := &Builder{
		source:   source,
		children: make(map[int64][]task.Task),
		expanded: make(map[int64]bool),
		depth:    make(map[int64]int),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Roots returns the top-level nodes, fetching them on first call.
func (b *Builder) Roots(ctx context.Context) ([]Node, error) {
	if !b.haveRoot {
		roots, err := b.source.Roots(ctx)
		if err != nil {
			return nil, err
		}
		sortTasks(roots)
		b.roots = roots
		b.haveRoot = true
		for _, t := range roots {
			b.depth[t.ID] = 0
		}
	}
	return b.nodes(b.roots, 0), nil
}

// Children returns the child nodes of the given task, fetching them on first
// call and serving the memoized slice afterwards.
func (b *Builder) Children(ctx context.Context, parentID int64) ([]Node, error) {
	kids, ok := b.children[parentID]
	if !ok {
		fetched, err := b.source.Subtasks(ctx, parentID)
		if err != nil {
			return nil, err
		}
		sortTasks(fetched)
		b.children[parentID] = fetched
		kids = fetched
	}
	d := b.depth[parentID] + 1
	for _, t := range kids {
		b.depth[t.ID] = d
	}
	return b.nodes(kids, d), nil
}

// Expand marks a node as expanded.
func (b *Builder) Expand(id int64) { b.expanded[id] = true }

// Collapse marks a node as collapsed. The memoized children survive, only
// the display flag changes.
func (b *Builder) Collapse(id int64) { delete(b.expanded, id) }

// IsExpanded reports the display flag for a node.
func (b *Builder) IsExpanded(id int64) bool { return b.expanded[id] }

// Apply patches a single task in place in whatever cached slice holds it,
// so a completion or edit is visible without refetching the branch.
func (b *Builder) Apply(t task.Task) {
	patch := func(list []task.Task) bool {
		for i := range list {
			if list[i].ID == t.ID {
				list[i] = t
				return true
			}
		}
		return false
	}
	if patch(b.roots) {
		return
	}
	for _, kids := range b.children {
		if patch(kids) {
			return
		}
	}
}

// Invalidate drops all cached data; the next access refetches.
func (b *Builder) Invalidate() {
	b.roots = nil
	b.haveRoot = false
	b.children = make(map[int64][]task.Task)
	b.depth = make(map[int64]int)
}

// Walk traverses the whole forest depth-first, fetching every level, and
// calls fn for each node in display order. A visited set guards against a
// parent cycle introduced by bad data.
func (b *Builder) Walk(ctx context.Context, fn func(Node) error) error {
	roots, err := b.Roots(ctx)
	if err != nil {
		return err
	}
	visited := make(map[int64]bool)
	var walk func(nodes []Node) error
	walk = func(nodes []Node) error {
		for _, n := range nodes {
			if visited[n.Task.ID] {
				continue
			}
			visited[n.Task.ID] = true
			if err := fn(n); err != nil {
				return err
			}
			kids, err := b.Children(ctx, n.Task.ID)
			if err != nil {
				return err
			}
			if err := walk(kids); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(roots)
}

func (b *Builder) nodes(tasks []task.Task, depth int) []Node {
	now := b.now()
	out := make([]Node, len(tasks))
	for i, t := range tasks {
		out[i] = Node{
			Task:     t,
			Depth:    depth,
			Overdue:  t.Overdue(now),
			Expanded: b.expanded[t.ID],
		}
	}
	return out
}

func sortTasks(tasks []task.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		if tasks[i].CreatedAt.Equal(tasks[j].CreatedAt) {
			return tasks[i].ID < tasks[j].ID
		}
		return tasks[i].CreatedAt.Before(tasks[j].CreatedAt)
	})
}
