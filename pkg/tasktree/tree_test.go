package tasktree

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskmind/pkg/task"
)

// countingSource serves a fixed forest and counts fetches per key.
type countingSource struct {
	roots     []task.Task
	subtasks  map[int64][]task.Task
	rootCalls int
	subCalls  map[int64]int
}

func newCountingSource() *countingSource {
	return &countingSource{subtasks: map[int64][]task.Task{}, subCalls: map[int64]int{}}
}

func (s *countingSource) Roots(context.Context) ([]task.Task, error) {
	s.rootCalls++
	return s.roots, nil
}

func (s *countingSource) Subtasks(_ context.Context, parentID int64) ([]task.Task, error) {
	s.subCalls[parentID]++
	return s.subtasks[parentID], nil
}

func mkTask(id int64, desc string, created time.Time) task.Task {
	return task.Task{ID: id, Description: desc, CreatedAt: created}
}

func testForest() *countingSource {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	s := newCountingSource()
	s.roots = []task.Task{
		mkTask(1, "plan release", base),
		mkTask(2, "write docs", base.Add(time.Hour)),
	}
	s.subtasks[1] = []task.Task{
		mkTask(3, "cut branch", base.Add(2*time.Hour)),
		mkTask(4, "tag version", base.Add(3*time.Hour)),
	}
	s.subtasks[3] = []task.Task{
		mkTask(5, "freeze deps", base.Add(4*time.Hour)),
	}
	return s
}

func TestRootsFetchedOnceAndOrdered(t *testing.T) {
	src := testForest()
	b := New(src)

	roots, err := b.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, "plan release", roots[0].Task.Description)
	assert.Equal(t, 0, roots[0].Depth)

	_, err = b.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, src.rootCalls)
}

func TestChildrenLazyAndMemoized(t *testing.T) {
	src := testForest()
	b := New(src)

	_, err := b.Roots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, src.subCalls, "no children fetched before a node is opened")

	kids, err := b.Children(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, 1, kids[0].Depth)

	grandkids, err := b.Children(context.Background(), 3)
	require.NoError(t, err)
	require.Len(t, grandkids, 1)
	assert.Equal(t, 2, grandkids[0].Depth)

	_, err = b.Children(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 1, src.subCalls[1], "memoized children are not refetched")
	assert.Equal(t, 0, src.subCalls[2], "sibling branch untouched")
}

func TestExpandCollapse(t *testing.T) {
	b := New(testForest())

	assert.False(t, b.IsExpanded(1))
	b.Expand(1)
	assert.True(t, b.IsExpanded(1))

	roots, err := b.Roots(context.Background())
	require.NoError(t, err)
	assert.True(t, roots[0].Expanded)
	assert.False(t, roots[1].Expanded)

	b.Collapse(1)
	assert.False(t, b.IsExpanded(1))
}

func TestOverdueDerivedFromClock(t *testing.T) {
	now := time.Date(2025, 3, 2, 12, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	src := newCountingSource()
	src.roots = []task.Task{
		{ID: 1, Description: "late", CreatedAt: past, Deadline: &past},
		{ID: 2, Description: "on time", CreatedAt: past, Deadline: &future},
		{ID: 3, Description: "done late", CreatedAt: past, Deadline: &past, Completed: true},
	}
	b := New(src, WithClock(func() time.Time { return now }))

	roots, err := b.Roots(context.Background())
	require.NoError(t, err)
	assert.True(t, roots[0].Overdue)
	assert.False(t, roots[1].Overdue)
	assert.False(t, roots[2].Overdue, "completed tasks are never overdue")
}

func TestOrphanSurfacesAsRoot(t *testing.T) {
	// The store lists the orphan among the roots once its parent is gone.
	missing := int64(99)
	src := newCountingSource()
	src.roots = []task.Task{
		{ID: 1, Description: "real root", CreatedAt: time.Now()},
		{ID: 6, Description: "orphan", CreatedAt: time.Now(), ParentID: &missing},
	}
	b := New(src)

	roots, err := b.Roots(context.Background())
	require.NoError(t, err)
	require.Len(t, roots, 2)
	assert.Equal(t, 0, roots[1].Depth)

	kids, err := b.Children(context.Background(), 6)
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestEmptyStore(t *testing.T) {
	b := New(newCountingSource())
	roots, err := b.Roots(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roots)

	err = b.Walk(context.Background(), func(Node) error {
		t.Fatal("walk callback on empty forest")
		return nil
	})
	require.NoError(t, err)
}

func TestApplyPatchesCachedTask(t *testing.T) {
	src := testForest()
	b := New(src)

	_, err := b.Roots(context.Background())
	require.NoError(t, err)
	_, err = b.Children(context.Background(), 1)
	require.NoError(t, err)

	done := src.subtasks[1][0]
	done.Completed = true
	b.Apply(done)

	kids, err := b.Children(context.Background(), 1)
	require.NoError(t, err)
	assert.True(t, kids[0].Task.Completed)
	assert.Equal(t, 1, src.subCalls[1], "patch did not trigger a refetch")
}

func TestInvalidateRefetches(t *testing.T) {
	src := testForest()
	b := New(src)

	_, err := b.Roots(context.Background())
	require.NoError(t, err)
	b.Invalidate()
	_, err = b.Roots(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, src.rootCalls)
}

func TestWalkVisitsDepthFirst(t *testing.T) {
	src := testForest()
	b := New(src)

	var order []int64
	err := b.Walk(context.Background(), func(n Node) error {
		order = append(order, n.Task.ID)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 3, 5, 4, 2}, order)
}

func TestWalkGuardsAgainstCycles(t *testing.T) {
	src := newCountingSource()
	src.roots = []task.Task{mkTask(1, "a", time.Now())}
	src.subtasks[1] = []task.Task{mkTask(2, "b", time.Now())}
	src.subtasks[2] = []task.Task{mkTask(1, "a again", time.Now())}
	b := New(src)

	var count int
	err := b.Walk(context.Background(), func(Node) error {
		count++
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}
