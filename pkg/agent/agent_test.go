package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"taskmind/pkg/llm"
	"taskmind/pkg/task"
)

// --- Stub chat completer ---

// scriptedChat returns canned contents in order, one per Complete call.
type scriptedChat struct {
	responses []string
	calls     int
	err       error
}

func (c *scriptedChat) Complete(_ context.Context, _ llm.Request) (*llm.Response, error) {
	if c.err != nil {
		return nil, c.err
	}
	if c.calls >= len(c.responses) {
		return nil, errors.New("scripted chat exhausted")
	}
	content := c.responses[c.calls]
	c.calls++
	return &llm.Response{Content: content}, nil
}

// --- Mock task store ---

type mockTaskStore struct {
	tasks  map[int64]*task.Task
	nextID int64
}

func newMockTaskStore() *mockTaskStore {
	return &mockTaskStore{tasks: make(map[int64]*task.Task), nextID: 1}
}

func (s *mockTaskStore) Create(_ context.Context, t *task.Task) (*task.Task, error) {
	cp := *t
	cp.ID = s.nextID
	s.nextID++
	cp.CreatedAt = time.Now()
	s.tasks[cp.ID] = &cp
	out := cp
	return &out, nil
}

func (s *mockTaskStore) Get(_ context.Context, id int64) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (s *mockTaskStore) Update(_ context.Context, id int64, upd task.Update) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Deadline != nil {
		t.Deadline = upd.Deadline
	}
	if upd.Priority != nil {
		t.Priority = upd.Priority
	}
	if upd.Constraints != nil {
		t.Constraints = upd.Constraints
	}
	cp := *t
	return &cp, nil
}

func (s *mockTaskStore) Complete(_ context.Context, id int64) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	if t.Completed {
		return nil, task.ErrAlreadyCompleted
	}
	now := time.Now()
	t.Completed = true
	t.CompletedAt = &now
	cp := *t
	return &cp, nil
}

func (s *mockTaskStore) Revert(_ context.Context, id int64) (*task.Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, task.ErrNotFound
	}
	if !t.Completed {
		return nil, task.ErrNotCompleted
	}
	t.Completed = false
	t.CompletedAt = nil
	cp := *t
	return &cp, nil
}

func (s *mockTaskStore) List(_ context.Context) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		out = append(out, *t)
	}
	return out, nil
}

func (s *mockTaskStore) Active(_ context.Context) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		if !t.Completed {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *mockTaskStore) Roots(_ context.Context) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		if t.ParentID == nil {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *mockTaskStore) Subtasks(_ context.Context, parentID int64) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		if t.ParentID != nil && *t.ParentID == parentID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *mockTaskStore) ByPriority(_ context.Context, p task.Priority) ([]task.Task, error) {
	var out []task.Task
	for _, t := range s.tasks {
		if t.Priority != nil && *t.Priority == p {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *mockTaskStore) Overdue(_ context.Context) ([]task.Task, error) {
	var out []task.Task
	now := time.Now()
	for _, t := range s.tasks {
		if t.Overdue(now) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (s *mockTaskStore) Count(_ context.Context) (int, error) { return len(s.tasks), nil }

func (s *mockTaskStore) ActiveCount(_ context.Context) (int, error) {
	n := 0
	for _, t := range s.tasks {
		if !t.Completed {
			n++
		}
	}
	return n, nil
}

func (s *mockTaskStore) EnsureTable(_ context.Context) error { return nil }

// --- Tests ---

func TestProcessQueryEmpty(t *testing.T) {
	svc := New(newMockTaskStore(), &scriptedChat{})
	if _, err := svc.ProcessQuery(context.Background(), QueryRequest{Query: "   "}); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got: %v", err)
	}
}

func TestProcessQueryRefinementFlow(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		// Turn 1: classify, then refine asking for more detail.
		`{"intent": "CREATE_TASK"}`,
		`{"description": "learn programming", "needsMoreInfo": true, "followUpQuestion": "Please provide more details"}`,
		// Turn 2: classify, then refine to completion.
		`{"intent": "CREATE_TASK"}`,
		`{"description": "Learn Python for data science", "priority": "MEDIUM", "needsMoreInfo": false}`,
	}}
	svc := New(newMockTaskStore(), chat)

	resp, err := svc.ProcessQuery(context.Background(), QueryRequest{Query: "I want to learn programming"})
	if err != nil {
		t.Fatalf("turn 1: %v", err)
	}
	if !resp.RequiresFollowUp {
		t.Fatal("turn 1: expected follow-up")
	}
	if resp.Response != "Please provide more details" {
		t.Errorf("turn 1 response = %q", resp.Response)
	}
	if resp.Context == nil || resp.Context.Collected.Description != "learn programming" {
		t.Fatalf("turn 1: context does not carry collected data: %+v", resp.Context)
	}

	ctxJSON, err := json.Marshal(resp.Context)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = svc.ProcessQuery(context.Background(), QueryRequest{
		Query:   "I want to learn Python for data science",
		Context: ctxJSON,
	})
	if err != nil {
		t.Fatalf("turn 2: %v", err)
	}
	if resp.RequiresFollowUp {
		t.Fatal("turn 2: expected resolution")
	}
	if resp.ResultTask == nil {
		t.Fatal("turn 2: expected a result task")
	}
	if resp.ResultTask.Description != "Learn Python for data science" {
		t.Errorf("description = %q", resp.ResultTask.Description)
	}
	if resp.ResultTask.ID != 0 {
		t.Errorf("result task should be unsaved, got id %d", resp.ResultTask.ID)
	}
	if resp.ResultTask.Priority == nil || *resp.ResultTask.Priority != task.PriorityMedium {
		t.Errorf("priority = %v", resp.ResultTask.Priority)
	}
}

func TestProcessQueryCompleteIntent(t *testing.T) {
	store := newMockTaskStore()
	created, _ := store.Create(context.Background(), &task.Task{Description: "ship the release"})

	chat := &scriptedChat{responses: []string{
		`{"intent": "COMPLETE_TASK"}`,
		`{"taskId": 1, "needsMoreInfo": false}`,
	}}
	svc := New(store, chat)

	resp, err := svc.ProcessQuery(context.Background(), QueryRequest{Query: "finish task 1"})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RequiresFollowUp {
		t.Fatal("expected resolution")
	}
	if resp.ResultTask == nil || resp.ResultTask.ID != created.ID {
		t.Fatalf("result task = %+v", resp.ResultTask)
	}
	if !resp.ResultTask.Completed || resp.ResultTask.CompletedAt == nil {
		t.Error("result task should be completed with completedAt set")
	}
}

func TestProcessQueryListIntentResolvesWithoutTask(t *testing.T) {
	store := newMockTaskStore()
	store.Create(context.Background(), &task.Task{Description: "water the plants"})

	chat := &scriptedChat{responses: []string{
		`{"intent": "LIST_TASKS"}`,
		`{"needsMoreInfo": false}`,
	}}
	svc := New(store, chat)

	resp, err := svc.ProcessQuery(context.Background(), QueryRequest{Query: "what's on my plate?"})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.RequiresFollowUp {
		t.Fatal("expected resolution")
	}
	if resp.ResultTask != nil {
		t.Errorf("expected no result task, got %+v", resp.ResultTask)
	}
	if resp.Response == "" {
		t.Error("expected a summary response")
	}
}

func TestProcessQueryUnreadableContext(t *testing.T) {
	chat := &scriptedChat{responses: []string{
		`{"intent": "CREATE_TASK"}`,
		`{"description": "buy milk", "needsMoreInfo": false}`,
	}}
	svc := New(newMockTaskStore(), chat)

	resp, err := svc.ProcessQuery(context.Background(), QueryRequest{
		Query:   "buy milk",
		Context: json.RawMessage(`"not an object"`),
	})
	if err != nil {
		t.Fatalf("ProcessQuery: %v", err)
	}
	if resp.ResultTask == nil || resp.ResultTask.Description != "buy milk" {
		t.Errorf("result = %+v", resp.ResultTask)
	}
}

func TestProcessQueryChatFailure(t *testing.T) {
	svc := New(newMockTaskStore(), &scriptedChat{err: errors.New("model unavailable")})
	if _, err := svc.ProcessQuery(context.Background(), QueryRequest{Query: "anything"}); err == nil {
		t.Fatal("expected error when the model is unavailable")
	}
}
