package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"taskmind/pkg/task"
)

// action executes a resolved intent. Execute receives the refined data and,
// for update flows, the task the session was opened on. It returns the
// result task (nil when the intent produces none) and the response text.
type action interface {
	canHandle(intent string) bool
	execute(ctx context.Context, data TaskData, inProgress *task.Task) (*task.Task, string, error)
}

// createTaskAction builds the refined task. The task is returned unsaved
// (ID zero) so the caller persists it through the repository; when the
// session was opened on an existing task the refinements are merged into it
// instead.
type createTaskAction struct{}

func (a *createTaskAction) canHandle(intent string) bool { return intent == "CREATE_TASK" }

func (a *createTaskAction) execute(_ context.Context, data TaskData, inProgress *task.Task) (*task.Task, string, error) {
	t := &task.Task{}
	if inProgress != nil {
		copied := *inProgress
		t = &copied
	}

	if data.Description != "" {
		t.Description = data.Description
	}
	if data.Deadline != "" {
		deadline, err := parseDeadline(data.Deadline)
		if err != nil {
			return nil, "", fmt.Errorf("parse deadline %q: %w", data.Deadline, err)
		}
		t.Deadline = deadline
	}
	if data.Priority != "" {
		p, err := task.ParsePriority(data.Priority)
		if err != nil {
			return nil, "", err
		}
		t.Priority = &p
	}
	if data.Constraints != "" {
		c := data.Constraints
		t.Constraints = &c
	}

	if err := t.Validate(); err != nil {
		return nil, "", err
	}

	if inProgress != nil {
		return t, "Task updated: " + t.Description, nil
	}
	return t, "Task ready: " + t.Description, nil
}

// completeTaskAction marks the referenced task completed through the store.
type completeTaskAction struct {
	tasks task.Store
}

func (a *completeTaskAction) canHandle(intent string) bool { return intent == "COMPLETE_TASK" }

func (a *completeTaskAction) execute(ctx context.Context, data TaskData, _ *task.Task) (*task.Task, string, error) {
	if data.TaskID == "" {
		// Resolved without an action; the user never identified a task.
		return nil, "I couldn't tell which task to complete. Try again with the task id.", nil
	}
	id, err := strconv.ParseInt(data.TaskID, 10, 64)
	if err != nil {
		return nil, "", fmt.Errorf("invalid task id %q: %w", data.TaskID, err)
	}
	t, err := a.tasks.Complete(ctx, id)
	if err != nil {
		return nil, "", err
	}
	return t, fmt.Sprintf("Task %d completed: %s", t.ID, t.Description), nil
}

// listTasksAction summarizes active tasks. It resolves the conversation
// without producing a task.
type listTasksAction struct {
	tasks task.Store
}

func (a *listTasksAction) canHandle(intent string) bool { return intent == "LIST_TASKS" }

func (a *listTasksAction) execute(ctx context.Context, _ TaskData, _ *task.Task) (*task.Task, string, error) {
	active, err := a.tasks.Active(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(active) == 0 {
		return nil, "You have no active tasks.", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "You have %d active task(s):", len(active))
	for i, t := range active {
		if i == 5 {
			fmt.Fprintf(&b, " and %d more.", len(active)-i)
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", t.ID, t.Description)
	}
	return nil, b.String(), nil
}

// deadline formats accepted from the model, most specific first.
var deadlineFormats = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02",
}

func parseDeadline(s string) (*time.Time, error) {
	for _, layout := range deadlineFormats {
		if ts, err := time.Parse(layout, s); err == nil {
			return &ts, nil
		}
	}
	return nil, fmt.Errorf("unrecognized deadline format")
}
