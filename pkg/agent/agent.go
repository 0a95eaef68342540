// Package agent implements the natural-language query service that turns
// free-text utterances into task operations. A query is classified into an
// intent, refined over one or more turns until the task details are
// well-formed, and then dispatched to the matching action.
package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"taskmind/pkg/llm"
	"taskmind/pkg/task"
)

// ErrEmptyQuery is returned when the query is empty after trimming.
var ErrEmptyQuery = errors.New("query cannot be empty")

// QueryRequest is the body of POST /api/query. Context is the payload the
// client echoed back from the previous turn, if any.
type QueryRequest struct {
	Query   string          `json:"query"`
	Context json.RawMessage `json:"context,omitempty"`
}

// QueryResponse is the oracle's answer for one turn. When RequiresFollowUp
// is true the session continues and Context must be echoed on the next turn.
type QueryResponse struct {
	Response         string               `json:"response"`
	RequiresFollowUp bool                 `json:"requiresFollowUp"`
	Context          *ConversationContext `json:"context,omitempty"`
	ResultTask       *task.Task           `json:"resultTask,omitempty"`
}

// ConversationContext is the server-side refinement state threaded through a
// multi-turn exchange. Clients treat it as an opaque token; only this
// package reads it.
type ConversationContext struct {
	CurrentIntent  string     `json:"currentIntent,omitempty"`
	Collected      TaskData   `json:"collectedData"`
	NextPrompt     string     `json:"nextPrompt,omitempty"`
	InProgressTask *task.Task `json:"inProgressTask,omitempty"`
}

// TaskData is the task information collected so far during refinement.
// Empty strings mean "not yet known".
type TaskData struct {
	Description string `json:"description,omitempty"`
	Deadline    string `json:"deadline,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Constraints string `json:"constraints,omitempty"`
	TaskID      string `json:"taskId,omitempty"`
}

// Service processes natural-language queries against the task store.
type Service struct {
	tasks   task.Store
	chat    llm.Completer
	actions []action
}

// New creates a Service.
func New(tasks task.Store, chat llm.Completer) *Service {
	s := &Service{tasks: tasks, chat: chat}
	s.actions = []action{
		&createTaskAction{},
		&completeTaskAction{tasks: tasks},
		&listTasksAction{tasks: tasks},
	}
	return s
}

// ProcessQuery drives one turn of the refinement protocol. It returns a
// follow-up question while details are missing, and a terminal response
// (RequiresFollowUp false) once the intent can be acted on.
func (s *Service) ProcessQuery(ctx context.Context, req QueryRequest) (*QueryResponse, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, ErrEmptyQuery
	}

	prev := ConversationContext{}
	if len(req.Context) > 0 {
		// A context the server didn't mint parses to the zero value and the
		// conversation starts over; it never aborts the turn.
		if err := json.Unmarshal(req.Context, &prev); err != nil {
			log.Printf("agent: discarding unreadable context: %v", err)
			prev = ConversationContext{}
		}
	}

	intent, err := s.classifyIntent(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("classify intent: %w", err)
	}
	if prev.CurrentIntent != "" {
		// Mid-refinement turns keep the original intent; the follow-up answer
		// alone rarely classifies to anything meaningful.
		intent = prev.CurrentIntent
	}
	log.Printf("agent: intent %s for query %q", intent, query)

	refined, err := s.refine(ctx, query, prev.Collected)
	if err != nil {
		return nil, fmt.Errorf("refine task: %w", err)
	}

	if refined.NeedsMoreInfo {
		log.Printf("agent: follow-up required: %s", refined.FollowUpQuestion)
		return &QueryResponse{
			Response:         refined.FollowUpQuestion,
			RequiresFollowUp: true,
			Context: &ConversationContext{
				CurrentIntent:  intent,
				Collected:      refined.Collected,
				NextPrompt:     refined.FollowUpQuestion,
				InProgressTask: prev.InProgressTask,
			},
		}, nil
	}

	for _, a := range s.actions {
		if !a.canHandle(intent) {
			continue
		}
		result, message, err := a.execute(ctx, refined.Collected, prev.InProgressTask)
		if err != nil {
			return nil, err
		}
		return &QueryResponse{Response: message, ResultTask: result}, nil
	}

	log.Printf("agent: no action for intent %s", intent)
	return &QueryResponse{Response: "Failed to process query: no intent recognized"}, nil
}
