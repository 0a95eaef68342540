// Package conversation drives a multi-turn exchange with the query oracle
// until a task is resolved or the session is abandoned.
//
// A State moves through exactly two phases: Open (accepting utterances) and
// Resolved (terminal). Turns are strictly ordered; each turn echoes the
// opaque context token received on the previous one. Responses to superseded
// requests are discarded, never applied.
package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"taskmind/pkg/client"
	"taskmind/pkg/task"
)

var (
	// ErrResolved is returned when submitting to a session that has
	// already reached its terminal state.
	ErrResolved = errors.New("conversation already resolved")
	// ErrStale is returned when a response arrived for a request that was
	// superseded by a newer submission; the state was not modified.
	ErrStale = errors.New("stale oracle response discarded")
)

// Speaker identifies who produced a message.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Message is one entry in the conversation transcript.
type Message struct {
	Speaker Speaker `json:"speaker"`
	Text    string  `json:"text"`
}

// Oracle is the transport that executes one query turn.
type Oracle interface {
	Query(ctx context.Context, query string, conversationContext json.RawMessage) (*client.QueryResult, error)
}

// Repository persists a resolved session's result task.
type Repository interface {
	Create(ctx context.Context, t task.Task) (*task.Task, error)
	Update(ctx context.Context, id int64, upd task.Update) (*task.Task, error)
}

// State is one refinement session. Create it with NewState (new task flow)
// or NewUpdateState (refining an existing task), feed it utterances through
// Engine.Submit, and discard it once resolved or abandoned.
type State struct {
	mu sync.Mutex

	id               string
	messages         []Message
	context          json.RawMessage
	requiresFollowUp bool
	resultTask       *task.Task
	resolved         bool

	// updateTaskID is the task this session refines, zero for new-task flows.
	updateTaskID int64

	// lastSeq is the sequence number of the most recently issued request.
	// A response only applies if its request is still the latest.
	lastSeq uint64
}

// NewState creates a session for a new-task refinement flow.
func NewState() *State {
	return &State{id: uuid.New().String()}
}

// NewUpdateState creates a session refining an existing task. The task is
// wrapped into the initial oracle context.
func NewUpdateState(t task.Task) (*State, error) {
	seed, err := json.Marshal(map[string]any{"inProgressTask": t})
	if err != nil {
		return nil, fmt.Errorf("seed context: %w", err)
	}
	return &State{
		id:           uuid.New().String(),
		context:      seed,
		updateTaskID: t.ID,
	}, nil
}

// ID returns the session identity.
func (s *State) ID() string { return s.id }

// Messages returns a copy of the transcript.
func (s *State) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Resolved reports whether the session reached its terminal state.
func (s *State) Resolved() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolved
}

// ResultTask returns the task the resolved session produced, nil when the
// conversation resolved without one.
func (s *State) ResultTask() *task.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultTask == nil {
		return nil
	}
	cp := *s.resultTask
	return &cp
}

// Engine turns user utterances into oracle calls and applies the responses.
type Engine struct {
	oracle Oracle
}

// NewEngine creates an Engine.
func NewEngine(oracle Oracle) *Engine {
	return &Engine{oracle: oracle}
}

// Submit sends one utterance for the session. An utterance that is empty
// after trimming is a no-op. On oracle failure the state is left unchanged
// (the failed utterance is not appended) and the session stays open for a
// retry. A response belonging to a superseded request returns ErrStale and
// changes nothing.
func (e *Engine) Submit(ctx context.Context, s *State, utterance string) error {
	utterance = strings.TrimSpace(utterance)
	if utterance == "" {
		return nil
	}

	s.mu.Lock()
	if s.resolved {
		s.mu.Unlock()
		return ErrResolved
	}
	s.lastSeq++
	seq := s.lastSeq
	convCtx := s.context
	s.mu.Unlock()

	result, err := e.oracle.Query(ctx, utterance, convCtx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.lastSeq || s.resolved {
		return ErrStale
	}
	if err != nil {
		return fmt.Errorf("query oracle: %w", err)
	}

	s.messages = append(s.messages,
		Message{Speaker: SpeakerUser, Text: utterance},
		Message{Speaker: SpeakerAssistant, Text: result.Response},
	)
	s.context = result.Context
	s.requiresFollowUp = result.RequiresFollowUp
	s.resultTask = result.ResultTask
	if !result.RequiresFollowUp {
		s.resolved = true
	}
	return nil
}

// Persist writes a resolved session's result task through the repository:
// update for sessions opened on an existing task, create for unsaved results,
// nothing for results the oracle already persisted (non-zero ID) or sessions
// that resolved without a task. It returns the persisted task, if any.
func (e *Engine) Persist(ctx context.Context, s *State, repo Repository) (*task.Task, error) {
	s.mu.Lock()
	resolved := s.resolved
	result := s.resultTask
	updateID := s.updateTaskID
	s.mu.Unlock()

	if !resolved {
		return nil, fmt.Errorf("session %s is not resolved", s.id)
	}
	if result == nil {
		return nil, nil
	}

	if updateID != 0 {
		upd := task.Update{
			Description: &result.Description,
			Deadline:    result.Deadline,
			Priority:    result.Priority,
			Constraints: result.Constraints,
		}
		return repo.Update(ctx, updateID, upd)
	}
	if result.ID == 0 {
		return repo.Create(ctx, *result)
	}
	return result, nil
}
