package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"taskmind/pkg/llm"
)

const intentSystemPrompt = `You are a task management assistant that helps users manage their tasks.
Analyze the user's intent and respond with one of these values for the 'intent' field:
- CREATE_TASK
- COMPLETE_TASK
- LIST_TASKS

Format your response as valid JSON with a single 'intent' field.`

const refineSystemPrompt = `You are a task refinement assistant. Analyze the task and help make it well-defined.
Extract the following fields and format your response as JSON:
- description: A clear task description
- deadline: A deadline date in ISO format, or null if not specified
- priority: priority level (HIGH, MEDIUM, LOW), or null if not specified
- constraints: Any constraints or requirements, or null if not specified
- taskId: The numeric id of an existing task the user refers to, or null
- needsMoreInfo: true if you need to ask a follow-up question, false otherwise
- followUpQuestion: If needsMoreInfo is true, provide a specific question to ask`

// refinement is one turn's worth of refinement output.
type refinement struct {
	Collected        TaskData
	NeedsMoreInfo    bool
	FollowUpQuestion string
}

func (s *Service) classifyIntent(ctx context.Context, query string) (string, error) {
	resp, err := s.chat.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: intentSystemPrompt},
			{Role: "user", Content: query},
		},
	})
	if err != nil {
		return "", err
	}

	var parsed struct {
		Intent string `json:"intent"`
	}
	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return "", fmt.Errorf("no JSON in intent response: %q", resp.Content)
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return "", fmt.Errorf("parse intent response: %w", err)
	}
	if parsed.Intent == "" {
		return "", fmt.Errorf("empty intent for query %q", query)
	}
	return parsed.Intent, nil
}

func (s *Service) refine(ctx context.Context, query string, previous TaskData) (*refinement, error) {
	resp, err := s.chat.Complete(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: refineSystemPrompt},
			{Role: "user", Content: buildRefinePrompt(query, previous)},
		},
	})
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Description      string          `json:"description"`
		Deadline         string          `json:"deadline"`
		Priority         string          `json:"priority"`
		Constraints      string          `json:"constraints"`
		TaskID           json.RawMessage `json:"taskId"` // models emit this as number or string
		NeedsMoreInfo    bool            `json:"needsMoreInfo"`
		FollowUpQuestion string          `json:"followUpQuestion"`
	}
	raw := llm.ExtractJSON(resp.Content)
	if raw == "" {
		return nil, fmt.Errorf("no JSON in refinement response: %q", resp.Content)
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("parse refinement response: %w", err)
	}

	collected := TaskData{
		Description: fallback(parsed.Description, previous.Description),
		Deadline:    fallback(parsed.Deadline, previous.Deadline),
		Priority:    fallback(parsed.Priority, previous.Priority),
		Constraints: fallback(parsed.Constraints, previous.Constraints),
		TaskID:      fallback(rawString(parsed.TaskID), previous.TaskID),
	}
	return &refinement{
		Collected:        collected,
		NeedsMoreInfo:    parsed.NeedsMoreInfo,
		FollowUpQuestion: parsed.FollowUpQuestion,
	}, nil
}

// buildRefinePrompt includes what was already collected so the model updates
// rather than restarts the refinement.
func buildRefinePrompt(query string, previous TaskData) string {
	if previous == (TaskData{}) {
		return fmt.Sprintf(`Analyze this task request and extract structured information:
%q

If anything is unclear, set needsMoreInfo to true and provide a specific followUpQuestion.`, query)
	}

	var known strings.Builder
	known.WriteString("We already have the following information:\n")
	if previous.Description != "" {
		fmt.Fprintf(&known, "- Description: %s\n", previous.Description)
	}
	if previous.Deadline != "" {
		fmt.Fprintf(&known, "- Deadline: %s\n", previous.Deadline)
	}
	if previous.Priority != "" {
		fmt.Fprintf(&known, "- Priority: %s\n", previous.Priority)
	}
	if previous.Constraints != "" {
		fmt.Fprintf(&known, "- Constraints: %s\n", previous.Constraints)
	}
	if previous.TaskID != "" {
		fmt.Fprintf(&known, "- Task ID: %s\n", previous.TaskID)
	}

	return fmt.Sprintf(`%s
The user has provided a new response:
%q

Update the task information accordingly and provide the complete task details.`, known.String(), query)
}

func fallback(v, prev string) string {
	v = strings.TrimSpace(v)
	if v == "" || strings.EqualFold(v, "null") {
		return prev
	}
	return v
}

// rawString renders a JSON scalar as a plain string, accepting both "7" and 7.
func rawString(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return fmt.Sprintf("%d", n)
	}
	return ""
}
