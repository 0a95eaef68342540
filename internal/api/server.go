// Package api exposes the task repository and the query oracle over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"

	"taskmind/pkg/agent"
	"taskmind/pkg/history"
	"taskmind/pkg/task"
)

// QueryProcessor is the surface the /api/query handler needs from the agent.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, req agent.QueryRequest) (*agent.QueryResponse, error)
}

// Server is the HTTP API server.
type Server struct {
	tasks task.Store
	agent QueryProcessor
	log   history.Store
	mux   *http.ServeMux
}

// New creates a Server.
func New(tasks task.Store, processor QueryProcessor, activity history.Store) *Server {
	s := &Server{
		tasks: tasks,
		agent: processor,
		log:   activity,
		mux:   http.NewServeMux(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	// Tasks
	s.mux.HandleFunc("GET /api/tasks", s.handleTaskList)
	s.mux.HandleFunc("GET /api/tasks/active", s.handleTaskActive)
	s.mux.HandleFunc("GET /api/tasks/root", s.handleTaskRoots)
	s.mux.HandleFunc("GET /api/tasks/overdue", s.handleTaskOverdue)
	s.mux.HandleFunc("GET /api/tasks/priority/{priority}", s.handleTaskByPriority)
	s.mux.HandleFunc("GET /api/tasks/{id}", s.handleTaskGet)
	s.mux.HandleFunc("GET /api/tasks/{id}/subtasks", s.handleTaskSubtasks)
	s.mux.HandleFunc("GET /api/tasks/{id}/events", s.handleTaskEvents)
	s.mux.HandleFunc("POST /api/tasks", s.handleTaskCreate)
	s.mux.HandleFunc("PUT /api/tasks/{id}/complete", s.handleTaskComplete)
	s.mux.HandleFunc("PUT /api/tasks/{id}/revert", s.handleTaskRevert)
	s.mux.HandleFunc("PUT /api/tasks/{id}", s.handleTaskUpdate)

	// Query oracle
	s.mux.HandleFunc("POST /api/query", s.handleQuery)

	// Activity
	s.mux.HandleFunc("GET /api/events", s.handleEventList)

	// System
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/status", s.handleStatus)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	total, err := s.tasks.Count(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	active, err := s.tasks.ActiveCount(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	events, err := s.log.Count(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, map[string]int{
		"tasks":  total,
		"active": active,
		"events": events,
	})
}

// record appends to the activity log; failures are logged, never fatal.
func (s *Server) record(ctx context.Context, eventType string, taskID int64, payload map[string]any) {
	if _, err := s.log.Append(ctx, eventType, taskID, payload); err != nil {
		log.Printf("api: record %s: %v", eventType, err)
	}
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func queryInt(r *http.Request, name string, def int) int {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 1 {
		return def
	}
	return n
}

// errStatus maps store errors to HTTP status codes.
func errStatus(err error) int {
	switch {
	case errors.Is(err, task.ErrNotFound):
		return 404
	case errors.Is(err, task.ErrAlreadyCompleted), errors.Is(err, task.ErrNotCompleted):
		return 409
	case errors.Is(err, task.ErrEmptyDescription):
		return 400
	default:
		return 500
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("api: write json: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
