package api

import (
	"encoding/json"
	"net/http"
	"time"

	"taskmind/pkg/history"
	"taskmind/pkg/task"
)

func (s *Server) handleTaskList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.List(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskActive(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.Active(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskRoots(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.Roots(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskOverdue(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.tasks.Overdue(r.Context())
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskByPriority(w http.ResponseWriter, r *http.Request) {
	p, err := task.ParsePriority(r.PathValue("priority"))
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}
	tasks, err := s.tasks.ByPriority(r.Context(), p)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, "invalid task id")
		return
	}
	t, err := s.tasks.Get(r.Context(), id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskSubtasks(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, "invalid task id")
		return
	}
	tasks, err := s.tasks.Subtasks(r.Context(), id)
	if err != nil {
		writeError(w, 500, err.Error())
		return
	}
	writeJSON(w, 200, tasks)
}

func (s *Server) handleTaskCreate(w http.ResponseWriter, r *http.Request) {
	var t task.Task
	if err := json.NewDecoder(r.Body).Decode(&t); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	if err := t.Validate(); err != nil {
		writeError(w, 400, err.Error())
		return
	}
	if t.Deadline != nil && t.Deadline.Before(time.Now()) {
		writeError(w, 400, "task deadline cannot be in the past")
		return
	}
	if t.ParentID != nil {
		// The parent must exist at creation time; it may be deleted later,
		// which the tree layer degrades to an orphan root.
		if _, err := s.tasks.Get(r.Context(), *t.ParentID); err != nil {
			writeError(w, errStatus(err), "parent: "+err.Error())
			return
		}
	}

	created, err := s.tasks.Create(r.Context(), &t)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	s.record(r.Context(), history.TypeTaskCreated, created.ID, map[string]any{
		"description": created.Description,
	})
	writeJSON(w, 201, created)
}

func (s *Server) handleTaskComplete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, "invalid task id")
		return
	}
	t, err := s.tasks.Complete(r.Context(), id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	s.record(r.Context(), history.TypeTaskCompleted, t.ID, nil)
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskRevert(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, "invalid task id")
		return
	}
	t, err := s.tasks.Revert(r.Context(), id)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	s.record(r.Context(), history.TypeTaskReverted, t.ID, nil)
	writeJSON(w, 200, t)
}

func (s *Server) handleTaskUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, 400, "invalid task id")
		return
	}
	var upd task.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}
	t, err := s.tasks.Update(r.Context(), id, upd)
	if err != nil {
		writeError(w, errStatus(err), err.Error())
		return
	}
	s.record(r.Context(), history.TypeTaskUpdated, t.ID, nil)
	writeJSON(w, 200, t)
}
