package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"taskmind/pkg/agent"
	"taskmind/pkg/history"
)

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req agent.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON: "+err.Error())
		return
	}

	resp, err := s.agent.ProcessQuery(r.Context(), req)
	if err != nil {
		switch status := errStatus(err); {
		case errors.Is(err, agent.ErrEmptyQuery):
			writeError(w, 400, err.Error())
		case status != 500:
			writeError(w, status, err.Error())
		default:
			// The model call itself failed; the client keeps its
			// conversation state and may retry.
			writeError(w, 502, err.Error())
		}
		return
	}

	if !resp.RequiresFollowUp {
		var taskID int64
		if resp.ResultTask != nil {
			taskID = resp.ResultTask.ID
		}
		s.record(r.Context(), history.TypeQueryResolved, taskID, map[string]any{
			"query": req.Query,
		})
	}
	writeJSON(w, 200, resp)
}
