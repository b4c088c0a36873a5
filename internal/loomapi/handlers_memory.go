package loomapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

type createFragmentsRequest struct {
	Fragments []memory.MemoryFragment `json:"fragments"`
}

type createFragmentsData struct {
	Fragments []memory.MemoryFragment `json:"fragments"`
	Total     int                     `json:"total"`
}

// handleCreateFragments is POST /api/v1/memory, exactly the wire contract
// spec.md §6 describes: client-supplied id/timestamps are ignored, empty
// list is 400.
func (s *Server) handleCreateFragments(w http.ResponseWriter, r *http.Request) {
	var req createFragmentsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if len(req.Fragments) == 0 {
		respondError(w, http.StatusBadRequest, errors.New("fragments must not be empty"))
		return
	}

	candidates := make([]memory.MemoryFragment, len(req.Fragments))
	for i, f := range req.Fragments {
		candidates[i] = memory.NewCandidateFragment(f.Content, f.Objective.Source, f.Subjective, f.Associations)
	}

	ids, err := s.memory.Append(r.Context(), candidates)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}

	out := make([]memory.MemoryFragment, len(candidates))
	for i, c := range candidates {
		c.ID = ids[i]
		out[i] = c
	}
	respondData(w, http.StatusOK, createFragmentsData{Fragments: out, Total: len(out)})
}

// handleRecallFragments is GET /api/v1/memory?keywords=...&start_time=...&end_time=....
func (s *Server) handleRecallFragments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := memory.RecallQuery{Keywords: q.Get("keywords")}

	startStr, endStr := q.Get("start_time"), q.Get("end_time")
	if startStr != "" && endStr != "" {
		start, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("start_time must be an integer"))
			return
		}
		end, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("end_time must be an integer"))
			return
		}
		query.TimeRangeFrom, query.TimeRangeTo = start, end
	}

	fragments, err := s.memory.Recall(r.Context(), query)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, createFragmentsData{Fragments: fragments, Total: len(fragments)})
}

// handleGetFragment is GET /api/v1/memory/{id}.
func (s *Server) handleGetFragment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("id must be an integer"))
		return
	}
	fragment, err := s.memory.Get(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, fragment)
}

// handleDeleteFragment is DELETE /api/v1/memory/{id}.
func (s *Server) handleDeleteFragment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("id must be an integer"))
		return
	}
	if err := s.memory.Delete(r.Context(), id); err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"id": id, "deleted": true})
}
