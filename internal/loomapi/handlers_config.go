package loomapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

type createConfigSnapshotRequest struct {
	Content          string `json:"content"`
	MemoryFragmentID *int64 `json:"memory_fragment_id,omitempty"`
}

// handleCreateConfigSnapshot is POST /api/v1/system-configs; 409 on hash
// collision per spec.md §6.
func (s *Server) handleCreateConfigSnapshot(w http.ResponseWriter, r *http.Request) {
	var req createConfigSnapshotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, err)
		return
	}
	if req.Content == "" {
		respondError(w, http.StatusBadRequest, errors.New("content must not be empty"))
		return
	}
	snapshot, err := s.configs.Create(r.Context(), req.Content, req.MemoryFragmentID)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, snapshot)
}

// handleQueryConfigSnapshots is GET /api/v1/system-configs, newest-first
// paginated.
func (s *Server) handleQueryConfigSnapshots(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := memory.ConfigSnapshotFilter{ContentHash: q.Get("content_hash")}

	if raw := q.Get("memory_fragment_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("memory_fragment_id must be an integer"))
			return
		}
		filter.MemoryFragmentID = &id
	}
	if raw := q.Get("start_time"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("start_time must be an integer"))
			return
		}
		filter.CreatedAtFrom = time.Unix(v, 0)
	}
	if raw := q.Get("end_time"); raw != "" {
		v, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("end_time must be an integer"))
			return
		}
		filter.CreatedAtTo = time.Unix(v, 0)
	}
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("limit must be an integer"))
			return
		}
		filter.Limit = v
	}
	if raw := q.Get("offset"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, errors.New("offset must be an integer"))
			return
		}
		filter.Offset = v
	}

	snapshots, err := s.configs.Query(r.Context(), filter)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, map[string]any{"system_configs": snapshots, "total": len(snapshots)})
}

// handleGetConfigSnapshot is GET /api/v1/system-configs/{id}.
func (s *Server) handleGetConfigSnapshot(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("id must be an integer"))
		return
	}
	snapshot, err := s.configs.Get(r.Context(), id)
	if err != nil {
		respondError(w, statusFromError(err), err)
		return
	}
	respondData(w, http.StatusOK, snapshot)
}
