// Package loomapi is Loom's HTTP/JSON façade over the hybrid memory engine
// and system-config snapshot store, grounded on internal/httpapi's
// Server/mux/respondJSON shape and the {success, data, error} envelope
// spec.md §6 requires.
package loomapi

import (
	"net/http"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// Server exposes Loom's memory and system-config endpoints.
type Server struct {
	memory  *memory.HybridManager
	configs memory.ConfigSnapshotStore
	mux     *http.ServeMux
}

func NewServer(hybrid *memory.HybridManager, configs memory.ConfigSnapshotStore) *Server {
	s := &Server{memory: hybrid, configs: configs, mux: http.NewServeMux()}
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST /api/v1/memory", s.handleCreateFragments)
	s.mux.HandleFunc("GET /api/v1/memory", s.handleRecallFragments)
	s.mux.HandleFunc("GET /api/v1/memory/{id}", s.handleGetFragment)
	s.mux.HandleFunc("DELETE /api/v1/memory/{id}", s.handleDeleteFragment)

	s.mux.HandleFunc("POST /api/v1/system-configs", s.handleCreateConfigSnapshot)
	s.mux.HandleFunc("GET /api/v1/system-configs", s.handleQueryConfigSnapshots)
	s.mux.HandleFunc("GET /api/v1/system-configs/{id}", s.handleGetConfigSnapshot)

	s.mux.HandleFunc("GET /health", s.handleHealth)
}
