// Package memtest provides in-memory fakes of the memory package's storage
// interfaces for tests, grounded on the teacher's memChatStore pattern: plain
// maps behind a mutex, no network, deterministic behavior.
package memtest

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

// RelationalStore is an in-memory memory.RelationalStore.
type RelationalStore struct {
	mu        sync.Mutex
	fragments map[int64]memory.MemoryFragment
	nextID    int64

	// FailBatchInsert, when non-nil, is returned by the next BatchInsert call
	// instead of performing it. Tests use this to exercise rollback paths.
	FailBatchInsert error
}

func NewRelationalStore() *RelationalStore {
	return &RelationalStore{fragments: map[int64]memory.MemoryFragment{}}
}

func (s *RelationalStore) Init(ctx context.Context) error { return nil }

func (s *RelationalStore) BatchInsert(ctx context.Context, fragments []memory.MemoryFragment) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailBatchInsert != nil {
		return nil, s.FailBatchInsert
	}
	ids := make([]int64, len(fragments))
	for i, f := range fragments {
		s.nextID++
		f.ID = s.nextID
		s.fragments[f.ID] = f
		ids[i] = f.ID
	}
	return ids, nil
}

func (s *RelationalStore) FetchMany(ctx context.Context, ids []int64) ([]memory.MemoryFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.MemoryFragment, 0, len(ids))
	for _, id := range ids {
		if f, ok := s.fragments[id]; ok {
			out = append(out, f)
		}
	}
	return out, nil
}

func (s *RelationalStore) FetchOne(ctx context.Context, id int64) (memory.MemoryFragment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.fragments[id]
	if !ok {
		return memory.MemoryFragment{}, fmt.Errorf("%w: fragment %d", memory.ErrNotFound, id)
	}
	return f, nil
}

func (s *RelationalStore) BatchDelete(ctx context.Context, ids []int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.fragments[id]; ok {
			delete(s.fragments, id)
			n++
		}
	}
	return n, nil
}

func (s *RelationalStore) MaxFragmentID(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var max int64
	for id := range s.fragments {
		if id > max {
			max = id
		}
	}
	return max, nil
}

// Len reports the current row count, for assertions.
func (s *RelationalStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.fragments)
}

// VectorStore is an in-memory memory.VectorStore using brute-force cosine
// similarity — adequate for small test fixtures, never used outside tests.
type VectorStore struct {
	mu     sync.Mutex
	points map[int64]memory.VectorPoint
	dim    int

	FailUpsert error
}

func NewVectorStore(dim int) *VectorStore {
	return &VectorStore{points: map[int64]memory.VectorPoint{}, dim: dim}
}

func (s *VectorStore) EnsureCollection(ctx context.Context, dim int) error {
	s.dim = dim
	return nil
}

func (s *VectorStore) Upsert(ctx context.Context, points []memory.VectorPoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailUpsert != nil {
		return s.FailUpsert
	}
	for _, p := range points {
		s.points[p.ID] = p
	}
	return nil
}

func (s *VectorStore) Search(ctx context.Context, vector []float32, limit int, filter map[string]string) ([]memory.VectorResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	type scored struct {
		id    int64
		score float64
	}
	var candidates []scored
	for id, p := range s.points {
		if !matchesFilter(p.Payload, filter) {
			continue
		}
		candidates = append(candidates, scored{id: id, score: cosineSimilarity(vector, p.Vector)})
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].score > candidates[j].score })
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]memory.VectorResult, len(candidates))
	for i, c := range candidates {
		out[i] = memory.VectorResult{ID: c.id, Score: c.score}
	}
	return out, nil
}

func (s *VectorStore) Delete(ctx context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.points, id)
	return nil
}

func (s *VectorStore) Dimension() int { return s.dim }

// Len reports the current point count, for assertions.
func (s *VectorStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.points)
}

func matchesFilter(payload, filter map[string]string) bool {
	for k, v := range filter {
		if payload[k] != v {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// EmbeddingEngine is a deterministic fake: it maps each input string to a
// fixed-dimension vector derived from its byte content, so identical inputs
// always embed identically and tests stay reproducible without a real model.
type EmbeddingEngine struct {
	dim int

	FailEmbed error
}

func NewEmbeddingEngine(dim int) *EmbeddingEngine {
	return &EmbeddingEngine{dim: dim}
}

func (e *EmbeddingEngine) Dimensions() int { return e.dim }

func (e *EmbeddingEngine) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if e.FailEmbed != nil {
		return nil, e.FailEmbed
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = deterministicVector(t, e.dim)
	}
	return out, nil
}

func deterministicVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	if dim == 0 {
		return v
	}
	h := fnv32(text)
	for i := range v {
		// Walk a simple LCG seeded from the text hash so the same text always
		// produces the same vector, and different texts diverge quickly.
		h = h*1664525 + 1013904223 + uint32(i)
		v[i] = float32(h%2000)/1000 - 1 // in [-1, 1)
	}
	return v
}

func fnv32(s string) uint32 {
	var h uint32 = 2166136261
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= 16777619
	}
	return h
}

// ConfigSnapshotStore is an in-memory memory.ConfigSnapshotStore.
type ConfigSnapshotStore struct {
	mu        sync.Mutex
	snapshots map[int64]memory.ConfigSnapshot
	byHash    map[string]memory.ConfigSnapshot
	nextID    int64

	relational *RelationalStore // used to resolve a nil memoryFragmentID, mirroring PostgresConfigSnapshotStore
}

// NewConfigSnapshotStore takes the same shared relational store the hybrid
// manager writes fragments into, mirroring PostgresConfigSnapshotStore's
// constructor — a private store here would resolve a nil memoryFragmentID
// against an always-empty table instead of real inserted fragments.
func NewConfigSnapshotStore(relational *RelationalStore) *ConfigSnapshotStore {
	return &ConfigSnapshotStore{
		snapshots:  map[int64]memory.ConfigSnapshot{},
		byHash:     map[string]memory.ConfigSnapshot{},
		relational: relational,
	}
}

func (s *ConfigSnapshotStore) Init(ctx context.Context) error { return nil }

func (s *ConfigSnapshotStore) Create(ctx context.Context, content string, memoryFragmentID *int64) (memory.ConfigSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hash := fmt.Sprintf("%x", fnv32(content))
	if _, ok := s.byHash[hash]; ok {
		return memory.ConfigSnapshot{}, fmt.Errorf("%w: content hash %s", memory.ErrAlreadyExists, hash)
	}

	resolved := memoryFragmentID
	if resolved == nil {
		max, err := s.relational.MaxFragmentID(ctx)
		if err != nil {
			return memory.ConfigSnapshot{}, err
		}
		if max > 0 {
			resolved = &max
		}
	}

	s.nextID++
	snap := memory.ConfigSnapshot{
		ID:               s.nextID,
		Content:          content,
		ContentHash:      hash,
		MemoryFragmentID: resolved,
	}
	s.snapshots[snap.ID] = snap
	s.byHash[hash] = snap
	return snap, nil
}

func (s *ConfigSnapshotStore) Query(ctx context.Context, filter memory.ConfigSnapshotFilter) ([]memory.ConfigSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]memory.ConfigSnapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if filter.ContentHash != "" && snap.ContentHash != filter.ContentHash {
			continue
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (s *ConfigSnapshotStore) Get(ctx context.Context, id int64) (memory.ConfigSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return memory.ConfigSnapshot{}, fmt.Errorf("%w: config snapshot %d", memory.ErrNotFound, id)
	}
	return snap, nil
}
