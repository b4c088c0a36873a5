package memory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/ImitationGameLabs/ephemera-ai/internal/observability"
)

// RecallQuery carries the search terms and optional time filter for a
// semantic recall. TimeRange is both-or-neither: a filter is only derived
// when both ends are non-zero.
type RecallQuery struct {
	Keywords      string
	TimeRangeFrom int64 // seconds since epoch, 0 = unset
	TimeRangeTo   int64

	// Limit overrides the default top-K (10) when > 0.
	Limit int
}

func (q RecallQuery) hasTimeFilter() bool {
	return q.TimeRangeFrom > 0 && q.TimeRangeTo > 0
}

const defaultRecallLimit = 10

// HybridManager orchestrates dual-store writes with rollback and semantic
// recall, per spec.md §4.1. It holds no state beyond its two adapters.
type HybridManager struct {
	relational RelationalStore
	vector     VectorStore
	embedding  EmbeddingEngine
	log        *zerolog.Logger
}

func NewHybridManager(relational RelationalStore, vector VectorStore, embedding EmbeddingEngine, log *zerolog.Logger) *HybridManager {
	if log == nil {
		l := zerolog.Nop()
		log = &l
	}
	return &HybridManager{relational: relational, vector: vector, embedding: embedding, log: log}
}

// calculateImportance implements spec.md §4.1 step 1's formula exactly,
// including overwriting any client-supplied importance — per spec.md §9 this
// behavior is preserved deliberately, not a bug.
func calculateImportance(content string, confidence uint8, tagCount int) uint8 {
	contentLen := len(content)
	if contentLen > 1000 {
		contentLen = 1000
	}
	tagBonus := tagCount
	if tagBonus > 5 {
		tagBonus = 5
	}
	score := contentLen/100 + int(confidence) + tagBonus*2
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return uint8(score)
}

// Append writes a batch of candidate fragments to both stores atomically: a
// relational transaction assigns ids, then embeddings are upserted into the
// vector store as a single call. Any failure past the relational commit
// rolls back the relational rows (best effort) and returns a RollbackError.
func (m *HybridManager) Append(ctx context.Context, fragments []MemoryFragment) ([]int64, error) {
	log := observability.LoggerWithTrace(ctx)
	if len(fragments) == 0 {
		return nil, nil
	}

	prepared := make([]MemoryFragment, len(fragments))
	for i, f := range fragments {
		f.Subjective.Importance = calculateImportance(f.Content, f.Subjective.Confidence, len(f.Subjective.Tags))
		if err := f.Validate(); err != nil {
			return nil, err
		}
		prepared[i] = f
	}

	ids, err := m.relational.BatchInsert(ctx, prepared)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(prepared))
	for i, f := range prepared {
		texts[i] = f.Content
	}
	vectors, err := m.embedding.Embed(ctx, texts)
	if err != nil {
		return nil, m.rollback(ctx, ids, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err))
	}
	if len(vectors) != len(prepared) {
		rerr := fmt.Errorf("%w: embedding engine returned %d vectors for %d fragments", ErrEmbeddingFailure, len(vectors), len(prepared))
		return nil, m.rollback(ctx, ids, rerr)
	}

	points := make([]VectorPoint, len(prepared))
	for i, f := range prepared {
		points[i] = VectorPoint{
			ID:     ids[i],
			Vector: vectors[i],
			Payload: map[string]string{
				"created_at": f.Objective.CreatedAt.Format(rfc3339Milli),
				"source":     string(f.Objective.Source.Channel) + "::" + f.Objective.Source.Identifier,
				"importance": fmt.Sprintf("%d", f.Subjective.Importance),
				"confidence": fmt.Sprintf("%d", f.Subjective.Confidence),
				"tags":       joinTags(f.Subjective.Tags),
			},
		}
	}
	if err := m.vector.Upsert(ctx, points); err != nil {
		return nil, m.rollback(ctx, ids, err)
	}

	log.Info().Ints64("fragment_ids", ids).Msg("hybrid_append_committed")
	return ids, nil
}

// rollback deletes the just-committed relational rows after a downstream
// failure and returns the error the caller should surface: a RollbackError
// when the delete itself succeeded, or the more severe RollbackFailedError
// when the relational store still holds the orphaned rows. The latter is
// also logged at CRITICAL — it must never be silently swallowed.
func (m *HybridManager) rollback(ctx context.Context, ids []int64, cause error) error {
	if _, err := m.relational.BatchDelete(ctx, ids); err != nil {
		m.log.Error().
			Ints64("fragment_ids", ids).
			Err(err).
			AnErr("original_cause", cause).
			Msg("CRITICAL: rollback delete failed after append failure — relational store may hold orphaned rows")
		return &RollbackFailedError{FirstID: ids[0], Cause: err, RollbackOf: cause}
	}
	return &RollbackError{FirstID: ids[0], Cause: cause}
}

// Recall embeds the query, searches the vector store for the top-K nearest
// neighbors, and materializes the hits from the relational store in
// vector-store rank order. Missing relational rows (concurrent deletion) are
// silently skipped.
func (m *HybridManager) Recall(ctx context.Context, query RecallQuery) ([]MemoryFragment, error) {
	vectors, err := m.embedding.Embed(ctx, []string{query.Keywords})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("%w: embedding engine returned no vector for recall query", ErrEmbeddingFailure)
	}

	limit := query.Limit
	if limit <= 0 {
		limit = defaultRecallLimit
	}

	var filter map[string]string
	hits, err := m.vector.Search(ctx, vectors[0], limit, filter)
	if err != nil {
		return nil, err
	}
	if len(hits) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(hits))
	rank := make(map[int64]int, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
		rank[h.ID] = i
	}

	fragments, err := m.relational.FetchMany(ctx, ids)
	if err != nil {
		return nil, err
	}

	// Re-order to vector-store rank, applying the time-range filter post-hoc
	// when the backend search above did not (or could not) enforce it.
	ordered := make([]MemoryFragment, len(ids))
	found := make([]bool, len(ids))
	for _, f := range fragments {
		if query.hasTimeFilter() && !withinTimeRange(f, query.TimeRangeFrom, query.TimeRangeTo) {
			continue
		}
		if idx, ok := rank[f.ID]; ok {
			ordered[idx] = f
			found[idx] = true
		}
	}
	out := make([]MemoryFragment, 0, len(ordered))
	for i, ok := range found {
		if ok {
			out = append(out, ordered[i])
		}
	}
	return out, nil
}

func withinTimeRange(f MemoryFragment, fromSec, toSec int64) bool {
	t := f.Objective.CreatedAt.Unix()
	return t >= fromSec && t <= toSec
}

// Get reads a single fragment from the relational store only.
func (m *HybridManager) Get(ctx context.Context, id int64) (MemoryFragment, error) {
	return m.relational.FetchOne(ctx, id)
}

// Delete removes a fragment from the relational store; the vector-store
// delete is best-effort and never fails the overall operation.
func (m *HybridManager) Delete(ctx context.Context, id int64) error {
	log := observability.LoggerWithTrace(ctx)
	if _, err := m.relational.BatchDelete(ctx, []int64{id}); err != nil {
		return err
	}
	if err := m.vector.Delete(ctx, id); err != nil {
		log.Warn().Int64("fragment_id", id).Err(err).Msg("vector_store_delete_failed_best_effort")
	}
	return nil
}

const rfc3339Milli = "2006-01-02T15:04:05.000Z07:00"

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
