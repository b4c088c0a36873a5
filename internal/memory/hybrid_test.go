package memory_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory/memtest"
)

const testDim = 8

func newManager() (*memory.HybridManager, *memtest.RelationalStore, *memtest.VectorStore, *memtest.EmbeddingEngine) {
	rel := memtest.NewRelationalStore()
	vec := memtest.NewVectorStore(testDim)
	emb := memtest.NewEmbeddingEngine(testDim)
	return memory.NewHybridManager(rel, vec, emb, nil), rel, vec, emb
}

func candidate(content string) memory.MemoryFragment {
	return memory.NewCandidateFragment(content, memory.MemorySource{Channel: memory.ChannelThought, Identifier: "self"},
		memory.SubjectiveMetadata{Confidence: 60, Tags: []string{"test"}}, nil)
}

func TestHybridManager_Append_WritesBothStores(t *testing.T) {
	mgr, rel, vec, _ := newManager()
	ctx := context.Background()

	ids, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("alpha"), candidate("beta")})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.Equal(t, 2, rel.Len())
	require.Equal(t, 2, vec.Len())
}

func TestHybridManager_Append_RollsBackOnEmbeddingFailure(t *testing.T) {
	mgr, rel, vec, emb := newManager()
	ctx := context.Background()
	emb.FailEmbed = errors.New("embedding backend unavailable")

	ids, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("alpha")})
	require.Error(t, err)
	require.Nil(t, ids)

	var rollbackErr *memory.RollbackError
	require.ErrorAs(t, err, &rollbackErr)
	require.ErrorIs(t, err, memory.ErrEmbeddingFailure)
	require.Equal(t, 0, rel.Len(), "relational row must be rolled back")
	require.Equal(t, 0, vec.Len())
}

func TestHybridManager_Append_RollsBackOnVectorUpsertFailure(t *testing.T) {
	mgr, rel, vec, _ := newManager()
	ctx := context.Background()
	vec.FailUpsert = errors.New("vector store unreachable")

	_, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("alpha")})
	require.Error(t, err)

	var rollbackErr *memory.RollbackError
	require.ErrorAs(t, err, &rollbackErr)
	require.Equal(t, 0, rel.Len())
}

func TestHybridManager_Append_EmptyBatchIsNoop(t *testing.T) {
	mgr, _, _, _ := newManager()
	ids, err := mgr.Append(context.Background(), nil)
	require.NoError(t, err)
	require.Nil(t, ids)
}

func TestHybridManager_Append_RejectsInvalidFragment(t *testing.T) {
	mgr, rel, vec, _ := newManager()
	bad := candidate("")
	_, err := mgr.Append(context.Background(), []memory.MemoryFragment{bad})
	require.ErrorIs(t, err, memory.ErrValidation)
	require.Equal(t, 0, rel.Len())
	require.Equal(t, 0, vec.Len())
}

func TestHybridManager_Recall_ReturnsMaterializedFragmentsInRankOrder(t *testing.T) {
	mgr, _, _, _ := newManager()
	ctx := context.Background()

	ids, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("the cat sat on the mat"), candidate("quantum field theory")})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	results, err := mgr.Recall(ctx, memory.RecallQuery{Keywords: "the cat sat on the mat"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	// The deterministic fake embedding makes identical text its own nearest
	// neighbor, so the first result must be the fragment with matching content.
	require.Equal(t, "the cat sat on the mat", results[0].Content)
}

func TestHybridManager_Recall_SkipsMissingRelationalRows(t *testing.T) {
	mgr, rel, _, _ := newManager()
	ctx := context.Background()

	ids, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("ephemeral")})
	require.NoError(t, err)

	_, err = rel.BatchDelete(ctx, ids)
	require.NoError(t, err)

	results, err := mgr.Recall(ctx, memory.RecallQuery{Keywords: "ephemeral"})
	require.NoError(t, err)
	require.Empty(t, results)
}

func TestHybridManager_GetAndDelete(t *testing.T) {
	mgr, _, vec, _ := newManager()
	ctx := context.Background()

	ids, err := mgr.Append(ctx, []memory.MemoryFragment{candidate("persisted fragment")})
	require.NoError(t, err)
	id := ids[0]

	got, err := mgr.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "persisted fragment", got.Content)

	require.NoError(t, mgr.Delete(ctx, id))
	require.Equal(t, 0, vec.Len())

	_, err = mgr.Get(ctx, id)
	require.ErrorIs(t, err, memory.ErrNotFound)
}
