package recallcache

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

func frag(id int64, content string) memory.MemoryFragment {
	return memory.MemoryFragment{ID: id, Content: content}
}

func TestCache_IsEmptyInitially(t *testing.T) {
	c := New()
	require.True(t, c.IsEmpty())
}

func TestCache_StoreReplacesPriorGeneration(t *testing.T) {
	c := New()
	c.Store([]memory.MemoryFragment{frag(1, "a"), frag(2, "b")})
	require.False(t, c.IsEmpty())

	c.Store([]memory.MemoryFragment{frag(3, "c")})
	_, ok := c.Take([]int64{1, 2})
	require.False(t, ok, "prior generation must have been discarded")

	got, ok := c.Take([]int64{3})
	require.True(t, ok)
	require.Equal(t, "c", got[0].Content)
}

func TestCache_TakeRequiresAllIdsPresent(t *testing.T) {
	c := New()
	c.Store([]memory.MemoryFragment{frag(1, "a"), frag(2, "b")})

	_, ok := c.Take([]int64{1, 2, 3})
	require.False(t, ok, "take must fail if any requested id is missing")
	require.False(t, c.IsEmpty(), "a failed take must not mutate the cache")
}

func TestCache_TakeReturnsInRequestedOrderAndClears(t *testing.T) {
	c := New()
	c.Store([]memory.MemoryFragment{frag(1, "a"), frag(2, "b"), frag(3, "c")})

	got, ok := c.Take([]int64{3, 1})
	require.True(t, ok)
	require.Equal(t, []memory.MemoryFragment{frag(3, "c"), frag(1, "a")}, got)
	require.True(t, c.IsEmpty(), "a successful take must clear the cache")
}

func TestCache_Clear(t *testing.T) {
	c := New()
	c.Store([]memory.MemoryFragment{frag(1, "a")})
	c.Clear()
	require.True(t, c.IsEmpty())
}
