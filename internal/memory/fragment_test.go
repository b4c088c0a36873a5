package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewCandidateFragment_DedupesTagsAndStampsTimestamps(t *testing.T) {
	before := time.Now().UTC()
	f := NewCandidateFragment("hello world", MemorySource{Channel: ChannelDialogue, Identifier: "alice"},
		SubjectiveMetadata{Confidence: 80, Tags: []string{"greeting", "greeting", "smalltalk"}}, nil)
	after := time.Now().UTC()

	require.Equal(t, int64(0), f.ID)
	require.False(t, f.Persisted())
	require.Equal(t, []string{"greeting", "smalltalk"}, f.Subjective.Tags)
	require.False(t, f.Objective.CreatedAt.Before(before))
	require.False(t, f.Objective.CreatedAt.After(after))
	require.Equal(t, f.Objective.CreatedAt, f.Objective.UpdatedAt)
}

func TestMemoryFragment_Validate(t *testing.T) {
	valid := NewCandidateFragment("content", MemorySource{Channel: ChannelThought}, SubjectiveMetadata{}, nil)
	require.NoError(t, valid.Validate())

	empty := valid
	empty.Content = ""
	require.ErrorIs(t, empty.Validate(), ErrValidation)

	badChannel := valid
	badChannel.Objective.Source.Channel = Channel("bogus")
	require.ErrorIs(t, badChannel.Validate(), ErrValidation)

	badTimes := valid
	badTimes.Objective.UpdatedAt = badTimes.Objective.CreatedAt.Add(-time.Hour)
	require.ErrorIs(t, badTimes.Validate(), ErrValidation)
}

func TestMemoryFragment_SortedTags(t *testing.T) {
	f := MemoryFragment{Subjective: SubjectiveMetadata{Tags: []string{"zeta", "alpha", "mu"}}}
	require.Equal(t, []string{"alpha", "mu", "zeta"}, f.SortedTags())
	// Original order is untouched.
	require.Equal(t, []string{"zeta", "alpha", "mu"}, f.Subjective.Tags)
}
