// Package memory implements the hybrid memory engine: a dual-store
// (relational + vector) archive of MemoryFragments with atomic append/rollback,
// semantic recall, and a content-addressed system-config snapshot store.
package memory

import (
	"fmt"
	"sort"
	"time"
)

// Channel identifies the semantic origin of a MemorySource.
type Channel string

const (
	ChannelDialogue    Channel = "dialogue"
	ChannelInformation Channel = "information"
	ChannelThought     Channel = "thought"
	ChannelAction      Channel = "action"
	ChannelUnknown     Channel = "unknown"
)

func validChannel(c Channel) bool {
	switch c {
	case ChannelDialogue, ChannelInformation, ChannelThought, ChannelAction, ChannelUnknown:
		return true
	default:
		return false
	}
}

// MemorySource carries the semantic origin of a fragment: the channel it
// arrived on, an identifier within that channel, and free-form metadata.
type MemorySource struct {
	Channel    Channel           `json:"channel"`
	Identifier string            `json:"identifier"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ObjectiveMetadata records facts about a fragment that are not subject to
// the agent's own judgement.
type ObjectiveMetadata struct {
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
	Source    MemorySource `json:"source"`
}

// SubjectiveMetadata records the agent's own assessment of a fragment.
type SubjectiveMetadata struct {
	Importance uint8    `json:"importance"` // 0-255
	Confidence uint8    `json:"confidence"` // 0-255
	Tags       []string `json:"tags,omitempty"`
	Notes      string   `json:"notes,omitempty"`
}

// MemoryFragment is the unit of long-term memory. ID is 0 until the fragment
// has been persisted by the hybrid manager; it is stable thereafter.
type MemoryFragment struct {
	ID           int64              `json:"id"`
	Content      string             `json:"content"`
	Objective    ObjectiveMetadata  `json:"objective_metadata"`
	Subjective   SubjectiveMetadata `json:"subjective_metadata"`
	Associations []int64            `json:"associations,omitempty"`
}

// Persisted reports whether the fragment has been assigned a store id.
func (f MemoryFragment) Persisted() bool { return f.ID > 0 }

// dedupeTags removes duplicate tags while preserving first-seen order, giving
// the "no duplicates in semantics" invariant from the data model a concrete
// representation instead of leaving it as documentation only.
func dedupeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// NewCandidateFragment builds an unpersisted MemoryFragment (ID == 0) with
// normalized tags and a created/updated timestamp pinned to now. Candidate
// fragments are what callers pass to HybridManager.Append.
func NewCandidateFragment(content string, source MemorySource, subjective SubjectiveMetadata, associations []int64) MemoryFragment {
	now := time.Now().UTC()
	subjective.Tags = dedupeTags(subjective.Tags)
	return MemoryFragment{
		Content: content,
		Objective: ObjectiveMetadata{
			CreatedAt: now,
			UpdatedAt: now,
			Source:    source,
		},
		Subjective:   subjective,
		Associations: associations,
	}
}

// Validate checks the invariants from the data model that this module can
// enforce locally (store-assigned id validity is the adapter's job).
func (f MemoryFragment) Validate() error {
	if f.Content == "" {
		return fmt.Errorf("%w: content must not be empty", ErrValidation)
	}
	if !validChannel(f.Objective.Source.Channel) {
		return fmt.Errorf("%w: unknown source channel %q", ErrValidation, f.Objective.Source.Channel)
	}
	if f.Objective.CreatedAt.After(f.Objective.UpdatedAt) {
		return fmt.Errorf("%w: created_at must not be after updated_at", ErrValidation)
	}
	return nil
}

// SortedTags returns a copy of the fragment's tags in a stable order, used
// anywhere tag output needs to be deterministic (serialization, tests).
func (f MemoryFragment) SortedTags() []string {
	out := append([]string(nil), f.Subjective.Tags...)
	sort.Strings(out)
	return out
}
