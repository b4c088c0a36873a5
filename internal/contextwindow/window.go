// Package contextwindow maintains an agent's working set: a bounded,
// token-budgeted deque of recent activities plus a deduplicated set of
// recalled memory fragments, and produces the serialized prompt document the
// agent loop hands to the completion engine.
package contextwindow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/ImitationGameLabs/ephemera-ai/internal/loomclient"
	"github.com/ImitationGameLabs/ephemera-ai/internal/memory"
)

const (
	// DefaultTokenLimit is the default token_limit from spec.md §4.5.
	DefaultTokenLimit = 30000

	// persistQueueDepth bounds the fire-and-forget persistence queue; a full
	// queue drops the oldest pending request rather than blocking AddActivity.
	persistQueueDepth = 256
)

// Window is the agent's context window. Every mutation method takes the
// window's own mutex, so tools that contribute to it (e.g. select_memories)
// call those methods directly without any locking of their own.
type Window struct {
	mu sync.Mutex

	memoryContext    []memory.MemoryFragment
	memoryContextIdx map[int64]int
	recentActivities []memory.MemoryFragment

	tokenUsage int
	tokenLimit int

	persistCh chan memory.MemoryFragment
	persister loomclient.FragmentPersister
	log       *zerolog.Logger
}

// New constructs a Window and starts its single dedicated persistence
// consumer goroutine (spec.md §5.1 / SPEC_FULL.md §5.1). persister may be nil,
// in which case persistence is a pure no-op (useful for tests).
func New(tokenLimit int, persister loomclient.FragmentPersister, log *zerolog.Logger) *Window {
	if tokenLimit <= 0 {
		tokenLimit = DefaultTokenLimit
	}
	if log == nil {
		l := zerolog.Nop()
		log = &l
	}
	w := &Window{
		memoryContextIdx: map[int64]int{},
		tokenLimit:       tokenLimit,
		persistCh:        make(chan memory.MemoryFragment, persistQueueDepth),
		persister:        persister,
		log:              log,
	}
	go w.runPersistConsumer()
	return w
}

func (w *Window) runPersistConsumer() {
	for fragment := range w.persistCh {
		if w.persister == nil {
			continue
		}
		ctx := context.Background()
		if err := w.persister.PersistFragment(ctx, fragment); err != nil {
			w.log.Warn().Err(err).Int64("fragment_id", fragment.ID).Msg("context_window_persist_failed")
		}
	}
}

// enqueuePersist is non-blocking: a full channel drops the oldest pending
// item (logged) rather than blocking the caller, per SPEC_FULL.md §5.1.
func (w *Window) enqueuePersist(fragment memory.MemoryFragment) {
	select {
	case w.persistCh <- fragment:
	default:
		select {
		case dropped := <-w.persistCh:
			w.log.Warn().Int64("dropped_fragment_id", dropped.ID).Msg("context_window_persist_queue_full_dropped_oldest")
		default:
		}
		select {
		case w.persistCh <- fragment:
		default:
		}
	}
}

// estimateTokens is the chars/4 heuristic from spec.md §4.5, applied to the
// fragment's actual serialized form so the budget tracks what will be sent.
func estimateTokens(serialized string) int {
	return len(serialized) / 4
}

// AddActivity appends a fragment to the tail of recent_activities, fires a
// best-effort persist, and evicts from the head until the token budget is
// satisfied. Never blocks on the persist.
func (w *Window) AddActivity(fragment memory.MemoryFragment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.addActivityLocked(fragment)
}

func (w *Window) addActivityLocked(fragment memory.MemoryFragment) {
	cost := estimateTokens(serializeFragment(fragment))
	w.recentActivities = append(w.recentActivities, fragment)
	w.tokenUsage += cost
	w.enqueuePersist(fragment)

	for w.tokenUsage > w.tokenLimit && len(w.recentActivities) > 0 {
		head := w.recentActivities[0]
		w.recentActivities = w.recentActivities[1:]
		w.tokenUsage -= estimateTokens(serializeFragment(head))
	}
	if w.tokenUsage < 0 {
		w.tokenUsage = 0
	}
}

// AddMemoryContext merges fragments into memory_context (deduped by id) and
// records a synthetic action-channel activity noting the selection, per
// spec.md §4.5.
func (w *Window) AddMemoryContext(summary string, fragments []memory.MemoryFragment) {
	w.mu.Lock()
	defer w.mu.Unlock()

	added := 0
	for _, f := range fragments {
		if _, exists := w.memoryContextIdx[f.ID]; exists {
			continue
		}
		w.memoryContextIdx[f.ID] = len(w.memoryContext)
		w.memoryContext = append(w.memoryContext, f)
		added++
	}

	synthetic := memory.NewCandidateFragment(
		fmt.Sprintf("Selected %d memories into context: %s", added, summary),
		memory.MemorySource{Channel: memory.ChannelAction, Identifier: "context_window"},
		memory.SubjectiveMetadata{Tags: []string{"memory_selection"}},
		nil,
	)
	w.addActivityLocked(synthetic)
}

// TokenUsage and TokenLimit report current budget state, for diagnostics and
// tests.
func (w *Window) TokenUsage() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.tokenUsage
}

func (w *Window) TokenLimit() int { return w.tokenLimit }

// Lock/Unlock expose the window's mutex so the agent loop's tools (per
// spec.md §5's shared-resource policy) can serialize their own multi-step
// mutations against AddActivity/AddMemoryContext.
func (w *Window) Lock()   { w.mu.Lock() }
func (w *Window) Unlock() { w.mu.Unlock() }

const fragmentSeparator = "---"
const isoMilliLayout = "2006-01-02T15:04:05.000Z"

// serializeFragment renders the seven labeled lines from the
// MemoryFragmentList serialization rule in spec.md §4.5.
func serializeFragment(f memory.MemoryFragment) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Memory ID: %s\n", idOrPending(f))
	fmt.Fprintf(&b, "Created: %s\n", f.Objective.CreatedAt.UTC().Format(isoMilliLayout))
	fmt.Fprintf(&b, "Source: %s::%s\n", f.Objective.Source.Channel, f.Objective.Source.Identifier)
	fmt.Fprintf(&b, "Importance: %d/255\n", f.Subjective.Importance)
	fmt.Fprintf(&b, "Confidence: %d/255\n", f.Subjective.Confidence)
	fmt.Fprintf(&b, "Tags: %s\n", strings.Join(f.SortedTags(), ", "))
	fmt.Fprintf(&b, "Content: %s", f.Content)
	return b.String()
}

func idOrPending(f memory.MemoryFragment) string {
	if !f.Persisted() {
		return "(pending)"
	}
	return strconv.FormatInt(f.ID, 10)
}

func serializeFragmentList(fragments []memory.MemoryFragment) string {
	parts := make([]string, len(fragments))
	for i, f := range fragments {
		parts[i] = serializeFragment(f)
	}
	return strings.Join(parts, "\n"+fragmentSeparator+"\n")
}

// reservedTags are the XML-ish tags that must be escaped out of fragment
// content before it is wrapped in the <context> envelope, preventing a
// fragment's own content from forging a closing tag and escaping the
// envelope (spec.md §4.5 Security).
var reservedTags = []string{"context", "sys.memory", "sys.agent", "sys.state"}

func escapeReservedTags(s string) string {
	for _, tag := range reservedTags {
		s = strings.ReplaceAll(s, "<"+tag+">", "&lt;"+tag+"&gt;")
		s = strings.ReplaceAll(s, "</"+tag+">", "&lt;/"+tag+"&gt;")
	}
	return s
}

// Serialize produces the full prompt document: an optional "Active Memory
// Context" section, an optional "Recent Activities" section, each absent
// when empty, wrapped in a tag-escaped <context> envelope.
func (w *Window) Serialize() string {
	w.mu.Lock()
	memoryCtx := append([]memory.MemoryFragment(nil), w.memoryContext...)
	activities := append([]memory.MemoryFragment(nil), w.recentActivities...)
	w.mu.Unlock()

	var b strings.Builder
	if len(memoryCtx) > 0 {
		b.WriteString("Active Memory Context\n")
		b.WriteString(serializeFragmentList(memoryCtx))
		b.WriteString("\n\n")
	}
	if len(activities) > 0 {
		b.WriteString("Recent Activities\n")
		b.WriteString(serializeFragmentList(activities))
		b.WriteString("\n")
	}

	escaped := escapeReservedTags(b.String())
	return "<context>\n" + escaped + "</context>"
}

// Close stops the persistence consumer goroutine. Safe to call once, after
// the agent loop using this window has shut down.
func (w *Window) Close() {
	close(w.persistCh)
}
