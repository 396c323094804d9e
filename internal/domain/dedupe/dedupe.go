// Package dedupe detects repeated post content within a window.
package dedupe

import (
	"context"
	"regexp"
	"strings"
	"sync"

	"github.com/okian/shillbot/internal/domain/model"
)

var (
	linkPattern    = regexp.MustCompile(`(?i)\b(?:https?://|www\.)\S+`)
	mentionPattern = regexp.MustCompile(`@\w+`)
)

// Normalize reduces post text to the form compared for near-duplicates:
// links and mentions removed, case folded, whitespace collapsed.
func Normalize(text string) string {
	s := linkPattern.ReplaceAllString(text, " ")
	s = mentionPattern.ReplaceAllString(s, " ")
	s = strings.ToLower(s)
	return strings.Join(strings.Fields(s), " ")
}

// Key scopes normalized text to its author.
func Key(handle, text string) string {
	return model.NormalizeHandle(handle) + "\x00" + Normalize(text)
}

// Deduper counts how often a content key has been seen. It lives for one
// scoring pass, so it never forgets a key.
type Deduper interface {
	// SeenAndRecord atomically checks if id was seen and records it if not.
	// Returns true if id was already seen.
	SeenAndRecord(ctx context.Context, id string) bool

	// Occurrences records id and returns how many times it was recorded before.
	Occurrences(ctx context.Context, id string) int
}

type inMemoryDeduper struct {
	mu     sync.Mutex
	counts map[string]int
}

// NewInMemoryDeduper creates an unbounded in-memory deduper.
func NewInMemoryDeduper() Deduper {
	return &inMemoryDeduper{counts: make(map[string]int)}
}

func (d *inMemoryDeduper) SeenAndRecord(ctx context.Context, id string) bool {
	return d.Occurrences(ctx, id) > 0
}

func (d *inMemoryDeduper) Occurrences(_ context.Context, id string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	prior := d.counts[id]
	d.counts[id] = prior + 1
	return prior
}
