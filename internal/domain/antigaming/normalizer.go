// Package antigaming limits how much an author can gain from volume or
// repeated content within a window.
package antigaming

import (
	"context"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/okian/shillbot/internal/domain/dedupe"
	"github.com/okian/shillbot/internal/domain/model"
)

// Exclusion reasons produced here.
const (
	ReasonRateLimited     = "rate-limited"
	ReasonDuplicatePostID = "duplicate-post-id"
)

// Default policy values.
const (
	DefaultRateWindow = time.Minute
	DefaultFreePosts  = 3
	DefaultDecay      = 0.5
)

// DefaultPenaltyTiers are the originality multipliers for the first and
// later repeats of the same normalized text.
var DefaultPenaltyTiers = []float64{0.25, 0.1}

// Policy holds the anti-gaming parameters. It is immutable after construction.
type Policy struct {
	// RateWindow is the minimum spacing between an author's counted posts.
	RateWindow time.Duration
	// PenaltyTiers[i] is the originality multiplier of the (i+1)th repeat.
	// Repeats beyond the table use the last tier.
	PenaltyTiers []float64
	// FreePosts is how many posts per author count at full weight.
	FreePosts int
	// Decay is the factor applied per post beyond FreePosts.
	Decay float64
	// StreakLength is the number of consecutive prior rank-1 finishes that
	// triggers the cap. Zero disables it.
	StreakLength int
}

// DefaultPolicy returns the default anti-gaming parameters.
func DefaultPolicy() Policy {
	return Policy{
		RateWindow:   DefaultRateWindow,
		PenaltyTiers: append([]float64(nil), DefaultPenaltyTiers...),
		FreePosts:    DefaultFreePosts,
		Decay:        DefaultDecay,
	}
}

// Originality returns the multiplier for a post with dup prior repeats.
func (p Policy) Originality(dup int) float64 {
	if dup <= 0 || len(p.PenaltyTiers) == 0 {
		return 1.0
	}
	if dup > len(p.PenaltyTiers) {
		dup = len(p.PenaltyTiers)
	}
	return p.PenaltyTiers[dup-1]
}

// Dampen returns the volume factor for an author's index-th counted post (0-based).
func (p Policy) Dampen(index int) float64 {
	if index < p.FreePosts {
		return 1.0
	}
	return math.Pow(p.Decay, float64(index-p.FreePosts+1))
}

// StreakCapped reports whether handle won rank 1 in each of the last
// StreakLength windows. priorWinners is ordered most recent first.
func (p Policy) StreakCapped(priorWinners []string, handle string) bool {
	if p.StreakLength <= 0 || len(priorWinners) < p.StreakLength {
		return false
	}
	key := model.NormalizeHandle(handle)
	for _, w := range priorWinners[:p.StreakLength] {
		if model.NormalizeHandle(w) != key {
			return false
		}
	}
	return true
}

// Annotated is a retained post with the flags the scorer consumes.
type Annotated struct {
	Post model.Post
	// Repeats is how many earlier retained posts by the same author had the
	// same normalized text.
	Repeats int
	// AuthorIndex is the post's chronological position among the author's
	// retained posts.
	AuthorIndex int
}

// Duplicate reports whether the post repeats earlier content.
func (a Annotated) Duplicate() bool { return a.Repeats > 0 }

// Normalizer applies rate limiting and duplicate detection.
type Normalizer struct {
	policy Policy
}

// NewNormalizer creates a normalizer for policy.
func NewNormalizer(policy Policy) *Normalizer {
	return &Normalizer{policy: policy}
}

// Policy returns the normalizer's parameters.
func (n *Normalizer) Policy() Policy { return n.policy }

// Apply orders posts chronologically and annotates the ones that count.
// The output order is stable for identical input sets.
func (n *Normalizer) Apply(ctx context.Context, posts []model.Post) ([]Annotated, []model.Exclusion) {
	sorted := make([]model.Post, len(posts))
	copy(sorted, posts)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		if a.PostID != b.PostID {
			return a.PostID < b.PostID
		}
		return strings.ToLower(a.Handle) < strings.ToLower(b.Handle)
	})

	ids := dedupe.NewInMemoryDeduper()
	texts := dedupe.NewInMemoryDeduper()
	lastKept := make(map[string]time.Time)
	counted := make(map[string]int)

	out := make([]Annotated, 0, len(sorted))
	var excluded []model.Exclusion
	for _, p := range sorted {
		if ids.SeenAndRecord(ctx, p.PostID) {
			excluded = append(excluded, model.Exclusion{Handle: p.Handle, PostID: p.PostID, Reason: ReasonDuplicatePostID})
			continue
		}
		author := model.NormalizeHandle(p.Handle)
		if last, ok := lastKept[author]; ok && p.CreatedAt.Sub(last) < n.policy.RateWindow {
			excluded = append(excluded, model.Exclusion{Handle: p.Handle, PostID: p.PostID, Reason: ReasonRateLimited})
			continue
		}
		lastKept[author] = p.CreatedAt

		out = append(out, Annotated{
			Post:        p,
			Repeats:     texts.Occurrences(ctx, dedupe.Key(author, p.Text)),
			AuthorIndex: counted[author],
		})
		counted[author]++
	}
	return out, excluded
}
