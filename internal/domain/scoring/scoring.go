// Package scoring turns annotated posts into per-author window totals.
package scoring

import (
	"sort"
	"time"

	"github.com/okian/shillbot/internal/domain/antigaming"
	"github.com/okian/shillbot/internal/domain/model"
)

// MediaMode selects how the media bonus combines with the engagement score.
type MediaMode string

// Media modes.
const (
	MediaAdditive       MediaMode = "additive"
	MediaMultiplicative MediaMode = "multiplicative"
)

// Default scoring configuration constants.
const (
	defaultMediaBonus = 1.0
)

// Weights are per-metric multipliers for the raw engagement score.
type Weights struct {
	Likes   float64
	Reposts float64
	Quotes  float64
	Replies float64
	Views   float64
}

// DefaultWeights returns the default metric weights.
func DefaultWeights() Weights {
	return Weights{Likes: 1, Reposts: 2, Quotes: 2, Replies: 1, Views: 0.01}
}

// Raw is the weighted engagement sum.
func (w Weights) Raw(e model.Engagement) float64 {
	return w.Likes*float64(e.Likes) +
		w.Reposts*float64(e.Reposts) +
		w.Quotes*float64(e.Quotes) +
		w.Replies*float64(e.Replies) +
		w.Views*float64(e.Views)
}

// Option applies a configuration option to the Scorer.
type Option func(*Scorer)

// WithWeights sets the metric weights.
func WithWeights(w Weights) Option {
	return func(s *Scorer) {
		s.weights = w
	}
}

// WithMediaBonus sets the media bonus and how it is applied. A
// multiplicative bonus must be at least 1 and an additive one at least 0;
// anything else leaves the scorer unchanged.
func WithMediaBonus(mode MediaMode, bonus float64) Option {
	return func(s *Scorer) {
		switch {
		case mode == MediaAdditive && bonus >= 0:
		case mode == MediaMultiplicative && bonus >= 1:
		default:
			return
		}
		s.mediaMode, s.mediaBonus = mode, bonus
	}
}

// WithParticipationFloor sets the raw score credited to a post with no
// engagement. Zero means such posts contribute nothing beyond any media bonus.
func WithParticipationFloor(floor float64) Option {
	return func(s *Scorer) {
		if floor >= 0 {
			s.participationFloor = floor
		}
	}
}

// PostScore is the breakdown for one post.
type PostScore struct {
	PostID      string
	Raw         float64
	Originality float64
	MediaBonus  float64
	Dampening   float64
	Final       float64
}

// AuthorTotal is an author's summed window score.
type AuthorTotal struct {
	Handle      string
	Total       float64
	Posts       int
	FirstPostAt time.Time
	Scores      []PostScore
}

// Scorer computes post scores. It has no side effects.
type Scorer struct {
	weights            Weights
	mediaMode          MediaMode
	mediaBonus         float64
	participationFloor float64
	policy             antigaming.Policy
}

// NewScorer creates a scorer that applies policy's originality and dampening.
func NewScorer(policy antigaming.Policy, opts ...Option) *Scorer {
	s := &Scorer{
		weights:    DefaultWeights(),
		mediaMode:  MediaAdditive,
		mediaBonus: defaultMediaBonus,
		policy:     policy,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score computes the final score of one annotated post.
func (s *Scorer) Score(a antigaming.Annotated) PostScore {
	raw := s.weights.Raw(a.Post.Engagement)
	if raw == 0 {
		raw = s.participationFloor
	}
	orig := s.policy.Originality(a.Repeats)
	damp := s.policy.Dampen(a.AuthorIndex)

	ps := PostScore{PostID: a.Post.PostID, Raw: raw, Originality: orig, Dampening: damp}
	score := raw * orig
	if a.Post.HasMedia {
		ps.MediaBonus = s.mediaBonus
		if s.mediaMode == MediaMultiplicative {
			score *= s.mediaBonus
		} else {
			score += s.mediaBonus
		}
	}
	ps.Final = score * damp
	return ps
}

// Totals scores every post and sums per author. Posts are summed in input
// order; the result is sorted by handle.
func (s *Scorer) Totals(posts []antigaming.Annotated) []AuthorTotal {
	byAuthor := make(map[string]*AuthorTotal)
	for _, a := range posts {
		key := model.NormalizeHandle(a.Post.Handle)
		t, ok := byAuthor[key]
		if !ok {
			t = &AuthorTotal{Handle: key, FirstPostAt: a.Post.CreatedAt}
			byAuthor[key] = t
		}
		ps := s.Score(a)
		t.Scores = append(t.Scores, ps)
		t.Total += ps.Final
		t.Posts++
		if a.Post.CreatedAt.Before(t.FirstPostAt) {
			t.FirstPostAt = a.Post.CreatedAt
		}
	}

	out := make([]AuthorTotal, 0, len(byAuthor))
	for _, t := range byAuthor {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Handle < out[j].Handle })
	return out
}
