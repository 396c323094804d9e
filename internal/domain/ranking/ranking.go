// Package ranking orders authors and splits the pot across ranks.
package ranking

import (
	"math"
	"sort"
	"time"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/scoring"
)

// DefaultTopN is the number of ranks that can be paid.
const DefaultTopN = 20

// scoreScale controls fixed-point scaling from float64. Scores equal to six
// decimal places are treated as ties.
const scoreScale = 1_000_000

type scoreFP int64

func toFixedPoint(x float64) scoreFP {
	if math.IsNaN(x) {
		return 0
	}
	scaled := math.Round(x * scoreScale)
	if scaled >= math.MaxInt64 {
		return scoreFP(math.MaxInt64)
	}
	if scaled <= math.MinInt64 {
		return scoreFP(math.MinInt64)
	}
	return scoreFP(scaled)
}

type entry struct {
	score scoreFP
	first time.Time
	total scoring.AuthorTotal
}

// less orders by score desc, then earliest qualifying post, then handle.
func less(a, b entry) bool {
	if a.score != b.score {
		return a.score > b.score
	}
	if !a.first.Equal(b.first) {
		return a.first.Before(b.first)
	}
	return a.total.Handle < b.total.Handle
}

// Rank orders totals strictly and truncates to topN. Authors with no
// positive score are not ranked.
func Rank(totals []scoring.AuthorTotal, topN int) []model.Standing {
	if topN <= 0 {
		topN = DefaultTopN
	}
	entries := make([]entry, 0, len(totals))
	for _, t := range totals {
		fp := toFixedPoint(t.Total)
		if fp <= 0 {
			continue
		}
		entries = append(entries, entry{score: fp, first: t.FirstPostAt, total: t})
	}
	sort.Slice(entries, func(i, j int) bool { return less(entries[i], entries[j]) })
	if len(entries) > topN {
		entries = entries[:topN]
	}

	out := make([]model.Standing, len(entries))
	for i, e := range entries {
		out[i] = model.Standing{
			Rank:        i + 1,
			Handle:      e.total.Handle,
			Score:       e.total.Total,
			Posts:       e.total.Posts,
			FirstPostAt: e.first,
		}
	}
	return out
}
