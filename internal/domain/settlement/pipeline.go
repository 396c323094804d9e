package settlement

import (
	"context"
	"sort"

	"github.com/okian/shillbot/internal/domain/antigaming"
	"github.com/okian/shillbot/internal/domain/eligibility"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/internal/domain/ranking"
	"github.com/okian/shillbot/internal/domain/scoring"
	"github.com/okian/shillbot/pkg/metrics"
)

// Pipeline runs eligibility, anti-gaming, scoring and ranking over one
// window's posts. It has no side effects beyond holding checks.
type Pipeline struct {
	filter     *eligibility.Filter
	normalizer *antigaming.Normalizer
	scorer     *scoring.Scorer
	topN       int
}

// NewPipeline assembles a pipeline.
func NewPipeline(filter *eligibility.Filter, normalizer *antigaming.Normalizer, scorer *scoring.Scorer, topN int) *Pipeline {
	return &Pipeline{filter: filter, normalizer: normalizer, scorer: scorer, topN: topN}
}

// Policy returns the anti-gaming policy in effect.
func (p *Pipeline) Policy() antigaming.Policy { return p.normalizer.Policy() }

// Run ranks the authors of w. Only holding-check failures are errors.
func (p *Pipeline) Run(ctx context.Context, w model.Window, posts []model.Post, regs []model.Registration) (*model.Ranked, error) {
	res, err := p.filter.Apply(ctx, w, posts, regs)
	if err != nil {
		return nil, err
	}
	annotated, dropped := p.normalizer.Apply(ctx, res.Posts)

	exclusions := append(res.Exclusions, dropped...)
	counts := make(map[string]int, len(res.Dropped)+2)
	for reason, n := range res.Dropped {
		counts[reason] += n
	}
	for _, e := range dropped {
		counts[e.Reason]++
	}
	sort.SliceStable(exclusions, func(i, j int) bool {
		if exclusions[i].Reason != exclusions[j].Reason {
			return exclusions[i].Reason < exclusions[j].Reason
		}
		if exclusions[i].Handle != exclusions[j].Handle {
			return exclusions[i].Handle < exclusions[j].Handle
		}
		return exclusions[i].PostID < exclusions[j].PostID
	})

	standings := ranking.Rank(p.scorer.Totals(annotated), p.topN)
	for i := range standings {
		standings[i].Wallet = res.Wallets[model.NormalizeHandle(standings[i].Handle)]
	}

	for reason, n := range counts {
		metrics.RecordPostsDropped(reason, n)
	}
	metrics.UpdateAuthorsRanked(len(standings))

	if exclusions == nil {
		exclusions = []model.Exclusion{}
	}
	if standings == nil {
		standings = []model.Standing{}
	}
	return &model.Ranked{
		Since:      w.OpensAt,
		Until:      w.ClosesAt,
		Standings:  standings,
		Exclusions: exclusions,
		Dropped:    counts,
	}, nil
}
