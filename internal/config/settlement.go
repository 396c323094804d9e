package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/okian/shillbot/internal/domain/antigaming"
	"github.com/okian/shillbot/internal/domain/eligibility"
	"github.com/okian/shillbot/internal/domain/ranking"
	"github.com/okian/shillbot/internal/domain/scoring"
	"github.com/okian/shillbot/internal/domain/settlement"
	"github.com/okian/shillbot/internal/domain/types"
	"github.com/okian/shillbot/internal/domain/window"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/shopspring/decimal"
)

// Validate fails on anything that could misdirect funds or misplace a window.
func (c *Config) Validate() error {
	if strings.Contains(strings.ToLower(c.Solana.RPCURL), "devnet") {
		return fmt.Errorf("%w: rpc url %q points at devnet", ErrInvalidConfig, c.Solana.RPCURL)
	}
	if c.Solana.RPCURL == "" {
		return fmt.Errorf("%w: rpc url is required", ErrInvalidConfig)
	}
	for name, w := range map[string]string{
		"wallets.treasury":  c.Wallets.Treasury,
		"wallets.marketing": c.Wallets.Marketing,
		"wallets.dev":       c.Wallets.Dev,
	} {
		if !eligibility.ValidWallet(w) {
			return fmt.Errorf("%w: %s %q is not a valid wallet", ErrInvalidConfig, name, w)
		}
	}
	if c.StorePath() == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	if c.DryRun && c.DryRunDBPath == c.DBPath {
		return fmt.Errorf("%w: dry run must not share the live database", ErrInvalidConfig)
	}
	if _, err := c.Calendar(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if c.Scoring.MediaMode != string(scoring.MediaAdditive) && c.Scoring.MediaMode != string(scoring.MediaMultiplicative) {
		return fmt.Errorf("%w: media mode %q", ErrInvalidConfig, c.Scoring.MediaMode)
	}
	if err := c.validateScoring(); err != nil {
		return err
	}
	if c.Eligibility.MinHolding > 0 && c.Eligibility.TokenMint == "" {
		return fmt.Errorf("%w: min holding set without a token mint", ErrInvalidConfig)
	}
	p, err := c.SettlementParams()
	if err != nil {
		return err
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) validateScoring() error {
	s := c.Scoring
	weights := []float64{s.Likes, s.Reposts, s.Quotes, s.Replies, s.Views}
	positive := false
	for _, w := range weights {
		if w < 0 {
			return fmt.Errorf("%w: scoring weights must not be negative", ErrInvalidConfig)
		}
		positive = positive || w > 0
	}
	if !positive {
		return fmt.Errorf("%w: at least one scoring weight must be positive", ErrInvalidConfig)
	}
	if s.MediaBonus < 0 || s.ParticipationFloor < 0 {
		return fmt.Errorf("%w: media bonus and participation floor must not be negative", ErrInvalidConfig)
	}
	if s.MediaMode == string(scoring.MediaMultiplicative) && s.MediaBonus < 1 {
		return fmt.Errorf("%w: multiplicative media bonus %v is below 1", ErrInvalidConfig, s.MediaBonus)
	}
	a := c.AntiGaming
	if len(a.PenaltyTiers) == 0 {
		return fmt.Errorf("%w: at least one penalty tier is required", ErrInvalidConfig)
	}
	for _, t := range a.PenaltyTiers {
		if t <= 0 || t > 1 {
			return fmt.Errorf("%w: penalty tier %v not in (0,1]", ErrInvalidConfig, t)
		}
	}
	if a.Decay <= 0 || a.Decay > 1 {
		return fmt.Errorf("%w: decay %v not in (0,1]", ErrInvalidConfig, a.Decay)
	}
	if a.RateWindow < 0 || a.FreePosts < 0 || a.StreakLength < 0 {
		return fmt.Errorf("%w: negative anti-gaming setting", ErrInvalidConfig)
	}
	return nil
}

// Calendar builds the close calendar.
func (c *Config) Calendar() (*window.Calendar, error) {
	return window.NewCalendar(c.Window.Timezone, c.Window.CloseTimes)
}

// SettlementParams converts the fee, payout and timeout sections.
func (c *Config) SettlementParams() (settlement.Params, error) {
	p := settlement.DefaultParams()
	p.TreasuryWallet = c.Wallets.Treasury
	p.MarketingWallet = c.Wallets.Marketing
	p.DevWallet = c.Wallets.Dev

	var err error
	for _, f := range []struct {
		name string
		raw  string
		dst  *decimal.Decimal
	}{
		{"fees.pot_share", c.Fees.PotShare, &p.PotShare},
		{"fees.marketing_share", c.Fees.MarketingShare, &p.MarketingShare},
		{"fees.dev_share", c.Fees.DevShare, &p.DevShare},
	} {
		if *f.dst, err = decimal.NewFromString(f.raw); err != nil {
			return p, fmt.Errorf("%w: %s: %v", ErrInvalidConfig, f.name, err)
		}
	}
	if p.GasReserve, err = types.ParseSOL(c.Fees.GasReserveSOL); err != nil {
		return p, fmt.Errorf("%w: fees.gas_reserve_sol: %v", ErrInvalidConfig, err)
	}
	if p.MinPayout, err = types.ParseSOL(c.Fees.MinPayoutSOL); err != nil {
		return p, fmt.Errorf("%w: fees.min_payout_sol: %v", ErrInvalidConfig, err)
	}

	p.TopN = c.Payout.TopN
	if p.Curve, err = c.curve(); err != nil {
		return p, err
	}
	p.ReadTimeout = c.Timeouts.Read
	p.TransferTimeout = c.Timeouts.Transfer
	p.LeaseTTL = c.Timeouts.LeaseTTL
	return p, nil
}

func (c *Config) curve() (ranking.Curve, error) {
	var cv ranking.Curve
	var err error
	if cv.WinnerShare, err = decimal.NewFromString(c.Payout.WinnerShare); err != nil {
		return cv, fmt.Errorf("%w: payout.winner_share: %v", ErrInvalidConfig, err)
	}
	if cv.StreakCapShare, err = decimal.NewFromString(c.Payout.StreakCapShare); err != nil {
		return cv, fmt.Errorf("%w: payout.streak_cap_share: %v", ErrInvalidConfig, err)
	}
	if cv.Bins, err = ParseBins(c.Payout.Bins); err != nil {
		return cv, err
	}
	return cv, nil
}

// ParseBins parses "from-to:share" entries separated by commas.
func ParseBins(s string) ([]ranking.Bin, error) {
	var bins []ranking.Bin
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		span, share, ok := strings.Cut(part, ":")
		if !ok {
			return nil, fmt.Errorf("%w: bin %q: missing share", ErrInvalidConfig, part)
		}
		from, to, ok := strings.Cut(span, "-")
		if !ok {
			to = from
		}
		var b ranking.Bin
		var err error
		if b.From, err = strconv.Atoi(strings.TrimSpace(from)); err != nil {
			return nil, fmt.Errorf("%w: bin %q: %v", ErrInvalidConfig, part, err)
		}
		if b.To, err = strconv.Atoi(strings.TrimSpace(to)); err != nil {
			return nil, fmt.Errorf("%w: bin %q: %v", ErrInvalidConfig, part, err)
		}
		if b.Share, err = decimal.NewFromString(strings.TrimSpace(share)); err != nil {
			return nil, fmt.Errorf("%w: bin %q: %v", ErrInvalidConfig, part, err)
		}
		bins = append(bins, b)
	}
	return bins, nil
}

// Policy converts the anti-gaming section.
func (c *Config) Policy() antigaming.Policy {
	return antigaming.Policy{
		RateWindow:   c.AntiGaming.RateWindow,
		PenaltyTiers: append([]float64(nil), c.AntiGaming.PenaltyTiers...),
		FreePosts:    c.AntiGaming.FreePosts,
		Decay:        c.AntiGaming.Decay,
		StreakLength: c.AntiGaming.StreakLength,
	}
}

// ScoringOptions converts the scoring section.
func (c *Config) ScoringOptions() []scoring.Option {
	s := c.Scoring
	return []scoring.Option{
		scoring.WithWeights(scoring.Weights{
			Likes:   s.Likes,
			Reposts: s.Reposts,
			Quotes:  s.Quotes,
			Replies: s.Replies,
			Views:   s.Views,
		}),
		scoring.WithMediaBonus(scoring.MediaMode(s.MediaMode), s.MediaBonus),
		scoring.WithParticipationFloor(s.ParticipationFloor),
	}
}

// EligibilityOptions converts the eligibility section. The holding
// requirement is only wired when a mint is configured.
func (c *Config) EligibilityOptions(checker eligibility.HoldingChecker, l logger.Logger) []eligibility.Option {
	e := c.Eligibility
	opts := []eligibility.Option{
		eligibility.WithBlacklist(e.Blacklist),
		eligibility.WithExcludedPosts(e.ExcludedPosts),
		eligibility.WithParallelism(e.Parallelism),
		eligibility.WithRequestBudget(e.RequestQuota, e.QuotaPeriod),
		eligibility.WithLogger(l),
	}
	if e.TokenMint != "" && checker != nil {
		opts = append(opts, eligibility.WithHoldingRequirement(checker, e.TokenMint, e.MinHolding))
	}
	return opts
}
