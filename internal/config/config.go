// Package config defines service configuration structures and loading hooks.
//
// Conventions:
//   - New returns a Config populated with defaults.
//   - Load layers a YAML file and SHILLBOT_* environment variables on top.
//   - Validate must pass before anything touches the treasury.
package config

import (
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`
	// LogFormat is text or json.
	LogFormat string `koanf:"log_format"`
	// LogFile, when set, receives logs through a rotating file sink.
	LogFile string `koanf:"log_file"`

	// Addr configures the HTTP listen address of serve mode, e.g. ":9080".
	Addr string `koanf:"addr"`

	// DBPath is the SQLite database holding windows, ledger and ingest tables.
	DBPath string `koanf:"db_path"`
	// DryRunDBPath is used instead of DBPath in dry-run mode so simulated
	// transfers never mark a real ledger as sent.
	DryRunDBPath string `koanf:"dry_run_db_path"`
	// ReportDir receives latest.json and history/<window>.json.
	ReportDir string `koanf:"report_dir"`
	// DryRun logs transfers instead of sending them.
	DryRun bool `koanf:"dry_run"`

	Window      WindowConfig      `koanf:"window"`
	Solana      SolanaConfig      `koanf:"solana"`
	Wallets     WalletConfig      `koanf:"wallets"`
	Fees        FeeConfig         `koanf:"fees"`
	Scoring     ScoringConfig     `koanf:"scoring"`
	AntiGaming  AntiGamingConfig  `koanf:"anti_gaming"`
	Payout      PayoutConfig      `koanf:"payout"`
	Eligibility EligibilityConfig `koanf:"eligibility"`
	Timeouts    TimeoutConfig     `koanf:"timeouts"`
}

// WindowConfig places close slots on the calendar.
type WindowConfig struct {
	Timezone   string   `koanf:"timezone"`
	CloseTimes []string `koanf:"close_times"`
}

// SolanaConfig locates the chain and the signing key.
type SolanaConfig struct {
	RPCURL      string        `koanf:"rpc_url"`
	KeypairPath string        `koanf:"keypair_path"`
	CLIPath     string        `koanf:"cli_path"`
	RPCTimeout  time.Duration `koanf:"rpc_timeout"`
	MaxAttempts int           `koanf:"max_attempts"`
}

// WalletConfig holds payee and treasury addresses.
type WalletConfig struct {
	Treasury  string `koanf:"treasury"`
	Marketing string `koanf:"marketing"`
	Dev       string `koanf:"dev"`
}

// FeeConfig splits collected fees. Shares are decimal strings.
type FeeConfig struct {
	PotShare       string `koanf:"pot_share"`
	MarketingShare string `koanf:"marketing_share"`
	DevShare       string `koanf:"dev_share"`
	GasReserveSOL  string `koanf:"gas_reserve_sol"`
	MinPayoutSOL   string `koanf:"min_payout_sol"`
}

// ScoringConfig weights engagement metrics.
type ScoringConfig struct {
	Likes              float64 `koanf:"likes"`
	Reposts            float64 `koanf:"reposts"`
	Quotes             float64 `koanf:"quotes"`
	Replies            float64 `koanf:"replies"`
	Views              float64 `koanf:"views"`
	MediaBonus         float64 `koanf:"media_bonus"`
	MediaMode          string  `koanf:"media_mode"`
	ParticipationFloor float64 `koanf:"participation_floor"`
}

// AntiGamingConfig tunes rate limiting, duplicate penalties and dampening.
type AntiGamingConfig struct {
	RateWindow   time.Duration `koanf:"rate_window"`
	PenaltyTiers []float64     `koanf:"penalty_tiers"`
	FreePosts    int           `koanf:"free_posts"`
	Decay        float64       `koanf:"decay"`
	StreakLength int           `koanf:"streak_length"`
}

// PayoutConfig describes the payout curve. Bins use the form
// "2-5:0.5,6-10:0.3,11-20:0.2"; bin shares split the post-winner remainder.
type PayoutConfig struct {
	TopN           int    `koanf:"top_n"`
	WinnerShare    string `koanf:"winner_share"`
	StreakCapShare string `koanf:"streak_cap_share"`
	Bins           string `koanf:"bins"`
}

// EligibilityConfig filters authors and posts.
type EligibilityConfig struct {
	Blacklist     []string      `koanf:"blacklist"`
	ExcludedPosts []string      `koanf:"excluded_posts"`
	TokenMint     string        `koanf:"token_mint"`
	MinHolding    uint64        `koanf:"min_holding"`
	Parallelism   int           `koanf:"parallelism"`
	RequestQuota  int           `koanf:"request_quota"`
	QuotaPeriod   time.Duration `koanf:"quota_period"`
}

// TimeoutConfig bounds blocking calls and the close lease.
type TimeoutConfig struct {
	Read     time.Duration `koanf:"read"`
	Transfer time.Duration `koanf:"transfer"`
	LeaseTTL time.Duration `koanf:"lease_ttl"`
}

// New creates a Config with defaults. Wallets have no default.
func New() *Config {
	return &Config{
		LogLevel:     "info",
		LogFormat:    "text",
		Addr:         ":9080",
		DBPath:       "shillbot.db",
		DryRunDBPath: "shillbot.dryrun.db",
		ReportDir:    "public",
		Window: WindowConfig{
			Timezone:   "America/Chicago",
			CloseTimes: []string{"14:00", "23:00"},
		},
		Solana: SolanaConfig{
			RPCURL:      "https://api.mainnet-beta.solana.com",
			KeypairPath: "reward_wallet.json",
			CLIPath:     "solana",
			RPCTimeout:  20 * time.Second,
			MaxAttempts: 4,
		},
		Fees: FeeConfig{
			PotShare:       "0.75",
			MarketingShare: "0.15",
			DevShare:       "0.10",
			GasReserveSOL:  "0.1",
			MinPayoutSOL:   "0.001",
		},
		Scoring: ScoringConfig{
			Likes:      1,
			Reposts:    2,
			Quotes:     2,
			Replies:    1,
			Views:      0.01,
			MediaBonus: 1,
			MediaMode:  "additive",
		},
		AntiGaming: AntiGamingConfig{
			RateWindow:   time.Minute,
			PenaltyTiers: []float64{0.25, 0.1},
			FreePosts:    3,
			Decay:        0.5,
			StreakLength: 0,
		},
		Payout: PayoutConfig{
			TopN:           20,
			WinnerShare:    "0.5",
			StreakCapShare: "0.25",
			Bins:           "2-5:0.5,6-10:0.3,11-20:0.2",
		},
		Eligibility: EligibilityConfig{
			Parallelism:  4,
			RequestQuota: 300,
			QuotaPeriod:  15 * time.Minute,
		},
		Timeouts: TimeoutConfig{
			Read:     30 * time.Second,
			Transfer: 60 * time.Second,
			LeaseTTL: 5 * time.Minute,
		},
	}
}

// StorePath returns the database to open for the configured mode.
func (c *Config) StorePath() string {
	if c.DryRun {
		return c.DryRunDBPath
	}
	return c.DBPath
}
