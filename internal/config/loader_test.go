package config_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/okian/shillbot/internal/config"
	"github.com/smartystreets/goconvey/convey"
)

const (
	treasuryWallet  = "11111111111111111111111111111111"
	marketingWallet = "So11111111111111111111111111111111111111112"
	devWallet       = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
)

func TestConfigLoader(t *testing.T) {
	convey.Convey("Given a config loader", t, func() {
		ctx := context.Background()

		convey.Convey("When loading config with wallets from the environment", func() {
			clearConfigEnvVars()
			setWallets()
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load successfully with defaults", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg, convey.ShouldNotBeNil)
				convey.So(cfg.Wallets.Treasury, convey.ShouldEqual, treasuryWallet)
				convey.So(cfg.Window.Timezone, convey.ShouldEqual, "America/Chicago")
				convey.So(cfg.Payout.TopN, convey.ShouldEqual, 20)
				convey.So(cfg.DryRun, convey.ShouldBeFalse)
			})
		})

		convey.Convey("When loading config without wallets", func() {
			clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should refuse to start", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with nested environment variables", func() {
			setWallets()
			_ = os.Setenv("SHILLBOT_DB_PATH", "/var/lib/shillbot/live.db")
			_ = os.Setenv("SHILLBOT_WINDOW__CLOSE_TIMES", "09:00,21:00")
			_ = os.Setenv("SHILLBOT_TIMEOUTS__TRANSFER", "90s")
			_ = os.Setenv("SHILLBOT_PAYOUT__TOP_N", "10")
			_ = os.Setenv("SHILLBOT_PAYOUT__BINS", "2-5:0.6,6-10:0.4")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should override defaults with env vars", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DBPath, convey.ShouldEqual, "/var/lib/shillbot/live.db")
				convey.So(cfg.Window.CloseTimes, convey.ShouldResemble, []string{"09:00", "21:00"})
				convey.So(cfg.Timeouts.Transfer, convey.ShouldEqual, 90*time.Second)
				convey.So(cfg.Payout.TopN, convey.ShouldEqual, 10)
			})
		})

		convey.Convey("When loading config with YAML file", func() {
			yamlContent := `
report_dir: /srv/shillbot/public
wallets:
  treasury: "11111111111111111111111111111111"
  marketing: "So11111111111111111111111111111111111111112"
  dev: "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
window:
  timezone: UTC
  close_times: ["12:00"]
eligibility:
  blacklist: [insider]
  token_mint: "So11111111111111111111111111111111111111112"
  min_holding: 1000
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SHILLBOT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should load from YAML file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.ReportDir, convey.ShouldEqual, "/srv/shillbot/public")
				convey.So(cfg.Window.Timezone, convey.ShouldEqual, "UTC")
				convey.So(cfg.Window.CloseTimes, convey.ShouldResemble, []string{"12:00"})
				convey.So(cfg.Eligibility.Blacklist, convey.ShouldResemble, []string{"insider"})
				convey.So(cfg.Eligibility.MinHolding, convey.ShouldEqual, 1000)
				convey.So(cfg.Fees.PotShare, convey.ShouldEqual, "0.75")
			})
		})

		convey.Convey("When loading config with both file and environment variables", func() {
			yamlContent := `
dry_run: false
solana:
  keypair_path: /etc/shillbot/file.json
`
			tmpFile := createTempConfigFile(yamlContent)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SHILLBOT_CONFIG", tmpFile)
			_ = os.Setenv("SHILLBOT_DRY_RUN", "true")
			setWallets()
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then environment variables should override file values", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.DryRun, convey.ShouldBeTrue)
				convey.So(cfg.Solana.KeypairPath, convey.ShouldEqual, "/etc/shillbot/file.json")
				convey.So(cfg.StorePath(), convey.ShouldEqual, cfg.DryRunDBPath)
			})
		})

		convey.Convey("When loading config with invalid YAML file", func() {
			tmpFile := createTempConfigFile(`invalid: yaml: content: [`)
			defer func() { _ = os.Remove(tmpFile) }()

			_ = os.Setenv("SHILLBOT_CONFIG", tmpFile)
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return a load error", func() {
				convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with non-existent file", func() {
			_ = os.Setenv("SHILLBOT_CONFIG", "/non/existent/file.yaml")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with a devnet endpoint", func() {
			setWallets()
			_ = os.Setenv("SHILLBOT_SOLANA__RPC_URL", "https://api.devnet.solana.com")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should be rejected", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(err.Error(), convey.ShouldContainSubstring, "devnet")
				convey.So(cfg, convey.ShouldBeNil)
			})
		})

		convey.Convey("When loading config with invalid numeric environment variables", func() {
			setWallets()
			_ = os.Setenv("SHILLBOT_PAYOUT__TOP_N", "not_a_number")
			defer clearConfigEnvVars()

			cfg, err := config.Load(ctx)

			convey.Convey("Then it should return an error", func() {
				convey.So(err, convey.ShouldNotBeNil)
				convey.So(cfg, convey.ShouldBeNil)
			})
		})
	})
}

// Helper functions.

func setWallets() {
	_ = os.Setenv("SHILLBOT_WALLETS__TREASURY", treasuryWallet)
	_ = os.Setenv("SHILLBOT_WALLETS__MARKETING", marketingWallet)
	_ = os.Setenv("SHILLBOT_WALLETS__DEV", devWallet)
}

func clearConfigEnvVars() {
	envVars := []string{
		"SHILLBOT_CONFIG",
		"SHILLBOT_WALLETS__TREASURY",
		"SHILLBOT_WALLETS__MARKETING",
		"SHILLBOT_WALLETS__DEV",
		"SHILLBOT_DB_PATH",
		"SHILLBOT_DRY_RUN",
		"SHILLBOT_WINDOW__CLOSE_TIMES",
		"SHILLBOT_TIMEOUTS__TRANSFER",
		"SHILLBOT_PAYOUT__TOP_N",
		"SHILLBOT_PAYOUT__BINS",
		"SHILLBOT_SOLANA__RPC_URL",
	}
	for _, envVar := range envVars {
		_ = os.Unsetenv(envVar)
	}
}

func createTempConfigFile(content string) string {
	tmpFile, err := os.CreateTemp("", "shillbot-config-*.yaml")
	if err != nil {
		panic(err)
	}

	if _, err := tmpFile.WriteString(content); err != nil {
		panic(err)
	}

	if err := tmpFile.Close(); err != nil {
		panic(err)
	}

	return tmpFile.Name()
}
