package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/shillbot/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func setEnv(t *testing.T, rpcURL string) string {
	t.Helper()
	dir := t.TempDir()
	for k, v := range map[string]string{
		"SHILLBOT_WALLETS__TREASURY":    "11111111111111111111111111111111",
		"SHILLBOT_WALLETS__MARKETING":   "So11111111111111111111111111111111111111112",
		"SHILLBOT_WALLETS__DEV":         "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA",
		"SHILLBOT_SOLANA__RPC_URL":      rpcURL,
		"SHILLBOT_SOLANA__MAX_ATTEMPTS": "1",
		"SHILLBOT_DRY_RUN":              "true",
		"SHILLBOT_DB_PATH":              filepath.Join(dir, "live.db"),
		"SHILLBOT_DRY_RUN_DB_PATH":      filepath.Join(dir, "dry.db"),
		"SHILLBOT_REPORT_DIR":           filepath.Join(dir, "public"),
		"SHILLBOT_WINDOW__TIMEZONE":     "UTC",
		"SHILLBOT_LOG_LEVEL":            "error",
	} {
		t.Setenv(k, v)
	}
	return dir
}

func fixedBalance(t *testing.T, lamports int64) string {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = fmt.Fprintf(w, `{"jsonrpc":"2.0","id":1,"result":{"value":%d}}`, lamports)
	}))
	t.Cleanup(srv.Close)
	return srv.URL
}

func TestRunUsage(t *testing.T) {
	convey.Convey("Given the command line", t, func() {
		ctx := context.Background()
		var stdout, stderr bytes.Buffer

		convey.Convey("When no command is given", func() {
			code := run(ctx, nil, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "close-once")
		})

		convey.Convey("When the command is unknown", func() {
			code := run(ctx, []string{"pay-everyone"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
		})

		convey.Convey("When help is requested", func() {
			code := run(ctx, []string{"help"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitOK)
			convey.So(stdout.String(), convey.ShouldContainSubstring, "preview")
		})

		convey.Convey("When a flag is unknown", func() {
			code := run(ctx, []string{"close-once", "-everything"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
		})
	})
}

func TestRunConfigFailure(t *testing.T) {
	convey.Convey("Given a devnet endpoint", t, func() {
		setEnv(t, "https://api.devnet.solana.com")
		var stdout, stderr bytes.Buffer

		code := run(context.Background(), []string{"close-once"}, &stdout, &stderr)

		convey.Convey("Then nothing runs", func() {
			convey.So(code, convey.ShouldEqual, exitFailure)
			convey.So(stderr.String(), convey.ShouldContainSubstring, "devnet")
		})
	})
}

func TestRunCloseOnce(t *testing.T) {
	convey.Convey("Given a dry-run configuration", t, func() {
		dir := setEnv(t, fixedBalance(t, 2_000_000_000))
		ctx := context.Background()
		var stdout, stderr bytes.Buffer

		convey.Convey("When closing a past window", func() {
			code := run(ctx, []string{"close-once", "-window-id", "20250102-1400"}, &stdout, &stderr)

			convey.Convey("Then the report is printed and published", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				var r model.Report
				convey.So(json.Unmarshal(stdout.Bytes(), &r), convey.ShouldBeNil)
				convey.So(r.WindowID, convey.ShouldEqual, "20250102-1400")
				convey.So(r.Status, convey.ShouldEqual, model.WindowClosed)
				convey.So(r.DryRun, convey.ShouldBeTrue)
				_, err := os.Stat(filepath.Join(dir, "public", "latest.json"))
				convey.So(err, convey.ShouldBeNil)
			})
		})

		convey.Convey("When the window id is not a close slot", func() {
			code := run(ctx, []string{"close-once", "-window-id", "20250102-1415"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitNotClose)
		})

		convey.Convey("When ingest has no file", func() {
			code := run(ctx, []string{"ingest"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
		})

		convey.Convey("When previewing without a range", func() {
			code := run(ctx, []string{"preview"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
		})

		convey.Convey("When previewing an empty range", func() {
			code := run(ctx, []string{"preview", "-since", "2025-01-02T14:00:00Z", "-until", "2025-01-02T20:00:00Z"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitOK)
			var ranked model.Ranked
			convey.So(json.Unmarshal(stdout.Bytes(), &ranked), convey.ShouldBeNil)
			convey.So(len(ranked.Standings), convey.ShouldEqual, 0)
		})

		convey.Convey("When previewing the payouts of an unclosed window", func() {
			code := run(ctx, []string{"preview-payouts", "-window-id", "20250102-1400"}, &stdout, &stderr)

			convey.Convey("Then the plan is printed and nothing is published", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				var r model.Report
				convey.So(json.Unmarshal(stdout.Bytes(), &r), convey.ShouldBeNil)
				convey.So(r.WindowID, convey.ShouldEqual, "20250102-1400")
				convey.So(r.Status, convey.ShouldEqual, model.WindowOpen)
				_, err := os.Stat(filepath.Join(dir, "public", "latest.json"))
				convey.So(os.IsNotExist(err), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When exporting a window's payouts", func() {
			code := run(ctx, []string{"export-payouts", "-window-id", "20250102-1400"}, &stdout, &stderr)

			convey.Convey("Then the CSV lands under the exports directory", func() {
				convey.So(code, convey.ShouldEqual, exitOK)
				path := strings.TrimSpace(stdout.String())
				convey.So(filepath.Dir(path), convey.ShouldEqual, filepath.Join(dir, "public", "exports"))
				body, err := os.ReadFile(path)
				convey.So(err, convey.ShouldBeNil)
				convey.So(string(body), convey.ShouldStartWith, "window_id,kind,rank,handle,wallet")
			})
		})

		convey.Convey("When exporting interim posts without a range", func() {
			code := run(ctx, []string{"export-interim", "-since", "2025-01-02T14:00:00Z"}, &stdout, &stderr)
			convey.So(code, convey.ShouldEqual, exitUsage)
		})
	})
}
