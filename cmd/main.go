package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
	_ "time/tzdata"

	"github.com/okian/shillbot/internal/adapters/http/api"
	app "github.com/okian/shillbot/internal/app"
	"github.com/okian/shillbot/internal/config"
	"github.com/okian/shillbot/internal/domain/model"
	"github.com/okian/shillbot/pkg/logger"
	"github.com/robfig/cron/v3"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
)

// Log file rotation.
const (
	logMaxSizeMB  = 50
	logMaxBackups = 5
	logMaxAgeDays = 30
)

// Exit codes.
const (
	exitOK       = 0
	exitFailure  = 1
	exitUsage    = 2
	exitNotClose = 3
)

const usage = `usage: shillbot <command> [flags]

commands:
  serve                          run the HTTP API and close windows on schedule
  close-once [-window-id ID] [-force]
                                 close one window and print its report
  preview -since RFC3339 -until RFC3339
                                 rank a range without paying
  preview-payouts [-window-id ID]
                                 print the payout plan a window would get now
  export-payouts [-window-id ID] write a window's payout plan as CSV
  export-interim -since RFC3339 -until RFC3339
                                 write a range's interim posts as CSV
  ingest -file batch.json        store registrations and post pulls
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = io.WriteString(stderr, usage)
		return exitUsage
	}
	cmd, rest := args[0], args[1:]
	switch cmd {
	case "serve", "close-once", "preview", "ingest",
		"preview-payouts", "export-payouts", "export-interim":
	case "-h", "--help", "help":
		_, _ = io.WriteString(stdout, usage)
		return exitOK
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
		return exitUsage
	}

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	windowID := fs.String("window-id", "", "window to close, e.g. 20250102-1400; default is the most recently ended window")
	force := fs.Bool("force", false, "close a window whose close time has not passed")
	since := fs.String("since", "", "range start (RFC3339)")
	until := fs.String("until", "", "range end (RFC3339)")
	file := fs.String("file", "", "ingest batch file (JSON)")
	if err := fs.Parse(rest); err != nil {
		return exitUsage
	}

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to load config: %v\n", err)
		return exitFailure
	}

	if err := logger.Init(
		logger.WithLevel(cfg.LogLevel),
		logger.WithFormat(cfg.LogFormat),
		logger.WithWriter(stderr),
		logger.WithFile(cfg.LogFile, logMaxSizeMB, logMaxBackups, logMaxAgeDays),
	); err != nil {
		_, _ = fmt.Fprintf(stderr, "failed to initialize logging: %v\n", err)
		return exitFailure
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	svc := app.New(cfg, app.WithLogger(log))
	if err := svc.Start(ctx); err != nil {
		log.Error(ctx, "failed to start service", logger.Error(err))
		return exitFailure
	}
	defer svc.Stop()

	switch cmd {
	case "close-once":
		return closeOnce(ctx, svc, *windowID, *force, stdout, log)
	case "preview":
		return preview(ctx, svc, *since, *until, stdout, log)
	case "preview-payouts":
		r, err := svc.PreviewPayouts(ctx, *windowID)
		if err != nil {
			log.Error(ctx, "payout preview failed", logger.String("window_id", *windowID), logger.Error(err))
			return exitFailure
		}
		return printJSON(stdout, r)
	case "export-payouts":
		path, err := svc.ExportPayouts(ctx, *windowID)
		if err != nil {
			log.Error(ctx, "payout export failed", logger.String("window_id", *windowID), logger.Error(err))
			return exitFailure
		}
		_, _ = fmt.Fprintln(stdout, path)
		return exitOK
	case "export-interim":
		from, to, err := parseRange(*since, *until)
		if err != nil {
			log.Error(ctx, "export-interim needs -since and -until in RFC3339", logger.Error(err))
			return exitUsage
		}
		path, err := svc.ExportInterim(ctx, from, to)
		if err != nil {
			log.Error(ctx, "interim export failed", logger.Error(err))
			return exitFailure
		}
		_, _ = fmt.Fprintln(stdout, path)
		return exitOK
	case "ingest":
		if *file == "" {
			_, _ = io.WriteString(stderr, "ingest requires -file\n")
			return exitUsage
		}
		res, err := svc.IngestFile(ctx, *file)
		if err != nil {
			log.Error(ctx, "ingest failed", logger.Error(err))
			return exitFailure
		}
		return printJSON(stdout, res)
	default:
		return serve(ctx, cfg, svc, log)
	}
}

func closeOnce(ctx context.Context, svc *app.Service, windowID string, force bool, stdout io.Writer, log logger.Logger) int {
	r, err := svc.CloseWindow(ctx, windowID, force)
	if err != nil {
		log.Error(ctx, "window not closed", logger.String("window_id", windowID), logger.Error(err))
		return exitNotClose
	}
	if r.Status != model.WindowClosed {
		return exitNotClose
	}
	if n := r.FailedPayouts(); n > 0 {
		log.Warn(ctx, "window closed with failed payouts",
			logger.String("window_id", r.WindowID), logger.Int("failed", n))
	}
	return printJSON(stdout, r)
}

func preview(ctx context.Context, svc *app.Service, since, until string, stdout io.Writer, log logger.Logger) int {
	from, to, err := parseRange(since, until)
	if err != nil {
		log.Error(ctx, "preview needs -since and -until in RFC3339", logger.Error(err))
		return exitUsage
	}
	ranked, err := svc.ScorePreview(ctx, from, to)
	if err != nil {
		log.Error(ctx, "preview failed", logger.Error(err))
		return exitFailure
	}
	return printJSON(stdout, ranked)
}

func parseRange(since, until string) (time.Time, time.Time, error) {
	from, err1 := time.Parse(time.RFC3339, since)
	to, err2 := time.Parse(time.RFC3339, until)
	return from, to, errors.Join(err1, err2)
}

func printJSON(w io.Writer, v any) int {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return exitFailure
	}
	return exitOK
}

// serve runs the API and a scheduler firing at each close slot. Closes
// never overlap within the process; the store lease covers other processes.
func serve(ctx context.Context, cfg *config.Config, svc *app.Service, log logger.Logger) int {
	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	for _, spec := range svc.Calendar().Specs() {
		_, err := sched.AddFunc(spec, func() {
			r, err := svc.CloseWindow(ctx, "", false)
			if err != nil {
				log.Error(ctx, "scheduled close failed", logger.Error(err))
				return
			}
			log.Info(ctx, "scheduled close done",
				logger.String("window_id", r.WindowID),
				logger.Int("failed_payouts", r.FailedPayouts()))
		})
		if err != nil {
			log.Error(ctx, "bad close schedule", logger.String("spec", spec), logger.Error(err))
			return exitFailure
		}
	}
	sched.Start()
	defer func() { <-sched.Stop().Done() }()

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	code := exitOK
	select {
	case <-ctx.Done():
	case err := <-errCh:
		log.Error(ctx, "HTTP server failed", logger.Error(err))
		code = exitFailure
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return code
}
