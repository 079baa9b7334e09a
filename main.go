package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/natefinch/lumberjack.v2"

	commands "github.com/dhcgn/mailscan-to-drive/cmd"
	"github.com/dhcgn/mailscan-to-drive/config"
	"github.com/dhcgn/mailscan-to-drive/credential"
	"github.com/dhcgn/mailscan-to-drive/destination"
	"github.com/dhcgn/mailscan-to-drive/destination/gdrive"
	"github.com/dhcgn/mailscan-to-drive/feed"
	"github.com/dhcgn/mailscan-to-drive/filter"
	"github.com/dhcgn/mailscan-to-drive/ledger"
	"github.com/dhcgn/mailscan-to-drive/mover"
	"github.com/dhcgn/mailscan-to-drive/progress"
	"github.com/dhcgn/mailscan-to-drive/resolve"
	"github.com/dhcgn/mailscan-to-drive/runner"
	"github.com/dhcgn/mailscan-to-drive/stats"
)

const metricsPushTimeout = 10 * time.Second

func main() {
	secrets := credential.New(credential.Options{})

	rootCmd := &cobra.Command{
		Use:          "mailscan-to-drive",
		Short:        "File scanned mail from the Stable API into Google Drive folders",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(cmd, config.LoadOptions{
				RequireAPIKey: true,
				Secrets:       secrets,
				SecretKey:     credential.APIKeyName,
			})
			if err != nil {
				return err
			}

			logger, cleanup, err := setupLogger(cfg)
			if err != nil {
				return err
			}
			defer func() {
				_ = cleanup()
			}()

			logger.Info("starting mailscan-to-drive",
				"destination", cfg.Destination,
				"ledger", cfg.Ledger,
				"matchPolicy", cfg.MatchPolicy,
				"dryRun", cfg.DryRun,
			)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return run(ctx, cfg, logger)
		},
	}

	if err := config.RegisterFlags(rootCmd); err != nil {
		fmt.Fprintf(os.Stderr, "failed to register CLI flags: %v\n", err)
		os.Exit(1)
	}
	commands.AddCommands(rootCmd, commands.Env{
		Secrets: secrets,
		Keyring: secrets,
		Logger:  setupLogger,
		Store:   openStore,
		Ledger:  openLedger,
	})

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	feedClient, err := feed.NewClient(feed.Options{
		URL:               cfg.FeedURL,
		APIKey:            cfg.APIKey,
		PageSize:          cfg.PageSize,
		RequestsPerSecond: cfg.FeedRate,
		MaxRetries:        cfg.FeedRetries,
		HTTPClient:        httpClient,
	}, logger)
	if err != nil {
		return fmt.Errorf("feed.NewClient: %w", err)
	}

	led, err := openLedger(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	defer func() {
		if err := led.Close(); err != nil {
			logger.Warn("close ledger", "err", err)
		}
	}()

	store, err := openStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open destination: %w", err)
	}
	if cfg.DryRun {
		store = destination.DryRun(store, logger)
		led = ledger.DryRun(led, logger)
	}

	resolver, err := resolve.New(store, resolve.Options{
		Policy:            resolve.Policy(cfg.MatchPolicy),
		Threshold:         cfg.MatchThreshold,
		DefaultFolderName: cfg.DefaultFolder,
		RootID:            cfg.RootFolderID,
		Recursive:         cfg.Recursive,
		ReuseListing:      cfg.ReuseListing,
	}, logger)
	if err != nil {
		return fmt.Errorf("resolve.New: %w", err)
	}

	flt, err := filter.New(filter.Options{Include: cfg.IncludeRecipient, Exclude: cfg.ExcludeRecipient})
	if err != nil {
		return fmt.Errorf("filter.New: %w", err)
	}
	opts := runner.Options{Status: cfg.Status, DryRun: cfg.DryRun}
	if flt.Active() {
		opts.Filter = flt
	}

	mv := mover.New(store, mover.Options{HTTPClient: httpClient, ScratchDir: cfg.ScratchDir}, logger)
	r := runner.New(feedClient, led, resolver, mv, opts, logger)
	r.AddSink(progress.New(cfg.LogLevel))

	var metrics *stats.Metrics
	if cfg.MetricsPushgateway != "" {
		metrics = stats.NewMetrics()
		r.AddSink(metrics)
	}

	summary, runErr := r.Run(ctx)

	if metrics != nil {
		metrics.ObserveRun(time.Now(), summary.Duration)
		// The run context may already be cancelled.
		pushCtx, cancel := context.WithTimeout(context.Background(), metricsPushTimeout)
		defer cancel()
		if err := metrics.Push(pushCtx, cfg.MetricsPushgateway, cfg.MetricsJob); err != nil {
			logger.Error("push metrics failed", "err", err)
		}
	}

	return runErr
}

func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (destination.Store, error) {
	switch cfg.Destination {
	case config.DestinationLocal:
		return destination.NewLocal(cfg.LocalRoot, 0)
	default:
		return gdrive.New(ctx, gdrive.Options{
			CredentialsFile: cfg.DriveCredentials,
			CallTimeout:     2 * cfg.HTTPTimeout,
		}, logger)
	}
}

func openLedger(ctx context.Context, cfg config.Config, logger *slog.Logger) (ledger.Ledger, error) {
	return ledger.Open(ctx, ledger.Options{
		Backend:  ledger.Backend(cfg.Ledger),
		DSN:      cfg.LedgerDSN,
		StateDir: cfg.StateDir,
	}, logger)
}

func setupLogger(cfg config.Config) (*slog.Logger, func() error, error) {
	level := new(slog.LevelVar)
	level.Set(slog.LevelInfo)

	switch cfg.LogLevel {
	case "debug":
		level.Set(slog.LevelDebug)
	case "info":
		level.Set(slog.LevelInfo)
	case "warn":
		level.Set(slog.LevelWarn)
	case "error":
		level.Set(slog.LevelError)
	}

	opts := &slog.HandlerOptions{Level: level}
	cleanup := func() error { return nil }

	var out io.Writer = os.Stdout
	if cfg.LogDir != "" {
		if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
			return nil, cleanup, err
		}

		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(cfg.LogDir, "mailscan-to-drive.log"),
			MaxSize:    10,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotated)
		cleanup = rotated.Close
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}
	return slog.New(handler), cleanup, nil
}
