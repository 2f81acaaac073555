package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/fieldops/fieldsync/internal/config"
	"github.com/fieldops/fieldsync/internal/engine"
	"github.com/fieldops/fieldsync/internal/feed"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagAPIURL     string
	flagDBPath     string
	flagTeamID     int64
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by
// PersistentPreRunE. It is available to all subcommands after the root
// pre-run phase completes.
var resolvedCfg *config.Config

// httpClientTimeout is the default timeout for HTTP requests. Prevents
// hung connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	timeout := httpClientTimeout

	if resolvedCfg != nil {
		if d, err := time.ParseDuration(resolvedCfg.Network.DataTimeout); err == nil {
			timeout = d
		}
	}

	return &http.Client{Timeout: timeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "fieldsync",
		Short:   "Field response team sync client",
		Long:    "An offline-capable client for emergency field response teams: assigned incidents, care report drafts, and dispatch alerts.",
		Version: version,
		// Silence Cobra's default error/usage printing — we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "incident store base URL")
	cmd.PersistentFlags().StringVar(&flagDBPath, "db", "", "draft database path")
	cmd.PersistentFlags().Int64Var(&flagTeamID, "team", 0, "response team id")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	// Register subcommands.
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRefreshCmd())
	cmd.AddCommand(newDraftsCmd())
	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newRespondCmd())
	cmd.AddCommand(newAlertsCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the override chain
// and stores the result in resolvedCfg for use by subcommands.
func loadConfig(cmd *cobra.Command) error {
	cli := config.CLIOverrides{
		ConfigPath: flagConfigPath,
		APIBaseURL: flagAPIURL,
		DBPath:     flagDBPath,
	}

	// Only pass --team to the resolver if the user explicitly set it.
	if cmd.Flags().Changed("team") {
		cli.TeamID = &flagTeamID
	}

	env := config.ReadEnvOverrides()

	resolved, err := config.Resolve(env, cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	resolvedCfg = resolved

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	// CLI flags override config (highest priority).
	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	format := "auto"
	if resolvedCfg != nil {
		format = resolvedCfg.Logging.LogFormat
	}

	switch format {
	case "json":
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	case "text":
		return slog.New(slog.NewTextHandler(os.Stderr, opts))
	default:
		// auto: JSON when piped, text on a terminal.
		if isatty.IsTerminal(os.Stderr.Fd()) {
			return slog.New(slog.NewTextHandler(os.Stderr, opts))
		}

		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
}

// buildEngine wires the full engine stack from the resolved configuration.
// The returned engine owns the draft database; callers must Close it.
func buildEngine(logger *slog.Logger) (*engine.Engine, *feed.Client, error) {
	store, err := engine.NewSQLiteStore(resolvedCfg.Storage.DBPath, logger)
	if err != nil {
		return nil, nil, err
	}

	client := feed.NewClient(
		resolvedCfg.API.BaseURL,
		defaultHTTPClient(),
		feed.StaticToken(resolvedCfg.API.Token),
		logger,
	)

	eng := engine.New(engine.Options{
		Store:        store,
		Feed:         client,
		Connectivity: engine.ProbeConnectivity(resolvedCfg.API.BaseURL),
		TeamID:       resolvedCfg.Session.TeamID,
		UserID:       resolvedCfg.Session.UserID,
		Logger:       logger,
	})

	return eng, client, nil
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
