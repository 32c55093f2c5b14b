package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/swiftpost/driveconf/internal/config"
	"github.com/swiftpost/driveconf/internal/drive"
	"github.com/swiftpost/driveconf/internal/session"
	"github.com/swiftpost/driveconf/internal/tokenstore"
)

// version is set at build time via ldflags.
var version = "dev"

// Global persistent flags, bound in newRootCmd().
var (
	flagConfigPath string
	flagClientID   string
	flagJSON       bool
	flagVerbose    bool
	flagQuiet      bool
)

// resolvedCfg holds the effective configuration loaded by PersistentPreRunE.
var resolvedCfg *config.Config

// httpClientTimeout is the default timeout for HTTP requests. Prevents hung
// connections from blocking CLI commands indefinitely.
const httpClientTimeout = 30 * time.Second

// defaultHTTPClient returns an HTTP client with a sensible timeout.
func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: httpClientTimeout}
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "driveconf",
		Short:   "Sync an app config document to Google Drive app storage",
		Long: "driveconf authenticates against Google Drive and keeps a single JSON\n" +
			"config document synchronized in the application's private storage area.",
		Version: version,
		// Errors are printed once by exitOnError, not by cobra.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := config.Resolve(flagConfigPath, flagClientID)
			if err != nil {
				return err
			}

			resolvedCfg = cfg

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flagClientID, "client-id", "", "OAuth2 client id override")
	cmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newLogoutCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newGetCmd())
	cmd.AddCommand(newSetCmd())
	cmd.AddCommand(newSyncCmd())

	return cmd
}

// buildLogger constructs the slog logger for a command invocation.
// Config sets the base level; CLI flags override it.
func buildLogger() *slog.Logger {
	level := slog.LevelInfo

	if resolvedCfg != nil {
		switch resolvedCfg.Logging.Level {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}
	}

	if flagVerbose {
		level = slog.LevelDebug
	}

	if flagQuiet {
		level = slog.LevelError
	}

	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// buildSession assembles the token store, drive client, snapshot store, and
// coordinator from the resolved config. The returned cleanup closes the
// snapshot database.
func buildSession(logger *slog.Logger) (*session.Coordinator, *tokenstore.FileStore, func()) {
	tokens := tokenstore.NewFileStore(resolvedCfg.Storage.TokenPath, logger)

	client := drive.NewClient(
		resolvedCfg.Drive.BaseURL,
		resolvedCfg.Drive.UploadURL,
		defaultHTTPClient(),
		logger,
	)

	snapshots, err := session.NewSnapshotStore(resolvedCfg.Storage.SnapshotPath, logger)
	if err != nil {
		// The snapshot cache is an optimization; a broken cache database
		// must not lock the user out of their remote data.
		logger.Warn("snapshot store unavailable, continuing without cache",
			slog.String("error", err.Error()),
		)

		snapshots = nil
	}

	onExpired := func() {
		fmt.Fprintln(os.Stderr, "Session expired. Run 'driveconf login' to reconnect.")
	}

	coord := session.NewCoordinator(client, tokens, snapshots, onExpired, logger)

	cleanup := func() {
		if snapshots != nil {
			if err := snapshots.Close(); err != nil {
				logger.Warn("closing snapshot store failed", slog.String("error", err.Error()))
			}
		}
	}

	return coord, tokens, cleanup
}

// openBrowser launches the system browser at the given URL.
func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
