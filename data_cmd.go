package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/swiftpost/driveconf/internal/session"
)

// flagWatch keeps `sync` running, resyncing on external token changes.
var flagWatch bool

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get",
		Short: "Show the synchronized config document",
		RunE:  runGet,
	}
}

func newSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:       "set theme <light|dark>",
		Short:     "Update the config document and save it to Drive",
		Args:      cobra.ExactArgs(2),
		ValidArgs: []string{"theme"},
		RunE:      runSet,
	}
}

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Force a resync with the remote document",
		RunE:  runSync,
	}

	cmd.Flags().BoolVar(&flagWatch, "watch", false,
		"keep running and resync when another process changes the stored token")

	return cmd
}

func runGet(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	coord, _, cleanup := buildSession(logger)
	defer cleanup()

	coord.Initialize(cmd.Context())

	return printSession(coord.Snapshot())
}

func runSet(cmd *cobra.Command, args []string) error {
	logger := buildLogger()
	ctx := cmd.Context()

	if args[0] != "theme" {
		return fmt.Errorf("unknown setting %q (valid: theme)", args[0])
	}

	theme := args[1]
	if theme != session.ThemeLight && theme != session.ThemeDark {
		return fmt.Errorf("invalid theme %q (valid: %s, %s)", theme, session.ThemeLight, session.ThemeDark)
	}

	coord, _, cleanup := buildSession(logger)
	defer cleanup()

	coord.Initialize(ctx)

	snap := coord.Snapshot()
	if snap.Document == nil {
		if snap.Err != "" {
			return fmt.Errorf("cannot save: %s", snap.Err)
		}

		return fmt.Errorf("not logged in, run 'driveconf login' first")
	}

	doc := *snap.Document
	doc.Theme = theme
	doc.LastActive = time.Now().UnixMilli()

	if err := coord.SaveData(ctx, doc); err != nil {
		return err
	}

	snap = coord.Snapshot()
	if snap.Err != "" {
		return fmt.Errorf("%s", snap.Err)
	}

	statusf("Saved.\n")

	return printSession(snap)
}

func runSync(cmd *cobra.Command, _ []string) error {
	logger := buildLogger()

	coord, tokens, cleanup := buildSession(logger)
	defer cleanup()

	coord.Refresh(cmd.Context())

	if err := printSession(coord.Snapshot()); err != nil {
		return err
	}

	if !flagWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	statusf("Watching for token changes. Press Ctrl-C to stop.\n")

	return tokens.Watch(ctx, func(token string) {
		coord.HandleTokenChange(ctx, token)

		if err := printSession(coord.Snapshot()); err != nil {
			logger.Warn("printing session failed", slog.String("error", err.Error()))
		}
	})
}
