package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/swiftpost/driveconf/internal/session"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(format string, args ...any) {
	if !flagQuiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// stdoutIsTerminal reports whether stdout is an interactive terminal.
// Piped output gets machine-readable JSON even without --json.
func stdoutIsTerminal() bool {
	return isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
}

// sessionOutput is the JSON schema for get/set/sync output.
type sessionOutput struct {
	State    string            `json:"state"`
	FileID   string            `json:"file_id,omitempty"`
	Document *session.Document `json:"document,omitempty"`
	Cached   bool              `json:"cached"`
	Error    string            `json:"error,omitempty"`
}

// printSession renders a session snapshot: human-readable text on a
// terminal, JSON when piped or when --json is set.
func printSession(snap session.Snapshot) error {
	if flagJSON || !stdoutIsTerminal() {
		out := sessionOutput{
			State:    snap.State.String(),
			FileID:   snap.FileID,
			Document: snap.Document,
			Cached:   snap.Cached,
			Error:    snap.Err,
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	if snap.Document == nil {
		if snap.Err != "" {
			fmt.Printf("No config document (%s)\n", snap.Err)
		} else {
			fmt.Println("No config document. Run 'driveconf login' first.")
		}

		return nil
	}

	source := "synced"
	if snap.Cached {
		source = "cached"
	}

	fmt.Printf("theme:      %s\n", snap.Document.Theme)
	fmt.Printf("lastActive: %s\n", formatTimestamp(snap.Document.LastActive))
	fmt.Printf("source:     %s\n", source)

	if snap.Err != "" {
		fmt.Printf("error:      %s\n", snap.Err)
	}

	return nil
}

// formatTimestamp renders a millisecond epoch timestamp compactly.
func formatTimestamp(ms int64) string {
	if ms == 0 {
		return "never"
	}

	t := time.UnixMilli(ms)
	now := time.Now()

	// Same calendar year: show "Jan  2 15:04"
	if t.Year() == now.Year() {
		return t.Format("Jan _2 15:04")
	}

	return t.Format("Jan _2  2006")
}
