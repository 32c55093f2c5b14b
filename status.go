package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/swiftpost/driveconf/internal/session"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show session state without touching the network",
		RunE:  runStatus,
	}
}

// statusOutput is the JSON schema for `status --json`.
type statusOutput struct {
	State       string            `json:"state"`
	TokenStored bool              `json:"token_stored"`
	FileID      string            `json:"file_id,omitempty"`
	Document    *session.Document `json:"document,omitempty"`
	Cached      bool              `json:"cached"`
	CachedAt    string            `json:"cached_at,omitempty"`
	Error       string            `json:"error,omitempty"`
}

func runStatus(_ *cobra.Command, _ []string) error {
	logger := buildLogger()

	coord, tokens, cleanup := buildSession(logger)
	defer cleanup()

	snap := coord.Snapshot()
	out := statusOutput{
		State:       snap.State.String(),
		TokenStored: tokens.Get() != "",
		FileID:      snap.FileID,
		Document:    snap.Document,
		Cached:      snap.Cached,
		Error:       snap.Err,
	}
	if snap.Cached && !snap.CachedAt.IsZero() {
		out.CachedAt = snap.CachedAt.Format(time.RFC3339)
	}

	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")

		return enc.Encode(out)
	}

	fmt.Printf("State:  %s\n", out.State)
	fmt.Printf("Token:  %s\n", presence(out.TokenStored))

	if out.Document != nil {
		source := "synced"
		if out.Cached {
			source = "cached"

			if !snap.CachedAt.IsZero() {
				source = fmt.Sprintf("cached %s ago", time.Since(snap.CachedAt).Round(time.Minute))
			}
		}

		fmt.Printf("Config: theme=%s lastActive=%s (%s)\n",
			out.Document.Theme, formatTimestamp(out.Document.LastActive), source)
	}

	if out.Error != "" {
		fmt.Printf("Error:  %s\n", out.Error)
	}

	return nil
}

func presence(stored bool) string {
	if stored {
		return "stored"
	}

	return "absent"
}
