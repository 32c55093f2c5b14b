package tokenstore

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Backoff for sustained watcher errors (e.g. kernel buffer overflow).
const (
	watchErrInitBackoff = 100 * time.Millisecond
	watchErrMaxBackoff  = 5 * time.Second
	watchErrBackoffMult = 2
)

// Watch observes the token file for changes made by another process sharing
// the same storage scope and invokes onChange with the new value (empty
// string when the file is removed). Blocks until ctx is canceled. Changes
// made through this store's own Set are also observed; onChange fires only
// when the value actually differs from the cached one, so self-writes are
// coalesced away.
func (s *FileStore) Watch(ctx context.Context, onChange func(token string)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("tokenstore: creating watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory, not the file: atomic rename replaces the inode,
	// and the file may not exist yet.
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		return fmt.Errorf("tokenstore: creating token directory: %w", err)
	}

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("tokenstore: watching %s: %w", dir, err)
	}

	s.logger.Debug("watching token file", slog.String("path", s.path))

	errBackoff := watchErrInitBackoff

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			s.handleEvent(event, onChange)

			errBackoff = watchErrInitBackoff

		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}

			s.logger.Warn("token watcher error",
				slog.String("error", watchErr.Error()),
				slog.Duration("backoff", errBackoff),
			)

			// Backoff prevents a tight loop under sustained errors.
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(errBackoff):
			}

			errBackoff *= watchErrBackoffMult
			if errBackoff > watchErrMaxBackoff {
				errBackoff = watchErrMaxBackoff
			}
		}
	}
}

// handleEvent reloads the token after a relevant filesystem event and
// notifies when the value changed.
func (s *FileStore) handleEvent(event fsnotify.Event, onChange func(token string)) {
	if filepath.Clean(event.Name) != filepath.Clean(s.path) {
		return
	}

	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return
	}

	current := s.read()

	s.mu.Lock()
	changed := current != s.cached
	s.cached = current
	s.mu.Unlock()

	if !changed {
		return
	}

	s.logger.Debug("token changed externally", slog.Bool("present", current != ""))
	onChange(current)
}
