package tokenstore

import (
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// FilePerms restricts the token file to owner-only read/write.
const FilePerms = 0o600

// DirPerms is used when creating the token directory.
const DirPerms = 0o700

// FileStore is a Store backed by a single file under a session-scoped
// directory. Writes are atomic (write-to-temp + rename); all storage
// failures are logged and swallowed, with the in-memory value staying
// authoritative. Token values are never logged.
type FileStore struct {
	path   string
	logger *slog.Logger

	mu     sync.Mutex
	cached string
}

// NewFileStore creates a file-backed store and loads any existing token.
func NewFileStore(path string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}

	s := &FileStore{path: path, logger: logger}
	s.cached = s.read()

	return s
}

// Get returns the current token, or "" when none is stored.
func (s *FileStore) Get() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.cached
}

// Set stores the token, or clears it when empty.
func (s *FileStore) Set(token string) {
	s.mu.Lock()
	s.cached = token
	s.mu.Unlock()

	if token == "" {
		s.remove()
		return
	}

	s.write(token)
}

// read loads the token from disk. Missing file means no token; any other
// failure is logged and treated the same.
func (s *FileStore) read() string {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return ""
	}

	if err != nil {
		s.logger.Warn("reading token file failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)

		return ""
	}

	return strings.TrimSpace(string(data))
}

// write persists the token atomically: temp file in the same directory,
// then rename. Same directory guarantees same filesystem for rename(2).
func (s *FileStore) write(token string) {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, DirPerms); err != nil {
		s.logger.Warn("creating token directory failed",
			slog.String("path", dir),
			slog.String("error", err.Error()),
		)

		return
	}

	tmp, err := os.CreateTemp(dir, ".token-*.tmp")
	if err != nil {
		s.logger.Warn("creating temp token file failed", slog.String("error", err.Error()))
		return
	}

	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if err := os.Chmod(tmpPath, FilePerms); err != nil {
		tmp.Close()
		s.logger.Warn("setting token file permissions failed", slog.String("error", err.Error()))

		return
	}

	if _, err := tmp.WriteString(token + "\n"); err != nil {
		tmp.Close()
		s.logger.Warn("writing token file failed", slog.String("error", err.Error()))

		return
	}

	if err := tmp.Close(); err != nil {
		s.logger.Warn("closing token file failed", slog.String("error", err.Error()))
		return
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		s.logger.Warn("renaming token file failed", slog.String("error", err.Error()))
		return
	}

	success = true
}

// remove deletes the token file. Already-absent is not an error.
func (s *FileStore) remove() {
	err := os.Remove(s.path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("removing token file failed",
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
	}
}
