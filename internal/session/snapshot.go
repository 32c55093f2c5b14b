package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// busyTimeoutMS is the SQLite busy_timeout pragma value.
const busyTimeoutMS = 5000

// SnapshotStore caches the last-known session state (remote file handle
// plus document) in an embedded SQLite database so a restarted shell can
// display cached state before the first resync completes. It is a read
// cache, not a write queue: nothing is replayed from it.
type SnapshotStore struct {
	db     *sql.DB
	logger *slog.Logger

	getStmt   *sql.Stmt
	saveStmt  *sql.Stmt
	clearStmt *sql.Stmt
}

// StoredSnapshot is one persisted session snapshot.
type StoredSnapshot struct {
	FileID    string
	Document  Document
	UpdatedAt time.Time
}

// NewSnapshotStore opens (or creates) the snapshot database at dbPath,
// applies migrations, and prepares the statements. Use ":memory:" for tests.
func NewSnapshotStore(dbPath string, logger *slog.Logger) (*SnapshotStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("session: open sqlite: %w", err)
	}

	ctx := context.Background()

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &SnapshotStore{db: db, logger: logger}
	if err := s.prepare(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		fmt.Sprintf("PRAGMA busy_timeout = %d", busyTimeoutMS),
		"PRAGMA synchronous = NORMAL",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("session: %s: %w", p, err)
		}
	}

	return nil
}

func (s *SnapshotStore) prepare(ctx context.Context) error {
	var err error

	s.getStmt, err = s.db.PrepareContext(ctx,
		`SELECT file_id, document, updated_at FROM session_snapshot WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("session: preparing get: %w", err)
	}

	s.saveStmt, err = s.db.PrepareContext(ctx,
		`INSERT INTO session_snapshot (id, file_id, document, updated_at) VALUES (1, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET file_id = excluded.file_id,
		 document = excluded.document, updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("session: preparing save: %w", err)
	}

	s.clearStmt, err = s.db.PrepareContext(ctx,
		`DELETE FROM session_snapshot WHERE id = 1`)
	if err != nil {
		return fmt.Errorf("session: preparing clear: %w", err)
	}

	return nil
}

// Get returns the persisted snapshot, or nil when none exists.
func (s *SnapshotStore) Get(ctx context.Context) (*StoredSnapshot, error) {
	var (
		fileID    string
		docJSON   string
		updatedAt int64
	)

	err := s.getStmt.QueryRowContext(ctx).Scan(&fileID, &docJSON, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "no snapshot"
	}

	if err != nil {
		return nil, fmt.Errorf("session: reading snapshot: %w", err)
	}

	var doc Document
	if err := json.Unmarshal([]byte(docJSON), &doc); err != nil {
		return nil, fmt.Errorf("session: decoding snapshot document: %w", err)
	}

	return &StoredSnapshot{
		FileID:    fileID,
		Document:  doc,
		UpdatedAt: time.UnixMilli(updatedAt),
	}, nil
}

// Save upserts the single snapshot row.
func (s *SnapshotStore) Save(ctx context.Context, fileID string, doc Document, now time.Time) error {
	docJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("session: encoding snapshot document: %w", err)
	}

	if _, err := s.saveStmt.ExecContext(ctx, fileID, string(docJSON), now.UnixMilli()); err != nil {
		return fmt.Errorf("session: writing snapshot: %w", err)
	}

	return nil
}

// Clear removes the persisted snapshot.
func (s *SnapshotStore) Clear(ctx context.Context) error {
	if _, err := s.clearStmt.ExecContext(ctx); err != nil {
		return fmt.Errorf("session: clearing snapshot: %w", err)
	}

	return nil
}

// Close releases prepared statements and the database handle.
func (s *SnapshotStore) Close() error {
	for _, stmt := range []*sql.Stmt{s.getStmt, s.saveStmt, s.clearStmt} {
		if stmt != nil {
			_ = stmt.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("session: closing snapshot database: %w", err)
	}

	return nil
}
