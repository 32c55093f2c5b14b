package session

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/swiftpost/driveconf/internal/drive"
	"github.com/swiftpost/driveconf/internal/tokenstore"
)

// State is the coordinator's lifecycle state.
type State int

const (
	StateUnauthenticated State = iota
	StateInitializing
	StateReady
	StateSaving
)

func (s State) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateInitializing:
		return "initializing"
	case StateReady:
		return "ready"
	case StateSaving:
		return "saving"
	default:
		return "unknown"
	}
}

// ErrSaveInFlight means SaveData was called while another save was still
// outstanding. Saves are serialized by rejection: the second call does not
// touch local state and the caller retries explicitly.
var ErrSaveInFlight = errors.New("session: a save is already in progress")

// Error messages recorded on the session for display. Unauthorized failures
// never land here; they clear the token and notify the owner instead.
const (
	initFailedMessage = "Failed to synchronize data"
	saveFailedMessage = "Failed to save changes"
)

// Repository is the remote store for the config document. *drive.Client
// satisfies it; tests inject fakes.
type Repository interface {
	FindConfigFile(ctx context.Context, token string) (*drive.File, error)
	SaveConfigFile(ctx context.Context, token string, content any, existingID string) (string, error)
	LoadConfigFile(ctx context.Context, token, fileID string) (json.RawMessage, error)
}

// Snapshot is a read-only view of the session state.
type Snapshot struct {
	State    State
	Document *Document
	FileID   string
	Err      string

	// Cached is true while Document comes from the local snapshot store,
	// before the first successful sync of this session. CachedAt is when
	// that snapshot was written; zero otherwise.
	Cached   bool
	CachedAt time.Time
}

// Coordinator owns the sync session. All state is mutated through its
// operations; network calls run outside the lock with results applied under
// it. A token-expiry observed mid-flight takes effect when the in-flight
// call settles.
type Coordinator struct {
	repo      Repository
	tokens    tokenstore.Store
	snapshots *SnapshotStore // optional, may be nil
	onExpired func()
	logger    *slog.Logger
	now       func() time.Time

	// initGroup collapses concurrent initialization triggers into one run.
	initGroup singleflight.Group

	mu       sync.Mutex
	state    State
	doc      *Document
	fileID   string
	errMsg   string
	cached   bool
	cachedAt time.Time
	initDone bool
}

// NewCoordinator assembles a session. snapshots may be nil to disable the
// local cache; onExpired may be nil. An existing snapshot is preloaded so
// Snapshot() can serve cached state before the first sync.
func NewCoordinator(
	repo Repository,
	tokens tokenstore.Store,
	snapshots *SnapshotStore,
	onExpired func(),
	logger *slog.Logger,
) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}

	c := &Coordinator{
		repo:      repo,
		tokens:    tokens,
		snapshots: snapshots,
		onExpired: onExpired,
		logger:    logger,
		now:       time.Now,
		state:     StateUnauthenticated,
	}

	c.preloadSnapshot()

	return c
}

// Snapshot returns a copy of the current session state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		State:    c.state,
		FileID:   c.fileID,
		Err:      c.errMsg,
		Cached:   c.cached,
		CachedAt: c.cachedAt,
	}

	if c.doc != nil {
		doc := *c.doc
		snap.Document = &doc
	}

	return snap
}

// Initialize runs the one-time find-or-create flow for the current token.
// Re-entrant and duplicate triggers are suppressed: a second call while the
// first is outstanding joins it, and a call after the session is already
// initialized is a no-op. Without a token it does nothing.
func (c *Coordinator) Initialize(ctx context.Context) {
	c.mu.Lock()
	if c.initDone {
		c.mu.Unlock()
		c.logger.Debug("initialize skipped: already initialized")

		return
	}

	c.initDone = true
	c.mu.Unlock()

	c.runInit(ctx)
}

// Refresh re-runs the initialization flow regardless of the one-time guard
// (caller-triggered manual resync).
func (c *Coordinator) Refresh(ctx context.Context) {
	c.mu.Lock()
	c.initDone = true
	c.mu.Unlock()

	c.runInit(ctx)
}

func (c *Coordinator) runInit(ctx context.Context) {
	_, _, _ = c.initGroup.Do("initialize", func() (any, error) {
		c.initialize(ctx)
		return nil, nil
	})
}

// initialize performs find -> load-or-create strictly sequentially: create
// is only attempted after a definitive "not found".
func (c *Coordinator) initialize(ctx context.Context) {
	token := c.tokens.Get()
	if token == "" {
		c.logger.Debug("initialize skipped: no token")

		// Re-arm the guard so the next acquired token triggers a fresh run.
		c.mu.Lock()
		c.initDone = false
		c.mu.Unlock()

		return
	}

	c.mu.Lock()
	c.state = StateInitializing
	c.errMsg = ""
	c.mu.Unlock()

	found, err := c.repo.FindConfigFile(ctx, token)
	if err != nil {
		c.initFailure(ctx, err)
		return
	}

	if found != nil {
		content, err := c.repo.LoadConfigFile(ctx, token, found.ID)
		if err != nil {
			c.initFailure(ctx, err)
			return
		}

		var doc Document
		if err := json.Unmarshal(content, &doc); err != nil {
			c.logger.Warn("config document is not valid JSON",
				slog.String("file_id", found.ID),
				slog.String("error", err.Error()),
			)
			c.initFailure(ctx, err)

			return
		}

		c.becomeReady(ctx, found.ID, doc)

		return
	}

	c.logger.Info("no config file found, creating a new one")

	def := DefaultDocument(c.now())

	id, err := c.repo.SaveConfigFile(ctx, token, def, "")
	if err != nil {
		c.initFailure(ctx, err)
		return
	}

	c.becomeReady(ctx, id, def)
}

// initFailure records a non-auth initialization failure as session state:
// no document loaded, message set, token retained so the user may retry.
// Unauthorized instead expires the session.
func (c *Coordinator) initFailure(ctx context.Context, err error) {
	if errors.Is(err, drive.ErrUnauthorized) {
		c.expire(ctx)
		return
	}

	c.logger.Warn("sync initialization failed", slog.String("error", err.Error()))

	c.mu.Lock()
	c.state = StateReady
	c.errMsg = initFailedMessage
	c.mu.Unlock()
}

// becomeReady applies a successful init result and persists the snapshot.
func (c *Coordinator) becomeReady(ctx context.Context, fileID string, doc Document) {
	c.mu.Lock()
	c.state = StateReady
	c.fileID = fileID
	c.doc = &doc
	c.errMsg = ""
	c.cached = false
	c.cachedAt = time.Time{}
	c.mu.Unlock()

	c.logger.Info("session ready", slog.String("file_id", fileID))
	c.persistSnapshot(ctx, fileID, doc)
}

// SaveData writes the new document. The local document is updated
// optimistically before the network call; a non-auth failure keeps the
// optimistic value, records a generic save error, and does not retry.
// A save issued while another is outstanding is rejected with
// ErrSaveInFlight. With no known file handle the save creates the document
// and caches the returned handle.
func (c *Coordinator) SaveData(ctx context.Context, doc Document) error {
	token := c.tokens.Get()
	if token == "" {
		c.logger.Warn("save skipped: not authenticated")
		return nil
	}

	c.mu.Lock()

	if c.state == StateSaving {
		c.mu.Unlock()
		return ErrSaveInFlight
	}

	// Optimistic update: local state changes before the network call.
	optimistic := doc
	c.doc = &optimistic
	c.state = StateSaving
	c.errMsg = ""
	c.cached = false
	c.cachedAt = time.Time{}
	existingID := c.fileID
	c.mu.Unlock()

	id, err := c.repo.SaveConfigFile(ctx, token, doc, existingID)
	if err != nil {
		c.saveFailure(ctx, err)
		return nil
	}

	c.mu.Lock()
	c.state = StateReady
	c.fileID = id
	c.errMsg = ""
	c.mu.Unlock()

	c.persistSnapshot(ctx, id, doc)

	return nil
}

// saveFailure handles a failed save: Unauthorized expires the session; any
// other error returns to Ready keeping the optimistic value. If the remote
// document vanished out-of-band the stale handle is dropped so the next
// refresh rediscovers or recreates it.
func (c *Coordinator) saveFailure(ctx context.Context, err error) {
	if errors.Is(err, drive.ErrUnauthorized) {
		c.expire(ctx)
		return
	}

	c.logger.Warn("save failed", slog.String("error", err.Error()))

	c.mu.Lock()
	c.state = StateReady
	c.errMsg = saveFailedMessage

	if errors.Is(err, drive.ErrNotFound) {
		c.fileID = ""
	}
	c.mu.Unlock()
}

// HandleTokenChange reacts to an external token change (another execution
// context sharing the same storage scope). The session is torn down; a
// non-empty new token triggers a fresh initialization.
func (c *Coordinator) HandleTokenChange(ctx context.Context, token string) {
	c.teardown(ctx)

	if token != "" {
		c.Initialize(ctx)
	}
}

// Logout clears the token and tears the session down without firing the
// expiry notification.
func (c *Coordinator) Logout(ctx context.Context) {
	c.tokens.Set("")
	c.teardown(ctx)
	c.logger.Info("logged out")
}

// expire handles token expiry: clear the token, tear down, notify the owner
// so it can re-run the auth flow. Unauthorized is never surfaced as a
// display error.
func (c *Coordinator) expire(ctx context.Context) {
	c.tokens.Set("")
	c.teardown(ctx)
	c.logger.Info("session expired")

	if c.onExpired != nil {
		c.onExpired()
	}
}

// teardown clears all session fields and the persisted snapshot.
func (c *Coordinator) teardown(ctx context.Context) {
	c.mu.Lock()
	c.state = StateUnauthenticated
	c.doc = nil
	c.fileID = ""
	c.errMsg = ""
	c.cached = false
	c.cachedAt = time.Time{}
	c.initDone = false
	c.mu.Unlock()

	if c.snapshots != nil {
		if err := c.snapshots.Clear(ctx); err != nil {
			c.logger.Warn("clearing snapshot failed", slog.String("error", err.Error()))
		}
	}
}

// preloadSnapshot serves the last persisted state while the session is
// still unauthenticated or initializing.
func (c *Coordinator) preloadSnapshot() {
	if c.snapshots == nil {
		return
	}

	snap, err := c.snapshots.Get(context.Background())
	if err != nil {
		c.logger.Warn("loading snapshot failed", slog.String("error", err.Error()))
		return
	}

	if snap == nil {
		return
	}

	doc := snap.Document

	c.mu.Lock()
	c.doc = &doc
	c.fileID = snap.FileID
	c.cached = true
	c.cachedAt = snap.UpdatedAt
	c.mu.Unlock()

	c.logger.Debug("preloaded cached session snapshot",
		slog.String("file_id", snap.FileID),
		slog.Time("updated_at", snap.UpdatedAt),
	)
}

func (c *Coordinator) persistSnapshot(ctx context.Context, fileID string, doc Document) {
	if c.snapshots == nil {
		return
	}

	if err := c.snapshots.Save(ctx, fileID, doc, c.now()); err != nil {
		c.logger.Warn("persisting snapshot failed", slog.String("error", err.Error()))
	}
}
