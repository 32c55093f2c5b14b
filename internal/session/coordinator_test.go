package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftpost/driveconf/internal/drive"
	"github.com/swiftpost/driveconf/internal/tokenstore"
)

// fakeRepo is a scriptable Repository.
type fakeRepo struct {
	mu sync.Mutex

	findResult *drive.File
	findErr    error

	loadContent json.RawMessage
	loadErr     error

	saveID  string
	saveErr error

	findCalls int
	loadCalls int
	saveCalls int

	lastSaveExisting string
	lastSaveContent  any

	// When non-nil, SaveConfigFile signals saveStarted and then blocks
	// until saveRelease closes.
	saveStarted chan struct{}
	saveRelease chan struct{}
}

func (f *fakeRepo) FindConfigFile(_ context.Context, _ string) (*drive.File, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.findCalls++

	return f.findResult, f.findErr
}

func (f *fakeRepo) LoadConfigFile(_ context.Context, _, _ string) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.loadCalls++

	return f.loadContent, f.loadErr
}

func (f *fakeRepo) SaveConfigFile(_ context.Context, _ string, content any, existingID string) (string, error) {
	f.mu.Lock()
	f.saveCalls++
	f.lastSaveExisting = existingID
	f.lastSaveContent = content
	started := f.saveStarted
	release := f.saveRelease
	saveID, saveErr := f.saveID, f.saveErr
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
		<-release
	}

	return saveID, saveErr
}

func unauthorizedErr() error {
	return &drive.APIError{StatusCode: http.StatusUnauthorized, Message: "expired", Err: drive.ErrUnauthorized}
}

func serverErr() error {
	return &drive.APIError{StatusCode: http.StatusInternalServerError, Message: "boom"}
}

// testSession wires a coordinator with a fake repo, an in-memory token
// store holding token, and an expiry counter.
func testSession(t *testing.T, repo *fakeRepo, token string) (*Coordinator, *tokenstore.Memory, *atomic.Int32) {
	t.Helper()

	tokens := &tokenstore.Memory{}
	tokens.Set(token)

	var expired atomic.Int32
	onExpired := func() { expired.Add(1) }

	c := NewCoordinator(repo, tokens, nil, onExpired, slog.Default())

	return c, tokens, &expired
}

func TestInitialize_CreatesWhenAbsent(t *testing.T) {
	// Scenario A: no existing document -> create with defaults.
	repo := &fakeRepo{saveID: "NEW1"}

	c, tokens, expired := testSession(t, repo, "T1")
	c.Initialize(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "NEW1", snap.FileID)
	require.NotNil(t, snap.Document)
	assert.Equal(t, ThemeLight, snap.Document.Theme)
	assert.NotZero(t, snap.Document.LastActive)
	assert.Empty(t, snap.Err)
	assert.False(t, snap.Cached)

	// Creation only after a definitive "not found", never a load.
	assert.Equal(t, 1, repo.findCalls)
	assert.Equal(t, 0, repo.loadCalls)
	assert.Equal(t, 1, repo.saveCalls)
	assert.Empty(t, repo.lastSaveExisting)

	assert.Equal(t, "T1", tokens.Get())
	assert.Zero(t, expired.Load())
}

func TestInitialize_LoadsWhenFound(t *testing.T) {
	// Scenario B: document exists -> load it, no save.
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, _, _ := testSession(t, repo, "T1")
	c.Initialize(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, "F1", snap.FileID)
	require.NotNil(t, snap.Document)
	assert.Equal(t, ThemeDark, snap.Document.Theme)
	assert.Equal(t, int64(1000), snap.Document.LastActive)

	// No duplicate creation when a match exists.
	assert.Equal(t, 0, repo.saveCalls)
}

func TestInitialize_IdempotentDiscovery(t *testing.T) {
	// Two initializations with no intervening write yield the same handle.
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, _, _ := testSession(t, repo, "T1")

	c.Initialize(context.Background())
	first := c.Snapshot().FileID

	c.Refresh(context.Background())
	second := c.Snapshot().FileID

	assert.Equal(t, "F1", first)
	assert.Equal(t, first, second)
	assert.Equal(t, 2, repo.findCalls)
}

func TestInitialize_SecondCallIsNoOp(t *testing.T) {
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, _, _ := testSession(t, repo, "T1")

	c.Initialize(context.Background())
	c.Initialize(context.Background())

	assert.Equal(t, 1, repo.findCalls, "duplicate trigger must be suppressed")

	// A manual refresh is allowed to re-run even though the guard tripped.
	c.Refresh(context.Background())
	assert.Equal(t, 2, repo.findCalls)
}

func TestInitialize_NoToken(t *testing.T) {
	repo := &fakeRepo{}

	c, _, _ := testSession(t, repo, "")
	c.Initialize(context.Background())

	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	assert.Zero(t, repo.findCalls)

	// Acquiring a token later re-arms the automatic first run.
	c2, tokens, _ := testSession(t, repo, "")
	c2.Initialize(context.Background())
	tokens.Set("T1")
	c2.Initialize(context.Background())

	assert.NotZero(t, repo.findCalls)
}

func TestInitialize_ExpiryPropagation(t *testing.T) {
	// Any 401 during init clears the token and notifies the owner.
	tests := []struct {
		name string
		repo *fakeRepo
	}{
		{"find unauthorized", &fakeRepo{findErr: unauthorizedErr()}},
		{"load unauthorized", &fakeRepo{
			findResult: &drive.File{ID: "F1", Name: "app_config.json"},
			loadErr:    unauthorizedErr(),
		}},
		{"create unauthorized", &fakeRepo{saveErr: unauthorizedErr()}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, tokens, expired := testSession(t, tt.repo, "T1")
			c.Initialize(context.Background())

			snap := c.Snapshot()
			assert.Equal(t, StateUnauthenticated, snap.State)
			assert.Nil(t, snap.Document)
			assert.Empty(t, snap.Err, "unauthorized is never a display error")
			assert.Empty(t, tokens.Get())
			assert.Equal(t, int32(1), expired.Load())
		})
	}
}

func TestInitialize_NonAuthFailureKeepsToken(t *testing.T) {
	repo := &fakeRepo{findErr: serverErr()}

	c, tokens, expired := testSession(t, repo, "T1")
	c.Initialize(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Nil(t, snap.Document)
	assert.Equal(t, initFailedMessage, snap.Err)
	assert.Equal(t, "T1", tokens.Get(), "token retained so the user may retry")
	assert.Zero(t, expired.Load())
}

func TestInitialize_MalformedDocument(t *testing.T) {
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`"not an object"`),
	}

	c, _, _ := testSession(t, repo, "T1")
	c.Initialize(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, initFailedMessage, snap.Err)
}

// readyCoordinator returns a coordinator already initialized with handle F1
// and a dark/1000 document.
func readyCoordinator(t *testing.T, repo *fakeRepo) (*Coordinator, *tokenstore.Memory, *atomic.Int32) {
	t.Helper()

	repo.mu.Lock()
	repo.findResult = &drive.File{ID: "F1", Name: "app_config.json"}
	repo.loadContent = json.RawMessage(`{"theme":"dark","lastActive":1000}`)
	repo.mu.Unlock()

	c, tokens, expired := testSession(t, repo, "T1")
	c.Initialize(context.Background())
	require.Equal(t, StateReady, c.Snapshot().State)

	return c, tokens, expired
}

func TestSaveData_Success(t *testing.T) {
	repo := &fakeRepo{saveID: "F1"}
	c, _, _ := readyCoordinator(t, repo)

	doc := Document{Theme: ThemeDark, LastActive: 2000}
	require.NoError(t, c.SaveData(context.Background(), doc))

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, doc, *snap.Document)
	assert.Empty(t, snap.Err)

	// Every write after the first targets the discovered handle.
	assert.Equal(t, "F1", repo.lastSaveExisting)
}

func TestSaveData_ExpiryPropagation(t *testing.T) {
	// Scenario C: save hits a 401 -> token cleared, owner notified.
	repo := &fakeRepo{saveErr: unauthorizedErr()}
	c, tokens, expired := readyCoordinator(t, repo)

	require.NoError(t, c.SaveData(context.Background(), Document{Theme: ThemeDark, LastActive: 2000}))

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Document)
	assert.Empty(t, tokens.Get())
	assert.Equal(t, int32(1), expired.Load())
}

func TestSaveData_NonAuthFailureKeepsOptimisticValue(t *testing.T) {
	// Scenario D: 500 on save -> Ready, optimistic value retained, generic
	// error recorded, no rollback.
	repo := &fakeRepo{saveErr: serverErr()}
	c, tokens, expired := readyCoordinator(t, repo)

	doc := Document{Theme: ThemeLight, LastActive: 3000}
	require.NoError(t, c.SaveData(context.Background(), doc))

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, doc, *snap.Document)
	assert.Equal(t, saveFailedMessage, snap.Err)
	assert.Equal(t, "T1", tokens.Get())
	assert.Zero(t, expired.Load())
}

func TestSaveData_OptimisticBeforeNetworkResolves(t *testing.T) {
	repo := &fakeRepo{
		saveID:      "F1",
		saveStarted: make(chan struct{}, 1),
		saveRelease: make(chan struct{}),
	}

	c, _, _ := readyCoordinator(t, repo)

	doc := Document{Theme: ThemeLight, LastActive: 4000}
	done := make(chan error, 1)

	go func() {
		done <- c.SaveData(context.Background(), doc)
	}()

	<-repo.saveStarted

	// The local document already shows the new value while the network
	// call is still in flight.
	snap := c.Snapshot()
	assert.Equal(t, StateSaving, snap.State)
	assert.Equal(t, doc, *snap.Document)

	// A second save while one is outstanding is rejected untouched.
	err := c.SaveData(context.Background(), Document{Theme: ThemeDark, LastActive: 5000})
	assert.ErrorIs(t, err, ErrSaveInFlight)
	assert.Equal(t, doc, *c.Snapshot().Document)

	close(repo.saveRelease)
	require.NoError(t, <-done)
	assert.Equal(t, StateReady, c.Snapshot().State)
}

func TestSaveData_NoToken(t *testing.T) {
	repo := &fakeRepo{}

	c, _, _ := testSession(t, repo, "")
	require.NoError(t, c.SaveData(context.Background(), Document{Theme: ThemeDark}))

	assert.Zero(t, repo.saveCalls)
}

func TestSaveData_WithoutHandleCreates(t *testing.T) {
	// Degraded path: saving before any handle exists creates the document
	// and caches the returned handle.
	repo := &fakeRepo{saveID: "NEW1"}

	c, _, _ := testSession(t, repo, "T1")

	doc := Document{Theme: ThemeDark, LastActive: 2000}
	require.NoError(t, c.SaveData(context.Background(), doc))

	assert.Empty(t, repo.lastSaveExisting)
	assert.Equal(t, "NEW1", c.Snapshot().FileID)
}

func TestSaveData_RemoteDeletionDropsHandle(t *testing.T) {
	// The remote document vanished out-of-band: the stale handle is
	// dropped so the next refresh rediscovers or recreates it.
	repo := &fakeRepo{
		saveErr: &drive.APIError{StatusCode: http.StatusNotFound, Message: "gone", Err: drive.ErrNotFound},
	}

	c, _, _ := readyCoordinator(t, repo)

	require.NoError(t, c.SaveData(context.Background(), Document{Theme: ThemeDark, LastActive: 2000}))

	snap := c.Snapshot()
	assert.Equal(t, StateReady, snap.State)
	assert.Equal(t, saveFailedMessage, snap.Err)
	assert.Empty(t, snap.FileID)

	// Refresh recreates after the handle was dropped.
	repo.mu.Lock()
	repo.findResult = nil
	repo.loadContent = nil
	repo.saveErr = nil
	repo.saveID = "NEW2"
	repo.mu.Unlock()

	c.Refresh(context.Background())
	assert.Equal(t, "NEW2", c.Snapshot().FileID)
}

func TestLogout(t *testing.T) {
	repo := &fakeRepo{saveID: "F1"}
	c, tokens, expired := readyCoordinator(t, repo)

	c.Logout(context.Background())

	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.Nil(t, snap.Document)
	assert.Empty(t, tokens.Get())
	assert.Zero(t, expired.Load(), "logout is not an expiry notification")
}

func TestHandleTokenChange(t *testing.T) {
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, tokens, _ := testSession(t, repo, "T1")
	c.Initialize(context.Background())
	require.Equal(t, StateReady, c.Snapshot().State)

	// Another execution context cleared the token.
	tokens.Set("")
	c.HandleTokenChange(context.Background(), "")

	assert.Equal(t, StateUnauthenticated, c.Snapshot().State)
	assert.Nil(t, c.Snapshot().Document)

	// Another execution context stored a fresh token.
	tokens.Set("T2")
	c.HandleTokenChange(context.Background(), "T2")

	assert.Equal(t, StateReady, c.Snapshot().State)
	assert.Equal(t, "F1", c.Snapshot().FileID)
}

func TestConcurrentInitializeRunsOnce(t *testing.T) {
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, _, _ := testSession(t, repo, "T1")

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			c.Initialize(context.Background())
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, repo.findCalls)
	assert.Equal(t, StateReady, c.Snapshot().State)
}

func TestSnapshotReturnsCopy(t *testing.T) {
	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	c, _, _ := testSession(t, repo, "T1")
	c.Initialize(context.Background())

	snap := c.Snapshot()
	snap.Document.Theme = "mangled"

	assert.Equal(t, ThemeDark, c.Snapshot().Document.Theme)
}

func TestSnapshotPreloadAndTeardown(t *testing.T) {
	store, err := NewSnapshotStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	saved := Document{Theme: ThemeDark, LastActive: 1000}
	require.NoError(t, store.Save(ctx, "F1", saved, time.Now()))

	tokens := &tokenstore.Memory{}
	c := NewCoordinator(&fakeRepo{}, tokens, store, nil, slog.Default())

	// Cached state is visible before any sync.
	snap := c.Snapshot()
	assert.Equal(t, StateUnauthenticated, snap.State)
	assert.True(t, snap.Cached)
	require.NotNil(t, snap.Document)
	assert.Equal(t, saved, *snap.Document)
	assert.Equal(t, "F1", snap.FileID)
	assert.False(t, snap.CachedAt.IsZero())

	// Logout clears the persisted snapshot too.
	c.Logout(ctx)

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.Nil(t, stored)
}

func TestInitialize_PersistsSnapshot(t *testing.T) {
	store, err := NewSnapshotStore(":memory:", slog.Default())
	require.NoError(t, err)
	defer store.Close()

	repo := &fakeRepo{
		findResult:  &drive.File{ID: "F1", Name: "app_config.json"},
		loadContent: json.RawMessage(`{"theme":"dark","lastActive":1000}`),
	}

	tokens := &tokenstore.Memory{}
	tokens.Set("T1")

	c := NewCoordinator(repo, tokens, store, nil, slog.Default())
	c.Initialize(context.Background())

	stored, err := store.Get(context.Background())
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, "F1", stored.FileID)
	assert.Equal(t, ThemeDark, stored.Document.Theme)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unauthenticated", StateUnauthenticated.String())
	assert.Equal(t, "initializing", StateInitializing.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "saving", StateSaving.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestDefaultDocument(t *testing.T) {
	now := time.UnixMilli(1234567890)
	doc := DefaultDocument(now)

	assert.Equal(t, ThemeLight, doc.Theme)
	assert.Equal(t, int64(1234567890), doc.LastActive)
}

var _ Repository = (*fakeRepo)(nil)
