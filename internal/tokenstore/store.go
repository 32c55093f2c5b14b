// Package tokenstore persists the session access token. The store is a
// small injected capability so the session layer never touches storage
// directly and is testable without a filesystem.
package tokenstore

import "sync"

// Store holds a single opaque bearer token for the current session.
// Set("") clears the stored value (logout). Implementations are fail-soft:
// a storage failure is logged and the last in-memory value stays
// authoritative. Callers never see storage errors.
type Store interface {
	Get() string
	Set(token string)
}

// Memory is an in-memory Store for tests and environments without
// session-scoped storage.
type Memory struct {
	mu    sync.Mutex
	token string
}

func (m *Memory) Get() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.token
}

func (m *Memory) Set(token string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.token = token
}
