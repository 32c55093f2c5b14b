// Package session orchestrates the token store, auth broker, and drive
// repository into a stateful sync session: one-time initialization of the
// remote config document, optimistic saves, and expiry-triggered
// de-authentication.
package session

import "time"

// Theme values for Document.Theme.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Document is the application config blob synchronized to the remote
// private folder. Exactly one logical instance exists per authenticated
// identity.
type Document struct {
	Theme      string `json:"theme"`
	LastActive int64  `json:"lastActive"`
}

// DefaultDocument seeds a freshly created remote document for a new user.
func DefaultDocument(now time.Time) Document {
	return Document{
		Theme:      ThemeLight,
		LastActive: now.UnixMilli(),
	}
}
