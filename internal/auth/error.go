// Package auth drives the interactive token-acquisition flow against the
// identity provider and classifies its failures into a closed taxonomy.
package auth

// Kind is the closed set of interactive auth failure categories. The string
// values match the error types reported by the provider's client library, so
// classification is a direct mapping rather than payload inspection.
type Kind string

const (
	// KindPopupFailedToOpen: the consent window could not be opened, usually
	// a popup blocker or a flow not triggered by a direct user gesture.
	KindPopupFailedToOpen Kind = "popup_failed_to_open"

	// KindPopupClosed: the user dismissed the consent window before
	// completing sign-in.
	KindPopupClosed Kind = "popup_closed"

	// KindAccessDenied: the user declined the requested capability on the
	// consent screen.
	KindAccessDenied Kind = "access_denied"

	// KindUnknown covers anything else that breaks the flow before a
	// token arrives.
	KindUnknown Kind = "unknown"
)

// defaultMessage returns the human-readable message shown to the user when
// the provider supplies none.
func (k Kind) defaultMessage() string {
	switch k {
	case KindPopupFailedToOpen:
		return "The popup was blocked. Please allow popups for this site."
	case KindPopupClosed:
		return "Login cancelled."
	case KindAccessDenied:
		return "Access denied. We need permission to save your data."
	default:
		return "An unknown error occurred."
	}
}

// Error is a classified interactive auth failure. Message is always
// non-empty: the provider's message when it supplied one, the Kind's default
// otherwise.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string {
	return "auth: " + string(e.Kind) + ": " + e.Message
}

// Classify maps a provider failure payload to an *Error. errType is the
// provider's error category string (its "type" field for popup errors, its
// "error" field for token responses); message is the provider's explicit
// message, which overrides the default only when non-empty.
func Classify(errType, message string) *Error {
	var kind Kind

	switch Kind(errType) {
	case KindPopupFailedToOpen, KindPopupClosed, KindAccessDenied:
		kind = Kind(errType)
	default:
		kind = KindUnknown
	}

	if message == "" {
		message = kind.defaultMessage()
	}

	return &Error{Kind: kind, Message: message}
}
