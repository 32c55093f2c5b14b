package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		errType     string
		message     string
		wantKind    Kind
		wantMessage string
	}{
		{
			name:        "popup closed default message",
			errType:     "popup_closed",
			wantKind:    KindPopupClosed,
			wantMessage: "Login cancelled.",
		},
		{
			name:        "popup failed to open",
			errType:     "popup_failed_to_open",
			wantKind:    KindPopupFailedToOpen,
			wantMessage: "The popup was blocked. Please allow popups for this site.",
		},
		{
			name:        "access denied",
			errType:     "access_denied",
			wantKind:    KindAccessDenied,
			wantMessage: "Access denied. We need permission to save your data.",
		},
		{
			name:        "unknown type",
			errType:     "unknown",
			wantKind:    KindUnknown,
			wantMessage: "An unknown error occurred.",
		},
		{
			name:        "unrecognized type maps to unknown",
			errType:     "server_on_fire",
			wantKind:    KindUnknown,
			wantMessage: "An unknown error occurred.",
		},
		{
			name:        "empty type maps to unknown",
			errType:     "",
			wantKind:    KindUnknown,
			wantMessage: "An unknown error occurred.",
		},
		{
			name:        "explicit message overrides default",
			errType:     "popup_closed",
			message:     "the user closed the window",
			wantKind:    KindPopupClosed,
			wantMessage: "the user closed the window",
		},
		{
			name:        "empty explicit message falls back to default",
			errType:     "access_denied",
			message:     "",
			wantKind:    KindAccessDenied,
			wantMessage: "Access denied. We need permission to save your data.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(tt.errType, tt.message)

			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantMessage, err.Message)
		})
	}
}

func TestError_Error(t *testing.T) {
	err := Classify("popup_closed", "")
	assert.Equal(t, "auth: popup_closed: Login cancelled.", err.Error())
}
