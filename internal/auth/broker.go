package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// ScopeDriveAppData is the single capability the broker ever requests:
// read/write access to the application's private Drive storage area.
const ScopeDriveAppData = "https://www.googleapis.com/auth/drive.appdata"

// PromptUseCached asks the provider to reuse prior consent when available
// and only prompt the user otherwise.
const PromptUseCached = ""

var (
	// ErrNotInitialized means Connect was called before the provider client
	// finished initializing.
	ErrNotInitialized = errors.New("auth: provider client not initialized")

	// ErrFlowInProgress means a Connect call is already waiting on the
	// provider.
	ErrFlowInProgress = errors.New("auth: auth flow already in progress")
)

// TokenClient triggers the provider's interactive consent flow. Terminal
// outcomes are delivered through the callbacks registered at initialization,
// not returned from RequestToken.
type TokenClient interface {
	RequestToken(ctx context.Context, prompt string)
}

// ClientFactory initializes the provider's client library with a fixed
// client identifier and capability scope, wiring the success and error
// channels. Called exactly once per broker.
type ClientFactory func(
	clientID, scope string,
	onToken func(token string),
	onError func(errType, message string),
) (TokenClient, error)

// outcome is a single terminal result of an interactive flow.
type outcome struct {
	token string
	err   *Error
}

// Broker converts the provider's callback-delivered outcomes into a single
// resolution of a pending Connect call. Initialization is idempotent;
// duplicate or late callbacks after a flow resolves are dropped.
type Broker struct {
	clientID string
	factory  ClientFactory
	logger   *slog.Logger

	initOnce sync.Once
	initErr  error

	mu      sync.Mutex
	client  TokenClient
	pending chan outcome
}

// NewBroker creates a broker. Call Init before Connect; Connect fails fast
// if initialization has not completed.
func NewBroker(clientID string, factory ClientFactory, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		clientID: clientID,
		factory:  factory,
		logger:   logger,
	}
}

// Init initializes the provider client. Idempotent: repeated calls never
// create a second client instance, so callbacks cannot double-fire.
func (b *Broker) Init() error {
	b.initOnce.Do(func() {
		client, err := b.factory(b.clientID, ScopeDriveAppData, b.deliverToken, b.deliverError)
		if err != nil {
			b.initErr = fmt.Errorf("auth: initializing provider client: %w", err)
			b.logger.Warn("provider client initialization failed",
				slog.String("error", err.Error()),
			)

			return
		}

		b.mu.Lock()
		b.client = client
		b.mu.Unlock()

		b.logger.Debug("provider client initialized")
	})

	return b.initErr
}

// Connect runs one interactive consent flow and blocks until it resolves.
// On success it returns a non-empty access token; on failure a classified
// *Error. Exactly one of the two happens per flow.
func (b *Broker) Connect(ctx context.Context) (string, error) {
	b.mu.Lock()

	if b.client == nil {
		b.mu.Unlock()
		b.logger.Warn("connect called before provider client initialized")

		return "", ErrNotInitialized
	}

	if b.pending != nil {
		b.mu.Unlock()

		return "", ErrFlowInProgress
	}

	ch := make(chan outcome, 1)
	b.pending = ch
	client := b.client
	b.mu.Unlock()

	client.RequestToken(ctx, PromptUseCached)

	select {
	case o := <-ch:
		if o.err != nil {
			return "", o.err
		}

		return o.token, nil
	case <-ctx.Done():
		b.clearPending()

		return "", fmt.Errorf("auth: connect canceled: %w", ctx.Err())
	}
}

// deliverToken is the provider success callback.
func (b *Broker) deliverToken(token string) {
	if token == "" {
		b.deliver(outcome{err: Classify(string(KindUnknown), "provider returned an empty access token")})
		return
	}

	b.deliver(outcome{token: token})
}

// deliverError is the provider failure callback.
func (b *Broker) deliverError(errType, message string) {
	b.deliver(outcome{err: Classify(errType, message)})
}

// deliver resolves the pending flow exactly once. Late duplicates (e.g. a
// provider firing both channels) are dropped.
func (b *Broker) deliver(o outcome) {
	b.mu.Lock()
	ch := b.pending
	b.pending = nil
	b.mu.Unlock()

	if ch == nil {
		b.logger.Debug("dropping auth callback with no pending flow")
		return
	}

	ch <- o
}

// clearPending abandons the current flow so a late callback is dropped
// instead of resolving a stale channel.
func (b *Broker) clearPending() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}
