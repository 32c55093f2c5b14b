package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

// stateTokenBytes is the number of random bytes for the OAuth2 state parameter.
const stateTokenBytes = 16

// shutdownTimeout is how long to wait for the callback server to drain.
const shutdownTimeout = 5 * time.Second

// callbackResult carries the authorization code or classified failure from
// the callback handler.
type callbackResult struct {
	code    string
	errType string
	message string
}

// BrowserClientFactory returns a ClientFactory whose clients run the
// authorization code + PKCE flow through the user's browser with a localhost
// callback server, the native analog of the provider's consent popup.
//
// openURL is called with the authorization URL; if it fails the URL is
// printed to stderr so the user can open it manually. httpClient may be nil;
// tests inject one pointed at a mock token endpoint.
func BrowserClientFactory(
	openURL func(string) error, httpClient *http.Client, logger *slog.Logger,
) ClientFactory {
	return func(
		clientID, scope string,
		onToken func(token string),
		onError func(errType, message string),
	) (TokenClient, error) {
		if clientID == "" {
			return nil, errors.New("client id is empty")
		}

		if logger == nil {
			logger = slog.Default()
		}

		return &browserClient{
			cfg: oauth2.Config{
				ClientID: clientID,
				Scopes:   []string{scope},
				Endpoint: google.Endpoint,
			},
			openURL:    openURL,
			httpClient: httpClient,
			logger:     logger,
			onToken:    onToken,
			onError:    onError,
		}, nil
	}
}

type browserClient struct {
	cfg        oauth2.Config
	openURL    func(string) error
	httpClient *http.Client
	logger     *slog.Logger
	onToken    func(token string)
	onError    func(errType, message string)
}

// RequestToken triggers one consent flow. The outcome arrives via the
// callbacks registered at initialization.
func (bc *browserClient) RequestToken(ctx context.Context, prompt string) {
	go bc.run(ctx, prompt)
}

func (bc *browserClient) run(ctx context.Context, prompt string) {
	bc.logger.Info("starting browser auth flow (authorization code + PKCE)")

	// Bind the localhost callback server. A bind failure is the native
	// equivalent of a blocked popup: the consent surface never opened.
	lc := net.ListenConfig{}

	listener, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		bc.onError(string(KindPopupFailedToOpen), "")
		return
	}

	tcpAddr, ok := listener.Addr().(*net.TCPAddr)
	if !ok {
		listener.Close()
		bc.onError(string(KindUnknown), "callback listener address is not TCP")

		return
	}

	bc.logger.Debug("callback server listening", slog.Int("port", tcpAddr.Port))

	cfg := bc.cfg
	cfg.RedirectURL = fmt.Sprintf("http://127.0.0.1:%d", tcpAddr.Port)

	verifier := oauth2.GenerateVerifier()

	state, err := generateState()
	if err != nil {
		listener.Close()
		bc.onError(string(KindUnknown), "generating state token: "+err.Error())

		return
	}

	resultCh := make(chan callbackResult, 1)
	mux := http.NewServeMux()
	mux.HandleFunc("GET /", func(w http.ResponseWriter, r *http.Request) {
		handleCallback(w, r, state, resultCh)
	})

	srv := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: shutdownTimeout,
	}

	go func() {
		if serveErr := srv.Serve(listener); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			resultCh <- callbackResult{
				errType: string(KindUnknown),
				message: "callback server error: " + serveErr.Error(),
			}
		}
	}()
	defer bc.shutdown(srv)

	opts := []oauth2.AuthCodeOption{oauth2.S256ChallengeOption(verifier)}
	if prompt != PromptUseCached {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", prompt))
	}

	bc.launchBrowser(cfg.AuthCodeURL(state, opts...))

	select {
	case result := <-resultCh:
		if result.errType != "" {
			bc.onError(result.errType, result.message)
			return
		}

		bc.exchange(ctx, &cfg, result.code, verifier)
	case <-ctx.Done():
		// The user walked away from the flow, same terminal outcome as
		// dismissing the consent window.
		bc.onError(string(KindPopupClosed), "")
	}
}

// handleCallback validates the state, extracts the code or the provider's
// error, and sends exactly one result.
func handleCallback(w http.ResponseWriter, r *http.Request, state string, resultCh chan<- callbackResult) {
	// Validate state to prevent CSRF.
	if r.URL.Query().Get("state") != state {
		http.Error(w, "Invalid state parameter", http.StatusBadRequest)
		resultCh <- callbackResult{
			errType: string(KindUnknown),
			message: "OAuth2 state mismatch (possible CSRF)",
		}

		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		http.Error(w, "Authorization failed: "+errParam, http.StatusBadRequest)

		errType := string(KindUnknown)
		if errParam == string(KindAccessDenied) {
			errType = string(KindAccessDenied)
		}

		resultCh <- callbackResult{
			errType: errType,
			message: r.URL.Query().Get("error_description"),
		}

		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		resultCh <- callbackResult{
			errType: string(KindUnknown),
			message: "callback missing authorization code",
		}

		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, "<html><body><h1>Authentication successful</h1>"+
		"<p>You can close this window and return to the terminal.</p></body></html>")
	resultCh <- callbackResult{code: code}
}

// exchange trades the authorization code for an access token and delivers it.
func (bc *browserClient) exchange(ctx context.Context, cfg *oauth2.Config, code, verifier string) {
	if bc.httpClient != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, bc.httpClient)
	}

	tok, err := cfg.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		bc.onError(string(KindUnknown), "token exchange failed: "+err.Error())
		return
	}

	bc.logger.Info("token exchange successful", slog.Time("expiry", tok.Expiry))
	bc.onToken(tok.AccessToken)
}

// launchBrowser attempts to open the auth URL. If it fails, prints the URL
// to stderr as a fallback so the user can copy-paste it.
func (bc *browserClient) launchBrowser(authURL string) {
	bc.logger.Info("opening browser for authorization")

	if err := bc.openURL(authURL); err != nil {
		bc.logger.Warn("failed to open browser, printing URL",
			slog.String("error", err.Error()),
		)

		fmt.Fprintf(os.Stderr, "Open this URL in your browser:\n%s\n", authURL)
	}
}

func (bc *browserClient) shutdown(srv *http.Server) {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		bc.logger.Warn("callback server shutdown error", slog.String("error", err.Error()))
	}
}

// generateState produces a cryptographically random hex string for the
// OAuth2 state parameter.
func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
