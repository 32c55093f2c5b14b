package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// Default endpoints for the Drive v3 API.
const (
	DefaultBaseURL   = "https://www.googleapis.com/drive/v3"
	DefaultUploadURL = "https://www.googleapis.com/upload/drive/v3"
)

const userAgent = "driveconf/0.1"

// Client is an HTTP client for the Drive files API. It handles request
// construction, bearer authentication, and error classification. The access
// token is passed per call rather than held on the client: the token is
// session state owned by the caller and may be replaced between calls.
//
// No automatic retries: a failed call surfaces immediately and retry is a
// user-initiated action.
type Client struct {
	baseURL    string
	uploadURL  string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a Drive API client. baseURL and uploadURL are typically
// DefaultBaseURL and DefaultUploadURL; tests point them at a local server.
func NewClient(baseURL, uploadURL string, httpClient *http.Client, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &Client{
		baseURL:    baseURL,
		uploadURL:  uploadURL,
		httpClient: httpClient,
		logger:     logger,
	}
}

// do executes a single HTTP request with bearer authentication. On a
// non-2xx response the body is consumed and converted into an *APIError
// carrying the classified sentinel. The caller owns the response body on
// success.
func (c *Client) do(
	ctx context.Context, method, url, token, contentType string, body io.Reader,
) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("drive: request canceled: %w", ctx.Err())
		}

		return nil, fmt.Errorf("drive: %s %s: %w", method, url, err)
	}

	// 2xx is success.
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(resp.Body)
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	message := string(errBody)
	if message == "" {
		message = resp.Status
	}

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Message:    message,
		Err:        classifyStatus(resp.StatusCode),
	}
}
