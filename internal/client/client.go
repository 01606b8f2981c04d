// ABOUTME: HTTP client for the research backend the workspace consumes
// ABOUTME: Every call carries a bearer credential; failures surface as *NetworkError

package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/2389/scout-desk/internal/auth"
)

const (
	// maxResponseBytes bounds how much of a response body is read.
	maxResponseBytes = 8 << 20
	// maxErrorBody bounds the body text kept on a NetworkError.
	maxErrorBody = 512
)

// TokenSource supplies the bearer value for outbound calls. It must never
// return an empty string.
type TokenSource interface {
	BearerToken() string
}

// NetworkError reports an unreachable backend or a non-success response.
// It is always retryable by an explicit user action; the client never retries.
type NetworkError struct {
	Op     string // e.g. "search", "answer"
	Status int    // HTTP status, 0 when no response arrived
	Body   string // trimmed response body for non-success statuses
	Err    error  // transport or decoding error, if any
}

func (e *NetworkError) Error() string {
	switch {
	case e.Status == 0:
		return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: HTTP %d: %v", e.Op, e.Status, e.Err)
	case e.Body != "":
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Status, e.Body)
	default:
		return fmt.Sprintf("%s: HTTP %d", e.Op, e.Status)
	}
}

func (e *NetworkError) Unwrap() error { return e.Err }

// Retryable reports whether the user may retry the action.
func (e *NetworkError) Retryable() bool { return true }

// IsStatus reports whether err is a NetworkError carrying the given HTTP status.
func IsStatus(err error, status int) bool {
	var ne *NetworkError
	return errors.As(err, &ne) && ne.Status == status
}

// Options configures a Client.
type Options struct {
	BaseURL    string        // search, research-prospect and answer endpoints
	RecordsURL string        // prospects/* and research/* endpoints; defaults to BaseURL
	Timeout    time.Duration // per request; 0 means no client-side timeout
	Tokens     TokenSource   // nil sends the unauthenticated marker
	HTTPClient *http.Client  // overrides Timeout when set
	Logger     *slog.Logger
}

// Client talks to the research backend.
type Client struct {
	baseURL    string
	recordsURL string
	http       *http.Client
	tokens     TokenSource
	logger     *slog.Logger
}

// New creates a Client.
func New(opts Options) *Client {
	if opts.RecordsURL == "" {
		opts.RecordsURL = opts.BaseURL
	}
	if opts.Tokens == nil {
		opts.Tokens = auth.NewCredentials(nil, "")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		recordsURL: strings.TrimRight(opts.RecordsURL, "/"),
		http:       opts.HTTPClient,
		tokens:     opts.Tokens,
		logger:     opts.Logger.With("component", "client"),
	}
}

// call describes one request.
type call struct {
	op        string
	method    string
	base      string
	path      string
	query     url.Values
	in        any
	out       any
	raw       *[]byte // receives the undecoded body instead of out
	requestID string
}

func (c *Client) do(ctx context.Context, rc call) error {
	target := rc.base + rc.path
	if len(rc.query) > 0 {
		target += "?" + rc.query.Encode()
	}

	var body io.Reader
	if rc.in != nil {
		data, err := json.Marshal(rc.in)
		if err != nil {
			return fmt.Errorf("%s: encoding request: %w", rc.op, err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, rc.method, target, body)
	if err != nil {
		return fmt.Errorf("%s: building request: %w", rc.op, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.tokens.BearerToken())
	req.Header.Set("Accept", "application/json")
	if rc.in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if rc.requestID != "" {
		req.Header.Set("X-Request-ID", rc.requestID)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Warn("request failed", "op", rc.op, "error", err)
		return &NetworkError{Op: rc.op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return &NetworkError{Op: rc.op, Status: resp.StatusCode, Err: fmt.Errorf("reading response: %w", err)}
	}

	c.logger.Debug("request completed",
		"op", rc.op,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &NetworkError{Op: rc.op, Status: resp.StatusCode, Body: truncate(strings.TrimSpace(string(raw)))}
	}

	if rc.raw != nil {
		*rc.raw = raw
		return nil
	}
	if rc.out != nil && len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, rc.out); err != nil {
			return &NetworkError{Op: rc.op, Status: resp.StatusCode, Err: fmt.Errorf("decoding response: %w", err)}
		}
	}
	return nil
}

func truncate(s string) string {
	if len(s) <= maxErrorBody {
		return s
	}
	return s[:maxErrorBody] + "..."
}
