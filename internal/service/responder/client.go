package responder

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/zhouzirui/z-helpdesk/backend/internal/model/chat"
)

// ErrResponder is returned when the backend answers with a non-2xx status or
// a body that cannot be decoded.
var ErrResponder = errors.New("responder error")

const (
	messagePath  = "/api/chat/message"
	feedbackPath = "/api/chat/feedback"

	maxErrorBody = 4 << 10
)

// Client calls the request/response endpoints of the support backend.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// Option customises a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewClient returns a client for the backend at baseURL. Callers bound each
// call with a context deadline; the http.Client timeout is only a backstop.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "responder")
	return c
}

// Respond sends one user message and returns the generated reply.
func (c *Client) Respond(ctx context.Context, req chat.ResponderRequest) (chat.ResponderResult, error) {
	var res chat.ResponderResult
	if err := c.post(ctx, messagePath, req, &res); err != nil {
		return chat.ResponderResult{}, err
	}
	return res, nil
}

// SendFeedback transmits one vote.
func (c *Client) SendFeedback(ctx context.Context, req chat.FeedbackRequest) error {
	return c.post(ctx, feedbackPath, req, nil)
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	c.logger.Debug("responder call", "path", path, "status", resp.StatusCode, "duration", time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: POST %s: %s", ErrResponder, path, errorMessage(resp))
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding %s response: %v", ErrResponder, path, err)
	}
	return nil
}

// errorMessage extracts {"error": "..."} when the backend sends one.
func errorMessage(resp *http.Response) string {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal(raw, &body) == nil && body.Error != "" {
		return fmt.Sprintf("%d %s", resp.StatusCode, body.Error)
	}
	return resp.Status
}
