package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/kuitang/noteboard/internal/errs"
	"github.com/kuitang/noteboard/internal/logutil"
	"github.com/kuitang/noteboard/internal/notes"
	"github.com/kuitang/noteboard/internal/obs"
	"github.com/kuitang/noteboard/internal/urlutil"
)

const (
	maxUpstreamBody = 1 << 20
	logBodyBytes    = 512
)

// UpstreamError is a non-2xx answer from the note API. Its status is
// passed through to frontend callers.
type UpstreamError struct {
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("upstream returned %d: %s", e.Status, e.Message)
}

// APIClient calls the note API.
type APIClient struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewAPIClient returns a client for the API rooted at baseURL. Each call
// is bounded by timeout.
func NewAPIClient(baseURL string, timeout time.Duration, httpClient *http.Client) *APIClient {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &APIClient{baseURL: baseURL, http: httpClient, timeout: timeout}
}

// ListNotes fetches every note.
func (c *APIClient) ListNotes(ctx context.Context) ([]notes.Note, error) {
	result := []notes.Note{}
	if err := c.do(ctx, http.MethodGet, "/notes", nil, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// CreateNote creates a note and returns it with its assigned id.
func (c *APIClient) CreateNote(ctx context.Context, text string, completed bool) (notes.Note, error) {
	var created notes.Note
	err := c.do(ctx, http.MethodPost, "/notes", notes.NoteIn{Text: &text, Completed: &completed}, &created)
	return created, err
}

func (c *APIClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errs.Wrap(errs.Internal, "failed to encode request", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, urlutil.BuildAbsolute(c.baseURL, path), body)
	if err != nil {
		return errs.Wrap(errs.Internal, "failed to build upstream request", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if requestID := obs.RequestIDFromContext(ctx); requestID != "" {
		req.Header.Set("X-Request-Id", requestID)
	}

	logger := obs.From(ctx).With("pkg", "web", "upstream_method", method, "upstream_url", req.URL.String())
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		logger.Warn("upstream_failed", "error", err)
		return errs.Wrap(errs.BadGateway, "note API unreachable", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxUpstreamBody))
	if err != nil {
		logger.Warn("upstream_read_failed", "status", resp.StatusCode, "error", err)
		return errs.Wrap(errs.BadGateway, "note API response unreadable", err)
	}
	logger.Debug("upstream_response",
		"status", resp.StatusCode,
		"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
		"req_headers", logutil.FormatHeaders(req.Header),
		"resp_body", logutil.FormatBody(resp.Header.Get("Content-Type"), data, logBodyBytes),
	)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &UpstreamError{Status: resp.StatusCode, Message: upstreamMessage(resp.StatusCode, data)}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errs.Wrap(errs.BadGateway, "note API returned malformed JSON", err)
	}
	return nil
}

// upstreamMessage prefers the API's own {"error": ...} text.
func upstreamMessage(status int, body []byte) string {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return payload.Error
	}
	if text := http.StatusText(status); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", status)
}
