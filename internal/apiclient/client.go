// Package apiclient is the only component that talks HTTP to the research
// backend. Every call returns a Result built by a single normalization step
// per endpoint, so callers never see raw response shapes.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"studio/internal/config"
)

// maxBodyBytes bounds how much of a response body is read.
const maxBodyBytes = 8 << 20

// Client issues requests against a configured base address.
type Client struct {
	base  *url.URL
	paths config.APIConfig
	http  *http.Client
	log   *zap.Logger
}

// New creates a client for cfg.BaseURL. Paths default to the /api/* routes.
func New(cfg config.APIConfig, log *zap.Logger) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("base url %q must be absolute", cfg.BaseURL)
	}
	if cfg.UploadPath == "" {
		cfg.UploadPath = "/api/upload"
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = "/api/chat"
	}
	if cfg.LibraryPath == "" {
		cfg.LibraryPath = "/api/library"
	}
	if cfg.AnalyticsPath == "" {
		cfg.AnalyticsPath = "/api/analytics"
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		base:  base,
		paths: cfg,
		http:  &http.Client{Timeout: cfg.Timeout()},
		log:   log,
	}, nil
}

// BaseURL returns the address requests are sent to.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) string {
	return c.base.String() + "/" + strings.TrimLeft(path, "/")
}

// response is a settled HTTP exchange with a 2xx status.
type response struct {
	status int
	body   []byte
}

// send performs req and classifies the outcome. Non-2xx statuses become
// KindServer errors carrying the body's detail message when there is one.
func (c *Client) send(req *http.Request) (*response, *Error) {
	reqID := uuid.NewString()
	req.Header.Set("X-Request-Id", reqID)
	req.Header.Set("Accept", "application/json")
	log := c.log.With(zap.String("request_id", reqID), zap.String("method", req.Method), zap.String("url", req.URL.String()))

	resp, err := c.http.Do(req)
	if err != nil {
		log.Warn("request failed", zap.Error(err))
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		log.Warn("reading response body failed", zap.Int("status", resp.StatusCode), zap.Error(err))
		return nil, &Error{Kind: KindNetwork, Status: resp.StatusCode, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := extractDetail(body)
		log.Warn("server returned error", zap.Int("status", resp.StatusCode), zap.String("detail", detail))
		return nil, &Error{Kind: KindServer, Status: resp.StatusCode, Detail: detail}
	}
	log.Debug("request settled", zap.Int("status", resp.StatusCode), zap.Int("bytes", len(body)))
	return &response{status: resp.StatusCode, body: body}, nil
}

func (c *Client) getJSON(ctx context.Context, path string) (*response, *Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	return c.send(req)
}

func (c *Client) postJSON(ctx context.Context, path string, in any) (*response, *Error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, &Error{Kind: KindContract, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindNetwork, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req)
}

// extractDetail pulls a human-readable message out of an error body:
// {"detail": "..."}, FastAPI validation lists {"detail": [{"msg": "..."}]},
// or {"error": "..."}.
func extractDetail(body []byte) string {
	var payload struct {
		Detail json.RawMessage `json:"detail"`
		Error  string          `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	if len(payload.Detail) > 0 {
		var s string
		if err := json.Unmarshal(payload.Detail, &s); err == nil && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
		var list []struct {
			Msg string `json:"msg"`
		}
		if err := json.Unmarshal(payload.Detail, &list); err == nil && len(list) > 0 && list[0].Msg != "" {
			return list[0].Msg
		}
	}
	return strings.TrimSpace(payload.Error)
}

// envelope holds the fields every /api/* response may carry.
type envelope struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Detail  string          `json:"detail"`
	Error   string          `json:"error"`
}

// failed reports success=false bodies as server errors.
func (e envelope) failed(status int) *Error {
	if e.Success == nil || *e.Success {
		return nil
	}
	detail := e.Error
	if detail == "" {
		detail = e.Detail
	}
	return &Error{Kind: KindServer, Status: status, Detail: detail}
}

// flexString decodes a JSON string or number into its string form.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*f = flexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return errors.New("expected string or number")
	}
	*f = flexString(n.String())
	return nil
}
