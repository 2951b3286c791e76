// Package apiclient talks to the EV2 admin API. Every response is wrapped in
// the envelope {success, message, code, field, data}.
package apiclient

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

	"github.com/santhosh-tekuri/jsonschema/v6"
	"github.com/tidwall/gjson"

	"github.com/JonMunkholm/ev2/internal/collection"
)

const (
	// DefaultTimeout is the default timeout for HTTP requests
	DefaultTimeout = 10 * time.Second

	// MaxResponseSize is the maximum allowed response size (16MB)
	MaxResponseSize = 16 * 1024 * 1024

	// UserAgent is the user agent string for HTTP requests
	UserAgent = "ev2ctl/1.0"

	// APIKeyHeader carries the API key on every request.
	APIKeyHeader = "X-API-Key"
)

// ErrInvalidPayload is returned when a response does not match the schema of
// its endpoint.
var ErrInvalidPayload = errors.New("invalid response payload")

// Config configures a Client.
type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
	Logger  *slog.Logger

	// HTTPClient overrides the default transport. Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is an HTTP client for the admin API.
type Client struct {
	base   *url.URL
	apiKey string
	http   *http.Client
	log    *slog.Logger
	schema *schemaSet
}

// New creates a client for the API rooted at cfg.BaseURL.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme %q", base.Scheme)
	}

	sch, err := loadSchemas()
	if err != nil {
		return nil, err
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = DefaultTimeout
		}
		hc = &http.Client{Timeout: timeout}
	}
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	return &Client{
		base:   base,
		apiKey: cfg.APIKey,
		http:   hc,
		log:    log,
		schema: sch,
	}, nil
}

// Collection returns the API of one collection.
func (c *Client) Collection(key string) *Collection {
	return &Collection{client: c, key: key}
}

// request describes one call.
type request struct {
	op     string
	method string
	path   string
	query  url.Values
	body   any
}

// do performs req and returns the envelope's data member. Transport failures
// and unexpected 5xx answers become *collection.NetworkError; success=false
// becomes *collection.ApplicationError.
func (c *Client) do(ctx context.Context, req request) (gjson.Result, error) {
	u := *c.base
	u.Path += req.path
	if len(req.query) > 0 {
		u.RawQuery = req.query.Encode()
	}

	var body io.Reader
	if req.body != nil {
		buf, err := json.Marshal(req.body)
		if err != nil {
			return gjson.Result{}, fmt.Errorf("%s: encode request: %w", req.op, err)
		}
		body = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method, u.String(), body)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("%s: failed to create request: %w", req.op, err)
	}
	httpReq.Header.Set("User-Agent", UserAgent)
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		httpReq.Header.Set(APIKeyHeader, c.apiKey)
	}

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return gjson.Result{}, ctx.Err()
		}
		return gjson.Result{}, &collection.NetworkError{Op: req.op, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return gjson.Result{}, &collection.NetworkError{Op: req.op, Err: err}
	}
	if int64(len(raw)) > MaxResponseSize {
		return gjson.Result{}, fmt.Errorf("%s: %w: response exceeds %d bytes", req.op, ErrInvalidPayload, MaxResponseSize)
	}

	c.log.Debug("api request",
		"op", req.op,
		"method", req.method,
		"path", u.Path,
		"status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	if !gjson.ValidBytes(raw) || !gjson.GetBytes(raw, "success").Exists() {
		return gjson.Result{}, unenveloped(req.op, resp)
	}
	if err := validate(c.schema.envelope, string(raw)); err != nil {
		return gjson.Result{}, fmt.Errorf("%s: %w", req.op, err)
	}

	env := gjson.ParseBytes(raw)
	if !env.Get("success").Bool() {
		msg := env.Get("message").String()
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return gjson.Result{}, &collection.ApplicationError{
			Message: msg,
			Code:    env.Get("code").String(),
			Field:   env.Get("field").String(),
		}
	}
	return env.Get("data"), nil
}

// unenveloped classifies a response that carries no envelope.
func unenveloped(op string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= http.StatusInternalServerError, resp.StatusCode == http.StatusTooManyRequests:
		return &collection.NetworkError{Op: op, Err: fmt.Errorf("unexpected status %s", resp.Status)}
	case resp.StatusCode >= http.StatusBadRequest:
		return &collection.ApplicationError{
			Message: http.StatusText(resp.StatusCode),
			Code:    fmt.Sprintf("HTTP_%d", resp.StatusCode),
		}
	default:
		return fmt.Errorf("%s: %w: response is not an envelope", op, ErrInvalidPayload)
	}
}

// decode validates data against the endpoint schema.
func (c *Client) decode(op string, data gjson.Result, sch *jsonschema.Schema) error {
	if !data.Exists() {
		return fmt.Errorf("%s: %w: missing data", op, ErrInvalidPayload)
	}
	if err := validate(sch, data.Raw); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return nil
}
