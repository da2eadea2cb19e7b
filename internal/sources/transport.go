package sources

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

	"github.com/sony/gobreaker"
)

const maxErrorBody = 2048

// Request describes one JSON call.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Body   any
	// Token is sent as a bearer token when set.
	Token string
}

// Option configures a Transport.
type Option func(*Transport)

// Transport performs JSON requests against one source API. Transient
// failures trip a circuit breaker so a down API is not hammered by every
// item of a pass.
type Transport struct {
	source     string
	baseURL    *url.URL
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker
	settings   gobreaker.Settings
	logger     *slog.Logger
}

// NewTransport creates a transport for the named source.
func NewTransport(source, baseURL string, options ...Option) (*Transport, error) {
	parsed, err := url.Parse(strings.TrimSpace(baseURL))
	if err != nil {
		return nil, fmt.Errorf("parse %s base url: %w", source, err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%s base url must include scheme and host", source)
	}

	t := &Transport{
		source:     source,
		baseURL:    parsed,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
		settings: gobreaker.Settings{
			Name:        source,
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		},
	}
	for _, option := range options {
		option(t)
	}

	t.settings.IsSuccessful = func(err error) bool {
		return err == nil || !IsTransient(err)
	}
	logger := t.logger
	t.settings.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn("circuit breaker state change", "source", name, "from", from.String(), "to", to.String())
	}
	t.breaker = gobreaker.NewCircuitBreaker(t.settings)
	return t, nil
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(t *Transport) {
		if httpClient != nil {
			t.httpClient = httpClient
		}
	}
}

// WithBreakerThreshold sets how many consecutive transient failures open
// the breaker and how long it stays open.
func WithBreakerThreshold(failures uint32, openFor time.Duration) Option {
	return func(t *Transport) {
		if failures > 0 {
			t.settings.ReadyToTrip = func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= failures
			}
		}
		if openFor > 0 {
			t.settings.Timeout = openFor
		}
	}
}

// WithLogger sets the logger used for breaker state changes.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// Source returns the name the transport was created for.
func (t *Transport) Source() string { return t.source }

// Do sends req and decodes a JSON response into out when out is non-nil.
func (t *Transport) Do(ctx context.Context, req Request, out any) error {
	_, err := t.breaker.Execute(func() (interface{}, error) {
		return nil, t.do(ctx, req, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &TransientError{Source: t.source, Err: err}
	}
	return err
}

func (t *Transport) do(ctx context.Context, req Request, out any) error {
	endpoint := t.baseURL.JoinPath(req.Path)
	if len(req.Query) > 0 {
		endpoint.RawQuery = req.Query.Encode()
	}

	var body io.Reader
	if req.Body != nil {
		payload, err := json.Marshal(req.Body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", t.source, err)
		}
		body = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, endpoint.String(), body)
	if err != nil {
		return fmt.Errorf("build %s request: %w", t.source, err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if req.Token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+req.Token)
	}

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &TransientError{Source: t.source, Err: err}
	}
	defer resp.Body.Close()

	if err := classify(t.source, resp.StatusCode, readErrorBody(resp)); err != nil {
		return err
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode %s response: %w", t.source, err)
	}
	return nil
}

// readErrorBody reads a bounded error body for non-2xx responses only.
func readErrorBody(resp *http.Response) string {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return ""
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return strings.TrimSpace(string(data))
}
