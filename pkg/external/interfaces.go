// Package external holds the clients for the public biological databases
// GeneGPT routes queries to, plus the rate limiting, caching and circuit
// breaking every client call passes through.
package external

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
	"time"

	"golang.org/x/time/rate"

	"github.com/genegpt-server/internal/domain"
)

var (
	// ErrNotFound is returned when a database has no record for the search term.
	ErrNotFound = errors.New("not found")
	// ErrNotConfigured is returned by clients whose credentials are missing.
	ErrNotConfigured = errors.New("not configured")
)

const userAgent = "GeneGPT/1.0"

// Human, the only species GeneGPT queries.
const humanTaxonomy = "9606"

// statusError carries a non-2xx upstream response.
type statusError struct {
	Service string
	Status  int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("%s returned status %d", e.Service, e.Status)
}

func (e *statusError) retryable() bool {
	return e.Status == http.StatusTooManyRequests || e.Status >= 500
}

// restClient is the HTTP plumbing shared by every database client.
type restClient struct {
	service    string
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	retries    int
	backoff    time.Duration
}

func newRESTClient(service string, cfg domain.APIConfig, defaultBaseURL string) *restClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RetryCount < 0 {
		cfg.RetryCount = 0
	}

	return &restClient{
		service: service,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		retries: cfg.RetryCount,
		backoff: 250 * time.Millisecond,
	}
}

// endpoint joins path onto the base URL and appends params.
func (c *restClient) endpoint(path string, params url.Values) string {
	u := c.baseURL + "/" + strings.TrimLeft(path, "/")
	if len(params) > 0 {
		u += "?" + params.Encode()
	}
	return u
}

// do sends one request per attempt, waiting on the limiter first. Network
// errors, 429 and 5xx responses are retried; 404 maps to ErrNotFound.
func (c *restClient) do(ctx context.Context, method, rawURL string, body []byte, accept string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= c.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(c.backoff * time.Duration(attempt)):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait failed: %w", err)
		}

		data, err := c.once(ctx, method, rawURL, body, accept)
		if err == nil {
			return data, nil
		}
		lastErr = err

		var se *statusError
		if errors.Is(err, ErrNotFound) || ctx.Err() != nil {
			return nil, err
		}
		if errors.As(err, &se) && !se.retryable() {
			return nil, err
		}
	}
	return nil, lastErr
}

func (c *restClient) once(ctx context.Context, method, rawURL string, body []byte, accept string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", c.service, err)
	}
	req.Header.Set("User-Agent", userAgent)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s request failed: %w", c.service, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", c.service, err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s: %w", c.service, ErrNotFound)
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, &statusError{Service: c.service, Status: resp.StatusCode}
	}
	return data, nil
}

func (c *restClient) getJSON(ctx context.Context, rawURL string, out any) error {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, "application/json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}

func (c *restClient) postJSON(ctx context.Context, rawURL string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to encode %s request: %w", c.service, err)
	}
	data, err := c.do(ctx, http.MethodPost, rawURL, body, "application/json")
	if err != nil {
		return err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// RCSB search answers 204 with an empty body when nothing matches.
		return fmt.Errorf("%s: %w", c.service, ErrNotFound)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", c.service, err)
	}
	return nil
}

func (c *restClient) getText(ctx context.Context, rawURL string) (string, error) {
	data, err := c.do(ctx, http.MethodGet, rawURL, nil, "")
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func notFoundf(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrNotFound)
}
