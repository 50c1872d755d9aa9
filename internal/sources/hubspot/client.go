package hubspot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mkoziy/crmsync/internal/ratelimit"
)

// DefaultBaseURL is the public CRM API host.
const DefaultBaseURL = "https://api.hubapi.com"

const maxErrorBody = 4 << 10

// Client handles CRM API requests.
type Client struct {
	httpClient *http.Client
	limiter    ratelimit.Limiter
	baseURL    string
	token      string
	logger     *zap.Logger
}

// NewClient creates a new CRM client. An empty baseURL selects DefaultBaseURL.
func NewClient(limiter ratelimit.Limiter, baseURL, token string, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    limiter,
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     logger,
	}
}

// ListProperties returns one page of property definitions for entity.
func (c *Client) ListProperties(ctx context.Context, entity, after string) (*PropertiesResponse, error) {
	params := url.Values{}
	params.Set("limit", "100")
	params.Set("archived", "false")
	if after != "" {
		params.Set("after", after)
	}

	var resp PropertiesResponse
	path := fmt.Sprintf("/crm/v3/properties/%s", url.PathEscape(entity))
	if err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list properties: %w", err)
	}
	return &resp, nil
}

// Search returns one page of objects matching req.
func (c *Client) Search(ctx context.Context, entity string, req SearchRequest) (*ObjectsResponse, error) {
	var resp ObjectsResponse
	path := fmt.Sprintf("/crm/v3/objects/%s/search", url.PathEscape(entity))
	if err := c.do(ctx, http.MethodPost, path, nil, req, &resp); err != nil {
		return nil, fmt.Errorf("search %s: %w", entity, err)
	}
	return &resp, nil
}

// ListObjects returns one page of object ids, either live or archived.
func (c *Client) ListObjects(ctx context.Context, entity string, archived bool, limit int, after string) (*ObjectsResponse, error) {
	params := url.Values{}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("archived", strconv.FormatBool(archived))
	if after != "" {
		params.Set("after", after)
	}

	var resp ObjectsResponse
	path := fmt.Sprintf("/crm/v3/objects/%s", url.PathEscape(entity))
	if err := c.do(ctx, http.MethodGet, path, params, nil, &resp); err != nil {
		return nil, fmt.Errorf("list %s: %w", entity, err)
	}
	return &resp, nil
}

// do sends one call, retrying rate-limit, server and timeout failures up to the
// limiter's retry budget.
func (c *Client) do(ctx context.Context, method, path string, params url.Values, body, out any) error {
	var payload []byte
	if body != nil {
		var err error
		if payload, err = json.Marshal(body); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}

	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	for attempt := 0; ; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}

		retryAfter, err := c.attempt(ctx, method, u, payload, out)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil || !retryable(err) || !ratelimit.ShouldRetry(attempt, c.limiter.MaxRetries()) {
			return err
		}

		delay := c.limiter.RetryAfter(attempt + 1)
		if retryAfter > delay {
			delay = retryAfter
		}
		c.logger.Warn("crm call failed, retrying",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("attempt", attempt+1),
			zap.Duration("delay", delay),
			zap.Error(err))
		if err := wait(ctx, delay); err != nil {
			return err
		}
	}
}

func (c *Client) attempt(ctx context.Context, method, u string, payload []byte, out any) (time.Duration, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("execute request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(raw)}
		_ = json.Unmarshal(raw, apiErr)
		return parseRetryAfter(resp.Header.Get("Retry-After")), apiErr
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return 0, fmt.Errorf("decode response: %w", err)
	}
	return 0, nil
}

func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// parseRetryAfter reads a Retry-After header given in seconds.
func parseRetryAfter(v string) time.Duration {
	secs, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
