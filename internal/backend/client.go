// Package backend is the HTTP client for the platform REST API that owns
// challenges, chat history and answer grading.
package backend

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
	"strconv"
	"strings"
	"time"

	"github.com/ashureev/shsh-practice/internal/domain"
	"github.com/ashureev/shsh-practice/internal/metrics"
)

// maxResponseBytes bounds how much of an upstream body is read.
const maxResponseBytes = 4 << 20

// ClientConfig holds platform API client configuration.
type ClientConfig struct {
	BaseURL string
	// Timeout bounds each request. It is the only deadline applied to history loads.
	Timeout time.Duration
}

// DefaultClientConfig returns default client configuration.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{Timeout: 15 * time.Second}
}

// Client calls the platform API on behalf of one bearer token.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	token      string
}

// NewClient creates a client without credentials.
func NewClient(cfg ClientConfig) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errors.New("base URL is required")
	}
	u, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base URL must be http or https, got %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig().Timeout
	}
	return &Client{
		baseURL:    u,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// WithToken returns a copy of c that sends token as a bearer credential.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = token
	return &cp
}

// FetchHistory loads one newest-first page of a practice conversation.
func (c *Client) FetchHistory(ctx context.Context, req domain.PageRequest) (domain.Page, error) {
	q := url.Values{}
	q.Set("user_id", req.Key.UserID)
	if req.PageSize > 0 {
		q.Set("limit", strconv.Itoa(req.PageSize))
	}
	if req.Cursor != "" {
		q.Set("cursor", req.Cursor)
	}

	var page domain.Page
	path := "/api/challenges/" + url.PathEscape(req.Key.ChallengeID) + "/chat/history"
	if err := c.do(ctx, "history", http.MethodGet, path, q, nil, &page); err != nil {
		return domain.Page{}, err
	}
	return page, nil
}

// SubmitAnswer posts an answer and returns the grading result.
func (c *Client) SubmitAnswer(ctx context.Context, sub domain.Submission) (domain.SubmissionResult, error) {
	body, err := json.Marshal(sub)
	if err != nil {
		return domain.SubmissionResult{}, fmt.Errorf("encode submission: %w", err)
	}

	var res domain.SubmissionResult
	path := "/api/challenges/" + url.PathEscape(sub.Key.ChallengeID) + "/submit"
	if err := c.do(ctx, "submit", http.MethodPost, path, nil, body, &res); err != nil {
		return domain.SubmissionResult{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body []byte, out any) error {
	// path is already escaped segment by segment.
	u := c.baseURL.JoinPath(path)
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.UpstreamRequestDuration.WithLabelValues(op, "transport_error").Observe(time.Since(start).Seconds())
		return fmt.Errorf("%s request: %w", op, err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			slog.Debug("failed to close upstream response body", "operation", op, "error", closeErr)
		}
	}()
	metrics.UpstreamRequestDuration.WithLabelValues(op, strconv.Itoa(resp.StatusCode)).Observe(time.Since(start).Seconds())

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read %s response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var errResp struct {
			Error string `json:"error"`
		}
		_ = json.Unmarshal(respBody, &errResp)
		return &StatusError{StatusCode: resp.StatusCode, Message: errResp.Error}
	}

	if out == nil || len(bytes.TrimSpace(respBody)) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}
