// Package client talks to a running emiscope server.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/server"
)

const (
	requestTimeout = 10 * time.Second
	maxBodySize    = 4 << 20
)

// ErrUnreachable indicates nothing answered at the server address.
var ErrUnreachable = errors.New("client: server not reachable")

// Client calls the emiscope HTTP API.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a client for the server at baseURL, e.g. http://127.0.0.1:8790.
// A bare host:port is accepted. Returns nil if baseURL is empty or unparseable.
func New(baseURL string) *Client {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return nil
	}
	if !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	u, err := url.Parse(baseURL)
	if err != nil || u.Host == "" {
		return nil
	}
	return &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		http:    &http.Client{},
	}
}

// BaseURL returns the normalized server address.
func (c *Client) BaseURL() string { return c.baseURL }

// Health reports whether the server answers /healthz.
func (c *Client) Health(ctx context.Context) error {
	_, err := c.do(ctx, http.MethodGet, "/healthz", nil)
	return err
}

// Status fetches /v1/status.
func (c *Client) Status(ctx context.Context) (*server.Status, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/status", nil)
	if err != nil {
		return nil, err
	}
	var st server.Status
	if err := json.Unmarshal(body, &st); err != nil {
		return nil, fmt.Errorf("client: parsing status: %w", err)
	}
	return &st, nil
}

// Predict sends p to the route serving task and returns the decision.
func (c *Client) Predict(ctx context.Context, task string, p profile.RawProfile, strict bool) (inference.Decision, error) {
	path := "/v1/predict"
	switch task {
	case inference.TaskEligibility:
		path = "/v1/eligibility"
	case inference.TaskMaxEMI:
		path = "/v1/max-emi"
	}
	body, err := c.do(ctx, http.MethodPost, withStrict(path, strict), p)
	if err != nil {
		return inference.Decision{}, err
	}
	d, err := inference.DecodeDecision(body)
	if err != nil {
		return d, fmt.Errorf("client: %w", err)
	}
	return d, nil
}

// Features returns the aligned vector the server builds for p.
func (c *Client) Features(ctx context.Context, p profile.RawProfile, strict bool) (*server.FeaturesResponse, error) {
	body, err := c.do(ctx, http.MethodPost, withStrict("/v1/features", strict), p)
	if err != nil {
		return nil, err
	}
	var fr server.FeaturesResponse
	if err := json.Unmarshal(body, &fr); err != nil {
		return nil, fmt.Errorf("client: parsing features: %w", err)
	}
	return &fr, nil
}

// History fetches the latest limit predictions the server recorded.
func (c *Client) History(ctx context.Context, limit int) (*server.HistoryResponse, error) {
	body, err := c.do(ctx, http.MethodGet, "/v1/history?limit="+strconv.Itoa(limit), nil)
	if err != nil {
		return nil, err
	}
	var hr server.HistoryResponse
	if err := json.Unmarshal(body, &hr); err != nil {
		return nil, fmt.Errorf("client: parsing history: %w", err)
	}
	return &hr, nil
}

func withStrict(path string, strict bool) string {
	if strict {
		return path + "?strict=true"
	}
	return path
}

// do performs a request and returns the response body. Error responses are
// decoded back into coded errors.
func (c *Client) do(ctx context.Context, method, path string, payload interface{}) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("client: encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("client: creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("User-Agent", "github.com/theirongolddev/emiscope/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("client: reading response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, decodeError(resp.StatusCode, body)
	}
	return body, nil
}

func decodeError(status int, body []byte) error {
	var eb server.ErrorBody
	if err := json.Unmarshal(body, &eb); err != nil || eb.Error.Code == "" {
		return fmt.Errorf("client: unexpected status %d", status)
	}
	return &apperr.Error{
		Code:    eb.Error.Code,
		Message: eb.Error.Message,
		Details: eb.Error.Details,
	}
}
