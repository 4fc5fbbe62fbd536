package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/accumwatch/engine/internal/config"
	"github.com/accumwatch/engine/internal/metrics"
	"github.com/accumwatch/engine/internal/ratelimit"
)

// Client handles communication with the transfer feed API
type Client struct {
	baseURL      string
	httpClient   *http.Client
	authMode     config.AuthMode
	bearerToken  string
	apiKey       string
	extraHeaders map[string]string

	transfersLimiter *ratelimit.Limiter
	statsLimiter     *ratelimit.Limiter
}

// NewClient creates a new feed client
func NewClient(cfg *config.Config) *Client {
	return &Client{
		baseURL:      cfg.FeedBaseURL,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		authMode:     cfg.FeedAuthMode,
		bearerToken:  cfg.FeedBearerToken,
		apiKey:       cfg.FeedAPIKey,
		extraHeaders: cfg.FeedExtraHeaders,

		transfersLimiter: ratelimit.New(cfg.FeedTransfersRPS),
		statsLimiter:     ratelimit.New(cfg.FeedStatsRPS),
	}
}

// GetTransfers fetches transfer events at or after sinceTS, oldest first.
// The caller pages by advancing sinceTS past the last returned timestamp.
func (c *Client) GetTransfers(ctx context.Context, sinceTS int64, limit int) (*TransfersResponse, error) {
	// Rate limit
	if err := c.transfersLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	success := false
	defer func() { metrics.RecordAPIRequest("/transfers", success, time.Since(start)) }()

	u, err := url.Parse(c.baseURL + "/v1/transfers")
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	q := u.Query()
	q.Set("since", strconv.FormatInt(sinceTS, 10))
	q.Set("sortBy", "timestamp")
	q.Set("sortDirection", "ASC")
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("401 Unauthorized (auth_mode=%s) - check credentials", c.authMode)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var transfers []TransferEvent
	if err := json.NewDecoder(resp.Body).Decode(&transfers); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	success = true
	return &TransfersResponse{Transfers: transfers, Count: len(transfers)}, nil
}

// GetTokenStats fetches the current market snapshot for a token contract
func (c *Client) GetTokenStats(ctx context.Context, chain, contractAddress string) (*TokenStats, error) {
	// Rate limit
	if err := c.statsLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	start := time.Now()
	success := false
	defer func() { metrics.RecordAPIRequest("/tokens/stats", success, time.Since(start)) }()

	u, err := url.Parse(c.baseURL + "/v1/tokens/stats")
	if err != nil {
		return nil, fmt.Errorf("parse URL: %w", err)
	}

	q := u.Query()
	q.Set("chain", chain)
	q.Set("contract", contractAddress)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "GET", u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	c.setAuthHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, fmt.Errorf("401 Unauthorized (auth_mode=%s) - check credentials", c.authMode)
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("no stats for %s on %s", contractAddress, chain)
	}

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var stats TokenStats
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	success = true
	return &stats, nil
}

func (c *Client) setAuthHeaders(req *http.Request) {
	switch c.authMode {
	case config.AuthModeBearer:
		req.Header.Set("Authorization", "Bearer "+c.bearerToken)
	case config.AuthModeAPIKey:
		req.Header.Set("X-API-KEY", c.apiKey)
	case config.AuthModeNone:
		// No auth headers
	}

	// Add extra headers
	for k, v := range c.extraHeaders {
		req.Header.Set(k, v)
	}
}
