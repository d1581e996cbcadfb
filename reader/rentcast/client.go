package rentcast

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "github.com/ehutt/rent-radar/config"
	"github.com/ehutt/rent-radar/logger"
)

// Client wraps the RentCast rental listings endpoint with credential
// injection and client-side rate limiting shared across all city workers.
type Client struct {
	baseURL    string
	state      string
	status     string
	pageLimit  int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Log
}

// NewClient builds a RentCast API client from configuration.
func NewClient(cfg *appconfig.Config) *Client {
	src := cfg.Source.RentCast
	transport := &http.Transport{
		MaxIdleConns:    src.ConnectionPool.MaxIdleConns,
		MaxConnsPerHost: src.ConnectionPool.MaxConnsPerHost,
		IdleConnTimeout: src.ConnectionPool.IdleConnTimeout,
	}

	var limiter *rate.Limiter
	if rl := cfg.Reader.RateLimit; rl.RequestsPerSecond > 0 {
		burst := rl.BurstSize
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(rl.RequestsPerSecond), burst)
	}

	return &Client{
		baseURL:   strings.TrimRight(src.BaseURL, "/"),
		state:     src.State,
		status:    src.Status,
		pageLimit: src.PageLimit,
		httpClient: &http.Client{
			Transport: apiKeyTransport{apiKey: src.APIKey, agent: "rent-radar/1.0", base: transport},
			Timeout:   cfg.Reader.Timeout,
		},
		limiter: limiter,
		log:     logger.GetLogger(),
	}
}

// PageLimit returns the configured page size, which doubles as the
// termination signal: a response with fewer listings ends pagination.
func (c *Client) PageLimit() int {
	return c.pageLimit
}

// FetchPage retrieves one page of active listings for a city. Each element
// of the result is the untouched provider payload for a single listing.
func (c *Client) FetchPage(ctx context.Context, city string, offset int) ([]json.RawMessage, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait: %w", err)
		}
	}

	params := url.Values{}
	params.Set("city", city)
	params.Set("state", c.state)
	params.Set("status", c.status)
	params.Set("limit", strconv.Itoa(c.pageLimit))
	params.Set("offset", strconv.Itoa(offset))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch listings city=%s offset=%d: %w", city, offset, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		c.log.WithComponent("rentcast_client").WithFields(logger.Fields{"city": city, "offset": offset}).
			Warn("rate limited by provider, backing off")
		time.Sleep(time.Second)
		return nil, fmt.Errorf("fetch listings city=%s offset=%d: status %d", city, offset, resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch listings city=%s offset=%d: status %d: %s", city, offset, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var page []json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, fmt.Errorf("decode listings page city=%s offset=%d: %w", city, offset, err)
	}
	return page, nil
}
