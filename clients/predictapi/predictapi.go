package predictapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"predictwatch/config"
)

// Client talks to the upstream prediction-market HTTP API: the order-match
// feed and market metadata. Market lookups are cached with a TTL since the
// detectors ask for the same markets every cycle.
type Client struct {
	logger     *zap.Logger
	baseURL    string
	userAgent  string
	httpClient *http.Client

	marketTTL time.Duration
	mu        sync.Mutex
	markets   map[string]cachedMarket
}

type cachedMarket struct {
	market    *Market
	fetchedAt time.Time
}

func New(logger *zap.Logger, cfg *config.Config) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		logger:     logger,
		baseURL:    cfg.Feed.BaseURL,
		userAgent:  cfg.Feed.UserAgent,
		httpClient: &http.Client{Timeout: cfg.Feed.Timeout},
		marketTTL:  cfg.Feed.MarketTTL,
		markets:    make(map[string]cachedMarket),
	}
}

// OrderMatch is one raw feed record. Field shapes vary between feed
// versions, so anything that varies stays a json.RawMessage for the
// normalizer to interpret.
type OrderMatch struct {
	TransactionHash string          `json:"transactionHash"`
	Taker           json.RawMessage `json:"taker"`
	Maker           json.RawMessage `json:"maker"`
	TokenID         string          `json:"tokenId"`
	MarketID        string          `json:"marketId"`
	Market          json.RawMessage `json:"market"`
	Side            json.RawMessage `json:"side"`
	TakerAmount     string          `json:"takerAmount"`
	MakerAmount     string          `json:"makerAmount"`
	Price           json.RawMessage `json:"price"`
	ExecutedAt      json.RawMessage `json:"executedAt"`
	Timestamp       json.RawMessage `json:"timestamp"`
}

// Market is upstream market metadata used for scoring and the
// fast-resolving judgment.
type Market struct {
	ID             string     `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	YesPrice       *float64   `json:"yesPrice"`
	Volume24h      *float64   `json:"volume24h"`
	ResolutionDate *time.Time `json:"resolutionDate"`
	Closed         bool       `json:"closed"`
}

// matchEnvelope covers the response envelopes the feed has been seen to
// use; a bare array is also accepted.
type matchEnvelope struct {
	Data         []OrderMatch `json:"data"`
	OrderMatches []OrderMatch `json:"orderMatches"`
	Orders       []OrderMatch `json:"orders"`
}

// RecentOrderMatches fetches order matches executed at or after since.
func (c *Client) RecentOrderMatches(ctx context.Context, since time.Time, limit int) ([]OrderMatch, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	u.Path = "/v1/order-matches"

	q := u.Query()
	q.Set("since", strconv.FormatInt(since.Unix(), 10))
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	u.RawQuery = q.Encode()

	body, err := c.doGet(ctx, u.String())
	if err != nil {
		return nil, fmt.Errorf("get order matches: %w", err)
	}

	matches, err := decodeMatches(body)
	if err != nil {
		return nil, fmt.Errorf("decode order matches: %w", err)
	}
	return matches, nil
}

func decodeMatches(body []byte) ([]OrderMatch, error) {
	var bare []OrderMatch
	if err := json.Unmarshal(body, &bare); err == nil {
		return bare, nil
	}

	var env matchEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, err
	}
	switch {
	case env.Data != nil:
		return env.Data, nil
	case env.OrderMatches != nil:
		return env.OrderMatches, nil
	case env.Orders != nil:
		return env.Orders, nil
	}
	return nil, nil
}

// MarketInfo fetches market metadata, serving from the TTL cache when
// fresh. A 404 returns (nil, nil) so callers can degrade instead of
// treating an unknown market as a cycle failure.
func (c *Client) MarketInfo(ctx context.Context, marketID string) (*Market, error) {
	if marketID == "" {
		return nil, fmt.Errorf("marketID is empty")
	}

	c.mu.Lock()
	if entry, ok := c.markets[marketID]; ok && time.Since(entry.fetchedAt) < c.marketTTL {
		c.mu.Unlock()
		return entry.market, nil
	}
	c.mu.Unlock()

	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid baseURL: %w", err)
	}
	u.Path = "/v1/markets/" + url.PathEscape(marketID)

	body, err := c.doGet(ctx, u.String())
	if err != nil {
		if isNotFound(err) {
			c.cacheMarket(marketID, nil)
			return nil, nil
		}
		return nil, fmt.Errorf("get market %s: %w", marketID, err)
	}

	// Some deployments wrap the market in a data envelope; check that first
	// since a bare Market decode would silently accept the envelope too.
	var market Market
	var env struct {
		Data *Market `json:"data"`
	}
	if err := json.Unmarshal(body, &env); err == nil && env.Data != nil {
		market = *env.Data
	} else if err := json.Unmarshal(body, &market); err != nil {
		return nil, fmt.Errorf("decode market %s: %w", marketID, err)
	}

	c.cacheMarket(marketID, &market)
	return &market, nil
}

func (c *Client) cacheMarket(marketID string, m *Market) {
	c.mu.Lock()
	c.markets[marketID] = cachedMarket{market: m, fetchedAt: time.Now()}
	c.mu.Unlock()
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("status=%d body=%s", e.status, e.body)
}

func isNotFound(err error) bool {
	se, ok := err.(*httpStatusError)
	return ok && se.status == http.StatusNotFound
}

func (c *Client) doGet(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode/100 != 2 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(body)}
	}

	return body, nil
}
