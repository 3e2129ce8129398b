// Package ebay implements a client for the eBay Browse API using OAuth
// client-credentials authentication.
package ebay

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tbone30/card-trader/internal/domain"
)

const (
	// oauthScope is the only scope the Browse API search endpoint needs.
	oauthScope = "https://api.ebay.com/oauth/api_scope"

	// tokenRefreshMargin expires cached tokens early so a request never
	// races the real expiry.
	tokenRefreshMargin = 5 * time.Minute

	// maxSearchLimit is the Browse API per-request ceiling.
	maxSearchLimit = 200

	// defaultCategoryID is eBay's "Trading Card Games" category.
	defaultCategoryID = "2536"

	// rateLimitKey is the shared limiter bucket for Browse API calls.
	rateLimitKey = "ebay:browse"
)

// Config configures a Client.
type Config struct {
	ClientID      string
	ClientSecret  string
	BaseURL       string // Browse API root, e.g. "https://api.ebay.com/buy/browse/v1"
	TokenURL      string // OAuth token endpoint
	MarketplaceID string // e.g. "EBAY_US"

	// Limiter, when set, gates every Browse API call. Optional.
	Limiter domain.RateLimiter
}

// Client is the REST client for the eBay Browse API. It caches the OAuth
// application token and refreshes it ahead of expiry.
type Client struct {
	cfg        Config
	httpClient *http.Client
	now        func() time.Time

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates a new eBay Browse API client.
func NewClient(cfg Config) *Client {
	if cfg.MarketplaceID == "" {
		cfg.MarketplaceID = "EBAY_US"
	}
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		now: time.Now,
	}
}

// SearchRequest describes one item_summary search.
type SearchRequest struct {
	Query    string
	MaxPrice decimal.Decimal // optional price ceiling; zero means no cap
	Limit    int             // capped at 200 by the API
	Category string          // defaults to the trading-card category
}

// Search runs a Browse API item_summary search for fixed-price and auction
// listings shipped within the US, sorted by price ascending.
func (c *Client) Search(ctx context.Context, req SearchRequest) ([]ItemSummary, error) {
	if strings.TrimSpace(req.Query) == "" {
		return nil, fmt.Errorf("ebay: search: %w: empty query", domain.ErrValidation)
	}

	if c.cfg.Limiter != nil {
		if err := c.cfg.Limiter.Wait(ctx, rateLimitKey); err != nil {
			return nil, fmt.Errorf("ebay: search: %w", err)
		}
	}

	token, err := c.token(ctx)
	if err != nil {
		return nil, fmt.Errorf("ebay: search: %w", err)
	}

	limit := req.Limit
	if limit <= 0 || limit > maxSearchLimit {
		limit = maxSearchLimit
	}
	category := req.Category
	if category == "" {
		category = defaultCategoryID
	}

	filters := []string{
		"buyingOptions:{FIXED_PRICE|AUCTION}",
		"itemLocationCountry:US",
		"deliveryCountry:US",
	}
	if req.MaxPrice.IsPositive() {
		filters = append(filters,
			fmt.Sprintf("price:[..%s]", req.MaxPrice.StringFixed(2)),
			"priceCurrency:USD",
		)
	}

	params := url.Values{}
	params.Set("q", req.Query)
	params.Set("category_ids", category)
	params.Set("filter", strings.Join(filters, ","))
	params.Set("sort", "price")
	params.Set("limit", strconv.Itoa(limit))
	params.Set("fieldgroups", "MATCHING_ITEMS,EXTENDED")

	endpoint := c.cfg.BaseURL + "/item_summary/search?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("ebay: create search request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)
	httpReq.Header.Set("X-EBAY-C-MARKETPLACE-ID", c.cfg.MarketplaceID)
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("ebay: search request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("ebay: read search response: %w", err)
	}

	if err := c.checkStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}

	var out searchResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("ebay: decode search response: %w", err)
	}

	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, fmt.Errorf("ebay: search: %w: %s", domain.ErrUpstream, strings.Join(msgs, "; "))
	}

	return out.ItemSummaries, nil
}

// SearchListings searches and converts the results to domain Listings,
// dropping items without an ID, title, or positive price.
func (c *Client) SearchListings(ctx context.Context, req SearchRequest) ([]domain.Listing, error) {
	items, err := c.Search(ctx, req)
	if err != nil {
		return nil, err
	}

	listings := make([]domain.Listing, 0, len(items))
	for _, item := range items {
		if l, ok := item.ToListing(); ok {
			listings = append(listings, l)
		}
	}
	return listings, nil
}

// ResetToken drops the cached OAuth token so the next call fetches a fresh
// one. Called after an authentication failure.
func (c *Client) ResetToken() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = ""
	c.tokenExpiry = time.Time{}
}

// token returns the cached application token, refreshing it when missing or
// within the refresh margin of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && c.now().Before(c.tokenExpiry) {
		return c.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("scope", oauthScope)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create token request: %w", err)
	}

	creds := base64.StdEncoding.EncodeToString([]byte(c.cfg.ClientID + ":" + c.cfg.ClientSecret))
	req.Header.Set("Authorization", "Basic "+creds)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read token response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token request: %w: HTTP %d: %s", domain.ErrUnauthorized, resp.StatusCode, truncate(body, 256))
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode token response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", fmt.Errorf("token response missing access_token: %w", domain.ErrUnauthorized)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = c.now().Add(time.Duration(tok.ExpiresIn)*time.Second - tokenRefreshMargin)
	return c.accessToken, nil
}

// checkStatus maps non-2xx Browse API responses to domain errors. A 401
// clears the cached token so the next call re-authenticates.
func (c *Client) checkStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		c.ResetToken()
		return fmt.Errorf("ebay: %w: HTTP %d", domain.ErrUnauthorized, statusCode)
	case http.StatusTooManyRequests:
		return fmt.Errorf("ebay: %w: HTTP 429", domain.ErrRateLimited)
	default:
		return fmt.Errorf("ebay: %w: HTTP %d: %s", domain.ErrUpstream, statusCode, truncate(body, 256))
	}
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
