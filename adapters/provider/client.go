// Package provider implements the replenishment provider client for the
// carrier's subscription API.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/ports"
	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
)

// Defaults for the carrier API.
const (
	DefaultBaseURL   = "https://capi.odido.nl"
	DefaultUserAgent = "T-Mobile 5.3.28 (Android 10; 10)"
	DefaultZone      = "NL"
)

// knownBundleCodes are buying codes known to work; the API has no listing.
var knownBundleCodes = []string{
	"A0DAY01", // 2GB daily bundle
	"A0DAY05", // 5GB daily bundle
}

// Config configures the provider client.
type Config struct {
	BaseURL    string
	UserID     string
	Token      string
	UserAgent  string
	Zone       string
	Timeout    time.Duration
	MaxRetries int

	// RetryInitialInterval is the first connection-level retry delay.
	RetryInitialInterval time.Duration
}

func (c Config) withDefaults() Config {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.UserAgent == "" {
		c.UserAgent = DefaultUserAgent
	}
	if c.Zone == "" {
		c.Zone = DefaultZone
	}
	if c.Timeout == 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.RetryInitialInterval == 0 {
		c.RetryInitialInterval = time.Second
	}
	return c
}

// Client talks to the carrier API. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cfg        Config
	logger     zerolog.Logger

	mu              sync.Mutex
	subscriptionURL string
}

// NewClient creates a new provider client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	cfg = cfg.withDefaults()
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		logger:     logger.With().Str("adapter", "provider").Logger(),
	}
}

// Configured reports whether user id and token are set.
func (c *Client) Configured() bool {
	return c.cfg.UserID != "" && c.cfg.Token != ""
}

// KnownBundleCodes lists buying codes known to work.
func (c *Client) KnownBundleCodes() []string {
	out := make([]string, len(knownBundleCodes))
	copy(out, knownBundleCodes)
	return out
}

type subscriptionsResponse struct {
	Subscriptions []struct {
		SubscriptionURL string `json:"SubscriptionURL"`
		PhoneNumber     string `json:"PhoneNumber"`
		LinkID          string `json:"LinkId"`
	} `json:"subscriptions"`
}

// Subscriptions lists the linked subscriptions. The first subscription URL
// is remembered for bundle calls.
func (c *Client) Subscriptions(ctx context.Context) ([]ports.Subscription, error) {
	if !c.Configured() {
		return nil, ports.ErrProviderNotConfigured
	}

	var resp subscriptionsResponse
	if err := c.getJSON(ctx, c.cfg.BaseURL+"/"+c.cfg.UserID+"/linkedsubscriptions", &resp); err != nil {
		return nil, fmt.Errorf("list subscriptions: %w", err)
	}

	subs := make([]ports.Subscription, 0, len(resp.Subscriptions))
	for _, s := range resp.Subscriptions {
		subs = append(subs, ports.Subscription{
			URL:         s.SubscriptionURL,
			PhoneNumber: s.PhoneNumber,
			LinkID:      s.LinkID,
		})
	}

	if len(subs) > 0 {
		c.mu.Lock()
		if c.subscriptionURL == "" {
			c.subscriptionURL = subs[0].URL
		}
		c.mu.Unlock()
	}
	return subs, nil
}

type bundlesResponse struct {
	Bundles []struct {
		BuyingCode  string `json:"BuyingCode"`
		ZoneColor   string `json:"ZoneColor"`
		Description string `json:"Description"`
		Remaining   struct {
			Value float64 `json:"Value"`
		} `json:"Remaining"`
	} `json:"Bundles"`
}

// Bundles lists the roaming bundles of the primary subscription.
func (c *Client) Bundles(ctx context.Context) ([]ports.RoamingBundle, error) {
	if !c.Configured() {
		return nil, ports.ErrProviderNotConfigured
	}
	url, err := c.primarySubscription(ctx)
	if err != nil {
		return nil, err
	}

	var resp bundlesResponse
	if err := c.getJSON(ctx, url+"/roamingbundles", &resp); err != nil {
		return nil, fmt.Errorf("list bundles: %w", err)
	}

	out := make([]ports.RoamingBundle, 0, len(resp.Bundles))
	for _, b := range resp.Bundles {
		out = append(out, ports.RoamingBundle{
			BuyingCode:     b.BuyingCode,
			ZoneColor:      b.ZoneColor,
			RemainingBytes: b.Remaining.Value,
			RemainingMB:    round2(b.Remaining.Value / 1024),
			Description:    b.Description,
		})
	}
	return out, nil
}

// RemainingBalance sums the remaining allowance of bundles in the configured zone.
func (c *Client) RemainingBalance(ctx context.Context) (float64, error) {
	bundles, err := c.Bundles(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, b := range bundles {
		if b.ZoneColor == c.cfg.Zone {
			total += b.RemainingBytes
		}
	}
	return round2(total / 1024), nil
}

type purchaseRequest struct {
	Bundles []purchaseBundle `json:"Bundles"`
}

type purchaseBundle struct {
	BuyingCode string `json:"BuyingCode"`
}

// BuyBundle purchases a bundle. The API answers 202 Accepted on success;
// any other 2xx body is returned without the success flag.
func (c *Client) BuyBundle(ctx context.Context, code string) (ports.PurchaseResult, error) {
	if !c.Configured() {
		return ports.PurchaseResult{}, ports.ErrProviderNotConfigured
	}
	if code == "" {
		code = bundle.DefaultBundleCode
	}
	url, err := c.primarySubscription(ctx)
	if err != nil {
		return ports.PurchaseResult{}, err
	}

	body, err := json.Marshal(purchaseRequest{Bundles: []purchaseBundle{{BuyingCode: code}}})
	if err != nil {
		return ports.PurchaseResult{}, fmt.Errorf("marshal purchase: %w", err)
	}

	c.logger.Info().Str("buying_code", code).Msg("purchasing bundle")

	// Purchases are not idempotent: no connection-level retry.
	resp, err := c.send(ctx, http.MethodPost, url+"/roamingbundles", body)
	if err != nil {
		return ports.PurchaseResult{}, fmt.Errorf("buy bundle: %w", err)
	}

	if resp.status == http.StatusAccepted {
		return ports.PurchaseResult{Success: true, BuyingCode: code, StatusCode: resp.status}, nil
	}
	if err := resp.err(); err != nil {
		return ports.PurchaseResult{}, fmt.Errorf("buy bundle: %w", err)
	}

	result := ports.PurchaseResult{BuyingCode: code, StatusCode: resp.status}
	if err := json.Unmarshal(resp.body, &result.Raw); err != nil {
		result.Raw = map[string]any{"raw": string(resp.body)}
	}
	return result, nil
}

func (c *Client) primarySubscription(ctx context.Context) (string, error) {
	c.mu.Lock()
	url := c.subscriptionURL
	c.mu.Unlock()
	if url != "" {
		return url, nil
	}

	subs, err := c.Subscriptions(ctx)
	if err != nil {
		return "", err
	}
	if len(subs) == 0 {
		return "", fmt.Errorf("%w: no subscriptions found", ports.ErrProvider)
	}
	return subs[0].URL, nil
}

// -----------------------------------------------------------------------------
// Transport
// -----------------------------------------------------------------------------

type response struct {
	status int
	body   []byte
}

func (r *response) err() error {
	if r.status >= 200 && r.status < 300 {
		return nil
	}
	if r.status == http.StatusUnauthorized {
		return fmt.Errorf("%w: invalid or expired access token", ports.ErrProviderAuth)
	}
	return fmt.Errorf("%w: status %d %s", ports.ErrProvider, r.status, http.StatusText(r.status))
}

func retryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusBadGateway,
		http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// getJSON performs a GET with connection-level retry on transport errors
// and retryable statuses, then decodes the body into out.
func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.cfg.RetryInitialInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.MaxRetries)), ctx)

	op := func() (*response, error) {
		resp, err := c.send(ctx, http.MethodGet, url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		if retryableStatus(resp.status) {
			return resp, resp.err()
		}
		return resp, nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.Warn().Err(err).Str("url", url).Dur("retry_in", wait).Msg("provider request failed, retrying")
	}

	resp, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		return err
	}
	if err := resp.err(); err != nil {
		return err
	}
	if err := json.Unmarshal(resp.body, out); err != nil {
		return fmt.Errorf("%w: expected JSON response: %v", ports.ErrProvider, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, url string, body []byte) (*response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	req.Header.Set("User-Agent", c.cfg.UserAgent)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: execute request: %v", ports.ErrProvider, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ports.ErrProvider, err)
	}

	if resp.StatusCode >= 400 {
		c.logger.Error().Int("status", resp.StatusCode).Str("method", method).Str("url", url).Msg("provider request failed")
	}
	return &response{status: resp.StatusCode, body: data}, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Ensure interface compliance.
var _ ports.Provider = (*Client)(nil)
