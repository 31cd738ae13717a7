// Package geo resolves IP addresses to countries through the ipinfo.io
// batch endpoint.
package geo

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

	"go.uber.org/zap"
)

// DefaultBaseURL is the public ipinfo.io API.
const DefaultBaseURL = "https://ipinfo.io"

// batchMax caps addresses per request; larger inputs are chunked.
const batchMax = 100

// ErrAuth means the geolocation service rejected (or never received)
// credentials. Callers fail closed on it.
var ErrAuth = errors.New("geolocation credentials rejected")

// Client is a thin HTTP client for the geolocation service.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	log     *zap.Logger
}

// Option adjusts a Client at construction time.
type Option func(*Client)

// WithBaseURL points the client at a different service, mainly for tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithHTTPClient swaps the underlying HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// NewClient builds a geolocation client with the given access token.
func NewClient(token string, log *zap.Logger, opts ...Option) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		baseURL: DefaultBaseURL,
		token:   token,
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Countries resolves addrs to two-letter country codes in one batched
// round. Addresses the service cannot place are absent from the result.
// A missing token fails immediately with ErrAuth, before any request.
func (c *Client) Countries(ctx context.Context, addrs []string) (map[string]string, error) {
	if c.token == "" {
		return nil, fmt.Errorf("%w: no access token configured (set IPINFO_ACCESS_TOKEN)", ErrAuth)
	}
	out := make(map[string]string, len(addrs))
	for start := 0; start < len(addrs); start += batchMax {
		end := min(start+batchMax, len(addrs))
		if err := c.batch(ctx, addrs[start:end], out); err != nil {
			return nil, err
		}
	}
	c.log.Debug("geolocation batch resolved",
		zap.Int("addresses", len(addrs)), zap.Int("resolved", len(out)))
	return out, nil
}

// batch posts one chunk of "<addr>/country" lookups and merges the
// answers into out.
func (c *Client) batch(ctx context.Context, addrs []string, out map[string]string) error {
	keys := make([]string, len(addrs))
	for i, addr := range addrs {
		keys[i] = addr + "/country"
	}
	body, err := json.Marshal(keys)
	if err != nil {
		return fmt.Errorf("encode batch request: %w", err)
	}

	u := c.baseURL + "/batch?token=" + url.QueryEscape(c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("batch request failed: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden {
		return fmt.Errorf("%w: %s", ErrAuth, res.Status)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("batch request failed: %s: %s", res.Status, strings.TrimSpace(string(msg)))
	}

	var decoded map[string]any
	if err := json.NewDecoder(res.Body).Decode(&decoded); err != nil {
		return fmt.Errorf("decode batch response: %w", err)
	}
	for i, addr := range addrs {
		country, ok := decoded[keys[i]].(string)
		if !ok || country == "" {
			continue
		}
		out[addr] = country
	}
	return nil
}
