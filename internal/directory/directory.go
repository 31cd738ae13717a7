// Package directory talks to a Polkachu-compatible chain directory
// service over its JSON API.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// DefaultBaseURL is the public directory service.
const DefaultBaseURL = "https://polkachu.com"

// Client is a thin HTTP client for the directory API.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a directory client for the given base URL. An empty
// base URL selects the public service.
func NewClient(baseURL string, log *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     log,
	}
}

// Chains lists the network identifiers the directory supports.
func (c *Client) Chains(ctx context.Context) ([]string, error) {
	var chains []string
	if err := c.getJSON(ctx, "/api/v2/chains", &chains); err != nil {
		return nil, err
	}
	return chains, nil
}

// Details returns chain metadata, including which directory services are
// active for the network.
func (c *Client) Details(ctx context.Context, network string) (ChainDetails, error) {
	var details ChainDetails
	if err := c.getJSON(ctx, "/api/v2/chains/"+url.PathEscape(network), &details); err != nil {
		return ChainDetails{}, err
	}
	return details, nil
}

// LivePeers fetches one batch of raw candidate endpoints for the network.
// Entries are unvalidated and may repeat across calls; callers filter and
// deduplicate.
func (c *Client) LivePeers(ctx context.Context, network string) ([]string, error) {
	var resp LivePeersResponse
	path := "/api/v2/chains/" + url.PathEscape(network) + "/live_peers"
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}
	c.log.Debug("fetched live peers",
		zap.String("network", network), zap.Int("count", len(resp.LivePeers)))
	return resp.LivePeers, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		msg := strings.TrimSpace(string(body))
		return fmt.Errorf("request failed: %s: %s", res.Status, msg)
	}
	return json.NewDecoder(res.Body).Decode(out)
}
