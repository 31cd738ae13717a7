package directory

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestChainsDecodesList(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/chains", r.URL.Path)
		_, _ = w.Write([]byte(`["cosmos","osmosis","dydx"]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	chains, err := c.Chains(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"cosmos", "osmosis", "dydx"}, chains)
}

func TestDetailsDecodesServices(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/chains/dydx", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"network": "dydx",
			"name": "dYdX",
			"chain_id": "dydx-mainnet-1",
			"polkachu_services": {
				"live_peers": {"active": true, "details": "https://polkachu.com/live_peers/dydx"}
			}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	details, err := c.Details(context.Background(), "dydx")
	require.NoError(t, err)
	assert.Equal(t, "dYdX", details.Name)
	assert.Equal(t, "dydx-mainnet-1", details.ChainID)
	assert.True(t, details.Services.LivePeers.Active)
}

func TestLivePeersDecodesDocument(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v2/chains/cosmos/live_peers", r.URL.Path)
		_, _ = w.Write([]byte(`{
			"network": "cosmos",
			"polkachu_peer": "babc123@65.108.1.1:26656",
			"live_peers": ["aaa@1.2.3.4:26656", "bbb@5.6.7.8:26656"]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	peers, err := c.LivePeers(context.Background(), "cosmos")
	require.NoError(t, err)
	assert.Equal(t, []string{"aaa@1.2.3.4:26656", "bbb@5.6.7.8:26656"}, peers)
}

func TestClientErrorIncludesBody(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "chain not found", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, zap.NewNop())
	_, err := c.LivePeers(context.Background(), "nope")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chain not found")
	assert.Contains(t, err.Error(), "404")
}

func TestSuggestRanksCloseMatches(t *testing.T) {
	t.Parallel()
	known := []string{"cosmos", "osmosis", "dydx", "juno", "kujira"}
	assert.Equal(t, []string{"cosmos"}, Suggest("cosmo", known))
	assert.Equal(t, []string{"dydx"}, Suggest("dydxx", known))
	assert.Equal(t, []string{"osmosis"}, Suggest("OSMOSIS", known))
}

func TestSuggestDropsDistantNames(t *testing.T) {
	t.Parallel()
	assert.Empty(t, Suggest("zzzzzz", []string{"cosmos", "juno"}))
	assert.Empty(t, Suggest("anything", nil))
}

func TestSuggestCapsAtThree(t *testing.T) {
	t.Parallel()
	known := []string{"peer1", "peer2", "peer3", "peer4", "peer5"}
	got := Suggest("peer0", known)
	assert.Len(t, got, 3)
}
