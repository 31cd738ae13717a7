package directory

// ChainDetails mirrors the directory's chain metadata document.
type ChainDetails struct {
	Network  string   `json:"network"`
	Name     string   `json:"name"`
	ChainID  string   `json:"chain_id"`
	Services Services `json:"polkachu_services"`
}

// Services lists per-chain service availability.
type Services struct {
	LivePeers Service `json:"live_peers"`
}

// Service is one directory service entry.
type Service struct {
	Active  bool   `json:"active"`
	Details string `json:"details"`
}

// LivePeersResponse mirrors the live peers document.
type LivePeersResponse struct {
	Network      string   `json:"network"`
	PolkachuPeer string   `json:"polkachu_peer"`
	LivePeers    []string `json:"live_peers"`
}
