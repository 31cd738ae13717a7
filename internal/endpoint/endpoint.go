// Package endpoint parses and renders peer endpoints in the
// directory-service form "<id>@<host>:<port>".
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// ErrFormat reports a candidate string that is not a valid peer endpoint.
var ErrFormat = errors.New("malformed peer endpoint")

// Endpoint is one peer endpoint as published by the directory service.
type Endpoint struct {
	ID   string
	Host string
	Port uint16
}

// Parse splits raw into its endpoint parts. The identifier must be
// non-empty, the host must be an IPv4 or IPv6 literal (names are rejected,
// never resolved), and the port must fit in 16 bits. On failure the error
// wraps ErrFormat and the zero Endpoint is returned, never a partial one.
func Parse(raw string) (Endpoint, error) {
	id, addr, ok := strings.Cut(raw, "@")
	if !ok {
		return Endpoint{}, fmt.Errorf("%w: missing '@' in %q", ErrFormat, raw)
	}
	if id == "" {
		return Endpoint{}, fmt.Errorf("%w: empty identifier in %q", ErrFormat, raw)
	}
	host, port, err := splitHostPort(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: %v in %q", ErrFormat, err, raw)
	}
	if _, err := netip.ParseAddr(host); err != nil {
		return Endpoint{}, fmt.Errorf("%w: host %q is not an IP literal", ErrFormat, host)
	}
	n, err := strconv.ParseUint(port, 10, 16)
	if err != nil {
		return Endpoint{}, fmt.Errorf("%w: bad port %q in %q", ErrFormat, port, raw)
	}
	return Endpoint{ID: id, Host: host, Port: uint16(n)}, nil
}

// String renders the canonical "<id>@<host>:<port>" form. IPv6 hosts stay
// unbracketed to match the directory format, so Parse(e.String()) == e.
func (e Endpoint) String() string {
	return e.ID + "@" + e.Host + ":" + strconv.FormatUint(uint64(e.Port), 10)
}

// splitHostPort accepts both "host:port" and the directory's unbracketed
// IPv6 form "h:h::h:port" by peeling the last colon when the standard
// split fails.
func splitHostPort(addr string) (host, port string, err error) {
	if host, port, err = net.SplitHostPort(addr); err == nil {
		return host, port, nil
	}
	last := strings.LastIndexByte(addr, ':')
	if last <= 0 || last == len(addr)-1 {
		return "", "", errors.New("missing ':' between host and port")
	}
	return addr[:last], addr[last+1:], nil
}
