package link

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

var (
	ErrAddressRequired = errors.New("link: address required")
	ErrHostRequired    = errors.New("link: address missing host")
)

// Endpoint is the immutable connection descriptor, derived once from the
// configured address and never recomputed.
type Endpoint struct {
	Scheme string
	Host   string
	Path   string
	Query  string
}

// ParseEndpoint splits address into its endpoint fields and normalizes the
// scheme to the real-time-channel equivalent: secure HTTP-like schemes map
// to wss, everything else to ws.
func ParseEndpoint(address string) (Endpoint, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return Endpoint{}, ErrAddressRequired
	}
	u, err := url.Parse(address)
	if err != nil {
		return Endpoint{}, fmt.Errorf("link: parse address %q: %w", address, err)
	}
	if u.Host == "" {
		return Endpoint{}, fmt.Errorf("%w: %q", ErrHostRequired, address)
	}
	return Endpoint{
		Scheme: mapScheme(u.Scheme),
		Host:   u.Host,
		Path:   u.Path,
		Query:  u.RawQuery,
	}, nil
}

func mapScheme(scheme string) string {
	switch strings.ToLower(strings.TrimSpace(scheme)) {
	case "https", "wss":
		return "wss"
	default:
		return "ws"
	}
}

// URL renders scheme://host/path[?query]. The path's leading separator is
// stripped before re-joining; the query segment is appended only when
// present.
func (e Endpoint) URL() string {
	var b strings.Builder
	b.WriteString(e.Scheme)
	b.WriteString("://")
	b.WriteString(e.Host)
	b.WriteString("/")
	b.WriteString(strings.TrimPrefix(e.Path, "/"))
	if e.Query != "" {
		b.WriteString("?")
		b.WriteString(e.Query)
	}
	return b.String()
}
