// Package urlvalidation guards outbound webhook URLs against SSRF.
package urlvalidation

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"
)

// Resolver looks up the addresses of a host.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Option configures URL validation behavior.
type Option func(*validationConfig)

type validationConfig struct {
	allowPrivate bool
	resolver     Resolver
}

// AllowPrivateIPs disables the private address check. Useful for tests
// and for webhook receivers on the same private network.
func AllowPrivateIPs() Option {
	return func(c *validationConfig) {
		c.allowPrivate = true
	}
}

// WithResolver replaces the DNS resolver.
func WithResolver(r Resolver) Option {
	return func(c *validationConfig) {
		c.resolver = r
	}
}

var reserved = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("100.64.0.0/10"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("169.254.0.0/16"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.0.0.0/24"),
	netip.MustParsePrefix("192.0.2.0/24"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("198.18.0.0/15"),
	netip.MustParsePrefix("198.51.100.0/24"),
	netip.MustParsePrefix("203.0.113.0/24"),
	netip.MustParsePrefix("224.0.0.0/4"),
	netip.MustParsePrefix("240.0.0.0/4"),
	netip.MustParsePrefix("::1/128"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
}

// ValidateWebhookURL checks that rawURL is an http(s) URL whose host does
// not resolve to a private or reserved address.
func ValidateWebhookURL(rawURL string, opts ...Option) error {
	cfg := validationConfig{resolver: net.DefaultResolver}
	for _, opt := range opts {
		opt(&cfg)
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "https" && scheme != "http" {
		return fmt.Errorf("URL scheme %q not allowed; use http or https", u.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return fmt.Errorf("URL must have a hostname")
	}
	if cfg.allowPrivate {
		return nil
	}

	addrs, err := cfg.resolver.LookupHost(context.Background(), host)
	if err != nil {
		return fmt.Errorf("cannot resolve hostname %q: %w", host, err)
	}
	for _, a := range addrs {
		ip, err := netip.ParseAddr(a)
		if err != nil {
			continue
		}
		if IsPrivate(ip) {
			return fmt.Errorf("URL resolves to private/reserved IP %s", a)
		}
	}
	return nil
}

// IsPrivate reports whether ip is loopback, private, link-local or
// otherwise reserved.
func IsPrivate(ip netip.Addr) bool {
	ip = ip.Unmap()
	if ip.IsUnspecified() || ip == netip.AddrFrom4([4]byte{255, 255, 255, 255}) {
		return true
	}
	for _, p := range reserved {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
