package fetcher

import (
	"context"
	"net"
	"net/url"
	"strings"
)

// LookupFunc resolves a hostname to IP addresses. Injectable so tests do
// not touch DNS.
type LookupFunc func(ctx context.Context, host string) ([]net.IP, error)

// Validator rejects URLs that would let a user steer the fetcher at
// internal network destinations, plus anything outside an optional
// allow-list.
type Validator struct {
	// AllowedHosts, when non-empty, restricts fetching to these hostnames
	// or their subdomains.
	AllowedHosts []string
	Lookup       LookupFunc
}

// NewValidator creates a Validator with the default resolver.
func NewValidator(allowedHosts []string) *Validator {
	return &Validator{
		AllowedHosts: allowedHosts,
		Lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		},
	}
}

// Validate checks the URL scheme, the allow-list, and that neither the
// literal host nor any resolved address falls in a private, loopback, or
// link-local range. A violation is a BlockedURLError.
func (v *Validator) Validate(ctx context.Context, rawURL string) (*url.URL, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, &BlockedURLError{URL: rawURL, Reason: "unparseable url"}
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, &BlockedURLError{URL: rawURL, Reason: "scheme must be http or https"}
	}
	host := u.Hostname()
	if host == "" {
		return nil, &BlockedURLError{URL: rawURL, Reason: "missing host"}
	}

	if len(v.AllowedHosts) > 0 && !v.hostAllowed(host) {
		return nil, &BlockedURLError{URL: rawURL, Reason: "host not in allow-list"}
	}

	if ip := net.ParseIP(host); ip != nil {
		if blockedIP(ip) {
			return nil, &BlockedURLError{URL: rawURL, Reason: "ip address in blocked range"}
		}
		return u, nil
	}

	ips, err := v.Lookup(ctx, host)
	if err != nil {
		return nil, &BlockedURLError{URL: rawURL, Reason: "hostname does not resolve"}
	}
	for _, ip := range ips {
		if blockedIP(ip) {
			return nil, &BlockedURLError{URL: rawURL, Reason: "host resolves to blocked range"}
		}
	}
	return u, nil
}

func (v *Validator) hostAllowed(host string) bool {
	host = strings.ToLower(host)
	for _, a := range v.AllowedHosts {
		a = strings.ToLower(strings.TrimSpace(a))
		if a == "" {
			continue
		}
		if host == a || strings.HasSuffix(host, "."+a) {
			return true
		}
	}
	return false
}

// blockedIP covers loopback, RFC1918 private, IPv6 unique-local, and
// link-local ranges, plus the unspecified address.
func blockedIP(ip net.IP) bool {
	return ip.IsLoopback() ||
		ip.IsPrivate() ||
		ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() ||
		ip.IsUnspecified()
}
