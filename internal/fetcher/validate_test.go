package fetcher

import (
	"context"
	"errors"
	"net"
	"testing"
)

// fakeLookup resolves every hostname to the given IPs without touching
// DNS.
func fakeLookup(ips ...string) LookupFunc {
	return func(ctx context.Context, host string) ([]net.IP, error) {
		out := make([]net.IP, 0, len(ips))
		for _, s := range ips {
			out = append(out, net.ParseIP(s))
		}
		return out, nil
	}
}

func TestValidator_Validate(t *testing.T) {
	tests := []struct {
		name         string
		url          string
		allowedHosts []string
		lookup       LookupFunc
		wantBlocked  bool
	}{
		{
			name:        "public https url accepted",
			url:         "https://example.com/article",
			lookup:      fakeLookup("93.184.216.34"),
			wantBlocked: false,
		},
		{
			name:        "loopback literal rejected",
			url:         "http://127.0.0.1/x",
			wantBlocked: true,
		},
		{
			name:        "private 192.168 literal rejected",
			url:         "http://192.168.1.5/",
			wantBlocked: true,
		},
		{
			name:        "private 10.0 literal rejected",
			url:         "http://10.0.0.8/admin",
			wantBlocked: true,
		},
		{
			name:        "private 172.16 literal rejected",
			url:         "http://172.16.20.1/",
			wantBlocked: true,
		},
		{
			name:        "link-local literal rejected",
			url:         "http://169.254.169.254/latest/meta-data/",
			wantBlocked: true,
		},
		{
			name:        "ipv6 loopback rejected",
			url:         "http://[::1]/",
			wantBlocked: true,
		},
		{
			name:        "ipv6 unique-local rejected",
			url:         "http://[fd12:3456:789a::1]/",
			wantBlocked: true,
		},
		{
			name:        "ipv6 link-local rejected",
			url:         "http://[fe80::1]/",
			wantBlocked: true,
		},
		{
			name:        "non-http scheme rejected",
			url:         "ftp://example.com/file",
			wantBlocked: true,
		},
		{
			name:        "file scheme rejected",
			url:         "file:///etc/passwd",
			wantBlocked: true,
		},
		{
			name:        "hostname resolving to private range rejected",
			url:         "https://internal.example.com/",
			lookup:      fakeLookup("10.1.2.3"),
			wantBlocked: true,
		},
		{
			name:        "hostname resolving to loopback rejected",
			url:         "https://rebind.example.com/",
			lookup:      fakeLookup("93.184.216.34", "127.0.0.1"),
			wantBlocked: true,
		},
		{
			name:         "host outside allow-list rejected",
			url:          "https://evil.com/page",
			allowedHosts: []string{"example.com"},
			lookup:       fakeLookup("93.184.216.34"),
			wantBlocked:  true,
		},
		{
			name:         "allow-listed host accepted",
			url:          "https://example.com/page",
			allowedHosts: []string{"example.com"},
			lookup:       fakeLookup("93.184.216.34"),
			wantBlocked:  false,
		},
		{
			name:         "subdomain of allow-listed domain accepted",
			url:          "https://blog.example.com/page",
			allowedHosts: []string{"example.com"},
			lookup:       fakeLookup("93.184.216.34"),
			wantBlocked:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewValidator(tt.allowedHosts)
			if tt.lookup != nil {
				v.Lookup = tt.lookup
			}
			_, err := v.Validate(context.Background(), tt.url)

			var blocked *BlockedURLError
			if tt.wantBlocked {
				if !errors.As(err, &blocked) {
					t.Errorf("Validate(%q) = %v, want BlockedURLError", tt.url, err)
				}
			} else if err != nil {
				t.Errorf("Validate(%q) unexpected error: %v", tt.url, err)
			}
		})
	}
}

func TestValidator_LookupFailure(t *testing.T) {
	v := NewValidator(nil)
	v.Lookup = func(ctx context.Context, host string) ([]net.IP, error) {
		return nil, errors.New("no such host")
	}
	_, err := v.Validate(context.Background(), "https://nosuchhost.example/")
	var blocked *BlockedURLError
	if !errors.As(err, &blocked) {
		t.Errorf("unresolvable host: got %v, want BlockedURLError", err)
	}
}
