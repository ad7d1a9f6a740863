package remote

import (
	"context"
	"net"
	"net/url"
	"time"
)

// OnlineChecker reports whether the device has network connectivity at
// all. This is distinct from the backend being reachable: a device on a
// working network may still fail to reach the backend.
type OnlineChecker interface {
	Online(ctx context.Context) bool
}

// DNSOnlineChecker considers the device online when the backend's host
// name resolves.
type DNSOnlineChecker struct {
	host     string
	resolver *net.Resolver
	timeout  time.Duration
}

// NewDNSOnlineChecker builds a checker for the host of the given base
// URL. Literal IP addresses always resolve, which is the desired
// behavior for local development backends.
func NewDNSOnlineChecker(baseURL string) (*DNSOnlineChecker, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	return &DNSOnlineChecker{
		host:     u.Hostname(),
		resolver: net.DefaultResolver,
		timeout:  3 * time.Second,
	}, nil
}

func (c *DNSOnlineChecker) Online(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if ip := net.ParseIP(c.host); ip != nil {
		return true
	}
	addrs, err := c.resolver.LookupHost(ctx, c.host)
	return err == nil && len(addrs) > 0
}

// AlwaysOnline is an OnlineChecker for tests and environments without
// meaningful connectivity detection.
type AlwaysOnline struct{}

func (AlwaysOnline) Online(ctx context.Context) bool {
	return true
}
