package dns

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/rs/zerolog/log"
)

// publicDNS are queried when the system resolver fails, which happens on
// networks with broken or filtered local DNS.
var publicDNS = []string{
	"1.1.1.1",         // Cloudflare
	"1.0.0.1",         // Cloudflare
	"8.8.8.8",         // Google
	"8.8.4.4",         // Google
	"9.9.9.9",         // Quad9
	"149.112.112.112", // Quad9
	"208.67.222.222",  // Cisco OpenDNS
	"208.67.220.220",  // Cisco OpenDNS
}

const (
	localTimeout  = time.Second
	remoteTimeout = 2 * time.Second
)

// Lookup resolves host with the system resolver and falls back to racing the
// public resolvers. IPv4 addresses are preferred.
func Lookup(ctx context.Context, host string) (string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return host, nil
	}

	lctx, cancel := context.WithTimeout(ctx, localTimeout)
	ip, err := lookupWith(lctx, &net.Resolver{}, host)
	cancel()
	if err == nil {
		return ip, nil
	}

	log.Debug().Err(err).Str("host", host).Msg("system DNS failed, trying public resolvers")
	return raceLookup(ctx, host)
}

// DialContext resolves the host part of addr with Lookup before dialing.
func DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, err
	}
	ip, err := Lookup(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("dns lookup failed: %w", err)
	}

	var d net.Dialer
	return d.DialContext(ctx, network, net.JoinHostPort(ip, port))
}

func raceLookup(ctx context.Context, host string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, remoteTimeout)
	defer cancel()

	type result struct {
		ip  string
		err error
	}
	results := make(chan result, len(publicDNS))

	for _, server := range publicDNS {
		go func(server string) {
			ip, err := lookupWith(ctx, resolverFor(server), host)
			results <- result{ip: ip, err: err}
		}(server)
	}

	for range publicDNS {
		select {
		case res := <-results:
			if res.err == nil {
				return res.ip, nil
			}
		case <-ctx.Done():
			return "", fmt.Errorf("resolve %s: %w", host, ctx.Err())
		}
	}
	return "", fmt.Errorf("resolve %s: all %d public resolvers failed", host, len(publicDNS))
}

func resolverFor(server string) *net.Resolver {
	return &net.Resolver{
		PreferGo: true,
		Dial: func(ctx context.Context, network, _ string) (net.Conn, error) {
			var d net.Dialer
			return d.DialContext(ctx, network, net.JoinHostPort(server, "53"))
		},
	}
}

func lookupWith(ctx context.Context, r *net.Resolver, host string) (string, error) {
	ips, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", err
	}
	if len(ips) == 0 {
		return "", errors.New("no addresses returned")
	}
	for _, ip := range ips {
		if net.ParseIP(ip).To4() != nil {
			return ip, nil
		}
	}
	return ips[0], nil
}
