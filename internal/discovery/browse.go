package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/grandcat/zeroconf"
)

// Browse collects every tunnel announced on the LAN within timeout.
func Browse(ctx context.Context, timeout time.Duration) ([]Tunnel, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var found []Tunnel
	for {
		select {
		case <-ctx.Done():
			return found, nil
		case entry, ok := <-entries:
			if !ok {
				return found, nil
			}
			t, ok := parseEntry(entry)
			if !ok || seen[t.Instance] {
				continue
			}
			seen[t.Instance] = true
			found = append(found, t)
		}
	}
}

// Find waits for the tunnel with the given label.
func Find(ctx context.Context, label string, timeout time.Duration) (Tunnel, error) {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return Tunnel{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	if err := resolver.Browse(ctx, ServiceType, domain, entries); err != nil {
		return Tunnel{}, err
	}

	for {
		select {
		case <-ctx.Done():
			return Tunnel{}, fmt.Errorf("tunnel %q not found (timeout)", label)
		case entry, ok := <-entries:
			if !ok {
				return Tunnel{}, fmt.Errorf("tunnel %q not found", label)
			}
			if t, ok := parseEntry(entry); ok && t.Label == label {
				return t, nil
			}
		}
	}
}
