// Package discovery announces the daemon's diagnostics endpoint over
// mDNS/DNS-SD using github.com/brutella/dnssd, adapted directly from the
// teacher's src/dns_sd.go (which announces its KISS-over-TCP service the
// same way: build a dnssd.Config, create a Service and a Responder, add
// the service, and respond in a background goroutine).
package discovery

import (
	"context"
	"fmt"

	"github.com/brutella/dnssd"
)

// ServiceType is this daemon's DNS-SD service type, analogous to the
// teacher's "_kiss-tnc._tcp".
const ServiceType = "_tschedcap._tcp"

// Announcer holds the running mDNS responder for one announced service.
type Announcer struct {
	responder dnssd.Responder
	cancel    context.CancelFunc
}

// Announce starts advertising name on port via DNS-SD.
func Announce(name string, port int) (*Announcer, error) {
	cfg := dnssd.Config{ //nolint:exhaustruct
		Name: name,
		Type: ServiceType,
		Port: port,
	}

	svc, err := dnssd.NewService(cfg)
	if err != nil {
		return nil, fmt.Errorf("discovery: new service: %w", err)
	}

	resp, err := dnssd.NewResponder()
	if err != nil {
		return nil, fmt.Errorf("discovery: new responder: %w", err)
	}

	if _, err := resp.Add(svc); err != nil {
		return nil, fmt.Errorf("discovery: add service: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		_ = resp.Respond(ctx)
	}()

	return &Announcer{responder: resp, cancel: cancel}, nil
}

// Close stops the responder.
func (a *Announcer) Close() {
	a.cancel()
}
