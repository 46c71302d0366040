// Package resolve turns a (address, service) pair into an ordered
// list of dialable candidates, the way the transport layer's connect
// loop walks candidates until one succeeds.
package resolve

import (
	"context"
	"fmt"
	"net"
)

// Candidate is one endpoint a connect attempt can be made against.
type Candidate struct {
	// Network is the net.Dial network: "unix" or "tcp".
	Network string
	// Address is the net.Dial address: a filesystem path for "unix",
	// or "host:port" for "tcp".
	Address string
}

func (c Candidate) String() string {
	return c.Network + ":" + c.Address
}

// Resolver resolves a (address, service) pair to candidates. The zero
// value is ready to use and resolves through net.DefaultResolver.
type Resolver struct {
	// LookupIPAddr overrides the resolution function, mainly for
	// tests. Defaults to (&net.Resolver{}).LookupIPAddr.
	LookupIPAddr func(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Resolve produces the candidate list for (address, service). If
// service is empty or the literal "unix", address is treated as a
// Unix-domain socket path and a single AF_UNIX candidate is returned
// without performing any network resolution. Otherwise address is
// resolved AF_UNSPEC-style (both A and AAAA records considered) and
// one "tcp" candidate is returned per resolved address, preserving
// resolver order.
func (r Resolver) Resolve(ctx context.Context, address, service string) ([]Candidate, error) {
	if service == "" || service == "unix" {
		return []Candidate{{Network: "unix", Address: address}}, nil
	}

	lookup := r.LookupIPAddr
	if lookup == nil {
		lookup = (&net.Resolver{}).LookupIPAddr
	}

	addrs, err := lookup(ctx, address)
	if err != nil {
		return nil, fmt.Errorf("resolve: lookup %q: %w", address, err)
	}
	if len(addrs) == 0 {
		return nil, fmt.Errorf("resolve: lookup %q: no addresses found", address)
	}

	candidates := make([]Candidate, 0, len(addrs))
	for _, a := range addrs {
		candidates = append(candidates, Candidate{
			Network: "tcp",
			Address: net.JoinHostPort(a.IP.String(), service),
		})
	}
	return candidates, nil
}
