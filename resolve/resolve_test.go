package resolve

import (
	"context"
	"net"
	"testing"
)

func TestResolveUnixDomainPath(t *testing.T) {
	t.Parallel()

	r := Resolver{}
	candidates, err := r.Resolve(context.Background(), "/tmp/tarantool.sock", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(candidates))
	}
	if candidates[0].Network != "unix" || candidates[0].Address != "/tmp/tarantool.sock" {
		t.Fatalf("candidate = %+v", candidates[0])
	}
}

func TestResolveUnixLiteralService(t *testing.T) {
	t.Parallel()

	r := Resolver{}
	candidates, err := r.Resolve(context.Background(), "/tmp/tarantool.sock", "unix")
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 1 || candidates[0].Network != "unix" {
		t.Fatalf("candidates = %+v", candidates)
	}
}

func TestResolveTCPProducesOneCandidatePerAddress(t *testing.T) {
	t.Parallel()

	r := Resolver{
		LookupIPAddr: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return []net.IPAddr{
				{IP: net.ParseIP("127.0.0.1")},
				{IP: net.ParseIP("::1")},
			}, nil
		},
	}

	candidates, err := r.Resolve(context.Background(), "localhost", "3301")
	if err != nil {
		t.Fatal(err)
	}
	if len(candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(candidates))
	}
	if candidates[0].Network != "tcp" || candidates[0].Address != "127.0.0.1:3301" {
		t.Fatalf("candidate 0 = %+v", candidates[0])
	}
	if candidates[1].Address != "[::1]:3301" {
		t.Fatalf("candidate 1 = %+v", candidates[1])
	}
}

func TestResolveTCPPropagatesLookupError(t *testing.T) {
	t.Parallel()

	r := Resolver{
		LookupIPAddr: func(ctx context.Context, host string) ([]net.IPAddr, error) {
			return nil, &net.DNSError{Err: "no such host", Name: host}
		},
	}

	if _, err := r.Resolve(context.Background(), "nope.invalid", "3301"); err == nil {
		t.Fatal("expected error")
	}
}
