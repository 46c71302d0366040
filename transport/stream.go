// Package transport implements the non-blocking byte-stream
// abstraction IPROTO connections run over: a status bitfield (see
// status.go), a plain TCP/Unix variant, and a TLS variant layered over
// it. Every stream reports would-block as a zero-length, error-free
// result plus a status bit rather than blocking the caller, so a
// single goroutine can drive many streams cooperatively if it wants
// to — though nothing stops a caller from dedicating one goroutine per
// stream and calling these methods in blocking style via session,
// which is the common case.
package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Kind selects the stream's transport: plain or TLS. An actual stream
// can reject a Kind it doesn't support.
type Kind int

const (
	KindPlain Kind = iota
	KindTLS
)

func (k Kind) String() string {
	switch k {
	case KindPlain:
		return "plain"
	case KindTLS:
		return "tls"
	default:
		return "unknown"
	}
}

// DefaultConnectTimeout is used when ConnectOptions.ConnectTimeout is
// the zero value.
const DefaultConnectTimeout = 2 * time.Second

// ConnectOptions bundles everything a connect needs: the destination,
// the desired transport, and (for TLS) certificate material.
type ConnectOptions struct {
	// Address is the server host or a Unix-domain socket path.
	Address string
	// Service is the port name/number, or empty (or the literal
	// string "unix") to select a Unix-domain socket at Address.
	Service string
	// Kind is the desired transport. An actual stream type can
	// reject values it doesn't support.
	Kind Kind
	// ConnectTimeout bounds connection establishment. Zero means
	// DefaultConnectTimeout.
	ConnectTimeout time.Duration

	User   string
	Passwd string

	// TLS material; only consulted when Kind == KindTLS.
	SSLCertFile string
	SSLKeyFile  string
	SSLCAFile   string
	// SSLCiphers, if set, restricts the negotiated cipher suite using
	// an OpenSSL cipher-list string. Go's crypto/tls has no OpenSSL
	// cipher-string parser, so this is rejected rather than silently
	// ignored; see buildTLSConfig.
	SSLCiphers string
	// SSLPasswd/SSLPasswdFile would unlock an encrypted client key.
	// Unsupported: Go's x509 package dropped legacy PEM decryption, so
	// a non-empty value here is rejected rather than silently ignored;
	// see loadKeyPair.
	SSLPasswd     string
	SSLPasswdFile string
}

func (o ConnectOptions) connectTimeout() time.Duration {
	if o.ConnectTimeout <= 0 {
		return DefaultConnectTimeout
	}
	return o.ConnectTimeout
}

func (o ConnectOptions) isUnix() bool {
	return o.Service == "" || o.Service == "unix"
}

func (o ConnectOptions) String() string {
	if o.isUnix() {
		return fmt.Sprintf("%s(unix)", o.Address)
	}
	if o.Kind == KindTLS {
		return fmt.Sprintf("%s:%s(tls)", o.Address, o.Service)
	}
	return fmt.Sprintf("%s:%s", o.Address, o.Service)
}

// Errors a Stream implementation returns. Transport errors beyond
// these are wrapped with additional context but still satisfy
// errors.Is against one of these sentinels where applicable.
var (
	// ErrNotEstablished is returned by Send/Recv when called on a
	// stream that isn't ESTABLISHED.
	ErrNotEstablished = errors.New("transport: stream not established")
	// ErrAlreadyConnecting is returned by Connect on a stream that is
	// not DEAD (already connecting or connected).
	ErrAlreadyConnecting = errors.New("transport: connect called on a non-dead stream")
	// ErrPeerClosed is returned by Recv when the peer has performed
	// an orderly shutdown (a zero-length read); the stream is marked
	// DEAD before this is returned.
	ErrPeerClosed = errors.New("transport: peer shutdown")
	// ErrUnsupportedTLSOption is returned by TLSStream.Connect when
	// opts requests a TLS feature this module can't actually honor
	// (an OpenSSL cipher-list restriction, an encrypted client key),
	// rather than accepting it and silently leaving it unapplied.
	ErrUnsupportedTLSOption = errors.New("transport: unsupported tls option")
)

// Stream abstracts a connected byte stream with non-blocking
// semantics: Send/Recv never block the caller. A would-block result
// is (0, nil) with a needs-event status bit set for the attempted
// direction; the caller is expected to watch Status and retry once
// the runtime's netpoller reports progress is possible again (see
// Await, which does exactly this for the common single-stream case).
type Stream interface {
	// Connect dials according to opts, refusing unless the stream is
	// currently DEAD.
	Connect(ctx context.Context, opts ConnectOptions) error
	// Send writes data, returning the number of bytes accepted. A
	// return of (0, nil) means the call would have blocked; consult
	// Status for which event to wait on.
	Send(data []byte) (int, error)
	// Recv reads into data, returning the number of bytes read. A
	// return of (0, nil) means the call would have blocked.
	Recv(data []byte) (int, error)
	// Close releases the stream's resources. Reentrant.
	Close() error
	// Status reports the current bitfield.
	Status() Word
}
