package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/higebu/netfd"

	"github.com/mickamy/iproto/resolve"
)

// TLSStream layers crypto/tls over a plain connection. Handshake and
// record I/O are driven through the same "immediate deadline" trick as
// PlainStream.
//
// Go's crypto/tls does not expose OpenSSL's SSL_ERROR_WANT_READ /
// SSL_ERROR_WANT_WRITE distinction during a retried handshake or
// record operation: net.Error.Timeout() only says "this call would
// have blocked", not which direction the underlying record actually
// needs. This stream therefore collapses both want-bits to "needs the
// socket readable before retrying" for both Send and Recv, a
// deliberate narrowing of the read-unblocks-write /
// write-unblocks-read cross-directional mapping — see DESIGN.md.
type TLSStream struct {
	status   Word
	opts     ConnectOptions
	resolver resolve.Resolver
	conn     *tls.Conn
	fd       int
	metrics  *Metrics
}

// NewTLSStream returns a TLSStream in the DEAD state.
func NewTLSStream() *TLSStream {
	return &TLSStream{status: NewWord()}
}

var _ Stream = (*TLSStream)(nil)

// WithMetrics attaches a Metrics collector, mirroring PlainStream.
func (s *TLSStream) WithMetrics(m *Metrics) *TLSStream {
	s.metrics = m
	return s
}

// WithResolver overrides the candidate resolver Connect uses.
func (s *TLSStream) WithResolver(r resolve.Resolver) *TLSStream {
	s.resolver = r
	return s
}

func (s *TLSStream) observeStatus() {
	if s.metrics != nil {
		s.metrics.observeStatus(s.fd, s.status.Raw())
	}
}

// Connect dials the plain TCP/Unix candidate the same way PlainStream
// does, then layers a TLS 1.2-only handshake on top: loads an optional
// client certificate/key and CA file, then drives the handshake
// eagerly via HandshakeContext the same way the original forces it
// eagerly rather than lazily on first record. SSLCiphers and an
// encrypted client key (SSLPasswd/SSLPasswdFile) are rejected up
// front by buildTLSConfig/loadKeyPair rather than silently ignored.
func (s *TLSStream) Connect(ctx context.Context, opts ConnectOptions) error {
	if !s.status.Has(StatusDead) {
		return ErrAlreadyConnecting
	}
	s.opts = opts
	s.status.Set(StatusConnectPending)
	defer s.observeStatus()

	candidates, err := s.resolver.Resolve(ctx, opts.Address, opts.Service)
	if err != nil {
		s.status.Set(StatusDead)
		return fmt.Errorf("transport: resolve %s: %w", opts, err)
	}

	tlsConf, err := buildTLSConfig(opts)
	if err != nil {
		s.status.Set(StatusDead)
		return fmt.Errorf("transport: tls config %s: %w", opts, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()

	var lastErr error
	dialer := net.Dialer{}
	for _, c := range candidates {
		raw, err := dialer.DialContext(dialCtx, c.Network, c.Address)
		if err != nil {
			lastErr = err
			continue
		}
		conn := tls.Client(raw, tlsConf)
		if err := conn.HandshakeContext(dialCtx); err != nil {
			_ = raw.Close()
			lastErr = err
			continue
		}
		s.conn = conn
		s.status.Set(StatusEstablished)
		if fd := netfd.GetFdFromConn(raw); fd >= 0 {
			s.fd = fd
			if s.metrics != nil {
				s.metrics.register(raw, fd)
			}
		}
		return nil
	}

	s.status.Set(StatusDead)
	if lastErr == nil {
		lastErr = errors.New("no candidates")
	}
	return fmt.Errorf("transport: tls connect %s: all candidates exhausted: %w", opts, lastErr)
}

// Send writes a TLS record. A handshake/record retry that would block
// on socket readiness is reported as (0, nil) with
// StatusNeedReadEventForWrite set, per the collapsed want-bit mapping
// documented on TLSStream.
func (s *TLSStream) Send(data []byte) (int, error) {
	if !s.status.Has(StatusEstablished) {
		return 0, ErrNotEstablished
	}
	s.status.Remove(StatusNeedWriteEvent | StatusNeedReadEventForWrite)
	defer s.observeStatus()
	if len(data) == 0 {
		return 0, nil
	}

	if err := s.conn.SetWriteDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("transport: tls send: set deadline: %w", err)
	}
	n, err := s.conn.Write(data)
	if n > 0 && s.metrics != nil {
		s.metrics.addBytesSent(s.fd, n)
	}
	if err != nil {
		if isTimeout(err) {
			s.status.Set(StatusNeedReadEventForWrite)
			return n, nil
		}
		s.status.Set(StatusDead)
		return n, fmt.Errorf("transport: tls send: %w", err)
	}
	return n, nil
}

// Recv reads a TLS record. A retry that would block on socket
// readiness is reported as (0, nil) with StatusNeedReadEventForRead
// set. SSL_ERROR_SYSCALL-with-errno-0 has no direct Go equivalent;
// crypto/tls instead surfaces io.EOF for that case already, so it
// collapses naturally onto the same ErrPeerClosed path as an orderly
// shutdown.
func (s *TLSStream) Recv(data []byte) (int, error) {
	if !s.status.Has(StatusEstablished) {
		return 0, ErrNotEstablished
	}
	s.status.Remove(StatusNeedReadEvent)
	defer s.observeStatus()

	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("transport: tls recv: set deadline: %w", err)
	}
	n, err := s.conn.Read(data)
	if n > 0 && s.metrics != nil {
		s.metrics.addBytesReceived(s.fd, n)
	}
	if err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			s.status.Set(StatusNeedReadEventForRead)
			return n, nil
		}
		s.status.Set(StatusDead)
		if errors.Is(err, os.ErrClosed) || errors.Is(err, io.EOF) {
			return n, ErrPeerClosed
		}
		return n, fmt.Errorf("transport: tls recv: %w", err)
	}
	if n == 0 {
		s.status.Set(StatusDead)
		return 0, ErrPeerClosed
	}
	return n, nil
}

// Close releases the stream's resources. Reentrant.
func (s *TLSStream) Close() error {
	if s.status.Has(StatusDead) {
		return nil
	}
	var err error
	if s.conn != nil {
		err = s.conn.Close()
	}
	s.status.Set(StatusDead)
	s.observeStatus()
	if s.metrics != nil && s.conn != nil {
		s.metrics.unregister(s.conn.NetConn())
	}
	if err != nil {
		return fmt.Errorf("transport: tls close: %w", err)
	}
	return nil
}

// Status reports the current bitfield.
func (s *TLSStream) Status() Word {
	return s.status
}

func buildTLSConfig(opts ConnectOptions) (*tls.Config, error) {
	conf := &tls.Config{MinVersion: tls.VersionTLS12, MaxVersion: tls.VersionTLS12}

	if opts.SSLCAFile != "" {
		pem, err := os.ReadFile(opts.SSLCAFile)
		if err != nil {
			return nil, fmt.Errorf("read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("parse ca file %s: no certificates found", opts.SSLCAFile)
		}
		conf.RootCAs = pool
	}

	if opts.SSLCertFile != "" {
		cert, err := loadKeyPair(opts)
		if err != nil {
			return nil, err
		}
		conf.Certificates = []tls.Certificate{cert}
	}

	if opts.SSLCiphers != "" {
		// crypto/tls.Config.CipherSuites takes []uint16 TLS suite IDs;
		// there is no OpenSSL cipher-list parser in the standard
		// library or anywhere in this module's dependency set. Rather
		// than accept the string and leave the restriction unapplied
		// (silently weakening the caller's intended security control),
		// reject it outright.
		return nil, fmt.Errorf("transport: tls: SSLCiphers %q: %w", opts.SSLCiphers, ErrUnsupportedTLSOption)
	}

	return conf, nil
}

// loadKeyPair reads the configured certificate and key files. An
// encrypted private key is rejected outright: Go's x509 package
// dropped legacy PEM decryption (DecryptPEMBlock's cipher support),
// and this module carries no third-party crypto dependency that
// replaces it, so SSLPasswd/SSLPasswdFile can't actually unlock
// anything. Keeping a password-fallback loop around a decoder that
// never uses the password would just disguise the gap as working
// code; failing fast here is honest about what's supported.
func loadKeyPair(opts ConnectOptions) (tls.Certificate, error) {
	if opts.SSLPasswd != "" || opts.SSLPasswdFile != "" {
		return tls.Certificate{}, fmt.Errorf("transport: tls: encrypted client keys: %w", ErrUnsupportedTLSOption)
	}

	certPEM, err := os.ReadFile(opts.SSLCertFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read cert file: %w", err)
	}
	keyPEM, err := os.ReadFile(opts.SSLKeyFile)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("read key file: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode key pair: %w", err)
	}
	return cert, nil
}

