package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/higebu/netfd"

	"github.com/mickamy/iproto/resolve"
)

// PlainStream is a non-blocking, non-encrypted byte stream. It is
// built on net.Conn rather than hand-rolled syscalls: Go's net package
// already performs non-blocking connect/send/recv through the
// runtime's integrated netpoller, so re-implementing that with raw
// epoll/kqueue calls would duplicate machinery the standard library
// already provides. would-block detection is realized with the
// "immediate deadline" trick: set a deadline of time.Now() before a
// Send/Recv attempt so it returns instantly with os.ErrDeadlineExceeded
// instead of blocking, which this stream maps back onto the same
// needs-event status bits the original non-blocking-socket design
// used, keeping the status contract identical for callers even though
// the underlying mechanism differs.
type PlainStream struct {
	status   Word
	opts     ConnectOptions
	resolver resolve.Resolver
	conn     net.Conn
	fd       int
	metrics  *Metrics
}

// NewPlainStream returns a PlainStream in the DEAD state.
func NewPlainStream() *PlainStream {
	return &PlainStream{status: NewWord()}
}

var _ Stream = (*PlainStream)(nil)

func (s *PlainStream) observeStatus() {
	if s.metrics != nil {
		s.metrics.observeStatus(s.fd, s.status.Raw())
	}
}

// WithMetrics attaches a Metrics collector that tracks this stream's
// connection once established. Optional; nil (the default) disables
// metrics entirely.
func (s *PlainStream) WithMetrics(m *Metrics) *PlainStream {
	s.metrics = m
	return s
}

// WithResolver overrides the candidate resolver Connect uses. Optional;
// the zero-value resolve.Resolver (system DNS) is used by default.
func (s *PlainStream) WithResolver(r resolve.Resolver) *PlainStream {
	s.resolver = r
	return s
}

// Connect resolves opts.Address/opts.Service via the stream's resolver
// and dials each candidate in turn until one succeeds, matching the
// fall-through-to-next-candidate connect loop: a candidate that
// refuses or times out moves on to the next rather than failing the
// whole call, and only exhausting every candidate is a connect
// failure.
func (s *PlainStream) Connect(ctx context.Context, opts ConnectOptions) error {
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

	dialCtx, cancel := context.WithTimeout(ctx, opts.connectTimeout())
	defer cancel()

	var lastErr error
	dialer := net.Dialer{}
	for _, c := range candidates {
		conn, err := dialer.DialContext(dialCtx, c.Network, c.Address)
		if err != nil {
			lastErr = err
			continue
		}
		s.conn = conn
		s.status.Set(StatusEstablished)
		if fd := netfd.GetFdFromConn(conn); fd >= 0 {
			s.fd = fd
			if s.metrics != nil {
				s.metrics.register(conn, fd)
			}
		}
		return nil
	}

	s.status.Set(StatusDead)
	if lastErr == nil {
		lastErr = errors.New("no candidates")
	}
	return fmt.Errorf("transport: connect %s: all candidates exhausted: %w", opts, lastErr)
}

// Send writes data, clearing the needs-write-event bits first as the
// contract requires. A write that would block is reported as (0, nil)
// with StatusNeedWriteEventForWrite set.
func (s *PlainStream) Send(data []byte) (int, error) {
	if !s.status.Has(StatusEstablished) {
		return 0, ErrNotEstablished
	}
	s.status.Remove(StatusNeedWriteEvent)
	defer s.observeStatus()
	if len(data) == 0 {
		return 0, nil
	}

	if err := s.conn.SetWriteDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("transport: send: set deadline: %w", err)
	}
	n, err := s.conn.Write(data)
	if n > 0 && s.metrics != nil {
		s.metrics.addBytesSent(s.fd, n)
	}
	if err != nil {
		if isTimeout(err) {
			s.status.Set(StatusNeedWriteEventForWrite)
			return n, nil
		}
		s.status.Set(StatusDead)
		return n, fmt.Errorf("transport: send: %w", err)
	}
	return n, nil
}

// Recv reads into data, clearing the needs-read-event bits first. A
// read that would block is reported as (0, nil) with
// StatusNeedReadEventForRead set. An orderly peer shutdown marks the
// stream DEAD and returns ErrPeerClosed.
func (s *PlainStream) Recv(data []byte) (int, error) {
	if !s.status.Has(StatusEstablished) {
		return 0, ErrNotEstablished
	}
	s.status.Remove(StatusNeedReadEvent)
	defer s.observeStatus()

	if err := s.conn.SetReadDeadline(time.Now()); err != nil {
		return 0, fmt.Errorf("transport: recv: set deadline: %w", err)
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
		return n, fmt.Errorf("transport: recv: %w", err)
	}
	if n == 0 {
		s.status.Set(StatusDead)
		return 0, ErrPeerClosed
	}
	return n, nil
}

// Close releases the stream's resources. Reentrant: closing a DEAD
// stream is a no-op.
func (s *PlainStream) Close() error {
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
		s.metrics.unregister(s.conn)
	}
	if err != nil {
		return fmt.Errorf("transport: close: %w", err)
	}
	return nil
}

// Status reports the current bitfield.
func (s *PlainStream) Status() Word {
	return s.status
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return errors.Is(err, os.ErrDeadlineExceeded)
}
