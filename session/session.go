// Package session is a thin façade over buffer, transport, and iproto:
// one IPROTO connection, one buffer, blocking-style request/response
// helpers built by looping the core's non-blocking primitives under
// an internal retry poller. It adds no wire behavior of its own —
// analogous to the teacher's proxy package wrapping its wire codecs
// around a relayed connection pair — and is not part of the protocol
// core's tested contract.
package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mickamy/iproto/auth"
	"github.com/mickamy/iproto/buffer"
	"github.com/mickamy/iproto/iproto"
	"github.com/mickamy/iproto/msgpack"
	"github.com/mickamy/iproto/resolve"
	"github.com/mickamy/iproto/transport"
)

// pollInterval is how often a blocking helper retries a would-block
// Send/Recv while waiting on the stream's status bits. It exists
// because Session targets any transport.Stream, including ones whose
// underlying fd isn't recoverable for a real readiness poll; a short
// sleep keeps the helper portable at the cost of a little latency
// over transport.Await's real poll(2) wait.
const pollInterval = time.Millisecond

// ID uniquely tags a Session, the way proxy.Event.ID tags one relayed
// connection in the teacher.
type ID = uuid.UUID

// Session owns one IPROTO connection: a stream, a send buffer, an
// encoder, a decoder, and a receive accumulator. Not safe for
// concurrent use by multiple goroutines, matching the single-
// threaded-per-stream concurrency model the core assumes.
type Session struct {
	id     ID
	stream transport.Stream

	sendBuf buffer.Buffer
	recvBuf []byte
	recvLen int

	enc *iproto.Encoder
	dec *iproto.ResponseDecoder

	salt []byte
}

// New dials opts and performs the greeting/auth handshake, returning a
// ready-to-use Session. The stream variant (plain or TLS) is selected
// by opts.Kind.
func New(ctx context.Context, resolver resolve.Resolver, opts transport.ConnectOptions) (*Session, error) {
	var stream transport.Stream
	switch opts.Kind {
	case transport.KindTLS:
		stream = transport.NewTLSStream().WithResolver(resolver)
	default:
		stream = transport.NewPlainStream().WithResolver(resolver)
	}
	return NewWithStream(ctx, stream, opts)
}

// NewWithStream is New, but dials an already-constructed
// transport.Stream instead of selecting one from opts.Kind. This lets
// a caller supply a decorated stream — inspector.Tap is the one this
// repo ships — that must sit between Session and the raw socket
// variant without Session knowing about the decoration.
func NewWithStream(ctx context.Context, stream transport.Stream, opts transport.ConnectOptions) (*Session, error) {
	s := &Session{
		id:      uuid.New(),
		stream:  stream,
		sendBuf: buffer.New(),
		recvBuf: make([]byte, 64*1024),
		enc:     iproto.NewEncoder(),
		dec:     iproto.NewResponseDecoder(),
	}

	if err := stream.Connect(ctx, opts); err != nil {
		return nil, fmt.Errorf("session: connect: %w", err)
	}

	greeting, err := s.recvExactly(ctx, iproto.GreetingSize)
	if err != nil {
		return nil, fmt.Errorf("session: read greeting: %w", err)
	}
	g, err := auth.ParseGreeting(greeting)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("session: parse greeting: %w", err)
	}
	s.salt = g.Salt
	s.consume(len(greeting))

	if opts.User != "" {
		if err := s.authenticate(ctx, opts.User, opts.Passwd); err != nil {
			_ = stream.Close()
			return nil, err
		}
	}

	return s, nil
}

// ID returns the session's identifier.
func (s *Session) ID() ID { return s.id }

// Close tears down the underlying stream.
func (s *Session) Close() error {
	return s.stream.Close()
}

func (s *Session) authenticate(ctx context.Context, user, passwd string) error {
	scramble, err := auth.Scramble(passwd, s.salt)
	if err != nil {
		return fmt.Errorf("session: scramble: %w", err)
	}

	s.sendBuf.Reset()
	if _, err := s.enc.EncodeAuth(s.sendBuf, user, scramble); err != nil {
		return fmt.Errorf("session: encode auth: %w", err)
	}
	resp, err := s.roundTrip(ctx, 0, true)
	if err != nil {
		return fmt.Errorf("session: auth: %w", err)
	}
	if len(resp.Body.Errors) > 0 {
		return fmt.Errorf("session: auth rejected: %s", resp.Body.Errors[0].Message)
	}
	return nil
}

// Ping sends a PING request and waits for the PONG response.
func (s *Session) Ping(ctx context.Context) (*iproto.Response, error) {
	s.sendBuf.Reset()
	sync, err := s.enc.EncodePing(s.sendBuf)
	if err != nil {
		return nil, fmt.Errorf("session: encode ping: %w", err)
	}
	return s.roundTrip(ctx, sync, false)
}

// Call invokes a stored Lua function by name.
func (s *Session) Call(ctx context.Context, function string, args msgpack.Array) (*iproto.Response, error) {
	s.sendBuf.Reset()
	sync, err := s.enc.EncodeCall(s.sendBuf, function, args)
	if err != nil {
		return nil, fmt.Errorf("session: encode call: %w", err)
	}
	return s.roundTrip(ctx, sync, false)
}

// Eval evaluates a Lua expression.
func (s *Session) Eval(ctx context.Context, expr string, args msgpack.Array) (*iproto.Response, error) {
	s.sendBuf.Reset()
	sync, err := s.enc.EncodeEval(s.sendBuf, expr, args)
	if err != nil {
		return nil, fmt.Errorf("session: encode eval: %w", err)
	}
	return s.roundTrip(ctx, sync, false)
}

// Select fetches tuples from a space/index.
func (s *Session) Select(ctx context.Context, p iproto.SelectParams) (*iproto.Response, error) {
	s.sendBuf.Reset()
	sync, err := s.enc.EncodeSelect(s.sendBuf, p)
	if err != nil {
		return nil, fmt.Errorf("session: encode select: %w", err)
	}
	return s.roundTrip(ctx, sync, false)
}

// roundTrip sends whatever is currently in sendBuf and blocks for a
// response whose header Sync matches wantSync (unless skipSyncCheck,
// used for AUTH's header-has-no-sync quirk, in which case the first
// decoded response is accepted unconditionally).
func (s *Session) roundTrip(ctx context.Context, wantSync uint64, skipSyncCheck bool) (*iproto.Response, error) {
	if err := s.sendAll(ctx, s.sendBuf.Bytes()); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}

	for {
		resp, consumed, err := s.dec.Decode(s.recvBuf[:s.recvLen])
		if err == nil {
			s.consume(consumed)
			if skipSyncCheck || resp.Header.Sync == wantSync {
				return resp, nil
			}
			continue
		}
		if !errors.Is(err, msgpack.ErrNeedMore) {
			return nil, fmt.Errorf("decode: %w", err)
		}

		if err := s.fill(ctx); err != nil {
			return nil, fmt.Errorf("recv: %w", err)
		}
	}
}

// sendAll blocks (via pollInterval retries) until every byte of data
// has been accepted by the stream.
func (s *Session) sendAll(ctx context.Context, data []byte) error {
	for len(data) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.stream.Send(data)
		if err != nil {
			return err
		}
		if n == 0 {
			if err := sleepOrDone(ctx); err != nil {
				return err
			}
			continue
		}
		data = data[n:]
	}
	return nil
}

// fill reads at least one more byte into recvBuf, growing it if full,
// blocking via pollInterval retries on would-block.
func (s *Session) fill(ctx context.Context) error {
	if s.recvLen == len(s.recvBuf) {
		grown := make([]byte, len(s.recvBuf)*2)
		copy(grown, s.recvBuf[:s.recvLen])
		s.recvBuf = grown
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := s.stream.Recv(s.recvBuf[s.recvLen:])
		if err != nil {
			return err
		}
		if n > 0 {
			s.recvLen += n
			return nil
		}
		if err := sleepOrDone(ctx); err != nil {
			return err
		}
	}
}

// recvExactly blocks until exactly n bytes have been received,
// returning them without consuming from recvBuf (the caller calls
// consume once it has used the bytes).
func (s *Session) recvExactly(ctx context.Context, n int) ([]byte, error) {
	for s.recvLen < n {
		if err := s.fill(ctx); err != nil {
			return nil, err
		}
	}
	return s.recvBuf[:n], nil
}

// consume discards the first n bytes of recvBuf, shifting the
// remainder to the front.
func (s *Session) consume(n int) {
	remaining := s.recvLen - n
	copy(s.recvBuf, s.recvBuf[n:s.recvLen])
	s.recvLen = remaining
}

func sleepOrDone(ctx context.Context) error {
	timer := time.NewTimer(pollInterval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
