package inspector

import (
	"context"
	"encoding/binary"
	"time"

	"github.com/mickamy/iproto/iproto"
	"github.com/mickamy/iproto/msgpack"
	"github.com/mickamy/iproto/transport"

	"github.com/mickamy/iproto/inspector/highlight"
)

// Tap wraps a transport.Stream, snapshotting every complete framed
// request/response that passes through Send/Recv and publishing a
// preview Event to a Broker, without altering a single byte handed to
// or received from the underlying stream. It plays the role the
// teacher's mysql proxy conn plays relaying a client<->upstream pair,
// narrowed to one already-established stream observed in place.
type Tap struct {
	transport.Stream
	broker *Broker

	greetingRemaining int
	outBuf            []byte
	inBuf             []byte
}

// NewTap wraps stream, publishing captured frames to broker. The
// first iproto.GreetingSize bytes received are assumed to be the
// connection's greeting banner and are passed through without being
// scanned as IPROTO frames.
func NewTap(stream transport.Stream, broker *Broker) *Tap {
	return &Tap{
		Stream:            stream,
		broker:            broker,
		greetingRemaining: iproto.GreetingSize,
	}
}

var _ transport.Stream = (*Tap)(nil)

// Connect passes through to the wrapped stream; Tap carries no
// resolver of its own, matching transport.Stream's single-dial
// contract.
func (t *Tap) Connect(ctx context.Context, opts transport.ConnectOptions) error {
	return t.Stream.Connect(ctx, opts)
}

// Send passes data through unmodified, snapshotting any complete
// outbound frames it contains for the broker.
func (t *Tap) Send(data []byte) (int, error) {
	n, err := t.Stream.Send(data)
	if n > 0 {
		t.outBuf = append(t.outBuf, data[:n]...)
		t.drain(&t.outBuf, DirectionRequest)
	}
	return n, err
}

// Recv passes through unmodified, snapshotting any complete inbound
// frames once the greeting banner has been skipped.
func (t *Tap) Recv(data []byte) (int, error) {
	n, err := t.Stream.Recv(data)
	if n > 0 {
		chunk := data[:n]
		if t.greetingRemaining > 0 {
			skip := min(t.greetingRemaining, len(chunk))
			t.greetingRemaining -= skip
			chunk = chunk[skip:]
		}
		if len(chunk) > 0 {
			t.inBuf = append(t.inBuf, chunk...)
			t.drain(&t.inBuf, DirectionResponse)
		}
	}
	return n, err
}

// drain repeatedly scans buf for complete frames, publishing one
// Event per frame found and discarding its bytes, until buf holds
// only a partial trailing frame.
func (t *Tap) drain(buf *[]byte, dir Direction) {
	for {
		consumed, ev, ok := scanFrame(*buf, dir)
		if !ok {
			return
		}
		*buf = (*buf)[consumed:]
		if t.broker != nil {
			t.broker.Publish(ev)
		}
	}
}

// scanFrame attempts to decode one IPROTO frame from the head of
// data. ok is false if data doesn't yet hold a complete frame or its
// first byte is not the length-prefix byte; the tap treats either case
// as "wait for more bytes" since it must never abort the stream it is
// merely observing. A complete frame whose header does not decode is
// still consumed: ok is true and the returned Event is the zero Event.
func scanFrame(data []byte, dir Direction) (int, Event, bool) {
	if len(data) < iproto.PreheaderSize {
		return 0, Event{}, false
	}
	if data[0] != iproto.LengthPrefixByte {
		return 0, Event{}, false
	}
	bodyLen := int(binary.BigEndian.Uint32(data[1:5]))
	total := iproto.PreheaderSize + bodyLen
	if len(data) < total {
		return 0, Event{}, false
	}

	d := msgpack.NewDecoder(data[iproto.PreheaderSize:total])
	sync, reqType, ok := scanHeader(d)
	if !ok {
		return total, Event{}, true
	}
	preview := scanBodyPreview(d)

	ev := Event{
		Sync:       sync,
		Direction:  dir,
		Type:       reqType,
		CapturedAt: time.Time{},
		Size:       total,
		Preview:    preview,
		IsError:    reqType.IsError(),
	}
	return total, ev, true
}

func scanHeader(d *msgpack.Decoder) (sync uint64, reqType iproto.RequestType, ok bool) {
	n, err := d.ReadMapHeader()
	if err != nil {
		return 0, 0, false
	}
	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return 0, 0, false
		}
		switch iproto.Key(key) {
		case iproto.KeyRequestType:
			v, err := d.ReadUint()
			if err != nil {
				return 0, 0, false
			}
			reqType = iproto.RequestType(v)
		case iproto.KeySync:
			v, err := d.ReadUint()
			if err != nil {
				return 0, 0, false
			}
			sync = v
		default:
			if err := d.Skip(); err != nil {
				return 0, 0, false
			}
		}
	}
	return sync, reqType, true
}

// scanBodyPreview walks a request body looking for Lua/SQL-bearing
// fields (EXPR, FUNCTION_NAME, SQL_TEXT) and returns the last one found
// syntax-highlighted. Returns "" for bodies that carry none (most
// response bodies, and non-textual requests like SELECT/INSERT).
func scanBodyPreview(d *msgpack.Decoder) string {
	n, err := d.ReadMapHeader()
	if err != nil {
		return ""
	}
	var preview string
	var kind iproto.Key
	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return preview
		}
		k := iproto.Key(key)
		switch k {
		case iproto.KeyExpr, iproto.KeyFunctionName:
			v, err := d.ReadStr()
			if err != nil {
				return preview
			}
			preview, kind = v, k
		case iproto.KeySQLText:
			v, err := d.ReadStr()
			if err != nil {
				return preview
			}
			preview, kind = v, k
		default:
			if err := d.Skip(); err != nil {
				return preview
			}
		}
	}
	switch kind {
	case iproto.KeySQLText:
		return highlight.SQL(preview)
	case iproto.KeyExpr, iproto.KeyFunctionName:
		return highlight.Lua(preview)
	default:
		return ""
	}
}
