package iproto

import (
	"errors"
	"testing"

	"github.com/mickamy/iproto/buffer"
	"github.com/mickamy/iproto/msgpack"
)

func encodeResponse(t *testing.T, header msgpack.Map, body msgpack.Map) []byte {
	t.Helper()
	buf := buffer.New()
	start := buf.End()
	buf.AppendByte(LengthPrefixByte)
	buf.Append([]byte{0, 0, 0, 0})
	if err := msgpack.Encode(buf, header); err != nil {
		t.Fatal(err)
	}
	if err := msgpack.Encode(buf, body); err != nil {
		t.Fatal(err)
	}
	size := buf.End() - start - PreheaderSize
	buf.Set(start+1, byte(size>>24))
	buf.Set(start+2, byte(size>>16))
	buf.Set(start+3, byte(size>>8))
	buf.Set(start+4, byte(size))
	return buf.Bytes()
}

func TestDecodeResponseWithData(t *testing.T) {
	t.Parallel()

	wire := encodeResponse(t,
		msgpack.M(int64(KeyRequestType), int64(TypeOK), int64(KeySync), int64(7)),
		msgpack.M(int64(KeyData), msgpack.Array{
			msgpack.Array{int64(1), "a"},
			msgpack.Array{int64(2), "b"},
		}),
	)

	rd := NewResponseDecoder()
	resp, n, err := rd.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if resp.Header.Sync != 7 {
		t.Fatalf("Sync = %d, want 7", resp.Header.Sync)
	}
	if resp.Body.Data == nil {
		t.Fatal("Body.Data is nil")
	}
	if resp.Body.Data.Dimension != 2 {
		t.Fatalf("Dimension = %d, want 2", resp.Body.Data.Dimension)
	}
	for _, tuple := range resp.Body.Data.Tuples {
		if tuple.FieldCount() != 2 {
			t.Fatalf("FieldCount() = %d, want 2", tuple.FieldCount())
		}
	}
}

func TestDecodeResponseWithErrorStack(t *testing.T) {
	t.Parallel()

	errMap := msgpack.Map{
		{Key: int64(ErrorStackKey), Value: msgpack.Array{
			msgpack.M(
				int64(ErrorKeyType), "Type",
				int64(ErrorKeyLine), int64(17),
				int64(ErrorKeyMessage), "msg",
				int64(ErrorKeyCode), int64(42),
			),
		}},
	}
	wire := encodeResponse(t,
		msgpack.M(int64(KeyRequestType), int64(TypeOK|TypeErrorBit), int64(KeySync), int64(1)),
		msgpack.M(
			int64(KeyError24), "msg",
			int64(KeyError), errMap,
		),
	)

	rd := NewResponseDecoder()
	resp, _, err := rd.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body.Errors) != 1 {
		t.Fatalf("Errors len = %d, want 1", len(resp.Body.Errors))
	}
	frame := resp.Body.Errors[0]
	if frame.TypeName != "Type" || frame.Line != 17 || frame.Message != "msg" || frame.Code != 42 {
		t.Fatalf("frame = %+v, want {Type 17 msg 42}", frame)
	}
}

func TestDecodeResponseAcceptsMultiFrameErrorStack(t *testing.T) {
	t.Parallel()

	errMap := msgpack.Map{
		{Key: int64(ErrorStackKey), Value: msgpack.Array{
			msgpack.M(int64(ErrorKeyMessage), "outer"),
			msgpack.M(int64(ErrorKeyMessage), "inner"),
		}},
	}
	wire := encodeResponse(t,
		msgpack.M(int64(KeyRequestType), int64(TypeOK|TypeErrorBit), int64(KeySync), int64(1)),
		msgpack.M(int64(KeyError), errMap),
	)

	rd := NewResponseDecoder()
	resp, _, err := rd.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.Body.Errors) != 2 {
		t.Fatalf("Errors len = %d, want 2 (N>=1 must be accepted)", len(resp.Body.Errors))
	}
	if resp.Body.Errors[0].Message != "outer" || resp.Body.Errors[1].Message != "inner" {
		t.Fatalf("Errors = %+v", resp.Body.Errors)
	}
}

func TestDecodeTruncatedFrameReturnsNeedMore(t *testing.T) {
	t.Parallel()

	wire := encodeResponse(t,
		msgpack.M(int64(KeyRequestType), int64(TypeOK), int64(KeySync), int64(1)),
		msgpack.M(),
	)

	rd := NewResponseDecoder()

	// Only part of the preheader.
	_, _, err := rd.Decode(wire[:3])
	if !errors.Is(err, msgpack.ErrNeedMore) {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}

	// Preheader plus a partial body.
	_, _, err = rd.Decode(wire[:len(wire)-1])
	if !errors.Is(err, msgpack.ErrNeedMore) {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}

	// Full frame now succeeds — demonstrates the restartable contract:
	// the same call, re-issued once enough bytes have arrived, picks
	// up cleanly with no decoder-side state to rewind.
	resp, n, err := rd.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if n != len(wire) {
		t.Fatalf("consumed %d, want %d", n, len(wire))
	}
	if resp.Header.Sync != 1 {
		t.Fatalf("Sync = %d, want 1", resp.Header.Sync)
	}
}

func TestDecodeBadPreheaderByte(t *testing.T) {
	t.Parallel()

	wire := []byte{0x00, 0, 0, 0, 0}
	rd := NewResponseDecoder()
	_, _, err := rd.Decode(wire)
	if !errors.Is(err, msgpack.ErrBad) {
		t.Fatalf("err = %v, want ErrBad", err)
	}
}

func TestDecodeScalarDataIsArityOne(t *testing.T) {
	t.Parallel()

	wire := encodeResponse(t,
		msgpack.M(int64(KeyRequestType), int64(TypeEval), int64(KeySync), int64(1)),
		msgpack.M(int64(KeyData), msgpack.Array{int64(99)}),
	)

	rd := NewResponseDecoder()
	resp, _, err := rd.Decode(wire)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Body.Data.Dimension != 1 {
		t.Fatalf("Dimension = %d, want 1", resp.Body.Data.Dimension)
	}
	if resp.Body.Data.Tuples[0].FieldCount() != 1 {
		t.Fatalf("FieldCount = %d, want 1", resp.Body.Data.Tuples[0].FieldCount())
	}
}

func TestEncodeThenDecodePingHeader(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	e := NewEncoder()
	if _, err := e.EncodePing(buf); err != nil {
		t.Fatal(err)
	}

	rd := NewResponseDecoder()
	resp, n, err := rd.Decode(buf.Bytes())
	if err != nil {
		t.Fatal(err)
	}
	if n != len(buf.Bytes()) {
		t.Fatalf("consumed %d, want %d", n, len(buf.Bytes()))
	}
	if resp.Header.Code != uint32(TypePing) {
		t.Fatalf("Code = %d, want %d", resp.Header.Code, TypePing)
	}
	if resp.Header.Sync != 1 {
		t.Fatalf("Sync = %d, want 1", resp.Header.Sync)
	}
}
