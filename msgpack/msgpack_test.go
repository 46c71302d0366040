package msgpack

import (
	"errors"
	"testing"

	"github.com/mickamy/iproto/buffer"
)

func TestEncodeIntChoosesSmallestForm(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		v    int64
		want []byte
	}{
		{"positive fixint", 100, []byte{0x64}},
		{"negative fixint", -1, []byte{0xFF}},
		{"uint8", 200, []byte{0xCC, 0xC8}},
		{"int8", -100, []byte{0xD0, 0x9C}},
		{"uint16", 1000, []byte{0xCD, 0x03, 0xE8}},
		{"uint32", 70000, []byte{0xCE, 0x00, 0x01, 0x11, 0x70}},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			buf := buffer.New()
			EncodeInt(buf, tc.v)
			if got := buf.Bytes(); !bytesEqual(got, tc.want) {
				t.Fatalf("EncodeInt(%d) = % X, want % X", tc.v, got, tc.want)
			}
		})
	}
}

func TestPingHeaderWireVector(t *testing.T) {
	t.Parallel()

	// CE 00 00 00 06 82 00 40 01 01 80 — PING, sync=1: preheader +
	// 2-pair header map (REQUEST_TYPE then SYNC) + empty body map.
	// PING's type code is 0x40 (64 decimal), not 0x64 (100 decimal).
	buf := buffer.New()
	start := buf.End()
	buf.AppendByte(0xCE)
	buf.Append([]byte{0, 0, 0, 0})

	if err := EncodeMapHeader(buf, 2); err != nil {
		t.Fatal(err)
	}
	EncodeInt(buf, 0x00) // REQUEST_TYPE
	EncodeInt(buf, 0x40) // PING
	EncodeInt(buf, 0x01) // SYNC
	EncodeInt(buf, 1)    // sync value

	if err := EncodeMapHeader(buf, 0); err != nil { // empty body map
		t.Fatal(err)
	}

	size := buf.End() - start - 5
	buf.Set(start+1, byte(size>>24))
	buf.Set(start+2, byte(size>>16))
	buf.Set(start+3, byte(size>>8))
	buf.Set(start+4, byte(size))

	want := []byte{0xCE, 0x00, 0x00, 0x00, 0x06, 0x82, 0x00, 0x40, 0x01, 0x01, 0x80}
	if got := buf.Bytes(); !bytesEqual(got, want) {
		t.Fatalf("wire bytes = % X, want % X", got, want)
	}
}

func TestEncodeDecodeRoundTripMap(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	m := Map{
		{Key: int64(0x10), Value: int64(512)},        // SPACE_ID
		{Key: int64(0x11), Value: int64(0)},           // INDEX_ID
		{Key: int64(0x12), Value: int64(0xFFFFFFFF)},  // LIMIT
		{Key: int64(0x13), Value: int64(0)},           // OFFSET
		{Key: int64(0x14), Value: int64(0)},           // ITERATOR = EQ
		{Key: int64(0x20), Value: Array{int64(42)}},   // KEY
	}
	if err := Encode(buf, m); err != nil {
		t.Fatal(err)
	}

	d := NewDecoder(buf.Bytes())
	n, err := d.ReadMapHeader()
	if err != nil {
		t.Fatal(err)
	}
	if n != len(m) {
		t.Fatalf("map header count = %d, want %d", n, len(m))
	}

	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			t.Fatalf("pair %d key: %v", i, err)
		}
		if key != m[i].Key {
			t.Fatalf("pair %d key = %v, want %v", i, key, m[i].Key)
		}
		switch want := m[i].Value.(type) {
		case int64:
			got, err := d.ReadInt()
			if err != nil {
				t.Fatalf("pair %d value: %v", i, err)
			}
			if got != want {
				t.Fatalf("pair %d value = %v, want %v", i, got, want)
			}
		case Array:
			cnt, err := d.ReadArrayHeader()
			if err != nil {
				t.Fatalf("pair %d array header: %v", i, err)
			}
			if cnt != len(want) {
				t.Fatalf("pair %d array count = %d, want %d", i, cnt, len(want))
			}
			for j := 0; j < cnt; j++ {
				got, err := d.ReadInt()
				if err != nil {
					t.Fatal(err)
				}
				if got != want[j] {
					t.Fatalf("array elem %d = %v, want %v", j, got, want[j])
				}
			}
		}
	}
}

func TestDecodeTruncatedReturnsNeedMoreAndRewinds(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	EncodeStr(buf, "tarantool")
	full := buf.Bytes()

	// Feed only a prefix: the 1-byte fixstr header plus 4 of the 9
	// payload bytes.
	d := NewDecoder(full[:5])
	mark := d.Pos()
	_, err := d.ReadStr()
	if !errors.Is(err, ErrNeedMore) {
		t.Fatalf("ReadStr on truncated input: err = %v, want ErrNeedMore", err)
	}
	if d.Pos() != mark {
		t.Fatalf("position advanced on NeedMore: pos = %d, want %d", d.Pos(), mark)
	}

	// Resume once the full buffer is available.
	d.Rebase(full)
	d.Reset(mark)
	s, err := d.ReadStr()
	if err != nil {
		t.Fatal(err)
	}
	if s != "tarantool" {
		t.Fatalf("ReadStr = %q, want %q", s, "tarantool")
	}
}

func TestReadWrongFamilyReturnsTypeError(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	EncodeStr(buf, "x")

	d := NewDecoder(buf.Bytes())
	_, err := d.ReadInt()

	var typeErr *TypeError
	if !errors.As(err, &typeErr) {
		t.Fatalf("err = %v, want *TypeError", err)
	}
	if typeErr.Expected != FamilyInt || typeErr.Actual != FamilyStr {
		t.Fatalf("TypeError = %+v, want Expected=Int Actual=Str", typeErr)
	}
}

func TestSkipAdvancesPastCompositeValue(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	if err := Encode(buf, Array{int64(1), "two", Array{int64(3), int64(4)}}); err != nil {
		t.Fatal(err)
	}
	EncodeInt(buf, 99) // sentinel following value

	d := NewDecoder(buf.Bytes())
	if err := d.Skip(); err != nil {
		t.Fatal(err)
	}

	v, err := d.ReadInt()
	if err != nil {
		t.Fatal(err)
	}
	if v != 99 {
		t.Fatalf("value after Skip = %d, want 99", v)
	}
}

func TestReadBinRefAliasesUnderlyingData(t *testing.T) {
	t.Parallel()

	buf := buffer.New()
	payload := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	EncodeBin(buf, payload)

	d := NewDecoder(buf.Bytes())
	got, err := d.ReadBinRef()
	if err != nil {
		t.Fatal(err)
	}
	if !bytesEqual(got, payload) {
		t.Fatalf("ReadBinRef = % X, want % X", got, payload)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
