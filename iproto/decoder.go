package iproto

import (
	"encoding/binary"
	"fmt"

	"github.com/mickamy/iproto/msgpack"
)

// Header is the decoded IPROTO response header.
type Header struct {
	Code     uint32
	Sync     uint64
	SchemaID uint32
}

// TupleSlice borrows into the decoded response buffer rather than
// copying a tuple's bytes out — the caller must not retain it past
// the lifetime of the buffer the Response was decoded from. Decode
// the borrowed bytes on demand via Decoder.
type TupleSlice struct {
	raw        []byte
	fieldCount int
}

// FieldCount is the tuple's logical arity: array/map length, or 1 for
// a bare scalar value (permitting eval/call responses that return a
// single non-array value).
func (t TupleSlice) FieldCount() int { return t.fieldCount }

// Raw returns the tuple's undecoded MsgPack bytes.
func (t TupleSlice) Raw() []byte { return t.raw }

// Decoder returns a fresh msgpack.Decoder positioned at the start of
// the tuple's bytes, for callers that want to read its fields lazily.
func (t TupleSlice) Decoder() *msgpack.Decoder {
	return msgpack.NewDecoder(t.raw)
}

// Data is the decoded contents of a response body's DATA field.
type Data struct {
	Dimension int
	Tuples    []TupleSlice
}

// ErrorFrame is one entry of a decoded error stack.
type ErrorFrame struct {
	TypeName string
	File     string
	Line     uint64
	Message  string
	Errno    uint64
	Code     uint64
}

// Body is a response's decoded body: at most one of Data or Errors is
// populated; both empty is valid (e.g. OK with no data).
type Body struct {
	Data   *Data
	Errors []ErrorFrame
}

// Response is one fully decoded IPROTO response.
type Response struct {
	Header Header
	Body   Body
	// Size is the byte count of everything following the 5-byte
	// preheader, as declared by the wire length prefix.
	Size uint32
}

// ResponseDecoder is a restartable decoder: Decode is given the
// accumulated bytes received so far and either returns a fully decoded
// Response plus the number of bytes it consumed, or a NeedMore error
// if the slice doesn't yet hold a complete frame. On NeedMore the
// caller appends more received bytes and calls Decode again on the
// extended slice — there is no decoder-internal state to carry across
// calls, since rescanning the still-buffered header bytes is cheap
// and far simpler than the original's manual iterator-rewind.
type ResponseDecoder struct{}

// NewResponseDecoder returns a ResponseDecoder. It holds no state and
// a single instance may be reused across responses and even streams.
func NewResponseDecoder() *ResponseDecoder {
	return &ResponseDecoder{}
}

// Decode attempts to decode one response from the head of data.
// Returns (response, bytes consumed, nil) on success, or
// (nil, 0, err) where err wraps msgpack.ErrNeedMore if data is a
// truncated prefix of a frame, or msgpack.ErrBad if the bytes present
// are not a valid frame. A Bad result means the stream has lost
// framing integrity and must be torn down by the caller.
func (rd *ResponseDecoder) Decode(data []byte) (*Response, int, error) {
	if len(data) < PreheaderSize {
		return nil, 0, msgpack.ErrNeedMore
	}
	if data[0] != LengthPrefixByte {
		return nil, 0, msgpack.ErrBad
	}
	bodyLen := int(binary.BigEndian.Uint32(data[1:5]))
	total := PreheaderSize + bodyLen
	if len(data) < total {
		return nil, 0, msgpack.ErrNeedMore
	}

	d := msgpack.NewDecoder(data[PreheaderSize:total])
	header, err := decodeHeader(d)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: header: %v", msgpack.ErrBad, err)
	}
	body, err := decodeBody(d)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: body: %v", msgpack.ErrBad, err)
	}

	return &Response{Header: header, Body: body, Size: uint32(bodyLen)}, total, nil
}

func decodeHeader(d *msgpack.Decoder) (Header, error) {
	n, err := d.ReadMapHeader()
	if err != nil {
		return Header{}, err
	}
	var h Header
	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return Header{}, err
		}
		switch Key(key) {
		case KeyRequestType:
			v, err := d.ReadUint()
			if err != nil {
				return Header{}, err
			}
			h.Code = uint32(v)
		case KeySync:
			v, err := d.ReadUint()
			if err != nil {
				return Header{}, err
			}
			h.Sync = v
		case KeySchemaVersion:
			v, err := d.ReadUint()
			if err != nil {
				return Header{}, err
			}
			h.SchemaID = uint32(v)
		default:
			if err := d.Skip(); err != nil {
				return Header{}, err
			}
		}
	}
	return h, nil
}

func decodeBody(d *msgpack.Decoder) (Body, error) {
	n, err := d.ReadMapHeader()
	if err != nil {
		return Body{}, err
	}

	var body Body
	var legacyMsg string
	var haveLegacy bool

	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return Body{}, err
		}
		switch Key(key) {
		case KeyData:
			data, err := decodeData(d)
			if err != nil {
				return Body{}, err
			}
			body.Data = &data
		case KeyError24:
			msg, err := d.ReadStr()
			if err != nil {
				return Body{}, err
			}
			legacyMsg = msg
			haveLegacy = true
		case KeyError:
			frames, err := decodeErrorStack(d)
			if err != nil {
				return Body{}, err
			}
			body.Errors = frames
		default:
			if err := d.Skip(); err != nil {
				return Body{}, err
			}
		}
	}

	// ERROR_24 is the legacy single-message error field; when a
	// richer ERROR stack is also present it supersedes it. When only
	// ERROR_24 was sent (older server), fall back to a single-frame
	// stack built from it.
	if body.Errors == nil && haveLegacy {
		body.Errors = []ErrorFrame{{Message: legacyMsg}}
	}

	return body, nil
}

func decodeData(d *msgpack.Decoder) (Data, error) {
	cnt, err := d.ReadArrayHeader()
	if err != nil {
		return Data{}, err
	}

	tuples := make([]TupleSlice, 0, cnt)
	for i := 0; i < cnt; i++ {
		start := d.Pos()
		family, err := d.PeekFamily()
		if err != nil {
			return Data{}, err
		}

		var fieldCount int
		switch family {
		case msgpack.FamilyArray:
			n, err := d.ReadArrayHeader()
			if err != nil {
				return Data{}, err
			}
			fieldCount = n
			for j := 0; j < n; j++ {
				if err := d.Skip(); err != nil {
					return Data{}, err
				}
			}
		case msgpack.FamilyMap:
			n, err := d.ReadMapHeader()
			if err != nil {
				return Data{}, err
			}
			fieldCount = n
			for j := 0; j < n; j++ {
				if err := d.Skip(); err != nil { // key
					return Data{}, err
				}
				if err := d.Skip(); err != nil { // value
					return Data{}, err
				}
			}
		default:
			// Scalar: a single "tuple" of arity 1, permitting
			// eval/call responses that return a bare value.
			if err := d.Skip(); err != nil {
				return Data{}, err
			}
			fieldCount = 1
		}

		end := d.Pos()
		tuples = append(tuples, TupleSlice{raw: d.RawSlice(start, end), fieldCount: fieldCount})
	}

	return Data{Dimension: cnt, Tuples: tuples}, nil
}

// decodeErrorStack reads the ERROR map's single ERROR_STACK field, an
// array of error-maps. Stacks of any length N>=1 are accepted and
// every frame is exposed, most-specific first as received — the
// original source asserts len==1, which this decoder deliberately
// relaxes (see DESIGN.md).
func decodeErrorStack(d *msgpack.Decoder) ([]ErrorFrame, error) {
	n, err := d.ReadMapHeader()
	if err != nil {
		return nil, err
	}

	var frames []ErrorFrame
	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return nil, err
		}
		if key != ErrorStackKey {
			if err := d.Skip(); err != nil {
				return nil, err
			}
			continue
		}
		cnt, err := d.ReadArrayHeader()
		if err != nil {
			return nil, err
		}
		frames = make([]ErrorFrame, 0, cnt)
		for j := 0; j < cnt; j++ {
			frame, err := decodeErrorFrame(d)
			if err != nil {
				return nil, err
			}
			frames = append(frames, frame)
		}
	}
	return frames, nil
}

func decodeErrorFrame(d *msgpack.Decoder) (ErrorFrame, error) {
	n, err := d.ReadMapHeader()
	if err != nil {
		return ErrorFrame{}, err
	}

	var f ErrorFrame
	for i := 0; i < n; i++ {
		key, err := d.ReadInt()
		if err != nil {
			return ErrorFrame{}, err
		}
		switch ErrorMapKey(key) {
		case ErrorKeyType:
			f.TypeName, err = d.ReadStr()
		case ErrorKeyFile:
			f.File, err = d.ReadStr()
		case ErrorKeyLine:
			f.Line, err = d.ReadUint()
		case ErrorKeyMessage:
			f.Message, err = d.ReadStr()
		case ErrorKeyErrno:
			f.Errno, err = d.ReadUint()
		case ErrorKeyCode:
			f.Code, err = d.ReadUint()
		default:
			// FIELDS (0x06) and any reserved key: skip without
			// guessing semantics, per the protocol's own note that
			// unused fields should stay reserved.
			err = d.Skip()
		}
		if err != nil {
			return ErrorFrame{}, err
		}
	}
	return f, nil
}
