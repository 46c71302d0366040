// Package msgpack implements the minimal MsgPack codec the iproto
// package needs: canonical encoding of the primitive and container
// types IPROTO frames use, and a restartable pull decoder that can be
// fed partial buffers as they arrive off the wire.
//
// This is not a general-purpose MsgPack library — there is no support
// for ext types, timestamps, or decoding into arbitrary Go structs via
// reflection. It only implements what request/response framing needs:
// nil, bool, integers, floats, strings, binary blobs, arrays and maps.
package msgpack

import "errors"

// ReadResult mirrors the three-way outcome every decode step can have:
// a value was read, the buffer ended before a complete value could be
// read, or the bytes present are not valid MsgPack.
type ReadResult int

const (
	// Success indicates the read completed and the decoder position
	// advanced past the value.
	Success ReadResult = iota
	// NeedMore indicates the buffer was truncated mid-value. The
	// decoder position is left at the last committed point — callers
	// retry the same read after appending more bytes.
	NeedMore
	// Bad indicates malformed MsgPack was encountered. The whole
	// response this decode belongs to must be treated as corrupt.
	Bad
)

func (r ReadResult) String() string {
	switch r {
	case Success:
		return "success"
	case NeedMore:
		return "need_more"
	case Bad:
		return "bad"
	default:
		return "unknown"
	}
}

// ErrNeedMore is returned (wrapped) by decode methods when the supplied
// bytes end before a value can be fully read.
var ErrNeedMore = errors.New("msgpack: need more data")

// ErrBad is returned (wrapped) when the bytes present are not valid
// MsgPack for the position being decoded.
var ErrBad = errors.New("msgpack: malformed data")

// Family classifies a MsgPack value by its broad type, independent of
// the specific width chosen for its encoding. The decoder's read
// methods each expect one family; reading a value of a different
// family from a family-specific method is reported as a TypeError,
// the Go realization of the reader's WrongType hook in the original
// pull-decoder design.
type Family int

const (
	FamilyNil Family = iota
	FamilyBool
	FamilyInt
	FamilyUint
	FamilyFloat
	FamilyStr
	FamilyBin
	FamilyArray
	FamilyMap
	FamilyExt
)

func (f Family) String() string {
	switch f {
	case FamilyNil:
		return "nil"
	case FamilyBool:
		return "bool"
	case FamilyInt:
		return "int"
	case FamilyUint:
		return "uint"
	case FamilyFloat:
		return "float"
	case FamilyStr:
		return "str"
	case FamilyBin:
		return "bin"
	case FamilyArray:
		return "array"
	case FamilyMap:
		return "map"
	case FamilyExt:
		return "ext"
	default:
		return "unknown"
	}
}

// TypeError is returned when a family-specific read method is called
// but the next value on the wire belongs to a different family — the
// Go realization of the original decoder's reader.WrongType(actual)
// hook.
type TypeError struct {
	Expected Family
	Actual   Family
}

func (e *TypeError) Error() string {
	return "msgpack: expected " + e.Expected.String() + ", got " + e.Actual.String()
}

// Format tag bytes used by this codec. Only the forms the encoder
// actually emits are named; the decoder recognizes the full range of
// valid leading bytes regardless.
const (
	tagNil    = 0xC0
	tagFalse  = 0xC2
	tagTrue   = 0xC3
	tagBin8   = 0xC4
	tagBin16  = 0xC5
	tagBin32  = 0xC6
	tagFloat  = 0xCA
	tagDouble = 0xCB
	tagUint8  = 0xCC
	tagUint16 = 0xCD
	tagUint32 = 0xCE
	tagUint64 = 0xCF
	tagInt8   = 0xD0
	tagInt16  = 0xD1
	tagInt32  = 0xD2
	tagInt64  = 0xD3
	tagStr8   = 0xD9
	tagStr16  = 0xDA
	tagStr32  = 0xDB
	tagArray16 = 0xDC
	tagArray32 = 0xDD
	tagMap16   = 0xDE
	tagMap32   = 0xDF

	fixmapBase   = 0x80
	fixmapMax    = 0x8F
	fixarrayBase = 0x90
	fixarrayMax  = 0x9F
	fixstrBase   = 0xA0
	fixstrMax    = 0xBF

	positiveFixintMax = 0x7F
	negativeFixintBase = 0xE0
)
