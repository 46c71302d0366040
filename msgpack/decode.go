package msgpack

import (
	"encoding/binary"
	"math"
)

// Decoder is a restartable pull decoder over a byte slice that may be
// a truncated prefix of the real value stream. Every Read method
// either commits (advances pos past the value and returns nil) or
// leaves pos untouched and returns an error: one wrapping ErrNeedMore or
// ErrBad, or a *TypeError when the value present is of another family
// — the caller inspects the error with errors.Is/errors.As
// rather than installing a reader object, which is the Go realization
// of the original "install a reader, decoder invokes Value or
// WrongType" pull model: here the family-specific method itself plays
// the role of the reader.
type Decoder struct {
	data []byte
	pos  int
}

// NewDecoder wraps data for decoding starting at offset 0.
func NewDecoder(data []byte) *Decoder {
	return &Decoder{data: data}
}

// Pos returns the current decode position, usable with Reset to
// resume after more bytes have been appended to the underlying data.
func (d *Decoder) Pos() int { return d.pos }

// Len returns the number of bytes available to the decoder.
func (d *Decoder) Len() int { return len(d.data) }

// Remaining returns the number of unconsumed bytes.
func (d *Decoder) Remaining() int { return len(d.data) - d.pos }

// RawSlice returns the raw bytes in [start, end), aliasing the
// decoder's underlying data. Used by callers building zero-copy views
// (like iproto's TupleSlice) over a value they walked with Skip rather
// than materialized field by field.
func (d *Decoder) RawSlice(start, end int) []byte {
	return d.data[start:end]
}

// Reset rewinds the decoder to pos, the Go realization of the
// original decoder's reset(iterator): used after a NeedMore result to
// retry from the last-committed position once more bytes have
// arrived.
func (d *Decoder) Reset(pos int) {
	d.pos = pos
}

// Rebase replaces the underlying data, typically called after the
// caller has appended newly-received bytes to the same backing buffer
// and wants the decoder to see the extended slice while keeping pos.
func (d *Decoder) Rebase(data []byte) {
	d.data = data
}

func (d *Decoder) peekByte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrNeedMore
	}
	return d.data[d.pos], nil
}

func (d *Decoder) need(n int) bool {
	return d.pos+n <= len(d.data)
}

// familyOf classifies the leading tag byte without consuming it.
func familyOf(tag byte) Family {
	switch {
	case tag <= positiveFixintMax:
		return FamilyUint
	case tag >= negativeFixintBase:
		return FamilyInt
	case tag >= fixmapBase && tag <= fixmapMax:
		return FamilyMap
	case tag >= fixarrayBase && tag <= fixarrayMax:
		return FamilyArray
	case tag >= fixstrBase && tag <= fixstrMax:
		return FamilyStr
	}
	switch tag {
	case tagNil:
		return FamilyNil
	case tagFalse, tagTrue:
		return FamilyBool
	case tagBin8, tagBin16, tagBin32:
		return FamilyBin
	case tagFloat, tagDouble:
		return FamilyFloat
	case tagUint8, tagUint16, tagUint32, tagUint64:
		return FamilyUint
	case tagInt8, tagInt16, tagInt32, tagInt64:
		return FamilyInt
	case tagStr8, tagStr16, tagStr32:
		return FamilyStr
	case tagArray16, tagArray32:
		return FamilyArray
	case tagMap16, tagMap32:
		return FamilyMap
	default:
		return FamilyExt
	}
}

// PeekFamily reports the family of the next value without consuming
// it, or ErrNeedMore if no tag byte is available yet.
func (d *Decoder) PeekFamily() (Family, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	return familyOf(tag), nil
}

// ReadNil consumes a nil value.
func (d *Decoder) ReadNil() error {
	tag, err := d.peekByte()
	if err != nil {
		return err
	}
	if tag != tagNil {
		return &TypeError{Expected: FamilyNil, Actual: familyOf(tag)}
	}
	d.pos++
	return nil
}

// ReadBool consumes a boolean value.
func (d *Decoder) ReadBool() (bool, error) {
	tag, err := d.peekByte()
	if err != nil {
		return false, err
	}
	switch tag {
	case tagTrue:
		d.pos++
		return true, nil
	case tagFalse:
		d.pos++
		return false, nil
	default:
		return false, &TypeError{Expected: FamilyBool, Actual: familyOf(tag)}
	}
}

// ReadUint consumes an unsigned integer value. A value encoded with a
// signed negative-fixint/intN tag is reported via TypeError since it
// cannot be an unsigned quantity.
func (d *Decoder) ReadUint() (uint64, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag <= positiveFixintMax:
		d.pos++
		return uint64(tag), nil
	case tag == tagUint8:
		if !d.need(2) {
			return 0, ErrNeedMore
		}
		v := uint64(d.data[d.pos+1])
		d.pos += 2
		return v, nil
	case tag == tagUint16:
		if !d.need(3) {
			return 0, ErrNeedMore
		}
		v := uint64(binary.BigEndian.Uint16(d.data[d.pos+1 : d.pos+3]))
		d.pos += 3
		return v, nil
	case tag == tagUint32:
		if !d.need(5) {
			return 0, ErrNeedMore
		}
		v := uint64(binary.BigEndian.Uint32(d.data[d.pos+1 : d.pos+5]))
		d.pos += 5
		return v, nil
	case tag == tagUint64:
		if !d.need(9) {
			return 0, ErrNeedMore
		}
		v := binary.BigEndian.Uint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		return v, nil
	default:
		return 0, &TypeError{Expected: FamilyUint, Actual: familyOf(tag)}
	}
}

// ReadInt consumes a signed integer value. Unsigned-tagged values that
// fit in an int64 are accepted too, since every MsgPack unsigned value
// is also conceptually a valid signed one as long as it doesn't
// overflow — mirroring how the header/body decoders treat small
// integer fields interchangeably.
func (d *Decoder) ReadInt() (int64, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag <= positiveFixintMax:
		d.pos++
		return int64(tag), nil
	case tag >= negativeFixintBase:
		d.pos++
		return int64(int8(tag)), nil
	case tag == tagInt8:
		if !d.need(2) {
			return 0, ErrNeedMore
		}
		v := int64(int8(d.data[d.pos+1]))
		d.pos += 2
		return v, nil
	case tag == tagInt16:
		if !d.need(3) {
			return 0, ErrNeedMore
		}
		v := int64(int16(binary.BigEndian.Uint16(d.data[d.pos+1 : d.pos+3])))
		d.pos += 3
		return v, nil
	case tag == tagInt32:
		if !d.need(5) {
			return 0, ErrNeedMore
		}
		v := int64(int32(binary.BigEndian.Uint32(d.data[d.pos+1 : d.pos+5])))
		d.pos += 5
		return v, nil
	case tag == tagInt64:
		if !d.need(9) {
			return 0, ErrNeedMore
		}
		v := int64(binary.BigEndian.Uint64(d.data[d.pos+1 : d.pos+9]))
		d.pos += 9
		return v, nil
	case tag == tagUint8, tag == tagUint16, tag == tagUint32, tag == tagUint64:
		mark := d.pos
		u, err := d.ReadUint()
		if err != nil {
			return 0, err
		}
		if u > math.MaxInt64 {
			d.pos = mark
			return 0, &TypeError{Expected: FamilyInt, Actual: FamilyUint}
		}
		return int64(u), nil
	default:
		return 0, &TypeError{Expected: FamilyInt, Actual: familyOf(tag)}
	}
}

// ReadFloat consumes a float32 or float64 value, always widened to
// float64.
func (d *Decoder) ReadFloat() (float64, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	switch tag {
	case tagFloat:
		if !d.need(5) {
			return 0, ErrNeedMore
		}
		bits := binary.BigEndian.Uint32(d.data[d.pos+1 : d.pos+5])
		d.pos += 5
		return float64(math.Float32frombits(bits)), nil
	case tagDouble:
		if !d.need(9) {
			return 0, ErrNeedMore
		}
		bits := binary.BigEndian.Uint64(d.data[d.pos+1 : d.pos+9])
		d.pos += 9
		return math.Float64frombits(bits), nil
	default:
		return 0, &TypeError{Expected: FamilyFloat, Actual: familyOf(tag)}
	}
}

// ReadStr consumes a UTF-8 string value and returns a copy (strings
// are immutable in Go, so unlike ReadBinRef this cannot alias the
// source buffer).
func (d *Decoder) ReadStr() (string, error) {
	b, err := d.readStrBytes()
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (d *Decoder) readStrBytes() ([]byte, error) {
	tag, err := d.peekByte()
	if err != nil {
		return nil, err
	}
	var n, headerLen int
	switch {
	case tag >= fixstrBase && tag <= fixstrMax:
		n, headerLen = int(tag&0x1F), 1
	case tag == tagStr8:
		if !d.need(2) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(d.data[d.pos+1]), 2
	case tag == tagStr16:
		if !d.need(3) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(binary.BigEndian.Uint16(d.data[d.pos+1:d.pos+3])), 3
	case tag == tagStr32:
		if !d.need(5) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(binary.BigEndian.Uint32(d.data[d.pos+1:d.pos+5])), 5
	default:
		return nil, &TypeError{Expected: FamilyStr, Actual: familyOf(tag)}
	}
	if !d.need(headerLen + n) {
		return nil, ErrNeedMore
	}
	start := d.pos + headerLen
	d.pos += headerLen + n
	return d.data[start : start+n], nil
}

// ReadBinRef consumes a binary blob and returns a slice that aliases
// the decoder's underlying data rather than copying it — this is how
// TupleSlice achieves zero-copy access to tuple payloads: the caller
// must not use the returned slice past the lifetime of the buffer
// that backs this decoder.
func (d *Decoder) ReadBinRef() ([]byte, error) {
	tag, err := d.peekByte()
	if err != nil {
		return nil, err
	}
	var n, headerLen int
	switch tag {
	case tagBin8:
		if !d.need(2) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(d.data[d.pos+1]), 2
	case tagBin16:
		if !d.need(3) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(binary.BigEndian.Uint16(d.data[d.pos+1:d.pos+3])), 3
	case tagBin32:
		if !d.need(5) {
			return nil, ErrNeedMore
		}
		n, headerLen = int(binary.BigEndian.Uint32(d.data[d.pos+1:d.pos+5])), 5
	default:
		return nil, &TypeError{Expected: FamilyBin, Actual: familyOf(tag)}
	}
	if !d.need(headerLen + n) {
		return nil, ErrNeedMore
	}
	start := d.pos + headerLen
	d.pos += headerLen + n
	return d.data[start : start+n], nil
}

// ReadArrayHeader consumes an array header and returns its element
// count; the caller is then responsible for reading exactly that many
// values.
func (d *Decoder) ReadArrayHeader() (int, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag >= fixarrayBase && tag <= fixarrayMax:
		d.pos++
		return int(tag & 0x0F), nil
	case tag == tagArray16:
		if !d.need(3) {
			return 0, ErrNeedMore
		}
		n := int(binary.BigEndian.Uint16(d.data[d.pos+1 : d.pos+3]))
		d.pos += 3
		return n, nil
	case tag == tagArray32:
		if !d.need(5) {
			return 0, ErrNeedMore
		}
		n := int(binary.BigEndian.Uint32(d.data[d.pos+1 : d.pos+5]))
		d.pos += 5
		return n, nil
	default:
		return 0, &TypeError{Expected: FamilyArray, Actual: familyOf(tag)}
	}
}

// ReadMapHeader consumes a map header and returns its pair count; the
// caller then reads exactly that many key/value pairs.
func (d *Decoder) ReadMapHeader() (int, error) {
	tag, err := d.peekByte()
	if err != nil {
		return 0, err
	}
	switch {
	case tag >= fixmapBase && tag <= fixmapMax:
		d.pos++
		return int(tag & 0x0F), nil
	case tag == tagMap16:
		if !d.need(3) {
			return 0, ErrNeedMore
		}
		n := int(binary.BigEndian.Uint16(d.data[d.pos+1 : d.pos+3]))
		d.pos += 3
		return n, nil
	case tag == tagMap32:
		if !d.need(5) {
			return 0, ErrNeedMore
		}
		n := int(binary.BigEndian.Uint32(d.data[d.pos+1 : d.pos+5]))
		d.pos += 5
		return n, nil
	default:
		return 0, &TypeError{Expected: FamilyMap, Actual: familyOf(tag)}
	}
}

// Skip advances the decoder past one complete value of any family
// without materializing it, used to fast-forward past tuple bodies
// the caller will read lazily via TupleSlice, and to skip unrecognized
// header/body map keys.
func (d *Decoder) Skip() error {
	tag, err := d.peekByte()
	if err != nil {
		return err
	}
	switch familyOf(tag) {
	case FamilyNil:
		return d.ReadNil()
	case FamilyBool:
		_, err := d.ReadBool()
		return err
	case FamilyUint:
		_, err := d.ReadUint()
		return err
	case FamilyInt:
		_, err := d.ReadInt()
		return err
	case FamilyFloat:
		_, err := d.ReadFloat()
		return err
	case FamilyStr:
		_, err := d.readStrBytes()
		return err
	case FamilyBin:
		_, err := d.ReadBinRef()
		return err
	case FamilyArray:
		n, err := d.ReadArrayHeader()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := d.Skip(); err != nil {
				return err
			}
		}
		return nil
	case FamilyMap:
		n, err := d.ReadMapHeader()
		if err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			if err := d.Skip(); err != nil {
				return err
			}
			if err := d.Skip(); err != nil {
				return err
			}
		}
		return nil
	default:
		return ErrBad
	}
}
