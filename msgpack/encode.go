package msgpack

import (
	"fmt"
	"math"

	"github.com/mickamy/iproto/buffer"
)

// Value is the small tagged variant the encoder accepts in place of
// true open-ended polymorphism: one of nil, bool, any signed/unsigned
// Go integer type, float32/float64, string, []byte, Array or Map. Any
// other dynamic type passed to Encode is a caller bug and returns an
// error rather than silently producing wrong bytes.
type Value any

// Array is an ordered MsgPack array value.
type Array []Value

// Pair is one key/value entry of a Map, preserving caller-given order.
type Pair struct {
	Key   Value
	Value Value
}

// Map is an ordered MsgPack map value. Unlike a Go map, encoding order
// is exactly the slice order, which request/response bodies depend on
// when a legacy field must precede a newer one on the wire.
type Map []Pair

// M is a convenience constructor: M(key1, val1, key2, val2, ...).
func M(kv ...Value) Map {
	if len(kv)%2 != 0 {
		panic("msgpack: M called with an odd number of arguments")
	}
	m := make(Map, 0, len(kv)/2)
	for i := 0; i < len(kv); i += 2 {
		m = append(m, Pair{Key: kv[i], Value: kv[i+1]})
	}
	return m
}

// Encode appends the MsgPack encoding of v to buf.
func Encode(buf buffer.Buffer, v Value) error {
	switch val := v.(type) {
	case nil:
		EncodeNil(buf)
	case bool:
		EncodeBool(buf, val)
	case int:
		EncodeInt(buf, int64(val))
	case int8:
		EncodeInt(buf, int64(val))
	case int16:
		EncodeInt(buf, int64(val))
	case int32:
		EncodeInt(buf, int64(val))
	case int64:
		EncodeInt(buf, val)
	case uint:
		EncodeUint(buf, uint64(val))
	case uint8:
		EncodeUint(buf, uint64(val))
	case uint16:
		EncodeUint(buf, uint64(val))
	case uint32:
		EncodeUint(buf, uint64(val))
	case uint64:
		EncodeUint(buf, val)
	case float32:
		EncodeFloat32(buf, val)
	case float64:
		EncodeFloat64(buf, val)
	case string:
		EncodeStr(buf, val)
	case []byte:
		EncodeBin(buf, val)
	case Array:
		if err := EncodeArrayHeader(buf, len(val)); err != nil {
			return err
		}
		for _, elem := range val {
			if err := Encode(buf, elem); err != nil {
				return err
			}
		}
	case Map:
		if err := EncodeMapHeader(buf, len(val)); err != nil {
			return err
		}
		for _, pair := range val {
			if err := Encode(buf, pair.Key); err != nil {
				return err
			}
			if err := Encode(buf, pair.Value); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("msgpack: cannot encode value of type %T", v)
	}
	return nil
}

// EncodeNil appends the one-byte nil encoding.
func EncodeNil(buf buffer.Buffer) {
	buf.AppendByte(tagNil)
}

// EncodeBool appends the one-byte boolean encoding.
func EncodeBool(buf buffer.Buffer, v bool) {
	if v {
		buf.AppendByte(tagTrue)
	} else {
		buf.AppendByte(tagFalse)
	}
}

// EncodeUint appends v using the smallest unsigned MsgPack form that
// losslessly represents it: positive fixint, then uint8/16/32/64.
func EncodeUint(buf buffer.Buffer, v uint64) {
	switch {
	case v <= positiveFixintMax:
		buf.AppendByte(byte(v))
	case v <= math.MaxUint8:
		buf.AppendByte(tagUint8)
		buf.AppendByte(byte(v))
	case v <= math.MaxUint16:
		buf.AppendByte(tagUint16)
		appendUint16(buf, uint16(v))
	case v <= math.MaxUint32:
		buf.AppendByte(tagUint32)
		appendUint32(buf, uint32(v))
	default:
		buf.AppendByte(tagUint64)
		appendUint64(buf, v)
	}
}

// EncodeInt appends v using the smallest MsgPack integer form that
// losslessly represents it. Non-negative values are routed through
// the unsigned encoding (fixint and the unsigned family overlap the
// positive range); negative values use negative fixint and the signed
// int8/16/32/64 family.
func EncodeInt(buf buffer.Buffer, v int64) {
	if v >= 0 {
		EncodeUint(buf, uint64(v))
		return
	}
	switch {
	case v >= -32:
		buf.AppendByte(byte(negativeFixintBase) | byte(v+32))
	case v >= math.MinInt8:
		buf.AppendByte(tagInt8)
		buf.AppendByte(byte(int8(v)))
	case v >= math.MinInt16:
		buf.AppendByte(tagInt16)
		appendUint16(buf, uint16(int16(v)))
	case v >= math.MinInt32:
		buf.AppendByte(tagInt32)
		appendUint32(buf, uint32(int32(v)))
	default:
		buf.AppendByte(tagInt64)
		appendUint64(buf, uint64(v))
	}
}

// EncodeFloat32 appends v as a single-precision MsgPack float.
func EncodeFloat32(buf buffer.Buffer, v float32) {
	buf.AppendByte(tagFloat)
	appendUint32(buf, math.Float32bits(v))
}

// EncodeFloat64 appends v as a double-precision MsgPack float.
func EncodeFloat64(buf buffer.Buffer, v float64) {
	buf.AppendByte(tagDouble)
	appendUint64(buf, math.Float64bits(v))
}

// EncodeStr appends v as a MsgPack UTF-8 string, choosing fixstr,
// str8, str16 or str32 by length.
func EncodeStr(buf buffer.Buffer, v string) {
	n := len(v)
	switch {
	case n <= 31:
		buf.AppendByte(fixstrBase | byte(n))
	case n <= math.MaxUint8:
		buf.AppendByte(tagStr8)
		buf.AppendByte(byte(n))
	case n <= math.MaxUint16:
		buf.AppendByte(tagStr16)
		appendUint16(buf, uint16(n))
	default:
		buf.AppendByte(tagStr32)
		appendUint32(buf, uint32(n))
	}
	buf.Append([]byte(v))
}

// EncodeBin appends v as a MsgPack byte-string, choosing bin8, bin16
// or bin32 by length. This is how the CHAP-SHA1 scramble is framed.
func EncodeBin(buf buffer.Buffer, v []byte) {
	n := len(v)
	switch {
	case n <= math.MaxUint8:
		buf.AppendByte(tagBin8)
		buf.AppendByte(byte(n))
	case n <= math.MaxUint16:
		buf.AppendByte(tagBin16)
		appendUint16(buf, uint16(n))
	default:
		buf.AppendByte(tagBin32)
		appendUint32(buf, uint32(n))
	}
	buf.Append(v)
}

// EncodeArrayHeader appends an array header for n following elements,
// choosing fixarray or array16/32 by count. Callers then Encode each
// element themselves; this lets a caller stream large arrays without
// building an intermediate Array value.
func EncodeArrayHeader(buf buffer.Buffer, n int) error {
	if n < 0 {
		return fmt.Errorf("msgpack: negative array length %d", n)
	}
	switch {
	case n <= 15:
		buf.AppendByte(fixarrayBase | byte(n))
	case n <= math.MaxUint16:
		buf.AppendByte(tagArray16)
		appendUint16(buf, uint16(n))
	default:
		buf.AppendByte(tagArray32)
		appendUint32(buf, uint32(n))
	}
	return nil
}

// EncodeMapHeader appends a map header for n following key/value
// pairs, choosing fixmap or map16/32 by count.
func EncodeMapHeader(buf buffer.Buffer, n int) error {
	if n < 0 {
		return fmt.Errorf("msgpack: negative map length %d", n)
	}
	switch {
	case n <= 15:
		buf.AppendByte(fixmapBase | byte(n))
	case n <= math.MaxUint16:
		buf.AppendByte(tagMap16)
		appendUint16(buf, uint16(n))
	default:
		buf.AppendByte(tagMap32)
		appendUint32(buf, uint32(n))
	}
	return nil
}

func appendUint16(buf buffer.Buffer, v uint16) {
	buf.Append([]byte{byte(v >> 8), byte(v)})
}

func appendUint32(buf buffer.Buffer, v uint32) {
	buf.Append([]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}

func appendUint64(buf buffer.Buffer, v uint64) {
	buf.Append([]byte{
		byte(v >> 56), byte(v >> 48), byte(v >> 40), byte(v >> 32),
		byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v),
	})
}
