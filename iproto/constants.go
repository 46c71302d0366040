// Package iproto implements the IPROTO wire frame: the request encoder
// that frames typed requests as length-prefixed MsgPack, and the
// response decoder that reconstructs typed Response values from a
// buffered byte stream as it arrives.
//
// Constants below are grounded verbatim on the protocol's key/type
// tables; values and names follow the wire exactly since any deviation
// here breaks interoperability with a real server.
package iproto

// Key is an IPROTO header or body map key.
type Key uint8

// Header map keys.
const (
	KeyRequestType   Key = 0x00
	KeySync          Key = 0x01
	KeySchemaVersion Key = 0x05
)

// Body map keys.
const (
	KeySpaceID      Key = 0x10
	KeyIndexID      Key = 0x11
	KeyLimit        Key = 0x12
	KeyOffset       Key = 0x13
	KeyIterator     Key = 0x14
	KeyIndexBase    Key = 0x15
	KeyKey          Key = 0x20
	KeyTuple        Key = 0x21
	KeyFunctionName Key = 0x22
	KeyUserName     Key = 0x23
	KeyExpr         Key = 0x27
	KeyOps          Key = 0x28
	KeyOptions      Key = 0x2b
	KeyData         Key = 0x30
	KeyError24      Key = 0x31
	KeySQLText      Key = 0x40
	KeySQLBind      Key = 0x41
	KeySQLInfo      Key = 0x42
	KeyStmtID       Key = 0x43
	KeyError        Key = 0x52
)

// ErrorMapKey indexes fields of one error-map entry inside an ERROR
// stack array.
type ErrorMapKey uint8

const (
	ErrorKeyType    ErrorMapKey = 0x00
	ErrorKeyFile    ErrorMapKey = 0x01
	ErrorKeyLine    ErrorMapKey = 0x02
	ErrorKeyMessage ErrorMapKey = 0x03
	ErrorKeyErrno   ErrorMapKey = 0x04
	ErrorKeyCode    ErrorMapKey = 0x05
	ErrorKeyFields  ErrorMapKey = 0x06
)

// ErrorStackKey is the sole key of the ERROR map: its value is the
// array of per-frame error maps.
const ErrorStackKey = 0x00

// RequestType is the IPROTO request/response type code carried in the
// header's REQUEST_TYPE field.
type RequestType uint32

const (
	TypeOK      RequestType = 0
	TypeSelect  RequestType = 1
	TypeInsert  RequestType = 2
	TypeReplace RequestType = 3
	TypeUpdate  RequestType = 4
	TypeDelete  RequestType = 5
	TypeAuth    RequestType = 7
	TypeEval    RequestType = 8
	TypeUpsert  RequestType = 9
	TypeCall    RequestType = 10
	TypeExecute RequestType = 11
	TypeNop     RequestType = 12
	TypePrepare RequestType = 13
	TypePing    RequestType = 64

	// TypeErrorBit, when set in a response header's REQUEST_TYPE
	// field, marks the response as carrying an error stack rather
	// than (or in addition to, for ERROR_24) successful data.
	TypeErrorBit RequestType = 0x8000
)

func (t RequestType) String() string {
	switch t &^ TypeErrorBit {
	case TypeOK:
		return "OK"
	case TypeSelect:
		return "SELECT"
	case TypeInsert:
		return "INSERT"
	case TypeReplace:
		return "REPLACE"
	case TypeUpdate:
		return "UPDATE"
	case TypeDelete:
		return "DELETE"
	case TypeAuth:
		return "AUTH"
	case TypeEval:
		return "EVAL"
	case TypeUpsert:
		return "UPSERT"
	case TypeCall:
		return "CALL"
	case TypeExecute:
		return "EXECUTE"
	case TypeNop:
		return "NOP"
	case TypePrepare:
		return "PREPARE"
	case TypePing:
		return "PING"
	default:
		return "UNKNOWN"
	}
}

// IsError reports whether t carries the TYPE_ERROR high bit.
func (t RequestType) IsError() bool {
	return t&TypeErrorBit != 0
}

// Iterator is the enumerated SELECT iterator kind, encoded on the
// wire as a small integer.
type Iterator int

const (
	IterEQ Iterator = iota
	IterREQ
	IterALL
	IterLT
	IterLE
	IterGE
	IterGT
	IterBitsAllSet
	IterBitsAnySet
	IterBitsAllNotSet
	IterOverlaps
	IterNeighbor
)

// Size constants from the greeting and diagnostic buffers.
const (
	GreetingSize      = 128
	GreetingLineSize  = 64
	GreetingMaxSalt   = 44
	MaxSaltSize       = 32
	ScrambleSize      = 20
	DiagErrMsgMax     = 512
	DiagFileNameMax   = 256
	DiagTypeNameMax   = 24
	PreheaderSize     = 5
	LengthPrefixByte  = 0xCE
)
