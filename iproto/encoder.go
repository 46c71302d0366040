package iproto

import (
	"fmt"

	"github.com/mickamy/iproto/buffer"
	"github.com/mickamy/iproto/msgpack"
)

// Encoder frames typed requests into a buffer: preheader, header map,
// body map. Each instance owns its own monotonic sync counter — the
// original keeps this as a class-level static shared by every request
// encoder, but a package-level counter would make sync values race
// across independent streams, so here it is per-Encoder and the
// caller is expected to use one Encoder per stream, matching the
// single-encoder-per-stream concurrency model described for the
// transport layer.
type Encoder struct {
	sync uint64
}

// NewEncoder returns an Encoder whose first request will carry sync=1.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// nextSync increments and returns the encoder's sync counter.
func (e *Encoder) nextSync() uint64 {
	e.sync++
	return e.sync
}

// AuthPacket records where an encoded AUTH request's overwritable
// pieces live in the buffer, so ReencodeAuth can patch them in place
// after a fresh greeting invalidates the scramble it was built with.
type AuthPacket struct {
	bodyStart int
	bodyLen   int
}

func frameStart(buf buffer.Buffer) int {
	start := buf.End()
	buf.AppendByte(LengthPrefixByte)
	buf.Append([]byte{0, 0, 0, 0})
	return start
}

func patchSize(buf buffer.Buffer, start int) {
	size := buf.End() - start - PreheaderSize
	buf.Set(start+1, byte(size>>24))
	buf.Set(start+2, byte(size>>16))
	buf.Set(start+3, byte(size>>8))
	buf.Set(start+4, byte(size))
}

// encodeHeader writes the standard two-field header map
// {REQUEST_TYPE: reqType, SYNC: sync}, in that key order — matching
// the literal wire vector in the protocol's own worked PING example
// rather than the ascending-then-descending order a naive reading of
// the reference encoder's argument list might suggest.
func encodeHeader(buf buffer.Buffer, reqType RequestType, sync uint64) error {
	return msgpack.Encode(buf, msgpack.M(
		int64(KeyRequestType), int64(reqType),
		int64(KeySync), int64(sync),
	))
}

// EncodePing frames a PING request with an empty body map. Returns
// the assigned sync value.
func (e *Encoder) EncodePing(buf buffer.Buffer) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypePing, sync); err != nil {
		return 0, err
	}
	if err := msgpack.Encode(buf, msgpack.Map{}); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeInsert frames an INSERT request: {SPACE_ID, TUPLE}.
func (e *Encoder) EncodeInsert(buf buffer.Buffer, spaceID uint32, tuple msgpack.Array) (uint64, error) {
	return e.encodeSpaceTuple(buf, TypeInsert, spaceID, tuple)
}

// EncodeReplace frames a REPLACE request: {SPACE_ID, TUPLE}.
func (e *Encoder) EncodeReplace(buf buffer.Buffer, spaceID uint32, tuple msgpack.Array) (uint64, error) {
	return e.encodeSpaceTuple(buf, TypeReplace, spaceID, tuple)
}

func (e *Encoder) encodeSpaceTuple(buf buffer.Buffer, reqType RequestType, spaceID uint32, tuple msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, reqType, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySpaceID), int64(spaceID),
		int64(KeyTuple), tuple,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeDelete frames a DELETE request: {SPACE_ID, INDEX_ID, KEY}.
func (e *Encoder) EncodeDelete(buf buffer.Buffer, spaceID, indexID uint32, key msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeDelete, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySpaceID), int64(spaceID),
		int64(KeyIndexID), int64(indexID),
		int64(KeyKey), key,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeUpdate frames an UPDATE request: {SPACE_ID, INDEX_ID, KEY, TUPLE}
// where TUPLE carries the update operations list.
func (e *Encoder) EncodeUpdate(buf buffer.Buffer, spaceID, indexID uint32, key, ops msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeUpdate, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySpaceID), int64(spaceID),
		int64(KeyIndexID), int64(indexID),
		int64(KeyKey), key,
		int64(KeyTuple), ops,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeUpsert frames an UPSERT request: {SPACE_ID, INDEX_BASE, OPS, TUPLE}.
func (e *Encoder) EncodeUpsert(buf buffer.Buffer, spaceID uint32, indexBase int64, ops, tuple msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeUpsert, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySpaceID), int64(spaceID),
		int64(KeyIndexBase), indexBase,
		int64(KeyOps), ops,
		int64(KeyTuple), tuple,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// SelectParams bundles the SELECT body fields; grouped in a struct
// since SELECT has more independent fields than any other request.
type SelectParams struct {
	SpaceID  uint32
	IndexID  uint32
	Limit    uint32
	Offset   uint32
	Iterator Iterator
	Key      msgpack.Array
}

// EncodeSelect frames a SELECT request:
// {SPACE_ID, INDEX_ID, LIMIT, OFFSET, ITERATOR, KEY}.
func (e *Encoder) EncodeSelect(buf buffer.Buffer, p SelectParams) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeSelect, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySpaceID), int64(p.SpaceID),
		int64(KeyIndexID), int64(p.IndexID),
		int64(KeyLimit), int64(p.Limit),
		int64(KeyOffset), int64(p.Offset),
		int64(KeyIterator), int64(p.Iterator),
		int64(KeyKey), p.Key,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeCall frames a CALL request: {FUNCTION_NAME, TUPLE=args}.
func (e *Encoder) EncodeCall(buf buffer.Buffer, function string, args msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeCall, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeyFunctionName), function,
		int64(KeyTuple), args,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeEval frames an EVAL request: {EXPR, TUPLE=args}.
func (e *Encoder) EncodeEval(buf buffer.Buffer, expr string, args msgpack.Array) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeEval, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeyExpr), expr,
		int64(KeyTuple), args,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeExecute frames a text EXECUTE request:
// {SQL_TEXT, SQL_BIND, OPTIONS}.
func (e *Encoder) EncodeExecute(buf buffer.Buffer, sql string, bind msgpack.Array, options msgpack.Map) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeExecute, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeySQLText), sql,
		int64(KeySQLBind), bind,
		int64(KeyOptions), options,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeExecutePrepared frames a prepared-statement EXECUTE request:
// {STMT_ID, SQL_BIND, OPTIONS}.
func (e *Encoder) EncodeExecutePrepared(buf buffer.Buffer, stmtID uint64, bind msgpack.Array, options msgpack.Map) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypeExecute, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(
		int64(KeyStmtID), int64(stmtID),
		int64(KeySQLBind), bind,
		int64(KeyOptions), options,
	)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodePrepare frames a PREPARE request: {SQL_TEXT}.
func (e *Encoder) EncodePrepare(buf buffer.Buffer, sql string) (uint64, error) {
	sync := e.nextSync()
	start := frameStart(buf)
	if err := encodeHeader(buf, TypePrepare, sync); err != nil {
		return 0, err
	}
	body := msgpack.M(int64(KeySQLText), sql)
	if err := msgpack.Encode(buf, body); err != nil {
		return 0, err
	}
	patchSize(buf, start)
	return sync, nil
}

// EncodeAuth frames an AUTH request. Unlike every other request kind,
// AUTH's header carries only {REQUEST_TYPE: AUTH} — no SYNC — since
// authentication is a one-shot exchange that precedes normal
// request/response correlation. Body is
// {USER_NAME: user, TUPLE: ["chap-sha1", scramble]}.
//
// The returned AuthPacket records the body's position so a later
// ReencodeAuth call (after a fresh greeting invalidates the scramble)
// can patch it in place without disturbing the preheader.
func (e *Encoder) EncodeAuth(buf buffer.Buffer, user string, scramble []byte) (AuthPacket, error) {
	if len(scramble) != ScrambleSize {
		return AuthPacket{}, fmt.Errorf("iproto: scramble must be %d bytes, got %d", ScrambleSize, len(scramble))
	}
	start := frameStart(buf)
	if err := msgpack.Encode(buf, msgpack.M(int64(KeyRequestType), int64(TypeAuth))); err != nil {
		return AuthPacket{}, err
	}
	bodyStart := buf.End()
	if err := encodeAuthBody(buf, user, scramble); err != nil {
		return AuthPacket{}, err
	}
	bodyLen := buf.End() - bodyStart
	patchSize(buf, start)
	return AuthPacket{bodyStart: bodyStart, bodyLen: bodyLen}, nil
}

func encodeAuthBody(buf buffer.Buffer, user string, scramble []byte) error {
	body := msgpack.M(
		int64(KeyUserName), user,
		int64(KeyTuple), msgpack.Array{"chap-sha1", scramble},
	)
	return msgpack.Encode(buf, body)
}

// ReencodeAuth overwrites an already-placed AUTH packet's body in
// place with a new scramble (computed against a fresh greeting's
// salt) for the same user, without growing the buffer or touching the
// preheader — this only works because the username is unchanged and
// the scramble is always exactly ScrambleSize bytes, so the
// re-encoded body is guaranteed the same length as the original.
func ReencodeAuth(buf buffer.Buffer, pkt AuthPacket, user string, scramble []byte) error {
	if len(scramble) != ScrambleSize {
		return fmt.Errorf("iproto: scramble must be %d bytes, got %d", ScrambleSize, len(scramble))
	}
	tmp := buffer.New()
	if err := encodeAuthBody(tmp, user, scramble); err != nil {
		return err
	}
	encoded := tmp.Bytes()
	if len(encoded) != pkt.bodyLen {
		return fmt.Errorf("iproto: reencoded AUTH body length %d does not match original %d", len(encoded), pkt.bodyLen)
	}
	for i, b := range encoded {
		buf.Set(pkt.bodyStart+i, b)
	}
	return nil
}
