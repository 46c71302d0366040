package inspector

import (
	"time"

	"github.com/mickamy/iproto/iproto"
)

// Direction says whether a captured frame was written to the wire by
// the client or read back from the server.
type Direction int

const (
	DirectionRequest Direction = iota
	DirectionResponse
)

func (d Direction) String() string {
	if d == DirectionResponse {
		return "response"
	}
	return "request"
}

// Event is one captured IPROTO frame, the way proxy.Event captures one
// relayed SQL statement in the teacher. Preview holds a
// syntax-highlighted rendering of the frame's Lua expression or SQL
// text when the frame carries one (EVAL/CALL/EXECUTE/PREPARE); empty
// otherwise.
type Event struct {
	Sync       uint64
	Direction  Direction
	Type       iproto.RequestType
	CapturedAt time.Time
	Size       int
	Preview    string
	IsError    bool
}
