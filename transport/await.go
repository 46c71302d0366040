//go:build unix

package transport

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sys/unix"
)

// Await blocks until fd becomes ready for the direction(s) requested
// by st's needs-event bits, or ctx is done. It is a convenience for
// callers that hold a stream's fd and want blocking-until-ready
// semantics on top of the otherwise fully non-blocking transport
// contract (the CLI tools go through session and do not use it); it
// is never called by transport, iproto, msgpack, or auth themselves.
//
// st is expected to be the Status most recently returned by a would-
// block Send/Recv. Neither need-bit set is a programmer error: there
// is nothing to wait for.
func Await(ctx context.Context, fd int, st Word) error {
	var events int16
	if st.Any(StatusNeedReadEvent) {
		events |= unix.POLLIN
	}
	if st.Any(StatusNeedWriteEvent) {
		events |= unix.POLLOUT
	}
	if events == 0 {
		return fmt.Errorf("transport: await: status 0x%x has no needs-event bit set", st.Raw())
	}

	for {
		timeoutMs := -1
		if deadline, ok := ctx.Deadline(); ok {
			timeoutMs = int(time.Until(deadline) / time.Millisecond)
			if timeoutMs < 0 {
				timeoutMs = 0
			}
		}

		fds := []unix.PollFd{{Fd: int32(fd), Events: events}}
		n, err := unix.Poll(fds, timeoutMs)
		if err != nil {
			if err == unix.EINTR {
				select {
				case <-ctx.Done():
					return ctx.Err()
				default:
					continue
				}
			}
			return fmt.Errorf("transport: await: poll: %w", err)
		}
		if n > 0 {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
	}
}
