//go:build unix

package transport_test

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/higebu/netfd"
	"github.com/stretchr/testify/require"

	"github.com/mickamy/iproto/transport"
)

func TestAwait_TimesOutWithNoEvent(t *testing.T) {
	t.Parallel()

	client, _ := loopbackPair(t)
	fd := netfd.GetFdFromConn(client)
	require.GreaterOrEqual(t, fd, 0)

	st := transport.NewWord()
	st.Set(transport.StatusEstablished)
	st.Set(transport.StatusNeedReadEventForRead)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := transport.Await(ctx, fd, st)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAwait_ReturnsWhenReadable(t *testing.T) {
	t.Parallel()

	client, server := loopbackPair(t)
	fd := netfd.GetFdFromConn(client)
	require.GreaterOrEqual(t, fd, 0)

	st := transport.NewWord()
	st.Set(transport.StatusEstablished)
	st.Set(transport.StatusNeedReadEventForRead)

	go func() {
		time.Sleep(10 * time.Millisecond)
		_, _ = server.Write([]byte("x"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	require.NoError(t, transport.Await(ctx, fd, st))
}

func TestAwait_RejectsStatusWithNoNeedBit(t *testing.T) {
	t.Parallel()

	client, _ := loopbackPair(t)
	fd := netfd.GetFdFromConn(client)

	st := transport.NewWord()
	st.Set(transport.StatusEstablished)

	err := transport.Await(context.Background(), fd, st)
	require.Error(t, err)
}

// loopbackPair returns a connected TCP client/server pair backed by
// real file descriptors, the way Await's caller would hold one.
func loopbackPair(t *testing.T) (client, server net.Conn) {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, acceptErr := ln.Accept()
		if acceptErr == nil {
			accepted <- c
		}
	}()

	client, err = net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	server = <-accepted
	t.Cleanup(func() { _ = server.Close() })
	return client, server
}
