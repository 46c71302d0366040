package transport_test

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/mickamy/iproto/auth"
	"github.com/mickamy/iproto/buffer"
	"github.com/mickamy/iproto/iproto"
	"github.com/mickamy/iproto/transport"
)

// startTarantool launches a tarantool/tarantool container and returns
// its host:port address, the way the teacher's proxy/mysql integration
// test launches a MySQL container via testcontainers-go — there is no
// ready-made testcontainers module for Tarantool, so this uses the
// generic container API directly instead.
func startTarantool(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "tarantool/tarantool:2.11",
		ExposedPorts: []string{"3301/tcp"},
		WaitingFor:   wait.ForListeningPort("3301/tcp").WithStartupTimeout(30 * time.Second),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = ctr.Terminate(context.Background())
	})

	host, err := ctr.Host(ctx)
	require.NoError(t, err)
	port, err := ctr.MappedPort(ctx, "3301/tcp")
	require.NoError(t, err)
	return fmt.Sprintf("%s:%s", host, port.Port())
}

// TestPlainStreamConnectAndPing exercises the full wire path against a
// real server: connect, read the greeting, send a PING frame, and
// decode the PONG response, matching scenario-style tests elsewhere in
// this repo but over an actual socket instead of an in-memory buffer.
func TestPlainStreamConnectAndPing(t *testing.T) {
	addr := startTarantool(t)

	stream := transport.NewPlainStream()
	t.Cleanup(func() { _ = stream.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var lastErr error
	for range 50 {
		lastErr = stream.Connect(ctx, transport.ConnectOptions{
			Address: addrHost(t, addr),
			Service: addrPort(t, addr),
		})
		if lastErr == nil {
			break
		}
		stream = transport.NewPlainStream()
		time.Sleep(100 * time.Millisecond)
	}
	require.NoError(t, lastErr)

	greeting := make([]byte, iproto.GreetingSize)
	require.NoError(t, recvFull(stream, greeting))
	g, err := auth.ParseGreeting(greeting)
	require.NoError(t, err)
	require.NotEmpty(t, g.Salt)

	buf := buffer.New()
	enc := iproto.NewEncoder()
	wantSync, err := enc.EncodePing(buf)
	require.NoError(t, err)

	n, err := stream.Send(buf.Bytes())
	require.NoError(t, err)
	require.Equal(t, buf.Len(), n)

	resp := make([]byte, 4096)
	nread, err := recvWithRetry(stream, resp)
	require.NoError(t, err)

	dec := iproto.NewResponseDecoder()
	r, consumed, err := dec.Decode(resp[:nread])
	require.NoError(t, err)
	require.Greater(t, consumed, 0)
	require.Equal(t, wantSync, r.Header.Sync)
	require.False(t, iproto.RequestType(r.Header.Code).IsError())
}

func recvWithRetry(s *transport.PlainStream, data []byte) (int, error) {
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		n, err := s.Recv(data)
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return 0, fmt.Errorf("timed out waiting for response")
}

func recvFull(s *transport.PlainStream, data []byte) error {
	read := 0
	deadline := time.Now().Add(5 * time.Second)
	for read < len(data) {
		if time.Now().After(deadline) {
			return fmt.Errorf("timed out reading %d bytes", len(data))
		}
		n, err := s.Recv(data[read:])
		if err != nil {
			return err
		}
		read += n
		if n == 0 {
			time.Sleep(10 * time.Millisecond)
		}
	}
	return nil
}

func addrHost(t *testing.T, hostport string) string {
	t.Helper()
	host, _, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	return host
}

func addrPort(t *testing.T, hostport string) string {
	t.Helper()
	_, port, err := net.SplitHostPort(hostport)
	require.NoError(t, err)
	return port
}
