// Command iproto-inspect connects to an IPROTO server, wraps the
// connection in an inspector.Tap, and runs a Bubble Tea TUI showing
// every request/response frame as it crosses the wire. Since the Tap
// and the TUI run in the same process there is no RPC hop to model —
// unlike the teacher's sql-tapd (a separate daemon the tui package
// reached over gRPC), this is the daemon and the viewer in one binary.
// Grounded on the teacher's cmd/sql-tapd/main.go flag/signal idiom.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mickamy/iproto/inspector"
	"github.com/mickamy/iproto/resolve"
	"github.com/mickamy/iproto/session"
	"github.com/mickamy/iproto/transport"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("iproto-inspect", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "iproto-inspect — watch IPROTO traffic in real time\n\nUsage:\n  iproto-inspect [flags] <address>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	service := fs.String("service", "3301", "port, or empty/\"unix\" to treat <address> as a Unix-domain socket path")
	tls := fs.Bool("tls", false, "connect over TLS")
	user := fs.String("user", "", "username for authentication (empty skips AUTH)")
	passwd := fs.String("password", "", "password for authentication")
	connectTimeout := fs.Duration("connect-timeout", transport.DefaultConnectTimeout, "connect timeout")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("iproto-inspect %s\n", version)
		return
	}

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := run(fs.Arg(0), *service, *tls, *user, *passwd, *connectTimeout); err != nil {
		log.Fatal(err)
	}
}

func run(address, service string, useTLS bool, user, passwd string, connectTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := transport.KindPlain
	var stream transport.Stream = transport.NewPlainStream().WithResolver(resolve.Resolver{})
	if useTLS {
		kind = transport.KindTLS
		stream = transport.NewTLSStream().WithResolver(resolve.Resolver{})
	}

	broker := inspector.NewBroker()
	defer broker.Close()

	tap := inspector.NewTap(stream, broker)

	sess, err := session.NewWithStream(ctx, tap, transport.ConnectOptions{
		Address:        address,
		Service:        service,
		Kind:           kind,
		ConnectTimeout: connectTimeout,
		User:           user,
		Passwd:         passwd,
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() { _ = sess.Close() }()

	log.Printf("watching %s (session %s)", address, sess.ID())

	go keepalive(ctx, sess)

	program := tea.NewProgram(inspector.New(broker), tea.WithAltScreen())
	_, err = program.Run()
	return err
}

// keepalive sends a PING every few seconds so a quiescent connection
// still produces visible frames in the inspector, and so a dead
// connection is noticed promptly rather than leaving the TUI showing
// stale traffic.
func keepalive(ctx context.Context, sess *session.Session) {
	const interval = 5 * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sess.Ping(ctx); err != nil {
				return
			}
		}
	}
}
