// Command iprotoping dials an IPROTO server, performs the
// greeting/auth handshake, and sends repeated PING requests, printing
// round-trip latency for each. It is the client-core equivalent of a
// TCP ping: a minimal, dependency-light exercise of session.Session
// end to end. Grounded on the teacher's cmd/sql-tapd/main.go flag set
// and signal.NotifyContext shutdown idiom.
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

	"github.com/mickamy/iproto/resolve"
	"github.com/mickamy/iproto/session"
	"github.com/mickamy/iproto/transport"
)

var version = "dev"

func main() {
	fs := flag.NewFlagSet("iprotoping", flag.ExitOnError)
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "iprotoping — ping an IPROTO server\n\nUsage:\n  iprotoping [flags] <address>\n\nFlags:\n")
		fs.PrintDefaults()
	}

	service := fs.String("service", "3301", "port, or empty/\"unix\" to treat <address> as a Unix-domain socket path")
	tls := fs.Bool("tls", false, "connect over TLS")
	user := fs.String("user", "", "username for authentication (empty skips AUTH)")
	passwd := fs.String("password", "", "password for authentication")
	count := fs.Int("count", 4, "number of pings to send (0 for unlimited)")
	interval := fs.Duration("interval", time.Second, "delay between pings")
	connectTimeout := fs.Duration("connect-timeout", transport.DefaultConnectTimeout, "connect timeout")
	showVersion := fs.Bool("version", false, "show version and exit")

	_ = fs.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("iprotoping %s\n", version)
		return
	}

	if fs.NArg() < 1 {
		fs.Usage()
		os.Exit(1)
	}

	if err := run(fs.Arg(0), *service, *tls, *user, *passwd, *count, *interval, *connectTimeout); err != nil {
		log.Fatal(err)
	}
}

func run(address, service string, tls bool, user, passwd string, count int, interval, connectTimeout time.Duration) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kind := transport.KindPlain
	if tls {
		kind = transport.KindTLS
	}

	sess, err := session.New(ctx, resolve.Resolver{}, transport.ConnectOptions{
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

	log.Printf("connected to %s (session %s)", address, sess.ID())

	for i := 0; count == 0 || i < count; i++ {
		if ctx.Err() != nil {
			break
		}

		start := time.Now()
		resp, err := sess.Ping(ctx)
		if err != nil {
			return fmt.Errorf("ping %d: %w", i+1, err)
		}
		elapsed := time.Since(start)

		if len(resp.Body.Errors) > 0 {
			log.Printf("ping %d: server error: %s", i+1, resp.Body.Errors[0].Message)
		} else {
			log.Printf("ping %d: sync=%d time=%s", i+1, resp.Header.Sync, elapsed)
		}

		if count != 1 {
			select {
			case <-ctx.Done():
			case <-time.After(interval):
			}
		}
	}
	return nil
}
