package transport_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mickamy/iproto/transport"
)

func TestTLSStream_RejectsSSLCiphers(t *testing.T) {
	t.Parallel()

	s := transport.NewTLSStream()
	err := s.Connect(context.Background(), transport.ConnectOptions{
		Address:    "127.0.0.1",
		Service:    "3301",
		Kind:       transport.KindTLS,
		SSLCiphers: "ECDHE-RSA-AES256-GCM-SHA384",
	})
	require.ErrorIs(t, err, transport.ErrUnsupportedTLSOption)
}

func TestTLSStream_RejectsEncryptedClientKey(t *testing.T) {
	t.Parallel()

	s := transport.NewTLSStream()
	err := s.Connect(context.Background(), transport.ConnectOptions{
		Address:     "127.0.0.1",
		Service:     "3301",
		Kind:        transport.KindTLS,
		SSLCertFile: "testdata/does-not-matter.pem",
		SSLKeyFile:  "testdata/does-not-matter.pem",
		SSLPasswd:   "secret",
	})
	require.ErrorIs(t, err, transport.ErrUnsupportedTLSOption)
}
