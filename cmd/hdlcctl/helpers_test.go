package main

import (
	"bytes"
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-hdlc/link"
	"github.com/stretchr/testify/require"
)

// lockedBuffer is a bytes.Buffer safe for concurrent writers.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return b.buf.String()
}

// runCmd executes hdlcctl with args and stdin and returns what it wrote to
// stdout and stderr.
func runCmd(t *testing.T, stdin []byte, args ...string) (string, string, error) {
	t.Helper()

	var stdout bytes.Buffer
	stderr := &lockedBuffer{}

	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetIn(bytes.NewReader(stdin))
	cmd.SetOut(&stdout)
	cmd.SetErr(stderr)

	err := cmd.Execute()

	return stdout.String(), stderr.String(), err
}

// stubTransport makes the link commands run over one end of a net.Pipe and
// returns a link opened on the other end with default settings.
func stubTransport(t *testing.T) *link.Link {
	t.Helper()

	local, remote := net.Pipe()

	orig := openTransport
	openTransport = func(config) (io.ReadWriteCloser, error) { return local, nil }

	cfg, err := link.NewConfig()
	require.NoError(t, err)
	peer, err := link.NewLink(context.Background(), remote, cfg)
	require.NoError(t, err)
	require.NoError(t, peer.Open())

	t.Cleanup(func() {
		openTransport = orig
		_ = peer.Close()
		_ = local.Close()
	})

	return peer
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	return ctx
}
