package link

import (
	"bytes"
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/hdlc"
	"github.com/stretchr/testify/require"
)

const testTimeout = 2 * time.Second

// newTestLink creates an opened link over one end of a net.Pipe and returns
// the other end for the test to drive.
func newTestLink(t *testing.T, opts ...Option) (*Link, net.Conn) {
	t.Helper()

	local, remote := net.Pipe()
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	l, err := NewLink(context.Background(), local, cfg)
	require.NoError(t, err)
	require.NoError(t, l.Open())

	t.Cleanup(func() {
		_ = l.Close()
		_ = remote.Close()
	})

	return l, remote
}

// newLinkPair creates two opened links connected by a net.Pipe.
func newLinkPair(t *testing.T, opts ...Option) (*Link, *Link) {
	t.Helper()

	left, right := net.Pipe()
	cfg, err := NewConfig(opts...)
	require.NoError(t, err)

	a, err := NewLink(context.Background(), left, cfg)
	require.NoError(t, err)
	b, err := NewLink(context.Background(), right, cfg)
	require.NoError(t, err)

	require.NoError(t, a.Open())
	require.NoError(t, b.Open())

	t.Cleanup(func() {
		_ = a.Close()
		_ = b.Close()
	})

	return a, b
}

// encodeFrame returns the wire form of payload.
func encodeFrame(t *testing.T, mode crc.Mode, payload []byte) []byte {
	t.Helper()

	tx, err := hdlc.NewTransmitter(hdlc.WithCRC(mode))
	require.NoError(t, err)
	require.NoError(t, tx.Put(payload))

	var wire []byte
	out := make([]byte, 32)
	for {
		n := tx.Run(out)
		if n == 0 {
			return wire
		}
		wire = append(wire, out[:n]...)
	}
}

func testContext(t *testing.T) context.Context {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)

	return ctx
}

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
