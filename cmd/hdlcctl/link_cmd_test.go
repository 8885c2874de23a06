package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/arloliu/go-hdlc/serial"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenTransport_NoPort(t *testing.T) {
	_, err := openTransport(defaultConfig())
	require.Error(t, err)
}

func TestSend_Payload(t *testing.T) {
	peer := stubTransport(t)

	_, _, err := runCmd(t, nil, "send", "ping")
	require.NoError(t, err)

	got, err := peer.Recv(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)
}

func TestSend_HexPayload(t *testing.T) {
	peer := stubTransport(t)

	_, _, err := runCmd(t, nil, "send", "--hex-in", "7e7d00")
	require.NoError(t, err)

	got, err := peer.Recv(testContext(t))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x7E, 0x7D, 0x00}, got)
}

func TestSend_File(t *testing.T) {
	peer := stubTransport(t)

	content := bytes.Repeat([]byte("0123456789"), 60)
	path := filepath.Join(t.TempDir(), "payload.bin")
	require.NoError(t, os.WriteFile(path, content, 0o600))

	_, stderr, err := runCmd(t, nil, "send", "--file", path)
	require.NoError(t, err)
	assert.Contains(t, stderr, "sent")

	ctx := testContext(t)
	var got []byte
	for i := 0; i < 3; i++ {
		frame, err := peer.Recv(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(frame), 256)
		got = append(got, frame...)
	}
	assert.Equal(t, content, got)
}

func TestSend_NothingToSend(t *testing.T) {
	stubTransport(t)

	_, _, err := runCmd(t, nil, "send")
	require.Error(t, err)

	_, _, err = runCmd(t, nil, "send", "--file", filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestListen_Count(t *testing.T) {
	peer := stubTransport(t)

	errCh := make(chan error, 1)
	go func() {
		ctx := testContext(t)
		if err := peer.Send(ctx, []byte("one")); err != nil {
			errCh <- err
			return
		}
		errCh <- peer.Send(ctx, []byte{0x7E, 0x00})
	}()

	out, stderr, err := runCmd(t, nil, "listen", "--count", "2", "--timeout", "2s")
	require.NoError(t, err)
	require.NoError(t, <-errCh)

	assert.Equal(t, "6f6e65\n7e00\n", out)
	assert.Contains(t, stderr, "listen finished")
}

func TestListen_Timeout(t *testing.T) {
	stubTransport(t)

	out, _, err := runCmd(t, nil, "listen", "--timeout", "50ms")
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestListen_PeerClosed(t *testing.T) {
	peer := stubTransport(t)

	go func() {
		_ = peer.Send(testContext(t), []byte("bye"))
		_ = peer.Close()
	}()

	out, _, err := runCmd(t, nil, "listen", "--raw", "--timeout", "2s")
	require.NoError(t, err)
	assert.Equal(t, "bye", out)
}

func TestPorts(t *testing.T) {
	orig := listPorts
	t.Cleanup(func() { listPorts = orig })

	listPorts = func() ([]serial.PortInfo, error) {
		return []serial.PortInfo{
			{Name: "/dev/ttyS0"},
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "0403", PID: "6001", SerialNumber: "A50285BI", Product: "FT232R"},
		}, nil
	}
	out, _, err := runCmd(t, nil, "ports")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PORT"))
	assert.Contains(t, lines[1], "/dev/ttyS0")
	assert.Contains(t, lines[2], "0403:6001")
	assert.Contains(t, lines[2], "FT232R")

	listPorts = func() ([]serial.PortInfo, error) { return nil, nil }
	out, _, err = runCmd(t, nil, "ports")
	require.NoError(t, err)
	assert.Equal(t, "No serial ports found\n", out)

	listPorts = func() ([]serial.PortInfo, error) { return nil, errors.New("no access") }
	_, _, err = runCmd(t, nil, "ports")
	require.Error(t, err)
}

func TestVersion(t *testing.T) {
	out, _, err := runCmd(t, nil, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "hdlcctl dev")
	assert.Contains(t, out, "commit: none")
}
