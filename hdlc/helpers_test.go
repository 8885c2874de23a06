package hdlc

import (
	"bytes"
	"testing"

	"github.com/arloliu/go-hdlc/crc"
)

// frameCollector is a FrameSink keeping copies of every decoded payload.
type frameCollector struct {
	frames [][]byte
}

func (c *frameCollector) OnFrameRead(payload []byte) {
	c.frames = append(c.frames, bytes.Clone(payload))
}

// sentCollector is a FrameSentHandler recording every notification.
type sentCollector struct {
	sent [][]byte
}

func (c *sentCollector) OnFrameSent(payload []byte) {
	c.sent = append(c.sent, bytes.Clone(payload))
}

// stuff returns data with every FLAG and ESCAPE byte escaped.
func stuff(data []byte) []byte {
	out := make([]byte, 0, len(data)*2)
	for _, b := range data {
		if b == Flag || b == Escape {
			out = append(out, Escape, b^EscapeBit)
		} else {
			out = append(out, b)
		}
	}

	return out
}

// wireFrame builds the expected wire form of payload independently of the
// Transmitter. field overrides the checksum field when non-nil.
func wireFrame(mode crc.Mode, payload []byte, field []byte) []byte {
	if field == nil {
		field = make([]byte, mode.FieldSize())
		crc.PutField(field, mode, crc.Compute(mode, payload))
	}

	body := append(bytes.Clone(payload), field...)
	out := []byte{Flag}
	out = append(out, stuff(body)...)

	return append(out, Flag)
}

// newTestReceiver creates a Receiver with a buffer of size bytes.
func newTestReceiver(t *testing.T, size int, opts ...Option) (*Receiver, *frameCollector) {
	t.Helper()

	sink := &frameCollector{}
	rx, err := NewReceiver(make([]byte, size), append(opts, WithFrameSink(sink))...)
	if err != nil {
		t.Fatalf("newTestReceiver: %v", err)
	}

	return rx, sink
}

// newTestTransmitter creates a Transmitter recording its notifications.
func newTestTransmitter(t *testing.T, opts ...Option) (*Transmitter, *sentCollector) {
	t.Helper()

	sent := &sentCollector{}
	tx, err := NewTransmitter(append(opts, WithFrameSent(sent))...)
	if err != nil {
		t.Fatalf("newTestTransmitter: %v", err)
	}

	return tx, sent
}

// drain runs tx with chunk-sized buffers until it produces nothing.
func drain(tx *Transmitter, chunk int) []byte {
	var out []byte
	buf := make([]byte, chunk)
	for {
		n := tx.Run(buf)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

// encode returns the wire form of payload produced by a fresh Transmitter.
func encode(t *testing.T, mode crc.Mode, payload []byte, chunk int) []byte {
	t.Helper()

	tx, _ := newTestTransmitter(t, WithCRC(mode))
	if err := tx.Put(payload); err != nil {
		t.Fatalf("encode: %v", err)
	}

	return drain(tx, chunk)
}

// feed passes stream to rx in chunk-sized pieces, re-invoking Run after
// each frame error, and returns the errors seen.
func feed(rx *Receiver, stream []byte, chunk int) []error {
	var errs []error
	for len(stream) > 0 {
		piece := stream[:min(chunk, len(stream))]
		stream = stream[len(piece):]

		for len(piece) > 0 {
			n, err := rx.Run(piece)
			if err != nil {
				errs = append(errs, err)
			}
			if n == 0 {
				break
			}
			piece = piece[n:]
		}
	}

	return errs
}

// testPayload returns a deterministic payload of n bytes that includes
// reserved bytes.
func testPayload(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i*37 + 0x7B)
	}

	return p
}
