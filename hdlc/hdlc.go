package hdlc

import (
	"errors"

	"github.com/arloliu/go-hdlc/crc"
)

// Wire framing bytes. Both ends of a link must agree on them.
const (
	// Flag delimits frames.
	Flag byte = 0x7E
	// Escape marks a stuffed byte; the next byte is XORed with EscapeBit.
	Escape byte = 0x7D
	// EscapeBit is the XOR mask applied to a stuffed byte.
	EscapeBit byte = 0x20
	// Fill is the idle-line filler ignored between frames.
	Fill byte = 0xFF
)

// Result errors. A nil error is the Success result.
var (
	// ErrInvalidData reports a disallowed configuration or argument.
	ErrInvalidData = errors.New("hdlc: invalid data")
	// ErrFailure reports an unexpected internal condition.
	ErrFailure = errors.New("hdlc: error")
	// ErrBusy is returned by Put while another frame is in flight.
	// The caller should retry after the Frame Sent callback.
	ErrBusy = errors.New("hdlc: busy")
	// ErrDataTooLarge reports a received frame larger than the slot capacity.
	// The frame is dropped and the receiver resynchronizes on the next FLAG.
	ErrDataTooLarge = errors.New("hdlc: data too large")
	// ErrWrongCRC reports a received frame shorter than the checksum field or
	// with a checksum mismatch. The frame is dropped.
	ErrWrongCRC = errors.New("hdlc: wrong crc")
)

// FrameSink receives decoded frames.
type FrameSink interface {
	// OnFrameRead is called from inside Receiver.Run once per verified frame.
	// payload excludes the checksum field and aliases the receive buffer;
	// it is only valid for the duration of the call.
	OnFrameRead(payload []byte)
}

// FrameSinkFunc adapts a function to a FrameSink.
type FrameSinkFunc func(payload []byte)

// OnFrameRead calls f(payload).
func (f FrameSinkFunc) OnFrameRead(payload []byte) { f(payload) }

// FrameSentHandler is notified when a submitted payload leaves the transmitter.
type FrameSentHandler interface {
	// OnFrameSent is called from inside Transmitter.Run after the closing FLAG
	// is emitted, or from Transmitter.Close when an in-flight frame is
	// flushed. payload is the submitted slice cut to the payload bytes that
	// were emitted.
	OnFrameSent(payload []byte)
}

// FrameSentFunc adapts a function to a FrameSentHandler.
type FrameSentFunc func(payload []byte)

// OnFrameSent calls f(payload).
func (f FrameSentFunc) OnFrameSent(payload []byte) { f(payload) }

type nopSink struct{}

func (nopSink) OnFrameRead([]byte) {}
func (nopSink) OnFrameSent([]byte) {}

// ResetFlags selects which side of a Codec is reset.
type ResetFlags uint8

const (
	// ResetBoth resets the receive and transmit sides.
	ResetBoth ResetFlags = iota
	// ResetTxOnly resets the transmit side only.
	ResetTxOnly
	// ResetRxOnly resets the receive side only.
	ResetRxOnly
)

// BufferSize returns the receive buffer size holding frames slots of
// mtu payload bytes each, checksum field included.
func BufferSize(mtu int, mode crc.Mode, frames int) int {
	return (mtu + mode.FieldSize()) * frames
}

func needsEscape(b byte) bool {
	return b == Flag || b == Escape
}
