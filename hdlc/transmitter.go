package hdlc

import (
	"fmt"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/logger"
)

// txState is the encode state of a Transmitter.
type txState uint8

const (
	// txSendStart emits the opening FLAG of an armed frame.
	txSendStart txState = iota
	// txSendData emits the stuffed payload.
	txSendData
	// txSendCrc emits the stuffed checksum field.
	txSendCrc
	// txSendEnd emits the closing FLAG.
	txSendEnd
)

func (s txState) String() string {
	switch s {
	case txSendStart:
		return "SendStart"
	case txSendData:
		return "SendData"
	case txSendCrc:
		return "SendCrc"
	case txSendEnd:
		return "SendEnd"
	default:
		return fmt.Sprintf("txState(%d)", uint8(s))
	}
}

// Transmitter encodes one payload at a time into caller-supplied output
// buffers.
//
// Put arms a frame; Run emits as much of it as fits and is called again with
// fresh buffers until the frame is complete, at which point the
// FrameSentHandler is notified and the next payload may be submitted.
type Transmitter struct {
	mode    crc.Mode
	sum     crc.Checksum
	sent    FrameSentHandler
	logger  logger.Logger
	metrics *Metrics

	state      txState
	payload    []byte
	pos        int // payload bytes fully emitted
	remaining  int // payload bytes left; the checksum bit shift in txSendCrc
	crc        uint32
	escape     bool // ESCAPE of the current stuffed unit is out
	inProgress bool

	out     []byte // output buffer of the current Run
	written int
}

// NewTransmitter creates an idle Transmitter.
func NewTransmitter(opts ...Option) (*Transmitter, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newTransmitter(cfg), nil
}

func newTransmitter(cfg *config) *Transmitter {
	return &Transmitter{
		mode:    cfg.mode,
		sum:     crc.New(cfg.mode),
		sent:    cfg.sent,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		state:   txSendStart,
	}
}

// Put submits payload for transmission.
//
// It returns ErrBusy, leaving the in-flight frame untouched, if a frame is
// still being sent. An empty payload is accepted and ignored. The payload is
// not copied and must not be modified until the FrameSentHandler is called.
func (t *Transmitter) Put(payload []byte) error {
	if t.inProgress {
		t.metrics.incBusyCount()
		return ErrBusy
	}
	if len(payload) == 0 {
		return nil
	}

	t.payload = payload
	t.pos = 0
	t.remaining = len(payload)
	t.inProgress = true

	return nil
}

// Busy reports whether a frame is in flight.
func (t *Transmitter) Busy() bool {
	return t.inProgress
}

// Reset drops the in-flight frame, if any, without notifying the handler.
func (t *Transmitter) Reset() {
	t.state = txSendStart
	t.escape = false
	t.inProgress = false
	t.payload = nil
	t.pos = 0
	t.remaining = 0
}

// Close flushes an in-flight frame: the FrameSentHandler is called with the
// payload bytes emitted so far and the transmitter is reset. The peer may
// not have received a complete frame.
func (t *Transmitter) Close() {
	if !t.inProgress {
		return
	}

	payload := t.payload[:t.pos]
	t.Reset()

	t.metrics.incFrameFlushCount()
	t.logger.Debug("hdlc: in-flight frame flushed", "sent", len(payload))
	t.sent.OnFrameSent(payload)
}

// Run encodes pending data into out and returns the number of bytes written.
//
// Run fills out as far as the current frame allows; a completed frame is
// reported to the handler, which may Put the next payload to be continued in
// the same call. It returns 0 when nothing is pending.
func (t *Transmitter) Run(out []byte) int {
	t.out = out
	t.written = 0

	idle := false
	for t.written < len(t.out) {
		if t.advance() > 0 {
			idle = false
			continue
		}
		// A state may legitimately emit nothing once, e.g. txSendCrc moving
		// on to txSendEnd. Twice in a row means there is no work.
		if idle {
			break
		}
		idle = true
	}

	n := t.written
	t.out = nil
	t.written = 0
	t.metrics.addBytesSent(n)

	return n
}

// advance runs the current state once and returns the bytes it emitted.
func (t *Transmitter) advance() int {
	switch t.state {
	case txSendStart:
		return t.sendStart()
	case txSendData:
		return t.sendData()
	case txSendCrc:
		return t.sendCrc()
	case txSendEnd:
		return t.sendEnd()
	default:
		return 0
	}
}

func (t *Transmitter) sendStart() int {
	if !t.inProgress {
		return 0
	}

	t.sum.Reset()
	t.sum.Sum(t.payload)
	t.crc = t.sum.Value()

	n := t.emitByte(Flag)
	if n > 0 {
		t.escape = false
		t.state = txSendData
	}

	return n
}

func (t *Transmitter) sendData() int {
	run := 0
	for run < t.remaining && !needsEscape(t.payload[t.pos+run]) {
		run++
	}

	var n int
	if run > 0 {
		n = copy(t.out[t.written:], t.payload[t.pos:t.pos+run])
		t.written += n
		t.pos += n
		t.remaining -= n
	} else {
		n = t.emitStuffed(t.payload[t.pos])
		if n > 0 && !t.escape {
			t.pos++
			t.remaining--
		}
	}

	if t.remaining == 0 {
		t.state = txSendCrc
	}

	return n
}

// sendCrc emits the checksum least significant byte first. t.remaining holds
// the shift of the next byte: 0, 8, 16, 24.
func (t *Transmitter) sendCrc() int {
	if t.remaining >= 8*t.mode.FieldSize() {
		t.state = txSendEnd
		return 0
	}

	b := byte(t.crc >> t.remaining)

	var n int
	if needsEscape(b) {
		n = t.emitStuffed(b)
		if n > 0 && !t.escape {
			t.remaining += 8
		}
	} else {
		n = t.emitByte(b)
		if n > 0 {
			t.remaining += 8
		}
	}

	return n
}

func (t *Transmitter) sendEnd() int {
	n := t.emitByte(Flag)
	if n == 0 {
		return 0
	}

	payload := t.payload[:t.pos]
	t.state = txSendStart
	t.escape = false
	t.inProgress = false
	t.payload = nil

	t.metrics.incFrameSendCount()
	t.sent.OnFrameSent(payload)

	return n
}

// emitStuffed emits one half of the stuffed form of b: ESCAPE first, then
// b^EscapeBit. t.escape is toggled after each half, so it is false again
// once the unit is complete.
func (t *Transmitter) emitStuffed(b byte) int {
	v := Escape
	if t.escape {
		v = b ^ EscapeBit
	}

	n := t.emitByte(v)
	if n > 0 {
		t.escape = !t.escape
	}

	return n
}

func (t *Transmitter) emitByte(b byte) int {
	if t.written >= len(t.out) {
		return 0
	}
	t.out[t.written] = b
	t.written++

	return 1
}
