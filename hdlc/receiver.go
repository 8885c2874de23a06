package hdlc

import (
	"fmt"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/logger"
)

// rxState is the decode state of a Receiver.
type rxState uint8

const (
	// rxIdle is the inert state of a zero Receiver; it consumes nothing.
	rxIdle rxState = iota
	// rxReadStart discards bytes until an opening FLAG.
	rxReadStart
	// rxReadData unstuffs frame bytes into the current slot.
	rxReadData
	// rxReadEnd verifies and delivers the frame closed by the last FLAG.
	rxReadEnd
)

func (s rxState) String() string {
	switch s {
	case rxIdle:
		return "Idle"
	case rxReadStart:
		return "ReadStart"
	case rxReadData:
		return "ReadData"
	case rxReadEnd:
		return "ReadEnd"
	default:
		return fmt.Sprintf("rxState(%d)", uint8(s))
	}
}

// Receiver reassembles frames from a raw byte stream.
//
// Decoded frames are written into a ring of fixed-size slots carved out of
// the caller's buffer, so a payload handed to the FrameSink stays intact
// until the ring wraps back to its slot.
//
// The zero Receiver is inert: Run consumes nothing. Use NewReceiver.
type Receiver struct {
	buf     []byte
	physMTU int // slot capacity: mtu + checksum field, or len(buf) if mtu is 0
	mode    crc.Mode
	sum     crc.Checksum
	sink    FrameSink
	logger  logger.Logger
	metrics *Metrics

	state   rxState
	slot    int // start of the current slot in buf
	cursor  int // next write position in buf; never beyond slot+physMTU
	dropped int // data bytes of the current frame that did not fit the slot
	escape  bool
}

// NewReceiver creates a Receiver decoding into buf.
//
// buf is owned by the Receiver for its whole lifetime. With a non-zero MTU,
// buf is divided into slots of MTU plus checksum-field bytes; buf must hold
// at least one slot. See BufferSize.
func NewReceiver(buf []byte, opts ...Option) (*Receiver, error) {
	cfg, err := newConfig(opts)
	if err != nil {
		return nil, err
	}

	return newReceiver(buf, cfg)
}

func newReceiver(buf []byte, cfg *config) (*Receiver, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("%w: receive buffer is empty", ErrInvalidData)
	}

	physMTU := len(buf)
	if cfg.mtu > 0 {
		physMTU = cfg.mtu + cfg.mode.FieldSize()
	}
	if physMTU > len(buf) {
		return nil, fmt.Errorf("%w: receive buffer of %d bytes cannot hold a %d byte slot", ErrInvalidData, len(buf), physMTU)
	}

	return &Receiver{
		buf:     buf,
		physMTU: physMTU,
		mode:    cfg.mode,
		sum:     crc.New(cfg.mode),
		sink:    cfg.sink,
		logger:  cfg.logger,
		metrics: cfg.metrics,
		state:   rxReadStart,
	}, nil
}

// SlotSize returns the capacity of one receive slot, checksum field included.
func (r *Receiver) SlotSize() int { return r.physMTU }

// Slots returns the number of slots in the receive ring.
func (r *Receiver) Slots() int {
	if r.physMTU == 0 {
		return 0
	}

	return len(r.buf) / r.physMTU
}

// Reset abandons any partially received frame and waits for the next FLAG.
// The receive buffer is kept.
func (r *Receiver) Reset() {
	if r.buf == nil {
		return
	}
	r.state = rxReadStart
	r.escape = false
	r.dropped = 0
	r.cursor = r.slot
}

// Run feeds data into the receiver and returns the number of bytes consumed.
//
// Run stops at the first frame error and returns it together with the bytes
// consumed so far, including the FLAG that closed the bad frame; the caller
// continues with data[n:]. A nil error with n < len(data) does not occur
// for a Receiver created by NewReceiver.
func (r *Receiver) Run(data []byte) (int, error) {
	if r.state == rxIdle {
		return 0, nil
	}

	consumed := 0
	defer func() { r.metrics.addBytesRecv(consumed) }()

	for len(data) > 0 || r.state == rxReadEnd {
		pending := r.state == rxReadEnd

		n, err := r.advance(data)
		consumed += n
		data = data[n:]

		if err != nil {
			return consumed, err
		}
		if n == 0 && !pending {
			break
		}
	}

	return consumed, nil
}

// advance runs the current state once over data and returns the number of
// bytes consumed.
func (r *Receiver) advance(data []byte) (int, error) {
	switch r.state {
	case rxReadStart:
		return r.readStart(data), nil
	case rxReadData:
		return r.readData(data), nil
	case rxReadEnd:
		return 0, r.readEnd()
	case rxIdle:
		return 0, nil
	default:
		return 0, fmt.Errorf("%w: unknown receive state %s", ErrFailure, r.state)
	}
}

func (r *Receiver) readStart(data []byte) int {
	if len(data) == 0 {
		return 0
	}

	// Only fill bytes are expected between frames, anything else is
	// skipped the same way.
	if data[0] != Flag {
		return 1
	}

	r.cursor = r.slot
	r.dropped = 0
	r.escape = false
	r.state = rxReadData

	return 1
}

func (r *Receiver) readData(data []byte) int {
	limit := r.slot + r.physMTU

	for i, b := range data {
		switch {
		case b == Flag:
			r.state = rxReadEnd
			return i + 1

		case b == Escape:
			r.escape = true

		case r.cursor < limit && r.cursor < len(r.buf):
			if r.escape {
				b ^= EscapeBit
				r.escape = false
			}
			r.buf[r.cursor] = b
			r.cursor++

		default:
			// Slot is full. Keep scanning for the closing FLAG and report
			// the overflow in readEnd.
			r.escape = false
			r.dropped++
		}
	}

	return len(data)
}

func (r *Receiver) readEnd() error {
	stored := r.cursor - r.slot
	length := stored + r.dropped

	if length == 0 {
		// Adjacent FLAGs: the closing FLAG may open the next frame.
		r.escape = false
		r.state = rxReadData

		return nil
	}

	r.state = rxReadStart

	if length > r.physMTU {
		r.metrics.incOversizeCount()
		r.logger.Debug("hdlc: frame dropped", "reason", "too large", "length", length, "slotSize", r.physMTU)

		return fmt.Errorf("%w: frame of %d bytes exceeds slot of %d bytes", ErrDataTooLarge, length, r.physMTU)
	}

	fieldSize := r.mode.FieldSize()
	if length < fieldSize {
		r.metrics.incCRCErrCount()
		r.logger.Debug("hdlc: frame dropped", "reason", "shorter than checksum", "length", length, "crc", r.mode.String())

		return fmt.Errorf("%w: frame of %d bytes is shorter than the %d byte checksum", ErrWrongCRC, length, fieldSize)
	}

	end := r.slot + stored - fieldSize
	payload := r.buf[r.slot:end:end]

	if fieldSize > 0 {
		r.sum.Reset()
		r.sum.Sum(payload)
		calc := r.sum.Value()
		wire := crc.Field(r.buf[end:r.cursor], r.mode)

		if calc != wire {
			r.metrics.incCRCErrCount()
			r.logger.Debug("hdlc: frame dropped", "reason", "checksum mismatch",
				"wire", wire, "computed", calc, "crc", r.mode.String())

			return fmt.Errorf("%w: wire=0x%X, computed=0x%X", ErrWrongCRC, wire, calc)
		}
	}

	r.metrics.incFrameRecvCount()
	r.sink.OnFrameRead(payload)

	r.slot += r.physMTU
	if r.slot+r.physMTU > len(r.buf) {
		r.slot = 0
	}
	r.cursor = r.slot

	return nil
}
