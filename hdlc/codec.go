package hdlc

import (
	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/logger"
)

// Codec combines a Receiver and a Transmitter sharing one checksum mode.
type Codec struct {
	rx      *Receiver
	tx      *Transmitter
	mtu     int
	mode    crc.Mode
	logger  logger.Logger
	metrics Metrics
}

// NewCodec creates a Codec that decodes into buf.
//
// opts configure the MTU, checksum mode, callbacks and logger; see With*
// functions. It returns an error wrapping ErrInvalidData if buf cannot hold
// one frame slot.
func NewCodec(buf []byte, opts ...Option) (*Codec, error) {
	c := &Codec{}

	cfg, err := newConfig(append(opts, withMetrics(&c.metrics)))
	if err != nil {
		return nil, err
	}

	c.rx, err = newReceiver(buf, cfg)
	if err != nil {
		return nil, err
	}
	c.tx = newTransmitter(cfg)
	c.mtu = cfg.mtu
	c.mode = cfg.mode
	c.logger = cfg.logger

	return c, nil
}

// RunRx feeds raw bytes into the receiver. See Receiver.Run.
func (c *Codec) RunRx(data []byte) (int, error) {
	return c.rx.Run(data)
}

// RunTx encodes pending output into out. See Transmitter.Run.
func (c *Codec) RunTx(out []byte) int {
	return c.tx.Run(out)
}

// Put submits a payload for transmission. See Transmitter.Put.
func (c *Codec) Put(payload []byte) error {
	return c.tx.Put(payload)
}

// Busy reports whether a transmit frame is in flight.
func (c *Codec) Busy() bool {
	return c.tx.Busy()
}

// Reset resets the receive side, the transmit side, or both.
// A transmit frame dropped by Reset is not reported to the handler.
func (c *Codec) Reset(flags ResetFlags) {
	if flags != ResetTxOnly {
		c.rx.Reset()
	}
	if flags != ResetRxOnly {
		c.tx.Reset()
	}
	c.logger.Debug("hdlc: codec reset", "flags", flags)
}

// Close resets the receive side and flushes an in-flight transmit frame
// through the FrameSentHandler with whatever was sent so far.
// The Codec may be used again afterwards.
func (c *Codec) Close() {
	c.rx.Reset()
	c.tx.Close()
}

// MTU returns the configured MTU. Zero means the whole receive buffer is one slot.
func (c *Codec) MTU() int { return c.mtu }

// CRC returns the checksum mode.
func (c *Codec) CRC() crc.Mode { return c.mode }

// Receiver returns the receive side.
func (c *Codec) Receiver() *Receiver { return c.rx }

// Transmitter returns the transmit side.
func (c *Codec) Transmitter() *Transmitter { return c.tx }

// Metrics returns the codec counters.
func (c *Codec) Metrics() *Metrics { return &c.metrics }
