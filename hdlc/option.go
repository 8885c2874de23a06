package hdlc

import (
	"errors"
	"fmt"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/logger"
)

// MaxMTU is the largest accepted MTU.
const MaxMTU = 64 * 1024

// config holds the settings shared by a Receiver and a Transmitter.
type config struct {
	// mtu is the maximum payload per frame. Zero makes the whole receive
	// buffer one slot.
	mtu     int
	mode    crc.Mode
	sink    FrameSink
	sent    FrameSentHandler
	logger  logger.Logger
	metrics *Metrics
}

func newConfig(opts []Option) (*config, error) {
	cfg := &config{
		mode:   crc.Off,
		sink:   nopSink{},
		sent:   nopSink{},
		logger: logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.metrics == nil {
		cfg.metrics = &Metrics{}
	}

	return cfg, nil
}

// Option is a functional option for configuring a Codec, Receiver or Transmitter.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithMTU sets the maximum payload size of a frame, excluding the checksum
// field. Zero, the default, uses the whole receive buffer as a single slot.
func WithMTU(mtu int) Option {
	return optFunc(func(cfg *config) error {
		if mtu < 0 || mtu > MaxMTU {
			return fmt.Errorf("%w: mtu %d out of range [0, %d]", ErrInvalidData, mtu, MaxMTU)
		}
		cfg.mtu = mtu

		return nil
	})
}

// WithCRC sets the checksum mode. The default is crc.Off.
func WithCRC(mode crc.Mode) Option {
	return optFunc(func(cfg *config) error {
		if !mode.IsValid() {
			return fmt.Errorf("%w: %w", ErrInvalidData, crc.ErrInvalidMode)
		}
		cfg.mode = mode

		return nil
	})
}

// WithFrameSink sets the callback for decoded frames.
func WithFrameSink(sink FrameSink) Option {
	return optFunc(func(cfg *config) error {
		if sink == nil {
			return errors.New("hdlc: frame sink must not be nil")
		}
		cfg.sink = sink

		return nil
	})
}

// WithFrameSent sets the callback for completed transmissions.
func WithFrameSent(h FrameSentHandler) Option {
	return optFunc(func(cfg *config) error {
		if h == nil {
			return errors.New("hdlc: frame sent handler must not be nil")
		}
		cfg.sent = h

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("hdlc: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// withMetrics makes a Receiver and Transmitter share one Metrics.
func withMetrics(m *Metrics) Option {
	return optFunc(func(cfg *config) error {
		cfg.metrics = m
		return nil
	})
}
