package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-hdlc/crc"
	"github.com/arloliu/go-hdlc/hdlc"
	"github.com/arloliu/go-hdlc/logger"
)

// Default link settings.
const (
	DefaultMTU           = 256
	DefaultCRC           = crc.CRC16
	DefaultRecvSlots     = 3
	DefaultSendQueueSize = 10
	DefaultRecvQueueSize = 16
	DefaultChunkSize     = 64
	DefaultSendTimeout   = 3 * time.Second
)

// Range limits.
const (
	MaxRecvSlots = 64
	MaxQueueSize = 4096
	MaxChunkSize = 64 * 1024
)

// Config holds the settings of a Link.
type Config struct {
	// mtu is the largest payload Send accepts and the receive slot size,
	// excluding the checksum field.
	mtu  int
	mode crc.Mode

	// recvSlots is the number of frames the receive ring holds before a
	// slot is reused.
	recvSlots int

	sendQueueSize int
	recvQueueSize int

	// chunkSize bounds a single transport Read or Write.
	chunkSize int

	// sendTimeout bounds how long Send waits for the frame to be written.
	// Zero waits for the caller's context only.
	sendTimeout time.Duration

	// statsInterval enables periodic Debug logging of the link counters.
	statsInterval time.Duration

	logger logger.Logger
}

// NewConfig creates a link configuration.
//
// opts are functional options applied in order; see With* functions.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		mtu:           DefaultMTU,
		mode:          DefaultCRC,
		recvSlots:     DefaultRecvSlots,
		sendQueueSize: DefaultSendQueueSize,
		recvQueueSize: DefaultRecvQueueSize,
		chunkSize:     DefaultChunkSize,
		sendTimeout:   DefaultSendTimeout,
		logger:        logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// MTU returns the largest payload per frame.
func (cfg *Config) MTU() int { return cfg.mtu }

// CRC returns the checksum mode.
func (cfg *Config) CRC() crc.Mode { return cfg.mode }

// RecvSlots returns the number of receive ring slots.
func (cfg *Config) RecvSlots() int { return cfg.recvSlots }

// RecvBufferSize returns the size of the receive ring in bytes.
func (cfg *Config) RecvBufferSize() int { return hdlc.BufferSize(cfg.mtu, cfg.mode, cfg.recvSlots) }

// SendQueueSize returns the number of Send calls that may wait for the writer.
func (cfg *Config) SendQueueSize() int { return cfg.sendQueueSize }

// RecvQueueSize returns the number of received frames buffered for Recv.
func (cfg *Config) RecvQueueSize() int { return cfg.recvQueueSize }

// ChunkSize returns the transport read and write chunk size.
func (cfg *Config) ChunkSize() int { return cfg.chunkSize }

// SendTimeout returns the Send timeout.
func (cfg *Config) SendTimeout() time.Duration { return cfg.sendTimeout }

// StatsInterval returns the counter logging interval; zero disables it.
func (cfg *Config) StatsInterval() time.Duration { return cfg.statsInterval }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a link Config.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithMTU sets the largest payload per frame. Must be in [1, hdlc.MaxMTU].
func WithMTU(mtu int) Option {
	return optFunc(func(cfg *Config) error {
		if mtu < 1 || mtu > hdlc.MaxMTU {
			return fmt.Errorf("link: mtu %d out of range [1, %d]", mtu, hdlc.MaxMTU)
		}
		cfg.mtu = mtu

		return nil
	})
}

// WithCRC sets the checksum mode. Both ends must agree.
func WithCRC(mode crc.Mode) Option {
	return optFunc(func(cfg *Config) error {
		if !mode.IsValid() {
			return fmt.Errorf("link: %w", crc.ErrInvalidMode)
		}
		cfg.mode = mode

		return nil
	})
}

// WithRecvSlots sets the number of receive ring slots. Must be in [1, MaxRecvSlots].
func WithRecvSlots(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxRecvSlots {
			return fmt.Errorf("link: receive slots %d out of range [1, %d]", n, MaxRecvSlots)
		}
		cfg.recvSlots = n

		return nil
	})
}

// WithSendQueueSize sets the send queue size. Must be in [1, MaxQueueSize].
func WithSendQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueSize {
			return fmt.Errorf("link: send queue size %d out of range [1, %d]", n, MaxQueueSize)
		}
		cfg.sendQueueSize = n

		return nil
	})
}

// WithRecvQueueSize sets the receive queue size. Must be in [1, MaxQueueSize].
// Frames arriving while the queue is full are dropped.
func WithRecvQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxQueueSize {
			return fmt.Errorf("link: receive queue size %d out of range [1, %d]", n, MaxQueueSize)
		}
		cfg.recvQueueSize = n

		return nil
	})
}

// WithChunkSize sets the transport read and write chunk size. Must be in [1, MaxChunkSize].
func WithChunkSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 1 || n > MaxChunkSize {
			return fmt.Errorf("link: chunk size %d out of range [1, %d]", n, MaxChunkSize)
		}
		cfg.chunkSize = n

		return nil
	})
}

// WithSendTimeout sets the Send timeout. Zero disables it.
func WithSendTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("link: send timeout must not be negative")
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithStatsInterval logs the link counters at Debug level every d. Zero disables it.
func WithStatsInterval(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("link: stats interval must not be negative")
		}
		cfg.statsInterval = d

		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("link: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
