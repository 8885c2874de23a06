// Package serial opens serial ports as link transports.
package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
)

// Default port settings: 115200 8N1 with a 100ms read timeout.
const (
	DefaultBaudRate    = 115200
	DefaultDataBits    = 8
	DefaultReadTimeout = 100 * time.Millisecond
)

// openFunc is replaced in tests.
var openFunc = serial.Open

// Config holds the settings of a serial port.
type Config struct {
	baudRate    int
	dataBits    int
	parity      serial.Parity
	stopBits    serial.StopBits
	readTimeout time.Duration
}

func (cfg *Config) mode() *serial.Mode {
	return &serial.Mode{
		BaudRate: cfg.baudRate,
		DataBits: cfg.dataBits,
		Parity:   cfg.parity,
		StopBits: cfg.stopBits,
	}
}

// Option is a functional option for configuring a serial port.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithBaudRate sets the bit rate.
func WithBaudRate(baud int) Option {
	return optFunc(func(cfg *Config) error {
		if baud <= 0 {
			return fmt.Errorf("serial: invalid baud rate %d", baud)
		}
		cfg.baudRate = baud

		return nil
	})
}

// WithDataBits sets the character size, one of 5, 6, 7 or 8.
func WithDataBits(bits int) Option {
	return optFunc(func(cfg *Config) error {
		if bits < 5 || bits > 8 {
			return fmt.Errorf("serial: invalid data bits %d", bits)
		}
		cfg.dataBits = bits

		return nil
	})
}

// WithParity sets the parity: "none", "odd", "even", "mark" or "space".
func WithParity(name string) Option {
	return optFunc(func(cfg *Config) error {
		p, err := ParseParity(name)
		if err != nil {
			return err
		}
		cfg.parity = p

		return nil
	})
}

// WithStopBits sets the stop bits: "1", "1.5" or "2".
func WithStopBits(name string) Option {
	return optFunc(func(cfg *Config) error {
		s, err := ParseStopBits(name)
		if err != nil {
			return err
		}
		cfg.stopBits = s

		return nil
	})
}

// WithReadTimeout sets how long Read waits for the first byte before
// returning 0, nil. Zero or negative blocks until data arrives.
func WithReadTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		cfg.readTimeout = d
		return nil
	})
}

// ParseParity converts a parity name to a serial.Parity.
func ParseParity(name string) (serial.Parity, error) {
	switch strings.ToLower(name) {
	case "", "none", "n":
		return serial.NoParity, nil
	case "odd", "o":
		return serial.OddParity, nil
	case "even", "e":
		return serial.EvenParity, nil
	case "mark", "m":
		return serial.MarkParity, nil
	case "space", "s":
		return serial.SpaceParity, nil
	default:
		return serial.NoParity, fmt.Errorf("serial: unknown parity %q", name)
	}
}

// ParseStopBits converts "1", "1.5" or "2" to a serial.StopBits.
func ParseStopBits(name string) (serial.StopBits, error) {
	switch name {
	case "", "1":
		return serial.OneStopBit, nil
	case "1.5":
		return serial.OnePointFiveStopBits, nil
	case "2":
		return serial.TwoStopBits, nil
	default:
		return serial.OneStopBit, fmt.Errorf("serial: unknown stop bits %q", name)
	}
}

// Port is an open serial port. It implements io.ReadWriteCloser.
type Port struct {
	port      serial.Port
	name      string
	cfg       Config
	closeOnce sync.Once
	closeErr  error
}

var _ io.ReadWriteCloser = (*Port)(nil)

// Open opens the named port, 115200 8N1 unless opts say otherwise.
func Open(name string, opts ...Option) (*Port, error) {
	cfg := Config{
		baudRate:    DefaultBaudRate,
		dataBits:    DefaultDataBits,
		parity:      serial.NoParity,
		stopBits:    serial.OneStopBit,
		readTimeout: DefaultReadTimeout,
	}
	for _, opt := range opts {
		if err := opt.apply(&cfg); err != nil {
			return nil, err
		}
	}

	port, err := openFunc(name, cfg.mode())
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}

	timeout := cfg.readTimeout
	if timeout <= 0 {
		timeout = serial.NoTimeout
	}
	if err := port.SetReadTimeout(timeout); err != nil {
		_ = port.Close()
		return nil, fmt.Errorf("serial: set read timeout on %s: %w", name, err)
	}

	return &Port{port: port, name: name, cfg: cfg}, nil
}

// Name returns the port name passed to Open.
func (p *Port) Name() string { return p.name }

// BaudRate returns the configured bit rate.
func (p *Port) BaudRate() int { return p.cfg.baudRate }

// Read reads available bytes. With a read timeout it returns 0, nil when no
// byte arrived in time. Reading a closed port returns io.EOF.
func (p *Port) Read(buf []byte) (int, error) {
	n, err := p.port.Read(buf)

	return n, p.translate(err)
}

// Write writes data to the port.
func (p *Port) Write(data []byte) (int, error) {
	n, err := p.port.Write(data)

	return n, p.translate(err)
}

// Drain waits until all written data has been transmitted.
func (p *Port) Drain() error {
	return p.translate(p.port.Drain())
}

// Flush discards unread input.
func (p *Port) Flush() error {
	return p.translate(p.port.ResetInputBuffer())
}

// Close closes the port. Further calls return the first result.
func (p *Port) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.port.Close()
	})

	return p.closeErr
}

func (p *Port) translate(err error) error {
	var portErr *serial.PortError
	if errors.As(err, &portErr) && portErr.Code() == serial.PortClosed {
		return io.EOF
	}

	return err
}

// PortInfo describes a serial port found by List.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// List enumerates the serial ports of the host.
func List() ([]PortInfo, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("serial: list ports: %w", err)
	}

	ports := make([]PortInfo, 0, len(details))
	for _, d := range details {
		ports = append(ports, PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		})
	}

	return ports, nil
}
