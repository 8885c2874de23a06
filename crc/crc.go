// Package crc provides the frame check sequences used by the hdlc codec.
//
// A Mode selects both the checksum algorithm and the width of the checksum
// field appended to each frame:
//
//   - Off:   no checksum, zero-length field.
//   - CRC8:  CRC-8 (poly 0x07), 1 byte.
//   - CRC16: CRC-16/X-25 (the PPP FCS-16), 2 bytes, little-endian.
//   - CRC32: CRC-32/IEEE (the PPP FCS-32), 4 bytes, little-endian.
//
// Both ends of a link must use the same Mode.
package crc

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strings"

	"github.com/sigurn/crc16"
	"github.com/sigurn/crc8"
)

// Mode selects the checksum algorithm and field width of a frame.
type Mode uint8

const (
	// Off disables the checksum; frames carry no checksum field.
	Off Mode = iota
	// CRC8 appends a 1-byte CRC-8.
	CRC8
	// CRC16 appends a 2-byte CRC-16/X-25.
	CRC16
	// CRC32 appends a 4-byte CRC-32/IEEE.
	CRC32
)

// MaxFieldSize is the widest checksum field of any Mode.
const MaxFieldSize = 4

// ErrInvalidMode is returned when a Mode value or name is not recognized.
var ErrInvalidMode = errors.New("crc: invalid mode")

var (
	crc8Table  = crc8.MakeTable(crc8.CRC8)
	crc16Table = crc16.MakeTable(crc16.CRC16_X_25)
)

// String returns the name of the mode.
func (m Mode) String() string {
	switch m {
	case Off:
		return "off"
	case CRC8:
		return "crc8"
	case CRC16:
		return "crc16"
	case CRC32:
		return "crc32"
	default:
		return fmt.Sprintf("crc(%d)", uint8(m))
	}
}

// IsValid reports whether m is one of the defined modes.
func (m Mode) IsValid() bool {
	return m <= CRC32
}

// FieldSize returns the width of the checksum field in bytes.
func (m Mode) FieldSize() int {
	switch m {
	case CRC8:
		return 1
	case CRC16:
		return 2
	case CRC32:
		return 4
	default:
		return 0
	}
}

// ParseMode parses a mode name. It accepts the String form ("off", "crc8",
// "crc16", "crc32") as well as the bare widths "0", "8", "16" and "32".
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "off", "none", "0", "":
		return Off, nil
	case "crc8", "8":
		return CRC8, nil
	case "crc16", "16":
		return CRC16, nil
	case "crc32", "32":
		return CRC32, nil
	}

	return Off, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// MarshalText implements encoding.TextMarshaler.
func (m Mode) MarshalText() ([]byte, error) {
	if !m.IsValid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}

	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *Mode) UnmarshalText(text []byte) error {
	mode, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = mode

	return nil
}

// Checksum is a running checksum accumulator.
//
// Sum may be called any number of times; Value returns the checksum of all
// bytes summed since creation or the last Reset.
type Checksum interface {
	// Sum adds p to the running checksum.
	Sum(p []byte)
	// Value returns the current checksum, widened to 32 bits.
	Value() uint32
	// Reset restarts the accumulator.
	Reset()
}

// New returns a fresh accumulator for mode m.
// The accumulator for Off, or for an invalid mode, always reports 0.
func New(m Mode) Checksum {
	switch m {
	case CRC8:
		return &crc8Sum{crc: crc8.Init(crc8Table)}
	case CRC16:
		return &crc16Sum{crc: crc16.Init(crc16Table)}
	case CRC32:
		return &crc32Sum{}
	default:
		return nopSum{}
	}
}

// Compute returns the checksum of p for mode m.
func Compute(m Mode, p []byte) uint32 {
	cs := New(m)
	cs.Sum(p)

	return cs.Value()
}

// PutField writes the low FieldSize bytes of v into dst, least significant
// byte first. dst must hold at least m.FieldSize() bytes.
func PutField(dst []byte, m Mode, v uint32) {
	for i := 0; i < m.FieldSize(); i++ {
		dst[i] = byte(v >> (8 * i))
	}
}

// Field reads a little-endian checksum field of width m.FieldSize() from src.
func Field(src []byte, m Mode) uint32 {
	var v uint32
	for i := 0; i < m.FieldSize(); i++ {
		v |= uint32(src[i]) << (8 * i)
	}

	return v
}

type nopSum struct{}

func (nopSum) Sum([]byte)    {}
func (nopSum) Value() uint32 { return 0 }
func (nopSum) Reset()        {}

type crc8Sum struct {
	crc uint8
}

func (c *crc8Sum) Sum(p []byte)  { c.crc = crc8.Update(c.crc, p, crc8Table) }
func (c *crc8Sum) Value() uint32 { return uint32(crc8.Complete(c.crc, crc8Table)) }
func (c *crc8Sum) Reset()        { c.crc = crc8.Init(crc8Table) }

type crc16Sum struct {
	crc uint16
}

func (c *crc16Sum) Sum(p []byte)  { c.crc = crc16.Update(c.crc, p, crc16Table) }
func (c *crc16Sum) Value() uint32 { return uint32(crc16.Complete(c.crc, crc16Table)) }
func (c *crc16Sum) Reset()        { c.crc = crc16.Init(crc16Table) }

type crc32Sum struct {
	crc uint32
}

func (c *crc32Sum) Sum(p []byte)  { c.crc = crc32.Update(c.crc, crc32.IEEETable, p) }
func (c *crc32Sum) Value() uint32 { return c.crc }
func (c *crc32Sum) Reset()        { c.crc = 0 }
