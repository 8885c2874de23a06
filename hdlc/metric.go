package hdlc

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a codec.
// The codec itself is single-threaded; the counters may be read from any
// goroutine.
type Metrics struct {
	// FrameRecvCount indicates the number of verified frames delivered to the sink.
	FrameRecvCount atomic.Uint64
	// FrameSendCount indicates the number of frames fully emitted.
	FrameSendCount atomic.Uint64
	// FrameFlushCount indicates the number of in-flight frames flushed by Close.
	FrameFlushCount atomic.Uint64

	// CRCErrCount indicates the number of frames dropped with ErrWrongCRC.
	CRCErrCount atomic.Uint64
	// OversizeCount indicates the number of frames dropped with ErrDataTooLarge.
	OversizeCount atomic.Uint64
	// BusyCount indicates the number of Put calls rejected with ErrBusy.
	BusyCount atomic.Uint64

	// BytesRecv indicates the number of raw bytes consumed by the receiver.
	BytesRecv atomic.Uint64
	// BytesSent indicates the number of raw bytes produced by the transmitter.
	BytesSent atomic.Uint64
}

func (m *Metrics) incFrameRecvCount() {
	m.FrameRecvCount.Add(1)
}

func (m *Metrics) incFrameSendCount() {
	m.FrameSendCount.Add(1)
}

func (m *Metrics) incFrameFlushCount() {
	m.FrameFlushCount.Add(1)
}

func (m *Metrics) incCRCErrCount() {
	m.CRCErrCount.Add(1)
}

func (m *Metrics) incOversizeCount() {
	m.OversizeCount.Add(1)
}

func (m *Metrics) incBusyCount() {
	m.BusyCount.Add(1)
}

func (m *Metrics) addBytesRecv(n int) {
	m.BytesRecv.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
}

func (m *Metrics) addBytesSent(n int) {
	m.BytesSent.Add(uint64(n)) //nolint:gosec // n is a non-negative byte count
}
