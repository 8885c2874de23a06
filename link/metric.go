package link

import (
	"sync/atomic"
)

// Metrics contains atomic counters for a Link. Codec counters are available
// through Link.CodecMetrics.
type Metrics struct {
	// SendCount indicates the number of Send calls whose frame was written.
	SendCount atomic.Uint64
	// RecvCount indicates the number of frames queued for Recv.
	RecvCount atomic.Uint64
	// RecvDropCount indicates the number of frames dropped on a full receive queue.
	RecvDropCount atomic.Uint64
	// FrameErrCount indicates the number of malformed frames discarded by the receiver.
	FrameErrCount atomic.Uint64
	// TransportErrCount indicates the number of failed transport reads and writes.
	TransportErrCount atomic.Uint64

	// SendQueueGauge indicates the number of Send calls waiting for the writer.
	SendQueueGauge atomic.Int64
}

func (m *Metrics) incSendCount() {
	m.SendCount.Add(1)
}

func (m *Metrics) incRecvCount() {
	m.RecvCount.Add(1)
}

func (m *Metrics) incRecvDropCount() {
	m.RecvDropCount.Add(1)
}

func (m *Metrics) incFrameErrCount() {
	m.FrameErrCount.Add(1)
}

func (m *Metrics) incTransportErrCount() {
	m.TransportErrCount.Add(1)
}

func (m *Metrics) incSendQueueGauge() {
	m.SendQueueGauge.Add(1)
}

func (m *Metrics) decSendQueueGauge() {
	m.SendQueueGauge.Add(-1)
}
