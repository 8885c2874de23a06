// Package link runs an hdlc.Codec over a byte stream transport such as a
// serial port.
//
// A Link owns two goroutines: a reader that feeds transport bytes into the
// receiver, and a writer that encodes one queued payload at a time and
// writes it in chunks. Send blocks until its frame has been written, and
// Recv returns received payloads in arrival order.
//
//	cfg, _ := link.NewConfig(link.WithMTU(128), link.WithCRC(crc.CRC16))
//	l, _ := link.NewLink(ctx, port, cfg)
//	_ = l.Open()
//	defer l.Close()
//
//	_ = l.Send(ctx, []byte("ping"))
//	payload, _ := l.Recv(ctx)
//
// Frames carry no acknowledgement: a written frame may still be lost or
// rejected by the peer.
package link

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-hdlc/hdlc"
	"github.com/arloliu/go-hdlc/internal/pool"
	"github.com/arloliu/go-hdlc/internal/queue"
	"github.com/arloliu/go-hdlc/internal/task"
	"github.com/arloliu/go-hdlc/logger"
	"github.com/puzpuzpuz/xsync/v3"
)

var (
	ErrLinkClosed   = errors.New("link: closed")
	ErrNotOpen      = errors.New("link: not open")
	ErrAlreadyOpen  = errors.New("link: already open")
	ErrSendTimeout  = errors.New("link: send timeout")
	ErrNilTransport = errors.New("link: transport is nil")
)

type linkState int32

const (
	stateNew linkState = iota
	stateOpen
	stateClosed
)

// sendRequest is a payload waiting for the writer. done receives the result
// exactly once.
type sendRequest struct {
	id      uint64
	payload []byte
	done    chan error
}

func (req *sendRequest) complete(err error) {
	select {
	case req.done <- err:
	default:
	}
}

// Link exchanges frames over an io.ReadWriteCloser.
type Link struct {
	cfg     *Config
	rw      io.ReadWriteCloser
	codec   *hdlc.Codec
	logger  logger.Logger
	taskMgr *task.Manager

	state     atomic.Int32
	stopWatch func() bool

	// closeCh is closed by shutdown; closeCause is written before that.
	closeCh    chan struct{}
	closeOnce  sync.Once
	closeCause error

	sendCh  chan *sendRequest
	pending *xsync.MapOf[uint64, *sendRequest]
	nextID  atomic.Uint64
	txBuf   []byte // owned by the writer task

	recvQueue  queue.Queue[[]byte]
	recvNotify chan struct{}

	metrics Metrics
}

// NewLink creates a Link over rw. The Link takes ownership of rw and closes
// it on Close.
//
// When ctx is done the link shuts down as if the transport failed; Close
// must still be called to release the transport.
func NewLink(ctx context.Context, rw io.ReadWriteCloser, cfg *Config) (*Link, error) {
	if rw == nil {
		return nil, ErrNilTransport
	}
	if cfg == nil {
		return nil, errors.New("link: config is nil")
	}

	l := &Link{
		cfg:        cfg,
		rw:         rw,
		logger:     cfg.logger,
		taskMgr:    task.NewManager(ctx, cfg.logger),
		closeCh:    make(chan struct{}),
		sendCh:     make(chan *sendRequest, cfg.sendQueueSize),
		pending:    xsync.NewMapOf[uint64, *sendRequest](),
		txBuf:      make([]byte, cfg.chunkSize),
		recvQueue:  queue.NewLockFreeQueue[[]byte](),
		recvNotify: make(chan struct{}, 1),
	}

	codec, err := hdlc.NewCodec(make([]byte, cfg.RecvBufferSize()),
		hdlc.WithMTU(cfg.mtu),
		hdlc.WithCRC(cfg.mode),
		hdlc.WithFrameSink(hdlc.FrameSinkFunc(l.onFrameRead)),
		hdlc.WithLogger(cfg.logger),
	)
	if err != nil {
		return nil, fmt.Errorf("link: %w", err)
	}
	l.codec = codec

	l.stopWatch = context.AfterFunc(ctx, func() {
		l.shutdown(ctx.Err())
	})

	return l, nil
}

// Open starts the reader and writer goroutines. A Link can be opened once.
func (l *Link) Open() error {
	if !l.state.CompareAndSwap(int32(stateNew), int32(stateOpen)) {
		if linkState(l.state.Load()) == stateClosed {
			return ErrLinkClosed
		}

		return ErrAlreadyOpen
	}

	if err := l.start(); err != nil {
		_ = l.Close()
		return err
	}

	l.logger.Info("link: opened",
		"mtu", l.cfg.mtu, "crc", l.cfg.mode.String(), "recvSlots", l.cfg.recvSlots)

	return nil
}

func (l *Link) start() error {
	if err := l.taskMgr.StartReader("hdlc-reader", l.cfg.chunkSize, l.readChunk, nil); err != nil {
		return err
	}
	if err := task.StartConsumer(l.taskMgr, "hdlc-writer", l.sendCh, l.writeFrame, nil); err != nil {
		return err
	}
	if l.cfg.statsInterval > 0 {
		if err := l.taskMgr.StartInterval("hdlc-stats", l.cfg.statsInterval, l.logStats); err != nil {
			return err
		}
	}

	return nil
}

// Close stops the goroutines, closes the transport and fails pending Send
// calls with ErrLinkClosed. Frames already received stay available to Recv.
func (l *Link) Close() error {
	prev := linkState(l.state.Swap(int32(stateClosed)))
	if prev == stateClosed {
		return nil
	}

	l.logger.Debug("link: start to close")

	l.stopWatch()
	l.shutdown(nil)

	// closing the transport unblocks a reader or writer stuck in I/O
	err := l.rw.Close()
	if prev == stateOpen {
		l.taskMgr.Wait()
	}

	l.codec.Close()

	// requests the writer never picked up
	for drained := false; !drained; {
		select {
		case req := <-l.sendCh:
			l.metrics.decSendQueueGauge()
			req.complete(ErrLinkClosed)
		default:
			drained = true
		}
	}

	l.pending.Range(func(_ uint64, req *sendRequest) bool {
		req.complete(ErrLinkClosed)
		return true
	})

	l.logger.Info("link: closed",
		"sent", l.metrics.SendCount.Load(),
		"received", l.metrics.RecvCount.Load(),
		"dropped", l.metrics.RecvDropCount.Load())

	return err
}

// Done returns a channel closed when the link shuts down, either by Close,
// a transport failure, or the parent context.
func (l *Link) Done() <-chan struct{} {
	return l.closeCh
}

// Err returns nil while the link runs, and the reason for the shutdown
// afterwards. The error wraps ErrLinkClosed.
func (l *Link) Err() error {
	select {
	case <-l.closeCh:
		return l.closeErr()
	default:
		return nil
	}
}

// Send frames payload and blocks until it has been written to the
// transport, ctx is done, the send timeout expires, or the link shuts down.
//
// payload is copied; an empty payload is a no-op. A payload larger than the
// MTU returns an error wrapping hdlc.ErrDataTooLarge.
func (l *Link) Send(ctx context.Context, payload []byte) error {
	if err := l.checkOpen(); err != nil {
		return err
	}
	if len(payload) == 0 {
		return nil
	}
	if len(payload) > l.cfg.mtu {
		return fmt.Errorf("%w: payload of %d bytes exceeds mtu %d", hdlc.ErrDataTooLarge, len(payload), l.cfg.mtu)
	}

	req := &sendRequest{
		id:      l.nextID.Add(1),
		payload: bytes.Clone(payload),
		done:    make(chan error, 1),
	}
	l.pending.Store(req.id, req)
	defer l.pending.Delete(req.id)

	// a nil channel never fires, so no timeout means waiting on ctx only
	var timeoutC <-chan time.Time
	if l.cfg.sendTimeout > 0 {
		timer := pool.GetTimer(l.cfg.sendTimeout)
		defer pool.PutTimer(timer)
		timeoutC = timer.C
	}

	l.metrics.incSendQueueGauge()
	select {
	case l.sendCh <- req:
	case <-ctx.Done():
		l.metrics.decSendQueueGauge()
		return ctx.Err()
	case <-l.closeCh:
		l.metrics.decSendQueueGauge()
		return l.closeErr()
	case <-timeoutC:
		l.metrics.decSendQueueGauge()
		return ErrSendTimeout
	}

	select {
	case err := <-req.done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-l.closeCh:
		return l.closeErr()
	case <-timeoutC:
		return ErrSendTimeout
	}
}

// Recv returns the next received payload. It blocks until a frame arrives,
// ctx is done, or the link shuts down with no frames left.
//
// The returned slice is owned by the caller.
func (l *Link) Recv(ctx context.Context) ([]byte, error) {
	if linkState(l.state.Load()) == stateNew {
		return nil, ErrNotOpen
	}

	for {
		if payload, ok := l.dequeue(); ok {
			return payload, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-l.closeCh:
			if payload, ok := l.dequeue(); ok {
				return payload, nil
			}

			return nil, l.closeErr()
		case <-l.recvNotify:
		}
	}
}

// Config returns the link configuration.
func (l *Link) Config() *Config { return l.cfg }

// Metrics returns the link counters.
func (l *Link) Metrics() *Metrics { return &l.metrics }

// CodecMetrics returns the counters of the underlying codec.
func (l *Link) CodecMetrics() *hdlc.Metrics { return l.codec.Metrics() }

func (l *Link) checkOpen() error {
	switch linkState(l.state.Load()) {
	case stateNew:
		return ErrNotOpen
	case stateClosed:
		return ErrLinkClosed
	}

	select {
	case <-l.closeCh:
		return l.closeErr()
	default:
		return nil
	}
}

// shutdown marks the link as stopped and signals every task. It is safe to
// call from any goroutine, any number of times; the first cause wins.
func (l *Link) shutdown(cause error) {
	l.closeOnce.Do(func() {
		l.closeCause = cause
		close(l.closeCh)
		l.taskMgr.Stop()
	})
}

func (l *Link) closeErr() error {
	if l.closeCause == nil {
		return ErrLinkClosed
	}

	return fmt.Errorf("%w: %w", ErrLinkClosed, l.closeCause)
}

func (l *Link) isShutdown() bool {
	select {
	case <-l.closeCh:
		return true
	default:
		return false
	}
}

// readChunk runs on the reader task.
func (l *Link) readChunk(buf []byte) bool {
	n, err := l.rw.Read(buf)
	if n > 0 {
		l.feed(buf[:n])
	}

	if err == nil {
		return true
	}
	if l.isShutdown() {
		return false
	}

	if errors.Is(err, io.EOF) {
		l.logger.Info("link: transport closed by peer")
	} else {
		l.metrics.incTransportErrCount()
		l.logger.Error("link: read failed", "error", err)
	}
	l.shutdown(err)

	return false
}

func (l *Link) feed(data []byte) {
	for len(data) > 0 {
		n, err := l.codec.RunRx(data)
		data = data[n:]

		if err != nil {
			l.metrics.incFrameErrCount()
		}
		if n == 0 {
			return
		}
	}
}

// onFrameRead runs on the reader task inside RunRx. payload aliases the
// receive ring and must be copied.
func (l *Link) onFrameRead(payload []byte) {
	// the reader is the only producer, so the length can only shrink
	// between this check and Enqueue
	if l.recvQueue.Length() >= l.cfg.recvQueueSize {
		l.metrics.incRecvDropCount()
		l.logger.Warn("link: receive queue full, frame dropped", "length", len(payload))

		return
	}

	l.recvQueue.Enqueue(bytes.Clone(payload))
	l.metrics.incRecvCount()
	l.notifyRecv()
}

func (l *Link) dequeue() ([]byte, bool) {
	payload, ok := l.recvQueue.Dequeue()
	if ok && !l.recvQueue.IsEmpty() {
		// pass the wake-up on to another waiting Recv
		l.notifyRecv()
	}

	return payload, ok
}

func (l *Link) notifyRecv() {
	select {
	case l.recvNotify <- struct{}{}:
	default:
	}
}

// writeFrame runs on the writer task.
func (l *Link) writeFrame(req *sendRequest) bool {
	l.metrics.decSendQueueGauge()

	if _, ok := l.pending.Load(req.id); !ok {
		l.logger.Debug("link: skip abandoned send", "id", req.id)
		return true
	}

	if err := l.codec.Put(req.payload); err != nil {
		req.complete(err)
		return true
	}

	for {
		n := l.codec.RunTx(l.txBuf)
		if n == 0 {
			break
		}

		if _, err := l.rw.Write(l.txBuf[:n]); err != nil {
			l.codec.Reset(hdlc.ResetTxOnly)

			if l.isShutdown() {
				req.complete(ErrLinkClosed)
				return false
			}

			l.metrics.incTransportErrCount()
			l.logger.Error("link: write failed", "error", err, "id", req.id)
			req.complete(fmt.Errorf("link: write: %w", err))
			l.shutdown(err)

			return false
		}
	}

	l.metrics.incSendCount()
	req.complete(nil)

	return true
}

func (l *Link) logStats() bool {
	cm := l.codec.Metrics()
	l.logger.Debug("link: stats",
		"sent", l.metrics.SendCount.Load(),
		"received", l.metrics.RecvCount.Load(),
		"recvDropped", l.metrics.RecvDropCount.Load(),
		"frameErrors", l.metrics.FrameErrCount.Load(),
		"crcErrors", cm.CRCErrCount.Load(),
		"oversize", cm.OversizeCount.Load(),
		"bytesSent", cm.BytesSent.Load(),
		"bytesRecv", cm.BytesRecv.Load(),
	)

	return true
}
