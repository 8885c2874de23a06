// Package task manages the goroutines behind a link.
package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arloliu/go-hdlc/logger"
)

var (
	// ErrStopped is returned when starting a task on a stopped Manager.
	ErrStopped = errors.New("task: manager stopped")
	// ErrDuplicate is returned when an interval task of the same name exists.
	ErrDuplicate = errors.New("task: duplicate interval task")
)

const startTimeout = 5 * time.Second

// Func is run repeatedly until it returns false or the Manager stops.
type Func func() bool

// ReadFunc is like Func and receives a buffer owned by its goroutine.
type ReadFunc func(buf []byte) bool

// CancelFunc is called once when a task's goroutine exits.
type CancelFunc func()

// Manager starts goroutines under a shared cancellable context and waits
// for them to exit.
//
//	mgr := task.NewManager(ctx, logger)
//	_ = mgr.StartReader("reader", 256, readChunk, nil)
//	...
//	mgr.Stop()
//	mgr.Wait()
//
// A task blocked in I/O does not see Stop; the owner unblocks it, usually by
// closing the underlying transport.
type Manager struct {
	pctx    context.Context
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  logger.Logger
	count   atomic.Int32
	tickers sync.Map     // map[string]*time.Ticker
	mu      sync.RWMutex // protect ctx and cancel
	taskMu  sync.RWMutex // protect task creation during Wait()
}

// NewManager creates a Manager whose tasks stop when ctx is done.
func NewManager(ctx context.Context, l logger.Logger) *Manager {
	if l == nil {
		l = logger.GetLogger()
	}
	mgr := &Manager{pctx: ctx, logger: l}
	mgr.ctx, mgr.cancel = context.WithCancel(ctx)

	return mgr
}

// Context returns the context the running tasks observe.
func (mgr *Manager) Context() context.Context {
	mgr.mu.RLock()
	defer mgr.mu.RUnlock()

	return mgr.ctx
}

// Start runs fn in a loop on a new goroutine.
func (mgr *Manager) Start(name string, fn Func) error {
	mgr.logger.Debug("start task", "name", name)

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.run(func() {
		mgr.loop(name, fn)
	})

	return starter.waitForStart()
}

// StartReader runs fn in a loop on a new goroutine with a bufSize byte
// buffer reused across calls. cancel, if not nil, runs when the goroutine
// exits.
func (mgr *Manager) StartReader(name string, bufSize int, fn ReadFunc, cancel CancelFunc) error {
	mgr.logger.Debug("start reader task", "name", name, "bufSize", bufSize)

	if bufSize <= 0 {
		return fmt.Errorf("task: invalid buffer size %d for %s", bufSize, name)
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.run(func() {
		if cancel != nil {
			defer cancel()
		}

		buf := make([]byte, bufSize)
		mgr.loop(name, func() bool {
			return fn(buf)
		})
	})

	return starter.waitForStart()
}

// StartConsumer runs fn for every value received from ch until fn returns
// false, ch is closed, or the Manager stops.
func StartConsumer[T any](mgr *Manager, name string, ch <-chan T, fn func(T) bool, cancel CancelFunc) error {
	mgr.logger.Debug("start consumer task", "name", name)

	if ch == nil {
		return fmt.Errorf("task: input channel of %s is nil", name)
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		return err
	}

	starter.run(func() {
		if cancel != nil {
			defer cancel()
		}

		ctx := mgr.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case v, ok := <-ch:
				if !ok {
					mgr.logger.Debug("input channel closed", "name", name)
					return
				}
				if !mgr.callWithRecover(name, func() bool { return fn(v) }) {
					return
				}
			}
		}
	})

	return starter.waitForStart()
}

// StartInterval runs fn every interval until it returns false or the
// Manager stops.
func (mgr *Manager) StartInterval(name string, interval time.Duration, fn Func) error {
	mgr.logger.Debug("start interval task", "name", name, "interval", interval)

	if interval <= 0 {
		return fmt.Errorf("task: invalid interval %v for %s", interval, name)
	}

	ticker := time.NewTicker(interval)
	if _, loaded := mgr.tickers.LoadOrStore(name, ticker); loaded {
		ticker.Stop()
		return fmt.Errorf("%w: %s", ErrDuplicate, name)
	}

	cleanup := func() {
		ticker.Stop()
		mgr.tickers.Delete(name)
	}

	starter, err := mgr.newStarter(name)
	if err != nil {
		cleanup()
		return err
	}

	starter.run(func() {
		defer cleanup()

		ctx := mgr.Context()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if !mgr.callWithRecover(name, fn) {
					return
				}
			}
		}
	})

	if err := starter.waitForStart(); err != nil {
		cleanup()
		return err
	}

	return nil
}

// Stop signals all tasks to exit. It does not wait; see Wait.
func (mgr *Manager) Stop() {
	mgr.tickers.Range(func(_, value any) bool {
		if ticker, ok := value.(*time.Ticker); ok {
			ticker.Stop()
		}

		return true
	})

	mgr.mu.Lock()
	if mgr.cancel != nil {
		mgr.cancel()
	}
	mgr.mu.Unlock()
}

// Wait blocks until every task has exited, then re-arms the Manager so new
// tasks can be started.
func (mgr *Manager) Wait() {
	mgr.taskMu.Lock()
	defer mgr.taskMu.Unlock()

	mgr.wg.Wait()

	mgr.mu.Lock()
	mgr.ctx, mgr.cancel = context.WithCancel(mgr.pctx)
	mgr.mu.Unlock()
}

// TaskCount returns the number of running tasks.
func (mgr *Manager) TaskCount() int {
	return int(mgr.count.Load())
}

func (mgr *Manager) callWithRecover(name string, fn Func) (keepRunning bool) {
	defer func() {
		if r := recover(); r != nil {
			mgr.logger.Error("panic in task", "name", name, "panic", r)
			keepRunning = false
		}
	}()

	return fn()
}

func (mgr *Manager) loop(name string, fn Func) {
	for {
		ctx := mgr.Context()
		select {
		case <-ctx.Done():
			return
		default:
			if !mgr.callWithRecover(name, fn) {
				return
			}
		}
	}
}

type starter struct {
	mgr     *Manager
	name    string
	started chan struct{}
}

func (mgr *Manager) newStarter(name string) (*starter, error) {
	select {
	case <-mgr.Context().Done():
		return nil, fmt.Errorf("%w: cannot start %s", ErrStopped, name)
	default:
	}

	return &starter{mgr: mgr, name: name, started: make(chan struct{})}, nil
}

func (s *starter) run(body func()) {
	s.mgr.taskMu.RLock()
	defer s.mgr.taskMu.RUnlock()

	s.mgr.wg.Add(1)
	s.mgr.count.Add(1)

	go func() {
		defer s.mgr.wg.Done()
		defer func() {
			s.mgr.count.Add(-1)
			s.mgr.logger.Debug("task terminated", "name", s.name, "taskCount", s.mgr.TaskCount())
		}()

		close(s.started)
		body()
	}()
}

func (s *starter) waitForStart() error {
	select {
	case <-s.started:
		return nil
	case <-time.After(startTimeout):
		return fmt.Errorf("task: timeout waiting for %s to start", s.name)
	}
}
