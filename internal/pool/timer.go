// Package pool keeps reusable timers for bounded waits such as send timeouts.
package pool

import (
	"sync"
	"time"
)

var timers = sync.Pool{
	New: func() any {
		t := time.NewTimer(time.Hour)
		t.Stop()

		return t
	},
}

// GetTimer returns a stopped pooled timer reset to fire after d.
//
// Hand the timer back with PutTimer once the wait is over.
func GetTimer(d time.Duration) *time.Timer {
	t, _ := timers.Get().(*time.Timer)
	// Since Go 1.23 Reset discards any value left in t.C.
	t.Reset(d)

	return t
}

// PutTimer stops t and returns it to the pool. t must not be used afterwards.
func PutTimer(t *time.Timer) {
	if t == nil {
		return
	}
	t.Stop()
	timers.Put(t)
}
