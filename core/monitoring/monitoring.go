// Package monitoring reports failures that are swallowed on purpose, such as
// a notification or outbound message that could not be delivered, to an
// external error tracker.
package monitoring

import (
	"sync"
	"time"
)

// Monitor is implemented by error trackers.
type Monitor interface {
	CaptureException(err error, tags map[string]string)
	Recover()
	Flush(timeout time.Duration)
}

// NopMonitor drops everything.
type NopMonitor struct{}

func (NopMonitor) CaptureException(error, map[string]string) {}
func (NopMonitor) Recover()                                  {}
func (NopMonitor) Flush(time.Duration)                       {}

var (
	mu      sync.RWMutex
	current Monitor = NopMonitor{}
)

// Init sets the process-wide monitor. A nil monitor is ignored.
func Init(m Monitor) {
	if m == nil {
		return
	}
	mu.Lock()
	current = m
	mu.Unlock()
}

func get() Monitor {
	mu.RLock()
	defer mu.RUnlock()
	return current
}

// CaptureException records the error with optional tags.
func CaptureException(err error, tags map[string]string) {
	if err == nil {
		return
	}
	get().CaptureException(err, tags)
}

// Capture records err tagged with the component and operation that dropped it.
func Capture(component, op string, err error) {
	CaptureException(err, map[string]string{"component": component, "op": op})
}

// Recover captures a panic in a goroutine and re-panics.
func Recover() { get().Recover() }

// Flush waits for buffered events to be sent.
func Flush(d time.Duration) { get().Flush(d) }
