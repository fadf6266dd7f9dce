// Package clock is the single time source for every component. All persisted
// timestamps are unix milliseconds taken from a Clock.
package clock

import (
	"sync"
	"time"
)

type Clock interface {
	Now() time.Time
}

// NowMillis returns c.Now() as unix milliseconds.
func NowMillis(c Clock) int64 {
	return c.Now().UnixMilli()
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// System returns the wall clock.
func System() Clock { return systemClock{} }

// Fixed is a manually driven clock for tests.
type Fixed struct {
	mu  sync.Mutex
	now time.Time
}

func NewFixed(t time.Time) *Fixed {
	return &Fixed{now: t}
}

func (f *Fixed) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fixed) Set(t time.Time) {
	f.mu.Lock()
	f.now = t
	f.mu.Unlock()
}

func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}
