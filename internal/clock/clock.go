package clock

import (
	"sync"
	"time"
)

// SecondsPerDay is the width of one accounting day bucket.
const SecondsPerDay = 86400

// Clock supplies the current time to the ledgers. Every entry point reads
// the clock exactly once, so a single operation can never straddle a day
// boundary.
type Clock interface {
	Now() time.Time
}

// DayIndex returns the bucket key for t: floor(unix seconds / 86400).
func DayIndex(t time.Time) int64 {
	return t.Unix() / SecondsPerDay
}

// System reads the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now() }

// Fake is a settable clock for tests.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake creates a fake clock pinned to start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = f.now.Add(d)
}

// Set pins the fake clock to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = t
}
