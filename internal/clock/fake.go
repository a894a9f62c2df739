package clock

import (
	"sync"
	"time"
)

// Fake is a manually-advanced Clock for property and scenario tests.
type Fake struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*fakeTicker
}

func NewFake(start time.Time) *Fake {
	return &Fake{now: start}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *Fake) Since(t time.Time) time.Duration {
	return f.Now().Sub(t)
}

// After returns a channel that fires the next time Advance crosses d from now.
func (f *Fake) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	deadline := f.Now().Add(d)
	f.mu.Lock()
	f.tickers = append(f.tickers, &fakeTicker{oneShot: true, next: deadline, interval: 0, ch: ch})
	f.mu.Unlock()
	return ch
}

func (f *Fake) NewTicker(d time.Duration) Ticker {
	ch := make(chan time.Time, 1)
	t := &fakeTicker{next: f.Now().Add(d), interval: d, ch: ch}
	f.mu.Lock()
	f.tickers = append(f.tickers, t)
	f.mu.Unlock()
	return t
}

// Advance moves the fake clock forward, firing any tickers/timers whose
// deadline falls within the new range (repeatedly, for periodic tickers
// whose interval elapses more than once within the advance).
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	target := f.now.Add(d)
	for f.now.Before(target) {
		next := target
		for _, t := range f.tickers {
			if t.stopped {
				continue
			}
			if t.next.Before(next) && !t.next.After(target) {
				next = t.next
			}
		}
		f.now = next
		for _, t := range f.tickers {
			if t.stopped {
				continue
			}
			if !t.next.After(f.now) {
				select {
				case t.ch <- f.now:
				default:
				}
				if t.oneShot || t.interval <= 0 {
					t.stopped = true
				} else {
					t.next = t.next.Add(t.interval)
				}
			}
		}
		if f.now.Equal(target) {
			break
		}
	}
}

type fakeTicker struct {
	next     time.Time
	interval time.Duration
	oneShot  bool
	stopped  bool
	ch       chan time.Time
}

func (t *fakeTicker) C() <-chan time.Time { return t.ch }
func (t *fakeTicker) Stop()               { t.stopped = true }
