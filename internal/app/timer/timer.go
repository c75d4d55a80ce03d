// Package timer provides the owned, cancellable periodic tickers used for the
// call duration counter and the breakout countdown.
package timer

import (
	"sync"
	"time"

	"github.com/dkeye/callcore/internal/core"
)

// Real runs each ticker on its own goroutine backed by time.Ticker.
type Real struct{}

func (Real) Every(d time.Duration, fn func()) core.Ticker {
	t := &realTicker{t: time.NewTicker(d), done: make(chan struct{})}
	go t.loop(fn)
	return t
}

type realTicker struct {
	t    *time.Ticker
	once sync.Once
	done chan struct{}
}

func (r *realTicker) loop(fn func()) {
	for {
		select {
		case <-r.done:
			return
		case <-r.t.C:
			select {
			case <-r.done:
				return
			default:
			}
			fn()
		}
	}
}

func (r *realTicker) Stop() {
	r.once.Do(func() {
		r.t.Stop()
		close(r.done)
	})
}

// Manual is a deterministic scheduler for tests: nothing ticks until Tick is
// called.
type Manual struct {
	mu      sync.Mutex
	tickers []*manualTicker
}

func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Every(_ time.Duration, fn func()) core.Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTicker{fn: fn}
	m.tickers = append(m.tickers, t)
	return t
}

// Tick fires every live ticker once, in creation order.
func (m *Manual) Tick() {
	m.mu.Lock()
	live := make([]*manualTicker, 0, len(m.tickers))
	for _, t := range m.tickers {
		if !t.stopped() {
			live = append(live, t)
		}
	}
	m.tickers = live
	m.mu.Unlock()

	for _, t := range live {
		if !t.stopped() {
			t.fn()
		}
	}
}

// Advance calls Tick n times.
func (m *Manual) Advance(n int) {
	for range n {
		m.Tick()
	}
}

// Active reports how many tickers have not been stopped.
func (m *Manual) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

type manualTicker struct {
	mu   sync.Mutex
	fn   func()
	stop bool
}

func (t *manualTicker) Stop() {
	t.mu.Lock()
	t.stop = true
	t.mu.Unlock()
}

func (t *manualTicker) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop
}
