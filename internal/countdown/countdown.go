// Package countdown drives once-per-interval expiry of the active poll.
package countdown

import (
	"sync"
	"time"
)

// Tick is one countdown step. Generation identifies the run that produced
// it so receivers can discard ticks from a run that has since been stopped.
type Tick struct {
	Generation uint64
	Remaining  int
	Final      bool
}

// Ticker is the time source a Timer reads from
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker firing every d
type TickerFactory func(d time.Duration) Ticker

type stdTicker struct {
	t *time.Ticker
}

func (s stdTicker) C() <-chan time.Time { return s.t.C }
func (s stdTicker) Stop()               { s.t.Stop() }

// NewStdTicker wraps time.NewTicker
func NewStdTicker(d time.Duration) Ticker {
	return stdTicker{t: time.NewTicker(d)}
}

// Option configures a Timer
type Option func(*Timer)

// WithTicker replaces the time source
func WithTicker(factory TickerFactory) Option {
	return func(t *Timer) {
		t.newTicker = factory
	}
}

// Timer runs at most one countdown at a time
type Timer struct {
	interval  time.Duration
	newTicker TickerFactory

	mu         sync.Mutex
	generation uint64
	stop       chan struct{}
}

// New creates a timer ticking every interval (one second for live polls)
func New(interval time.Duration, opts ...Option) *Timer {
	t := &Timer{
		interval:  interval,
		newTicker: NewStdTicker,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start stops any previous run and counts down from seconds, calling fire
// once per tick with Remaining seconds-1 down to 0. The tick with Remaining 0
// is Final and the run ends after it. fire is called from the timer's own
// goroutine without any timer lock held. Returns the run's generation.
func (t *Timer) Start(seconds int, fire func(Tick)) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.generation++
	gen := t.generation
	if seconds <= 0 {
		return gen
	}

	stop := make(chan struct{})
	t.stop = stop
	go t.run(gen, seconds, t.newTicker(t.interval), stop, fire)

	return gen
}

// Stop cancels the current run. It does not wait for a fire call already in
// progress; such a call carries a stale generation and must be ignored.
func (t *Timer) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopLocked()
	t.generation++
}

// Generation returns the generation of the most recent Start or Stop
func (t *Timer) Generation() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.generation
}

func (t *Timer) stopLocked() {
	if t.stop != nil {
		close(t.stop)
		t.stop = nil
	}
}

func (t *Timer) run(gen uint64, remaining int, ticker Ticker, stop <-chan struct{}, fire func(Tick)) {
	defer ticker.Stop()

	for remaining > 0 {
		select {
		case <-stop:
			return
		case <-ticker.C():
		}

		// select picks randomly when both are ready
		select {
		case <-stop:
			return
		default:
		}

		remaining--
		fire(Tick{Generation: gen, Remaining: remaining, Final: remaining == 0})
	}
}
