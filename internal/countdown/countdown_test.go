package countdown

import (
	"sync/atomic"
	"testing"
	"time"
)

// manualTicker fires only when the test sends on ch
type manualTicker struct {
	ch      chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

func newManualTimer() (*Timer, *manualTicker) {
	mt := newManualTicker()
	return New(time.Second, WithTicker(func(time.Duration) Ticker { return mt })), mt
}

func collect(ticks chan Tick) func(Tick) {
	return func(tk Tick) { ticks <- tk }
}

func expectTick(t *testing.T, ticks chan Tick) Tick {
	t.Helper()
	select {
	case tk := <-ticks:
		return tk
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for tick")
		return Tick{}
	}
}

func expectNoTick(t *testing.T, ticks chan Tick) {
	t.Helper()
	select {
	case tk := <-ticks:
		t.Fatalf("Unexpected tick: %+v", tk)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTimer_CountsDownToFinal(t *testing.T) {
	timer, mt := newManualTimer()
	ticks := make(chan Tick, 10)

	gen := timer.Start(5, collect(ticks))

	for want := 4; want >= 0; want-- {
		mt.ch <- time.Now()
		tk := expectTick(t, ticks)
		if tk.Remaining != want {
			t.Fatalf("Expected remaining %d, got %d", want, tk.Remaining)
		}
		if tk.Generation != gen {
			t.Errorf("Expected generation %d, got %d", gen, tk.Generation)
		}
		if tk.Final != (want == 0) {
			t.Errorf("Final flag wrong at remaining %d", want)
		}
	}

	// The run has exited: nobody reads the ticker any more.
	select {
	case mt.ch <- time.Now():
		t.Fatal("Timer kept ticking after final tick")
	case <-time.After(50 * time.Millisecond):
	}
	expectNoTick(t, ticks)

	deadline := time.Now().Add(time.Second)
	for !mt.stopped.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Ticker was not stopped after final tick")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTimer_StopPreventsFurtherTicks(t *testing.T) {
	timer, mt := newManualTimer()
	ticks := make(chan Tick, 10)

	timer.Start(5, collect(ticks))
	mt.ch <- time.Now()
	expectTick(t, ticks)

	timer.Stop()

	select {
	case mt.ch <- time.Now():
	case <-time.After(50 * time.Millisecond):
	}
	expectNoTick(t, ticks)
}

func TestTimer_StartSupersedesPreviousRun(t *testing.T) {
	var tickers []*manualTicker
	timer := New(time.Second, WithTicker(func(time.Duration) Ticker {
		mt := newManualTicker()
		tickers = append(tickers, mt)
		return mt
	}))

	first := make(chan Tick, 10)
	second := make(chan Tick, 10)

	gen1 := timer.Start(3, collect(first))
	gen2 := timer.Start(2, collect(second))
	if gen2 <= gen1 {
		t.Fatalf("Generation should increase: %d then %d", gen1, gen2)
	}

	select {
	case tickers[0].ch <- time.Now():
	case <-time.After(50 * time.Millisecond):
	}
	expectNoTick(t, first)

	tickers[1].ch <- time.Now()
	if tk := expectTick(t, second); tk.Remaining != 1 || tk.Generation != gen2 {
		t.Errorf("Unexpected tick from new run: %+v", tk)
	}
}

func TestTimer_StopBumpsGeneration(t *testing.T) {
	timer, _ := newManualTimer()
	gen := timer.Start(3, func(Tick) {})
	timer.Stop()
	if timer.Generation() == gen {
		t.Error("Stop should invalidate the running generation")
	}
}

func TestTimer_NonPositiveSecondsDoesNotRun(t *testing.T) {
	timer, _ := newManualTimer()
	ticks := make(chan Tick, 1)
	timer.Start(0, collect(ticks))
	expectNoTick(t, ticks)
}

func TestTimer_RealTicker(t *testing.T) {
	timer := New(10 * time.Millisecond)
	ticks := make(chan Tick, 10)

	timer.Start(3, collect(ticks))
	for want := 2; want >= 0; want-- {
		if tk := expectTick(t, ticks); tk.Remaining != want {
			t.Fatalf("Expected remaining %d, got %d", want, tk.Remaining)
		}
	}
	expectNoTick(t, ticks)
}
