package watch

import "time"

// Clock schedules the poll task. Tests inject a fake to fire ticks by hand.
type Clock interface {
	NewTicker(d time.Duration) Ticker
	Now() time.Time
}

// Ticker delivers ticks until stopped.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// SystemClock is the wall clock.
type SystemClock struct{}

func (SystemClock) NewTicker(d time.Duration) Ticker {
	return &systemTicker{t: time.NewTicker(d)}
}

func (SystemClock) Now() time.Time { return time.Now() }

type systemTicker struct {
	t *time.Ticker
}

func (s *systemTicker) C() <-chan time.Time { return s.t.C }
func (s *systemTicker) Stop()               { s.t.Stop() }
