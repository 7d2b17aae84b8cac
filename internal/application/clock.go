package application

import "time"

// Clock interface supaya gampang ditest
type Clock interface {
	Now() time.Time
}

// SystemClock implementasi default, pakai time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Ticker abstracts the periodic one-second tick used while recording, so
// tests can drive elapsed time manually.
type Ticker interface {
	// C yields a value once per interval.
	C() <-chan time.Time
	// Stop cancels the ticker. Safe to call more than once.
	Stop()
}

// TickerFactory creates a ticker with the given interval.
type TickerFactory func(d time.Duration) Ticker

type systemTicker struct{ t *time.Ticker }

func (s systemTicker) C() <-chan time.Time { return s.t.C }
func (s systemTicker) Stop()               { s.t.Stop() }

// SystemTicker is the default TickerFactory backed by time.Ticker.
func SystemTicker(d time.Duration) Ticker {
	return systemTicker{t: time.NewTicker(d)}
}
