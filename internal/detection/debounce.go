// Package detection turns per-buffer classifications into discrete key events.
package detection

import (
	"sync/atomic"
	"time"

	"github.com/dtmfin/dtmfin/internal/dtmf"
)

// Event is one admitted key press or held-key repeat. Time is stream
// relative and comes from the capture clock.
type Event struct {
	Symbol dtmf.Symbol
	Time   time.Duration
}

// Filter is the debounce state for one stream. Observe is called only from
// the audio callback.
type Filter struct {
	threshold   time.Duration
	lastSymbol  dtmf.Symbol
	lastTime    time.Duration
	initialized bool
	suppressed  atomic.Uint64
}

// NewFilter returns a filter that suppresses repeats of the same key within
// threshold. A zero threshold admits every non-NoTone observation; negative
// values are treated as zero.
func NewFilter(threshold time.Duration) *Filter {
	return &Filter{threshold: max(threshold, 0)}
}

// Observe applies the gating rule to one classification:
//
//   - NoTone never emits and leaves the state alone
//   - a key different from the last emitted key emits
//   - the same key emits again once more than threshold has passed
//   - anything else is suppressed
//
// NoTone does not reset the last emitted key, so a short gap inside the
// window is treated as a continuation of the same press.
func (f *Filter) Observe(sym dtmf.Symbol, now time.Duration) (Event, bool) {
	if !f.initialized {
		f.lastTime = now
		f.initialized = true
	}
	// lastTime never moves backwards
	if now < f.lastTime {
		now = f.lastTime
	}

	if sym == dtmf.NoTone {
		return Event{}, false
	}

	if sym != f.lastSymbol || now-f.lastTime > f.threshold || f.threshold == 0 {
		f.lastSymbol = sym
		f.lastTime = now
		return Event{Symbol: sym, Time: now}, true
	}

	f.suppressed.Add(1)
	return Event{}, false
}

// Threshold returns the repeat window.
func (f *Filter) Threshold() time.Duration { return f.threshold }

// LastSymbol returns the most recently emitted key, or NoTone.
func (f *Filter) LastSymbol() dtmf.Symbol { return f.lastSymbol }

// Suppressed returns how many observations were swallowed by the window.
// It may be read from any goroutine.
func (f *Filter) Suppressed() uint64 { return f.suppressed.Load() }
