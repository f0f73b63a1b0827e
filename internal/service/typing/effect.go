package typing

import (
	"context"
	"strings"
	"sync"
	"time"
)

// DefaultSpeed is the delay between two revealed characters.
const DefaultSpeed = 30 * time.Millisecond

// Effect reveals a growing text one rune at a time, at its own pace and independent of how
// fast the text itself arrives.
type Effect struct {
	mu      sync.Mutex
	speed   time.Duration
	full    []rune
	shown   int
	typing  bool
	changed chan struct{}
}

// New returns an idle effect. A non-positive speed falls back to DefaultSpeed.
func New(speed time.Duration) *Effect {
	if speed <= 0 {
		speed = DefaultSpeed
	}
	return &Effect{speed: speed, changed: make(chan struct{}, 1)}
}

// Set updates the target text. While typing, text that still extends what is already
// revealed keeps the reveal position; anything else restarts it. When typing is false the
// whole text is shown at once.
func (e *Effect) Set(full string, typing bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	runes := []rune(full)
	if !strings.HasPrefix(full, string(e.full[:e.shown])) {
		e.shown = 0
	}
	e.full = runes
	e.typing = typing
	if !typing || e.shown > len(runes) {
		e.shown = len(runes)
	}

	select {
	case e.changed <- struct{}{}:
	default:
	}
}

// Step reveals one more rune and reports whether anything changed.
func (e *Effect) Step() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.typing || e.shown >= len(e.full) {
		return false
	}
	e.shown++
	return true
}

// Displayed is the currently visible text.
func (e *Effect) Displayed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return string(e.full[:e.shown])
}

// Caught reports whether everything set so far is visible.
func (e *Effect) Caught() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.shown >= len(e.full)
}

// Run ticks until ctx is done, calling emit whenever the visible text changes.
func (e *Effect) Run(ctx context.Context, emit func(string)) {
	ticker := time.NewTicker(e.speed)
	defer ticker.Stop()

	last := e.Displayed()
	flush := func() {
		if shown := e.Displayed(); shown != last {
			last = shown
			emit(shown)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-e.changed:
			flush()
		case <-ticker.C:
			if e.Step() {
				flush()
			}
		}
	}
}
