package stream

import (
	"sync"
	"time"
)

const (
	// DefaultStallCheck is how often the watchdog inspects activity.
	DefaultStallCheck = 5 * time.Second

	// DefaultStallAfter is the quiet period after which an armed watchdog
	// declares the connection stalled.
	DefaultStallAfter = 30 * time.Second
)

// Watchdog observes elapsed time since the last received byte and declares
// the connection stalled after a fixed quiet period. It only arms once
// payload bytes have started arriving: a slow server start is not a stall.
//
// The watchdog fires at most once per Start and must be stopped on every
// session exit path; a leaked timer is a defect.
type Watchdog struct {
	check   time.Duration
	after   time.Duration
	onStall func()

	mu      sync.Mutex
	last    time.Time
	started bool
	fired   bool
	stopped bool
	done    chan struct{}
}

// NewWatchdog creates a watchdog that invokes onStall from its own goroutine
// when the stall threshold is exceeded. It does not start ticking until Start.
func NewWatchdog(check, after time.Duration, onStall func()) *Watchdog {
	if check <= 0 {
		check = DefaultStallCheck
	}
	if after <= 0 {
		after = DefaultStallAfter
	}

	return &Watchdog{
		check:   check,
		after:   after,
		onStall: onStall,
	}
}

// Start begins the check loop. Called when the transport request is accepted.
func (w *Watchdog) Start() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.done != nil || w.stopped {
		return
	}

	w.last = time.Now()
	w.done = make(chan struct{})
	go w.loop(w.done)
}

// Touch records byte-level activity.
func (w *Watchdog) Touch() {
	w.mu.Lock()
	w.last = time.Now()
	w.mu.Unlock()
}

// MarkStarted arms the watchdog; called once the first payload bytes arrive.
func (w *Watchdog) MarkStarted() {
	w.mu.Lock()
	w.started = true
	w.last = time.Now()
	w.mu.Unlock()
}

// Fired reports whether the watchdog declared a stall.
func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

// Stop disarms the watchdog. Idempotent; safe to call whether or not Start
// ran. After Stop returns no onStall callback will fire.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	w.stopped = true
	if w.done != nil {
		close(w.done)
	}
}

func (w *Watchdog) loop(done chan struct{}) {
	ticker := time.NewTicker(w.check)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return

		case now := <-ticker.C:
			w.mu.Lock()
			stalled := w.started && !w.stopped && !w.fired && now.Sub(w.last) > w.after
			if stalled {
				w.fired = true
			}
			w.mu.Unlock()

			if stalled {
				w.onStall()
				return
			}
		}
	}
}
