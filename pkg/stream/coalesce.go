package stream

import (
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

const (
	// DefaultFlushChars is the pending-delta length that forces an
	// immediate flush.
	DefaultFlushChars = 5

	// DefaultFlushEvery is the deferred-flush interval when the pending
	// length stays under the threshold.
	DefaultFlushEvery = 50 * time.Millisecond
)

// Coalescer batches a high-frequency stream of content deltas into bounded
// rate updates so the consumer does not re-render on every token. It flushes
// immediately once the unflushed length reaches the character threshold,
// otherwise schedules a flush after the interval if none is pending.
//
// Coalescing affects only intermediate cadence; the concatenation of all
// flushed batches always equals the concatenation of all added deltas.
type Coalescer struct {
	threshold int
	interval  time.Duration
	onFlush   func(batch string)

	// deliverMu serializes the drain-and-deliver sequence across threshold
	// flushes, timer flushes, and forced terminal flushes. Draining and
	// calling onFlush must be one atomic step: otherwise a later drain can
	// reach onFlush first and reorder batches, and a terminal Flush can
	// return while a timer batch is still undelivered.
	deliverMu sync.Mutex

	mu      sync.Mutex
	pending strings.Builder
	total   strings.Builder
	timer   *time.Timer
}

// NewCoalescer creates a Coalescer that delivers batched delta text through
// onFlush. Deliveries are serialized; onFlush must not call back into the
// Coalescer. Aside from timer-driven flushes, onFlush runs on the caller's
// goroutine.
func NewCoalescer(threshold int, interval time.Duration, onFlush func(string)) *Coalescer {
	if threshold <= 0 {
		threshold = DefaultFlushChars
	}
	if interval <= 0 {
		interval = DefaultFlushEvery
	}

	return &Coalescer{
		threshold: threshold,
		interval:  interval,
		onFlush:   onFlush,
	}
}

// Add appends a delta fragment. Flushes synchronously when the pending length
// reaches the threshold, otherwise arms the deferred flush timer.
func (c *Coalescer) Add(text string) {
	if text == "" {
		return
	}

	c.mu.Lock()
	c.pending.WriteString(text)
	c.total.WriteString(text)

	if utf8.RuneCountInString(c.pending.String()) >= c.threshold {
		c.mu.Unlock()
		c.deliver()
		return
	}

	if c.timer == nil {
		c.timer = time.AfterFunc(c.interval, c.deliver)
	}
	c.mu.Unlock()
}

// Flush forces out any pending fragment. Called on terminal events so no
// trailing content is ever lost; it does not return while an earlier
// delivery is still in flight.
func (c *Coalescer) Flush() {
	c.deliver()
}

// Stop clears the deferred flush timer without flushing. Part of the
// session's single cleanup routine; a new session must never observe a stale
// timer from a previous one.
func (c *Coalescer) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopTimerLocked()
}

// Content returns the full accumulated delta text for the exchange,
// regardless of what has been flushed so far.
func (c *Coalescer) Content() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total.String()
}

// deliver drains the pending buffer and hands the batch to onFlush as one
// atomic step under deliverMu. Every flush path funnels through here.
func (c *Coalescer) deliver() {
	c.deliverMu.Lock()
	defer c.deliverMu.Unlock()

	c.mu.Lock()
	batch := c.takeLocked()
	c.mu.Unlock()

	if batch != "" {
		c.onFlush(batch)
	}
}

// takeLocked drains the pending buffer and clears the timer. Caller holds mu.
func (c *Coalescer) takeLocked() string {
	batch := c.pending.String()
	c.pending.Reset()
	c.stopTimerLocked()
	return batch
}

func (c *Coalescer) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}
