// Package autosave batches rapid successive edits into one persisted
// write after a quiet period. It belongs to the calling layer: the store
// itself tolerates high-frequency calls, this just avoids them.
package autosave

import (
	"sync"
	"time"
)

// Debouncer coalesces Trigger calls into a single save after the quiet
// period elapses. Flush forces a pending write immediately, which makes
// shutdown deterministic.
type Debouncer struct {
	mu      sync.Mutex
	quiet   time.Duration
	save    func() error
	timer   *time.Timer
	pending bool
	closed  bool

	// LastErr holds the most recent asynchronous save error.
	lastErr error
}

// New creates a debouncer calling save after quiet with no new triggers.
func New(quiet time.Duration, save func() error) *Debouncer {
	if quiet <= 0 {
		quiet = 500 * time.Millisecond
	}
	return &Debouncer{quiet: quiet, save: save}
}

// Trigger schedules (or reschedules) a save after the quiet period.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.pending = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.quiet, d.fire)
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	if d.closed || !d.pending {
		d.mu.Unlock()
		return
	}
	d.pending = false
	d.mu.Unlock()

	err := d.save()

	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
}

// Flush runs any pending save synchronously and returns its error.
// A no-op when nothing is pending.
func (d *Debouncer) Flush() error {
	d.mu.Lock()
	if d.closed || !d.pending {
		err := d.lastErr
		d.mu.Unlock()
		return err
	}
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()

	err := d.save()

	d.mu.Lock()
	d.lastErr = err
	d.mu.Unlock()
	return err
}

// Pending reports whether a save is scheduled.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pending
}

// Close flushes any pending save and stops the debouncer for good.
func (d *Debouncer) Close() error {
	err := d.Flush()
	d.mu.Lock()
	d.closed = true
	if d.timer != nil {
		d.timer.Stop()
	}
	d.mu.Unlock()
	return err
}
