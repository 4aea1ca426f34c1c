package listing

import (
	"sync"
	"time"
)

// debouncer runs the last scheduled function once the window has passed
// without a newer one being scheduled.
type debouncer struct {
	window time.Duration

	mu    sync.Mutex
	timer *time.Timer
	fn    func()
	// seq invalidates timers that fired while a newer schedule was being made.
	seq uint64
}

func newDebouncer(window time.Duration) *debouncer {
	return &debouncer{window: window}
}

func (d *debouncer) schedule(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.timer != nil {
		d.timer.Stop()
	}

	d.seq++
	seq := d.seq
	d.fn = fn
	d.timer = time.AfterFunc(d.window, func() { d.fire(seq) })
}

func (d *debouncer) fire(seq uint64) {
	d.mu.Lock()
	if seq != d.seq || d.fn == nil {
		d.mu.Unlock()
		return
	}
	fn := d.fn
	d.fn = nil
	d.timer = nil
	d.mu.Unlock()

	fn()
}

// take cancels the pending run and reports whether there was one.
func (d *debouncer) take() bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	pending := d.fn != nil
	d.cancelLocked()

	return pending
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.cancelLocked()
}

func (d *debouncer) cancelLocked() {
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = nil
	d.fn = nil
	d.seq++
}
