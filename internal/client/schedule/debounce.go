// Package schedule provides the debounced, single-flight task runner used
// for pushes.
package schedule

import (
	"context"
	"sync"
	"time"
)

// Task is the unit of work run by a Debouncer.
type Task func(ctx context.Context) error

// Debouncer runs a task after a quiet period. At most one run is in flight;
// a trigger that arrives during a run schedules exactly one more run right
// after it, so no request is lost and none runs concurrently.
type Debouncer struct {
	ctx     context.Context
	delay   time.Duration
	task    Task
	onError func(error)
	sem     chan struct{}

	mu      sync.Mutex
	timer   *time.Timer
	running bool
	pending bool
	stopped bool
	wg      sync.WaitGroup
}

// NewDebouncer builds a Debouncer. Runs started by the timer use ctx;
// errors from them go to onError when it is not nil.
func NewDebouncer(ctx context.Context, delay time.Duration, task Task, onError func(error)) *Debouncer {
	return &Debouncer{
		ctx:     ctx,
		delay:   delay,
		task:    task,
		onError: onError,
		sem:     make(chan struct{}, 1),
	}
}

// Trigger (re)arms the quiet-period timer.
func (d *Debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fire)
}

// Pending reports whether a timer is armed or a rerun is queued.
func (d *Debouncer) Pending() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.timer != nil || d.pending
}

func (d *Debouncer) fire() {
	d.mu.Lock()
	d.timer = nil
	if d.stopped {
		d.mu.Unlock()
		return
	}
	if d.running {
		d.pending = true
		d.mu.Unlock()
		return
	}
	d.running = true
	d.wg.Add(1)
	d.mu.Unlock()
	defer d.wg.Done()

	for {
		if err := d.runExclusive(d.ctx); err != nil && d.onError != nil {
			d.onError(err)
		}

		d.mu.Lock()
		if d.pending && !d.stopped {
			d.pending = false
			d.mu.Unlock()
			continue
		}
		d.pending = false
		d.running = false
		d.mu.Unlock()
		return
	}
}

func (d *Debouncer) runExclusive(ctx context.Context) error {
	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-d.sem }()
	return d.task(ctx)
}

// Flush cancels the armed timer and runs the task now, after any run in
// flight has finished.
func (d *Debouncer) Flush(ctx context.Context) error {
	d.mu.Lock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	return d.runExclusive(ctx)
}

// Stop disarms the timer, drops queued reruns and waits for the run in
// flight.
func (d *Debouncer) Stop() {
	d.mu.Lock()
	d.stopped = true
	d.pending = false
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
	d.mu.Unlock()
	d.wg.Wait()
}
