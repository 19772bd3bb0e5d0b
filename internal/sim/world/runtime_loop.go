package world

import (
	"context"
	"time"
)

type job struct {
	every time.Duration
	next  time.Time
	fn    func(now time.Time)
}

// Post queues fn to run on the world goroutine. It blocks while the queue is full
// and drops fn once the world has stopped.
func (w *World) Post(fn func()) {
	select {
	case w.tasks <- fn:
	case <-w.stop:
	}
}

// Defer queues fn behind the current task. It must only be called on the world
// goroutine; the backlog is unbounded so a task can never block on its own queue.
func (w *World) Defer(fn func()) {
	w.backlog = append(w.backlog, fn)
}

func (w *World) runBacklog() {
	for len(w.backlog) > 0 {
		fn := w.backlog[0]
		w.backlog[0] = nil
		w.backlog = w.backlog[1:]
		fn()
	}
}

// Every schedules fn on the world goroutine at a fixed interval, starting at the
// first tick.
func (w *World) Every(interval time.Duration, fn func(now time.Time)) {
	if interval <= 0 {
		return
	}
	w.jobs = append(w.jobs, &job{every: interval, fn: fn})
}

func (w *World) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case fn := <-w.tasks:
			fn()
		case <-ticker.C:
			w.runDue(w.now())
		}
		w.runBacklog()
	}
}

func (w *World) Stop() { w.stopOnce.Do(func() { close(w.stop) }) }

// StepOnce drains queued tasks, runs every job due at now, then drains the tasks
// those jobs produced. Tests use it in place of Run.
func (w *World) StepOnce(now time.Time) {
	w.drain()
	w.runDue(now)
	w.drain()
}

// Drain runs queued tasks until the queue is empty.
func (w *World) Drain() { w.drain() }

func (w *World) drain() {
	for {
		w.runBacklog()
		select {
		case fn := <-w.tasks:
			fn()
		default:
			if len(w.backlog) == 0 {
				return
			}
		}
	}
}

func (w *World) runDue(now time.Time) {
	for _, j := range w.jobs {
		if !j.next.IsZero() && now.Before(j.next) {
			continue
		}
		j.fn(now)
		j.next = now.Add(j.every)
	}
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
