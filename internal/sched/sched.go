// Package sched implements a fixed-table cooperative scheduler.
//
// Tick is called once per tick from the timer context and only raises
// readiness flags. Drain runs ready callbacks to completion on the idle loop.
// The two contexts share nothing but atomic fields of each task: ticksLeft is
// written only by Tick, ready is set only by Tick and cleared only by Drain.
package sched

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
)

var (
	ErrNilFunc   = errors.New("sched: task function is nil")
	ErrTaskIndex = errors.New("sched: task index out of range")
)

// Spec registers one periodic task.
type Spec struct {
	Name string
	// Ticks before the first run.
	Initial uint32
	// Ticks between runs. Zero disables the task.
	Period uint32
	Fn     func()
}

type task struct {
	name      string
	ready     atomic.Bool
	ticksLeft atomic.Uint32
	period    atomic.Uint32
	fn        func()

	runs   atomic.Uint64
	missed atomic.Uint64
}

// TaskStats is a point-in-time view of one task.
type TaskStats struct {
	Name      string
	Period    uint32
	TicksLeft uint32
	Ready     bool
	Runs      uint64
	// Periods whose readiness was overwritten before Drain ran the task.
	Missed uint64
}

// Scheduler runs a static, ordered table of periodic tasks.
// Table order is execution priority among tasks ready at the same time.
type Scheduler struct {
	tasks []*task
	ticks atomic.Uint64
	wake  chan struct{}
}

// New creates a scheduler from an ordered task table.
func New(specs ...Spec) (*Scheduler, error) {
	s := &Scheduler{
		tasks: make([]*task, 0, len(specs)),
		wake:  make(chan struct{}, 1),
	}
	for i, sp := range specs {
		if sp.Fn == nil {
			return nil, fmt.Errorf("task %d (%s): %w", i, sp.Name, ErrNilFunc)
		}
		t := &task{name: sp.Name, fn: sp.Fn}
		t.ticksLeft.Store(sp.Initial)
		t.period.Store(sp.Period)
		s.tasks = append(s.tasks, t)
	}
	return s, nil
}

// Len returns the number of tasks in the table.
func (s *Scheduler) Len() int {
	return len(s.tasks)
}

// Tick advances every enabled task by one tick. It never blocks and never
// calls a task function.
func (s *Scheduler) Tick() {
	s.ticks.Add(1)

	woke := false
	for _, t := range s.tasks {
		period := t.period.Load()
		if period == 0 {
			continue
		}

		left := t.ticksLeft.Load()
		if left > 0 {
			left--
		}
		if left == 0 {
			// At most one pending run: a set flag is overwritten, not queued.
			if t.ready.Swap(true) {
				t.missed.Add(1)
			}
			left = period
			woke = true
		}
		t.ticksLeft.Store(left)
	}

	if woke {
		select {
		case s.wake <- struct{}{}:
		default:
		}
	}
}

// Drain runs every ready task once, in table order, and returns how many ran.
// A task function that never returns starves all later tasks.
func (s *Scheduler) Drain() int {
	n := 0
	for _, t := range s.tasks {
		if !t.ready.Swap(false) {
			continue
		}
		t.fn()
		t.runs.Add(1)
		n++
	}
	return n
}

// Wake is signalled by Tick whenever a task becomes ready.
func (s *Scheduler) Wake() <-chan struct{} {
	return s.wake
}

// Run is the idle loop: it drains ready tasks each time Tick signals, until
// ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.wake:
			s.Drain()
		}
	}
}

// SetPeriod changes the period of task index. Zero disables it. The countdown
// in progress is kept; Tick reloads the new period on the next expiry.
func (s *Scheduler) SetPeriod(index int, period uint32) error {
	if index < 0 || index >= len(s.tasks) {
		return ErrTaskIndex
	}
	s.tasks[index].period.Store(period)
	return nil
}

// Index returns the table position of the named task.
func (s *Scheduler) Index(name string) (int, bool) {
	for i, t := range s.tasks {
		if t.name == name {
			return i, true
		}
	}
	return -1, false
}

// Pending returns the number of tasks currently marked ready.
func (s *Scheduler) Pending() int {
	n := 0
	for _, t := range s.tasks {
		if t.ready.Load() {
			n++
		}
	}
	return n
}

// Ticks returns the number of Tick calls so far.
func (s *Scheduler) Ticks() uint64 {
	return s.ticks.Load()
}

// Stats returns a snapshot of every task in table order.
func (s *Scheduler) Stats() []TaskStats {
	out := make([]TaskStats, len(s.tasks))
	for i, t := range s.tasks {
		out[i] = TaskStats{
			Name:      t.name,
			Period:    t.period.Load(),
			TicksLeft: t.ticksLeft.Load(),
			Ready:     t.ready.Load(),
			Runs:      t.runs.Load(),
			Missed:    t.missed.Load(),
		}
	}
	return out
}
