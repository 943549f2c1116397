// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package progress provides a progress and cancellation handle for long
// running computations. A nil *Task is valid and never reports cancellation.
package progress

import (
	"context"
	"sync"
)

// intermittentInterval is the number of SetValueIntermittent calls coalesced
// into one progress update.
const intermittentInterval = 1024

// Func receives the overall completion fraction in [0, 1] and the current
// status text.
type Func func(fraction float64, text string)

type subSteps struct {
	weights []int
	total   int
	done    int
	current int
}

// Task tracks the progress of one computation bound to a context.
type Task struct {
	ctx      context.Context
	callback Func

	mu       sync.Mutex
	text     string
	maximum  int64
	value    int64
	counter  int
	substeps []subSteps
}

// New returns a task that is canceled together with ctx. callback may be nil.
func New(ctx context.Context, callback Func) *Task {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Task{ctx: ctx, callback: callback}
}

// Context returns the context the task is bound to.
func (t *Task) Context() context.Context {
	if t == nil {
		return context.Background()
	}
	return t.ctx
}

// IsCanceled reports whether the computation should stop.
func (t *Task) IsCanceled() bool {
	return t != nil && t.ctx.Err() != nil
}

func (t *Task) SetText(text string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.text = text
	t.mu.Unlock()
	t.notify()
}

func (t *Task) Text() string {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.text
}

// SetMaximum sets the value that corresponds to completion of the current step
// and resets the value to zero. Call it once per step; a second call moves the
// reported fraction backwards.
func (t *Task) SetMaximum(maximum int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.maximum = maximum
	t.value = 0
	t.counter = 0
	t.mu.Unlock()
}

// SetValue updates the progress of the current step. It returns false if the
// task has been canceled.
func (t *Task) SetValue(value int64) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	t.value = value
	t.mu.Unlock()
	t.notify()
	return !t.IsCanceled()
}

// SetValueIntermittent is SetValue for tight loops: only every 1024th call
// publishes the value. Cancellation is checked on every call.
func (t *Task) SetValueIntermittent(value int64) bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	t.counter++
	publish := t.counter >= intermittentInterval
	if publish {
		t.counter = 0
	}
	t.mu.Unlock()
	if publish {
		return t.SetValue(value)
	}
	return !t.IsCanceled()
}

// IncrementValue advances the current step by one.
func (t *Task) IncrementValue() bool {
	if t == nil {
		return true
	}
	t.mu.Lock()
	v := t.value + 1
	t.mu.Unlock()
	return t.SetValue(v)
}

// BeginSubSteps splits the current step into sub-steps with the given relative
// weights. The first sub-step starts immediately.
func (t *Task) BeginSubSteps(weights ...int) {
	if t == nil {
		return
	}
	total := 0
	for _, w := range weights {
		total += w
	}
	t.mu.Lock()
	t.substeps = append(t.substeps, subSteps{weights: weights, total: total})
	t.maximum = 0
	t.value = 0
	t.mu.Unlock()
	t.notify()
}

// NextSubStep completes the current sub-step and starts the next one.
func (t *Task) NextSubStep() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if n := len(t.substeps); n > 0 {
		s := &t.substeps[n-1]
		if s.current < len(s.weights) {
			s.done += s.weights[s.current]
			s.current++
		}
	}
	t.maximum = 0
	t.value = 0
	t.mu.Unlock()
	t.notify()
}

// EndSubSteps closes the innermost sub-step group. The step of the enclosing
// group that contained it counts as complete until the next call to
// NextSubStep.
func (t *Task) EndSubSteps() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if n := len(t.substeps); n > 0 {
		t.substeps = t.substeps[:n-1]
	}
	t.maximum = 1
	t.value = 1
	t.counter = 0
	t.mu.Unlock()
	t.notify()
}

// Fraction returns the overall completion in [0, 1] across nested sub-steps.
func (t *Task) Fraction() float64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fractionLocked()
}

func (t *Task) fractionLocked() float64 {
	f := 0.0
	if t.maximum > 0 {
		f = float64(t.value) / float64(t.maximum)
		f = min(max(f, 0), 1)
	}
	for i := len(t.substeps) - 1; i >= 0; i-- {
		s := t.substeps[i]
		if s.total <= 0 {
			continue
		}
		w := 0
		if s.current < len(s.weights) {
			w = s.weights[s.current]
		}
		f = (float64(s.done) + f*float64(w)) / float64(s.total)
	}
	return f
}

func (t *Task) notify() {
	if t.callback == nil {
		return
	}
	t.mu.Lock()
	f, text := t.fractionLocked(), t.text
	t.mu.Unlock()
	t.callback(f, text)
}
