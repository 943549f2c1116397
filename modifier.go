// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

package alphasurface

import (
	"context"
	"sync"

	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"
)

// Result is the outcome of a Modifier evaluation.
type Result struct {
	Surface *Surface
	Err     error
}

func (r Result) Status() Status {
	return StatusOf(r.Err)
}

// Modifier holds the parameters and input of a surface construction and
// caches its result. Changing a parameter or the input invalidates the cache.
// It is safe for concurrent use.
type Modifier struct {
	mu sync.Mutex

	probeRadius           float64
	smoothingLevel        int
	onlySelectedParticles bool
	logger                *zap.Logger
	progress              progress.Func

	cell      simcell.Cell
	positions []r3.Vector
	selection []bool

	// generation is bumped on every invalidation. A result computed for an
	// older generation is discarded.
	generation uint64
	cached     *Result
}

// NewModifier returns a modifier with default parameters. logger may be nil.
func NewModifier(logger *zap.Logger) *Modifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Modifier{
		probeRadius:    defaultProbeRadius,
		smoothingLevel: defaultSmoothingLevel,
		logger:         logger,
	}
}

func (m *Modifier) ProbeRadius() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.probeRadius
}

func (m *Modifier) SetProbeRadius(radius float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.probeRadius != radius {
		m.probeRadius = radius
		m.invalidateLocked()
	}
}

func (m *Modifier) SmoothingLevel() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.smoothingLevel
}

func (m *Modifier) SetSmoothingLevel(level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.smoothingLevel != level {
		m.smoothingLevel = level
		m.invalidateLocked()
	}
}

func (m *Modifier) OnlySelectedParticles() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.onlySelectedParticles
}

func (m *Modifier) SetOnlySelectedParticles(only bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onlySelectedParticles != only {
		m.onlySelectedParticles = only
		m.invalidateLocked()
	}
}

// SetProgress registers a callback for the progress of later evaluations.
func (m *Modifier) SetProgress(fn progress.Func) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progress = fn
}

// SetInput replaces the particle system. The slices are retained and must
// not be modified until the next SetInput call.
func (m *Modifier) SetInput(cell simcell.Cell, positions []r3.Vector, selection []bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cell = cell
	m.positions = positions
	m.selection = selection
	m.invalidateLocked()
}

// Invalidate discards the cached result.
func (m *Modifier) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

func (m *Modifier) invalidateLocked() {
	m.generation++
	m.cached = nil
}

// Cached returns the cached result, if any.
func (m *Modifier) Cached() (Result, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cached == nil {
		return Result{}, false
	}
	return *m.cached, true
}

// Evaluate returns the cached result or computes a new one. Canceled
// evaluations are not cached.
func (m *Modifier) Evaluate(ctx context.Context) Result {
	m.mu.Lock()
	if m.cached != nil {
		r := *m.cached
		m.mu.Unlock()
		return r
	}
	generation := m.generation
	cell, positions := m.cell, m.positions
	opts := []Option{
		WithProbeRadius(m.probeRadius),
		WithSmoothingLevel(m.smoothingLevel),
		WithLogger(m.logger),
		WithProgress(m.progress),
	}
	if m.onlySelectedParticles {
		opts = append(opts, WithSelection(m.selection))
	}
	m.mu.Unlock()

	s, err := ConstructSurface(ctx, cell, positions, opts...)
	r := Result{Surface: s, Err: err}

	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status() != StatusCanceled && m.generation == generation {
		m.cached = &r
	}
	return r
}

// Go evaluates the modifier on a new goroutine. The channel receives exactly
// one result and is then closed.
func (m *Modifier) Go(ctx context.Context) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- m.Evaluate(ctx)
	}()
	return ch
}
