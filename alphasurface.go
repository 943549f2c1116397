// Copyright (c) 2026 Andrey Kriulin
// Licensed under the MIT License.
// See the LICENSE file in the project root for full license text.

// Package alphasurface reconstructs the surface of a particle system as the
// boundary of its alpha shape, built on a 3D Delaunay tessellation.
package alphasurface

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/2dChan/alphasurface/delaunay"
	"github.com/2dChan/alphasurface/halfedge"
	"github.com/2dChan/alphasurface/manifold"
	"github.com/2dChan/alphasurface/progress"
	"github.com/2dChan/alphasurface/simcell"
	"github.com/golang/geo/r3"
	"go.uber.org/zap"
)

const (
	defaultProbeRadius    = 4
	defaultSmoothingLevel = 8

	// ghostLayerFactor scales the probe radius to the thickness of the
	// periodic ghost layer.
	ghostLayerFactor = 3
)

var (
	ErrInvalidRadius      = errors.New("alphasurface: probe sphere radius must be positive")
	ErrCellTooSmall       = errors.New("alphasurface: simulation cell is too small, or radius parameter is too large")
	ErrCanceled           = errors.New("alphasurface: operation canceled")
	ErrMissingSelection   = errors.New("alphasurface: particle selection is required")
	ErrSelectionMismatch  = errors.New("alphasurface: selection length does not match particle count")
	ErrInvalidSmoothLevel = errors.New("alphasurface: smoothing level must be non-negative")
)

type Options struct {
	ProbeRadius    float64
	SmoothingLevel int
	Selection      []bool
	Logger         *zap.Logger
	Progress       progress.Func
}

type Option func(*Options) error

func WithProbeRadius(radius float64) Option {
	return func(o *Options) error {
		if radius <= 0 || math.IsNaN(radius) || math.IsInf(radius, 0) {
			return ErrInvalidRadius
		}
		o.ProbeRadius = radius
		return nil
	}
}

// WithSmoothingLevel sets the number of smoothing iterations applied to the
// constructed mesh.
func WithSmoothingLevel(level int) Option {
	return func(o *Options) error {
		if level < 0 {
			return ErrInvalidSmoothLevel
		}
		o.SmoothingLevel = level
		return nil
	}
}

// WithSelection restricts the construction to particles with a true entry.
func WithSelection(selection []bool) Option {
	return func(o *Options) error {
		if selection == nil {
			return ErrMissingSelection
		}
		o.Selection = selection
		return nil
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(o *Options) error {
		if logger == nil {
			return errors.New("alphasurface: logger must not be nil")
		}
		o.Logger = logger
		return nil
	}
}

// WithProgress registers a callback receiving the overall completion fraction
// and the text of the current phase.
func WithProgress(fn progress.Func) Option {
	return func(o *Options) error {
		o.Progress = fn
		return nil
	}
}

func newOptions(setters []Option) (Options, error) {
	opts := Options{
		ProbeRadius:    defaultProbeRadius,
		SmoothingLevel: defaultSmoothingLevel,
		Logger:         zap.NewNop(),
	}
	for _, set := range setters {
		if err := set(&opts); err != nil {
			return Options{}, err
		}
	}
	return opts, nil
}

// ConstructSurface builds the closed surface mesh separating the solid region
// of the particle system from empty space. A tetrahedron of the Delaunay
// tessellation is solid if its circumsphere is smaller than the probe sphere.
//
// Fewer than four particles yield an empty surface without error. A canceled
// ctx yields ErrCanceled and no surface.
func ConstructSurface(ctx context.Context, cell simcell.Cell, positions []r3.Vector,
	setters ...Option) (*Surface, error) {
	opts, err := newOptions(setters)
	if err != nil {
		return nil, err
	}
	if opts.Selection != nil && len(opts.Selection) != len(positions) {
		return nil, fmt.Errorf("%w: %d != %d", ErrSelectionMismatch, len(opts.Selection), len(positions))
	}
	logger := opts.Logger.With(zap.Float64("radius", opts.ProbeRadius))

	radius := opts.ProbeRadius
	alpha := radius * radius
	ghostLayerSize := radius * ghostLayerFactor
	if delaunay.StencilCount(cell, ghostLayerSize) > 1 {
		return nil, ErrCellTooSmall
	}

	s := &Surface{
		Mesh:        halfedge.NewBasic(),
		Cell:        cell,
		TotalVolume: cell.Volume(),
	}
	numParticles := countSelected(positions, opts.Selection)
	if numParticles <= 3 {
		logger.Debug("not enough particles for a tessellation", zap.Int("particles", numParticles))
		return s, nil
	}

	task := progress.New(ctx, opts.Progress)
	task.SetText("Constructing surface mesh")
	task.BeginSubSteps(20, 1, 6, 1)
	defer task.EndSubSteps()

	start := time.Now()
	tess, err := delaunay.New()
	if err != nil {
		return nil, err
	}
	ok, err := tess.Generate(cell, positions, ghostLayerSize, opts.Selection, task)
	if err != nil {
		logger.Warn("tessellation failed", zap.Error(err))
		return nil, fmt.Errorf("alphasurface: %w", err)
	}
	if !ok {
		logger.Info("surface construction canceled")
		return nil, ErrCanceled
	}
	logger.Debug("tessellation generated",
		zap.Int("particles", numParticles),
		zap.Int("vertices", tess.NumberOfVertices()),
		zap.Int("cells", tess.NumberOfTetrahedra()),
		zap.Duration("elapsed", time.Since(start)))
	task.NextSubStep()

	start = time.Now()
	solidVolume := 0.0
	region := func(c int) int {
		if !tess.IsGhostCell(c) {
			solidVolume += math.Abs(tess.CellVolume(c))
		}
		return 1
	}
	helper := manifold.New(tess, s.Mesh, alpha, positions, manifold.FlipOrientation())
	ok, err = helper.Construct(region, task)
	if err != nil {
		logger.Warn("manifold construction failed", zap.Error(err))
		if errors.Is(err, manifold.ErrCellTooSmall) {
			return nil, fmt.Errorf("%w: %w", ErrCellTooSmall, err)
		}
		return nil, fmt.Errorf("alphasurface: %w", err)
	}
	if !ok {
		logger.Info("surface construction canceled")
		return nil, ErrCanceled
	}
	s.SolidVolume = solidVolume
	s.IsCompletelySolid = helper.SpaceFillingRegion() == 1
	logger.Debug("surface mesh constructed",
		zap.Int("faces", s.Mesh.FaceCount()),
		zap.Int("solidCells", helper.NumSolidCells()),
		zap.Duration("elapsed", time.Since(start)))
	task.NextSubStep()

	if n := s.Mesh.DuplicateSharedVertices(); n > 0 {
		logger.Debug("split shared vertices", zap.Int("count", n))
	}
	task.NextSubStep()

	if !SmoothMesh(s.Mesh, cell, opts.SmoothingLevel, task) {
		logger.Info("surface construction canceled")
		return nil, ErrCanceled
	}

	area := 0.0
	for _, f := range s.Mesh.Faces() {
		if task.IsCanceled() {
			logger.Info("surface construction canceled")
			return nil, ErrCanceled
		}
		area += facetArea(s.Mesh, cell, f)
	}
	s.SurfaceArea = area
	return s, nil
}

func countSelected(positions []r3.Vector, selection []bool) int {
	if selection == nil {
		return len(positions)
	}
	n := 0
	for _, sel := range selection {
		if sel {
			n++
		}
	}
	return n
}

// facetCross returns the cross product of the two edge vectors of the first
// fan triangle of f, wrapped at periodic boundaries.
func facetCross(m *halfedge.Basic, cell simcell.Cell, f halfedge.FaceID) r3.Vector {
	e := m.FaceEdges(f)
	base := m.Pos(m.Vertex2(e))
	e1 := cell.WrapVector(m.Pos(m.Vertex1(e)).Sub(base))
	e2 := cell.WrapVector(m.Pos(m.Vertex1(m.PrevFaceEdge(e))).Sub(base))
	return e1.Cross(e2)
}

func facetArea(m *halfedge.Basic, cell simcell.Cell, f halfedge.FaceID) float64 {
	return facetCross(m, cell, f).Norm() / 2
}
