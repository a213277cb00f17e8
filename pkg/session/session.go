// Package session drives one meshing run through its fixed sequence of
// stages: build geometry, embed anchors, bind the sizing field, generate,
// post-process and write. Each stage is a method; calling one out of order
// returns a *StateError and leaves the session untouched.
package session

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/chazu/impactmesh/pkg/field"
	"github.com/chazu/impactmesh/pkg/geom"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/kernel/grid"
	"github.com/chazu/impactmesh/pkg/meshio"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/spatial/r3"
)

// Embedding requests that Anchor be embedded in the entity (HostDim, Host).
type Embedding struct {
	Anchor  geom.Ref
	HostDim geom.Dim
	Host    geom.Handle
}

// AxisEmbeddings lists the embeddings that tie an impact axis to a solid:
// each end point in its cap face and in the volume, then the line in the
// volume.
func AxisEmbeddings(axis *geom.ImpactAxis, bottom, top, volume geom.Handle) []Embedding {
	return []Embedding{
		{geom.PointRef(axis.Start), geom.DimSurface, bottom},
		{geom.PointRef(axis.Start), geom.DimVolume, volume},
		{geom.PointRef(axis.End), geom.DimSurface, top},
		{geom.PointRef(axis.End), geom.DimVolume, volume},
		{geom.CurveRef(axis.Line), geom.DimVolume, volume},
	}
}

// Pass is one named optimization pass with its iteration count.
type Pass struct {
	Name       string
	Iterations int
}

// Session owns the geometry, field graph and mesh of one meshing run. It
// is not safe for concurrent use.
type Session struct {
	id       string
	logger   *zap.Logger
	mesher   kernel.Mesher
	opts     kernel.Options
	callback kernel.SizeCallback

	state    State
	store    *geom.Store
	oracle   *field.Oracle
	mesh     *kernel.Mesh
	warnings []*kernel.OptimizationWarning
	elapsed  time.Duration
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger. Every entry carries the session id.
func WithLogger(l *zap.Logger) Option {
	return func(s *Session) { s.logger = l }
}

// WithMesher selects the mesher. The default is the grid mesher.
func WithMesher(m kernel.Mesher) Option {
	return func(s *Session) { s.mesher = m }
}

// WithOptions sets the mesher configuration.
func WithOptions(o kernel.Options) Option {
	return func(s *Session) { s.opts = o }
}

// WithSizeCallback installs a user callback applied to every size after
// the background field and before the clamp.
func WithSizeCallback(cb kernel.SizeCallback) Option {
	return func(s *Session) { s.callback = cb }
}

// New creates a session in the Unbuilt state.
func New(opts ...Option) *Session {
	s := &Session{
		id:     uuid.New().String(),
		logger: zap.NewNop(),
		opts:   kernel.DefaultOptions(),
		store:  geom.NewStore(),
	}
	for _, o := range opts {
		o(s)
	}
	s.logger = s.logger.With(zap.String("session_id", s.id))
	if s.mesher == nil {
		s.mesher = grid.New(grid.WithLogger(s.logger))
	}
	s.oracle = field.NewOracle(field.NewGraph())
	return s
}

// ID returns the unique session identifier.
func (s *Session) ID() string { return s.id }

// State returns the current stage.
func (s *Session) State() State { return s.state }

// Store returns the geometry store.
func (s *Session) Store() *geom.Store { return s.store }

// Graph returns the sizing field graph. Nodes may be added until the
// session generates.
func (s *Session) Graph() *field.Graph { return s.oracle.Graph() }

// Oracle returns the background field binding and clamp policy.
func (s *Session) Oracle() *field.Oracle { return s.oracle }

// Mesher returns the configured mesher.
func (s *Session) Mesher() kernel.Mesher { return s.mesher }

// Options returns the mesher configuration.
func (s *Session) Options() kernel.Options { return s.opts }

// Mesh returns the current mesh, or nil before generation.
func (s *Session) Mesh() *kernel.Mesh { return s.mesh }

// Warnings returns the optimization warnings collected so far.
func (s *Session) Warnings() []*kernel.OptimizationWarning { return s.warnings }

// Elapsed returns the wall time of the last successful generation.
func (s *Session) Elapsed() time.Duration { return s.elapsed }

func (s *Session) advance(to State) {
	s.logger.Info("session state changed", zap.Stringer("from", s.state), zap.Stringer("to", to))
	s.state = to
}

// Build constructs the geometry with fn. fn runs against a fresh store
// that replaces the session store only when fn succeeds, so a failed build
// leaves nothing behind.
func (s *Session) Build(fn func(*geom.Store) error) error {
	if err := s.require("build", Unbuilt); err != nil {
		return err
	}
	store := geom.NewStore()
	if err := fn(store); err != nil {
		return fmt.Errorf("build: %w", err)
	}
	s.adopt(store)
	return nil
}

// Adopt installs a store that was populated elsewhere, such as by a
// session script.
func (s *Session) Adopt(store *geom.Store) error {
	if err := s.require("build", Unbuilt); err != nil {
		return err
	}
	if store == nil || store.Frozen() {
		return errors.New("build: store is nil or frozen")
	}
	s.adopt(store)
	return nil
}

func (s *Session) adopt(store *geom.Store) {
	if store.EntityCount(geom.DimVolume) == 0 {
		s.logger.Warn("geometry has no volume")
	}
	s.store = store
	s.oracle = field.NewOracle(field.NewGraph())
	s.advance(GeometryBuilt)
}

// SetOptions replaces the mesher configuration. It is rejected once a
// mesh exists.
func (s *Session) SetOptions(o kernel.Options) error {
	if err := s.require("set options", Unbuilt, GeometryBuilt, AnchorsEmbedded, FieldBound); err != nil {
		return err
	}
	if err := o.Validate(); err != nil {
		return err
	}
	s.opts = o
	return nil
}

// EmbedAll embeds every anchor with the mesher's locator, then validates
// the store. The first failing embedding is returned; embeddings before
// it stay registered and the call may be repeated. Validation errors keep
// the session in GeometryBuilt.
func (s *Session) EmbedAll(embeds ...Embedding) error {
	if err := s.require("embed", GeometryBuilt); err != nil {
		return err
	}
	loc := s.mesher.Locator()
	for _, e := range embeds {
		if err := s.store.Embed(loc, e.Anchor, e.HostDim, e.Host); err != nil {
			return err
		}
	}
	var errs []error
	for _, v := range geom.Validate(s.store) {
		if v.Severity == geom.SeverityWarning {
			s.logger.Warn("geometry validation", zap.Stringer("entity", v.Ref), zap.String("message", v.Message))
			continue
		}
		errs = append(errs, v)
	}
	if len(errs) > 0 {
		return fmt.Errorf("embed: %w", errors.Join(errs...))
	}
	s.advance(AnchorsEmbedded)
	return nil
}

// BindField designates root as the background field and installs the
// clamp policy. Rebinding is allowed until the session generates.
func (s *Session) BindField(root field.NodeID, min, max, floor float64) error {
	if err := s.require("bind field", AnchorsEmbedded, FieldBound); err != nil {
		return err
	}
	if errs := field.Validate(s.oracle.Graph()); len(errs) > 0 {
		return fmt.Errorf("bind field: %w", errors.Join(errs...))
	}
	if err := s.oracle.Bind(root, min, max, floor); err != nil {
		return err
	}
	s.logger.Info("background field bound", zap.String("root", s.oracle.Graph().Describe(root)),
		zap.Float64("min", min), zap.Float64("max", max), zap.Float64("floor", floor))
	if s.state != FieldBound {
		s.advance(FieldBound)
	}
	return nil
}

// SizeCallback returns the size chain handed to the mesher: the background
// field (or the proposed size when none is bound), combined with the
// proposed size under the Minimum precedence, then the user callback, then
// the clamp. The mesher applies the size factor last.
func (s *Session) SizeCallback() kernel.SizeCallback {
	oracle, prec, user := s.oracle, s.opts.Precedence, s.callback
	return func(dim, tag int, x, y, z, lc float64) float64 {
		h := lc
		if raw, ok := oracle.Raw(r3.Vec{X: x, Y: y, Z: z}); ok {
			h = raw
			if prec == kernel.PrecedenceMinimum {
				h = math.Min(h, lc)
			}
		}
		if user != nil {
			h = user(dim, tag, x, y, z, h)
		}
		if _, ok := oracle.ClampPolicy(); ok {
			h = oracle.ClampValue(h)
		}
		return h
	}
}

// Generate meshes the geometry up to dimension dim. Generating before a
// field is bound is allowed; sizes then come from point hints and the
// default size. On failure or cancellation no mesh is kept and the session
// stays in its pre-generation state.
func (s *Session) Generate(ctx context.Context, dim int) error {
	if err := s.require("generate", GeometryBuilt, AnchorsEmbedded, FieldBound); err != nil {
		return err
	}
	if !s.oracle.Bound() {
		s.logger.Warn("generating without a background field; sizes come from point hints")
	}
	start := time.Now()
	m, err := s.mesher.Generate(ctx, s.store, dim, s.SizeCallback(), s.opts)
	if err != nil {
		s.logger.Error("generation failed", zap.Int("dim", dim), zap.Error(err), zap.Stringer("state", s.state))
		return err
	}
	s.elapsed = time.Since(start)
	s.store.Freeze()
	s.oracle.Freeze()
	s.mesh = m
	q := kernel.MeasureQuality(m)
	s.logger.Info("mesh generated",
		zap.String("mesher", s.mesher.Name()),
		zap.Int("dim", dim),
		zap.Int("nodes", m.VertexCount()),
		zap.Int("elements", m.ElementCount()),
		zap.Float64("min_quality", q.Min),
		zap.Duration("elapsed", s.elapsed),
	)
	s.advance(Generated)
	return nil
}

// Optimize runs each pass in order. A pass that fails or does not improve
// the mesh is recorded as a warning and the mesh is kept. Only a cancelled
// context is returned as an error, with the mesh as it was before the
// interrupted pass.
func (s *Session) Optimize(ctx context.Context, passes ...Pass) error {
	if err := s.require("optimize", Generated, Optimized); err != nil {
		return err
	}
	for _, p := range passes {
		out, err := s.mesher.Optimize(ctx, s.mesh, p.Name, p.Iterations, s.opts)
		var warn *kernel.OptimizationWarning
		switch {
		case errors.As(err, &warn):
			s.warnings = append(s.warnings, warn)
			s.logger.Warn("optimization pass skipped", zap.String("pass", p.Name), zap.String("reason", warn.Message))
			continue
		case err != nil:
			return fmt.Errorf("optimize %s: %w", p.Name, err)
		}
		s.mesh = out
	}
	s.advance(Optimized)
	return nil
}

// Refine splits every element once.
func (s *Session) Refine(ctx context.Context) error {
	if err := s.require("refine", Generated, Optimized, Refined); err != nil {
		return err
	}
	out, err := s.mesher.Refine(ctx, s.mesh, s.opts)
	if err != nil {
		return fmt.Errorf("refine: %w", err)
	}
	s.mesh = out
	if s.state != Refined {
		s.advance(Refined)
	}
	return nil
}

// Write saves the mesh to path (.msh or .stl) and ends the session.
func (s *Session) Write(path string) error {
	if err := s.require("write", Generated, Optimized, Refined, Terminal); err != nil {
		return err
	}
	if err := meshio.WriteFile(path, s.mesh); err != nil {
		return err
	}
	s.logger.Info("mesh written", zap.String("path", path))
	if s.state != Terminal {
		s.advance(Terminal)
	}
	return nil
}
