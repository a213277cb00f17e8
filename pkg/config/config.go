// Package config loads the meshing configuration from impactmesh.yaml,
// IMPACTMESH_* environment variables and command line flags.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/kernel/grid"
	"github.com/chazu/impactmesh/pkg/kernel/sdfx"
	"github.com/chazu/impactmesh/pkg/meshio"
	"github.com/chazu/impactmesh/pkg/session"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Config is the configuration of one meshing run.
type Config struct {
	LC    float64 `mapstructure:"lc"`
	LCMin float64 `mapstructure:"lcmin"`
	LCMax float64 `mapstructure:"lcmax"`
	Floor float64 `mapstructure:"floor"`

	Output     string           `mapstructure:"output"`
	Geometry   GeometryConfig   `mapstructure:"geometry"`
	Refinement RefinementConfig `mapstructure:"refinement"`
	Distance   DistanceConfig   `mapstructure:"distance"`
	Mesher     MesherConfig     `mapstructure:"mesher"`
}

// GeometryConfig sizes the plate (Length x Length x Height) and the
// cylinder (Radius, Height).
type GeometryConfig struct {
	Length float64 `mapstructure:"length"`
	Height float64 `mapstructure:"height"`
	Radius float64 `mapstructure:"radius"`
}

// RefinementConfig describes the nested refinement cylinders around the
// impact axis. Radii[i] gets InnerSizes[i]; OuterSize applies beyond.
type RefinementConfig struct {
	Radii      []float64 `mapstructure:"radii"`
	InnerSizes []float64 `mapstructure:"inner_sizes"`
	OuterSize  float64   `mapstructure:"outer_size"`
}

// DistanceConfig is the transform Scale*d^Power + Offset applied to the
// distance from the impact axis.
type DistanceConfig struct {
	Scale  float64 `mapstructure:"scale"`
	Power  int     `mapstructure:"power"`
	Offset float64 `mapstructure:"offset"`
}

// MesherConfig selects and tunes the mesher.
type MesherConfig struct {
	Kernel         string   `mapstructure:"kernel"`
	Dimension      int      `mapstructure:"dimension"`
	MaxElements    int      `mapstructure:"max_elements"`
	Samples        int      `mapstructure:"samples"`
	Smoothing      int      `mapstructure:"smoothing"`
	SizeFromPoints bool     `mapstructure:"size_from_points"`
	SizeFactor     float64  `mapstructure:"size_factor"`
	Precedence     string   `mapstructure:"precedence"`
	Optimize       []string `mapstructure:"optimize"`
	Refine         bool     `mapstructure:"refine"`
}

// NewViper returns a viper instance with every default set and the
// environment bound. Callers bind their flags to it before Load.
func NewViper() *viper.Viper {
	v := viper.New()

	// Defaults follow the refined plate study: lc = 0.1, lcmin = lc/40.
	v.SetDefault("lc", 0.1)
	v.SetDefault("lcmin", 0.0025)
	v.SetDefault("lcmax", 1.0)
	v.SetDefault("floor", 0.0025)
	v.SetDefault("output", "impact.msh")
	v.SetDefault("geometry.length", 0.1)
	v.SetDefault("geometry.height", 0.005)
	v.SetDefault("geometry.radius", 0.03025)
	v.SetDefault("refinement.radii", []float64{0.02, 0.015})
	v.SetDefault("refinement.inner_sizes", []float64{0.01, 0.0025})
	v.SetDefault("refinement.outer_size", 0.1)
	v.SetDefault("distance.scale", 2.5)
	v.SetDefault("distance.power", 2)
	v.SetDefault("distance.offset", 0.0025)
	v.SetDefault("mesher.kernel", "grid")
	v.SetDefault("mesher.dimension", 3)
	v.SetDefault("mesher.max_elements", 2_000_000)
	v.SetDefault("mesher.samples", 16)
	v.SetDefault("mesher.smoothing", 0)
	v.SetDefault("mesher.size_from_points", false)
	v.SetDefault("mesher.size_factor", 1.0)
	v.SetDefault("mesher.precedence", "background")
	v.SetDefault("mesher.optimize", []string{})
	v.SetDefault("mesher.refine", false)

	v.SetEnvPrefix("impactmesh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the config file into v and unmarshals the result. An empty
// path searches for impactmesh.yaml in the working directory; a missing
// file is not an error then. An explicit path must exist.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("impactmesh")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values no session could run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	check(c.LC > 0, "lc must be positive, got %g", c.LC)
	check(c.Floor > 0, "floor must be positive, got %g", c.Floor)
	check(c.LCMin > 0 && c.LCMin <= c.LCMax, "need 0 < lcmin <= lcmax, got %g and %g", c.LCMin, c.LCMax)
	check(c.Floor <= c.LCMin, "floor %g exceeds lcmin %g", c.Floor, c.LCMin)

	g := c.Geometry
	check(g.Length > 0 && g.Height > 0 && g.Radius > 0, "geometry dimensions must be positive")

	r := c.Refinement
	check(len(r.Radii) == len(r.InnerSizes), "refinement has %d radii but %d inner sizes", len(r.Radii), len(r.InnerSizes))
	for i, v := range r.Radii {
		check(v > 0, "refinement radius %d must be positive, got %g", i, v)
	}
	for i, v := range r.InnerSizes {
		check(v > 0, "refinement inner size %d must be positive, got %g", i, v)
	}
	check(r.OuterSize > 0, "refinement outer size must be positive, got %g", r.OuterSize)

	d := c.Distance
	check(d.Scale >= 0 && d.Power >= 0, "distance scale and power must not be negative")
	check(d.Offset > 0, "distance offset must be positive, got %g", d.Offset)

	m := c.Mesher
	switch m.Kernel {
	case "grid":
		check(m.Dimension == 2 || m.Dimension == 3, "mesher dimension %d out of range 2..3", m.Dimension)
	case "sdfx":
		check(m.Dimension == 2, "the sdfx kernel only generates surface meshes (dimension 2)")
	default:
		errs = append(errs, fmt.Errorf("unknown mesher kernel %q (want grid or sdfx)", m.Kernel))
	}
	if _, err := kernel.ParsePrecedence(m.Precedence); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.Passes(); err != nil {
		errs = append(errs, err)
	}
	if _, err := meshio.FormatFromPath(c.Output); err != nil {
		errs = append(errs, err)
	}
	if len(errs) == 0 {
		if _, err := c.MesherOptions(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

// MesherOptions projects the configuration onto the immutable mesher
// options.
func (c *Config) MesherOptions() (kernel.Options, error) {
	prec, err := kernel.ParsePrecedence(c.Mesher.Precedence)
	if err != nil {
		return kernel.Options{}, err
	}
	o := kernel.Options{
		DefaultSize:    c.LC,
		SizeFromPoints: c.Mesher.SizeFromPoints,
		SizeFactor:     c.Mesher.SizeFactor,
		Precedence:     prec,
		MaxElements:    c.Mesher.MaxElements,
		Smoothing:      c.Mesher.Smoothing,
		Samples:        c.Mesher.Samples,
	}
	return o, o.Validate()
}

// Passes parses the optimize list. Entries are "Name" or "Name:iterations";
// the iteration count defaults to 1 and names match case-insensitively.
func (c *Config) Passes() ([]session.Pass, error) {
	passes := make([]session.Pass, 0, len(c.Mesher.Optimize))
	for _, entry := range c.Mesher.Optimize {
		name, count, found := strings.Cut(strings.TrimSpace(entry), ":")
		p := session.Pass{Name: kernel.CanonicalPass(name), Iterations: 1}
		if found {
			n, err := strconv.Atoi(count)
			if err != nil || n < 1 {
				return nil, fmt.Errorf("optimize entry %q: iterations must be a positive integer", entry)
			}
			p.Iterations = n
		}
		if p.Name == "" {
			return nil, fmt.Errorf("optimize entry %q has no pass name", entry)
		}
		passes = append(passes, p)
	}
	return passes, nil
}

// NewMesher builds the configured mesher.
func (c *Config) NewMesher(logger *zap.Logger) (kernel.Mesher, error) {
	switch c.Mesher.Kernel {
	case "grid":
		return grid.New(grid.WithLogger(logger)), nil
	case "sdfx":
		return sdfx.New(sdfx.WithLogger(logger)), nil
	}
	return nil, fmt.Errorf("unknown mesher kernel %q", c.Mesher.Kernel)
}

// SessionOptions returns the session options for this configuration.
func (c *Config) SessionOptions(logger *zap.Logger) ([]session.Option, error) {
	opts, err := c.MesherOptions()
	if err != nil {
		return nil, err
	}
	m, err := c.NewMesher(logger)
	if err != nil {
		return nil, err
	}
	return []session.Option{
		session.WithLogger(logger),
		session.WithMesher(m),
		session.WithOptions(opts),
	}, nil
}
