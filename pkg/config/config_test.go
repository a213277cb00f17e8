package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/kernel/grid"
	"github.com/chazu/impactmesh/pkg/kernel/sdfx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// loadDefaults loads from an empty working directory.
func loadDefaults(t *testing.T) *Config {
	t.Helper()
	t.Chdir(t.TempDir())
	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)
	return cfg
}

func TestLoadDefaults(t *testing.T) {
	cfg := loadDefaults(t)

	assert.Equal(t, 0.1, cfg.LC)
	assert.Equal(t, 0.0025, cfg.LCMin)
	assert.Equal(t, 1.0, cfg.LCMax)
	assert.Equal(t, 0.0025, cfg.Floor)
	assert.Equal(t, "impact.msh", cfg.Output)
	assert.Equal(t, []float64{0.02, 0.015}, cfg.Refinement.Radii)
	assert.Equal(t, []float64{0.01, 0.0025}, cfg.Refinement.InnerSizes)
	assert.Equal(t, 2, cfg.Distance.Power)
	assert.Equal(t, "grid", cfg.Mesher.Kernel)
	assert.Equal(t, 3, cfg.Mesher.Dimension)
	assert.Empty(t, cfg.Mesher.Optimize)
	assert.False(t, cfg.Mesher.Refine)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)

	content := `
lc: 0.05
output: out/plate.stl
geometry:
  length: 0.2
refinement:
  radii: [0.03]
  inner_sizes: [0.004]
mesher:
  kernel: sdfx
  dimension: 2
  precedence: minimum
  optimize: ["laplace2d:3", "Relocate3D"]
  refine: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "impactmesh.yaml"), []byte(content), 0o644))

	cfg, err := Load(NewViper(), "")
	require.NoError(t, err)

	assert.Equal(t, 0.05, cfg.LC)
	assert.Equal(t, "out/plate.stl", cfg.Output)
	assert.Equal(t, 0.2, cfg.Geometry.Length)
	assert.Equal(t, 0.005, cfg.Geometry.Height, "unset keys keep their default")
	assert.Equal(t, []float64{0.03}, cfg.Refinement.Radii)
	assert.Equal(t, "sdfx", cfg.Mesher.Kernel)
	assert.True(t, cfg.Mesher.Refine)

	passes, err := cfg.Passes()
	require.NoError(t, err)
	require.Len(t, passes, 2)
	assert.Equal(t, kernel.PassLaplace2D, passes[0].Name)
	assert.Equal(t, 3, passes[0].Iterations)
	assert.Equal(t, kernel.PassRelocate3D, passes[1].Name)
	assert.Equal(t, 1, passes[1].Iterations)

	opts, err := cfg.MesherOptions()
	require.NoError(t, err)
	assert.Equal(t, kernel.PrecedenceMinimum, opts.Precedence)
	assert.Equal(t, 0.05, opts.DefaultSize)
}

func TestLoadExplicitPathMustExist(t *testing.T) {
	_, err := Load(NewViper(), filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("IMPACTMESH_LC", "0.02")
	t.Setenv("IMPACTMESH_MESHER_MAX_ELEMENTS", "5000")
	t.Setenv("IMPACTMESH_OUTPUT", "env.msh")

	cfg := loadDefaults(t)
	assert.Equal(t, 0.02, cfg.LC)
	assert.Equal(t, 5000, cfg.Mesher.MaxElements)
	assert.Equal(t, "env.msh", cfg.Output)
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("lcmin: 2\nlcmax: 1\n"), 0o644))

	_, err := Load(NewViper(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lcmin")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero lc", func(c *Config) { c.LC = 0 }, "lc must be positive"},
		{"floor above lcmin", func(c *Config) { c.Floor = 0.01 }, "exceeds lcmin"},
		{"inverted bounds", func(c *Config) { c.LCMin, c.LCMax = 0.5, 0.1 }, "lcmin <= lcmax"},
		{"flat plate", func(c *Config) { c.Geometry.Height = 0 }, "geometry"},
		{"ragged refinement", func(c *Config) { c.Refinement.InnerSizes = []float64{0.01} }, "2 radii but 1 inner sizes"},
		{"negative radius", func(c *Config) { c.Refinement.Radii[0] = -1 }, "radius 0"},
		{"zero offset", func(c *Config) { c.Distance.Offset = 0 }, "offset"},
		{"unknown kernel", func(c *Config) { c.Mesher.Kernel = "octree" }, "unknown mesher kernel"},
		{"sdfx volume", func(c *Config) { c.Mesher.Kernel = "sdfx" }, "dimension 2"},
		{"dimension", func(c *Config) { c.Mesher.Dimension = 4 }, "out of range"},
		{"precedence", func(c *Config) { c.Mesher.Precedence = "average" }, "precedence"},
		{"optimize count", func(c *Config) { c.Mesher.Optimize = []string{"Laplace3D:x"} }, "positive integer"},
		{"optimize name", func(c *Config) { c.Mesher.Optimize = []string{":2"} }, "no pass name"},
		{"output format", func(c *Config) { c.Output = "mesh.vtk" }, "vtk"},
		{"samples", func(c *Config) { c.Mesher.Samples = 1 }, "samples"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := loadDefaults(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestNewMesher(t *testing.T) {
	cfg := loadDefaults(t)

	m, err := cfg.NewMesher(zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &grid.Mesher{}, m)

	cfg.Mesher.Kernel = "sdfx"
	m, err = cfg.NewMesher(zap.NewNop())
	require.NoError(t, err)
	assert.IsType(t, &sdfx.Mesher{}, m)

	cfg.Mesher.Kernel = "tet"
	_, err = cfg.NewMesher(zap.NewNop())
	assert.Error(t, err)
}

func TestSessionOptions(t *testing.T) {
	cfg := loadDefaults(t)
	opts, err := cfg.SessionOptions(zap.NewNop())
	require.NoError(t, err)
	assert.Len(t, opts, 3)
}
