package commands

import (
	"fmt"
	"io"
	"runtime"

	"github.com/chazu/impactmesh/pkg/config"
	"github.com/chazu/impactmesh/pkg/kernel"
	"github.com/chazu/impactmesh/pkg/session"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	// Version information - set at build time
	Version   = "dev"
	GitCommit = "unknown"
	BuildDate = "unknown"
	GoVersion = "unknown"
)

var (
	cfgFile string
	verbose bool

	// settings holds defaults, the config file, the environment and the
	// persistent flags of the current root command.
	settings *viper.Viper
)

// flagKeys maps persistent flags onto config keys.
var flagKeys = map[string]string{
	"lc":           "lc",
	"output":       "output",
	"kernel":       "mesher.kernel",
	"dimension":    "mesher.dimension",
	"max-elements": "mesher.max_elements",
	"optimize":     "mesher.optimize",
	"refine":       "mesher.refine",
}

// NewRootCommand creates the root command
func NewRootCommand() *cobra.Command {
	settings = config.NewViper()

	rootCmd := &cobra.Command{
		Use:   "impactmesh",
		Short: "Refined meshes for ballistic impact simulations",
		Long: color.CyanString(`impactmesh - meshes refined around an impact axis

impactmesh builds a plate or cylinder, embeds the impact axis, binds a
sizing field that shrinks towards the axis and writes the mesh as Gmsh
.msh or STL.

Settings come from flags, IMPACTMESH_* environment variables and
impactmesh.yaml, in that order.`),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&cfgFile, "config", "c", "", "config file (default ./impactmesh.yaml)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "Enable development logging")
	pf.Float64("lc", 0.1, "Characteristic mesh size")
	pf.StringP("output", "o", "impact.msh", "Output file (.msh or .stl)")
	pf.String("kernel", "grid", "Mesher kernel (grid or sdfx)")
	pf.Int("dimension", 3, "Mesh dimension")
	pf.Int("max-elements", 2_000_000, "Upper bound on generated elements")
	pf.StringSlice("optimize", nil, "Optimization passes as Name[:iterations]")
	pf.Bool("refine", false, "Split every element once after optimization")
	for flag, key := range flagKeys {
		if err := settings.BindPFlag(key, pf.Lookup(flag)); err != nil {
			panic(err)
		}
	}

	rootCmd.AddCommand(NewVersionCommand())
	rootCmd.AddCommand(NewPlateCommand())
	rootCmd.AddCommand(NewCylinderCommand())
	rootCmd.AddCommand(NewRunCommand())
	rootCmd.AddCommand(NewProfileCommand())

	return rootCmd
}

// NewVersionCommand creates the version command
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Long:  "Display the impactmesh version, Git commit, build date, and Go version",
		Run: func(cmd *cobra.Command, args []string) {
			goVer := GoVersion
			if goVer == "unknown" {
				goVer = runtime.Version()
			}

			titleColor := color.New(color.FgCyan, color.Bold)
			valueColor := color.New(color.FgWhite)
			w := cmd.OutOrStdout()

			for _, row := range [][2]string{
				{"impactmesh version: ", Version},
				{"Git commit: ", GitCommit},
				{"Build date: ", BuildDate},
				{"Go version: ", goVer},
			} {
				titleColor.Fprint(w, row[0])
				valueColor.Fprintln(w, row[1])
			}
		},
	}
}

// loadConfig reads the configuration for the current invocation.
func loadConfig() (*config.Config, error) {
	return config.Load(settings, cfgFile)
}

// newLogger returns a development logger with --verbose and a production
// logger otherwise. It never fails; a logger that cannot be built is
// replaced by a no-op one.
func newLogger() *zap.Logger {
	build := zap.NewProduction
	if verbose {
		build = zap.NewDevelopment
	}
	logger, err := build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// printSummary reports the mesh held by s.
func printSummary(w io.Writer, s *session.Session, path string) {
	successColor := color.New(color.FgGreen, color.Bold)
	infoColor := color.New(color.FgCyan)
	warningColor := color.New(color.FgYellow)

	m := s.Mesh()
	q := kernel.MeasureQuality(m)
	successColor.Fprintf(w, "Wrote %s\n", path)
	infoColor.Fprintf(w, "  mesher:   %s\n", s.Mesher().Name())
	infoColor.Fprintf(w, "  nodes:    %d\n", m.VertexCount())
	infoColor.Fprintf(w, "  elements: %d (%d hexahedra, %d quadrangles, %d triangles)\n",
		m.ElementCount(), m.CountByType(kernel.Hex8), m.CountByType(kernel.Quad4), m.CountByType(kernel.Tri3))
	infoColor.Fprintf(w, "  quality:  min %.3f, mean %.3f\n", q.Min, q.Mean)
	infoColor.Fprintf(w, "  elapsed:  %s\n", s.Elapsed())
	if q.Inverted > 0 {
		warningColor.Fprintf(w, "  %d inverted elements\n", q.Inverted)
	}
	for _, warn := range s.Warnings() {
		warningColor.Fprintf(w, "  warning: %s\n", warn.Error())
	}
}

func errorf(w io.Writer, format string, args ...any) {
	color.New(color.FgRed).Fprintf(w, format, args...)
	fmt.Fprintln(w)
}
