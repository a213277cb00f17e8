package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/impactmesh/pkg/recipe"
	"github.com/chazu/impactmesh/pkg/session"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// NewPlateCommand creates the plate command
func NewPlateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "plate",
		Short: "Mesh a square plate refined around a central impact axis",
		Long: `Mesh a geometry.length x geometry.length x geometry.height plate.

The impact axis runs through the plate centre from the bottom face to the
top face. Element size follows refinement.* and distance.* and is clamped
to [lcmin, lcmax] with the given floor.

Examples:
  impactmesh plate
  impactmesh plate --lc 0.05 -o plate.msh
  impactmesh plate --optimize Laplace3D:5 --refine`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecipe(cmd, "plate")
		},
	}
}

// NewCylinderCommand creates the cylinder command
func NewCylinderCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cylinder",
		Short: "Mesh a cylinder refined around its axis",
		Long: `Mesh a cylinder of radius geometry.radius and height geometry.height
standing on the origin. The impact axis joins the two cap centres.

Examples:
  impactmesh cylinder
  impactmesh cylinder --kernel sdfx --dimension 2 -o cylinder.stl`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRecipe(cmd, "cylinder")
		},
	}
}

func runRecipe(cmd *cobra.Command, name string) error {
	infoColor := color.New(color.FgCyan)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	build, err := recipe.Lookup(name)
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	opts, err := cfg.SessionOptions(logger)
	if err != nil {
		return err
	}
	s := session.New(opts...)
	logger.Debug("session created", zap.String("recipe", name), zap.String("session_id", s.ID()))

	infoColor.Fprintf(cmd.OutOrStdout(), "Building %s...\n", name)
	if err := build(s, cfg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infoColor.Fprintf(cmd.OutOrStdout(), "Meshing with %s (dimension %d)...\n", s.Mesher().Name(), cfg.Mesher.Dimension)
	if err := recipe.Mesh(ctx, s, cfg); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	printSummary(cmd.OutOrStdout(), s, cfg.Output)
	return nil
}
