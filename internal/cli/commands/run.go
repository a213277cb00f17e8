package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/chazu/impactmesh/pkg/engine"
	"github.com/chazu/impactmesh/pkg/session"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// NewRunCommand creates the run command
func NewRunCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <script>",
		Short: "Evaluate a session script and run its mesh steps",
		Long: `Evaluate a Lisp session script that builds geometry, embeds anchors
and binds a sizing field, then run the mesh steps it lists.

A script without a generate step is generated at --dimension and then
optimized and refined as configured. A script without a write step is
written to --output.

Example script:
  (def p (plate :length 0.1 :width 0.1 :height 0.005 :lc 0.1))
  (def ax (impact-axis :x 0.05 :y 0.05 :z0 0 :z1 0.005 :lc 0.1))
  (embed-axis ax p)
  (def d (distance (pick ax :line)))
  (background (math-eval "2.5*F%d^2 + 0.0025" :of d) :min 0.0025 :max 1 :floor 0.0025)
  (generate 3)
  (write "plate.msh")`,
		Args: cobra.ExactArgs(1),
		RunE: runScript,
	}
}

func runScript(cmd *cobra.Command, args []string) error {
	path := args[0]
	infoColor := color.New(color.FgCyan)

	src, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read script: %w", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := newLogger()
	defer logger.Sync()

	opts, err := cfg.SessionOptions(logger)
	if err != nil {
		return err
	}
	eng := engine.NewEngine(engine.WithLogger(logger), engine.WithSessionOptions(opts...))

	infoColor.Fprintf(cmd.OutOrStdout(), "Evaluating %s...\n", path)
	sc, evalErrs, err := eng.Evaluate(string(src))
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if len(evalErrs) > 0 {
		for _, e := range evalErrs {
			errorf(cmd.ErrOrStderr(), "%s:%s", path, e.Error())
		}
		return fmt.Errorf("%s: %d evaluation error(s)", path, len(evalErrs))
	}
	if sc.Session.State() == session.Unbuilt {
		return fmt.Errorf("%s: script declares no geometry", path)
	}

	passes, err := cfg.Passes()
	if err != nil {
		return err
	}
	if !hasStep(sc, engine.StepGenerate) {
		sc.Steps = append(sc.Steps, engine.Step{Kind: engine.StepGenerate, Dim: cfg.Mesher.Dimension})
		if len(passes) > 0 {
			sc.Steps = append(sc.Steps, engine.Step{Kind: engine.StepOptimize, Passes: passes})
		}
		if cfg.Mesher.Refine {
			sc.Steps = append(sc.Steps, engine.Step{Kind: engine.StepRefine})
		}
	}
	output := cfg.Output
	if !sc.Writes() {
		sc.Steps = append(sc.Steps, engine.Step{Kind: engine.StepWrite, Path: output})
	} else {
		output = lastWrite(sc)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	infoColor.Fprintf(cmd.OutOrStdout(), "Running %d mesh steps...\n", len(sc.Steps))
	if err := sc.Run(ctx); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	printSummary(cmd.OutOrStdout(), sc.Session, output)
	return nil
}

func hasStep(sc *engine.Script, kind engine.StepKind) bool {
	for _, st := range sc.Steps {
		if st.Kind == kind {
			return true
		}
	}
	return false
}

func lastWrite(sc *engine.Script) string {
	path := ""
	for _, st := range sc.Steps {
		if st.Kind == engine.StepWrite {
			path = st.Path
		}
	}
	return path
}
