package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"startup-positioning-map/config"
	"startup-positioning-map/db"
	"startup-positioning-map/internal/envstatus"
	"startup-positioning-map/internal/logs"
	pipelinefx "startup-positioning-map/internal/pipeline/fx"
	"startup-positioning-map/internal/pkg/dashcheck"
	"startup-positioning-map/internal/stage"
)

func newDoctorCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check the Python environment, dashboard port and run history",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig(cmd)
			if err != nil {
				return err
			}
			zl, err := logs.NewLogger(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = zl.Sync() }()

			return runDoctor(cmd.Context(), cfg, cmd.OutOrStdout(), zl.Sugar())
		},
	}
}

type doctorReport struct {
	env envstatus.Status

	dashboardURL  string
	portErr       error
	dashboardBody string
	dashboardErr  error

	history    string
	historyErr error
}

// runDoctor runs the independent checks concurrently, prints the results
// and fails with the environment exit code when stages could not run.
func runDoctor(ctx context.Context, cfg *config.Config, out io.Writer, logger *zap.SugaredLogger) error {
	var rep doctorReport

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rep.env = pipelinefx.NewInspector(cfg, logger).Check(gctx)
		return nil
	})
	g.Go(func() error {
		dash := stage.NewDashboardStage(stage.DashboardStageConfig{
			Host:   cfg.Dashboard.Host,
			Port:   cfg.Dashboard.Port,
			Logger: logger,
		})
		rep.dashboardURL = dash.URL()
		rep.portErr = dash.CheckPort()
		if rep.portErr != nil {
			rep.dashboardBody, rep.dashboardErr = dashcheck.CheckReachable(
				gctx, dashcheck.HealthURL(cfg.Dashboard.Host, cfg.Dashboard.Port), 2*time.Second,
			)
		}
		return nil
	})
	g.Go(func() error {
		rep.history, rep.historyErr = checkHistory(gctx, cfg)
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	printDoctor(out, rep)

	if !rep.env.Ready() {
		return &exitError{code: exitEnvironment, err: errors.New("environment not ready; run: pipeline --setup")}
	}
	return nil
}

func checkHistory(ctx context.Context, cfg *config.Config) (string, error) {
	if !cfg.History.Enabled {
		return "disabled", nil
	}
	h, err := db.Open(cfg)
	if err != nil {
		return "", err
	}
	defer h.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := h.PingContext(pingCtx); err != nil {
		return "", fmt.Errorf("%s: %w", h.Backend, err)
	}
	return string(h.Backend) + " reachable", nil
}

func printDoctor(out io.Writer, rep doctorReport) {
	s := rep.env
	mark := func(ok bool) string {
		if ok {
			return "✅"
		}
		return "❌"
	}

	fmt.Fprintln(out, "Python environment")
	fmt.Fprintf(out, "  %s virtual environment: %s\n", mark(s.VenvExists && s.PythonExists), s.VenvDir)
	fmt.Fprintf(out, "  %s interpreter %s: %s\n", mark(s.InterpreterFound), s.Interpreter, orNone(s.InterpreterPath))
	if s.ToolchainRequired {
		fmt.Fprintf(out, "  %s build toolchain (%s): %s\n", mark(s.ToolchainFound()), strings.Join(s.Toolchain, ", "), orNone(s.ToolchainPath))
	}
	if s.RequirementsPresent {
		fmt.Fprintf(out, "  %s requirements installed: %s\n", mark(!s.RequirementsStale()), s.RequirementsFile)
	} else {
		fmt.Fprintf(out, "  ⚠️ requirements file missing: %s\n", s.RequirementsFile)
	}
	if len(s.MissingModules) > 0 {
		fmt.Fprintf(out, "  ❌ missing modules: %s\n", strings.Join(s.MissingModules, ", "))
	}

	fmt.Fprintln(out, "Dashboard")
	switch {
	case rep.portErr == nil:
		fmt.Fprintf(out, "  ✅ port free: %s\n", rep.dashboardURL)
	case rep.dashboardErr == nil:
		fmt.Fprintf(out, "  ✅ already running: %s (%s)\n", rep.dashboardURL, rep.dashboardBody)
	default:
		fmt.Fprintf(out, "  ❌ %v\n", rep.portErr)
	}

	fmt.Fprintln(out, "Run history")
	if rep.historyErr != nil {
		fmt.Fprintf(out, "  ❌ %v\n", rep.historyErr)
	} else {
		fmt.Fprintf(out, "  ✅ %s\n", rep.history)
	}

	if s.Ready() {
		fmt.Fprintln(out, "\n✅ OK: environment ready.")
		return
	}
	fmt.Fprintln(out, "\nProblems:")
	for _, p := range s.Problems() {
		fmt.Fprintf(out, "  - %s\n", p)
	}
}

func orNone(s string) string {
	if s == "" {
		return "not found"
	}
	return s
}
