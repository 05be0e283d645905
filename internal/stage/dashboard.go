package stage

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"strconv"
	"time"

	"go.uber.org/zap"

	"startup-positioning-map/internal/console"
)

const DefaultDashboardPort = 8501

type DashboardStageConfig struct {
	Python  string
	App     string
	Host    string
	Port    int
	WorkDir string
	Streams console.Streams
	Logger  *zap.SugaredLogger
}

// DashboardStage runs the Streamlit app in the foreground until it exits or
// the context is cancelled. Cancellation is a clean stop.
type DashboardStage struct {
	cfg    DashboardStageConfig
	logger *zap.SugaredLogger

	execCommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
	listen             func(network, address string) (net.Listener, error)
}

func NewDashboardStage(cfg DashboardStageConfig) *DashboardStage {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Host == "" {
		cfg.Host = "localhost"
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultDashboardPort
	}
	if cfg.Streams.Out == nil {
		cfg.Streams = console.Discard()
	}
	return &DashboardStage{
		cfg:                cfg,
		logger:             logger,
		execCommandContext: exec.CommandContext,
		listen:             net.Listen,
	}
}

func (d *DashboardStage) Name() Name { return Dashboard }

func (d *DashboardStage) Address() string {
	return net.JoinHostPort(d.cfg.Host, strconv.Itoa(d.cfg.Port))
}

func (d *DashboardStage) URL() string { return "http://" + d.Address() }

// Args is the streamlit invocation passed to the venv interpreter.
func (d *DashboardStage) Args() []string {
	return []string{
		"-m", "streamlit", "run", d.cfg.App,
		"--server.port", strconv.Itoa(d.cfg.Port),
		"--server.address", d.cfg.Host,
		"--server.headless", "true",
	}
}

// CheckPort fails when something is already listening on the dashboard port.
func (d *DashboardStage) CheckPort() error {
	ln, err := d.listen("tcp", d.Address())
	if err != nil {
		return fmt.Errorf("dashboard port %d is not available: %w", d.cfg.Port, err)
	}
	return ln.Close()
}

func (d *DashboardStage) Run(ctx context.Context) error {
	out := d.cfg.Streams.Out
	console.Banner(out, "Launching Streamlit Dashboard")

	if err := d.CheckPort(); err != nil {
		fmt.Fprintf(out, "\n❌ Error launching dashboard: %v\n", err)
		return err
	}

	fmt.Fprintf(out, "Starting dashboard at: %s\n", d.cfg.App)
	fmt.Fprintf(out, "To view the dashboard, open your browser at %s\n", d.URL())
	fmt.Fprintln(out, "Press Ctrl+C to stop the dashboard")

	start := time.Now()
	d.logger.Infow("dashboard_started", "app", d.cfg.App, "url", d.URL())

	cmd := d.execCommandContext(ctx, d.cfg.Python, d.Args()...)
	if d.cfg.WorkDir != "" {
		cmd.Dir = d.cfg.WorkDir
	}
	cmd.Stdout = out
	cmd.Stderr = d.cfg.Streams.Err
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 10 * time.Second

	err := cmd.Run()
	if ctx.Err() != nil {
		fmt.Fprintln(out, "\nDashboard stopped")
		d.logger.Infow(
			"dashboard_stopped",
			"duration", time.Since(start).Round(time.Millisecond).String(),
		)
		return nil
	}
	if err != nil {
		d.logger.Infow(
			"dashboard_failed",
			"duration", time.Since(start).Round(time.Millisecond).String(),
			"err", err.Error(),
		)
		fmt.Fprintf(out, "\n❌ Error launching dashboard: %v\n", err)
		return fmt.Errorf("streamlit: %w", err)
	}

	d.logger.Infow("dashboard_exited", "duration", time.Since(start).Round(time.Millisecond).String())
	return nil
}

var _ Stage = (*DashboardStage)(nil)
