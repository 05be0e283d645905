// Package bootstrap reconciles the project's Python virtual environment with
// its declared requirements.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/envstatus"
)

type Outcome string

const (
	OutcomeAlreadyReady            Outcome = "already_ready"
	OutcomeBootstrapped            Outcome = "bootstrapped"
	OutcomeContinuedDespiteFailure Outcome = "continued_despite_failure"
)

// Checker observes the environment; *envstatus.Inspector implements it.
type Checker interface {
	Check(ctx context.Context) envstatus.Status
}

type Config struct {
	PythonCmd        string
	VenvDir          string
	RequirementsFile string
	MarkerPath       string
	FailurePolicy    string
	Streams          console.Streams
	Logger           *zap.SugaredLogger
}

type Bootstrapper struct {
	cfg     Config
	checker Checker
	logger  *zap.SugaredLogger

	execCommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
	writeFile          func(name string, data []byte, perm os.FileMode) error
}

func New(cfg Config, checker Checker) *Bootstrapper {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.FailurePolicy == "" {
		cfg.FailurePolicy = config.FailurePolicyFail
	}
	if cfg.Streams.Out == nil {
		cfg.Streams = console.Discard()
	}
	return &Bootstrapper{
		cfg:                cfg,
		checker:            checker,
		logger:             logger,
		execCommandContext: exec.CommandContext,
		writeFile:          os.WriteFile,
	}
}

// Ensure makes the environment ready, doing nothing when it already is.
func (b *Bootstrapper) Ensure(ctx context.Context) (Outcome, error) {
	status := b.checker.Check(ctx)
	if status.Ready() {
		b.logger.Infow("bootstrap_skipped", "venv", status.VenvDir, "reason", "environment ready")
		return OutcomeAlreadyReady, nil
	}

	start := time.Now()
	b.logger.Infow("bootstrap_started", "venv", status.VenvDir, "problems", status.Problems())

	if err := b.reconcile(ctx, status); err != nil {
		b.logger.Errorw(
			"bootstrap_failed",
			"venv", status.VenvDir,
			"duration", time.Since(start).Round(time.Millisecond).String(),
			"err", err.Error(),
		)
		return b.onFailure(err)
	}

	b.logger.Infow(
		"bootstrap_finished",
		"venv", status.VenvDir,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	return OutcomeBootstrapped, nil
}

func (b *Bootstrapper) reconcile(ctx context.Context, s envstatus.Status) error {
	out := b.cfg.Streams.Out

	willCreate := !s.PythonExists
	willInstall := s.RequirementsPresent && (willCreate || s.RequirementsStale() || len(s.MissingModules) > 0)

	if willCreate && !s.InterpreterFound {
		return &EnvironmentError{
			Reason:   fmt.Sprintf("python interpreter %q not found", b.cfg.PythonCmd),
			Problems: s.Problems(),
		}
	}
	if willInstall && !s.ToolchainFound() {
		return &EnvironmentError{
			Reason:   "native build toolchain required by dependencies is missing",
			Problems: s.Problems(),
		}
	}

	if willCreate {
		fmt.Fprintf(out, "Creating virtual environment in %s...\n", s.VenvDir)
		if err := b.run(ctx, b.cfg.PythonCmd, "-m", "venv", s.VenvDir); err != nil {
			return &EnvironmentError{Reason: "create virtual environment", Err: err}
		}
		b.logger.Infow("bootstrap_venv_created", "venv", s.VenvDir)
	} else {
		fmt.Fprintf(out, "Virtual environment already exists in %s\n", s.VenvDir)
	}

	switch {
	case willInstall:
		fmt.Fprintf(out, "Installing required packages from %s...\n", s.RequirementsFile)
		if err := b.run(ctx, s.PythonPath, "-m", "pip", "install", "-r", s.RequirementsFile); err != nil {
			return &EnvironmentError{Reason: "install dependencies", Err: err}
		}
		if err := b.writeFile(b.cfg.MarkerPath, []byte(s.RequirementsDigest+"\n"), 0o644); err != nil {
			return &EnvironmentError{Reason: "record installed requirements", Err: err}
		}
		b.logger.Infow("bootstrap_requirements_installed", "requirements", s.RequirementsFile)
	case !s.RequirementsPresent:
		fmt.Fprintf(out, "Warning: %s not found. No packages installed.\n", s.RequirementsFile)
		b.logger.Warnw("bootstrap_requirements_missing", "requirements", s.RequirementsFile)
	}

	after := b.checker.Check(ctx)
	if !after.Ready() {
		return &EnvironmentError{
			Reason:   "environment still not ready after bootstrap",
			Problems: after.Problems(),
		}
	}

	fmt.Fprintln(out, "Virtual environment setup complete!")
	return nil
}

func (b *Bootstrapper) onFailure(err error) (Outcome, error) {
	if b.cfg.FailurePolicy != config.FailurePolicyPrompt {
		return "", err
	}

	fmt.Fprintf(b.cfg.Streams.Err, "\n%v\n", err)
	ok, perr := console.Confirm(b.cfg.Streams, "Continue anyway?")
	if perr != nil {
		return "", fmt.Errorf("%w (prompt failed: %v)", err, perr)
	}
	if !ok {
		return "", err
	}

	fmt.Fprintln(b.cfg.Streams.Out, "Some features may not work without required dependencies.")
	b.logger.Warnw("bootstrap_continued_despite_failure", "err", err.Error())
	return OutcomeContinuedDespiteFailure, nil
}

func (b *Bootstrapper) run(ctx context.Context, name string, args ...string) error {
	cmd := b.execCommandContext(ctx, name, args...)
	cmd.Stdout = b.cfg.Streams.Out
	cmd.Stderr = b.cfg.Streams.Err
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s %s: %w", name, strings.Join(args, " "), err)
	}
	return nil
}
