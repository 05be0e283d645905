package stage

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"startup-positioning-map/internal/console"
)

// Script is one Python entry point and the title printed above its output.
type Script struct {
	Path  string
	Title string
}

type ScriptStageConfig struct {
	Name    Name
	Python  string
	WorkDir string
	Scripts []Script
	// RequireAll fails the stage when any script fails. When false the stage
	// succeeds as long as one script does.
	RequireAll bool
	Streams    console.Streams
	Logger     *zap.SugaredLogger
}

// ScriptStage runs its scripts in order with the venv interpreter.
type ScriptStage struct {
	cfg    ScriptStageConfig
	logger *zap.SugaredLogger

	execCommandContext func(ctx context.Context, name string, args ...string) *exec.Cmd
}

func NewScriptStage(cfg ScriptStageConfig) *ScriptStage {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	if cfg.Streams.Out == nil {
		cfg.Streams = console.Discard()
	}
	return &ScriptStage{
		cfg:                cfg,
		logger:             logger,
		execCommandContext: exec.CommandContext,
	}
}

func (s *ScriptStage) Name() Name { return s.cfg.Name }

func (s *ScriptStage) Run(ctx context.Context) error {
	if len(s.cfg.Scripts) == 0 {
		return fmt.Errorf("no scripts configured")
	}

	var errs []error
	succeeded := 0
	for _, script := range s.cfg.Scripts {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.runScript(ctx, script); err != nil {
			errs = append(errs, err)
			continue
		}
		succeeded++
	}

	if len(errs) == 0 {
		return nil
	}
	if !s.cfg.RequireAll && succeeded > 0 {
		s.logger.Warnw(
			"stage_partial_success",
			"stage", s.cfg.Name,
			"succeeded", succeeded,
			"failed", len(errs),
		)
		return nil
	}
	return errors.Join(errs...)
}

func (s *ScriptStage) runScript(ctx context.Context, script Script) error {
	out := s.cfg.Streams.Out
	console.Banner(out, script.Title)

	start := time.Now()
	s.logger.Infow("script_started", "stage", s.cfg.Name, "script", script.Path)

	cmd := s.execCommandContext(ctx, s.cfg.Python, script.Path)
	if s.cfg.WorkDir != "" {
		cmd.Dir = s.cfg.WorkDir
	}
	cmd.Stdout = out
	cmd.Stderr = s.cfg.Streams.Err
	if err := cmd.Run(); err != nil {
		s.logger.Infow(
			"script_failed",
			"stage", s.cfg.Name,
			"script", script.Path,
			"duration", time.Since(start).Round(time.Millisecond).String(),
			"err", err.Error(),
		)
		fmt.Fprintf(out, "\n❌ %s failed: %v\n", script.Title, err)
		return fmt.Errorf("%s: %w", script.Path, err)
	}

	s.logger.Infow(
		"script_finished",
		"stage", s.cfg.Name,
		"script", script.Path,
		"duration", time.Since(start).Round(time.Millisecond).String(),
	)
	fmt.Fprintf(out, "\n✅ %s completed successfully\n", script.Title)
	return nil
}

var _ Stage = (*ScriptStage)(nil)
