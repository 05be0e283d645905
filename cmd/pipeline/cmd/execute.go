package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/stage"
)

const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitEnvironment = 3
)

var errUsage = errors.New("usage")

// exitError carries an explicit exit code for failures that are already
// reported to the operator.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd()
	root.SetOut(os.Stdout)
	root.SetErr(os.Stderr)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	report(root.ErrOrStderr(), err)
	if code == exitUsage && err != nil && strings.HasPrefix(err.Error(), "unknown command") {
		_ = root.Help()
	}
	return code
}

func exitCode(err error) int {
	var (
		exitErr *exitError
		cfgErr  *config.ValidationError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &exitErr):
		return exitErr.code
	case errors.Is(err, errUsage),
		errors.Is(err, pipeline.ErrConflictingFlags),
		errors.As(err, &cfgErr),
		strings.HasPrefix(err.Error(), "unknown command"):
		return exitUsage
	case pipeline.IsEnvironmentError(err):
		return exitEnvironment
	default:
		return exitFailure
	}
}

// report prints err unless the operator has already seen it: stage
// failures are in the run summary and interrupts need no message.
func report(w io.Writer, err error) {
	var stageErr *stage.StageError
	if err == nil || err == errUsage || errors.Is(err, context.Canceled) || errors.As(err, &stageErr) {
		return
	}
	fmt.Fprintln(w, "ERROR:", err)
}
