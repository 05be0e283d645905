package bootstrap

import (
	"strings"
)

// EnvironmentError means the environment could not be made ready. It aborts
// the run before any stage starts.
type EnvironmentError struct {
	Reason   string
	Problems []string
	Err      error
}

func (e *EnvironmentError) Error() string {
	var b strings.Builder
	b.WriteString("environment bootstrap failed: ")
	b.WriteString(e.Reason)
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	if len(e.Problems) > 0 {
		b.WriteString(" (")
		b.WriteString(strings.Join(e.Problems, "; "))
		b.WriteString(")")
	}
	return b.String()
}

func (e *EnvironmentError) Unwrap() error { return e.Err }
