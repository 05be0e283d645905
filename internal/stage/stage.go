// Package stage holds the runnable units of the pipeline.
package stage

import (
	"context"
	"fmt"

	"go.uber.org/fx"
)

type Name string

const (
	Scrape    Name = "scrape"
	Process   Name = "process"
	Analyze   Name = "analyze"
	Dashboard Name = "dashboard"
)

// Order is the fixed execution order of a full run.
var Order = []Name{Scrape, Process, Analyze, Dashboard}

func ParseName(s string) (Name, error) {
	for _, n := range Order {
		if string(n) == s {
			return n, nil
		}
	}
	return "", fmt.Errorf("unknown stage %q", s)
}

// Stage is one opaque step of the pipeline.
type Stage interface {
	Name() Name
	Run(ctx context.Context) error
}

// StageError wraps every failure a stage reports.
type StageError struct {
	Stage Name
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

type NewRegistryParams struct {
	fx.In

	Stages []Stage `group:"stages"`
}

// Registry resolves planned stage names to stages.
type Registry map[Name]Stage

func NewRegistry(p NewRegistryParams) (Registry, error) {
	m := make(Registry, len(p.Stages))
	for _, s := range p.Stages {
		if _, exists := m[s.Name()]; exists {
			return nil, fmt.Errorf("duplicate stage name: %s", s.Name())
		}
		m[s.Name()] = s
	}
	return m, nil
}

func (r Registry) Get(name Name) (Stage, error) {
	s, ok := r[name]
	if !ok {
		return nil, fmt.Errorf("stage %s is not registered", name)
	}
	return s, nil
}
