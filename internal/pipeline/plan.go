package pipeline

import (
	"errors"
	"fmt"

	"startup-positioning-map/internal/stage"
)

// ErrConflictingFlags is returned for mode flag combinations that have no
// single meaning, such as two stage flags or --setup with a stage flag.
var ErrConflictingFlags = errors.New("conflicting mode flags")

type Mode string

const (
	ModeFull   Mode = "full"
	ModeSetup  Mode = "setup"
	ModeSingle Mode = "single"
	// ModeBatch runs every non-interactive stage; used for remote triggers.
	ModeBatch Mode = "batch"
)

// Flags mirrors the mode switches of the CLI.
type Flags struct {
	Setup     bool
	Scrape    bool
	Process   bool
	Analyze   bool
	Dashboard bool
	All       bool
}

func (f Flags) selected() []stage.Name {
	var out []stage.Name
	if f.Scrape {
		out = append(out, stage.Scrape)
	}
	if f.Process {
		out = append(out, stage.Process)
	}
	if f.Analyze {
		out = append(out, stage.Analyze)
	}
	if f.Dashboard {
		out = append(out, stage.Dashboard)
	}
	return out
}

type Plan struct {
	Mode   Mode
	Stages []stage.Name
}

// PlanFor maps the mode flags to a plan. No flags at all means a full run.
func PlanFor(f Flags) (Plan, error) {
	selected := f.selected()

	switch {
	case f.Setup && (f.All || len(selected) > 0):
		return Plan{}, fmt.Errorf("%w: --setup cannot be combined with other mode flags", ErrConflictingFlags)
	case f.All && len(selected) > 0:
		return Plan{}, fmt.Errorf("%w: --all cannot be combined with a stage flag", ErrConflictingFlags)
	case len(selected) > 1:
		return Plan{}, fmt.Errorf("%w: choose one of --scrape, --process, --analyze, --dashboard", ErrConflictingFlags)
	}

	switch {
	case f.Setup:
		return Plan{Mode: ModeSetup}, nil
	case len(selected) == 1:
		return Plan{Mode: ModeSingle, Stages: selected}, nil
	default:
		return Plan{Mode: ModeFull, Stages: append([]stage.Name(nil), stage.Order...)}, nil
	}
}

// SinglePlan runs exactly one named stage.
func SinglePlan(name stage.Name) Plan {
	return Plan{Mode: ModeSingle, Stages: []stage.Name{name}}
}

// BatchPlan is the full order without the foreground dashboard.
func BatchPlan() Plan {
	var names []stage.Name
	for _, n := range stage.Order {
		if n != stage.Dashboard {
			names = append(names, n)
		}
	}
	return Plan{Mode: ModeBatch, Stages: names}
}
