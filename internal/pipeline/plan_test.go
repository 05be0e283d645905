package pipeline

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"startup-positioning-map/internal/stage"
)

func TestPlanFor(t *testing.T) {
	t.Parallel()

	full := []stage.Name{stage.Scrape, stage.Process, stage.Analyze, stage.Dashboard}

	cases := []struct {
		name   string
		flags  Flags
		mode   Mode
		stages []stage.Name
	}{
		{"no flags", Flags{}, ModeFull, full},
		{"all", Flags{All: true}, ModeFull, full},
		{"setup", Flags{Setup: true}, ModeSetup, nil},
		{"scrape", Flags{Scrape: true}, ModeSingle, []stage.Name{stage.Scrape}},
		{"process", Flags{Process: true}, ModeSingle, []stage.Name{stage.Process}},
		{"analyze", Flags{Analyze: true}, ModeSingle, []stage.Name{stage.Analyze}},
		{"dashboard", Flags{Dashboard: true}, ModeSingle, []stage.Name{stage.Dashboard}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plan, err := PlanFor(tc.flags)
			require.NoError(t, err)
			require.Equal(t, tc.mode, plan.Mode)
			require.Equal(t, tc.stages, plan.Stages)
		})
	}
}

func TestPlanFor_NoFlagsEqualsAll(t *testing.T) {
	t.Parallel()

	none, err := PlanFor(Flags{})
	require.NoError(t, err)
	all, err := PlanFor(Flags{All: true})
	require.NoError(t, err)
	require.Equal(t, all, none)
}

func TestPlanFor_ConflictingFlags(t *testing.T) {
	t.Parallel()

	cases := map[string]Flags{
		"two stages":         {Scrape: true, Analyze: true},
		"setup and stage":    {Setup: true, Dashboard: true},
		"setup and all":      {Setup: true, All: true},
		"all and stage":      {All: true, Process: true},
		"every stage flag":   {Scrape: true, Process: true, Analyze: true, Dashboard: true},
		"everything at once": {Setup: true, Scrape: true, All: true},
	}
	for name, flags := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := PlanFor(flags)
			require.True(t, errors.Is(err, ErrConflictingFlags), "got %v", err)
		})
	}
}

func TestPlanFor_PlansAreIndependent(t *testing.T) {
	t.Parallel()

	a, err := PlanFor(Flags{})
	require.NoError(t, err)
	a.Stages[0] = "mutated"

	b, err := PlanFor(Flags{})
	require.NoError(t, err)
	require.Equal(t, stage.Scrape, b.Stages[0])
	require.Equal(t, stage.Scrape, stage.Order[0])
}

func TestBatchPlan(t *testing.T) {
	t.Parallel()

	plan := BatchPlan()
	require.Equal(t, ModeBatch, plan.Mode)
	require.Equal(t, []stage.Name{stage.Scrape, stage.Process, stage.Analyze}, plan.Stages)
}
