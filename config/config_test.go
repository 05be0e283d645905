package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig(NewViper())
	require.NoError(t, err)

	require.Equal(t, "venv", cfg.Environment.VenvDir)
	require.Equal(t, "python3", cfg.Environment.PythonCmd)
	require.Equal(t, []string{"requests", "pandas", "streamlit", "sklearn"}, cfg.Environment.RequiredModules)
	require.Equal(t, FailurePolicyFail, cfg.Pipeline.FailurePolicy)
	require.False(t, cfg.Pipeline.FailFast)
	require.Equal(t, 8501, cfg.Dashboard.Port)
	require.Equal(t, []string{"scraper/crunchbase_scraper.py", "scraper/producthunt_scraper.py"}, cfg.Stages.ScrapeScripts)
	require.Equal(t, 30*time.Minute, cfg.RunLock.TTL)
	require.Equal(t, "pipeline.history.v1", cfg.RabbitMQ.Queue)
	require.Equal(t, 10, cfg.RabbitMQ.Prefetch)
	require.Empty(t, cfg.Environment.BuildToolchain)
	require.True(t, cfg.History.Enabled)
}

func TestNewConfig_RejectsUnknownFailurePolicy(t *testing.T) {
	v := NewViper()
	v.Set("BOOTSTRAP_FAILURE_POLICY", "retry")

	_, err := NewConfig(v)
	require.Error(t, err)

	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
}

func TestNewConfig_RejectsInvalidDashboardPort(t *testing.T) {
	v := NewViper()
	v.Set("DASHBOARD_PORT", 70000)

	_, err := NewConfig(v)
	require.Error(t, err)
}

func TestNewConfig_PromptPolicyAndLists(t *testing.T) {
	v := NewViper()
	v.Set("BOOTSTRAP_FAILURE_POLICY", " Prompt ")
	v.Set("BUILD_TOOLCHAIN", "none")
	v.Set("SCRAPE_SCRIPTS", " a.py , ,b.py")

	cfg, err := NewConfig(v)
	require.NoError(t, err)
	require.Equal(t, FailurePolicyPrompt, cfg.Pipeline.FailurePolicy)
	require.Empty(t, cfg.Environment.BuildToolchain)
	require.Equal(t, []string{"a.py", "b.py"}, cfg.Stages.ScrapeScripts)
}

func TestNewConfig_ToolchainFromEnv(t *testing.T) {
	t.Setenv("BUILD_TOOLCHAIN", "cc, clang")
	cfg, err := NewConfig(NewViper())
	require.NoError(t, err)
	require.Equal(t, []string{"cc", "clang"}, cfg.Environment.BuildToolchain)

	t.Setenv("BUILD_TOOLCHAIN", "")
	cfg, err = NewConfig(NewViper())
	require.NoError(t, err)
	require.Empty(t, cfg.Environment.BuildToolchain)

	vp := NewViper()
	vp.SetDefault("BUILD_TOOLCHAIN", "gcc")
	t.Setenv("BUILD_TOOLCHAIN", "NONE")
	cfg, err = NewConfig(vp)
	require.NoError(t, err)
	require.Empty(t, cfg.Environment.BuildToolchain)
}
