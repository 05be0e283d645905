package fx

import (
	"path/filepath"
	"strings"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"startup-positioning-map/config"
	"startup-positioning-map/internal/bootstrap"
	"startup-positioning-map/internal/console"
	"startup-positioning-map/internal/envstatus"
	"startup-positioning-map/internal/events"
	"startup-positioning-map/internal/history"
	"startup-positioning-map/internal/pipeline"
	"startup-positioning-map/internal/runlock"
	"startup-positioning-map/internal/stage"
)

// Module builds a *pipeline.Runner. The caller supplies console.Streams,
// *config.Config and the logger; the history DB, Redis client and AMQP
// channel are optional.
var Module = fx.Options(
	fx.Provide(
		NewInspector,
		NewBootstrapper,
		fx.Annotate(stage.NewRegistry, fx.As(new(pipeline.StageSource))),
		fx.Annotate(runlock.NewLocker, fx.As(new(pipeline.Locker))),
		history.NewStore,
		events.NewPublisher,
		NewRunner,
		fx.Annotate(NewObservers, fx.ResultTags(`group:"observers,flatten"`)),
	),
	AsStage(NewScrapeStage),
	AsStage(NewProcessStage),
	AsStage(NewAnalyzeStage),
	AsStage(NewDashboardStage),
)

// Unattended is for processes that run pipelines in the background, such
// as the server. Nobody can answer a bootstrap prompt there, so the failure
// policy is forced to fail.
var Unattended = fx.Options(
	fx.Supply(console.Unattended()),
	fx.Decorate(ForceFailPolicy),
)

func ForceFailPolicy(cfg *config.Config) *config.Config {
	if cfg.Pipeline.FailurePolicy == config.FailurePolicyFail {
		return cfg
	}
	c := *cfg
	c.Pipeline.FailurePolicy = config.FailurePolicyFail
	return &c
}

// AsStage adds constructor's result to the "stages" group.
func AsStage(constructor any) fx.Option {
	return fx.Provide(
		fx.Annotate(
			constructor,
			fx.As(new(stage.Stage)),
			fx.ResultTags(`group:"stages"`),
		),
	)
}

// NewObservers returns the run observers that are configured.
func NewObservers(store *history.Store, pub *events.Publisher, logger *zap.SugaredLogger) []pipeline.Observer {
	var out []pipeline.Observer
	if store.Enabled() {
		out = append(out, store)
	} else {
		logger.Infow("history_disabled")
	}
	if pub.Enabled() {
		out = append(out, pub)
	}
	return out
}

func NewInspector(cfg *config.Config, logger *zap.SugaredLogger) *envstatus.Inspector {
	env := cfg.Environment
	return envstatus.NewInspector(envstatus.InspectorConfig{
		ProjectDir:       env.ProjectDir,
		VenvDir:          env.VenvDir,
		RequirementsFile: env.RequirementsFile,
		PythonCmd:        env.PythonCmd,
		RequiredModules:  env.RequiredModules,
		BuildToolchain:   env.BuildToolchain,
		Logger:           logger,
	})
}

func NewBootstrapper(cfg *config.Config, p *envstatus.Inspector, streams console.Streams, logger *zap.SugaredLogger) pipeline.Bootstrapper {
	return bootstrap.New(bootstrap.Config{
		PythonCmd:        p.PythonCmd(),
		VenvDir:          p.VenvDir(),
		RequirementsFile: p.RequirementsFile(),
		MarkerPath:       p.MarkerPath(),
		FailurePolicy:    cfg.Pipeline.FailurePolicy,
		Streams:          streams,
		Logger:           logger,
	}, p)
}

type stageDeps struct {
	fx.In

	Cfg       *config.Config
	Inspector *envstatus.Inspector
	Streams   console.Streams
	Logger    *zap.SugaredLogger
}

func (d stageDeps) script(name stage.Name, scripts ...stage.Script) *stage.ScriptStage {
	return stage.NewScriptStage(stage.ScriptStageConfig{
		Name:    name,
		Python:  envstatus.DefaultVenvPython(d.Inspector.VenvDir()),
		WorkDir: d.Cfg.Environment.ProjectDir,
		Scripts: scripts,
		Streams: d.Streams,
		Logger:  d.Logger.With("stage", name),
	})
}

func NewScrapeStage(d stageDeps) *stage.ScriptStage {
	scripts := make([]stage.Script, 0, len(d.Cfg.Stages.ScrapeScripts))
	for _, path := range d.Cfg.Stages.ScrapeScripts {
		scripts = append(scripts, stage.Script{Path: path, Title: scrapeTitle(path)})
	}
	return d.script(stage.Scrape, scripts...)
}

func NewProcessStage(d stageDeps) *stage.ScriptStage {
	return d.script(stage.Process, stage.Script{Path: d.Cfg.Stages.ProcessScript, Title: "Processing AI startup data"})
}

func NewAnalyzeStage(d stageDeps) *stage.ScriptStage {
	return d.script(stage.Analyze, stage.Script{Path: d.Cfg.Stages.AnalyzeScript, Title: "Running clustering analysis"})
}

func NewDashboardStage(d stageDeps) *stage.DashboardStage {
	return stage.NewDashboardStage(stage.DashboardStageConfig{
		Python:  envstatus.DefaultVenvPython(d.Inspector.VenvDir()),
		App:     d.Cfg.Dashboard.App,
		Host:    d.Cfg.Dashboard.Host,
		Port:    d.Cfg.Dashboard.Port,
		WorkDir: d.Cfg.Environment.ProjectDir,
		Streams: d.Streams,
		Logger:  d.Logger.With("stage", stage.Dashboard),
	})
}

func scrapeTitle(path string) string {
	base := strings.ToLower(filepath.Base(path))
	switch {
	case strings.Contains(base, "crunchbase"):
		return "Scraping AI startups from Crunchbase"
	case strings.Contains(base, "producthunt"):
		return "Scraping AI products from Product Hunt"
	default:
		return "Running " + path
	}
}

type NewRunnerParams struct {
	fx.In

	Cfg          *config.Config
	Streams      console.Streams
	Logger       *zap.SugaredLogger
	Bootstrapper pipeline.Bootstrapper
	Locker       pipeline.Locker
	Stages       pipeline.StageSource
	Observers    []pipeline.Observer `group:"observers"`
}

func NewRunner(p NewRunnerParams) *pipeline.Runner {
	return pipeline.NewRunner(pipeline.RunnerConfig{
		FailFast:  p.Cfg.Pipeline.FailFast,
		Streams:   p.Streams,
		Logger:    p.Logger,
		Observers: p.Observers,
	}, p.Bootstrapper, p.Locker, p.Stages)
}
