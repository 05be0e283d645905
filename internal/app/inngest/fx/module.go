package fx

import (
	"startup-positioning-map/config"
	"startup-positioning-map/internal/app/inngest"
	"startup-positioning-map/internal/app/inngest/pipelinerun"
	pkginngest "startup-positioning-map/internal/pkg/inngest"
	"startup-positioning-map/internal/router"

	"github.com/inngest/inngestgo"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module serves Inngest functions and the run trigger. It needs the
// pipeline module for *pipeline.Runner.
var Module = fx.Options(
	fx.Provide(
		pkginngest.NewInngestClient,
		pipelinerun.NewPipelineRunFunction,
	),
	fx.Invoke(registerFunctions),
	router.AsRoute(inngest.NewServeHandler),
	router.AsRoute(inngest.NewTriggerHandler),
)

func registerFunctions(
	cfg *config.Config,
	client inngestgo.Client,
	runFunc *pipelinerun.PipelineRunFunction,
	logger *zap.SugaredLogger,
) error {
	if !pkginngest.Enabled(cfg) {
		logger.Infow("inngest_disabled", "reason", "missing INNGEST_APP_ID")
		return nil
	}

	_, err := inngestgo.CreateFunction(
		client,
		inngestgo.FunctionOpts{
			ID:      "pipeline-run",
			Retries: inngestgo.IntPtr(0),
		},
		inngestgo.EventTrigger(pipelinerun.RunRequestedEventName, nil),
		runFunc.Handle,
	)
	if err != nil {
		logger.Errorw("❌ failed to create inngest pipeline function", "err", err.Error())
		return err
	}

	logger.Infow("inngest_enabled",
		"path", pkginngest.ServePath(cfg),
		"event", pipelinerun.RunRequestedEventName,
	)
	return nil
}
