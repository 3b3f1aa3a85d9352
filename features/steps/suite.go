package steps

import (
	"context"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/cucumber/godog"
)

// Suite registers the file-sharing steps on every scenario of a godog run.
type Suite struct {
	Config *config.Config
	deps   *External
}

func NewSuite(cfg *config.Config) *Suite {
	return &Suite{Config: cfg}
}

func (s *Suite) InitializeTestSuite(ctx *godog.TestSuiteContext) {
	ctx.BeforeSuite(func() {
		log.Namespace = "dp-fileshare-steps"

		deps, err := NewExternal(context.Background(), s.Config)
		if err != nil {
			log.Fatal(context.Background(), "failed to create external dependencies", err)
			panic(err)
		}
		s.deps = deps
	})
}

func (s *Suite) InitializeScenario(ctx *godog.ScenarioContext) {
	if s.deps == nil {
		s.deps = &External{Config: s.Config}
	}

	component, err := NewFileShareComponent(s.Config, s.deps)
	if err != nil {
		log.Fatal(context.Background(), "failed to create file share component", err)
		panic(err)
	}

	ctx.Before(func(ctx context.Context, sc *godog.Scenario) (context.Context, error) {
		log.Info(ctx, "starting scenario", log.Data{"scenario": sc.Name})
		return ctx, nil
	})

	ctx.After(func(ctx context.Context, sc *godog.Scenario, err error) (context.Context, error) {
		if closeErr := component.Close(ctx); closeErr != nil {
			log.Error(ctx, "failed to clean up scenario", closeErr, log.Data{"scenario": sc.Name})
			return ctx, closeErr
		}
		return ctx, nil
	})

	component.RegisterSteps(ctx)
}
