package main

import (
	"flag"
	"os"
	"testing"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/features/steps"
	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

var componentFlag = flag.Bool("component", false, "run the features against the configured servers")

func TestComponent(t *testing.T) {
	if !*componentFlag {
		t.Skip("component flag required to run component tests")
	}

	cfg, err := config.Get()
	if err != nil {
		t.Fatalf("error getting config: %v", err)
	}

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{"features"}
	}

	s := steps.NewSuite(cfg)
	status := godog.TestSuite{
		Name:                 "component_tests",
		ScenarioInitializer:  s.InitializeScenario,
		TestSuiteInitializer: s.InitializeTestSuite,
		Options: &godog.Options{
			Output: colors.Colored(os.Stdout),
			Format: "pretty",
			Paths:  paths,
		},
	}.Run()

	if status > 0 {
		t.Fail()
	}
}
