package main

import (
	"context"
	"flag"
	"os"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/features/steps"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

var (
	format = flag.String("format", "pretty", "godog output format")
	tags   = flag.String("tags", "", "only run scenarios matching the tag expression")
)

func main() {
	log.Namespace = "dp-fileshare-steps"
	ctx := context.Background()
	flag.Parse()

	cfg, err := config.Get()
	if err != nil {
		log.Fatal(ctx, "error getting config", err)
		os.Exit(1)
	}

	paths := flag.Args()
	if len(paths) == 0 {
		paths = []string{"features"}
	}

	log.Info(ctx, "runner config", log.Data{
		"servers":             cfg.Servers,
		"sharing_api_version": cfg.SharingAPIVersion,
		"legacy_dav_path":     cfg.UseLegacyDavPath,
		"fixtures_dir":        cfg.FixturesDir,
		"paths":               paths,
	})

	s := steps.NewSuite(cfg)
	status := godog.TestSuite{
		Name:                 "dp-fileshare-steps",
		ScenarioInitializer:  s.InitializeScenario,
		TestSuiteInitializer: s.InitializeTestSuite,
		Options: &godog.Options{
			Output: colors.Colored(os.Stdout),
			Format: *format,
			Paths:  paths,
			Tags:   *tags,
			Strict: true,
		},
	}.Run()

	if status > 0 {
		log.Warn(ctx, "feature run failed", log.Data{"status": status})
	}
	os.Exit(status)
}
