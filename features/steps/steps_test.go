package steps

import (
	"os"
	"testing"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/fakeserver"
	"github.com/cucumber/godog"
	"github.com/cucumber/godog/colors"
)

func testConfig(local, remote string) *config.Config {
	return &config.Config{
		Servers: config.Servers{
			config.DefaultServer: local,
			"remote":             remote,
		},
		AdminUser:         "admin",
		AdminPassword:     "admin",
		TestPassword:      "123456",
		SharingAPIVersion: "1",
		FixturesDir:       "../fixtures",
		AwsRegion:         "eu-west-2",
	}
}

func TestFeatures(t *testing.T) {
	local := fakeserver.New(fakeserver.Config{})
	defer local.Close()
	remote := fakeserver.New(fakeserver.Config{})
	defer remote.Close()

	s := NewSuite(testConfig(local.URL, remote.URL))

	status := godog.TestSuite{
		Name:                 "fileshare_steps",
		ScenarioInitializer:  s.InitializeScenario,
		TestSuiteInitializer: s.InitializeTestSuite,
		Options: &godog.Options{
			Output:   colors.Colored(os.Stdout),
			Format:   "pretty",
			Paths:    []string{"../"},
			Strict:   true,
			TestingT: t,
		},
	}.Run()

	if status > 0 {
		t.Fail()
	}
}
