package steps

import (
	"context"
	"fmt"
	"strconv"

	componenttest "github.com/ONSdigital/dp-component-test"
	"github.com/ONSdigital/dp-fileshare-steps/dispatch"
	"github.com/ONSdigital/dp-fileshare-steps/response"
	"github.com/ONSdigital/dp-healthcheck/healthcheck"
	"github.com/cucumber/godog"
	"github.com/rdumont/assistdog"
	"github.com/stretchr/testify/assert"
)

func (c *FileShareComponent) RegisterSteps(ctx *godog.ScenarioContext) {
	c.registerServerSteps(ctx)
	c.registerResponseSteps(ctx)
	c.registerFilesSteps(ctx)
	c.registerSharingSteps(ctx)
}

func (c *FileShareComponent) registerServerSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^on instance "([^"]*)"$`, c.onInstance)
	ctx.Step(`^the instance "([^"]*)" is available$`, c.theInstanceIsAvailable)
	ctx.Step(`^acting as user "([^"]*)"$`, c.usingWebAsUser)
	ctx.Step(`^as user "([^"]*)"$`, c.asUser)
	ctx.Step(`^user "([^"]*)" exists$`, c.Server.EnsureUserExists)
	ctx.Step(`^user "([^"]*)" with displayname "([^"]*)" exists$`, c.Server.EnsureUserWithDisplayNameExists)
	ctx.Step(`^user "([^"]*)" has displayname "([^"]*)"$`, c.Server.SetUserDisplayName)
	ctx.Step(`^Using web as user "([^"]*)"$`, c.usingWebAsUser)
	ctx.Step(`^Using web as guest$`, c.usingWebAsGuest)
	ctx.Step(`^group "([^"]*)" exists$`, c.Server.EnsureGroupExists)
	ctx.Step(`^group "([^"]*)" is deleted$`, c.Server.DeleteGroup)
	ctx.Step(`^user "([^"]*)" (?:is member of|belongs to) group "([^"]*)"$`, c.Server.AddUserToGroup)
	ctx.Step(`^user "([^"]*)" is not member of group "([^"]*)"$`, c.Server.RemoveUserFromGroup)
	ctx.Step(`^sending "([^"]*)" to web endpoint "([^"]*)"$`, c.sendingWebRequest)
	ctx.Step(`^sending "([^"]*)" to web endpoint "([^"]*)" with$`, c.sendingWebRequestWith)
	ctx.Step(`^sending "([^"]*)" to OCS endpoint "([^"]*)"$`, c.sendingOCSRequest)
	ctx.Step(`^sending "([^"]*)" to OCS endpoint "([^"]*)" with$`, c.sendingOCSRequestWith)
}

func (c *FileShareComponent) registerResponseSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^the OCS status code should be "([^"]*)"$`, c.theOCSStatusCodeShouldBe)
	ctx.Step(`^the HTTP status code should be "?(\d+)"?$`, c.theHTTPStatusCodeShouldBe)
	ctx.Step(`^the (?:HTTP |response )?Content-Type should be "([^"]*)"$`, c.theContentTypeShouldBe)
	ctx.Step(`^the response should be a JSON array with the following mandatory values$`, c.theResponseShouldHaveMandatoryValues)
	ctx.Step(`^the response should be a JSON array with a length of "?(\d+)"?$`, c.theResponseShouldHaveLength)
	ctx.Step(`^the JSON value at "([^"]*)" should be "([^"]*)"$`, c.theJSONValueAtShouldBe)
}

func (c *FileShareComponent) registerFilesSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^using (old|new) dav path$`, c.usingDavPath)
	ctx.Step(`^User "([^"]*)" uploads file "([^"]*)" to "([^"]*)"$`, c.Files.UploadFile)
	ctx.Step(`^User "([^"]*)" creates a folder "([^"]*)"$`, c.Files.CreateFolder)
	ctx.Step(`^User "([^"]*)" deletes file "([^"]*)"$`, c.Files.DeleteFile)
	ctx.Step(`^as "([^"]*)" the (file|folder|entry) "([^"]*)" does not exist$`, c.Files.AssertNotExists)
	ctx.Step(`^as "([^"]*)" the (file|folder|entry) "([^"]*)" exists$`, c.Files.AssertExists)
	ctx.Step(`^as "([^"]*)" the folder "([^"]*)" contains "?(\d+)"? entr(?:y|ies)$`, c.theFolderContainsEntries)
	ctx.Step(`^as "([^"]*)" the file "([^"]*)" has content "([^"]*)"$`, c.theFileHasContent)
}

func (c *FileShareComponent) registerSharingSteps(ctx *godog.ScenarioContext) {
	ctx.Step(`^using sharing API version "([^"]*)"$`, c.usingSharingAPIVersion)
	ctx.Step(`^as "([^"]*)" create a share with$`, c.asCreatingAShareWith)
	ctx.Step(`^creating a share with$`, c.creatingAShareWith)
	ctx.Step(`^Updating last share with$`, c.updatingLastShareWith)
	ctx.Step(`^deleting last share$`, c.Sharing.DeleteLastShare)
	ctx.Step(`^user "([^"]*)" accepts last share$`, c.Sharing.AcceptPendingShare)
	ctx.Step(`^save the last share data as "([^"]*)"$`, c.Sharing.SaveLastShare)
	ctx.Step(`^restore the last share data from "([^"]*)"$`, c.Sharing.RestoreLastShare)
	ctx.Step(`^the last share field "([^"]*)" should be "([^"]*)"$`, c.Sharing.AssertLastShareField)
	ctx.Step(`^the last share is publicly accessible$`, c.theLastShareIsPubliclyAccessible)
	ctx.Step(`^the last share is publicly accessible with password "([^"]*)"$`, c.theLastShareIsAccessibleWithPassword)
	ctx.Step(`^the last share publicly contains "([^"]*)"$`, c.theLastSharePubliclyContains)
}

func (c *FileShareComponent) onInstance(alias string) error {
	return c.Dispatcher.OnInstance(alias)
}

func (c *FileShareComponent) theInstanceIsAvailable(ctx context.Context, alias string) error {
	state, err := c.Server.CheckInstance(ctx, alias)
	if err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, healthcheck.StatusOK, state.Status(), "instance %s is not available: %s", alias, state.Message())
	return f.StepError()
}

func (c *FileShareComponent) asUser(user string) error {
	c.Dispatcher.SetCurrentUser(user)
	return nil
}

func (c *FileShareComponent) usingWebAsUser(ctx context.Context, user string) error {
	return c.Dispatcher.UsingWebAsUser(ctx, user)
}

func (c *FileShareComponent) usingWebAsGuest(ctx context.Context) error {
	return c.Dispatcher.UsingWebAsGuest(ctx)
}

func (c *FileShareComponent) sendingWebRequest(ctx context.Context, method, path string) error {
	return c.Dispatcher.SendWeb(ctx, method, path, nil)
}

func (c *FileShareComponent) sendingWebRequestWith(ctx context.Context, method, path string, table *godog.Table) error {
	data, err := assistdog.NewDefault().ParseMap(table)
	if err != nil {
		return err
	}
	return c.Dispatcher.SendWeb(ctx, method, path, data)
}

func (c *FileShareComponent) sendingOCSRequest(ctx context.Context, method, path string) error {
	return c.Dispatcher.SendOCS(ctx, method, path, nil, dispatch.Options{})
}

func (c *FileShareComponent) sendingOCSRequestWith(ctx context.Context, method, path string, table *godog.Table) error {
	data, err := assistdog.NewDefault().ParseMap(table)
	if err != nil {
		return err
	}
	return c.Dispatcher.SendOCS(ctx, method, path, data, dispatch.Options{})
}

func (c *FileShareComponent) theOCSStatusCodeShouldBe(code string) error {
	expected, err := strconv.Atoi(code)
	if err != nil {
		return fmt.Errorf("invalid OCS status code %q: %w", code, err)
	}
	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertOCSStatus(expected)
}

func (c *FileShareComponent) theHTTPStatusCodeShouldBe(expected int) error {
	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertStatus(expected)
}

func (c *FileShareComponent) theContentTypeShouldBe(expected string) error {
	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertContentType(expected)
}

// theResponseShouldHaveMandatoryValues reads a table with key and value
// columns.
func (c *FileShareComponent) theResponseShouldHaveMandatoryValues(table *godog.Table) error {
	rows, err := assistdog.NewDefault().ParseSlice(table)
	if err != nil {
		return err
	}
	expected := make([]response.KeyValue, 0, len(rows))
	for _, row := range rows {
		expected = append(expected, response.KeyValue{Key: row["key"], Value: row["value"]})
	}

	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertJSONHasFields(expected)
}

func (c *FileShareComponent) theResponseShouldHaveLength(expected int) error {
	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertJSONLength(expected)
}

func (c *FileShareComponent) theJSONValueAtShouldBe(expr, expected string) error {
	r, err := c.lastResponse()
	if err != nil {
		return err
	}
	return r.AssertJSONPath(expr, expected)
}

func (c *FileShareComponent) usingDavPath(version string) error {
	c.Files.UseLegacyDavPath(version == "old")
	return nil
}

func (c *FileShareComponent) theFolderContainsEntries(user, path string, expected int) error {
	entries, err := c.Files.ListFolder(user, path)
	if err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	assert.Len(f, entries, expected, "unexpected number of entries in folder %q", path)
	return f.StepError()
}

func (c *FileShareComponent) theFileHasContent(user, path, expected string) error {
	content, err := c.Files.ReadFile(user, path)
	if err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	assert.Equal(f, expected, string(content), "unexpected content of file %q", path)
	return f.StepError()
}

func (c *FileShareComponent) usingSharingAPIVersion(version string) error {
	c.Sharing.SetAPIVersion(version)
	return nil
}

func (c *FileShareComponent) asCreatingAShareWith(ctx context.Context, user string, table *godog.Table) error {
	fields, err := assistdog.NewDefault().ParseMap(table)
	if err != nil {
		return err
	}
	return c.Sharing.CreateShareAs(ctx, user, fields)
}

func (c *FileShareComponent) creatingAShareWith(ctx context.Context, table *godog.Table) error {
	fields, err := assistdog.NewDefault().ParseMap(table)
	if err != nil {
		return err
	}
	return c.Sharing.CreateShare(ctx, fields)
}

func (c *FileShareComponent) updatingLastShareWith(ctx context.Context, table *godog.Table) error {
	fields, err := assistdog.NewDefault().ParseMap(table)
	if err != nil {
		return err
	}
	return c.Sharing.UpdateLastShare(ctx, fields)
}

func (c *FileShareComponent) theLastShareIsPubliclyAccessible() error {
	return c.Sharing.AssertPublicShareHas("/", "")
}

func (c *FileShareComponent) theLastShareIsAccessibleWithPassword(password string) error {
	return c.Sharing.AssertPublicShareHas("/", password)
}

func (c *FileShareComponent) theLastSharePubliclyContains(path string) error {
	return c.Sharing.AssertPublicShareHas(path, "")
}
