package steps

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/ONSdigital/dp-fileshare-steps/dispatch"
	"github.com/ONSdigital/dp-fileshare-steps/fakeserver"
	"github.com/ONSdigital/dp-healthcheck/healthcheck"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ComponentTestSuite struct {
	suite.Suite
	ctx       context.Context
	local     *fakeserver.Server
	remote    *fakeserver.Server
	component *FileShareComponent
}

func (suite *ComponentTestSuite) SetupTest() {
	suite.ctx = context.Background()
	suite.local = fakeserver.New(fakeserver.Config{})
	suite.remote = fakeserver.New(fakeserver.Config{})

	cfg := testConfig(suite.local.URL, suite.remote.URL)
	component, err := NewFileShareComponent(cfg, &External{Config: cfg})
	require.NoError(suite.T(), err)
	suite.component = component
}

func (suite *ComponentTestSuite) TearDownTest() {
	suite.local.Close()
	suite.remote.Close()
}

func TestComponentTestSuite(t *testing.T) {
	suite.Run(t, new(ComponentTestSuite))
}

func users(requests []fakeserver.Request) []string {
	out := make([]string, 0, len(requests))
	for _, r := range requests {
		out = append(out, r.User)
	}
	return out
}

func (suite *ComponentTestSuite) TestEnsureUserExistsCreatesTheUserOnce() {
	server := suite.component.Server

	require.NoError(suite.T(), server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), server.EnsureUserExists(suite.ctx, "alice"))

	posts := suite.local.RequestsTo(http.MethodPost, "/ocs/v2.php/cloud/users")
	suite.Len(posts, 1)
	suite.Equal("admin", posts[0].User)

	gets := suite.local.RequestsTo(http.MethodGet, "/ocs/v2.php/cloud/users/alice")
	suite.Equal([]string{"admin", "alice", "admin"}, users(gets))

	suite.True(suite.local.UserExists("alice"))
	suite.Equal("alice-displayname", suite.local.DisplayName("alice"))
	suite.Equal("admin", suite.component.Dispatcher.CurrentUser())
}

func (suite *ComponentTestSuite) TestEnsureUserExistsLeavesExistingUsers() {
	suite.local.AddUser("bob", "123456")

	require.NoError(suite.T(), suite.component.Server.EnsureUserWithDisplayNameExists(suite.ctx, "bob", "Robert"))

	suite.Empty(suite.local.RequestsTo(http.MethodPost, "/ocs/v2.php/cloud/users"))
	suite.Equal("bob", suite.local.DisplayName("bob"))
	suite.NoError(suite.component.Server.TearDown(suite.ctx))
	suite.True(suite.local.UserExists("bob"))
}

func (suite *ComponentTestSuite) TestTearDownRemovesCreatedUsersAndGroups() {
	server := suite.component.Server
	suite.component.Dispatcher.SetCurrentUser("carol")

	require.NoError(suite.T(), server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), server.EnsureGroupExists(suite.ctx, "builders"))
	require.NoError(suite.T(), server.AddUserToGroup(suite.ctx, "alice", "builders"))
	suite.True(suite.local.InGroup("alice", "builders"))

	suite.NoError(server.TearDown(suite.ctx))

	suite.False(suite.local.UserExists("alice"))
	suite.False(suite.local.GroupExists("builders"))
	suite.True(suite.local.UserExists("admin"))

	deletes := suite.local.RequestsTo(http.MethodDelete, "/ocs/v2.php/cloud/")
	suite.Len(deletes, 2)
	suite.Equal("/ocs/v2.php/cloud/users/alice", deletes[0].Path)
	suite.Equal("/ocs/v2.php/cloud/groups/builders", deletes[1].Path)
	suite.Equal([]string{"admin", "admin"}, users(deletes))

	suite.Equal("carol", suite.component.Dispatcher.CurrentUser())
}

func (suite *ComponentTestSuite) TestTearDownReportsEveryFailure() {
	server := suite.component.Server
	require.NoError(suite.T(), server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), server.EnsureUserExists(suite.ctx, "bob"))

	// remove alice behind the component's back
	require.NoError(suite.T(), suite.component.Dispatcher.SendOCS(suite.ctx, http.MethodDelete, "cloud/users/alice", nil, dispatch.Options{}))

	err := server.TearDown(suite.ctx)
	suite.Error(err)
	suite.Contains(err.Error(), "cloud/users/alice")
	suite.False(suite.local.UserExists("bob"))

	suite.NoError(server.TearDown(suite.ctx), "tracked entities are forgotten after teardown")
}

func (suite *ComponentTestSuite) TestTearDownUsesTheInstanceUsersWereCreatedOn() {
	d := suite.component.Dispatcher
	require.NoError(suite.T(), d.OnInstance("remote"))
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "erin"))
	require.NoError(suite.T(), d.OnInstance("default"))

	suite.True(suite.remote.UserExists("erin"))
	suite.False(suite.local.UserExists("erin"))

	suite.NoError(suite.component.Server.TearDown(suite.ctx))
	suite.False(suite.remote.UserExists("erin"))
	suite.Equal("default", d.Instance())
}

func (suite *ComponentTestSuite) TestDeletedGroupsAreNotTornDown() {
	server := suite.component.Server
	require.NoError(suite.T(), server.EnsureGroupExists(suite.ctx, "temporary"))
	require.NoError(suite.T(), server.DeleteGroup(suite.ctx, "temporary"))

	suite.NoError(server.TearDown(suite.ctx))
}

func (suite *ComponentTestSuite) TestAssertNotExists() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), suite.local.WriteFile("alice", "/here.txt", []byte("here")))
	files := suite.component.Files

	suite.NoError(files.AssertNotExists(suite.ctx, "alice", "file", "/missing.txt"))

	err := files.AssertNotExists(suite.ctx, "alice", "file", "/here.txt")
	suite.EqualError(err, `file "/here.txt" expected to not exist (status code 200, expected 404)`)
}

func (suite *ComponentTestSuite) TestAssertExists() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), suite.local.Mkdir("alice", "/docs"))
	files := suite.component.Files

	suite.NoError(files.AssertExists(suite.ctx, "alice", "folder", "/docs"))
	suite.NoError(files.AssertExists(suite.ctx, "alice", "entry", "/docs"))
	suite.Error(files.AssertExists(suite.ctx, "alice", "file", "/docs"))
	suite.EqualError(files.AssertExists(suite.ctx, "alice", "file", "/nope"), `file "/nope" expected to exist`)
}

func (suite *ComponentTestSuite) TestUploadFile() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))

	require.NoError(suite.T(), suite.component.Files.UploadFile(suite.ctx, "alice", "welcome.txt", "/my file.txt"))

	suite.Equal(http.StatusCreated, suite.component.Dispatcher.LastResponse().StatusCode)
	suite.Equal("alice", suite.component.Dispatcher.CurrentUser())
	content, err := suite.local.ReadFile("alice", "/my file.txt")
	suite.NoError(err)
	suite.Equal("Hello from the file share", string(content))

	puts := suite.local.RequestsTo(http.MethodPut, "/remote.php/dav/files/alice/")
	suite.Len(puts, 1)
	suite.Equal("alice", puts[0].User)
}

func (suite *ComponentTestSuite) TestFileStepsLeaveTheUserActive() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))
	files := suite.component.Files
	d := suite.component.Dispatcher

	require.NoError(suite.T(), files.CreateFolder(suite.ctx, "alice", "/docs"))
	suite.Equal("alice", d.CurrentUser())
	suite.Equal(http.StatusCreated, d.LastResponse().StatusCode)

	d.SetCurrentUser("admin")
	require.NoError(suite.T(), files.AssertExists(suite.ctx, "alice", "folder", "/docs"))
	suite.Equal("alice", d.CurrentUser())

	d.SetCurrentUser("admin")
	require.NoError(suite.T(), files.DeleteFile(suite.ctx, "alice", "/docs"))
	suite.Equal("alice", d.CurrentUser())

	d.SetCurrentUser("admin")
	require.NoError(suite.T(), files.AssertNotExists(suite.ctx, "alice", "folder", "/docs"))
	suite.Equal("alice", d.CurrentUser())

	require.NoError(suite.T(), d.SendOCS(suite.ctx, http.MethodGet, "cloud/capabilities", nil, dispatch.Options{}))
	ocs := suite.local.RequestsTo(http.MethodGet, "/ocs/v2.php/cloud/capabilities")
	require.Len(suite.T(), ocs, 1)
	suite.Equal("alice", ocs[0].User)

	mkcol := suite.local.RequestsTo("MKCOL", "/remote.php/dav/files/alice/")
	require.Len(suite.T(), mkcol, 1)
	suite.Equal("alice", mkcol[0].User)
	suite.Equal([]string{"alice"}, users(suite.local.RequestsTo(http.MethodDelete, "/remote.php/dav/files/alice/")))
}

func (suite *ComponentTestSuite) TestUploadFileFromAMissingSource() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))

	err := suite.component.Files.UploadFile(suite.ctx, "alice", "missing.txt", "/x.txt")
	suite.Error(err)
	suite.Empty(suite.local.RequestsTo(http.MethodPut, "/remote.php/dav/files/alice/"))
}

func (suite *ComponentTestSuite) TestCreateShareNormalisesTheExpireDate() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))
	require.NoError(suite.T(), suite.local.WriteFile("alice", "/welcome.txt", []byte("hi")))

	y, m, d := time.Now().AddDate(1, 0, 0).Date()
	now := time.Date(y, m, d, 12, 0, 0, 0, time.Local)
	sharing := suite.component.Sharing
	sharing.now = func() time.Time { return now }

	err := sharing.CreateShareAs(suite.ctx, "alice", map[string]string{
		"path":       "/welcome.txt",
		"shareType":  "3",
		"expireDate": "+1 week",
	})
	require.NoError(suite.T(), err)

	expected := now.AddDate(0, 0, 7).Format("2006-01-02")
	suite.Equal(expected+" 00:00:00", sharing.LastShare().Field("expiration"))
	suite.NotEmpty(sharing.LastShare().ID())

	err = sharing.UpdateLastShare(suite.ctx, map[string]string{"expireDate": "tomorrow"})
	require.NoError(suite.T(), err)
	suite.Equal(now.AddDate(0, 0, 1).Format("2006-01-02")+" 00:00:00", sharing.LastShare().Field("expiration"))
}

func (suite *ComponentTestSuite) TestCreateShareFailuresAreKept() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "alice"))
	sharing := suite.component.Sharing
	suite.component.Dispatcher.SetCurrentUser("alice")

	suite.NoError(sharing.CreateShare(suite.ctx, map[string]string{"path": "/nope", "shareType": "0"}))
	suite.Nil(sharing.LastShare())
	suite.Equal(http.StatusNotFound, suite.component.Dispatcher.LastResponse().StatusCode)

	err := sharing.CreateShareAs(suite.ctx, "alice", map[string]string{"path": "/nope", "shareType": "0"})
	suite.Error(err)
	suite.Contains(err.Error(), "Failed to create the share")
}

func (suite *ComponentTestSuite) TestLastShareIsRequired() {
	sharing := suite.component.Sharing

	suite.ErrorIs(sharing.UpdateLastShare(suite.ctx, map[string]string{"note": "x"}), ErrNoLastShare)
	suite.ErrorIs(sharing.DeleteLastShare(suite.ctx), ErrNoLastShare)
	suite.ErrorIs(sharing.SaveLastShare("x"), ErrNoLastShare)
	suite.ErrorIs(sharing.RestoreLastShare("x"), ErrUnknownShare)
}

func (suite *ComponentTestSuite) TestAcceptWithoutPendingShares() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "bob"))

	err := suite.component.Sharing.AcceptPendingShare(suite.ctx, "bob")
	suite.Error(err)
	suite.Contains(err.Error(), "No pending share found")
	suite.Equal("bob", suite.component.Dispatcher.CurrentUser())
}

func (suite *ComponentTestSuite) TestAcceptPendingShare() {
	require.NoError(suite.T(), suite.component.Server.EnsureUserExists(suite.ctx, "bob"))
	suite.local.AddPendingShare("bob", "alice", "https://remote.example", "shared.txt")

	suite.NoError(suite.component.Sharing.AcceptPendingShare(suite.ctx, "bob"))

	pending := suite.local.PendingShares("bob")
	require.Len(suite.T(), pending, 1)
	suite.True(pending[0].Accepted)
}

func (suite *ComponentTestSuite) TestCheckInstance() {
	state, err := suite.component.Server.CheckInstance(suite.ctx, "remote")
	suite.NoError(err)
	suite.Equal(healthcheck.StatusOK, state.Status())

	_, err = suite.component.Server.CheckInstance(suite.ctx, "elsewhere")
	suite.ErrorIs(err, dispatch.ErrUnknownServer)
}

func TestShareID(t *testing.T) {
	assert.Equal(t, "12", Share{"id": "12"}.ID())
	assert.Equal(t, "", Share{}.ID())
	assert.Equal(t, "1", Share{"share_type": 1}.Field("share_type"))
}
