package steps

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ONSdigital/dp-fileshare-steps/dispatch"
	"github.com/ONSdigital/dp-fileshare-steps/session"
	"github.com/ONSdigital/dp-healthcheck/healthcheck"
	"github.com/ONSdigital/log.go/v2/log"
	"github.com/hashicorp/go-multierror"
)

// createdEntity is a user or group created by a scenario, with the server it
// was created on.
type createdEntity struct {
	instance string
	id       string
}

// ServerComponent provisions users and groups on the servers under test and
// removes them again when the scenario ends.
type ServerComponent struct {
	d *dispatch.Dispatcher

	createdUsers  []createdEntity
	createdGroups []createdEntity
}

func NewServerComponent(d *dispatch.Dispatcher) *ServerComponent {
	return &ServerComponent{d: d}
}

// EnsureUserExists creates user with the default display name unless it
// already exists.
func (c *ServerComponent) EnsureUserExists(ctx context.Context, user string) error {
	return c.EnsureUserWithDisplayNameExists(ctx, user, user+"-displayname")
}

// EnsureUserWithDisplayNameExists creates user as the admin unless it already
// exists, then logs in once as the new user so its home is set up.
func (c *ServerComponent) EnsureUserWithDisplayNameExists(ctx context.Context, user, displayName string) error {
	exists, err := c.userExists(ctx, user)
	if err != nil || exists {
		return err
	}

	body := map[string]string{
		"userid":      user,
		"displayName": displayName,
		"password":    c.d.Policy().PasswordFor(user),
	}
	err = c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodPost, "cloud/users", body, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to create user")
	})
	if err != nil {
		return err
	}
	c.createdUsers = append(c.createdUsers, createdEntity{instance: c.d.Instance(), id: user})

	return c.d.ActAsUser(user, func() error {
		if err := c.d.SendOCS(ctx, http.MethodGet, "cloud/users/"+url.PathEscape(user), nil, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to do first login")
	})
}

func (c *ServerComponent) userExists(ctx context.Context, user string) (bool, error) {
	var exists bool
	err := c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodGet, "cloud/users/"+url.PathEscape(user), nil, dispatch.Options{}); err != nil {
			return err
		}
		exists = c.d.LastResponse().StatusCode == http.StatusOK
		return nil
	})
	return exists, err
}

// SetUserDisplayName changes the display name of an existing user.
func (c *ServerComponent) SetUserDisplayName(ctx context.Context, user, displayName string) error {
	body := map[string]string{"key": "displayname", "value": displayName}
	return c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodPut, "cloud/users/"+url.PathEscape(user), body, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to set display name of user %s", user)
	})
}

// EnsureGroupExists creates group unless it already exists.
func (c *ServerComponent) EnsureGroupExists(ctx context.Context, group string) error {
	path := "cloud/groups/" + url.PathEscape(group)
	return c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodGet, path, nil, dispatch.Options{}); err != nil {
			return err
		}
		if c.d.LastResponse().StatusCode == http.StatusOK {
			return nil
		}

		if err := c.d.SendOCS(ctx, http.MethodPost, "cloud/groups", map[string]string{"groupid": group}, dispatch.Options{}); err != nil {
			return err
		}
		if c.d.LastResponse().StatusCode == http.StatusOK {
			c.createdGroups = append(c.createdGroups, createdEntity{instance: c.d.Instance(), id: group})
		}

		if err := c.d.SendOCS(ctx, http.MethodGet, path, nil, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to create group %s", group)
	})
}

func (c *ServerComponent) AddUserToGroup(ctx context.Context, user, group string) error {
	return c.changeMembership(ctx, http.MethodPost, user, group)
}

func (c *ServerComponent) RemoveUserFromGroup(ctx context.Context, user, group string) error {
	return c.changeMembership(ctx, http.MethodDelete, user, group)
}

func (c *ServerComponent) changeMembership(ctx context.Context, method, user, group string) error {
	path := "cloud/users/" + url.PathEscape(user) + "/groups"
	return c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, method, path, map[string]string{"groupid": group}, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to change membership of %s in group %s", user, group)
	})
}

// DeleteGroup removes group from the active server. A group deleted this way
// is no longer removed on teardown.
func (c *ServerComponent) DeleteGroup(ctx context.Context, group string) error {
	err := c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodDelete, "cloud/groups/"+url.PathEscape(group), nil, dispatch.Options{}); err != nil {
			return err
		}
		return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to delete group %s", group)
	})
	if err != nil {
		return err
	}

	deleted := createdEntity{instance: c.d.Instance(), id: group}
	groups := c.createdGroups[:0]
	for _, g := range c.createdGroups {
		if g != deleted {
			groups = append(groups, g)
		}
	}
	c.createdGroups = groups
	return nil
}

// TearDown deletes the users and then the groups created by the scenario.
// Every deletion is attempted and the failures are returned together. The
// active identity and server are left as they were.
func (c *ServerComponent) TearDown(ctx context.Context) error {
	var result *multierror.Error

	instance := c.d.Instance()
	defer func() {
		if err := c.d.OnInstance(instance); err != nil {
			log.Error(ctx, "failed to restore instance after teardown", err, log.Data{"instance": instance})
		}
	}()

	admin := c.d.Policy().AdminUser
	for _, u := range c.createdUsers {
		if u.id == admin {
			continue
		}
		result = multierror.Append(result, c.deleteEntity(ctx, u, "cloud/users/"))
	}
	for _, g := range c.createdGroups {
		result = multierror.Append(result, c.deleteEntity(ctx, g, "cloud/groups/"))
	}
	c.createdUsers = nil
	c.createdGroups = nil

	return result.ErrorOrNil()
}

func (c *ServerComponent) deleteEntity(ctx context.Context, e createdEntity, prefix string) error {
	logData := log.Data{"instance": e.instance, "id": e.id, "path": prefix}
	if err := c.d.OnInstance(e.instance); err != nil {
		return err
	}

	err := c.d.ActAsAdmin(func() error {
		if err := c.d.SendOCS(ctx, http.MethodDelete, prefix+url.PathEscape(e.id), nil, dispatch.Options{}); err != nil {
			return err
		}
		if code := c.d.LastResponse().StatusCode; code != http.StatusOK {
			return fmt.Errorf("deleting %s%s on %s: unexpected status code %d", prefix, e.id, e.instance, code)
		}
		return nil
	})
	if err != nil {
		log.Warn(ctx, "teardown deletion failed", logData)
		return err
	}
	log.Info(ctx, "teardown deletion succeeded", logData)
	return nil
}

type serverStatus struct {
	Installed     bool   `json:"installed"`
	Maintenance   bool   `json:"maintenance"`
	VersionString string `json:"versionstring"`
}

// InstanceChecker returns a health checker that reads the status endpoint of
// the server registered as alias.
func (c *ServerComponent) InstanceChecker(alias string) healthcheck.Checker {
	client := session.DefaultClientFactory(c.d.Transport())(nil)

	return func(ctx context.Context, state *healthcheck.CheckState) error {
		base, err := c.d.Server(alias)
		if err != nil {
			return err
		}
		statusURL := base
		if statusURL == "" || statusURL[len(statusURL)-1] != '/' {
			statusURL += "/"
		}
		statusURL += "status.php"

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
		if err != nil {
			return err
		}
		resp, err := client.Do(ctx, req)
		if err != nil {
			return state.Update(healthcheck.StatusCritical, err.Error(), 0)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return state.Update(healthcheck.StatusCritical, fmt.Sprintf("status endpoint returned %d", resp.StatusCode), resp.StatusCode)
		}

		var status serverStatus
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return state.Update(healthcheck.StatusCritical, "invalid status response: "+err.Error(), resp.StatusCode)
		}
		switch {
		case !status.Installed:
			return state.Update(healthcheck.StatusCritical, "server is not installed", resp.StatusCode)
		case status.Maintenance:
			return state.Update(healthcheck.StatusWarning, "server is in maintenance mode", resp.StatusCode)
		}
		return state.Update(healthcheck.StatusOK, "server "+status.VersionString+" is available", resp.StatusCode)
	}
}

// CheckInstance runs the instance checker of alias once and returns its state.
func (c *ServerComponent) CheckInstance(ctx context.Context, alias string) (*healthcheck.CheckState, error) {
	state := healthcheck.NewCheckState(alias)
	if err := c.InstanceChecker(alias)(ctx, state); err != nil {
		return nil, err
	}
	return state, nil
}
