package steps

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	componenttest "github.com/ONSdigital/dp-component-test"
	"github.com/ONSdigital/dp-fileshare-steps/dispatch"
	"github.com/ONSdigital/dp-fileshare-steps/reldate"
	"github.com/ONSdigital/dp-fileshare-steps/response"
	"github.com/stretchr/testify/assert"
)

const expireDateField = "expireDate"

var (
	ErrNoLastShare  = errors.New("no share has been created yet")
	ErrUnknownShare = errors.New("no share saved under that name")
)

// Share holds the OCS data of a share as returned by the server.
type Share map[string]interface{}

// ID returns the share id as text.
func (s Share) ID() string {
	return response.Stringify(s["id"])
}

func (s Share) Field(name string) string {
	return response.Stringify(s[name])
}

// SharingComponent creates and manages shares through the sharing API and
// remembers the last share created.
type SharingComponent struct {
	d          *dispatch.Dispatcher
	files      *FilesComponent
	apiVersion string
	now        func() time.Time

	lastShare Share
	saved     map[string]Share
}

func NewSharingComponent(d *dispatch.Dispatcher, files *FilesComponent, apiVersion string) *SharingComponent {
	c := &SharingComponent{
		d:     d,
		files: files,
		now:   time.Now,
		saved: map[string]Share{},
	}
	c.SetAPIVersion(apiVersion)
	return c
}

// SetAPIVersion selects the version of the sharing API. An empty version
// selects version 1.
func (c *SharingComponent) SetAPIVersion(version string) {
	if version == "" {
		version = "1"
	}
	c.apiVersion = version
}

// LastShare returns the last share created or updated, or nil.
func (c *SharingComponent) LastShare() Share {
	return c.lastShare
}

func (c *SharingComponent) sharingPath(endpoint string) string {
	return fmt.Sprintf("apps/files_sharing/api/v%s/", c.apiVersion) + strings.TrimLeft(endpoint, "/")
}

// CreateShareAs makes user the active identity and creates a share that must
// succeed.
func (c *SharingComponent) CreateShareAs(ctx context.Context, user string, fields map[string]string) error {
	c.d.SetCurrentUser(user)
	if err := c.CreateShare(ctx, fields); err != nil {
		return err
	}

	body, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return c.d.LastResponse().AssertStatus(http.StatusOK, "Failed to create the share: \n%s", body)
}

// CreateShare creates a share as the active identity. A successful share
// becomes the last share. Failures are only kept as the last response.
func (c *SharingComponent) CreateShare(ctx context.Context, fields map[string]string) error {
	fields, err := c.normalise(fields)
	if err != nil {
		return err
	}
	if err := c.d.SendOCS(ctx, http.MethodPost, c.sharingPath("shares"), fields, dispatch.Options{}); err != nil {
		return err
	}

	resp := c.d.LastResponse()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	return c.storeLastShare(resp)
}

// UpdateLastShare changes the fields of the last share, which must succeed.
func (c *SharingComponent) UpdateLastShare(ctx context.Context, fields map[string]string) error {
	if c.lastShare == nil {
		return ErrNoLastShare
	}
	fields, err := c.normalise(fields)
	if err != nil {
		return err
	}
	if err := c.d.SendOCS(ctx, http.MethodPut, c.sharingPath("shares/"+c.lastShare.ID()), fields, dispatch.Options{}); err != nil {
		return err
	}

	resp := c.d.LastResponse()
	if err := resp.AssertStatus(http.StatusOK, "Failed to update the share"); err != nil {
		return err
	}
	return c.storeLastShare(resp)
}

// DeleteLastShare deletes the last share. The outcome is left in the last
// response.
func (c *SharingComponent) DeleteLastShare(ctx context.Context) error {
	if c.lastShare == nil {
		return ErrNoLastShare
	}
	return c.d.SendOCS(ctx, http.MethodDelete, c.sharingPath("shares/"+c.lastShare.ID()), nil, dispatch.Options{})
}

// AcceptPendingShare makes user the active identity and accepts the first
// federated share waiting for that user on the active server.
func (c *SharingComponent) AcceptPendingShare(ctx context.Context, user string) error {
	c.d.SetCurrentUser(user)
	if err := c.d.SendOCS(ctx, http.MethodGet, c.sharingPath("remote_shares/pending"), nil, dispatch.Options{}); err != nil {
		return err
	}
	resp := c.d.LastResponse()
	if err := resp.AssertStatus(http.StatusOK); err != nil {
		return err
	}
	if err := resp.AssertOCSStatus(http.StatusOK); err != nil {
		return err
	}

	var pending []Share
	if err := resp.OCSData(&pending); err != nil {
		return err
	}
	f := &componenttest.ErrorFeature{}
	if !assert.NotEmpty(f, pending, "No pending share found") {
		return f.StepError()
	}

	id := pending[0].ID()
	if err := c.d.SendOCS(ctx, http.MethodPost, c.sharingPath("remote_shares/pending/"+id), nil, dispatch.Options{}); err != nil {
		return err
	}
	resp = c.d.LastResponse()
	if err := resp.AssertStatus(http.StatusOK); err != nil {
		return err
	}
	return resp.AssertOCSStatus(http.StatusOK)
}

// SaveLastShare remembers the last share under name.
func (c *SharingComponent) SaveLastShare(name string) error {
	if c.lastShare == nil {
		return ErrNoLastShare
	}
	c.saved[name] = c.lastShare
	return nil
}

// RestoreLastShare makes the share saved under name the last share again.
func (c *SharingComponent) RestoreLastShare(name string) error {
	s, ok := c.saved[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownShare, name)
	}
	c.lastShare = s
	return nil
}

// AssertLastShareField compares one field of the last share with expected.
func (c *SharingComponent) AssertLastShareField(field, expected string) error {
	if c.lastShare == nil {
		return ErrNoLastShare
	}
	f := &componenttest.ErrorFeature{}
	actual := c.lastShare.Field(field)
	assert.Equal(f, expected, actual, "Expected %s for share field %s got %s", expected, field, actual)
	return f.StepError()
}

// AssertPublicShareHas checks that path can be found below the node shared
// by the last link share, using the share token and password.
func (c *SharingComponent) AssertPublicShareHas(path, password string) error {
	if c.lastShare == nil {
		return ErrNoLastShare
	}
	token := c.lastShare.Field("token")
	if token == "" {
		return fmt.Errorf("share %s has no public token", c.lastShare.ID())
	}
	if _, err := c.files.PublicClient(token, password).Stat(path); err != nil {
		return fmt.Errorf("%q not accessible through public share %s: %w", path, c.lastShare.ID(), err)
	}
	return nil
}

// Reset forgets the last share and every saved share.
func (c *SharingComponent) Reset() {
	c.lastShare = nil
	c.saved = map[string]Share{}
}

func (c *SharingComponent) storeLastShare(resp *response.Response) error {
	var s Share
	if err := resp.OCSData(&s); err != nil {
		return err
	}
	c.lastShare = s
	return nil
}

// normalise returns a copy of fields with a relative expireDate resolved to
// a calendar date.
func (c *SharingComponent) normalise(fields map[string]string) (map[string]string, error) {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	if v, ok := out[expireDateField]; ok && v != "" {
		date, err := reldate.Normalize(v, c.now())
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", expireDateField, v, err)
		}
		out[expireDateField] = date
	}
	return out, nil
}
