package dispatch

import (
	"context"
	"fmt"
	"strings"

	"github.com/ONSdigital/dp-fileshare-steps/session"
)

// SetCurrentUser makes user the active identity. Its password comes from the
// credential policy.
func (d *Dispatcher) SetCurrentUser(user string) {
	d.anonymous = false
	d.currentUser = user
	d.password = d.policy.PasswordFor(user)
}

func (d *Dispatcher) CurrentUser() string {
	return d.currentUser
}

// Anonymous reports whether web requests are sent as a guest.
func (d *Dispatcher) Anonymous() bool {
	return d.anonymous
}

// Auth returns the basic auth credentials of the active identity.
func (d *Dispatcher) Auth() (string, string) {
	return d.currentUser, d.password
}

// ActAsUser runs fn as user and restores the previous identity afterwards,
// whether fn fails or not.
func (d *Dispatcher) ActAsUser(user string, fn func() error) error {
	lastUser, lastAnonymous := d.currentUser, d.anonymous
	d.SetCurrentUser(user)
	defer func() {
		d.SetCurrentUser(lastUser)
		d.anonymous = lastAnonymous
	}()
	return fn()
}

func (d *Dispatcher) ActAsAdmin(fn func() error) error {
	return d.ActAsUser(d.policy.AdminUser, fn)
}

// UsingWebAsUser makes user the active identity and logs it in to the web
// front end, replacing any previous web session token of that user.
func (d *Dispatcher) UsingWebAsUser(ctx context.Context, user string) error {
	d.SetCurrentUser(user)
	sess := d.store().GetOrCreate(user)
	sess.Password = d.password
	return d.establisher.Establish(ctx, d.BaseURL(), sess)
}

// UsingWebAsGuest switches web requests to the anonymous session.
func (d *Dispatcher) UsingWebAsGuest(ctx context.Context) error {
	d.anonymous = true
	_, err := d.webSession(ctx)
	return err
}

// webSession returns the web session of the active identity, logging it in
// on first use.
func (d *Dispatcher) webSession(ctx context.Context) (*session.Session, error) {
	if d.anonymous {
		sess := d.store().Anonymous()
		if !sess.Established() {
			if err := d.establisher.EstablishAnonymous(ctx, d.BaseURL(), sess); err != nil {
				return nil, err
			}
		}
		return sess, nil
	}

	sess := d.store().GetOrCreate(d.currentUser)
	if !sess.Established() {
		sess.Password = d.password
		if err := d.establisher.Establish(ctx, d.BaseURL(), sess); err != nil {
			return nil, err
		}
	}
	return sess, nil
}

// store returns the sessions held against the active server.
func (d *Dispatcher) store() *session.Store {
	s, ok := d.sessions[d.baseURL]
	if !ok {
		s = session.NewStore()
		d.sessions[d.baseURL] = s
	}
	return s
}

// OnInstance makes the server registered as alias the target of requests.
func (d *Dispatcher) OnInstance(alias string) error {
	base, err := d.Server(alias)
	if err != nil {
		return err
	}
	d.instance = alias
	d.baseURL = base
	return nil
}

// Instance returns the alias of the active server.
func (d *Dispatcher) Instance() string {
	return d.instance
}

// Server returns the base URL registered for alias.
func (d *Dispatcher) Server(alias string) (string, error) {
	base, ok := d.servers[alias]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownServer, alias)
	}
	return base, nil
}

// BaseURL returns the active server URL with exactly one trailing slash.
func (d *Dispatcher) BaseURL() string {
	return strings.TrimRight(d.baseURL, "/") + "/"
}
