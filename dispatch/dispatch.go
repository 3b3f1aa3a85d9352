// Package dispatch sends requests to the file-sharing server on behalf of the
// identity that is currently active, and keeps the last response received.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/credentials"
	"github.com/ONSdigital/dp-fileshare-steps/response"
	"github.com/ONSdigital/dp-fileshare-steps/session"
	"github.com/ONSdigital/log.go/v2/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// OCSPrefix is prepended to every OCS endpoint path.
const OCSPrefix = "ocs/v2.php/"

var ErrUnknownServer = errors.New("unknown server alias")

// Options customise a single request.
type Options struct {
	// Headers are merged over the headers the request shape sets.
	Headers http.Header
	// Body is sent as is. It takes precedence over JSON.
	Body io.Reader
	// JSON is marshalled as the request body when Body is nil.
	JSON interface{}
}

// StatusError is returned by SendRaw for 4xx and 5xx responses.
type StatusError struct {
	Method   string
	URL      string
	Response *response.Response
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s %s: unexpected status code %d", e.Method, e.URL, e.Response.StatusCode)
}

// Dispatcher holds the active identity and server and issues raw, web and
// OCS requests with it. It is not safe for concurrent use.
type Dispatcher struct {
	servers   config.Servers
	instance  string
	baseURL   string
	transport http.RoundTripper

	currentUser string
	password    string
	anonymous   bool

	policy      credentials.Policy
	sessions    map[string]*session.Store
	establisher *session.Establisher
	newClient   session.ClientFactory

	last *response.Response
}

// New returns a Dispatcher on the default server acting as the admin user.
// A nil factory uses dp-net clients over transport.
func New(servers config.Servers, policy credentials.Policy, transport http.RoundTripper, factory session.ClientFactory) (*Dispatcher, error) {
	base, ok := servers[config.DefaultServer]
	if !ok {
		return nil, config.ErrNoDefaultServer
	}
	if factory == nil {
		factory = session.DefaultClientFactory(transport)
	}

	d := &Dispatcher{
		servers:     servers,
		instance:    config.DefaultServer,
		baseURL:     base,
		transport:   transport,
		policy:      policy,
		sessions:    map[string]*session.Store{},
		establisher: session.NewEstablisher(factory),
		newClient:   factory,
	}
	d.SetCurrentUser(policy.AdminUser)
	return d, nil
}

// NewFromConfig returns a Dispatcher for the servers and credentials in cfg.
func NewFromConfig(cfg *config.Config) (*Dispatcher, error) {
	var transport http.RoundTripper = http.DefaultTransport
	if cfg.OtelEnabled {
		transport = otelhttp.NewTransport(transport)
	}
	return New(cfg.Servers, credentials.FromConfig(cfg), transport, nil)
}

// SendRaw sends a request authenticated with basic auth. A 4xx or 5xx
// response is kept as the last response and also returned as a *StatusError.
func (d *Dispatcher) SendRaw(ctx context.Context, method, path string, opts Options) (*response.Response, error) {
	req, err := d.newRequest(ctx, method, d.url(path), opts)
	if err != nil {
		return nil, err
	}
	d.setBasicAuth(req)

	resp, err := d.do(ctx, "raw", d.newClient(nil), req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return resp, &StatusError{Method: method, URL: req.URL.String(), Response: resp}
	}
	return resp, nil
}

// SendWeb sends a JSON request the way the browser front end does: with the
// session cookies and request token of the current web session and without
// basic auth. The session is established first if needed. Error statuses are
// only recorded as the last response.
func (d *Dispatcher) SendWeb(ctx context.Context, method, path string, data interface{}) error {
	sess, err := d.webSession(ctx)
	if err != nil {
		return err
	}

	req, err := d.newRequest(ctx, method, d.url(path), Options{JSON: data})
	if err != nil {
		return err
	}
	req.Header.Set("requesttoken", sess.RequestToken)

	_, err = d.do(ctx, "web", d.newClient(sess.Jar), req)
	return err
}

// SendOCS sends a request to an OCS endpoint. path is relative to the OCS
// root. Error statuses are only recorded as the last response.
func (d *Dispatcher) SendOCS(ctx context.Context, method, path string, data interface{}, opts Options) error {
	if opts.Body == nil && opts.JSON == nil {
		opts.JSON = data
	}
	headers := http.Header{}
	headers.Set("OCS-APIREQUEST", "true")
	headers.Set("Accept", "application/json")
	for k, v := range opts.Headers {
		headers[http.CanonicalHeaderKey(k)] = v
	}
	opts.Headers = headers

	req, err := d.newRequest(ctx, method, d.url(OCSPrefix+strings.TrimLeft(path, "/")), opts)
	if err != nil {
		return err
	}
	d.setBasicAuth(req)

	_, err = d.do(ctx, "ocs", d.newClient(nil), req)
	return err
}

// LastResponse returns the response of the most recent request, or nil.
func (d *Dispatcher) LastResponse() *response.Response {
	return d.last
}

// Transport returns the round tripper requests are sent through, for clients
// that do not go through the dispatcher.
func (d *Dispatcher) Transport() http.RoundTripper {
	return d.transport
}

func (d *Dispatcher) Policy() credentials.Policy {
	return d.policy
}

func (d *Dispatcher) url(path string) string {
	return d.BaseURL() + strings.TrimLeft(path, "/")
}

func (d *Dispatcher) newRequest(ctx context.Context, method, url string, opts Options) (*http.Request, error) {
	body := opts.Body
	contentType := ""
	if body == nil && opts.JSON != nil {
		b, err := json.Marshal(opts.JSON)
		if err != nil {
			return nil, fmt.Errorf("encoding request body: %w", err)
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, values := range opts.Headers {
		req.Header.Del(k)
		for _, v := range values {
			req.Header.Add(k, v)
		}
	}
	return req, nil
}

func (d *Dispatcher) setBasicAuth(req *http.Request) {
	req.SetBasicAuth(d.Auth())
}

func (d *Dispatcher) do(ctx context.Context, shape string, client session.Doer, req *http.Request) (*response.Response, error) {
	logData := log.Data{
		"shape":  shape,
		"method": req.Method,
		"url":    req.URL.String(),
		"user":   d.currentUser,
	}

	resp, err := client.Do(ctx, req)
	if err != nil {
		log.Error(ctx, "request failed", err, logData)
		return nil, err
	}

	r, err := response.New(resp)
	if err != nil {
		log.Error(ctx, "failed to read response", err, logData)
		return nil, err
	}
	d.last = r

	logData["status_code"] = r.StatusCode
	log.Info(ctx, "request dispatched", logData)
	return r, nil
}
