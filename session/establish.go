package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	dphttp "github.com/ONSdigital/dp-net/v2/http"
	"github.com/ONSdigital/log.go/v2/log"
)

//go:generate mockgen -destination mocks/mocks.go -package mocks github.com/ONSdigital/dp-fileshare-steps/session Doer

// LoginPath is the login page relative to a server base URL.
const LoginPath = "index.php/login"

var ErrRequestTokenNotFound = errors.New("no request token found in login response")

// Doer executes HTTP requests. dp-net's http.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// ClientFactory returns a Doer that stores and sends cookies through jar.
type ClientFactory func(jar http.CookieJar) Doer

// DefaultClientFactory builds a dp-net client that never retries.
func DefaultClientFactory(transport http.RoundTripper) ClientFactory {
	return func(jar http.CookieJar) Doer {
		return &dphttp.Client{
			HTTPClient: &http.Client{Jar: jar, Transport: transport},
		}
	}
}

// LoginError is returned when a login page request gets a 4xx or 5xx response.
type LoginError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("%s %s failed with status code %d", e.Method, e.URL, e.StatusCode)
}

// Establisher performs the web login round trip for a Session.
type Establisher struct {
	NewClient ClientFactory
}

func NewEstablisher(factory ClientFactory) *Establisher {
	return &Establisher{NewClient: factory}
}

// Establish logs s in against baseURL: the login page is fetched for a
// request token, the credentials are posted with it and the token carried by
// the post response becomes the session token.
func (e *Establisher) Establish(ctx context.Context, baseURL string, s *Session) error {
	loginURL := baseURL + LoginPath
	logData := log.Data{"user": s.UserID, "url": loginURL}
	log.Info(ctx, "establishing web session", logData)

	client := e.NewClient(s.Jar)

	token, err := e.fetchToken(ctx, client, loginURL)
	if err != nil {
		log.Error(ctx, "failed to fetch login page", err, logData)
		return err
	}

	form := url.Values{
		"user":         {s.UserID},
		"password":     {s.Password},
		"requesttoken": {token},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, loginURL, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	body, err := do(ctx, client, req)
	if err != nil {
		log.Error(ctx, "failed to log in", err, logData)
		return err
	}

	token = ExtractRequestToken(body)
	if token == "" {
		log.Warn(ctx, "login response carried no request token", logData)
		return ErrRequestTokenNotFound
	}

	s.RequestToken = token
	s.established = true
	return nil
}

// EstablishAnonymous fetches the login page without credentials so that the
// guest session holds a server session cookie and request token.
func (e *Establisher) EstablishAnonymous(ctx context.Context, baseURL string, s *Session) error {
	loginURL := baseURL + LoginPath
	log.Info(ctx, "establishing anonymous web session", log.Data{"url": loginURL})

	token, err := e.fetchToken(ctx, e.NewClient(s.Jar), loginURL)
	if err != nil {
		return err
	}

	s.Anonymous = true
	s.RequestToken = token
	s.established = true
	return nil
}

func (e *Establisher) fetchToken(ctx context.Context, client Doer, loginURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loginURL, nil)
	if err != nil {
		return "", err
	}
	body, err := do(ctx, client, req)
	if err != nil {
		return "", err
	}
	return ExtractRequestToken(body), nil
}

func do(ctx context.Context, client Doer, req *http.Request) ([]byte, error) {
	resp, err := client.Do(ctx, req)
	if err != nil {
		return nil, err
	}
	defer closeBody(ctx, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, &LoginError{Method: req.Method, URL: req.URL.String(), StatusCode: resp.StatusCode}
	}
	return io.ReadAll(resp.Body)
}

func closeBody(ctx context.Context, closer io.Closer) {
	if err := closer.Close(); err != nil {
		log.Error(ctx, "error closing response body", err)
	}
}
