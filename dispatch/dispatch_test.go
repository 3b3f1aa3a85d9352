package dispatch

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ONSdigital/dp-fileshare-steps/config"
	"github.com/ONSdigital/dp-fileshare-steps/credentials"
	"github.com/ONSdigital/dp-fileshare-steps/session"
	"github.com/ONSdigital/dp-fileshare-steps/session/mocks"
	"github.com/golang/mock/gomock"
	. "github.com/smartystreets/goconvey/convey"
)

type recordedRequest struct {
	Method   string
	Path     string
	User     string
	Password string
	HasAuth  bool
	Header   http.Header
	Body     string
}

type testServer struct {
	*httptest.Server
	requests []recordedRequest
	logins   int
}

func (s *testServer) last() recordedRequest {
	return s.requests[len(s.requests)-1]
}

const sessionCookie = "test_session"

func page(token string) string {
	return `<html><head data-requesttoken="` + token + `"></head></html>`
}

func newTestServer() *testServer {
	ts := &testServer{}
	ts.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/index.php/login" {
			switch r.Method {
			case http.MethodGet:
				http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: "pending", Path: "/"})
				w.Write([]byte(page("login-page"))) // nolint
			case http.MethodPost:
				if err := r.ParseForm(); err != nil || r.PostForm.Get("requesttoken") != "login-page" {
					w.WriteHeader(http.StatusForbidden)
					return
				}
				ts.logins++
				user := r.PostForm.Get("user")
				http.SetCookie(w, &http.Cookie{Name: sessionCookie, Value: user, Path: "/"})
				w.Write([]byte(page("token-" + user))) // nolint
			}
			return
		}

		body, _ := io.ReadAll(r.Body)
		user, password, ok := r.BasicAuth()
		ts.requests = append(ts.requests, recordedRequest{
			Method:   r.Method,
			Path:     r.URL.Path,
			User:     user,
			Password: password,
			HasAuth:  ok,
			Header:   r.Header.Clone(),
			Body:     string(body),
		})

		switch {
		case strings.HasSuffix(r.URL.Path, "/missing"):
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"ocs":{"meta":{"status":"failure","statuscode":404,"message":"not found"},"data":[]}}`)) // nolint
		case strings.HasSuffix(r.URL.Path, "/broken"):
			w.WriteHeader(http.StatusInternalServerError)
		default:
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"ocs":{"meta":{"status":"ok","statuscode":200,"message":"OK"},"data":{}}}`)) // nolint
		}
	}))
	return ts
}

func newDispatcher(urls ...string) *Dispatcher {
	servers := config.Servers{config.DefaultServer: urls[0]}
	if len(urls) > 1 {
		servers["remote"] = urls[1]
	}
	d, err := New(servers, credentials.Default(), nil, nil)
	if err != nil {
		panic(err)
	}
	return d
}

func TestNew(t *testing.T) {
	Convey("Given servers without a default alias", t, func() {
		_, err := New(config.Servers{"remote": "http://localhost"}, credentials.Default(), nil, nil)

		Convey("Then the dispatcher is not created", func() {
			So(err, ShouldEqual, config.ErrNoDefaultServer)
		})
	})

	Convey("Given a default server", t, func() {
		d := newDispatcher("http://localhost:8080")

		Convey("Then requests target it as the admin user", func() {
			So(d.BaseURL(), ShouldEqual, "http://localhost:8080/")
			user, password := d.Auth()
			So(user, ShouldEqual, "admin")
			So(password, ShouldEqual, "admin")
			So(d.LastResponse(), ShouldBeNil)
		})
	})
}

func TestSendOCS(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dispatcher acting as alice", t, func() {
		ts := newTestServer()
		defer ts.Close()
		d := newDispatcher(ts.URL + "/")
		d.SetCurrentUser("alice")

		Convey("When an OCS request is sent", func() {
			err := d.SendOCS(ctx, http.MethodPost, "/cloud/users", map[string]string{"userid": "bob"}, Options{})

			Convey("Then it is sent to the OCS root with OCS headers and basic auth", func() {
				So(err, ShouldBeNil)
				req := ts.last()
				So(req.Path, ShouldEqual, "/ocs/v2.php/cloud/users")
				So(req.Header.Get("OCS-APIREQUEST"), ShouldEqual, "true")
				So(req.Header.Get("Accept"), ShouldEqual, "application/json")
				So(req.Header.Get("Content-Type"), ShouldEqual, "application/json")
				So(req.User, ShouldEqual, "alice")
				So(req.Password, ShouldEqual, "123456")
				So(req.Body, ShouldEqual, `{"userid":"bob"}`)
			})
		})

		Convey("When the endpoint answers 404", func() {
			err := d.SendOCS(ctx, http.MethodGet, "cloud/users/missing", nil, Options{})

			Convey("Then no error is returned and the response is kept", func() {
				So(err, ShouldBeNil)
				So(d.LastResponse().StatusCode, ShouldEqual, http.StatusNotFound)
				So(d.LastResponse().AssertOCSStatus(404), ShouldBeNil)
				So(ts.last().Body, ShouldEqual, "")
			})
		})

		Convey("When caller headers are given", func() {
			err := d.SendOCS(ctx, http.MethodGet, "cloud/capabilities", nil, Options{
				Headers: http.Header{"Accept": {"application/xml"}, "X-Extra": {"1"}},
			})

			Convey("Then they are merged over the OCS headers", func() {
				So(err, ShouldBeNil)
				req := ts.last()
				So(req.Header.Get("Accept"), ShouldEqual, "application/xml")
				So(req.Header.Get("X-Extra"), ShouldEqual, "1")
				So(req.Header.Get("OCS-APIREQUEST"), ShouldEqual, "true")
			})
		})
	})
}

func TestSendRaw(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dispatcher acting as the admin", t, func() {
		ts := newTestServer()
		defer ts.Close()
		d := newDispatcher(ts.URL)

		Convey("When a raw request succeeds", func() {
			resp, err := d.SendRaw(ctx, http.MethodPut, "//remote.php/dav/files/admin/a.txt", Options{
				Body:    strings.NewReader("content"),
				Headers: http.Header{"X-Test": {"yes"}},
			})

			Convey("Then the path is joined with a single slash and the body sent as is", func() {
				So(err, ShouldBeNil)
				So(resp, ShouldEqual, d.LastResponse())
				req := ts.last()
				So(req.Path, ShouldEqual, "/remote.php/dav/files/admin/a.txt")
				So(req.Body, ShouldEqual, "content")
				So(req.Header.Get("X-Test"), ShouldEqual, "yes")
				So(req.User, ShouldEqual, "admin")
				So(req.Password, ShouldEqual, "admin")
			})
		})

		Convey("When the active identity changes between requests", func() {
			_, err := d.SendRaw(ctx, http.MethodGet, "status.php", Options{})
			So(err, ShouldBeNil)
			d.SetCurrentUser("bob")
			_, err = d.SendRaw(ctx, http.MethodGet, "status.php", Options{})

			Convey("Then each request authenticates as the identity active at call time", func() {
				So(err, ShouldBeNil)
				So(ts.requests[0].User, ShouldEqual, "admin")
				So(ts.last().User, ShouldEqual, "bob")
				So(ts.last().Password, ShouldEqual, "123456")
			})
		})

		Convey("When the server fails", func() {
			resp, err := d.SendRaw(ctx, http.MethodGet, "x/broken", Options{})

			Convey("Then a status error is returned and the response is kept", func() {
				var statusErr *StatusError
				So(errors.As(err, &statusErr), ShouldBeTrue)
				So(statusErr.Response.StatusCode, ShouldEqual, http.StatusInternalServerError)
				So(err.Error(), ShouldContainSubstring, "500")
				So(resp, ShouldEqual, d.LastResponse())
				So(d.LastResponse().StatusCode, ShouldEqual, http.StatusInternalServerError)
			})
		})
	})
}

func TestSendWeb(t *testing.T) {
	ctx := context.Background()

	Convey("Given a dispatcher acting as alice without a web session", t, func() {
		ts := newTestServer()
		defer ts.Close()
		d := newDispatcher(ts.URL)
		d.SetCurrentUser("alice")

		Convey("When two web requests are sent", func() {
			So(d.SendWeb(ctx, http.MethodPost, "apps/files/api/v1/views", map[string]int{"a": 1}), ShouldBeNil)
			So(d.SendWeb(ctx, http.MethodGet, "x/missing", nil), ShouldBeNil)

			Convey("Then alice logs in once and both carry her session", func() {
				So(ts.logins, ShouldEqual, 1)
				for _, req := range ts.requests {
					So(req.HasAuth, ShouldBeFalse)
					So(req.Header.Get("requesttoken"), ShouldEqual, "token-alice")
					So(req.Header.Get("Cookie"), ShouldContainSubstring, sessionCookie+"=alice")
				}
				So(ts.requests[0].Body, ShouldEqual, `{"a":1}`)
				So(d.LastResponse().StatusCode, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When the user logs in explicitly twice", func() {
			So(d.UsingWebAsUser(ctx, "bob"), ShouldBeNil)
			So(d.UsingWebAsUser(ctx, "bob"), ShouldBeNil)

			Convey("Then every call logs in again", func() {
				So(ts.logins, ShouldEqual, 2)
				So(d.CurrentUser(), ShouldEqual, "bob")
			})
		})

		Convey("When switching to the guest session", func() {
			So(d.UsingWebAsGuest(ctx), ShouldBeNil)
			So(d.SendWeb(ctx, http.MethodGet, "s/abc", nil), ShouldBeNil)

			Convey("Then requests carry the anonymous token and nobody logs in", func() {
				So(ts.logins, ShouldEqual, 0)
				So(d.Anonymous(), ShouldBeTrue)
				req := ts.last()
				So(req.Header.Get("requesttoken"), ShouldEqual, "login-page")
				So(req.Header.Get("Cookie"), ShouldContainSubstring, sessionCookie+"=pending")
			})

			Convey("And setting a user leaves guest mode", func() {
				d.SetCurrentUser("alice")
				So(d.Anonymous(), ShouldBeFalse)
			})
		})
	})
}

func TestSendWebLoginFailure(t *testing.T) {
	ctx := context.Background()

	Convey("Given a server whose login page fails", t, func() {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer ts.Close()
		d := newDispatcher(ts.URL)

		Convey("When a web request is sent", func() {
			err := d.SendWeb(ctx, http.MethodGet, "apps/x", nil)

			Convey("Then the login error is returned rather than a response status error", func() {
				var loginErr *session.LoginError
				So(errors.As(err, &loginErr), ShouldBeTrue)
				So(loginErr.StatusCode, ShouldEqual, http.StatusServiceUnavailable)
				var statusErr *StatusError
				So(errors.As(err, &statusErr), ShouldBeFalse)
				So(d.LastResponse(), ShouldBeNil)
			})
		})
	})
}

func TestIdentity(t *testing.T) {
	Convey("Given a dispatcher acting as alice", t, func() {
		d := newDispatcher("http://localhost")
		d.SetCurrentUser("alice")

		Convey("When ActAsAdmin runs a failing callback", func() {
			var inside string
			errFail := errors.New("fail")
			err := d.ActAsAdmin(func() error {
				inside = d.CurrentUser()
				return errFail
			})

			Convey("Then the callback ran as admin and alice is restored", func() {
				So(err, ShouldEqual, errFail)
				So(inside, ShouldEqual, "admin")
				user, password := d.Auth()
				So(user, ShouldEqual, "alice")
				So(password, ShouldEqual, "123456")
			})
		})

		Convey("When ActAsUser nests", func() {
			err := d.ActAsUser("bob", func() error {
				return d.ActAsAdmin(func() error {
					So(d.CurrentUser(), ShouldEqual, "admin")
					return nil
				})
			})

			Convey("Then each level is restored", func() {
				So(err, ShouldBeNil)
				So(d.CurrentUser(), ShouldEqual, "alice")
			})
		})
	})
}

func TestServers(t *testing.T) {
	ctx := context.Background()

	Convey("Given two servers", t, func() {
		local := newTestServer()
		defer local.Close()
		remote := newTestServer()
		defer remote.Close()
		d := newDispatcher(local.URL, remote.URL)

		Convey("When switching to the remote instance", func() {
			So(d.OnInstance("remote"), ShouldBeNil)
			So(d.SendOCS(ctx, http.MethodGet, "cloud/users", nil, Options{}), ShouldBeNil)

			Convey("Then requests go to the remote server", func() {
				So(d.BaseURL(), ShouldEqual, remote.URL+"/")
				So(d.Instance(), ShouldEqual, "remote")
				So(remote.requests, ShouldHaveLength, 1)
				So(local.requests, ShouldBeEmpty)
			})
		})

		Convey("When a web session is used on both instances", func() {
			So(d.SendWeb(ctx, http.MethodGet, "apps/x", nil), ShouldBeNil)
			So(d.OnInstance("remote"), ShouldBeNil)
			So(d.SendWeb(ctx, http.MethodGet, "apps/x", nil), ShouldBeNil)

			Convey("Then each server gets its own login", func() {
				So(local.logins, ShouldEqual, 1)
				So(remote.logins, ShouldEqual, 1)
			})
		})

		Convey("When the alias is unknown", func() {
			err := d.OnInstance("nowhere")

			Convey("Then an error is returned and the server is unchanged", func() {
				So(errors.Is(err, ErrUnknownServer), ShouldBeTrue)
				So(d.BaseURL(), ShouldEqual, local.URL+"/")
			})
		})

		Convey("Server looks up a url by alias", func() {
			url, err := d.Server("remote")
			So(err, ShouldBeNil)
			So(url, ShouldEqual, remote.URL)
		})
	})
}

func TestTransportErrors(t *testing.T) {
	ctx := context.Background()

	Convey("Given a client whose transport fails", t, func() {
		ctrl := gomock.NewController(t)
		defer ctrl.Finish()

		errRefused := errors.New("connection refused")
		doer := mocks.NewMockDoer(ctrl)
		doer.EXPECT().Do(gomock.Any(), gomock.Any()).Return(nil, errRefused).AnyTimes()

		d, err := New(config.Servers{config.DefaultServer: "http://localhost"}, credentials.Default(), nil,
			func(http.CookieJar) session.Doer { return doer })
		So(err, ShouldBeNil)

		Convey("Then every request shape returns the error", func() {
			_, err := d.SendRaw(ctx, http.MethodGet, "x", Options{})
			So(err, ShouldEqual, errRefused)
			So(d.SendOCS(ctx, http.MethodGet, "x", nil, Options{}), ShouldEqual, errRefused)
			So(d.SendWeb(ctx, http.MethodGet, "x", nil), ShouldEqual, errRefused)
			So(d.LastResponse(), ShouldBeNil)
		})
	})
}
