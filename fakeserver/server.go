// Package fakeserver is an in-process file-sharing server that speaks enough
// of the web login, OCS and WebDAV protocols to exercise the step library.
package fakeserver

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"

	"github.com/ONSdigital/log.go/v2/log"
	gorillahandlers "github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/justinas/alice"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"golang.org/x/net/webdav"
)

// Config holds the credentials of the built-in admin account.
type Config struct {
	AdminUser     string
	AdminPassword string
}

// Request is a request received by the server, as seen before routing.
type Request struct {
	Method string
	Path   string
	User   string
	Header http.Header
}

type user struct {
	ID          string
	DisplayName string
	Email       string
	Password    string
	Groups      map[string]bool
	files       *davRoot
	uploads     *davRoot
}

type davRoot struct {
	fs    webdav.FileSystem
	locks webdav.LockSystem
}

func newDavRoot() *davRoot {
	return &davRoot{fs: webdav.NewMemFS(), locks: webdav.NewMemLS()}
}

// Server is a fake file-sharing server listening on a local port.
type Server struct {
	URL string

	cfg     Config
	httpSrv *httptest.Server
	handler http.Handler

	mu          sync.Mutex
	users       map[string]*user
	groups      map[string]bool
	shares      map[string]*Share
	pending     map[string][]*PendingShare
	webSessions map[string]*webSession
	requests    []Request
	nextID      int
}

// New starts a server with an admin account.
func New(cfg Config) *Server {
	if cfg.AdminUser == "" {
		cfg.AdminUser = "admin"
	}
	if cfg.AdminPassword == "" {
		cfg.AdminPassword = "admin"
	}

	s := &Server{
		cfg:         cfg,
		users:       map[string]*user{},
		groups:      map[string]bool{"admin": true},
		shares:      map[string]*Share{},
		pending:     map[string][]*PendingShare{},
		webSessions: map[string]*webSession{},
	}
	s.addUser(cfg.AdminUser, cfg.AdminPassword, cfg.AdminUser)
	s.users[cfg.AdminUser].Groups["admin"] = true

	router := mux.NewRouter()
	router.SkipClean(true)
	router.Use(otelmux.Middleware("fakeserver"))
	s.routes(router)

	s.handler = alice.New(
		s.recordRequests,
		recoveryHandler,
		requestLogger,
	).Then(router)

	s.httpSrv = httptest.NewServer(s.handler)
	s.URL = s.httpSrv.URL
	return s
}

// Handler returns the server's root handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) Close() {
	s.httpSrv.Close()
}

func (s *Server) routes(r *mux.Router) {
	r.Path("/status.php").Methods(http.MethodGet).HandlerFunc(s.status)

	r.Path("/index.php/login").Methods(http.MethodGet).HandlerFunc(s.loginPage)
	r.Path("/index.php/login").Methods(http.MethodPost).HandlerFunc(s.login)
	r.Path("/index.php/apps/files/").Methods(http.MethodGet).HandlerFunc(s.filesPage)

	web := r.PathPrefix("/index.php/apps/testing").Subrouter()
	web.Use(s.requireWebSession)
	web.Path("/whoami").Methods(http.MethodGet).HandlerFunc(s.whoami)
	web.Path("/items").Methods(http.MethodGet).HandlerFunc(s.items)
	web.Path("/echo").Methods(http.MethodPost, http.MethodPut).HandlerFunc(s.echo)

	ocs := r.PathPrefix("/ocs/v2.php").Subrouter()
	ocs.Use(s.requireOCSHeader, s.basicAuth)
	ocs.Path("/cloud/users").Methods(http.MethodGet).HandlerFunc(s.listUsers)
	ocs.Path("/cloud/users").Methods(http.MethodPost).HandlerFunc(s.adminOnly(s.createUser))
	ocs.Path("/cloud/users/{userid}").Methods(http.MethodGet).HandlerFunc(s.getUser)
	ocs.Path("/cloud/users/{userid}").Methods(http.MethodPut).HandlerFunc(s.editUser)
	ocs.Path("/cloud/users/{userid}").Methods(http.MethodDelete).HandlerFunc(s.adminOnly(s.deleteUser))
	ocs.Path("/cloud/users/{userid}/groups").Methods(http.MethodGet).HandlerFunc(s.getUserGroups)
	ocs.Path("/cloud/users/{userid}/groups").Methods(http.MethodPost).HandlerFunc(s.adminOnly(s.addUserToGroup))
	ocs.Path("/cloud/users/{userid}/groups").Methods(http.MethodDelete).HandlerFunc(s.adminOnly(s.removeUserFromGroup))
	ocs.Path("/cloud/groups").Methods(http.MethodGet).HandlerFunc(s.listGroups)
	ocs.Path("/cloud/groups").Methods(http.MethodPost).HandlerFunc(s.adminOnly(s.createGroup))
	ocs.Path("/cloud/groups/{groupid}").Methods(http.MethodGet).HandlerFunc(s.adminOnly(s.getGroup))
	ocs.Path("/cloud/groups/{groupid}").Methods(http.MethodDelete).HandlerFunc(s.adminOnly(s.deleteGroup))

	sharing := ocs.PathPrefix("/apps/files_sharing/api/v{version:[0-9]+}").Subrouter()
	sharing.Path("/shares").Methods(http.MethodGet).HandlerFunc(s.listShares)
	sharing.Path("/shares").Methods(http.MethodPost).HandlerFunc(s.createShare)
	sharing.Path("/shares/{id}").Methods(http.MethodGet).HandlerFunc(s.getShare)
	sharing.Path("/shares/{id}").Methods(http.MethodPut).HandlerFunc(s.updateShare)
	sharing.Path("/shares/{id}").Methods(http.MethodDelete).HandlerFunc(s.deleteShare)
	sharing.Path("/remote_shares/pending").Methods(http.MethodGet).HandlerFunc(s.listPendingShares)
	sharing.Path("/remote_shares/pending/{id}").Methods(http.MethodPost).HandlerFunc(s.acceptPendingShare)

	r.PathPrefix("/remote.php/dav/files/{userid}").HandlerFunc(s.withDavAuth(s.serveFiles))
	r.PathPrefix("/remote.php/dav/uploads/{userid}").HandlerFunc(s.withDavAuth(s.serveUploads))
	r.PathPrefix("/remote.php/webdav").HandlerFunc(s.withDavAuth(s.serveLegacyFiles))
	r.PathPrefix("/public.php/webdav").HandlerFunc(s.servePublic)
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"installed":      true,
		"maintenance":    false,
		"needsDbUpgrade": false,
		"version":        "25.0.0.0",
		"versionstring":  "25.0.0",
		"productname":    "Nextcloud",
	})
}

func (s *Server) recordRequests(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, _, _ := r.BasicAuth()
		s.mu.Lock()
		s.requests = append(s.requests, Request{
			Method: r.Method,
			Path:   r.URL.Path,
			User:   u,
			Header: r.Header.Clone(),
		})
		s.mu.Unlock()
		h.ServeHTTP(w, r)
	})
}

func recoveryHandler(h http.Handler) http.Handler {
	return gorillahandlers.RecoveryHandler(gorillahandlers.PrintRecoveryStack(true))(h)
}

func requestLogger(h http.Handler) http.Handler {
	return gorillahandlers.LoggingHandler(logWriter{}, h)
}

// logWriter forwards access log lines to the structured logger.
type logWriter struct{}

func (logWriter) Write(p []byte) (int, error) {
	log.Info(context.Background(), "fake server request", log.Data{"access": strings.TrimSpace(string(p))})
	return len(p), nil
}

var _ io.Writer = logWriter{}

// Requests returns every request received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Request, len(s.requests))
	copy(out, s.requests)
	return out
}

// RequestsTo returns the received requests with the given method whose path
// starts with prefix.
func (s *Server) RequestsTo(method, prefix string) []Request {
	var out []Request
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			out = append(out, r)
		}
	}
	return out
}

// ResetRequests forgets the recorded requests.
func (s *Server) ResetRequests() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = nil
}
