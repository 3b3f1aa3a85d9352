package fakeserver

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
)

const (
	sessionCookieName  = "nc_session_id"
	requestTokenHeader = "requesttoken"
)

var (
	errCSRFCheckFailed  = errors.New("CSRF check failed")
	errNotLoggedIn      = errors.New("current user is not logged in")
	errWrongCredentials = errors.New("wrong username or password")
)

type webSession struct {
	user  string
	token string
}

func randomString(n int) string {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		panic(err)
	}
	return base64.StdEncoding.EncodeToString(b)
}

// newRequestToken returns a token shaped like the server's own: two base64
// halves of 44 characters joined by a colon.
func newRequestToken() string {
	return randomString(33) + ":" + randomString(33)
}

func page(token, body string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html class="ng-csp" data-placeholder-focus="false" lang="en">
<head
 data-user="" data-requesttoken="%s">
<meta charset="utf-8">
<title>Nextcloud</title>
</head>
<body>%s</body>
</html>
`, token, body)
}

func writePage(w http.ResponseWriter, code int, token, body string) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	io.WriteString(w, page(token, body)) // nolint
}

// session returns the web session the request cookie refers to.
func (s *Server) session(r *http.Request) (string, *webSession) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil {
		return "", nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return c.Value, s.webSessions[c.Value]
}

func (s *Server) loginPage(w http.ResponseWriter, r *http.Request) {
	id, sess := s.session(r)
	s.mu.Lock()
	if sess == nil {
		id = randomString(24)
		sess = &webSession{}
		s.webSessions[id] = sess
	}
	sess.token = newRequestToken()
	token := sess.token
	s.mu.Unlock()

	http.SetCookie(w, &http.Cookie{Name: sessionCookieName, Value: id, Path: "/", HttpOnly: true})
	writePage(w, http.StatusOK, token, `<form method="post" name="login"></form>`)
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	_, sess := s.session(r)
	if err := r.ParseForm(); err != nil || sess == nil || r.PostForm.Get("requesttoken") != sess.token {
		writeError(w, buildErrors(errCSRFCheckFailed, "CSRFCheckFailed"), http.StatusPreconditionFailed)
		return
	}

	userID := r.PostForm.Get("user")
	if !s.checkPassword(userID, r.PostForm.Get("password")) {
		writePage(w, http.StatusUnauthorized, sess.token, `<p class="warning">`+errWrongCredentials.Error()+`</p>`)
		return
	}

	s.mu.Lock()
	sess.user = userID
	sess.token = newRequestToken()
	s.mu.Unlock()

	http.Redirect(w, r, "/index.php/apps/files/", http.StatusSeeOther)
}

func (s *Server) filesPage(w http.ResponseWriter, r *http.Request) {
	_, sess := s.session(r)
	if sess == nil || sess.user == "" {
		http.Redirect(w, r, "/index.php/login?redirect_url="+url.QueryEscape(r.URL.Path), http.StatusSeeOther)
		return
	}
	writePage(w, http.StatusOK, sess.token, `<div id="app-content"></div>`)
}

// requireWebSession rejects requests whose request token does not match the
// one issued to their session cookie.
func (s *Server) requireWebSession(h http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, sess := s.session(r)
		if sess == nil {
			writeError(w, buildErrors(errNotLoggedIn, "NotLoggedIn"), http.StatusUnauthorized)
			return
		}
		if r.Header.Get(requestTokenHeader) != sess.token {
			writeError(w, buildErrors(errCSRFCheckFailed, "CSRFCheckFailed"), http.StatusPreconditionFailed)
			return
		}
		h.ServeHTTP(w, r.WithContext(withUser(r.Context(), sess.user)))
	})
}

func (s *Server) whoami(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r.Context())
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"user":      u,
		"anonymous": u == "",
	})
}

func (s *Server) items(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, []map[string]interface{}{
		{"id": 1, "name": "first"},
		{"id": 2, "name": "second"},
		{"id": 3, "name": "third"},
	})
}

func (s *Server) echo(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		writeError(w, buildErrors(err, "BadRequest"), http.StatusBadRequest)
		return
	}
	p["user"] = userFrom(r.Context())
	writeJSON(w, http.StatusOK, p)
}
