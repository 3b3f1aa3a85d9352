package session

import (
	"net/http"
	"net/http/cookiejar"

	"golang.org/x/net/publicsuffix"
)

// Session is the web login state of one identity against one server.
type Session struct {
	UserID       string
	Password     string
	Jar          http.CookieJar
	RequestToken string
	Anonymous    bool

	established bool
}

// Established reports whether a login round trip has completed for s.
func (s *Session) Established() bool {
	return s.established
}

// Store keeps one Session per user id plus a single anonymous session.
// Sessions are created lazily and live as long as the Store.
type Store struct {
	sessions  map[string]*Session
	anonymous *Session
}

func NewStore() *Store {
	return &Store{sessions: map[string]*Session{}}
}

// GetOrCreate returns the session for userID, creating it with an empty
// cookie jar when it does not exist yet.
func (s *Store) GetOrCreate(userID string) *Session {
	if sess, ok := s.sessions[userID]; ok {
		return sess
	}
	sess := &Session{UserID: userID, Jar: newJar()}
	s.sessions[userID] = sess
	return sess
}

// Get returns the session for userID if one was created.
func (s *Store) Get(userID string) (*Session, bool) {
	sess, ok := s.sessions[userID]
	return sess, ok
}

// Anonymous returns the guest session.
func (s *Store) Anonymous() *Session {
	if s.anonymous == nil {
		s.anonymous = &Session{Jar: newJar(), Anonymous: true}
	}
	return s.anonymous
}

func newJar() http.CookieJar {
	// cookiejar.New never returns an error
	jar, _ := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	return jar
}
