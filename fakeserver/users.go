package fakeserver

import (
	"net/http"
	"sort"

	"github.com/gorilla/mux"
)

// addUser registers a user with empty file roots. The caller must not hold s.mu.
func (s *Server) addUser(id, password, displayName string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[id] = &user{
		ID:          id,
		DisplayName: displayName,
		Password:    password,
		Groups:      map[string]bool{},
		files:       newDavRoot(),
		uploads:     newDavRoot(),
	}
}

// AddUser creates a user directly, bypassing the OCS API.
func (s *Server) AddUser(id, password string) {
	s.addUser(id, password, id)
}

// UserExists reports whether id is a registered user.
func (s *Server) UserExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.users[id]
	return ok
}

// DisplayName returns the display name of user id.
func (s *Server) DisplayName(id string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		return u.DisplayName
	}
	return ""
}

// GroupExists reports whether group id exists.
func (s *Server) GroupExists(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.groups[id]
}

// InGroup reports whether user belongs to group.
func (s *Server) InGroup(userID, group string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	return ok && u.Groups[group]
}

func (s *Server) userData(u *user) map[string]interface{} {
	groups := sortedKeys(u.Groups)
	return map[string]interface{}{
		"id":          u.ID,
		"enabled":     true,
		"displayname": u.DisplayName,
		"email":       nilIfEmpty(u.Email),
		"groups":      groups,
		"quota":       map[string]interface{}{"used": 0, "quota": -3},
	}
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.users))
	for id := range s.users {
		ids = append(ids, id)
	}
	s.mu.Unlock()
	sort.Strings(ids)
	ocsOK(w, map[string]interface{}{"users": ids})
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}
	id := p["userid"]
	if id == "" {
		ocsFail(w, http.StatusBadRequest, "Invalid user id")
		return
	}
	if s.UserExists(id) {
		ocsFail(w, http.StatusBadRequest, "User already exists")
		return
	}
	if p["password"] == "" {
		ocsFail(w, http.StatusBadRequest, "To send a password link to the user an email address is required.")
		return
	}

	displayName := p["displayName"]
	if displayName == "" {
		displayName = id
	}
	s.addUser(id, p["password"], displayName)

	s.mu.Lock()
	s.users[id].Email = p["email"]
	s.mu.Unlock()

	ocsOK(w, map[string]interface{}{"id": id})
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userid"]
	caller := userFrom(r.Context())

	s.mu.Lock()
	u, ok := s.users[id]
	var data map[string]interface{}
	if ok {
		data = s.userData(u)
	}
	s.mu.Unlock()

	if !ok {
		ocsFail(w, http.StatusNotFound, "User does not exist")
		return
	}
	if caller != id && !s.isAdmin(caller) {
		ocsOK(w, map[string]interface{}{"id": id, "displayname": data["displayname"]})
		return
	}
	ocsOK(w, data)
}

func (s *Server) editUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userid"]
	caller := userFrom(r.Context())
	if caller != id && !s.isAdmin(caller) {
		ocsFail(w, http.StatusForbidden, "Logged in user must be an admin or the user itself")
		return
	}
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		ocsFail(w, http.StatusNotFound, "User does not exist")
		return
	}
	switch p["key"] {
	case "displayname", "display":
		u.DisplayName = p["value"]
	case "email":
		u.Email = p["value"]
	case "password":
		u.Password = p["value"]
	default:
		ocsFail(w, http.StatusBadRequest, "Invalid key")
		return
	}
	ocsOK(w, nil)
}

func (s *Server) deleteUser(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userid"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[id]; !ok || id == s.cfg.AdminUser {
		ocsFail(w, http.StatusNotFound, "User does not exist")
		return
	}
	delete(s.users, id)
	for shareID, sh := range s.shares {
		if sh.Owner == id {
			delete(s.shares, shareID)
		}
	}
	delete(s.pending, id)
	ocsOK(w, nil)
}

func (s *Server) getUserGroups(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["userid"]
	caller := userFrom(r.Context())
	if caller != id && !s.isAdmin(caller) {
		ocsFail(w, http.StatusForbidden, "Logged in user must be an admin or the user itself")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		ocsFail(w, http.StatusNotFound, "User does not exist")
		return
	}
	ocsOK(w, map[string]interface{}{"groups": sortedKeys(u.Groups)})
}

func (s *Server) addUserToGroup(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, true)
}

func (s *Server) removeUserFromGroup(w http.ResponseWriter, r *http.Request) {
	s.changeMembership(w, r, false)
}

func (s *Server) changeMembership(w http.ResponseWriter, r *http.Request, member bool) {
	id := mux.Vars(r)["userid"]
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}
	group := p["groupid"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if group == "" || !s.groups[group] {
		ocsFail(w, http.StatusBadRequest, "Group does not exist")
		return
	}
	u, ok := s.users[id]
	if !ok {
		ocsFail(w, http.StatusBadRequest, "User does not exist")
		return
	}
	if member {
		u.Groups[group] = true
	} else {
		delete(u.Groups, group)
	}
	ocsOK(w, nil)
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ocsOK(w, map[string]interface{}{"groups": sortedKeys(s.groups)})
}

func (s *Server) createGroup(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}
	id := p["groupid"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		ocsFail(w, http.StatusBadRequest, "Invalid group name")
		return
	}
	if s.groups[id] {
		ocsFail(w, http.StatusBadRequest, "group exists")
		return
	}
	s.groups[id] = true
	ocsOK(w, nil)
}

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["groupid"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.groups[id] {
		ocsFail(w, http.StatusNotFound, "The requested group could not be found")
		return
	}
	members := []string{}
	for uid, u := range s.users {
		if u.Groups[id] {
			members = append(members, uid)
		}
	}
	sort.Strings(members)
	ocsOK(w, map[string]interface{}{"users": members})
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["groupid"]

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.groups[id] || id == "admin" {
		ocsFail(w, http.StatusNotFound, "Group does not exist")
		return
	}
	delete(s.groups, id)
	for _, u := range s.users {
		delete(u.Groups, id)
	}
	ocsOK(w, nil)
}

func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k, ok := range m {
		if ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
