package fakeserver

import (
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
)

const (
	ShareTypeUser      = 0
	ShareTypeGroup     = 1
	ShareTypeLink      = 3
	ShareTypeEmail     = 4
	ShareTypeFederated = 6
)

const (
	PermRead   = 1
	PermUpdate = 2
	PermCreate = 4
	PermDelete = 8
	PermShare  = 16
	PermAll    = 31
)

const expireDateLayout = "2006-01-02"

// Share is a share held by the server.
type Share struct {
	ID          string
	ShareType   int
	Owner       string
	Path        string
	ItemType    string
	ShareWith   string
	Permissions int
	Token       string
	Password    string
	Expiration  string
	Note        string
	Label       string
	Stime       int64
}

// PendingShare is a federated share waiting to be accepted by User.
type PendingShare struct {
	ID       string
	Remote   string
	RemoteID string
	Token    string
	Name     string
	Owner    string
	User     string
	Accepted bool
}

func (s *Server) newID() string {
	s.nextID++
	return strconv.Itoa(s.nextID)
}

// Shares returns a copy of every share, ordered by id.
func (s *Server) Shares() []Share {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Share, 0, len(s.shares))
	for _, sh := range s.shares {
		out = append(out, *sh)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := strconv.Atoi(out[i].ID)
		b, _ := strconv.Atoi(out[j].ID)
		return a < b
	})
	return out
}

// PendingShares returns the federated shares offered to user.
func (s *Server) PendingShares(user string) []PendingShare {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]PendingShare, 0, len(s.pending[user]))
	for _, p := range s.pending[user] {
		out = append(out, *p)
	}
	return out
}

// AddPendingShare offers user a federated share of name from owner on remote
// and returns its id.
func (s *Server) AddPendingShare(user, owner, remote, name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addPendingShare(user, owner, remote, name)
}

func (s *Server) addPendingShare(user, owner, remote, name string) string {
	p := &PendingShare{
		ID:       s.newID(),
		Remote:   remote,
		RemoteID: s.newID(),
		Token:    randomToken(),
		Name:     name,
		Owner:    owner,
		User:     user,
	}
	s.pending[user] = append(s.pending[user], p)
	return p.ID
}

func randomToken() string {
	r := strings.NewReplacer("+", "", "/", "", "=", "")
	t := r.Replace(randomString(24))
	return t[:15]
}

// shareData renders sh as the OCS share representation. s.mu must be held.
func (s *Server) shareData(sh *Share) map[string]interface{} {
	data := map[string]interface{}{
		"id":                     sh.ID,
		"share_type":             sh.ShareType,
		"uid_owner":              sh.Owner,
		"displayname_owner":      s.displayNameLocked(sh.Owner),
		"uid_file_owner":         sh.Owner,
		"permissions":            sh.Permissions,
		"stime":                  sh.Stime,
		"parent":                 nil,
		"expiration":             nil,
		"token":                  nil,
		"path":                   sh.Path,
		"item_type":              sh.ItemType,
		"file_target":            sh.Path,
		"share_with":             nilIfEmpty(sh.ShareWith),
		"share_with_displayname": nilIfEmpty(s.displayNameLocked(sh.ShareWith)),
		"note":                   sh.Note,
		"label":                  sh.Label,
		"mail_send":              0,
		"hide_download":          0,
	}
	if sh.Expiration != "" {
		data["expiration"] = sh.Expiration + " 00:00:00"
	}
	if sh.Token != "" {
		data["token"] = sh.Token
		data["url"] = s.URL + "/index.php/s/" + sh.Token
	}
	if sh.ShareType == ShareTypeLink && sh.Password != "" {
		data["password"] = sh.Password
	}
	return data
}

func (s *Server) displayNameLocked(id string) string {
	if u, ok := s.users[id]; ok {
		return u.DisplayName
	}
	return id
}

func (s *Server) listShares(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())
	withMe := r.URL.Query().Get("shared_with_me") == "true"

	var shares []Share
	for _, sh := range s.Shares() {
		if (!withMe && sh.Owner == caller) || (withMe && s.isRecipient(&sh, caller)) {
			shares = append(shares, sh)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	data := make([]interface{}, 0, len(shares))
	for i := range shares {
		data = append(data, s.shareData(&shares[i]))
	}
	ocsOK(w, data)
}

func (s *Server) isRecipient(sh *Share, userID string) bool {
	switch sh.ShareType {
	case ShareTypeUser:
		return sh.ShareWith == userID
	case ShareTypeGroup:
		return s.InGroup(userID, sh.ShareWith)
	}
	return false
}

func (s *Server) createShare(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}

	path := p["path"]
	if path == "" {
		ocsFail(w, http.StatusNotFound, "Please specify a file or folder path")
		return
	}
	path = "/" + strings.TrimLeft(path, "/")

	s.mu.Lock()
	owner := s.users[caller]
	s.mu.Unlock()
	info, err := owner.files.fs.Stat(r.Context(), path)
	if err != nil {
		ocsFail(w, http.StatusNotFound, "Wrong path, file/folder doesn't exist")
		return
	}

	shareType, err := strconv.Atoi(p["shareType"])
	if err != nil {
		ocsFail(w, http.StatusBadRequest, "Unknown share type")
		return
	}

	sh := &Share{
		ShareType: shareType,
		Owner:     caller,
		Path:      path,
		ItemType:  "file",
		ShareWith: p["shareWith"],
		Note:      p["note"],
		Label:     p["label"],
		Stime:     time.Now().Unix(),
	}
	if info.IsDir() {
		sh.ItemType = "folder"
	}

	sh.Permissions = PermAll
	if !info.IsDir() {
		sh.Permissions = PermAll &^ (PermCreate | PermDelete)
	}
	if shareType == ShareTypeLink {
		sh.Permissions = PermRead
		if info.IsDir() && p["publicUpload"] == "true" {
			sh.Permissions = PermRead | PermUpdate | PermCreate | PermDelete
		}
	}
	if v, ok := p["permissions"]; ok && v != "" {
		perms, err := strconv.Atoi(v)
		if err != nil || perms < 1 || perms > PermAll {
			ocsFail(w, http.StatusNotFound, "Invalid permissions")
			return
		}
		sh.Permissions = perms
	}

	if v, ok := p["expireDate"]; ok && v != "" {
		if msg := validExpireDate(v); msg != "" {
			ocsFail(w, http.StatusNotFound, msg)
			return
		}
		sh.Expiration = v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch shareType {
	case ShareTypeUser:
		if _, ok := s.users[sh.ShareWith]; !ok || sh.ShareWith == caller {
			ocsFail(w, http.StatusNotFound, "Please specify a valid user")
			return
		}
	case ShareTypeGroup:
		if !s.groups[sh.ShareWith] {
			ocsFail(w, http.StatusNotFound, "Please specify a valid group")
			return
		}
	case ShareTypeLink:
		sh.Token = randomToken()
		sh.Password = p["password"]
	case ShareTypeFederated:
		at := strings.LastIndex(sh.ShareWith, "@")
		if at <= 0 {
			ocsFail(w, http.StatusNotFound, "Please specify a valid federated user ID")
			return
		}
		remoteUser := sh.ShareWith[:at]
		if _, ok := s.users[remoteUser]; !ok {
			ocsFail(w, http.StatusNotFound, "Please specify a valid federated user ID")
			return
		}
		sh.Token = randomToken()
		s.addPendingShare(remoteUser, caller, s.URL, strings.TrimPrefix(path, "/"))
	default:
		ocsFail(w, http.StatusBadRequest, "Unknown share type")
		return
	}

	sh.ID = s.newID()
	s.shares[sh.ID] = sh
	ocsOK(w, s.shareData(sh))
}

func validExpireDate(v string) string {
	d, err := time.Parse(expireDateLayout, v)
	if err != nil {
		return "Invalid date, date format must be YYYY-MM-DD"
	}
	y, m, day := time.Now().Date()
	today := time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	if d.Before(today) {
		return "Expiration date is in the past"
	}
	return ""
}

// ownedShare returns the share with the route id if caller may manage it.
// s.mu must be held.
func (s *Server) ownedShare(r *http.Request) (*Share, bool) {
	sh, ok := s.shares[mux.Vars(r)["id"]]
	if !ok || sh.Owner != userFrom(r.Context()) {
		return nil, false
	}
	return sh, true
}

func (s *Server) getShare(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())
	s.mu.Lock()
	sh, ok := s.shares[mux.Vars(r)["id"]]
	s.mu.Unlock()
	if !ok || (sh.Owner != caller && !s.isRecipient(sh, caller)) {
		ocsFail(w, http.StatusNotFound, "Wrong share ID, share doesn't exist")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ocsOK(w, []interface{}{s.shareData(sh)})
}

func (s *Server) updateShare(w http.ResponseWriter, r *http.Request) {
	p, err := params(r)
	if err != nil {
		ocsFail(w, http.StatusBadRequest, err.Error())
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ownedShare(r)
	if !ok {
		ocsFail(w, http.StatusNotFound, "Wrong share ID, share doesn't exist")
		return
	}

	updated := false
	if v, ok := p["permissions"]; ok {
		perms, err := strconv.Atoi(v)
		if err != nil || perms < 1 || perms > PermAll {
			ocsFail(w, http.StatusBadRequest, "Invalid permissions")
			return
		}
		sh.Permissions = perms
		updated = true
	}
	if v, ok := p["publicUpload"]; ok && sh.ShareType == ShareTypeLink {
		if v == "true" {
			if sh.ItemType != "folder" {
				ocsFail(w, http.StatusBadRequest, "Public upload is only possible for publicly shared folders")
				return
			}
			sh.Permissions = PermRead | PermUpdate | PermCreate | PermDelete
		} else {
			sh.Permissions = PermRead
		}
		updated = true
	}
	if v, ok := p["expireDate"]; ok {
		if v != "" {
			if msg := validExpireDate(v); msg != "" {
				ocsFail(w, http.StatusBadRequest, msg)
				return
			}
		}
		sh.Expiration = v
		updated = true
	}
	if v, ok := p["password"]; ok {
		sh.Password = v
		updated = true
	}
	if v, ok := p["note"]; ok {
		sh.Note = v
		updated = true
	}
	if v, ok := p["label"]; ok {
		sh.Label = v
		updated = true
	}
	if !updated {
		ocsFail(w, http.StatusBadRequest, "Wrong or no update parameter given")
		return
	}
	ocsOK(w, s.shareData(sh))
}

func (s *Server) deleteShare(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sh, ok := s.ownedShare(r)
	if !ok {
		ocsFail(w, http.StatusNotFound, "Wrong share ID, share doesn't exist")
		return
	}
	delete(s.shares, sh.ID)
	ocsOK(w, nil)
}

func (s *Server) listPendingShares(w http.ResponseWriter, r *http.Request) {
	data := []interface{}{}
	for _, p := range s.PendingShares(userFrom(r.Context())) {
		if p.Accepted {
			continue
		}
		data = append(data, map[string]interface{}{
			"id":          p.ID,
			"remote":      p.Remote,
			"remote_id":   p.RemoteID,
			"share_token": p.Token,
			"name":        "/" + p.Name,
			"owner":       p.Owner,
			"user":        p.User,
			"mountpoint":  "{{TemporaryMountPointName#/" + p.Name + "}}",
			"accepted":    0,
		})
	}
	ocsOK(w, data)
}

func (s *Server) acceptPendingShare(w http.ResponseWriter, r *http.Request) {
	caller := userFrom(r.Context())
	id := mux.Vars(r)["id"]

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.pending[caller] {
		if p.ID == id && !p.Accepted {
			p.Accepted = true
			ocsOK(w, nil)
			return
		}
	}
	ocsFail(w, http.StatusNotFound, "Wrong share ID, share doesn't exist")
}

// publicShare returns the unexpired link share identified by token.
func (s *Server) publicShare(token string) (*Share, *user, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sh := range s.shares {
		if sh.ShareType != ShareTypeLink || sh.Token != token {
			continue
		}
		if sh.Expiration != "" && validExpireDate(sh.Expiration) != "" {
			return nil, nil, false
		}
		owner, ok := s.users[sh.Owner]
		return sh, owner, ok
	}
	return nil, nil, false
}
