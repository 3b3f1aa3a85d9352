package fakeserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path"

	"github.com/gorilla/mux"
	"golang.org/x/net/webdav"
)

var errForeignRoot = errors.New("cannot access files of another user")

func (s *Server) withDavAuth(fn func(w http.ResponseWriter, r *http.Request, u *user)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name, password, ok := r.BasicAuth()
		if !ok || !s.checkPassword(name, password) {
			challenge(w)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		s.mu.Lock()
		u := s.users[name]
		s.mu.Unlock()
		fn(w, r, u)
	}
}

func (s *Server) serveFiles(w http.ResponseWriter, r *http.Request, u *user) {
	s.serveOwnRoot(w, r, u, "/remote.php/dav/files/", u.files)
}

func (s *Server) serveUploads(w http.ResponseWriter, r *http.Request, u *user) {
	s.serveOwnRoot(w, r, u, "/remote.php/dav/uploads/", u.uploads)
}

func (s *Server) serveOwnRoot(w http.ResponseWriter, r *http.Request, u *user, base string, root *davRoot) {
	if mux.Vars(r)["userid"] != u.ID {
		writeError(w, buildErrors(errForeignRoot, "Forbidden"), http.StatusForbidden)
		return
	}
	serveDav(w, r, base+u.ID, root.fs, root.locks)
}

func (s *Server) serveLegacyFiles(w http.ResponseWriter, r *http.Request, u *user) {
	serveDav(w, r, "/remote.php/webdav", u.files.fs, u.files.locks)
}

// servePublic serves the shared node of a link share. The share token is the
// basic auth user name and the share password, if any, the password.
func (s *Server) servePublic(w http.ResponseWriter, r *http.Request) {
	token, password, ok := r.BasicAuth()
	if !ok {
		challenge(w)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	sh, owner, ok := s.publicShare(token)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if sh.Password != "" && sh.Password != password {
		challenge(w)
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	fs := &subFS{
		fs:       owner.files.fs,
		root:     sh.Path,
		readOnly: sh.Permissions&(PermUpdate|PermCreate) == 0,
	}
	serveDav(w, r, "/public.php/webdav", fs, owner.files.locks)
}

func serveDav(w http.ResponseWriter, r *http.Request, prefix string, fs webdav.FileSystem, locks webdav.LockSystem) {
	h := &webdav.Handler{
		Prefix:     prefix,
		FileSystem: fs,
		LockSystem: locks,
	}
	h.ServeHTTP(w, r)
}

// subFS exposes the subtree of fs below root, optionally read only.
type subFS struct {
	fs       webdav.FileSystem
	root     string
	readOnly bool
}

func (f *subFS) resolve(name string) string {
	return path.Join(f.root, name)
}

func (f *subFS) Mkdir(ctx context.Context, name string, perm os.FileMode) error {
	if f.readOnly {
		return os.ErrPermission
	}
	return f.fs.Mkdir(ctx, f.resolve(name), perm)
}

func (f *subFS) OpenFile(ctx context.Context, name string, flag int, perm os.FileMode) (webdav.File, error) {
	if f.readOnly && flag&(os.O_WRONLY|os.O_RDWR|os.O_CREATE|os.O_TRUNC|os.O_APPEND) != 0 {
		return nil, os.ErrPermission
	}
	return f.fs.OpenFile(ctx, f.resolve(name), flag, perm)
}

func (f *subFS) RemoveAll(ctx context.Context, name string) error {
	if f.readOnly {
		return os.ErrPermission
	}
	return f.fs.RemoveAll(ctx, f.resolve(name))
}

func (f *subFS) Rename(ctx context.Context, oldName, newName string) error {
	if f.readOnly {
		return os.ErrPermission
	}
	return f.fs.Rename(ctx, f.resolve(oldName), f.resolve(newName))
}

func (f *subFS) Stat(ctx context.Context, name string) (os.FileInfo, error) {
	return f.fs.Stat(ctx, f.resolve(name))
}

func (s *Server) filesOf(userID string) (webdav.FileSystem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, os.ErrNotExist
	}
	return u.files.fs, nil
}

// WriteFile stores content at name in the files of userID, creating parent
// folders as needed.
func (s *Server) WriteFile(userID, name string, content []byte) error {
	fs, err := s.filesOf(userID)
	if err != nil {
		return err
	}
	ctx := context.Background()
	name = path.Clean("/" + name)
	if err := mkdirAll(ctx, fs, path.Dir(name)); err != nil {
		return err
	}
	f, err := fs.OpenFile(ctx, name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile returns the content stored at name in the files of userID.
func (s *Server) ReadFile(userID, name string) ([]byte, error) {
	fs, err := s.filesOf(userID)
	if err != nil {
		return nil, err
	}
	f, err := fs.OpenFile(context.Background(), path.Clean("/"+name), os.O_RDONLY, 0)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

// Exists reports whether name exists in the files of userID.
func (s *Server) Exists(userID, name string) bool {
	fs, err := s.filesOf(userID)
	if err != nil {
		return false
	}
	_, err = fs.Stat(context.Background(), path.Clean("/"+name))
	return err == nil
}

// Mkdir creates the folder name, and its parents, in the files of userID.
func (s *Server) Mkdir(userID, name string) error {
	fs, err := s.filesOf(userID)
	if err != nil {
		return err
	}
	return mkdirAll(context.Background(), fs, path.Clean("/"+name))
}

func mkdirAll(ctx context.Context, fs webdav.FileSystem, dir string) error {
	if dir == "/" || dir == "." {
		return nil
	}
	if info, err := fs.Stat(ctx, dir); err == nil {
		if !info.IsDir() {
			return os.ErrExist
		}
		return nil
	}
	if err := mkdirAll(ctx, fs, path.Dir(dir)); err != nil {
		return err
	}
	return fs.Mkdir(ctx, dir, 0o755)
}
