// Package dav builds WebDAV paths and clients for the file-sharing server.
package dav

import (
	"net/http"
	"strings"

	"github.com/studio-b12/gowebdav"
)

const (
	LegacyRoot = "remote.php/webdav"
	Root       = "remote.php/dav"
	PublicRoot = "public.php/webdav"

	TypeFiles = "files"
)

// PathBuilder resolves DAV paths for a user, either against the per-user
// files root or the legacy single root.
type PathBuilder struct {
	Legacy bool
}

// FilesPath returns the files root of user, with a trailing slash.
func (b PathBuilder) FilesPath(user string) string {
	if b.Legacy {
		return LegacyRoot + "/"
	}
	return Root + "/files/" + user + "/"
}

// Build returns the encoded DAV path of path in the collection typ of user.
// typ is "files" for user files, or another DAV collection such as "uploads".
// path is joined to the collection root with a single slash.
func (b PathBuilder) Build(user, typ, path string) string {
	if typ == TypeFiles {
		return EncodePath(b.FilesPath(user) + strings.TrimLeft(path, "/"))
	}
	return EncodePath(Root + "/" + typ + "/" + user + "/" + strings.TrimLeft(path, "/"))
}

// Client returns a WebDAV client rooted at the files root of user.
func (b PathBuilder) Client(baseURL, user, password string, transport http.RoundTripper) *gowebdav.Client {
	return newClient(joinRoot(baseURL, b.FilesPath(user)), user, password, transport)
}

// PublicClient returns a WebDAV client on the public share root, authenticated
// with the share token as user name.
func PublicClient(baseURL, shareToken, password string, transport http.RoundTripper) *gowebdav.Client {
	return newClient(joinRoot(baseURL, PublicRoot), shareToken, password, transport)
}

func newClient(root, user, password string, transport http.RoundTripper) *gowebdav.Client {
	c := gowebdav.NewClient(root, user, password)
	if transport != nil {
		c.SetTransport(transport)
	}
	return c
}

func joinRoot(baseURL, path string) string {
	return strings.TrimRight(strings.TrimRight(baseURL, "/")+"/"+strings.TrimLeft(path, "/"), "/") + "/"
}

const upperhex = "0123456789ABCDEF"

// EncodePath percent-encodes every byte of p outside the RFC 3986 unreserved
// set and then restores the slashes.
func EncodePath(p string) string {
	var sb strings.Builder
	sb.Grow(len(p) * 3)
	for i := 0; i < len(p); i++ {
		c := p[i]
		if unreserved(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte(upperhex[c>>4])
		sb.WriteByte(upperhex[c&15])
	}
	return strings.ReplaceAll(sb.String(), "%2F", "/")
}

func unreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	case c == '-', c == '_', c == '.', c == '~':
		return true
	}
	return false
}
