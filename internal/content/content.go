// Package content resolves clipboard URI references to readable data and
// grants read-only handles to locally materialized files.
//
// Files understands three reference shapes:
//
//	/abs/path or file:///abs/path    any readable local file
//	content://<authority>/<name>     a handle previously returned by Grant
//
// Handles are process-local: only files granted by this Files value resolve.
package content

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/h2non/filetype"

	"go.klb.dev/clipferry/internal/message"
)

// DefaultAuthority is the authority used in granted handles.
const DefaultAuthority = "clipferry.cache"

// sniffLen covers every signature filetype matches on.
const sniffLen = 262

// ErrNotGranted is returned for content:// handles this resolver never issued.
var ErrNotGranted = errors.New("content handle not granted")

// Info is what the resolver knows about a reference.
type Info struct {
	MIMEType    string // empty when unknown
	DisplayName string // empty when unknown
}

// Resolver turns a clipboard URI into metadata and a byte stream.
type Resolver interface {
	Resolve(uri string) (Info, error)
	Open(uri string) (io.ReadCloser, error)
}

// Granter issues read-only handles for local files.
type Granter interface {
	Grant(path string) (string, error)
}

// Files is a Resolver and Granter over the local filesystem.
type Files struct {
	authority string

	mu     sync.RWMutex
	grants map[string]string // handle name → absolute path
}

var (
	_ Resolver = (*Files)(nil)
	_ Granter  = (*Files)(nil)
)

// NewFiles returns a Files issuing handles under authority.
func NewFiles(authority string) *Files {
	if authority == "" {
		authority = DefaultAuthority
	}
	return &Files{authority: authority, grants: make(map[string]string)}
}

// Grant returns a content:// handle for p. Grants for files that no longer
// exist are dropped on each call.
func (f *Files) Grant(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("grant %s: %w", p, err)
	}
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("%w: grant: %w", message.ErrStorage, err)
	}
	name := filepath.Base(abs)

	f.mu.Lock()
	defer f.mu.Unlock()
	for n, granted := range f.grants {
		if _, err := os.Stat(granted); errors.Is(err, fs.ErrNotExist) {
			delete(f.grants, n)
		}
	}
	f.grants[name] = abs

	u := url.URL{Scheme: "content", Host: f.authority, Path: "/" + name}
	return u.String(), nil
}

// Resolve sniffs the MIME type of the referenced file, falling back to its
// extension, and reports its base name.
func (f *Files) Resolve(uri string) (Info, error) {
	p, err := f.localPath(uri)
	if err != nil {
		return Info{}, err
	}
	file, err := os.Open(p)
	if err != nil {
		return Info{}, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	defer file.Close()

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(file, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return Info{}, fmt.Errorf("%w: sniffing %s: %w", message.ErrStorage, p, err)
	}
	return Info{
		MIMEType:    DetectMIME(head[:n], filepath.Ext(p)),
		DisplayName: filepath.Base(p),
	}, nil
}

// Open opens the referenced file for reading.
func (f *Files) Open(uri string) (io.ReadCloser, error) {
	p, err := f.localPath(uri)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return file, nil
}

func (f *Files) localPath(uri string) (string, error) {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme == "" || len(u.Scheme) == 1 {
		// Bare paths, including Windows drive letters parsed as a scheme.
		return filepath.Clean(uri), nil
	}
	switch u.Scheme {
	case "file":
		return filepath.FromSlash(u.Path), nil
	case "content":
		if u.Host != f.authority {
			return "", fmt.Errorf("%w: authority %q", ErrNotGranted, u.Host)
		}
		f.mu.RLock()
		p, ok := f.grants[strings.TrimPrefix(u.Path, "/")]
		f.mu.RUnlock()
		if !ok {
			return "", fmt.Errorf("%w: %s", ErrNotGranted, uri)
		}
		return p, nil
	default:
		return "", fmt.Errorf("unsupported URI scheme %q", u.Scheme)
	}
}

// DetectMIME identifies a type from leading bytes, then from the file
// extension. It returns "" when neither is conclusive.
func DetectMIME(head []byte, ext string) string {
	if kind, _ := filetype.Match(head); kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if ext != "" {
		if t := mime.TypeByExtension(strings.ToLower(ext)); t != "" {
			return message.NormalizeMIME(t)
		}
	}
	if len(head) > 0 {
		if t := http.DetectContentType(head); t != "application/octet-stream" {
			return message.NormalizeMIME(t)
		}
	}
	return ""
}

// FileURI returns the file:// URI of p.
func FileURI(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(p)}
	return u.String()
}

// LastSegment returns the final path segment of a URI or path, or "".
func LastSegment(uri string) string {
	p := uri
	if u, err := url.Parse(uri); err == nil && len(u.Scheme) > 1 {
		p = u.Path
	}
	if p == "" {
		return ""
	}
	seg := path.Base(filepath.ToSlash(p))
	if seg == "." || seg == "/" {
		return ""
	}
	return seg
}
