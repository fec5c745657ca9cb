// Package cache is the directory-backed store of materialized clipboard
// images. It keeps at most Keep artifacts, ranked by modification time; older
// ones are deleted by Sweep, which the inject path runs inline around every
// write. There is no background process and no lock: two overlapping sweeps
// can transiently leave more than Keep+1 files, so callers funnel writes
// through one goroutine.
package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/message"
)

const (
	// DefaultKeep is the number of artifacts retained by default.
	DefaultKeep = 5

	artifactPrefix = "clipboard_image_"
	maxCollisions  = 1000
)

// Entry is one artifact in the cache directory.
type Entry struct {
	Path      string    `json:"path"`
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Cache manages one directory of artifacts.
type Cache struct {
	dir   string
	keep  int
	clock clock.Clock
}

// New returns a Cache rooted at dir, creating the directory if needed.
func New(dir string, keep int, clk clock.Clock) (*Cache, error) {
	if keep < 1 {
		return nil, fmt.Errorf("cache: keep must be at least 1, got %d", keep)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating cache dir: %w", message.ErrStorage, err)
	}
	return &Cache{dir: dir, keep: keep, clock: clk}, nil
}

// Dir returns the cache directory.
func (c *Cache) Dir() string { return c.dir }

// Keep returns the retention limit.
func (c *Cache) Keep() int { return c.keep }

// Entries lists the artifacts, newest first. Directories and dot files are
// not artifacts.
func (c *Cache) Entries() ([]Entry, error) {
	des, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: listing cache: %w", message.ErrStorage, err)
	}
	entries := make([]Entry, 0, len(des))
	for _, de := range des {
		if de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			// Removed between ReadDir and Info.
			continue
		}
		entries = append(entries, Entry{
			Path:      filepath.Join(c.dir, de.Name()),
			CreatedAt: info.ModTime(),
			Size:      info.Size(),
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].Path > entries[j].Path
	})
	return entries, nil
}

// Sweep deletes every artifact beyond the Keep newest and returns the
// entries it removed.
func (c *Cache) Sweep() ([]Entry, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	if len(entries) <= c.keep {
		return nil, nil
	}
	var (
		removed []Entry
		errs    []error
	)
	for _, e := range entries[c.keep:] {
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, e)
	}
	if len(removed) > 0 {
		slog.Debug("cache evicted", "dir", c.dir, "removed", len(removed), "kept", c.keep)
	}
	if err := errors.Join(errs...); err != nil {
		return removed, fmt.Errorf("%w: evicting: %w", message.ErrStorage, err)
	}
	return removed, nil
}

// Create writes everything read from r into a new artifact with extension
// ext. The name carries the clock's nanosecond timestamp, with a counter
// suffix if that name is taken. On any failure the partial file is removed.
//
// Write failures wrap message.ErrStorage; read failures are returned as the
// reader reported them.
func (c *Cache) Create(ext string, r io.Reader) (Entry, error) {
	now := c.clock.Now()
	f, path, err := c.createUnique(now, ext)
	if err != nil {
		return Entry{}, err
	}

	tw := &trackingWriter{w: f}
	n, copyErr := io.Copy(tw, r)
	closeErr := f.Close()
	switch {
	case copyErr != nil && tw.err == nil:
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("reading artifact source: %w", copyErr)
	case copyErr != nil:
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("%w: writing %s: %w", message.ErrStorage, filepath.Base(path), copyErr)
	case closeErr != nil:
		_ = os.Remove(path)
		return Entry{}, fmt.Errorf("%w: closing %s: %w", message.ErrStorage, filepath.Base(path), closeErr)
	}

	// Ranking uses mtime; stamp it from the clock so it agrees with the name.
	if err := os.Chtimes(path, now, now); err != nil {
		slog.Debug("cache chtimes failed", "path", path, "err", err)
	}
	return Entry{Path: path, CreatedAt: now, Size: n}, nil
}

func (c *Cache) createUnique(now time.Time, ext string) (*os.File, string, error) {
	base := fmt.Sprintf("%s%d", artifactPrefix, now.UnixNano())
	for i := 0; i < maxCollisions; i++ {
		name := base + ext
		if i > 0 {
			name = fmt.Sprintf("%s_%d%s", base, i, ext)
		}
		path := filepath.Join(c.dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return nil, "", fmt.Errorf("%w: creating artifact: %w", message.ErrStorage, err)
		}
		return f, path, nil
	}
	return nil, "", fmt.Errorf("%w: no free artifact name for %s", message.ErrStorage, base)
}

// trackingWriter remembers whether io.Copy failed on the write side.
type trackingWriter struct {
	w   io.Writer
	err error
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	n, err := t.w.Write(p)
	if err != nil {
		t.err = err
	}
	return n, err
}
