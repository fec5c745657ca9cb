package inject

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/message"
)

type fixture struct {
	mem   *clip.Memory
	cache *cache.Cache
	files *content.Files
	clock *clock.FakeClock
	a     *Adapter
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mem:   clip.NewMemory(),
		files: content.NewFiles(""),
		clock: clock.Fake(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
	}
	var err error
	f.cache, err = cache.New(filepath.Join(t.TempDir(), "cache"), cache.DefaultKeep, f.clock)
	require.NoError(t, err)
	f.a = New(f.mem, f.cache, f.files)
	return f
}

func TestExtensionFor(t *testing.T) {
	tests := map[string]string{
		"image/jpeg":               ".jpg",
		"image/jpg":                ".jpg",
		"image/png":                ".png",
		"image/gif":                ".gif",
		"image/webp":               ".webp",
		"image/heic":               ".png",
		"image/bmp":                ".png",
		"IMAGE/JPEG; quality=high": ".jpg",
	}
	for mimeType, want := range tests {
		assert.Equal(t, want, ExtensionFor(mimeType), mimeType)
	}
}

func TestInjectText(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.a.Inject(message.NewText("hello")))
	require.NoError(t, f.a.Inject(message.NewText("hello")))

	it, err := f.mem.Current()
	require.NoError(t, err)
	assert.Equal(t, clip.Item{Label: TextLabel, Text: "hello"}, it)

	entries, err := f.cache.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestInjectPNG(t *testing.T) {
	f := newFixture(t)
	data := make([]byte, 100)
	copy(data, "\x89PNG\r\n\x1a\n")
	p, err := message.NewBinary("image/png", "pic.png", data)
	require.NoError(t, err)

	require.NoError(t, f.a.Inject(p))

	entries, err := f.cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, strings.HasPrefix(filepath.Base(entries[0].Path), "clipboard_image_"))
	assert.Equal(t, ".png", filepath.Ext(entries[0].Path))
	assert.EqualValues(t, 100, entries[0].Size)

	it, err := f.mem.Current()
	require.NoError(t, err)
	assert.Equal(t, ImageLabel, it.Label)
	assert.True(t, strings.HasPrefix(it.URI, "content://"+content.DefaultAuthority+"/"))

	info, err := f.files.Resolve(it.URI)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIMEType)
	rc, err := f.files.Open(it.URI)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestInjectEvictsOldest(t *testing.T) {
	f := newFixture(t)
	var paths []string
	for i := range 7 {
		p, err := message.NewBinary("image/jpeg", "", []byte{0xff, 0xd8, byte(i)})
		require.NoError(t, err)
		require.NoError(t, f.a.Inject(p))

		entries, err := f.cache.Entries()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(entries), cache.DefaultKeep)
		paths = append(paths, entries[0].Path)
		f.clock.Advance(time.Second)
	}

	entries, err := f.cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, cache.DefaultKeep)
	for _, gone := range paths[:2] {
		_, err := os.Stat(gone)
		assert.True(t, errors.Is(err, os.ErrNotExist), "%s should be evicted", gone)
	}
	assert.Equal(t, paths[6], entries[0].Path)
}

func TestInjectRejectsNonImage(t *testing.T) {
	f := newFixture(t)
	_, err := f.a.InjectStream(message.Metadata{MIMEType: "application/pdf"}, strings.NewReader("%PDF"))
	require.ErrorIs(t, err, message.ErrUnsupportedMimeType)
	assert.Zero(t, f.mem.Writes())
}

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) { return 0, message.ErrInvalidEncoding }

func TestInjectStreamFailureLeavesClipboard(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.mem.SetCurrent(clip.Item{Text: "before"}))

	_, err := f.a.InjectStream(message.Metadata{MIMEType: "image/png"}, brokenReader{})
	require.ErrorIs(t, err, message.ErrInvalidEncoding)

	it, err := f.mem.Current()
	require.NoError(t, err)
	assert.Equal(t, "before", it.Text)
	entries, err := f.cache.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}
