package content

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipferry/internal/message"
)

var pngHeader = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0x0d, 'I', 'H', 'D', 'R'}

func writeFile(t *testing.T, name string, data []byte) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(p, data, 0o600))
	return p
}

func TestResolveSniffsContent(t *testing.T) {
	f := NewFiles("")
	// Misleading extension; the signature wins.
	p := writeFile(t, "screenshot.jpg", pngHeader)

	for _, uri := range []string{p, FileURI(p)} {
		info, err := f.Resolve(uri)
		require.NoError(t, err)
		assert.Equal(t, "image/png", info.MIMEType)
		assert.Equal(t, "screenshot.jpg", info.DisplayName)
	}
}

func TestResolveFallsBackToExtension(t *testing.T) {
	f := NewFiles("")
	p := writeFile(t, "empty.webp", nil)
	info, err := f.Resolve(p)
	require.NoError(t, err)
	assert.Equal(t, "image/webp", info.MIMEType)
}

func TestResolveText(t *testing.T) {
	f := NewFiles("")
	p := writeFile(t, "notes", []byte("just some notes"))
	info, err := f.Resolve(p)
	require.NoError(t, err)
	assert.False(t, message.IsImage(info.MIMEType))
	assert.True(t, strings.HasPrefix(info.MIMEType, "text/plain"))
}

func TestResolveMissingFile(t *testing.T) {
	_, err := NewFiles("").Resolve(filepath.Join(t.TempDir(), "nope.png"))
	require.ErrorIs(t, err, message.ErrStorage)
}

func TestGrantRoundTrip(t *testing.T) {
	f := NewFiles("test.authority")
	p := writeFile(t, "clipboard_image_1.png", append(pngHeader, 1, 2, 3))

	uri, err := f.Grant(p)
	require.NoError(t, err)
	assert.Equal(t, "content://test.authority/clipboard_image_1.png", uri)

	info, err := f.Resolve(uri)
	require.NoError(t, err)
	assert.Equal(t, "image/png", info.MIMEType)

	rc, err := f.Open(uri)
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Len(t, got, len(pngHeader)+3)
}

func TestForeignHandlesRejected(t *testing.T) {
	f := NewFiles("mine")
	_, err := f.Open("content://mine/never-granted.png")
	require.ErrorIs(t, err, ErrNotGranted)
	_, err = f.Open("content://other/x.png")
	require.ErrorIs(t, err, ErrNotGranted)
	_, err = f.Open("https://example.com/x.png")
	require.Error(t, err)
}

func TestGrantDropsVanishedFiles(t *testing.T) {
	f := NewFiles("")
	a := writeFile(t, "a.png", pngHeader)
	b := writeFile(t, "b.png", pngHeader)
	_, err := f.Grant(a)
	require.NoError(t, err)
	require.NoError(t, os.Remove(a))
	_, err = f.Grant(b)
	require.NoError(t, err)
	assert.Len(t, f.grants, 1)
}

func TestLastSegment(t *testing.T) {
	assert.Equal(t, "shot.png", LastSegment("content://media/external/images/shot.png"))
	assert.Equal(t, "x.gif", LastSegment("/tmp/x.gif"))
	assert.Equal(t, "", LastSegment("content://media"))
}
