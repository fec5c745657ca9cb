package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/message"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newCache(t *testing.T, keep int) (*Cache, *clock.FakeClock) {
	t.Helper()
	clk := clock.Fake(epoch)
	c, err := New(filepath.Join(t.TempDir(), "clipboard_images"), keep, clk)
	require.NoError(t, err)
	return c, clk
}

func TestEvictionKeepsNewest(t *testing.T) {
	c, clk := newCache(t, DefaultKeep)

	var created []string
	for i := 0; i < 7; i++ {
		clk.Advance(time.Millisecond)
		_, err := c.Sweep()
		require.NoError(t, err)
		e, err := c.Create(".png", bytes.NewReader([]byte(fmt.Sprintf("image %d", i))))
		require.NoError(t, err)
		created = append(created, e.Path)
		_, err = c.Sweep()
		require.NoError(t, err)
	}

	entries, err := c.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i, e := range entries {
		assert.Equal(t, created[6-i], e.Path, "entry %d", i)
	}
	for _, gone := range created[:2] {
		assert.NoFileExists(t, gone)
	}
}

func TestSweepBeforeWriteBoundsCount(t *testing.T) {
	c, clk := newCache(t, 2)
	for i := 0; i < 4; i++ {
		clk.Advance(time.Second)
		_, err := c.Sweep()
		require.NoError(t, err)
		_, err = c.Create(".jpg", bytes.NewReader([]byte{byte(i)}))
		require.NoError(t, err)

		entries, err := c.Entries()
		require.NoError(t, err)
		assert.LessOrEqual(t, len(entries), c.Keep()+1)
	}
}

func TestCreateNamesAreUniqueAtSameInstant(t *testing.T) {
	c, _ := newCache(t, 10)
	a, err := c.Create(".png", bytes.NewReader([]byte("a")))
	require.NoError(t, err)
	b, err := c.Create(".png", bytes.NewReader([]byte("b")))
	require.NoError(t, err)

	assert.NotEqual(t, a.Path, b.Path)
	assert.Equal(t, fmt.Sprintf("clipboard_image_%d.png", epoch.UnixNano()), filepath.Base(a.Path))
	assert.Equal(t, fmt.Sprintf("clipboard_image_%d_1.png", epoch.UnixNano()), filepath.Base(b.Path))
}

func TestCreateStampsClockTime(t *testing.T) {
	c, _ := newCache(t, 1)
	e, err := c.Create(".gif", bytes.NewReader([]byte("GIF89a")))
	require.NoError(t, err)
	assert.Equal(t, int64(6), e.Size)

	info, err := os.Stat(e.Path)
	require.NoError(t, err)
	assert.True(t, info.ModTime().Equal(epoch), "mtime %v", info.ModTime())
}

func TestCreateRemovesPartialArtifactOnReadError(t *testing.T) {
	c, _ := newCache(t, 5)
	boom := errors.New("boom")
	src := io.MultiReader(bytes.NewReader(make([]byte, 4096)), iotest.ErrReader(boom))

	_, err := c.Create(".png", src)
	require.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, message.ErrStorage)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestCreateFailsOnMissingDirectory(t *testing.T) {
	c, _ := newCache(t, 5)
	require.NoError(t, os.RemoveAll(c.Dir()))

	_, err := c.Create(".png", bytes.NewReader([]byte("x")))
	require.ErrorIs(t, err, message.ErrStorage)
}

func TestEntriesSkipsDirsAndDotFiles(t *testing.T) {
	c, _ := newCache(t, 5)
	require.NoError(t, os.Mkdir(filepath.Join(c.Dir(), "sub"), 0o700))
	require.NoError(t, os.WriteFile(filepath.Join(c.Dir(), ".partial"), []byte("x"), 0o600))
	_, err := c.Create(".png", bytes.NewReader([]byte("x")))
	require.NoError(t, err)

	entries, err := c.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSweepCountsForeignFiles(t *testing.T) {
	c, clk := newCache(t, 1)
	old := filepath.Join(c.Dir(), "left-behind.png")
	require.NoError(t, os.WriteFile(old, []byte("x"), 0o600))
	require.NoError(t, os.Chtimes(old, epoch.Add(-time.Hour), epoch.Add(-time.Hour)))

	clk.Advance(time.Second)
	_, err := c.Create(".png", bytes.NewReader([]byte("y")))
	require.NoError(t, err)

	removed, err := c.Sweep()
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, old, removed[0].Path)
}

func TestNewRejectsZeroKeep(t *testing.T) {
	_, err := New(t.TempDir(), 0, clock.Real())
	require.Error(t, err)
}
