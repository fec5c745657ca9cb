package bridge

import (
	"bytes"
	"context"
	"encoding/base64"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/capture"
	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/inject"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/transport"
)

var pngBytes = append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 92)...)

type harness struct {
	mem    *clip.Memory
	outbox *transport.Memory
	cache  *cache.Cache
	b      *Bridge
}

func newHarness(t *testing.T, autoCapture bool) *harness {
	t.Helper()
	h := &harness{mem: clip.NewMemory(), outbox: transport.NewMemory(codec.FormatSplit)}
	files := content.NewFiles("")
	var err error
	h.cache, err = cache.New(filepath.Join(t.TempDir(), "cache"), cache.DefaultKeep, clock.Real())
	require.NoError(t, err)
	h.b = New(Config{
		Clip:        h.mem,
		Capture:     capture.New(h.mem, files, capture.DefaultMaxBytes),
		Inject:      inject.New(h.mem, h.cache, files),
		Outbox:      h.outbox,
		Form:        codec.FormatSplit,
		AutoCapture: autoCapture,
	})
	return h
}

func (h *harness) run(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = h.b.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return ctx
}

func TestSubmitText(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)

	resp := h.b.Submit(ctx, message.TextRequest("hello"))
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, message.KindText, resp.Kind)
	assert.EqualValues(t, 5, resp.Size)

	it, err := h.mem.Current()
	require.NoError(t, err)
	assert.Equal(t, "hello", it.Text)
	assert.Equal(t, inject.TextLabel, it.Label)
}

func TestSubmitInlineFields(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)

	resp := h.b.Submit(ctx, message.Request{
		ImageData: base64.StdEncoding.EncodeToString(pngBytes),
		MIMEType:  "image/png",
	})
	require.True(t, resp.OK, resp.Error)
	assert.Equal(t, message.KindBinary, resp.Kind)
	assert.EqualValues(t, len(pngBytes), resp.Size)

	entries, err := h.cache.Entries()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, ".png", filepath.Ext(entries[0].Path))
}

func TestSubmitSplitFilesDeletedAfterUse(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)

	dir := t.TempDir()
	metaPath := filepath.Join(dir, "req.meta")
	dataPath := filepath.Join(dir, "req.bin")
	require.NoError(t, os.WriteFile(metaPath, []byte("image/png\nphoto.png\n"), 0o600))
	require.NoError(t, os.WriteFile(dataPath, pngBytes, 0o600))

	resp := h.b.Submit(ctx, message.Request{ImageFile: metaPath, DataFile: dataPath})
	require.True(t, resp.OK, resp.Error)

	for _, p := range []string{metaPath, dataPath} {
		_, err := os.Stat(p)
		assert.True(t, os.IsNotExist(err), "%s should be consumed", p)
	}
}

func TestSubmitFailureKeepsFilesAndClipboard(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)
	require.NoError(t, h.mem.SetCurrent(clip.Item{Text: "keep me"}))

	p := filepath.Join(t.TempDir(), "bad.txt")
	require.NoError(t, os.WriteFile(p, []byte("image/png\nimage\n!!!not base64!!!"), 0o600))

	resp := h.b.Submit(ctx, message.Request{ImageFile: p})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, message.ErrInvalidEncoding.Error())

	_, err := os.Stat(p)
	require.NoError(t, err)
	it, err := h.mem.Current()
	require.NoError(t, err)
	assert.Equal(t, "keep me", it.Text)
}

func TestSubmitBadEncodingLeavesCache(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)
	for range cache.DefaultKeep + 1 {
		_, err := h.cache.Create(".png", bytes.NewReader(pngBytes))
		require.NoError(t, err)
	}

	resp := h.b.Submit(ctx, message.Request{ImageData: "!!!not base64!!!", MIMEType: "image/png"})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, message.ErrInvalidEncoding.Error())

	entries, err := h.cache.Entries()
	require.NoError(t, err)
	assert.Len(t, entries, cache.DefaultKeep+1, "a rejected request must not evict")
}

func TestSubmitEmptyInlineImage(t *testing.T) {
	h := newHarness(t, false)
	ctx := h.run(t)

	p := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(p, []byte("image/png\nempty.png\n"), 0o600))
	resp := h.b.Submit(ctx, message.Request{ImageFile: p})
	require.True(t, resp.OK, resp.Error)
	assert.Zero(t, resp.Size)
}

func TestSubmitOnlyConsumesSpoolFiles(t *testing.T) {
	h := newHarness(t, false)
	spool := t.TempDir()
	h.b.cfg.SpoolDir = spool
	ctx := h.run(t)

	outside := filepath.Join(t.TempDir(), "secret.bin")
	require.NoError(t, os.WriteFile(outside, pngBytes, 0o600))
	metaPath := filepath.Join(spool, "req.meta")
	require.NoError(t, os.WriteFile(metaPath, []byte("image/png\nphoto.png\n"), 0o600))

	for _, req := range []message.Request{
		{ImageFile: metaPath, DataFile: outside},
		{ImageFile: outside},
		{ImageFile: filepath.Join(spool, "..", "escape.txt")},
	} {
		resp := h.b.Submit(ctx, req)
		assert.False(t, resp.OK)
		assert.Contains(t, resp.Error, "outside the spool directory")
	}
	_, err := os.Stat(outside)
	require.NoError(t, err, "files outside the spool are never consumed")

	dataPath := filepath.Join(spool, "req.bin")
	require.NoError(t, os.WriteFile(dataPath, pngBytes, 0o600))
	resp := h.b.Submit(ctx, message.Request{ImageFile: metaPath, DataFile: dataPath})
	require.True(t, resp.OK, resp.Error)
}

func TestSubmitMalformed(t *testing.T) {
	h := newHarness(t, false)
	resp := h.b.Submit(context.Background(), message.Request{})
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, message.ErrMalformedMessage.Error())
}

func TestSubmitCancelled(t *testing.T) {
	h := newHarness(t, false)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	resp := h.b.Submit(ctx, message.TextRequest("never"))
	assert.False(t, resp.OK)
}

func TestCaptureOnceText(t *testing.T) {
	h := newHarness(t, false)
	require.NoError(t, h.mem.SetCurrent(clip.Item{Text: "hello world"}))

	kind, err := h.b.CaptureOnce()
	require.NoError(t, err)
	assert.Equal(t, message.KindText, kind)

	m, err := h.outbox.Receive()
	require.NoError(t, err)
	assert.Equal(t, codec.FormatPlainText, m.Format)
	assert.Equal(t, "hello world", string(m.Body))
}

func TestCaptureOnceEmpty(t *testing.T) {
	h := newHarness(t, false)
	_, err := h.b.CaptureOnce()
	require.ErrorIs(t, err, message.ErrEmpty)
	assert.Zero(t, h.outbox.Sent())
}

func TestAutoCaptureSkipsOwnInjection(t *testing.T) {
	h := newHarness(t, true)
	ctx := h.run(t)

	resp := h.b.Submit(ctx, message.TextRequest("from host"))
	require.True(t, resp.OK, resp.Error)

	// A user copy on the device is captured.
	require.NoError(t, h.mem.SetCurrent(clip.Item{Text: "from device"}))
	require.Eventually(t, func() bool {
		m, err := h.outbox.Receive()
		return err == nil && string(m.Body) == "from device"
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, 1, h.outbox.Sent(), "the injected item must not be captured")
}
