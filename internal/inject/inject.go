// Package inject places a received payload on the live clipboard. Images are
// materialized into the eviction cache first and exposed to the clipboard
// through a read-only content handle.
package inject

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/message"
)

// Source labels attached to items written by clipferry.
const (
	TextLabel  = "clipferry"
	ImageLabel = "clipferry image"
)

// ExtensionFor maps an image MIME type to the artifact file extension.
// Unknown image types get ".png"; the file contents are not converted, so
// the extension is only a hint for consumers that sniff.
func ExtensionFor(mimeType string) string {
	switch message.NormalizeMIME(mimeType) {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}

// Adapter writes payloads to one clipboard backend.
type Adapter struct {
	clip    clip.Backend
	cache   *cache.Cache
	granter content.Granter
}

// New returns an Adapter.
func New(b clip.Backend, c *cache.Cache, g content.Granter) *Adapter {
	return &Adapter{clip: b, cache: c, granter: g}
}

// Inject places p on the clipboard. Text is written directly. Images are
// written to the cache, granted a handle and then set as the primary item;
// if any step before the clipboard write fails the clipboard is untouched.
func (a *Adapter) Inject(p message.Payload) error {
	switch p.Kind {
	case message.KindText:
		if err := a.clip.SetCurrent(clip.Item{Label: TextLabel, Text: p.Text}); err != nil {
			return fmt.Errorf("%w: setting clipboard: %w", message.ErrStorage, err)
		}
		return nil
	case message.KindBinary:
		_, err := a.InjectStream(p.Binary.Metadata, bytes.NewReader(p.Binary.Data))
		return err
	default:
		return fmt.Errorf("%w: unknown payload kind %q", message.ErrInvalidPayload, p.Kind)
	}
}

// InjectStream materializes an image read from r and places it on the
// clipboard, returning the cache entry it created. Bytes are copied straight
// from r to the artifact file.
func (a *Adapter) InjectStream(meta message.Metadata, r io.Reader) (cache.Entry, error) {
	if !message.IsImage(meta.MIMEType) {
		return cache.Entry{}, fmt.Errorf("%w: %q", message.ErrUnsupportedMimeType, meta.MIMEType)
	}
	if _, err := a.cache.Sweep(); err != nil {
		slog.Warn("inject: pre-write sweep failed", "err", err)
	}

	entry, err := a.cache.Create(ExtensionFor(meta.MIMEType), r)
	if err != nil {
		return cache.Entry{}, err
	}
	handle, err := a.granter.Grant(entry.Path)
	if err != nil {
		_ = os.Remove(entry.Path)
		return cache.Entry{}, fmt.Errorf("granting %s: %w", entry.Path, err)
	}
	if err := a.clip.SetCurrent(clip.Item{Label: ImageLabel, URI: handle}); err != nil {
		return entry, fmt.Errorf("%w: setting clipboard: %w", message.ErrStorage, err)
	}

	if _, err := a.cache.Sweep(); err != nil {
		slog.Warn("inject: post-write sweep failed", "err", err)
	}
	slog.Debug("inject: image placed", "path", entry.Path, "mime", meta.MIMEType, "bytes", entry.Size)
	return entry, nil
}
