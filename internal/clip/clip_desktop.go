//go:build cgo && (darwin || linux || windows)

package clip

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"golang.design/x/clipboard"

	"go.klb.dev/clipferry/internal/content"
)

const stagedImageName = "clipboard_capture.png"

type desktopBackend struct {
	resolver content.Resolver
	stageDir string
	poll     *poller
}

// New returns the desktop clipboard backend, or an in-memory headless
// backend if the display environment is unavailable (a server without X11
// or Wayland). clipboard.Init is called here rather than in init() so that
// sub-commands that never touch the clipboard don't log the warning.
func New(opts Options) Backend {
	opts = opts.withDefaults()
	if err := clipboard.Init(); err != nil {
		slog.Warn("clipboard unavailable, running headless", "err", err)
		return newHeadless()
	}
	if opts.StageDir == "" {
		opts.StageDir = os.TempDir()
	}
	b := &desktopBackend{resolver: opts.Resolver, stageDir: opts.StageDir}
	b.poll = newPoller(opts.Clock, opts.PollInterval, func() fingerprint {
		return fingerprintOf(clipboard.Read(clipboard.FmtText), clipboard.Read(clipboard.FmtImage))
	})
	return b
}

func (b *desktopBackend) Name() string { return "desktop clipboard (poll)" }

// Current prefers an image over text. Images are staged to a file so they
// travel as a URI like any other binary item.
func (b *desktopBackend) Current() (Item, error) {
	if img := clipboard.Read(clipboard.FmtImage); len(img) > 0 {
		if err := os.MkdirAll(b.stageDir, 0o700); err != nil {
			return Item{}, fmt.Errorf("staging clipboard image: %w", err)
		}
		p := filepath.Join(b.stageDir, stagedImageName)
		if err := os.WriteFile(p, img, 0o600); err != nil {
			return Item{}, fmt.Errorf("staging clipboard image: %w", err)
		}
		return Item{URI: content.FileURI(p)}, nil
	}
	if text := clipboard.Read(clipboard.FmtText); len(text) > 0 {
		return Item{Text: string(text)}, nil
	}
	return Item{}, nil
}

func (b *desktopBackend) SetCurrent(it Item) error {
	defer b.poll.rebase()
	if it.URI == "" {
		clipboard.Write(clipboard.FmtText, []byte(it.Text))
		return nil
	}
	if b.resolver == nil {
		return errors.New("desktop clipboard: no resolver for URI items")
	}
	info, err := b.resolver.Resolve(it.URI)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", it.URI, err)
	}
	rc, err := b.resolver.Open(it.URI)
	if err != nil {
		return fmt.Errorf("open %s: %w", it.URI, err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return fmt.Errorf("read %s: %w", it.URI, err)
	}
	img, err := toPNG(data, info.MIMEType)
	if err != nil {
		return err
	}
	clipboard.Write(clipboard.FmtImage, img)
	return nil
}

func (b *desktopBackend) Watch() <-chan struct{} { return b.poll.watchCh }
func (b *desktopBackend) Close()                 { b.poll.stop() }
