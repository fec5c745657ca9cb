//go:build !(cgo && (darwin || linux || windows)) && (darwin || linux || windows || freebsd || openbsd || netbsd)

package clip

import (
	"fmt"
	"log/slog"

	"github.com/atotto/clipboard"
)

type textBackend struct {
	poll *poller
}

// New returns a text-only backend driven by the platform's clipboard
// utilities (pbcopy, xclip/xsel/wl-copy, the Win32 API). Without cgo there
// is no image access, so URI items are refused.
func New(opts Options) Backend {
	opts = opts.withDefaults()
	if clipboard.Unsupported {
		slog.Warn("clipboard utilities not found, running headless")
		return newHeadless()
	}
	b := &textBackend{}
	b.poll = newPoller(opts.Clock, opts.PollInterval, func() fingerprint {
		text, err := clipboard.ReadAll()
		if err != nil {
			return fingerprint{}
		}
		return fingerprintOf([]byte(text))
	})
	return b
}

func (b *textBackend) Name() string { return "text clipboard (poll)" }

func (b *textBackend) Current() (Item, error) {
	text, err := clipboard.ReadAll()
	if err != nil {
		return Item{}, fmt.Errorf("clipboard read: %w", err)
	}
	return Item{Text: text}, nil
}

func (b *textBackend) SetCurrent(it Item) error {
	if it.URI != "" {
		return fmt.Errorf("%s cannot hold image items (build with cgo)", b.Name())
	}
	defer b.poll.rebase()
	if err := clipboard.WriteAll(it.Text); err != nil {
		return fmt.Errorf("clipboard write: %w", err)
	}
	return nil
}

func (b *textBackend) Watch() <-chan struct{} { return b.poll.watchCh }
func (b *textBackend) Close()                 { b.poll.stop() }
