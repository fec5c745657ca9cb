// Package clip is the live clipboard capability. Build constraints select
// the platform implementation returned by New:
//
//	clip_desktop.go  cgo builds on macOS, Linux, Windows via golang.design/x/clipboard
//	clip_text.go     non-cgo builds via github.com/atotto/clipboard, text only
//	clip_other.go    everything else: in-memory
//
// Memory is always available and is what tests and headless hosts use.
package clip

import (
	"time"

	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/content"
)

// Item is the primary clipboard item. At most one of Text and URI is set;
// the zero Item is an empty clipboard.
type Item struct {
	// Label is the source label attached when clipferry writes the item.
	Label string
	Text  string
	// URI references binary content readable through a content.Resolver.
	URI string
}

// IsZero reports whether the item carries nothing.
func (it Item) IsZero() bool { return it.Text == "" && it.URI == "" }

// Backend is the interface that all live clipboard implementations satisfy.
type Backend interface {
	// Name returns a human-readable name for the backend.
	Name() string

	// Current returns the primary item, or the zero Item when the clipboard
	// is empty or holds nothing clipferry understands.
	Current() (Item, error)

	// SetCurrent replaces the primary item.
	SetCurrent(Item) error

	// Watch returns a channel that receives a signal whenever the clipboard
	// changes. The channel is never closed. The caller should call Current
	// when it receives from the channel.
	Watch() <-chan struct{}

	// Close releases any resources held by the backend.
	Close()
}

// Options configures the platform backend returned by New.
type Options struct {
	// Resolver reads URI items back when an image must be placed on a
	// platform clipboard that only holds bytes.
	Resolver content.Resolver

	// StageDir receives images read off a byte-oriented clipboard so they
	// can be exposed as file URIs.
	StageDir string

	Clock        clock.Clock
	PollInterval time.Duration
}

const defaultPollInterval = 250 * time.Millisecond

func (o Options) withDefaults() Options {
	if o.Clock == nil {
		o.Clock = clock.Real()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaultPollInterval
	}
	return o
}
