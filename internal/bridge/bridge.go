// Package bridge owns the device clipboard on behalf of the exchange. It
// applies inbound wire messages through the inject adapter and, when the
// clipboard changes, captures the new item into the outbox.
//
// Every capture and injection runs on the single goroutine started by Run,
// so cache sweeps and clipboard writes never overlap.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"go.klb.dev/clipferry/internal/capture"
	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/inject"
	"go.klb.dev/clipferry/internal/logging"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/transport"
)

// Config wires a Bridge.
type Config struct {
	Clip    clip.Backend
	Capture *capture.Adapter
	Inject  *inject.Adapter

	// Outbox receives captured items.
	Outbox transport.Transport

	// Form is the binary wire form used for buffered captures.
	Form codec.Format

	// Stream captures images straight into the outbox with no size cap.
	// The outbox must implement capture.Sink.
	Stream bool

	// SpoolDir, when set, is the only directory Submit accepts request
	// files from. Consumed files are deleted, so a client may only name
	// files it spooled itself.
	SpoolDir string

	// AutoCapture captures every clipboard change observed while Run is
	// active. Items the bridge injected itself are not captured back.
	AutoCapture bool
}

// Bridge connects the clipboard, the adapters and the outbox.
type Bridge struct {
	cfg  Config
	jobs chan func()

	mu       sync.Mutex
	injected clip.Item // last item placed on the clipboard by Apply
}

// New returns a Bridge. It does nothing until Run or a direct call.
func New(cfg Config) *Bridge {
	if cfg.Form == 0 {
		cfg.Form = codec.FormatInline
	}
	return &Bridge{cfg: cfg, jobs: make(chan func())}
}

// Run serves Submit calls and clipboard changes until ctx is done.
func (b *Bridge) Run(ctx context.Context) error {
	slog.Info("bridge started", "clipboard", b.cfg.Clip.Name(), "auto_capture", b.cfg.AutoCapture)
	watch := b.cfg.Clip.Watch()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-b.jobs:
			job()
		case <-watch:
			if b.cfg.AutoCapture {
				b.onChange()
			}
		}
	}
}

// Submit applies req on the Run goroutine and waits for the outcome.
func (b *Bridge) Submit(ctx context.Context, req message.Request) message.Response {
	m, err := codec.FromRequest(req)
	if err == nil {
		err = b.checkSpool(m)
	}
	if err != nil {
		slog.Warn("request rejected", "err", err)
		return failure(err)
	}
	done := make(chan message.Response, 1)
	select {
	case b.jobs <- func() { done <- b.Apply(m) }:
	case <-ctx.Done():
		return failure(ctx.Err())
	}
	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		return failure(ctx.Err())
	}
}

// checkSpool rejects request files outside SpoolDir.
func (b *Bridge) checkSpool(m codec.WireMessage) error {
	if b.cfg.SpoolDir == "" {
		return nil
	}
	root := resolvePath(b.cfg.SpoolDir)
	for _, p := range m.Locations() {
		rel, err := filepath.Rel(root, resolvePath(p))
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) || filepath.IsAbs(rel) {
			return fmt.Errorf("%w: %s is outside the spool directory", message.ErrMalformedMessage, p)
		}
	}
	return nil
}

// resolvePath returns p made absolute with symlinks evaluated where they
// exist.
func resolvePath(p string) string {
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if resolved, err := filepath.EvalSymlinks(p); err == nil {
		return resolved
	}
	return filepath.Clean(p)
}

// Apply decodes m and injects it. On success the files m references are
// deleted. Apply runs on the caller's goroutine: call it directly only when
// no Run loop is active.
func (b *Bridge) Apply(m codec.WireMessage) message.Response {
	kind, size, err := b.apply(m)
	if err != nil {
		slog.Error("inject failed", "format", m.Format.String(), "err", err)
		return failure(err)
	}
	if err := transport.RemoveFiles(m); err != nil {
		slog.Warn("consumed request files not removed", "err", err)
	}
	return message.Response{OK: true, Kind: kind, Size: size}
}

func (b *Bridge) apply(m codec.WireMessage) (message.Kind, int64, error) {
	if m.Format == codec.FormatPlainText {
		p, err := codec.Decode(m)
		if err != nil {
			return "", 0, err
		}
		if err := b.cfg.Inject.Inject(p); err != nil {
			return "", 0, err
		}
		b.remember()
		logging.Payload("clipboard injected", p, "format", m.Format.String())
		return message.KindText, int64(p.Size()), nil
	}

	// Reject bad inline encodings before the inject path sweeps the cache.
	if err := codec.VerifyInline(m); err != nil {
		return "", 0, err
	}
	meta, rc, err := codec.OpenBinary(m)
	if err != nil {
		return "", 0, err
	}
	defer rc.Close()
	entry, err := b.cfg.Inject.InjectStream(meta, rc)
	if err != nil {
		return "", 0, err
	}
	b.remember()
	slog.Info("clipboard injected",
		"kind", message.KindBinary,
		"format", m.Format.String(),
		"mime", meta.MIMEType,
		"name", meta.NameOrFallback(),
		"size_bytes", entry.Size,
	)
	return message.KindBinary, entry.Size, nil
}

// remember records the clipboard's item right after an injection, so the
// change notification it causes is not captured back.
func (b *Bridge) remember() {
	it, err := b.cfg.Clip.Current()
	if err != nil {
		return
	}
	b.mu.Lock()
	b.injected = it
	b.mu.Unlock()
}

func (b *Bridge) onChange() {
	it, err := b.cfg.Clip.Current()
	if err != nil {
		slog.Warn("clipboard read failed", "err", err)
		return
	}
	b.mu.Lock()
	echo := !it.IsZero() && it == b.injected
	b.mu.Unlock()
	if echo {
		slog.Debug("clipboard change is our own injection, not capturing")
		return
	}
	if _, err := b.CaptureOnce(); err != nil && !errors.Is(err, message.ErrEmpty) {
		slog.Error("capture failed", "err", err)
	}
}

// CaptureOnce captures the current clipboard item into the outbox. An error
// wrapping message.ErrEmpty means nothing eligible was on the clipboard.
func (b *Bridge) CaptureOnce() (message.Kind, error) {
	if b.cfg.Stream {
		sink, ok := b.cfg.Outbox.(capture.Sink)
		if !ok {
			return "", fmt.Errorf("outbox %T cannot take streamed captures", b.cfg.Outbox)
		}
		kind, err := b.cfg.Capture.CaptureTo(sink)
		if err != nil {
			logEmpty(err)
			return "", err
		}
		slog.Info("clipboard captured", "kind", kind, "mode", "stream")
		return kind, nil
	}

	p, err := b.cfg.Capture.Capture()
	if err != nil {
		logEmpty(err)
		return "", err
	}
	m, err := codec.Encode(p, b.cfg.Form)
	if err != nil {
		return "", err
	}
	if err := b.cfg.Outbox.Send(m); err != nil {
		return "", err
	}
	logging.Payload("clipboard captured", p, "format", m.Format.String())
	return p.Kind, nil
}

func logEmpty(err error) {
	if errors.Is(err, message.ErrEmpty) {
		slog.Info("nothing to capture", "reason", err)
	}
}

func failure(err error) message.Response {
	return message.Response{Error: err.Error()}
}
