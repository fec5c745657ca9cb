package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/bridge"
	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/capture"
	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/clock"
	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/inject"
	"go.klb.dev/clipferry/internal/transport"
)

// app is the device-side object graph shared by serve, capture and the
// local fallback of send.
type app struct {
	clip   clip.Backend
	cache  *cache.Cache
	outbox *transport.Dir
	bridge *bridge.Bridge
}

// newApp builds the graph from v. backend may be nil, in which case the
// platform clipboard is opened.
func newApp(v *viper.Viper, backend clip.Backend, autoCapture bool) (*app, error) {
	form, err := codec.ParseFormat(v.GetString("form"))
	if err != nil {
		return nil, err
	}
	stream, err := parseCaptureMode(v.GetString("capture-mode"))
	if err != nil {
		return nil, err
	}

	clk := clock.Real()
	files := content.NewFiles(content.DefaultAuthority)
	c, err := cache.New(v.GetString("cache-dir"), v.GetInt("cache-keep"), clk)
	if err != nil {
		return nil, err
	}
	outbox, err := transport.NewDir(v.GetString("outbox"), form)
	if err != nil {
		return nil, err
	}
	if backend == nil {
		backend = clip.New(clip.Options{Resolver: files, StageDir: defaultDir("stage"), Clock: clk})
	}
	slog.Debug("clipboard backend", "name", backend.Name())

	a := &app{clip: backend, cache: c, outbox: outbox}
	a.bridge = bridge.New(bridge.Config{
		Clip:        backend,
		Capture:     capture.New(backend, files, v.GetInt64("max-image-bytes")),
		Inject:      inject.New(backend, c, files),
		Outbox:      outbox,
		Form:        form,
		Stream:      stream,
		SpoolDir:    v.GetString("spool"),
		AutoCapture: autoCapture,
	})
	return a, nil
}

func (a *app) Close() { a.clip.Close() }

func parseCaptureMode(s string) (stream bool, err error) {
	switch s {
	case "", "buffer":
		return false, nil
	case "stream":
		return true, nil
	default:
		return false, fmt.Errorf("unknown capture mode %q (want buffer|stream)", s)
	}
}
