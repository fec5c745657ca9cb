package transport

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// Watch signals on the returned channel whenever a message may have become
// pending in the outbox. Signals coalesce; callers should Receive after
// each one. The channel is closed when ctx is done or the watcher fails.
func (d *Dir) Watch(ctx context.Context) (<-chan struct{}, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("outbox watcher: %w", err)
	}
	if err := w.Add(d.dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("watching %s: %w", d.dir, err)
	}

	ch := make(chan struct{}, 1)
	go func() {
		defer close(ch)
		defer w.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
					continue
				}
				switch filepath.Base(ev.Name) {
				case TextFile, InlineFile, MetaFile:
				default:
					// Temporaries and the split data file, which always
					// precedes its metadata.
					continue
				}
				select {
				case ch <- struct{}{}:
				default:
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				slog.Warn("outbox watcher error", "dir", d.dir, "err", err)
			}
		}
	}()
	return ch, nil
}
