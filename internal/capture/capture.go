// Package capture reads the live clipboard into a message.Payload.
//
// Capture buffers the item and enforces a byte cap; CaptureTo streams a
// binary item straight to a Sink with no cap at this layer. Neither mutates
// the clipboard.
package capture

import (
	"errors"
	"fmt"
	"io"
	"log/slog"

	"go.klb.dev/clipferry/internal/clip"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/message"
)

// DefaultMaxBytes is the binary cap used when none is configured.
const DefaultMaxBytes int64 = 10 << 20

const chunkSize = 16 << 10

// Sink receives a captured item in stream mode.
type Sink interface {
	PutText(text string) error
	PutBinary(meta message.Metadata, r io.Reader) error
}

// Adapter captures from one clipboard backend.
type Adapter struct {
	clip     clip.Backend
	resolver content.Resolver
	maxBytes int64
}

// New returns an Adapter. maxBytes <= 0 disables the cap.
func New(b clip.Backend, r content.Resolver, maxBytes int64) *Adapter {
	return &Adapter{clip: b, resolver: r, maxBytes: maxBytes}
}

// MaxBytes returns the configured cap, or 0 when uncapped.
func (a *Adapter) MaxBytes() int64 {
	if a.maxBytes <= 0 {
		return 0
	}
	return a.maxBytes
}

// Capture returns the clipboard's current item. An errors.Is(err,
// message.ErrEmpty) result means there was nothing eligible; it may be
// joined with ErrUnsupportedMimeType or ErrSizeLimitExceeded.
func (a *Adapter) Capture() (message.Payload, error) {
	it, err := a.clip.Current()
	if err != nil {
		return message.Payload{}, fmt.Errorf("%w: reading clipboard: %w", message.ErrStorage, err)
	}
	switch {
	case it.URI != "":
		meta, err := a.resolve(it.URI)
		if err != nil {
			return message.Payload{}, err
		}
		data, err := a.readCapped(it.URI)
		if err != nil {
			return message.Payload{}, err
		}
		return message.Payload{Kind: message.KindBinary, Binary: message.Binary{Metadata: meta, Data: data}}, nil
	case it.Text != "":
		return message.NewText(it.Text), nil
	default:
		return message.Payload{}, message.ErrEmpty
	}
}

// CaptureTo streams the current item into sink and reports its kind.
func (a *Adapter) CaptureTo(sink Sink) (message.Kind, error) {
	it, err := a.clip.Current()
	if err != nil {
		return "", fmt.Errorf("%w: reading clipboard: %w", message.ErrStorage, err)
	}
	switch {
	case it.URI != "":
		meta, err := a.resolve(it.URI)
		if err != nil {
			return "", err
		}
		rc, err := a.resolver.Open(it.URI)
		if err != nil {
			return "", fmt.Errorf("%w: opening %s: %w", message.ErrStorage, it.URI, err)
		}
		defer rc.Close()
		if err := sink.PutBinary(meta, rc); err != nil {
			return "", err
		}
		return message.KindBinary, nil
	case it.Text != "":
		if err := sink.PutText(it.Text); err != nil {
			return "", err
		}
		return message.KindText, nil
	default:
		return "", message.ErrEmpty
	}
}

// resolve checks that uri names an image and derives its metadata.
func (a *Adapter) resolve(uri string) (message.Metadata, error) {
	if a.resolver == nil {
		return message.Metadata{}, fmt.Errorf("%w: no resolver for %s", message.ErrStorage, uri)
	}
	info, err := a.resolver.Resolve(uri)
	if err != nil {
		return message.Metadata{}, fmt.Errorf("%w: resolving %s: %w", message.ErrStorage, uri, err)
	}
	if !message.IsImage(info.MIMEType) {
		slog.Warn("capture: skipping non-image clipboard item", "uri", uri, "mime", info.MIMEType)
		return message.Metadata{}, errors.Join(message.ErrEmpty,
			fmt.Errorf("%w: %q", message.ErrUnsupportedMimeType, info.MIMEType))
	}
	name := info.DisplayName
	if name == "" {
		name = content.LastSegment(uri)
	}
	return message.Metadata{MIMEType: message.NormalizeMIME(info.MIMEType), DisplayName: name}, nil
}

// readCapped reads uri in chunkSize steps and gives up once more than
// maxBytes have arrived. Nothing read is kept on failure.
func (a *Adapter) readCapped(uri string) ([]byte, error) {
	rc, err := a.resolver.Open(uri)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %w", message.ErrStorage, uri, err)
	}
	defer rc.Close()

	var (
		r     io.Reader = rc
		limit           = a.MaxBytes()
	)
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	var data []byte
	buf := make([]byte, chunkSize)
	for {
		n, err := r.Read(buf)
		data = append(data, buf[:n]...)
		if limit > 0 && int64(len(data)) > limit {
			slog.Warn("capture: image exceeds size cap", "uri", uri, "max_bytes", limit)
			return nil, errors.Join(message.ErrEmpty,
				fmt.Errorf("%w: more than %d bytes", message.ErrSizeLimitExceeded, limit))
		}
		if errors.Is(err, io.EOF) {
			return data, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: reading %s: %w", message.ErrStorage, uri, err)
		}
	}
}
