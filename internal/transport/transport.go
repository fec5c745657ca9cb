// Package transport moves wire messages between the device and the host.
//
// The channel is a shared directory (the outbox) holding at most one pending
// message. Each form has fixed file names:
//
//	clipboard_content.txt                        plain text
//	clipboard_image.txt                          inline image
//	clipboard_image.meta + clipboard_image.bin   split image
//
// A new message replaces whatever was pending. Readers acknowledge a message
// by deleting its files.
package transport

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/message"
)

// Outbox file names.
const (
	TextFile   = "clipboard_content.txt"
	InlineFile = "clipboard_image.txt"
	MetaFile   = "clipboard_image.meta"
	DataFile   = "clipboard_image.bin"
)

// Transport carries one pending wire message at a time.
type Transport interface {
	// Send replaces the pending message with m.
	Send(m codec.WireMessage) error

	// Receive returns the pending message, or an error wrapping
	// message.ErrEmpty when there is none. Split is preferred over inline,
	// inline over text, should more than one be present.
	Receive() (codec.WireMessage, error)

	// Ack discards m once it has been consumed.
	Ack(m codec.WireMessage) error
}

// RemoveFiles deletes the on-disk locations of m. Missing files are not an
// error.
func RemoveFiles(m codec.WireMessage) error {
	var errs []error
	for _, p := range m.Locations() {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("%w: removing consumed files: %w", message.ErrStorage, err)
	}
	return nil
}

// sink adapts a Transport with a fixed binary form into a capture sink.
type sink struct {
	send func(codec.WireMessage) error
	form codec.Format
}

func (s sink) PutText(text string) error {
	return s.send(codec.EncodeText(text))
}

func (s sink) PutBinary(meta message.Metadata, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("%w: reading image: %w", message.ErrStorage, err)
	}
	m, err := codec.Encode(message.Payload{
		Kind:   message.KindBinary,
		Binary: message.Binary{Metadata: meta, Data: data},
	}, s.form)
	if err != nil {
		return err
	}
	return s.send(m)
}
