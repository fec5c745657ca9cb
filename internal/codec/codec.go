// Package codec translates between message.Payload and the wire forms that
// carry it across the file/dispatch channel.
//
// Three forms are supported, oldest first:
//
//	plain text   raw UTF-8 bytes, no envelope
//	inline       <mime>\n<display name or "image">\n<base64, any line breaks>
//	split        <mime>\n<display name>\n in one record, raw bytes in another
//
// The split form exists because base64 inflates an image by a third and the
// inline form has to be buffered whole on at least one side. Split payloads
// are streamed in both directions.
package codec

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"go.klb.dev/clipferry/internal/message"
)

// Format discriminates the three wire forms.
type Format int

const (
	FormatPlainText Format = iota + 1
	FormatInline
	FormatSplit
)

func (f Format) String() string {
	switch f {
	case FormatPlainText:
		return "text"
	case FormatInline:
		return "inline"
	case FormatSplit:
		return "split"
	default:
		return fmt.Sprintf("unknown(%d)", int(f))
	}
}

// ParseFormat parses the name of a binary form ("inline" or "split").
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "inline":
		return FormatInline, nil
	case "split":
		return FormatSplit, nil
	default:
		return 0, fmt.Errorf("unknown binary form %q (want inline|split)", s)
	}
}

// WireMessage is the serialized form of one Payload. Each body lives either
// in memory or at a location on disk, never both:
//
//	Body / BodyPath   text bytes, the whole inline message, or the split
//	                  metadata record
//	Data / DataPath   split form only: the raw binary
type WireMessage struct {
	Format   Format
	Body     []byte
	BodyPath string
	Data     []byte
	DataPath string
}

// Locations returns the on-disk paths referenced by m.
func (m WireMessage) Locations() []string {
	var out []string
	if m.BodyPath != "" {
		out = append(out, m.BodyPath)
	}
	if m.DataPath != "" {
		out = append(out, m.DataPath)
	}
	return out
}

// EncodeText returns the plain-text form of text.
func EncodeText(text string) WireMessage {
	return WireMessage{Format: FormatPlainText, Body: []byte(text)}
}

// EncodeInline returns the inline form of b held in memory.
func EncodeInline(b message.Binary) WireMessage {
	var buf bytes.Buffer
	buf.Grow(len(b.MIMEType) + len(b.DisplayName) + base64.StdEncoding.EncodedLen(len(b.Data)) + 2)
	// bytes.Buffer writes cannot fail.
	_, _ = WriteInline(&buf, b.Metadata, bytes.NewReader(b.Data))
	return WireMessage{Format: FormatInline, Body: buf.Bytes()}
}

// SplitMessage returns the split form of b held in memory.
func SplitMessage(b message.Binary) WireMessage {
	var meta bytes.Buffer
	_ = WriteMetadata(&meta, b.Metadata)
	return WireMessage{Format: FormatSplit, Body: meta.Bytes(), Data: b.Data}
}

// Encode returns the wire form of p. Binary payloads use binaryForm, which
// must be FormatInline or FormatSplit.
func Encode(p message.Payload, binaryForm Format) (WireMessage, error) {
	switch p.Kind {
	case message.KindText:
		return EncodeText(p.Text), nil
	case message.KindBinary:
		switch binaryForm {
		case FormatInline:
			return EncodeInline(p.Binary), nil
		case FormatSplit:
			return SplitMessage(p.Binary), nil
		}
		return WireMessage{}, fmt.Errorf("binary form %s not usable for images", binaryForm)
	default:
		return WireMessage{}, fmt.Errorf("%w: unknown payload kind %q", message.ErrInvalidPayload, p.Kind)
	}
}

// EncodeSplit writes the metadata record of b to metadataSink and its bytes,
// unencoded, to dataSink.
func EncodeSplit(b message.Binary, metadataSink, dataSink io.Writer) error {
	_, err := WriteSplit(b.Metadata, bytes.NewReader(b.Data), metadataSink, dataSink)
	return err
}

// WriteSplit is the streaming form of EncodeSplit. It returns the number of
// binary bytes copied from r.
func WriteSplit(meta message.Metadata, r io.Reader, metadataSink, dataSink io.Writer) (int64, error) {
	if err := WriteMetadata(metadataSink, meta); err != nil {
		return 0, err
	}
	n, err := io.Copy(dataSink, r)
	if err != nil {
		return n, fmt.Errorf("split data: %w", err)
	}
	return n, nil
}

// WriteInline streams the inline form to w: the metadata lines followed by
// the base64 of everything read from r, unwrapped. It returns the number of
// binary bytes consumed from r.
func WriteInline(w io.Writer, meta message.Metadata, r io.Reader) (int64, error) {
	if err := WriteMetadata(w, meta); err != nil {
		return 0, err
	}
	enc := base64.NewEncoder(base64.StdEncoding, w)
	n, err := io.Copy(enc, r)
	if err != nil {
		return n, fmt.Errorf("inline data: %w", err)
	}
	// Close flushes the final partial quantum and its padding.
	if err := enc.Close(); err != nil {
		return n, fmt.Errorf("inline data: %w", err)
	}
	return n, nil
}

// WriteMetadata writes the two metadata lines shared by the inline and split
// forms. An absent display name is written as message.FallbackDisplayName.
func WriteMetadata(w io.Writer, meta message.Metadata) error {
	if _, err := fmt.Fprintf(w, "%s\n%s\n", oneLine(meta.MIMEType), oneLine(meta.NameOrFallback())); err != nil {
		return fmt.Errorf("metadata: %w", err)
	}
	return nil
}

// oneLine keeps a field from spilling into the next one.
func oneLine(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
