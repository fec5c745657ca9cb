// Package message defines the clipferry payload model: the in-memory form of
// one clipboard item, the inbound transfer request delivered by the dispatch
// socket, and the error taxonomy shared by every stage of the exchange.
//
// A Payload is either text or an image with metadata. Binary payloads are
// restricted to image/* types; other binaries are rejected at construction
// rather than silently accepted.
package message

import (
	"fmt"
	"mime"
	"strings"
)

// Kind identifies which variant of a Payload is populated.
type Kind string

const (
	KindText   Kind = "text"
	KindBinary Kind = "binary"
)

// FallbackDisplayName is written in place of an absent display name.
const FallbackDisplayName = "image"

// Metadata describes a binary payload without its bytes.
type Metadata struct {
	MIMEType    string
	DisplayName string // empty when absent
}

// NameOrFallback returns DisplayName, or FallbackDisplayName when it is empty.
func (m Metadata) NameOrFallback() string {
	if m.DisplayName == "" {
		return FallbackDisplayName
	}
	return m.DisplayName
}

// Binary is an image payload.
type Binary struct {
	Metadata
	Data []byte
}

// Payload is one clipboard item. Exactly one of Text and Binary is
// meaningful, selected by Kind. Construct with NewText or NewBinary.
type Payload struct {
	Kind   Kind
	Text   string
	Binary Binary
}

// NewText returns a text Payload.
func NewText(text string) Payload {
	return Payload{Kind: KindText, Text: text}
}

// NewBinary returns a binary Payload after validating its MIME type.
// An empty type fails with ErrInvalidPayload; a type outside image/* fails
// with both ErrInvalidPayload and ErrUnsupportedMimeType.
func NewBinary(mimeType, displayName string, data []byte) (Payload, error) {
	meta, err := NewMetadata(mimeType, displayName)
	if err != nil {
		return Payload{}, err
	}
	return Payload{Kind: KindBinary, Binary: Binary{Metadata: meta, Data: data}}, nil
}

// NewMetadata validates mimeType the same way NewBinary does.
func NewMetadata(mimeType, displayName string) (Metadata, error) {
	if strings.TrimSpace(mimeType) == "" {
		return Metadata{}, fmt.Errorf("%w: empty MIME type", ErrInvalidPayload)
	}
	if !IsImage(mimeType) {
		return Metadata{}, fmt.Errorf("%w: %w: %q", ErrInvalidPayload, ErrUnsupportedMimeType, mimeType)
	}
	return Metadata{MIMEType: mimeType, DisplayName: displayName}, nil
}

// Size returns the number of content bytes carried by p.
func (p Payload) Size() int {
	if p.Kind == KindBinary {
		return len(p.Binary.Data)
	}
	return len(p.Text)
}

// NormalizeMIME lower-cases t and strips any parameters
// ("image/PNG; q=1" → "image/png"). Unparseable input is returned trimmed
// and lower-cased.
func NormalizeMIME(t string) string {
	t = strings.TrimSpace(t)
	if mt, _, err := mime.ParseMediaType(t); err == nil {
		return mt
	}
	return strings.ToLower(t)
}

// IsImage reports whether t names an image/* type with a non-empty subtype.
func IsImage(t string) bool {
	sub, ok := strings.CutPrefix(NormalizeMIME(t), "image/")
	return ok && sub != ""
}
