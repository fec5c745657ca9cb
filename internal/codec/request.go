package codec

import (
	"bytes"
	"fmt"

	"go.klb.dev/clipferry/internal/message"
)

// FromRequest picks the wire form of an inbound request. Newer forms win so
// that older senders keep working while newer ones can add fields:
//
//  1. data_file present            → split (image_file is its metadata)
//  2. image_file present           → inline, read from that file
//  3. image_data and mime_type set → inline, built from the fields
//  4. text present                 → plain text
func FromRequest(req message.Request) (WireMessage, error) {
	switch {
	case req.DataFile != "":
		if req.ImageFile == "" {
			return WireMessage{}, fmt.Errorf("%w: data_file without image_file metadata", message.ErrMalformedMessage)
		}
		return WireMessage{Format: FormatSplit, BodyPath: req.ImageFile, DataPath: req.DataFile}, nil

	case req.ImageFile != "":
		return WireMessage{Format: FormatInline, BodyPath: req.ImageFile}, nil

	case req.ImageData != "" && req.MIMEType != "":
		var body bytes.Buffer
		body.Grow(len(req.MIMEType) + len(message.FallbackDisplayName) + len(req.ImageData) + 2)
		_ = WriteMetadata(&body, message.Metadata{MIMEType: req.MIMEType})
		body.WriteString(req.ImageData)
		return WireMessage{Format: FormatInline, Body: body.Bytes()}, nil

	case req.Text != nil:
		return EncodeText(*req.Text), nil

	default:
		return WireMessage{}, fmt.Errorf("%w: request carries no text, image data or image file", message.ErrMalformedMessage)
	}
}
