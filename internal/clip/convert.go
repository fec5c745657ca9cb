package clip

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	// Decoders for image.Decode.
	_ "image/gif"
	_ "image/jpeg"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"

	"go.klb.dev/clipferry/internal/message"
)

// toPNG re-encodes data as PNG for clipboards that only accept PNG images.
func toPNG(data []byte, mimeType string) ([]byte, error) {
	if message.NormalizeMIME(mimeType) == "image/png" {
		return data, nil
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: decoding %s: %w", message.ErrUnsupportedMimeType, mimeType, err)
	}
	var out bytes.Buffer
	if err := png.Encode(&out, img); err != nil {
		return nil, fmt.Errorf("re-encoding %s as png: %w", format, err)
	}
	return out.Bytes(), nil
}
