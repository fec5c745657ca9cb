package codec

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"go.klb.dev/clipferry/internal/message"
)

// Decode reconstructs the Payload carried by m. Binary bodies are read
// whole; use OpenBinary to stream them instead.
//
// Failures wrap message.ErrMalformedMessage (missing fields),
// message.ErrInvalidEncoding (bad base64 or UTF-8) or message.ErrStorage
// (unreadable location). Size is not limited here.
func Decode(m WireMessage) (message.Payload, error) {
	switch m.Format {
	case FormatPlainText:
		body, err := openBody(m)
		if err != nil {
			return message.Payload{}, err
		}
		defer body.Close()
		raw, err := io.ReadAll(body)
		if err != nil {
			return message.Payload{}, fmt.Errorf("%w: reading text: %w", message.ErrStorage, err)
		}
		if !utf8.Valid(raw) {
			return message.Payload{}, fmt.Errorf("%w: text is not valid UTF-8", message.ErrInvalidEncoding)
		}
		return message.NewText(string(raw)), nil

	case FormatInline, FormatSplit:
		meta, data, err := OpenBinary(m)
		if err != nil {
			return message.Payload{}, err
		}
		defer data.Close()
		raw, err := io.ReadAll(data)
		if err != nil {
			return message.Payload{}, err
		}
		return message.NewBinary(meta.MIMEType, meta.DisplayName, raw)

	default:
		return message.Payload{}, fmt.Errorf("%w: unknown format %s", message.ErrMalformedMessage, m.Format)
	}
}

// OpenBinary parses the metadata of an inline or split message and returns
// a reader over its decoded bytes. Read errors from the returned reader wrap
// the same sentinels as Decode. The caller must close it.
func OpenBinary(m WireMessage) (message.Metadata, io.ReadCloser, error) {
	switch m.Format {
	case FormatInline:
		body, err := openBody(m)
		if err != nil {
			return message.Metadata{}, nil, err
		}
		br := bufio.NewReader(body)
		meta, err := readMetadata(br, true)
		if err != nil {
			body.Close()
			return message.Metadata{}, nil, err
		}
		// The standard decoder skips \r and \n, which joins the remaining
		// lines without reinserting separators.
		dec := &inlineReader{r: base64.NewDecoder(base64.StdEncoding, br)}
		return meta, readCloser{Reader: dec, Closer: body}, nil

	case FormatSplit:
		body, err := openBody(m)
		if err != nil {
			return message.Metadata{}, nil, err
		}
		meta, err := readMetadata(bufio.NewReader(body), false)
		body.Close()
		if err != nil {
			return message.Metadata{}, nil, err
		}
		data, err := openData(m)
		if err != nil {
			return message.Metadata{}, nil, err
		}
		return meta, data, nil

	default:
		return message.Metadata{}, nil, fmt.Errorf("%w: %s message carries no binary", message.ErrMalformedMessage, m.Format)
	}
}

// VerifyInline decodes an inline message without keeping its bytes, so a
// bad body is rejected before anything is written for it.
func VerifyInline(m WireMessage) error {
	if m.Format != FormatInline {
		return nil
	}
	_, rc, err := OpenBinary(m)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(io.Discard, rc)
	return err
}

// readMetadata reads the MIME line and the display-name line. The inline
// form requires the second line because the encoded bytes follow it.
func readMetadata(br *bufio.Reader, requireName bool) (message.Metadata, error) {
	mimeType, ok, err := readLine(br)
	if err != nil {
		return message.Metadata{}, err
	}
	if !ok || strings.TrimSpace(mimeType) == "" {
		return message.Metadata{}, fmt.Errorf("%w: missing MIME type", message.ErrMalformedMessage)
	}
	name, ok, err := readLine(br)
	if err != nil {
		return message.Metadata{}, err
	}
	if !ok && requireName {
		return message.Metadata{}, fmt.Errorf("%w: missing display name line", message.ErrMalformedMessage)
	}
	return message.Metadata{MIMEType: strings.TrimSpace(mimeType), DisplayName: name}, nil
}

// readLine returns the next line without its terminator. ok is false at a
// clean end of input.
func readLine(br *bufio.Reader) (line string, ok bool, err error) {
	line, err = br.ReadString('\n')
	if errors.Is(err, io.EOF) {
		if line == "" {
			return "", false, nil
		}
		err = nil
	}
	if err != nil {
		return "", false, fmt.Errorf("%w: reading metadata: %w", message.ErrStorage, err)
	}
	return strings.TrimRight(line, "\r\n"), true, nil
}

// inlineReader classifies base64 decoder failures. An empty remainder after
// both metadata lines is a zero-length image.
type inlineReader struct {
	r io.Reader
}

func (ir *inlineReader) Read(p []byte) (int, error) {
	n, err := ir.r.Read(p)
	if err == nil || errors.Is(err, io.EOF) {
		return n, err
	}
	var corrupt base64.CorruptInputError
	if errors.As(err, &corrupt) {
		return n, fmt.Errorf("%w: base64 at offset %d", message.ErrInvalidEncoding, int64(corrupt))
	}
	if errors.Is(err, io.ErrUnexpectedEOF) {
		return n, fmt.Errorf("%w: truncated base64: %w", message.ErrInvalidEncoding, err)
	}
	return n, fmt.Errorf("%w: reading inline data: %w", message.ErrStorage, err)
}

type readCloser struct {
	io.Reader
	io.Closer
}

func openBody(m WireMessage) (io.ReadCloser, error) {
	if m.BodyPath == "" {
		return io.NopCloser(bytes.NewReader(m.Body)), nil
	}
	f, err := os.Open(m.BodyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return f, nil
}

func openData(m WireMessage) (io.ReadCloser, error) {
	if m.DataPath == "" {
		return io.NopCloser(bytes.NewReader(m.Data)), nil
	}
	f, err := os.Open(m.DataPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return f, nil
}
