// Package wire frames JSON values over a net.Conn for the dispatch socket,
// with optional secretbox sealing.
//
// Frame format (unsealed):
//
//	<json>\n
//
// Frame format (sealed):
//
//	<base64(nonce+ciphertext)>\n
//
// Both forms are one line per frame, so the framing logic is shared.
package wire

import (
	"bufio"
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"go.klb.dev/clipferry/internal/crypto"
)

const (
	// MaxFrameSize is the largest frame we will read (32 MiB). Inline image
	// requests carry base64 in the frame.
	MaxFrameSize = 32 * 1024 * 1024

	writeDeadline = 5 * time.Second
)

// ErrFrameTooLarge is returned by Read for frames above MaxFrameSize.
var ErrFrameTooLarge = errors.New("frame too large")

// Conn wraps a net.Conn with newline-delimited JSON framing.
type Conn struct {
	conn net.Conn
	br   *bufio.Reader
	key  *crypto.Key // nil = unsealed
}

// New wraps conn. If key is non-nil every frame is sealed before being
// written and opened after being read.
func New(conn net.Conn, key *crypto.Key) *Conn {
	return &Conn{
		conn: conn,
		br:   bufio.NewReaderSize(conn, 64*1024),
		key:  key,
	}
}

// SetReadDeadline sets or clears the read deadline.
func (c *Conn) SetReadDeadline(d time.Duration) {
	if d == 0 {
		_ = c.conn.SetReadDeadline(time.Time{})
	} else {
		_ = c.conn.SetReadDeadline(time.Now().Add(d))
	}
}

// Close closes the underlying connection.
func (c *Conn) Close() error { return c.conn.Close() }

// Write marshals v, seals it if a key is set, and writes it as one frame.
func (c *Conn) Write(v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	var line []byte
	if c.key != nil {
		ct, err := c.key.Seal(raw)
		if err != nil {
			return fmt.Errorf("seal: %w", err)
		}
		line = append([]byte(base64.StdEncoding.EncodeToString(ct)), '\n')
	} else {
		line = append(raw, '\n')
	}

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
	_, err = c.conn.Write(line)
	_ = c.conn.SetWriteDeadline(time.Time{})
	return err
}

// Read reads one frame, opens it if a key is set, and unmarshals it into v.
// A clean close before any byte of the frame returns io.EOF.
func (c *Conn) Read(v any) error {
	line, err := c.readLine()
	if err != nil {
		return err
	}

	raw := line
	if c.key != nil {
		ct, err := base64.StdEncoding.DecodeString(string(line))
		if err != nil {
			return fmt.Errorf("base64 decode: %w", err)
		}
		if raw, err = c.key.Open(ct); err != nil {
			return err
		}
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

// readLine reads up to the next newline, refusing frames over
// MaxFrameSize without buffering them whole.
func (c *Conn) readLine() ([]byte, error) {
	var buf bytes.Buffer
	for {
		chunk, err := c.br.ReadSlice('\n')
		buf.Write(chunk)
		if buf.Len() > MaxFrameSize+1 {
			return nil, fmt.Errorf("%w (more than %d bytes)", ErrFrameTooLarge, MaxFrameSize)
		}
		switch {
		case err == nil:
			return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF) && buf.Len() > 0:
			return nil, io.ErrUnexpectedEOF
		default:
			return nil, err
		}
	}
}
