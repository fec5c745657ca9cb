package transport

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/message"
)

// Dir is the outbox directory transport. Files are written to a temporary
// name and renamed into place, and the split form writes its data file
// before its metadata file, so a reader never sees a half-written message.
type Dir struct {
	dir  string
	form codec.Format
}

var _ Transport = (*Dir)(nil)

// NewDir returns a Dir over dir, creating it if needed. form selects the
// binary form used by PutBinary.
func NewDir(dir string, form codec.Format) (*Dir, error) {
	if form != codec.FormatInline && form != codec.FormatSplit {
		return nil, fmt.Errorf("outbox: binary form %s not usable", form)
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("%w: creating outbox: %w", message.ErrStorage, err)
	}
	return &Dir{dir: dir, form: form}, nil
}

// Path returns the outbox directory.
func (d *Dir) Path() string { return d.dir }

func (d *Dir) path(name string) string { return filepath.Join(d.dir, name) }

// Send writes m to the outbox, replacing any pending message.
func (d *Dir) Send(m codec.WireMessage) error {
	body, err := openPart(m.Body, m.BodyPath)
	if err != nil {
		return err
	}
	defer body.Close()

	switch m.Format {
	case codec.FormatPlainText:
		return d.replace(TextFile, func() error { return d.writeFile(TextFile, body) })
	case codec.FormatInline:
		return d.replace(InlineFile, func() error { return d.writeFile(InlineFile, body) })
	case codec.FormatSplit:
		data, err := openPart(m.Data, m.DataPath)
		if err != nil {
			return err
		}
		defer data.Close()
		return d.replace(MetaFile, func() error {
			if err := d.writeFile(DataFile, data); err != nil {
				return err
			}
			return d.writeFile(MetaFile, body)
		})
	default:
		return fmt.Errorf("%w: cannot send format %s", message.ErrMalformedMessage, m.Format)
	}
}

// PutText sends text. It makes Dir usable as a capture sink.
func (d *Dir) PutText(text string) error {
	return d.Send(codec.EncodeText(text))
}

// PutBinary streams an image from r into the outbox in the configured form.
func (d *Dir) PutBinary(meta message.Metadata, r io.Reader) error {
	if d.form == codec.FormatSplit {
		return d.replace(MetaFile, func() error {
			if err := d.writeFile(DataFile, r); err != nil {
				return err
			}
			return d.writeWith(MetaFile, func(w io.Writer) error { return codec.WriteMetadata(w, meta) })
		})
	}
	return d.replace(InlineFile, func() error {
		return d.writeWith(InlineFile, func(w io.Writer) error {
			_, err := codec.WriteInline(w, meta, r)
			return err
		})
	})
}

// Receive returns the pending message with its files referenced by path.
// A metadata file without its data file is an incomplete split send and is
// ignored.
func (d *Dir) Receive() (codec.WireMessage, error) {
	if exists(d.path(MetaFile)) && exists(d.path(DataFile)) {
		return codec.WireMessage{Format: codec.FormatSplit, BodyPath: d.path(MetaFile), DataPath: d.path(DataFile)}, nil
	}
	if exists(d.path(InlineFile)) {
		return codec.WireMessage{Format: codec.FormatInline, BodyPath: d.path(InlineFile)}, nil
	}
	if exists(d.path(TextFile)) {
		return codec.WireMessage{Format: codec.FormatPlainText, BodyPath: d.path(TextFile)}, nil
	}
	return codec.WireMessage{}, fmt.Errorf("outbox %s: %w", d.dir, message.ErrEmpty)
}

// Ack deletes the files of m.
func (d *Dir) Ack(m codec.WireMessage) error {
	return RemoveFiles(m)
}

// replace clears the pending message, then runs write. name is only
// logged.
func (d *Dir) replace(name string, write func() error) error {
	for _, f := range []string{MetaFile, DataFile, InlineFile, TextFile} {
		if err := os.Remove(d.path(f)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: clearing %s: %w", message.ErrStorage, f, err)
		}
	}
	if err := write(); err != nil {
		return err
	}
	slog.Debug("outbox written", "dir", d.dir, "file", name)
	return nil
}

func (d *Dir) writeFile(name string, r io.Reader) error {
	return d.writeWith(name, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
}

// writeWith fills a temporary file through fill and renames it to name.
func (d *Dir) writeWith(name string, fill func(io.Writer) error) error {
	tmp, err := os.CreateTemp(d.dir, ".outbox-*")
	if err != nil {
		return fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	tmpName := tmp.Name()
	fillErr := fill(tmp)
	closeErr := tmp.Close()
	if err := errors.Join(fillErr, closeErr); err != nil {
		_ = os.Remove(tmpName)
		if fillErr != nil && !isStorage(fillErr) && closeErr == nil {
			// The source failed, not the outbox.
			return fmt.Errorf("writing %s: %w", name, fillErr)
		}
		return fmt.Errorf("%w: writing %s: %w", message.ErrStorage, name, err)
	}
	if err := os.Rename(tmpName, d.path(name)); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return nil
}

func isStorage(err error) bool {
	var pe *fs.PathError
	return errors.Is(err, message.ErrStorage) || errors.As(err, &pe)
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

func openPart(mem []byte, p string) (io.ReadCloser, error) {
	if p == "" {
		return io.NopCloser(bytes.NewReader(mem)), nil
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	return f, nil
}
