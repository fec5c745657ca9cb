package main

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/content"
	"go.klb.dev/clipferry/internal/crypto"
	"go.klb.dev/clipferry/internal/dispatch"
	"go.klb.dev/clipferry/internal/ipc"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/transport"
)

const sniffLen = 512

func newSendCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "send [FILE]",
		Short: "Put text or an image on the device clipboard",
		Long: `Sends text or an image to the clipferry daemon, which places it on the
clipboard. The input is FILE, or stdin when FILE is omitted, unless --text is
given. Images are recognised by content; anything else must be UTF-8 text.

Images travel in the configured --form:
  inline   base64 in the request itself (or in a spool file with --by-file)
  split    a metadata file and a raw data file in the spool directory

If no daemon is listening on the dispatch socket, the item is applied to the
local clipboard directly.`,
		Args:    cobra.MaximumNArgs(1),
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, args []string) error { return runSend(cmd, v, args) },
	}

	f := cmd.Flags()
	f.String("text", "", "send this text instead of reading input")
	f.String("mime", "", "image MIME type (default: detected)")
	f.String("name", "", "image display name (default: file name)")
	f.Bool("by-file", false, "inline form: pass the image as a spool file instead of in the request")
	addStoreFlags(cmd)
	addSocketFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runSend(cmd *cobra.Command, v *viper.Viper, args []string) error {
	setupLogging(v)

	var req message.Request
	if cmd.Flags().Changed("text") {
		req = message.TextRequest(v.GetString("text"))
	} else {
		var err error
		req, err = requestFromInput(cmd, v, args)
		if err != nil {
			return err
		}
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	resp, err := deliver(ctx, v, req)
	if err != nil {
		discardSpool(req)
		return err
	}
	if !resp.OK {
		discardSpool(req)
		return fmt.Errorf("send failed: %s", resp.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "sent %s (%d bytes)\n", resp.Kind, resp.Size)
	return nil
}

// requestFromInput builds a request from FILE or stdin.
func requestFromInput(cmd *cobra.Command, v *viper.Viper, args []string) (message.Request, error) {
	var (
		src  io.Reader = cmd.InOrStdin()
		name           = v.GetString("name")
		ext  string
	)
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return message.Request{}, err
		}
		defer f.Close()
		src = f
		ext = filepath.Ext(args[0])
		if name == "" {
			name = filepath.Base(args[0])
		}
	}

	br := bufio.NewReaderSize(src, 64*1024)
	head, _ := br.Peek(sniffLen)
	mimeType := v.GetString("mime")
	if mimeType == "" {
		mimeType = content.DetectMIME(head, ext)
	}

	if !message.IsImage(mimeType) {
		if cmd.Flags().Changed("mime") {
			return message.Request{}, fmt.Errorf("%w: %q", message.ErrUnsupportedMimeType, mimeType)
		}
		data, err := io.ReadAll(br)
		if err != nil {
			return message.Request{}, fmt.Errorf("read input: %w", err)
		}
		if !utf8.Valid(data) {
			return message.Request{}, fmt.Errorf("%w: input is neither an image nor UTF-8 text", message.ErrUnsupportedMimeType)
		}
		return message.TextRequest(string(data)), nil
	}

	meta, err := message.NewMetadata(message.NormalizeMIME(mimeType), name)
	if err != nil {
		return message.Request{}, err
	}
	form, err := codec.ParseFormat(v.GetString("form"))
	if err != nil {
		return message.Request{}, err
	}
	return imageRequest(br, meta, form, v.GetBool("by-file"), v.GetString("spool"))
}

// imageRequest streams r into the request shape for form.
func imageRequest(r io.Reader, meta message.Metadata, form codec.Format, byFile bool, spool string) (message.Request, error) {
	if form == codec.FormatInline && !byFile {
		data, err := io.ReadAll(r)
		if err != nil {
			return message.Request{}, fmt.Errorf("read input: %w", err)
		}
		return message.Request{ImageData: base64.StdEncoding.EncodeToString(data), MIMEType: meta.MIMEType}, nil
	}

	if err := os.MkdirAll(spool, 0o700); err != nil {
		return message.Request{}, fmt.Errorf("%w: spool: %w", message.ErrStorage, err)
	}
	stamp := time.Now().UnixNano()

	if form == codec.FormatInline {
		p := filepath.Join(spool, fmt.Sprintf("send_%d.txt", stamp))
		err := writeSpool(p, func(w io.Writer) error {
			_, err := codec.WriteInline(w, meta, r)
			return err
		})
		if err != nil {
			return message.Request{}, err
		}
		return message.Request{ImageFile: p}, nil
	}

	metaPath := filepath.Join(spool, fmt.Sprintf("send_%d.meta", stamp))
	dataPath := filepath.Join(spool, fmt.Sprintf("send_%d.bin", stamp))
	err := writeSpool(dataPath, func(w io.Writer) error {
		_, err := io.Copy(w, r)
		return err
	})
	if err == nil {
		err = writeSpool(metaPath, func(w io.Writer) error { return codec.WriteMetadata(w, meta) })
	}
	if err != nil {
		_ = os.Remove(dataPath)
		return message.Request{}, err
	}
	return message.Request{ImageFile: metaPath, DataFile: dataPath}, nil
}

func writeSpool(p string, fill func(io.Writer) error) error {
	f, err := os.OpenFile(p, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	fillErr := fill(f)
	closeErr := f.Close()
	if fillErr != nil || closeErr != nil {
		_ = os.Remove(p)
		return fmt.Errorf("%w: writing %s: %w", message.ErrStorage, filepath.Base(p), errors.Join(fillErr, closeErr))
	}
	return nil
}

// deliver hands req to the daemon, or applies it in-process when none is
// listening.
func deliver(ctx context.Context, v *viper.Viper, req message.Request) (message.Response, error) {
	socket := ipc.SocketPath(v.GetString("socket"))
	if ipc.IsRunning(socket) {
		key, err := crypto.DeriveKey(v.GetString("token"))
		if err != nil {
			return message.Response{}, err
		}
		conn, err := ipc.Dial(socket, 5*time.Second)
		if err != nil {
			return message.Response{}, fmt.Errorf("dial %s: %w", socket, err)
		}
		return dispatch.Send(ctx, conn, key, req)
	}

	slog.Info("no daemon listening, applying to the local clipboard", "socket", socket)
	m, err := codec.FromRequest(req)
	if err != nil {
		return message.Response{}, err
	}
	a, err := newApp(v, nil, false)
	if err != nil {
		return message.Response{}, err
	}
	defer a.Close()
	return a.bridge.Apply(m), nil
}

// discardSpool removes the request files of a send that did not land.
func discardSpool(req message.Request) {
	m := codec.WireMessage{BodyPath: req.ImageFile, DataPath: req.DataFile}
	if err := transport.RemoveFiles(m); err != nil {
		slog.Warn("spool files left behind", "err", err)
	}
}
