package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/codec"
	"go.klb.dev/clipferry/internal/inject"
	"go.klb.dev/clipferry/internal/message"
	"go.klb.dev/clipferry/internal/transport"
)

func newReceiveCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Read the item the device captured into the outbox",
		Long: `Reads the pending item from the outbox directory. Text is written to
stdout. Images are written to --output, or to stdout when it is empty; if
--output is a directory the image keeps its display name.

The item is deleted from the outbox once written unless --keep is given.
With --follow, receive keeps running and handles each new item as it lands.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runReceive(cmd, v) },
	}

	f := cmd.Flags()
	f.StringP("output", "o", "", "image destination file or directory (default: stdout)")
	f.Bool("follow", false, "wait for new items instead of exiting")
	f.Bool("keep", false, "leave the item in the outbox")
	f.String("outbox", defaultDir("outbox"), "directory captured items are written to")
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runReceive(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	outbox, err := transport.NewDir(v.GetString("outbox"), codec.FormatInline)
	if err != nil {
		return err
	}
	r := receiver{
		outbox: outbox,
		stdout: cmd.OutOrStdout(),
		output: v.GetString("output"),
		keep:   v.GetBool("keep"),
	}

	if !v.GetBool("follow") {
		err := r.once()
		if errors.Is(err, message.ErrEmpty) {
			fmt.Fprintln(cmd.ErrOrStderr(), "nothing pending")
			return nil
		}
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	changes, err := outbox.Watch(ctx)
	if err != nil {
		return err
	}
	for {
		if err := r.once(); err != nil && !errors.Is(err, message.ErrEmpty) {
			slog.Error("receive failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-changes:
			if !ok {
				return nil
			}
		}
	}
}

type receiver struct {
	outbox transport.Transport
	stdout io.Writer
	output string
	keep   bool
}

// once handles the pending item, if any.
func (r receiver) once() error {
	m, err := r.outbox.Receive()
	if err != nil {
		return err
	}
	if err := r.write(m); err != nil {
		return err
	}
	if r.keep {
		return nil
	}
	return r.outbox.Ack(m)
}

func (r receiver) write(m codec.WireMessage) error {
	if m.Format == codec.FormatPlainText {
		p, err := codec.Decode(m)
		if err != nil {
			return err
		}
		_, err = io.WriteString(r.stdout, p.Text)
		return err
	}

	meta, rc, err := codec.OpenBinary(m)
	if err != nil {
		return err
	}
	defer rc.Close()

	if r.output == "" {
		_, err := io.Copy(r.stdout, rc)
		return err
	}
	dest := r.output
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		dest = filepath.Join(dest, imageFileName(meta))
	}
	f, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("%w: %w", message.ErrStorage, err)
	}
	n, copyErr := io.Copy(f, rc)
	if err := errors.Join(copyErr, f.Close()); err != nil {
		_ = os.Remove(dest)
		return err
	}
	slog.Info("image received", "path", dest, "mime", meta.MIMEType, "size_bytes", n)
	return nil
}

// imageFileName picks a safe file name for meta.
func imageFileName(meta message.Metadata) string {
	name := filepath.Base(meta.NameOrFallback())
	if name == "." || name == string(filepath.Separator) || name == message.FallbackDisplayName {
		return message.FallbackDisplayName + inject.ExtensionFor(meta.MIMEType)
	}
	return name
}
