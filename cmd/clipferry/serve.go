package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"

	"go.klb.dev/clipferry/internal/crypto"
	"go.klb.dev/clipferry/internal/dispatch"
	"go.klb.dev/clipferry/internal/ipc"
)

func newServeCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Own the device clipboard: capture changes, accept injections",
		Long: `Runs the device-side daemon. Clipboard changes are captured into the
outbox directory; transfer requests arriving on the dispatch socket are
injected into the clipboard. Injected images are kept in the cache directory,
newest --cache-keep only.

Config file search order:
  /etc/clipferry/clipferry.toml
  $HOME/.config/clipferry/clipferry.toml
  path supplied via --config

Precedence (lowest → highest): defaults → config file → CLIPFERRY_* env vars → flags`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runServe(cmd.Context(), v) },
	}

	cmd.Flags().Bool("watch", true, "capture every clipboard change into the outbox")
	addStoreFlags(cmd)
	addCaptureFlags(cmd)
	addSocketFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	setupLogging(v)
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	key, err := crypto.DeriveKey(v.GetString("token"))
	if err != nil {
		return err
	}
	a, err := newApp(v, nil, v.GetBool("watch"))
	if err != nil {
		return err
	}
	defer a.Close()

	socket := ipc.SocketPath(v.GetString("socket"))
	ln, err := ipc.Listen(socket)
	if err != nil {
		return fmt.Errorf("dispatch socket: %w", err)
	}
	defer os.Remove(socket)

	slog.Info("clipferry serving",
		"version", Version,
		"clipboard", a.clip.Name(),
		"socket", socket,
		"outbox", a.outbox.Path(),
		"cache", a.cache.Dir(),
		"sealed", key != nil,
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.bridge.Run(ctx) })
	g.Go(func() error { return dispatch.NewServer(a.bridge, key).Serve(ctx, ln) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	slog.Info("clipferry stopped")
	return nil
}
