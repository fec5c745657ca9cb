package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/message"
)

func newCaptureCmd() *cobra.Command {
	v := viper.New()

	cmd := &cobra.Command{
		Use:   "capture",
		Short: "Capture the current clipboard item into the outbox once",
		Long: `Reads the clipboard and writes it to the outbox directory, replacing any
pending item. Images are written in the configured --form; in stream mode the
size cap does not apply.

Exits 0 with a notice when the clipboard holds nothing eligible.`,
		Args:    cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error { return bindViper(cmd, v) },
		RunE:    func(cmd *cobra.Command, _ []string) error { return runCapture(cmd, v) },
	}

	addStoreFlags(cmd)
	addCaptureFlags(cmd)
	addLoggingFlags(cmd)
	addConfigFlag(cmd)

	return cmd
}

func runCapture(cmd *cobra.Command, v *viper.Viper) error {
	setupLogging(v)

	a, err := newApp(v, nil, false)
	if err != nil {
		return err
	}
	defer a.Close()

	kind, err := a.bridge.CaptureOnce()
	if errors.Is(err, message.ErrEmpty) {
		fmt.Fprintf(cmd.ErrOrStderr(), "nothing captured: %v\n", err)
		return nil
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "captured %s into %s\n", kind, a.outbox.Path())
	return nil
}
