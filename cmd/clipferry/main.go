// clipferry: clipboard exchange between a device and a host over a shared
// outbox directory and a local dispatch socket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"go.klb.dev/clipferry/internal/logging"
)

// Version is set at build time via -ldflags "-X main.Version=x.y.z".
var Version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "clipferry",
		Short: "Ferry clipboard text and images between a device and a host",
		Long: `clipferry moves clipboard items across a narrow local channel.

On the device, "clipferry serve" owns the clipboard: it captures changes into
the outbox directory and injects items sent to its dispatch socket. On the
host, "clipferry send" delivers text or images and "clipferry receive" reads
what the device captured.

Config file search order (first found wins):
  /etc/clipferry/clipferry.toml
  $HOME/.config/clipferry/clipferry.toml
  path supplied via --config

All flags can be set via CLIPFERRY_<FLAG> env vars or config-file keys.`,
		SilenceUsage: true,
	}

	root.AddCommand(
		newServeCmd(),
		newCaptureCmd(),
		newSendCmd(),
		newReceiveCmd(),
		newStatusCmd(),
		newVersionCmd(),
	)
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "clipferry %s\n", Version)
		},
	}
}

// resolveLogging sets up the global slog logger after flags are parsed.
func resolveLogging(interactive bool, formatStr, levelStr string) {
	format := logging.ParseFormat(formatStr)
	level := logging.ParseLevel(levelStr)
	if levelStr == "" {
		if interactive {
			level = logging.ParseLevel("debug")
		} else {
			level = logging.ParseLevel("info")
		}
	}
	logging.Setup(format, level)
}
