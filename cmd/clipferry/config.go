package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"go.klb.dev/clipferry/internal/cache"
	"go.klb.dev/clipferry/internal/capture"
	"go.klb.dev/clipferry/internal/logging"
)

// envKeyReplacer maps cache-dir to CLIPFERRY_CACHE_DIR.
var envKeyReplacer = strings.NewReplacer("-", "_")

// bindViper wires a command's flags into a viper instance with the standard
// config file search order and CLIPFERRY_* env var prefix.
//
// Precedence (lowest → highest): defaults → config file → CLIPFERRY_* env vars → flags
func bindViper(cmd *cobra.Command, v *viper.Viper) error {
	configFlag, _ := cmd.Flags().GetString("config")
	if configFlag != "" {
		v.SetConfigFile(configFlag)
	} else {
		v.SetConfigName("clipferry")
		v.SetConfigType("toml")
		v.AddConfigPath("/etc/clipferry/")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "clipferry"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config: %w", err)
		}
	}

	v.SetEnvPrefix("CLIPFERRY")
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}
	return nil
}

// addLoggingFlags adds the standard logging flags to a command.
func addLoggingFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("no-background", false, "run interactively: tinter logs + debug level")
	cmd.Flags().String("log-format", "auto", "log format: auto|text|json")
	cmd.Flags().String("log-level", "", "log level: debug|info|warn|error (default: info for service, debug for interactive)")
}

// addConfigFlag adds the --config flag to a command.
func addConfigFlag(cmd *cobra.Command) {
	cmd.Flags().String("config", "", "path to config file (overrides auto-discovery)")
}

// addSocketFlags adds the dispatch socket flags.
func addSocketFlags(cmd *cobra.Command) {
	cmd.Flags().String("socket", "", "dispatch socket path (default: $XDG_RUNTIME_DIR/clipferry.sock)")
	cmd.Flags().String("token", "", "shared secret sealing dispatch frames (empty = unsealed)")
}

// addStoreFlags adds the flags locating the cache, the outbox and the spool.
func addStoreFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.String("cache-dir", defaultDir("images"), "directory holding injected images")
	f.Int("cache-keep", cache.DefaultKeep, "number of injected images to keep")
	f.String("outbox", defaultDir("outbox"), "directory captured items are written to")
	f.String("spool", defaultDir("spool"), "directory for request files; the daemon consumes files only from here")
	f.String("form", "inline", "wire form for images: inline|split")
}

// addCaptureFlags adds the flags controlling capture.
func addCaptureFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int64("max-image-bytes", capture.DefaultMaxBytes, "largest image captured in buffer mode (0 = no limit)")
	f.String("capture-mode", "buffer", "capture mode: buffer (size-capped) | stream (uncapped, straight to the outbox)")
}

// setupLogging reads logging flags from viper and configures slog.
func setupLogging(v *viper.Viper) {
	interactive := v.GetBool("no-background") || logging.IsTTY(os.Stderr)
	resolveLogging(interactive, v.GetString("log-format"), v.GetString("log-level"))
}

// defaultDir returns a per-user clipferry directory for name.
func defaultDir(name string) string {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	return filepath.Join(base, "clipferry", name)
}
