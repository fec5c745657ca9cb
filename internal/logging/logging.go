// Package logging configures the global slog logger for clipferry and
// provides the payload event logger shared by capture and inject paths.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/pwntr/tinter"

	"go.klb.dev/clipferry/internal/message"
)

// Format selects the log output format.
type Format string

const (
	FormatAuto Format = "auto"
	FormatText Format = "text"
	FormatJSON Format = "json"
)

const previewLen = 120

// ParseFormat converts a string to a Format, returning FormatAuto for unknown values.
func ParseFormat(s string) Format {
	switch strings.ToLower(s) {
	case "text", "tint", "human":
		return FormatText
	case "json":
		return FormatJSON
	default:
		return FormatAuto
	}
}

// ParseLevel converts a string to a slog.Level, defaulting to Info.
func ParseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// IsTTY reports whether w is a terminal.
func IsTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
	}
	return false
}

// Setup configures the global slog logger. Call once after flag/viper parsing.
func Setup(format Format, level slog.Level) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, format, level)))
}

// NewHandler returns a tinter handler when w is a terminal or text output is
// forced, and a JSON handler otherwise.
func NewHandler(w io.Writer, format Format, level slog.Level) slog.Handler {
	if format == FormatText || (format == FormatAuto && IsTTY(w)) {
		return tinter.NewHandler(w, &tinter.Options{
			Level:      level,
			TimeFormat: "15:04:05.000",
		})
	}
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// Payload logs a payload event at INFO (kind, MIME type, size) and, at
// DEBUG, a text preview up to 120 characters.
func Payload(event string, p message.Payload, attrs ...any) {
	args := append([]any{"kind", p.Kind, "size_bytes", p.Size()}, attrs...)
	if p.Kind == message.KindBinary {
		args = append(args, "mime", p.Binary.MIMEType, "name", p.Binary.NameOrFallback())
	}
	slog.Info(event, args...)

	if p.Kind != message.KindText || !slog.Default().Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	preview := p.Text
	if r := []rune(preview); len(r) > previewLen {
		preview = string(r[:previewLen]) + "…"
	}
	slog.Debug("clipboard text", "preview", preview)
}
