// Package logging configures the global zerolog logger from flags.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type Settings struct {
	Level      string `mapstructure:"log-level"`
	Format     string `mapstructure:"log-format"`
	WithCaller bool   `mapstructure:"with-caller"`
	File       string `mapstructure:"log-file"`
}

// AddFlags registers the logging flags as persistent flags of cmd.
func AddFlags(cmd *cobra.Command) {
	fs := cmd.PersistentFlags()
	fs.String("log-level", "info", "Log level (trace, debug, info, warn, error)")
	fs.String("log-format", "auto", "Log format (auto, console, json)")
	fs.Bool("with-caller", false, "Log caller file and line")
	fs.String("log-file", "", "Write logs to this file instead of stderr")
}

func SettingsFromViper(v *viper.Viper) Settings {
	return Settings{
		Level:      v.GetString("log-level"),
		Format:     v.GetString("log-format"),
		WithCaller: v.GetBool("with-caller"),
		File:       v.GetString("log-file"),
	}
}

// InitLogger replaces the global logger. Format "auto" picks the console
// writer when the output is a terminal and JSON otherwise.
func InitLogger(s Settings) error {
	var out io.Writer = os.Stderr
	terminal := isatty.IsTerminal(os.Stderr.Fd()) || isatty.IsCygwinTerminal(os.Stderr.Fd())
	if s.File != "" {
		f, err := os.OpenFile(s.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return errors.Wrap(err, "open log file")
		}
		out = f
		terminal = false
	}
	logger, err := New(out, s, terminal)
	if err != nil {
		return err
	}
	log.Logger = logger
	return nil
}

// New builds a logger writing to out. terminal is only consulted for format "auto".
func New(out io.Writer, s Settings, terminal bool) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s.Level != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s.Level))
		if err != nil {
			return zerolog.Logger{}, errors.Wrapf(err, "invalid log level %q", s.Level)
		}
		level = l
	}
	zerolog.SetGlobalLevel(level)

	switch strings.ToLower(s.Format) {
	case "", "auto":
		if terminal {
			out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
		}
	case "console", "text":
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339, NoColor: !terminal}
	case "json":
	default:
		return zerolog.Logger{}, errors.Errorf("invalid log format %q", s.Format)
	}

	ctx := zerolog.New(out).Level(level).With().Timestamp()
	if s.WithCaller {
		ctx = ctx.Caller()
	}
	return ctx.Logger(), nil
}
