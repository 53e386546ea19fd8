package main

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const envPrefix = "IMCOUNTER_"

type config struct {
	Addr            string
	Title           string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

func defaultConfig() config {
	return config{
		Addr:            ":4040",
		Title:           "Counter",
		LogLevel:        "info",
		LogFormat:       "console",
		ShutdownTimeout: 5 * time.Second,
	}
}

func (c *config) bindFlags(fs *pflag.FlagSet) {
	fs.StringVar(&c.Addr, "addr", c.Addr, "address to listen on")
	fs.StringVar(&c.Title, "title", c.Title, "page title")
	fs.StringVar(&c.LogLevel, "log-level", c.LogLevel, "log level (trace, debug, info, warn, error)")
	fs.StringVar(&c.LogFormat, "log-format", c.LogFormat, "log format (console, json)")
	fs.DurationVar(&c.ShutdownTimeout, "shutdown-timeout", c.ShutdownTimeout, "time to wait for requests on shutdown")
}

// applyEnv sets every flag not given on the command line from its
// IMCOUNTER_* variable, e.g. --log-level from IMCOUNTER_LOG_LEVEL.
func applyEnv(fs *pflag.FlagSet, lookup func(string) (string, bool)) error {
	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		if err != nil || f.Changed {
			return
		}
		name := envPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_"))
		v, ok := lookup(name)
		if !ok {
			return
		}
		if setErr := fs.Set(f.Name, v); setErr != nil {
			err = errors.Wrapf(setErr, "invalid %s", name)
		}
	})
	return err
}

func (c config) validate() error {
	if c.Addr == "" {
		return errors.New("addr must not be empty")
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil || c.LogLevel == "" {
		return errors.Errorf("unknown log level %q", c.LogLevel)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return errors.Errorf("unknown log format %q", c.LogFormat)
	}
	if c.ShutdownTimeout <= 0 {
		return errors.New("shutdown timeout must be positive")
	}
	return nil
}

func (c config) logger(w io.Writer) zerolog.Logger {
	if c.LogFormat == "console" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

func newRootCmd() *cobra.Command {
	cfg := defaultConfig()
	cmd := &cobra.Command{
		Use:           "imcounter",
		Short:         "Serve a counter that never goes below zero",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := applyEnv(cmd.Flags(), os.LookupEnv); err != nil {
				return err
			}
			return cfg.validate()
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cfg, cfg.logger(cmd.ErrOrStderr()))
		},
	}
	cfg.bindFlags(cmd.Flags())
	return cmd
}
