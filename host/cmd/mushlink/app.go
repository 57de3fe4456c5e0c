package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"mushlink/host/config"
	"mushlink/protocol"
)

// state is shared by the commands of one run
type state struct {
	cfg config.Config
	log zerolog.Logger
}

func newApp() *cli.App {
	st := &state{cfg: config.Default(), log: zerolog.Nop()}

	return &cli.App{
		Name:    "mushlink",
		Usage:   "encode and move packets over 32-byte frame links",
		Version: protocol.Version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to a TOML config file",
				EnvVars: []string{"MUSHLINK_CONFIG"},
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "verbosity of log, valid values are: debug, info, warn, error",
				EnvVars: []string{"MUSHLINK_LOG_LEVEL"},
			},
		},
		Before: func(c *cli.Context) error {
			if path := c.String("config"); path != "" {
				cfg, err := config.Load(path)
				if err != nil {
					return err
				}
				st.cfg = cfg
			}
			if c.IsSet("log-level") {
				st.cfg.LogLevel = strings.ToLower(c.String("log-level"))
			}

			logger, err := newLogger(c.App.ErrWriter, st.cfg.LogLevel, st.cfg.LogFormat)
			if err != nil {
				return err
			}
			st.log = logger
			return nil
		},
		Commands: []*cli.Command{
			encodeCmd(st),
			decodeCmd(st),
			sendCmd(st),
			listenCmd(st),
		},
	}
}

// newLogger builds the CLI logger writing to w
func newLogger(w io.Writer, level, format string) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level: %w", err)
	}
	if w == nil {
		w = os.Stderr
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}
