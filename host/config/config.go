// Package config loads the mushlink host configuration from TOML.
package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog"

	"mushlink/host/serial"
	"mushlink/protocol"
)

// Route modes
const (
	RouteParent = "parent"
	RouteChild  = "child"
	RouteRouted = "routed"
)

// Config is the host runtime configuration
type Config struct {
	Device        string
	Baud          int
	ReadTimeoutMS int
	LogLevel      string
	LogFormat     string
	QueueDepth    int

	// PayloadSize is the payload size expected by listen; 0 takes every
	// byte the declared frame count covers
	PayloadSize int

	Route Route
}

// Route is the default destination for send
type Route struct {
	Mode string
	From protocol.Path
	To   protocol.Path
}

// config.toml key mapping
type fileConfig struct {
	Device        string    `toml:"device"`
	Baud          int       `toml:"baud"`
	ReadTimeoutMS int       `toml:"read_timeout_ms"`
	LogLevel      string    `toml:"log_level"`
	LogFormat     string    `toml:"log_format"`
	QueueDepth    int       `toml:"queue_depth"`
	PayloadSize   int       `toml:"payload_size"`
	Route         fileRoute `toml:"route"`
}

type fileRoute struct {
	Mode string `toml:"mode"`
	From string `toml:"from"`
	To   string `toml:"to"`
}

// Default returns the configuration used when no file is given
func Default() Config {
	sc := serial.DefaultConfig("/dev/ttyUSB0")
	return Config{
		Device:        sc.Device,
		Baud:          sc.Baud,
		ReadTimeoutMS: sc.ReadTimeout,
		LogLevel:      "info",
		LogFormat:     "console",
		QueueDepth:    16,
		Route:         Route{Mode: RouteParent},
	}
}

// Load reads path and overlays the keys it defines onto Default
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("load config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("device") {
		cfg.Device = strings.TrimSpace(raw.Device)
	}
	if meta.IsDefined("baud") {
		cfg.Baud = raw.Baud
	}
	if meta.IsDefined("read_timeout_ms") {
		cfg.ReadTimeoutMS = raw.ReadTimeoutMS
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.ToLower(strings.TrimSpace(raw.LogLevel))
	}
	if meta.IsDefined("log_format") {
		cfg.LogFormat = strings.ToLower(strings.TrimSpace(raw.LogFormat))
	}
	if meta.IsDefined("queue_depth") {
		cfg.QueueDepth = raw.QueueDepth
	}
	if meta.IsDefined("payload_size") {
		cfg.PayloadSize = raw.PayloadSize
	}
	if meta.IsDefined("route", "mode") {
		cfg.Route.Mode = strings.ToLower(strings.TrimSpace(raw.Route.Mode))
	}
	if meta.IsDefined("route", "from") {
		if cfg.Route.From, err = protocol.ParsePath(raw.Route.From); err != nil {
			return Config{}, fmt.Errorf("route.from: %w", err)
		}
	}
	if meta.IsDefined("route", "to") {
		if cfg.Route.To, err = protocol.ParsePath(raw.Route.To); err != nil {
			return Config{}, fmt.Errorf("route.to: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges
func (c Config) Validate() error {
	if c.Baud <= 0 {
		return fmt.Errorf("baud must be positive, got %d", c.Baud)
	}
	if c.ReadTimeoutMS < 0 {
		return fmt.Errorf("read_timeout_ms must not be negative, got %d", c.ReadTimeoutMS)
	}
	if c.QueueDepth <= 0 {
		return fmt.Errorf("queue_depth must be positive, got %d", c.QueueDepth)
	}
	if c.PayloadSize < 0 {
		return fmt.Errorf("payload_size must not be negative, got %d", c.PayloadSize)
	}
	if _, err := zerolog.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	switch c.LogFormat {
	case "console", "json":
	default:
		return fmt.Errorf("log_format must be console or json, got %q", c.LogFormat)
	}
	if _, err := c.Route.Destination(); err != nil {
		return fmt.Errorf("route: %w", err)
	}
	return nil
}

// Destination builds the protocol destination for the route
func (r Route) Destination() (protocol.Destination, error) {
	switch r.Mode {
	case RouteParent:
		return protocol.Local(protocol.ToParent), nil
	case RouteChild:
		return protocol.Local(protocol.ToChild), nil
	case RouteRouted:
		if err := r.From.Validate(); err != nil {
			return protocol.Destination{}, err
		}
		if err := r.To.Validate(); err != nil {
			return protocol.Destination{}, err
		}
		return protocol.Routed(r.From, r.To), nil
	default:
		return protocol.Destination{}, fmt.Errorf("unknown mode %q", r.Mode)
	}
}

// SerialConfig returns the serial port settings
func (c Config) SerialConfig() *serial.Config {
	return &serial.Config{
		Device:      c.Device,
		Baud:        c.Baud,
		ReadTimeout: c.ReadTimeoutMS,
	}
}
