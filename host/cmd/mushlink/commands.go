package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v2"

	"mushlink/host/config"
	"mushlink/host/serial"
	"mushlink/link"
	"mushlink/protocol"
)

func routeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{Name: "parent", Usage: "address the packet toward the parent"},
		&cli.BoolFlag{Name: "child", Usage: "address the packet toward the child"},
		&cli.StringFlag{Name: "from", Usage: "source path, e.g. 1.2.3"},
		&cli.StringFlag{Name: "to", Usage: "destination path, e.g. 4.5"},
	}
}

func encodeCmd(st *state) *cli.Command {
	return &cli.Command{
		Name:      "encode",
		Usage:     "print the frames for a hex payload",
		ArgsUsage: "<hex payload>",
		Flags:     routeFlags(),
		Action: func(c *cli.Context) error {
			dest, err := resolveDestination(c, st.cfg.Route)
			if err != nil {
				return err
			}
			payload, err := parseHex(c.Args().First())
			if err != nil {
				return err
			}

			frames, err := protocol.Encode(dest, payload)
			if err != nil {
				return err
			}
			st.log.Debug().Str("destination", dest.String()).Int("frames", len(frames)).Msg("encoded")

			for _, f := range frames {
				fmt.Fprintln(c.App.Writer, hex.EncodeToString(f[:]))
			}
			return nil
		},
	}
}

func decodeCmd(st *state) *cli.Command {
	return &cli.Command{
		Name:      "decode",
		Usage:     "decode hex frames into destination and payload",
		ArgsUsage: "<hex frame>...",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "size", Usage: "payload size in bytes (0 = everything the frame count covers)"},
		},
		Action: func(c *cli.Context) error {
			data, err := parseHex(strings.Join(c.Args().Slice(), ""))
			if err != nil {
				return err
			}
			frames, err := splitFrames(data)
			if err != nil {
				return err
			}

			size := c.Int("size")
			if !c.IsSet("size") {
				size = st.cfg.PayloadSize
			}
			dest, payload, err := decodeFrames(frames, size)
			if err != nil {
				return err
			}
			printPacket(c, dest, payload)
			return nil
		},
	}
}

func sendCmd(st *state) *cli.Command {
	return &cli.Command{
		Name:      "send",
		Usage:     "send a hex payload over the configured serial port",
		ArgsUsage: "<hex payload>",
		Flags:     routeFlags(),
		Action: func(c *cli.Context) error {
			dest, err := resolveDestination(c, st.cfg.Route)
			if err != nil {
				return err
			}
			payload, err := parseHex(c.Args().First())
			if err != nil {
				return err
			}
			frames, err := protocol.Encode(dest, payload)
			if err != nil {
				return err
			}

			port, err := openPort(st.cfg)
			if err != nil {
				return err
			}
			l := link.New(port, link.Options{Logger: &st.log, QueueDepth: st.cfg.QueueDepth})
			defer l.Close()

			if err := l.Send(frames); err != nil {
				return err
			}
			st.log.Info().Str("destination", dest.String()).Int("frames", len(frames)).Msg("sent")
			return nil
		},
	}
}

func listenCmd(st *state) *cli.Command {
	return &cli.Command{
		Name:  "listen",
		Usage: "print packets received on the configured serial port",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "count", Usage: "exit after this many packets (0 = run until interrupted)"},
		},
		Action: func(c *cli.Context) error {
			port, err := openPort(st.cfg)
			if err != nil {
				return err
			}
			if err := port.Flush(); err != nil {
				st.log.Warn().Err(err).Msg("flush failed")
			}

			l := link.New(port, link.Options{
				Logger:     &st.log,
				QueueDepth: st.cfg.QueueDepth,
				StopOnEOF:  st.cfg.Device == "-",
			})
			defer l.Close()

			st.log.Info().Str("device", st.cfg.Device).Msg("listening")
			err = listen(c, l, st.cfg.PayloadSize, c.Int("count"))

			stats := l.Stats()
			st.log.Info().
				Uint64("frames", stats.FramesReceived).
				Uint64("packets", stats.PacketsReceived).
				Uint64("bad_blocks", stats.BadBlocks).
				Uint64("dropped", stats.PacketsDropped).
				Msg("stopped listening")
			return err
		},
	}
}

// listen prints packets from l until the context ends, the link closes or
// count packets were printed
func listen(c *cli.Context, l *link.Link, size, count int) error {
	for n := 0; count == 0 || n < count; {
		frames, err := l.Receive(c.Context)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, link.ErrClosed) {
				return nil
			}
			return err
		}

		dest, payload, err := decodeFrames(frames, size)
		if err != nil {
			fmt.Fprintf(c.App.ErrWriter, "bad packet: %v\n", err)
			continue
		}
		printPacket(c, dest, payload)
		n++
	}
	return nil
}

// stdio carries blocks over standard input and output
type stdio struct {
	in  *os.File
	out io.Writer
}

func (s stdio) Read(b []byte) (int, error)  { return s.in.Read(b) }
func (s stdio) Write(b []byte) (int, error) { return s.out.Write(b) }

// Close closes standard input so a blocked reader returns
func (s stdio) Close() error { return s.in.Close() }

// openPort opens the configured device; "-" uses standard input and output
func openPort(cfg config.Config) (serial.Port, error) {
	if cfg.Device == "-" {
		return serial.Wrap(stdio{os.Stdin, os.Stdout}), nil
	}
	return serial.Open(cfg.SerialConfig())
}

// resolveDestination picks the destination from flags, falling back to the
// configured route
func resolveDestination(c *cli.Context, fallback config.Route) (protocol.Destination, error) {
	parent, child := c.Bool("parent"), c.Bool("child")
	routed := c.IsSet("from") || c.IsSet("to")

	set := 0
	for _, b := range []bool{parent, child, routed} {
		if b {
			set++
		}
	}
	if set > 1 {
		return protocol.Destination{}, fmt.Errorf("--parent, --child and --from/--to are exclusive")
	}

	switch {
	case parent:
		return protocol.Local(protocol.ToParent), nil
	case child:
		return protocol.Local(protocol.ToChild), nil
	case routed:
		from, err := protocol.ParsePath(c.String("from"))
		if err != nil {
			return protocol.Destination{}, fmt.Errorf("--from: %w", err)
		}
		to, err := protocol.ParsePath(c.String("to"))
		if err != nil {
			return protocol.Destination{}, fmt.Errorf("--to: %w", err)
		}
		return protocol.Routed(from, to), nil
	default:
		return fallback.Destination()
	}
}

// decodeFrames decodes a packet; size 0 takes all bytes the frame count covers
func decodeFrames(frames []protocol.Frame, size int) (protocol.Destination, []byte, error) {
	if size == 0 && len(frames) > 0 {
		preludeLen, count, err := protocol.PeekLength(&frames[0])
		if err != nil {
			return protocol.Destination{}, nil, err
		}
		size = count*protocol.FrameSize - preludeLen - protocol.LengthFieldSize
		if size < 0 {
			return protocol.Destination{}, nil, fmt.Errorf("%w: declared %d frames", protocol.ErrLengthMismatch, count)
		}
	}
	return protocol.Decode(frames, size)
}

func printPacket(c *cli.Context, dest protocol.Destination, payload []byte) {
	fmt.Fprintf(c.App.Writer, "destination: %s\n", dest)
	fmt.Fprintf(c.App.Writer, "payload: %s\n", hex.EncodeToString(payload))
}

// parseHex decodes hex ignoring whitespace, colons and an 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.NewReplacer(" ", "", ":", "", "\n", "", "\t", "").Replace(s)
	data, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex: %w", err)
	}
	return data, nil
}

func splitFrames(data []byte) ([]protocol.Frame, error) {
	if len(data) == 0 || len(data)%protocol.FrameSize != 0 {
		return nil, fmt.Errorf("frame data must be a non-zero multiple of %d bytes, got %d", protocol.FrameSize, len(data))
	}
	frames := make([]protocol.Frame, len(data)/protocol.FrameSize)
	for i := range frames {
		copy(frames[i][:], data[i*protocol.FrameSize:])
	}
	return frames, nil
}
