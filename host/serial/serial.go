package serial

import (
	"io"
)

// Port represents a serial port carrying mushlink blocks.
// Implementations:
// - Native serial (using github.com/tarm/serial)
// - Any io.ReadWriteCloser wrapped with Wrap, for pipes and tests
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate of the radio or UART bridge
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int
}

// DefaultConfig returns the configuration used by common UART radio bridges
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
	}
}

// nopFlushPort adapts a plain stream to Port
type nopFlushPort struct {
	io.ReadWriteCloser
}

func (*nopFlushPort) Flush() error { return nil }

// Wrap turns any stream into a Port whose Flush does nothing
func Wrap(rwc io.ReadWriteCloser) Port {
	if p, ok := rwc.(Port); ok {
		return p
	}
	return &nopFlushPort{rwc}
}
