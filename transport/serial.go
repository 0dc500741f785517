package transport

import (
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/RyanBlaney/sonido-link/logging"
)

// SerialConfig describes a serial device
type SerialConfig struct {
	Device   string `mapstructure:"device"`
	BaudRate int    `mapstructure:"baud_rate"`
	// ReadTimeout bounds how long a Read waits when no byte is pending
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// DefaultSerialConfig returns the link defaults (460800 8N1)
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{
		Device:      "/dev/ttyACM0",
		BaudRate:    460800,
		ReadTimeout: time.Millisecond,
	}
}

var _ Port = (*SerialPort)(nil)

// SerialPort is a Port over a UART
type SerialPort struct {
	port   serial.Port
	cfg    SerialConfig
	logger logging.Logger
}

// OpenSerial opens the configured device in 8N1 mode
func OpenSerial(cfg SerialConfig) (*SerialPort, error) {
	logger := logging.WithFields(logging.Fields{
		"component": "serial",
		"device":    cfg.Device,
	})

	mode := &serial.Mode{
		BaudRate: cfg.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	p, err := serial.Open(cfg.Device, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", cfg.Device, err)
	}

	timeout := cfg.ReadTimeout
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	if err := p.SetReadTimeout(timeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", cfg.Device, err)
	}

	logger.Info("serial port opened", logging.Fields{"baud": cfg.BaudRate})
	return &SerialPort{port: p, cfg: cfg, logger: logger}, nil
}

// Read returns the bytes available within the read timeout; (0, nil) when
// none arrived.
func (s *SerialPort) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialPort) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// Close closes the underlying serial port
func (s *SerialPort) Close() error {
	s.logger.Info("closing serial port")
	return s.port.Close()
}

// ListPorts returns the serial devices present on this machine
func ListPorts() ([]string, error) {
	ports, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate serial ports: %w", err)
	}
	return ports, nil
}
