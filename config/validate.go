package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/transport"
)

func (c *Config) Validate() error {
	if err := c.Node.Validate(); err != nil {
		return fmt.Errorf("node config: %w", err)
	}

	if c.Node.Role != RoleReceiver {
		if err := c.Audio.Validate(); err != nil {
			return fmt.Errorf("audio config: %w", err)
		}
	}

	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial config: invalid baud rate: %d", c.Serial.BaudRate)
	}

	if err := c.Features.Validate(); err != nil {
		return fmt.Errorf("features config: %w", err)
	}

	if err := c.Protocol.Validate(); err != nil {
		return fmt.Errorf("protocol config: %w", err)
	}
	for name, tick := range map[string]time.Duration{
		"sender":   c.Node.Sender.Tick,
		"receiver": c.Node.Receiver.Tick,
	} {
		if c.Protocol.StaleTimeout <= tick {
			return fmt.Errorf("protocol config: stale timeout %v must exceed the %s tick %v",
				c.Protocol.StaleTimeout, name, tick)
		}
	}

	if err := validateLogging(c.Logging); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Metrics.Validate(); err != nil {
		return fmt.Errorf("metrics config: %w", err)
	}

	return nil
}

func (n *NodeConfig) Validate() error {
	switch n.Role {
	case RoleSender:
		return n.Sender.Validate()
	case RoleReceiver:
		return n.Receiver.Validate()
	case RoleLoopback:
		if err := n.Sender.Validate(); err != nil {
			return err
		}
		if err := n.Receiver.Validate(); err != nil {
			return err
		}
		return validateImpairment(n.Loopback)
	default:
		return fmt.Errorf("invalid role %q, want %s, %s or %s", n.Role, RoleSender, RoleReceiver, RoleLoopback)
	}
}

func validateImpairment(i transport.Impairment) error {
	for name, rate := range map[string]float64{
		"drop_rate":    i.DropRate,
		"corrupt_rate": i.CorruptRate,
		"insert_rate":  i.InsertRate,
	} {
		if rate < 0 || rate > 1 {
			return fmt.Errorf("loopback %s must be in [0, 1]: %v", name, rate)
		}
	}
	return nil
}

func (a *AudioConfig) Validate() error {
	if a.Decoder.SampleRate != a.FrontEnd.SampleRate {
		return fmt.Errorf("decoder sample rate %d does not match front-end %d",
			a.Decoder.SampleRate, a.FrontEnd.SampleRate)
	}
	return a.FrontEnd.Validate()
}

func validateLogging(o logging.Options) error {
	if _, err := logging.ParseLevel(o.Level); err != nil {
		return err
	}

	switch o.Format {
	case "json", "text":
	default:
		return fmt.Errorf("invalid log format: %s", o.Format)
	}

	if strings.TrimSpace(o.Output) == "" {
		return fmt.Errorf("log output is required")
	}

	return nil
}

func (m *MetricsConfig) Validate() error {
	if !m.Enabled {
		return nil
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("invalid metrics port: %d", m.Port)
	}

	if !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics path must start with /: %s", m.Path)
	}

	return nil
}
