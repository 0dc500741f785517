package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-link/features"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	cfg.Node.Role = RoleReceiver
	require.NoError(t, cfg.Validate())

	cfg.Node.Role = RoleLoopback
	require.NoError(t, cfg.Validate())
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{
			name:   "unknown role",
			mutate: func(c *Config) { c.Node.Role = "relay" },
			errMsg: "invalid role",
		},
		{
			name:   "zero sender tick",
			mutate: func(c *Config) { c.Node.Sender.Tick = 0 },
			errMsg: "tick must be positive",
		},
		{
			name: "loopback rate",
			mutate: func(c *Config) {
				c.Node.Role = RoleLoopback
				c.Node.Loopback.DropRate = 1.5
			},
			errMsg: "drop_rate",
		},
		{
			name:   "sample rate mismatch",
			mutate: func(c *Config) { c.Audio.Decoder.SampleRate = 48000 },
			errMsg: "does not match",
		},
		{
			name:   "bad baud rate",
			mutate: func(c *Config) { c.Serial.BaudRate = 0 },
			errMsg: "invalid baud rate",
		},
		{
			name:   "unknown layout",
			mutate: func(c *Config) { c.Features.Layout = "bands7" },
			errMsg: "features config",
		},
		{
			name:   "stale timeout",
			mutate: func(c *Config) { c.Protocol.StaleTimeout = 0 },
			errMsg: "stale timeout",
		},
		{
			name:   "stale timeout within sender tick",
			mutate: func(c *Config) { c.Protocol.StaleTimeout = 17 * time.Millisecond },
			errMsg: "must exceed the sender tick",
		},
		{
			name: "stale timeout within receiver tick",
			mutate: func(c *Config) {
				c.Node.Role = RoleReceiver
				c.Node.Receiver.Tick = 60 * time.Millisecond
			},
			errMsg: "must exceed the receiver tick",
		},
		{
			name:   "log level",
			mutate: func(c *Config) { c.Logging.Level = "loud" },
			errMsg: "unknown log level",
		},
		{
			name:   "log format",
			mutate: func(c *Config) { c.Logging.Format = "xml" },
			errMsg: "invalid log format",
		},
		{
			name: "metrics port",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Port = 70000
			},
			errMsg: "invalid metrics port",
		},
		{
			name: "metrics path",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Path = "metrics"
			},
			errMsg: "must start with /",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestReceiverSkipsAudioValidation(t *testing.T) {
	cfg := Default()
	cfg.Node.Role = RoleReceiver
	cfg.Audio.Decoder.SampleRate = 48000
	assert.NoError(t, cfg.Validate())
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, RoleSender, cfg.Node.Role)
	assert.Equal(t, 17*time.Millisecond, cfg.Node.Sender.Tick)
	assert.Equal(t, 50*time.Millisecond, cfg.Protocol.StaleTimeout)
	assert.Equal(t, features.Layout12, cfg.Features.Layout)
	assert.Len(t, cfg.Features.Layouts, 2)
}

func TestLoadConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sonido.yaml")
	content := `
node:
  role: receiver
  receiver:
    pixels: 288
    feature_timeout: 4s

serial:
  device: /dev/ttyUSB1
  baud_rate: 921600

features:
  layout: bands10
  bands:
    smoothing: 0.3

protocol:
  stale_timeout: 25ms

logging:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, RoleReceiver, cfg.Node.Role)
	assert.Equal(t, 288, cfg.Node.Receiver.Pixels)
	assert.Equal(t, 4*time.Second, cfg.Node.Receiver.FeatureTimeout)
	assert.Equal(t, 3*time.Second, cfg.Node.Receiver.DiagnosticsInterval, "unset keys keep defaults")
	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Device)
	assert.Equal(t, 921600, cfg.Serial.BaudRate)
	assert.Equal(t, features.Layout10, cfg.Features.Layout)
	assert.InDelta(t, 0.3, cfg.Features.Bands.Smoothing, 1e-12)
	assert.InDelta(t, 8000.0, cfg.Features.Bands.CalibrationGain, 1e-12)
	assert.Equal(t, 25*time.Millisecond, cfg.Protocol.StaleTimeout)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("SONIDO_SERIAL_BAUD_RATE", "115200")
	t.Setenv("SONIDO_NODE_SENDER_TICK", "20ms")
	t.Setenv("SONIDO_METRICS_ENABLED", "true")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 20*time.Millisecond, cfg.Node.Sender.Tick)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node:\n  role: relay\n"), 0o600))
	cfg, err := Load(path)
	assert.Error(t, err)
	assert.Nil(t, cfg)
}
