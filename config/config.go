package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/RyanBlaney/sonido-link/features"
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/node"
	"github.com/RyanBlaney/sonido-link/protocol"
	"github.com/RyanBlaney/sonido-link/transcode"
	"github.com/RyanBlaney/sonido-link/transport"
)

// Roles a process can take
const (
	RoleSender   = "sender"
	RoleReceiver = "receiver"
	// RoleLoopback runs both nodes in one process over a simulated link
	RoleLoopback = "loopback"
)

type Config struct {
	Node     NodeConfig             `mapstructure:"node"`
	Serial   transport.SerialConfig `mapstructure:"serial"`
	Audio    AudioConfig            `mapstructure:"audio"`
	Features features.Config        `mapstructure:"features"`
	Protocol protocol.DecoderConfig `mapstructure:"protocol"`
	Logging  logging.Options        `mapstructure:"logging"`
	Metrics  MetricsConfig          `mapstructure:"metrics"`
}

type NodeConfig struct {
	Role     string               `mapstructure:"role"` // sender, receiver or loopback
	Sender   node.SenderConfig    `mapstructure:"sender"`
	Receiver node.ReceiverConfig  `mapstructure:"receiver"`
	Loopback transport.Impairment `mapstructure:"loopback"`
}

type AudioConfig struct {
	Input    string                   `mapstructure:"input"` // file, URL or capture device
	Decoder  transcode.DecoderConfig  `mapstructure:"decoder"`
	FrontEnd transcode.FrontEndConfig `mapstructure:"frontend"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// Default returns the configuration used when nothing is overridden
func Default() Config {
	return Config{
		Node: NodeConfig{
			Role:     RoleSender,
			Sender:   node.DefaultSenderConfig(),
			Receiver: node.DefaultReceiverConfig(),
		},
		Serial: transport.DefaultSerialConfig(),
		Audio: AudioConfig{
			Decoder:  transcode.DefaultDecoderConfig(),
			FrontEnd: transcode.DefaultFrontEndConfig(),
		},
		Features: features.DefaultConfig(),
		Protocol: pollingDecoderConfig(),
		Logging: logging.Options{
			Level:      "info",
			Format:     "text",
			Output:     "stderr",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 30,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Path:    "/metrics",
			Port:    9090,
		},
	}
}

// pollingDecoderConfig lengthens the stale timeout past both node ticks.
// Bytes are read once per tick, so a frame split across two reads must not
// look stale.
func pollingDecoderConfig() protocol.DecoderConfig {
	cfg := protocol.DefaultDecoderConfig()
	cfg.StaleTimeout = 50 * time.Millisecond
	return cfg
}

// Load reads configPath (YAML) over the defaults. SONIDO_* environment
// variables override both, e.g. SONIDO_SERIAL_DEVICE. An empty path loads
// defaults and environment only.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	// Environment variable override
	v.SetEnvPrefix("SONIDO")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// setDefaults registers the keys that may be overridden from the
// environment. DSP tables are left to Default and the config file.
func setDefaults(v *viper.Viper) {
	d := Default()

	// Node defaults
	v.SetDefault("node.role", d.Node.Role)
	v.SetDefault("node.sender.tick", d.Node.Sender.Tick)
	v.SetDefault("node.sender.command_rate", d.Node.Sender.CommandRate)
	v.SetDefault("node.sender.command_burst", d.Node.Sender.CommandBurst)
	v.SetDefault("node.receiver.tick", d.Node.Receiver.Tick)
	v.SetDefault("node.receiver.diagnostics_interval", d.Node.Receiver.DiagnosticsInterval)
	v.SetDefault("node.receiver.feature_timeout", d.Node.Receiver.FeatureTimeout)
	v.SetDefault("node.receiver.warn_interval", d.Node.Receiver.WarnInterval)
	v.SetDefault("node.receiver.command_rate", d.Node.Receiver.CommandRate)
	v.SetDefault("node.receiver.command_burst", d.Node.Receiver.CommandBurst)
	v.SetDefault("node.receiver.pixels", d.Node.Receiver.Pixels)
	v.SetDefault("node.loopback.drop_rate", d.Node.Loopback.DropRate)
	v.SetDefault("node.loopback.corrupt_rate", d.Node.Loopback.CorruptRate)
	v.SetDefault("node.loopback.insert_rate", d.Node.Loopback.InsertRate)

	// Serial defaults
	v.SetDefault("serial.device", d.Serial.Device)
	v.SetDefault("serial.baud_rate", d.Serial.BaudRate)
	v.SetDefault("serial.read_timeout", d.Serial.ReadTimeout)

	// Audio defaults
	v.SetDefault("audio.input", d.Audio.Input)
	v.SetDefault("audio.decoder.ffmpeg_path", d.Audio.Decoder.FFmpegPath)
	v.SetDefault("audio.decoder.input_format", d.Audio.Decoder.InputFormat)
	v.SetDefault("audio.decoder.realtime", d.Audio.Decoder.Realtime)
	v.SetDefault("audio.decoder.normalization", d.Audio.Decoder.Normalization)

	// Feature defaults
	v.SetDefault("features.layout", d.Features.Layout)
	v.SetDefault("features.silence_threshold", d.Features.SilenceThreshold)

	// Protocol defaults
	v.SetDefault("protocol.stale_timeout", d.Protocol.StaleTimeout)
	v.SetDefault("protocol.capacity", d.Protocol.Capacity)

	// Logging defaults
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output", d.Logging.Output)

	// Metrics defaults
	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
	v.SetDefault("metrics.port", d.Metrics.Port)
}
