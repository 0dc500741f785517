package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/RyanBlaney/sonido-link/config"
	"github.com/RyanBlaney/sonido-link/features"
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/node"
	"github.com/RyanBlaney/sonido-link/protocol"
	"github.com/RyanBlaney/sonido-link/transcode"
	"github.com/RyanBlaney/sonido-link/transport"
)

func main() {
	var (
		configPath string
		role       string
		input      string
		device     string
		listPorts  bool
	)

	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.StringVar(&role, "role", "", "Override node role: sender, receiver or loopback")
	flag.StringVar(&input, "input", "", "Override audio input (file, URL or capture device)")
	flag.StringVar(&device, "device", "", "Override serial device")
	flag.BoolVar(&listPorts, "list-ports", false, "List serial ports and exit")
	flag.Parse()

	if listPorts {
		ports, err := transport.ListPorts()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to list ports: %v\n", err)
			os.Exit(1)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}

	// Load configuration
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if role != "" {
		cfg.Node.Role = role
	}
	if input != "" {
		cfg.Audio.Input = input
	}
	if device != "" {
		cfg.Serial.Device = device
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := logging.NewLogrusLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logging.SetGlobalLogger(logger)
	log := logger.WithFields(logging.Fields{"component": "main"})
	log.Info("Starting sonido-link", logging.Fields{
		"role":   cfg.Node.Role,
		"config": configPath,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	metrics := protocol.NewMetrics(prometheus.DefaultRegisterer)
	if cfg.Metrics.Enabled {
		go startMetricsServer(cfg.Metrics, log)
	}

	lines := readLines(os.Stdin)

	switch cfg.Node.Role {
	case config.RoleSender:
		err = runSender(ctx, cfg, metrics, lines)
	case config.RoleReceiver:
		err = runReceiver(ctx, cfg, metrics, lines)
	case config.RoleLoopback:
		err = runLoopback(ctx, cfg, metrics, lines)
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal(err, "Node stopped")
	}
	log.Info("Shutdown complete")
}

// readLines forwards stdin lines as commands until stdin closes
func readLines(r io.Reader) <-chan string {
	lines := make(chan string, 16)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// startAudio decodes the configured input and feeds a front-end from a
// producer goroutine
func startAudio(ctx context.Context, cfg *config.Config) (*transcode.FrontEnd, func(), error) {
	decoder := transcode.NewDecoder(cfg.Audio.Decoder)
	if err := decoder.Validate(ctx); err != nil {
		return nil, nil, err
	}
	fe, err := transcode.NewFrontEnd(cfg.Audio.FrontEnd)
	if err != nil {
		return nil, nil, err
	}
	stream, err := decoder.Open(ctx, cfg.Audio.Input)
	if err != nil {
		return nil, nil, err
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := fe.Run(ctx, stream); err != nil && !errors.Is(err, context.Canceled) {
			logging.Error(err, "audio input failed")
		}
	}()

	cleanup := func() {
		_ = stream.Close()
		<-done
	}
	return fe, cleanup, nil
}

func newSender(ctx context.Context, cfg *config.Config, port io.ReadWriter, metrics *protocol.Metrics) (*node.Sender, func(), error) {
	if cfg.Audio.Input == "" {
		return nil, nil, fmt.Errorf("sender requires an audio input")
	}
	fe, cleanup, err := startAudio(ctx, cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to start audio: %w", err)
	}
	pipeline, err := features.NewPipeline(cfg.Features)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	sender, err := node.NewSender(cfg.Node.Sender, port, fe, pipeline,
		node.WithMetrics(metrics),
		node.WithDecoderConfig(cfg.Protocol),
	)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return sender, cleanup, nil
}

func runSender(ctx context.Context, cfg *config.Config, metrics *protocol.Metrics, lines <-chan string) error {
	port, err := transport.OpenSerial(cfg.Serial)
	if err != nil {
		return err
	}
	defer port.Close()

	sender, cleanup, err := newSender(ctx, cfg, port, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	return sender.Run(ctx, lines)
}

func runReceiver(ctx context.Context, cfg *config.Config, metrics *protocol.Metrics, lines <-chan string) error {
	port, err := transport.OpenSerial(cfg.Serial)
	if err != nil {
		return err
	}
	defer port.Close()

	receiver, err := node.NewReceiver(cfg.Node.Receiver, port, nil,
		node.WithMetrics(metrics),
		node.WithDecoderConfig(cfg.Protocol),
	)
	if err != nil {
		return err
	}
	return receiver.Run(ctx, lines)
}

// runLoopback connects a sender and a receiver through an impaired
// in-memory link. Command lines go to the receiver, which forwards them
// upstream.
func runLoopback(ctx context.Context, cfg *config.Config, metrics *protocol.Metrics, lines <-chan string) error {
	up, down := transport.NewLink(cfg.Node.Loopback, 1)
	defer up.Close()
	defer down.Close()

	sender, cleanup, err := newSender(ctx, cfg, up, metrics)
	if err != nil {
		return err
	}
	defer cleanup()

	receiver, err := node.NewReceiver(cfg.Node.Receiver, down, nil,
		node.WithMetrics(metrics),
		node.WithDecoderConfig(cfg.Protocol),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errs := make(chan error, 2)
	go func() { errs <- sender.Run(ctx, nil) }()
	go func() { errs <- receiver.Run(ctx, lines) }()

	// whichever node stops first takes the other down with it
	err = <-errs
	cancel()
	if second := <-errs; errors.Is(err, context.Canceled) {
		err = second
	}
	return err
}

// startMetricsServer starts the Prometheus metrics server
func startMetricsServer(cfg config.MetricsConfig, log logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.Handler())

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("Starting metrics server", logging.Fields{"addr": addr})

	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Error(err, "Metrics server error")
	}
}
