package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
)

// ReceiverConfig holds the receiver's scheduling tunables
type ReceiverConfig struct {
	// Tick is the render period; the link is serviced before every step
	Tick time.Duration `mapstructure:"tick"`
	// DiagnosticsInterval is how often frame counts are logged and reset
	DiagnosticsInterval time.Duration `mapstructure:"diagnostics_interval"`
	// FeatureTimeout is how long without a FEATURE frame before warning
	FeatureTimeout time.Duration `mapstructure:"feature_timeout"`
	// WarnInterval is the minimum spacing of repeated timeout warnings
	WarnInterval time.Duration `mapstructure:"warn_interval"`
	CommandRate  float64       `mapstructure:"command_rate"`
	CommandBurst int           `mapstructure:"command_burst"`
	Pixels       int           `mapstructure:"pixels"`
}

// DefaultReceiverConfig returns the receiver defaults
func DefaultReceiverConfig() ReceiverConfig {
	return ReceiverConfig{
		Tick:                10 * time.Millisecond,
		DiagnosticsInterval: 3 * time.Second,
		FeatureTimeout:      2 * time.Second,
		WarnInterval:        5 * time.Second,
		CommandRate:         10,
		CommandBurst:        5,
		Pixels:              144,
	}
}

// Validate checks the tunables
func (c ReceiverConfig) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive: %v", c.Tick)
	}
	if c.DiagnosticsInterval <= 0 || c.FeatureTimeout <= 0 || c.WarnInterval <= 0 {
		return fmt.Errorf("diagnostics interval, feature timeout and warn interval must be positive")
	}
	if c.CommandRate <= 0 || c.CommandBurst <= 0 {
		return fmt.Errorf("command rate and burst must be positive")
	}
	if c.Pixels <= 0 {
		return fmt.Errorf("pixels must be positive: %d", c.Pixels)
	}
	return nil
}

// Diagnostics is one reporting interval's worth of counts
type Diagnostics struct {
	Counters
	ChecksumErrors uint64
	Dropped        uint64
}

// Receiver decodes the incoming stream into a Consumer and drives a
// Renderer from a fixed tick. Local command lines are applied immediately
// and, when complete, sent upstream.
type Receiver struct {
	cfg      ReceiverConfig
	link     *link
	consumer *Consumer
	renderer Renderer
	outbox   *outbox
	sink     func([]uint8)
	logger   logging.Logger
	warnLog  *logging.Sampled

	started      bool
	lastFeature  time.Time
	lastDiag     time.Time
	seenFeatures uint64
	lastStats    protocol.Stats
	lastDiagOut  Diagnostics
}

// NewReceiver wires a receiver to port. A nil renderer selects a
// MeterRenderer sized by cfg.Pixels.
func NewReceiver(cfg ReceiverConfig, port io.ReadWriter, renderer Renderer, opts ...Option) (*Receiver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid receiver config: %w", err)
	}
	o := buildOptions("receiver", cfg.Tick, opts)
	if renderer == nil {
		renderer = NewMeterRenderer(cfg.Pixels)
	}

	consumer := NewConsumer()
	l, err := newLink(port, consumer, cfg.Tick, o)
	if err != nil {
		return nil, err
	}
	r := &Receiver{
		cfg:      cfg,
		link:     l,
		consumer: consumer,
		renderer: renderer,
		outbox:   newOutbox(cfg.CommandRate, cfg.CommandBurst),
		sink:     o.sink,
		logger:   o.logger,
		warnLog:  logging.NewSampled(o.logger, cfg.WarnInterval, 1),
	}
	renderer.Reset(consumer.Snapshot().Control)
	return r, nil
}

// Service reads and decodes everything available on the port
func (r *Receiver) Service(now time.Time) error {
	if !r.started {
		r.started = true
		r.lastFeature = now
		r.lastDiag = now
	}
	_, err := r.link.service(now)
	if n := r.consumer.FeatureFrames(); n != r.seenFeatures {
		r.seenFeatures = n
		r.lastFeature = now
	}
	return err
}

// Tick services the link, sends any command held by the rate limit, then
// renders exactly one frame
func (r *Receiver) Tick(now time.Time) error {
	if err := r.Service(now); err != nil {
		return err
	}
	if _, err := r.outbox.flush(now, r.link); err != nil {
		return err
	}

	if r.consumer.TakePending() {
		r.renderer.Reset(r.consumer.Snapshot().Control)
	}
	pixels := r.renderer.Step(r.consumer.Snapshot())
	if r.sink != nil {
		r.sink(pixels)
	}

	if now.Sub(r.lastFeature) > r.cfg.FeatureTimeout {
		r.warnLog.WarnAt(now, "no feature frames received", logging.Fields{
			"since": now.Sub(r.lastFeature).String(),
		})
	}
	if now.Sub(r.lastDiag) >= r.cfg.DiagnosticsInterval {
		r.reportDiagnostics(now)
	}
	return nil
}

func (r *Receiver) reportDiagnostics(now time.Time) {
	stats := r.link.decoder.Stats()
	d := Diagnostics{
		Counters:       r.consumer.TakeCounters(),
		ChecksumErrors: stats.ChecksumErrors - r.lastStats.ChecksumErrors,
		Dropped:        stats.Dropped() - r.lastStats.Dropped(),
	}
	r.lastStats = stats
	r.lastDiag = now
	r.lastDiagOut = d

	r.logger.Info("link diagnostics", logging.Fields{
		"feature":  d.Feature,
		"aux":      d.Aux,
		"command":  d.Command,
		"crc_errs": d.ChecksumErrors,
		"dropped":  d.Dropped,
	})
}

// Submit applies a local command line and forwards it upstream when it
// carries every value. Commands over the rate limit are coalesced like the
// sender's.
func (r *Receiver) Submit(line string, now time.Time) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err
	}
	r.consumer.Apply(cmd)
	if !cmd.Complete() {
		return nil
	}

	payload, err := cmd.Payload()
	if err != nil {
		return err
	}
	_, err = r.outbox.offer(now, r.link, payload)
	return err
}

// Run ticks until ctx is cancelled or the port fails
func (r *Receiver) Run(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(r.cfg.Tick)
	defer ticker.Stop()

	r.logger.Info("receiver started", logging.Fields{"tick": r.cfg.Tick.String()})
	for {
		select {
		case <-ctx.Done():
			stats := r.link.decoder.Stats()
			r.logger.Info("receiver stopped", logging.Fields{
				"features": stats.Frames[protocol.TypeFeature],
				"dropped":  stats.Dropped(),
			})
			return ctx.Err()
		case now := <-ticker.C:
			lines = drainLines(lines, func(line string) {
				if err := r.Submit(line, now); err != nil {
					r.logger.Warn("command rejected", logging.Fields{
						"line":  line,
						"error": err.Error(),
					})
				}
			})
			if err := r.Tick(now); err != nil {
				return err
			}
		}
	}
}

// Snapshot returns the latest decoded state
func (r *Receiver) Snapshot() Snapshot {
	return r.consumer.Snapshot()
}

// LastDiagnostics returns the most recently reported interval
func (r *Receiver) LastDiagnostics() Diagnostics {
	return r.lastDiagOut
}

// DecoderStats returns the decoder's cumulative counters
func (r *Receiver) DecoderStats() protocol.Stats {
	return r.link.decoder.Stats()
}
