package node

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
	"github.com/RyanBlaney/sonido-link/features"
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
)

// SenderConfig holds the sender's scheduling tunables
type SenderConfig struct {
	// Tick is the analysis period
	Tick time.Duration `mapstructure:"tick"`
	// CommandRate limits forwarded commands per second. Commands over the
	// limit are coalesced, never dropped: the newest is sent when a token
	// frees up.
	CommandRate  float64 `mapstructure:"command_rate"`
	CommandBurst int     `mapstructure:"command_burst"`
}

// DefaultSenderConfig returns a ~60 Hz tick
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		Tick:         17 * time.Millisecond,
		CommandRate:  10,
		CommandBurst: 5,
	}
}

// Validate checks the tunables
func (c SenderConfig) Validate() error {
	if c.Tick <= 0 {
		return fmt.Errorf("tick must be positive: %v", c.Tick)
	}
	if c.CommandRate <= 0 || c.CommandBurst <= 0 {
		return fmt.Errorf("command rate and burst must be positive")
	}
	return nil
}

// SenderStats counts sender activity
type SenderStats struct {
	Ticks        uint64
	Analysed     uint64
	Silent       uint64
	FeaturesSent uint64
	CommandsSent uint64
	// CommandsDeferred counts commands held back by the rate limit
	CommandsDeferred uint64
	CommandsRecv     uint64
}

// Sender runs the analysis pipeline once per tick and streams FEATURE and
// AUX frames. Command lines are forwarded downstream as COMMAND frames;
// COMMAND frames arriving from downstream are applied locally.
type Sender struct {
	cfg      SenderConfig
	frontEnd spectral.FrontEnd
	pipeline *features.Pipeline
	link     *link
	outbox   *outbox
	stats    SenderStats
	logger   logging.Logger
}

// NewSender wires a sender to port
func NewSender(cfg SenderConfig, port io.ReadWriter, fe spectral.FrontEnd, pipeline *features.Pipeline, opts ...Option) (*Sender, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sender config: %w", err)
	}
	o := buildOptions("sender", cfg.Tick, opts)

	s := &Sender{
		cfg:      cfg,
		frontEnd: fe,
		pipeline: pipeline,
		outbox:   newOutbox(cfg.CommandRate, cfg.CommandBurst),
		logger:   o.logger,
	}
	l, err := newLink(port, protocol.HandlerFunc(s.handleFrame), cfg.Tick, o)
	if err != nil {
		return nil, err
	}
	s.link = l
	return s, nil
}

func (s *Sender) handleFrame(f protocol.Frame) {
	if f.Type != protocol.TypeCommand {
		return
	}
	var p protocol.CommandPayload
	if err := p.UnmarshalBinary(f.Payload); err != nil || !p.Mode.Valid() {
		s.logger.Warn("ignoring invalid command frame", logging.Fields{"seq": f.Seq})
		return
	}
	s.stats.CommandsRecv++
	s.applyCommand(CommandFromPayload(p))
}

// applyCommand reacts to a command locally. Music restores the 12-band
// layout the visualisations expect.
func (s *Sender) applyCommand(cmd Command) {
	if cmd.Mode != protocol.ModeMusic {
		return
	}
	if _, err := s.pipeline.SetBandLayout(features.Layout12); err != nil {
		s.logger.Error(err, "failed to restore band layout")
	}
}

// Submit parses a command line, applies it locally and forwards it
// downstream. Mode-only lines are applied locally only. A command over the
// rate limit is held and sent by a later Tick unless a newer one replaces it.
func (s *Sender) Submit(line string, now time.Time) error {
	cmd, err := ParseCommand(line)
	if err != nil {
		return err
	}
	s.applyCommand(cmd)
	if !cmd.Complete() {
		s.logger.Debug("mode-only command applied locally", logging.Fields{
			"mode": cmd.Mode.String(),
		})
		return nil
	}

	payload, err := cmd.Payload()
	if err != nil {
		return err
	}
	sent, err := s.outbox.offer(now, s.link, payload)
	if err != nil {
		return err
	}
	fields := logging.Fields{
		"mode":       cmd.Mode.String(),
		"pattern":    cmd.Pattern,
		"brightness": cmd.Brightness,
	}
	if !sent {
		s.stats.CommandsDeferred++
		s.logger.Debug("command deferred by rate limit", fields)
		return nil
	}
	s.stats.CommandsSent++
	s.logger.Info("command forwarded", fields)
	return nil
}

// Tick runs one scheduling period: service the incoming side, then analyse
// the newest window if the front-end produced one. Silent windows are not
// transmitted.
func (s *Sender) Tick(now time.Time) error {
	s.stats.Ticks++
	if _, err := s.link.service(now); err != nil {
		return err
	}
	sent, err := s.outbox.flush(now, s.link)
	if err != nil {
		return err
	}
	if sent {
		s.stats.CommandsSent++
	}
	if !s.frontEnd.Available() {
		return nil
	}

	out := s.pipeline.Process(s.frontEnd, now)
	s.stats.Analysed++
	if out.Silent {
		s.stats.Silent++
		return nil
	}

	if err := s.link.send(protocol.TypeFeature, out.Feature); err != nil {
		return err
	}
	if err := s.link.send(protocol.TypeAux, out.Aux); err != nil {
		return err
	}
	s.stats.FeaturesSent++
	return nil
}

// Run ticks until ctx is cancelled or the port fails. Lines received on
// lines are submitted at the start of the next tick.
func (s *Sender) Run(ctx context.Context, lines <-chan string) error {
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()

	s.logger.Info("sender started", logging.Fields{
		"tick":   s.cfg.Tick.String(),
		"layout": s.pipeline.LayoutName(),
	})
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sender stopped", logging.Fields{
				"ticks":         s.stats.Ticks,
				"features_sent": s.stats.FeaturesSent,
			})
			return ctx.Err()
		case now := <-ticker.C:
			lines = drainLines(lines, func(line string) {
				if err := s.Submit(line, now); err != nil {
					s.logger.Warn("command rejected", logging.Fields{
						"line":  line,
						"error": err.Error(),
					})
				}
			})
			if err := s.Tick(now); err != nil {
				return err
			}
		}
	}
}

// Stats returns activity counters
func (s *Sender) Stats() SenderStats {
	return s.stats
}

// DecoderStats returns the incoming decoder's counters
func (s *Sender) DecoderStats() protocol.Stats {
	return s.link.decoder.Stats()
}
