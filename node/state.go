package node

import (
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
)

// Control is the renderer's current selection
type Control struct {
	Mode    protocol.Mode
	Pattern int
	Color   int
	// Brightness is the raw 0-255 level carried in COMMAND frames, not a
	// percentage. 255 is full output.
	Brightness int
}

type modeSettings struct {
	pattern    int
	brightness int
}

// ControlState applies commands. Music, Solid and Pattern each remember
// their last pattern and brightness so that switching back restores them.
type ControlState struct {
	current Control
	saved   map[protocol.Mode]modeSettings
	pending bool
}

// NewControlState starts in Solid, pattern 0, brightness 10 of 255
func NewControlState() *ControlState {
	return &ControlState{
		current: Control{Mode: protocol.ModeSolid, Pattern: 0, Brightness: 10},
		saved: map[protocol.Mode]modeSettings{
			protocol.ModeMusic:   {0, 10},
			protocol.ModeSolid:   {0, 10},
			protocol.ModePattern: {0, 10},
		},
	}
}

// Apply switches to cmd's mode. Unset values fall back to the mode's saved
// settings. Off zeroes the pattern and keeps the brightness.
func (s *ControlState) Apply(cmd Command) Control {
	if saved, ok := s.saved[s.current.Mode]; ok {
		saved.pattern = s.current.Pattern
		saved.brightness = s.current.Brightness
		s.saved[s.current.Mode] = saved
	}

	s.current.Mode = cmd.Mode
	s.current.Color = cmd.Color
	if saved, ok := s.saved[cmd.Mode]; ok {
		s.current.Pattern = orDefault(cmd.Pattern, saved.pattern)
		s.current.Brightness = orDefault(cmd.Brightness, saved.brightness)
	} else if cmd.Mode == protocol.ModeOff {
		s.current.Pattern = 0
	} else {
		s.current.Pattern = orDefault(cmd.Pattern, 0)
		s.current.Brightness = orDefault(cmd.Brightness, 100)
	}

	s.pending = true
	return s.current
}

func orDefault(v, def int) int {
	if v >= 0 {
		return v
	}
	return def
}

// Current returns the active selection
func (s *ControlState) Current() Control {
	return s.current
}

// TakePending reports whether a command arrived since the last call
func (s *ControlState) TakePending() bool {
	p := s.pending
	s.pending = false
	return p
}

// Snapshot is the latest decoded state. A newly decoded frame replaces the
// previous one of its type.
type Snapshot struct {
	Feature protocol.FeaturePayload
	Aux     protocol.AuxPayload
	Control Control
	// HaveFeature and HaveAux are false until the first frame of that type
	HaveFeature bool
	HaveAux     bool
}

// Counters are frame totals since the last diagnostics reset
type Counters struct {
	Feature  uint64
	Aux      uint64
	Command  uint64
	Rejected uint64
}

// Consumer is the single writer of the receiver's Snapshot
type Consumer struct {
	snap     Snapshot
	control  *ControlState
	counters Counters
	features uint64
	logger   logging.Logger
}

// NewConsumer creates a consumer with default control state
func NewConsumer() *Consumer {
	c := &Consumer{
		control: NewControlState(),
		logger: logging.WithFields(logging.Fields{
			"component": "feature_consumer",
		}),
	}
	c.snap.Control = c.control.Current()
	return c
}

// HandleFrame implements protocol.Handler
func (c *Consumer) HandleFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.TypeFeature:
		if err := c.snap.Feature.UnmarshalBinary(f.Payload); err != nil {
			c.reject(f, err)
			return
		}
		c.snap.HaveFeature = true
		c.counters.Feature++
		c.features++

	case protocol.TypeAux:
		if err := c.snap.Aux.UnmarshalBinary(f.Payload); err != nil {
			c.reject(f, err)
			return
		}
		c.snap.HaveAux = true
		c.counters.Aux++

	case protocol.TypeCommand:
		var p protocol.CommandPayload
		if err := p.UnmarshalBinary(f.Payload); err != nil {
			c.reject(f, err)
			return
		}
		if !p.Mode.Valid() {
			c.reject(f, ErrBadCommand)
			return
		}
		c.counters.Command++
		c.Apply(CommandFromPayload(p))
	}
}

func (c *Consumer) reject(f protocol.Frame, err error) {
	c.counters.Rejected++
	c.logger.Warn("rejected frame payload", logging.Fields{
		"type":  f.Type.String(),
		"seq":   f.Seq,
		"error": err.Error(),
	})
}

// Apply runs a command against the control state
func (c *Consumer) Apply(cmd Command) Control {
	ctl := c.control.Apply(cmd)
	c.snap.Control = ctl
	c.logger.Info("control changed", logging.Fields{
		"mode":       ctl.Mode.String(),
		"pattern":    ctl.Pattern,
		"brightness": ctl.Brightness,
	})
	return ctl
}

// Snapshot returns a copy of the latest state
func (c *Consumer) Snapshot() Snapshot {
	return c.snap
}

// TakePending reports whether the control changed since the last call
func (c *Consumer) TakePending() bool {
	return c.control.TakePending()
}

// FeatureFrames returns the total number of FEATURE frames accepted
func (c *Consumer) FeatureFrames() uint64 {
	return c.features
}

// TakeCounters returns and resets the diagnostic counters
func (c *Consumer) TakeCounters() Counters {
	out := c.counters
	c.counters = Counters{}
	return out
}
