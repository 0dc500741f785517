package node

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
	"github.com/RyanBlaney/sonido-link/features"
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
	"github.com/RyanBlaney/sonido-link/transport"
)

const tick = 17 * time.Millisecond

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeFrontEnd reports a new window on every tick
type fakeFrontEnd struct {
	spectral.Magnitudes
}

func (f *fakeFrontEnd) Available() bool {
	return true
}

func toneFrontEnd() *fakeFrontEnd {
	mags := make(spectral.Magnitudes, 512)
	mags[10] = 1.0 // ~431 Hz, pitch class A
	return &fakeFrontEnd{Magnitudes: mags}
}

func quietLogger() logging.Logger {
	return &logging.NoOpLogger{}
}

type rig struct {
	fe       *fakeFrontEnd
	pipeline *features.Pipeline
	sender   *Sender
	receiver *Receiver
	now      time.Time
}

func newRig(t *testing.T, impair transport.Impairment, ropts ...Option) *rig {
	t.Helper()
	a, b := transport.NewLink(impair, 99)

	pipeline, err := features.NewPipeline(features.DefaultConfig())
	require.NoError(t, err)
	fe := toneFrontEnd()

	sender, err := NewSender(DefaultSenderConfig(), a, fe, pipeline, WithLogger(quietLogger()))
	require.NoError(t, err)

	ropts = append([]Option{WithLogger(quietLogger())}, ropts...)
	receiver, err := NewReceiver(DefaultReceiverConfig(), b, nil, ropts...)
	require.NoError(t, err)

	return &rig{fe: fe, pipeline: pipeline, sender: sender, receiver: receiver, now: t0}
}

func (r *rig) step(t *testing.T) {
	t.Helper()
	require.NoError(t, r.sender.Tick(r.now))
	require.NoError(t, r.receiver.Tick(r.now))
	r.now = r.now.Add(tick)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line string
		want Command
	}{
		{"M,3,200", Command{Mode: protocol.ModeMusic, Pattern: 3, Brightness: 200}},
		{"CM,3,200", Command{Mode: protocol.ModeMusic, Pattern: 3, Brightness: 200}},
		{"C,S,1,40\r\n", Command{Mode: protocol.ModeSolid, Pattern: 1, Brightness: 40}},
		{"M,1,7,40", Command{Mode: protocol.ModeMusic, Pattern: 1, Color: 7, Brightness: 40}},
		{" p , 4 , 90 ", Command{Mode: protocol.ModePattern, Pattern: 4, Brightness: 90}},
		{"0,0,0", Command{Mode: protocol.ModeOff}},
		{"A", Command{Mode: protocol.ModeArt, Pattern: Unset, Brightness: Unset}},
	}
	for _, tt := range tests {
		t.Run(strings.TrimSpace(tt.line), func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "C", "X,1,2", "MM,1,2", "M,1", "M,1,2,3,4", "M,a,2", "M,1,256", "M,-1,2"} {
		t.Run("reject "+bad, func(t *testing.T) {
			_, err := ParseCommand(bad)
			assert.ErrorIs(t, err, ErrBadCommand)
		})
	}
}

func TestCommandPayload(t *testing.T) {
	cmd, err := ParseCommand("M,1,7,40")
	require.NoError(t, err)
	p, err := cmd.Payload()
	require.NoError(t, err)
	assert.Equal(t, protocol.CommandPayload{Mode: protocol.ModeMusic, Pattern: 1, Color: 7, Brightness: 40}, p)
	assert.Equal(t, cmd, CommandFromPayload(p))

	cmd, err = ParseCommand("S")
	require.NoError(t, err)
	_, err = cmd.Payload()
	assert.ErrorIs(t, err, ErrIncompleteCommand)
}

func TestControlStateRestoresPerModeSettings(t *testing.T) {
	s := NewControlState()
	assert.Equal(t, Control{Mode: protocol.ModeSolid, Pattern: 0, Brightness: 10}, s.Current())
	assert.False(t, s.TakePending())

	got := s.Apply(Command{Mode: protocol.ModeMusic, Pattern: 3, Brightness: 200})
	assert.Equal(t, Control{Mode: protocol.ModeMusic, Pattern: 3, Brightness: 200}, got)
	assert.True(t, s.TakePending())
	assert.False(t, s.TakePending())

	got = s.Apply(Command{Mode: protocol.ModeSolid, Pattern: Unset, Brightness: Unset})
	assert.Equal(t, Control{Mode: protocol.ModeSolid, Pattern: 0, Brightness: 10}, got)

	got = s.Apply(Command{Mode: protocol.ModeMusic, Pattern: Unset, Brightness: Unset})
	assert.Equal(t, Control{Mode: protocol.ModeMusic, Pattern: 3, Brightness: 200}, got)

	got = s.Apply(Command{Mode: protocol.ModeOff, Pattern: 9, Brightness: 1})
	assert.Equal(t, Control{Mode: protocol.ModeOff, Pattern: 0, Brightness: 200}, got, "off keeps brightness")

	got = s.Apply(Command{Mode: protocol.ModeArt, Pattern: Unset, Brightness: Unset})
	assert.Equal(t, Control{Mode: protocol.ModeArt, Pattern: 0, Brightness: 100}, got)

	got = s.Apply(Command{Mode: protocol.ModePattern, Pattern: 5, Brightness: Unset})
	assert.Equal(t, Control{Mode: protocol.ModePattern, Pattern: 5, Brightness: 10}, got)
}

func TestConsumerHandlesFrames(t *testing.T) {
	c := NewConsumer()
	assert.False(t, c.Snapshot().HaveFeature)

	feature := protocol.FeaturePayload{DominantPitch: 9, VocalNote: protocol.NoPitch}
	feature.Bands[2] = 1.5
	raw, err := feature.MarshalBinary()
	require.NoError(t, err)
	c.HandleFrame(protocol.Frame{Type: protocol.TypeFeature, Payload: raw})

	aux := protocol.AuxPayload{PeakHz: 440, ActiveBands: 12}
	raw, err = aux.MarshalBinary()
	require.NoError(t, err)
	c.HandleFrame(protocol.Frame{Type: protocol.TypeAux, Payload: raw})

	raw, err = protocol.CommandPayload{Mode: protocol.ModeMusic, Pattern: 2, Brightness: 50}.MarshalBinary()
	require.NoError(t, err)
	c.HandleFrame(protocol.Frame{Type: protocol.TypeCommand, Payload: raw})

	bad := make([]byte, protocol.CommandPayloadSize)
	bad[0] = 'Z'
	c.HandleFrame(protocol.Frame{Type: protocol.TypeCommand, Payload: bad})

	snap := c.Snapshot()
	assert.True(t, snap.HaveFeature)
	assert.True(t, snap.HaveAux)
	assert.Equal(t, feature, snap.Feature)
	assert.Equal(t, aux, snap.Aux)
	assert.Equal(t, Control{Mode: protocol.ModeMusic, Pattern: 2, Brightness: 50}, snap.Control)
	assert.True(t, c.TakePending())
	assert.Equal(t, uint64(1), c.FeatureFrames())

	assert.Equal(t, Counters{Feature: 1, Aux: 1, Command: 1, Rejected: 1}, c.TakeCounters())
	assert.Equal(t, Counters{}, c.TakeCounters())
}

func TestMeterRenderer(t *testing.T) {
	m := NewMeterRenderer(24)
	snap := Snapshot{HaveAux: true}
	snap.Aux.ActiveBands = 12
	for i := range snap.Aux.Levels {
		snap.Aux.Levels[i] = uint8(i * 20)
	}

	m.Reset(Control{Mode: protocol.ModeMusic, Brightness: 255})
	px := m.Step(snap)
	assert.Equal(t, uint8(0), px[0])
	assert.Equal(t, uint8(220), px[23])
	assert.Equal(t, uint64(1), m.Frames())

	m.Reset(Control{Mode: protocol.ModeMusic, Brightness: 255})
	assert.Zero(t, m.Frames())
	assert.Equal(t, make([]uint8, 24), m.Step(Snapshot{}), "no aux yet")

	m.Reset(Control{Mode: protocol.ModeSolid, Brightness: 51})
	for _, v := range m.Step(snap) {
		assert.Equal(t, uint8(51), v)
	}

	m.Reset(Control{Mode: protocol.ModeOff, Brightness: 200})
	assert.Equal(t, make([]uint8, 24), m.Step(snap))
}

func TestSenderToReceiverCleanLink(t *testing.T) {
	r := newRig(t, transport.Impairment{})
	for range 5 {
		r.step(t)
	}

	snap := r.receiver.Snapshot()
	require.True(t, snap.HaveFeature)
	require.True(t, snap.HaveAux)
	assert.Equal(t, uint8(9), snap.Feature.DominantPitch)
	assert.Positive(t, snap.Feature.Bands[4])
	assert.Equal(t, uint8(12), snap.Aux.ActiveBands)

	st := r.sender.Stats()
	assert.Equal(t, uint64(5), st.Analysed)
	assert.Equal(t, uint64(5), st.FeaturesSent)

	ds := r.receiver.DecoderStats()
	assert.Equal(t, uint64(5), ds.Frames[protocol.TypeFeature])
	assert.Equal(t, uint64(5), ds.Frames[protocol.TypeAux])
	assert.Zero(t, ds.Dropped())
}

func TestSenderSkipsSilence(t *testing.T) {
	r := newRig(t, transport.Impairment{})
	clear(r.fe.Magnitudes)
	r.step(t)

	st := r.sender.Stats()
	assert.Equal(t, uint64(1), st.Silent)
	assert.Zero(t, st.FeaturesSent)
	assert.False(t, r.receiver.Snapshot().HaveFeature)
}

type countingRenderer struct {
	resets []Control
	steps  int
}

func (c *countingRenderer) Reset(ctl Control) {
	c.resets = append(c.resets, ctl)
}

func (c *countingRenderer) Step(Snapshot) []uint8 {
	c.steps++
	return nil
}

func TestCommandForwardedDownstream(t *testing.T) {
	a, b := transport.NewLink(transport.Impairment{}, 1)
	pipeline, err := features.NewPipeline(features.DefaultConfig())
	require.NoError(t, err)
	sender, err := NewSender(DefaultSenderConfig(), a, toneFrontEnd(), pipeline, WithLogger(quietLogger()))
	require.NoError(t, err)
	rend := &countingRenderer{}
	receiver, err := NewReceiver(DefaultReceiverConfig(), b, rend, WithLogger(quietLogger()))
	require.NoError(t, err)
	require.Len(t, rend.resets, 1, "renderer started with the initial control")

	changed, err := pipeline.SetBandLayout(features.Layout10)
	require.NoError(t, err)
	require.True(t, changed)

	require.NoError(t, sender.Submit("CM,2,150", t0))
	assert.Equal(t, features.Layout12, pipeline.LayoutName(), "music restores the 12-band layout")

	require.NoError(t, receiver.Tick(t0))
	assert.Equal(t, Control{Mode: protocol.ModeMusic, Pattern: 2, Brightness: 150}, receiver.Snapshot().Control)
	require.Len(t, rend.resets, 2)
	assert.Equal(t, protocol.ModeMusic, rend.resets[1].Mode)
	assert.Equal(t, 1, rend.steps)

	require.NoError(t, receiver.Tick(t0.Add(tick)))
	assert.Len(t, rend.resets, 2, "no restart without a new command")

	// mode-only lines stay local but still restore the layout
	_, err = pipeline.SetBandLayout(features.Layout10)
	require.NoError(t, err)
	require.NoError(t, sender.Submit("M", t0))
	assert.Equal(t, features.Layout12, pipeline.LayoutName())
	assert.Equal(t, uint64(1), sender.Stats().CommandsSent)

	assert.ErrorIs(t, sender.Submit("Q,1,1", t0), ErrBadCommand)
}

func TestReceiverCommandSentUpstream(t *testing.T) {
	r := newRig(t, transport.Impairment{})
	_, err := r.pipeline.SetBandLayout(features.Layout10)
	require.NoError(t, err)

	require.NoError(t, r.receiver.Submit("P,4,90", r.now))
	assert.Equal(t, Control{Mode: protocol.ModePattern, Pattern: 4, Brightness: 90}, r.receiver.Snapshot().Control)

	// mode-only lines are applied locally and not forwarded
	require.NoError(t, r.receiver.Submit("M", r.now))
	assert.Equal(t, protocol.ModeMusic, r.receiver.Snapshot().Control.Mode)

	r.step(t)
	assert.Equal(t, uint64(1), r.sender.Stats().CommandsRecv)
	assert.Equal(t, features.Layout10, r.pipeline.LayoutName(), "pattern does not touch the layout")

	require.NoError(t, r.receiver.Submit("M,0,10", r.now))
	r.step(t)
	assert.Equal(t, uint64(2), r.sender.Stats().CommandsRecv)
	assert.Equal(t, features.Layout12, r.pipeline.LayoutName())
}

func TestCommandBurstDeliversNewest(t *testing.T) {
	r := newRig(t, transport.Impairment{})
	for i := range DefaultSenderConfig().CommandBurst {
		require.NoError(t, r.sender.Submit("S,0,10", r.now), "command %d", i)
	}
	require.NoError(t, r.sender.Submit("S,1,20", r.now))
	require.NoError(t, r.sender.Submit("P,7,99", r.now))
	stats := r.sender.Stats()
	assert.Equal(t, uint64(5), stats.CommandsSent)
	assert.Equal(t, uint64(2), stats.CommandsDeferred)

	r.step(t)
	assert.Equal(t, Control{Mode: protocol.ModeSolid, Brightness: 10}, r.receiver.Snapshot().Control)

	// one token frees up after 100 ms
	for r.now.Before(t0.Add(120 * time.Millisecond)) {
		r.step(t)
	}
	assert.Equal(t, uint64(6), r.sender.Stats().CommandsSent)
	assert.Equal(t, Control{Mode: protocol.ModePattern, Pattern: 7, Brightness: 99}, r.receiver.Snapshot().Control)

	for range 10 {
		r.step(t)
	}
	assert.Equal(t, uint64(6), r.sender.Stats().CommandsSent, "superseded command is never sent")
}

func TestReceiverCommandBurstDeliversNewest(t *testing.T) {
	r := newRig(t, transport.Impairment{})
	for range DefaultReceiverConfig().CommandBurst {
		require.NoError(t, r.receiver.Submit("S,0,10", r.now))
	}
	require.NoError(t, r.receiver.Submit("M,3,60", r.now))
	_, err := r.pipeline.SetBandLayout(features.Layout10)
	require.NoError(t, err)

	for r.now.Before(t0.Add(120 * time.Millisecond)) {
		r.step(t)
	}
	assert.Equal(t, uint64(6), r.sender.Stats().CommandsRecv)
	assert.Equal(t, features.Layout12, r.pipeline.LayoutName())
}

func commandFrame(t *testing.T, p protocol.CommandPayload) []byte {
	t.Helper()
	payload, err := p.MarshalBinary()
	require.NoError(t, err)
	frame, err := protocol.NewEncoder(nil).Encode(protocol.TypeCommand, payload)
	require.NoError(t, err)
	return frame
}

func TestSenderKeepsFrameSplitAcrossTicks(t *testing.T) {
	a, b := transport.NewLink(transport.Impairment{}, 1)
	pipeline, err := features.NewPipeline(features.DefaultConfig())
	require.NoError(t, err)
	sender, err := NewSender(DefaultSenderConfig(), a, toneFrontEnd(), pipeline, WithLogger(quietLogger()))
	require.NoError(t, err)

	frame := commandFrame(t, protocol.CommandPayload{Mode: protocol.ModeSolid, Pattern: 1, Brightness: 40})
	_, err = b.Write(frame[:40])
	require.NoError(t, err)
	require.NoError(t, sender.Tick(t0))
	_, err = b.Write(frame[40:])
	require.NoError(t, err)
	require.NoError(t, sender.Tick(t0.Add(tick)))

	assert.Equal(t, uint64(1), sender.Stats().CommandsRecv)
	assert.Zero(t, sender.DecoderStats().StaleDrops)

	// a partial frame is cleared once the line stays quiet past the timeout
	_, err = b.Write(frame[:40])
	require.NoError(t, err)
	require.NoError(t, sender.Tick(t0.Add(2*tick)))
	require.NoError(t, sender.Tick(t0.Add(3*tick)))
	require.NoError(t, sender.Tick(t0.Add(4*tick)))
	assert.Zero(t, sender.DecoderStats().StaleDrops)
	require.NoError(t, sender.Tick(t0.Add(5*tick)))
	assert.Equal(t, uint64(1), sender.DecoderStats().StaleDrops)

	_, err = b.Write(frame)
	require.NoError(t, err)
	require.NoError(t, sender.Tick(t0.Add(6*tick)))
	assert.Equal(t, uint64(2), sender.Stats().CommandsRecv)
}

func TestReceiverKeepsFrameSplitAcrossTicks(t *testing.T) {
	var frame bytes.Buffer
	require.NoError(t, protocol.NewEncoder(nil).WriteTo(&frame, protocol.TypeFeature, protocol.FeaturePayload{}))
	raw := frame.Bytes()

	a, b := transport.NewLink(transport.Impairment{}, 1)
	receiver, err := NewReceiver(DefaultReceiverConfig(), b, nil, WithLogger(quietLogger()))
	require.NoError(t, err)

	_, err = a.Write(raw[:40])
	require.NoError(t, err)
	require.NoError(t, receiver.Tick(t0))
	_, err = a.Write(raw[40:])
	require.NoError(t, err)
	require.NoError(t, receiver.Tick(t0.Add(10500*time.Microsecond)))

	stats := receiver.DecoderStats()
	assert.Equal(t, uint64(1), stats.Frames[protocol.TypeFeature])
	assert.Zero(t, stats.StaleDrops)
	assert.True(t, receiver.Snapshot().HaveFeature)
}

func TestBrightnessIsRawLevel(t *testing.T) {
	state := NewControlState()
	m := NewMeterRenderer(4)

	m.Reset(state.Current())
	assert.Equal(t, []uint8{10, 10, 10, 10}, m.Step(Snapshot{}), "default solid is 10 of 255")

	m.Reset(state.Apply(Command{Mode: protocol.ModeArt, Pattern: Unset, Brightness: Unset}))
	assert.Equal(t, []uint8{100, 100, 100, 100}, m.Step(Snapshot{}))

	m.Reset(state.Apply(Command{Mode: protocol.ModeSolid, Pattern: 0, Brightness: 255}))
	assert.Equal(t, []uint8{255, 255, 255, 255}, m.Step(Snapshot{}))
}

func TestLossyLinkKeepsDelivering(t *testing.T) {
	r := newRig(t, transport.Impairment{DropRate: 0.0005, CorruptRate: 0.0005, InsertRate: 0.0005})
	const ticks = 300
	for range ticks {
		r.step(t)
	}

	sent := r.sender.Stats().FeaturesSent
	ds := r.receiver.DecoderStats()
	assert.Equal(t, uint64(ticks), sent)
	assert.Greater(t, ds.Frames[protocol.TypeFeature], sent/2)
	assert.Positive(t, ds.Dropped())
	assert.Equal(t, uint8(9), r.receiver.Snapshot().Feature.DominantPitch)
}

func TestReceiverDiagnosticsAndTimeoutWarning(t *testing.T) {
	var logs bytes.Buffer
	a, b := transport.NewLink(transport.Impairment{}, 1)
	receiver, err := NewReceiver(DefaultReceiverConfig(), b, nil,
		WithLogger(logging.NewWriterLogger(&logs, logging.DebugLevel)))
	require.NoError(t, err)

	enc := protocol.NewEncoder(nil)
	now := t0
	for i := 0; i < 10; i++ {
		require.NoError(t, enc.WriteTo(a, protocol.TypeFeature, protocol.FeaturePayload{}))
		require.NoError(t, receiver.Tick(now))
		now = now.Add(100 * time.Millisecond)
	}
	assert.NotContains(t, logs.String(), "no feature frames received")

	// silence from 0.9 s to 8.5 s
	for now.Before(t0.Add(8500 * time.Millisecond)) {
		require.NoError(t, receiver.Tick(now))
		now = now.Add(100 * time.Millisecond)
	}

	assert.Equal(t, 2, strings.Count(logs.String(), "no feature frames received"))
	assert.Equal(t, 2, strings.Count(logs.String(), "link diagnostics"))
	assert.Equal(t, Diagnostics{}, receiver.LastDiagnostics(), "nothing arrived in the last interval")
}

func TestConfigValidation(t *testing.T) {
	require.NoError(t, DefaultSenderConfig().Validate())
	require.NoError(t, DefaultReceiverConfig().Validate())

	sc := DefaultSenderConfig()
	sc.Tick = 0
	assert.Error(t, sc.Validate())

	rc := DefaultReceiverConfig()
	rc.Pixels = 0
	assert.Error(t, rc.Validate())
	_, err := NewReceiver(rc, nil, nil)
	assert.Error(t, err)

	// the stale timeout must outlast one poll
	_, err = NewReceiver(DefaultReceiverConfig(), nil, nil, WithDecoderConfig(protocol.DefaultDecoderConfig()))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must exceed")
	dc := decoderConfigFor(DefaultSenderConfig().Tick)
	assert.Equal(t, 34*time.Millisecond, dc.StaleTimeout)
}
