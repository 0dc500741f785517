package features

import (
	"fmt"
	"time"

	"github.com/RyanBlaney/sonido-link/algorithms/chroma"
	"github.com/RyanBlaney/sonido-link/algorithms/common"
	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
	"github.com/RyanBlaney/sonido-link/algorithms/temporal"
	"github.com/RyanBlaney/sonido-link/logging"
	"github.com/RyanBlaney/sonido-link/protocol"
)

// Output is the result of one analysis tick
type Output struct {
	Feature protocol.FeaturePayload
	Aux     protocol.AuxPayload
	// Silent is set when no band carries energy; FEATURE and AUX frames
	// should not be sent for this tick
	Silent bool
	// Result of the individual stages, for diagnostics
	Pitch chroma.Result
	Vocal temporal.VocalResult
	Peak  spectral.Peak
}

// Pipeline owns every analysis stage and runs them in order once per tick:
// bands, chroma, vocal (which consumes the dominant pitch), peak, visual.
type Pipeline struct {
	cfg    Config
	layout spectral.BandLayout
	bands  *spectral.BandAnalyzer
	chroma *chroma.Extractor
	vocal  *temporal.VocalDetector
	peak   *spectral.PeakEstimator
	visual *spectral.VisualCompressor
	logger logging.Logger
}

// NewPipeline validates cfg and builds the stages
func NewPipeline(cfg Config) (*Pipeline, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid feature config: %w", err)
	}

	layout, err := cfg.BandLayout(cfg.Layout)
	if err != nil {
		return nil, err
	}
	bands, err := spectral.NewBandAnalyzer(layout, cfg.Bands)
	if err != nil {
		return nil, fmt.Errorf("failed to create band analyzer: %w", err)
	}
	chromaExtractor, err := chroma.NewExtractor(cfg.Chroma)
	if err != nil {
		return nil, fmt.Errorf("failed to create chroma extractor: %w", err)
	}
	vocal, err := temporal.NewVocalDetector(cfg.Vocal)
	if err != nil {
		return nil, fmt.Errorf("failed to create vocal detector: %w", err)
	}
	visual, err := spectral.NewVisualCompressor(cfg.Visual)
	if err != nil {
		return nil, fmt.Errorf("failed to create visual compressor: %w", err)
	}

	return &Pipeline{
		cfg:    cfg,
		layout: layout,
		bands:  bands,
		chroma: chromaExtractor,
		vocal:  vocal,
		peak:   spectral.NewPeakEstimator(cfg.Peak),
		visual: visual,
		logger: logging.WithFields(logging.Fields{
			"component": "feature_pipeline",
		}),
	}, nil
}

// Process runs every stage over one analysis window
func (p *Pipeline) Process(spec spectral.Spectrum, now time.Time) Output {
	var out Output

	smoothed := p.bands.Process(spec)
	out.Pitch = p.chroma.Process(spec)
	out.Vocal = p.vocal.Process(spec, temporal.Pitch{
		Class:    out.Pitch.Dominant,
		Strength: out.Pitch.Strength,
	}, now)
	out.Peak = p.peak.Find(spec)
	vis := p.visual.Update(smoothed)

	f := &out.Feature
	for i, v := range smoothed {
		f.Bands[i] = float32(v)
	}
	f.VocalEnvelope = out.Vocal.Envelope
	f.Onset = out.Vocal.Onset
	f.VocalNote = out.Vocal.Note
	f.NoteStrength = out.Vocal.NoteStrength
	if lr, ok := spec.(spectral.LockReporter); ok {
		f.Locked = lr.Locked()
	}
	f.Chroma = out.Pitch.Chroma
	f.DominantPitch = out.Pitch.Dominant
	f.PitchStrength = out.Pitch.Strength
	f.Sustain = out.Vocal.Sustain

	a := &out.Aux
	for i := range a.Levels {
		a.Levels[i] = common.Quantize8(vis.Levels[i])
		a.Deltas[i] = p.visual.DeltaByte(vis.Deltas[i])
	}
	a.Global = common.Quantize8(vis.Global)
	a.Bass = common.Quantize8(vis.Bass)
	a.Mid = common.Quantize8(vis.Mid)
	a.Treble = common.Quantize8(vis.Treble)
	a.PeakHz = out.Peak.HzU16()
	a.PeakMagnitude = common.Quantize8(p.peak.NormalizedMagnitude(out.Peak))
	a.Flux = common.Quantize8(vis.Flux)
	a.PeakDetected = vis.PeakDetected
	a.ActiveBands = uint8(p.bands.NumBands())

	out.Silent = !p.bands.HasSignal(p.cfg.SilenceThreshold)

	if out.Vocal.Onset {
		p.logger.Debug("syllable onset", logging.Fields{
			"envelope": out.Vocal.Envelope,
			"note":     chroma.PitchClassName(out.Vocal.Note),
		})
	}
	return out
}

// SetBandLayout switches the band grouping. Switching to a different layout
// clears band and visual smoothing. It reports whether the layout changed.
func (p *Pipeline) SetBandLayout(name string) (bool, error) {
	if name == p.layout.Name {
		return false, nil
	}
	layout, err := p.cfg.BandLayout(name)
	if err != nil {
		return false, err
	}
	if err := p.bands.Regroup(layout); err != nil {
		return false, fmt.Errorf("failed to regroup bands: %w", err)
	}
	p.visual.Reset()
	p.layout = layout

	p.logger.Info("band layout switched", logging.Fields{
		"layout": layout.Name,
		"bands":  len(layout.Ranges),
	})
	return true, nil
}

// ActiveBands returns the band count of the current layout
func (p *Pipeline) ActiveBands() int {
	return p.bands.NumBands()
}

// LayoutName returns the active layout's name
func (p *Pipeline) LayoutName() string {
	return p.layout.Name
}

// Reset clears every stage's state
func (p *Pipeline) Reset() {
	p.bands.Reset()
	p.chroma.Reset()
	p.vocal.Reset()
	p.visual.Reset()
}
