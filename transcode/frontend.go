package transcode

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/RyanBlaney/sonido-link/algorithms/common"
	"github.com/RyanBlaney/sonido-link/algorithms/filters"
	"github.com/RyanBlaney/sonido-link/algorithms/spectral"
	"github.com/RyanBlaney/sonido-link/algorithms/windowing"
	"github.com/RyanBlaney/sonido-link/logging"
)

// FrontEndConfig sets the analysis geometry
type FrontEndConfig struct {
	SampleRate int `json:"sample_rate" mapstructure:"sample_rate"`
	WindowSize int `json:"window_size" mapstructure:"window_size"`
	// HopSize is the number of new samples between analysis windows
	HopSize int `json:"hop_size" mapstructure:"hop_size"`
	// DCCutoffHz enables a DC blocker ahead of the window; 0 disables it
	DCCutoffHz float64 `json:"dc_cutoff_hz" mapstructure:"dc_cutoff_hz"`
}

// DefaultFrontEndConfig returns a 1024-point window advanced by one 17 ms
// tick of audio.
func DefaultFrontEndConfig() FrontEndConfig {
	return FrontEndConfig{
		SampleRate: spectral.DefaultSampleRate,
		WindowSize: spectral.DefaultWindowSize,
		HopSize:    750,
		DCCutoffHz: 5,
	}
}

// Validate checks the geometry
func (c FrontEndConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", c.SampleRate)
	}
	if c.WindowSize < 4 {
		return fmt.Errorf("window size too small: %d", c.WindowSize)
	}
	if c.HopSize <= 0 || c.HopSize > c.WindowSize {
		return fmt.Errorf("hop size must be in 1..%d: %d", c.WindowSize, c.HopSize)
	}
	if c.DCCutoffHz < 0 || c.DCCutoffHz >= float64(c.SampleRate)/2 {
		return fmt.Errorf("dc cutoff out of range: %v", c.DCCutoffHz)
	}
	return nil
}

// FrontEnd turns PCM into magnitude spectra. Push may run on a producer
// goroutine; Available, Bins and Read belong to the analysis tick, which
// sees a stable copy of the latest window until its next Available call.
type FrontEnd struct {
	cfg     FrontEndConfig
	dc      *filters.DCRemoval
	scratch []float64
	window  *common.SlidingWindow
	hann    *windowing.Hann
	fft     *spectral.FFT
	scale   float64

	mu      sync.Mutex
	latest  []float64
	fresh   bool
	locked  bool
	windows uint64

	current spectral.Magnitudes
}

// NewFrontEnd creates a front-end for cfg
func NewFrontEnd(cfg FrontEndConfig) (*FrontEnd, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bins := cfg.WindowSize / 2
	var dc *filters.DCRemoval
	if cfg.DCCutoffHz > 0 {
		dc = filters.NewDCRemovalWithCutoff(cfg.SampleRate, cfg.DCCutoffHz)
	}
	return &FrontEnd{
		dc:      dc,
		cfg:     cfg,
		window:  common.NewSlidingWindow(cfg.WindowSize, cfg.HopSize),
		hann:    windowing.NewHann(cfg.WindowSize, false),
		fft:     spectral.NewFFT(),
		scale:   2.0 / float64(cfg.WindowSize),
		latest:  make([]float64, bins),
		current: make(spectral.Magnitudes, bins),
	}, nil
}

// Push adds samples and analyses every window they complete. Only the most
// recent spectrum is kept.
func (f *FrontEnd) Push(samples []float64) error {
	if f.dc != nil {
		f.scratch = append(f.scratch[:0], samples...)
		f.dc.ProcessInPlace(f.scratch)
		samples = f.scratch
	}
	frames := f.window.AddSamples(samples)
	if len(frames) == 0 {
		return nil
	}
	frame := frames[len(frames)-1]
	if err := f.hann.ApplyInPlace(frame); err != nil {
		return fmt.Errorf("failed to window frame: %w", err)
	}
	mags := f.fft.Magnitudes(frame, f.scale)

	f.mu.Lock()
	copy(f.latest, mags)
	f.fresh = true
	f.locked = true
	f.windows += uint64(len(frames))
	f.mu.Unlock()
	return nil
}

// Available reports whether a window was produced since the last call and,
// if so, makes it the one Read returns.
func (f *FrontEnd) Available() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.fresh {
		return false
	}
	copy(f.current, f.latest)
	f.fresh = false
	return true
}

func (f *FrontEnd) Bins() int {
	return len(f.current)
}

func (f *FrontEnd) Read(bin int) float64 {
	return f.current.Read(bin)
}

// Locked reports whether the input is currently delivering audio
func (f *FrontEnd) Locked() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.locked
}

// Windows returns the number of analysis windows produced so far
func (f *FrontEnd) Windows() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.windows
}

// BinHz returns the width of one bin
func (f *FrontEnd) BinHz() float64 {
	return spectral.BinHz(f.cfg.SampleRate, f.cfg.WindowSize)
}

// SampleSource yields PCM samples
type SampleSource interface {
	ReadSamples(dst []float64) (int, error)
}

// Run pushes samples from src until it ends or ctx is cancelled. The input
// is reported unlocked once Run returns. A clean end of input returns nil.
func (f *FrontEnd) Run(ctx context.Context, src SampleSource) error {
	logger := logging.WithFields(logging.Fields{
		"component": "audio_frontend",
	})
	defer func() {
		f.mu.Lock()
		f.locked = false
		f.mu.Unlock()
	}()

	buf := make([]float64, f.cfg.HopSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, err := src.ReadSamples(buf)
		if n > 0 {
			if perr := f.Push(buf[:n]); perr != nil {
				return perr
			}
		}
		if errors.Is(err, io.EOF) {
			logger.Info("audio input ended", logging.Fields{"windows": f.Windows()})
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read audio: %w", err)
		}
	}
}
