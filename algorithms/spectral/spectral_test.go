package spectral

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func singleBinLayout() BandLayout {
	return BandLayout{
		Name:   "test",
		Ranges: []BandRange{{Start: 1, End: 1}, {Start: 2, End: 3}},
		Tilt:   []float64{1.0, 2.0},
	}
}

func TestBandAnalyzerSmoothingConverges(t *testing.T) {
	ba, err := NewBandAnalyzer(singleBinLayout(), DefaultBandParams())
	require.NoError(t, err)

	spec := make(Magnitudes, 8)
	spec[1] = 1.0 / 8000.0

	var out []float64
	for n := 1; n <= 10; n++ {
		out = ba.Process(spec)
		assert.InDelta(t, 1.0-math.Pow(0.15, float64(n)), out[0], 1e-9, "tick %d", n)
	}
	assert.Equal(t, 0.0, out[1])
	assert.True(t, ba.HasSignal(1e-8))
}

func TestBandAnalyzerRMSAndTilt(t *testing.T) {
	ba, err := NewBandAnalyzer(singleBinLayout(), BandParams{Smoothing: 0, CalibrationGain: 1})
	require.NoError(t, err)

	spec := Magnitudes{0, 0, 3, 4}
	out := ba.Process(spec)
	// rms(3, 4) = sqrt(12.5), tilt 2
	assert.InDelta(t, 2*math.Sqrt(12.5), out[1], 1e-12)
	assert.InDelta(t, 2*math.Sqrt(12.5), ba.Raw()[1], 1e-12)
}

func TestBandAnalyzerRegroupClearsState(t *testing.T) {
	ba, err := NewBandAnalyzer(singleBinLayout(), DefaultBandParams())
	require.NoError(t, err)

	ba.Process(Magnitudes{0, 1, 1, 1})
	require.True(t, ba.HasSignal(1e-8))

	three := BandLayout{Name: "three", Ranges: []BandRange{{1, 1}, {2, 2}, {3, 3}}}
	require.NoError(t, ba.Regroup(three))
	assert.Equal(t, 3, ba.NumBands())
	assert.Equal(t, []float64{0, 0, 0}, ba.Smoothed())
	assert.False(t, ba.HasSignal(1e-8))
}

func TestBandLayoutValidate(t *testing.T) {
	assert.Error(t, BandLayout{Name: "empty"}.Validate())
	assert.Error(t, BandLayout{Ranges: []BandRange{{5, 4}}}.Validate())
	assert.Error(t, BandLayout{Ranges: []BandRange{{1, 1}}, Tilt: []float64{1, 2}}.Validate())
	assert.NoError(t, singleBinLayout().Validate())
}

func TestMagnitudesOutOfRange(t *testing.T) {
	m := Magnitudes{1, 2}
	assert.Equal(t, 0.0, m.Read(-1))
	assert.Equal(t, 0.0, m.Read(2))
	assert.Equal(t, 2.0, m.Read(1))
}

func TestPeakEstimator(t *testing.T) {
	pe := NewPeakEstimator(DefaultPeakParams())
	binHz := BinHz(DefaultSampleRate, DefaultWindowSize)

	t.Run("symmetric neighbours", func(t *testing.T) {
		spec := make(Magnitudes, 512)
		spec[9], spec[10], spec[11] = 0.5, 1.0, 0.5
		p := pe.Find(spec)
		assert.Equal(t, 10, p.Bin)
		assert.InDelta(t, 10*binHz, p.Hz, 1e-9)
		assert.Equal(t, uint16(431), p.HzU16())
		assert.Equal(t, 1.0, p.Magnitude)
	})

	t.Run("asymmetric neighbours", func(t *testing.T) {
		spec := make(Magnitudes, 512)
		spec[9], spec[10], spec[11] = 0.5, 1.0, 0.25
		p := pe.Find(spec)
		assert.InDelta(t, 9.9, p.RefinedBin, 1e-12)
		assert.Equal(t, uint16(426), p.HzU16())
	})

	t.Run("boundary bin is not refined", func(t *testing.T) {
		spec := make(Magnitudes, 512)
		spec[1], spec[2], spec[3] = 5.0, 1.0, 0.5
		p := pe.Find(spec)
		assert.Equal(t, 2, p.Bin)
		assert.Equal(t, 2.0, p.RefinedBin)
	})

	t.Run("silence", func(t *testing.T) {
		p := pe.Find(make(Magnitudes, 512))
		assert.Equal(t, 2, p.Bin)
		assert.Equal(t, 0.0, pe.NormalizedMagnitude(p))
	})
}

func TestVisualCompressorRiseAndPeak(t *testing.T) {
	vc, err := NewVisualCompressor(DefaultVisualParams())
	require.NoError(t, err)

	bands := make([]float64, 12)
	bands[5] = 50
	target := math.Log1p(15*50*1.15*0.005) / math.Log1p(15)

	f1 := vc.Update(bands)
	assert.InDelta(t, 0.3*target, f1.Levels[5], 1e-9)
	assert.Equal(t, uint8(184), vc.DeltaByte(f1.Deltas[5]))
	assert.InDelta(t, 3*0.3*target, f1.Flux, 1e-9)
	assert.InDelta(t, f1.Levels[5]/5, f1.Mid, 1e-12)
	assert.Equal(t, 0.0, f1.Bass)
	assert.Equal(t, 0.0, f1.Treble)
	assert.False(t, f1.PeakDetected)

	f2 := vc.Update(bands)
	assert.InDelta(t, 0.7*0.3*target+0.3*target, f2.Levels[5], 1e-9)
	assert.Equal(t, uint8(129), vc.DeltaByte(f2.Deltas[5]))
	assert.True(t, f2.PeakDetected)

	// steady input decays the rise towards zero
	var last VisualFrame
	for range 60 {
		last = vc.Update(bands)
	}
	assert.InDelta(t, target, last.Levels[5], 1e-6)
	assert.Less(t, last.Flux, 0.001)
	assert.False(t, last.PeakDetected)
}

func TestVisualCompressorFalling(t *testing.T) {
	vc, err := NewVisualCompressor(DefaultVisualParams())
	require.NoError(t, err)

	bands := make([]float64, 12)
	bands[0] = 200
	vc.Update(bands)
	f := vc.Update(make([]float64, 12))
	assert.Equal(t, 0.0, f.Deltas[0])
	assert.Equal(t, 0.0, f.Flux)

	vc.Reset()
	f = vc.Update(nil)
	assert.Equal(t, 0.0, f.Global)
}

func TestVisualParamsValidate(t *testing.T) {
	p := DefaultVisualParams()
	p.Treble = []int{12}
	assert.Error(t, p.Validate())
}
