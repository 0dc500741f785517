package filters

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDCRemovalBlocksOffset(t *testing.T) {
	dc := NewDCRemovalWithCutoff(44100, 5)
	assert.InDelta(t, 1-2*math.Pi*5/44100, dc.PoleLocation(), 1e-12)

	var last float64
	for range 44100 {
		last = dc.Process(0.5)
	}
	assert.Less(t, math.Abs(last), 1e-6)

	dc.Reset()
	assert.InDelta(t, 0.5, dc.Process(0.5), 1e-12, "first sample passes after reset")
}

func TestDCRemovalGain(t *testing.T) {
	dc := NewDCRemovalWithCutoff(44100, 5)
	assert.InDelta(t, 0.0, dc.Gain(0, 44100), 1e-12)
	assert.InDelta(t, 1.0, dc.Gain(440, 44100), 1e-3)
	assert.InDelta(t, 1/math.Sqrt2, dc.Gain(5, 44100), 0.01)
}

func TestDCRemovalInvalidCutoff(t *testing.T) {
	assert.InDelta(t, 0.995, NewDCRemovalWithCutoff(0, 5).PoleLocation(), 1e-12)
	assert.InDelta(t, 0.001, NewDCRemovalWithCutoff(100, 1000).PoleLocation(), 1e-12)
}
