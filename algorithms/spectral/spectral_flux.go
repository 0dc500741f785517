package spectral

// SpectralFlux measures frame-to-frame change of a band or bin vector
type SpectralFlux struct{}

// NewSpectralFlux creates a new spectral flux calculator
func NewSpectralFlux() *SpectralFlux {
	return &SpectralFlux{}
}

// Rise returns the positive increments cur[i]-prev[i] in out (negative
// changes read as 0) and their sum. out must be at least len(cur).
func (sf *SpectralFlux) Rise(prev, cur, out []float64) float64 {
	sum := 0.0
	for i := range cur {
		d := 0.0
		if i < len(prev) {
			d = cur[i] - prev[i]
		} else {
			d = cur[i]
		}
		if d < 0 {
			d = 0
		}
		out[i] = d
		sum += d
	}
	return sum
}
