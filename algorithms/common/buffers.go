package common

// SlidingWindow implements a sliding window for frame-based processing
type SlidingWindow struct {
	buffer     []float64
	windowSize int
	hopSize    int
	writePos   int
}

// NewSlidingWindow creates a new sliding window
func NewSlidingWindow(windowSize, hopSize int) *SlidingWindow {
	return &SlidingWindow{
		buffer:     make([]float64, windowSize),
		windowSize: windowSize,
		hopSize:    hopSize,
	}
}

// AddSamples adds samples and returns frames when ready
func (sw *SlidingWindow) AddSamples(samples []float64) [][]float64 {
	var frames [][]float64

	for _, sample := range samples {
		sw.buffer[sw.writePos] = sample
		sw.writePos++

		if sw.writePos >= sw.windowSize {
			frame := make([]float64, sw.windowSize)
			copy(frame, sw.buffer)
			frames = append(frames, frame)

			if sw.hopSize < sw.windowSize {
				// Overlap: shift buffer left by hopSize
				copy(sw.buffer, sw.buffer[sw.hopSize:])
				sw.writePos = sw.windowSize - sw.hopSize
			} else {
				sw.writePos = 0
			}
		}
	}

	return frames
}

// Reset clears the sliding window
func (sw *SlidingWindow) Reset() {
	sw.writePos = 0
	for i := range sw.buffer {
		sw.buffer[i] = 0.0
	}
}

