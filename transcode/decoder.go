package transcode

import (
	"bufio"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/RyanBlaney/sonido-link/logging"
)

// DecoderConfig holds decoder configuration
type DecoderConfig struct {
	SampleRate int    `json:"sample_rate" mapstructure:"sample_rate"`
	FFmpegPath string `json:"ffmpeg_path" mapstructure:"ffmpeg_path"` // Path to ffmpeg binary
	// InputFormat forces an ffmpeg demuxer, e.g. "alsa" or "pulse" for a
	// capture device. Empty lets ffmpeg probe the input.
	InputFormat string `json:"input_format" mapstructure:"input_format"`
	// Realtime paces file input at playback speed (-re)
	Realtime bool `json:"realtime" mapstructure:"realtime"`
	// Normalization is one of "", "loudnorm", "dynaudnorm", "compand"
	Normalization string  `json:"normalization" mapstructure:"normalization"`
	TargetLUFS    float64 `json:"target_lufs" mapstructure:"target_lufs"`
	TargetPeak    float64 `json:"target_peak" mapstructure:"target_peak"`
	LoudnessRange float64 `json:"loudness_range" mapstructure:"loudness_range"`
	// StartTimeout bounds how long Validate waits for `ffmpeg -version`
	StartTimeout time.Duration `json:"start_timeout" mapstructure:"start_timeout"`
}

// DefaultDecoderConfig returns default decoder configuration
func DefaultDecoderConfig() DecoderConfig {
	return DecoderConfig{
		SampleRate:    44100,
		FFmpegPath:    "ffmpeg", // Assume in PATH
		Realtime:      true,
		Normalization: "",
		TargetLUFS:    -16.0,
		TargetPeak:    -2.0,
		LoudnessRange: 7.0,
		StartTimeout:  5 * time.Second,
	}
}

// Decoder turns any input ffmpeg understands into a mono f64le PCM stream
type Decoder struct {
	config DecoderConfig
	logger logging.Logger
}

// NewDecoder creates a new audio decoder
func NewDecoder(config DecoderConfig) *Decoder {
	return &Decoder{
		config: config,
		logger: logging.WithFields(logging.Fields{
			"component": "audio_decoder",
		}),
	}
}

// Validate checks the configuration and that ffmpeg can be executed
func (d *Decoder) Validate(ctx context.Context) error {
	if d.config.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive: %d", d.config.SampleRate)
	}
	switch d.config.Normalization {
	case "", "loudnorm", "dynaudnorm", "compand":
	default:
		return fmt.Errorf("unknown normalization method %q", d.config.Normalization)
	}

	timeout := d.config.StartTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := exec.CommandContext(ctx, d.config.FFmpegPath, "-version").Run(); err != nil {
		return fmt.Errorf("ffmpeg not found at %s: %w", d.config.FFmpegPath, err)
	}
	return nil
}

// Stream is a running ffmpeg process producing PCM
type Stream struct {
	*PCMReader
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr *strings.Builder
	logger logging.Logger
}

// Open starts decoding input. The stream ends when the input does or ctx is
// cancelled.
func (d *Decoder) Open(ctx context.Context, input string) (*Stream, error) {
	logger := d.logger.WithFields(logging.Fields{
		"function": "Open",
		"input":    input,
	})

	args := d.buildArgs(input)
	cmd := exec.CommandContext(ctx, d.config.FFmpegPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to attach ffmpeg stdout: %w", err)
	}
	stderr := &strings.Builder{}
	cmd.Stderr = stderr

	logger.Debug("Running ffmpeg command", logging.Fields{
		"args": strings.Join(args, " "),
	})
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	return &Stream{
		PCMReader: NewPCMReader(stdout),
		cmd:       cmd,
		stdout:    stdout,
		stderr:    stderr,
		logger:    logger,
	}, nil
}

// Close stops ffmpeg and waits for it to exit
func (s *Stream) Close() error {
	_ = s.stdout.Close()
	err := s.cmd.Wait()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && s.stderr.Len() > 0 {
			s.logger.Error(err, "Ffmpeg exited with error", logging.Fields{
				"stderr": s.stderr.String(),
			})
		}
		return fmt.Errorf("ffmpeg decode failed: %w", err)
	}
	return nil
}

// buildArgs builds the ffmpeg arguments for input
func (d *Decoder) buildArgs(input string) []string {
	args := []string{"-v", "error", "-nostdin"}
	if d.config.Realtime && d.config.InputFormat == "" {
		args = append(args, "-re")
	}
	if d.config.InputFormat != "" {
		args = append(args, "-f", d.config.InputFormat)
	}
	args = append(args, "-i", input)

	if filter := d.buildNormalizationFilter(); filter != "" {
		args = append(args, "-af", filter)
	}

	args = append(args,
		"-f", "f64le", // Output raw float64 little-endian
		"-ac", "1",
		"-ar", strconv.Itoa(d.config.SampleRate),
		"pipe:1",
	)
	return args
}

// buildNormalizationFilter builds the ffmpeg filter for the configured
// normalization method
func (d *Decoder) buildNormalizationFilter() string {
	switch d.config.Normalization {
	case "loudnorm":
		// EBU R128 loudness normalization
		return fmt.Sprintf("loudnorm=I=%.1f:TP=%.1f:LRA=%.1f",
			d.config.TargetLUFS,
			d.config.TargetPeak,
			d.config.LoudnessRange)

	case "dynaudnorm":
		return "dynaudnorm=p=0.95:m=10:s=12"

	case "compand":
		// Compressor/limiter
		return fmt.Sprintf("compand=0.1,0.3:-90/-90,-%.1f/-%.1f,0/0:6:0:-90:0.1",
			math.Abs(d.config.TargetPeak),
			math.Abs(d.config.TargetPeak))

	default:
		return ""
	}
}

// PCMReader reads little-endian float64 samples from a byte stream
type PCMReader struct {
	r   *bufio.Reader
	raw [8]byte
}

// NewPCMReader wraps r
func NewPCMReader(r io.Reader) *PCMReader {
	return &PCMReader{r: bufio.NewReaderSize(r, 8*4096)}
}

// ReadSamples fills dst with whole samples. It returns io.EOF only when no
// sample was read; a trailing partial sample is discarded.
func (p *PCMReader) ReadSamples(dst []float64) (int, error) {
	n := 0
	for n < len(dst) {
		if _, err := io.ReadFull(p.r, p.raw[:]); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) {
				err = io.EOF
			}
			if n > 0 && errors.Is(err, io.EOF) {
				return n, nil
			}
			return n, err
		}
		dst[n] = math.Float64frombits(binary.LittleEndian.Uint64(p.raw[:]))
		n++

		// Return what is already buffered rather than blocking for more
		if p.r.Buffered() < 8 && n > 0 {
			break
		}
	}
	return n, nil
}
