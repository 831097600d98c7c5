package audio

import (
	"fmt"
	"math"
	"os"

	"github.com/go-audio/wav"
)

const (
	// DefaultFrameSize is 20ms of 16kHz audio.
	DefaultFrameSize = 320
	// DefaultThreshold is the normalized RMS below which a frame counts as silent.
	DefaultThreshold = 0.01
)

// SilenceRatio returns the fraction of frames whose RMS is below threshold.
// Samples are normalized to [-1, 1]. Empty input is fully silent.
func SilenceRatio(samples []float64, frameSize int, threshold float64) float64 {
	if frameSize <= 0 {
		frameSize = DefaultFrameSize
	}
	if len(samples) == 0 {
		return 1
	}
	var frames, silent int
	for start := 0; start < len(samples); start += frameSize {
		end := min(start+frameSize, len(samples))
		if rms(samples[start:end]) < threshold {
			silent++
		}
		frames++
	}
	return float64(silent) / float64(frames)
}

func rms(frame []float64) float64 {
	var sum float64
	for _, s := range frame {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(frame)))
}

// ReadWAV decodes a PCM WAV file into normalized mono samples.
func ReadWAV(path string) ([]float64, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open wav: %w", err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, 0, fmt.Errorf("invalid wav file %s", path)
	}
	buf, err := d.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("decode wav: %w", err)
	}

	channels := 1
	sampleRate := int(d.SampleRate)
	if buf.Format != nil {
		if buf.Format.NumChannels > 0 {
			channels = buf.Format.NumChannels
		}
		sampleRate = buf.Format.SampleRate
	}
	bitDepth := buf.SourceBitDepth
	if bitDepth == 0 {
		bitDepth = int(d.BitDepth)
	}
	scale := math.Pow(2, float64(bitDepth-1))

	samples := make([]float64, 0, len(buf.Data)/channels)
	for i := 0; i+channels <= len(buf.Data); i += channels {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(buf.Data[i+c])
		}
		samples = append(samples, sum/float64(channels)/scale)
	}
	return samples, sampleRate, nil
}

// WAVMeter computes the silence ratio of recorded WAV chunks.
type WAVMeter struct {
	FrameSize int
	Threshold float64
}

func NewWAVMeter() *WAVMeter {
	return &WAVMeter{FrameSize: DefaultFrameSize, Threshold: DefaultThreshold}
}

func (m *WAVMeter) SilenceRatio(path string) (float64, error) {
	samples, _, err := ReadWAV(path)
	if err != nil {
		return 0, err
	}
	return SilenceRatio(samples, m.FrameSize, m.Threshold), nil
}
