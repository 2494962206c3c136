package audio

import (
	"math"
	"sync"

	"github.com/audiolibrelab/micstream/internal/codec"
)

// ToneSource generates a sine wave in the configured frame format, laid out
// the way the microphone delivers it: the logical sample sits in the top
// bits and the low ShiftAmount bits are zero.
type ToneSource struct {
	format    Format
	frequency float64
	level     float64

	mu          sync.Mutex
	sampleIndex uint64
	closed      bool
	pacer       *pacer
}

// NewToneSource creates a paced tone generator
func NewToneSource(format Format, frequency, level float64) *ToneSource {
	return &ToneSource{
		format:    format,
		frequency: frequency,
		level:     level,
		pacer:     newPacer(format.SampleRate),
	}
}

func (s *ToneSource) Acquire(block []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSourceClosed
	}

	frames := len(block) / s.format.FrameBytes()
	if frames > s.format.BlockFrames {
		frames = s.format.BlockFrames
	}

	logicalBits := s.format.BitDepth - s.format.ShiftAmount
	amplitude := float64(int64(1)<<(logicalBits-1)-1) * s.level

	for i := 0; i < frames; i++ {
		t := float64(s.sampleIndex+uint64(i)) / float64(s.format.SampleRate)
		v := int32(math.Sin(2*math.Pi*s.frequency*t) * amplitude)
		codec.PutFrame(block, i, s.format.BitDepth, v<<uint(s.format.ShiftAmount))
	}
	s.sampleIndex += uint64(frames)

	if s.pacer != nil {
		s.pacer.wait(frames)
	}

	return frames * s.format.FrameBytes(), nil
}

func (s *ToneSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
