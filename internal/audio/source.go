package audio

import (
	"errors"
	"fmt"
	"strings"

	"github.com/audiolibrelab/micstream/internal/config"
)

// ErrSourceClosed is returned by Acquire once a source has been closed or
// has no more data to give. It is the only Acquire error that ends a session.
var ErrSourceClosed = errors.New("audio source closed")

// SourceKind represents the type of acquisition backend
type SourceKind string

const (
	SourceKindTone      SourceKind = "tone"
	SourceKindPortAudio SourceKind = "portaudio"
	SourceKindFile      SourceKind = "file"
)

// Source is the blocking acquisition primitive. Acquire fills block with
// whole little-endian frames and returns the number of bytes written,
// waiting as long as it takes for the hardware to deliver. A zero count or
// an error other than ErrSourceClosed is a transient hiccup.
type Source interface {
	Acquire(block []byte) (int, error)
	Close() error
}

// Format is the fixed acquisition format shared by every source.
type Format struct {
	SampleRate  int
	BitDepth    int
	ShiftAmount int
	Channel     string
	BlockFrames int
}

// FormatFromConfig extracts the acquisition format from a resolved config.
func FormatFromConfig(cfg *config.Config) Format {
	return Format{
		SampleRate:  cfg.Device.SampleRate,
		BitDepth:    cfg.Device.BitDepth,
		ShiftAmount: cfg.Device.ShiftAmount,
		Channel:     cfg.Device.Channel,
		BlockFrames: cfg.Device.BlockFrames,
	}
}

// FrameBytes is the size of one frame in bytes.
func (f Format) FrameBytes() int {
	return f.BitDepth / 8
}

// BlockBytes is the size of one acquisition block in bytes.
func (f Format) BlockBytes() int {
	return f.BlockFrames * f.FrameBytes()
}

// NewSource creates the configured source. A failure here is a static
// misconfiguration and is not retried.
func NewSource(cfg *config.Config) (Source, error) {
	format := FormatFromConfig(cfg)

	switch determineKind(cfg) {
	case SourceKindTone:
		return NewToneSource(format, cfg.Source.ToneHz, cfg.Source.ToneLevel), nil
	case SourceKindPortAudio:
		return NewPortAudioSource(format, cfg.Source.Device, cfg.Device.DMABufferCount*cfg.Device.DMABufferFrames)
	case SourceKindFile:
		return NewFileSource(format, cfg.Source.File)
	default:
		return nil, fmt.Errorf("unsupported source kind: %s", cfg.Source.Kind)
	}
}

func determineKind(cfg *config.Config) SourceKind {
	return SourceKind(strings.ToLower(strings.TrimSpace(cfg.Source.Kind)))
}

// GetAvailableKinds returns the source kinds this build can open
func GetAvailableKinds() []SourceKind {
	return []SourceKind{SourceKindTone, SourceKindPortAudio, SourceKindFile}
}
