package audio

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/audiolibrelab/micstream/internal/codec"
	"github.com/gordonklaus/portaudio"
)

// PortAudioSource captures from a local input device. It opens one channel
// for "left" and two interleaved channels for "right", keeping only the
// selected one.
type PortAudioSource struct {
	format   Format
	channels int
	pick     int

	mu     sync.Mutex
	stream *portaudio.Stream
	buf16  []int16
	buf32  []int32
	closed bool
}

// NewPortAudioSource opens the named input device (default device when
// empty). latencyFrames sizes the driver-side buffering.
func NewPortAudioSource(format Format, deviceName string, latencyFrames int) (*PortAudioSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}

	dev, err := findInputDevice(deviceName)
	if err != nil {
		portaudio.Terminate()
		return nil, err
	}

	s := &PortAudioSource{format: format, channels: 1}
	if format.Channel == "right" {
		s.channels = 2
		s.pick = 1
	}
	if dev.MaxInputChannels < s.channels {
		portaudio.Terminate()
		return nil, fmt.Errorf("device %q has %d input channel(s), need %d for channel %s",
			dev.Name, dev.MaxInputChannels, s.channels, format.Channel)
	}

	params := portaudio.HighLatencyParameters(dev, nil)
	params.Input.Channels = s.channels
	params.SampleRate = float64(format.SampleRate)
	params.FramesPerBuffer = format.BlockFrames
	if latencyFrames > 0 {
		params.Input.Latency = portaudioLatency(latencyFrames, format.SampleRate)
	}

	var buffer interface{}
	switch format.BitDepth {
	case 16:
		s.buf16 = make([]int16, format.BlockFrames*s.channels)
		buffer = s.buf16
	case 32:
		s.buf32 = make([]int32, format.BlockFrames*s.channels)
		buffer = s.buf32
	default:
		portaudio.Terminate()
		return nil, fmt.Errorf("unsupported bit depth: %d", format.BitDepth)
	}

	stream, err := portaudio.OpenStream(params, buffer)
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to open input stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("failed to start input stream on %q: %w", dev.Name, err)
	}

	s.stream = stream
	slog.Info("PortAudio input opened", "device", dev.Name, "sample_rate", format.SampleRate,
		"bit_depth", format.BitDepth, "channel", format.Channel)
	return s, nil
}

// Acquire blocks until PortAudio has a full buffer. An input overflow is
// reported as a transient error; the frames that did arrive are dropped.
func (s *PortAudioSource) Acquire(block []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSourceClosed
	}

	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return 0, err
		}
		return 0, fmt.Errorf("portaudio read: %w", err)
	}

	frames := len(block) / s.format.FrameBytes()
	if frames > s.format.BlockFrames {
		frames = s.format.BlockFrames
	}
	for i := 0; i < frames; i++ {
		var v int32
		if s.buf16 != nil {
			v = int32(s.buf16[i*s.channels+s.pick])
		} else {
			v = s.buf32[i*s.channels+s.pick]
		}
		codec.PutFrame(block, i, s.format.BitDepth, v)
	}
	return frames * s.format.FrameBytes(), nil
}

func (s *PortAudioSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var err error
	if stopErr := s.stream.Stop(); stopErr != nil {
		err = stopErr
	}
	if closeErr := s.stream.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	portaudio.Terminate()
	return err
}

// DeviceInfo describes one capture device for listing.
type DeviceInfo struct {
	Name              string
	HostAPI           string
	MaxInputChannels  int
	DefaultSampleRate float64
	IsDefault         bool
}

// ListDevices returns the PortAudio devices that can capture audio.
func ListDevices() ([]DeviceInfo, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize portaudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}

	var defaultName string
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultName = def.Name
	}

	var inputs []DeviceInfo
	for _, d := range devices {
		if d.MaxInputChannels == 0 {
			continue
		}
		info := DeviceInfo{
			Name:              d.Name,
			MaxInputChannels:  d.MaxInputChannels,
			DefaultSampleRate: d.DefaultSampleRate,
			IsDefault:         d.Name == defaultName,
		}
		if d.HostApi != nil {
			info.HostAPI = d.HostApi.Name
		}
		inputs = append(inputs, info)
	}
	return inputs, nil
}

func portaudioLatency(frames, sampleRate int) time.Duration {
	return time.Duration(frames) * time.Second / time.Duration(sampleRate)
}

func findInputDevice(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		dev, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("no default input device: %w", err)
		}
		return dev, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to list devices: %w", err)
	}
	for _, d := range devices {
		if d.Name == name && d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, fmt.Errorf("input device not found: %s", name)
}
