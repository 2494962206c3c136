package play

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/ebitengine/oto/v3"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/codec"
)

// Live plays a raw frame stream on the default output device.
type Live struct {
	format audio.Format
}

func NewLive(format audio.Format) *Live {
	return &Live{format: format}
}

// Play blocks until r ends, playback fails, or ctx is cancelled. oto allows
// a single context per process, so Play is meant to be called once.
func (l *Live) Play(ctx context.Context, r io.Reader) error {
	op := &oto.NewContextOptions{
		SampleRate:   l.format.SampleRate,
		ChannelCount: 1,
		Format:       oto.FormatSignedInt16LE,
		BufferSize:   100 * time.Millisecond,
	}

	otoCtx, readyChan, err := oto.NewContext(op)
	if err != nil {
		return fmt.Errorf("failed to create oto context: %w", err)
	}
	<-readyChan

	player := otoCtx.NewPlayer(NewPCM16Reader(r, l.format.BitDepth, l.format.ShiftAmount))
	defer player.Close()
	player.Play()

	slog.Info("Live playback started", "sample_rate", l.format.SampleRate, "bit_depth", l.format.BitDepth)

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			player.Pause()
			slog.Info("Live playback stopped")
			return nil
		case <-ticker.C:
			if !player.IsPlaying() {
				if err := player.Err(); err != nil {
					return fmt.Errorf("playback failed: %w", err)
				}
				slog.Info("Live stream ended")
				return nil
			}
		}
	}
}

// pcm16Reader narrows raw frames to signed 16-bit little-endian samples.
type pcm16Reader struct {
	r        io.Reader
	bitDepth int
	shift    uint
	in       []byte
	carry    []byte
}

// NewPCM16Reader returns a reader of 16-bit PCM decoded from raw frames of
// the given depth and shift. A plain 16-bit stream is returned unchanged.
func NewPCM16Reader(r io.Reader, bitDepth, shift int) io.Reader {
	if bitDepth == 16 && shift == 0 {
		return r
	}
	return &pcm16Reader{r: r, bitDepth: bitDepth, shift: uint(shift)}
}

func (p *pcm16Reader) Read(out []byte) (int, error) {
	frames := len(out) / 2
	if frames == 0 {
		return 0, nil
	}

	fb := codec.FrameBytes(p.bitDepth)
	need := frames * fb
	if cap(p.in) < need {
		p.in = make([]byte, need)
	}
	p.in = p.in[:need]

	held := copy(p.in, p.carry)
	n, err := p.r.Read(p.in[held:])
	total := held + n
	whole := total - total%fb

	for i := 0; i < whole/fb; i++ {
		v := codec.ToInt16(codec.FrameAt(p.in, i, p.bitDepth), p.bitDepth, p.shift)
		binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
	}
	p.carry = append(p.carry[:0], p.in[whole:total]...)

	return whole / fb * 2, err
}
