package play

import (
	"bytes"
	"encoding/binary"
	"io"
	"strings"
	"testing"

	"github.com/audiolibrelab/micstream/internal/config"
)

func TestPlayerCommand(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		bitDepth  int
		player    string
		wantArgs  string
		wantError bool
	}{
		{"wav with vlc", "wav", 16, "vlc", "vlc --play-and-exit /r/a.wav", false},
		{"wav with aplay", "wav", 16, "aplay", "aplay /r/a.wav", false},
		{"raw with aplay", "raw", 16, "aplay", "aplay -t raw -f S16_LE -r 16000 -c 1 /r/a.wav", false},
		{"raw 32-bit with ffplay", "raw", 32, "ffplay", "ffplay -nodisp -autoexit -f s32le -ar 16000 -ac 1 /r/a.wav", false},
		{"raw with mpv", "raw", 16, "mpv", "", true},
		{"unknown player", "wav", 16, "winamp", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			cfg.Output.Format = tt.format
			cfg.Device.BitDepth = tt.bitDepth

			cmd, err := New(cfg).command(tt.player, "/r/a.wav")
			if tt.wantError {
				if err == nil {
					t.Error("Expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got := strings.Join(cmd.Args, " "); got != tt.wantArgs {
				t.Errorf("Args = %q, want %q", got, tt.wantArgs)
			}
		})
	}
}

func TestPlay_MissingFile(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	if err := New(cfg).Play("nothing here"); err == nil {
		t.Error("Expected error for missing recording")
	}
}

func TestPCM16Reader_Passthrough(t *testing.T) {
	src := bytes.NewReader([]byte{1, 2, 3, 4})
	if r := NewPCM16Reader(src, 16, 0); r != io.Reader(src) {
		t.Error("Expected 16-bit unshifted stream to pass through")
	}
}

// oneByteReader hands out data a byte at a time to exercise partial frames.
type oneByteReader struct{ data []byte }

func (r *oneByteReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

func TestPCM16Reader_Narrows32BitFrames(t *testing.T) {
	values := []int32{0, 1 << 8, -1 << 8, 0x7FFFFF << 8, -0x800000 << 8}
	raw := make([]byte, 4*len(values))
	for i, v := range values {
		binary.LittleEndian.PutUint32(raw[4*i:], uint32(v))
	}

	for _, tt := range []struct {
		name string
		r    io.Reader
	}{
		{"whole", bytes.NewReader(raw)},
		{"byte at a time", &oneByteReader{data: raw}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out, err := io.ReadAll(NewPCM16Reader(tt.r, 32, 8))
			if err != nil {
				t.Fatal(err)
			}
			if len(out) != 2*len(values) {
				t.Fatalf("Expected %d bytes, got %d", 2*len(values), len(out))
			}
			// 24 logical bits narrowed to 16: drop 8 more
			want := []int16{0, 0, -1, 0x7FFF, -0x8000}
			for i, w := range want {
				if got := int16(binary.LittleEndian.Uint16(out[2*i:])); got != w {
					t.Errorf("Sample %d: got %d, want %d", i, got, w)
				}
			}
		})
	}
}
