package codec

import (
	"math"
	"testing"
)

func TestDecode_SignPreservingShift(t *testing.T) {
	tests := []struct {
		name  string
		frame int32
		shift uint
		want  int32
	}{
		{"16-bit passthrough", 1234, 0, 1234},
		{"16-bit negative passthrough", -32768, 0, -32768},
		{"24-in-32 max", 0x7FFFFF00, 8, 0x007FFFFF},
		{"24-in-32 most negative", math.MinInt32, 8, int32(-8388608)}, // 0xFF800000
		{"minus one stays minus one", -1, 8, -1},
		{"small negative rounds toward -inf", -256, 8, -1},
		{"zero", 0, 8, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decode(tt.frame, tt.shift)
			if got != tt.want {
				t.Errorf("Decode(%#x, %d) = %#x, want %#x", tt.frame, tt.shift, got, tt.want)
			}
		})
	}
}

func TestDecode_MostNegativeBitPattern(t *testing.T) {
	got := uint32(Decode(math.MinInt32, 8))
	if got != 0xFF800000 {
		t.Errorf("expected 0xFF800000, got %#x", got)
	}
}

func TestDecode_MatchesShiftForAllShifts(t *testing.T) {
	frames := []int32{math.MinInt32, math.MaxInt32, -1, 0, 1, -12345678, 12345678}
	for shift := uint(0); shift < 32; shift++ {
		for _, f := range frames {
			if got, want := Decode(f, shift), f>>shift; got != want {
				t.Fatalf("shift %d frame %d: got %d want %d", shift, f, got, want)
			}
			if f < 0 && Decode(f, shift) >= 0 {
				t.Fatalf("shift %d frame %d: sign lost", shift, f)
			}
		}
	}
}

func TestFrameAt_LittleEndian(t *testing.T) {
	block := []byte{0x34, 0x12, 0x00, 0x80}
	if got := FrameAt(block, 0, 16); got != 0x1234 {
		t.Errorf("frame 0: got %#x", got)
	}
	if got := FrameAt(block, 1, 16); got != -32768 {
		t.Errorf("frame 1: got %d, want -32768", got)
	}

	block32 := []byte{0x00, 0x00, 0x00, 0x80}
	if got := FrameAt(block32, 0, 32); got != math.MinInt32 {
		t.Errorf("32-bit frame: got %d", got)
	}
}

func TestPutFrame_FrameAt(t *testing.T) {
	block := make([]byte, 8)
	PutFrame(block, 1, 32, -42)
	if got := FrameAt(block, 1, 32); got != -42 {
		t.Errorf("got %d, want -42", got)
	}
	PutFrame(block, 0, 16, -2)
	if block[0] != 0xFE || block[1] != 0xFF {
		t.Errorf("unexpected bytes %x", block[:2])
	}
}

func TestAppendDecoded(t *testing.T) {
	block := make([]byte, 12)
	PutFrame(block, 0, 32, 0x7FFFFF00)
	PutFrame(block, 1, 32, math.MinInt32)
	PutFrame(block, 2, 32, 0)

	got := string(AppendDecoded(nil, block, 32, 8))
	want := "8388607\n-8388608\n0\n"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}

	// trailing partial frame is dropped
	got = string(AppendDecoded(nil, []byte{1, 0, 2}, 16, 0))
	if got != "1\n" {
		t.Errorf("partial frame: got %q", got)
	}
}

func TestToInt16(t *testing.T) {
	tests := []struct {
		frame    int32
		bitDepth int
		shift    uint
		want     int16
	}{
		{-5, 16, 0, -5},
		{0x7FFFFF00, 32, 8, 0x7FFF},
		{math.MinInt32, 32, 8, math.MinInt16},
		{0x12340000, 32, 0, 0x1234},
	}
	for _, tt := range tests {
		if got := ToInt16(tt.frame, tt.bitDepth, tt.shift); got != tt.want {
			t.Errorf("ToInt16(%#x, %d, %d) = %d, want %d", tt.frame, tt.bitDepth, tt.shift, got, tt.want)
		}
	}
}
