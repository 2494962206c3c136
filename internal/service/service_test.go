package service

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/go-audio/wav"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/config"
	"github.com/audiolibrelab/micstream/internal/engine"
)

type rampSource struct {
	format audio.Format
	next   int32
}

func (s *rampSource) Acquire(block []byte) (int, error) {
	fb := s.format.FrameBytes()
	n := 0
	for ; n+fb <= len(block) && n/fb < s.format.BlockFrames; n += fb {
		frame := s.next << uint(s.format.ShiftAmount)
		if fb == 2 {
			binary.LittleEndian.PutUint16(block[n:], uint16(int16(frame)))
		} else {
			binary.LittleEndian.PutUint32(block[n:], uint32(frame))
		}
		s.next++
	}
	return n, nil
}

func (s *rampSource) Close() error { return nil }

// deviceDialer starts a fresh in-process device for every dial.
func deviceDialer(t *testing.T, cfg *config.Config) Dialer {
	return func(ctx context.Context) (io.ReadWriteCloser, error) {
		dev, host := net.Pipe()
		format := audio.FormatFromConfig(cfg)
		m := engine.New(&rampSource{format: format}, engine.NewSink(dev), engine.NewControlReader(dev), engine.Options{
			Format:          format,
			DurationSeconds: cfg.Recording.DurationSeconds,
		})

		mctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := m.Announce(); err != nil {
				return
			}
			_ = m.Run(mctx)
		}()

		t.Cleanup(func() {
			cancel()
			dev.Close()
			<-done
		})
		return host, nil
	}
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.Output.Directory = t.TempDir()
	cfg.Recording.DurationSeconds = 1
	return cfg
}

func TestRecord_WritesWAVAndSidecar(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, "", deviceDialer(t, cfg))

	info, err := svc.Record(context.Background(), "Take 1")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if info.Bytes != 32000 || info.Frames != 16000 {
		t.Errorf("Expected 32000 bytes / 16000 frames, got %d / %d", info.Bytes, info.Frames)
	}
	if info.File != "Take_1.wav" {
		t.Errorf("Expected Take_1.wav, got %s", info.File)
	}

	f, err := os.Open(filepath.Join(cfg.Output.Directory, "Take_1.wav"))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	buf, err := d.FullPCMBuffer()
	if err != nil {
		t.Fatalf("Failed to decode wav: %v", err)
	}
	if d.SampleRate != 16000 || d.BitDepth != 16 || d.NumChans != 1 {
		t.Errorf("Unexpected wav format: %d Hz, %d bit, %d ch", d.SampleRate, d.BitDepth, d.NumChans)
	}
	if len(buf.Data) != 16000 {
		t.Fatalf("Expected 16000 samples, got %d", len(buf.Data))
	}
	for i, v := range buf.Data {
		if v != i {
			t.Fatalf("Sample %d: expected %d, got %d", i, i, v)
		}
	}

	got, err := svc.GetRecordingInfo("Take 1")
	if err != nil {
		t.Fatalf("GetRecordingInfo failed: %v", err)
	}
	if got.ID != info.ID || got.ShiftAmount != 0 || got.BitDepth != 16 {
		t.Errorf("Sidecar mismatch: %+v vs %+v", got, info)
	}
}

func TestRecord_32BitKeepsRawFramesAndShift(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.BitDepth = 32
	cfg.Device.ShiftAmount = 8
	cfg.Output.Format = "raw"
	svc := New(cfg, "", deviceDialer(t, cfg))

	info, err := svc.Record(context.Background(), "wide")
	if err != nil {
		t.Fatalf("Record failed: %v", err)
	}
	if info.Bytes != 64000 || info.ShiftAmount != 8 || info.Container != "raw" {
		t.Errorf("Unexpected info: %+v", info)
	}

	data, err := os.ReadFile(filepath.Join(cfg.Output.Directory, "wide.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 64000 {
		t.Fatalf("Expected 64000 bytes, got %d", len(data))
	}
	if v := int32(binary.LittleEndian.Uint32(data[4*100:])); v != 100<<8 {
		t.Errorf("Frame 100: expected %d, got %d", 100<<8, v)
	}
}

func TestListRecordings_NewestFirst(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, "", deviceDialer(t, cfg))

	for _, name := range []string{"first", "second"} {
		if _, err := svc.Record(context.Background(), name); err != nil {
			t.Fatalf("Record %s failed: %v", name, err)
		}
	}

	// sidecar timestamps have one-second resolution
	older := filepath.Join(cfg.Output.Directory, "first.yaml")
	data, err := os.ReadFile(older)
	if err != nil {
		t.Fatal(err)
	}
	info, err := readSidecar(older)
	if err != nil {
		t.Fatal(err)
	}
	stamp := info.Created.Format(time.RFC3339)
	backdated := info.Created.Add(-time.Hour).Format(time.RFC3339)
	if err := os.WriteFile(older, bytes.Replace(data, []byte(stamp), []byte(backdated), 1), 0644); err != nil {
		t.Fatal(err)
	}

	recordings, err := svc.ListRecordings()
	if err != nil {
		t.Fatal(err)
	}
	if len(recordings) != 2 {
		t.Fatalf("Expected 2 recordings, got %d", len(recordings))
	}
	if recordings[0].Name != "second" || recordings[1].Name != "first" {
		t.Errorf("Unexpected order: %s, %s", recordings[0].Name, recordings[1].Name)
	}
	if !strings.HasSuffix(recordings[0].SizeHuman, " KB") {
		t.Errorf("Expected a KB size, got %s", recordings[0].SizeHuman)
	}
}

func TestListRecordings_MissingDirectory(t *testing.T) {
	cfg := testConfig(t)
	cfg.Output.Directory = filepath.Join(cfg.Output.Directory, "absent")
	recordings, err := New(cfg, "", nil).ListRecordings()
	if err != nil || len(recordings) != 0 {
		t.Errorf("Expected empty list, got %v %v", recordings, err)
	}
}

type cancelOnWrite struct {
	buf    bytes.Buffer
	cancel context.CancelFunc
}

func (w *cancelOnWrite) Write(p []byte) (int, error) {
	w.cancel()
	return w.buf.Write(p)
}

func TestSamples_WritesDecodedLines(t *testing.T) {
	cfg := testConfig(t)
	cfg.Device.BitDepth = 32
	cfg.Device.ShiftAmount = 8
	svc := New(cfg, "", deviceDialer(t, cfg))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancelOnWrite{cancel: cancel}

	if err := svc.Samples(ctx, w); err != nil {
		t.Fatalf("Samples failed: %v", err)
	}

	lines := strings.Split(strings.TrimSuffix(w.buf.String(), "\n"), "\n")
	if len(lines) < 100 {
		t.Fatalf("Expected at least 100 samples, got %d", len(lines))
	}
	for i, line := range lines {
		if line != strconv.Itoa(i) {
			t.Fatalf("Line %d: expected %d, got %q", i, i, line)
		}
	}
}

func TestRecord_DialFailureSetsLastError(t *testing.T) {
	cfg := testConfig(t)
	svc := New(cfg, "", func(ctx context.Context) (io.ReadWriteCloser, error) {
		return nil, errors.New("no device")
	})

	if _, err := svc.Record(context.Background(), "x"); err == nil {
		t.Fatal("Expected error")
	}
	if !strings.Contains(svc.GetLastError(), "no device") {
		t.Errorf("Expected last error to mention the cause, got %q", svc.GetLastError())
	}
}

func TestRecord_RejectsEmptyName(t *testing.T) {
	cfg := testConfig(t)
	if _, err := New(cfg, "", deviceDialer(t, cfg)).Record(context.Background(), "?!"); err == nil {
		t.Error("Expected error for a name with no usable characters")
	}
}

func TestRunPipeline_UnknownStep(t *testing.T) {
	cfg := testConfig(t)
	err := New(cfg, "", nil).RunPipeline(context.Background(), "x", "m")
	if err == nil || !strings.Contains(err.Error(), "unknown pipeline step") {
		t.Errorf("Expected unknown step error, got %v", err)
	}
}

func TestFormatBytes(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{512, "512 B"},
		{1024, "1.0 KB"},
		{1536, "1.5 KB"},
		{2000, "2.0 KB"},
		{5 * 1024 * 1024, "5.0 MB"},
	}
	for _, tt := range tests {
		if got := formatBytes(tt.in); got != tt.want {
			t.Errorf("formatBytes(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
