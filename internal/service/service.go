package service

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/client"
	"github.com/audiolibrelab/micstream/internal/codec"
	"github.com/audiolibrelab/micstream/internal/config"
	"github.com/audiolibrelab/micstream/internal/link"
	"github.com/audiolibrelab/micstream/internal/play"
)

// Service represents the host-side MicStream operations
type Service interface {
	// Device operations
	Record(ctx context.Context, name string) (*RecordingInfo, error)
	Listen(ctx context.Context) error
	Samples(ctx context.Context, w io.Writer) error

	// Playback operations
	Play(name string) error

	// Pipeline operations
	RunPipeline(ctx context.Context, name string, steps string) error

	// Configuration operations
	LoadProfile(profile string) error
	GetConfig() *config.Config

	// Information operations
	GetRecordingInfo(name string) (*RecordingInfo, error)
	ListRecordings() ([]RecordingInfo, error)
	GetLastError() string
}

// Dialer opens the host end of the device link.
type Dialer func(ctx context.Context) (io.ReadWriteCloser, error)

// RecordingInfo is the sidecar written next to every recording. Raw files
// have no header, so this is the only record of their format.
type RecordingInfo struct {
	ID          string    `yaml:"id"`
	Name        string    `yaml:"name"`
	File        string    `yaml:"file"`
	Profile     string    `yaml:"profile"`
	SampleRate  int       `yaml:"sample_rate"`
	BitDepth    int       `yaml:"bit_depth"`
	ShiftAmount int       `yaml:"shift_amount"`
	Channel     string    `yaml:"channel"`
	Container   string    `yaml:"container"`
	Bytes       int64     `yaml:"bytes"`
	Frames      int64     `yaml:"frames"`
	Created     time.Time `yaml:"created"`

	SizeHuman string `yaml:"-"`
}

// MicStreamService is the main service implementation
type MicStreamService struct {
	cfg        *config.Config
	configFile string
	dial       Dialer

	// Error tracking
	lastError      string
	lastErrorMutex sync.RWMutex
}

// New creates a service. A nil dial opens the configured link.
func New(cfg *config.Config, configFile string, dial Dialer) Service {
	s := &MicStreamService{
		cfg:        cfg,
		configFile: configFile,
		dial:       dial,
	}
	if s.dial == nil {
		s.dial = s.openLink
	}
	return s
}

func (s *MicStreamService) openLink(ctx context.Context) (io.ReadWriteCloser, error) {
	return link.Open(ctx, s.cfg.Link.Address, s.cfg.Link.Baud, link.RoleHost)
}

func (s *MicStreamService) connect(ctx context.Context) (*client.Client, io.Closer, error) {
	conn, err := s.dial(ctx)
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to open link: %v", err))
		return nil, nil, fmt.Errorf("failed to open link: %w", err)
	}
	return client.New(conn), conn, nil
}

// Record captures one fixed-length recording from the device and stores it
// under the output directory together with its sidecar.
func (s *MicStreamService) Record(ctx context.Context, name string) (*RecordingInfo, error) {
	slog.Debug("Service.Record called", "name", name)
	s.clearLastError()

	if config.CleanFileName(name) == "" {
		return nil, fmt.Errorf("recording name %q has no usable characters", name)
	}

	c, conn, err := s.connect(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	budget := int64(s.cfg.RecordBudget())
	var payload bytes.Buffer
	payload.Grow(int(budget))

	slog.Info("Recording", "name", name, "seconds", s.cfg.Recording.DurationSeconds, "bytes", budget)
	if _, err := c.Record(ctx, &payload, budget); err != nil {
		s.setLastError(fmt.Sprintf("Recording failed: %v", err))
		return nil, fmt.Errorf("recording failed: %w", err)
	}

	info, err := s.save(name, payload.Bytes())
	if err != nil {
		s.setLastError(fmt.Sprintf("Failed to save recording: %v", err))
		return nil, err
	}

	slog.Info("Recording saved", "file", info.File, "bytes", info.Bytes)
	return info, nil
}

func (s *MicStreamService) save(name string, payload []byte) (*RecordingInfo, error) {
	path := s.cfg.RecordingPath(name)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}

	switch s.cfg.Output.Format {
	case "raw":
		if err := os.WriteFile(path, payload, 0644); err != nil {
			return nil, fmt.Errorf("failed to write raw recording: %w", err)
		}
	default:
		if err := writeWAV(path, payload, s.cfg.Device.SampleRate, s.cfg.Device.BitDepth); err != nil {
			return nil, err
		}
	}

	frameBytes := s.cfg.FrameBytes()
	info := &RecordingInfo{
		ID:          uuid.NewString(),
		Name:        name,
		File:        filepath.Base(path),
		Profile:     s.cfg.Profile,
		SampleRate:  s.cfg.Device.SampleRate,
		BitDepth:    s.cfg.Device.BitDepth,
		ShiftAmount: s.cfg.Device.ShiftAmount,
		Channel:     s.cfg.Device.Channel,
		Container:   s.cfg.Output.Format,
		Bytes:       int64(len(payload)),
		Frames:      int64(len(payload) / frameBytes),
		Created:     time.Now().UTC().Truncate(time.Second),
	}
	info.SizeHuman = formatBytes(info.Bytes)

	data, err := yaml.Marshal(info)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal recording sidecar: %w", err)
	}
	if err := os.WriteFile(sidecarPath(path), data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write recording sidecar: %w", err)
	}

	return info, nil
}

// writeWAV stores raw frames unchanged at the device bit depth.
func writeWAV(path string, payload []byte, sampleRate, bitDepth int) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create wav file: %w", err)
	}
	defer f.Close()

	frames := len(payload) / codec.FrameBytes(bitDepth)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: 1, SampleRate: sampleRate},
		SourceBitDepth: bitDepth,
		Data:           make([]int, frames),
	}
	for i := range buf.Data {
		buf.Data[i] = int(codec.FrameAt(payload, i, bitDepth))
	}

	enc := wav.NewEncoder(f, sampleRate, bitDepth, 1, 1)
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("failed to encode wav: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("failed to finalize wav: %w", err)
	}
	return nil
}

// Listen plays the device's live stream until ctx is cancelled.
func (s *MicStreamService) Listen(ctx context.Context) error {
	c, conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	pr, pw := io.Pipe()
	live := play.NewLive(audio.FormatFromConfig(s.cfg))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer pw.Close()
		n, err := c.Stream(gctx, pipeSink{pw})
		slog.Info("Live stream finished", "bytes", n)
		return err
	})
	g.Go(func() error {
		defer pr.Close()
		return live.Play(gctx, pr)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		s.setLastError(fmt.Sprintf("Live playback failed: %v", err))
		return err
	}
	return nil
}

// pipeSink drops writes once the playback side has gone away, so the stream
// can still be stopped cleanly.
type pipeSink struct {
	w *io.PipeWriter
}

func (p pipeSink) Write(b []byte) (int, error) {
	n, err := p.w.Write(b)
	if errors.Is(err, io.ErrClosedPipe) {
		return len(b), nil
	}
	return n, err
}

// Samples writes decoded samples to w, one per line, until ctx is cancelled.
func (s *MicStreamService) Samples(ctx context.Context, w io.Writer) error {
	c, conn, err := s.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	bw := bufio.NewWriter(w)
	defer bw.Flush()

	var line []byte
	return c.Samples(ctx, func(v int32) error {
		line = codec.AppendLine(line[:0], v)
		_, err := bw.Write(line)
		return err
	})
}

// Play plays a saved recording
func (s *MicStreamService) Play(name string) error {
	player := play.New(s.cfg)
	return player.Play(name)
}

// RunPipeline executes a sequence of operations (r=record, p=play)
func (s *MicStreamService) RunPipeline(ctx context.Context, name string, steps string) error {
	for _, step := range steps {
		switch step {
		case 'r':
			if _, err := s.Record(ctx, name); err != nil {
				return fmt.Errorf("pipeline record failed: %w", err)
			}
		case 'p':
			if err := s.Play(name); err != nil {
				return fmt.Errorf("pipeline play failed: %w", err)
			}
		default:
			return fmt.Errorf("unknown pipeline step: '%c' (valid: r=record, p=play)", step)
		}
	}
	return nil
}

// LoadProfile loads a new configuration profile
func (s *MicStreamService) LoadProfile(profile string) error {
	newCfg, err := config.LoadWithProfile(s.configFile, profile)
	if err != nil {
		return fmt.Errorf("failed to load profile '%s': %w", profile, err)
	}
	s.cfg = newCfg
	return nil
}

// GetConfig returns the current configuration
func (s *MicStreamService) GetConfig() *config.Config {
	return s.cfg
}

// GetRecordingInfo reads the sidecar of a saved recording
func (s *MicStreamService) GetRecordingInfo(name string) (*RecordingInfo, error) {
	return readSidecar(sidecarPath(s.cfg.RecordingPath(name)))
}

// ListRecordings returns every recording with a sidecar, newest first
func (s *MicStreamService) ListRecordings() ([]RecordingInfo, error) {
	files, err := os.ReadDir(s.cfg.Output.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read recordings directory: %w", err)
	}

	var recordings []RecordingInfo
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".yaml" {
			continue
		}
		info, err := readSidecar(filepath.Join(s.cfg.Output.Directory, file.Name()))
		if err != nil {
			slog.Warn("Skipping unreadable sidecar", "file", file.Name(), "error", err)
			continue
		}
		recordings = append(recordings, *info)
	}

	sort.Slice(recordings, func(i, j int) bool {
		return recordings[i].Created.After(recordings[j].Created)
	})

	return recordings, nil
}

func readSidecar(path string) (*RecordingInfo, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read recording sidecar: %w", err)
	}

	var info RecordingInfo
	if err := yaml.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("failed to parse recording sidecar: %w", err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("sidecar %s has no recording id", filepath.Base(path))
	}
	info.SizeHuman = formatBytes(info.Bytes)
	return &info, nil
}

func sidecarPath(recordingPath string) string {
	return strings.TrimSuffix(recordingPath, filepath.Ext(recordingPath)) + ".yaml"
}

// GetLastError returns the last error message (thread-safe)
func (s *MicStreamService) GetLastError() string {
	s.lastErrorMutex.RLock()
	defer s.lastErrorMutex.RUnlock()
	return s.lastError
}

func (s *MicStreamService) setLastError(err string) {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = err

	slog.Error("Service error occurred", "error_message", err)
}

func (s *MicStreamService) clearLastError() {
	s.lastErrorMutex.Lock()
	defer s.lastErrorMutex.Unlock()
	s.lastError = ""
}

// formatBytes formats bytes in human readable format
func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return strconv.FormatInt(bytes, 10) + " B"
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
