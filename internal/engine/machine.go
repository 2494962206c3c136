package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/audiolibrelab/micstream/internal/audio"
	"github.com/audiolibrelab/micstream/internal/codec"
)

// Options fixes the behaviour of a Machine for its lifetime.
type Options struct {
	Format          audio.Format
	DurationSeconds int

	// CancellableRecording lets any control byte end a recording early.
	// Off by default: a recording always delivers its full budget.
	CancellableRecording bool

	// TraceBlocks logs every acquired block at debug level.
	TraceBlocks bool
}

// Stats counts what the machine has done since it was created.
type Stats struct {
	Recordings     int
	Streams        int
	Prints         int
	Ignored        int
	TransientSkips int
	PayloadBytes   int64
}

// Machine is the acquisition/streaming state machine. It owns the mode and
// the single reusable acquisition block; every method runs on the caller's
// goroutine and Machine is not safe for concurrent use.
type Machine struct {
	source  audio.Source
	sink    *Sink
	control Control
	opts    Options

	mode  Mode
	block []byte
	lines []byte
	stats Stats
}

func New(source audio.Source, sink *Sink, control Control, opts Options) *Machine {
	return &Machine{
		source:  source,
		sink:    sink,
		control: control,
		opts:    opts,
		mode:    ModeIdle,
		block:   make([]byte, opts.Format.BlockBytes()),
	}
}

// Mode returns the current mode.
func (m *Machine) Mode() Mode {
	return m.mode
}

// Stats returns a snapshot of the counters.
func (m *Machine) Stats() Stats {
	return m.stats
}

// RecordBudget is the exact payload size of one recording.
func (m *Machine) RecordBudget() int {
	return m.opts.Format.SampleRate * m.opts.DurationSeconds * m.opts.Format.FrameBytes()
}

// Announce writes the startup banner.
func (m *Machine) Announce() error {
	for _, line := range []string{LineBanner, LineBannerHint, LineReady} {
		if err := m.sink.WriteLine(line); err != nil {
			return err
		}
	}
	return nil
}

// Run is the idle loop: it takes one command byte at a time and runs the
// selected mode to completion. It returns nil when ctx is cancelled or the
// control input ends, and an error if the sink or source fails for good.
func (m *Machine) Run(ctx context.Context) error {
	for {
		if cmd, ok := m.control.Poll(); ok {
			if err := m.Dispatch(ctx, cmd); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return err
			}
			continue
		}

		select {
		case <-ctx.Done():
			return nil
		case <-m.control.Done():
			if !m.control.Available() {
				slog.Debug("Control input closed, leaving idle loop")
				return nil
			}
		case <-m.control.Notify():
		}
	}
}

// Dispatch runs the mode selected by cmd. Unknown bytes are ignored without
// any output. Only called while idle.
func (m *Machine) Dispatch(ctx context.Context, cmd byte) error {
	if m.mode != ModeIdle {
		return fmt.Errorf("dispatch while in mode %s", m.mode)
	}

	switch cmd {
	case CmdRecord:
		return m.record(ctx)
	case CmdPrint:
		return m.runContinuous(ctx, ModePrintingDecoded)
	case CmdStream:
		return m.runContinuous(ctx, ModeStreamingRaw)
	default:
		m.stats.Ignored++
		slog.Debug("Ignoring unknown command byte", "byte", cmd)
		return nil
	}
}

func (m *Machine) enter(mode Mode) {
	slog.Info("Mode transition", "from", m.mode, "to", mode)
	m.mode = mode
}

func (m *Machine) leave() {
	slog.Info("Mode transition", "from", m.mode, "to", ModeIdle,
		"payload_bytes", m.stats.PayloadBytes, "transient_skips", m.stats.TransientSkips)
	m.mode = ModeIdle
}

// record sends exactly RecordBudget bytes of raw frames, truncating the last
// block if the budget is not a whole number of blocks.
func (m *Machine) record(ctx context.Context) error {
	m.enter(ModeRecording)
	defer m.leave()
	m.stats.Recordings++

	if err := m.sink.WriteLine(LineRecording); err != nil {
		return err
	}
	if m.opts.CancellableRecording {
		m.control.Drain()
	}

	budget := m.RecordBudget()
	written := 0
	for written < budget {
		if err := ctx.Err(); err != nil {
			return err
		}
		if m.opts.CancellableRecording && m.control.Available() {
			m.control.Drain()
			slog.Info("Recording cancelled", "bytes", written, "budget", budget)
			return m.sink.WriteLine(LineRecordingCancel)
		}

		n, err := m.acquire()
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		chunk := m.block[:n]
		if remaining := budget - written; len(chunk) > remaining {
			chunk = chunk[:remaining]
		}
		if err := m.sink.WriteRaw(chunk); err != nil {
			return err
		}
		written += len(chunk)
		m.stats.PayloadBytes += int64(len(chunk))
	}

	slog.Info("Recording complete", "bytes", written)
	return m.sink.WriteLine(LineRecordingDone)
}

// runContinuous streams raw bytes or decoded lines until any control byte
// arrives. The check happens between blocks, so at most the block being
// acquired when the byte lands is still emitted.
func (m *Machine) runContinuous(ctx context.Context, mode Mode) error {
	m.enter(mode)
	defer m.leave()

	startLine, stopLine := LineStreamStart, LineStreamStop
	if mode == ModePrintingDecoded {
		startLine, stopLine = LinePrintStart, LinePrintStop
		m.stats.Prints++
	} else {
		m.stats.Streams++
	}

	if err := m.sink.WriteLine(startLine); err != nil {
		return err
	}

	// Drop whatever is queued (typically the echoed command or its line
	// ending) so it does not end the mode straight away.
	m.control.Drain()

	for !m.control.Available() {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := m.acquire()
		if err != nil {
			return err
		}
		if n == 0 {
			continue
		}

		if err := m.emit(mode, m.block[:n]); err != nil {
			return err
		}
	}

	dropped := m.control.Drain()
	slog.Debug("Stop signal received", "mode", mode, "dropped_bytes", dropped)

	if err := m.sink.WriteLine(stopLine); err != nil {
		return err
	}
	return m.sink.WriteLine(LineIdleHint)
}

func (m *Machine) emit(mode Mode, block []byte) error {
	if mode == ModeStreamingRaw {
		if err := m.sink.WriteRaw(block); err != nil {
			return err
		}
		m.stats.PayloadBytes += int64(len(block))
		return nil
	}

	m.lines = codec.AppendDecoded(m.lines[:0], block, m.opts.Format.BitDepth, uint(m.opts.Format.ShiftAmount))
	if err := m.sink.WriteRaw(m.lines); err != nil {
		return err
	}
	m.stats.PayloadBytes += int64(len(m.lines))
	return nil
}

// acquire fills the block. Transient failures come back as (0, nil) so the
// caller simply tries again; only a closed source is returned as an error.
func (m *Machine) acquire() (int, error) {
	n, err := m.source.Acquire(m.block)
	if errors.Is(err, audio.ErrSourceClosed) {
		return 0, err
	}
	if err != nil || n <= 0 {
		m.stats.TransientSkips++
		if err != nil {
			slog.Debug("Transient acquisition failure", "error", err)
		}
		return 0, nil
	}

	n -= n % m.opts.Format.FrameBytes()
	if m.opts.TraceBlocks {
		slog.Debug("Acquired block", "bytes", n, "mode", m.mode)
	}
	return n, nil
}
