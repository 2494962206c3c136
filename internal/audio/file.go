package audio

import (
	"fmt"
	"io"
	"os"
	"sync"
)

// FileSource replays a raw little-endian PCM capture in the device format,
// looping at end of file and paced at the sample rate.
type FileSource struct {
	format Format
	path   string

	mu     sync.Mutex
	file   *os.File
	closed bool
	pacer  *pacer
}

// NewFileSource opens path and checks it holds at least one frame.
func NewFileSource(format Format, path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open source file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat source file: %w", err)
	}
	if info.Size() < int64(format.FrameBytes()) {
		f.Close()
		return nil, fmt.Errorf("source file %s holds no complete %d-bit frame", path, format.BitDepth)
	}

	return &FileSource{
		format: format,
		path:   path,
		file:   f,
		pacer:  newPacer(format.SampleRate),
	}, nil
}

func (s *FileSource) Acquire(block []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, ErrSourceClosed
	}

	frameBytes := s.format.FrameBytes()
	want := (len(block) / frameBytes) * frameBytes
	if max := s.format.BlockBytes(); want > max {
		want = max
	}

	n, err := io.ReadFull(s.file, block[:want])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		// Drop a trailing partial frame and rewind for the next call.
		n -= n % frameBytes
		if _, serr := s.file.Seek(0, io.SeekStart); serr != nil {
			return 0, fmt.Errorf("failed to rewind %s: %w", s.path, serr)
		}
		err = nil
	}
	if err != nil {
		return 0, err
	}

	if s.pacer != nil {
		s.pacer.wait(n / frameBytes)
	}
	return n, nil
}

func (s *FileSource) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.file.Close()
}
