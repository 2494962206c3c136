package engine

import (
	"fmt"
	"io"
)

// Sink is the blocking byte-stream output. Raw payload and status lines go
// through the same writer in call order; a slow writer stalls the caller,
// which is what throttles acquisition.
type Sink struct {
	w       io.Writer
	written int64
}

func NewSink(w io.Writer) *Sink {
	return &Sink{w: w}
}

// WriteRaw forwards payload bytes unchanged.
func (s *Sink) WriteRaw(p []byte) error {
	n, err := s.w.Write(p)
	s.written += int64(n)
	if err != nil {
		return fmt.Errorf("sink write: %w", err)
	}
	if n != len(p) {
		return fmt.Errorf("sink write: %w", io.ErrShortWrite)
	}
	return nil
}

// WriteLine writes text followed by a newline.
func (s *Sink) WriteLine(text string) error {
	return s.WriteRaw([]byte(text + "\n"))
}

// Written is the total number of bytes accepted by the writer.
func (s *Sink) Written() int64 {
	return s.written
}
