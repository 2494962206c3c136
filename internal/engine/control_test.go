package engine

import (
	"errors"
	"io"
	"testing"
	"time"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met before deadline")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestControlReader_PollDrainAndClose(t *testing.T) {
	pr, pw := io.Pipe()
	ctl := NewControlReader(pr)

	if _, ok := ctl.Poll(); ok {
		t.Fatal("Expected empty control before any write")
	}

	if _, err := pw.Write([]byte("rd")); err != nil {
		t.Fatal(err)
	}
	<-ctl.Notify()
	waitFor(t, func() bool { return ctl.Available() })

	if b, ok := ctl.Poll(); !ok || b != 'r' {
		t.Errorf("Expected 'r', got %q %v", b, ok)
	}
	waitFor(t, ctl.Available)
	if n := ctl.Drain(); n != 1 {
		t.Errorf("Expected to drain 1 byte, got %d", n)
	}
	if ctl.Available() {
		t.Error("Expected nothing pending after drain")
	}

	pw.Close()
	select {
	case <-ctl.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("Expected Done after writer closed")
	}
	if !errors.Is(ctl.Err(), io.EOF) {
		t.Errorf("Expected io.EOF, got %v", ctl.Err())
	}
}

type chunkWriter struct{ n int }

func (w *chunkWriter) Write(p []byte) (int, error) {
	if len(p) > w.n {
		return w.n, nil
	}
	return len(p), nil
}

func TestSink_ShortWriteIsAnError(t *testing.T) {
	s := NewSink(&chunkWriter{n: 3})
	err := s.WriteRaw([]byte("hello"))
	if !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("Expected io.ErrShortWrite, got %v", err)
	}
	if s.Written() != 3 {
		t.Errorf("Expected 3 bytes accounted, got %d", s.Written())
	}
}
