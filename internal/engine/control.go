package engine

import (
	"io"
	"sync"
)

// Control is the input side of the link: a non-blocking view of the bytes
// the operator has sent.
type Control interface {
	// Poll takes the oldest pending byte, if any.
	Poll() (byte, bool)
	// Available reports whether any byte is pending.
	Available() bool
	// Drain discards every pending byte and returns how many were dropped.
	Drain() int
	// Notify fires after new bytes arrive.
	Notify() <-chan struct{}
	// Done is closed once the input reaches end of stream.
	Done() <-chan struct{}
}

// ControlReader adapts a blocking io.Reader into a Control by pumping it
// from a goroutine into a locked queue.
type ControlReader struct {
	mu     sync.Mutex
	queue  []byte
	err    error
	notify chan struct{}
	done   chan struct{}
}

// NewControlReader starts pumping r. The pump exits when r returns an error.
func NewControlReader(r io.Reader) *ControlReader {
	c := &ControlReader{
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go c.pump(r)
	return c
}

func (c *ControlReader) pump(r io.Reader) {
	buf := make([]byte, 64)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.queue = append(c.queue, buf[:n]...)
			c.mu.Unlock()

			select {
			case c.notify <- struct{}{}:
			default:
			}
		}
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			close(c.done)
			return
		}
	}
}

func (c *ControlReader) Poll() (byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		return 0, false
	}
	b := c.queue[0]
	c.queue = c.queue[1:]
	return b, true
}

func (c *ControlReader) Available() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.queue) > 0
}

func (c *ControlReader) Drain() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := len(c.queue)
	c.queue = c.queue[:0]
	return n
}

func (c *ControlReader) Notify() <-chan struct{} {
	return c.notify
}

func (c *ControlReader) Done() <-chan struct{} {
	return c.done
}

// Err returns the error that ended the pump; io.EOF for a clean close.
func (c *ControlReader) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}
