package client

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/audiolibrelab/micstream/internal/engine"
)

// ErrUnexpectedStatus is returned when the device answers with a status line
// other than the one the exchange expects.
var ErrUnexpectedStatus = errors.New("unexpected status line")

// stopByte ends a continuous mode. Any byte works; a newline keeps
// terminals tidy.
const stopByte = '\n'

// Client drives a device over a link from the host side.
type Client struct {
	w io.Writer
	r *bufio.Reader
}

func New(rw io.ReadWriter) *Client {
	return &Client{
		w: rw,
		r: bufio.NewReaderSize(rw, 16*1024),
	}
}

// Send writes a single command byte.
func (c *Client) Send(cmd byte) error {
	if _, err := c.w.Write([]byte{cmd}); err != nil {
		return fmt.Errorf("failed to send command %q: %w", cmd, err)
	}
	return nil
}

// ReadLine reads one status line without its line ending.
func (c *Client) ReadLine() (string, error) {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read status line: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// WaitFor skips status lines until one starts with prefix. Banner and hint
// lines that precede it are logged at debug level.
func (c *Client) WaitFor(ctx context.Context, prefix string) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		line, err := c.ReadLine()
		if err != nil {
			return err
		}
		if strings.HasPrefix(line, prefix) {
			return nil
		}
		slog.Debug("Skipping device line", "line", line)
	}
}

// ReadPayload copies exactly n raw bytes to w.
func (c *Client) ReadPayload(ctx context.Context, w io.Writer, n int64) (int64, error) {
	copied, err := io.CopyN(w, ctxReader{ctx: ctx, r: c.r}, n)
	if err != nil {
		return copied, fmt.Errorf("payload ended after %d of %d bytes: %w", copied, n, err)
	}
	return copied, nil
}

// Record asks for one recording and copies its payload to w. budget must
// match the device's configured recording size.
func (c *Client) Record(ctx context.Context, w io.Writer, budget int64) (int64, error) {
	if err := c.Send(engine.CmdRecord); err != nil {
		return 0, err
	}
	if err := c.WaitFor(ctx, engine.LineRecording); err != nil {
		return 0, err
	}

	n, err := c.ReadPayload(ctx, w, budget)
	if err != nil {
		return n, err
	}

	line, err := c.ReadLine()
	if err != nil {
		return n, err
	}
	if line != engine.LineRecordingDone {
		return n, fmt.Errorf("%w: %q after recording", ErrUnexpectedStatus, line)
	}
	return n, nil
}

// Stream starts the raw live stream and copies it to w until ctx is done,
// then stops the device and copies the in-flight remainder. The returned
// count includes that remainder.
func (c *Client) Stream(ctx context.Context, w io.Writer) (int64, error) {
	if err := c.Send(engine.CmdStream); err != nil {
		return 0, err
	}
	if err := c.WaitFor(ctx, engine.LineStreamStart); err != nil {
		return 0, err
	}

	var total int64
	buf := make([]byte, 4096)
	for ctx.Err() == nil {
		n, err := c.r.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return total, fmt.Errorf("failed to forward stream: %w", werr)
			}
			total += int64(n)
		}
		if err != nil {
			return total, fmt.Errorf("stream read: %w", err)
		}
	}

	if err := c.Send(stopByte); err != nil {
		return total, err
	}
	tail, err := c.copyUntil(w, []byte(engine.LineStreamStop+"\n"))
	total += tail
	if err != nil {
		return total, err
	}
	return total, c.expectIdle()
}

// Samples starts decoded printing and calls fn for every sample until ctx
// is done or fn returns an error. Samples printed after the stop request are
// still delivered.
func (c *Client) Samples(ctx context.Context, fn func(int32) error) error {
	if err := c.Send(engine.CmdPrint); err != nil {
		return err
	}
	if err := c.WaitFor(ctx, engine.LinePrintStart); err != nil {
		return err
	}

	var fnErr error
	for ctx.Err() == nil && fnErr == nil {
		line, err := c.ReadLine()
		if err != nil {
			return err
		}
		v, err := parseSample(line)
		if err != nil {
			return err
		}
		fnErr = fn(v)
	}

	if err := c.Send(stopByte); err != nil {
		return err
	}
	for {
		line, err := c.ReadLine()
		if err != nil {
			return err
		}
		if line == engine.LinePrintStop {
			break
		}
		v, err := parseSample(line)
		if err != nil {
			return err
		}
		if fnErr == nil {
			fnErr = fn(v)
		}
	}
	if err := c.expectIdle(); err != nil {
		return err
	}
	return fnErr
}

// Stop sends the stop byte without waiting for an answer.
func (c *Client) Stop() error {
	return c.Send(stopByte)
}

func (c *Client) expectIdle() error {
	line, err := c.ReadLine()
	if err != nil {
		return err
	}
	if line != engine.LineIdleHint {
		return fmt.Errorf("%w: %q instead of idle hint", ErrUnexpectedStatus, line)
	}
	return nil
}

// copyUntil forwards raw bytes to w until marker has been read. The marker
// itself is consumed and not forwarded.
func (c *Client) copyUntil(w io.Writer, marker []byte) (int64, error) {
	bw := bufio.NewWriter(w)
	window := make([]byte, 0, len(marker))
	var total int64

	for {
		b, err := c.r.ReadByte()
		if err != nil {
			bw.Flush()
			return total, fmt.Errorf("stream ended before stop line: %w", err)
		}

		if len(window) == len(marker) {
			if err := bw.WriteByte(window[0]); err != nil {
				return total, err
			}
			total++
			copy(window, window[1:])
			window = window[:len(window)-1]
		}
		window = append(window, b)

		if bytes.Equal(window, marker) {
			return total, bw.Flush()
		}
	}
}

func parseSample(line string) (int32, error) {
	v, err := strconv.ParseInt(line, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a sample", ErrUnexpectedStatus, line)
	}
	return int32(v), nil
}

type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (r ctxReader) Read(p []byte) (int, error) {
	if err := r.ctx.Err(); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}
