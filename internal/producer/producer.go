// Package producer turns a status program's output into frames on the shared channel.
package producer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"multistatus/internal/extractor"
	"multistatus/pkg/frame"
)

// DefaultQueueSize is the number of status lines buffered while the channel is slow
const DefaultQueueSize = 16

// Producer reads a status stream and sends every completed status line, tagged with its
// priority, to the channel
type Producer struct {
	priority  int
	open      OpenFunc
	queueSize int
}

func New(priority int, open OpenFunc, queueSize int) *Producer {
	if queueSize < 1 {
		queueSize = DefaultQueueSize
	}
	return &Producer{
		priority:  priority,
		open:      open,
		queueSize: queueSize,
	}
}

// Run consumes input until it ends, fails, or ctx is cancelled. Input is handed to the
// extractor as soon as a Read returns, whatever its size, so a status line is forwarded
// the moment its closing bracket arrives. A Read that never returns does not keep Run
// from stopping on cancellation.
//
// The end of input is not an error. A malformed status stream is, and wraps
// extractor.ErrProtocol.
func (p *Producer) Run(ctx context.Context, input io.Reader) error {
	sender := NewSender(p.open, p.queueSize)
	defer sender.Close()

	reads, next := readChunks(ctx, input)

	var ex extractor.Extractor
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		var r chunk
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r = <-reads:
		}

		if len(r.data) > 0 {
			lines, err := ex.Write(r.data)
			for _, line := range lines {
				sender.Send(frame.Frame{Priority: p.priority, Payload: line})
			}
			if err != nil {
				return fmt.Errorf("failed to extract status line: %w", err)
			}
		}

		if r.err != nil {
			if errors.Is(r.err, io.EOF) {
				if ex.Depth() > 1 {
					slog.Warn("Input ended in the middle of a status line", "priority", p.priority, "depth", ex.Depth())
				}
				return nil
			}
			return fmt.Errorf("failed to read status input: %w", r.err)
		}

		select {
		case next <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

type chunk struct {
	data []byte
	err  error
}

// readChunks reads input in its own goroutine. Each chunk's data stays valid until a
// value is sent on next, which lets the goroutine reuse its buffer for the following
// Read. The goroutine ends after a read error or once ctx is done and its pending Read
// returns.
func readChunks(ctx context.Context, input io.Reader) (<-chan chunk, chan<- struct{}) {
	reads := make(chan chunk)
	next := make(chan struct{})

	go func() {
		buf := make([]byte, 4096)
		for {
			n, err := input.Read(buf)
			select {
			case reads <- chunk{data: buf[:n], err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
			select {
			case <-next:
			case <-ctx.Done():
				return
			}
		}
	}()

	return reads, next
}
