// Package arbiter merges the status lines of several producers into one i3bar stream.
//
// Every frame carries the priority of its producer. A frame takes over the display when
// its priority is at least the priority of the frame shown last, or when the frame shown
// last is older than the staleness timeout. A producer of higher priority therefore owns
// the display for as long as it keeps updating; lower priorities get it back once it
// falls silent.
package arbiter

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"time"

	"multistatus/internal/metrics"
	"multistatus/pkg/frame"
)

// Header is written once before the first status line
const Header = "{\"version\":1}\n[\n"

// DefaultTimeout is the staleness timeout used when none is configured
const DefaultTimeout = 2 * time.Second

// Arbiter owns the acceptance state and the output stream
type Arbiter struct {
	out     *bufio.Writer
	timeout time.Duration
	now     func() time.Time

	lastPriority   int
	lastAcceptedAt time.Time
	printed        bool // At least one status line has been written
}

// Option configures an Arbiter
type Option func(*Arbiter)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(a *Arbiter) {
		a.now = now
	}
}

func New(out io.Writer, timeout time.Duration, opts ...Option) *Arbiter {
	a := &Arbiter{
		out:          bufio.NewWriter(out),
		timeout:      timeout,
		now:          time.Now,
		lastPriority: math.MinInt,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.lastAcceptedAt = a.now()
	return a
}

// Accept applies the acceptance rule to an update of the given priority arriving now,
// and records it as the new owner when accepted.
func (a *Arbiter) Accept(priority int) bool {
	now := a.now()
	if priority < a.lastPriority && now.Sub(a.lastAcceptedAt) <= a.timeout {
		return false
	}
	a.lastPriority = priority
	a.lastAcceptedAt = now
	return true
}

// Owner returns the priority of the last accepted update and when it was accepted. Before
// the first acceptance the priority is math.MinInt.
func (a *Arbiter) Owner() (int, time.Time) {
	return a.lastPriority, a.lastAcceptedAt
}

// WriteHeader writes the protocol header and opens the endless array
func (a *Arbiter) WriteHeader() error {
	if _, err := a.out.WriteString(Header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := a.out.Flush(); err != nil {
		return fmt.Errorf("failed to flush header: %w", err)
	}
	return nil
}

// Offer submits one frame. Accepted payloads are written as the next array element and
// flushed before Offer returns.
func (a *Arbiter) Offer(f frame.Frame) (bool, error) {
	if !a.Accept(f.Priority) {
		metrics.RecordUpdate(f.Priority, false)
		slog.Debug("Rejected status line", "priority", f.Priority, "owner", a.lastPriority)
		return false, nil
	}
	metrics.RecordUpdate(f.Priority, true)

	if a.printed {
		if err := a.out.WriteByte(','); err != nil {
			return true, fmt.Errorf("failed to write separator: %w", err)
		}
	}
	a.printed = true
	if _, err := a.out.Write(f.Payload); err != nil {
		return true, fmt.Errorf("failed to write status line: %w", err)
	}
	if err := a.out.Flush(); err != nil {
		return true, fmt.Errorf("failed to flush status line: %w", err)
	}
	return true, nil
}

// Run writes the header, then reads frames from input until it ends or ctx is cancelled.
//
// Lines with an invalid priority are logged and skipped. Lines without a separator and
// payloads that do not decode end the run with an error: the producer on the other side
// speaks a different protocol and skipping would only hide it.
func (a *Arbiter) Run(ctx context.Context, input io.Reader) error {
	if err := a.WriteHeader(); err != nil {
		return err
	}

	reader := frame.NewReader(input)
	for {
		f, err := reader.Next()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if errors.Is(err, frame.ErrInvalidPriority) {
				slog.Warn("Discarding channel line", "error", err)
				metrics.RecordLineDiscarded()
				continue
			}
			return err
		}

		if _, err := a.Offer(f); err != nil {
			return err
		}
	}
}
