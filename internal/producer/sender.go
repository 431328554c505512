package producer

import (
	"io"
	"log/slog"
	"sync"
	"time"

	"multistatus/internal/metrics"
	"multistatus/pkg/frame"
)

// DefaultDrainTimeout bounds how long Close waits for queued frames to reach the channel
const DefaultDrainTimeout = 2 * time.Second

// OpenFunc acquires a fresh handle on the channel
type OpenFunc func() (io.WriteCloser, error)

// Sender delivers frames to the channel from a single goroutine that owns the channel
// handle. Send never blocks, so a slow or missing consumer cannot stall the input.
type Sender struct {
	open         OpenFunc
	frames       chan frame.Frame
	done         chan struct{}
	drainTimeout time.Duration

	mu      sync.Mutex // Guards conn and aborted against Close
	aborted bool

	conn        io.WriteCloser
	writer      *frame.Writer
	unavailable bool // Last attempt to reach the channel failed
}

// NewSender starts the delivery goroutine. It runs until Close is called.
func NewSender(open OpenFunc, queueSize int) *Sender {
	if queueSize < 1 {
		queueSize = 1
	}
	s := &Sender{
		open:         open,
		frames:       make(chan frame.Frame, queueSize),
		done:         make(chan struct{}),
		drainTimeout: DefaultDrainTimeout,
	}

	go func() {
		defer close(s.done)
		for f := range s.frames {
			s.deliver(f)
		}
		s.disconnect()
	}()

	return s
}

// Send queues a frame. It returns false, and drops the frame, if the queue is full.
func (s *Sender) Send(f frame.Frame) bool {
	select {
	case s.frames <- f:
		return true
	default:
		slog.Warn("Channel writer is behind, dropping status line", "priority", f.Priority, "queued", len(s.frames))
		metrics.RecordFrameDropped(f.Priority, metrics.DropQueueFull)
		return false
	}
}

// Close delivers the frames still queued and waits for the delivery goroutine to finish.
// A consumer that stops reading would block delivery forever; after the drain timeout
// the channel handle is closed and the remaining frames are dropped.
func (s *Sender) Close() {
	close(s.frames)
	select {
	case <-s.done:
		return
	case <-time.After(s.drainTimeout):
	}

	slog.Warn("Channel is not draining, dropping queued status lines", "queued", len(s.frames), "timeout", s.drainTimeout)
	s.mu.Lock()
	s.aborted = true
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		// Interrupts the pending write
		_ = conn.Close()
	}
	<-s.done
}

func (s *Sender) deliver(f frame.Frame) {
	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		metrics.RecordFrameDropped(f.Priority, metrics.DropWrite)
		return
	}

	if s.conn == nil {
		conn, err := s.open()
		if err != nil {
			// A missing consumer is expected; report the first failure of a streak
			// loudly and the rest quietly.
			if s.unavailable {
				slog.Debug("Channel unavailable, dropping status line", "error", err, "priority", f.Priority)
			} else {
				slog.Warn("Channel unavailable, dropping status line", "error", err, "priority", f.Priority)
			}
			s.unavailable = true
			metrics.RecordFrameDropped(f.Priority, metrics.DropUnavailable)
			return
		}
		if s.unavailable {
			slog.Info("Channel available again", "priority", f.Priority)
		}
		s.unavailable = false
		s.mu.Lock()
		if s.aborted {
			s.mu.Unlock()
			_ = conn.Close()
			metrics.RecordFrameDropped(f.Priority, metrics.DropWrite)
			return
		}
		s.conn = conn
		s.mu.Unlock()
		s.writer = frame.NewWriter(conn)
	}

	if err := s.writer.WriteFrame(f); err != nil {
		slog.Warn("Failed to write to channel, dropping status line", "error", err, "priority", f.Priority)
		metrics.RecordFrameDropped(f.Priority, metrics.DropWrite)
		s.disconnect()
		return
	}
	metrics.RecordFrameSent(f.Priority)
}

func (s *Sender) disconnect() {
	if s.conn == nil {
		return
	}
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	s.writer = nil
	if err := conn.Close(); err != nil {
		slog.Debug("Failed to close channel handle", "error", err)
	}
}
