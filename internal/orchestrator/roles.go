package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"multistatus/internal/arbiter"
	"multistatus/internal/channel"
	"multistatus/internal/producer"
	"multistatus/internal/source"
)

// ProducerRole extracts status lines from input and sends them to the channel at path.
// When command is not empty, the status program is started by the role and input is
// ignored.
func ProducerRole(path string, priority int, queueSize int, command string, input io.Reader) Role {
	open := func() (io.WriteCloser, error) {
		f, err := channel.OpenWriter(path)
		if err != nil {
			return nil, err
		}
		return f, nil
	}

	return func(ctx context.Context) error {
		p := producer.New(priority, open, queueSize)
		slog.Info("Producing status lines", "role", "producer", "priority", priority, "channel", path)

		if command == "" {
			return p.Run(ctx, input)
		}

		src, err := source.Start(command)
		if err != nil {
			return err
		}
		defer func() { _ = src.Close() }()

		stop := context.AfterFunc(ctx, func() {
			_ = src.Stop()
		})
		defer stop()

		runErr := p.Run(ctx, src)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if runErr != nil {
			return runErr
		}
		if err := src.Wait(); err != nil {
			return fmt.Errorf("status command %q: %w", command, err)
		}
		slog.Info("Status command exited", "role", "producer", "pid", src.PID())
		return nil
	}
}

// ConsumerRole creates the channel at path, reads frames from it and writes the merged
// stream to output
func ConsumerRole(path string, timeout time.Duration, output io.Writer) Role {
	return func(ctx context.Context) error {
		if err := channel.Create(path); err != nil {
			return err
		}
		warnOtherConsumers(path)

		file, err := channel.OpenReader(path)
		if err != nil {
			return err
		}
		defer func() { _ = file.Close() }()

		// Closing the pipe is the only way to interrupt a blocked read
		stop := context.AfterFunc(ctx, func() {
			_ = file.Close()
		})
		defer stop()

		slog.Info("Merging status lines", "role", "consumer", "timeout", timeout, "channel", path)
		a := arbiter.New(output, timeout)
		err = a.Run(ctx, file)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}
}

// warnOtherConsumers logs when the channel already has a reader. Frames are then split
// between the consumers and neither shows a complete picture.
func warnOtherConsumers(path string) {
	hasReader, err := channel.HasReader(path)
	if err != nil || !hasReader {
		return
	}

	holders, err := channel.Holders(path)
	if err != nil {
		slog.Warn("Another consumer is attached to the channel", "channel", path)
		return
	}
	pids := make([]string, 0, len(holders))
	for _, h := range holders {
		if int(h.PID) == os.Getpid() {
			continue
		}
		pids = append(pids, fmt.Sprintf("%d(%s)", h.PID, h.Name))
	}
	slog.Warn("Another consumer is attached to the channel", "channel", path, "holders", strings.Join(pids, ","))
}
