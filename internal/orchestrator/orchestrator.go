// Package orchestrator runs the producer and consumer roles in the selected mode.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Mode selects which roles run in this process
type Mode string

const (
	ModeProducer Mode = "producer"
	ModeConsumer Mode = "consumer"
	ModeBoth     Mode = "both"
)

// Role is one side of the channel. It runs until its input ends, it fails, or ctx is
// cancelled.
type Role func(ctx context.Context) error

// Orchestrator starts roles according to a Mode
type Orchestrator struct {
	Producer Role
	Consumer Role

	// StartupDelay postpones the producer in ModeBoth so that the consumer has created
	// and opened the channel before the producer first writes to it.
	StartupDelay time.Duration
}

type result struct {
	role string
	err  error
}

// Run runs the roles of mode. In ModeBoth it returns as soon as either role finishes and
// cancels the context of the other one; it does not wait for the other role to
// return, since a role blocked reading its input cannot always be interrupted.
func (o *Orchestrator) Run(ctx context.Context, mode Mode) error {
	switch mode {
	case ModeProducer:
		return runRole(ctx, "producer", o.Producer)
	case ModeConsumer:
		return runRole(ctx, "consumer", o.Consumer)
	case ModeBoth:
		return o.runBoth(ctx)
	default:
		return fmt.Errorf("unknown mode %q", mode)
	}
}

func (o *Orchestrator) runBoth(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Buffered so that the role finishing second never blocks
	results := make(chan result, 2)

	go func() {
		results <- result{role: "consumer", err: runRole(ctx, "consumer", o.Consumer)}
	}()

	go func() {
		timer := time.NewTimer(o.StartupDelay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			results <- result{role: "producer", err: ctx.Err()}
			return
		}
		results <- result{role: "producer", err: runRole(ctx, "producer", o.Producer)}
	}()

	first := <-results
	if first.err != nil {
		return fmt.Errorf("%s failed: %w", first.role, first.err)
	}
	slog.Info("Role finished, shutting down", "role", first.role)
	return nil
}

func runRole(ctx context.Context, name string, role Role) error {
	if role == nil {
		return fmt.Errorf("%s role is not configured", name)
	}
	slog.Debug("Starting role", "role", name)
	err := role(ctx)
	if err != nil {
		slog.Error("Role failed", "role", name, "error", err)
	} else {
		slog.Debug("Role finished", "role", name)
	}
	return err
}
