package orchestrator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestOrchestrator_SingleModes(t *testing.T) {
	var producerRuns, consumerRuns atomic.Int32
	o := &Orchestrator{
		Producer: func(ctx context.Context) error {
			producerRuns.Add(1)
			return nil
		},
		Consumer: func(ctx context.Context) error {
			consumerRuns.Add(1)
			return errors.New("consumer failed")
		},
	}

	require.NoError(t, o.Run(context.Background(), ModeProducer))
	require.EqualError(t, o.Run(context.Background(), ModeConsumer), "consumer failed")
	require.Equal(t, int32(1), producerRuns.Load())
	require.Equal(t, int32(1), consumerRuns.Load())
}

func TestOrchestrator_UnknownMode(t *testing.T) {
	o := &Orchestrator{}
	require.ErrorContains(t, o.Run(context.Background(), Mode("sideways")), "unknown mode")
}

func TestOrchestrator_MissingRole(t *testing.T) {
	o := &Orchestrator{}
	require.ErrorContains(t, o.Run(context.Background(), ModeProducer), "not configured")
}

func TestOrchestrator_BothDelaysProducer(t *testing.T) {
	consumerStarted := make(chan time.Time, 1)
	producerStarted := make(chan time.Time, 1)

	o := &Orchestrator{
		StartupDelay: 100 * time.Millisecond,
		Consumer: func(ctx context.Context) error {
			consumerStarted <- time.Now()
			<-ctx.Done()
			return ctx.Err()
		},
		Producer: func(ctx context.Context) error {
			producerStarted <- time.Now()
			return nil
		},
	}

	require.NoError(t, o.Run(context.Background(), ModeBoth))

	consumerAt := <-consumerStarted
	producerAt := <-producerStarted
	require.GreaterOrEqual(t, producerAt.Sub(consumerAt), 90*time.Millisecond)
}

func TestOrchestrator_BothEndsWhenConsumerFails(t *testing.T) {
	var producerRuns atomic.Int32
	o := &Orchestrator{
		StartupDelay: time.Hour,
		Consumer: func(ctx context.Context) error {
			return errors.New("cannot create channel")
		},
		Producer: func(ctx context.Context) error {
			producerRuns.Add(1)
			return nil
		},
	}

	err := o.Run(context.Background(), ModeBoth)
	require.ErrorContains(t, err, "consumer failed: cannot create channel")
	require.Zero(t, producerRuns.Load(), "producer must not start after the consumer is gone")
}

func TestOrchestrator_BothEndsWhenProducerFinishes(t *testing.T) {
	consumerCancelled := make(chan struct{})
	o := &Orchestrator{
		StartupDelay: 10 * time.Millisecond,
		Consumer: func(ctx context.Context) error {
			<-ctx.Done()
			close(consumerCancelled)
			return ctx.Err()
		},
		Producer: func(ctx context.Context) error {
			return nil
		},
	}

	require.NoError(t, o.Run(context.Background(), ModeBoth))

	select {
	case <-consumerCancelled:
	case <-time.After(5 * time.Second):
		t.Fatal("consumer was not cancelled")
	}
}

func TestOrchestrator_BothDoesNotWaitForBlockedRole(t *testing.T) {
	block := make(chan struct{})
	defer close(block)

	o := &Orchestrator{
		StartupDelay: 0,
		Consumer: func(ctx context.Context) error {
			// Ignores cancellation, like a read that cannot be interrupted
			<-block
			return nil
		},
		Producer: func(ctx context.Context) error {
			return errors.New("bad input")
		},
	}

	done := make(chan error, 1)
	go func() {
		done <- o.Run(context.Background(), ModeBoth)
	}()

	select {
	case err := <-done:
		require.ErrorContains(t, err, "producer failed: bad input")
	case <-time.After(5 * time.Second):
		t.Fatal("Run waited for the blocked consumer")
	}
}

func TestOrchestrator_BothParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	o := &Orchestrator{
		StartupDelay: time.Hour,
		Consumer: func(ctx context.Context) error {
			<-ctx.Done()
			return ctx.Err()
		},
		Producer: func(ctx context.Context) error {
			return nil
		},
	}

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := o.Run(ctx, ModeBoth)
	require.ErrorIs(t, err, context.Canceled)
}
