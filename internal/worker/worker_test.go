package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerPool_RunsTasks(t *testing.T) {
	wp := NewWorkerPool(3, 100, zerolog.Nop())
	var ran atomic.Int32

	for i := 0; i < 50; i++ {
		require.True(t, wp.Submit(func(ctx context.Context) error {
			ran.Add(1)
			if ran.Load()%10 == 0 {
				return errors.New("boom")
			}
			return nil
		}))
	}

	require.NoError(t, wp.Shutdown(context.Background()))
	assert.EqualValues(t, 50, ran.Load())
}

func TestWorkerPool_DropsWhenFull(t *testing.T) {
	wp := NewWorkerPool(1, 1, zerolog.Nop())
	block := make(chan struct{})
	started := make(chan struct{})

	require.True(t, wp.Submit(func(ctx context.Context) error {
		close(started)
		<-block
		return nil
	}))
	<-started
	require.True(t, wp.Submit(func(ctx context.Context) error { return nil }))
	assert.False(t, wp.Submit(func(ctx context.Context) error { return nil }))

	close(block)
	require.NoError(t, wp.Shutdown(context.Background()))
}

func TestWorkerPool_SubmitAfterShutdown(t *testing.T) {
	wp := NewWorkerPool(1, 1, zerolog.Nop())
	require.NoError(t, wp.Shutdown(context.Background()))
	require.NoError(t, wp.Shutdown(context.Background()))

	assert.False(t, wp.Submit(func(ctx context.Context) error { return nil }))
}

func TestWorkerPool_ShutdownTimeoutCancelsTasks(t *testing.T) {
	wp := NewWorkerPool(1, 1, zerolog.Nop())
	cancelled := make(chan struct{})
	started := make(chan struct{})
	wp.Submit(func(ctx context.Context) error {
		close(started)
		<-ctx.Done()
		close(cancelled)
		return ctx.Err()
	})
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, wp.Shutdown(ctx), context.DeadlineExceeded)

	select {
	case <-cancelled:
	case <-time.After(time.Second):
		t.Fatal("task context not cancelled")
	}
}
