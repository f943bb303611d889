package server

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startEngine(t *testing.T, queueSize int) *Engine {
	t.Helper()
	engine := NewEngine(queueSize, zerolog.Nop())
	go engine.Run(context.Background())
	t.Cleanup(engine.Stop)
	return engine
}

func TestEngineRunsTasksInOrder(t *testing.T) {
	engine := startEngine(t, 16)
	ctx := context.Background()

	var got []int
	for i := 0; i < 10; i++ {
		require.NoError(t, engine.Submit(ctx, func(context.Context) { got = append(got, i) }))
	}
	// Do runs after everything submitted before it
	require.NoError(t, engine.Do(ctx, func(context.Context) {}))
	assert.Equal(t, []int{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestEngineSerializesConcurrentCallers(t *testing.T) {
	engine := startEngine(t, 4)
	ctx := context.Background()

	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, engine.Do(ctx, func(context.Context) { counter++ }))
		}()
	}
	wg.Wait()
	assert.Equal(t, 50, counter)
}

func TestEngineRecoversFromPanic(t *testing.T) {
	engine := startEngine(t, 4)
	ctx := context.Background()

	require.NoError(t, engine.Do(ctx, func(context.Context) { panic("boom") }))

	ran := false
	require.NoError(t, engine.Do(ctx, func(context.Context) { ran = true }))
	assert.True(t, ran)
}

func TestEngineSubmitWhenFull(t *testing.T) {
	engine := NewEngine(1, zerolog.Nop())
	ctx := context.Background()

	// nothing is running, so the single slot fills up
	require.NoError(t, engine.Submit(ctx, func(context.Context) {}))
	assert.ErrorIs(t, engine.Submit(ctx, func(context.Context) {}), ErrEngineBusy)

	go engine.Run(ctx)
	engine.Stop()
}

func TestEngineStop(t *testing.T) {
	engine := NewEngine(8, zerolog.Nop())
	ctx := context.Background()

	ran := false
	require.NoError(t, engine.Submit(ctx, func(context.Context) { ran = true }))
	go engine.Run(ctx)
	engine.Stop()

	assert.True(t, ran, "queued work is drained on stop")
	assert.ErrorIs(t, engine.Submit(ctx, func(context.Context) {}), ErrEngineStopped)
	assert.ErrorIs(t, engine.Do(ctx, func(context.Context) {}), ErrEngineStopped)

	// a second Stop is harmless
	engine.Stop()
}

func TestEngineStopsWithContext(t *testing.T) {
	engine := NewEngine(8, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		engine.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("engine did not stop")
	}
	assert.ErrorIs(t, engine.Do(context.Background(), func(context.Context) {}), ErrEngineStopped)
}

func TestEngineDoHonoursContextWhileQueueFull(t *testing.T) {
	engine := startEngine(t, 1)

	started, release := make(chan struct{}), make(chan struct{})
	require.NoError(t, engine.Submit(context.Background(), func(context.Context) {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, engine.Submit(context.Background(), func(context.Context) {}))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ran := false
	err := engine.Do(ctx, func(context.Context) { ran = true })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	close(release)

	require.NoError(t, engine.Do(context.Background(), func(context.Context) {}))
	assert.False(t, ran, "a task that never got a slot must not run")
}

func TestEngineDoWaitsForQueuedTaskAfterCancel(t *testing.T) {
	engine := startEngine(t, 4)

	release := make(chan struct{})
	require.NoError(t, engine.Submit(context.Background(), func(context.Context) { <-release }))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	go func() {
		<-ctx.Done()
		close(release)
	}()

	result := 0
	var taskErr error
	err := engine.Do(ctx, func(ctx context.Context) {
		result = 42
		taskErr = ctx.Err()
	})
	require.NoError(t, err)
	assert.Equal(t, 42, result)
	assert.NoError(t, taskErr, "a queued task runs with a context detached from the caller")
}

func TestEngineSubmitDuringStopNeverDropsAcceptedWork(t *testing.T) {
	for round := 0; round < 20; round++ {
		engine := NewEngine(8, zerolog.Nop())
		go engine.Run(context.Background())

		var (
			accepted atomic.Int64
			executed atomic.Int64
			wg       sync.WaitGroup
		)
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for j := 0; j < 50; j++ {
					if engine.Submit(context.Background(), func(context.Context) { executed.Add(1) }) == nil {
						accepted.Add(1)
					}
				}
			}()
		}
		engine.Stop()
		wg.Wait()

		assert.Equal(t, accepted.Load(), executed.Load(), "round %d", round)
	}
}
