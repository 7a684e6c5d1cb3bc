package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrigger_UnknownJob(t *testing.T) {
	s := New(nil)
	_, err := s.Trigger(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestTrigger_ReturnsReportAndError(t *testing.T) {
	boom := errors.New("boom")
	s := New(nil,
		Job{Name: "ok", Run: func(context.Context) (any, error) { return 3, nil }},
		Job{Name: "bad", Run: func(context.Context) (any, error) { return nil, boom }},
	)
	assert.Equal(t, []string{"bad", "ok"}, s.Names())

	res, err := s.Trigger(context.Background(), "ok")
	require.NoError(t, err)
	assert.Equal(t, 3, res)

	_, err = s.Trigger(context.Background(), "bad")
	assert.ErrorIs(t, err, boom)
}

func TestTrigger_ConcurrentCallsShareOneRun(t *testing.T) {
	var runs atomic.Int32
	release := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	s := New(nil, Job{Name: "slow", Run: func(context.Context) (any, error) {
		runs.Add(1)
		once.Do(func() { close(started) })
		<-release
		return "done", nil
	}})

	var wg sync.WaitGroup
	results := make([]any, 2)
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.Trigger(context.Background(), "slow")
	}()
	<-started
	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.Trigger(context.Background(), "slow")
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), runs.Load())
	assert.Equal(t, []any{"done", "done"}, results)
}

func TestStart_RunsPeriodicJobsUntilCancelled(t *testing.T) {
	var ticks atomic.Int32
	var manual atomic.Int32
	s := New(nil,
		Job{Name: "tick", Every: 5 * time.Millisecond, Run: func(context.Context) (any, error) {
			ticks.Add(1)
			return nil, errors.New("keeps going")
		}},
		Job{Name: "manual", Run: func(context.Context) (any, error) {
			manual.Add(1)
			return nil, nil
		}},
	)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	assert.Eventually(t, func() bool { return ticks.Load() >= 3 }, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
	assert.Zero(t, manual.Load())
}
