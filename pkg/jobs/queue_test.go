package jobs

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

func TestQueueProcessesJobs(t *testing.T) {
	var mu sync.Mutex
	seen := map[string]int{}
	done := make(chan struct{}, 2)

	q := New[int]("test", func(_ context.Context, job Job[int]) error {
		mu.Lock()
		seen[job.ID] = job.Payload
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, nil, Config{Workers: 2})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[int]{ID: "a", Payload: 1}))
	require.NoError(t, q.Enqueue(Job[int]{ID: "b", Payload: 2}))

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("job not processed")
		}
	}
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"a": 1, "b": 2}, seen)
}

func TestQueueRetriesThenGivesUp(t *testing.T) {
	var calls int32
	gaveUp := make(chan Job[string], 1)

	q := New[string]("retry", func(context.Context, Job[string]) error {
		atomic.AddInt32(&calls, 1)
		return errors.New("renderer down")
	}, func(_ context.Context, job Job[string], _ error) {
		gaveUp <- job
	}, Config{MaxRetries: 2, RetryDelay: time.Millisecond})
	q.Start(context.Background())
	defer q.Stop()

	require.NoError(t, q.Enqueue(Job[string]{ID: "cert-1", Payload: "cert-1"}))

	select {
	case job := <-gaveUp:
		assert.Equal(t, "cert-1", job.ID)
		assert.Equal(t, 3, job.Attempt)
	case <-time.After(2 * time.Second):
		t.Fatal("give up callback not invoked")
	}
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueRejectsBeforeStart(t *testing.T) {
	q := New[int]("idle", func(context.Context, Job[int]) error { return nil }, nil, Config{})
	assert.Error(t, q.Enqueue(Job[int]{ID: "x"}))
}
