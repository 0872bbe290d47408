package jobs

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRejectsBadSpec(t *testing.T) {
	s := NewScheduler(nil, 0)
	err := s.Add("broken", "not a cron line", func(context.Context) {})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "schedule broken")
	assert.Equal(t, 0, s.Len())
}

func TestSchedulerRunsTask(t *testing.T) {
	s := NewScheduler(nil, time.Second)
	var runs atomic.Int32
	require.NoError(t, s.Add("tick", "@every 1s", func(ctx context.Context) {
		_, hasDeadline := ctx.Deadline()
		if hasDeadline {
			runs.Add(1)
		}
	}))
	assert.Equal(t, 1, s.Len())

	s.Start()
	assert.Eventually(t, func() bool { return runs.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
