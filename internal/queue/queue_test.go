package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
)

func TestMemoryQueueDeliversToWorkers(t *testing.T) {
	q := NewMemoryQueue(16)
	ctx, cancel := context.WithCancel(context.Background())

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Publish(ctx, model.RepairJob{Line: model.TimelineOf("bob"), Attempts: i}))
	}

	var (
		mu   sync.Mutex
		seen []int
	)
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 3, func(_ context.Context, job model.RepairJob) error {
			mu.Lock()
			seen = append(seen, job.Attempts)
			mu.Unlock()
			return nil
		})
	}()

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 5
	}, time.Second, 5*time.Millisecond)
	assert.ElementsMatch(t, []int{0, 1, 2, 3, 4}, seen)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestMemoryQueueFullAndClosed(t *testing.T) {
	q := NewMemoryQueue(1)
	ctx := context.Background()

	require.NoError(t, q.Publish(ctx, model.RepairJob{}))
	assert.ErrorIs(t, q.Publish(ctx, model.RepairJob{}), ErrQueueFull)
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Publish(ctx, model.RepairJob{}), ErrClosed)
	require.NoError(t, q.Close())
}

func TestEncodeJobIsPersistentJSON(t *testing.T) {
	id, err := ids.New()
	require.NoError(t, err)
	job := model.RepairJob{Line: model.PublicLine(), TweetID: id, Author: "alice", EnqueuedAt: time.Now().UTC()}

	msg, err := encodeJob(job)
	require.NoError(t, err)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "application/json", msg.ContentType)

	var back model.RepairJob
	require.NoError(t, json.Unmarshal(msg.Body, &back))
	assert.Equal(t, job.Line, back.Line)
	assert.Equal(t, id, back.TweetID)
}

func TestMemoryQueueReturnsInterruptedJob(t *testing.T) {
	q := NewMemoryQueue(4)
	job := model.RepairJob{Line: model.TimelineOf("bob"), Author: "alice", Attempts: 2}
	require.NoError(t, q.Publish(context.Background(), job))

	ctx, cancel := context.WithCancel(context.Background())
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- q.Consume(ctx, 1, func(ctx context.Context, _ model.RepairJob) error {
			close(started)
			<-ctx.Done()
			return ctx.Err()
		})
	}()

	<-started
	assert.Zero(t, q.Len())
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.Equal(t, 1, q.Len())

	// the next consumer gets the job unchanged
	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	got := make(chan model.RepairJob, 1)
	go func() {
		_ = q.Consume(ctx2, 1, func(_ context.Context, j model.RepairJob) error {
			got <- j
			return nil
		})
	}()
	select {
	case j := <-got:
		assert.Equal(t, job, j)
	case <-time.After(time.Second):
		t.Fatal("job was not redelivered")
	}
}

func TestInterrupted(t *testing.T) {
	live := context.Background()
	ended, cancel := context.WithCancel(context.Background())
	cancel()

	assert.True(t, interrupted(ended, context.Canceled))
	assert.True(t, interrupted(ended, fmt.Errorf("append: %w", context.DeadlineExceeded)))
	assert.False(t, interrupted(ended, nil))
	assert.False(t, interrupted(ended, errors.New("store down")))
	// a handler's own timeout is a job failure while the consumer is live
	assert.False(t, interrupted(live, context.DeadlineExceeded))
}
