package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/internal/store/storetest"
)

func TestRepairerRequeuesUntilMaxAttempts(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	r := NewFanOutRepairer(fx.lines, fx.fans, fx.queue, 2, 0)
	r.retryDelay = 0

	id, err := ids.New()
	require.NoError(t, err)
	fx.store.Fail(storetest.OpInsert, store.CFTimeline, "bob", store.ErrUnavailable)

	job := model.RepairJob{Line: model.TimelineOf("bob"), TweetID: id, Author: "alice"}
	err = r.Handle(ctx, job)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	require.Equal(t, 1, fx.queue.Len())

	// second failure reaches the attempt limit and is dropped
	job.Attempts = 1
	err = r.Handle(ctx, job)
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Equal(t, 1, fx.queue.Len())
}

func TestRepairerAppendsSingleLine(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	r := NewFanOutRepairer(fx.lines, fx.fans, fx.queue, 3, 0)

	id, err := ids.New()
	require.NoError(t, err)
	require.NoError(t, r.Handle(ctx, model.RepairJob{Line: model.TimelineOf("bob"), TweetID: id, Author: "alice"}))

	entries, err := fx.lines.Slice(ctx, model.TimelineOf("bob"), ids.Zero, 10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].TweetID)
	assert.Zero(t, fx.queue.Len())
}

func TestRepairerShutdownKeepsDelayedJob(t *testing.T) {
	fx := newFixture(t, DefaultTimelineOptions())
	r := NewFanOutRepairer(fx.lines, fx.fans, fx.queue, 5, 0)
	r.retryDelay = time.Hour

	id, err := ids.New()
	require.NoError(t, err)
	job := model.RepairJob{Line: model.TimelineOf("bob"), TweetID: id, Author: "alice", Attempts: 2}
	require.NoError(t, fx.queue.Publish(context.Background(), job))

	stop := r.Start(1)
	require.Eventually(t, func() bool { return fx.queue.Len() == 0 }, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, stop(stopCtx))

	// still queued, attempt count untouched, nothing written
	require.Equal(t, 1, fx.queue.Len())
	assert.Empty(t, fx.store.Calls(storetest.OpInsert, store.CFTimeline))

	ctx, cancelConsume := context.WithCancel(context.Background())
	defer cancelConsume()
	got := make(chan model.RepairJob, 1)
	go func() {
		_ = fx.queue.Consume(ctx, 1, func(_ context.Context, j model.RepairJob) error {
			got <- j
			return nil
		})
	}()
	select {
	case j := <-got:
		assert.Equal(t, job, j)
	case <-time.After(time.Second):
		t.Fatal("delayed job was lost on shutdown")
	}
}

func TestRepairerReplaysAllFollowers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	r := NewFanOutRepairer(fx.lines, fx.fans, fx.queue, 3, 0)
	r.concurrency = 2

	fans := []string{"bob", "carol", "dave", "erin", "frank"}
	for _, f := range fans {
		require.NoError(t, fx.fans.Create(ctx, model.Fan{Username: "alice", Fan: f, CreatedAt: time.Now().UTC()}))
	}
	fx.store.Fail(storetest.OpInsert, store.CFTimeline, "dave", store.ErrUnavailable)

	id, err := ids.New()
	require.NoError(t, err)
	err = r.Handle(ctx, model.RepairJob{Line: model.TimelineOf("alice"), TweetID: id, Author: "alice", AllFollowers: true})
	assert.ErrorIs(t, err, store.ErrUnavailable)

	for _, f := range fans {
		entries, err := fx.lines.Slice(ctx, model.TimelineOf(f), ids.Zero, 10)
		require.NoError(t, err)
		if f == "dave" {
			assert.Empty(t, entries)
			continue
		}
		require.Len(t, entries, 1, f)
		assert.Equal(t, id, entries[0].TweetID)
	}

	// only the failed follower is retried, as a single-line job
	require.Equal(t, 1, fx.queue.Len())
	qctx, cancel := context.WithCancel(ctx)
	defer cancel()
	got := make(chan model.RepairJob, 1)
	go func() {
		_ = fx.queue.Consume(qctx, 1, func(_ context.Context, j model.RepairJob) error {
			got <- j
			return nil
		})
	}()
	select {
	case j := <-got:
		assert.Equal(t, model.TimelineOf("dave"), j.Line)
		assert.False(t, j.AllFollowers)
		assert.Equal(t, 1, j.Attempts)
	case <-time.After(time.Second):
		t.Fatal("no retry job for the failed follower")
	}
}
