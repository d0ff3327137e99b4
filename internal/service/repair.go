package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/queue"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// FanOutRepairer 扇出补偿：消费失败的追加写并重放，超过次数后丢弃
type FanOutRepairer struct {
	lines         repository.LineRepository
	fans          repository.FanRepository
	q             queue.RepairQueue
	maxAttempts   int
	followerLimit int
	concurrency   int
	timeout       time.Duration
	retryDelay    time.Duration
	metricsCh     chan time.Duration
}

func NewFanOutRepairer(lines repository.LineRepository, fans repository.FanRepository, q queue.RepairQueue, maxAttempts, followerLimit int) *FanOutRepairer {
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	if followerLimit <= 0 {
		followerLimit = 5000
	}
	return &FanOutRepairer{
		lines:         lines,
		fans:          fans,
		q:             q,
		maxAttempts:   maxAttempts,
		followerLimit: followerLimit,
		concurrency:   64,
		timeout:       5 * time.Second,
		retryDelay:    100 * time.Millisecond,
		metricsCh:     make(chan time.Duration, 65536),
	}
}

// Start 启动若干 worker 消费补偿队列；返回停止函数
func (r *FanOutRepairer) Start(workers int) func(context.Context) error {
	if workers <= 0 {
		workers = 4
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := r.q.Consume(ctx, workers, r.Handle); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error("repair consumer stopped", zap.Error(err))
		}
	}()
	return func(stopCtx context.Context) error {
		cancel()
		select {
		case <-done:
			return nil
		case <-stopCtx.Done():
			return stopCtx.Err()
		}
	}
}

// Handle replays one repair job. Failures are requeued with Attempts+1 until
// maxAttempts is reached. When ctx ends first, Handle returns ctx.Err() and
// leaves the job to the queue untouched.
func (r *FanOutRepairer) Handle(ctx context.Context, job model.RepairJob) error {
	if job.Attempts > 0 {
		delay := r.retryDelay * time.Duration(1<<min(job.Attempts-1, 6))
		t := time.NewTimer(delay)
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		}
	}

	entry := model.LineEntry{Key: job.TweetID, TweetID: job.TweetID}
	if !job.AllFollowers {
		if err := r.appendLine(ctx, job.Line, entry); err != nil {
			return r.requeue(ctx, job, err)
		}
		r.observe(job)
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	fans, err := r.fans.ListFans(lctx, job.Author, r.followerLimit)
	cancel()
	if err != nil {
		return r.requeue(ctx, job, err)
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for _, f := range fans {
		if f.Fan == job.Author {
			continue
		}
		line := model.TimelineOf(f.Fan)
		g.Go(func() error {
			if err := r.appendLine(ctx, line, entry); err != nil {
				single := job
				single.Line = line
				single.AllFollowers = false
				err = r.requeue(ctx, single, err)
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		// the whole job is redelivered; appends are idempotent
		return ctx.Err()
	}
	if len(errs) == 0 {
		r.observe(job)
	}
	return errors.Join(errs...)
}

func (r *FanOutRepairer) appendLine(ctx context.Context, line model.LineRef, entry model.LineEntry) error {
	actx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	return r.lines.Append(actx, line, entry)
}

func (r *FanOutRepairer) requeue(ctx context.Context, job model.RepairJob, cause error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	job.Attempts++
	if job.Attempts >= r.maxAttempts {
		logger.Error("fan-out repair abandoned",
			zap.Stringer("line", job.Line), zap.Stringer("tweet", job.TweetID),
			zap.Int("attempts", job.Attempts), zap.Error(cause))
		return fmt.Errorf("repair %s abandoned: %w", job.Line, cause)
	}
	if err := r.q.Publish(ctx, job); err != nil {
		logger.Error("requeue fan-out repair failed", zap.Stringer("line", job.Line), zap.Error(err))
		return errors.Join(cause, err)
	}
	return cause
}

func (r *FanOutRepairer) observe(job model.RepairJob) {
	if job.EnqueuedAt.IsZero() {
		return
	}
	select {
	case r.metricsCh <- time.Since(job.EnqueuedAt):
	default:
	}
}

// Metrics 返回补偿落地耗时的只读通道（每成功一条发送一次）
func (r *FanOutRepairer) Metrics() <-chan time.Duration { return r.metricsCh }
