package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// MemoryQueue 进程内有界队列，满时丢弃并告警
type MemoryQueue struct {
	ch        chan model.RepairJob
	done      chan struct{}
	closeOnce sync.Once
}

func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 10000
	}
	return &MemoryQueue{ch: make(chan model.RepairJob, size), done: make(chan struct{})}
}

func (q *MemoryQueue) Publish(_ context.Context, job model.RepairJob) error {
	select {
	case <-q.done:
		return ErrClosed
	default:
	}
	select {
	case q.ch <- job:
		return nil
	default:
		logger.Warn("repair queue full, drop job",
			zap.Stringer("line", job.Line), zap.Stringer("tweet", job.TweetID))
		return ErrQueueFull
	}
}

func (q *MemoryQueue) Consume(ctx context.Context, workers int, handle Handler) error {
	if workers <= 0 {
		workers = 1
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				if ctx.Err() != nil {
					return
				}
				select {
				case job := <-q.ch:
					err := handle(ctx, job)
					if interrupted(ctx, err) {
						q.putBack(job)
						return
					}
					if err != nil {
						logger.Debug("repair handler failed", zap.Stringer("line", job.Line), zap.Error(err))
					}
				case <-ctx.Done():
					return
				case <-q.done:
					return
				}
			}
		}()
	}
	wg.Wait()
	return ctx.Err()
}

// putBack returns an interrupted job to the queue, even after Close, so a
// later consumer still sees it.
func (q *MemoryQueue) putBack(job model.RepairJob) {
	select {
	case q.ch <- job:
	default:
		logger.Warn("repair queue full, drop interrupted job",
			zap.Stringer("line", job.Line), zap.Stringer("tweet", job.TweetID))
	}
}

// Len 返回当前队列长度（采样值）
func (q *MemoryQueue) Len() int { return len(q.ch) }

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
