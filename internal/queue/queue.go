// Package queue carries fan-out repair jobs from the write path to the
// repair workers.
package queue

import (
	"context"
	"errors"

	"github.com/d60-Lab/twissandra/internal/model"
)

var (
	ErrQueueFull = errors.New("repair queue full")
	ErrClosed    = errors.New("repair queue closed")
)

// Handler processes one job. Delivery is at-least-once; a job is
// acknowledged once its handler returns, unless the handler was cut short by
// the end of the consumer context, in which case the job goes back on the
// queue.
type Handler func(ctx context.Context, job model.RepairJob) error

// interrupted reports whether a handler error comes from ctx ending rather
// than from the job itself.
func interrupted(ctx context.Context, err error) bool {
	if err == nil || ctx.Err() == nil {
		return false
	}
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

type RepairQueue interface {
	Publish(ctx context.Context, job model.RepairJob) error
	// Consume runs handle on workers goroutines until ctx ends or the queue
	// is closed, then waits for in-flight handlers.
	Consume(ctx context.Context, workers int, handle Handler) error
	Close() error
}
