package store

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/pkg/logger"
)

// RetryOptions bounds the retries applied to unavailable-store errors.
type RetryOptions struct {
	MaxAttempts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// retryStore retries calls that fail with ErrUnavailable using exponential
// backoff. Logical errors are returned on the first attempt.
type retryStore struct {
	next ColumnStore
	opts RetryOptions
}

// WithRetry wraps next so every operation is retried on ErrUnavailable.
// Zero fields in opts fall back to 3 attempts, 50ms, 1s.
func WithRetry(next ColumnStore, opts RetryOptions) ColumnStore {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialInterval <= 0 {
		opts.InitialInterval = 50 * time.Millisecond
	}
	if opts.MaxInterval <= 0 {
		opts.MaxInterval = time.Second
	}
	return &retryStore{next: next, opts: opts}
}

func do[T any](ctx context.Context, s *retryStore, op string, fn func() (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.InitialInterval
	b.MaxInterval = s.opts.MaxInterval

	return backoff.Retry(ctx, func() (T, error) {
		v, err := fn()
		if err != nil && !errors.Is(err, ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.opts.MaxAttempts),
		backoff.WithNotify(func(err error, next time.Duration) {
			logger.Debug("store retry", zap.String("op", op), zap.Duration("backoff", next), zap.Error(err))
		}),
	)
}

func (s *retryStore) GetSlice(ctx context.Context, cf, row string, r SliceRange) ([]Column, error) {
	return do(ctx, s, "get_slice", func() ([]Column, error) {
		return s.next.GetSlice(ctx, cf, row, r)
	})
}

func (s *retryStore) MultiGet(ctx context.Context, cf string, rows []string) (map[string][]Column, error) {
	return do(ctx, s, "multiget", func() (map[string][]Column, error) {
		return s.next.MultiGet(ctx, cf, rows)
	})
}

func (s *retryStore) Insert(ctx context.Context, cf, row string, cols ...Column) error {
	_, err := do(ctx, s, "insert", func() (struct{}, error) {
		return struct{}{}, s.next.Insert(ctx, cf, row, cols...)
	})
	return err
}

func (s *retryStore) Delete(ctx context.Context, cf, row string, names ...string) error {
	_, err := do(ctx, s, "delete", func() (struct{}, error) {
		return struct{}{}, s.next.Delete(ctx, cf, row, names...)
	})
	return err
}

func (s *retryStore) InitSchema(ctx context.Context) error {
	_, err := do(ctx, s, "init_schema", func() (struct{}, error) {
		return struct{}{}, s.next.InitSchema(ctx)
	})
	return err
}

func (s *retryStore) Close() error { return s.next.Close() }
