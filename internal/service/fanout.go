package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// keyedMutex serialises work per key. Entries are dropped once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*refLock
}

type refLock struct {
	sync.Mutex
	refs int
}

func newKeyedMutex() *keyedMutex { return &keyedMutex{locks: make(map[string]*refLock)} }

// Lock blocks until key is free and returns its unlock func.
func (k *keyedMutex) Lock(key string) func() {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &refLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.Lock()
	return func() {
		l.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// fanOutTargets returns the lines a tweet by author is appended to, reading
// followers fresh. A failed follower read yields only the author's own lines
// plus a failure covering every follower timeline.
func (s *timelineService) fanOutTargets(ctx context.Context, author string) ([]model.LineRef, *FanOutFailure) {
	targets := []model.LineRef{
		model.UserlineOf(author),
		model.PublicLine(),
		model.TimelineOf(author),
	}
	fans, err := s.fans.ListFans(ctx, author, s.opts.FanOutFollowerLimit)
	if err != nil {
		return targets, &FanOutFailure{Line: model.TimelineOf(author), AllFollowers: true, Err: err}
	}
	if len(fans) == s.opts.FanOutFollowerLimit {
		logger.Warn("follower list truncated for fan-out",
			zap.String("author", author), zap.Int("limit", s.opts.FanOutFollowerLimit))
	}
	for _, f := range fans {
		if f.Fan == author {
			continue
		}
		targets = append(targets, model.TimelineOf(f.Fan))
	}
	return targets, nil
}

// fanOut appends tweet to every target line concurrently and waits for all
// appends. Failed appends are handed to the repair queue and returned as a
// *PartialFanOutError; nothing is retried or rolled back here.
func (s *timelineService) fanOut(ctx context.Context, tweet *model.Tweet) error {
	targets, readFailure := s.fanOutTargets(ctx, tweet.Username)
	entry := model.LineEntry{Key: tweet.ID, TweetID: tweet.ID}

	var (
		mu       sync.Mutex
		failures []FanOutFailure
	)
	if readFailure != nil {
		failures = append(failures, *readFailure)
	}

	var g errgroup.Group
	g.SetLimit(s.opts.FanOutConcurrency)
	for _, line := range targets {
		g.Go(func() error {
			if err := s.lines.Append(ctx, line, entry); err != nil {
				mu.Lock()
				failures = append(failures, FanOutFailure{Line: line, Err: err})
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if len(failures) == 0 {
		return nil
	}
	sort.Slice(failures, func(i, j int) bool { return failures[i].target() < failures[j].target() })
	attempted := len(targets)
	if readFailure != nil {
		attempted++
	}
	perr := &PartialFanOutError{TweetID: tweet.ID, Attempted: attempted, Failures: failures}
	logger.Warn("partial fan-out",
		zap.Stringer("tweet", tweet.ID),
		zap.String("author", tweet.Username),
		zap.Int("failed", len(failures)),
		zap.Int("attempted", attempted))
	s.enqueueRepairs(ctx, tweet, failures)
	return perr
}

func (s *timelineService) enqueueRepairs(ctx context.Context, tweet *model.Tweet, failures []FanOutFailure) {
	if s.repairs == nil {
		return
	}
	now := time.Now()
	for _, f := range failures {
		job := model.RepairJob{
			Line:         f.Line,
			TweetID:      tweet.ID,
			Author:       tweet.Username,
			AllFollowers: f.AllFollowers,
			EnqueuedAt:   now,
		}
		if err := s.repairs.Publish(ctx, job); err != nil {
			logger.Error("enqueue fan-out repair failed",
				zap.Stringer("line", f.Line), zap.Stringer("tweet", tweet.ID), zap.Error(err))
		}
	}
}
