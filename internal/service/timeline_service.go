package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/queue"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// TimelineOptions tunes the fan-out and page paths. Zero fields take the
// values of DefaultTimelineOptions.
type TimelineOptions struct {
	MaxBodyLength       int
	DefaultPageSize     int
	MaxPageSize         int
	FanOutConcurrency   int
	FanOutFollowerLimit int
	ResolveBatchSize    int
	ResolveTimeout      time.Duration
	// SerializeAuthorFanOut holds a per-author lock from id allocation to the
	// end of fan-out, so one author's tweets land in every line in post order.
	SerializeAuthorFanOut bool
}

func DefaultTimelineOptions() TimelineOptions {
	return TimelineOptions{
		MaxBodyLength:         140,
		DefaultPageSize:       40,
		MaxPageSize:           100,
		FanOutConcurrency:     64,
		FanOutFollowerLimit:   5000,
		ResolveBatchSize:      20,
		ResolveTimeout:        500 * time.Millisecond,
		SerializeAuthorFanOut: true,
	}
}

func (o TimelineOptions) withDefaults() TimelineOptions {
	d := DefaultTimelineOptions()
	if o.MaxBodyLength <= 0 {
		o.MaxBodyLength = d.MaxBodyLength
	}
	if o.MaxPageSize <= 0 {
		o.MaxPageSize = d.MaxPageSize
	}
	if o.DefaultPageSize <= 0 || o.DefaultPageSize > o.MaxPageSize {
		o.DefaultPageSize = min(d.DefaultPageSize, o.MaxPageSize)
	}
	if o.FanOutConcurrency <= 0 {
		o.FanOutConcurrency = d.FanOutConcurrency
	}
	if o.FanOutFollowerLimit <= 0 {
		o.FanOutFollowerLimit = d.FanOutFollowerLimit
	}
	if o.ResolveBatchSize <= 0 {
		o.ResolveBatchSize = d.ResolveBatchSize
	}
	if o.ResolveTimeout <= 0 {
		o.ResolveTimeout = d.ResolveTimeout
	}
	return o
}

// TimelineService 时间线服务：写扩散发推 + 分页读取
type TimelineService interface {
	// PostTweet saves the tweet and fans it out. A *PartialFanOutError comes
	// back together with the saved tweet when some appends failed.
	PostTweet(ctx context.Context, author, body string) (*model.Tweet, error)
	// PostTweetAt is PostTweet with the tweet timestamp supplied by the caller.
	PostTweetAt(ctx context.Context, author, body string, at time.Time) (*model.Tweet, error)
	GetTweet(ctx context.Context, id ids.TimeID) (*model.Tweet, error)

	GetUserline(ctx context.Context, username, cursor string, limit int) (*model.Page, error)
	GetTimeline(ctx context.Context, username, cursor string, limit int) (*model.Page, error)
	GetPublicLine(ctx context.Context, cursor string, limit int) (*model.Page, error)
	// Page returns up to limit entries of line strictly older than cursor,
	// newest first.
	Page(ctx context.Context, line model.LineRef, cursor string, limit int) (*model.Page, error)

	Options() TimelineOptions
}

type timelineService struct {
	users   repository.UserRepository
	tweets  repository.TweetRepository
	lines   repository.LineRepository
	fans    repository.FanRepository
	repairs queue.RepairQueue

	opts        TimelineOptions
	authorLocks *keyedMutex
	tracer      trace.Tracer
}

// NewTimelineService wires the engine to its stores. repairs may be nil, in
// which case failed appends are only reported.
func NewTimelineService(
	users repository.UserRepository,
	tweets repository.TweetRepository,
	lines repository.LineRepository,
	fans repository.FanRepository,
	repairs queue.RepairQueue,
	opts TimelineOptions,
) TimelineService {
	return &timelineService{
		users:       users,
		tweets:      tweets,
		lines:       lines,
		fans:        fans,
		repairs:     repairs,
		opts:        opts.withDefaults(),
		authorLocks: newKeyedMutex(),
		tracer:      otel.Tracer("github.com/d60-Lab/twissandra/internal/service"),
	}
}

func (s *timelineService) Options() TimelineOptions { return s.opts }

func (s *timelineService) PostTweet(ctx context.Context, author, body string) (*model.Tweet, error) {
	return s.PostTweetAt(ctx, author, body, time.Time{})
}

func (s *timelineService) PostTweetAt(ctx context.Context, author, body string, at time.Time) (_ *model.Tweet, err error) {
	ctx, span := s.tracer.Start(ctx, "TimelineService.PostTweet", trace.WithAttributes(attribute.String("author", author)))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if author == "" {
		return nil, ErrNotAuthenticated
	}
	if err := validateBody(body, s.opts.MaxBodyLength); err != nil {
		return nil, err
	}
	if _, err := s.users.Get(ctx, author); err != nil {
		return nil, fmt.Errorf("author %q: %w", author, err)
	}

	if s.opts.SerializeAuthorFanOut {
		unlock := s.authorLocks.Lock(author)
		defer unlock()
	}

	var id ids.TimeID
	if at.IsZero() {
		id, err = ids.New()
	} else {
		id, err = ids.At(at)
	}
	if err != nil {
		return nil, fmt.Errorf("allocate tweet id: %w", err)
	}
	created := at.UTC()
	if at.IsZero() {
		created = id.Time()
	}
	tweet := &model.Tweet{ID: id, Username: author, Body: body, CreatedAt: created}
	span.SetAttributes(attribute.String("tweet.id", id.String()))

	if err := s.tweets.Save(ctx, tweet); err != nil {
		return nil, fmt.Errorf("save tweet: %w", err)
	}

	// the tweet is durable; finish the fan-out even if the caller goes away
	if err := s.fanOut(context.WithoutCancel(ctx), tweet); err != nil {
		return tweet, err
	}
	return tweet, nil
}

func (s *timelineService) GetTweet(ctx context.Context, id ids.TimeID) (*model.Tweet, error) {
	return s.tweets.Get(ctx, id)
}

func (s *timelineService) GetUserline(ctx context.Context, username, cursor string, limit int) (*model.Page, error) {
	return s.Page(ctx, model.UserlineOf(username), cursor, limit)
}

func (s *timelineService) GetTimeline(ctx context.Context, username, cursor string, limit int) (*model.Page, error) {
	return s.Page(ctx, model.TimelineOf(username), cursor, limit)
}

func (s *timelineService) GetPublicLine(ctx context.Context, cursor string, limit int) (*model.Page, error) {
	return s.Page(ctx, model.PublicLine(), cursor, limit)
}

func (s *timelineService) Page(ctx context.Context, line model.LineRef, cursor string, limit int) (_ *model.Page, err error) {
	ctx, span := s.tracer.Start(ctx, "TimelineService.Page", trace.WithAttributes(
		attribute.String("line", line.String()),
		attribute.Int("limit", limit),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if limit < 1 || limit > s.opts.MaxPageSize {
		return nil, validationError("limit must be in [1, %d], got %d", s.opts.MaxPageSize, limit)
	}
	var before ids.TimeID
	if cursor != "" {
		if before, err = ids.Parse(cursor); err != nil {
			return nil, validationError("bad cursor %q", cursor)
		}
	}

	// one extra entry tells "exactly limit" apart from "more than limit"
	entries, err := s.lines.Slice(ctx, line, before, limit+1)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", line, err)
	}
	page := &model.Page{Items: []model.TimelineItem{}}
	if len(entries) > limit {
		entries = entries[:limit]
		page.NextCursor = entries[limit-1].Key.String()
	}
	if len(entries) == 0 {
		return page, nil
	}

	tweetIDs := make([]ids.TimeID, 0, len(entries))
	seen := make(map[ids.TimeID]struct{}, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.TweetID]; !ok {
			seen[e.TweetID] = struct{}{}
			tweetIDs = append(tweetIDs, e.TweetID)
		}
	}
	tweets := resolveBatches(ctx, s, "tweets", tweetIDs, s.tweets.MultiGet)

	authors := make([]string, 0, len(tweets))
	seenAuthor := make(map[string]struct{}, len(tweets))
	for _, id := range tweetIDs {
		t, ok := tweets[id]
		if !ok {
			continue
		}
		if _, dup := seenAuthor[t.Username]; !dup {
			seenAuthor[t.Username] = struct{}{}
			authors = append(authors, t.Username)
		}
	}
	users := resolveBatches(ctx, s, "users", authors, s.users.MultiGet)

	page.Items = make([]model.TimelineItem, 0, len(entries))
	for _, e := range entries {
		t, ok := tweets[e.TweetID]
		if !ok {
			page.Unresolved++
			continue
		}
		u, ok := users[t.Username]
		if !ok {
			page.Unresolved++
			continue
		}
		page.Items = append(page.Items, model.TimelineItem{Key: e.Key, Tweet: *t, Author: *u})
	}
	if page.Unresolved > 0 {
		logger.Warn("page entries unresolved",
			zap.Stringer("line", line), zap.Int("unresolved", page.Unresolved), zap.Int("entries", len(entries)))
	}
	span.SetAttributes(attribute.Int("items", len(page.Items)), attribute.Int("unresolved", page.Unresolved))
	return page, nil
}

// resolveBatches multi-gets keys in concurrent chunks, each bounded by the
// resolve timeout. A failed or timed-out chunk is logged and left out of the
// result.
func resolveBatches[K comparable, V any](
	ctx context.Context,
	s *timelineService,
	what string,
	keys []K,
	fetch func(context.Context, []K) (map[K]V, error),
) map[K]V {
	out := make(map[K]V, len(keys))
	if len(keys) == 0 {
		return out
	}
	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	for start := 0; start < len(keys); start += s.opts.ResolveBatchSize {
		chunk := keys[start:min(start+s.opts.ResolveBatchSize, len(keys))]
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(ctx, s.opts.ResolveTimeout)
			defer cancel()
			res, err := fetch(cctx, chunk)
			if err != nil {
				logger.Warn("resolve batch failed",
					zap.String("what", what), zap.Int("keys", len(chunk)), zap.Error(err))
				return nil
			}
			mu.Lock()
			for k, v := range res {
				out[k] = v
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}
