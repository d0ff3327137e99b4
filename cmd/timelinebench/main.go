package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/queue"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/service"
	"github.com/d60-Lab/twissandra/internal/store"
)

func must[T any](v T, err error) T {
	if err != nil {
		panic(err)
	}
	return v
}

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func pct(vs []time.Duration, p float64) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	xs := append([]time.Duration(nil), vs...)
	sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
	k := int(math.Ceil(p*float64(len(xs)))) - 1
	if k < 0 {
		k = 0
	}
	if k >= len(xs) {
		k = len(xs) - 1
	}
	return xs[k]
}

func avg(vs []time.Duration) time.Duration {
	if len(vs) == 0 {
		return 0
	}
	var sum time.Duration
	for _, d := range vs {
		sum += d
	}
	return sum / time.Duration(len(vs))
}

func envInt(name string, def int) int {
	if s := os.Getenv(name); s != "" {
		if v, err := strconv.Atoi(s); err == nil && v > 0 {
			return v
		}
	}
	return def
}

func main() {
	cfg := must(config.Load())
	ctx := context.Background()
	cs := must(store.Open(ctx, cfg))
	defer cs.Close()
	check(cs.InitSchema(ctx))

	// params
	N := envInt("N", 2000)        // followers of the author
	POSTS := envInt("POSTS", 100) // tweets to post
	CONC := envInt("CONC", cfg.Timeline.FanOutConcurrency)
	PAGE := envInt("PAGE", cfg.Timeline.DefaultPageSize)
	WORKERS := envInt("WORKERS", cfg.Repair.Workers)

	userRepo := repository.NewUserRepository(cs)
	followRepo := repository.NewFollowRepository(cs)
	fanRepo := repository.NewFanRepository(cs)
	lineRepo := repository.NewLineRepository(cs)
	repairs := queue.NewMemoryQueue(cfg.Repair.QueueSize)
	defer repairs.Close()

	timelineSvc := service.NewTimelineService(userRepo, repository.NewTweetRepository(cs, nil), lineRepo, fanRepo, repairs,
		service.TimelineOptions{
			FanOutConcurrency:     CONC,
			FanOutFollowerLimit:   N + 1,
			MaxPageSize:           max(PAGE, cfg.Timeline.MaxPageSize),
			SerializeAuthorFanOut: true,
		})
	repairer := service.NewFanOutRepairer(lineRepo, fanRepo, repairs, cfg.Repair.MaxAttempts, N+1)
	stop := repairer.Start(WORKERS)
	defer stop(context.Background())

	// seed one author and N followers; edges go straight to the repositories
	// to skip the user checks of the relationship service
	run := time.Now().UnixNano()
	author := fmt.Sprintf("author%d", run)
	now := time.Now().UTC()
	check(userRepo.Create(ctx, &model.User{Username: author, PasswordHash: []byte("x"), CreatedAt: now}))
	fans := make([]string, N)
	for i := range fans {
		fans[i] = fmt.Sprintf("f%d_%d", run, i)
		check(userRepo.Create(ctx, &model.User{Username: fans[i], PasswordHash: []byte("x"), CreatedAt: now}))
		check(followRepo.Create(ctx, model.Follow{Follower: fans[i], Followee: author, CreatedAt: now}))
		check(fanRepo.Create(ctx, model.Fan{Username: author, Fan: fans[i], CreatedAt: now}))
	}

	// post
	postDurations := make([]time.Duration, 0, POSTS)
	partial, failedAppends := 0, 0
	for i := 0; i < POSTS; i++ {
		st := time.Now()
		_, err := timelineSvc.PostTweet(ctx, author, fmt.Sprintf("hello %d", i))
		postDurations = append(postDurations, time.Since(st))
		var pe *service.PartialFanOutError
		switch {
		case errors.As(err, &pe):
			partial++
			failedAppends += len(pe.Failures)
		case err != nil:
			panic(err)
		}
	}

	// wait for the repairer to replay failed appends
	repaired := make([]time.Duration, 0, failedAppends)
	timeout := time.After(time.Minute)
COLLECT:
	for len(repaired) < failedAppends {
		select {
		case d := <-repairer.Metrics():
			repaired = append(repaired, d)
		case <-timeout:
			fmt.Printf("timeout while waiting for repairs: got=%d want=%d\n", len(repaired), failedAppends)
			break COLLECT
		}
	}

	fmt.Printf("N=%d POSTS=%d CONC=%d PAGE=%d driver=%s\n", N, POSTS, CONC, PAGE, cfg.Store.Driver)
	fmt.Printf("PostTweet latency (%d lines each): avg=%v p50=%v p95=%v p99=%v\n",
		N+3, avg(postDurations), pct(postDurations, 0.50), pct(postDurations, 0.95), pct(postDurations, 0.99))
	fmt.Printf("Partial fan-outs: %d, failed appends: %d\n", partial, failedAppends)
	if len(repaired) > 0 {
		fmt.Printf("Repair landing: samples=%d avg=%v p95=%v p99=%v\n", len(repaired), avg(repaired), pct(repaired, 0.95), pct(repaired, 0.99))
	}

	// walk one follower's timeline to the end
	if N > 0 {
		var (
			pages  []time.Duration
			items  int
			cursor string
		)
		for {
			st := time.Now()
			page := must(timelineSvc.GetTimeline(ctx, fans[0], cursor, PAGE))
			pages = append(pages, time.Since(st))
			items += len(page.Items)
			if page.NextCursor == "" {
				break
			}
			cursor = page.NextCursor
		}
		fmt.Printf("Timeline read (%s, limit=%d): pages=%d items=%d avg=%v p95=%v\n",
			fans[0], PAGE, len(pages), items, avg(pages), pct(pages, 0.95))
	}

	st := time.Now()
	page := must(timelineSvc.GetPublicLine(ctx, "", PAGE))
	fmt.Printf("Public line first page: %v, items=%d\n", time.Since(st), len(page.Items))
}
