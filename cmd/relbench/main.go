package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/internal/model"
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

func main() {
	cfg := must(config.Load())
	ctx := context.Background()
	cs := must(store.Open(ctx, cfg))
	defer cs.Close()
	if err := cs.InitSchema(ctx); err != nil {
		panic(err)
	}

	userRepo := repository.NewUserRepository(cs)
	followRepo := repository.NewFollowRepository(cs)
	fanRepo := repository.NewFanRepository(cs)

	N := 10000
	if s := os.Getenv("N"); s != "" {
		if n, err := strconv.Atoi(s); err == nil && n > 0 {
			N = n
		}
	}
	CONC := 1
	if s := os.Getenv("CONC"); s != "" {
		if c, err := strconv.Atoi(s); err == nil && c > 0 {
			CONC = c
		}
	}
	PAGE := 50
	if s := os.Getenv("PAGE"); s != "" {
		if p, err := strconv.Atoi(s); err == nil && p > 0 {
			PAGE = p
		}
	}
	relSvc := service.NewRelationshipService(userRepo, followRepo, fanRepo, N+1)

	// seed users: celeb is followed by everyone else
	run := time.Now().UnixNano()
	now := time.Now().UTC()
	celeb := fmt.Sprintf("celeb%d", run)
	if err := userRepo.Create(ctx, &model.User{Username: celeb, PasswordHash: []byte("p"), CreatedAt: now}); err != nil {
		panic(err)
	}
	users := make([]string, N)
	for i := 0; i < N; i++ {
		users[i] = fmt.Sprintf("u%d_%d", run, i)
		if err := userRepo.Create(ctx, &model.User{Username: users[i], PasswordHash: []byte("p"), CreatedAt: now}); err != nil {
			panic(err)
		}
	}

	// service path: user check + friends write + followers write
	t0 := time.Now()
	workers := CONC
	if workers > N {
		workers = N
	}
	feed := make(chan int, N)
	for i := 0; i < N; i++ {
		feed <- i
	}
	close(feed)
	recCh := make(chan time.Duration, N)
	errCount := make(chan int, workers)
	for w := 0; w < workers; w++ {
		go func() {
			failed := 0
			for i := range feed {
				st := time.Now()
				if err := relSvc.Follow(ctx, users[i], []string{celeb}); err != nil {
					failed++
				}
				recCh <- time.Since(st)
			}
			errCount <- failed
		}()
	}
	failed := 0
	for w := 0; w < workers; w++ {
		failed += <-errCount
	}
	close(recCh)
	followRecs := make([]time.Duration, 0, N)
	for d := range recCh {
		followRecs = append(followRecs, d)
	}
	followDur := time.Since(t0)

	// raw path: the two edge writes alone, reverse direction
	t1 := time.Now()
	for i := 0; i < N; i++ {
		_ = followRepo.Create(ctx, model.Follow{Follower: celeb, Followee: users[i], CreatedAt: now})
		_ = fanRepo.Create(ctx, model.Fan{Username: users[i], Fan: celeb, CreatedAt: now})
	}
	rawDur := time.Since(t1)

	// queries
	q0 := time.Now()
	_, _ = relSvc.FollowersOf(ctx, celeb, PAGE)
	fansDur := time.Since(q0)

	q1 := time.Now()
	_, _ = relSvc.FriendsOf(ctx, celeb, PAGE)
	friendsDur := time.Since(q1)

	q2 := time.Now()
	bad, _ := relSvc.FindInconsistentEdges(ctx, celeb)
	auditDur := time.Since(q2)

	pct := func(vs []time.Duration, p float64) time.Duration {
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

	fmt.Printf("N=%d, CONC=%d, PAGE=%d, driver=%s\n", N, CONC, PAGE, cfg.Store.Driver)
	fmt.Printf("Follow latency total: %v, per op: %v, p50: %v, p95: %v, p99: %v, failed: %d\n",
		followDur, followDur/time.Duration(N), pct(followRecs, 0.50), pct(followRecs, 0.95), pct(followRecs, 0.99), failed)
	fmt.Printf("Raw edge writes (2 per edge) total: %v, per op: %v\n", rawDur, rawDur/time.Duration(N))
	fmt.Printf("Query followers(%d) latency: %v\n", PAGE, fansDur)
	fmt.Printf("Query friends(%d) latency: %v\n", PAGE, friendsDur)
	fmt.Printf("Inconsistent edge audit: %v, found=%d\n", auditDur, len(bad))
}
