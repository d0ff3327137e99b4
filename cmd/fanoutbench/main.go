package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/d60-Lab/twissandra/config"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/service"
	"github.com/d60-Lab/twissandra/internal/store"
)

// fanoutbench compares PostTweet latency for one author across fan-out
// concurrency levels. CONCS is a comma separated list, e.g. CONCS=1,8,64.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	ctx := context.Background()
	cs, err := store.Open(ctx, cfg)
	if err != nil {
		panic(err)
	}
	defer cs.Close()
	if err := cs.InitSchema(ctx); err != nil {
		panic(err)
	}

	FANS := 500
	if s := os.Getenv("FANS"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			FANS = v
		}
	}
	REPEAT := 50
	if s := os.Getenv("REPEAT"); s != "" {
		if v, e := strconv.Atoi(s); e == nil && v > 0 {
			REPEAT = v
		}
	}
	concs := []int{1, 8, 64}
	if s := os.Getenv("CONCS"); s != "" {
		concs = concs[:0]
		for _, f := range strings.Split(s, ",") {
			if v, e := strconv.Atoi(strings.TrimSpace(f)); e == nil && v > 0 {
				concs = append(concs, v)
			}
		}
	}

	users := repository.NewUserRepository(cs)
	fans := repository.NewFanRepository(cs)
	tweets := repository.NewTweetRepository(cs, nil)
	lines := repository.NewLineRepository(cs)

	author := fmt.Sprintf("fanout%d", time.Now().UnixNano())
	now := time.Now().UTC()
	if err := users.Create(ctx, &model.User{Username: author, PasswordHash: []byte("x"), CreatedAt: now}); err != nil {
		panic(err)
	}
	for i := 0; i < FANS; i++ {
		if err := fans.Create(ctx, model.Fan{Username: author, Fan: fmt.Sprintf("%s_f%d", author, i), CreatedAt: now}); err != nil {
			panic(err)
		}
	}

	pct := func(vs []time.Duration, p float64) time.Duration {
		xs := append([]time.Duration(nil), vs...)
		sort.Slice(xs, func(i, j int) bool { return xs[i] < xs[j] })
		k := int(float64(len(xs)) * p)
		if k < 0 {
			k = 0
		}
		if k >= len(xs) {
			k = len(xs) - 1
		}
		return xs[k]
	}

	fmt.Printf("FANS=%d REPEAT=%d driver=%s\n", FANS, REPEAT, cfg.Store.Driver)
	for _, c := range concs {
		svc := service.NewTimelineService(users, tweets, lines, fans, nil, service.TimelineOptions{
			FanOutConcurrency:   c,
			FanOutFollowerLimit: FANS + 1,
		})
		durations := make([]time.Duration, 0, REPEAT)
		failed := 0
		for i := 0; i < REPEAT; i++ {
			st := time.Now()
			if _, err := svc.PostTweet(ctx, author, fmt.Sprintf("c%d #%d", c, i)); err != nil {
				failed++
			}
			durations = append(durations, time.Since(st))
		}
		var sum time.Duration
		for _, d := range durations {
			sum += d
		}
		fmt.Printf("Fan-out concurrency %3d: avg=%v p95=%v p99=%v failed=%d\n",
			c, sum/time.Duration(len(durations)), pct(durations, 0.95), pct(durations, 0.99), failed)
	}
}
