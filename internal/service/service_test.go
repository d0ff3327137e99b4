package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/queue"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/store/storetest"
)

type fixture struct {
	store *storetest.Faulty
	queue *queue.MemoryQueue

	lines repository.LineRepository
	fans  repository.FanRepository

	users    UserService
	rel      RelationshipService
	timeline TimelineService
}

func newFixture(t *testing.T, opts TimelineOptions) *fixture {
	t.Helper()
	rs, _ := storetest.NewMiniRedis(t)
	f := storetest.NewFaulty(rs)
	q := queue.NewMemoryQueue(100)
	t.Cleanup(func() { _ = q.Close() })

	userRepo := repository.NewUserRepository(f)
	lines := repository.NewLineRepository(f)
	fans := repository.NewFanRepository(f)
	follows := repository.NewFollowRepository(f)

	return &fixture{
		store:    f,
		queue:    q,
		lines:    lines,
		fans:     fans,
		users:    NewUserService(userRepo, bcrypt.MinCost),
		rel:      NewRelationshipService(userRepo, follows, fans, 0),
		timeline: NewTimelineService(userRepo, repository.NewTweetRepository(f, nil), lines, fans, q, opts),
	}
}

func (fx *fixture) register(t *testing.T, names ...string) {
	t.Helper()
	for _, n := range names {
		_, err := fx.users.Register(context.Background(), n, "secret")
		require.NoError(t, err)
	}
}

func (fx *fixture) post(t *testing.T, author, body string) ids.TimeID {
	t.Helper()
	tw, err := fx.timeline.PostTweet(context.Background(), author, body)
	require.NoError(t, err)
	return tw.ID
}

func tweetIDs(p *model.Page) []ids.TimeID {
	out := make([]ids.TimeID, len(p.Items))
	for i, it := range p.Items {
		out[i] = it.Tweet.ID
	}
	return out
}
