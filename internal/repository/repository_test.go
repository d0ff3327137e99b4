package repository

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/internal/store/storetest"
)

type mapCache struct {
	data map[string][]byte
	gets int
}

func (c *mapCache) GetMulti(_ context.Context, keys []string) (map[string][]byte, error) {
	c.gets++
	out := map[string][]byte{}
	for _, k := range keys {
		if v, ok := c.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

func (c *mapCache) SetMulti(_ context.Context, items map[string][]byte) error {
	for k, v := range items {
		c.data[k] = v
	}
	return nil
}

func TestUserRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewUserRepository(storetest.NewSQLite(t))
	created := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Create(ctx, &model.User{Username: "alice", PasswordHash: []byte("h1"), CreatedAt: created}))
	require.NoError(t, repo.Create(ctx, &model.User{Username: "bob", PasswordHash: []byte("h2"), CreatedAt: created}))

	u, err := repo.Get(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, []byte("h1"), u.PasswordHash)
	assert.True(t, created.Equal(u.CreatedAt))

	_, err = repo.Get(ctx, "carol")
	assert.ErrorIs(t, err, store.ErrNotFound)

	users, err := repo.MultiGet(ctx, []string{"alice", "carol", "bob"})
	require.NoError(t, err)
	assert.Len(t, users, 2)
	assert.Equal(t, "bob", users["bob"].Username)
}

func TestTweetRepositoryReadsThroughCache(t *testing.T) {
	ctx := context.Background()
	c := &mapCache{data: map[string][]byte{}}
	f := storetest.NewFaulty(storetest.NewSQLite(t))
	repo := NewTweetRepository(f, c)

	id, err := ids.New()
	require.NoError(t, err)
	tw := &model.Tweet{ID: id, Username: "alice", Body: "hello", CreatedAt: id.Time()}
	require.NoError(t, repo.Save(ctx, tw))

	got, err := repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "hello", got.Body)
	assert.Contains(t, c.data, id.String())

	var cached model.Tweet
	require.NoError(t, json.Unmarshal(c.data[id.String()], &cached))
	assert.Equal(t, id, cached.ID)

	// second read is served by the cache
	before := len(f.Calls(storetest.OpMultiGet, store.CFTweets))
	_, err = repo.Get(ctx, id)
	require.NoError(t, err)
	assert.Len(t, f.Calls(storetest.OpMultiGet, store.CFTweets), before)

	missing, _ := ids.New()
	_, err = repo.Get(ctx, missing)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLineRepositorySlice(t *testing.T) {
	ctx := context.Background()
	repo := NewLineRepository(storetest.NewSQLite(t))
	line := model.TimelineOf("alice")

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var keys []ids.TimeID
	for i := 0; i < 5; i++ {
		id, err := ids.At(base.Add(time.Duration(i) * time.Second))
		require.NoError(t, err)
		keys = append(keys, id)
		require.NoError(t, repo.Append(ctx, line, model.LineEntry{Key: id, TweetID: id}))
	}

	got, err := repo.Slice(ctx, line, ids.Zero, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, keys[4], got[0].Key)
	assert.Equal(t, keys[2], got[2].TweetID)

	got, err = repo.Slice(ctx, line, keys[2], 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, keys[1], got[0].Key)
	assert.Equal(t, keys[0], got[1].Key)

	got, err = repo.Slice(ctx, model.UserlineOf("alice"), ids.Zero, 10)
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = repo.Slice(ctx, model.LineRef{Kind: "inbox", Key: "alice"}, ids.Zero, 1)
	assert.ErrorIs(t, err, store.ErrUnknownFamily)
}

func TestFollowAndFanRepositories(t *testing.T) {
	rs, _ := storetest.NewMiniRedis(t)
	for name, s := range map[string]store.ColumnStore{"sqlite": storetest.NewSQLite(t), "redis": rs} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			follows := NewFollowRepository(s)
			fans := NewFanRepository(s)
			since := time.Date(2024, 2, 2, 0, 0, 0, 0, time.UTC)

			for _, to := range []string{"carol", "bob", "bo"} {
				require.NoError(t, follows.Create(ctx, model.Follow{Follower: "alice", Followee: to, CreatedAt: since}))
				require.NoError(t, fans.Create(ctx, model.Fan{Username: to, Fan: "alice", CreatedAt: since}))
			}

			list, err := follows.ListFollowings(ctx, "alice", 10)
			require.NoError(t, err)
			require.Len(t, list, 3)
			assert.Equal(t, "bo", list[0].Followee)
			assert.Equal(t, "bob", list[1].Followee)
			assert.True(t, since.Equal(list[2].CreatedAt))

			limited, err := follows.ListFollowings(ctx, "alice", 1)
			require.NoError(t, err)
			assert.Len(t, limited, 1)

			ok, err := follows.Exists(ctx, "alice", "bob")
			require.NoError(t, err)
			assert.True(t, ok)
			ok, err = follows.Exists(ctx, "alice", "b")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, follows.Delete(ctx, "alice", "bob"))
			ok, err = follows.Exists(ctx, "alice", "bob")
			require.NoError(t, err)
			assert.False(t, ok)

			fanList, err := fans.ListFans(ctx, "bob", 10)
			require.NoError(t, err)
			require.Len(t, fanList, 1)
			assert.Equal(t, model.Follow{Follower: "alice", Followee: "bob", CreatedAt: fanList[0].CreatedAt}, fanList[0].Edge())
			ok, err = fans.Exists(ctx, "bob", "alice")
			require.NoError(t, err)
			assert.True(t, ok)
		})
	}
}
