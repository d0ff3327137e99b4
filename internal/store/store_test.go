package store_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/internal/store/storetest"
)

func backends(t *testing.T) map[string]store.ColumnStore {
	rs, _ := storetest.NewMiniRedis(t)
	return map[string]store.ColumnStore{
		"sqlite": storetest.NewSQLite(t),
		"redis":  rs,
	}
}

func names(cols []store.Column) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = c.Name
	}
	return out
}

func TestColumnStoreContract(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, s.Insert(ctx, store.CFTimeline, "alice",
				store.Column{Name: "b", Value: []byte("2")},
				store.Column{Name: "a", Value: []byte("1")},
				store.Column{Name: "d", Value: []byte("4")},
				store.Column{Name: "c", Value: []byte("3")},
			))

			t.Run("reverse slice from the end", func(t *testing.T) {
				cols, err := s.GetSlice(ctx, store.CFTimeline, "alice", store.SliceRange{Count: 3, Reverse: true})
				require.NoError(t, err)
				assert.Equal(t, []string{"d", "c", "b"}, names(cols))
				assert.Equal(t, []byte("4"), cols[0].Value)
			})

			t.Run("reverse slice start is exclusive", func(t *testing.T) {
				cols, err := s.GetSlice(ctx, store.CFTimeline, "alice", store.SliceRange{Start: "c", Count: 10, Reverse: true})
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "a"}, names(cols))
			})

			t.Run("forward slice start is exclusive", func(t *testing.T) {
				cols, err := s.GetSlice(ctx, store.CFTimeline, "alice", store.SliceRange{Start: "a", Count: 2})
				require.NoError(t, err)
				assert.Equal(t, []string{"b", "c"}, names(cols))
			})

			t.Run("absent row is empty", func(t *testing.T) {
				cols, err := s.GetSlice(ctx, store.CFTimeline, "nobody", store.SliceRange{Count: 5, Reverse: true})
				require.NoError(t, err)
				assert.Empty(t, cols)
			})

			t.Run("insert overwrites same name", func(t *testing.T) {
				require.NoError(t, s.Insert(ctx, store.CFUsers, "bob", store.Column{Name: "password", Value: []byte("x")}))
				require.NoError(t, s.Insert(ctx, store.CFUsers, "bob", store.Column{Name: "password", Value: []byte("y")}))
				rows, err := s.MultiGet(ctx, store.CFUsers, []string{"bob"})
				require.NoError(t, err)
				v, ok := store.Value(rows["bob"], "password")
				require.True(t, ok)
				assert.Equal(t, []byte("y"), v)
			})

			t.Run("multiget omits absent rows", func(t *testing.T) {
				require.NoError(t, s.Insert(ctx, store.CFTweets, "t1",
					store.Column{Name: "username", Value: []byte("alice")},
					store.Column{Name: "body", Value: []byte("hi")},
				))
				rows, err := s.MultiGet(ctx, store.CFTweets, []string{"t1", "t2"})
				require.NoError(t, err)
				assert.Len(t, rows, 1)
				assert.Equal(t, []string{"body", "username"}, names(rows["t1"]))
			})

			t.Run("delete removes columns", func(t *testing.T) {
				require.NoError(t, s.Delete(ctx, store.CFTimeline, "alice", "c", "missing"))
				cols, err := s.GetSlice(ctx, store.CFTimeline, "alice", store.SliceRange{Count: 10})
				require.NoError(t, err)
				assert.Equal(t, []string{"a", "b", "d"}, names(cols))
			})

			t.Run("unknown family", func(t *testing.T) {
				err := s.Insert(ctx, "orders", "x", store.Column{Name: "a"})
				assert.ErrorIs(t, err, store.ErrUnknownFamily)
			})
		})
	}
}

func TestRedisStoreUnavailableWhenServerGone(t *testing.T) {
	s, mr := storetest.NewMiniRedis(t)
	mr.Close()

	_, err := s.GetSlice(context.Background(), store.CFTimeline, "alice", store.SliceRange{Count: 1, Reverse: true})
	assert.ErrorIs(t, err, store.ErrUnavailable)
}

func TestWithRetryRecoversFromUnavailable(t *testing.T) {
	f := storetest.NewFaulty(storetest.NewSQLite(t))
	f.FailTimes(storetest.OpInsert, store.CFTimeline, "", store.ErrUnavailable, 2)
	s := store.WithRetry(f, store.RetryOptions{MaxAttempts: 3, InitialInterval: 1, MaxInterval: 1})

	err := s.Insert(context.Background(), store.CFTimeline, "alice", store.Column{Name: "a", Value: []byte("1")})
	require.NoError(t, err)
	assert.Len(t, f.Calls(storetest.OpInsert, store.CFTimeline), 3)
}

func TestWithRetryGivesUpAfterMaxAttempts(t *testing.T) {
	f := storetest.NewFaulty(storetest.NewSQLite(t))
	f.Fail(storetest.OpDelete, "", "", store.ErrUnavailable)
	s := store.WithRetry(f, store.RetryOptions{MaxAttempts: 2, InitialInterval: 1, MaxInterval: 1})

	err := s.Delete(context.Background(), store.CFFriends, "alice", "bob")
	assert.ErrorIs(t, err, store.ErrUnavailable)
	assert.Len(t, f.Calls(storetest.OpDelete, ""), 2)
}

func TestWithRetryDoesNotRetryLogicalErrors(t *testing.T) {
	boom := errors.New("constraint violated")
	f := storetest.NewFaulty(storetest.NewSQLite(t))
	f.Fail(storetest.OpInsert, "", "", boom)
	s := store.WithRetry(f, store.RetryOptions{MaxAttempts: 5})

	err := s.Insert(context.Background(), store.CFUsers, "alice", store.Column{Name: "password"})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, f.Calls(storetest.OpInsert, ""), 1)
}
