package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/d60-Lab/twissandra/internal/cache"
	"github.com/d60-Lab/twissandra/internal/ids"
	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

type TweetRepository interface {
	Save(ctx context.Context, t *model.Tweet) error
	Get(ctx context.Context, id ids.TimeID) (*model.Tweet, error)
	// MultiGet returns the tweets that exist; unknown ids are absent.
	MultiGet(ctx context.Context, tweetIDs []ids.TimeID) (map[ids.TimeID]*model.Tweet, error)
}

type tweetRepository struct {
	s     store.ColumnStore
	cache cache.Cache
}

// NewTweetRepository reads through c before the store. Tweets are immutable
// so cached entries never go stale. A nil c disables caching.
func NewTweetRepository(s store.ColumnStore, c cache.Cache) TweetRepository {
	if c == nil {
		c = cache.Nop{}
	}
	return &tweetRepository{s: s, cache: c}
}

func (r *tweetRepository) Save(ctx context.Context, t *model.Tweet) error {
	return r.s.Insert(ctx, store.CFTweets, t.ID.String(),
		store.Column{Name: colUsername, Value: []byte(t.Username)},
		store.Column{Name: colBody, Value: []byte(t.Body)},
		store.Column{Name: colCreatedAt, Value: encodeTime(t.CreatedAt)},
	)
}

func (r *tweetRepository) Get(ctx context.Context, id ids.TimeID) (*model.Tweet, error) {
	tweets, err := r.MultiGet(ctx, []ids.TimeID{id})
	if err != nil {
		return nil, err
	}
	t, ok := tweets[id]
	if !ok {
		return nil, fmt.Errorf("tweet %s: %w", id, store.ErrNotFound)
	}
	return t, nil
}

func (r *tweetRepository) MultiGet(ctx context.Context, tweetIDs []ids.TimeID) (map[ids.TimeID]*model.Tweet, error) {
	res := make(map[ids.TimeID]*model.Tweet, len(tweetIDs))
	if len(tweetIDs) == 0 {
		return res, nil
	}
	keys := make([]string, len(tweetIDs))
	for i, id := range tweetIDs {
		keys[i] = id.String()
	}

	if hits, err := r.cache.GetMulti(ctx, keys); err != nil {
		logger.Warn("tweet cache get failed", zap.Int("keys", len(keys)), zap.Error(err))
	} else {
		for _, payload := range hits {
			var t model.Tweet
			if err := json.Unmarshal(payload, &t); err == nil {
				res[t.ID] = &t
			}
		}
	}

	missing := make([]string, 0, len(keys))
	for i, id := range tweetIDs {
		if _, ok := res[id]; !ok {
			missing = append(missing, keys[i])
		}
	}
	if len(missing) == 0 {
		return res, nil
	}

	rows, err := r.s.MultiGet(ctx, store.CFTweets, missing)
	if err != nil {
		return nil, err
	}
	fill := make(map[string][]byte, len(rows))
	for key, cols := range rows {
		t, err := decodeTweet(key, cols)
		if err != nil {
			return nil, err
		}
		res[t.ID] = t
		if payload, err := json.Marshal(t); err == nil {
			fill[key] = payload
		}
	}
	if err := r.cache.SetMulti(ctx, fill); err != nil {
		logger.Warn("tweet cache fill failed", zap.Int("keys", len(fill)), zap.Error(err))
	}
	return res, nil
}

func decodeTweet(key string, cols []store.Column) (*model.Tweet, error) {
	id, err := ids.Parse(key)
	if err != nil {
		return nil, fmt.Errorf("tweet row %q: %w", key, err)
	}
	username, _ := store.Value(cols, colUsername)
	body, _ := store.Value(cols, colBody)
	created, err := timeColumn(cols, colCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("tweet %s: %w", key, err)
	}
	return &model.Tweet{ID: id, Username: string(username), Body: string(body), CreatedAt: created}, nil
}
