package repository

import (
	"context"
	"fmt"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
)

// FollowRepository 关注列表：friends[follower][followee] = since
type FollowRepository interface {
	Create(ctx context.Context, f model.Follow) error
	Delete(ctx context.Context, follower, followee string) error
	Exists(ctx context.Context, follower, followee string) (bool, error)
	// ListFollowings returns at most limit edges ordered by followee.
	ListFollowings(ctx context.Context, follower string, limit int) ([]*model.Follow, error)
}

type followRepository struct {
	s store.ColumnStore
}

func NewFollowRepository(s store.ColumnStore) FollowRepository { return &followRepository{s: s} }

func (r *followRepository) Create(ctx context.Context, f model.Follow) error {
	// 幂等：重复关注只会覆盖 since
	return r.s.Insert(ctx, store.CFFriends, f.Follower, store.Column{Name: f.Followee, Value: encodeTime(f.CreatedAt)})
}

func (r *followRepository) Delete(ctx context.Context, follower, followee string) error {
	return r.s.Delete(ctx, store.CFFriends, follower, followee)
}

func (r *followRepository) Exists(ctx context.Context, follower, followee string) (bool, error) {
	return columnExists(ctx, r.s, store.CFFriends, follower, followee)
}

func (r *followRepository) ListFollowings(ctx context.Context, follower string, limit int) ([]*model.Follow, error) {
	cols, err := r.s.GetSlice(ctx, store.CFFriends, follower, store.SliceRange{Count: limit})
	if err != nil {
		return nil, err
	}
	res := make([]*model.Follow, 0, len(cols))
	for _, c := range cols {
		since, err := decodeTime(c.Value)
		if err != nil {
			return nil, fmt.Errorf("friends[%s][%s]: %w", follower, c.Name, err)
		}
		res = append(res, &model.Follow{Follower: follower, Followee: c.Name, CreatedAt: since})
	}
	return res, nil
}

// columnExists probes for one column: the reverse slice strictly below
// name+"\x00" starts at name itself when it is present.
func columnExists(ctx context.Context, s store.ColumnStore, cf, row, name string) (bool, error) {
	cols, err := s.GetSlice(ctx, cf, row, store.SliceRange{Start: name + "\x00", Count: 1, Reverse: true})
	if err != nil {
		return false, err
	}
	return len(cols) == 1 && cols[0].Name == name, nil
}
