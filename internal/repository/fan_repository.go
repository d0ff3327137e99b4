package repository

import (
	"context"
	"fmt"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
)

// FanRepository 粉丝列表，冗余自关注：followers[username][fan] = since
type FanRepository interface {
	Create(ctx context.Context, f model.Fan) error
	Delete(ctx context.Context, username, fan string) error
	Exists(ctx context.Context, username, fan string) (bool, error)
	// ListFans returns at most limit fans ordered by name.
	ListFans(ctx context.Context, username string, limit int) ([]*model.Fan, error)
}

type fanRepository struct{ s store.ColumnStore }

func NewFanRepository(s store.ColumnStore) FanRepository { return &fanRepository{s: s} }

func (r *fanRepository) Create(ctx context.Context, f model.Fan) error {
	return r.s.Insert(ctx, store.CFFollowers, f.Username, store.Column{Name: f.Fan, Value: encodeTime(f.CreatedAt)})
}

func (r *fanRepository) Delete(ctx context.Context, username, fan string) error {
	return r.s.Delete(ctx, store.CFFollowers, username, fan)
}

func (r *fanRepository) Exists(ctx context.Context, username, fan string) (bool, error) {
	return columnExists(ctx, r.s, store.CFFollowers, username, fan)
}

func (r *fanRepository) ListFans(ctx context.Context, username string, limit int) ([]*model.Fan, error) {
	cols, err := r.s.GetSlice(ctx, store.CFFollowers, username, store.SliceRange{Count: limit})
	if err != nil {
		return nil, err
	}
	res := make([]*model.Fan, 0, len(cols))
	for _, c := range cols {
		since, err := decodeTime(c.Value)
		if err != nil {
			return nil, fmt.Errorf("followers[%s][%s]: %w", username, c.Name, err)
		}
		res = append(res, &model.Fan{Username: username, Fan: c.Name, CreatedAt: since})
	}
	return res, nil
}
