package repository

import (
	"context"
	"fmt"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
)

type UserRepository interface {
	Create(ctx context.Context, u *model.User) error
	Get(ctx context.Context, username string) (*model.User, error)
	// MultiGet returns the users that exist; unknown names are absent.
	MultiGet(ctx context.Context, usernames []string) (map[string]*model.User, error)
}

type userRepository struct {
	s store.ColumnStore
}

func NewUserRepository(s store.ColumnStore) UserRepository { return &userRepository{s: s} }

func (r *userRepository) Create(ctx context.Context, u *model.User) error {
	return r.s.Insert(ctx, store.CFUsers, u.Username,
		store.Column{Name: colPassword, Value: u.PasswordHash},
		store.Column{Name: colCreatedAt, Value: encodeTime(u.CreatedAt)},
	)
}

func (r *userRepository) Get(ctx context.Context, username string) (*model.User, error) {
	users, err := r.MultiGet(ctx, []string{username})
	if err != nil {
		return nil, err
	}
	u, ok := users[username]
	if !ok {
		return nil, fmt.Errorf("user %q: %w", username, store.ErrNotFound)
	}
	return u, nil
}

func (r *userRepository) MultiGet(ctx context.Context, usernames []string) (map[string]*model.User, error) {
	rows, err := r.s.MultiGet(ctx, store.CFUsers, usernames)
	if err != nil {
		return nil, err
	}
	res := make(map[string]*model.User, len(rows))
	for name, cols := range rows {
		u, err := decodeUser(name, cols)
		if err != nil {
			return nil, err
		}
		res[name] = u
	}
	return res, nil
}

func decodeUser(username string, cols []store.Column) (*model.User, error) {
	hash, _ := store.Value(cols, colPassword)
	created, err := timeColumn(cols, colCreatedAt)
	if err != nil {
		return nil, fmt.Errorf("user %q: %w", username, err)
	}
	return &model.User{Username: username, PasswordHash: hash, CreatedAt: created}, nil
}
