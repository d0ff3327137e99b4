package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/repository"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/pkg/logger"
)

// RelationshipService 关系链服务：friends 与 followers 两份互逆索引
type RelationshipService interface {
	Follow(ctx context.Context, from string, to []string) error
	Unfollow(ctx context.Context, from string, to []string) error
	// FriendsOf lists who user follows, ordered by username. limit <= 0
	// means the default bound.
	FriendsOf(ctx context.Context, user string, limit int) ([]string, error)
	FollowersOf(ctx context.Context, user string, limit int) ([]string, error)
	Friends(ctx context.Context, user string) ([]*model.User, error)
	Followers(ctx context.Context, user string) ([]*model.User, error)
	// FindInconsistentEdges returns edges touching user that are present in
	// only one of the two indexes.
	FindInconsistentEdges(ctx context.Context, user string) ([]model.Follow, error)
}

type relationshipService struct {
	users      repository.UserRepository
	followRepo repository.FollowRepository
	fanRepo    repository.FanRepository
	limit      int
}

// NewRelationshipService bounds every list read at limit (5000 when <= 0).
func NewRelationshipService(users repository.UserRepository, followRepo repository.FollowRepository, fanRepo repository.FanRepository, limit int) RelationshipService {
	if limit <= 0 {
		limit = 5000
	}
	return &relationshipService{users: users, followRepo: followRepo, fanRepo: fanRepo, limit: limit}
}

func dedupe(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

func (s *relationshipService) checkEdges(from string, to []string) ([]string, error) {
	if from == "" {
		return nil, ErrNotAuthenticated
	}
	to = dedupe(to)
	if len(to) == 0 {
		return nil, validationError("no users given")
	}
	for _, t := range to {
		if t == from {
			return nil, ErrFollowSelf
		}
	}
	return to, nil
}

// edgeOutcome collects per-edge results of a two-step write.
type edgeOutcome struct {
	mu           sync.Mutex
	errs         []error
	inconsistent []model.Follow
}

func (o *edgeOutcome) fail(err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.mu.Unlock()
}

func (o *edgeOutcome) oneSided(edge model.Follow, err error) {
	o.mu.Lock()
	o.errs = append(o.errs, err)
	o.inconsistent = append(o.inconsistent, edge)
	o.mu.Unlock()
}

func (o *edgeOutcome) err() error {
	if len(o.inconsistent) > 0 {
		sort.Slice(o.inconsistent, func(i, j int) bool { return o.inconsistent[i].Followee < o.inconsistent[j].Followee })
		return &InconsistentEdgeError{Edges: o.inconsistent, Err: errors.Join(o.errs...)}
	}
	return errors.Join(o.errs...)
}

func (s *relationshipService) Follow(ctx context.Context, from string, to []string) error {
	to, err := s.checkEdges(from, to)
	if err != nil {
		return err
	}
	known, err := s.users.MultiGet(ctx, append([]string{from}, to...))
	if err != nil {
		return err
	}
	for _, name := range append([]string{from}, to...) {
		if _, ok := known[name]; !ok {
			return fmt.Errorf("user %q: %w", name, store.ErrNotFound)
		}
	}

	since := time.Now().UTC()
	var (
		out edgeOutcome
		g   errgroup.Group
	)
	for _, t := range to {
		g.Go(func() error {
			edge := model.Follow{Follower: from, Followee: t, CreatedAt: since}
			if err := s.followRepo.Create(ctx, edge); err != nil {
				out.fail(fmt.Errorf("friends[%s][%s]: %w", from, t, err))
				return nil
			}
			if err := s.fanRepo.Create(ctx, model.Fan{Username: t, Fan: from, CreatedAt: since}); err != nil {
				logger.Warn("follow left one-sided edge", zap.String("from", from), zap.String("to", t), zap.Error(err))
				out.oneSided(edge, fmt.Errorf("followers[%s][%s]: %w", t, from, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out.err()
}

func (s *relationshipService) Unfollow(ctx context.Context, from string, to []string) error {
	to, err := s.checkEdges(from, to)
	if err != nil {
		return err
	}
	var (
		out edgeOutcome
		g   errgroup.Group
	)
	for _, t := range to {
		g.Go(func() error {
			if err := s.followRepo.Delete(ctx, from, t); err != nil {
				out.fail(fmt.Errorf("friends[%s][%s]: %w", from, t, err))
				return nil
			}
			if err := s.fanRepo.Delete(ctx, t, from); err != nil {
				logger.Warn("unfollow left one-sided edge", zap.String("from", from), zap.String("to", t), zap.Error(err))
				out.oneSided(model.Follow{Follower: from, Followee: t}, fmt.Errorf("followers[%s][%s]: %w", t, from, err))
			}
			return nil
		})
	}
	_ = g.Wait()
	return out.err()
}

func (s *relationshipService) bound(limit int) int {
	if limit <= 0 || limit > s.limit {
		return s.limit
	}
	return limit
}

func (s *relationshipService) FriendsOf(ctx context.Context, user string, limit int) ([]string, error) {
	items, err := s.followRepo.ListFollowings(ctx, user, s.bound(limit))
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.Followee
	}
	return res, nil
}

func (s *relationshipService) FollowersOf(ctx context.Context, user string, limit int) ([]string, error) {
	items, err := s.fanRepo.ListFans(ctx, user, s.bound(limit))
	if err != nil {
		return nil, err
	}
	res := make([]string, len(items))
	for i, it := range items {
		res[i] = it.Fan
	}
	return res, nil
}

func (s *relationshipService) Friends(ctx context.Context, user string) ([]*model.User, error) {
	names, err := s.FriendsOf(ctx, user, 0)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, names)
}

func (s *relationshipService) Followers(ctx context.Context, user string) ([]*model.User, error) {
	names, err := s.FollowersOf(ctx, user, 0)
	if err != nil {
		return nil, err
	}
	return s.lookup(ctx, names)
}

// lookup keeps the order of names and skips users that no longer exist.
func (s *relationshipService) lookup(ctx context.Context, names []string) ([]*model.User, error) {
	if len(names) == 0 {
		return []*model.User{}, nil
	}
	found, err := s.users.MultiGet(ctx, names)
	if err != nil {
		return nil, err
	}
	res := make([]*model.User, 0, len(found))
	for _, n := range names {
		if u, ok := found[n]; ok {
			res = append(res, u)
		}
	}
	return res, nil
}

func (s *relationshipService) FindInconsistentEdges(ctx context.Context, user string) ([]model.Follow, error) {
	var res []model.Follow

	friends, err := s.followRepo.ListFollowings(ctx, user, s.limit)
	if err != nil {
		return nil, err
	}
	for _, f := range friends {
		ok, err := s.fanRepo.Exists(ctx, f.Followee, user)
		if err != nil {
			return nil, err
		}
		if !ok {
			res = append(res, *f)
		}
	}

	fans, err := s.fanRepo.ListFans(ctx, user, s.limit)
	if err != nil {
		return nil, err
	}
	for _, f := range fans {
		ok, err := s.followRepo.Exists(ctx, f.Fan, user)
		if err != nil {
			return nil, err
		}
		if !ok {
			res = append(res, f.Edge())
		}
	}
	return res, nil
}
