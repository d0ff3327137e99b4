package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/d60-Lab/twissandra/internal/model"
	"github.com/d60-Lab/twissandra/internal/store"
	"github.com/d60-Lab/twissandra/internal/store/storetest"
)

func TestFollowUnfollowKeepsIndexesConsistent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	fx.register(t, "alice", "bob", "carol")

	require.NoError(t, fx.rel.Follow(ctx, "alice", []string{"carol", "bob", "bob"}))
	friends, err := fx.rel.FriendsOf(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, friends)
	followers, err := fx.rel.FollowersOf(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, followers)

	// following again only refreshes the timestamp
	require.NoError(t, fx.rel.Follow(ctx, "alice", []string{"bob"}))
	friends, err = fx.rel.FriendsOf(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Len(t, friends, 2)

	users, err := fx.rel.Friends(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "bob", users[0].Username)

	require.NoError(t, fx.rel.Unfollow(ctx, "alice", []string{"bob"}))
	friends, err = fx.rel.FriendsOf(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol"}, friends)
	followers, err = fx.rel.FollowersOf(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Empty(t, followers)

	edges, err := fx.rel.FindInconsistentEdges(ctx, "alice")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestFollowRejectsSelfAndUnknownUsers(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	fx.register(t, "alice", "bob")

	assert.ErrorIs(t, fx.rel.Follow(ctx, "alice", []string{"bob", "alice"}), ErrFollowSelf)
	assert.ErrorIs(t, fx.rel.Follow(ctx, "alice", []string{"ghost"}), store.ErrNotFound)
	assert.ErrorIs(t, fx.rel.Follow(ctx, "alice", nil), ErrValidation)
	assert.ErrorIs(t, fx.rel.Follow(ctx, "", []string{"bob"}), ErrNotAuthenticated)

	friends, err := fx.rel.FriendsOf(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, friends)
}

func TestUnfollowSecondDeleteFailureLeavesOneSidedEdge(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	fx.register(t, "alice", "bob")
	require.NoError(t, fx.rel.Follow(ctx, "alice", []string{"bob"}))

	fx.store.Fail(storetest.OpDelete, store.CFFollowers, "bob", store.ErrUnavailable)
	err := fx.rel.Unfollow(ctx, "alice", []string{"bob"})
	require.ErrorIs(t, err, ErrInconsistentFollowEdge)
	assert.ErrorIs(t, err, store.ErrUnavailable)

	var ierr *InconsistentEdgeError
	require.True(t, errors.As(err, &ierr))
	require.Len(t, ierr.Edges, 1)
	assert.Equal(t, "alice", ierr.Edges[0].Follower)
	assert.Equal(t, "bob", ierr.Edges[0].Followee)

	// expected one-sided state: gone from friends, still in followers
	friends, err := fx.rel.FriendsOf(ctx, "alice", 0)
	require.NoError(t, err)
	assert.Empty(t, friends)
	followers, err := fx.rel.FollowersOf(ctx, "bob", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, followers)

	fx.store.Reset()
	edges, err := fx.rel.FindInconsistentEdges(ctx, "bob")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, model.Follow{Follower: "alice", Followee: "bob", CreatedAt: edges[0].CreatedAt}, edges[0])
}

func TestFollowSecondWriteFailureIsInconsistent(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	fx.register(t, "alice", "bob", "carol")

	fx.store.Fail(storetest.OpInsert, store.CFFollowers, "bob", store.ErrUnavailable)
	err := fx.rel.Follow(ctx, "alice", []string{"bob", "carol"})

	var ierr *InconsistentEdgeError
	require.ErrorAs(t, err, &ierr)
	require.Len(t, ierr.Edges, 1)
	assert.Equal(t, "bob", ierr.Edges[0].Followee)

	fx.store.Reset()
	edges, err := fx.rel.FindInconsistentEdges(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "bob", edges[0].Followee)

	followers, err := fx.rel.FollowersOf(ctx, "carol", 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice"}, followers)
}

func TestFriendsOfIsBounded(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())
	fx.register(t, "alice", "bob", "carol", "dave")
	require.NoError(t, fx.rel.Follow(ctx, "alice", []string{"dave", "carol", "bob"}))

	friends, err := fx.rel.FriendsOf(ctx, "alice", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"bob", "carol"}, friends)
}
