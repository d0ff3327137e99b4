package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())

	u, err := fx.users.Register(ctx, "alice_1", "pa55")
	require.NoError(t, err)
	assert.NotEqual(t, []byte("pa55"), u.PasswordHash)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = fx.users.Register(ctx, "alice_1", "other")
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := fx.users.Authenticate(ctx, "alice_1", "pa55")
	require.NoError(t, err)
	assert.Equal(t, "alice_1", got.Username)

	_, err = fx.users.Authenticate(ctx, "alice_1", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = fx.users.Authenticate(ctx, "nobody", "pa55")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	users, err := fx.users.MultiGet(ctx, []string{"alice_1", "nobody"})
	require.NoError(t, err)
	assert.Len(t, users, 1)
}

func TestRegisterValidatesUsername(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t, DefaultTimelineOptions())

	for _, name := range []string{"", "bad name", "!PUBLIC!", "dash-ed", strings.Repeat("a", 31)} {
		_, err := fx.users.Register(ctx, name, "pw")
		assert.ErrorIs(t, err, ErrValidation, name)
		assert.False(t, ValidUsername(name), name)
	}
	assert.True(t, ValidUsername(strings.Repeat("a", 30)))

	_, err := fx.users.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, ErrValidation)
}
