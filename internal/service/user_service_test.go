package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndAuthenticate(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()

	u, err := e.users.Register(ctx, RegisterInput{Username: "john", Email: "John@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "john@example.com", u.Email)
	assert.NotEqual(t, "secret1", u.PasswordHash)

	_, err = e.users.Register(ctx, RegisterInput{Username: "john", Email: "other@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrUsernameTaken)
	_, err = e.users.Register(ctx, RegisterInput{Username: "johnny", Email: "john@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrEmailTaken)
	_, err = e.users.Register(ctx, RegisterInput{Username: "x", Email: "not-an-email", Password: "secret1"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	got, err := e.users.Authenticate(ctx, "john", "secret1")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	_, err = e.users.Authenticate(ctx, "john", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = e.users.Authenticate(ctx, "nobody", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestUpdateProfileAndPassword(t *testing.T) {
	e := newEnv(t, envOpts{})
	ctx := context.Background()
	john, err := e.users.Register(ctx, RegisterInput{Username: "john", Email: "john@example.com", Password: "secret1"})
	require.NoError(t, err)
	_, err = e.users.Register(ctx, RegisterInput{Username: "susan", Email: "susan@example.com", Password: "secret1"})
	require.NoError(t, err)

	_, err = e.users.UpdateProfile(ctx, john.ID, ProfileInput{Username: "susan"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	u, err := e.users.UpdateProfile(ctx, john.ID, ProfileInput{Username: "john", AboutMe: "hi there"})
	require.NoError(t, err)
	assert.Equal(t, "hi there", u.AboutMe)

	require.NoError(t, e.users.SetPassword(ctx, john.ID, "newpass"))
	_, err = e.users.Authenticate(ctx, "john", "newpass")
	assert.NoError(t, err)

	_, err = e.users.Get(ctx, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	before, _ := e.users.Get(ctx, john.ID)
	require.NoError(t, e.users.TouchLastSeen(ctx, john.ID))
	after, _ := e.users.Get(ctx, john.ID)
	assert.False(t, after.LastSeen.Before(before.LastSeen))
}
