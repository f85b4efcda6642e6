package user

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"netchat/internal/testutil"
)

func TestRepository_Postgres(t *testing.T) {
	database := testutil.Postgres(t)
	repo := NewRepository(database.Conn)
	ctx := context.Background()

	u, err := repo.CreateUser(ctx, &User{Username: "alice", Email: "alice@example.com", Password: "hash"})
	require.NoError(t, err)
	assert.NotZero(t, u.ID)
	assert.Equal(t, StatusOffline, u.Status)
	assert.False(t, u.CreatedAt.IsZero())

	_, err = repo.CreateUser(ctx, &User{Username: "alice", Email: "other@example.com", Password: "hash"})
	assert.ErrorIs(t, err, ErrUserExists)
	_, err = repo.CreateUser(ctx, &User{Username: "alice2", Email: "alice@example.com", Password: "hash"})
	assert.ErrorIs(t, err, ErrUserExists)

	got, err := repo.GetUserByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)
	assert.Equal(t, "hash", got.Password)
	assert.Nil(t, got.LastLogin)

	_, err = repo.GetUserByUsername(ctx, "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = repo.GetUserByID(ctx, 9999)
	assert.ErrorIs(t, err, ErrUserNotFound)

	at := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, repo.SetStatus(ctx, u.ID, StatusOnline, at))
	got, err = repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, got.Status)
	require.NotNil(t, got.LastLogin)
	assert.True(t, got.LastLogin.Equal(at))

	require.NoError(t, repo.SetStatus(ctx, u.ID, StatusOffline, at.Add(time.Hour)))
	got, err = repo.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, got.Status)
	assert.True(t, got.LastLogin.Equal(at), "going offline keeps last_login")

	assert.ErrorIs(t, repo.SetStatus(ctx, 9999, StatusOnline, at), ErrUserNotFound)

	_, err = repo.CreateUser(ctx, &User{Username: "bob", Email: "bob@example.com", Password: "hash"})
	require.NoError(t, err)
	found, err := repo.SearchUsers(ctx, "ALI")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Username)

	none, err := repo.SearchUsers(ctx, "zzz")
	require.NoError(t, err)
	assert.NotNil(t, none)
	assert.Empty(t, none)
}
