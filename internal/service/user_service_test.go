package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lee_Social/internal/model"
)

func TestUpdateProfileInvalidatesOwnCacheEntry(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "u1", "alice")

	u, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	name, bio := "  alicia ", "hi"
	u, err = e.users.UpdateProfile(ctx, "u1", ProfilePatch{Username: &name, Bio: &bio})
	require.NoError(t, err)
	assert.Equal(t, "alicia", u.Username)
	assert.Equal(t, "hi", u.Bio)

	again, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alicia", again.Username)
}

func TestUpdateProfileValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "u1", "alice")

	blank := "   "
	var ve *ValidationError
	_, err := e.users.UpdateProfile(ctx, "u1", ProfilePatch{Username: &blank})
	assert.True(t, errors.As(err, &ve))

	var nf *NotFoundError
	name := "bob"
	_, err = e.users.UpdateProfile(ctx, "ghost", ProfilePatch{Username: &name})
	assert.True(t, errors.As(err, &nf))
}

func TestGetUserReturnsCopies(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "u1", "alice")

	u, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	u.Username = "mutated"
	u.Followers = append(u.Followers, "x")

	again, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", again.Username)
	assert.Empty(t, again.Followers)
}

func TestGetUserCacheServesStaleForeignWrites(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "u1", "alice")

	_, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	// 绕过服务直接写存储，缓存在 TTL 内仍返回旧值
	require.NoError(t, e.store.Update(ctx, model.UsersCollection, "u1", map[string]any{"username": "other"}))

	u, err := e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)

	e.users.Invalidate("u1")
	u, err = e.users.GetUser(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "other", u.Username)
}

func TestListFollowersBatchesInQueries(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "star", "star")
	var want []string
	for i := 0; i < 23; i++ {
		id := fmt.Sprintf("fan%02d", i)
		e.addUser(t, id, id)
		_, err := e.follow.ToggleFollow(ctx, id, "star")
		require.NoError(t, err)
		want = append(want, id)
	}

	followers, err := e.users.ListFollowers(ctx, "star")
	require.NoError(t, err)
	got := make([]string, len(followers))
	for i, u := range followers {
		got[i] = u.ID
	}
	assert.Equal(t, want, got)

	following, err := e.users.ListFollowing(ctx, "fan07")
	require.NoError(t, err)
	require.Len(t, following, 1)
	assert.Equal(t, "star", following[0].ID)
}

func TestListUsersByLastLogin(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	for _, id := range []string{"a", "b", "c"} {
		e.addUser(t, id, id)
	}
	require.NoError(t, e.users.TouchLastLogin(ctx, "b"))
	require.NoError(t, e.users.TouchLastLogin(ctx, "a"))

	users, err := e.users.ListUsers(ctx, 0)
	require.NoError(t, err)
	require.Len(t, users, 2)
	assert.Equal(t, "a", users[0].ID)
	assert.Equal(t, "b", users[1].ID)
	assert.False(t, users[0].LastLogin.IsZero())
}
