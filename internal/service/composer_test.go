package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

func TestComposerGetProfile(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	e.addUser(t, "B", "bob")
	_, err := e.follow.ToggleFollow(ctx, "B", "A")
	require.NoError(t, err)
	for _i := 0; _i < 4; _i++ {
		e.addPost(t, "A", "hello")
	}
	e.addPost(t, "B", "not alice")

	view, err := e.composer.GetProfile(ctx, "A", "B", "")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.User.Username)
	assert.Equal(t, 1, view.FollowerCount)
	assert.Equal(t, 0, view.FollowingCount)
	assert.True(t, view.IsFollowing)
	assert.False(t, view.IsSelf)
	assert.Len(t, view.Posts.Items, 3)
	require.NotEmpty(t, view.Posts.Next)

	more, err := e.composer.GetProfile(ctx, "A", "A", view.Posts.Next)
	require.NoError(t, err)
	assert.True(t, more.IsSelf)
	assert.False(t, more.IsFollowing)
	assert.Len(t, more.Posts.Items, 1)

	var nf *NotFoundError
	_, err = e.composer.GetProfile(ctx, "ghost", "A", "")
	assert.True(t, errors.As(err, &nf))
}

func TestComposerFeedAndInbox(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	e.addUser(t, "B", "bob")
	for _i := 0; _i < 4; _i++ {
		e.addPost(t, "A", "hello")
	}
	_, err := e.follow.ToggleFollow(ctx, "B", "A")
	require.NoError(t, err)

	first, err := e.composer.GetFeedPage(ctx, "")
	require.NoError(t, err)
	assert.Len(t, first.Items, 3)
	second, err := e.composer.GetFeedPage(ctx, first.Next)
	require.NoError(t, err)
	assert.Len(t, second.Items, 1)
	assert.Empty(t, second.Next)

	inbox, err := e.composer.GetInbox(ctx, "A", "")
	require.NoError(t, err)
	require.Len(t, inbox.Notifications, 1)
	assert.True(t, inbox.HasUnread)
	assert.Equal(t, "bob followed you.", inbox.Notifications[0].Message)
}

func TestComposerGetPost(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	e.addUser(t, "B", "bob")
	postID := e.addPost(t, "A", "hello")
	_, err := e.engagement.ToggleLike(ctx, postID, "B")
	require.NoError(t, err)
	_, err = e.engagement.AddComment(ctx, postID, "B", "great")
	require.NoError(t, err)

	view, err := e.composer.GetPost(ctx, postID, "B")
	require.NoError(t, err)
	assert.Equal(t, "alice", view.AuthorName)
	assert.Equal(t, 1, view.LikeCount)
	assert.True(t, view.LikedByViewer)
	require.Len(t, view.Comments, 1)
	assert.Equal(t, "bob", view.Comments[0].AuthorName)

	view, err = e.composer.GetPost(ctx, postID, "A")
	require.NoError(t, err)
	assert.False(t, view.LikedByViewer)
}

func TestDeletePost(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	postID := e.addPost(t, "A", "hello")

	var pe *PermissionError
	assert.True(t, errors.As(e.posts.DeletePost(ctx, "B", postID), &pe))
	require.NoError(t, e.posts.DeletePost(ctx, "A", postID))
	require.NoError(t, e.posts.DeletePost(ctx, "A", postID))

	var nf *NotFoundError
	_, err := e.posts.GetPost(ctx, postID)
	assert.True(t, errors.As(err, &nf))
}

func TestDeletePostRemovesComments(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	e.addUser(t, "B", "bob")
	postID := e.addPost(t, "A", "hello")
	keep := e.addPost(t, "A", "other")
	for _, id := range []string{postID, keep} {
		_, err := e.engagement.AddComment(ctx, id, "B", "nice")
		require.NoError(t, err)
		_, err = e.engagement.AddComment(ctx, id, "A", "thanks")
		require.NoError(t, err)
	}

	require.NoError(t, e.posts.DeletePost(ctx, "A", postID))

	left, err := e.store.Query(ctx, docstore.NewQuery(model.CommentsCollection(postID)))
	require.NoError(t, err)
	assert.Empty(t, left)
	comments, err := e.engagement.ListComments(ctx, keep)
	require.NoError(t, err)
	assert.Len(t, comments, 2)
}

func TestDeletePostCommentCleanupIsBestEffort(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	e.addUser(t, "A", "alice")
	postID := e.addPost(t, "A", "hello")
	_, err := e.engagement.AddComment(ctx, postID, "A", "first")
	require.NoError(t, err)

	e.store.SetFault(failOn("delete", model.CommentsCollection(postID), ""))
	require.NoError(t, e.posts.DeletePost(ctx, "A", postID))
	e.store.SetFault(nil)

	left, err := e.store.Query(ctx, docstore.NewQuery(model.CommentsCollection(postID)))
	require.NoError(t, err)
	assert.Len(t, left, 1)

	// 再次删除时补清
	require.NoError(t, e.posts.DeletePost(ctx, "A", postID))
	left, err = e.store.Query(ctx, docstore.NewQuery(model.CommentsCollection(postID)))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestCreatePostValidation(t *testing.T) {
	ctx := context.Background()
	e := newEnv(t, time.Millisecond)
	var ve *ValidationError
	_, err := e.posts.CreatePost(ctx, "A", "  ", "long enough content")
	assert.True(t, errors.As(err, &ve))
	_, err = e.posts.CreatePost(ctx, "A", "title", "   short   ")
	assert.True(t, errors.As(err, &ve))

	p, err := e.posts.CreatePost(ctx, "A", " title ", "long enough content")
	require.NoError(t, err)
	assert.Equal(t, "title", p.Title)
	assert.Zero(t, p.LikeCount())
	assert.False(t, p.CreatedAt.IsZero())
}
