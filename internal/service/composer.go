package service

import (
	"context"

	"golang.org/x/sync/errgroup"

	"Lee_Social/internal/model"
)

// ProfileView 个人主页：资料 + 关系计数 + 帖子第一页（或游标页）
type ProfileView struct {
	User           *model.User `json:"user"`
	FollowerCount  int         `json:"followerCount"`
	FollowingCount int         `json:"followingCount"`
	IsFollowing    bool        `json:"isFollowing"`
	IsSelf         bool        `json:"isSelf"`
	Posts          FeedPage    `json:"posts"`
}

// PostView 帖子详情
type PostView struct {
	FeedItem
	LikedByViewer bool          `json:"likedByViewer"`
	Comments      []CommentView `json:"comments"`
}

// Composer 读模型拼装，不落库
type Composer struct {
	feed          *FeedService
	users         *UserService
	posts         *PostService
	engagement    *EngagementService
	notifications *NotificationService
}

func NewComposer(feed *FeedService, users *UserService, posts *PostService, engagement *EngagementService, notifications *NotificationService) *Composer {
	return &Composer{
		feed:          feed,
		users:         users,
		posts:         posts,
		engagement:    engagement,
		notifications: notifications,
	}
}

// GetFeedPage 游标为空返回第一页
func (c *Composer) GetFeedPage(ctx context.Context, cursor string) (FeedPage, error) {
	if cursor == "" {
		return c.feed.FirstPage(ctx)
	}
	return c.feed.LoadMore(ctx, cursor)
}

func (c *Composer) OpenFeed(ctx context.Context) (*Stream[FeedPage], error) {
	return c.feed.OpenFeed(ctx)
}

func (c *Composer) GetProfile(ctx context.Context, userID, viewerID, cursor string) (*ProfileView, error) {
	var (
		user  *model.User
		posts FeedPage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		user, err = c.users.GetUser(gctx, userID)
		return err
	})
	g.Go(func() error {
		var err error
		posts, err = c.feed.ListUserPosts(gctx, userID, cursor)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &ProfileView{
		User:           user,
		FollowerCount:  len(user.Followers),
		FollowingCount: len(user.Following),
		IsFollowing:    viewerID != "" && model.Contains(user.Followers, viewerID),
		IsSelf:         viewerID == userID,
		Posts:          posts,
	}, nil
}

// GetInbox 游标为空返回第一页
func (c *Composer) GetInbox(ctx context.Context, userID, cursor string) (InboxPage, error) {
	if cursor == "" {
		return c.notifications.FirstInboxPage(ctx, userID)
	}
	return c.notifications.LoadMoreNotifications(ctx, userID, cursor)
}

func (c *Composer) OpenInbox(ctx context.Context, userID string) (*Stream[InboxPage], error) {
	return c.notifications.OpenInbox(ctx, userID)
}

func (c *Composer) GetPost(ctx context.Context, postID, viewerID string) (*PostView, error) {
	p, err := c.posts.GetPost(ctx, postID)
	if err != nil {
		return nil, err
	}
	var (
		name, avatar string
		comments     []CommentView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		name, avatar = c.users.Author(gctx, p.UserID)
		return nil
	})
	g.Go(func() error {
		var err error
		comments, err = c.engagement.ListComments(gctx, postID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return &PostView{
		FeedItem: FeedItem{
			Post:         p,
			AuthorName:   name,
			AuthorAvatar: avatar,
			LikeCount:    p.LikeCount(),
		},
		LikedByViewer: viewerID != "" && p.LikedBy(viewerID),
		Comments:      comments,
	}, nil
}
