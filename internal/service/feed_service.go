package service

import (
	"context"

	"go.uber.org/zap"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

// FeedItem 帖子加上作者展示信息，作者信息可能滞后
type FeedItem struct {
	Post         *model.Post `json:"post"`
	AuthorName   string      `json:"authorName"`
	AuthorAvatar string      `json:"authorAvatar"`
	LikeCount    int         `json:"likeCount"`
}

// FeedPage Next 为空表示没有更多
type FeedPage struct {
	Items []FeedItem `json:"items"`
	Next  string     `json:"next,omitempty"`
}

type FeedService struct {
	store    docstore.Store
	users    *UserService
	log      *zap.Logger
	pageSize int
}

func NewFeedService(store docstore.Store, users *UserService, log *zap.Logger, pageSize int) *FeedService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &FeedService{store: store, users: users, log: log, pageSize: pageSize}
}

// feedQuery 全序 (createdAt desc, id desc)，id 由存储层隐式追加
func (s *FeedService) feedQuery() docstore.Query {
	return docstore.NewQuery(model.PostsCollection).
		OrderBy(model.FieldCreatedAt, docstore.Desc).
		Take(s.pageSize).
		ReportMissingOrder(s.skipUndated)
}

func (s *FeedService) userQuery(userID string) docstore.Query {
	return docstore.NewQuery(model.PostsCollection).
		Where(model.FieldUserID, docstore.OpEq, userID).
		OrderBy(model.FieldCreatedAt, docstore.Desc).
		Take(s.pageSize).
		ReportMissingOrder(s.skipUndated)
}

// skipUndated 没有 createdAt 的帖子排不进时间线，存储层已排除，这里只记录
func (s *FeedService) skipUndated(id string) {
	malformedSkipped.WithLabelValues(model.PostsCollection).Inc()
	s.log.Warn("skip post without createdAt", zap.String("post_id", id))
}

// OpenFeed 实时第一页：有新帖子时推送新的一页。调用方负责 Close。
func (s *FeedService) OpenFeed(ctx context.Context) (*Stream[FeedPage], error) {
	q := s.feedQuery()
	sub, err := s.store.Subscribe(ctx, q)
	if err != nil {
		return nil, storeErr("openFeed", q.Collection, "", err)
	}
	return newStream(ctx, "openFeed", sub, func(ctx context.Context, docs []docstore.Document) (FeedPage, error) {
		return s.page(ctx, q, docs), nil
	}), nil
}

// FirstPage 非实时的第一页
func (s *FeedService) FirstPage(ctx context.Context) (FeedPage, error) {
	return s.fetch(ctx, "openFeed", s.feedQuery(), "")
}

// LoadMore 返回严格早于游标的下一页
func (s *FeedService) LoadMore(ctx context.Context, cursor string) (FeedPage, error) {
	if cursor == "" {
		return FeedPage{}, invalid("cursor", "required")
	}
	return s.fetch(ctx, "loadMore", s.feedQuery(), cursor)
}

// ListUserPosts 某个用户的帖子，游标规则与首页相同
func (s *FeedService) ListUserPosts(ctx context.Context, userID, cursor string) (FeedPage, error) {
	if userID == "" {
		return FeedPage{}, invalid("userId", "required")
	}
	return s.fetch(ctx, "listUserPosts", s.userQuery(userID), cursor)
}

func (s *FeedService) fetch(ctx context.Context, op string, q docstore.Query, cursor string) (FeedPage, error) {
	if cursor != "" {
		after, err := decodeCursor(q, cursor)
		if err != nil {
			return FeedPage{}, err
		}
		q = q.StartAfter(after)
	}
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return FeedPage{}, storeErr(op, q.Collection, "", err)
	}
	return s.page(ctx, q, docs), nil
}

// page 解码失败的帖子跳过，游标仍取自最后一条原始文档，坏文档不会卡住翻页
func (s *FeedService) page(ctx context.Context, q docstore.Query, docs []docstore.Document) FeedPage {
	posts := make([]*model.Post, 0, len(docs))
	authorIDs := make([]string, 0, len(docs))
	for _, d := range docs {
		p, err := model.PostFromDoc(d)
		if err != nil {
			malformedSkipped.WithLabelValues(model.PostsCollection).Inc()
			s.log.Warn("skip malformed post", zap.String("post_id", d.ID), zap.Error(err))
			continue
		}
		posts = append(posts, p)
		authorIDs = append(authorIDs, p.UserID)
	}

	authors := s.users.authors(ctx, authorIDs)
	page := FeedPage{
		Items: make([]FeedItem, 0, len(posts)),
		Next:  nextCursor(q, docs),
	}
	for _, p := range posts {
		a, ok := authors[p.UserID]
		if !ok {
			a = authorInfo{Name: DefaultAuthorName, Avatar: DefaultAuthorAvatar}
		}
		page.Items = append(page.Items, FeedItem{
			Post:         p,
			AuthorName:   a.Name,
			AuthorAvatar: a.Avatar,
			LikeCount:    p.LikeCount(),
		})
	}
	return page
}
