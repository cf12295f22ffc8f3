package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

const maxCommentLen = 5000

type LikeResult struct {
	Liked     bool `json:"liked"`
	LikeCount int  `json:"likeCount"`
}

// EngagementService 点赞与评论
type EngagementService struct {
	store  docstore.Store
	users  *UserService
	notify Notifier
	log    *zap.Logger
}

func NewEngagementService(store docstore.Store, users *UserService, notify Notifier, log *zap.Logger) *EngagementService {
	return &EngagementService{store: store, users: users, notify: notify, log: log}
}

// ToggleLike likes 是集合，单文档原子读改写。
// 同一用户两个会话并发切换时以最后落地的写为准。
func (s *EngagementService) ToggleLike(ctx context.Context, postID, userID string) (LikeResult, error) {
	if postID == "" {
		return LikeResult{}, invalid("postId", "required")
	}
	if userID == "" {
		return LikeResult{}, invalid("userId", "required")
	}

	var (
		res    LikeResult
		author string
	)
	err := s.store.Mutate(ctx, model.PostsCollection, postID, func(data map[string]any) (map[string]any, error) {
		likes := model.Members(data, model.FieldLikes)
		author, _ = data[model.FieldUserID].(string)
		if model.Contains(likes, userID) {
			likes = model.WithoutMember(likes, userID)
			res.Liked = false
		} else {
			likes = model.WithMember(likes, userID)
			res.Liked = true
		}
		res.LikeCount = len(likes)
		data[model.FieldLikes] = likes
		return data, nil
	})
	if err != nil {
		return LikeResult{}, storeErr("toggleLike", model.PostsCollection, postID, err)
	}

	if !res.Liked {
		togglesTotal.WithLabelValues("like", "off").Inc()
		return res, nil
	}
	togglesTotal.WithLabelValues("like", "on").Inc()
	if author != "" && author != userID {
		name, _ := s.users.Author(ctx, userID)
		s.notify.Notify(ctx, NotifyRequest{
			RecipientID:     author,
			Type:            model.NotificationLike,
			Template:        fmt.Sprintf("%s liked your post", name),
			RelatedEntityID: postID,
			FromUserID:      userID,
		})
	}
	return res, nil
}

// AddComment 评论内容去掉首尾空白后保存，只追加
func (s *EngagementService) AddComment(ctx context.Context, postID, userID, text string) (*model.Comment, error) {
	if postID == "" {
		return nil, invalid("postId", "required")
	}
	if userID == "" {
		return nil, invalid("userId", "required")
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, invalid("text", "comment must not be empty")
	}
	if len([]rune(text)) > maxCommentLen {
		return nil, invalid("text", "comment is too long")
	}

	post, err := s.store.Get(ctx, model.PostsCollection, postID)
	if err != nil {
		return nil, storeErr("addComment", model.PostsCollection, postID, err)
	}
	coll := model.CommentsCollection(postID)
	id, err := s.store.Add(ctx, coll, model.NewCommentDoc(postID, userID, text))
	if err != nil {
		return nil, storeErr("addComment", coll, "", err)
	}
	doc, err := s.store.Get(ctx, coll, id)
	if err != nil {
		return nil, storeErr("addComment", coll, id, err)
	}
	c, err := model.CommentFromDoc(*doc)
	if err != nil {
		return nil, storeErr("addComment", coll, id, err)
	}

	if author, _ := post.Data[model.FieldUserID].(string); author != "" && author != userID {
		name, _ := s.users.Author(ctx, userID)
		s.notify.Notify(ctx, NotifyRequest{
			RecipientID:     author,
			Type:            model.NotificationComment,
			Template:        fmt.Sprintf("%s commented on your post", name),
			RelatedEntityID: postID,
			FromUserID:      userID,
		})
	}
	return c, nil
}

// CommentView 评论加评论者展示信息
type CommentView struct {
	Comment      *model.Comment `json:"comment"`
	AuthorName   string         `json:"authorName"`
	AuthorAvatar string         `json:"authorAvatar"`
}

func (s *EngagementService) commentsQuery(postID string) docstore.Query {
	return docstore.NewQuery(model.CommentsCollection(postID)).
		OrderBy(model.FieldCreatedAt, docstore.Asc)
}

// ListComments 按时间正序返回全部评论
func (s *EngagementService) ListComments(ctx context.Context, postID string) ([]CommentView, error) {
	if postID == "" {
		return nil, invalid("postId", "required")
	}
	q := s.commentsQuery(postID)
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, storeErr("listComments", q.Collection, "", err)
	}
	return s.views(ctx, docs), nil
}

// OpenComments 实时评论列表，调用方负责 Close
func (s *EngagementService) OpenComments(ctx context.Context, postID string) (*Stream[[]CommentView], error) {
	if postID == "" {
		return nil, invalid("postId", "required")
	}
	q := s.commentsQuery(postID)
	sub, err := s.store.Subscribe(ctx, q)
	if err != nil {
		return nil, storeErr("openComments", q.Collection, "", err)
	}
	return newStream(ctx, "openComments", sub, func(ctx context.Context, docs []docstore.Document) ([]CommentView, error) {
		return s.views(ctx, docs), nil
	}), nil
}

func (s *EngagementService) views(ctx context.Context, docs []docstore.Document) []CommentView {
	comments := make([]*model.Comment, 0, len(docs))
	ids := make([]string, 0, len(docs))
	for _, d := range docs {
		c, err := model.CommentFromDoc(d)
		if err != nil {
			malformedSkipped.WithLabelValues("comments").Inc()
			s.log.Warn("skip malformed comment", zap.String("comment_id", d.ID), zap.Error(err))
			continue
		}
		comments = append(comments, c)
		ids = append(ids, c.UserID)
	}
	authors := s.users.authors(ctx, ids)
	out := make([]CommentView, 0, len(comments))
	for _, c := range comments {
		a := authors[c.UserID]
		out = append(out, CommentView{Comment: c, AuthorName: a.Name, AuthorAvatar: a.Avatar})
	}
	return out
}
