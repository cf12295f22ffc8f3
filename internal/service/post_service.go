package service

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

const (
	minContentLen = 10
	maxContentLen = 20000

	commentSweepBatch = 100
)

type PostService struct {
	store docstore.Store
	log   *zap.Logger
}

func NewPostService(store docstore.Store, log *zap.Logger) *PostService {
	return &PostService{store: store, log: log}
}

func (s *PostService) CreatePost(ctx context.Context, userID, title, content string) (*model.Post, error) {
	if userID == "" {
		return nil, invalid("userId", "required")
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, invalid("title", "required")
	}
	n := utf8.RuneCountInString(strings.TrimSpace(content))
	if n < minContentLen || n > maxContentLen {
		return nil, invalid("content", "must be between 10 and 20000 characters")
	}

	id, err := s.store.Add(ctx, model.PostsCollection, model.NewPostDoc(userID, title, content))
	if err != nil {
		return nil, storeErr("createPost", model.PostsCollection, "", err)
	}
	return s.GetPost(ctx, id)
}

func (s *PostService) GetPost(ctx context.Context, postID string) (*model.Post, error) {
	if postID == "" {
		return nil, invalid("postId", "required")
	}
	doc, err := s.store.Get(ctx, model.PostsCollection, postID)
	if err != nil {
		return nil, storeErr("getPost", model.PostsCollection, postID, err)
	}
	p, err := model.PostFromDoc(*doc)
	if err != nil {
		return nil, storeErr("getPost", model.PostsCollection, postID, err)
	}
	return p, nil
}

// DeletePost 幂等删除：成功/已删除均返回 nil；仅非作者时报错
func (s *PostService) DeletePost(ctx context.Context, userID, postID string) error {
	if userID == "" || postID == "" {
		return invalid("postId", "required")
	}
	doc, err := s.store.Get(ctx, model.PostsCollection, postID)
	if err != nil {
		if err = storeErr("deletePost", model.PostsCollection, postID, err); isNotFound(err) {
			s.deleteComments(ctx, postID)
			return nil
		}
		return err
	}
	// 作者字段缺失的坏文档也只能由作者删，这里直接比较原始字段
	if owner, _ := doc.Data[model.FieldUserID].(string); owner != userID {
		return &PermissionError{Op: "deletePost", Reason: "only the author can delete a post"}
	}
	if err := s.store.Delete(ctx, model.PostsCollection, postID); err != nil {
		return storeErr("deletePost", model.PostsCollection, postID, err)
	}
	s.log.Info("post deleted", zap.String("post_id", postID), zap.String("user_id", userID))
	s.deleteComments(ctx, postID)
	return nil
}

// deleteComments 帖子删除后尽力清理评论子集合，失败只记日志，重复删除时会再清一次
func (s *PostService) deleteComments(ctx context.Context, postID string) {
	coll := model.CommentsCollection(postID)
	q := docstore.NewQuery(coll).Take(commentSweepBatch)
	for {
		docs, err := s.store.Query(ctx, q)
		if err != nil {
			s.log.Warn("list comments of deleted post failed", zap.String("post_id", postID), zap.Error(err))
			return
		}
		for _, d := range docs {
			if err := s.store.Delete(ctx, coll, d.ID); err != nil {
				s.log.Warn("delete comment of deleted post failed",
					zap.String("post_id", postID), zap.String("comment_id", d.ID), zap.Error(err))
				return
			}
		}
		if len(docs) < commentSweepBatch {
			return
		}
	}
}
