package model

import (
	"time"

	"Lee_Social/internal/repository/docstore"
)

const (
	FieldCreatedAt = "createdAt"
	FieldLikes     = "likes"
	FieldUserID    = "userId"
)

type Post struct {
	ID        string    `json:"id" validate:"required"`
	UserID    string    `json:"userId" validate:"required"`
	Title     string    `json:"title"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
	Likes     []string  `json:"likes"`
}

// PostFromDoc createdAt 缺失或类型错误时返回 ErrMalformed
func PostFromDoc(d docstore.Document) (*Post, error) {
	if err := checkVersion(d.Data); err != nil {
		return nil, err
	}
	p := &Post{
		ID:        d.ID,
		UserID:    str(d.Data, FieldUserID),
		Title:     str(d.Data, "title"),
		Content:   str(d.Data, "content"),
		CreatedAt: millis(d.Data, FieldCreatedAt),
		Likes:     strList(d.Data, FieldLikes),
	}
	if err := checkStruct("post", d.ID, p); err != nil {
		return nil, err
	}
	return p, nil
}

// NewPostDoc createdAt 由存储端赋值
func NewPostDoc(userID, title, content string) map[string]any {
	return map[string]any{
		FieldVersion:   SchemaVersion,
		FieldUserID:    userID,
		"title":        title,
		"content":      content,
		FieldCreatedAt: docstore.ServerTimestamp,
		FieldLikes:     []string{},
	}
}

func (p *Post) LikeCount() int {
	return len(p.Likes)
}

func (p *Post) LikedBy(userID string) bool {
	return Contains(p.Likes, userID)
}
