package model

import (
	"time"

	"Lee_Social/internal/repository/docstore"
)

// Comment 只追加，不编辑不删除
type Comment struct {
	ID        string    `json:"id" validate:"required"`
	PostID    string    `json:"postId" validate:"required"`
	UserID    string    `json:"userId" validate:"required"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"createdAt" validate:"required"`
}

func CommentFromDoc(d docstore.Document) (*Comment, error) {
	if err := checkVersion(d.Data); err != nil {
		return nil, err
	}
	c := &Comment{
		ID:        d.ID,
		PostID:    str(d.Data, "postId"),
		UserID:    str(d.Data, FieldUserID),
		Content:   str(d.Data, "content"),
		CreatedAt: millis(d.Data, FieldCreatedAt),
	}
	if err := checkStruct("comment", d.ID, c); err != nil {
		return nil, err
	}
	return c, nil
}

func NewCommentDoc(postID, userID, content string) map[string]any {
	return map[string]any{
		FieldVersion:   SchemaVersion,
		"postId":       postID,
		FieldUserID:    userID,
		"content":      content,
		FieldCreatedAt: docstore.ServerTimestamp,
	}
}
