package model

import (
	"time"

	"Lee_Social/internal/repository/docstore"
)

type NotificationType string

const (
	NotificationLike     NotificationType = "like"
	NotificationComment  NotificationType = "comment"
	NotificationFollower NotificationType = "follower"
)

const (
	FieldTimestamp = "timestamp"
	FieldRead      = "read"
)

// Notification message 在创建时渲染，之后引用内容变化也不回写
type Notification struct {
	ID              string           `json:"id" validate:"required"`
	RecipientUserID string           `json:"recipientUserId" validate:"required"`
	Message         string           `json:"message"`
	Type            NotificationType `json:"type" validate:"oneof=like comment follower"`
	RelatedEntityID string           `json:"relatedEntityId,omitempty"`
	FromUserID      string           `json:"fromUserId"`
	Timestamp       time.Time        `json:"timestamp" validate:"required"`
	Read            bool             `json:"read"`
}

// NotificationFromDoc 接收者取自所在分区
func NotificationFromDoc(recipientID string, d docstore.Document) (*Notification, error) {
	if err := checkVersion(d.Data); err != nil {
		return nil, err
	}
	n := &Notification{
		ID:              d.ID,
		RecipientUserID: recipientID,
		Message:         str(d.Data, "message"),
		Type:            NotificationType(str(d.Data, "type")),
		RelatedEntityID: str(d.Data, "relatedEntityId"),
		FromUserID:      str(d.Data, "fromUserId"),
		Timestamp:       millis(d.Data, FieldTimestamp),
		Read:            boolean(d.Data, FieldRead),
	}
	if err := checkStruct("notification", d.ID, n); err != nil {
		return nil, err
	}
	return n, nil
}

func NewNotificationDoc(recipientID string, typ NotificationType, message, relatedEntityID, fromUserID string) map[string]any {
	data := map[string]any{
		FieldVersion:      SchemaVersion,
		"recipientUserId": recipientID,
		"message":         message,
		"type":            string(typ),
		"fromUserId":      fromUserID,
		FieldTimestamp:    docstore.ServerTimestamp,
		FieldRead:         false,
	}
	if relatedEntityID != "" {
		data["relatedEntityId"] = relatedEntityID
	}
	return data
}
