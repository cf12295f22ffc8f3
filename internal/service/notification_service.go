package service

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

const (
	titleWordLimit  = 7
	postPlaceholder = "your post"

	markReadAttempts = 3
)

// NotifyRequest 一次通知扇出
type NotifyRequest struct {
	RecipientID     string
	Type            model.NotificationType
	Template        string
	RelatedEntityID string
	FromUserID      string
}

// Mirror 通知写入后的下游投递（kafka），失败只记日志
type Mirror interface {
	Send(ctx context.Context, key string, value []byte) error
}

// NotificationEvent 投递给下游的消息体
type NotificationEvent struct {
	EventID         string `json:"event_id"`
	NotificationID  string `json:"notification_id"`
	RecipientUserID string `json:"recipient_user_id"`
	Type            string `json:"type"`
	Message         string `json:"message"`
	RelatedEntityID string `json:"related_entity_id,omitempty"`
	FromUserID      string `json:"from_user_id"`
}

// InboxPage 收件箱的一页。HasUnread 只看本页。
type InboxPage struct {
	Notifications []*model.Notification `json:"notifications"`
	HasUnread     bool                  `json:"hasUnread"`
	Next          string                `json:"next,omitempty"`
}

type NotificationService struct {
	store    docstore.Store
	mirror   Mirror
	log      *zap.Logger
	pageSize int
	backoff  time.Duration
}

func NewNotificationService(store docstore.Store, mirror Mirror, log *zap.Logger, pageSize int) *NotificationService {
	if pageSize <= 0 {
		pageSize = 10
	}
	return &NotificationService{
		store:    store,
		mirror:   mirror,
		log:      log,
		pageSize: pageSize,
		backoff:  100 * time.Millisecond,
	}
}

// Notify 尽力而为：任何失败都只记录日志，不影响触发它的操作
func (s *NotificationService) Notify(ctx context.Context, req NotifyRequest) {
	fields := []zap.Field{
		zap.String("recipient", req.RecipientID),
		zap.String("type", string(req.Type)),
		zap.String("from", req.FromUserID),
	}
	if req.RecipientID == "" {
		notificationsFailed.WithLabelValues(string(req.Type), "validate").Inc()
		s.log.Warn("notification without recipient dropped", fields...)
		return
	}

	message := s.render(ctx, req)
	coll := model.NotificationsCollection(req.RecipientID)
	id, err := s.store.Add(ctx, coll,
		model.NewNotificationDoc(req.RecipientID, req.Type, message, req.RelatedEntityID, req.FromUserID))
	if err != nil {
		notificationsFailed.WithLabelValues(string(req.Type), "write").Inc()
		s.log.Warn("notification write failed", append(fields, zap.Error(err))...)
		return
	}
	notificationsCreated.WithLabelValues(string(req.Type)).Inc()

	if s.mirror == nil {
		return
	}
	payload, _ := json.Marshal(NotificationEvent{
		EventID:         uuid.NewString(),
		NotificationID:  id,
		RecipientUserID: req.RecipientID,
		Type:            string(req.Type),
		Message:         message,
		RelatedEntityID: req.RelatedEntityID,
		FromUserID:      req.FromUserID,
	})
	if err := s.mirror.Send(ctx, req.RecipientID, payload); err != nil {
		notificationsFailed.WithLabelValues(string(req.Type), "mirror").Inc()
		s.log.Warn("notification mirror failed", append(fields, zap.String("notification_id", id), zap.Error(err))...)
	}
}

// render 点赞和评论通知把模板里的 "your post" 换成帖子标题快照
func (s *NotificationService) render(ctx context.Context, req NotifyRequest) string {
	if req.RelatedEntityID == "" || (req.Type != model.NotificationLike && req.Type != model.NotificationComment) {
		return req.Template
	}
	doc, err := s.store.Get(ctx, model.PostsCollection, req.RelatedEntityID)
	if err != nil {
		s.log.Debug("notification enrichment skipped", zap.String("post_id", req.RelatedEntityID), zap.Error(err))
		return req.Template
	}
	title, _ := doc.Data["title"].(string)
	short := TruncateTitle(title)
	if short == "" {
		return req.Template
	}
	return strings.Replace(req.Template, postPlaceholder, short, 1)
}

// TruncateTitle 超过 7 个词时保留前 7 个并追加省略号
func TruncateTitle(title string) string {
	words := strings.Fields(title)
	if len(words) > titleWordLimit {
		return strings.Join(words[:titleWordLimit], " ") + "..."
	}
	return strings.TrimSpace(title)
}

func (s *NotificationService) inboxQuery(userID string) docstore.Query {
	return docstore.NewQuery(model.NotificationsCollection(userID)).
		OrderBy(model.FieldTimestamp, docstore.Desc).
		Take(s.pageSize)
}

// OpenInbox 实时的第一页，调用方负责 Close
func (s *NotificationService) OpenInbox(ctx context.Context, userID string) (*Stream[InboxPage], error) {
	if userID == "" {
		return nil, invalid("userId", "required")
	}
	q := s.inboxQuery(userID)
	sub, err := s.store.Subscribe(ctx, q)
	if err != nil {
		return nil, storeErr("openInbox", q.Collection, "", err)
	}
	return newStream(ctx, "openInbox", sub, func(_ context.Context, docs []docstore.Document) (InboxPage, error) {
		return s.page(userID, q, docs), nil
	}), nil
}

// FirstInboxPage 非实时的第一页
func (s *NotificationService) FirstInboxPage(ctx context.Context, userID string) (InboxPage, error) {
	if userID == "" {
		return InboxPage{}, invalid("userId", "required")
	}
	q := s.inboxQuery(userID)
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return InboxPage{}, storeErr("openInbox", q.Collection, "", err)
	}
	return s.page(userID, q, docs), nil
}

func (s *NotificationService) LoadMoreNotifications(ctx context.Context, userID, cursor string) (InboxPage, error) {
	if userID == "" {
		return InboxPage{}, invalid("userId", "required")
	}
	q := s.inboxQuery(userID)
	after, err := decodeCursor(q, cursor)
	if err != nil {
		return InboxPage{}, err
	}
	q = q.StartAfter(after)
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return InboxPage{}, storeErr("loadMoreNotifications", q.Collection, "", err)
	}
	return s.page(userID, q, docs), nil
}

func (s *NotificationService) page(userID string, q docstore.Query, docs []docstore.Document) InboxPage {
	p := InboxPage{
		Notifications: make([]*model.Notification, 0, len(docs)),
		Next:          nextCursor(q, docs),
	}
	for _, d := range docs {
		n, err := model.NotificationFromDoc(userID, d)
		if err != nil {
			malformedSkipped.WithLabelValues("notifications").Inc()
			s.log.Warn("skip malformed notification", zap.String("user_id", userID),
				zap.String("notification_id", d.ID), zap.Error(err))
			continue
		}
		if !n.Read {
			p.HasUnread = true
		}
		p.Notifications = append(p.Notifications, n)
	}
	return p
}

// MarkRead 幂等，瞬时错误自动重试
func (s *NotificationService) MarkRead(ctx context.Context, userID, notificationID string) error {
	if userID == "" || notificationID == "" {
		return invalid("notificationId", "required")
	}
	coll := model.NotificationsCollection(userID)
	var err error
	for attempt := 1; attempt <= markReadAttempts; attempt++ {
		err = storeErr("markRead", coll, notificationID,
			s.store.Update(ctx, coll, notificationID, map[string]any{model.FieldRead: true}))
		if err == nil || !IsTransient(err) || attempt == markReadAttempts {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.backoff * time.Duration(attempt)):
		}
	}
	return err
}
