package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Lee_Social/internal/cache"
	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

type stepClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.step)
	return t
}

type env struct {
	store         *docstore.MemoryStore
	users         *UserService
	notifications *NotificationService
	follow        *FollowService
	feed          *FeedService
	posts         *PostService
	engagement    *EngagementService
	composer      *Composer
	mirror        *recordingMirror
}

type recordingMirror struct {
	mu   sync.Mutex
	keys []string
	fail error
}

func (m *recordingMirror) Send(_ context.Context, key string, _ []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail != nil {
		return m.fail
	}
	m.keys = append(m.keys, key)
	return nil
}

func newEnv(t *testing.T, step time.Duration) *env {
	t.Helper()
	clk := &stepClock{now: time.UnixMilli(1_700_000_000_000), step: step}
	var (
		mu sync.Mutex
		n  int
	)
	store := docstore.NewMemoryStore(
		docstore.WithClock(clk.Now),
		docstore.WithIDGenerator(func() string {
			mu.Lock()
			defer mu.Unlock()
			n++
			return fmt.Sprintf("doc%05d", n)
		}),
	)
	log := zap.NewNop()
	mirror := &recordingMirror{}
	users := NewUserService(store, cache.New[*model.User]("test_profiles"), log)
	notifications := NewNotificationService(store, mirror, log, 10)
	notifications.backoff = time.Millisecond
	feed := NewFeedService(store, users, log, 3)
	posts := NewPostService(store, log)
	engagement := NewEngagementService(store, users, notifications, log)
	return &env{
		store:         store,
		users:         users,
		notifications: notifications,
		follow:        NewFollowService(store, users, notifications, log),
		feed:          feed,
		posts:         posts,
		engagement:    engagement,
		composer:      NewComposer(feed, users, posts, engagement, notifications),
		mirror:        mirror,
	}
}

func (e *env) addUser(t *testing.T, id, name string) {
	t.Helper()
	u := &model.User{ID: id, Username: name, ProfilePictureURL: "/img/" + id + ".png"}
	require.NoError(t, e.store.Set(context.Background(), model.UsersCollection, id, u.ToDoc()))
}

func (e *env) rawUser(t *testing.T, id string) *model.User {
	t.Helper()
	u, err := e.users.fetchUser(context.Background(), id)
	require.NoError(t, err)
	return u
}

func (e *env) addPost(t *testing.T, userID, title string) string {
	t.Helper()
	p, err := e.posts.CreatePost(context.Background(), userID, title, "some post content here")
	require.NoError(t, err)
	return p.ID
}

func (e *env) inbox(t *testing.T, userID string) []*model.Notification {
	t.Helper()
	page, err := e.notifications.FirstInboxPage(context.Background(), userID)
	require.NoError(t, err)
	return page.Notifications
}

func failOn(op, collection, id string) docstore.FaultFunc {
	return func(o, c, i string) error {
		if o == op && c == collection && (id == "" || i == id) {
			return docstore.ErrUnavailable
		}
		return nil
	}
}

func recv[T any](t *testing.T, s *Stream[T]) T {
	t.Helper()
	select {
	case u, ok := <-s.Updates():
		require.True(t, ok, "stream closed")
		require.NoError(t, u.Err)
		return u.Value
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for stream update")
	}
	var zero T
	return zero
}
