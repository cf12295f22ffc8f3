package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"Lee_Social/internal/cache"
	"Lee_Social/internal/handler"
	"Lee_Social/internal/middleware"
	"Lee_Social/internal/model"
	"Lee_Social/internal/pkg"
	"Lee_Social/internal/repository/docstore"
	"Lee_Social/internal/service"
)

type fixture struct {
	engine   *gin.Engine
	store    *docstore.MemoryStore
	verifier *pkg.TokenVerifier
}

func newFixture(t *testing.T, sessions middleware.SessionChecker) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := zap.NewNop()
	store := docstore.NewMemoryStore()
	users := service.NewUserService(store, cache.New[*model.User]("router_test_profiles"), log)
	notifications := service.NewNotificationService(store, nil, log, 10)
	feed := service.NewFeedService(store, users, log, 10)
	posts := service.NewPostService(store, log)
	engagement := service.NewEngagementService(store, users, notifications, log)
	svc := Services{
		Users:         users,
		Posts:         posts,
		Feed:          feed,
		Follow:        service.NewFollowService(store, users, notifications, log),
		Engagement:    engagement,
		Notifications: notifications,
		Composer:      service.NewComposer(feed, users, posts, engagement, notifications),
	}
	verifier := pkg.NewTokenVerifier("test-secret")
	engine := InitRouter(svc, verifier, sessions, handler.NewLiveHandler(log))

	for _, u := range []*model.User{{ID: "A", Username: "alice"}, {ID: "B", Username: "bob"}} {
		require.NoError(t, store.Set(context.Background(), model.UsersCollection, u.ID, u.ToDoc()))
	}
	return &fixture{engine: engine, store: store, verifier: verifier}
}

type fakeSessions map[string]string

func (f fakeSessions) Check(_ context.Context, userID, token string) error {
	if f[userID] != token {
		return errors.New("mismatch")
	}
	return nil
}

func (f *fixture) token(t *testing.T, userID string) string {
	t.Helper()
	tok, err := f.verifier.Issue(userID, time.Minute)
	require.NoError(t, err)
	return tok
}

func (f *fixture) do(t *testing.T, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+f.token(t, userID))
	}
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestAuthRequired(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodGet, "/api/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/feed?token="+f.token(t, "A"), nil)
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestSessionCheck(t *testing.T) {
	sessions := fakeSessions{}
	f := newFixture(t, sessions)
	current := f.token(t, "A")
	sessions["A"] = current

	req := httptest.NewRequest(http.MethodGet, "/api/feed", nil)
	req.Header.Set("Authorization", "Bearer "+current)
	w := httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	sessions["A"] = "newer-login"
	w = httptest.NewRecorder()
	f.engine.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestFollowFlow(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/follow/B", "A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[service.FollowResult](t, w).NowFollowing)

	w = f.do(t, http.MethodGet, "/api/follow/B", "A", nil)
	assert.JSONEq(t, `{"following":true}`, w.Body.String())

	w = f.do(t, http.MethodGet, "/api/notifications", "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	inbox := decode[service.InboxPage](t, w)
	require.Len(t, inbox.Notifications, 1)
	assert.Equal(t, "alice followed you.", inbox.Notifications[0].Message)

	w = f.do(t, http.MethodPost, "/api/notifications/"+inbox.Notifications[0].ID+"/read", "B", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, http.MethodPost, "/api/follow/A", "A", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w = f.do(t, http.MethodPost, "/api/follow/ghost", "A", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPartialFailureIsConflict(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetFault(func(op, collection, id string) error {
		if op == "mutate" && id == "B" {
			return docstore.ErrUnavailable
		}
		return nil
	})
	w := f.do(t, http.MethodPost, "/api/follow/B", "A", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	body := decode[map[string]any](t, w)
	assert.Equal(t, "users/B.followers", body["failed"])
}

func TestTransientIsServiceUnavailable(t *testing.T) {
	f := newFixture(t, nil)
	f.store.SetFault(func(op, _, _ string) error {
		if op == "query" {
			return docstore.ErrUnavailable
		}
		return nil
	})
	w := f.do(t, http.MethodGet, "/api/feed", "A", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
}

func TestPostLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(t, http.MethodPost, "/api/posts", "A", map[string]string{"title": "Hello", "content": "this is long enough"})
	require.Equal(t, http.StatusCreated, w.Code)
	post := decode[model.Post](t, w)

	w = f.do(t, http.MethodPost, "/api/posts", "A", map[string]string{"title": "Hello", "content": "short"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/posts/"+post.ID+"/like", "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, service.LikeResult{Liked: true, LikeCount: 1}, decode[service.LikeResult](t, w))

	w = f.do(t, http.MethodPost, "/api/posts/"+post.ID+"/comments", "B", map[string]string{"text": "nice"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = f.do(t, http.MethodPost, "/api/posts/"+post.ID+"/comments", "B", map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodGet, "/api/posts/"+post.ID, "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[service.PostView](t, w)
	assert.True(t, view.LikedByViewer)
	assert.Len(t, view.Comments, 1)
	assert.Equal(t, "alice", view.AuthorName)

	w = f.do(t, http.MethodGet, "/api/feed", "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	feed := decode[service.FeedPage](t, w)
	require.Len(t, feed.Items, 1)
	assert.Equal(t, 1, feed.Items[0].LikeCount)

	w = f.do(t, http.MethodGet, "/api/feed?cursor=garbage!", "B", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodDelete, "/api/posts/"+post.ID, "B", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	w = f.do(t, http.MethodDelete, "/api/posts/"+post.ID, "A", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = f.do(t, http.MethodGet, "/api/posts/"+post.ID, "A", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/follow/A", "B", nil).Code)

	w := f.do(t, http.MethodGet, "/api/users/A", "B", nil)
	require.Equal(t, http.StatusOK, w.Code)
	view := decode[service.ProfileView](t, w)
	assert.Equal(t, 1, view.FollowerCount)
	assert.True(t, view.IsFollowing)

	w = f.do(t, http.MethodPatch, "/api/users/me", "A", map[string]string{"bio": "hello there"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello there", decode[model.User](t, w).Bio)

	w = f.do(t, http.MethodGet, "/api/users/A/followers", "A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"B"`)

	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/users/me/login", "A", nil).Code)
	w = f.do(t, http.MethodGet, "/api/users", "A", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"alice"`)
}

func TestLiveFeed(t *testing.T) {
	f := newFixture(t, nil)
	srv := httptest.NewServer(f.engine)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/feed/live?token=" + f.token(t, "A")
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(3*time.Second)))

	type message struct {
		Kind string           `json:"kind"`
		Data service.FeedPage `json:"data"`
	}
	var first message
	require.NoError(t, ws.ReadJSON(&first))
	assert.Equal(t, "feed", first.Kind)
	assert.Empty(t, first.Data.Items)

	w := f.do(t, http.MethodPost, "/api/posts", "A", map[string]string{"title": "Live", "content": "pushed to clients"})
	require.Equal(t, http.StatusCreated, w.Code)

	for {
		var next message
		require.NoError(t, ws.ReadJSON(&next))
		if len(next.Data.Items) == 1 {
			assert.Equal(t, "Live", next.Data.Items[0].Post.Title)
			return
		}
	}
}
