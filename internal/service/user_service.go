package service

import (
	"context"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"Lee_Social/internal/cache"
	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

const (
	DefaultAuthorName   = "Anonymous"
	DefaultAuthorAvatar = "/default-avatar.png"

	// 存储端 in 查询一次最多 10 个值
	inQueryBatch = 10

	maxUserList = 50
)

var validate = validator.New(validator.WithRequiredStructEnabled())

type UserService struct {
	store    docstore.Store
	profiles *cache.Cache[*model.User]
	log      *zap.Logger
}

func NewUserService(store docstore.Store, profiles *cache.Cache[*model.User], log *zap.Logger) *UserService {
	if profiles == nil {
		profiles = cache.New[*model.User]("profiles")
	}
	return &UserService{store: store, profiles: profiles, log: log}
}

// GetUser 先查缓存，未命中再读文档并回填
func (s *UserService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, invalid("userId", "required")
	}
	u, err := s.profiles.GetOrFetch(ctx, userID, func(ctx context.Context) (*model.User, error) {
		return s.fetchUser(ctx, userID)
	})
	if err != nil {
		return nil, err
	}
	return u.Clone(), nil
}

// fetchUser 直接读存储，不经过缓存
func (s *UserService) fetchUser(ctx context.Context, userID string) (*model.User, error) {
	doc, err := s.store.Get(ctx, model.UsersCollection, userID)
	if err != nil {
		return nil, storeErr("getUser", model.UsersCollection, userID, err)
	}
	u, err := model.UserFromDoc(*doc)
	if err != nil {
		return nil, storeErr("getUser", model.UsersCollection, userID, err)
	}
	return u, nil
}

// Invalidate 自己写过的用户文档必须立即失效
func (s *UserService) Invalidate(userIDs ...string) {
	for _, id := range userIDs {
		s.profiles.Invalidate(id)
	}
}

// Author 展示用的作者信息，读不到时用默认值
func (s *UserService) Author(ctx context.Context, userID string) (name, avatar string) {
	u, err := s.GetUser(ctx, userID)
	if err != nil {
		if !isNotFound(err) {
			s.log.Warn("author lookup failed", zap.String("user_id", userID), zap.Error(err))
		}
		return DefaultAuthorName, DefaultAuthorAvatar
	}
	return displayName(u), avatarOf(u)
}

type authorInfo struct {
	Name   string
	Avatar string
}

// authors 并发解析一批作者
func (s *UserService) authors(ctx context.Context, userIDs []string) map[string]authorInfo {
	out := make(map[string]authorInfo, len(userIDs))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, id := range uniq(userIDs) {
		id := id
		g.Go(func() error {
			name, avatar := s.Author(gctx, id)
			mu.Lock()
			out[id] = authorInfo{Name: name, Avatar: avatar}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func displayName(u *model.User) string {
	if u == nil || strings.TrimSpace(u.Username) == "" {
		return DefaultAuthorName
	}
	return u.Username
}

func avatarOf(u *model.User) string {
	if u == nil || u.ProfilePictureURL == "" {
		return DefaultAuthorAvatar
	}
	return u.ProfilePictureURL
}

// ProfilePatch 只更新非 nil 的字段
type ProfilePatch struct {
	Username          *string `json:"username" validate:"omitempty,min=1,max=50"`
	Bio               *string `json:"bio" validate:"omitempty,max=500"`
	ProfilePictureURL *string `json:"profilePictureURL" validate:"omitempty,max=2048"`
}

func (s *UserService) UpdateProfile(ctx context.Context, userID string, patch ProfilePatch) (*model.User, error) {
	if userID == "" {
		return nil, invalid("userId", "required")
	}
	if patch.Username != nil {
		trimmed := strings.TrimSpace(*patch.Username)
		patch.Username = &trimmed
	}
	if err := validate.Struct(patch); err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}
	partial := map[string]any{}
	if patch.Username != nil {
		if *patch.Username == "" {
			return nil, invalid("username", "must not be empty")
		}
		partial["username"] = *patch.Username
	}
	if patch.Bio != nil {
		partial["bio"] = *patch.Bio
	}
	if patch.ProfilePictureURL != nil {
		partial["profilePictureURL"] = *patch.ProfilePictureURL
	}
	if len(partial) == 0 {
		return s.GetUser(ctx, userID)
	}
	if err := s.store.Update(ctx, model.UsersCollection, userID, partial); err != nil {
		return nil, storeErr("updateProfile", model.UsersCollection, userID, err)
	}
	s.Invalidate(userID)
	return s.GetUser(ctx, userID)
}

func (s *UserService) TouchLastLogin(ctx context.Context, userID string) error {
	if userID == "" {
		return invalid("userId", "required")
	}
	err := s.store.Update(ctx, model.UsersCollection, userID, map[string]any{
		model.FieldLastLogin: docstore.ServerTimestamp,
	})
	if err != nil {
		return storeErr("touchLastLogin", model.UsersCollection, userID, err)
	}
	s.Invalidate(userID)
	return nil
}

// ListUsers 最近登录的用户，没有 lastLogin 的不在列表里
func (s *UserService) ListUsers(ctx context.Context, limit int) ([]*model.User, error) {
	if limit <= 0 || limit > maxUserList {
		limit = maxUserList
	}
	q := docstore.NewQuery(model.UsersCollection).
		OrderBy(model.FieldLastLogin, docstore.Desc).
		Take(limit)
	docs, err := s.store.Query(ctx, q)
	if err != nil {
		return nil, storeErr("listUsers", model.UsersCollection, "", err)
	}
	return s.decodeUsers(docs), nil
}

func (s *UserService) ListFollowers(ctx context.Context, userID string) ([]*model.User, error) {
	u, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, u.Followers)
}

func (s *UserService) ListFollowing(ctx context.Context, userID string) ([]*model.User, error) {
	u, err := s.fetchUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, u.Following)
}

// getMany 按 in 查询分批读取，结果保持 ids 的顺序，不存在的用户跳过
func (s *UserService) getMany(ctx context.Context, ids []string) ([]*model.User, error) {
	ids = uniq(ids)
	byID := make(map[string]*model.User, len(ids))
	for start := 0; start < len(ids); start += inQueryBatch {
		end := min(start+inQueryBatch, len(ids))
		q := docstore.NewQuery(model.UsersCollection).
			Where(docstore.DocumentID, docstore.OpIn, ids[start:end])
		docs, err := s.store.Query(ctx, q)
		if err != nil {
			return nil, storeErr("listUsers", model.UsersCollection, "", err)
		}
		for _, u := range s.decodeUsers(docs) {
			byID[u.ID] = u
		}
	}
	out := make([]*model.User, 0, len(byID))
	for _, id := range ids {
		if u, ok := byID[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *UserService) decodeUsers(docs []docstore.Document) []*model.User {
	out := make([]*model.User, 0, len(docs))
	for _, d := range docs {
		u, err := model.UserFromDoc(d)
		if err != nil {
			malformedSkipped.WithLabelValues(model.UsersCollection).Inc()
			s.log.Warn("skip malformed user", zap.String("user_id", d.ID), zap.Error(err))
			continue
		}
		out = append(out, u)
	}
	return out
}

func uniq(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
