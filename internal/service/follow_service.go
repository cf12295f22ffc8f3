package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"Lee_Social/internal/model"
	"Lee_Social/internal/repository/docstore"
)

// Notifier 关注、点赞、评论完成后的通知出口
type Notifier interface {
	Notify(ctx context.Context, req NotifyRequest)
}

type FollowService struct {
	store  docstore.Store
	users  *UserService
	notify Notifier
	log    *zap.Logger
}

type FollowResult struct {
	NowFollowing bool `json:"nowFollowing"`
}

func NewFollowService(store docstore.Store, users *UserService, notify Notifier, log *zap.Logger) *FollowService {
	return &FollowService{store: store, users: users, notify: notify, log: log}
}

// ToggleFollow 关注/取关切换。
// 两边各一次单文档原子写，先写发起方的 following，再写目标的 followers。
// 写入的是确定的成员关系（加入或移除），不是盲目翻转，重读后再调用即可收敛。
func (s *FollowService) ToggleFollow(ctx context.Context, actingUserID, targetUserID string) (FollowResult, error) {
	if actingUserID == "" || targetUserID == "" {
		return FollowResult{}, invalid("userId", "required")
	}
	if actingUserID == targetUserID {
		return FollowResult{}, invalid("targetUserId", "cannot follow yourself")
	}

	acting, err := s.users.fetchUser(ctx, actingUserID)
	if err != nil {
		return FollowResult{}, err
	}
	target, err := s.users.fetchUser(ctx, targetUserID)
	if err != nil {
		return FollowResult{}, err
	}
	follow := !model.Contains(acting.Following, targetUserID)

	err = s.store.Mutate(ctx, model.UsersCollection, actingUserID, setMembership(model.FieldFollowing, targetUserID, follow))
	if err != nil {
		return FollowResult{}, storeErr("toggleFollow", model.UsersCollection, actingUserID, err)
	}
	err = s.store.Mutate(ctx, model.UsersCollection, targetUserID, setMembership(model.FieldFollowers, actingUserID, follow))
	if err != nil {
		s.users.Invalidate(actingUserID)
		partialFailures.WithLabelValues("toggleFollow").Inc()
		s.log.Error("follow edge left asymmetric",
			zap.String("acting", actingUserID), zap.String("target", targetUserID),
			zap.Bool("follow", follow), zap.Error(err))
		return FollowResult{}, &PartialFailureError{
			Op:        "toggleFollow",
			Committed: []string{fmt.Sprintf("%s/%s.%s", model.UsersCollection, actingUserID, model.FieldFollowing)},
			Failed:    fmt.Sprintf("%s/%s.%s", model.UsersCollection, targetUserID, model.FieldFollowers),
			Err:       storeErr("toggleFollow", model.UsersCollection, targetUserID, err),
		}
	}
	s.users.Invalidate(actingUserID, targetUserID)

	if follow {
		togglesTotal.WithLabelValues("follow", "on").Inc()
		s.notify.Notify(ctx, NotifyRequest{
			RecipientID:     target.ID,
			Type:            model.NotificationFollower,
			Template:        fmt.Sprintf("%s followed you.", displayName(acting)),
			RelatedEntityID: actingUserID,
			FromUserID:      actingUserID,
		})
	} else {
		togglesTotal.WithLabelValues("follow", "off").Inc()
	}
	return FollowResult{NowFollowing: follow}, nil
}

// IsFollowing 读发起方的 following
func (s *FollowService) IsFollowing(ctx context.Context, actingUserID, targetUserID string) (bool, error) {
	u, err := s.users.GetUser(ctx, actingUserID)
	if err != nil {
		return false, err
	}
	return model.Contains(u.Following, targetUserID), nil
}

func setMembership(field, id string, present bool) docstore.MutateFunc {
	return func(data map[string]any) (map[string]any, error) {
		set := model.Members(data, field)
		if present {
			data[field] = model.WithMember(set, id)
		} else {
			data[field] = model.WithoutMember(set, id)
		}
		return data, nil
	}
}

// GraphReconciler 关注关系对账：以 following 为准修正 followers。
// 同一对用户并发切换可能留下不对称的边，这里是离线修复路径。
type GraphReconciler struct {
	store     docstore.Store
	users     *UserService
	limiter   *rate.Limiter
	batchSize int
	interval  time.Duration
	log       *zap.Logger
}

func NewGraphReconciler(store docstore.Store, users *UserService, log *zap.Logger, interval time.Duration, rps float64) *GraphReconciler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	limit := rate.Limit(rps)
	if rps <= 0 {
		limit = rate.Inf
	}
	return &GraphReconciler{
		store:     store,
		users:     users,
		limiter:   rate.NewLimiter(limit, 1),
		batchSize: 200,
		interval:  interval,
		log:       log,
	}
}

// Run 对账定时任务
func (r *GraphReconciler) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := r.ReconcileOnce(ctx); err != nil {
				r.log.Warn("graph reconcile failed", zap.Error(err))
			}
		}
	}
}

// ReconcileOnce 扫描全部用户，返回实际做过的修复
func (r *GraphReconciler) ReconcileOnce(ctx context.Context) ([]model.GraphRepair, error) {
	following, err := r.scan(ctx)
	if err != nil {
		return nil, err
	}

	expected := make(map[string]map[string]struct{}, len(following))
	for id := range following {
		expected[id] = map[string]struct{}{}
	}
	for follower, set := range following {
		for _, followee := range set.following {
			if e, ok := expected[followee]; ok {
				e[follower] = struct{}{}
			}
		}
	}

	ids := make([]string, 0, len(following))
	for id := range following {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var repairs []model.GraphRepair
	for _, id := range ids {
		repair := diff(id, following[id].followers, expected[id])
		if repair.Empty() {
			continue
		}
		if err := r.limiter.Wait(ctx); err != nil {
			return repairs, err
		}
		err := r.store.Mutate(ctx, model.UsersCollection, id, func(data map[string]any) (map[string]any, error) {
			set := model.Members(data, model.FieldFollowers)
			for _, a := range repair.Added {
				set = model.WithMember(set, a)
			}
			for _, rm := range repair.Removed {
				set = model.WithoutMember(set, rm)
			}
			data[model.FieldFollowers] = set
			return data, nil
		})
		if err != nil {
			r.log.Warn("graph repair failed", zap.String("user_id", id), zap.Error(err))
			continue
		}
		r.users.Invalidate(id)
		graphRepairs.Inc()
		r.log.Info("graph repaired", zap.String("user_id", id),
			zap.Strings("added", repair.Added), zap.Strings("removed", repair.Removed))
		repairs = append(repairs, repair)
	}
	return repairs, nil
}

type edges struct {
	following []string
	followers []string
}

// scan 按文档ID分批读取全部用户
func (r *GraphReconciler) scan(ctx context.Context) (map[string]edges, error) {
	out := make(map[string]edges)
	q := docstore.NewQuery(model.UsersCollection).
		OrderBy(docstore.DocumentID, docstore.Asc).
		Take(r.batchSize)
	var after *docstore.Cursor
	for {
		if err := r.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		docs, err := r.store.Query(ctx, q.StartAfter(after))
		if err != nil {
			return nil, storeErr("reconcile", model.UsersCollection, "", err)
		}
		for _, d := range docs {
			out[d.ID] = edges{
				following: model.Members(d.Data, model.FieldFollowing),
				followers: model.Members(d.Data, model.FieldFollowers),
			}
		}
		if len(docs) < r.batchSize {
			return out, nil
		}
		after = docstore.CursorOf(q, docs[len(docs)-1])
	}
}

func diff(userID string, actual []string, expected map[string]struct{}) model.GraphRepair {
	repair := model.GraphRepair{UserID: userID}
	have := make(map[string]struct{}, len(actual))
	for _, id := range actual {
		have[id] = struct{}{}
		if _, ok := expected[id]; !ok {
			repair.Removed = append(repair.Removed, id)
		}
	}
	for id := range expected {
		if _, ok := have[id]; !ok {
			repair.Added = append(repair.Added, id)
		}
	}
	sort.Strings(repair.Added)
	sort.Strings(repair.Removed)
	return repair
}
