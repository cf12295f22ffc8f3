package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"Lee_Social/internal/cache"
	"Lee_Social/internal/model"
	"Lee_Social/internal/pkg"
	"Lee_Social/internal/repository/badger"
	"Lee_Social/internal/repository/docstore"
	"Lee_Social/internal/repository/mysql"
	"Lee_Social/internal/repository/redis"
	"Lee_Social/internal/router"
	"Lee_Social/internal/service"
)

// app 进程级依赖
type app struct {
	cfg      pkg.Config
	log      *zap.Logger
	store    docstore.Store
	rdb      *goredis.Client
	feed     *redis.ChangeFeed
	producer *pkg.KafkaProducer
	services router.Services
	closers  []func() error
}

func newApp(cfg pkg.Config, log *zap.Logger) (*app, error) {
	a := &app{cfg: cfg, log: log}

	var changes docstore.ChangeFeed
	if cfg.RedisAddr != "" {
		rdb, err := redis.Init(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.rdb = rdb
		a.closers = append(a.closers, rdb.Close)
		a.feed = redis.NewChangeFeed(rdb, log)
		changes = a.feed
	}

	store, err := a.openStore(changes)
	if err != nil {
		a.close()
		return nil, err
	}
	a.store = store

	var mirror service.Mirror
	if len(cfg.KafkaBrokers) > 0 {
		p, err := pkg.NewKafkaProducer(pkg.KafkaConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.KafkaTopic})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("kafka producer: %w", err)
		}
		a.producer = p
		a.closers = append(a.closers, p.Close)
		mirror = p
	}

	profiles := cache.New[*model.User]("profiles", cache.WithTTL(cfg.ProfileCacheTTL))
	users := service.NewUserService(store, profiles, log)
	notifications := service.NewNotificationService(store, mirror, log, cfg.InboxPageSize)
	feed := service.NewFeedService(store, users, log, cfg.FeedPageSize)
	posts := service.NewPostService(store, log)
	engagement := service.NewEngagementService(store, users, notifications, log)
	a.services = router.Services{
		Users:         users,
		Posts:         posts,
		Feed:          feed,
		Follow:        service.NewFollowService(store, users, notifications, log),
		Engagement:    engagement,
		Notifications: notifications,
		Composer:      service.NewComposer(feed, users, posts, engagement, notifications),
	}
	return a, nil
}

func (a *app) openStore(changes docstore.ChangeFeed) (docstore.Store, error) {
	switch a.cfg.StoreBackend {
	case "memory":
		var opts []docstore.MemoryOption
		if changes != nil {
			opts = append(opts, docstore.WithFeed(changes))
		}
		return docstore.NewMemoryStore(opts...), nil
	case "badger":
		var opts []badger.Option
		if changes != nil {
			opts = append(opts, badger.WithFeed(changes))
		}
		s, err := badger.Open(badger.Config{
			Path:       a.cfg.BadgerPath,
			SyncWrites: true,
			GCInterval: 5 * time.Minute,
			Logger:     a.log,
		}, opts...)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, s.Close)
		return s, nil
	case "mysql":
		if a.cfg.MySQLDSN == "" {
			return nil, errors.New("MYSQL_DSN is required for the mysql backend")
		}
		db, err := mysql.InitDB(a.cfg.MySQLDSN)
		if err != nil {
			return nil, fmt.Errorf("connect mysql: %w", err)
		}
		if sqlDB, err := db.DB(); err == nil {
			a.closers = append(a.closers, sqlDB.Close)
		}
		return mysql.NewDocumentStore(db, changes), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", a.cfg.StoreBackend)
}

// runChangeFeed 多实例时转发 redis 的变更广播
func (a *app) runChangeFeed(ctx context.Context) {
	if a.feed == nil {
		return
	}
	go func() {
		if err := a.feed.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Warn("change feed stopped", zap.Error(err))
		}
	}()
}

func (a *app) sessions() *redis.SessionRepository {
	if a.rdb == nil || !a.cfg.SessionCheck {
		return nil
	}
	return redis.NewSessionRepository(a.rdb)
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.log.Warn("close failed", zap.Error(err))
		}
	}
	a.closers = nil
}
