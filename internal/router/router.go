package router

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Lee_Social/internal/handler"
	"Lee_Social/internal/middleware"
	"Lee_Social/internal/pkg"
	"Lee_Social/internal/service"
)

// Services 路由需要的全部服务
type Services struct {
	Users         *service.UserService
	Posts         *service.PostService
	Feed          *service.FeedService
	Follow        *service.FollowService
	Engagement    *service.EngagementService
	Notifications *service.NotificationService
	Composer      *service.Composer
}

func InitRouter(svc Services, verifier *pkg.TokenVerifier, sessions middleware.SessionChecker, live *handler.LiveHandler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) { c.JSON(200, gin.H{"msg": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	feed := handler.NewFeedHandler(svc.Composer, live)
	post := handler.NewPostHandler(svc.Posts, svc.Engagement, svc.Composer)
	follow := handler.NewFollowHandler(svc.Follow, svc.Users)
	user := handler.NewUserHandler(svc.Users, svc.Feed, svc.Composer)
	notification := handler.NewNotificationHandler(svc.Notifications)

	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(verifier, sessions))

	// 首页与实时推送
	api.GET("/feed", feed.Feed)
	api.GET("/feed/live", feed.LiveFeed)

	// 帖子相关接口
	postGroup := api.Group("/posts")
	{
		postGroup.POST("", post.CreatePost)
		postGroup.GET("/:id", post.GetPost)
		postGroup.DELETE("/:id", post.DeletePost)
		postGroup.POST("/:id/like", post.ToggleLike)
		postGroup.GET("/:id/comments", post.ListComments)
		postGroup.POST("/:id/comments", post.AddComment)
	}

	// 用户关注相关接口
	api.POST("/follow/:id", follow.Toggle)
	api.GET("/follow/:id", follow.Relation)

	userGroup := api.Group("/users")
	{
		userGroup.GET("", user.ListUsers)
		userGroup.PATCH("/me", user.UpdateMe)
		userGroup.POST("/me/login", user.Login)
		userGroup.GET("/:id", user.Profile)
		userGroup.GET("/:id/posts", user.Posts)
		userGroup.GET("/:id/followers", follow.ListFollowers)
		userGroup.GET("/:id/following", follow.ListFollowing)
	}

	// 通知
	api.GET("/notifications", feed.Inbox)
	api.GET("/notifications/live", feed.LiveInbox)
	api.POST("/notifications/:id/read", notification.MarkRead)

	return r
}
