package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/middleware"
	"Lee_Social/internal/service"
)

type UserHandler struct {
	users    *service.UserService
	feed     *service.FeedService
	composer *service.Composer
}

func NewUserHandler(users *service.UserService, feed *service.FeedService, composer *service.Composer) *UserHandler {
	return &UserHandler{users: users, feed: feed, composer: composer}
}

// Profile 个人主页
func (h *UserHandler) Profile(c *gin.Context) {
	view, err := h.composer.GetProfile(c.Request.Context(), c.Param("id"), middleware.UserID(c), c.Query("cursor"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// ListUsers 最近登录的用户
func (h *UserHandler) ListUsers(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	list, err := h.users.ListUsers(c.Request.Context(), limit)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

// Posts 某个用户的帖子
func (h *UserHandler) Posts(c *gin.Context) {
	page, err := h.feed.ListUserPosts(c.Request.Context(), c.Param("id"), c.Query("cursor"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// UpdateMe 修改自己的资料
func (h *UserHandler) UpdateMe(c *gin.Context) {
	var patch service.ProfilePatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	u, err := h.users.UpdateProfile(c.Request.Context(), middleware.UserID(c), patch)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, u)
}

// Login 身份提供方登录成功后由前端调用，记录最近登录时间
func (h *UserHandler) Login(c *gin.Context) {
	if err := h.users.TouchLastLogin(c.Request.Context(), middleware.UserID(c)); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "ok"})
}
