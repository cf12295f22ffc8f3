package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/middleware"
	"Lee_Social/internal/service"
)

type FollowHandler struct {
	svc   *service.FollowService
	users *service.UserService
}

func NewFollowHandler(svc *service.FollowService, users *service.UserService) *FollowHandler {
	return &FollowHandler{svc: svc, users: users}
}

// Toggle 关注/取关切换
func (h *FollowHandler) Toggle(c *gin.Context) {
	res, err := h.svc.ToggleFollow(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Relation 当前用户是否关注了目标
func (h *FollowHandler) Relation(c *gin.Context) {
	ok, err := h.svc.IsFollowing(c.Request.Context(), middleware.UserID(c), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": ok})
}

// ListFollowers 获取粉丝列表
func (h *FollowHandler) ListFollowers(c *gin.Context) {
	list, err := h.users.ListFollowers(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}

// ListFollowing 获取关注列表
func (h *FollowHandler) ListFollowing(c *gin.Context) {
	list, err := h.users.ListFollowing(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}
