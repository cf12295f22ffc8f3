package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/middleware"
	"Lee_Social/internal/service"
)

type PostHandler struct {
	posts      *service.PostService
	engagement *service.EngagementService
	composer   *service.Composer
}

func NewPostHandler(posts *service.PostService, engagement *service.EngagementService, composer *service.Composer) *PostHandler {
	return &PostHandler{posts: posts, engagement: engagement, composer: composer}
}

type createPostReq struct {
	Title   string `json:"title" binding:"required"`
	Content string `json:"content" binding:"required"`
}

// CreatePost 发帖
func (h *PostHandler) CreatePost(c *gin.Context) {
	var req createPostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	post, err := h.posts.CreatePost(c.Request.Context(), middleware.UserID(c), req.Title, req.Content)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, post)
}

// GetPost 帖子详情
func (h *PostHandler) GetPost(c *gin.Context) {
	view, err := h.composer.GetPost(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// DeletePost 只有作者能删
func (h *PostHandler) DeletePost(c *gin.Context) {
	if err := h.posts.DeletePost(c.Request.Context(), middleware.UserID(c), c.Param("id")); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"msg": "deleted"})
}

// ToggleLike 点赞/取消点赞
func (h *PostHandler) ToggleLike(c *gin.Context) {
	res, err := h.engagement.ToggleLike(c.Request.Context(), c.Param("id"), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type addCommentReq struct {
	Text string `json:"text"`
}

// AddComment 评论
func (h *PostHandler) AddComment(c *gin.Context) {
	var req addCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"msg": "invalid params"})
		return
	}
	comment, err := h.engagement.AddComment(c.Request.Context(), c.Param("id"), middleware.UserID(c), req.Text)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, comment)
}

// ListComments 评论列表（时间正序）
func (h *PostHandler) ListComments(c *gin.Context) {
	list, err := h.engagement.ListComments(c.Request.Context(), c.Param("id"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"list": list})
}
