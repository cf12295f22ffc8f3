package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"Lee_Social/internal/middleware"
	"Lee_Social/internal/service"
)

type FeedHandler struct {
	composer *service.Composer
	live     *LiveHandler
}

func NewFeedHandler(composer *service.Composer, live *LiveHandler) *FeedHandler {
	return &FeedHandler{composer: composer, live: live}
}

// Feed 首页；带 cursor 时为加载更多
func (h *FeedHandler) Feed(c *gin.Context) {
	page, err := h.composer.GetFeedPage(c.Request.Context(), c.Query("cursor"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// LiveFeed 首页第一页实时推送
func (h *FeedHandler) LiveFeed(c *gin.Context) {
	stream, err := h.composer.OpenFeed(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	serveStream(h.live, c, "feed", stream)
}

// Inbox 通知列表；带 cursor 时为加载更多
func (h *FeedHandler) Inbox(c *gin.Context) {
	page, err := h.composer.GetInbox(c.Request.Context(), middleware.UserID(c), c.Query("cursor"))
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// LiveInbox 通知第一页实时推送
func (h *FeedHandler) LiveInbox(c *gin.Context) {
	stream, err := h.composer.OpenInbox(c.Request.Context(), middleware.UserID(c))
	if err != nil {
		fail(c, err)
		return
	}
	serveStream(h.live, c, "inbox", stream)
}
