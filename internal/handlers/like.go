package handlers

import (
	"net/http"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
)

type LikeHandler struct {
	likes *services.LikeService
}

func NewLikeHandler(likes *services.LikeService) *LikeHandler {
	return &LikeHandler{likes: likes}
}

// Like 点赞博客，重复点赞返回 409
func (h *LikeHandler) Like(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.likes.Like(c.Request.Context(), postID, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *LikeHandler) Unlike(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	res, err := h.likes.Unlike(c.Request.Context(), postID, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *LikeHandler) Status(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	status, err := h.likes.Status(c.Request.Context(), postID, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
