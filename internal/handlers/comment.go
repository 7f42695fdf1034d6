package handlers

import (
	"net/http"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
)

const commentPageSize = 20

type CommentHandler struct {
	comments    *services.CommentService
	pageSizeMax int
}

func NewCommentHandler(comments *services.CommentService, pageSizeMax int) *CommentHandler {
	if pageSizeMax < 1 {
		pageSizeMax = commentPageSize
	}
	return &CommentHandler{comments: comments, pageSizeMax: pageSizeMax}
}

type createCommentRequest struct {
	Content  string `json:"content"`
	ParentID *uint  `json:"parent_id"`
}

type editCommentRequest struct {
	Content string `json:"content"`
}

// List 博客下的评论（支持匿名访问）
func (h *CommentHandler) List(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	sort, err := services.ParseCommentSort(c.Query("sort"))
	if err != nil {
		RenderError(c, err)
		return
	}
	page, size := pageParams(c, min(commentPageSize, h.pageSizeMax), h.pageSizeMax)

	result, err := h.comments.List(c.Request.Context(), postID, services.CommentQuery{Sort: sort, Page: page, Size: size}, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Create 发表评论或回复
func (h *CommentHandler) Create(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req createCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.comments.Create(c.Request.Context(), postID, viewer(c), req.Content, req.ParentID)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *CommentHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	view, err := h.comments.Get(c.Request.Context(), id, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Edit 仅评论作者可编辑
func (h *CommentHandler) Edit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req editCommentRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.comments.Edit(c.Request.Context(), id, viewer(c), req.Content)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete 软删除评论及其全部回复
func (h *CommentHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	deleted, err := h.comments.Delete(c.Request.Context(), id, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"deleted_count": deleted})
}
