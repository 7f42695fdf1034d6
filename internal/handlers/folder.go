package handlers

import (
	"net/http"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
)

type FolderHandler struct {
	folders *services.FolderService
}

func NewFolderHandler(folders *services.FolderService) *FolderHandler {
	return &FolderHandler{folders: folders}
}

type folderRequest struct {
	Name     *string `json:"name"`
	IsPublic *bool   `json:"is_public"`
}

func (h *FolderHandler) Create(c *gin.Context) {
	var req folderRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.Name == nil {
		badRequest(c, "收藏夹名称不能为空")
		return
	}

	view, err := h.folders.Create(c.Request.Context(), viewer(c), *req.Name, req.IsPublic)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, view)
}

func (h *FolderHandler) List(c *gin.Context) {
	views, err := h.folders.List(c.Request.Context(), viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"items": views})
}

func (h *FolderHandler) Update(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req folderRequest
	if !bindJSON(c, &req) {
		return
	}

	view, err := h.folders.Update(c.Request.Context(), viewer(c), id, req.Name, req.IsPublic)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Delete 删除收藏夹及其中的收藏
func (h *FolderHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.folders.Delete(c.Request.Context(), viewer(c), id); err != nil {
		RenderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
