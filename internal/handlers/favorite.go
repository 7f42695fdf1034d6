package handlers

import (
	"net/http"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
)

const (
	favoritePageSize    = 20
	favoritePageSizeMax = 100
)

type FavoriteHandler struct {
	favorites *services.FavoriteService
}

func NewFavoriteHandler(favorites *services.FavoriteService) *FavoriteHandler {
	return &FavoriteHandler{favorites: favorites}
}

type favoriteRequest struct {
	FolderID *uint `json:"folder_id"`
}

// Favorite 收藏到指定收藏夹
func (h *FavoriteHandler) Favorite(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req favoriteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.FolderID == nil || *req.FolderID == 0 {
		badRequest(c, "请选择收藏夹")
		return
	}

	res, err := h.favorites.Favorite(c.Request.Context(), postID, viewer(c), *req.FolderID)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// Unfavorite 不带 folder_id 时从所有收藏夹移除
func (h *FavoriteHandler) Unfavorite(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	var req favoriteRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.FolderID == nil {
		if id, ok := paramQueryID(c, "folder_id"); ok {
			req.FolderID = &id
		}
	}

	res, err := h.favorites.Unfavorite(c.Request.Context(), postID, viewer(c), req.FolderID)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *FavoriteHandler) Status(c *gin.Context) {
	postID, ok := paramID(c, "id")
	if !ok {
		return
	}
	status, err := h.favorites.Status(c.Request.Context(), postID, viewer(c))
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// List 当前用户的收藏，每篇博客一项
func (h *FavoriteHandler) List(c *gin.Context) {
	page, size := pageParams(c, favoritePageSize, favoritePageSizeMax)
	result, err := h.favorites.ListFavorites(c.Request.Context(), viewer(c), page, size)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// FolderItems 收藏夹内容，非公开收藏夹仅所有者可见
func (h *FavoriteHandler) FolderItems(c *gin.Context) {
	folderID, ok := paramID(c, "id")
	if !ok {
		return
	}
	page, size := pageParams(c, favoritePageSize, favoritePageSizeMax)
	result, err := h.favorites.ListFolderFavorites(c.Request.Context(), viewer(c), folderID, page, size)
	if err != nil {
		RenderError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}
