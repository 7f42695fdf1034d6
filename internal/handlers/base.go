package handlers

import (
	"errors"
	"net/http"
	"strings"
	"v4corner/internal/apperr"
	"v4corner/internal/middleware"
	"v4corner/internal/utils"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RenderError writes {"code", "detail"} with the status matching the error's code.
func RenderError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		zerolog.Ctx(c.Request.Context()).Error().Err(err).Msg("request failed")
	}
	c.AbortWithStatusJSON(status, gin.H{
		"code":   apperr.CodeOf(err),
		"detail": msg(err),
	})
}

// 对外只暴露 AppError 的 Message，不带底层数据库错误
func msg(err error) string {
	var appErr *apperr.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "服务器内部错误"
}

func badRequest(c *gin.Context, format string, args ...any) {
	RenderError(c, apperr.InvalidInput(format, args...))
}

// paramID 解析路径中的正整数 ID，失败时已写入 400 响应
func paramID(c *gin.Context, name string) (uint, bool) {
	id, ok := utils.ParseID(c.Param(name))
	if !ok {
		badRequest(c, "无效的ID")
		return 0, false
	}
	return id, true
}

func pageParams(c *gin.Context, defaultSize, maxSize int) (int, int) {
	return utils.Page(c.Query("page"), c.Query("size"), defaultSize, maxSize)
}

func boolQuery(c *gin.Context, name string) bool {
	switch strings.ToLower(c.Query(name)) {
	case "1", "true", "yes":
		return true
	}
	return false
}

// bindJSON 允许空请求体
func bindJSON(c *gin.Context, obj any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(obj); err != nil {
		badRequest(c, "请求格式错误")
		return false
	}
	return true
}

func viewer(c *gin.Context) uint {
	return middleware.ViewerID(c)
}

func paramQueryID(c *gin.Context, name string) (uint, bool) {
	return utils.ParseID(c.Query(name))
}
