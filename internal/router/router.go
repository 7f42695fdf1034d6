package router

import (
	"net/http"
	"v4corner/internal/handlers"
	"v4corner/internal/middleware"
	"v4corner/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// Deps 路由需要的服务
type Deps struct {
	DB                 *gorm.DB
	Comments           *services.CommentService
	Likes              *services.LikeService
	Favorites          *services.FavoriteService
	Folders            *services.FolderService
	Notifications      *services.NotificationService
	CommentPageSizeMax int
}

func RegisterRoutes(r *gin.Engine, deps Deps) {
	// Handlers
	commentHandler := handlers.NewCommentHandler(deps.Comments, deps.CommentPageSizeMax)
	likeHandler := handlers.NewLikeHandler(deps.Likes)
	favoriteHandler := handlers.NewFavoriteHandler(deps.Favorites)
	folderHandler := handlers.NewFolderHandler(deps.Folders)
	notificationHandler := handlers.NewNotificationHandler(deps.Notifications)

	r.GET("/health", health(deps.DB))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")

	// 公共路由，匿名用户也可访问
	api.GET("/blogs/:id/comments", commentHandler.List)                  // 评论列表
	api.GET("/comments/:id", commentHandler.Get)                         // 单条评论
	api.GET("/blogs/:id/like/status", likeHandler.Status)                // 点赞状态
	api.GET("/blogs/:id/favorite/status", favoriteHandler.Status)        // 收藏状态
	api.GET("/users/favorites/folders/:id", favoriteHandler.FolderItems) // 收藏夹内容

	// 受保护路由
	authorized := api.Group("")
	authorized.Use(middleware.AuthRequired())
	{
		authorized.POST("/blogs/:id/comments", commentHandler.Create) // 发表评论
		authorized.PUT("/comments/:id", commentHandler.Edit)          // 编辑评论
		authorized.DELETE("/comments/:id", commentHandler.Delete)     // 删除评论

		authorized.POST("/blogs/:id/like", likeHandler.Like)     // 点赞
		authorized.DELETE("/blogs/:id/like", likeHandler.Unlike) // 取消点赞

		authorized.POST("/blogs/:id/favorite", favoriteHandler.Favorite)     // 收藏
		authorized.DELETE("/blogs/:id/favorite", favoriteHandler.Unfavorite) // 取消收藏
		authorized.GET("/users/favorites", favoriteHandler.List)             // 我的收藏

		authorized.POST("/users/favorites/folders", folderHandler.Create)       // 新建收藏夹
		authorized.GET("/users/favorites/folders", folderHandler.List)          // 收藏夹列表
		authorized.PUT("/users/favorites/folders/:id", folderHandler.Update)    // 修改收藏夹
		authorized.DELETE("/users/favorites/folders/:id", folderHandler.Delete) // 删除收藏夹

		authorized.GET("/notifications", notificationHandler.List)                     // 通知列表
		authorized.GET("/notifications/unread-count", notificationHandler.UnreadCount) // 未读数
		authorized.POST("/notifications/read-all", notificationHandler.ReadAll)        // 全部标记为已读
		authorized.PUT("/notifications/:id/read", notificationHandler.Read)            // 标记单条通知为已读
		authorized.DELETE("/notifications/:id", notificationHandler.Delete)            // 删除单条通知
		authorized.DELETE("/notifications", notificationHandler.DeleteMany)            // 批量删除
	}
}

func health(conn *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		sqlDB, err := conn.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	}
}
