package router

import (
	"github.com/gin-gonic/gin"
	"github.com/user/peninemate/internal/handler"
	"github.com/user/peninemate/internal/middleware"
)

// RegisterRoutes 注册所有路由
func RegisterRoutes(r *gin.Engine, h *handler.Handler) {
	// 健康检查
	r.GET("/health", h.Health)

	// ==================== 公开 API ====================
	api := r.Group("/api/v1")
	{
		api.POST("/qa", h.QA)
		api.GET("/movies/search", h.SearchMovies)
		api.GET("/movies/:tmdb_id", h.MovieDetail)
		api.POST("/recommend", h.Recommend)
		api.GET("/stats", h.Stats)
	}

	// ==================== 管理 API ====================
	admin := r.Group("/api/v1/admin")
	admin.Use(middleware.AdminAuth(h.Config.AdminToken))
	{
		admin.POST("/index/rebuild", h.AdminRebuild)
		admin.POST("/import/discover", h.AdminImport)
	}
}
