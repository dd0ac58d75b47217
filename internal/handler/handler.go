package handler

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/model"
	"github.com/user/peninemate/internal/repository"
	"github.com/user/peninemate/internal/service"
	"github.com/user/peninemate/internal/utils"
	"github.com/user/peninemate/internal/vector"
)

// Handler HTTP 处理器
type Handler struct {
	Repos     *repository.Repositories
	Config    *config.Config
	Search    *service.SearchService
	QAService *service.QAService
	Builder   *service.IndexBuilder
	TMDB      *service.TMDBClient
	Index     *vector.Index
}

// NewHandler 创建处理器
func NewHandler(repos *repository.Repositories, cfg *config.Config,
	search *service.SearchService, qa *service.QAService,
	builder *service.IndexBuilder, tmdb *service.TMDBClient, index *vector.Index) *Handler {
	return &Handler{
		Repos:     repos,
		Config:    cfg,
		Search:    search,
		QAService: qa,
		Builder:   builder,
		TMDB:      tmdb,
		Index:     index,
	}
}

// ==================== 问答 ====================

// QARequest 问答请求体
type QARequest struct {
	Question string              `json:"question" binding:"required"`
	History  []model.ChatMessage `json:"conversation_history"`
}

// QA 问答接口。无历史的提问命中短时缓存时直接返回。
func (h *Handler) QA(c *gin.Context) {
	var req QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "question 不能为空")
		return
	}

	cacheKey := ""
	if len(req.History) == 0 {
		cacheKey = "qa:" + strings.ToLower(strings.TrimSpace(req.Question))
		if cached, ok := utils.CacheGet(cacheKey); ok {
			utils.Success(c, cached)
			return
		}
	}

	result := h.QAService.AnswerQuestion(c.Request.Context(), req.Question, req.History)

	if cacheKey != "" && result.Found {
		utils.CacheSet(cacheKey, result, 5*time.Minute)
	}
	utils.Success(c, result)
}

// ==================== 电影 ====================

// SearchMovies 混合检索接口
func (h *Handler) SearchMovies(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		utils.BadRequest(c, "q 不能为空")
		return
	}

	var year *int
	if y, err := strconv.Atoi(c.Query("year")); err == nil && y >= 1880 && y <= 2100 {
		year = &y
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", "5"))
	if err != nil || limit <= 0 || limit > 20 {
		limit = 5
	}

	results, source, err := h.Search.SearchHybrid(c.Request.Context(), query, year, limit)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	if results == nil {
		results = []model.SearchResult{}
	}

	utils.Success(c, gin.H{
		"query":   query,
		"source":  source,
		"results": results,
	})
}

// MovieDetail 电影详情，带导演与前十位主演
func (h *Handler) MovieDetail(c *gin.Context) {
	tmdbID, err := strconv.Atoi(c.Param("tmdb_id"))
	if err != nil || tmdbID <= 0 {
		utils.BadRequest(c, "无效的 tmdb_id")
		return
	}

	movie, err := h.Repos.Movie.FindByTMDBID(tmdbID)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	if movie == nil {
		utils.NotFound(c, "电影不存在")
		return
	}

	var directors, cast []string
	credits, err := h.Search.GetCreditsEnsured(c.Request.Context(), tmdbID)
	if err == nil {
		for _, cr := range credits {
			switch {
			case cr.CreditType == "crew" && cr.Job == "Director":
				directors = append(directors, cr.PersonName)
			case cr.CreditType == "cast" && len(cast) < 10:
				cast = append(cast, cr.PersonName)
			}
		}
	}

	utils.Success(c, gin.H{
		"movie":     movie,
		"directors": directors,
		"cast":      cast,
	})
}

// ==================== 推荐 ====================

// RecommendRequest 推荐请求体
type RecommendRequest struct {
	Genres  []string `json:"genres"`
	Years   []int    `json:"years"`
	Exclude []string `json:"exclude"`
	Limit   int      `json:"limit"`
}

// Recommend 推荐接口
func (h *Handler) Recommend(c *gin.Context) {
	var req RecommendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "请求体格式错误")
		return
	}

	result, err := h.QAService.Recommend(c.Request.Context(), req.Genres, req.Years, req.Exclude, req.Limit)
	if err != nil {
		utils.InternalServerError(c, "")
		return
	}
	utils.Success(c, result)
}

// ==================== 运维 ====================

// Health 健康检查，任一子系统降级时整体状态为 degraded
func (h *Handler) Health(c *gin.Context) {
	dbStatus := "ok"
	if sqlDB, err := h.Repos.DB.DB(); err != nil || sqlDB.Ping() != nil {
		dbStatus = "down"
	}

	indexStatus := "ok"
	if !h.Index.Available() {
		indexStatus = "empty"
	}

	cacheStatus := "ok"
	if utils.Cache == nil {
		cacheStatus = "down"
	}

	status := "ok"
	if dbStatus != "ok" || indexStatus != "ok" || cacheStatus != "ok" {
		status = "degraded"
	}

	c.JSON(200, gin.H{
		"status": status,
		"checks": gin.H{
			"database":     dbStatus,
			"vector_index": indexStatus,
			"cache":        cacheStatus,
		},
	})
}

// Stats 运行统计，结果短时缓存
func (h *Handler) Stats(c *gin.Context) {
	if cached, ok := utils.CacheGet("stats"); ok {
		utils.Success(c, cached)
		return
	}

	movieCount, _ := h.Repos.Movie.Count()
	creditCount, _ := h.Repos.Credit.Count()
	peopleCount, _ := h.Repos.Credit.CountPeople()

	stats := gin.H{
		"movies":      movieCount,
		"credits":     creditCount,
		"people":      peopleCount,
		"index_size":  h.Index.Len(),
		"tmdb_caches": h.TMDB.CacheStats(),
		"hot_cache":   utils.Cache.ItemCount(),
	}

	utils.CacheSet("stats", stats, 30*time.Second)
	utils.Success(c, stats)
}

// ==================== 管理 ====================

// AdminRebuild 全量重建向量索引
func (h *Handler) AdminRebuild(c *gin.Context) {
	stats, err := h.Builder.Rebuild(c.Request.Context())
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessWithMessage(c, "索引重建完成", stats)
}

// ImportRequest 批量导入请求体
type ImportRequest struct {
	Pages int `json:"pages"`
}

// AdminImport 从外部热门列表批量导入
func (h *Handler) AdminImport(c *gin.Context) {
	var req ImportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Pages = 1
	}

	stats, err := h.Builder.ImportDiscover(c.Request.Context(), req.Pages)
	if err != nil {
		utils.InternalServerError(c, err.Error())
		return
	}
	utils.SuccessWithMessage(c, "批量导入完成", stats)
}
