package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strings"
	"time"

	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/utils"
)

// TMDBMovie TMDB 电影详情响应结构。搜索接口只填充其中一部分字段，
// Runtime、Revenue 等只有详情接口才有。
type TMDBMovie struct {
	ID          int     `json:"id"`
	Title       string  `json:"title"`
	Overview    string  `json:"overview"`
	ReleaseDate string  `json:"release_date"`
	Popularity  float64 `json:"popularity"`
	VoteAverage float64 `json:"vote_average"`
	Runtime     int     `json:"runtime"`
	Revenue     int64   `json:"revenue"`
	Genres      []struct {
		Name string `json:"name"`
	} `json:"genres"`
	GenreIDs []int `json:"genre_ids"`
}

// Year 从上映日期解析年份，解析失败返回 nil
func (m *TMDBMovie) Year() *int {
	if len(m.ReleaseDate) < 4 {
		return nil
	}
	var y int
	if _, err := fmt.Sscanf(m.ReleaseDate[:4], "%d", &y); err != nil {
		return nil
	}
	return &y
}

// GenreNames 详情接口返回的类型名列表
func (m *TMDBMovie) GenreNames() []string {
	names := make([]string, 0, len(m.Genres))
	for _, g := range m.Genres {
		names = append(names, g.Name)
	}
	return names
}

type tmdbSearchResponse struct {
	Page    int         `json:"page"`
	Results []TMDBMovie `json:"results"`
}

// TMDBCredits TMDB 演职员响应结构
type TMDBCredits struct {
	ID   int `json:"id"`
	Cast []struct {
		ID        int    `json:"id"`
		Name      string `json:"name"`
		Character string `json:"character"`
		Order     int    `json:"order"`
	} `json:"cast"`
	Crew []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
		Job  string `json:"job"`
	} `json:"crew"`
}

// TMDBClient TMDB API 客户端。外部接口可能限流或抖动，
// 每次请求前先查有界缓存，429 时按 1s/2s/4s 退避最多重试 3 次。
type TMDBClient struct {
	http    *utils.HTTPClient
	baseURL string

	searchCache   *utils.EntryCache[[]TMDBMovie]
	detailCache   *utils.EntryCache[*TMDBMovie]
	creditCache   *utils.EntryCache[*TMDBCredits]
	discoverCache *utils.EntryCache[[]TMDBMovie]
}

// NewTMDBClient 创建 TMDB 客户端
func NewTMDBClient(cfg *config.Config) *TMDBClient {
	return &TMDBClient{
		http:          utils.NewHTTPClient(15*time.Second, cfg.TMDBToken),
		baseURL:       strings.TrimRight(cfg.TMDBBaseURL, "/"),
		searchCache:   utils.NewEntryCache[[]TMDBMovie](512, 30*time.Minute),
		detailCache:   utils.NewEntryCache[*TMDBMovie](1024, time.Hour),
		creditCache:   utils.NewEntryCache[*TMDBCredits](1024, time.Hour),
		discoverCache: utils.NewEntryCache[[]TMDBMovie](64, 30*time.Minute),
	}
}

// getWithRetry 带退避重试的 GET。只对 429 重试，其余错误直接返回。
func (c *TMDBClient) getWithRetry(ctx context.Context, reqURL string, target interface{}) error {
	backoff := time.Second
	for attempt := 1; attempt <= 3; attempt++ {
		err := c.http.GetJSON(ctx, reqURL, target)
		if err == nil {
			return nil
		}
		if !errors.Is(err, utils.ErrRateLimited) {
			return err
		}
		if attempt == 3 {
			return err
		}
		log.Printf("[TMDB] 请求被限流，%v 后重试 (第 %d 次)", backoff, attempt)
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return ctx.Err()
		}
		backoff *= 2
	}
	return utils.ErrRateLimited
}

// SearchMovie 按标题搜索，返回最佳匹配（首条结果）。无结果时返回 (nil, nil)。
func (c *TMDBClient) SearchMovie(ctx context.Context, query string) (*TMDBMovie, error) {
	results, err := c.SearchMovies(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}
	return &results[0], nil
}

// SearchMovies 按标题搜索，返回候选列表
func (c *TMDBClient) SearchMovies(ctx context.Context, query string) ([]TMDBMovie, error) {
	cacheKey := "search:" + strings.ToLower(strings.TrimSpace(query))
	if cached, ok := c.searchCache.Get(cacheKey); ok {
		return cached, nil
	}

	reqURL := fmt.Sprintf("%s/search/movie?query=%s&language=en-US",
		c.baseURL, url.QueryEscape(query))

	var result tmdbSearchResponse
	if err := c.getWithRetry(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("TMDB 搜索失败: %w", err)
	}

	c.searchCache.Set(cacheKey, result.Results)
	return result.Results, nil
}

// GetDetails 获取电影详情
func (c *TMDBClient) GetDetails(ctx context.Context, tmdbID int) (*TMDBMovie, error) {
	cacheKey := fmt.Sprintf("movie:%d", tmdbID)
	if cached, ok := c.detailCache.Get(cacheKey); ok {
		return cached, nil
	}

	reqURL := fmt.Sprintf("%s/movie/%d?language=en-US", c.baseURL, tmdbID)

	var result TMDBMovie
	if err := c.getWithRetry(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("TMDB 详情获取失败: %w", err)
	}

	c.detailCache.Set(cacheKey, &result)
	return &result, nil
}

// GetCredits 获取演职员表
func (c *TMDBClient) GetCredits(ctx context.Context, tmdbID int) (*TMDBCredits, error) {
	cacheKey := fmt.Sprintf("credits:%d", tmdbID)
	if cached, ok := c.creditCache.Get(cacheKey); ok {
		return cached, nil
	}

	reqURL := fmt.Sprintf("%s/movie/%d/credits?language=en-US", c.baseURL, tmdbID)

	var result TMDBCredits
	if err := c.getWithRetry(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("TMDB 演职员获取失败: %w", err)
	}

	c.creditCache.Set(cacheKey, &result)
	return &result, nil
}

// Discover 按热度拉取一页电影，用于批量导入与推荐兜底
func (c *TMDBClient) Discover(ctx context.Context, page int) ([]TMDBMovie, error) {
	if page < 1 {
		page = 1
	}
	cacheKey := fmt.Sprintf("discover:popularity:%d", page)
	if cached, ok := c.discoverCache.Get(cacheKey); ok {
		return cached, nil
	}

	reqURL := fmt.Sprintf("%s/discover/movie?sort_by=popularity.desc&page=%d&language=en-US",
		c.baseURL, page)

	var result tmdbSearchResponse
	if err := c.getWithRetry(ctx, reqURL, &result); err != nil {
		return nil, fmt.Errorf("TMDB Discover 失败: %w", err)
	}

	c.discoverCache.Set(cacheKey, result.Results)
	return result.Results, nil
}

// CacheStats 各缓存的命中率统计
func (c *TMDBClient) CacheStats() map[string]utils.EntryCacheStats {
	return map[string]utils.EntryCacheStats{
		"search":   c.searchCache.Stats(),
		"detail":   c.detailCache.Stats(),
		"credits":  c.creditCache.Stats(),
		"discover": c.discoverCache.Stats(),
	}
}
