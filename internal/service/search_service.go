package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"

	"github.com/pgvector/pgvector-go"
	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/model"
	"github.com/user/peninemate/internal/vector"
	"golang.org/x/sync/singleflight"
)

// SearchService 混合检索服务。三段式检索管线：
// 关键词 → 语义 → 外部 API 懒加载兜底，前一段命中即停。
type SearchService struct {
	cfg      *config.Config
	movies   MovieStore
	credits  CreditStore
	index    *vector.Index
	embedder Embedder
	tmdb     MetadataAPI
	rewriter *QueryRewriter
	group    singleflight.Group
}

// NewSearchService 创建混合检索服务
func NewSearchService(cfg *config.Config, movies MovieStore, credits CreditStore,
	index *vector.Index, embedder Embedder, tmdb MetadataAPI) *SearchService {
	return &SearchService{
		cfg:      cfg,
		movies:   movies,
		credits:  credits,
		index:    index,
		embedder: embedder,
		tmdb:     tmdb,
		rewriter: NewQueryRewriter(),
	}
}

// SearchKeyword 关键词检索，精确匹配优先，其余按流行度降序
func (s *SearchService) SearchKeyword(query string, limit int) ([]model.SearchResult, error) {
	movies, err := s.movies.SearchByTitle(query, limit)
	if err != nil {
		return nil, fmt.Errorf("关键词检索失败: %w", err)
	}

	results := make([]model.SearchResult, 0, len(movies))
	for _, m := range movies {
		results = append(results, model.SearchResult{
			Movie:  m,
			Source: model.SourceKeyword,
		})
	}
	return results, nil
}

// SearchSemantic 语义检索：改写 → 向量化 → 近邻召回 → 阈值过滤 → 混合重排。
// 候选池为 limit 的 CandidatePool 倍，重排后截断回 limit。
// 索引为空或向量化失败时返回空结果而不是错误。
func (s *SearchService) SearchSemantic(ctx context.Context, query string, limit int) ([]model.SearchResult, error) {
	if s.index == nil || !s.index.Available() || s.embedder == nil {
		return nil, nil
	}

	rewritten := s.rewriter.Rewrite(query)

	queryVec, err := s.embedder.Embed(ctx, rewritten)
	if err != nil {
		log.Printf("[Search] 查询向量化失败，跳过语义检索: %v", err)
		return nil, nil
	}

	k := limit * s.cfg.CandidatePool
	if k < limit {
		k = limit
	}
	hits, err := s.index.Search(queryVec, k)
	if err != nil {
		log.Printf("[Search] 向量检索失败，跳过语义检索: %v", err)
		return nil, nil
	}

	results := make([]model.SearchResult, 0, len(hits))
	for _, hit := range hits {
		if hit.Similarity < s.cfg.MinSimilarity {
			continue
		}

		pop := hit.Meta.Popularity / s.cfg.PopularityScale
		if pop > 1 {
			pop = 1
		}
		final := s.cfg.SemanticWeight*hit.Similarity + (1-s.cfg.SemanticWeight)*pop

		results = append(results, model.SearchResult{
			Movie:           s.hydrate(hit.Meta),
			Source:          model.SourceSemantic,
			SimilarityScore: hit.Similarity,
			FinalScore:      final,
		})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].FinalScore > results[j].FinalScore
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// hydrate 用数据库记录补全索引元数据，库里没有时退化为元数据本身
func (s *SearchService) hydrate(meta vector.Meta) model.Movie {
	if m, err := s.movies.FindByTMDBID(meta.TMDBID); err == nil && m != nil {
		return *m
	}
	pop := meta.Popularity
	return model.Movie{
		TMDBID:     meta.TMDBID,
		Title:      meta.Title,
		Year:       meta.Year,
		Popularity: &pop,
	}
}

// SearchHybrid 三段式混合检索。返回结果与整体来源标记。
// 充分的标准是结果数达到请求的 limit：关键词结果够数才短路，
// 不够时并入语义结果补足（关键词在前，按 TMDB ID 去重），
// 两个阶段都空才进入外部兜底。
func (s *SearchService) SearchHybrid(ctx context.Context, query string, year *int, limit int) ([]model.SearchResult, string, error) {
	if limit <= 0 {
		limit = 5
	}

	// 阶段一：关键词
	keyword, err := s.SearchKeyword(query, limit)
	if err != nil {
		log.Printf("[Search] 关键词阶段出错，继续语义阶段: %v", err)
	}
	if len(keyword) >= limit {
		return s.finalize(keyword, year, limit), model.SourceKeyword, nil
	}

	// 阶段二：语义补足
	semantic, err := s.SearchSemantic(ctx, query, limit)
	if err != nil {
		log.Printf("[Search] 语义阶段出错，继续外部兜底: %v", err)
	}
	merged := dedupeResults(append(keyword, semantic...))
	if len(merged) > 0 {
		source := model.SourceSemantic
		if len(keyword) > 0 {
			source = model.SourceKeyword
		}
		return s.finalize(merged, year, limit), source, nil
	}

	// 阶段三：外部 API 懒加载兜底
	results := s.lazyFallback(ctx, query)
	if len(results) > 0 {
		return s.finalize(results, year, limit), model.SourceLazyLoad, nil
	}

	return nil, model.SourceDatabase, nil
}

// lazyFallback 外部 API 兜底。singleflight 合并同一查询的并发请求，
// 外部接口失败按未命中处理，不向上抛错。
func (s *SearchService) lazyFallback(ctx context.Context, query string) []model.SearchResult {
	if s.tmdb == nil {
		return nil
	}

	key := "fallback:" + strings.ToLower(strings.TrimSpace(query))
	val, err, _ := s.group.Do(key, func() (interface{}, error) {
		hit, err := s.tmdb.SearchMovie(ctx, query)
		if err != nil {
			return nil, err
		}
		if hit == nil {
			return (*model.Movie)(nil), nil
		}
		return s.EnsureMovie(ctx, hit.ID)
	})
	if err != nil {
		log.Printf("[Search] 外部兜底失败 (query=%q): %v", query, err)
		return nil
	}

	movie, _ := val.(*model.Movie)
	if movie == nil {
		return nil
	}
	return []model.SearchResult{{
		Movie:  *movie,
		Source: model.SourceLazyLoad,
	}}
}

// finalize 去重、年份提升、截断
func (s *SearchService) finalize(results []model.SearchResult, year *int, limit int) []model.SearchResult {
	deduped := dedupeResults(results)

	// 年份匹配的结果整体前移，稳定排序保持组内相对顺序
	if year != nil {
		sort.SliceStable(deduped, func(i, j int) bool {
			iMatch := deduped[i].Year != nil && *deduped[i].Year == *year
			jMatch := deduped[j].Year != nil && *deduped[j].Year == *year
			return iMatch && !jMatch
		})
	}

	if len(deduped) > limit {
		deduped = deduped[:limit]
	}
	return deduped
}

// dedupeResults 按 TMDB ID 去重，保留先到的条目
func dedupeResults(results []model.SearchResult) []model.SearchResult {
	seen := make(map[int]bool, len(results))
	out := results[:0:0]
	for _, r := range results {
		if seen[r.TMDBID] {
			continue
		}
		seen[r.TMDBID] = true
		out = append(out, r)
	}
	return out
}

// EnsureMovie 确保某部电影在本地完整落地：详情入库、演职员入库、向量入索引。
// 每一步都幂等，重复调用不会产生重复行或重复向量。
func (s *SearchService) EnsureMovie(ctx context.Context, tmdbID int) (*model.Movie, error) {
	details, err := s.tmdb.GetDetails(ctx, tmdbID)
	if err != nil {
		return nil, fmt.Errorf("获取详情失败: %w", err)
	}
	if details == nil {
		return nil, nil
	}

	pop := details.Popularity
	movie := &model.Movie{
		TMDBID:      details.ID,
		Title:       details.Title,
		Year:        details.Year(),
		Overview:    details.Overview,
		GenresCSV:   strings.Join(details.GenreNames(), ","),
		Popularity:  &pop,
		VoteAverage: details.VoteAverage,
		Runtime:     details.Runtime,
		DataSource:  "tmdb",
	}
	if details.Revenue > 0 {
		revenue := details.Revenue
		movie.BoxOfficeWorldwide = &revenue
	}

	// 演职员先行，向量描述需要导演和主演信息
	directors, cast := s.ensureCredits(ctx, tmdbID)

	// 向量化失败不阻断落库，索引可以事后重建
	desc := MovieDescription(movie, directors, cast)
	var vec []float32
	if s.embedder != nil {
		vec, err = s.embedder.Embed(ctx, desc)
		if err != nil {
			log.Printf("[Search] 电影向量化失败 (tmdb_id=%d): %v", tmdbID, err)
			vec = nil
		}
	}
	if vec != nil {
		pgv := pgvector.NewVector(vec)
		movie.Embedding = &pgv
	}

	if err := s.movies.Upsert(movie); err != nil {
		return nil, fmt.Errorf("电影入库失败: %w", err)
	}

	if vec != nil && s.index != nil {
		added, err := s.index.AddIfAbsent(vec, vector.Meta{
			TMDBID:     movie.TMDBID,
			Title:      movie.Title,
			Year:       movie.Year,
			Popularity: movie.PopularityValue(),
		})
		if err != nil {
			log.Printf("[Search] 向量入索引失败 (tmdb_id=%d): %v", tmdbID, err)
		} else if added {
			log.Printf("[Search] 懒加载入索引: %s (tmdb_id=%d)", movie.Title, movie.TMDBID)
		}
	}

	return movie, nil
}

// ensureCredits 拉取并保存演职员，返回导演与前五位主演名单。
// 外部接口失败时返回空名单，电影主体流程继续。
func (s *SearchService) ensureCredits(ctx context.Context, tmdbID int) (directors, cast []string) {
	creditsResp, err := s.tmdb.GetCredits(ctx, tmdbID)
	if err != nil || creditsResp == nil {
		if err != nil {
			log.Printf("[Search] 获取演职员失败 (tmdb_id=%d): %v", tmdbID, err)
		}
		return nil, nil
	}

	entries := make([]model.CreditEntry, 0, len(creditsResp.Cast)+len(creditsResp.Crew))
	for _, c := range creditsResp.Cast {
		order := c.Order
		entries = append(entries, model.CreditEntry{
			PersonTMDBID: c.ID,
			Name:         c.Name,
			CreditType:   "cast",
			Character:    c.Character,
			CastOrder:    &order,
		})
		if len(cast) < 5 {
			cast = append(cast, c.Name)
		}
	}
	for _, c := range creditsResp.Crew {
		if c.Job != "Director" {
			continue
		}
		entries = append(entries, model.CreditEntry{
			PersonTMDBID: c.ID,
			Name:         c.Name,
			CreditType:   "crew",
			Job:          c.Job,
		})
		directors = append(directors, c.Name)
	}

	if len(entries) > 0 {
		if err := s.credits.SaveCredits(tmdbID, entries); err != nil {
			log.Printf("[Search] 保存演职员失败 (tmdb_id=%d): %v", tmdbID, err)
		}
	}
	return directors, cast
}

// GetCreditsEnsured 读取演职员，库中没有时先从外部拉取一次
func (s *SearchService) GetCreditsEnsured(ctx context.Context, tmdbID int) ([]model.Credit, error) {
	has, err := s.credits.HasCredits(tmdbID)
	if err != nil {
		return nil, err
	}
	if !has && s.tmdb != nil {
		s.ensureCredits(ctx, tmdbID)
	}
	return s.credits.FindByMovie(tmdbID)
}

// MovieDescription 合成用于向量化的电影描述文本
func MovieDescription(m *model.Movie, directors, cast []string) string {
	var b strings.Builder
	b.WriteString(m.Title)
	if m.Year != nil {
		fmt.Fprintf(&b, " (%d)", *m.Year)
	}
	b.WriteString(".")
	if m.Overview != "" {
		b.WriteString(" ")
		b.WriteString(m.Overview)
	}
	if m.GenresCSV != "" {
		b.WriteString(" Genres: ")
		b.WriteString(strings.ReplaceAll(m.GenresCSV, ",", ", "))
		b.WriteString(".")
	}
	if len(directors) > 0 {
		b.WriteString(" Director: ")
		b.WriteString(strings.Join(directors, ", "))
		b.WriteString(".")
	}
	if len(cast) > 0 {
		b.WriteString(" Cast: ")
		b.WriteString(strings.Join(cast, ", "))
		b.WriteString(".")
	}
	return b.String()
}
