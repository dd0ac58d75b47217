package service

import (
	"context"
	"fmt"
	"log"

	"github.com/user/peninemate/internal/model"
	"github.com/user/peninemate/internal/vector"
)

// IndexBuilder 向量索引离线重建与批量导入。
// 索引本身没有删除能力，数据修正统一走全量重建。
type IndexBuilder struct {
	movies   MovieStore
	index    *vector.Index
	embedder Embedder
	search   *SearchService
	tmdb     MetadataAPI
}

// NewIndexBuilder 创建索引构建器
func NewIndexBuilder(movies MovieStore, index *vector.Index, embedder Embedder,
	search *SearchService, tmdb MetadataAPI) *IndexBuilder {
	return &IndexBuilder{
		movies:   movies,
		index:    index,
		embedder: embedder,
		search:   search,
		tmdb:     tmdb,
	}
}

// RebuildStats 一次重建的统计
type RebuildStats struct {
	Total    int `json:"total"`
	Indexed  int `json:"indexed"`
	Reused   int `json:"reused"`
	Embedded int `json:"embedded"`
	Skipped  int `json:"skipped"`
}

// Rebuild 从数据库全量重建向量索引。
// 优先复用库里已存的向量，缺失时现场重新向量化，成功后整体替换并落盘。
func (b *IndexBuilder) Rebuild(ctx context.Context) (*RebuildStats, error) {
	stats := &RebuildStats{}
	var vectors [][]float32
	var metas []vector.Meta

	err := b.movies.ListAll(func(m *model.Movie) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Total++

		var vec []float32
		if m.Embedding != nil && len(m.Embedding.Slice()) == b.index.Dim() {
			vec = m.Embedding.Slice()
			stats.Reused++
		} else if b.embedder != nil {
			desc := MovieDescription(m, nil, nil)
			embedded, err := b.embedder.Embed(ctx, desc)
			if err != nil || len(embedded) != b.index.Dim() {
				log.Printf("[IndexBuilder] 向量化失败，跳过 %s (tmdb_id=%d): %v", m.Title, m.TMDBID, err)
				stats.Skipped++
				return nil
			}
			vec = embedded
			stats.Embedded++
		} else {
			stats.Skipped++
			return nil
		}

		vectors = append(vectors, vec)
		metas = append(metas, vector.Meta{
			TMDBID:     m.TMDBID,
			Title:      m.Title,
			Year:       m.Year,
			Popularity: m.PopularityValue(),
		})
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("遍历电影失败: %w", err)
	}

	if err := b.index.ReplaceAll(vectors, metas); err != nil {
		return stats, fmt.Errorf("替换索引失败: %w", err)
	}

	stats.Indexed = len(vectors)
	log.Printf("[IndexBuilder] 重建完成: 共 %d 部，入索引 %d，复用向量 %d，重新向量化 %d，跳过 %d",
		stats.Total, stats.Indexed, stats.Reused, stats.Embedded, stats.Skipped)
	return stats, nil
}

// ImportStats 一次批量导入的统计
type ImportStats struct {
	Pages    int `json:"pages"`
	Imported int `json:"imported"`
	Failed   int `json:"failed"`
}

// ImportDiscover 从外部热门列表批量导入电影，逐部走完整落地流程
func (b *IndexBuilder) ImportDiscover(ctx context.Context, pages int) (*ImportStats, error) {
	if pages < 1 {
		pages = 1
	}
	if pages > 10 {
		pages = 10
	}
	stats := &ImportStats{Pages: pages}

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		discovered, err := b.tmdb.Discover(ctx, page)
		if err != nil {
			return stats, fmt.Errorf("拉取第 %d 页失败: %w", page, err)
		}

		for _, d := range discovered {
			if _, err := b.search.EnsureMovie(ctx, d.ID); err != nil {
				log.Printf("[IndexBuilder] 导入失败 %s (tmdb_id=%d): %v", d.Title, d.ID, err)
				stats.Failed++
				continue
			}
			stats.Imported++
		}
	}

	log.Printf("[IndexBuilder] 批量导入完成: %d 页，成功 %d，失败 %d",
		stats.Pages, stats.Imported, stats.Failed)
	return stats, nil
}
