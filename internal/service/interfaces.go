package service

import (
	"context"

	"github.com/user/peninemate/internal/model"
	"github.com/user/peninemate/internal/repository"
)

// MovieStore 电影存储接口，由 repository.MovieRepository 实现
type MovieStore interface {
	FindByTMDBID(tmdbID int) (*model.Movie, error)
	Upsert(movie *model.Movie) error
	SearchByTitle(query string, limit int) ([]model.Movie, error)
	FindByDirector(name string, limit int) ([]model.Movie, error)
	FindByActor(name string, limit int) ([]model.Movie, error)
	FindForRecommendation(genres []string, years []int, exclude []string, limit int) ([]model.Movie, error)
	ListAll(fn func(m *model.Movie) error) error
	Count() (int64, error)
}

// CreditStore 演职员存储接口，由 repository.CreditRepository 实现
type CreditStore interface {
	SaveCredits(movieTMDBID int, entries []model.CreditEntry) error
	FindByMovie(movieTMDBID int) ([]model.Credit, error)
	HasCredits(movieTMDBID int) (bool, error)
}

// Embedder 文本向量生成接口，由 utils.OllamaClient 实现
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// TextGenerator 自然语言答案生成接口，由 Ollama 或 Gemini 客户端实现
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// MetadataAPI 外部电影元数据接口，由 TMDBClient 实现
type MetadataAPI interface {
	SearchMovie(ctx context.Context, query string) (*TMDBMovie, error)
	GetDetails(ctx context.Context, tmdbID int) (*TMDBMovie, error)
	GetCredits(ctx context.Context, tmdbID int) (*TMDBCredits, error)
	Discover(ctx context.Context, page int) ([]TMDBMovie, error)
}

var (
	_ MovieStore  = (*repository.MovieRepository)(nil)
	_ CreditStore = (*repository.CreditRepository)(nil)
	_ MetadataAPI = (*TMDBClient)(nil)
)
