package service

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/user/peninemate/internal/config"
	"github.com/user/peninemate/internal/model"
	"github.com/user/peninemate/internal/vector"
)

// ==================== 测试替身 ====================

type fakeMovieStore struct {
	mu     sync.Mutex
	movies map[int]*model.Movie
}

func newFakeMovieStore() *fakeMovieStore {
	return &fakeMovieStore{movies: make(map[int]*model.Movie)}
}

func (s *fakeMovieStore) FindByTMDBID(tmdbID int) (*model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.movies[tmdbID]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (s *fakeMovieStore) Upsert(movie *model.Movie) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *movie
	s.movies[movie.TMDBID] = &copied
	return nil
}

func (s *fakeMovieStore) SearchByTitle(query string, limit int) ([]model.Movie, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Movie
	for _, m := range s.movies {
		if strings.Contains(strings.ToLower(m.Title), strings.ToLower(query)) {
			out = append(out, *m)
		}
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func (s *fakeMovieStore) FindByDirector(name string, limit int) ([]model.Movie, error) {
	return nil, nil
}

func (s *fakeMovieStore) FindByActor(name string, limit int) ([]model.Movie, error) {
	return nil, nil
}

func (s *fakeMovieStore) FindForRecommendation(genres []string, years []int, exclude []string, limit int) ([]model.Movie, error) {
	return nil, nil
}

func (s *fakeMovieStore) ListAll(fn func(m *model.Movie) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range s.movies {
		if err := fn(m); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeMovieStore) Count() (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return int64(len(s.movies)), nil
}

type fakeCreditStore struct {
	mu      sync.Mutex
	credits map[int][]model.Credit
	saves   int
}

func newFakeCreditStore() *fakeCreditStore {
	return &fakeCreditStore{credits: make(map[int][]model.Credit)}
}

func (s *fakeCreditStore) SaveCredits(movieTMDBID int, entries []model.CreditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	for _, e := range entries {
		s.credits[movieTMDBID] = append(s.credits[movieTMDBID], model.Credit{
			MovieTMDBID:  movieTMDBID,
			PersonTMDBID: e.PersonTMDBID,
			CreditType:   e.CreditType,
			Character:    e.Character,
			Job:          e.Job,
			CastOrder:    e.CastOrder,
			PersonName:   e.Name,
		})
	}
	return nil
}

func (s *fakeCreditStore) FindByMovie(movieTMDBID int) ([]model.Credit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.credits[movieTMDBID], nil
}

func (s *fakeCreditStore) HasCredits(movieTMDBID int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.credits[movieTMDBID]) > 0, nil
}

type fakeEmbedder struct {
	vec   []float32
	calls int
}

func (e *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	e.calls++
	return e.vec, nil
}

type fakeMetadataAPI struct {
	searchResult *TMDBMovie
	details      map[int]*TMDBMovie
	searchCalls  int
	detailCalls  int
}

func (f *fakeMetadataAPI) SearchMovie(ctx context.Context, query string) (*TMDBMovie, error) {
	f.searchCalls++
	return f.searchResult, nil
}

func (f *fakeMetadataAPI) GetDetails(ctx context.Context, tmdbID int) (*TMDBMovie, error) {
	f.detailCalls++
	return f.details[tmdbID], nil
}

func (f *fakeMetadataAPI) GetCredits(ctx context.Context, tmdbID int) (*TMDBCredits, error) {
	return nil, nil
}

func (f *fakeMetadataAPI) Discover(ctx context.Context, page int) ([]TMDBMovie, error) {
	return nil, nil
}

func testConfig() *config.Config {
	return &config.Config{
		EmbedDim:        2,
		MinSimilarity:   0.4,
		SemanticWeight:  0.7,
		PopularityScale: 100,
		CandidatePool:   4,
	}
}

func testIndex(t *testing.T) *vector.Index {
	t.Helper()
	dir := t.TempDir()
	return vector.New(2, filepath.Join(dir, "v.index"), filepath.Join(dir, "v_metadata.json"))
}

func intPtr(v int) *int { return &v }

func addMovie(s *fakeMovieStore, tmdbID int, title string, year *int) {
	pop := 50.0
	s.movies[tmdbID] = &model.Movie{
		TMDBID:     tmdbID,
		Title:      title,
		Year:       year,
		Popularity: &pop,
	}
}

// ==================== 关键词与充分性 ====================

func TestHybridKeywordFillingLimitStopsPipeline(t *testing.T) {
	store := newFakeMovieStore()
	addMovie(store, 1, "Inception", intPtr(2010))
	tmdb := &fakeMetadataAPI{}
	embedder := &fakeEmbedder{vec: []float32{1, 0}}

	svc := NewSearchService(testConfig(), store, newFakeCreditStore(), testIndex(t), embedder, tmdb)

	results, source, err := svc.SearchHybrid(context.Background(), "Inception", nil, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceKeyword, source)
	// 关键词结果够数时不再进入后续阶段
	assert.Equal(t, 0, embedder.calls)
	assert.Equal(t, 0, tmdb.searchCalls)
}

func TestHybridMergesSemanticWhenKeywordUnderfills(t *testing.T) {
	store := newFakeMovieStore()
	addMovie(store, 1, "Inception", intPtr(2010))

	idx := testIndex(t)
	// 索引里同时有关键词已命中的电影和一部新电影，
	// 去重后语义阶段只应补入后者
	_, err := idx.AddIfAbsent([]float32{1, 0}, vector.Meta{TMDBID: 1, Title: "Inception", Popularity: 80})
	require.NoError(t, err)
	_, err = idx.AddIfAbsent([]float32{1, 0}, vector.Meta{TMDBID: 2, Title: "Interstellar", Popularity: 70})
	require.NoError(t, err)

	tmdb := &fakeMetadataAPI{}
	svc := NewSearchService(testConfig(), store, newFakeCreditStore(), idx, &fakeEmbedder{vec: []float32{1, 0}}, tmdb)

	results, source, err := svc.SearchHybrid(context.Background(), "Inception", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	// 关键词结果在前，语义补足在后
	assert.Equal(t, "Inception", results[0].Title)
	assert.Equal(t, model.SourceKeyword, results[0].Source)
	assert.Equal(t, "Interstellar", results[1].Title)
	assert.Equal(t, model.SourceSemantic, results[1].Source)
	assert.Equal(t, model.SourceKeyword, source)
	// 本地已有结果，不触发外部兜底
	assert.Equal(t, 0, tmdb.searchCalls)
}

// ==================== 年份提升 ====================

func TestFinalizeYearBoostIsStablePartition(t *testing.T) {
	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), testIndex(t), nil, nil)

	in := []model.SearchResult{
		{Movie: model.Movie{TMDBID: 1, Title: "A", Year: intPtr(2010)}},
		{Movie: model.Movie{TMDBID: 2, Title: "B", Year: intPtr(1999)}},
		{Movie: model.Movie{TMDBID: 3, Title: "C", Year: intPtr(2010)}},
	}

	out := svc.finalize(in, intPtr(2010), 5)
	require.Len(t, out, 3)
	assert.Equal(t, "A", out[0].Title)
	assert.Equal(t, "C", out[1].Title)
	assert.Equal(t, "B", out[2].Title)
}

func TestFinalizeNoYearKeepsOrder(t *testing.T) {
	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), testIndex(t), nil, nil)

	in := []model.SearchResult{
		{Movie: model.Movie{TMDBID: 1, Title: "A"}},
		{Movie: model.Movie{TMDBID: 2, Title: "B"}},
	}
	out := svc.finalize(in, nil, 5)
	require.Len(t, out, 2)
	assert.Equal(t, "A", out[0].Title)
	assert.Equal(t, "B", out[1].Title)
}

// ==================== 去重 ====================

func TestDedupeKeepsFirstArrival(t *testing.T) {
	in := []model.SearchResult{
		{Movie: model.Movie{TMDBID: 1, Title: "First"}, Source: model.SourceKeyword},
		{Movie: model.Movie{TMDBID: 2, Title: "Other"}},
		{Movie: model.Movie{TMDBID: 1, Title: "Duplicate"}, Source: model.SourceSemantic},
	}

	out := dedupeResults(in)
	require.Len(t, out, 2)
	assert.Equal(t, "First", out[0].Title)
	assert.Equal(t, model.SourceKeyword, out[0].Source)
}

// ==================== 语义检索 ====================

func TestSemanticThresholdFiltersWeakMatches(t *testing.T) {
	idx := testIndex(t)
	year := 2010
	// 距离 0 → 相似度 1，保留；距离平方 4 → 相似度 0.2，低于 0.4 过滤
	_, err := idx.AddIfAbsent([]float32{1, 0}, vector.Meta{TMDBID: 1, Title: "Close", Year: &year, Popularity: 50})
	require.NoError(t, err)
	_, err = idx.AddIfAbsent([]float32{3, 0}, vector.Meta{TMDBID: 2, Title: "Far", Year: &year, Popularity: 50})
	require.NoError(t, err)

	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), idx, &fakeEmbedder{vec: []float32{1, 0}}, nil)

	results, err := svc.SearchSemantic(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "Close", results[0].Title)
	assert.Equal(t, model.SourceSemantic, results[0].Source)
}

func TestSemanticRerankBlendsPopularity(t *testing.T) {
	idx := testIndex(t)
	// 两条向量与查询距离相同，流行度高者应排前
	_, err := idx.AddIfAbsent([]float32{1, 0.1}, vector.Meta{TMDBID: 1, Title: "Niche", Popularity: 5})
	require.NoError(t, err)
	_, err = idx.AddIfAbsent([]float32{1, -0.1}, vector.Meta{TMDBID: 2, Title: "Blockbuster", Popularity: 95})
	require.NoError(t, err)

	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), idx, &fakeEmbedder{vec: []float32{1, 0}}, nil)

	results, err := svc.SearchSemantic(context.Background(), "anything", 5)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "Blockbuster", results[0].Title)
	assert.Greater(t, results[0].FinalScore, results[1].FinalScore)
}

func TestSemanticUnavailableOnEmptyIndex(t *testing.T) {
	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), testIndex(t), &fakeEmbedder{vec: []float32{1, 0}}, nil)

	results, err := svc.SearchSemantic(context.Background(), "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// ==================== 懒加载兜底 ====================

func TestLazyFallbackPersistsOnce(t *testing.T) {
	store := newFakeMovieStore()
	credits := newFakeCreditStore()
	idx := testIndex(t)
	tmdb := &fakeMetadataAPI{
		searchResult: &TMDBMovie{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31", Popularity: 80},
		details: map[int]*TMDBMovie{
			603: {ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31", Popularity: 80, Overview: "A hacker discovers reality is a simulation."},
		},
	}

	svc := NewSearchService(testConfig(), store, credits, idx, &fakeEmbedder{vec: []float32{1, 0}}, tmdb)

	// 两次落地同一部电影
	for i := 0; i < 2; i++ {
		movie, err := svc.EnsureMovie(context.Background(), 603)
		require.NoError(t, err)
		require.NotNil(t, movie)
		assert.Equal(t, "The Matrix", movie.Title)
	}

	count, _ := store.Count()
	assert.Equal(t, int64(1), count)
	assert.Equal(t, 1, idx.Len())
}

func TestHybridFallbackWhenLocalMisses(t *testing.T) {
	store := newFakeMovieStore()
	tmdb := &fakeMetadataAPI{
		searchResult: &TMDBMovie{ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31", Popularity: 80},
		details: map[int]*TMDBMovie{
			603: {ID: 603, Title: "The Matrix", ReleaseDate: "1999-03-31", Popularity: 80},
		},
	}

	svc := NewSearchService(testConfig(), store, newFakeCreditStore(), testIndex(t), &fakeEmbedder{vec: []float32{1, 0}}, tmdb)

	results, source, err := svc.SearchHybrid(context.Background(), "matrix", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceLazyLoad, source)
	assert.Equal(t, model.SourceLazyLoad, results[0].Source)

	// 落地后的第二次检索由关键词阶段命中
	results, source, err = svc.SearchHybrid(context.Background(), "matrix", nil, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, model.SourceKeyword, source)
	assert.Equal(t, 1, tmdb.searchCalls)
}

func TestHybridNoResultAnywhere(t *testing.T) {
	tmdb := &fakeMetadataAPI{}
	svc := NewSearchService(testConfig(), newFakeMovieStore(), newFakeCreditStore(), testIndex(t), &fakeEmbedder{vec: []float32{1, 0}}, tmdb)

	results, _, err := svc.SearchHybrid(context.Background(), "nonexistent", nil, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

// ==================== 描述合成 ====================

func TestMovieDescription(t *testing.T) {
	year := 2010
	m := &model.Movie{
		Title:     "Inception",
		Year:      &year,
		Overview:  "A thief steals secrets through dreams.",
		GenresCSV: "Action,Science Fiction",
	}

	desc := MovieDescription(m, []string{"Christopher Nolan"}, []string{"Leonardo DiCaprio"})
	assert.Contains(t, desc, "Inception (2010).")
	assert.Contains(t, desc, "Genres: Action, Science Fiction.")
	assert.Contains(t, desc, "Director: Christopher Nolan.")
	assert.Contains(t, desc, "Cast: Leonardo DiCaprio.")
}
