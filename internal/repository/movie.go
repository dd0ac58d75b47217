package repository

import (
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/user/peninemate/internal/model"
	"gorm.io/gorm"
)

type MovieRepository struct {
	db *gorm.DB
}

func NewMovieRepository(db *gorm.DB) *MovieRepository {
	return &MovieRepository{db: db}
}

// FindByTMDBID 根据 TMDB ID 查找电影，未命中返回 (nil, nil)
func (r *MovieRepository) FindByTMDBID(tmdbID int) (*model.Movie, error) {
	var movie model.Movie
	err := r.db.Where("tmdb_id = ?", tmdbID).First(&movie).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &movie, nil
}

// Upsert 创建或更新电影，以 tmdb_id 为冲突键，幂等
func (r *MovieRepository) Upsert(movie *model.Movie) error {
	return r.db.Exec(`
		INSERT INTO movies (tmdb_id, title, year, overview, genres_csv, popularity,
		                    vote_average, runtime, box_office_worldwide, box_office_domestic,
		                    box_office_foreign, data_source, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (tmdb_id) DO UPDATE SET
			title = EXCLUDED.title,
			year = EXCLUDED.year,
			overview = EXCLUDED.overview,
			genres_csv = EXCLUDED.genres_csv,
			popularity = EXCLUDED.popularity,
			vote_average = EXCLUDED.vote_average,
			runtime = EXCLUDED.runtime,
			box_office_worldwide = EXCLUDED.box_office_worldwide,
			box_office_domestic = EXCLUDED.box_office_domestic,
			box_office_foreign = EXCLUDED.box_office_foreign,
			data_source = EXCLUDED.data_source,
			embedding = COALESCE(EXCLUDED.embedding, movies.embedding),
			updated_at = EXCLUDED.updated_at
	`, movie.TMDBID, movie.Title, movie.Year, movie.Overview, movie.GenresCSV,
		movie.Popularity, movie.VoteAverage, movie.Runtime,
		movie.BoxOfficeWorldwide, movie.BoxOfficeDomestic, movie.BoxOfficeForeign,
		movie.DataSource, movie.Embedding, time.Now()).Error
}

// SearchByTitle 标题关键词检索
// 排序规则：精确匹配（不区分大小写）优先于子串匹配，组内按流行度降序、空值最后。
// 精确优先用来修正系列片续集靠流行度压过正传的问题。
func (r *MovieRepository) SearchByTitle(query string, limit int) ([]model.Movie, error) {
	var movies []model.Movie
	err := r.db.Raw(`
		SELECT * FROM movies
		WHERE title ILIKE ?
		ORDER BY
			CASE WHEN LOWER(title) = LOWER(?) THEN 0 ELSE 1 END,
			popularity DESC NULLS LAST
		LIMIT ?
	`, "%"+query+"%", query, limit).Scan(&movies).Error
	if err != nil {
		return nil, err
	}
	return movies, nil
}

// FindByDirector 根据导演姓名查电影
func (r *MovieRepository) FindByDirector(name string, limit int) ([]model.Movie, error) {
	var movies []model.Movie
	err := r.db.Raw(`
		SELECT DISTINCT m.tmdb_id, m.title, m.year, m.overview, m.popularity
		FROM movies m
		JOIN credits c ON m.tmdb_id = c.movie_tmdb_id
		JOIN people p ON c.person_tmdb_id = p.tmdb_person_id
		WHERE p.name ILIKE ?
			AND c.credit_type = 'crew'
			AND c.job = 'Director'
		ORDER BY m.popularity DESC NULLS LAST
		LIMIT ?
	`, "%"+name+"%", limit).Scan(&movies).Error
	if err != nil {
		return nil, err
	}
	return movies, nil
}

// FindByActor 根据演员姓名查电影
func (r *MovieRepository) FindByActor(name string, limit int) ([]model.Movie, error) {
	var movies []model.Movie
	err := r.db.Raw(`
		SELECT DISTINCT m.tmdb_id, m.title, m.year, m.overview, m.popularity
		FROM movies m
		JOIN credits c ON m.tmdb_id = c.movie_tmdb_id
		JOIN people p ON c.person_tmdb_id = p.tmdb_person_id
		WHERE p.name ILIKE ?
			AND c.credit_type = 'cast'
		ORDER BY m.popularity DESC NULLS LAST
		LIMIT ?
	`, "%"+name+"%", limit).Scan(&movies).Error
	if err != nil {
		return nil, err
	}
	return movies, nil
}

// FindForRecommendation 按偏好筛选本地电影，用于推荐
func (r *MovieRepository) FindForRecommendation(genres []string, years []int, exclude []string, limit int) ([]model.Movie, error) {
	tx := r.db.Model(&model.Movie{}).Where("vote_average > 0")

	if len(genres) > 0 {
		cond := r.db.Where("genres_csv ILIKE ?", "%"+genres[0]+"%")
		for _, g := range genres[1:] {
			cond = cond.Or("genres_csv ILIKE ?", "%"+g+"%")
		}
		tx = tx.Where(cond)
	}
	if len(years) > 0 {
		tx = tx.Where("year = ANY(?)", pq.Array(years))
	}
	if len(exclude) > 0 {
		tx = tx.Where("title NOT IN ?", exclude)
	}

	var movies []model.Movie
	err := tx.Order("popularity DESC NULLS LAST").
		Order("vote_average DESC").
		Limit(limit).
		Find(&movies).Error
	if err != nil {
		return nil, err
	}
	return movies, nil
}

// ListAll 分批遍历全部电影，用于重建向量索引
func (r *MovieRepository) ListAll(fn func(m *model.Movie) error) error {
	var movies []model.Movie
	result := r.db.FindInBatches(&movies, 200, func(tx *gorm.DB, batch int) error {
		for i := range movies {
			if err := fn(&movies[i]); err != nil {
				return err
			}
		}
		return nil
	})
	return result.Error
}

// Count 电影总数
func (r *MovieRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Movie{}).Count(&n).Error
	return n, err
}
