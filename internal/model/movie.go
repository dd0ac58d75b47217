package model

import (
	"time"

	"github.com/pgvector/pgvector-go"
)

// Movie 电影记录（TMDB 元数据）
// TMDBID 是唯一稳定的外部标识，数据库、向量索引、缓存键都以它为关联键
type Movie struct {
	ID                 int              `json:"-" gorm:"primaryKey"`
	TMDBID             int              `json:"tmdb_id" gorm:"column:tmdb_id;uniqueIndex"`
	Title              string           `json:"title"`
	Year               *int             `json:"year"`
	Overview           string           `json:"overview"`
	GenresCSV          string           `json:"genres_csv" gorm:"column:genres_csv"`
	Popularity         *float64         `json:"popularity" gorm:"index"`
	VoteAverage        float64          `json:"vote_average"`
	Runtime            int              `json:"runtime"`
	BoxOfficeWorldwide *int64           `json:"box_office_worldwide"`
	BoxOfficeDomestic  *int64           `json:"box_office_domestic"`
	BoxOfficeForeign   *int64           `json:"box_office_foreign"`
	DataSource         string           `json:"data_source"`
	Embedding          *pgvector.Vector `json:"-" gorm:"type:vector(768)"`
	UpdatedAt          time.Time        `json:"updated_at" gorm:"index"`
}

// PopularityValue 流行度取值，空值按 0 处理
func (m *Movie) PopularityValue() float64 {
	if m.Popularity == nil {
		return 0
	}
	return *m.Popularity
}

// Person 人物（导演/演员）
type Person struct {
	ID           int    `json:"-" gorm:"primaryKey"`
	TMDBPersonID int    `json:"tmdb_person_id" gorm:"column:tmdb_person_id;uniqueIndex"`
	Name         string `json:"name"`
}

// Credit 演职员记录，关联电影与人物
type Credit struct {
	ID           int    `json:"-" gorm:"primaryKey"`
	MovieTMDBID  int    `json:"movie_tmdb_id" gorm:"column:movie_tmdb_id;index;uniqueIndex:idx_credit_unique"`
	PersonTMDBID int    `json:"person_tmdb_id" gorm:"column:person_tmdb_id;uniqueIndex:idx_credit_unique"`
	CreditType   string `json:"credit_type" gorm:"uniqueIndex:idx_credit_unique"` // cast / crew
	Character    string `json:"character,omitempty" gorm:"column:character_name"`
	Job          string `json:"job,omitempty" gorm:"uniqueIndex:idx_credit_unique"`
	CastOrder    *int   `json:"cast_order,omitempty"`

	// join 查询时填充，只读不落库
	PersonName string `json:"name" gorm:"column:person_name;<-:false"`
}

// CreditEntry 写入演职员时的输入条目（来自外部 API）
type CreditEntry struct {
	PersonTMDBID int
	Name         string
	CreditType   string
	Character    string
	Job          string
	CastOrder    *int
}
