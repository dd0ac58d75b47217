package repository

import (
	"fmt"

	"github.com/user/peninemate/internal/model"
	"gorm.io/gorm"
)

type CreditRepository struct {
	db *gorm.DB
}

func NewCreditRepository(db *gorm.DB) *CreditRepository {
	return &CreditRepository{db: db}
}

// SaveCredits 写入一部电影的演职员记录，人物与记录都以冲突键去重，幂等
func (r *CreditRepository) SaveCredits(movieTMDBID int, entries []model.CreditEntry) error {
	if len(entries) == 0 {
		return nil
	}
	return r.db.Transaction(func(tx *gorm.DB) error {
		for _, e := range entries {
			if e.PersonTMDBID == 0 || e.Name == "" {
				continue
			}
			if err := tx.Exec(`
				INSERT INTO people (tmdb_person_id, name)
				VALUES ($1, $2)
				ON CONFLICT (tmdb_person_id) DO NOTHING
			`, e.PersonTMDBID, e.Name).Error; err != nil {
				return fmt.Errorf("写入人物失败: %w", err)
			}
			if err := tx.Exec(`
				INSERT INTO credits (movie_tmdb_id, person_tmdb_id, credit_type, character_name, job, cast_order)
				VALUES ($1, $2, $3, $4, $5, $6)
				ON CONFLICT (movie_tmdb_id, person_tmdb_id, credit_type, job) DO NOTHING
			`, movieTMDBID, e.PersonTMDBID, e.CreditType, e.Character, e.Job, e.CastOrder).Error; err != nil {
				return fmt.Errorf("写入演职员失败: %w", err)
			}
		}
		return nil
	})
}

// FindByMovie 查询一部电影的全部演职员，演员按出场顺序排列
func (r *CreditRepository) FindByMovie(movieTMDBID int) ([]model.Credit, error) {
	var credits []model.Credit
	err := r.db.Raw(`
		SELECT c.id, c.movie_tmdb_id, c.person_tmdb_id, c.credit_type,
		       c.character_name, c.job, c.cast_order, p.name AS person_name
		FROM credits c
		JOIN people p ON c.person_tmdb_id = p.tmdb_person_id
		WHERE c.movie_tmdb_id = ?
		ORDER BY c.cast_order NULLS LAST
	`, movieTMDBID).Scan(&credits).Error
	if err != nil {
		return nil, err
	}
	return credits, nil
}

// HasCredits 判断本地是否已有该电影的演职员数据
func (r *CreditRepository) HasCredits(movieTMDBID int) (bool, error) {
	var n int64
	err := r.db.Model(&model.Credit{}).Where("movie_tmdb_id = ?", movieTMDBID).Count(&n).Error
	return n > 0, err
}

// Count 演职员记录总数
func (r *CreditRepository) Count() (int64, error) {
	var n int64
	err := r.db.Model(&model.Credit{}).Count(&n).Error
	return n, err
}

// CountPeople 人物总数
func (r *CreditRepository) CountPeople() (int64, error) {
	var n int64
	err := r.db.Model(&model.Person{}).Count(&n).Error
	return n, err
}
