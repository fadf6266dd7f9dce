package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/models"
)

type ContestRepository interface {
	WithTx(tx *gorm.DB) ContestRepository
	Create(ctx context.Context, contest *models.Contest) error
	FindByID(ctx context.Context, id string) (*models.Contest, error)
	FindByIDs(ctx context.Context, ids []string) ([]models.Contest, error)
	FindDue(ctx context.Context, now int64, limit int) ([]models.Contest, error)
	Transition(ctx context.Context, id string, from []models.ContestStatus, to models.ContestStatus, now int64) (bool, error)
	MarkEnded(ctx context.Context, id string, winners, standings []models.Standing, now int64) (bool, error)
	IncrementQuestionCount(ctx context.Context, id string, now int64) error
	DecrementQuestionCount(ctx context.Context, id string, now int64) (bool, error)
}

type contestRepository struct {
	db *gorm.DB
}

func NewContestRepository(db *gorm.DB) ContestRepository {
	return &contestRepository{db: db}
}

func (r *contestRepository) WithTx(tx *gorm.DB) ContestRepository {
	return &contestRepository{db: tx}
}

func (r *contestRepository) Create(ctx context.Context, contest *models.Contest) error {
	if err := r.db.WithContext(ctx).Create(contest).Error; err != nil {
		return fmt.Errorf("failed to create contest: %w", err)
	}
	return nil
}

func (r *contestRepository) FindByID(ctx context.Context, id string) (*models.Contest, error) {
	var c models.Contest
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&c).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contest: %w", err)
	}
	return &c, nil
}

func (r *contestRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Contest, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.Contest
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to find contests: %w", err)
	}
	return items, nil
}

// FindDue returns ACTIVE contests whose end time has passed, stalest first.
func (r *contestRepository) FindDue(ctx context.Context, now int64, limit int) ([]models.Contest, error) {
	var items []models.Contest
	err := r.db.WithContext(ctx).
		Where("status = ? AND end_time <= ?", models.ContestActive, now).
		Order("updated_ts ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find due contests: %w", err)
	}
	return items, nil
}

func (r *contestRepository) Transition(ctx context.Context, id string, from []models.ContestStatus, to models.ContestStatus, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(map[string]interface{}{
			"status":     to,
			"updated_ts": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to update contest status: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// MarkEnded claims an ACTIVE contest for finalization. A false result means
// another finalizer got there first.
func (r *contestRepository) MarkEnded(ctx context.Context, id string, winners, standings []models.Standing, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ? AND status = ?", id, models.ContestActive).
		Updates(map[string]interface{}{
			"status":            models.ContestEnded,
			"winners":           datatypes.JSONSlice[models.Standing](winners),
			"all_play_trackers": datatypes.JSONSlice[models.Standing](standings),
			"updated_ts":        now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to end contest: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *contestRepository) IncrementQuestionCount(ctx context.Context, id string, now int64) error {
	err := r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"question_count": gorm.Expr("question_count + 1"),
			"updated_ts":     now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to increment question count: %w", err)
	}
	return nil
}

// DecrementQuestionCount never takes the count below zero.
func (r *contestRepository) DecrementQuestionCount(ctx context.Context, id string, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Contest{}).
		Where("id = ? AND question_count > 0", id).
		Updates(map[string]interface{}{
			"question_count": gorm.Expr("question_count - 1"),
			"updated_ts":     now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to decrement question count: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
