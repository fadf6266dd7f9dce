package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/models"
)

type QuestionRepository interface {
	WithTx(tx *gorm.DB) QuestionRepository
	Create(ctx context.Context, question *models.Question) error
	Exists(ctx context.Context, contestID string, questionNo int) (bool, error)
	Revive(ctx context.Context, question *models.Question) (bool, error)
	FindActive(ctx context.Context, contestID string, questionNo int) (*models.Question, error)
	FindNextActive(ctx context.Context, contestID string, afterQuestionNo int) (*models.Question, error)
	Deactivate(ctx context.Context, contestID string, questionNo int, now int64) (bool, error)
}

type questionRepository struct {
	db *gorm.DB
}

func NewQuestionRepository(db *gorm.DB) QuestionRepository {
	return &questionRepository{db: db}
}

func (r *questionRepository) WithTx(tx *gorm.DB) QuestionRepository {
	return &questionRepository{db: tx}
}

func (r *questionRepository) Create(ctx context.Context, question *models.Question) error {
	if err := r.db.WithContext(ctx).Create(question).Error; err != nil {
		return fmt.Errorf("failed to create question: %w", err)
	}
	return nil
}

func (r *questionRepository) Exists(ctx context.Context, contestID string, questionNo int) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("contest_id = ? AND question_no = ?", contestID, questionNo).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count questions: %w", err)
	}
	return count > 0, nil
}

// Revive overwrites an inactive question at the same contest and number and
// marks it active again. It reports false when no inactive row matched.
func (r *questionRepository) Revive(ctx context.Context, question *models.Question) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("contest_id = ? AND question_no = ? AND is_active = ?", question.ContestID, question.QuestionNo, false).
		Updates(map[string]interface{}{
			"question_text": question.QuestionText,
			"options":       question.Options,
			"is_active":     true,
			"created_by":    question.CreatedBy,
			"created_ts":    question.CreatedTs,
			"updated_ts":    question.UpdatedTs,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to revive question: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *questionRepository) FindActive(ctx context.Context, contestID string, questionNo int) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND question_no = ? AND is_active = ?", contestID, questionNo, true).
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find question: %w", err)
	}
	return &q, nil
}

// FindNextActive returns the lowest-numbered active question after
// afterQuestionNo, or nil when there is none.
func (r *questionRepository) FindNextActive(ctx context.Context, contestID string, afterQuestionNo int) (*models.Question, error) {
	var q models.Question
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND question_no > ? AND is_active = ?", contestID, afterQuestionNo, true).
		Order("question_no ASC").
		First(&q).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find next question: %w", err)
	}
	return &q, nil
}

func (r *questionRepository) Deactivate(ctx context.Context, contestID string, questionNo int, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Question{}).
		Where("contest_id = ? AND question_no = ? AND is_active = ?", contestID, questionNo, true).
		Updates(map[string]interface{}{
			"is_active":  false,
			"updated_ts": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to deactivate question: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}
