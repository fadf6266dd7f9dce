package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trailsbuddy.com/quiz-contest/internal/models"
)

type UserRepository interface {
	WithTx(tx *gorm.DB) UserRepository
	EnsureExists(ctx context.Context, userID int64, now int64) error
	FindByID(ctx context.Context, userID int64) (*models.User, error)
	IncrementPlayed(ctx context.Context, userIDs []int64, now int64) error
	RecordWin(ctx context.Context, userID, prize, now int64) error
	Leaderboard(ctx context.Context, limit int) ([]models.User, error)
}

type userRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) WithTx(tx *gorm.DB) UserRepository {
	return &userRepository{db: tx}
}

func (r *userRepository) EnsureExists(ctx context.Context, userID int64, now int64) error {
	u := models.User{ID: userID, CreatedTs: now, UpdatedTs: now}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&u).Error
	if err != nil {
		return fmt.Errorf("failed to ensure user: %w", err)
	}
	return nil
}

func (r *userRepository) FindByID(ctx context.Context, userID int64) (*models.User, error) {
	var u models.User
	err := r.db.WithContext(ctx).Where("id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}

// IncrementPlayed bumps total_played for every listed user. Users without a
// row are created first so the statistics are never silently dropped.
func (r *userRepository) IncrementPlayed(ctx context.Context, userIDs []int64, now int64) error {
	if len(userIDs) == 0 {
		return nil
	}
	for _, id := range userIDs {
		if err := r.EnsureExists(ctx, id, now); err != nil {
			return err
		}
	}
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id IN ?", userIDs).
		Updates(map[string]interface{}{
			"total_played": gorm.Expr("total_played + 1"),
			"updated_ts":   now,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to update played count: %w", err)
	}
	return nil
}

func (r *userRepository) RecordWin(ctx context.Context, userID, prize, now int64) error {
	result := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"contest_won":   gorm.Expr("contest_won + 1"),
			"total_earning": gorm.Expr("total_earning + ?", prize),
			"updated_ts":    now,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to record win: %w", result.Error)
	}
	if result.RowsAffected != 1 {
		return fmt.Errorf("failed to record win: user %d not found", userID)
	}
	return nil
}

func (r *userRepository) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	var items []models.User
	err := r.db.WithContext(ctx).
		Where("total_played > 0").
		Order("total_earning DESC, contest_won DESC, total_played DESC, name ASC, id ASC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load leaderboard: %w", err)
	}
	return items, nil
}
