package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"trailsbuddy.com/quiz-contest/internal/models"
)

type TrackerRepository interface {
	WithTx(tx *gorm.DB) TrackerRepository
	FindByUserContest(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, error)
	CreateIfAbsent(ctx context.Context, tracker *models.PlayTracker) (*models.PlayTracker, error)
	Apply(ctx context.Context, userID int64, contestID string, update TrackerUpdate) (bool, error)
	ApplyByID(ctx context.Context, id string, update TrackerUpdate) (bool, error)
	FindEngaged(ctx context.Context, contestID string) ([]models.PlayTracker, error)
	CountByContest(ctx context.Context, contestID string) (int64, error)
	FindEndedByUser(ctx context.Context, userID int64, limit int) ([]models.PlayTracker, error)
}

type trackerRepository struct {
	db *gorm.DB
}

func NewTrackerRepository(db *gorm.DB) TrackerRepository {
	return &trackerRepository{db: db}
}

func (r *trackerRepository) WithTx(tx *gorm.DB) TrackerRepository {
	return &trackerRepository{db: tx}
}

func (r *trackerRepository) FindByUserContest(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, error) {
	var t models.PlayTracker
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND contest_id = ?", userID, contestID).
		First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find play tracker: %w", err)
	}
	return &t, nil
}

// CreateIfAbsent inserts tracker unless one already exists for the same
// (user, contest) pair, and returns whichever row is stored.
func (r *trackerRepository) CreateIfAbsent(ctx context.Context, tracker *models.PlayTracker) (*models.PlayTracker, error) {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(tracker).Error
	if err != nil {
		return nil, fmt.Errorf("failed to create play tracker: %w", err)
	}
	stored, err := r.FindByUserContest(ctx, tracker.UserID, tracker.ContestID)
	if err != nil {
		return nil, err
	}
	if stored == nil {
		return nil, fmt.Errorf("play tracker for user %d contest %s vanished after insert", tracker.UserID, tracker.ContestID)
	}
	return stored, nil
}

func (r *trackerRepository) Apply(ctx context.Context, userID int64, contestID string, update TrackerUpdate) (bool, error) {
	cond, args := update.guard()
	result := r.db.WithContext(ctx).Model(&models.PlayTracker{}).
		Where("user_id = ? AND contest_id = ?", userID, contestID).
		Where(cond, args...).
		Updates(update.fields())
	if result.Error != nil {
		return false, fmt.Errorf("failed to update play tracker: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *trackerRepository) ApplyByID(ctx context.Context, id string, update TrackerUpdate) (bool, error) {
	cond, args := update.guard()
	result := r.db.WithContext(ctx).Model(&models.PlayTracker{}).
		Where("id = ?", id).
		Where(cond, args...).
		Updates(update.fields())
	if result.Error != nil {
		return false, fmt.Errorf("failed to update play tracker: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *trackerRepository) CountByContest(ctx context.Context, contestID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.PlayTracker{}).
		Where("contest_id = ?", contestID).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count trackers: %w", err)
	}
	return count, nil
}

func (r *trackerRepository) FindEngaged(ctx context.Context, contestID string) ([]models.PlayTracker, error) {
	var items []models.PlayTracker
	err := r.db.WithContext(ctx).
		Where("contest_id = ? AND status IN ?", contestID, EngagedStatuses).
		Order("id").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find engaged play trackers: %w", err)
	}
	return items, nil
}

func (r *trackerRepository) FindEndedByUser(ctx context.Context, userID int64, limit int) ([]models.PlayTracker, error) {
	var items []models.PlayTracker
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, models.PlayEnded).
		Order("updated_ts DESC").
		Limit(limit).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find ended play trackers: %w", err)
	}
	return items, nil
}
