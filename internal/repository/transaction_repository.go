package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/models"
)

// TransactionRepository is the append-only half of the ledger store.
// Complete and Fail only touch rows that are still PENDING.
type TransactionRepository interface {
	WithTx(tx *gorm.DB) TransactionRepository
	Create(ctx context.Context, transaction *models.WalletTransaction) error
	FindByID(ctx context.Context, id string) (*models.WalletTransaction, error)
	Complete(ctx context.Context, id string, balanceBefore, balanceAfter int64, trackingID *string, now int64) (bool, error)
	Fail(ctx context.Context, id, reason string, trackingID *string, now int64) (bool, error)
	HasPending(ctx context.Context, userID int64, txType models.TransactionType) (bool, error)
	ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.WalletTransaction, int64, error)
	ListCompleted(ctx context.Context) ([]models.WalletTransaction, error)
}

type transactionRepository struct {
	db *gorm.DB
}

func NewTransactionRepository(db *gorm.DB) TransactionRepository {
	return &transactionRepository{db: db}
}

func (r *transactionRepository) WithTx(tx *gorm.DB) TransactionRepository {
	return &transactionRepository{db: tx}
}

func (r *transactionRepository) Create(ctx context.Context, transaction *models.WalletTransaction) error {
	if err := r.db.WithContext(ctx).Create(transaction).Error; err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

func (r *transactionRepository) FindByID(ctx context.Context, id string) (*models.WalletTransaction, error) {
	var t models.WalletTransaction
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find transaction: %w", err)
	}
	return &t, nil
}

func (r *transactionRepository) Complete(ctx context.Context, id string, balanceBefore, balanceAfter int64, trackingID *string, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, models.TxPending).
		Updates(map[string]interface{}{
			"status":         models.TxCompleted,
			"balance_before": balanceBefore,
			"balance_after":  balanceAfter,
			"tracking_id":    trackingID,
			"updated_ts":     now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to complete transaction: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *transactionRepository) Fail(ctx context.Context, id, reason string, trackingID *string, now int64) (bool, error) {
	fields := map[string]interface{}{
		"status":       models.TxError,
		"error_reason": reason,
		"updated_ts":   now,
	}
	if trackingID != nil {
		fields["tracking_id"] = *trackingID
	}
	result := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("id = ? AND status = ?", id, models.TxPending).
		Updates(fields)
	if result.Error != nil {
		return false, fmt.Errorf("failed to mark transaction as error: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

func (r *transactionRepository) HasPending(ctx context.Context, userID int64, txType models.TransactionType) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).
		Where("user_id = ? AND transaction_type = ? AND status = ?", userID, txType, models.TxPending).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to count pending transactions: %w", err)
	}
	return count > 0, nil
}

func (r *transactionRepository) ListByUser(ctx context.Context, userID int64, limit, offset int) ([]models.WalletTransaction, int64, error) {
	var total int64
	q := r.db.WithContext(ctx).Model(&models.WalletTransaction{}).Where("user_id = ?", userID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	var items []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).
		Order("created_ts DESC, id DESC").
		Limit(limit).Offset(offset).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list transactions: %w", err)
	}
	return items, total, nil
}

func (r *transactionRepository) ListCompleted(ctx context.Context) ([]models.WalletTransaction, error) {
	var items []models.WalletTransaction
	err := r.db.WithContext(ctx).Where("status = ?", models.TxCompleted).
		Order("created_ts ASC").Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed transactions: %w", err)
	}
	return items, nil
}
