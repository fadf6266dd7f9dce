package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/models"
)

// WalletRepository is the balance half of the ledger store. Every mutation is
// a single conditional UPDATE; a false result means the precondition no longer
// held (zero rows affected), not that the wallet is missing.
type WalletRepository interface {
	WithTx(tx *gorm.DB) WalletRepository
	FindByUserID(ctx context.Context, userID int64) (*models.Wallet, error)
	Balance(ctx context.Context, userID int64) (int64, error)
	Debit(ctx context.Context, userID, amount, expectedBefore, now int64) (bool, error)
	Credit(ctx context.Context, userID, amount, expectedBefore, now int64) (bool, error)
}

type walletRepository struct {
	db *gorm.DB
}

func NewWalletRepository(db *gorm.DB) WalletRepository {
	return &walletRepository{db: db}
}

func (r *walletRepository) WithTx(tx *gorm.DB) WalletRepository {
	return &walletRepository{db: tx}
}

func (r *walletRepository) FindByUserID(ctx context.Context, userID int64) (*models.Wallet, error) {
	var w models.Wallet
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&w).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find wallet: %w", err)
	}
	return &w, nil
}

// Balance returns 0 for users without a wallet.
func (r *walletRepository) Balance(ctx context.Context, userID int64) (int64, error) {
	w, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return 0, err
	}
	if w == nil {
		return 0, nil
	}
	return w.Balance, nil
}

func (r *walletRepository) Debit(ctx context.Context, userID, amount, expectedBefore, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND balance = ? AND balance >= ?", userID, expectedBefore, amount).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance - ?", amount),
			"updated_ts": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to debit wallet: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// Credit adds amount to the wallet, creating it when expectedBefore is 0 and
// no wallet exists yet.
func (r *walletRepository) Credit(ctx context.Context, userID, amount, expectedBefore, now int64) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.Wallet{}).
		Where("user_id = ? AND balance = ?", userID, expectedBefore).
		Updates(map[string]interface{}{
			"balance":    gorm.Expr("balance + ?", amount),
			"updated_ts": now,
		})
	if result.Error != nil {
		return false, fmt.Errorf("failed to credit wallet: %w", result.Error)
	}
	if result.RowsAffected == 1 {
		return true, nil
	}
	if expectedBefore != 0 {
		return false, nil
	}

	existing, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}
	w := models.Wallet{UserID: userID, Balance: amount, CreatedTs: now, UpdatedTs: now}
	if err := r.db.WithContext(ctx).Create(&w).Error; err != nil {
		return false, fmt.Errorf("failed to create wallet: %w", err)
	}
	return true, nil
}
