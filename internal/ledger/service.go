// Package ledger moves money between wallets and contests. Every balance
// change is a conditional UPDATE on the expected prior balance, logged as a
// WalletTransaction in the same database transaction.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/repository"
)

type Options struct {
	WithdrawMinAmount int64
	AppUpiID          string
}

type Service struct {
	db       *gorm.DB
	wallets  repository.WalletRepository
	txns     repository.TransactionRepository
	trackers repository.TrackerRepository
	contests repository.ContestRepository
	clock    clock.Clock
	log      *logger.Logger
	metrics  *metrics.Metrics
	opts     Options
}

func NewService(db *gorm.DB, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, opts Options) *Service {
	return &Service{
		db:       db,
		wallets:  repository.NewWalletRepository(db),
		txns:     repository.NewTransactionRepository(db),
		trackers: repository.NewTrackerRepository(db),
		contests: repository.NewContestRepository(db),
		clock:    clk,
		log:      log,
		metrics:  m,
		opts:     opts,
	}
}

// InitResult is returned by the init half of add-balance and withdraw.
type InitResult struct {
	TransactionID string `json:"transactionId"`
	AppUpiID      string `json:"appUpiId,omitempty"`
}

// EndInput is the external payment rail's verdict on a pending transaction.
type EndInput struct {
	TransactionID string
	Amount        float64
	IsSuccessful  bool
	TrackingID    *string
	ErrorReason   *string
}

func (s *Service) Balance(ctx context.Context, userID int64) (int64, error) {
	return s.wallets.Balance(ctx, userID)
}

func (s *Service) ListTransactions(ctx context.Context, userID int64, limit, offset int) ([]models.WalletTransaction, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.txns.ListByUser(ctx, userID, limit, offset)
}

// PayForContest debits the entry fee and moves the user's tracker to PAID.
// A missing tracker is created in INIT before the payment transaction, so it
// survives a failed payment.
func (s *Service) PayForContest(ctx context.Context, userID int64, contestID string) (*models.WalletTransaction, error) {
	now := clock.NowMillis(s.clock)
	log := s.log.WithUserID(userID).WithField("contest_id", contestID)

	contest, err := s.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if contest == nil {
		return nil, ErrContestNotFound
	}
	if contest.Status != models.ContestActive || contest.EndTime <= now {
		return nil, ErrContestNotOpen
	}

	existing, err := s.trackers.FindByUserContest(ctx, userID, contestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		if err := payableStatus(existing.Status); err != nil {
			return nil, err
		}
	} else {
		fresh := models.NewPlayTracker(uuid.New().String(), userID, contest, now)
		if _, err := s.trackers.CreateIfAbsent(ctx, fresh); err != nil {
			return nil, err
		}
	}

	var record *models.WalletTransaction
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		trackers := s.trackers.WithTx(tx)
		wallets := s.wallets.WithTx(tx)
		txns := s.txns.WithTx(tx)

		tracker, err := trackers.FindByUserContest(ctx, userID, contestID)
		if err != nil {
			return err
		}
		if tracker == nil {
			return fmt.Errorf("play tracker missing for user %d contest %s", userID, contestID)
		}
		if err := payableStatus(tracker.Status); err != nil {
			return err
		}

		before, err := wallets.Balance(ctx, userID)
		if err != nil {
			return err
		}
		if before < contest.EntryFee {
			return ErrInsufficientBalance
		}
		after := before
		if contest.EntryFee > 0 {
			ok, err := wallets.Debit(ctx, userID, contest.EntryFee, before, now)
			if err != nil {
				return err
			}
			if !ok {
				return ErrBalanceChanged
			}
			after = before + models.TxPayForContest.Sign()*contest.EntryFee
		}

		remarks := fmt.Sprintf("Pay for contest %s", contestID)
		record = &models.WalletTransaction{
			ID:              uuid.New().String(),
			UserID:          userID,
			TransactionType: models.TxPayForContest,
			Amount:          contest.EntryFee,
			Status:          models.TxCompleted,
			BalanceBefore:   before,
			BalanceAfter:    &after,
			ContestID:       &contestID,
			Remarks:         &remarks,
			CreatedTs:       now,
			UpdatedTs:       now,
		}
		if err := txns.Create(ctx, record); err != nil {
			return err
		}

		ok, err := trackers.Apply(ctx, userID, contestID, repository.PaidUpdate{
			WalletTransactionID: record.ID,
			PaidTs:              now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return ErrAlreadyPaid
		}
		return nil
	})
	if err != nil {
		s.countAborted(models.TxPayForContest)
		if apperr.KindOf(err) == apperr.KindInternal {
			log.WithError(err).Error("Pay for contest aborted")
			return nil, apperr.Wrap(apperr.KindTransactionFailure, err, "payment transaction aborted")
		}
		return nil, err
	}

	s.countCompleted(record)
	log.WithField("amount", record.Amount).Info("Contest entry paid")
	return record, nil
}

func payableStatus(status models.PlayStatus) error {
	switch status {
	case models.PlayPaid:
		return ErrAlreadyPaid
	case models.PlayStarted:
		return ErrAlreadyStarted
	case models.PlayFinished:
		return ErrAlreadyFinished
	case models.PlayEnded:
		return ErrAlreadyEnded
	}
	return nil
}

// CreditPrize credits amount to userID inside tx and logs a COMPLETED
// CONTEST_WIN transaction. It is the finalizer's only path to a wallet.
func (s *Service) CreditPrize(ctx context.Context, tx *gorm.DB, userID int64, contestID string, amount, now int64) (*models.WalletTransaction, error) {
	wallets := s.wallets.WithTx(tx)
	txns := s.txns.WithTx(tx)

	before, err := wallets.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	ok, err := wallets.Credit(ctx, userID, amount, before, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrBalanceChanged
	}
	after := before + models.TxContestWin.Sign()*amount

	remarks := fmt.Sprintf("Credit prize value %d for contest %s", amount, contestID)
	record := &models.WalletTransaction{
		ID:              uuid.New().String(),
		UserID:          userID,
		TransactionType: models.TxContestWin,
		Amount:          amount,
		Status:          models.TxCompleted,
		BalanceBefore:   before,
		BalanceAfter:    &after,
		ContestID:       &contestID,
		Remarks:         &remarks,
		CreatedTs:       now,
		UpdatedTs:       now,
	}
	if err := txns.Create(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}

// RecordCompleted updates metrics for transactions committed by another
// package's database transaction.
func (s *Service) RecordCompleted(records ...*models.WalletTransaction) {
	for _, r := range records {
		s.countCompleted(r)
	}
}

func (s *Service) AddBalanceInit(ctx context.Context, userID int64, amount float64) (*InitResult, error) {
	if s.opts.AppUpiID == "" {
		return nil, ErrMissingAppUpiID
	}
	rounded, err := RoundAmount(amount)
	if err != nil {
		return nil, err
	}
	id, err := s.createPending(ctx, userID, models.TxAddBalance, rounded)
	if err != nil {
		return nil, err
	}
	return &InitResult{TransactionID: id, AppUpiID: s.opts.AppUpiID}, nil
}

func (s *Service) WithdrawInit(ctx context.Context, userID int64, amount float64) (*InitResult, error) {
	pending, err := s.txns.HasPending(ctx, userID, models.TxWithdraw)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingWithdraw
	}
	rounded, err := RoundAmount(amount)
	if err != nil {
		return nil, err
	}
	if rounded < s.opts.WithdrawMinAmount {
		return nil, apperr.Newf(apperr.KindValidation, "Minimum amount for withdraw is %d", s.opts.WithdrawMinAmount)
	}
	balance, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if balance < rounded {
		return nil, ErrInsufficientBalance
	}
	id, err := s.createPending(ctx, userID, models.TxWithdraw, rounded)
	if err != nil {
		return nil, err
	}
	return &InitResult{TransactionID: id}, nil
}

func (s *Service) createPending(ctx context.Context, userID int64, txType models.TransactionType, amount int64) (string, error) {
	now := clock.NowMillis(s.clock)
	balance, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		return "", err
	}
	record := &models.WalletTransaction{
		ID:              uuid.New().String(),
		UserID:          userID,
		TransactionType: txType,
		Amount:          amount,
		Status:          models.TxPending,
		BalanceBefore:   balance,
		CreatedTs:       now,
		UpdatedTs:       now,
	}
	if err := s.txns.Create(ctx, record); err != nil {
		return "", err
	}
	s.metrics.LedgerTransactions.WithLabelValues(string(txType), string(models.TxPending)).Inc()
	s.log.WithUserID(userID).
		WithField("transaction_id", record.ID).
		WithField("type", txType).
		WithField("amount", amount).
		Info("Wallet transaction initiated")
	return record.ID, nil
}

func (s *Service) AddBalanceEnd(ctx context.Context, userID int64, in EndInput) (*models.WalletTransaction, error) {
	return s.end(ctx, userID, models.TxAddBalance, in)
}

func (s *Service) WithdrawEnd(ctx context.Context, userID int64, in EndInput) (*models.WalletTransaction, error) {
	return s.end(ctx, userID, models.TxWithdraw, in)
}

// end settles a pending transaction. It never applies a row twice: every
// write is guarded by status = PENDING.
func (s *Service) end(ctx context.Context, userID int64, txType models.TransactionType, in EndInput) (*models.WalletTransaction, error) {
	now := clock.NowMillis(s.clock)
	log := s.log.WithUserID(userID).WithField("transaction_id", in.TransactionID)

	pending, err := s.txns.FindByID(ctx, in.TransactionID)
	if err != nil {
		return nil, err
	}
	if pending == nil || pending.UserID != userID || pending.TransactionType != txType {
		return nil, ErrTransactionNotFound
	}
	if pending.Status != models.TxPending {
		return nil, ErrNotPending
	}

	if !in.IsSuccessful {
		reason := "payment failed"
		if in.ErrorReason != nil && *in.ErrorReason != "" {
			reason = *in.ErrorReason
		}
		return s.fail(ctx, pending, reason, in.TrackingID, now)
	}

	amount, err := RoundAmount(in.Amount)
	if err != nil {
		return nil, err
	}
	if amount != pending.Amount {
		return nil, ErrAmountMismatch
	}

	balance, err := s.wallets.Balance(ctx, userID)
	if err != nil {
		return nil, err
	}
	if txType == models.TxWithdraw {
		if amount < s.opts.WithdrawMinAmount {
			return nil, apperr.Newf(apperr.KindValidation, "Minimum amount for withdraw is %d", s.opts.WithdrawMinAmount)
		}
		if balance < amount {
			reason := fmt.Sprintf("Insufficient balance. Balance %d. Amount %d", balance, amount)
			if _, err := s.fail(ctx, pending, reason, in.TrackingID, now); err != nil {
				return nil, err
			}
			return nil, apperr.New(apperr.KindInsufficientBalance, "Cannot process transaction. Insufficient balance")
		}
	}
	// A withdraw settles against the balance at end time; an add-balance
	// must find the balance it was opened against.
	before := pending.BalanceBefore
	if txType == models.TxWithdraw {
		before = balance
	} else if balance != pending.BalanceBefore {
		return nil, apperr.Newf(apperr.KindTransactionFailure,
			"balance(%d) does not match transaction balanceBefore(%d)", balance, pending.BalanceBefore)
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		wallets := s.wallets.WithTx(tx)
		txns := s.txns.WithTx(tx)

		var (
			ok    bool
			err   error
			after int64
		)
		after = before + txType.Sign()*amount
		if txType == models.TxWithdraw {
			ok, err = wallets.Debit(ctx, userID, amount, before, now)
		} else {
			ok, err = wallets.Credit(ctx, userID, amount, before, now)
		}
		if err != nil {
			return err
		}
		if !ok {
			return ErrBalanceChanged
		}

		ok, err = txns.Complete(ctx, pending.ID, before, after, in.TrackingID, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Wallet transaction aborted")
		if errors.Is(err, ErrNotPending) {
			return nil, err
		}
		if _, failErr := s.txns.Fail(ctx, pending.ID, err.Error(), in.TrackingID, clock.NowMillis(s.clock)); failErr != nil {
			log.WithError(failErr).Error("Failed to mark transaction as error")
		}
		s.countAborted(txType)
		return nil, apperr.Wrap(apperr.KindTransactionFailure, err, "wallet transaction aborted")
	}

	done, err := s.txns.FindByID(ctx, pending.ID)
	if err != nil {
		return nil, err
	}
	s.countCompleted(done)
	log.WithField("type", txType).WithField("amount", amount).Info("Wallet transaction completed")
	return done, nil
}

func (s *Service) fail(ctx context.Context, pending *models.WalletTransaction, reason string, trackingID *string, now int64) (*models.WalletTransaction, error) {
	ok, err := s.txns.Fail(ctx, pending.ID, reason, trackingID, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrNotPending
	}
	s.metrics.LedgerTransactions.WithLabelValues(string(pending.TransactionType), string(models.TxError)).Inc()
	s.log.WithUserID(pending.UserID).
		WithField("transaction_id", pending.ID).
		WithField("reason", reason).
		Warn("Wallet transaction marked as error")
	return s.txns.FindByID(ctx, pending.ID)
}

func (s *Service) countCompleted(r *models.WalletTransaction) {
	if r == nil {
		return
	}
	s.metrics.LedgerTransactions.WithLabelValues(string(r.TransactionType), string(models.TxCompleted)).Inc()
	s.metrics.LedgerAmount.WithLabelValues(string(r.TransactionType)).Add(float64(r.Amount))
}

func (s *Service) countAborted(txType models.TransactionType) {
	s.metrics.LedgerTransactions.WithLabelValues(string(txType), "ABORTED").Inc()
}
