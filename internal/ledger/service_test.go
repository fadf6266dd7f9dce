package ledger

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/store/storetest"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func setup(t *testing.T) (*Service, *gorm.DB, *clock.Fixed) {
	t.Helper()
	db := storetest.Open(t)
	clk := clock.NewFixed(t0)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(db, clk, logger.Discard(), m, Options{WithdrawMinAmount: 100, AppUpiID: "quiz@upi"})
	return svc, db, clk
}

func openContest(t *testing.T, db *gorm.DB, fee int64) *models.Contest {
	start := t0.Add(-time.Hour).UnixMilli()
	end := t0.Add(time.Hour).UnixMilli()
	return storetest.ActiveContest(t, db, start, end, 3, func(c *models.Contest) { c.EntryFee = fee })
}

func strp(s string) *string { return &s }

func TestPayForContest(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	c := openContest(t, db, 50)
	storetest.Fund(t, db, 1, 120)

	record, err := svc.PayForContest(ctx, 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TxPayForContest, record.TransactionType)
	assert.Equal(t, int64(120), record.BalanceBefore)
	require.NotNil(t, record.BalanceAfter)
	assert.Equal(t, int64(70), *record.BalanceAfter)

	balance, err := svc.Balance(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(70), balance)

	var tracker models.PlayTracker
	require.NoError(t, db.Where("user_id = ? AND contest_id = ?", 1, c.ID).First(&tracker).Error)
	assert.Equal(t, models.PlayPaid, tracker.Status)
	require.NotNil(t, tracker.WalletTransactionID)
	assert.Equal(t, record.ID, *tracker.WalletTransactionID)
	require.NotNil(t, tracker.PaidTs)
	assert.Equal(t, t0.UnixMilli(), *tracker.PaidTs)

	_, err = svc.PayForContest(ctx, 1, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyPaid)
}

func TestPayForContestFreeEntryKeepsBalance(t *testing.T) {
	svc, db, _ := setup(t)
	c := openContest(t, db, 0)
	storetest.Fund(t, db, 1, 30)

	record, err := svc.PayForContest(context.Background(), 1, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), record.BalanceBefore)
	assert.Equal(t, int64(30), *record.BalanceAfter)
}

func TestPayForContestInsufficientBalanceKeepsInitTracker(t *testing.T) {
	svc, db, _ := setup(t)
	c := openContest(t, db, 50)
	storetest.Fund(t, db, 1, 10)

	_, err := svc.PayForContest(context.Background(), 1, c.ID)
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	assert.True(t, apperr.Is(err, apperr.KindInsufficientBalance))

	var tracker models.PlayTracker
	require.NoError(t, db.Where("user_id = ? AND contest_id = ?", 1, c.ID).First(&tracker).Error)
	assert.Equal(t, models.PlayInit, tracker.Status)

	var count int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPayForContestRejectsClosedContest(t *testing.T) {
	svc, db, clk := setup(t)
	c := openContest(t, db, 10)
	storetest.Fund(t, db, 1, 100)

	clk.Advance(2 * time.Hour)
	_, err := svc.PayForContest(context.Background(), 1, c.ID)
	assert.ErrorIs(t, err, ErrContestNotOpen)

	_, err = svc.PayForContest(context.Background(), 1, "missing")
	assert.ErrorIs(t, err, ErrContestNotFound)
}

func TestPayForContestRejectsStartedAndFinished(t *testing.T) {
	svc, db, _ := setup(t)
	c := openContest(t, db, 10)
	storetest.Fund(t, db, 1, 100)
	storetest.Fund(t, db, 2, 100)

	started := models.NewPlayTracker("t-1", 1, c, t0.UnixMilli())
	started.Status = models.PlayStarted
	require.NoError(t, db.Create(started).Error)
	finished := models.NewPlayTracker("t-2", 2, c, t0.UnixMilli())
	finished.Status = models.PlayFinished
	require.NoError(t, db.Create(finished).Error)

	_, err := svc.PayForContest(context.Background(), 1, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	_, err = svc.PayForContest(context.Background(), 2, c.ID)
	assert.ErrorIs(t, err, ErrAlreadyFinished)
}

func TestPayForContestConcurrentSingleDebit(t *testing.T) {
	svc, db, _ := setup(t)
	c := openContest(t, db, 50)
	storetest.Fund(t, db, 1, 50)

	const callers = 2
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.PayForContest(context.Background(), 1, c.ID)
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		kind := apperr.KindOf(err)
		assert.Contains(t, []apperr.Kind{apperr.KindConflict, apperr.KindInsufficientBalance}, kind, err.Error())
	}
	assert.Equal(t, 1, succeeded)

	var completed int64
	require.NoError(t, db.Model(&models.WalletTransaction{}).
		Where("transaction_type = ? AND status = ?", models.TxPayForContest, models.TxCompleted).
		Count(&completed).Error)
	assert.Equal(t, int64(1), completed)

	balance, err := svc.Balance(context.Background(), 1)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestAddBalanceFlow(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	res, err := svc.AddBalanceInit(ctx, 5, 199.5)
	require.NoError(t, err)
	assert.Equal(t, "quiz@upi", res.AppUpiID)

	done, err := svc.AddBalanceEnd(ctx, 5, EndInput{
		TransactionID: res.TransactionID,
		Amount:        200,
		IsSuccessful:  true,
		TrackingID:    strp("UPI-1"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxCompleted, done.Status)
	assert.Equal(t, int64(0), done.BalanceBefore)
	assert.Equal(t, int64(200), *done.BalanceAfter)
	assert.Equal(t, "UPI-1", *done.TrackingID)

	balance, err := svc.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)

	_, err = svc.AddBalanceEnd(ctx, 5, EndInput{TransactionID: res.TransactionID, Amount: 200, IsSuccessful: true})
	assert.ErrorIs(t, err, ErrNotPending)

	balance, err = svc.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestAddBalanceInitRequiresUpiID(t *testing.T) {
	svc, _, _ := setup(t)
	svc.opts.AppUpiID = ""
	_, err := svc.AddBalanceInit(context.Background(), 1, 10)
	assert.ErrorIs(t, err, ErrMissingAppUpiID)
}

func TestAddBalanceEndChecks(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	storetest.Fund(t, db, 5, 10)

	res, err := svc.AddBalanceInit(ctx, 5, 100)
	require.NoError(t, err)

	_, err = svc.AddBalanceEnd(ctx, 6, EndInput{TransactionID: res.TransactionID, Amount: 100, IsSuccessful: true})
	assert.ErrorIs(t, err, ErrTransactionNotFound)

	_, err = svc.AddBalanceEnd(ctx, 5, EndInput{TransactionID: res.TransactionID, Amount: 99, IsSuccessful: true})
	assert.ErrorIs(t, err, ErrAmountMismatch)

	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", 5).Update("balance", 11).Error)
	_, err = svc.AddBalanceEnd(ctx, 5, EndInput{TransactionID: res.TransactionID, Amount: 100, IsSuccessful: true})
	assert.True(t, apperr.Is(err, apperr.KindTransactionFailure))

	stored, err := svc.txns.FindByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxPending, stored.Status)
}

func TestAddBalanceEndFailure(t *testing.T) {
	svc, _, _ := setup(t)
	ctx := context.Background()

	res, err := svc.AddBalanceInit(ctx, 5, 100)
	require.NoError(t, err)

	done, err := svc.AddBalanceEnd(ctx, 5, EndInput{
		TransactionID: res.TransactionID,
		IsSuccessful:  false,
		ErrorReason:   strp("declined"),
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxError, done.Status)
	assert.Equal(t, "declined", *done.ErrorReason)

	balance, err := svc.Balance(ctx, 5)
	require.NoError(t, err)
	assert.Zero(t, balance)
}

func TestWithdrawFlow(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	storetest.Fund(t, db, 7, 500)

	_, err := svc.WithdrawInit(ctx, 7, 50)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.WithdrawInit(ctx, 7, 900)
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	res, err := svc.WithdrawInit(ctx, 7, 300)
	require.NoError(t, err)
	assert.Empty(t, res.AppUpiID)

	_, err = svc.WithdrawInit(ctx, 7, 100)
	assert.ErrorIs(t, err, ErrPendingWithdraw)

	done, err := svc.WithdrawEnd(ctx, 7, EndInput{TransactionID: res.TransactionID, Amount: 300, IsSuccessful: true})
	require.NoError(t, err)
	assert.Equal(t, models.TxCompleted, done.Status)
	assert.Equal(t, int64(500), done.BalanceBefore)
	assert.Equal(t, int64(200), *done.BalanceAfter)

	balance, err := svc.Balance(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(200), balance)
}

func TestWithdrawEndInsufficientBalanceMarksError(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	storetest.Fund(t, db, 7, 500)

	res, err := svc.WithdrawInit(ctx, 7, 400)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", 7).Update("balance", 150).Error)

	_, err = svc.WithdrawEnd(ctx, 7, EndInput{TransactionID: res.TransactionID, Amount: 400, IsSuccessful: true})
	assert.True(t, apperr.Is(err, apperr.KindInsufficientBalance))

	stored, err := svc.txns.FindByID(ctx, res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, models.TxError, stored.Status)
	assert.Equal(t, "Insufficient balance. Balance 150. Amount 400", *stored.ErrorReason)
}

func TestCreditPrize(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()

	var record *models.WalletTransaction
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		record, err = svc.CreditPrize(ctx, tx, 9, "c-1", 250, t0.UnixMilli())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, models.TxContestWin, record.TransactionType)
	assert.Equal(t, int64(0), record.BalanceBefore)
	assert.Equal(t, int64(250), *record.BalanceAfter)

	balance, err := svc.Balance(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, int64(250), balance)
}

func TestListTransactionsNewestFirst(t *testing.T) {
	svc, _, clk := setup(t)
	ctx := context.Background()

	first, err := svc.AddBalanceInit(ctx, 3, 10)
	require.NoError(t, err)
	clk.Advance(time.Second)
	second, err := svc.AddBalanceInit(ctx, 3, 20)
	require.NoError(t, err)

	items, total, err := svc.ListTransactions(ctx, 3, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, items, 2)
	assert.Equal(t, second.TransactionID, items[0].ID)
	assert.Equal(t, first.TransactionID, items[1].ID)
}

func TestRoundAmount(t *testing.T) {
	tests := []struct {
		in      float64
		want    int64
		wantErr bool
	}{
		{in: 10, want: 10},
		{in: 10.5, want: 11},
		{in: 10.49, want: 10},
		{in: 0.5, want: 1},
		{in: 0.4, wantErr: true},
		{in: -3, wantErr: true},
	}
	for _, tt := range tests {
		got, err := RoundAmount(tt.in)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidAmount)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestWithdrawEndSettlesAgainstCurrentBalance(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	storetest.Fund(t, db, 7, 500)

	res, err := svc.WithdrawInit(ctx, 7, 200)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Wallet{}).Where("user_id = ?", 7).Update("balance", 650).Error)

	done, err := svc.WithdrawEnd(ctx, 7, EndInput{TransactionID: res.TransactionID, Amount: 200, IsSuccessful: true})
	require.NoError(t, err)
	assert.Equal(t, models.TxCompleted, done.Status)
	assert.Equal(t, int64(650), done.BalanceBefore)
	assert.Equal(t, int64(450), *done.BalanceAfter)

	next, err := svc.WithdrawInit(ctx, 7, 100)
	require.NoError(t, err)
	assert.NotEmpty(t, next.TransactionID)
}

func TestCompletedRowsMoveBalanceBySignedAmount(t *testing.T) {
	svc, db, _ := setup(t)
	ctx := context.Background()
	c := openContest(t, db, 40)

	added, err := svc.AddBalanceInit(ctx, 3, 300)
	require.NoError(t, err)
	_, err = svc.AddBalanceEnd(ctx, 3, EndInput{TransactionID: added.TransactionID, Amount: 300, IsSuccessful: true})
	require.NoError(t, err)

	_, err = svc.PayForContest(ctx, 3, c.ID)
	require.NoError(t, err)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		_, err := svc.CreditPrize(ctx, tx, 3, c.ID, 90, t0.UnixMilli())
		return err
	}))

	withdraw, err := svc.WithdrawInit(ctx, 3, 150)
	require.NoError(t, err)
	_, err = svc.WithdrawEnd(ctx, 3, EndInput{TransactionID: withdraw.TransactionID, Amount: 150, IsSuccessful: true})
	require.NoError(t, err)

	rows, err := svc.txns.ListCompleted(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	types := map[models.TransactionType]bool{}
	for _, r := range rows {
		types[r.TransactionType] = true
	}
	assert.Len(t, types, 4)
	storetest.LedgerRows(t, rows)

	balance, err := svc.Balance(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(300-40+90-150), balance)
}
