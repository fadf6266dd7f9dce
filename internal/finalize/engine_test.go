package finalize

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/ledger"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/notify"
	"trailsbuddy.com/quiz-contest/internal/repository"
	"trailsbuddy.com/quiz-contest/internal/store/storetest"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingNotifier struct {
	mu     sync.Mutex
	events []notify.PrizeCredited
}

func (r *recordingNotifier) PrizeCredited(_ context.Context, event notify.PrizeCredited) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return nil
}

func (r *recordingNotifier) Close() error { return nil }

type fixture struct {
	db       *gorm.DB
	clk      *clock.Fixed
	ledger   *ledger.Service
	engine   *Engine
	notifier *recordingNotifier
}

func setup(t *testing.T) *fixture {
	t.Helper()
	db := storetest.Open(t)
	clk := clock.NewFixed(t0)
	log := logger.Discard()
	m := metrics.New(prometheus.NewRegistry())
	led := ledger.NewService(db, clk, log, m, ledger.Options{WithdrawMinAmount: 100, AppUpiID: "quiz@upi"})
	n := &recordingNotifier{}
	return &fixture{
		db:       db,
		clk:      clk,
		ledger:   led,
		engine:   NewEngine(db, led, n, clk, log, m, Options{BatchSize: 10}),
		notifier: n,
	}
}

func ms(d time.Duration) int64 { return t0.Add(d).UnixMilli() }

// endedContest is an ACTIVE contest whose window closed a minute before t0.
func endedContest(t *testing.T, db *gorm.DB, mutate ...func(*models.Contest)) *models.Contest {
	return storetest.ActiveContest(t, db, ms(-2*time.Hour), ms(-time.Minute), 5, mutate...)
}

func play(t *testing.T, db *gorm.DB, c *models.Contest, id string, userID int64, status models.PlayStatus, score int, start, finish int64) {
	t.Helper()
	tr := models.NewPlayTracker(id, userID, c, start)
	tr.Status = status
	tr.Score = score
	tr.StartTs = &start
	if finish > 0 {
		tr.FinishTs = &finish
	}
	tr.UpdatedTs = start
	require.NoError(t, db.Create(tr).Error)
}

func TestFinalizeRanksAndPaysWinners(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := endedContest(t, f.db)

	play(t, f.db, c, "A", 1, models.PlayFinished, 5, ms(-90*time.Minute), ms(-90*time.Minute)+100)
	play(t, f.db, c, "B", 2, models.PlayFinished, 5, ms(-80*time.Minute), ms(-80*time.Minute)+50)
	play(t, f.db, c, "C", 3, models.PlayFinished, 3, ms(-70*time.Minute), ms(-70*time.Minute)+10)
	play(t, f.db, c, "D", 4, models.PlayPaid, 0, ms(-60*time.Minute), 0)
	play(t, f.db, c, "E", 5, models.PlayInit, 0, ms(-60*time.Minute), 0)

	outcome, err := f.engine.FinalizeContest(ctx, c.ID)
	require.NoError(t, err)
	f.engine.Wait()

	assert.Equal(t, 4, outcome.Participants)
	assert.Equal(t, 3, outcome.WinnersCount)
	require.Len(t, outcome.Winners, 2)
	assert.Equal(t, "B", outcome.Winners[0].TrackerID)
	assert.Equal(t, "A", outcome.Winners[1].TrackerID)
	require.Len(t, outcome.Credits, 2)

	var stored models.Contest
	require.NoError(t, f.db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, models.ContestEnded, stored.Status)
	require.Len(t, stored.Winners, 2)
	require.Len(t, stored.AllPlayTrackers, 4)
	assert.Equal(t, "B", stored.AllPlayTrackers[0].TrackerID)
	assert.Equal(t, "C", stored.AllPlayTrackers[2].TrackerID)
	assert.Nil(t, stored.AllPlayTrackers[3].Rank)

	var trackers []models.PlayTracker
	require.NoError(t, f.db.Order("id").Find(&trackers).Error)
	for _, tr := range trackers {
		if tr.ID == "E" {
			assert.Equal(t, models.PlayInit, tr.Status)
			continue
		}
		assert.Equal(t, models.PlayEnded, tr.Status, tr.ID)
	}
	assert.Equal(t, 2, *trackers[0].Rank)
	assert.Equal(t, int64(100), *trackers[0].TimeTaken)
	assert.Equal(t, 1, *trackers[1].Rank)
	assert.Equal(t, 3, *trackers[2].Rank)
	assert.Nil(t, trackers[3].Rank)

	for userID, want := range map[int64]int64{1: 100, 2: 100, 3: 0, 4: 0} {
		balance, err := f.ledger.Balance(ctx, userID)
		require.NoError(t, err)
		assert.Equal(t, want, balance, "user %d", userID)
	}

	var users []models.User
	require.NoError(t, f.db.Order("id").Find(&users).Error)
	require.Len(t, users, 4)
	for _, u := range users {
		assert.Equal(t, 1, u.TotalPlayed)
	}
	assert.Equal(t, 1, users[0].ContestWon)
	assert.Equal(t, int64(100), users[0].TotalEarning)
	assert.Equal(t, 1, users[1].ContestWon)
	assert.Equal(t, 0, users[2].ContestWon)

	f.notifier.mu.Lock()
	defer f.notifier.mu.Unlock()
	require.Len(t, f.notifier.events, 2)
	assert.Equal(t, c.ID, f.notifier.events[0].ContestID)
	assert.Equal(t, int64(100), f.notifier.events[0].Amount)
}

func TestFinalizeDueIsExactlyOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	c := endedContest(t, f.db)
	play(t, f.db, c, "A", 1, models.PlayFinished, 5, ms(-90*time.Minute), ms(-89*time.Minute))
	play(t, f.db, c, "B", 2, models.PlayFinished, 4, ms(-90*time.Minute), ms(-89*time.Minute))

	ended, err := f.engine.FinalizeDue(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	ended, err = f.engine.FinalizeDue(ctx)
	require.NoError(t, err)
	assert.Zero(t, ended)

	_, err = f.engine.FinalizeContest(ctx, c.ID)
	assert.ErrorIs(t, err, ErrNotDue)
	f.engine.Wait()

	var wins int64
	require.NoError(t, f.db.Model(&models.WalletTransaction{}).
		Where("transaction_type = ?", models.TxContestWin).Count(&wins).Error)
	assert.Equal(t, int64(2), wins)

	var u models.User
	require.NoError(t, f.db.First(&u, "id = ?", 1).Error)
	assert.Equal(t, 1, u.TotalPlayed)
}

func TestFinalizeDueSkipsOpenContests(t *testing.T) {
	f := setup(t)
	open := storetest.ActiveContest(t, f.db, ms(-time.Hour), ms(time.Hour), 1)
	closed := endedContest(t, f.db)

	ended, err := f.engine.FinalizeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ended)

	var stillOpen, nowEnded models.Contest
	require.NoError(t, f.db.First(&stillOpen, "id = ?", open.ID).Error)
	require.NoError(t, f.db.First(&nowEnded, "id = ?", closed.ID).Error)
	assert.Equal(t, models.ContestActive, stillOpen.Status)
	assert.Equal(t, models.ContestEnded, nowEnded.Status)
}

func TestFinalizeBatchSize(t *testing.T) {
	f := setup(t)
	f.engine.opts.BatchSize = 2
	for i := 0; i < 3; i++ {
		endedContest(t, f.db)
	}

	ended, err := f.engine.FinalizeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, ended)

	ended, err = f.engine.FinalizeDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ended)
}

func TestLedgerConservation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	const fee, prize = 40, 150

	c := storetest.ActiveContest(t, f.db, ms(-time.Hour), ms(time.Hour), 2, func(c *models.Contest) {
		c.EntryFee = fee
		c.PrizeValue = prize
	})
	for userID := int64(1); userID <= 4; userID++ {
		storetest.Fund(t, f.db, userID, 100)
		_, err := f.ledger.PayForContest(ctx, userID, c.ID)
		require.NoError(t, err)
	}
	require.NoError(t, f.db.Model(&models.PlayTracker{}).Where("user_id = ?", 1).
		Updates(map[string]interface{}{"status": models.PlayFinished, "score": 2, "start_ts": ms(0), "finish_ts": ms(time.Minute)}).Error)
	require.NoError(t, f.db.Model(&models.PlayTracker{}).Where("user_id = ?", 2).
		Updates(map[string]interface{}{"status": models.PlayFinished, "score": 1, "start_ts": ms(0), "finish_ts": ms(time.Minute)}).Error)

	f.clk.Advance(2 * time.Hour)
	outcome, err := f.engine.FinalizeContest(ctx, c.ID)
	require.NoError(t, err)
	f.engine.Wait()
	require.Len(t, outcome.Winners, 2)

	completed, err := repository.NewTransactionRepository(f.db).ListCompleted(ctx)
	require.NoError(t, err)
	storetest.LedgerRows(t, completed)
	var sum int64
	for _, r := range completed {
		sum += *r.BalanceAfter - r.BalanceBefore
	}
	assert.Equal(t, int64(2*prize-4*fee), sum)
}

func TestFinalizeRatioBased(t *testing.T) {
	f := setup(t)
	num, den := 1, 2
	c := endedContest(t, f.db, func(c *models.Contest) {
		c.PrizeSelection = models.PrizeRatioBased
		c.TopWinnersCount = nil
		c.PrizeRatioNumerator = &num
		c.PrizeRatioDenominator = &den
	})
	for i, id := range []string{"A", "B", "C", "D", "E", "F"} {
		play(t, f.db, c, id, int64(i+1), models.PlayFinished, 10-i, ms(-90*time.Minute), ms(-80*time.Minute))
	}

	outcome, err := f.engine.FinalizeContest(context.Background(), c.ID)
	require.NoError(t, err)
	f.engine.Wait()
	assert.Equal(t, 3, outcome.WinnersCount)
	assert.Len(t, outcome.Winners, 2)
}
