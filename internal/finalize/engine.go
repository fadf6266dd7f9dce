// Package finalize closes contests whose end time has passed: it ranks the
// engaged players, pays the winners and freezes the standings, all in one
// database transaction per contest.
package finalize

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/ledger"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/notify"
	"trailsbuddy.com/quiz-contest/internal/ranking"
	"trailsbuddy.com/quiz-contest/internal/repository"
)

// ErrNotDue is returned when the contest is no longer ACTIVE or has not
// reached its end time. Another finalizer may have closed it first.
var ErrNotDue = apperr.New(apperr.KindInvalidState, "contest is not due for finalization")

const notifyTimeout = 5 * time.Second

type Options struct {
	BatchSize   int
	Concurrency int
}

// Outcome describes one committed finalization.
type Outcome struct {
	ContestID    string
	Participants int
	WinnersCount int
	Winners      []ranking.Entry
	Credits      []*models.WalletTransaction
}

type Engine struct {
	db       *gorm.DB
	contests repository.ContestRepository
	trackers repository.TrackerRepository
	users    repository.UserRepository
	ledger   *ledger.Service
	notifier notify.Notifier
	clock    clock.Clock
	log      *logger.Logger
	metrics  *metrics.Metrics
	opts     Options

	inflight sync.WaitGroup
}

func NewEngine(db *gorm.DB, led *ledger.Service, notifier notify.Notifier, clk clock.Clock, log *logger.Logger, m *metrics.Metrics, opts Options) *Engine {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 10
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = opts.BatchSize
	}
	return &Engine{
		db:       db,
		contests: repository.NewContestRepository(db),
		trackers: repository.NewTrackerRepository(db),
		users:    repository.NewUserRepository(db),
		ledger:   led,
		notifier: notifier,
		clock:    clk,
		log:      log,
		metrics:  m,
		opts:     opts,
	}
}

// FinalizeDue finalizes one batch of due contests, stalest first, running
// them concurrently. A failing contest is logged and left ACTIVE for the
// next tick; it never stops the others. It returns how many contests ended.
func (e *Engine) FinalizeDue(ctx context.Context) (int, error) {
	now := clock.NowMillis(e.clock)
	due, err := e.contests.FindDue(ctx, now, e.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	e.metrics.FinalizeBatchSize.Set(float64(len(due)))
	if len(due) == 0 {
		return 0, nil
	}

	var (
		mu    sync.Mutex
		ended int
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, c := range due {
		contestID := c.ID
		g.Go(func() error {
			if _, err := e.FinalizeContest(gctx, contestID); err != nil {
				return nil
			}
			mu.Lock()
			ended++
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return ended, err
	}
	e.log.Entry().WithField("due", len(due)).WithField("ended", ended).Info("Finalization batch completed")
	return ended, nil
}

// FinalizeContest runs the closing transaction for one contest.
func (e *Engine) FinalizeContest(ctx context.Context, contestID string) (*Outcome, error) {
	start := time.Now()
	defer func() { e.metrics.FinalizeDuration.Observe(time.Since(start).Seconds()) }()

	log := e.log.WithContest(contestID)
	now := clock.NowMillis(e.clock)

	var (
		outcome Outcome
		title   string
	)
	err := e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contests := e.contests.WithTx(tx)
		trackers := e.trackers.WithTx(tx)
		users := e.users.WithTx(tx)

		contest, err := contests.FindByID(ctx, contestID)
		if err != nil {
			return err
		}
		if contest == nil || contest.Status != models.ContestActive || contest.EndTime > now {
			return ErrNotDue
		}
		title = contest.Title

		engaged, err := trackers.FindEngaged(ctx, contestID)
		if err != nil {
			return err
		}
		entries := ranking.FromTrackers(engaged, now)
		ranking.Sort(entries)
		ranking.AssignRanks(entries)
		winnersCount := ranking.WinnersCount(contest, len(entries))
		winners := ranking.SelectWinners(entries, winnersCount)
		standings := ranking.Standings(entries, contest.PrizeValue, winners)
		winnerStandings := ranking.Standings(winners, contest.PrizeValue, winners)

		claimed, err := contests.MarkEnded(ctx, contestID, winnerStandings, standings, now)
		if err != nil {
			return err
		}
		if !claimed {
			return ErrNotDue
		}

		if contest.PrizeValue > 0 {
			for _, w := range winners {
				record, err := e.ledger.CreditPrize(ctx, tx, w.UserID, contestID, contest.PrizeValue, now)
				if err != nil {
					return fmt.Errorf("failed to credit prize to user %d: %w", w.UserID, err)
				}
				outcome.Credits = append(outcome.Credits, record)
			}
		}

		participants := make([]int64, 0, len(entries))
		for _, en := range entries {
			ok, err := trackers.ApplyByID(ctx, en.TrackerID, repository.OutcomeUpdate{
				Rank:      en.Rank,
				TimeTaken: en.TimeTaken,
				Ts:        now,
			})
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("play tracker %s changed during finalization", en.TrackerID)
			}
			participants = append(participants, en.UserID)
		}

		if err := users.IncrementPlayed(ctx, participants, now); err != nil {
			return err
		}
		for _, w := range winners {
			if err := users.RecordWin(ctx, w.UserID, contest.PrizeValue, now); err != nil {
				return err
			}
		}

		outcome.ContestID = contestID
		outcome.Participants = len(entries)
		outcome.WinnersCount = winnersCount
		outcome.Winners = winners
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotDue) {
			e.metrics.Finalizations.WithLabelValues("skipped").Inc()
			log.Debug("Contest not due, skipped")
			return nil, err
		}
		e.metrics.Finalizations.WithLabelValues("failed").Inc()
		log.WithError(err).Error("Contest finalization aborted")
		return nil, apperr.Wrap(apperr.KindTransactionFailure, err, "contest finalization aborted")
	}

	e.metrics.Finalizations.WithLabelValues("ended").Inc()
	e.ledger.RecordCompleted(outcome.Credits...)
	log.WithField("participants", outcome.Participants).
		WithField("winners_count", outcome.WinnersCount).
		WithField("winners", len(outcome.Winners)).
		Info("Contest finalized")

	e.dispatch(title, outcome.Credits)
	return &outcome, nil
}

// dispatch publishes prize events in the background.
func (e *Engine) dispatch(title string, credits []*models.WalletTransaction) {
	if e.notifier == nil || len(credits) == 0 {
		return
	}
	e.inflight.Add(1)
	go func() {
		defer e.inflight.Done()
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		for _, r := range credits {
			event := notify.PrizeCredited{
				UserID:        r.UserID,
				Amount:        r.Amount,
				Title:         title,
				TransactionID: r.ID,
			}
			if r.ContestID != nil {
				event.ContestID = *r.ContestID
			}
			if err := e.notifier.PrizeCredited(ctx, event); err != nil {
				e.metrics.PrizeNotifications.WithLabelValues("error").Inc()
				e.log.WithUserID(r.UserID).WithError(err).Warn("Failed to publish prize notification")
				continue
			}
			e.metrics.PrizeNotifications.WithLabelValues("sent").Inc()
		}
	}()
}

// Wait blocks until background notifications have been sent.
func (e *Engine) Wait() {
	e.inflight.Wait()
}
