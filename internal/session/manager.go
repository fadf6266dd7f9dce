// Package session runs a player through a contest:
//
//	INIT --(pay, entryFee>0)--> PAID --(start)--> STARTED
//	INIT --(start, entryFee==0)---------------> STARTED
//	STARTED --(resume)--> STARTED
//	STARTED --(last answer | finish)--> FINISHED
//
// FINISHED -> ENDED belongs to contest finalization. Every transition is a
// guarded UPDATE; losing a race surfaces as a Conflict.
package session

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/metrics"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/questionbank"
	"trailsbuddy.com/quiz-contest/internal/repository"
)

var (
	ErrContestNotFound  = apperr.New(apperr.KindNotFound, "contest not found")
	ErrContestNotOpen   = apperr.New(apperr.KindInvalidState, "contest is not open")
	ErrContestClosed    = apperr.New(apperr.KindInvalidState, "contest has ended")
	ErrSessionNotFound  = apperr.New(apperr.KindNotFound, "play session not found")
	ErrQuestionNotFound = apperr.New(apperr.KindNotFound, "question not found")
	ErrAlreadyFinished  = apperr.New(apperr.KindConflict, "contest already finished for user")
	ErrSessionEnded     = apperr.New(apperr.KindConflict, "contest already ended for user")
	ErrNotStarted       = apperr.New(apperr.KindConflict, "play session is not started")
	ErrOutOfOrder       = apperr.New(apperr.KindConflict, "question answered out of order")
	ErrConcurrentUpdate = apperr.New(apperr.KindConflict, "play session changed concurrently")
	ErrPaymentRequired  = apperr.New(apperr.KindPaymentRequired, "contest is not paid yet")
	ErrNoNextQuestion   = apperr.New(apperr.KindInternal, "no next question for started session")
)

type Manager struct {
	trackers repository.TrackerRepository
	contests repository.ContestRepository
	bank     questionbank.Bank
	clock    clock.Clock
	log      *logger.Logger
	metrics  *metrics.Metrics
}

func NewManager(db *gorm.DB, bank questionbank.Bank, clk clock.Clock, log *logger.Logger, m *metrics.Metrics) *Manager {
	return &Manager{
		trackers: repository.NewTrackerRepository(db),
		contests: repository.NewContestRepository(db),
		bank:     bank,
		clock:    clk,
		log:      log,
		metrics:  m,
	}
}

func (m *Manager) contest(ctx context.Context, contestID string) (*models.Contest, error) {
	c, err := m.contests.FindByID(ctx, contestID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrContestNotFound
	}
	return c, nil
}

func (m *Manager) tracker(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, error) {
	t, err := m.trackers.FindByUserContest(ctx, userID, contestID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, ErrSessionNotFound
	}
	return t, nil
}

// GetOrCreateSession returns the user's tracker for the contest, creating it
// in INIT when the contest is open. An existing tracker is returned as is.
func (m *Manager) GetOrCreateSession(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, error) {
	c, err := m.contest(ctx, contestID)
	if err != nil {
		return nil, err
	}
	existing, err := m.trackers.FindByUserContest(ctx, userID, contestID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	now := clock.NowMillis(m.clock)
	if !c.OpenAt(now) {
		return nil, ErrContestNotOpen
	}
	t, err := m.trackers.CreateIfAbsent(ctx, models.NewPlayTracker(uuid.New().String(), userID, c, now))
	if err != nil {
		return nil, err
	}
	m.metrics.SessionTransitions.WithLabelValues(string(models.PlayInit)).Inc()
	return t, nil
}

// StartOrResume moves INIT/PAID to STARTED, or records a resume on an
// already started session, and returns the next unanswered question.
func (m *Manager) StartOrResume(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, *models.Question, error) {
	t, err := m.tracker(ctx, userID, contestID)
	if err != nil {
		return nil, nil, err
	}
	c, err := m.contest(ctx, contestID)
	if err != nil {
		return nil, nil, err
	}
	now := clock.NowMillis(m.clock)
	if !c.OpenAt(now) {
		return nil, nil, ErrContestNotOpen
	}

	var update repository.TrackerUpdate
	switch t.Status {
	case models.PlayFinished:
		return nil, nil, ErrAlreadyFinished
	case models.PlayEnded:
		return nil, nil, ErrSessionEnded
	case models.PlayInit:
		if c.EntryFee > 0 {
			return nil, nil, ErrPaymentRequired
		}
		update = repository.StartUpdate{From: models.PlayInit, StartTs: now, TotalQuestions: c.QuestionCount}
	case models.PlayPaid:
		update = repository.StartUpdate{From: models.PlayPaid, StartTs: now, TotalQuestions: c.QuestionCount}
	case models.PlayStarted:
		resumes := append(append([]int64{}, t.ResumeTs...), now)
		update = repository.ResumeUpdate{PrevUpdatedTs: t.UpdatedTs, ResumeTs: resumes, Ts: now}
	}

	ok, err := m.trackers.Apply(ctx, userID, contestID, update)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrConcurrentUpdate
	}
	if t.Status != models.PlayStarted {
		m.metrics.SessionTransitions.WithLabelValues(string(models.PlayStarted)).Inc()
		m.log.WithUserID(userID).WithField("contest_id", contestID).Info("Play session started")
	}

	t, err = m.tracker(ctx, userID, contestID)
	if err != nil {
		return nil, nil, err
	}
	next, err := m.bank.FindNextQuestion(ctx, contestID, t.CurrQuestionNo)
	if err != nil {
		return nil, nil, err
	}
	if next == nil {
		m.log.WithUserID(userID).WithField("contest_id", contestID).
			WithField("curr_question_no", t.CurrQuestionNo).
			Error("No next question for started session")
		return nil, nil, ErrNoNextQuestion
	}
	return t, next, nil
}

// SubmitAnswer scores one answer. Answers must arrive strictly in order;
// the last one flips the session to FINISHED in the same UPDATE.
func (m *Manager) SubmitAnswer(ctx context.Context, userID int64, contestID string, questionNo, selectedOptionID int) (*models.PlayTracker, *models.Question, error) {
	t, err := m.tracker(ctx, userID, contestID)
	if err != nil {
		return nil, nil, err
	}
	switch t.Status {
	case models.PlayStarted:
	case models.PlayFinished:
		return nil, nil, ErrAlreadyFinished
	case models.PlayEnded:
		return nil, nil, ErrSessionEnded
	default:
		return nil, nil, ErrNotStarted
	}

	c, err := m.contest(ctx, contestID)
	if err != nil {
		return nil, nil, err
	}
	now := clock.NowMillis(m.clock)
	if c.EndTime <= now {
		return nil, nil, ErrContestClosed
	}
	if questionNo != t.CurrQuestionNo+1 {
		return nil, nil, ErrOutOfOrder
	}

	q, err := m.bank.FindQuestion(ctx, contestID, questionNo)
	if err != nil {
		return nil, nil, err
	}
	if q == nil {
		return nil, nil, ErrQuestionNotFound
	}

	delta := 0
	if correct, ok := q.CorrectOptionID(); ok && correct == selectedOptionID {
		delta = 1
	}
	answers := append(append([]models.Answer{}, t.Answers...), q.Snapshot(selectedOptionID))
	totalAnswered := t.TotalAnswered + 1
	finished := totalAnswered >= t.TotalQuestions

	ok, err := m.trackers.Apply(ctx, userID, contestID, repository.AnswerSubmissionUpdate{
		ExpectedQuestionNo: t.CurrQuestionNo,
		CurrQuestionNo:     questionNo,
		TotalAnswered:      totalAnswered,
		Score:              t.Score + delta,
		Answers:            answers,
		Finished:           finished,
		Ts:                 now,
	})
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, ErrOutOfOrder
	}
	if finished {
		m.metrics.SessionTransitions.WithLabelValues(string(models.PlayFinished)).Inc()
	}

	t, err = m.tracker(ctx, userID, contestID)
	if err != nil {
		return nil, nil, err
	}
	if finished {
		return t, nil, nil
	}
	next, err := m.bank.FindNextQuestion(ctx, contestID, questionNo)
	if err != nil {
		return nil, nil, err
	}
	return t, next, nil
}

// Finish ends a started session early. Nothing is scored.
func (m *Manager) Finish(ctx context.Context, userID int64, contestID string) (*models.PlayTracker, error) {
	t, err := m.tracker(ctx, userID, contestID)
	if err != nil {
		return nil, err
	}
	switch t.Status {
	case models.PlayStarted:
	case models.PlayFinished:
		return nil, ErrAlreadyFinished
	case models.PlayEnded:
		return nil, ErrSessionEnded
	default:
		return nil, ErrNotStarted
	}

	ok, err := m.trackers.Apply(ctx, userID, contestID, repository.FinishUpdate{FinishTs: clock.NowMillis(m.clock)})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}
	m.metrics.SessionTransitions.WithLabelValues(string(models.PlayFinished)).Inc()
	return m.tracker(ctx, userID, contestID)
}
