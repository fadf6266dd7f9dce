// Package questionbank serves contest questions to the play session and lets
// contest authors add them.
package questionbank

import (
	"context"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/repository"
	"trailsbuddy.com/quiz-contest/internal/validation"
)

// Bank is the read side used during play. Both lookups only see active
// questions and return nil when nothing matches.
type Bank interface {
	FindQuestion(ctx context.Context, contestID string, questionNo int) (*models.Question, error)
	FindNextQuestion(ctx context.Context, contestID string, afterQuestionNo int) (*models.Question, error)
}

var (
	ErrContestNotFound  = apperr.New(apperr.KindNotFound, "contest not found")
	ErrContestEnded     = apperr.New(apperr.KindInvalidState, "contest has already ended")
	ErrDuplicateNumber  = apperr.New(apperr.KindConflict, "question number already exists for contest")
	ErrQuestionNotFound = apperr.New(apperr.KindNotFound, "question not found")
	ErrContestInUse     = apperr.New(apperr.KindConflict, "questions cannot be removed once the contest is open or played")
	ErrNotLastQuestion  = apperr.New(apperr.KindConflict, "only the last question can be deactivated")
)

type OptionInput struct {
	OptionID   int    `json:"optionId" validate:"min=1"`
	OptionText string `json:"optionText" validate:"required"`
	IsCorrect  bool   `json:"isCorrect"`
}

func (o OptionInput) Correct() bool   { return o.IsCorrect }
func (o OptionInput) Identifier() int { return o.OptionID }

type CreateInput struct {
	ContestID    string        `json:"contestId" validate:"required"`
	QuestionNo   int           `json:"questionNo" validate:"min=1"`
	QuestionText string        `json:"questionText" validate:"required"`
	Options      []OptionInput `json:"options" validate:"required,min=2,single_correct,unique_ids,dive"`
}

type Service struct {
	db        *gorm.DB
	questions repository.QuestionRepository
	contests  repository.ContestRepository
	trackers  repository.TrackerRepository
	clock     clock.Clock
	log       *logger.Logger
	validator *validation.Validator
}

func NewService(db *gorm.DB, clk clock.Clock, log *logger.Logger, v *validation.Validator) *Service {
	return &Service{
		db:        db,
		questions: repository.NewQuestionRepository(db),
		contests:  repository.NewContestRepository(db),
		trackers:  repository.NewTrackerRepository(db),
		clock:     clk,
		log:       log,
		validator: v,
	}
}

func (s *Service) FindQuestion(ctx context.Context, contestID string, questionNo int) (*models.Question, error) {
	return s.questions.FindActive(ctx, contestID, questionNo)
}

func (s *Service) FindNextQuestion(ctx context.Context, contestID string, afterQuestionNo int) (*models.Question, error) {
	return s.questions.FindNextActive(ctx, contestID, afterQuestionNo)
}

// Create appends a question and bumps the contest's question count in one
// transaction. Question numbers are dense: the next one must be
// questionCount+1, so the active questions are always 1..questionCount.
func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.Question, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	now := clock.NowMillis(s.clock)

	opts := make(datatypes.JSONSlice[models.Option], 0, len(in.Options))
	for _, o := range in.Options {
		opts = append(opts, models.Option{OptionID: o.OptionID, OptionText: o.OptionText, IsCorrect: o.IsCorrect})
	}
	q := &models.Question{
		ContestID:    in.ContestID,
		QuestionNo:   in.QuestionNo,
		QuestionText: in.QuestionText,
		Options:      opts,
		IsActive:     true,
		CreatedBy:    userID,
		CreatedTs:    now,
		UpdatedTs:    now,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contests := s.contests.WithTx(tx)
		questions := s.questions.WithTx(tx)

		contest, err := contests.FindByID(ctx, in.ContestID)
		if err != nil {
			return err
		}
		if contest == nil {
			return ErrContestNotFound
		}
		if contest.Status == models.ContestEnded || contest.Status == models.ContestFinished {
			return ErrContestEnded
		}
		if in.QuestionNo <= contest.QuestionCount {
			return ErrDuplicateNumber
		}
		if in.QuestionNo != contest.QuestionCount+1 {
			return apperr.Newf(apperr.KindValidation, "questionNo must be %d", contest.QuestionCount+1)
		}
		// A number freed by Deactivate still holds its inactive row.
		revived, err := questions.Revive(ctx, q)
		if err != nil {
			return err
		}
		if revived {
			stored, err := questions.FindActive(ctx, in.ContestID, in.QuestionNo)
			if err != nil {
				return err
			}
			q = stored
		} else {
			exists, err := questions.Exists(ctx, in.ContestID, in.QuestionNo)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateNumber
			}
			if err := questions.Create(ctx, q); err != nil {
				return err
			}
		}
		return contests.IncrementQuestionCount(ctx, in.ContestID, now)
	})
	if err != nil {
		return nil, err
	}

	s.log.WithContest(in.ContestID).WithField("question_no", in.QuestionNo).Info("Question created")
	return q, nil
}

// Deactivate withdraws the last question of a contest and lowers its
// question count. It is refused once the contest has been opened or anyone
// holds a tracker for it, since trackers fix their question total at start.
func (s *Service) Deactivate(ctx context.Context, contestID string, questionNo int) error {
	now := clock.NowMillis(s.clock)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		contests := s.contests.WithTx(tx)
		questions := s.questions.WithTx(tx)

		contest, err := contests.FindByID(ctx, contestID)
		if err != nil {
			return err
		}
		if contest == nil {
			return ErrContestNotFound
		}
		if contest.Status != models.ContestCreated && contest.Status != models.ContestInactive {
			return ErrContestInUse
		}
		played, err := s.trackers.WithTx(tx).CountByContest(ctx, contestID)
		if err != nil {
			return err
		}
		if played > 0 {
			return ErrContestInUse
		}
		if questionNo < 1 || questionNo > contest.QuestionCount {
			return ErrQuestionNotFound
		}
		if questionNo != contest.QuestionCount {
			return ErrNotLastQuestion
		}
		ok, err := questions.Deactivate(ctx, contestID, questionNo, now)
		if err != nil {
			return err
		}
		if !ok {
			return ErrQuestionNotFound
		}
		ok, err = contests.DecrementQuestionCount(ctx, contestID, now)
		if err != nil {
			return err
		}
		if !ok {
			return apperr.New(apperr.KindInternal, "question count already zero")
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.log.WithContest(contestID).WithField("question_no", questionNo).Info("Question deactivated")
	return nil
}
