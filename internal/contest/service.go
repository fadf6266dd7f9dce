// Package contest owns contest authoring and the read models built from
// finalized contests.
package contest

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/repository"
	"trailsbuddy.com/quiz-contest/internal/validation"
)

var (
	ErrNotFound          = apperr.New(apperr.KindNotFound, "contest not found")
	ErrInvalidTransition = apperr.New(apperr.KindConflict, "contest status does not allow this change")
	ErrAlreadyStarted    = apperr.New(apperr.KindConflict, "contest has already started")
)

type CreateInput struct {
	Title                 string                `json:"title" validate:"required,max=100"`
	EntryFee              int64                 `json:"entryFee" validate:"min=0"`
	PrizeSelection        models.PrizeSelection `json:"prizeSelection" validate:"required,oneof=TOP_WINNERS RATIO_BASED"`
	TopWinnersCount       *int                  `json:"topWinnersCount"`
	PrizeRatioNumerator   *int                  `json:"prizeRatioNumerator"`
	PrizeRatioDenominator *int                  `json:"prizeRatioDenominator"`
	PrizeValue            int64                 `json:"prizeValue" validate:"min=0"`
	StartTime             int64                 `json:"startTime" validate:"min=1"`
	EndTime               int64                 `json:"endTime" validate:"gtfield=StartTime"`
}

func (in *CreateInput) checkPrize() error {
	switch in.PrizeSelection {
	case models.PrizeTopWinners:
		if in.TopWinnersCount == nil || *in.TopWinnersCount < 1 {
			return apperr.Validation("topWinnersCount must be at least 1")
		}
	case models.PrizeRatioBased:
		if in.PrizeRatioNumerator == nil || *in.PrizeRatioNumerator < 0 {
			return apperr.Validation("prizeRatioNumerator must be at least 0")
		}
		if in.PrizeRatioDenominator == nil || *in.PrizeRatioDenominator < 1 {
			return apperr.Validation("prizeRatioDenominator must be at least 1")
		}
	}
	return nil
}

// Result is one finalized contest as seen by a participant.
type Result struct {
	ContestID string `json:"contestId"`
	Title     string `json:"title"`
	EndTime   int64  `json:"endTime"`
	Score     int    `json:"score"`
	Rank      *int   `json:"rank,omitempty"`
	TimeTaken int64  `json:"timeTaken"`
	Prize     int64  `json:"prize"`
	Won       bool   `json:"won"`
}

type Service struct {
	contests  repository.ContestRepository
	trackers  repository.TrackerRepository
	users     repository.UserRepository
	clock     clock.Clock
	log       *logger.Logger
	validator *validation.Validator
}

func NewService(db *gorm.DB, clk clock.Clock, log *logger.Logger, v *validation.Validator) *Service {
	return &Service{
		contests:  repository.NewContestRepository(db),
		trackers:  repository.NewTrackerRepository(db),
		users:     repository.NewUserRepository(db),
		clock:     clk,
		log:       log,
		validator: v,
	}
}

func (s *Service) Create(ctx context.Context, userID int64, in CreateInput) (*models.Contest, error) {
	if err := s.validator.Validate(in); err != nil {
		return nil, err
	}
	if err := in.checkPrize(); err != nil {
		return nil, err
	}
	now := clock.NowMillis(s.clock)
	c := &models.Contest{
		ID:                    uuid.New().String(),
		Title:                 in.Title,
		EntryFee:              in.EntryFee,
		PrizeSelection:        in.PrizeSelection,
		TopWinnersCount:       in.TopWinnersCount,
		PrizeRatioNumerator:   in.PrizeRatioNumerator,
		PrizeRatioDenominator: in.PrizeRatioDenominator,
		PrizeValue:            in.PrizeValue,
		StartTime:             in.StartTime,
		EndTime:               in.EndTime,
		Status:                models.ContestCreated,
		Winners:               datatypes.JSONSlice[models.Standing]{},
		AllPlayTrackers:       datatypes.JSONSlice[models.Standing]{},
		CreatedBy:             userID,
		CreatedTs:             now,
		UpdatedTs:             now,
	}
	if err := s.contests.Create(ctx, c); err != nil {
		return nil, err
	}
	s.log.WithContest(c.ID).WithField("created_by", userID).Info("Contest created")
	return c, nil
}

func (s *Service) Get(ctx context.Context, id string) (*models.Contest, error) {
	c, err := s.contests.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, ErrNotFound
	}
	return c, nil
}

// Activate moves CREATED or INACTIVE to ACTIVE.
func (s *Service) Activate(ctx context.Context, id string) (*models.Contest, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	ok, err := s.contests.Transition(ctx, id,
		[]models.ContestStatus{models.ContestCreated, models.ContestInactive},
		models.ContestActive, clock.NowMillis(s.clock))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.log.WithContest(id).Info("Contest activated")
	return s.Get(ctx, id)
}

// Deactivate moves ACTIVE back to INACTIVE, only before the start time.
func (s *Service) Deactivate(ctx context.Context, id string) (*models.Contest, error) {
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	now := clock.NowMillis(s.clock)
	if c.StartTime <= now {
		return nil, ErrAlreadyStarted
	}
	ok, err := s.contests.Transition(ctx, id,
		[]models.ContestStatus{models.ContestActive},
		models.ContestInactive, now)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrInvalidTransition
	}
	s.log.WithContest(id).Info("Contest deactivated")
	return s.Get(ctx, id)
}

// ResultsForUser lists the user's finalized contests, newest first.
func (s *Service) ResultsForUser(ctx context.Context, userID int64, limit int) ([]Result, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	trackers, err := s.trackers.FindEndedByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(trackers))
	for _, t := range trackers {
		ids = append(ids, t.ContestID)
	}
	contests, err := s.contests.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	out := make([]Result, 0, len(contests))
	for _, c := range contests {
		if c.Status != models.ContestEnded {
			continue
		}
		for _, st := range c.AllPlayTrackers {
			if st.UserID != userID {
				continue
			}
			out = append(out, Result{
				ContestID: c.ID,
				Title:     c.Title,
				EndTime:   c.EndTime,
				Score:     st.Score,
				Rank:      st.Rank,
				TimeTaken: st.TimeTaken,
				Prize:     st.Prize,
				Won:       st.Prize > 0 || isWinner(c.Winners, userID),
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].EndTime > out[j].EndTime })
	return out, nil
}

func isWinner(winners []models.Standing, userID int64) bool {
	for _, w := range winners {
		if w.UserID == userID {
			return true
		}
	}
	return false
}

func (s *Service) Leaderboard(ctx context.Context, limit int) ([]models.User, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	return s.users.Leaderboard(ctx, limit)
}
