package questionbank

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"trailsbuddy.com/quiz-contest/internal/apperr"
	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/logger"
	"trailsbuddy.com/quiz-contest/internal/models"
	"trailsbuddy.com/quiz-contest/internal/store/storetest"
	"trailsbuddy.com/quiz-contest/internal/validation"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func validInput(contestID string, no int) CreateInput {
	return CreateInput{
		ContestID:    contestID,
		QuestionNo:   no,
		QuestionText: "Capital of France?",
		Options: []OptionInput{
			{OptionID: 1, OptionText: "Berlin"},
			{OptionID: 2, OptionText: "Paris", IsCorrect: true},
		},
	}
}

func TestCreateIncrementsQuestionCount(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	c := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 0)

	q, err := svc.Create(context.Background(), 42, validInput(c.ID, 1))
	require.NoError(t, err)
	assert.True(t, q.IsActive)
	assert.Equal(t, int64(42), q.CreatedBy)

	var stored models.Contest
	require.NoError(t, db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, 1, stored.QuestionCount)

	_, err = svc.Create(context.Background(), 42, validInput(c.ID, 1))
	assert.ErrorIs(t, err, ErrDuplicateNumber)
}

func TestCreateValidation(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	c := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 0)

	noCorrect := validInput(c.ID, 1)
	noCorrect.Options[1].IsCorrect = false
	_, err := svc.Create(context.Background(), 1, noCorrect)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	dupIDs := validInput(c.ID, 1)
	dupIDs.Options[1].OptionID = 1
	_, err = svc.Create(context.Background(), 1, dupIDs)
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(context.Background(), 1, validInput("missing", 1))
	assert.ErrorIs(t, err, ErrContestNotFound)
}

func TestCreateRequiresNextNumber(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	c := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 0)
	ctx := context.Background()

	_, err := svc.Create(ctx, 1, validInput(c.ID, 2))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(ctx, 1, validInput(c.ID, 1))
	require.NoError(t, err)

	_, err = svc.Create(ctx, 1, validInput(c.ID, 3))
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Create(ctx, 1, validInput(c.ID, 2))
	require.NoError(t, err)

	var stored models.Contest
	require.NoError(t, db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, 2, stored.QuestionCount)

	var rows int64
	require.NoError(t, db.Model(&models.Question{}).Where("contest_id = ?", c.ID).Count(&rows).Error)
	assert.Equal(t, int64(2), rows)
}

func TestDeactivateLastQuestionBeforeOpen(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	c := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 3, func(c *models.Contest) {
		c.Status = models.ContestCreated
	})
	ctx := context.Background()

	assert.ErrorIs(t, svc.Deactivate(ctx, c.ID, 2), ErrNotLastQuestion)
	require.NoError(t, svc.Deactivate(ctx, c.ID, 3))
	assert.ErrorIs(t, svc.Deactivate(ctx, c.ID, 3), ErrQuestionNotFound)

	var stored models.Contest
	require.NoError(t, db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, 2, stored.QuestionCount)

	q, err := svc.FindQuestion(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Nil(t, q)
	next, err := svc.FindNextQuestion(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, next)

	in := validInput(c.ID, 3)
	in.QuestionText = "Capital of Spain?"
	created, err := svc.Create(ctx, 7, in)
	require.NoError(t, err)
	assert.Equal(t, "Capital of Spain?", created.QuestionText)
	assert.NotZero(t, created.ID)

	q, err = svc.FindQuestion(ctx, c.ID, 3)
	require.NoError(t, err)
	require.NotNil(t, q)
	assert.Equal(t, "Capital of Spain?", q.QuestionText)
	assert.Equal(t, int64(7), q.CreatedBy)
	require.NoError(t, db.First(&stored, "id = ?", c.ID).Error)
	assert.Equal(t, 3, stored.QuestionCount)
}

func TestDeactivateRefusedOnceOpenOrPlayed(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	ctx := context.Background()

	open := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 2)
	assert.ErrorIs(t, svc.Deactivate(ctx, open.ID, 2), ErrContestInUse)

	paused := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 2, func(c *models.Contest) {
		c.Status = models.ContestInactive
	})
	require.NoError(t, db.Create(&models.PlayTracker{
		ID:        "tracker-1",
		UserID:    5,
		ContestID: paused.ID,
		Status:    models.PlayInit,
		InitTs:    t0.UnixMilli(),
		ResumeTs:  datatypes.JSONSlice[int64]{},
		Answers:   datatypes.JSONSlice[models.Answer]{},
		CreatedTs: t0.UnixMilli(),
		UpdatedTs: t0.UnixMilli(),
	}).Error)
	assert.ErrorIs(t, svc.Deactivate(ctx, paused.ID, 2), ErrContestInUse)

	for _, id := range []string{open.ID, paused.ID} {
		var stored models.Contest
		require.NoError(t, db.First(&stored, "id = ?", id).Error)
		assert.Equal(t, 2, stored.QuestionCount)
		q, err := svc.FindQuestion(ctx, id, 2)
		require.NoError(t, err)
		assert.NotNil(t, q)
	}

	assert.ErrorIs(t, svc.Deactivate(ctx, "missing", 1), ErrContestNotFound)
}

func TestFindNextQuestionSkipsInactive(t *testing.T) {
	db := storetest.Open(t)
	svc := NewService(db, clock.NewFixed(t0), logger.Discard(), validation.New())
	c := storetest.ActiveContest(t, db, t0.UnixMilli(), t0.Add(time.Hour).UnixMilli(), 3)
	ctx := context.Background()

	require.NoError(t, db.Model(&models.Question{}).
		Where("contest_id = ? AND question_no = ?", c.ID, 2).
		Update("is_active", false).Error)

	next, err := svc.FindNextQuestion(ctx, c.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, 3, next.QuestionNo)

	q, err := svc.FindQuestion(ctx, c.ID, 2)
	require.NoError(t, err)
	assert.Nil(t, q)

	none, err := svc.FindNextQuestion(ctx, c.ID, 3)
	require.NoError(t, err)
	assert.Nil(t, none)
}
