package storetest

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/models"
)

// ActiveContest inserts an ACTIVE contest open on [start, end] with n
// questions whose correct option is always 3. mutate may adjust the contest
// before insert.
func ActiveContest(t *testing.T, db *gorm.DB, start, end int64, n int, mutate ...func(*models.Contest)) *models.Contest {
	t.Helper()
	top := 3
	c := &models.Contest{
		ID:              uuid.New().String(),
		Title:           "Test contest",
		EntryFee:        0,
		PrizeSelection:  models.PrizeTopWinners,
		TopWinnersCount: &top,
		PrizeValue:      100,
		StartTime:       start,
		EndTime:         end,
		QuestionCount:   n,
		Status:          models.ContestActive,
		Winners:         datatypes.JSONSlice[models.Standing]{},
		AllPlayTrackers: datatypes.JSONSlice[models.Standing]{},
		CreatedTs:       start,
		UpdatedTs:       start,
	}
	for _, m := range mutate {
		m(c)
	}
	require.NoError(t, db.Create(c).Error)
	for i := 1; i <= n; i++ {
		Question(t, db, c.ID, i)
	}
	return c
}

// Question inserts question questionNo with options 1..4, option 3 correct.
func Question(t *testing.T, db *gorm.DB, contestID string, questionNo int) *models.Question {
	t.Helper()
	q := &models.Question{
		ContestID:    contestID,
		QuestionNo:   questionNo,
		QuestionText: fmt.Sprintf("Question %d", questionNo),
		Options: datatypes.JSONSlice[models.Option]{
			{OptionID: 1, OptionText: "one"},
			{OptionID: 2, OptionText: "two"},
			{OptionID: 3, OptionText: "three", IsCorrect: true},
			{OptionID: 4, OptionText: "four"},
		},
		IsActive: true,
	}
	require.NoError(t, db.Create(q).Error)
	return q
}

// Fund sets userID's wallet balance directly.
func Fund(t *testing.T, db *gorm.DB, userID, balance int64) {
	t.Helper()
	w := models.Wallet{UserID: userID, Balance: balance}
	require.NoError(t, db.Create(&w).Error)
}

// User inserts a users row.
func User(t *testing.T, db *gorm.DB, userID int64, name string) {
	t.Helper()
	u := models.User{ID: userID}
	if name != "" {
		u.Name = &name
	}
	require.NoError(t, db.Create(&u).Error)
}

// LedgerRows checks every COMPLETED row moves the balance by exactly its
// signed amount.
func LedgerRows(t *testing.T, rows []models.WalletTransaction) {
	t.Helper()
	for _, r := range rows {
		if r.Status != models.TxCompleted {
			continue
		}
		require.NotNil(t, r.BalanceAfter, "transaction %s", r.ID)
		assert.Equal(t, r.BalanceBefore+r.TransactionType.Sign()*r.Amount, *r.BalanceAfter,
			"transaction %s (%s)", r.ID, r.TransactionType)
	}
}
