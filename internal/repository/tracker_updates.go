package repository

import (
	"gorm.io/datatypes"

	"trailsbuddy.com/quiz-contest/internal/models"
)

// TrackerUpdate is a typed partial update of a PlayTracker. Each
// implementation names the state it expects (the guard) and the exact columns
// it writes, so a concurrent writer that changed the guarded state makes the
// update affect zero rows.
type TrackerUpdate interface {
	guard() (string, []interface{})
	fields() map[string]interface{}
}

// PaidUpdate moves INIT -> PAID.
type PaidUpdate struct {
	WalletTransactionID string
	PaidTs              int64
}

func (u PaidUpdate) guard() (string, []interface{}) {
	return "status = ?", []interface{}{models.PlayInit}
}

func (u PaidUpdate) fields() map[string]interface{} {
	return map[string]interface{}{
		"status":                models.PlayPaid,
		"paid_ts":               u.PaidTs,
		"wallet_transaction_id": u.WalletTransactionID,
		"updated_ts":            u.PaidTs,
	}
}

// StartUpdate moves INIT or PAID -> STARTED and resets progress.
type StartUpdate struct {
	From           models.PlayStatus
	StartTs        int64
	TotalQuestions int
}

func (u StartUpdate) guard() (string, []interface{}) {
	return "status = ?", []interface{}{u.From}
}

func (u StartUpdate) fields() map[string]interface{} {
	return map[string]interface{}{
		"status":           models.PlayStarted,
		"start_ts":         u.StartTs,
		"curr_question_no": 0,
		"total_answered":   0,
		"score":            0,
		"total_questions":  u.TotalQuestions,
		"answers":          datatypes.JSONSlice[models.Answer]{},
		"resume_ts":        datatypes.JSONSlice[int64]{},
		"updated_ts":       u.StartTs,
	}
}

// ResumeUpdate records a session continuation; progress is untouched.
type ResumeUpdate struct {
	PrevUpdatedTs int64
	ResumeTs      []int64
	Ts            int64
}

func (u ResumeUpdate) guard() (string, []interface{}) {
	return "status = ? AND updated_ts = ?", []interface{}{models.PlayStarted, u.PrevUpdatedTs}
}

func (u ResumeUpdate) fields() map[string]interface{} {
	return map[string]interface{}{
		"resume_ts":  datatypes.JSONSlice[int64](u.ResumeTs),
		"updated_ts": u.Ts,
	}
}

// AnswerSubmissionUpdate applies one answer. It is guarded on the question
// counter the caller read, so two submissions for the same question cannot
// both land. When Finished is set the status flip happens in the same UPDATE.
type AnswerSubmissionUpdate struct {
	ExpectedQuestionNo int
	CurrQuestionNo     int
	TotalAnswered      int
	Score              int
	Answers            []models.Answer
	Finished           bool
	Ts                 int64
}

func (u AnswerSubmissionUpdate) guard() (string, []interface{}) {
	return "status = ? AND curr_question_no = ?", []interface{}{models.PlayStarted, u.ExpectedQuestionNo}
}

func (u AnswerSubmissionUpdate) fields() map[string]interface{} {
	f := map[string]interface{}{
		"curr_question_no": u.CurrQuestionNo,
		"total_answered":   u.TotalAnswered,
		"score":            u.Score,
		"answers":          datatypes.JSONSlice[models.Answer](u.Answers),
		"updated_ts":       u.Ts,
	}
	if u.Finished {
		f["status"] = models.PlayFinished
		f["finish_ts"] = u.Ts
	}
	return f
}

// FinishUpdate moves STARTED -> FINISHED without scoring.
type FinishUpdate struct {
	FinishTs int64
}

func (u FinishUpdate) guard() (string, []interface{}) {
	return "status = ?", []interface{}{models.PlayStarted}
}

func (u FinishUpdate) fields() map[string]interface{} {
	return map[string]interface{}{
		"status":     models.PlayFinished,
		"finish_ts":  u.FinishTs,
		"updated_ts": u.FinishTs,
	}
}

// OutcomeUpdate persists the finalization result of one tracker.
type OutcomeUpdate struct {
	Rank      *int
	TimeTaken int64
	Ts        int64
}

func (u OutcomeUpdate) guard() (string, []interface{}) {
	return "status IN ?", []interface{}{EngagedStatuses}
}

func (u OutcomeUpdate) fields() map[string]interface{} {
	return map[string]interface{}{
		"status":     models.PlayEnded,
		"rank":       u.Rank,
		"time_taken": u.TimeTaken,
		"updated_ts": u.Ts,
	}
}

// EngagedStatuses are the tracker states that take part in finalization.
var EngagedStatuses = []models.PlayStatus{models.PlayPaid, models.PlayStarted, models.PlayFinished}
