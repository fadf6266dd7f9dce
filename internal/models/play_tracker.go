package models

import "gorm.io/datatypes"

type PlayStatus string

const (
	PlayInit     PlayStatus = "INIT"
	PlayPaid     PlayStatus = "PAID"
	PlayStarted  PlayStatus = "STARTED"
	PlayFinished PlayStatus = "FINISHED"
	PlayEnded    PlayStatus = "ENDED"
)

// PlayTracker is the per (user, contest) record of a play. Never deleted.
type PlayTracker struct {
	ID                  string                      `gorm:"primaryKey;size:36" json:"id"`
	UserID              int64                       `gorm:"not null;uniqueIndex:idx_tracker_user_contest,priority:1" json:"userId"`
	ContestID           string                      `gorm:"size:36;not null;uniqueIndex:idx_tracker_user_contest,priority:2;index" json:"contestId"`
	Status              PlayStatus                  `gorm:"size:16;not null" json:"status"`
	WalletTransactionID *string                     `gorm:"size:36" json:"walletTransactionId,omitempty"`
	InitTs              int64                       `gorm:"not null" json:"initTs"`
	PaidTs              *int64                      `json:"paidTs,omitempty"`
	StartTs             *int64                      `json:"startTs,omitempty"`
	ResumeTs            datatypes.JSONSlice[int64]  `json:"resumeTs"`
	FinishTs            *int64                      `json:"finishTs,omitempty"`
	CurrQuestionNo      int                         `gorm:"not null;default:0" json:"currQuestionNo"`
	TotalQuestions      int                         `gorm:"not null;default:0" json:"totalQuestions"`
	TotalAnswered       int                         `gorm:"not null;default:0" json:"totalAnswered"`
	Answers             datatypes.JSONSlice[Answer] `json:"answers"`
	Score               int                         `gorm:"not null;default:0" json:"score"`
	Rank                *int                        `json:"rank,omitempty"`
	TimeTaken           *int64                      `json:"timeTaken,omitempty"`
	CreatedTs           int64                       `gorm:"not null" json:"createdTs"`
	UpdatedTs           int64                       `gorm:"not null" json:"updatedTs"`
}

// Answer is a frozen snapshot of a question at answer time.
type Answer struct {
	QuestionNo       int              `json:"questionNo"`
	QuestionText     string           `json:"questionText"`
	Options          []AnsweredOption `json:"options"`
	SelectedOptionID int              `json:"selectedOptionId"`
}

type AnsweredOption struct {
	OptionID   int    `json:"optionId"`
	OptionText string `json:"optionText"`
}

// NewPlayTracker returns a fresh INIT tracker for userID in contest.
func NewPlayTracker(id string, userID int64, contest *Contest, now int64) *PlayTracker {
	return &PlayTracker{
		ID:             id,
		UserID:         userID,
		ContestID:      contest.ID,
		Status:         PlayInit,
		InitTs:         now,
		ResumeTs:       datatypes.JSONSlice[int64]{},
		TotalQuestions: contest.QuestionCount,
		Answers:        datatypes.JSONSlice[Answer]{},
		CreatedTs:      now,
		UpdatedTs:      now,
	}
}
