package models

import "gorm.io/datatypes"

type ContestStatus string

const (
	ContestCreated  ContestStatus = "CREATED"
	ContestActive   ContestStatus = "ACTIVE"
	ContestInactive ContestStatus = "INACTIVE"
	ContestFinished ContestStatus = "FINISHED"
	ContestEnded    ContestStatus = "ENDED"
)

type PrizeSelection string

const (
	PrizeTopWinners PrizeSelection = "TOP_WINNERS"
	PrizeRatioBased PrizeSelection = "RATIO_BASED"
)

// --- Contest ---

// Contest timestamps (StartTime, EndTime, *Ts) are unix milliseconds.
type Contest struct {
	ID                    string         `gorm:"primaryKey;size:36" json:"id"`
	Title                 string         `gorm:"size:255" json:"title"`
	EntryFee              int64          `gorm:"not null;default:0" json:"entryFee"`
	PrizeSelection        PrizeSelection `gorm:"size:16;not null" json:"prizeSelection"`
	TopWinnersCount       *int           `json:"topWinnersCount,omitempty"`
	PrizeRatioNumerator   *int           `json:"prizeRatioNumerator,omitempty"`
	PrizeRatioDenominator *int           `json:"prizeRatioDenominator,omitempty"`
	PrizeValue            int64          `gorm:"not null;default:0" json:"prizeValue"`
	StartTime             int64          `gorm:"not null" json:"startTime"`
	EndTime               int64          `gorm:"not null;index:idx_contest_due,priority:2" json:"endTime"`
	QuestionCount         int            `gorm:"not null;default:0" json:"questionCount"`
	Status                ContestStatus  `gorm:"size:16;not null;index:idx_contest_due,priority:1" json:"status"`

	Winners         datatypes.JSONSlice[Standing] `json:"winners,omitempty"`
	AllPlayTrackers datatypes.JSONSlice[Standing] `json:"allPlayTrackers,omitempty"`

	CreatedBy int64 `json:"createdBy,omitempty"`
	CreatedTs int64 `gorm:"not null" json:"createdTs"`
	UpdatedTs int64 `gorm:"not null;index" json:"updatedTs"`
}

// OpenAt reports whether the contest accepts play at ts.
func (c *Contest) OpenAt(ts int64) bool {
	return c.Status == ContestActive && c.StartTime <= ts && ts <= c.EndTime
}

// Standing is the frozen per-player outcome stored on an ended contest.
type Standing struct {
	TrackerID string `json:"trackerId"`
	UserID    int64  `json:"userId"`
	Score     int    `json:"score"`
	Rank      *int   `json:"rank,omitempty"`
	TimeTaken int64  `json:"timeTaken"`
	StartTs   *int64 `json:"startTs,omitempty"`
	FinishTs  *int64 `json:"finishTs,omitempty"`
	Prize     int64  `json:"prize,omitempty"`
}
