package models

import "gorm.io/datatypes"

// --- Questions ---

type Question struct {
	ID           uint                        `gorm:"primaryKey" json:"id"`
	ContestID    string                      `gorm:"size:36;not null;uniqueIndex:idx_question_contest_no,priority:1" json:"contestId"`
	QuestionNo   int                         `gorm:"not null;uniqueIndex:idx_question_contest_no,priority:2" json:"questionNo"`
	QuestionText string                      `gorm:"not null" json:"questionText"`
	Options      datatypes.JSONSlice[Option] `json:"options"`
	IsActive     bool                        `gorm:"not null;default:true" json:"isActive"`
	CreatedBy    int64                       `json:"createdBy,omitempty"`
	CreatedTs    int64                       `gorm:"not null" json:"createdTs"`
	UpdatedTs    int64                       `gorm:"not null" json:"updatedTs"`
}

type Option struct {
	OptionID   int    `json:"optionId"`
	OptionText string `json:"optionText"`
	IsCorrect  bool   `json:"isCorrect"`
}

// CorrectOptionID returns the id of the option flagged correct.
func (q *Question) CorrectOptionID() (int, bool) {
	for _, o := range q.Options {
		if o.IsCorrect {
			return o.OptionID, true
		}
	}
	return 0, false
}

// Snapshot freezes the question as answered with selected.
func (q *Question) Snapshot(selected int) Answer {
	opts := make([]AnsweredOption, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, AnsweredOption{OptionID: o.OptionID, OptionText: o.OptionText})
	}
	return Answer{
		QuestionNo:       q.QuestionNo,
		QuestionText:     q.QuestionText,
		Options:          opts,
		SelectedOptionID: selected,
	}
}

// QuestionDTO is what players see: no correctness flags.
type QuestionDTO struct {
	ContestID    string      `json:"contestId"`
	QuestionNo   int         `json:"questionNo"`
	QuestionText string      `json:"questionText"`
	Options      []OptionDTO `json:"options"`
}

type OptionDTO struct {
	OptionID   int    `json:"optionId"`
	OptionText string `json:"optionText"`
}

func (q *Question) DTO() *QuestionDTO {
	if q == nil {
		return nil
	}
	opts := make([]OptionDTO, 0, len(q.Options))
	for _, o := range q.Options {
		opts = append(opts, OptionDTO{OptionID: o.OptionID, OptionText: o.OptionText})
	}
	return &QuestionDTO{
		ContestID:    q.ContestID,
		QuestionNo:   q.QuestionNo,
		QuestionText: q.QuestionText,
		Options:      opts,
	}
}
