// Package seed loads demo contests and their questions from a JSON file.
package seed

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"trailsbuddy.com/quiz-contest/internal/clock"
	"trailsbuddy.com/quiz-contest/internal/models"
)

// ==== JSON input structures ====

type OptionInput struct {
	ID        int    `json:"optionId"`
	Text      string `json:"optionText"`
	IsCorrect bool   `json:"isCorrect"`
}

type QuestionInput struct {
	QuestionNo   int           `json:"questionNo"`
	QuestionText string        `json:"questionText"`
	Options      []OptionInput `json:"options"`
}

// ContestInput places a contest either at absolute unix-millisecond times or
// relative to the load time (StartsInMinutes, DurationMinutes).
type ContestInput struct {
	ID                    string                `json:"id"`
	Title                 string                `json:"title"`
	EntryFee              int64                 `json:"entryFee"`
	PrizeSelection        models.PrizeSelection `json:"prizeSelection"`
	TopWinnersCount       *int                  `json:"topWinnersCount"`
	PrizeRatioNumerator   *int                  `json:"prizeRatioNumerator"`
	PrizeRatioDenominator *int                  `json:"prizeRatioDenominator"`
	PrizeValue            int64                 `json:"prizeValue"`
	StartTime             int64                 `json:"startTime"`
	EndTime               int64                 `json:"endTime"`
	StartsInMinutes       int                   `json:"startsInMinutes"`
	DurationMinutes       int                   `json:"durationMinutes"`
	Status                models.ContestStatus  `json:"status"` // default ACTIVE
	Questions             []QuestionInput       `json:"questions"`
}

// ==== Seeder ====

// FromJSON reads path and inserts every contest with its questions in one
// transaction. It returns how many contests were created.
func FromJSON(db *gorm.DB, clk clock.Clock, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	// Accept either: [ ... ] or { "contests": [ ... ] }
	var wrapper struct {
		Contests []ContestInput `json:"contests"`
	}
	var arr []ContestInput
	if err := json.Unmarshal(raw, &wrapper); err == nil && len(wrapper.Contests) > 0 {
		arr = wrapper.Contests
	} else if err := json.Unmarshal(raw, &arr); err != nil {
		return 0, fmt.Errorf("json parse: %w", err)
	}

	for i := range arr {
		if err := check(&arr[i]); err != nil {
			return 0, fmt.Errorf("contest %d (%q): %w", i, arr[i].Title, err)
		}
	}

	now := clk.Now()
	err = db.Transaction(func(tx *gorm.DB) error {
		for _, in := range arr {
			c := build(in, now)
			if err := tx.Create(c).Error; err != nil {
				return err
			}
			for _, qin := range in.Questions {
				q := &models.Question{
					ContestID:    c.ID,
					QuestionNo:   qin.QuestionNo,
					QuestionText: strings.TrimSpace(qin.QuestionText),
					Options:      make(datatypes.JSONSlice[models.Option], 0, len(qin.Options)),
					IsActive:     true,
					CreatedTs:    c.CreatedTs,
					UpdatedTs:    c.CreatedTs,
				}
				for _, o := range qin.Options {
					q.Options = append(q.Options, models.Option{OptionID: o.ID, OptionText: o.Text, IsCorrect: o.IsCorrect})
				}
				if err := tx.Create(q).Error; err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(arr), nil
}

// check rejects inputs that would break play: duplicate question numbers or
// option ids, and questions without exactly one correct option.
func check(in *ContestInput) error {
	if in.Title == "" {
		return fmt.Errorf("title is required")
	}
	if in.PrizeSelection == "" {
		in.PrizeSelection = models.PrizeTopWinners
	}
	if in.PrizeSelection == models.PrizeTopWinners && in.TopWinnersCount == nil {
		return fmt.Errorf("topWinnersCount is required")
	}
	if in.StartTime == 0 && in.DurationMinutes <= 0 {
		return fmt.Errorf("either startTime/endTime or durationMinutes is required")
	}
	if in.StartTime != 0 && in.EndTime <= in.StartTime {
		return fmt.Errorf("endTime must be greater than startTime")
	}

	seen := map[int]bool{}
	for _, q := range in.Questions {
		if seen[q.QuestionNo] {
			return fmt.Errorf("duplicate questionNo %d", q.QuestionNo)
		}
		seen[q.QuestionNo] = true

		ids := map[int]bool{}
		correct := 0
		for _, o := range q.Options {
			if ids[o.ID] {
				return fmt.Errorf("question %d: duplicate optionId %d", q.QuestionNo, o.ID)
			}
			ids[o.ID] = true
			if o.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("question %d: options must have one correct answer", q.QuestionNo)
		}
	}
	return nil
}

func build(in ContestInput, now time.Time) *models.Contest {
	start, end := in.StartTime, in.EndTime
	if start == 0 {
		s := now.Add(time.Duration(in.StartsInMinutes) * time.Minute)
		start = s.UnixMilli()
		end = s.Add(time.Duration(in.DurationMinutes) * time.Minute).UnixMilli()
	}
	id := in.ID
	if id == "" {
		id = uuid.New().String()
	}
	status := in.Status
	if status == "" {
		status = models.ContestActive
	}
	ts := now.UnixMilli()
	return &models.Contest{
		ID:                    id,
		Title:                 in.Title,
		EntryFee:              in.EntryFee,
		PrizeSelection:        in.PrizeSelection,
		TopWinnersCount:       in.TopWinnersCount,
		PrizeRatioNumerator:   in.PrizeRatioNumerator,
		PrizeRatioDenominator: in.PrizeRatioDenominator,
		PrizeValue:            in.PrizeValue,
		StartTime:             start,
		EndTime:               end,
		QuestionCount:         len(in.Questions),
		Status:                status,
		Winners:               datatypes.JSONSlice[models.Standing]{},
		AllPlayTrackers:       datatypes.JSONSlice[models.Standing]{},
		CreatedTs:             ts,
		UpdatedTs:             ts,
	}
}
