// Package ranking orders the players of a closed contest and picks winners.
// Everything here is pure; persistence belongs to the finalize package.
package ranking

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"trailsbuddy.com/quiz-contest/internal/models"
)

// Entry is one engaged player as seen by the ranking step.
type Entry struct {
	TrackerID string
	UserID    int64
	Score     int
	StartTs   *int64
	FinishTs  *int64
	TimeTaken int64
	Rank      *int
}

// TimeTaken measures a play from its start to its finish. A play that never
// finished is measured to its last update; a play with neither counts as
// infinitely slow. A play that never started is measured from now.
func TimeTaken(t *models.PlayTracker, now int64) int64 {
	var end int64 = math.MaxInt64
	switch {
	case t.FinishTs != nil:
		end = *t.FinishTs
	case t.UpdatedTs > 0:
		end = t.UpdatedTs
	}
	if end == math.MaxInt64 {
		return math.MaxInt64
	}
	start := now
	if t.StartTs != nil {
		start = *t.StartTs
	}
	return end - start
}

// FromTrackers builds entries with their time taken filled in.
func FromTrackers(trackers []models.PlayTracker, now int64) []Entry {
	out := make([]Entry, 0, len(trackers))
	for i := range trackers {
		t := &trackers[i]
		out = append(out, Entry{
			TrackerID: t.ID,
			UserID:    t.UserID,
			Score:     t.Score,
			StartTs:   t.StartTs,
			FinishTs:  t.FinishTs,
			TimeTaken: TimeTaken(t, now),
		})
	}
	return out
}

func startOf(e *Entry) int64 {
	if e.StartTs == nil {
		return 0
	}
	return *e.StartTs
}

// Less orders by score descending, then time taken ascending, then start
// time ascending.
func Less(a, b *Entry) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	if a.TimeTaken != b.TimeTaken {
		return a.TimeTaken < b.TimeTaken
	}
	return startOf(a) < startOf(b)
}

// Sort orders entries in place. Equal entries keep their input order.
func Sort(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return Less(&entries[i], &entries[j])
	})
}

// AssignRanks sets rank = position+1 on sorted entries with a positive
// score. Zero-score entries stay unranked.
func AssignRanks(entries []Entry) {
	for i := range entries {
		if entries[i].Score > 0 {
			r := i + 1
			entries[i].Rank = &r
		} else {
			entries[i].Rank = nil
		}
	}
}

// WinnersCount sizes the prize pool. Ratio-based contests use
// round(numerator * totalPlayers / denominator), half away from zero; a
// missing or zero denominator counts as 1.
func WinnersCount(c *models.Contest, totalPlayers int) int {
	if c.PrizeSelection == models.PrizeTopWinners {
		if c.TopWinnersCount == nil {
			return 0
		}
		return *c.TopWinnersCount
	}

	num := 0
	if c.PrizeRatioNumerator != nil {
		num = *c.PrizeRatioNumerator
	}
	den := 1
	if c.PrizeRatioDenominator != nil && *c.PrizeRatioDenominator != 0 {
		den = *c.PrizeRatioDenominator
	}
	v := decimal.NewFromInt(int64(num)).
		Mul(decimal.NewFromInt(int64(totalPlayers))).
		Div(decimal.NewFromInt(int64(den))).
		Round(0)
	return int(v.IntPart())
}

// SelectWinners returns the ranked entries with rank < winnersCount. The
// boundary is strict: winnersCount=3 pays ranks 1 and 2.
func SelectWinners(entries []Entry, winnersCount int) []Entry {
	var winners []Entry
	for _, e := range entries {
		if e.Rank != nil && *e.Rank < winnersCount {
			winners = append(winners, e)
		}
	}
	return winners
}

// Standings converts entries to the snapshot stored on the contest.
func Standings(entries []Entry, prize int64, winners []Entry) []models.Standing {
	won := make(map[string]bool, len(winners))
	for _, w := range winners {
		won[w.TrackerID] = true
	}
	out := make([]models.Standing, 0, len(entries))
	for _, e := range entries {
		s := models.Standing{
			TrackerID: e.TrackerID,
			UserID:    e.UserID,
			Score:     e.Score,
			Rank:      e.Rank,
			TimeTaken: e.TimeTaken,
			StartTs:   e.StartTs,
			FinishTs:  e.FinishTs,
		}
		if won[e.TrackerID] {
			s.Prize = prize
		}
		out = append(out, s)
	}
	return out
}
