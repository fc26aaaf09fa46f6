package session

import "sort"

// Summary holds the data displayed once a batch is complete.
type Summary struct {
	BatchNumber int
	Items       int
	Correct     int
	Incorrect   int
	TimedOut    int
	Skipped     int
	Accuracy    float64

	// ByDifficulty is ordered by difficulty label.
	ByDifficulty []DifficultyResult

	Results []AnswerResult
}

// DifficultyResult tallies the answers at one difficulty.
type DifficultyResult struct {
	Difficulty string
	Attempted  int
	Correct    int
}

// BuildSummary creates a Summary from the session's current batch.
func BuildSummary(s *Session) *Summary {
	sum := &Summary{
		BatchNumber: s.BatchNumber,
		Items:       s.ItemsCompleted,
		Correct:     s.CorrectCount,
		Incorrect:   s.IncorrectCount,
		Accuracy:    s.Accuracy(),
		Results:     append([]AnswerResult(nil), s.Results...),
	}

	byDiff := map[string]*DifficultyResult{}
	for _, r := range s.Results {
		if r.TimedOut {
			sum.TimedOut++
		}
		if r.Skipped {
			sum.Skipped++
			continue
		}
		d := r.Difficulty
		if d == "" {
			d = "unknown"
		}
		dr, ok := byDiff[d]
		if !ok {
			dr = &DifficultyResult{Difficulty: d}
			byDiff[d] = dr
		}
		dr.Attempted++
		if r.Correct {
			dr.Correct++
		}
	}
	for _, dr := range byDiff {
		sum.ByDifficulty = append(sum.ByDifficulty, *dr)
	}
	sort.Slice(sum.ByDifficulty, func(i, j int) bool {
		return sum.ByDifficulty[i].Difficulty < sum.ByDifficulty[j].Difficulty
	})
	return sum
}
