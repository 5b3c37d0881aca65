// Package filter selects candidate questions by topic and past performance.
package filter

import (
	"github.com/pavelanni/examprep/internal/ledger"
	"github.com/pavelanni/examprep/internal/model"
)

// Candidates returns the questions whose topic is selected and whose ledger
// outcome is included by modes. Bank order is kept.
func Candidates(bank []model.Question, l *ledger.Ledger, modes model.ModeFlags, topics model.TopicSelection) []model.Question {
	var out []model.Question
	for _, q := range bank {
		if !topics[q.Topic] {
			continue
		}
		if !modes.Includes(l.Outcome(q)) {
			continue
		}
		out = append(out, q)
	}
	return out
}

// Counts holds the informational numbers shown next to each checkbox.
type Counts struct {
	Total   int                `json:"total"`
	ByMode  map[model.Mode]int `json:"by_mode"`
	ByTopic map[string]int     `json:"by_topic"`
}

// Count tallies the whole bank by ledger outcome and by topic. The result
// does not depend on any current selection.
func Count(bank []model.Question, l *ledger.Ledger) Counts {
	c := Counts{
		Total:   len(bank),
		ByMode:  make(map[model.Mode]int, len(model.Modes)),
		ByTopic: make(map[string]int),
	}
	for _, m := range model.Modes {
		c.ByMode[m] = 0
	}
	for _, q := range bank {
		c.ByMode[l.Outcome(q)]++
		c.ByTopic[q.Topic]++
	}
	return c
}
