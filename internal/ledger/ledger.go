// Package ledger records the last option a user submitted for each question.
package ledger

import "github.com/pavelanni/examprep/internal/model"

// Ledger maps question IDs to the option string last submitted for them,
// across every session of one user. It is kept in memory only.
type Ledger struct {
	entries map[int]string
}

// New creates an empty Ledger.
func New() *Ledger {
	return &Ledger{entries: make(map[int]string)}
}

// Record stores option as the latest submission for question id,
// replacing any earlier one.
func (l *Ledger) Record(id int, option string) {
	l.entries[id] = option
}

// Get returns the latest submission for question id.
func (l *Ledger) Get(id int) (string, bool) {
	opt, ok := l.entries[id]
	return opt, ok
}

// Has reports whether question id was ever answered.
func (l *Ledger) Has(id int) bool {
	_, ok := l.entries[id]
	return ok
}

// Len returns the number of questions answered at least once.
func (l *Ledger) Len() int {
	return len(l.entries)
}

// Outcome classifies q by the latest submission recorded for it.
func (l *Ledger) Outcome(q model.Question) model.Mode {
	opt, ok := l.entries[q.ID]
	switch {
	case !ok:
		return model.ModeUnused
	case q.IsCorrect(opt):
		return model.ModeCorrect
	default:
		return model.ModeIncorrect
	}
}
