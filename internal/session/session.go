// Package session generates practice tests and drives a user through them.
package session

import (
	"errors"
	"maps"
	"math/rand/v2"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/examprep/internal/ledger"
	"github.com/pavelanni/examprep/internal/model"
)

var (
	// ErrEmptyCandidates is returned by Generate when no question matches the filters.
	ErrEmptyCandidates = errors.New("no questions match the selected filters")
	// ErrInvalidChoice is returned when a submitted option is not one of the question's options.
	ErrInvalidChoice = errors.New("option is not one of the question's choices")
	// ErrInvalidPosition is returned for a position outside the session.
	ErrInvalidPosition = errors.New("position out of range")
)

// Session is one generated test. Questions are copies of bank entries; their
// ID field refers back to the bank.
type Session struct {
	ID          string
	Questions   []model.Question
	Position    int
	Answers     map[int]string
	Submitted   bool
	StartedAt   time.Time
	SubmittedAt *time.Time
}

// Generate samples up to requested questions from candidates uniformly and
// without replacement. requested is clamped to [1, len(candidates)].
// candidates is not modified.
func Generate(rng *rand.Rand, candidates []model.Question, requested int, now time.Time) (*Session, error) {
	if len(candidates) == 0 {
		return nil, ErrEmptyCandidates
	}
	n := min(max(requested, 1), len(candidates))

	pool := make([]model.Question, len(candidates))
	copy(pool, candidates)
	// Partial Fisher-Yates: the first n slots end up a uniform sample.
	for i := 0; i < n; i++ {
		j := i + rng.IntN(len(pool)-i)
		pool[i], pool[j] = pool[j], pool[i]
	}

	return &Session{
		ID:        uuid.New().String(),
		Questions: pool[:n:n],
		Answers:   make(map[int]string),
		StartedAt: now,
	}, nil
}

// Clone returns a deep copy of s.
func (s *Session) Clone() *Session {
	c := *s
	c.Questions = slices.Clone(s.Questions)
	c.Answers = maps.Clone(s.Answers)
	if s.SubmittedAt != nil {
		at := *s.SubmittedAt
		c.SubmittedAt = &at
	}
	return &c
}

// Len returns the number of questions in the session.
func (s *Session) Len() int {
	return len(s.Questions)
}

// State returns the lifecycle state. A nil session is Empty.
func (s *Session) State() model.SessionState {
	switch {
	case s == nil || len(s.Questions) == 0:
		return model.StateEmpty
	case s.Submitted:
		return model.StateSubmitted
	default:
		return model.StateActive
	}
}

// Current returns the question at the current position.
func (s *Session) Current() (model.Question, bool) {
	if s.Position < 0 || s.Position >= len(s.Questions) {
		return model.Question{}, false
	}
	return s.Questions[s.Position], true
}

// Answer records option for the question at pos, replacing any earlier
// answer, and mirrors it into the ledger under the question's bank ID.
// Nothing is recorded when the position or option is invalid.
func (s *Session) Answer(pos int, option string, l *ledger.Ledger) error {
	if pos < 0 || pos >= len(s.Questions) {
		return ErrInvalidPosition
	}
	q := s.Questions[pos]
	if !q.HasOption(option) {
		return ErrInvalidChoice
	}
	s.Answers[pos] = option
	l.Record(q.ID, option)
	return nil
}

// Navigate moves one step in dir. Moving past either end is a no-op.
func (s *Session) Navigate(dir model.Direction) {
	switch dir {
	case model.DirPrevious:
		if s.Position > 0 {
			s.Position--
		}
	case model.DirNext:
		if s.Position < len(s.Questions)-1 {
			s.Position++
		}
	}
}

// Goto jumps to pos. Out-of-range positions are ignored.
func (s *Session) Goto(pos int) {
	if pos >= 0 && pos < len(s.Questions) {
		s.Position = pos
	}
}

// IsAnswered reports whether pos has a submitted answer.
func (s *Session) IsAnswered(pos int) bool {
	_, ok := s.Answers[pos]
	return ok
}

// Answered returns how many positions have an answer.
func (s *Session) Answered() int {
	return len(s.Answers)
}

// Grade counts positions whose answer is the correct option. Unanswered
// positions count as wrong. It has no side effects.
func (s *Session) Grade() model.Score {
	score := model.Score{Total: len(s.Questions)}
	for pos, q := range s.Questions {
		if opt, ok := s.Answers[pos]; ok && q.IsCorrect(opt) {
			score.Correct++
		}
	}
	return score
}

// Submit marks the session as submitted. Only the first call sets SubmittedAt.
func (s *Session) Submit(now time.Time) {
	if s.Submitted {
		return
	}
	s.Submitted = true
	s.SubmittedAt = &now
}

// Item is the feedback for one position.
type Item struct {
	Position    int            `json:"position"`
	Question    model.Question `json:"question"`
	Chosen      string         `json:"chosen,omitempty"`
	Answered    bool           `json:"answered"`
	Correct     bool           `json:"correct"`
	Explanation string         `json:"explanation,omitempty"`
}

// ItemAt returns the feedback for pos.
func (s *Session) ItemAt(pos int) (Item, bool) {
	if pos < 0 || pos >= len(s.Questions) {
		return Item{}, false
	}
	q := s.Questions[pos]
	chosen, answered := s.Answers[pos]
	return Item{
		Position:    pos,
		Question:    q,
		Chosen:      chosen,
		Answered:    answered,
		Correct:     answered && q.IsCorrect(chosen),
		Explanation: q.Explanation,
	}, true
}

// Review returns the feedback for every position in order.
func (s *Session) Review() []Item {
	items := make([]Item, 0, len(s.Questions))
	for pos := range s.Questions {
		it, _ := s.ItemAt(pos)
		items = append(items, it)
	}
	return items
}
