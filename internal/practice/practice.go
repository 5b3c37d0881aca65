// Package practice holds the mutable state of each user: the attempt ledger
// and the live test session.
package practice

import (
	"errors"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/pavelanni/examprep/internal/filter"
	"github.com/pavelanni/examprep/internal/ledger"
	"github.com/pavelanni/examprep/internal/model"
	"github.com/pavelanni/examprep/internal/session"
)

// ErrNoSession is returned by operations that need a live session.
var ErrNoSession = errors.New("no test in progress")

// State is one user's practice state. All methods are safe for concurrent use.
type State struct {
	mu      sync.Mutex
	bank    []model.Question
	ledger  *ledger.Ledger
	session *session.Session
	rng     *rand.Rand
	now     func() time.Time
}

// Option configures a State.
type Option func(*State)

// WithRand sets the constructor of the random source used for sampling. It is
// called once per State, so every registry state gets its own generator.
func WithRand(newRand func() *rand.Rand) Option {
	return func(s *State) { s.rng = newRand() }
}

// WithClock sets the clock used for session timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *State) { s.now = now }
}

// NewState creates an empty State over a read-only bank.
func NewState(bank []model.Question, opts ...Option) *State {
	s := &State{
		bank:   bank,
		ledger: ledger.New(),
		rng:    rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Counts returns the per-mode and per-topic numbers over the whole bank.
func (s *State) Counts() filter.Counts {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.Count(s.bank, s.ledger)
}

// Candidates returns the questions matching the given filters.
func (s *State) Candidates(modes model.ModeFlags, topics model.TopicSelection) []model.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.Candidates(s.bank, s.ledger, modes, topics)
}

// Generate replaces the live session with a new test drawn from the questions
// matching modes and topics and returns a copy of it. When nothing matches,
// ErrEmptyCandidates is returned and the previous session stays as it was.
func (s *State) Generate(modes model.ModeFlags, topics model.TopicSelection, requested int) (*session.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates := filter.Candidates(s.bank, s.ledger, modes, topics)
	sess, err := session.Generate(s.rng, candidates, requested, s.now())
	if err != nil {
		return nil, err
	}
	s.session = sess
	slog.Debug("generated test", "session_id", sess.ID, "candidates", len(candidates), "questions", sess.Len())
	return sess.Clone(), nil
}

// Reset drops the live session. The ledger is kept.
func (s *State) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = nil
}

// Snapshot runs fn with the live session while holding the state lock.
func (s *State) Snapshot(fn func(sess *session.Session) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	return fn(s.session)
}

// Answer records option for the question at pos of the live session.
func (s *State) Answer(pos int, option string) (session.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return session.Item{}, ErrNoSession
	}
	if err := s.session.Answer(pos, option, s.ledger); err != nil {
		return session.Item{}, err
	}
	item, _ := s.session.ItemAt(pos)
	return item, nil
}

// Navigate moves the live session one step in dir.
func (s *State) Navigate(dir model.Direction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	s.session.Navigate(dir)
	return nil
}

// Goto jumps the live session to pos.
func (s *State) Goto(pos int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ErrNoSession
	}
	s.session.Goto(pos)
	return nil
}

// Grade scores the live session without changing it.
func (s *State) Grade() (model.Score, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return model.Score{}, ErrNoSession
	}
	return s.session.Grade(), nil
}

// Submission is a submitted session as it was graded at submit time.
type Submission struct {
	Result model.TestResult
	Items  []model.ItemResult
	// Newly is false when the session had already been submitted.
	Newly bool
}

// SubmitTest marks the live session submitted and grades it. The returned
// Submission is taken under the same lock, so a test generated right after
// does not leak into it. Result.UserID is left for the caller.
func (s *State) SubmitTest() (Submission, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return Submission{}, ErrNoSession
	}
	newly := !s.session.Submitted
	s.session.Submit(s.now())

	sess := s.session
	sub := Submission{
		Result: model.TestResult{
			SessionID:   sess.ID,
			StartedAt:   sess.StartedAt,
			SubmittedAt: *sess.SubmittedAt,
			Score:       sess.Grade(),
		},
		Newly: newly,
	}
	for _, it := range sess.Review() {
		sub.Items = append(sub.Items, model.ItemResult{
			Position:      it.Position,
			QuestionID:    it.Question.ID,
			Text:          it.Question.Text,
			Topic:         it.Question.Topic,
			Chosen:        it.Chosen,
			CorrectOption: it.Question.CorrectOption(),
			Correct:       it.Correct,
		})
	}
	return sub, nil
}

// LastAnswer returns the latest option recorded in the ledger for question id.
func (s *State) LastAnswer(id int) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ledger.Get(id)
}

// Registry hands out one State per user.
type Registry struct {
	mu     sync.Mutex
	bank   []model.Question
	opts   []Option
	states map[int64]*State
}

// NewRegistry creates a Registry over a read-only bank. opts are applied to
// every State it creates.
func NewRegistry(bank []model.Question, opts ...Option) *Registry {
	return &Registry{
		bank:   bank,
		opts:   opts,
		states: make(map[int64]*State),
	}
}

// For returns the State of userID, creating it on first use.
func (r *Registry) For(userID int64) *State {
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.states[userID]
	if !ok {
		st = NewState(r.bank, r.opts...)
		r.states[userID] = st
	}
	return st
}

// Bank returns the questions shared by every State.
func (r *Registry) Bank() []model.Question {
	return r.bank
}
