package model

import (
	"context"
	"time"
)

// UserRole represents a user's access level.
type UserRole string

const (
	// UserRoleStudent is a regular practising user.
	UserRoleStudent UserRole = "student"
	// UserRoleAdmin can manage users.
	UserRoleAdmin UserRole = "admin"
)

// User represents a system user.
type User struct {
	ID           int64
	Username     string
	DisplayName  string
	PasswordHash string
	Role         UserRole
	Active       bool
	CreatedAt    time.Time
}

// AuthSession represents an authentication session.
type AuthSession struct {
	ID        string
	UserID    int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

type userCtxKey struct{}

// ContextWithUser stores a user in the request context.
func ContextWithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userCtxKey{}, u)
}

// UserFromContext retrieves the authenticated user from context, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(userCtxKey{}).(*User)
	return u
}

type basePathCtxKey struct{}

// ContextWithBasePath stores the base path prefix in context.
func ContextWithBasePath(ctx context.Context, basePath string) context.Context {
	return context.WithValue(ctx, basePathCtxKey{}, basePath)
}

// BasePathFromContext retrieves the base path from context (empty string if not set).
func BasePathFromContext(ctx context.Context) string {
	bp, _ := ctx.Value(basePathCtxKey{}).(string)
	return bp
}

type csrfCtxKey struct{}

// ContextWithCSRFToken stores the CSRF token in context.
func ContextWithCSRFToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, csrfCtxKey{}, token)
}

// CSRFTokenFromContext retrieves the CSRF token from context.
func CSRFTokenFromContext(ctx context.Context) string {
	t, _ := ctx.Value(csrfCtxKey{}).(string)
	return t
}

// NumOptions is the number of answer options every question carries.
const NumOptions = 4

// Question is one multiple-choice item of the bank. It is never modified
// after the bank is loaded.
type Question struct {
	ID           int                `json:"id"`
	Text         string             `json:"text"`
	Options      [NumOptions]string `json:"options"`
	CorrectIndex int                `json:"correct_index"`
	Explanation  string             `json:"explanation,omitempty"`
	Topic        string             `json:"topic"`
}

// CorrectOption returns the text of the correct option.
func (q Question) CorrectOption() string {
	return q.Options[q.CorrectIndex]
}

// HasOption reports whether s is one of the question's options.
func (q Question) HasOption(s string) bool {
	for _, o := range q.Options {
		if o == s {
			return true
		}
	}
	return false
}

// IsCorrect reports whether option is the correct answer.
func (q Question) IsCorrect(option string) bool {
	return option == q.CorrectOption()
}

// AnswerLetter returns the letter (A-D) of the correct option.
func (q Question) AnswerLetter() string {
	return string(rune('A' + q.CorrectIndex))
}

// Mode is a performance-history category of a question.
type Mode string

const (
	// ModeUnused matches questions the user has never answered.
	ModeUnused Mode = "unused"
	// ModeCorrect matches questions whose last answer was correct.
	ModeCorrect Mode = "correct"
	// ModeIncorrect matches questions whose last answer was wrong.
	ModeIncorrect Mode = "incorrect"
)

// Modes lists every mode in display order.
var Modes = []Mode{ModeUnused, ModeIncorrect, ModeCorrect}

// ModeFlags selects which performance categories are eligible for a test.
type ModeFlags struct {
	IncludeUnused    bool `json:"include_unused"`
	IncludeIncorrect bool `json:"include_incorrect"`
	IncludeCorrect   bool `json:"include_correct"`
}

// AllModes returns flags with every mode included.
func AllModes() ModeFlags {
	return ModeFlags{IncludeUnused: true, IncludeIncorrect: true, IncludeCorrect: true}
}

// Includes reports whether the flag for m is set.
func (f ModeFlags) Includes(m Mode) bool {
	switch m {
	case ModeUnused:
		return f.IncludeUnused
	case ModeCorrect:
		return f.IncludeCorrect
	case ModeIncorrect:
		return f.IncludeIncorrect
	}
	return false
}

// Set turns the flag for m on or off. Unknown modes are ignored.
func (f *ModeFlags) Set(m Mode, on bool) {
	switch m {
	case ModeUnused:
		f.IncludeUnused = on
	case ModeCorrect:
		f.IncludeCorrect = on
	case ModeIncorrect:
		f.IncludeIncorrect = on
	}
}

// TopicSelection maps topic name to inclusion. Absent topics are excluded.
type TopicSelection map[string]bool

// SelectAll returns a selection with every given topic included.
func SelectAll(topics []string) TopicSelection {
	sel := make(TopicSelection, len(topics))
	for _, t := range topics {
		sel[t] = true
	}
	return sel
}

// Direction is a navigation request within a session.
type Direction string

const (
	// DirPrevious moves one question back.
	DirPrevious Direction = "previous"
	// DirNext moves one question forward.
	DirNext Direction = "next"
)

// SessionState represents the lifecycle state of a practice session.
type SessionState string

const (
	// StateEmpty means there is no live test.
	StateEmpty SessionState = "empty"
	// StateActive is a generated test that has not been submitted.
	StateActive SessionState = "active"
	// StateSubmitted is a test the user has submitted for grading.
	StateSubmitted SessionState = "submitted"
)

// Score is the result of grading a session.
type Score struct {
	Correct int `json:"correct"`
	Total   int `json:"total"`
}

// Percent returns the score as a percentage, 0 for an empty session.
func (s Score) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Correct) / float64(s.Total) * 100
}

// AppConfig holds runtime parameters set via CLI flags.
type AppConfig struct {
	DefaultQuestions int      // pre-filled value of the question count input
	MaxQuestions     int      // upper bound of the question count input
	BasePath         string   // URL prefix for sub-path deployments (e.g. "/ru")
	SecureCookies    bool     // Set Secure flag on cookies (disable for local dev)
	CORSOrigins      []string // allowed origins for the JSON API
}
