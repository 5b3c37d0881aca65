package model

import "time"

// ResultsExport is the top-level JSON structure for result export.
type ResultsExport struct {
	BankPath    string          `json:"bank_path"`
	BankHash    string          `json:"bank_hash"`
	ExportedAt  time.Time       `json:"exported_at"`
	NumSessions int             `json:"num_sessions"`
	Results     []StudentResult `json:"results"`
}

// StudentResult holds one archived test for export.
type StudentResult struct {
	SessionID     string       `json:"session_id"`
	Username      string       `json:"username"`
	DisplayName   string       `json:"display_name"`
	SessionNumber int          `json:"session_number"`
	StartedAt     time.Time    `json:"started_at"`
	SubmittedAt   time.Time    `json:"submitted_at"`
	Score         Score        `json:"score"`
	Items         []ItemResult `json:"items"`
}

// ItemResult holds per-question data of an archived test.
type ItemResult struct {
	Position      int    `json:"position"`
	QuestionID    int    `json:"question_id"`
	Text          string `json:"text"`
	Topic         string `json:"topic"`
	Chosen        string `json:"chosen"`
	CorrectOption string `json:"correct_option"`
	Correct       bool   `json:"correct"`
}

// TestResult is the archived summary of one submitted test.
type TestResult struct {
	ID          int64     `json:"id"`
	SessionID   string    `json:"session_id"`
	UserID      int64     `json:"user_id"`
	StartedAt   time.Time `json:"started_at"`
	SubmittedAt time.Time `json:"submitted_at"`
	Score       Score     `json:"score"`
}
