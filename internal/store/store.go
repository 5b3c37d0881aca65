package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/pavelanni/examprep/internal/model"

	_ "modernc.org/sqlite"
)

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'student',
		active INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		user_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS exam_metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS imported_files (
		path TEXT PRIMARY KEY,
		hash TEXT NOT NULL,
		imported_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS test_results (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL UNIQUE,
		user_id INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		submitted_at DATETIME NOT NULL,
		correct INTEGER NOT NULL,
		total INTEGER NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id)
	);

	CREATE TABLE IF NOT EXISTS result_items (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		result_id INTEGER NOT NULL,
		position INTEGER NOT NULL,
		question_id INTEGER NOT NULL,
		text TEXT NOT NULL,
		topic TEXT NOT NULL DEFAULT '',
		chosen TEXT NOT NULL DEFAULT '',
		correct_option TEXT NOT NULL,
		correct INTEGER NOT NULL DEFAULT 0,
		FOREIGN KEY (result_id) REFERENCES test_results(id)
	);

	CREATE INDEX IF NOT EXISTS idx_test_results_user ON test_results(user_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// SaveResult archives a submitted test with its per-question items.
func (s *Store) SaveResult(r model.TestResult, items []model.ItemResult) (int64, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT INTO test_results (session_id, user_id, started_at, submitted_at, correct, total)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.SessionID, r.UserID, r.StartedAt, r.SubmittedAt, r.Score.Correct, r.Score.Total,
	)
	if err != nil {
		return 0, err
	}
	resultID, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, it := range items {
		_, err := tx.Exec(
			`INSERT INTO result_items (result_id, position, question_id, text, topic, chosen, correct_option, correct)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			resultID, it.Position, it.QuestionID, it.Text, it.Topic, it.Chosen, it.CorrectOption, it.Correct,
		)
		if err != nil {
			return 0, err
		}
	}

	return resultID, tx.Commit()
}

const resultColumns = `id, session_id, user_id, started_at, submitted_at, correct, total`

func scanResult(sc interface{ Scan(...any) error }) (model.TestResult, error) {
	var r model.TestResult
	err := sc.Scan(&r.ID, &r.SessionID, &r.UserID, &r.StartedAt, &r.SubmittedAt, &r.Score.Correct, &r.Score.Total)
	return r, err
}

// GetResult returns an archived test by ID, or nil if it does not exist.
func (s *Store) GetResult(id int64) (*model.TestResult, error) {
	r, err := scanResult(s.db.QueryRow(`SELECT `+resultColumns+` FROM test_results WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// ListResults returns the archived tests of a user, newest first.
func (s *Store) ListResults(userID int64) ([]model.TestResult, error) {
	return s.queryResults(`SELECT `+resultColumns+` FROM test_results WHERE user_id = ? ORDER BY id DESC`, userID)
}

// ListAllResults returns every archived test in submission order.
func (s *Store) ListAllResults() ([]model.TestResult, error) {
	return s.queryResults(`SELECT ` + resultColumns + ` FROM test_results ORDER BY id`)
}

func (s *Store) queryResults(query string, args ...any) ([]model.TestResult, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var results []model.TestResult
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// GetResultItems returns the per-question items of an archived test in position order.
func (s *Store) GetResultItems(resultID int64) ([]model.ItemResult, error) {
	rows, err := s.db.Query(
		`SELECT position, question_id, text, topic, chosen, correct_option, correct
		 FROM result_items WHERE result_id = ? ORDER BY position`, resultID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []model.ItemResult
	for rows.Next() {
		var it model.ItemResult
		if err := rows.Scan(&it.Position, &it.QuestionID, &it.Text, &it.Topic, &it.Chosen, &it.CorrectOption, &it.Correct); err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// ResultCount returns the number of archived tests.
func (s *Store) ResultCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM test_results`).Scan(&count)
	return count, err
}

// GetImportedFileHash returns the hash recorded for path, or "" if none.
func (s *Store) GetImportedFileHash(path string) (string, error) {
	var hash string
	err := s.db.QueryRow(`SELECT hash FROM imported_files WHERE path = ?`, path).Scan(&hash)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return hash, err
}

// SetImportedFileHash records the hash of the file loaded from path.
func (s *Store) SetImportedFileHash(path, hash string) error {
	_, err := s.db.Exec(
		`INSERT INTO imported_files (path, hash, imported_at) VALUES (?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET hash = ?, imported_at = ?`,
		path, hash, time.Now(), hash, time.Now(),
	)
	return err
}
