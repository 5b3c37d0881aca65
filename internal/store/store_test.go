package store

import (
	"database/sql"
	"testing"
	"time"

	"github.com/pavelanni/examprep/internal/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("newTestStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func insertTestUser(t *testing.T, s *Store, username string) int64 {
	t.Helper()
	id, err := s.CreateUser(model.User{
		Username:     username,
		DisplayName:  "User " + username,
		PasswordHash: "hash",
		Role:         model.UserRoleStudent,
		Active:       true,
	})
	if err != nil {
		t.Fatalf("insertTestUser: %v", err)
	}
	return id
}

func saveTestResult(t *testing.T, s *Store, userID int64, sessionID string, correct, total int) int64 {
	t.Helper()
	started := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	var items []model.ItemResult
	for i := 0; i < total; i++ {
		items = append(items, model.ItemResult{
			Position:      i,
			QuestionID:    10 + i,
			Text:          "Q",
			Topic:         "Ethics",
			Chosen:        "a",
			CorrectOption: "a",
			Correct:       i < correct,
		})
	}
	id, err := s.SaveResult(model.TestResult{
		SessionID:   sessionID,
		UserID:      userID,
		StartedAt:   started,
		SubmittedAt: started.Add(10 * time.Minute),
		Score:       model.Score{Correct: correct, Total: total},
	}, items)
	if err != nil {
		t.Fatalf("saveTestResult: %v", err)
	}
	return id
}

func TestUsers(t *testing.T) {
	s := newTestStore(t)

	count, err := s.UserCount()
	if err != nil {
		t.Fatalf("UserCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected 0 users, got %d", count)
	}

	id := insertTestUser(t, s, "alice")

	u, err := s.GetUserByUsername("alice")
	if err != nil {
		t.Fatalf("GetUserByUsername: %v", err)
	}
	if u == nil || u.ID != id {
		t.Fatalf("expected user %d, got %+v", id, u)
	}
	if !u.Active {
		t.Error("expected active user")
	}
	if u.Role != model.UserRoleStudent {
		t.Errorf("expected role student, got %q", u.Role)
	}

	missing, err := s.GetUserByUsername("bob")
	if err != nil {
		t.Fatalf("GetUserByUsername missing: %v", err)
	}
	if missing != nil {
		t.Errorf("expected nil for missing user, got %+v", missing)
	}

	// Duplicate usernames are rejected.
	if _, err := s.CreateUser(model.User{Username: "alice", PasswordHash: "x", Role: model.UserRoleStudent}); err == nil {
		t.Error("expected error for duplicate username")
	}

	insertTestUser(t, s, "bob")
	users, err := s.ListUsers()
	if err != nil {
		t.Fatalf("ListUsers: %v", err)
	}
	if len(users) != 2 || users[0].Username != "alice" || users[1].Username != "bob" {
		t.Errorf("unexpected users: %+v", users)
	}
}

func TestToggleUserActiveRevokesSessions(t *testing.T) {
	s := newTestStore(t)
	id := insertTestUser(t, s, "alice")

	token, err := s.CreateAuthSession(id, time.Hour)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive: %v", err)
	}
	u, _ := s.GetUserByID(id)
	if u.Active {
		t.Error("expected user to be inactive")
	}
	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess != nil {
		t.Error("expected session to be revoked")
	}

	if err := s.ToggleUserActive(id); err != nil {
		t.Fatalf("ToggleUserActive again: %v", err)
	}
	u, _ = s.GetUserByID(id)
	if !u.Active {
		t.Error("expected user to be active again")
	}

	if err := s.ToggleUserActive(9999); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows for missing user, got %v", err)
	}
}

func TestUpdatePassword(t *testing.T) {
	s := newTestStore(t)
	id := insertTestUser(t, s, "alice")

	if err := s.UpdatePassword(id, "newhash"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	u, _ := s.GetUserByID(id)
	if u.PasswordHash != "newhash" {
		t.Errorf("expected updated hash, got %q", u.PasswordHash)
	}
	if err := s.UpdatePassword(9999, "x"); err != sql.ErrNoRows {
		t.Errorf("expected ErrNoRows, got %v", err)
	}
}

func TestAuthSessions(t *testing.T) {
	s := newTestStore(t)
	id := insertTestUser(t, s, "alice")

	token, err := s.CreateAuthSession(id, time.Hour)
	if err != nil {
		t.Fatalf("CreateAuthSession: %v", err)
	}
	if len(token) != 64 {
		t.Errorf("expected 64-char token, got %d", len(token))
	}

	sess, err := s.GetAuthSession(token)
	if err != nil {
		t.Fatalf("GetAuthSession: %v", err)
	}
	if sess == nil || sess.UserID != id {
		t.Fatalf("expected session for user %d, got %+v", id, sess)
	}

	expired, err := s.CreateAuthSession(id, -time.Minute)
	if err != nil {
		t.Fatalf("CreateAuthSession expired: %v", err)
	}
	n, err := s.CleanupExpiredSessions()
	if err != nil {
		t.Fatalf("CleanupExpiredSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 expired session removed, got %d", n)
	}
	if sess, _ := s.GetAuthSession(expired); sess != nil {
		t.Error("expected expired session to be gone")
	}

	if err := s.DeleteAuthSession(token); err != nil {
		t.Fatalf("DeleteAuthSession: %v", err)
	}
	if sess, _ := s.GetAuthSession(token); sess != nil {
		t.Error("expected deleted session to be gone")
	}
}

func TestResults(t *testing.T) {
	s := newTestStore(t)
	alice := insertTestUser(t, s, "alice")
	bob := insertTestUser(t, s, "bob")

	first := saveTestResult(t, s, alice, "s-1", 2, 3)
	saveTestResult(t, s, bob, "s-2", 1, 1)
	second := saveTestResult(t, s, alice, "s-3", 0, 2)

	r, err := s.GetResult(first)
	if err != nil {
		t.Fatalf("GetResult: %v", err)
	}
	if r == nil {
		t.Fatal("expected result")
	}
	if r.SessionID != "s-1" || r.Score != (model.Score{Correct: 2, Total: 3}) {
		t.Errorf("unexpected result: %+v", r)
	}
	if !r.SubmittedAt.After(r.StartedAt) {
		t.Errorf("expected submitted_at after started_at: %v %v", r.SubmittedAt, r.StartedAt)
	}

	missing, err := s.GetResult(9999)
	if err != nil {
		t.Fatalf("GetResult missing: %v", err)
	}
	if missing != nil {
		t.Error("expected nil for missing result")
	}

	// ListResults returns newest first and only the user's own results.
	list, err := s.ListResults(alice)
	if err != nil {
		t.Fatalf("ListResults: %v", err)
	}
	if len(list) != 2 || list[0].ID != second || list[1].ID != first {
		t.Errorf("unexpected results for alice: %+v", list)
	}

	items, err := s.GetResultItems(first)
	if err != nil {
		t.Fatalf("GetResultItems: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}
	if !items[0].Correct || !items[1].Correct || items[2].Correct {
		t.Errorf("unexpected correctness: %+v", items)
	}
	if items[2].Position != 2 || items[2].QuestionID != 12 {
		t.Errorf("unexpected item: %+v", items[2])
	}

	count, err := s.ResultCount()
	if err != nil {
		t.Fatalf("ResultCount: %v", err)
	}
	if count != 3 {
		t.Errorf("expected 3 results, got %d", count)
	}

	// Session IDs are unique.
	if _, err := s.SaveResult(model.TestResult{SessionID: "s-1", UserID: alice}, nil); err == nil {
		t.Error("expected error for duplicate session id")
	}
}

func TestExportResults(t *testing.T) {
	s := newTestStore(t)
	alice := insertTestUser(t, s, "alice")
	bob := insertTestUser(t, s, "bob")
	saveTestResult(t, s, alice, "s-1", 1, 2)
	saveTestResult(t, s, bob, "s-2", 1, 1)
	saveTestResult(t, s, alice, "s-3", 2, 2)

	out, err := s.ExportResults()
	if err != nil {
		t.Fatalf("ExportResults: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 exported results, got %d", len(out))
	}

	tests := []struct {
		sessionID string
		username  string
		number    int
		items     int
	}{
		{"s-1", "alice", 1, 2},
		{"s-2", "bob", 1, 1},
		{"s-3", "alice", 2, 2},
	}
	for i, tt := range tests {
		t.Run(tt.sessionID, func(t *testing.T) {
			got := out[i]
			if got.SessionID != tt.sessionID {
				t.Errorf("session id = %q, want %q", got.SessionID, tt.sessionID)
			}
			if got.Username != tt.username {
				t.Errorf("username = %q, want %q", got.Username, tt.username)
			}
			if got.SessionNumber != tt.number {
				t.Errorf("session number = %d, want %d", got.SessionNumber, tt.number)
			}
			if len(got.Items) != tt.items {
				t.Errorf("items = %d, want %d", len(got.Items), tt.items)
			}
		})
	}
}

func TestMetadata(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetMetadata("missing")
	if err != nil {
		t.Fatalf("GetMetadata: %v", err)
	}
	if v != "" {
		t.Errorf("expected empty value, got %q", v)
	}

	if err := s.SetMetadata("k", "v1"); err != nil {
		t.Fatalf("SetMetadata: %v", err)
	}
	if err := s.SetMetadata("k", "v2"); err != nil {
		t.Fatalf("SetMetadata update: %v", err)
	}
	v, _ = s.GetMetadata("k")
	if v != "v2" {
		t.Errorf("expected v2, got %q", v)
	}
}

func TestBankInfo(t *testing.T) {
	s := newTestStore(t)

	info, err := s.GetBankInfo()
	if err != nil {
		t.Fatalf("GetBankInfo: %v", err)
	}
	if info != (BankInfo{}) {
		t.Errorf("expected zero BankInfo, got %+v", info)
	}

	loaded := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	if err := s.SetBankInfo(BankInfo{Path: "questions.csv", Hash: "abc", LoadedAt: loaded}); err != nil {
		t.Fatalf("SetBankInfo: %v", err)
	}
	info, err = s.GetBankInfo()
	if err != nil {
		t.Fatalf("GetBankInfo: %v", err)
	}
	if info.Path != "questions.csv" || info.Hash != "abc" || !info.LoadedAt.Equal(loaded) {
		t.Errorf("unexpected bank info: %+v", info)
	}

	hash, err := s.GetImportedFileHash("questions.csv")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "abc" {
		t.Errorf("expected 'abc', got %q", hash)
	}

	// The bank hash has a single home in imported_files.
	if err := s.SetImportedFileHash("questions.csv", "def"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	info, err = s.GetBankInfo()
	if err != nil {
		t.Fatalf("GetBankInfo: %v", err)
	}
	if info.Hash != "def" {
		t.Errorf("expected hash 'def', got %q", info.Hash)
	}
}

func TestImportedFileHash(t *testing.T) {
	s := newTestStore(t)

	// Missing file returns empty string.
	hash, err := s.GetImportedFileHash("/some/path.csv")
	if err != nil {
		t.Fatalf("GetImportedFileHash: %v", err)
	}
	if hash != "" {
		t.Errorf("expected empty hash, got %q", hash)
	}

	if err := s.SetImportedFileHash("/some/path.csv", "abc123"); err != nil {
		t.Fatalf("SetImportedFileHash: %v", err)
	}
	if err := s.SetImportedFileHash("/some/path.csv", "def456"); err != nil {
		t.Fatalf("SetImportedFileHash update: %v", err)
	}
	hash, _ = s.GetImportedFileHash("/some/path.csv")
	if hash != "def456" {
		t.Errorf("expected 'def456', got %q", hash)
	}
}
