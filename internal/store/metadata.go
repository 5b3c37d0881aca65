package store

import (
	"database/sql"
	"time"
)

const (
	metaBankPath     = "bank_path"
	metaBankLoadedAt = "bank_loaded_at"
)

// SetMetadata upserts a key-value pair in the exam_metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO exam_metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM exam_metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// BankInfo describes the question bank the server was last started with.
type BankInfo struct {
	Path     string
	Hash     string
	LoadedAt time.Time
}

// SetBankInfo records the bank in use. The hash is kept per path in
// imported_files; metadata only tracks which path was loaded last.
func (s *Store) SetBankInfo(info BankInfo) error {
	pairs := []struct{ k, v string }{
		{metaBankPath, info.Path},
		{metaBankLoadedAt, info.LoadedAt.UTC().Format(time.RFC3339)},
	}
	for _, p := range pairs {
		if err := s.SetMetadata(p.k, p.v); err != nil {
			return err
		}
	}
	return s.SetImportedFileHash(info.Path, info.Hash)
}

// GetBankInfo reads the recorded bank. Zero value if none was recorded.
func (s *Store) GetBankInfo() (BankInfo, error) {
	var info BankInfo
	var err error

	if info.Path, err = s.GetMetadata(metaBankPath); err != nil {
		return info, err
	}
	if info.Path != "" {
		if info.Hash, err = s.GetImportedFileHash(info.Path); err != nil {
			return info, err
		}
	}
	loadedAt, err := s.GetMetadata(metaBankLoadedAt)
	if err != nil {
		return info, err
	}
	if loadedAt != "" {
		info.LoadedAt, err = time.Parse(time.RFC3339, loadedAt)
		if err != nil {
			return info, err
		}
	}
	return info, nil
}
