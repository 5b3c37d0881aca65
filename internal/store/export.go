package store

import (
	"fmt"

	"github.com/pavelanni/examprep/internal/model"
)

// ExportResults builds export-ready results from every archived test.
func (s *Store) ExportResults() ([]model.StudentResult, error) {
	results, err := s.ListAllResults()
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}

	// Track result count per user for session_number.
	perUser := make(map[int64]int)
	users := make(map[int64]*model.User)

	var out []model.StudentResult
	for _, r := range results {
		perUser[r.UserID]++

		user, ok := users[r.UserID]
		if !ok {
			user, err = s.GetUserByID(r.UserID)
			if err != nil {
				return nil, fmt.Errorf("get user %d: %w", r.UserID, err)
			}
			users[r.UserID] = user
		}

		items, err := s.GetResultItems(r.ID)
		if err != nil {
			return nil, fmt.Errorf("get items of result %d: %w", r.ID, err)
		}

		var username, displayName string
		if user != nil {
			username = user.Username
			displayName = user.DisplayName
		}

		out = append(out, model.StudentResult{
			SessionID:     r.SessionID,
			Username:      username,
			DisplayName:   displayName,
			SessionNumber: perUser[r.UserID],
			StartedAt:     r.StartedAt,
			SubmittedAt:   r.SubmittedAt,
			Score:         r.Score,
			Items:         items,
		})
	}

	return out, nil
}
