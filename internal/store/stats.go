package store

import (
	"context"
	"fmt"

	"github.com/stemdeck/api/internal/model"
)

// UserStats summarizes a user's library and conversion history.
func (s *Store) UserStats(ctx context.Context, userID string) (*model.Stats, error) {
	var stats model.Stats
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1), COALESCE(SUM(favorite), 0) FROM songs WHERE user_id = ?`, userID,
	).Scan(&stats.TotalSongs, &stats.Favorites); err != nil {
		return nil, fmt.Errorf("count songs: %w", err)
	}
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM history WHERE user_id = ?`, userID,
	).Scan(&stats.Conversions); err != nil {
		return nil, fmt.Errorf("count conversions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT duration FROM songs WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("list durations: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan duration: %w", err)
		}
		stats.TotalDuration += model.ParseDuration(d)
	}
	return &stats, rows.Err()
}
