package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/stemdeck/api/internal/model"
)

const stemColumns = `id, song_id, kind, file_path, volume, created_at`

// ListStems returns a song's stems in VOCAL, DRUMS, BASS, OTHER order.
func (s *Store) ListStems(ctx context.Context, songID string) ([]model.Stem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+stemColumns+` FROM stems WHERE song_id = ?
         ORDER BY CASE kind WHEN 'VOCAL' THEN 0 WHEN 'DRUMS' THEN 1 WHEN 'BASS' THEN 2 ELSE 3 END`, songID)
	if err != nil {
		return nil, fmt.Errorf("list stems: %w", err)
	}
	defer rows.Close()

	stems := []model.Stem{}
	for rows.Next() {
		stem, err := scanStem(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stem: %w", err)
		}
		stems = append(stems, *stem)
	}
	return stems, rows.Err()
}

// GetStem returns the stem with id or ErrNotFound.
func (s *Store) GetStem(ctx context.Context, id string) (*model.Stem, error) {
	stem, err := scanStem(s.db.QueryRowContext(ctx, `SELECT `+stemColumns+` FROM stems WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get stem: %w", err)
	}
	return stem, nil
}

// DeleteStemsForSong unlinks every stem file of a song and deletes the rows.
func (s *Store) DeleteStemsForSong(ctx context.Context, songID string) error {
	stems, err := s.ListStems(ctx, songID)
	if err != nil {
		return err
	}
	paths := make([]string, 0, len(stems))
	for _, stem := range stems {
		paths = append(paths, stem.FilePath)
	}
	if err := s.removeFiles(paths...); err != nil {
		return fmt.Errorf("remove stem files: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM stems WHERE song_id = ?`, songID); err != nil {
		return fmt.Errorf("delete stems: %w", err)
	}
	return nil
}

// ReplaceStems swaps a song's stems for stems in one transaction. Volumes
// are clamped. Files of replaced stems are unlinked after commit unless a
// new stem reuses the same path.
func (s *Store) ReplaceStems(ctx context.Context, songID string, stems []model.Stem) ([]model.Stem, error) {
	previous, err := s.ListStems(ctx, songID)
	if err != nil {
		return nil, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin stems tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stems WHERE song_id = ?`, songID); err != nil {
		return nil, fmt.Errorf("delete stems: %w", err)
	}

	now := time.Now().UTC()
	created := make([]model.Stem, 0, len(stems))
	newPaths := make([]string, 0, len(stems))
	for _, stem := range stems {
		stem.ID = uuid.NewString()
		stem.SongID = songID
		stem.Volume = model.ClampVolume(float64(stem.Volume))
		stem.CreatedAt = now
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO stems (`+stemColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
			stem.ID, stem.SongID, stem.Kind, stem.FilePath, stem.Volume, formatTime(stem.CreatedAt),
		); err != nil {
			return nil, fmt.Errorf("insert stem %s: %w", stem.Kind, err)
		}
		created = append(created, stem)
		newPaths = append(newPaths, stem.FilePath)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit stems: %w", err)
	}

	var stale []string
	for _, old := range previous {
		if !slices.Contains(newPaths, old.FilePath) {
			stale = append(stale, old.FilePath)
		}
	}
	if err := s.removeFiles(stale...); err != nil {
		return created, fmt.Errorf("remove replaced stem files: %w", err)
	}
	return created, nil
}

// UpdateStemVolume stores volume clamped to [0, 100].
func (s *Store) UpdateStemVolume(ctx context.Context, id string, volume float64) (*model.Stem, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE stems SET volume = ? WHERE id = ?`, model.ClampVolume(volume), id)
	if err != nil {
		return nil, fmt.Errorf("update stem volume: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetStem(ctx, id)
}

func scanStem(sc scanner) (*model.Stem, error) {
	var (
		stem      model.Stem
		kind      string
		createdAt string
	)
	if err := sc.Scan(&stem.ID, &stem.SongID, &kind, &stem.FilePath, &stem.Volume, &createdAt); err != nil {
		return nil, err
	}
	stem.Kind = model.StemKind(kind)
	stem.CreatedAt = parseTime(createdAt)
	return &stem, nil
}
