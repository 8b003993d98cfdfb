package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/stemdeck/api/internal/model"
)

const songColumns = `id, title, artist, genre, duration, bpm, song_key, file_path, thumbnail,
    user_id, history_id, favorite, uploaded_at`

// CreateSong inserts song, generating an id when none is set.
func (s *Store) CreateSong(ctx context.Context, song *model.Song) (*model.Song, error) {
	created := *song
	if created.ID == "" {
		created.ID = uuid.NewString()
	}
	created.UploadedAt = time.Now().UTC()

	var bpm any
	if created.BPM != nil {
		bpm = *created.BPM
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO songs (`+songColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		created.ID, created.Title, created.Artist, created.Genre, created.Duration, bpm,
		nullableStringPtr(created.Key), created.FilePath, created.Thumbnail,
		created.UserID, created.HistoryID, boolToInt(created.Favorite), formatTime(created.UploadedAt),
	)
	if err != nil {
		return nil, fmt.Errorf("insert song: %w", err)
	}
	return &created, nil
}

// GetSong returns the song with id or ErrNotFound.
func (s *Store) GetSong(ctx context.Context, id string) (*model.Song, error) {
	song, err := scanSong(s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get song: %w", err)
	}
	return song, nil
}

// GetSongByHistory returns the song a conversion produced, or ErrNotFound.
func (s *Store) GetSongByHistory(ctx context.Context, historyID string) (*model.Song, error) {
	song, err := scanSong(s.db.QueryRowContext(ctx, `SELECT `+songColumns+` FROM songs WHERE history_id = ?`, historyID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get song by history: %w", err)
	}
	return song, nil
}

// ListSongs returns a user's songs, newest first.
func (s *Store) ListSongs(ctx context.Context, userID string, favoritesOnly bool) ([]*model.Song, error) {
	query := `SELECT ` + songColumns + ` FROM songs WHERE user_id = ?`
	if favoritesOnly {
		query += ` AND favorite = 1`
	}
	query += ` ORDER BY uploaded_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list songs: %w", err)
	}
	defer rows.Close()

	songs := []*model.Song{}
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("scan song: %w", err)
		}
		songs = append(songs, song)
	}
	return songs, rows.Err()
}

// ToggleFavorite flips the favorite flag and returns the updated song.
func (s *Store) ToggleFavorite(ctx context.Context, id string) (*model.Song, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE songs SET favorite = 1 - favorite WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("toggle favorite: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetSong(ctx, id)
}

// DeleteSong removes the song, its stems, and every file behind them. It
// returns the public paths that were removed.
func (s *Store) DeleteSong(ctx context.Context, id string) ([]string, error) {
	song, err := s.GetSong(ctx, id)
	if err != nil {
		return nil, err
	}
	stems, err := s.ListStems(ctx, id)
	if err != nil {
		return nil, err
	}

	paths := make([]string, 0, len(stems)+1)
	for _, stem := range stems {
		paths = append(paths, stem.FilePath)
	}
	paths = append(paths, song.FilePath)

	if err := s.removeFiles(paths...); err != nil {
		return nil, fmt.Errorf("remove song files: %w", err)
	}
	// stems rows go with the song via ON DELETE CASCADE
	if _, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE id = ?`, id); err != nil {
		return nil, fmt.Errorf("delete song: %w", err)
	}
	return paths, nil
}

func scanSong(sc scanner) (*model.Song, error) {
	var (
		song       model.Song
		bpm        sql.NullInt64
		keyCol     sql.NullString
		favorite   int
		uploadedAt string
	)
	if err := sc.Scan(
		&song.ID, &song.Title, &song.Artist, &song.Genre, &song.Duration, &bpm, &keyCol,
		&song.FilePath, &song.Thumbnail, &song.UserID, &song.HistoryID, &favorite, &uploadedAt,
	); err != nil {
		return nil, err
	}
	if bpm.Valid {
		v := int(bpm.Int64)
		song.BPM = &v
	}
	song.Key = stringPtr(keyCol)
	song.Favorite = favorite != 0
	song.UploadedAt = parseTime(uploadedAt)
	return &song, nil
}
