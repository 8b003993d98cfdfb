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

const historyColumns = `id, url, status, error_message, started_at, finished_at, user_id,
    title, artist, thumbnail, duration, song_key`

// CreateConversion inserts a PENDING history record.
func (s *Store) CreateConversion(ctx context.Context, url, userID string) (*model.Conversion, error) {
	conv := &model.Conversion{
		ID:        uuid.NewString(),
		URL:       url,
		Status:    model.JobStatusPending,
		StartedAt: time.Now().UTC(),
		UserID:    userID,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO history (id, url, status, started_at, user_id) VALUES (?, ?, ?, ?, ?)`,
		conv.ID, conv.URL, conv.Status, formatTime(conv.StartedAt), conv.UserID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversion: %w", err)
	}
	return conv, nil
}

// SetProcessing moves a PENDING conversion to PROCESSING.
func (s *Store) SetProcessing(ctx context.Context, id string) error {
	return s.transition(ctx,
		`UPDATE history SET status = ? WHERE id = ? AND status = ?`,
		model.JobStatusProcessing, id, model.JobStatusPending,
	)
}

// AttachMetadata writes all display fields in one statement while the
// conversion is PROCESSING.
func (s *Store) AttachMetadata(ctx context.Context, id string, meta model.TrackMetadata) error {
	return s.transition(ctx,
		`UPDATE history SET title = ?, artist = ?, thumbnail = ?, duration = ?, song_key = ?
         WHERE id = ? AND status = ?`,
		meta.Title, meta.Artist, meta.Thumbnail, meta.Duration, nullableStringPtr(meta.Key),
		id, model.JobStatusProcessing,
	)
}

// CompleteConversion marks a running conversion DONE and stamps finished_at.
func (s *Store) CompleteConversion(ctx context.Context, id string) error {
	return s.transition(ctx,
		`UPDATE history SET status = ?, error_message = NULL, finished_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		model.JobStatusDone, formatTime(time.Now()), id, model.JobStatusPending, model.JobStatusProcessing,
	)
}

// FailConversion marks a running conversion ERROR with message.
func (s *Store) FailConversion(ctx context.Context, id, message string) error {
	return s.transition(ctx,
		`UPDATE history SET status = ?, error_message = ?, finished_at = ?
         WHERE id = ? AND status IN (?, ?)`,
		model.JobStatusError, message, formatTime(time.Now()), id, model.JobStatusPending, model.JobStatusProcessing,
	)
}

// transition runs a guarded update. Zero affected rows means the record is
// gone or already past the required state.
func (s *Store) transition(ctx context.Context, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update conversion: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrInvalidTransition
	}
	return nil
}

// GetConversion returns the conversion with id or ErrNotFound.
func (s *Store) GetConversion(ctx context.Context, id string) (*model.Conversion, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+historyColumns+` FROM history WHERE id = ?`, id)
	conv, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversion: %w", err)
	}
	return conv, nil
}

// ListConversions returns a user's conversions, newest first.
func (s *Store) ListConversions(ctx context.Context, userID string) ([]*model.Conversion, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+historyColumns+` FROM history WHERE user_id = ? ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversions: %w", err)
	}
	defer rows.Close()

	convs := []*model.Conversion{}
	for rows.Next() {
		conv, err := scanConversion(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversion: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversion removes a history record. Songs it produced are kept.
func (s *Store) DeleteConversion(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversion: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanConversion(sc scanner) (*model.Conversion, error) {
	var (
		conv                                       model.Conversion
		status, startedAt                          string
		errMsg, finishedAt                         sql.NullString
		title, artist, thumbnail, duration, keyCol sql.NullString
	)
	if err := sc.Scan(
		&conv.ID, &conv.URL, &status, &errMsg, &startedAt, &finishedAt, &conv.UserID,
		&title, &artist, &thumbnail, &duration, &keyCol,
	); err != nil {
		return nil, err
	}
	conv.Status = model.JobStatus(status)
	conv.ErrorMessage = stringPtr(errMsg)
	conv.StartedAt = parseTime(startedAt)
	conv.FinishedAt = parseNullableTime(finishedAt)
	conv.Title = stringPtr(title)
	conv.Artist = stringPtr(artist)
	conv.Thumbnail = stringPtr(thumbnail)
	conv.Duration = stringPtr(duration)
	conv.Key = stringPtr(keyCol)
	return &conv, nil
}
