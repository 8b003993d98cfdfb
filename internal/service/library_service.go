package service

import (
	"context"
	"os"
	"strings"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/store"
)

// LibraryService serves a user's songs and stems.
type LibraryService struct {
	store  *store.Store
	mirror *client.ArtifactMirror
	paths  config.StorageConfig
}

// NewLibraryService builds the service. mirror may be nil.
func NewLibraryService(st *store.Store, mirror *client.ArtifactMirror, paths config.StorageConfig) *LibraryService {
	return &LibraryService{
		store:  st,
		mirror: mirror,
		paths:  paths,
	}
}

func (s *LibraryService) ListSongs(ctx context.Context, userID string, favoritesOnly bool) ([]*model.Song, error) {
	return s.store.ListSongs(ctx, userID, favoritesOnly)
}

// GetSong returns the caller's song with its stems attached.
func (s *LibraryService) GetSong(ctx context.Context, userID, id string) (*model.Song, error) {
	song, err := s.ownedSong(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	stems, err := s.store.ListStems(ctx, id)
	if err != nil {
		return nil, err
	}
	song.Stems = stems
	return song, nil
}

func (s *LibraryService) ToggleFavorite(ctx context.Context, userID, id string) (*model.Song, error) {
	if _, err := s.ownedSong(ctx, userID, id); err != nil {
		return nil, err
	}
	song, err := s.store.ToggleFavorite(ctx, id)
	return song, mapStoreError(err)
}

// DeleteSong removes the song, its stems, their files and any mirrored
// copies.
func (s *LibraryService) DeleteSong(ctx context.Context, userID, id string) error {
	if _, err := s.ownedSong(ctx, userID, id); err != nil {
		return err
	}
	paths, err := s.store.DeleteSong(ctx, id)
	if err != nil {
		return mapStoreError(err)
	}
	s.mirror.Remove(ctx, paths...)
	log.WithFields(log.Fields{"song_id": id, "files": len(paths)}).Info("song deleted")
	return nil
}

func (s *LibraryService) ListStems(ctx context.Context, userID, songID string) ([]model.Stem, error) {
	if _, err := s.ownedSong(ctx, userID, songID); err != nil {
		return nil, err
	}
	return s.store.ListStems(ctx, songID)
}

// UpdateStemVolume clamps volume to [0, 100]. An unknown stem is
// ErrNotFound; a stem on someone else's song is ErrForbidden.
func (s *LibraryService) UpdateStemVolume(ctx context.Context, userID, stemID string, volume float64) (*model.Stem, error) {
	stem, err := s.store.GetStem(ctx, stemID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	song, err := s.store.GetSong(ctx, stem.SongID)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if song.UserID != userID {
		return nil, ErrForbidden
	}
	updated, err := s.store.UpdateStemVolume(ctx, stemID, volume)
	return updated, mapStoreError(err)
}

func (s *LibraryService) Stats(ctx context.Context, userID string) (*model.Stats, error) {
	return s.store.UserStats(ctx, userID)
}

// Download describes how to deliver a song file: either a local path or a
// redirect to the mirrored object.
type Download struct {
	LocalPath   string
	RedirectURL string
	Filename    string
}

// DownloadSong locates the caller's audio file. When the local copy is gone
// and a mirror is configured, a presigned URL is returned instead.
func (s *LibraryService) DownloadSong(ctx context.Context, userID, id string) (*Download, error) {
	song, err := s.ownedSong(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	download := &Download{Filename: downloadName(song.Title)}

	local := s.paths.Resolve(song.FilePath)
	if _, err := os.Stat(local); err == nil {
		download.LocalPath = local
		return download, nil
	}
	if s.mirror == nil {
		return nil, ErrFileMissing
	}
	url, err := s.mirror.SignedURL(ctx, song.FilePath, download.Filename)
	if err != nil {
		log.WithError(err).WithField("song_id", id).Warn("failed to sign mirrored download")
		return nil, ErrFileMissing
	}
	download.RedirectURL = url
	return download, nil
}

func (s *LibraryService) ownedSong(ctx context.Context, userID, id string) (*model.Song, error) {
	song, err := s.store.GetSong(ctx, id)
	if err != nil {
		return nil, mapStoreError(err)
	}
	if song.UserID != userID {
		return nil, ErrNotFound
	}
	return song, nil
}

var unsafeFilename = strings.NewReplacer("/", "_", "\\", "_", "\"", "'", "\n", " ", "\r", " ")

func downloadName(title string) string {
	name := strings.TrimSpace(unsafeFilename.Replace(title))
	if name == "" {
		name = "song"
	}
	return name + ".mp3"
}
