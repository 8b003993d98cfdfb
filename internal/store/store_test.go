package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
)

func openTestStore(t *testing.T) (*Store, config.StorageConfig) {
	t.Helper()
	dir := t.TempDir()
	paths := config.StorageConfig{
		DataDir:      dir,
		UploadsDir:   filepath.Join(dir, "uploads"),
		StemsDir:     filepath.Join(dir, "stems"),
		DatabasePath: filepath.Join(dir, "test.db"),
	}
	s, err := Open(paths)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, paths
}

func touch(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func TestOpenIsIdempotent(t *testing.T) {
	s, paths := openTestStore(t)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	again, err := Open(paths)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer again.Close()
	if err := again.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestConversionLifecycle(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	conv, err := s.CreateConversion(ctx, "https://youtu.be/x", "user-1")
	if err != nil {
		t.Fatalf("CreateConversion: %v", err)
	}
	if conv.Status != model.JobStatusPending || conv.FinishedAt != nil {
		t.Fatalf("new conversion: %+v", conv)
	}

	if err := s.AttachMetadata(ctx, conv.ID, model.TrackMetadata{Title: "T"}); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("metadata before PROCESSING: err = %v", err)
	}
	if err := s.SetProcessing(ctx, conv.ID); err != nil {
		t.Fatalf("SetProcessing: %v", err)
	}
	key := "AM"
	meta := model.TrackMetadata{Title: "T", Artist: "A", Thumbnail: "th", Duration: "3:00", Key: &key}
	if err := s.AttachMetadata(ctx, conv.ID, meta); err != nil {
		t.Fatalf("AttachMetadata: %v", err)
	}

	got, err := s.GetConversion(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversion: %v", err)
	}
	if got.Status != model.JobStatusProcessing || got.FinishedAt != nil {
		t.Errorf("processing conversion: %+v", got)
	}
	if got.Title == nil || *got.Title != "T" || got.Key == nil || *got.Key != "AM" {
		t.Errorf("metadata not stored: %+v", got)
	}

	if err := s.CompleteConversion(ctx, conv.ID); err != nil {
		t.Fatalf("CompleteConversion: %v", err)
	}
	done, _ := s.GetConversion(ctx, conv.ID)
	if done.Status != model.JobStatusDone || done.FinishedAt == nil || done.ErrorMessage != nil {
		t.Errorf("done conversion: %+v", done)
	}

	if err := s.FailConversion(ctx, conv.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("terminal status changed: err = %v", err)
	}
	if err := s.SetProcessing(ctx, conv.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("status moved backwards: err = %v", err)
	}
}

func TestFailConversionStoresMessage(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	conv, _ := s.CreateConversion(ctx, "u", "user-1")
	if err := s.FailConversion(ctx, conv.ID, "boom"); err != nil {
		t.Fatalf("FailConversion: %v", err)
	}
	got, _ := s.GetConversion(ctx, conv.ID)
	if got.Status != model.JobStatusError || got.ErrorMessage == nil || *got.ErrorMessage != "boom" || got.FinishedAt == nil {
		t.Errorf("failed conversion: %+v", got)
	}
}

func TestListConversionsNewestFirst(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	first, _ := s.CreateConversion(ctx, "a", "user-1")
	time.Sleep(2 * time.Millisecond)
	second, _ := s.CreateConversion(ctx, "b", "user-1")
	_, _ = s.CreateConversion(ctx, "c", "user-2")

	list, err := s.ListConversions(ctx, "user-1")
	if err != nil {
		t.Fatalf("ListConversions: %v", err)
	}
	if len(list) != 2 || list[0].ID != second.ID || list[1].ID != first.ID {
		t.Errorf("unexpected order: %v", list)
	}
	if err := s.DeleteConversion(ctx, first.ID); err != nil {
		t.Fatalf("DeleteConversion: %v", err)
	}
	if _, err := s.GetConversion(ctx, first.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted conversion still present: %v", err)
	}
}

func createSong(t *testing.T, s *Store, paths config.StorageConfig, userID string) *model.Song {
	t.Helper()
	id := uuid.NewString()
	song, err := s.CreateSong(context.Background(), &model.Song{
		ID:        id,
		Title:     "Song",
		Artist:    "Artist",
		Genre:     "Pop",
		Duration:  "3:05",
		FilePath:  paths.UploadPath(id + ".mp3"),
		Thumbnail: "th",
		UserID:    userID,
		HistoryID: "job-1",
	})
	if err != nil {
		t.Fatalf("CreateSong: %v", err)
	}
	touch(t, paths.Resolve(song.FilePath))
	return song
}

func stemSet(t *testing.T, paths config.StorageConfig, songID string) []model.Stem {
	t.Helper()
	var stems []model.Stem
	for _, kind := range model.StemKinds {
		public := paths.StemPath(songID + "_" + string(kind) + ".mp3")
		touch(t, paths.Resolve(public))
		stems = append(stems, model.Stem{Kind: kind, FilePath: public, Volume: model.DefaultVolume})
	}
	return stems
}

func TestReplaceStemsKeepsExactlyOneSet(t *testing.T) {
	s, paths := openTestStore(t)
	ctx := context.Background()
	song := createSong(t, s, paths, "user-1")

	for range 2 {
		if _, err := s.ReplaceStems(ctx, song.ID, stemSet(t, paths, song.ID)); err != nil {
			t.Fatalf("ReplaceStems: %v", err)
		}
	}

	stems, err := s.ListStems(ctx, song.ID)
	if err != nil {
		t.Fatalf("ListStems: %v", err)
	}
	if len(stems) != 4 {
		t.Fatalf("got %d stems, want 4", len(stems))
	}
	for i, kind := range model.StemKinds {
		if stems[i].Kind != kind {
			t.Errorf("stem %d kind = %s, want %s", i, stems[i].Kind, kind)
		}
		if !exists(paths.Resolve(stems[i].FilePath)) {
			t.Errorf("reused stem file was removed: %s", stems[i].FilePath)
		}
	}
}

func TestReplaceStemsRemovesStaleFiles(t *testing.T) {
	s, paths := openTestStore(t)
	ctx := context.Background()
	song := createSong(t, s, paths, "user-1")

	old := stemSet(t, paths, song.ID)
	if _, err := s.ReplaceStems(ctx, song.ID, old); err != nil {
		t.Fatal(err)
	}
	fresh := stemSet(t, paths, song.ID+"-v2")
	if _, err := s.ReplaceStems(ctx, song.ID, fresh); err != nil {
		t.Fatal(err)
	}
	for _, stem := range old {
		if exists(paths.Resolve(stem.FilePath)) {
			t.Errorf("stale stem file kept: %s", stem.FilePath)
		}
	}
}

func TestUpdateStemVolumeClamps(t *testing.T) {
	s, paths := openTestStore(t)
	ctx := context.Background()
	song := createSong(t, s, paths, "user-1")
	stems, err := s.ReplaceStems(ctx, song.ID, stemSet(t, paths, song.ID))
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		in   float64
		want int
	}{{150, 100}, {-5, 0}, {42.6, 43}, {0, 0}}
	for _, tt := range tests {
		got, err := s.UpdateStemVolume(ctx, stems[0].ID, tt.in)
		if err != nil {
			t.Fatalf("UpdateStemVolume(%v): %v", tt.in, err)
		}
		if got.Volume != tt.want {
			t.Errorf("UpdateStemVolume(%v) = %d, want %d", tt.in, got.Volume, tt.want)
		}
	}
	if _, err := s.UpdateStemVolume(ctx, "missing", 10); !errors.Is(err, ErrNotFound) {
		t.Errorf("unknown stem: err = %v", err)
	}
}

func TestDeleteSongRemovesFilesAndStems(t *testing.T) {
	s, paths := openTestStore(t)
	ctx := context.Background()
	song := createSong(t, s, paths, "user-1")
	stems, err := s.ReplaceStems(ctx, song.ID, stemSet(t, paths, song.ID))
	if err != nil {
		t.Fatal(err)
	}

	removed, err := s.DeleteSong(ctx, song.ID)
	if err != nil {
		t.Fatalf("DeleteSong: %v", err)
	}
	if len(removed) != 5 {
		t.Errorf("removed %d paths, want 5", len(removed))
	}
	if exists(paths.Resolve(song.FilePath)) {
		t.Error("song file kept")
	}
	for _, stem := range stems {
		if exists(paths.Resolve(stem.FilePath)) {
			t.Errorf("stem file kept: %s", stem.FilePath)
		}
		if _, err := s.GetStem(ctx, stem.ID); !errors.Is(err, ErrNotFound) {
			t.Errorf("stem row kept: %v", err)
		}
	}
}

func TestFavoritesAndStats(t *testing.T) {
	s, paths := openTestStore(t)
	ctx := context.Background()
	a := createSong(t, s, paths, "user-1")
	_ = createSong(t, s, paths, "user-1")
	_, _ = s.CreateConversion(ctx, "u", "user-1")

	toggled, err := s.ToggleFavorite(ctx, a.ID)
	if err != nil || !toggled.Favorite {
		t.Fatalf("ToggleFavorite: %+v %v", toggled, err)
	}
	favs, _ := s.ListSongs(ctx, "user-1", true)
	if len(favs) != 1 || favs[0].ID != a.ID {
		t.Errorf("favorites = %v", favs)
	}

	stats, err := s.UserStats(ctx, "user-1")
	if err != nil {
		t.Fatalf("UserStats: %v", err)
	}
	want := model.Stats{TotalSongs: 2, Favorites: 1, Conversions: 1, TotalDuration: 2 * 185}
	if *stats != want {
		t.Errorf("stats = %+v, want %+v", *stats, want)
	}
}

func TestCreateUserRejectsDuplicateEmail(t *testing.T) {
	s, _ := openTestStore(t)
	ctx := context.Background()

	user, err := s.CreateUser(ctx, "Ann", "Ann@Example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := s.CreateUser(ctx, "Other", "ann@example.com ", "hash"); !errors.Is(err, ErrEmailTaken) {
		t.Errorf("duplicate email: err = %v", err)
	}
	got, err := s.GetUserByEmail(ctx, "ANN@example.com")
	if err != nil || got.ID != user.ID {
		t.Errorf("GetUserByEmail: %+v %v", got, err)
	}
}
