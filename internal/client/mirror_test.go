package client

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"slices"
	"testing"
	"time"

	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
)

type putCall struct {
	key, body, contentType string
	size                   int64
}

type fakeObjectStore struct {
	puts      []putCall
	removed   []string
	removeErr error
	presigned []string
}

func (s *fakeObjectStore) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	s.puts = append(s.puts, putCall{key: key, body: string(data), contentType: contentType, size: size})
	return nil
}

func (s *fakeObjectStore) Remove(_ context.Context, keys ...string) error {
	s.removed = append(s.removed, keys...)
	return s.removeErr
}

func (s *fakeObjectStore) PresignGet(_ context.Context, key, filename string, expiry time.Duration) (string, error) {
	s.presigned = append(s.presigned, key+"|"+filename)
	return "https://bucket.example/" + key + "?expires=" + expiry.String(), nil
}

func newTestMirror(t *testing.T) (*ArtifactMirror, *fakeObjectStore, config.StorageConfig) {
	t.Helper()
	dir := t.TempDir()
	paths := config.StorageConfig{
		UploadsDir: filepath.Join(dir, "uploads"),
		StemsDir:   filepath.Join(dir, "stems"),
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	store := &fakeObjectStore{}
	return NewArtifactMirror(store, paths), store, paths
}

func TestObjectKey(t *testing.T) {
	tests := map[string]string{
		"/uploads/abc.mp3":     "songs/abc.mp3",
		"/stems/abc_vocal.mp3": "stems/abc_vocal.mp3",
		"uploads/abc.mp3":      "songs/abc.mp3",
	}
	for in, want := range tests {
		if got := ObjectKey(in); got != want {
			t.Errorf("ObjectKey(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMirrorUploadsSongAndStems(t *testing.T) {
	m, store, paths := newTestMirror(t)
	if err := os.WriteFile(filepath.Join(paths.UploadsDir, "abc.mp3"), []byte("audio"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(paths.StemsDir, "abc_vocal.mp3"), []byte("vocal"), 0o644); err != nil {
		t.Fatal(err)
	}

	m.MirrorSong(context.Background(), &model.Song{FilePath: "/uploads/abc.mp3"})
	m.MirrorStems(context.Background(), []model.Stem{
		{Kind: model.StemVocal, FilePath: "/stems/abc_vocal.mp3"},
		{Kind: model.StemDrums, FilePath: "/stems/abc_drums.mp3"}, // missing locally, skipped
	})

	want := []putCall{
		{key: "songs/abc.mp3", body: "audio", contentType: "audio/mpeg", size: 5},
		{key: "stems/abc_vocal.mp3", body: "vocal", contentType: "audio/mpeg", size: 5},
	}
	if !slices.Equal(store.puts, want) {
		t.Errorf("puts = %+v, want %+v", store.puts, want)
	}
}

func TestMirrorRemoveBatchesKeys(t *testing.T) {
	m, store, _ := newTestMirror(t)
	store.removeErr = errors.New("bucket unavailable")

	// failures are logged, not returned
	m.Remove(context.Background(), "/uploads/abc.mp3", "/stems/abc_bass.mp3")

	if want := []string{"songs/abc.mp3", "stems/abc_bass.mp3"}; !slices.Equal(store.removed, want) {
		t.Errorf("removed = %v, want %v", store.removed, want)
	}
}

func TestMirrorSignedURL(t *testing.T) {
	m, store, _ := newTestMirror(t)

	url, err := m.SignedURL(context.Background(), "/uploads/abc.mp3", "Song.mp3")
	if err != nil {
		t.Fatalf("SignedURL: %v", err)
	}
	if url != "https://bucket.example/songs/abc.mp3?expires=15m0s" {
		t.Errorf("url = %q", url)
	}
	if want := []string{"songs/abc.mp3|Song.mp3"}; !slices.Equal(store.presigned, want) {
		t.Errorf("presigned = %v", store.presigned)
	}
}

func TestNilMirrorIsNoop(t *testing.T) {
	var m *ArtifactMirror
	m.MirrorSong(context.Background(), &model.Song{FilePath: "/uploads/x.mp3"})
	m.MirrorStems(context.Background(), []model.Stem{{FilePath: "/stems/x_vocal.mp3"}})
	m.Remove(context.Background(), "/uploads/x.mp3")
	if _, err := m.SignedURL(context.Background(), "/uploads/x.mp3", "x.mp3"); err == nil {
		t.Error("SignedURL on a nil mirror should fail")
	}
	if NewArtifactMirror(nil, config.StorageConfig{}) != nil {
		t.Error("NewArtifactMirror(nil) should return nil")
	}
}
