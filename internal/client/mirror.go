package client

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
)

// ArtifactMirror copies song and stem files to object storage. Every method
// is a no-op on a nil mirror, and upload failures are logged rather than
// returned: the local copy stays authoritative.
type ArtifactMirror struct {
	storage ObjectStore
	paths   config.StorageConfig
}

const signedURLExpiry = 15 * time.Minute

func NewArtifactMirror(storage ObjectStore, paths config.StorageConfig) *ArtifactMirror {
	if storage == nil {
		return nil
	}
	return &ArtifactMirror{storage: storage, paths: paths}
}

// ObjectKey maps a public file path such as /stems/x_vocal.mp3 to its key.
func ObjectKey(publicPath string) string {
	trimmed := strings.TrimPrefix(publicPath, "/")
	if rest, ok := strings.CutPrefix(trimmed, "uploads/"); ok {
		return "songs/" + rest
	}
	return trimmed
}

func (m *ArtifactMirror) MirrorSong(ctx context.Context, song *model.Song) {
	if m == nil || song == nil {
		return
	}
	m.upload(ctx, song.FilePath)
}

func (m *ArtifactMirror) MirrorStems(ctx context.Context, stems []model.Stem) {
	if m == nil {
		return
	}
	for _, stem := range stems {
		m.upload(ctx, stem.FilePath)
	}
}

// Remove deletes the mirrored objects for the given public paths.
func (m *ArtifactMirror) Remove(ctx context.Context, publicPaths ...string) {
	if m == nil {
		return
	}
	keys := make([]string, 0, len(publicPaths))
	for _, p := range publicPaths {
		keys = append(keys, ObjectKey(p))
	}
	if err := m.storage.Remove(ctx, keys...); err != nil {
		log.WithError(err).WithField("keys", len(keys)).Warn("failed to remove mirrored artifacts")
	}
}

// SignedURL returns a short-lived download URL for a mirrored artifact,
// saved by the browser as filename.
func (m *ArtifactMirror) SignedURL(ctx context.Context, publicPath, filename string) (string, error) {
	if m == nil {
		return "", fmt.Errorf("artifact mirror not configured")
	}
	return m.storage.PresignGet(ctx, ObjectKey(publicPath), filename, signedURLExpiry)
}

func (m *ArtifactMirror) upload(ctx context.Context, publicPath string) {
	key := ObjectKey(publicPath)
	logger := log.WithField("key", key)

	f, err := os.Open(m.paths.Resolve(publicPath))
	if err != nil {
		logger.WithError(err).Warn("failed to open artifact for mirroring")
		return
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		logger.WithError(err).Warn("failed to stat artifact for mirroring")
		return
	}

	if err := m.storage.Put(ctx, key, f, info.Size(), contentType(publicPath)); err != nil {
		logger.WithError(err).Warn("failed to mirror artifact")
		return
	}
	logger.Debug("artifact mirrored")
}

func contentType(p string) string {
	switch strings.ToLower(path.Ext(p)) {
	case ".mp3":
		return "audio/mpeg"
	case ".wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
