package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/apex/log"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/model"
	"github.com/stemdeck/api/internal/store"
)

const TaskTypeConversion = "conversion:process"

// ConversionWorker runs the URL to song pipeline for one job at a time.
// It is safe to call Process concurrently for different jobs.
type ConversionWorker struct {
	store      *store.Store
	extractor  *client.Extractor
	separator  *client.Separator
	transcoder *client.Transcoder
	mirror     *client.ArtifactMirror
	paths      config.StorageConfig
	now        func() time.Time
}

// NewConversionWorker wires the pipeline. mirror may be nil.
func NewConversionWorker(
	st *store.Store,
	extractor *client.Extractor,
	separator *client.Separator,
	transcoder *client.Transcoder,
	mirror *client.ArtifactMirror,
	paths config.StorageConfig,
) *ConversionWorker {
	return &ConversionWorker{
		store:      st,
		extractor:  extractor,
		separator:  separator,
		transcoder: transcoder,
		mirror:     mirror,
		paths:      paths,
		now:        time.Now,
	}
}

// ProcessTask adapts Process to an asynq handler. The job outcome lives in
// the history record, so the task itself only fails on a bad payload.
func (w *ConversionWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var task model.ConversionTask
	if err := json.Unmarshal(t.Payload(), &task); err != nil {
		return fmt.Errorf("unmarshal conversion task: %w: %w", err, asynq.SkipRetry)
	}
	w.Process(ctx, task)
	return nil
}

// Process drives one job to DONE or ERROR. Every failure, including a
// panic, ends in a single ERROR transition carrying the error message.
func (w *ConversionWorker) Process(ctx context.Context, task model.ConversionTask) {
	logger := log.WithFields(log.Fields{
		"job_id":       task.JobID,
		"enable_stems": task.EnableStems,
	})
	logger.Info("conversion started")

	err := w.runSafely(ctx, task, logger)

	// Terminal writes must land even when the job context was canceled.
	finalCtx := context.WithoutCancel(ctx)
	if err != nil {
		logger.WithError(err).WithField("kind", client.KindOf(err).String()).Error("conversion failed")
		if failErr := w.store.FailConversion(finalCtx, task.JobID, err.Error()); failErr != nil {
			logger.WithError(failErr).Error("failed to record conversion failure")
		}
		return
	}
	if err := w.store.CompleteConversion(finalCtx, task.JobID); err != nil {
		logger.WithError(err).Error("failed to record conversion completion")
		return
	}
	logger.Info("conversion finished")
}

func (w *ConversionWorker) runSafely(ctx context.Context, task model.ConversionTask, logger log.Interface) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("conversion panicked: %v", r)
		}
	}()
	return w.run(ctx, task, logger)
}

func (w *ConversionWorker) run(ctx context.Context, task model.ConversionTask, logger log.Interface) error {
	if err := w.store.SetProcessing(ctx, task.JobID); err != nil {
		return fmt.Errorf("start conversion: %w", err)
	}

	info, err := w.extractor.ExtractMetadata(ctx, task.URL)
	if err != nil {
		return err
	}
	meta := client.MapMetadata(info, w.now())
	if err := w.store.AttachMetadata(ctx, task.JobID, meta); err != nil {
		return fmt.Errorf("attach metadata: %w", err)
	}
	logger.WithFields(log.Fields{"title": meta.Title, "artist": meta.Artist}).Info("metadata extracted")

	song, err := w.produceAudio(ctx, task, meta)
	if err != nil {
		return err
	}
	logger = logger.WithField("song_id", song.ID)
	logger.Info("song created")

	if !task.EnableStems {
		return nil
	}
	return w.produceStems(ctx, song, logger)
}

func (w *ConversionWorker) produceAudio(ctx context.Context, task model.ConversionTask, meta model.TrackMetadata) (*model.Song, error) {
	songID := uuid.NewString()
	audioPath, err := w.extractor.ExtractAudio(ctx, task.URL, w.paths.UploadsDir, songID)
	if err != nil {
		return nil, err
	}

	song, err := w.store.CreateSong(ctx, &model.Song{
		ID:        songID,
		Title:     meta.Title,
		Artist:    meta.Artist,
		Genre:     meta.Genre,
		Duration:  meta.Duration,
		Key:       meta.Key,
		FilePath:  w.paths.UploadPath(filepath.Base(audioPath)),
		Thumbnail: meta.Thumbnail,
		UserID:    task.UserID,
		HistoryID: task.JobID,
	})
	if err != nil {
		return nil, fmt.Errorf("create song: %w", err)
	}
	w.mirror.MirrorSong(ctx, song)
	return song, nil
}

// produceStems is all-or-nothing: the song ends with four stems or none.
// The temporary engine output is removed on every path.
func (w *ConversionWorker) produceStems(ctx context.Context, song *model.Song, logger log.Interface) error {
	source := w.paths.Resolve(song.FilePath)
	if _, err := os.Stat(source); err != nil {
		return &client.ToolError{
			Kind:    client.KindMissingArtifact,
			Message: "audio file not found for stem separation",
		}
	}

	engine, err := w.separator.Select(ctx)
	if err != nil {
		return err
	}
	logger = logger.WithField("engine", engine.Name)

	tmpDir := filepath.Join(w.paths.StemsTempDir(), fmt.Sprintf("%s-%d", song.ID, w.now().UnixMilli()))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return fmt.Errorf("create stems temp dir: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.WithError(err).Warn("failed to remove stems temp dir")
		}
	}()

	// Old stems share the target file names, so they go before new files
	// are written.
	if err := w.store.DeleteStemsForSong(ctx, song.ID); err != nil {
		return fmt.Errorf("clear previous stems: %w", err)
	}

	outputs, err := w.separator.Separate(ctx, engine, source, tmpDir)
	if err != nil {
		return err
	}
	for _, kind := range model.StemKinds {
		if _, err := os.Stat(outputs[kind]); err != nil {
			return &client.ToolError{
				Kind:    client.KindMissingArtifact,
				Tool:    engine.Name,
				Message: fmt.Sprintf("stem not found after separation: %s", kind),
			}
		}
	}

	stems := make([]model.Stem, 0, len(model.StemKinds))
	var written []string
	cleanup := func() {
		for _, p := range written {
			_ = os.Remove(p)
		}
	}
	for _, kind := range model.StemKinds {
		name := fmt.Sprintf("%s_%s%s", song.ID, strings.ToLower(string(kind)), client.TargetExt)
		target := filepath.Join(w.paths.StemsDir, name)
		if err := w.transcoder.Normalize(ctx, outputs[kind], target); err != nil {
			cleanup()
			return err
		}
		written = append(written, target)
		stems = append(stems, model.Stem{
			Kind:     kind,
			FilePath: w.paths.StemPath(name),
			Volume:   model.DefaultVolume,
		})
	}

	created, err := w.store.ReplaceStems(ctx, song.ID, stems)
	if created == nil {
		cleanup()
		return fmt.Errorf("save stems: %w", err)
	}
	if err != nil {
		logger.WithError(err).Warn("failed to remove replaced stem files")
	}
	logger.WithField("stems", len(created)).Info("stems created")
	w.mirror.MirrorStems(ctx, created)
	return nil
}
