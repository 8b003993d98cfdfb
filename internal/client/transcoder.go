package client

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/stemdeck/api/internal/config"
)

// TargetExt is the container every stored artifact uses.
const TargetExt = ".mp3"

// Transcoder converts decoded audio to mp3 with ffmpeg.
type Transcoder struct {
	runner Runner
	ffmpeg string
}

func NewTranscoder(runner Runner, tools *config.ToolsConfig) *Transcoder {
	return &Transcoder{runner: runner, ffmpeg: tools.FFmpegPath}
}

// Transcode writes input to output as VBR quality 2 mp3, overwriting output.
func (t *Transcoder) Transcode(ctx context.Context, input, output string) error {
	_, err := RunOrError(ctx, t.runner, t.ffmpeg,
		"-y",
		"-i", input,
		"-codec:a", "libmp3lame",
		"-q:a", "2",
		output,
	)
	return err
}

// Normalize brings input into the target format at output: a plain copy when
// it is already mp3, a transcode otherwise.
func (t *Transcoder) Normalize(ctx context.Context, input, output string) error {
	if strings.EqualFold(filepath.Ext(input), TargetExt) {
		return copyFile(input, output)
	}
	return t.Transcode(ctx, input, output)
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy %s: %w", src, err)
	}
	return out.Close()
}
