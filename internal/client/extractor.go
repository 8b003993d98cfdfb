package client

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/apex/log"

	"github.com/stemdeck/api/internal/config"
)

var extractorBaseArgs = []string{"--no-warnings", "--no-playlist"}

// Extractor drives yt-dlp through a cross product of fallback strategies
// until one invocation succeeds.
type Extractor struct {
	runner             Runner
	binary             string
	cookiesFile        string
	cookiesFromBrowser string

	impersonateOnce sync.Once
	canImpersonate  bool
}

func NewExtractor(runner Runner, tools *config.ToolsConfig) *Extractor {
	return &Extractor{
		runner:             runner,
		binary:             tools.YtDlpPath,
		cookiesFile:        tools.CookiesFile,
		cookiesFromBrowser: tools.CookiesFromBrowser,
	}
}

// ExtractMetadata dumps the video's info JSON.
func (e *Extractor) ExtractMetadata(ctx context.Context, url string) (*VideoInfo, error) {
	stdout, err := e.runWithFallback(ctx, []string{"--dump-single-json", url})
	if err != nil {
		return nil, err
	}
	var info VideoInfo
	if err := json.Unmarshal([]byte(stdout), &info); err != nil {
		return nil, &ToolError{
			Kind:    KindToolInvocation,
			Tool:    e.binary,
			Message: fmt.Sprintf("could not parse %s metadata: %v", e.binary, err),
			cause:   err,
		}
	}
	return &info, nil
}

// ExtractAudio downloads url as mp3 into dir/name.mp3 and returns that path.
// yt-dlp can exit 0 without producing the converted file, so the path is
// verified before returning.
func (e *Extractor) ExtractAudio(ctx context.Context, url, dir, name string) (string, error) {
	template := filepath.Join(dir, name+".%(ext)s")
	operation := []string{
		"--extract-audio",
		"--audio-format", "mp3",
		"--audio-quality", "0",
		"-o", template,
		url,
	}
	if _, err := e.runWithFallback(ctx, operation); err != nil {
		return "", err
	}

	path := filepath.Join(dir, name+".mp3")
	if _, err := os.Stat(path); err != nil {
		return "", newMissingArtifact(e.binary, fmt.Sprintf("%s did not produce the expected mp3 file", e.binary))
	}
	return path, nil
}

// Strategies returns the strategy axes for the current environment. The
// cookies file is re-checked on every call since it may be replaced while
// the server runs.
func (e *Extractor) Strategies(ctx context.Context) StrategySet {
	credentials := [][]string{nil}
	if e.cookiesFromBrowser != "" {
		credentials = append(credentials, []string{"--cookies-from-browser", e.cookiesFromBrowser})
	}
	if e.cookiesFile != "" {
		if _, err := os.Stat(e.cookiesFile); err == nil {
			credentials = append(credentials, []string{"--cookies", e.cookiesFile})
		}
	}

	impersonation := [][]string{nil}
	if e.supportsImpersonation(ctx) {
		impersonation = append(impersonation, []string{"--impersonate", "chrome"})
	}

	return StrategySet{
		Credentials:   credentials,
		Impersonation: impersonation,
		Clients:       defaultClientStrategies,
	}
}

// supportsImpersonation probes the yt-dlp build once per Extractor. The
// answer is shared by later jobs, so the probe is detached from the first
// caller's cancellation and bounded only by the runner timeout.
func (e *Extractor) supportsImpersonation(ctx context.Context) bool {
	e.impersonateOnce.Do(func() {
		result := e.runner.Run(context.WithoutCancel(ctx), e.binary, "--list-impersonate-targets")
		if !result.Succeeded {
			return
		}
		output := strings.ToLower(result.Stdout + "\n" + result.Stderr)
		e.canImpersonate = strings.Contains(output, "chrome")
	})
	return e.canImpersonate
}

type attemptLog struct {
	failures                 []string
	last                     string
	impersonationUnavailable bool
}

// runWithFallback is the single first-success-wins driver shared by both
// extraction operations.
func (e *Extractor) runWithFallback(ctx context.Context, operation []string) (string, error) {
	strategies := e.Strategies(ctx)
	attempts := &attemptLog{}

	stdout, ok, err := e.tryAll(ctx, strategies.Attempts(extractorBaseArgs, operation), attempts)
	if ok || err != nil {
		return stdout, err
	}

	if attempts.impersonationUnavailable {
		log.WithField("tool", e.binary).Warn("impersonation target unavailable, retrying without impersonation")
		stdout, ok, err = e.tryAll(ctx, strategies.WithoutImpersonation().Attempts(extractorBaseArgs, operation), attempts)
		if ok || err != nil {
			return stdout, err
		}
	}

	return "", classifiedError(e.binary, attempts.failures, attempts.last)
}

// tryAll runs each attempt in order. It stops early on success, or with an
// error when the invocation timed out or the context ended, since further
// attempts would fail the same way.
func (e *Extractor) tryAll(ctx context.Context, seq iter.Seq[[]string], attempts *attemptLog) (string, bool, error) {
	n := len(attempts.failures)
	for args := range seq {
		n++
		result := e.runner.Run(ctx, e.binary, args...)
		if result.Succeeded {
			return result.Stdout, true, nil
		}
		if result.TimedOut || ctx.Err() != nil {
			return "", false, ErrorFromResult(e.binary, result)
		}

		stderr := result.Stderr
		if strings.TrimSpace(stderr) == "" {
			stderr = "failed to run " + e.binary
		}
		attempts.failures = append(attempts.failures, stderr)
		attempts.last = stderr
		if impersonationUnavailable(stderr) {
			attempts.impersonationUnavailable = true
		}

		log.WithFields(log.Fields{
			"tool":    e.binary,
			"attempt": n,
			"args":    strings.Join(args, " "),
		}).Debug("extractor attempt failed")
	}
	return "", false, nil
}
