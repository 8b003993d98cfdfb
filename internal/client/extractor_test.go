package client

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stemdeck/api/internal/config"
)

const videoJSON = `{"title":"Demo","uploader":"Chan","duration":61}`

func newTestExtractor(r Runner, tools config.ToolsConfig) *Extractor {
	if tools.YtDlpPath == "" {
		tools.YtDlpPath = "yt-dlp"
	}
	return NewExtractor(r, &tools)
}

func TestExtractMetadataFallsBackToNextClient(t *testing.T) {
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		switch {
		case hasArg(args, "--list-impersonate-targets"):
			return exitWith(2, "no such option")
		case hasArg(args, "player_client=web"):
			return succeed(videoJSON)
		default:
			return exitWith(1, "ERROR: Precondition check failed")
		}
	}}

	info, err := newTestExtractor(r, config.ToolsConfig{}).ExtractMetadata(context.Background(), "https://youtu.be/x")
	if err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	if info.Title != "Demo" {
		t.Errorf("title = %q", info.Title)
	}

	calls := r.extractions()
	if len(calls) != 2 {
		t.Fatalf("got %d extraction calls, want 2", len(calls))
	}
	if hasArg(calls[0], "--extractor-args") {
		t.Errorf("first attempt should use the default client: %v", calls[0])
	}
}

func TestExtractMetadataClassifiesAfterAllStrategies(t *testing.T) {
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		if hasArg(args, "--list-impersonate-targets") {
			return exitWith(2, "")
		}
		return exitWith(1, "ERROR: [youtube] x: Sign in to confirm you're not a bot")
	}}

	_, err := newTestExtractor(r, config.ToolsConfig{CookiesFromBrowser: "firefox"}).
		ExtractMetadata(context.Background(), "https://youtu.be/x")
	if !errors.Is(err, ErrUpstreamBlocked) {
		t.Fatalf("err = %v, want upstream blocked", err)
	}
	// two credential strategies times four player clients
	if got := len(r.extractions()); got != 8 {
		t.Errorf("got %d attempts, want 8", got)
	}
	calls := r.extractions()
	if !hasArg(calls[len(calls)-1], "--cookies-from-browser") {
		t.Errorf("browser cookies should be tried last: %v", calls[len(calls)-1])
	}
}

func TestExtractMetadataRetriesWithoutImpersonation(t *testing.T) {
	var n atomic.Int32
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		if hasArg(args, "--list-impersonate-targets") {
			return succeed("chrome-131:chrome\n")
		}
		// one credential times two impersonation options times four clients
		if n.Add(1) <= 8 {
			if hasArg(args, "--impersonate") {
				return exitWith(1, "ERROR: Impersonate target \"chrome\" is not available")
			}
			return exitWith(1, "HTTP Error 403: Forbidden")
		}
		return succeed(videoJSON)
	}}

	if _, err := newTestExtractor(r, config.ToolsConfig{}).ExtractMetadata(context.Background(), "u"); err != nil {
		t.Fatalf("ExtractMetadata: %v", err)
	}
	calls := r.extractions()
	if len(calls) != 9 {
		t.Fatalf("got %d calls, want 9", len(calls))
	}
	if hasArg(calls[8], "--impersonate") {
		t.Errorf("retry pass must not impersonate: %v", calls[8])
	}
}

func TestExtractMetadataTimeoutAbortsRemainingAttempts(t *testing.T) {
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		if hasArg(args, "--list-impersonate-targets") {
			return exitWith(2, "")
		}
		return ProcessResult{TimedOut: true, Err: context.DeadlineExceeded}
	}}

	_, err := newTestExtractor(r, config.ToolsConfig{}).ExtractMetadata(context.Background(), "u")
	if KindOf(err) != KindTimeout || !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if got := len(r.extractions()); got != 1 {
		t.Errorf("got %d attempts, want 1", got)
	}
}

func TestExtractorUsesExistingCookiesFileOnly(t *testing.T) {
	cookies := filepath.Join(t.TempDir(), "cookies.txt")
	r := &fakeRunner{respond: func(string, []string) ProcessResult { return exitWith(2, "") }}
	e := newTestExtractor(r, config.ToolsConfig{CookiesFile: cookies})

	if got := len(e.Strategies(context.Background()).Credentials); got != 1 {
		t.Fatalf("missing cookies file should not add a strategy, got %d", got)
	}
	if err := os.WriteFile(cookies, []byte("# cookies"), 0o600); err != nil {
		t.Fatal(err)
	}
	creds := e.Strategies(context.Background()).Credentials
	if len(creds) != 2 || creds[1][0] != "--cookies" {
		t.Errorf("credentials = %v", creds)
	}
}

func TestExtractAudioRequiresOutputFile(t *testing.T) {
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		if hasArg(args, "--list-impersonate-targets") {
			return exitWith(2, "")
		}
		return succeed("")
	}}

	_, err := newTestExtractor(r, config.ToolsConfig{}).ExtractAudio(context.Background(), "u", t.TempDir(), "song")
	if !errors.Is(err, ErrMissingArtifact) {
		t.Fatalf("err = %v, want missing artifact", err)
	}
}

func TestExtractAudioReturnsConvertedPath(t *testing.T) {
	dir := t.TempDir()
	r := &fakeRunner{respond: func(_ string, args []string) ProcessResult {
		if hasArg(args, "--list-impersonate-targets") {
			return exitWith(2, "")
		}
		if err := os.WriteFile(filepath.Join(dir, "song.mp3"), []byte("a"), 0o644); err != nil {
			t.Error(err)
		}
		return succeed("")
	}}

	path, err := newTestExtractor(r, config.ToolsConfig{}).ExtractAudio(context.Background(), "u", dir, "song")
	if err != nil {
		t.Fatalf("ExtractAudio: %v", err)
	}
	if path != filepath.Join(dir, "song.mp3") {
		t.Errorf("path = %q", path)
	}
	call := r.extractions()[0]
	if !hasArg(call, filepath.Join(dir, "song.%(ext)s")) {
		t.Errorf("output template missing from %v", call)
	}
}

// cancelAwareRunner fails any call made on an ended context.
type cancelAwareRunner struct{ fakeRunner }

func (r *cancelAwareRunner) Run(ctx context.Context, command string, args ...string) ProcessResult {
	if ctx.Err() != nil {
		return ProcessResult{Stderr: ctx.Err().Error()}
	}
	return r.fakeRunner.Run(ctx, command, args...)
}

func TestImpersonationProbeSurvivesCanceledFirstCaller(t *testing.T) {
	r := &cancelAwareRunner{fakeRunner{respond: func(_ string, args []string) ProcessResult {
		return succeed("chrome-131:chrome\n")
	}}}
	e := newTestExtractor(r, config.ToolsConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e.Strategies(ctx)

	got := e.Strategies(context.Background()).Impersonation
	if len(got) != 2 {
		t.Fatalf("impersonation options = %v, want plain and chrome", got)
	}
	if !hasArg(got[1], "--impersonate") {
		t.Errorf("second option = %v, want --impersonate", got[1])
	}
}
