package testsupport

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stemdeck/api/internal/config"
)

const JWTSecret = "test-secret"

// DefaultMetadata is what the stub extractor prints for --dump-single-json.
const DefaultMetadata = `{"title":"Song in Am","uploader":"Test Channel","thumbnail":"https://img.example/t.jpg","duration":215,"genre":"Rock"}`

// ConfigOption customizes the generated test configuration and tool stubs.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
	stubs   stubSpec
}

type stubSpec struct {
	metadata       string
	extractStderr  string
	skipAudio      bool
	impersonate    bool
	engine         string
	missingStem    string
	separateStderr string
}

// NewConfig produces a config rooted in a fresh temp directory whose tools
// are shell stubs. By default extraction succeeds and demucs is installed.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tool stubs are shell scripts")
	}

	base := t.TempDir()
	dataDir := filepath.Join(base, "data")
	cfg := &config.Config{
		Server: config.ServerConfig{Port: "0", LogLevel: "error"},
		Storage: config.StorageConfig{
			DataDir:      dataDir,
			UploadsDir:   filepath.Join(dataDir, "uploads"),
			StemsDir:     filepath.Join(dataDir, "stems"),
			DatabasePath: filepath.Join(dataDir, "test.db"),
		},
		JWT:       config.JWTConfig{Secret: JWTSecret, Expiration: 1},
		RateLimit: config.RateLimitConfig{ConvertPerHour: 10000, AuthPerMin: 10000},
		Tools: config.ToolsConfig{
			DemucsModel: "htdemucs",
			Timeout:     30 * time.Second,
		},
		Jobs: config.JobsConfig{Dispatcher: config.DispatcherGoroutine, Concurrency: 1},
	}

	b := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     cfg,
		stubs:   stubSpec{metadata: DefaultMetadata, engine: "demucs"},
	}
	for _, opt := range opts {
		opt(b)
	}
	b.writeStubs()

	if err := cfg.Storage.EnsureDirectories(); err != nil {
		t.Fatalf("create storage dirs: %v", err)
	}
	return cfg
}

// WithMetadata replaces the JSON printed by the stub extractor.
func WithMetadata(raw string) ConfigOption {
	return func(b *configBuilder) { b.stubs.metadata = raw }
}

// WithExtractorFailure makes every extraction attempt exit 1 with stderr.
func WithExtractorFailure(stderr string) ConfigOption {
	return func(b *configBuilder) { b.stubs.extractStderr = stderr }
}

// WithoutAudioOutput makes the audio download exit 0 without writing a file.
func WithoutAudioOutput() ConfigOption {
	return func(b *configBuilder) { b.stubs.skipAudio = true }
}

// WithImpersonation makes the stub extractor list chrome as a target.
func WithImpersonation() ConfigOption {
	return func(b *configBuilder) { b.stubs.impersonate = true }
}

// WithEngine selects which separation module the stub interpreter has:
// "demucs", "spleeter" or "" for none.
func WithEngine(name string) ConfigOption {
	return func(b *configBuilder) { b.stubs.engine = name }
}

// WithMissingStem makes separation succeed without writing one output,
// named by engine file stem such as "bass".
func WithMissingStem(name string) ConfigOption {
	return func(b *configBuilder) { b.stubs.missingStem = name }
}

// WithSeparationFailure makes the engine run exit 1 with stderr.
func WithSeparationFailure(stderr string) ConfigOption {
	return func(b *configBuilder) { b.stubs.separateStderr = stderr }
}

// WithCookiesFile points the extractor at an existing cookies file.
func WithCookiesFile() ConfigOption {
	return func(b *configBuilder) {
		path := filepath.Join(b.baseDir, "cookies.txt")
		if err := os.WriteFile(path, []byte("# Netscape HTTP Cookie File\n"), 0o600); err != nil {
			b.t.Fatalf("write cookies: %v", err)
		}
		b.cfg.Tools.CookiesFile = path
		b.cfg.Tools.CookiesFileRaw = path
	}
}

// CallLog returns the argument lines the stub extractor was invoked with,
// one per call.
func CallLog(t testing.TB, cfg *config.Config) []string {
	t.Helper()
	data, err := os.ReadFile(callLogPath(cfg))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatalf("read call log: %v", err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func callLogPath(cfg *config.Config) string {
	return filepath.Join(filepath.Dir(cfg.Tools.YtDlpPath), "yt-dlp.calls")
}
