package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Tools     ToolsConfig
	Jobs      JobsConfig
	R2        R2Config
	Zitadel   ZitadelConfig
	Gateway   GatewayConfig
}

type ServerConfig struct {
	Port            string
	Env             string
	LogLevel        string
	LogFormat       string
	FrontendOrigins []string
}

// StorageConfig holds the on-disk layout. UploadsDir and StemsDir are served
// publicly under /uploads and /stems.
type StorageConfig struct {
	DataDir      string
	UploadsDir   string
	StemsDir     string
	DatabasePath string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	ConvertPerHour int
	AuthPerMin     int
}

// ToolsConfig is resolved once at startup. Nothing below the config layer
// reads tool locations or credential sources from the environment.
type ToolsConfig struct {
	YtDlpPath          string
	FFmpegPath         string
	PythonPath         string
	DemucsModel        string
	CookiesFile        string
	CookiesFileRaw     string // as configured, before the existence check
	CookiesFromBrowser string
	Timeout            time.Duration // per tool invocation; 0 disables
}

type JobsConfig struct {
	Dispatcher  string // "goroutine" or "asynq"
	Concurrency int
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type ZitadelConfig struct {
	Domain   string
	ClientID string
	Issuer   string
}

type GatewayConfig struct {
	Enabled bool
}

const (
	DispatcherGoroutine = "goroutine"
	DispatcherAsynq     = "asynq"
)

// Load reads configuration from an optional config file and the environment.
// An empty configFile searches ./config.yaml and ./config/config.yaml.
func Load(configFile string) (*Config, error) {
	readSecret("JWT_SECRET")
	readSecret("REDIS_PASSWORD")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "PORT", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("server.log_format", "LOG_FORMAT")
	_ = v.BindEnv("server.frontend_origins", "FRONTEND_ORIGINS")
	_ = v.BindEnv("storage.data_dir", "DATA_DIR")
	_ = v.BindEnv("storage.uploads_dir", "UPLOADS_DIR")
	_ = v.BindEnv("storage.stems_dir", "STEMS_DIR")
	_ = v.BindEnv("storage.database_path", "DATABASE_PATH")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("jwt.secret", "JWT_SECRET")
	_ = v.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = v.BindEnv("ratelimit.convert_per_hour", "RATELIMIT_CONVERT_PER_HOUR")
	_ = v.BindEnv("ratelimit.auth_per_min", "RATELIMIT_AUTH_PER_MIN")
	_ = v.BindEnv("tools.ytdlp_path", "YTDLP_PATH")
	_ = v.BindEnv("tools.ffmpeg_path", "FFMPEG_PATH")
	_ = v.BindEnv("tools.python_path", "PYTHON_CMD")
	_ = v.BindEnv("tools.demucs_model", "DEMUCS_MODEL")
	_ = v.BindEnv("tools.cookies_file", "YTDLP_COOKIES_FILE")
	_ = v.BindEnv("tools.cookies_from_browser", "YTDLP_COOKIES_FROM_BROWSER")
	_ = v.BindEnv("tools.timeout", "TOOL_TIMEOUT")
	_ = v.BindEnv("jobs.dispatcher", "JOBS_DISPATCHER")
	_ = v.BindEnv("jobs.concurrency", "JOBS_CONCURRENCY")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("zitadel.domain", "ZITADEL_DOMAIN")
	_ = v.BindEnv("zitadel.client_id", "ZITADEL_CLIENT_ID")
	_ = v.BindEnv("zitadel.issuer", "ZITADEL_ISSUER")
	_ = v.BindEnv("gateway.enabled", "GATEWAY_ENABLED")

	v.SetDefault("server.port", "3001")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "text")
	v.SetDefault("server.frontend_origins", "http://localhost:5173,http://localhost:4173,http://localhost:3000")
	v.SetDefault("storage.data_dir", "data")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "change-me-in-production")
	v.SetDefault("jwt.expiration", 24)
	v.SetDefault("ratelimit.convert_per_hour", 20)
	v.SetDefault("ratelimit.auth_per_min", 10)
	v.SetDefault("tools.ytdlp_path", "yt-dlp")
	v.SetDefault("tools.ffmpeg_path", "ffmpeg")
	v.SetDefault("tools.demucs_model", "htdemucs")
	v.SetDefault("tools.timeout", "30m")
	v.SetDefault("jobs.dispatcher", DispatcherGoroutine)
	v.SetDefault("jobs.concurrency", 4)
	v.SetDefault("gateway.enabled", false)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	dataDir := v.GetString("storage.data_dir")
	storage := StorageConfig{
		DataDir:      dataDir,
		UploadsDir:   orDefault(v.GetString("storage.uploads_dir"), filepath.Join(dataDir, "uploads")),
		StemsDir:     orDefault(v.GetString("storage.stems_dir"), filepath.Join(dataDir, "stems")),
		DatabasePath: orDefault(v.GetString("storage.database_path"), filepath.Join(dataDir, "stemdeck.db")),
	}

	dispatcher := strings.ToLower(strings.TrimSpace(v.GetString("jobs.dispatcher")))
	if dispatcher != DispatcherGoroutine && dispatcher != DispatcherAsynq {
		return nil, fmt.Errorf("jobs.dispatcher must be %q or %q, got %q", DispatcherGoroutine, DispatcherAsynq, dispatcher)
	}

	cookiesRaw := strings.TrimSpace(v.GetString("tools.cookies_file"))
	home, _ := os.UserHomeDir()

	cfg := &Config{
		Server: ServerConfig{
			Port:            v.GetString("server.port"),
			Env:             v.GetString("server.env"),
			LogLevel:        v.GetString("server.log_level"),
			LogFormat:       v.GetString("server.log_format"),
			FrontendOrigins: splitCSV(v.GetString("server.frontend_origins")),
		},
		Storage: storage,
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     v.GetString("jwt.secret"),
			Expiration: v.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			ConvertPerHour: v.GetInt("ratelimit.convert_per_hour"),
			AuthPerMin:     v.GetInt("ratelimit.auth_per_min"),
		},
		Tools: ToolsConfig{
			YtDlpPath:          v.GetString("tools.ytdlp_path"),
			FFmpegPath:         v.GetString("tools.ffmpeg_path"),
			PythonPath:         ResolvePython(v.GetString("tools.python_path"), dataDir),
			DemucsModel:        v.GetString("tools.demucs_model"),
			CookiesFile:        ResolveCookiesFile(cookiesRaw, home),
			CookiesFileRaw:     cookiesRaw,
			CookiesFromBrowser: NormalizeBrowser(v.GetString("tools.cookies_from_browser")),
			Timeout:            v.GetDuration("tools.timeout"),
		},
		Jobs: JobsConfig{
			Dispatcher:  dispatcher,
			Concurrency: v.GetInt("jobs.concurrency"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
		},
		Zitadel: ZitadelConfig{
			Domain:   v.GetString("zitadel.domain"),
			ClientID: v.GetString("zitadel.client_id"),
			Issuer:   v.GetString("zitadel.issuer"),
		},
		Gateway: GatewayConfig{
			Enabled: v.GetBool("gateway.enabled"),
		},
	}

	return cfg, nil
}

// EnsureDirectories creates the data, uploads and stems roots.
func (s StorageConfig) EnsureDirectories() error {
	for _, dir := range []string{s.DataDir, s.UploadsDir, s.StemsDir, filepath.Dir(s.DatabasePath)} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}

// ResolvePython prefers an explicit interpreter, then the bundled
// venv_spleeter interpreter under dataDir, then python3 from PATH.
func ResolvePython(explicit, dataDir string) string {
	if p := strings.TrimSpace(explicit); p != "" {
		return p
	}
	venv := filepath.Join(dataDir, "venv_spleeter", "bin", "python")
	if fileExists(venv) {
		return venv
	}
	return "python3"
}

// ResolveCookiesFile returns the cookies.txt to hand to yt-dlp, or "".
// A configured path wins but only if it exists; otherwise the usual browser
// export locations under ~/Downloads are tried.
func ResolveCookiesFile(configured, home string) string {
	if configured != "" {
		if fileExists(configured) {
			return configured
		}
		return ""
	}
	if home == "" {
		return ""
	}
	candidates := []string{
		filepath.Join(home, "Downloads", "youtube_cookies.txt"),
		filepath.Join(home, "Downloads", "cookies.txt"),
	}
	for _, candidate := range candidates {
		if fileExists(candidate) {
			return candidate
		}
	}
	return ""
}

var browserPrefix = regexp.MustCompile(`(?i)^browser[-:]`)

// NormalizeBrowser strips a leading "browser-" or "browser:" so both
// "browser:firefox" and "firefox" reach yt-dlp as "firefox".
func NormalizeBrowser(raw string) string {
	return strings.TrimSpace(browserPrefix.ReplaceAllString(strings.TrimSpace(raw), ""))
}

func splitCSV(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

const (
	UploadsRoute = "/uploads"
	StemsRoute   = "/stems"
)

// UploadPath returns the public path for a file in UploadsDir.
func (s StorageConfig) UploadPath(name string) string {
	return UploadsRoute + "/" + name
}

// StemPath returns the public path for a file in StemsDir.
func (s StorageConfig) StemPath(name string) string {
	return StemsRoute + "/" + name
}

// Resolve maps a public path back to its location on disk. Paths outside the
// two public roots are returned unchanged.
func (s StorageConfig) Resolve(publicPath string) string {
	if rest, ok := strings.CutPrefix(publicPath, UploadsRoute+"/"); ok {
		return filepath.Join(s.UploadsDir, filepath.Base(rest))
	}
	if rest, ok := strings.CutPrefix(publicPath, StemsRoute+"/"); ok {
		return filepath.Join(s.StemsDir, filepath.Base(rest))
	}
	return publicPath
}

// StemsTempDir is where separation engines write before files are moved
// into StemsDir.
func (s StorageConfig) StemsTempDir() string {
	return filepath.Join(s.StemsDir, ".tmp")
}
