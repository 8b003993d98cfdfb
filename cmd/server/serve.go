package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofrs/flock"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/stemdeck/api/internal/auth"
	"github.com/stemdeck/api/internal/client"
	"github.com/stemdeck/api/internal/config"
	"github.com/stemdeck/api/internal/handler"
	"github.com/stemdeck/api/internal/logging"
	"github.com/stemdeck/api/internal/middleware"
	"github.com/stemdeck/api/internal/service"
	"github.com/stemdeck/api/internal/store"
	"github.com/stemdeck/api/internal/worker"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the conversion workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFlag)
		},
	}
}

func runServe(parent context.Context, configFile string) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logging.Setup(cfg.Server.LogLevel, cfg.Server.LogFormat)

	if err := cfg.Storage.EnsureDirectories(); err != nil {
		return err
	}
	lockPath := filepath.Join(cfg.Storage.DataDir, "stemdeck.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("another stemdeck server is using %s", cfg.Storage.DataDir)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			log.WithError(err).Warn("failed to release data dir lock")
		}
	}()

	st, err := store.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	redisOpt := &redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	redisClient := redis.NewClient(redisOpt)
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.WithError(err).Warn("redis not available, rate limiting disabled until it is")
	}

	runner := client.NewProcessRunner(cfg.Tools.Timeout)
	extractor := client.NewExtractor(runner, &cfg.Tools)
	separator := client.NewSeparator(runner, &cfg.Tools)
	transcoder := client.NewTranscoder(runner, &cfg.Tools)

	var mirror *client.ArtifactMirror
	if cfg.R2.AccessKeyID != "" && cfg.R2.SecretAccessKey != "" {
		r2Client, err := client.NewR2Client(ctx, &cfg.R2)
		if err != nil {
			log.WithError(err).Warn("R2 client not initialized, artifacts stay local only")
		} else {
			mirror = client.NewArtifactMirror(r2Client, cfg.Storage)
		}
	}

	conversionWorker := worker.NewConversionWorker(st, extractor, separator, transcoder, mirror, cfg.Storage)

	var (
		dispatcher     service.Dispatcher
		shutdownWorker func(context.Context) error
	)
	switch cfg.Jobs.Dispatcher {
	case config.DispatcherAsynq:
		asynqOpt := asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}
		asynqClient := asynq.NewClient(asynqOpt)
		defer asynqClient.Close()

		srv, mux := worker.NewAsynqServer(asynqOpt, cfg.Jobs.Concurrency, cfg.Server.LogLevel, conversionWorker)
		if err := srv.Start(mux); err != nil {
			return fmt.Errorf("start asynq server: %w", err)
		}
		dispatcher = worker.NewAsynqDispatcher(asynqClient)
		shutdownWorker = func(context.Context) error {
			srv.Shutdown()
			return nil
		}
	default:
		goroutines := worker.NewGoroutineDispatcher(conversionWorker)
		dispatcher = goroutines
		shutdownWorker = goroutines.Shutdown
	}

	var verifier auth.TokenVerifier
	if cfg.Zitadel.Issuer != "" {
		jwksVerifier, err := auth.NewJWKSVerifier(ctx, &cfg.Zitadel)
		if err != nil {
			log.WithError(err).Warn("JWKS verifier not initialized, accepting session tokens only")
		} else {
			verifier = jwksVerifier
		}
	}

	var authenticate fiber.Handler
	if cfg.Gateway.Enabled {
		log.Info("gateway mode enabled, using header-based auth")
		authenticate = middleware.GatewayAuthMiddleware()
	} else {
		authenticate = middleware.NewAuthMiddleware(verifier, cfg.JWT.Secret).Authenticate()
	}

	validate := validator.New()
	routes := &handler.Routes{
		Authenticate: authenticate,
		Limiter:      middleware.NewRateLimiter(redisClient),
		Limits:       cfg.RateLimit,
		Storage:      cfg.Storage,
		Convert:      handler.NewConvertHandler(service.NewConversionService(st, dispatcher), validate),
		Songs:        handler.NewSongHandler(service.NewLibraryService(st, mirror, cfg.Storage), validate),
		Auth:         handler.NewAuthHandler(service.NewAuthService(st, &cfg.JWT), validate),
		Health: handler.NewHealthHandler(redisClient, separator, cfg.Jobs.Dispatcher,
			mirror != nil, verifier != nil || cfg.JWT.Secret != ""),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handler.ErrorHandler,
		BodyLimit:    1 * 1024 * 1024,
	})

	app.Use(recover.New())
	logFormat := "[${time}] ${status} - ${latency} ${method} ${path}\n"
	if strings.EqualFold(cfg.Server.LogLevel, "debug") {
		logFormat = "[${time}] ${status} - ${latency} ${method} ${path} ${queryParams} ${body} ${reqHeaders}\n"
	}
	app.Use(logger.New(logger.Config{
		Format: logFormat,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Join(cfg.Server.FrontendOrigins, ","),
		AllowMethods:     "GET,POST,PUT,PATCH,DELETE,OPTIONS",
		AllowHeaders:     "Origin,Content-Type,Accept,Authorization",
		AllowCredentials: true,
	}))
	routes.Mount(app)

	logStartupReport(ctx, separator, &cfg.Tools, cfg.Jobs.Dispatcher)

	go func() {
		<-ctx.Done()
		log.Info("shutting down server")
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.WithError(err).Error("server shutdown error")
		}
	}()

	addr := ":" + cfg.Server.Port
	log.WithField("addr", addr).Info("server starting")
	listenErr := app.Listen(addr)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := shutdownWorker(shutdownCtx); err != nil {
		log.WithError(err).Warn("conversions still running at exit")
	}
	return listenErr
}

// logStartupReport records which separation engine and credential sources
// the pipeline will use.
func logStartupReport(ctx context.Context, separator *client.Separator, tools *config.ToolsConfig, dispatcher string) {
	engine := "none"
	if selected, err := separator.Select(ctx); err == nil {
		engine = selected.Name
	}
	fields := log.Fields{
		"separation":   engine,
		"python":       tools.PythonPath,
		"dispatcher":   dispatcher,
		"tool_timeout": tools.Timeout.String(),
	}
	switch {
	case tools.CookiesFile != "":
		fields["cookies_file"] = tools.CookiesFile
	case tools.CookiesFileRaw != "":
		fields["cookies_file"] = "missing: " + tools.CookiesFileRaw
	}
	if tools.CookiesFromBrowser != "" {
		fields["cookies_from_browser"] = tools.CookiesFromBrowser
	}
	log.WithFields(fields).Info("pipeline configured")
	if engine == "none" {
		log.Warn("stem separation unavailable: install demucs or spleeter to enable stems")
	}
}
