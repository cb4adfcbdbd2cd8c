package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	app "github.com/kode4food/flowgate"
	"github.com/kode4food/flowgate/internal/archive"
	"github.com/kode4food/flowgate/internal/callback"
	"github.com/kode4food/flowgate/internal/codec"
	"github.com/kode4food/flowgate/internal/config"
	"github.com/kode4food/flowgate/internal/exchange"
	"github.com/kode4food/flowgate/internal/server"
	"github.com/kode4food/flowgate/internal/session"
	"github.com/kode4food/flowgate/internal/store"
	"github.com/kode4food/flowgate/internal/tokens"
	"github.com/kode4food/flowgate/internal/webhook"
	"github.com/kode4food/flowgate/pkg/log"
)

type flowgate struct {
	cfg        *config.Config
	store      *store.Store
	redis      *redis.Client
	tokens     tokens.Cache
	archive    *archive.BlobArchive
	codec      *codec.Codec
	sweeper    *session.Sweeper
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

const dotEnvFile = ".env"

var (
	ErrLoadCodec     = errors.New("failed to load private key")
	ErrOpenStore     = errors.New("failed to open store")
	ErrLoadFlows     = errors.New("failed to load flows")
	ErrConnectRedis  = errors.New("failed to connect to redis")
	ErrCreateArchive = errors.New("failed to create webhook archive")
)

func main() {
	if err := config.LoadDotEnv(dotEnvFile); err != nil {
		slog.Error("Invalid .env file", log.Error(err))
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &flowgate{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *flowgate) run() error {
	ctx := context.Background()

	if err := s.initializeCodec(); err != nil {
		return err
	}
	if err := s.initializeStore(ctx); err != nil {
		return err
	}
	if err := s.initializeTokens(ctx); err != nil {
		s.closeResources()
		return err
	}
	if err := s.initializeArchive(ctx); err != nil {
		s.closeResources()
		return err
	}

	s.sweeper = session.NewSweeper(
		s.store.Sessions, s.cfg.SweepInterval, s.cfg.SessionExpiry,
	)
	s.sweeper.Start()
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *flowgate) setupLogging() {
	level, ok := log.ParseLevel(s.cfg.LogLevel)
	if !ok {
		level = slog.LevelInfo
	}

	logger := log.NewWithLevel(app.Name, s.cfg.Env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	if s.cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	slog.Info("Flowgate starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort),
		slog.Bool("postgres", s.cfg.DatabaseURL != ""),
		slog.String("redis_addr", s.cfg.Redis.Addr),
		slog.String("archive_bucket", s.cfg.Archive.BucketURL),
		slog.String("default_flow", s.cfg.DefaultFlowName),
		slog.Bool("callback_configured", s.cfg.Callback.URL != ""),
		slog.Int("callback_max_retries", s.cfg.Callback.MaxRetries))
}

func (s *flowgate) initializeCodec() error {
	pemData, err := s.cfg.PrivateKeyPEM()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadCodec, err)
	}
	s.codec, err = codec.NewFromPEM(pemData, s.cfg.Passphrase)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrLoadCodec, err)
	}
	return nil
}

func (s *flowgate) initializeStore(ctx context.Context) error {
	if s.cfg.DatabaseURL == "" {
		slog.Warn("DATABASE_URL not set, using in-memory store")
		s.store = store.NewMemory()
	} else {
		st, err := store.NewPostgres(ctx, s.cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrOpenStore, err)
		}
		s.store = st
	}

	if s.cfg.FlowsFile == "" {
		return nil
	}
	n, err := store.LoadFlowsFile(ctx, s.cfg.FlowsFile, s.store.Flows)
	if err != nil {
		_ = s.store.Close()
		return fmt.Errorf("%w: %w", ErrLoadFlows, err)
	}
	slog.Info("Flows loaded",
		slog.String("file", s.cfg.FlowsFile),
		slog.Int("count", n))
	return nil
}

func (s *flowgate) initializeTokens(ctx context.Context) error {
	if s.cfg.Redis.Addr == "" {
		s.tokens = tokens.NewMemoryCache(s.cfg.TokenCacheTTL)
		return nil
	}

	s.redis = redis.NewClient(&redis.Options{
		Addr:     s.cfg.Redis.Addr,
		Password: s.cfg.Redis.Password,
		DB:       s.cfg.Redis.DB,
	})
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectRedis, err)
	}
	s.tokens = tokens.NewRedisCache(
		s.redis, s.cfg.Redis.Prefix, s.cfg.TokenCacheTTL,
	)
	return nil
}

func (s *flowgate) initializeArchive(ctx context.Context) error {
	if s.cfg.Archive.BucketURL == "" {
		return nil
	}
	a, err := archive.NewBlobArchive(
		ctx, s.cfg.Archive.BucketURL, s.cfg.Archive.Prefix,
	)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCreateArchive, err)
	}
	s.archive = a
	return nil
}

func (s *flowgate) startServer() {
	handler := exchange.NewHandler(exchange.Dependencies{
		Codec:    s.codec,
		Flows:    s.store.Flows,
		Sessions: s.store.Sessions,
		Tokens:   s.tokens,
	}, s.cfg.DefaultFlowName)

	deps := webhook.Dependencies{
		Sessions:  s.store.Sessions,
		Responses: s.store.Responses,
		Events:    s.store.Events,
		Dispatcher: callback.NewDispatcher(
			s.cfg.Callback.Timeout, s.cfg.Callback.Backoff,
		),
	}
	if s.archive != nil {
		deps.Archiver = s.archive
	}
	pipeline := webhook.NewPipeline(deps, webhook.Config{
		AppSecret:   s.cfg.AppSecret,
		CallbackURL: s.cfg.Callback.URL,
		MaxRetries:  s.cfg.Callback.MaxRetries,
	})

	s.apiServer = server.NewServer(s.cfg, handler, pipeline)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", s.cfg.APIHost, s.cfg.APIPort),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
		}
	}()
}

func (s *flowgate) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}
	if err := s.apiServer.Wait(ctx); err != nil {
		slog.Error("Webhook processing still in flight", log.Error(err))
	}

	s.sweeper.Stop()
	s.closeResources()

	slog.Info("Server exited")
}

func (s *flowgate) closeResources() {
	if s.archive != nil {
		_ = s.archive.Close()
	}
	if s.redis != nil {
		_ = s.redis.Close()
	}
	if err := s.store.Close(); err != nil {
		slog.Error("Store shutdown failed", log.Error(err))
	}
}
