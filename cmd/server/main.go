package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dkeye/Huddle/internal/adapters/auth"
	"github.com/dkeye/Huddle/internal/adapters/crypto"
	"github.com/dkeye/Huddle/internal/adapters/events"
	router "github.com/dkeye/Huddle/internal/adapters/http"
	"github.com/dkeye/Huddle/internal/adapters/presence"
	"github.com/dkeye/Huddle/internal/adapters/rtc"
	wssignal "github.com/dkeye/Huddle/internal/adapters/signal"
	"github.com/dkeye/Huddle/internal/adapters/storage"
	"github.com/dkeye/Huddle/internal/app"
	"github.com/dkeye/Huddle/internal/app/orch"
	"github.com/dkeye/Huddle/internal/config"
	"github.com/dkeye/Huddle/internal/core"
)

func setupLogger(cfg config.LogConfig, mode string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var console io.Writer = os.Stderr
	if mode == "debug" {
		console = zerolog.ConsoleWriter{Out: os.Stderr}
	}
	if cfg.File == "" {
		log.Logger = zerolog.New(console).With().Timestamp().Logger()
		return
	}
	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   true,
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(console, file)).With().Timestamp().Logger()
}

func contentCipher(cfg config.CryptoConfig) (storage.Cipher, error) {
	if cfg.ContentKey == "" {
		log.Warn().Str("module", "main").Msg("crypto.content_key is empty, chat content stored unencrypted")
		return crypto.Plaintext{}, nil
	}
	return crypto.NewContentCipherFromBase64(cfg.ContentKey)
}

func presenceStore(ctx context.Context, cfg config.RedisConfig) (core.PresenceStore, *redis.Client, error) {
	if !cfg.Enabled {
		return app.NewMemoryPresence(), nil, nil
	}
	client, err := presence.Dial(ctx, cfg.URL)
	if err != nil {
		return nil, nil, err
	}
	return presence.NewRedis(client, cfg.Prefix), client, nil
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// early console logger so config.Load can report
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	setupLogger(cfg.Log, cfg.Mode)

	db, err := storage.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer func() { _ = storage.Close(db) }()

	cipher, err := contentCipher(cfg.Crypto)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid content key")
	}

	pres, redisClient, err := presenceStore(ctx, cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to redis")
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
	}

	var publisher core.MessagePublisher
	if cfg.NATS.Enabled {
		p, err := events.Connect(cfg.NATS.URL, cfg.NATS.Subject)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to nats")
		}
		defer p.Close()
		publisher = p
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	var policy app.Policy = app.SimplePolicy{}
	if !cfg.Relay.KickSlow {
		policy = app.TolerantPolicy{}
	}

	directory := storage.NewDirectory(db)
	hub := app.NewHub()
	ledger := storage.NewLedger(db)
	engine := orch.New(orch.Deps{
		Registry:        app.NewRegistry(),
		Transport:       hub,
		Presence:        pres,
		Ledger:          ledger,
		Messages:        storage.NewMessages(db, cipher),
		Users:           directory,
		Rooms:           directory,
		Publisher:       publisher,
		Validator:       rtc.Validator{},
		Policy:          policy,
		Limiter:         app.NewRateLimiter(cfg.Relay.ChatRateLimit, cfg.Relay.ChatRateWindow),
		Metrics:         app.NewMetrics(promReg),
		Log:             log.Logger,
		DuplicatePolicy: orch.DuplicatePolicy(cfg.Relay.DuplicatePolicy),
		StorageTimeout:  cfg.Relay.StorageTimeout,
		MaxMessageLen:   cfg.Relay.MaxMessageLen,
	})

	ws := wssignal.NewSignalWSController(engine, wssignal.Options{
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendBuffer: cfg.SendBuffer,
	})

	r := router.SetupRouter(ctx, router.Deps{
		Config:   cfg,
		Members:  ledger,
		Orch:     engine,
		Signal:   ws,
		Auth:     auth.NewManager(cfg.Auth.Secret, cfg.Auth.Issuer, cfg.Auth.TokenTTL),
		Gatherer: promReg,
	})
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Huddle relay started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	// hijacked websocket connections are not covered by Shutdown; ctx cancellation
	// stops their pumps and each one runs its disconnect cleanup
	done := make(chan struct{})
	go func() {
		ws.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		log.Warn().Msg("timed out waiting for connections to drain")
	}
	log.Info().Msg("Server exited gracefully")
}
