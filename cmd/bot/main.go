// Command bot runs the lead-magnet Telegram bot: update ingestion (long
// polling or webhook), the subscription-gated reward flow, the admin publish
// wizard, and the HTTP server carrying the webhook sink, QR renderer, and the
// read-only operator API.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/tbourn/go-magnet-bot/docs"
	"github.com/tbourn/go-magnet-bot/internal/bot"
	"github.com/tbourn/go-magnet-bot/internal/config"
	httpapi "github.com/tbourn/go-magnet-bot/internal/http"
	"github.com/tbourn/go-magnet-bot/internal/observability"
	"github.com/tbourn/go-magnet-bot/internal/repo"
	"github.com/tbourn/go-magnet-bot/internal/services"
	"github.com/tbourn/go-magnet-bot/internal/session"
	"github.com/tbourn/go-magnet-bot/internal/sysutil"
	"github.com/tbourn/go-magnet-bot/internal/telegram"
)

// version is stamped via -ldflags at release build time.
var version = "dev"

// webhookAllowedUpdates mirrors what the dispatcher handles; everything else
// is filtered out server-side by Telegram.
var webhookAllowedUpdates = []string{"message", "callback_query"}

// @title           Lead Magnet Bot API
// @version         1.0
// @description     Read-only operator API over the channel button registry and click ledger.
//
// @securityDefinitions.apikey BearerAuth
// @in                         header
// @name                       Authorization
// @description                Operator token. Send as: Authorization: Bearer <token>
//
// @BasePath /api/v1
func main() {
	// .env is optional; deployments set real environment variables.
	_ = godotenv.Load()

	cfg := config.MustLoad()

	sysutil.SetLogLevel(cfg.LogLevel)
	if cfg.LogPretty {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	logger := log.With().Str("component", "main").Logger()
	logger.Info().Str("version", version).Str("mode", cfg.Telegram.Mode).Msg("starting lead-magnet bot")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Tracing
	shutdownOTel, err := observability.SetupOTel(ctx, cfg.OTEL, version)
	if err != nil {
		logger.Fatal().Err(err).Msg("otel setup failed")
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(sctx); err != nil {
			logger.Warn().Err(err).Msg("otel shutdown failed")
		}
	}()

	// Storage
	db, err := openDB(cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("driver", cfg.DBDriver).Msg("database open failed")
	}
	if err := repo.EnableTracing(db); err != nil {
		logger.Warn().Err(err).Msg("gorm tracing setup failed")
	}
	if err := repo.AutoMigrate(db); err != nil {
		logger.Fatal().Err(err).Msg("migration failed")
	}

	// Telegram client; getMe validates the token and yields the username deep
	// links are built from.
	client := telegram.NewClient(cfg.Telegram.BotToken,
		telegram.WithTimeout(cfg.Telegram.RequestTimeout),
		telegram.WithSendRate(cfg.Telegram.SendRPS, cfg.Telegram.SendBurst),
	)
	me, err := client.GetMe(ctx)
	if err != nil {
		logger.Fatal().Err(err).Msg("telegram token rejected")
	}
	logger.Info().Str("bot_username", me.Username).Msg("authorized with telegram")

	// Staged-reward session store
	sessions, closeSessions := openSessions(cfg, logger)
	defer closeSessions()

	// Services and dispatcher
	subs := services.NewSubscriptionService(db, client, cfg.Telegram.GateChannel,
		log.With().Str("component", "subscriptions").Logger())
	redeem := services.NewRedemptionService(db, subs,
		log.With().Str("component", "redemption").Logger())
	publish := services.NewPublishService(db, client, me.Username,
		log.With().Str("component", "publish").Logger())
	stats := services.NewStatsService(db)

	disp := bot.NewDispatcher(db, client, redeem, subs, publish, stats, sessions,
		cfg.IsAdmin, log.With().Str("component", "bot").Logger())
	disp.DedupTTL = cfg.UpdateDedupTTL

	// HTTP transport
	docs.SwaggerInfo.BasePath = cfg.APIBasePath
	gin.SetMode(cfg.GinMode)
	r := gin.New()
	httpapi.RegisterRoutes(r, db, disp, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}

	// Update ingestion
	switch cfg.Telegram.Mode {
	case config.ModeWebhook:
		url := cfg.Telegram.PublicURL + "/telegram/webhook"
		if err := client.SetWebhook(ctx, url, cfg.Telegram.WebhookSecret, webhookAllowedUpdates); err != nil {
			logger.Fatal().Err(err).Str("url", url).Msg("webhook registration failed")
		}
		logger.Info().Str("url", url).Msg("webhook registered")
	default:
		p := bot.NewPoller(client, disp, log.With().Str("component", "poller").Logger())
		p.PollTimeout = cfg.Telegram.PollTimeout
		go func() {
			if err := p.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("poller stopped")
			}
		}()
	}

	go func() {
		logger.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("http shutdown failed")
	}
	logger.Info().Msg("stopped")
}

// openDB selects the storage backend from configuration. SQLite is the
// single-node default; Postgres serves multi-replica deployments.
func openDB(cfg config.Config) (*gorm.DB, error) {
	if cfg.DBDriver == "postgres" {
		return repo.OpenPostgres(cfg.DatabaseURL)
	}
	return repo.OpenSQLite(cfg.DBPath)
}

// openSessions picks the staged-reward store: Redis when an address is
// configured, otherwise the in-process map. The returned closer is a no-op
// for the memory store.
func openSessions(cfg config.Config, logger zerolog.Logger) (session.Store, func()) {
	if cfg.RedisAddr == "" {
		return session.NewMemoryStore(cfg.SessionTTL), func() {}
	}
	store, err := session.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.SessionTTL)
	if err != nil {
		logger.Fatal().Err(err).Str("addr", cfg.RedisAddr).Msg("redis connect failed")
	}
	logger.Info().Str("addr", cfg.RedisAddr).Msg("redis session store connected")
	return store, func() { _ = store.Close() }
}
