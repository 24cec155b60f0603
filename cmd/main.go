package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/civicportal/session-core/internal/config"
	"github.com/civicportal/session-core/internal/fingerprint"
	"github.com/civicportal/session-core/internal/handlers"
	"github.com/civicportal/session-core/internal/logger"
	"github.com/civicportal/session-core/internal/middleware"
	"github.com/civicportal/session-core/internal/repository"
	"github.com/civicportal/session-core/internal/repository/memory"
	redis_repo "github.com/civicportal/session-core/internal/repository/redis"
	sqlite_repo "github.com/civicportal/session-core/internal/repository/sqlite"
	"github.com/civicportal/session-core/internal/router"
	"github.com/civicportal/session-core/internal/server"
	"github.com/civicportal/session-core/internal/service"
	"github.com/civicportal/session-core/internal/store"
)

const (
	appName    = "civicportal"
	appVersion = "1.0.0"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	logger.Init(cfg.App.LogLevel, cfg.App.Env)

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	var storage repository.ScopedStorage
	switch cfg.Store.Backend {
	case config.StoreBackendRedis:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.Store.Redis.Address,
			Password: cfg.Store.Redis.Password,
			DB:       cfg.Store.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatal().Err(err).Str("address", cfg.Store.Redis.Address).Msg("Failed to reach redis")
		}
		storage = redis_repo.NewRedisScopedStorage(redisClient)
	default:
		storage = memory.NewMemoryScopedStorage(clock)
	}

	var profiles repository.ProfileRepository
	if cfg.ProfileDBPath != "" {
		profileRepo, err := sqlite_repo.OpenSQLiteProfileRepository(ctx, cfg.ProfileDBPath)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open profile database")
		}
		defer profileRepo.Close()
		profiles = profileRepo
	} else {
		profiles = memory.NewMemoryProfileRepository()
	}

	app := server.New()

	var authority service.IdentityAuthority
	var sessionMiddleware []echo.MiddlewareFunc
	switch cfg.Identity.Provider {
	case config.IdentityProviderOIDC:
		oauthAuthority, err := service.NewOAuthIdentityAuthorityFromConfig(ctx, cfg.Identity.OIDC)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to set up the OpenID Connect authority")
		}
		authority = oauthAuthority
		router.SetupOAuthRoutes(app, handlers.NewOAuthHandler(oauthAuthority, cfg.App.StateCookieName))
	default:
		localAuthority := service.NewLocalIdentityAuthority(cfg.Identity.Local.JWTSecret, cfg.Identity.Local.TokenTTL, clock)
		authority = localAuthority
		router.SetupLocalAuthRoutes(app, handlers.NewLocalAuthHandler(localAuthority))
		sessionMiddleware = append(sessionMiddleware, middleware.LocalJWT(localAuthority))
	}

	activity := service.NewActivityBus()
	controller := service.NewSessionController(service.SessionControllerDeps{
		Authority:    authority,
		Profiles:     profiles,
		Fingerprints: fingerprint.NewGenerator(fingerprint.NewSystemEnvironment(appName, appVersion)),
		Store:        store.NewSessionStore(storage, clock),
		Tracker:      service.NewActivityTracker(clock, activity),
		Validator:    service.NewSessionValidator(clock, authority),
		Events:       service.NewEventBus(),
		Clock:        clock,
	})
	controller.Start(ctx)

	router.SetupSessionRoutes(app, handlers.NewSessionHandler(controller, activity), sessionMiddleware...)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		log.Info().Str("port", cfg.App.Port).Str("identity", cfg.Identity.Provider).Str("store", cfg.Store.Backend).Msg("Server starting")
		if err := app.Start(":" + cfg.App.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	<-quit
	log.Info().Msg("Shutting down server...")

	controller.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped gracefully.")
}
