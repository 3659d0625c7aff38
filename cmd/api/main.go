package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"

	"github.com/smallplates/collect/internal/draft"
	collecthandler "github.com/smallplates/collect/internal/http/handlers/collect"
	httpmw "github.com/smallplates/collect/internal/http/middleware"
	"github.com/smallplates/collect/internal/kv"
	"github.com/smallplates/collect/internal/repository"
	"github.com/smallplates/collect/internal/service"
	"github.com/smallplates/collect/internal/session"
	"github.com/smallplates/collect/pkg/config"
	"github.com/smallplates/collect/pkg/database"
	"github.com/smallplates/collect/pkg/events"
	"github.com/smallplates/collect/pkg/logger"
	mw "github.com/smallplates/collect/pkg/middleware"
)

func main() {
	// A .env file is a development convenience; deployments set the
	// environment directly.
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database.URL)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	// Snapshot store: Redis when configured, embedded Badger otherwise.
	var store kv.Store
	if cfg.Redis.URL != "" {
		store, err = kv.NewRedisStore(cfg.Redis.URL, cfg.Redis.Password, cfg.Redis.DB)
	} else {
		store, err = kv.NewBadgerStore(cfg.Collection.BadgerPath)
	}
	if err != nil {
		logger.Error("Failed to open snapshot store", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	// Repositories
	tokenRepo := repository.NewTokenRepository(pool)
	guestRepo := repository.NewGuestRepository(pool)
	recipeRepo := repository.NewRecipeRepository(pool)
	idempotencyRepo := repository.NewIdempotencyRepository(pool)

	// Services
	validator := service.NewTokenValidator(tokenRepo)
	matcher := service.NewGuestMatcher(guestRepo, cfg.Collection.SearchTimeout)
	pipeline := service.NewSubmissionPipeline(guestRepo, recipeRepo, idempotencyRepo, eventBus)
	notifications := service.NewNotificationPreference(guestRepo, recipeRepo, eventBus)

	sessions := session.NewManager(store, cfg.Session.TTL)
	drafts := draft.NewSaver(store, cfg.Collection.DraftTTL, cfg.Collection.AutosaveSettle)

	h := collecthandler.NewHandler(
		validator, matcher, pipeline, notifications,
		sessions, drafts,
		cfg.Session.Secret, cfg.Session.TTL,
	)

	searchLimiter := httpmw.NewRateLimiter(pool, httpmw.RateLimitConfig{
		Requests: 30,
		Window:   time.Minute,
		KeyFunc:  httpmw.SearchRateLimitKeyFunc,
		SkipFunc: func(r *http.Request) bool {
			return r.Method != http.MethodPost || !isSearchPath(r.URL.Path)
		},
	})

	r := chi.NewRouter()

	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("collect"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(searchLimiter.Middleware())

	r.Mount("/collect", h.Routes())

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down collect service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Collect service shutdown error", "error", err)
		}
	}()

	logger.Info("Starting collect service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Collect service error", "error", err)
		os.Exit(1)
	}
}

func isSearchPath(path string) bool {
	return strings.HasSuffix(path, "/search")
}
