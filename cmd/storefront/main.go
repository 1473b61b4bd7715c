package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/vasiliy-maslov/storefront/internal/auth"
	"github.com/vasiliy-maslov/storefront/internal/cache"
	"github.com/vasiliy-maslov/storefront/internal/cart"
	"github.com/vasiliy-maslov/storefront/internal/catalog"
	"github.com/vasiliy-maslov/storefront/internal/checkout"
	"github.com/vasiliy-maslov/storefront/internal/config"
	"github.com/vasiliy-maslov/storefront/internal/db"
	storefrontHttp "github.com/vasiliy-maslov/storefront/internal/handler/http"
	"github.com/vasiliy-maslov/storefront/internal/media"
	"github.com/vasiliy-maslov/storefront/internal/notify"
	"github.com/vasiliy-maslov/storefront/internal/order"
	"github.com/vasiliy-maslov/storefront/internal/payment"
	"github.com/vasiliy-maslov/storefront/internal/payment/khalti"
	"github.com/vasiliy-maslov/storefront/internal/review"
	"github.com/vasiliy-maslov/storefront/internal/user"
)

func setupLogger(cfg *config.Config) {
	level, err := zerolog.ParseLevel(cfg.App.LogLevel)
	if err != nil || cfg.App.LogLevel == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
}

func main() {
	cfg, err := config.NewConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	setupLogger(cfg)
	log.Info().Str("env", cfg.App.Env).Msg("Storefront starting...")

	ctx := context.Background()

	pg, err := db.New(ctx, cfg.Postgres)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pg.Close()

	var productCache catalog.Cache
	if redisClient := cache.NewRedis(ctx, cfg.Redis); redisClient != nil {
		defer redisClient.Close()
		productCache = cache.NewProductCache(redisClient)
	}

	store := media.NewStore(cfg.Media)
	if _, err := store.EnsureStaticQR(cfg.App.Name + " checkout payment"); err != nil {
		log.Error().Err(err).Msg("Failed to prepare static payment QR code")
	}

	mailer := notify.New(cfg.SMTP)
	tokens := auth.NewManager(cfg.Auth)

	catalogSvc := catalog.NewService(catalog.NewRepository(pg.SQLX()), productCache, cfg.Redis.CacheTTL)

	cartRepo := cart.NewRepository(pg.Pool)
	cartSvc := cart.NewService(cartRepo)

	orderRepo := order.NewRepository(pg.Pool)
	orderSvc := order.NewService(orderRepo, mailer)

	checkoutSvc := checkout.NewService(cartSvc, orderRepo, checkout.NewPostgresUnitOfWork(pg.Pool), store)
	verifier := payment.NewVerifier(khalti.NewClient(cfg.Khalti), cartSvc, checkoutSvc)

	userSvc := user.NewService(user.NewRepository(pg.Pool))
	reviewSvc := review.NewService(review.NewRepository(pg.Pool), catalogSvc, orderRepo)

	secureCookies := !cfg.IsDevelopment()
	router := storefrontHttp.NewRouter(tokens, cfg.Media.URL, cfg.Media.Root, secureCookies,
		storefrontHttp.NewAccountHandler(userSvc, orderSvc, reviewSvc, tokens, secureCookies),
		storefrontHttp.NewShopHandler(catalogSvc, reviewSvc),
		storefrontHttp.NewCartHandler(cartSvc),
		storefrontHttp.NewCheckoutHandler(checkoutSvc, verifier),
		storefrontHttp.NewAdminHandler(orderSvc),
	)

	server := &http.Server{
		Addr:         ":" + cfg.App.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.App.Port).Msg("Starting HTTP server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	stopCh := make(chan os.Signal, 1)
	signal.Notify(stopCh, syscall.SIGINT, syscall.SIGTERM)
	<-stopCh
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown failed")
	}
	log.Info().Msg("Storefront stopped gracefully")
}
