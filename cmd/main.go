package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shortlink/internal/config"
	"shortlink/internal/database"
	"shortlink/internal/geo"
	"shortlink/internal/handlers"
	"shortlink/internal/middleware"
	"shortlink/internal/services"
	"shortlink/internal/workers"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const clickWorkerCount = 2

func main() {
	cfg := config.Load()

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	db, err := database.InitDB(cfg.DBPath, log)
	if err != nil {
		log.Fatal("failed to initialize database", zap.Error(err))
	}
	defer db.Close()

	locator := geo.Open(cfg.GeoIPDBPath, log)
	defer locator.Close()

	urlService := services.NewURLService(db, log)
	analyticsService := services.NewAnalyticsService(db)

	recorder := workers.NewClickRecorder(cfg.ClickBufferSize, analyticsService, urlService, log)
	recorder.Start(clickWorkerCount)

	urlHandler := handlers.NewURLHandler(urlService, analyticsService, recorder, locator, cfg, log)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(log))
	router.Use(middleware.SecurityMiddleware)
	router.Use(middleware.CORSMiddleware)

	apiLimiter := middleware.NewRateLimiter(cfg.APIRateLimitMax, cfg.RateLimitWindow)
	shortenLimiter := middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitWindow)

	api := router.PathPrefix("/api").Subrouter()
	api.Use(apiLimiter.Middleware)
	api.Handle("/shorten", shortenLimiter.Middleware(http.HandlerFunc(urlHandler.ShortenURL))).Methods("POST")
	api.HandleFunc("/urls", urlHandler.ListURLs).Methods("GET")
	api.HandleFunc("/urls/{shortCode}", urlHandler.DeleteURL).Methods("DELETE")
	api.HandleFunc("/analytics/{shortCode}", urlHandler.GetAnalytics).Methods("GET")
	api.HandleFunc("/qr/{shortCode}", urlHandler.GenerateQRCode).Methods("GET")

	router.HandleFunc("/health", urlHandler.Health).Methods("GET")
	router.HandleFunc("/{shortCode}", urlHandler.Redirect).Methods("GET")

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		log.Info("server listening",
			zap.String("port", cfg.Port),
			zap.String("base_url", cfg.BaseURL),
			zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("shutdown error", zap.Error(err))
	}

	// Drain queued clicks before closing the database.
	recorder.Stop()
	log.Info("server stopped")
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsDevelopment() {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
