// api/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"shoplens/api/config"
	"shoplens/api/handlers"
	"shoplens/api/metrics"
	"shoplens/api/middleware"
	"shoplens/api/store"
)

func main() {
	// Load .env file at the very start
	if err := godotenv.Load(); err != nil {
		log.Printf("No .env file found or error loading .env: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	m := metrics.NewMetrics("shoplens")
	datasetStore := store.NewDatasetStore()
	datasetHandlers := handlers.NewDatasetHandlers(datasetStore, logger, m, cfg.Upload.MaxBytes)

	r := gin.New()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.CORSMiddleware(cfg.CORS.Origin))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api")
	{
		uploadHandlers := []gin.HandlerFunc{datasetHandlers.Upload}
		if cfg.Upload.RateLimitEnabled {
			uploadHandlers = append(
				[]gin.HandlerFunc{middleware.UploadRateLimit(cfg.Upload.RPS, cfg.Upload.Burst, logger)},
				uploadHandlers...,
			)
		}
		api.POST("/datasets", uploadHandlers...)
		api.GET("/datasets", datasetHandlers.List)
		api.DELETE("/datasets/:id", datasetHandlers.Delete)

		dataset := api.Group("/datasets/:id")
		{
			dataset.GET("/summary", datasetHandlers.Summary)
			dataset.GET("/monthly-totals", datasetHandlers.MonthlyTotals)
			dataset.GET("/top-categories", datasetHandlers.TopCategories)
			dataset.GET("/at-risk", datasetHandlers.AtRiskProducts)
			dataset.GET("/daily-purchases", datasetHandlers.DailyPurchases)
			dataset.GET("/users/:userID/daily-purchases", datasetHandlers.UserDailyPurchases)
			dataset.GET("/categories", datasetHandlers.MainCategories)
			dataset.GET("/crosstab", datasetHandlers.CrossTab)
		}
	}

	srv := &http.Server{
		Addr:    cfg.Server.Addr,
		Handler: r,
	}

	go func() {
		logger.Info("analytics API server starting", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server exiting")
}
