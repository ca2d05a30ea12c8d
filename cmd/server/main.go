package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tipster-dev/jackpot-sim/internal/api/handlers"
	"github.com/tipster-dev/jackpot-sim/internal/cache"
	"github.com/tipster-dev/jackpot-sim/internal/config"
	"github.com/tipster-dev/jackpot-sim/internal/features"
	"github.com/tipster-dev/jackpot-sim/internal/ingest"
	"github.com/tipster-dev/jackpot-sim/internal/leagues"
	"github.com/tipster-dev/jackpot-sim/internal/models"
	"github.com/tipster-dev/jackpot-sim/internal/modelstore"
	"github.com/tipster-dev/jackpot-sim/internal/pipeline"
	"github.com/tipster-dev/jackpot-sim/internal/probability"
	"github.com/tipster-dev/jackpot-sim/internal/resolver"
	"github.com/tipster-dev/jackpot-sim/internal/scheduler"
	"github.com/tipster-dev/jackpot-sim/internal/tickets"
	"github.com/tipster-dev/jackpot-sim/internal/training"
	"github.com/tipster-dev/jackpot-sim/internal/websocket"
	"github.com/tipster-dev/jackpot-sim/pkg/database"
	"github.com/tipster-dev/jackpot-sim/pkg/logger"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	log := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	logger.WithService("jackpot-sim").WithFields(logrus.Fields{
		"environment": cfg.Env,
		"port":        cfg.Port,
	}).Info("Starting jackpot simulation service")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		log.Fatalf("Failed to migrate schema: %v", err)
	}

	// Redis is optional: the feature store and probability cache fall
	// back to the database when it is down.
	var redisClient *redis.Client
	if opt, err := redis.ParseURL(cfg.RedisURL); err == nil {
		redisClient = redis.NewClient(opt)
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Warn("Redis unavailable, running without cache")
		}
		defer redisClient.Close()
	} else {
		log.WithError(err).Warn("Invalid Redis URL, running without cache")
	}

	featureStore := features.NewStore(redisClient, db, cfg.FeatureTTL, log)
	modelStore := modelstore.NewStore(db, log)
	probCache := cache.NewProbabilityCache(redisClient, log)
	teamResolver := resolver.NewResolver(db, log)

	sourceClient := ingest.NewSourceClient(ingest.SourceOptions{
		BaseURL:    cfg.IngestBaseURL,
		Timeout:    cfg.IngestHTTPTimeout,
		RequestGap: cfg.IngestRequestGap,
		VerifySSL:  cfg.VerifySSL,
		Threshold:  cfg.CircuitBreakerThreshold,
	}, log)
	ingestor := ingest.NewIngestor(db, teamResolver, sourceClient, cfg.IngestLeagueBudget, log)

	trainer := training.NewService(db, modelStore, featureStore, log)
	probPipeline := probability.NewPipeline(db, featureStore, modelStore, nil, cfg.FixtureComputeTimeout, log)
	ticketGenerator := tickets.NewGenerator(log)

	wsHub := websocket.NewHub(log)
	taskRegistry := pipeline.NewRegistry()
	runner := pipeline.NewRunner(db, teamResolver, ingestor, trainer, probPipeline, modelStore,
		probCache, taskRegistry, wsHub, cfg.PipelineWorkers, cfg.IngestMaxSeasons, cfg.ModelDefaultWindowYears, log)

	leagueService := leagues.NewService(db, log)
	cronScheduler := scheduler.New(leagueService, log)
	if err := cronScheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer cronScheduler.Stop()

	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	jackpotHandler := handlers.NewJackpotHandler(db, teamResolver, probCache, log)
	pipelineHandler := handlers.NewPipelineHandler(runner, taskRegistry, log)
	probabilityHandler := handlers.NewProbabilityHandler(probPipeline, probCache, log)
	ticketHandler := handlers.NewTicketHandler(db, probPipeline, ticketGenerator, probCache, log)
	trainingHandler := handlers.NewTrainingHandler(db, trainer, modelStore, probCache, log)
	validationHandler := handlers.NewValidationHandler(db, trainer, log)
	adminHandler := handlers.NewAdminHandler(leagueService, ingestor, log)
	healthHandler := handlers.NewHealthHandler(db, redisClient, log)

	apiV1 := router.Group("/api/v1")
	{
		apiV1.POST("/jackpots", jackpotHandler.CreateJackpot)
		apiV1.GET("/jackpots/:id", jackpotHandler.GetJackpot)
		apiV1.POST("/jackpots/:id/settle", jackpotHandler.SettleJackpot)

		apiV1.POST("/pipeline/check-status", pipelineHandler.CheckStatus)
		apiV1.POST("/pipeline/run", pipelineHandler.Run)
		apiV1.GET("/pipeline/status/:task_id", pipelineHandler.GetStatus)
		apiV1.POST("/pipeline/cancel/:task_id", pipelineHandler.Cancel)

		apiV1.POST("/probabilities/compute", probabilityHandler.Compute)
		apiV1.POST("/tickets/generate", ticketHandler.Generate)

		apiV1.POST("/models/train/:type", trainingHandler.Train)
		apiV1.GET("/models", trainingHandler.ListModels)
		apiV1.GET("/models/active/:type", trainingHandler.GetActiveModel)

		apiV1.POST("/validation/export", validationHandler.Export)
		apiV1.GET("/validation/summary", validationHandler.Summary)

		apiV1.POST("/admin/leagues/update-statistics", adminHandler.UpdateLeagueStatistics)
		apiV1.POST("/admin/ingest", adminHandler.IngestLeague)
	}

	router.GET("/ws/pipeline/:task_id", func(c *gin.Context) {
		wsHub.Serve(c.Writer, c.Request, c.Param("task_id"))
	})

	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Port),
		Handler: router,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("Server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("Forced to shutdown: %v", err)
	}
	log.Info("Server exited")
}
