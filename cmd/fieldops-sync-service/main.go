package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/mmdatafocus/fieldops_backend/config"
	"github.com/mmdatafocus/fieldops_backend/middlewares"
	"github.com/mmdatafocus/fieldops_backend/models"
	"github.com/mmdatafocus/fieldops_backend/sheet"
	"github.com/mmdatafocus/fieldops_backend/syncjob"
	"github.com/mmdatafocus/fieldops_backend/utils"
	"github.com/sirupsen/logrus"
)

const defaultPort = "8080"

func main() {
	port := os.Getenv("SYNC_SERVICE_PORT")
	if port == "" {
		port = os.Getenv("PORT")
	}
	if port == "" {
		port = defaultPort
	}

	logger := config.NewLogger()
	policy := config.LoadSyncPolicy()

	sigCtx, stopSignals := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopSignals()

	db := config.ConnectDatabaseWithRetry()
	sqlDB, _ := db.DB()
	defer func() {
		if sqlDB != nil {
			_ = sqlDB.Close()
		}
	}()

	if !config.SkipMigrations() {
		if err := models.MigrateTable(db); err != nil {
			logger.WithFields(logrus.Fields{"field": "migrations"}).Fatal(err)
		}
	} else {
		logger.WithFields(logrus.Fields{"field": "migrations"}).Warn("SKIP_MIGRATIONS=true; skipping AutoMigrate on startup")
	}

	rdb, locks := config.ConnectRedisWithRetry(sigCtx)
	if rdb == nil {
		return
	}
	defer rdb.Close()

	sheetsSvc, err := config.NewSheetsService(sigCtx)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "sheets"}).Fatal(err)
	}

	store := models.NewStore(db)
	runner, err := syncjob.NewRunner(store, sheet.NewGoogleClient(sheetsSvc), policy, logger)
	if err != nil {
		logger.WithFields(logrus.Fields{"field": "policy"}).Fatal(err)
	}
	manager := syncjob.NewManager(
		runner,
		syncjob.NewRedisJobStore(rdb, policy.JobStatusTTL),
		syncjob.NewRedisLocker(locks),
		policy,
		logger,
	)

	if policy.Dispatch == config.DispatchPubSub {
		client, err := config.NewPubSubClient(sigCtx)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Fatal(err)
		}
		defer client.Close()
		topic, err := config.SyncTopic(sigCtx, client)
		if err != nil {
			logger.WithFields(logrus.Fields{"field": "pubsub"}).Fatal(err)
		}
		defer topic.Stop()
		manager.SetDispatcher(syncjob.NewPubSubDispatcher(topic))
	}

	r := gin.New()
	r.Use(func(c *gin.Context) {
		cid := c.GetHeader("x-correlation-id")
		if cid == "" {
			cid = uuid.NewString()
		}
		c.Request = c.Request.WithContext(utils.SetCorrelationIdInContext(c.Request.Context(), cid))
		c.Next()
	})

	corsConfig := cors.DefaultConfig()
	if origins, allowAll := config.CorsAllowedOrigins(); allowAll {
		corsConfig.AllowAllOrigins = true
	} else {
		corsConfig.AllowOrigins = origins
	}
	corsConfig.AddAllowMethods("GET", "POST", "PUT", "DELETE", "OPTIONS")
	corsConfig.AddAllowHeaders("token", "Origin", "Content-Type", "Authorization")
	corsConfig.AddExposeHeaders("Content-Length")
	corsConfig.AllowCredentials = true

	r.Use(cors.New(corsConfig))
	r.Use(customErrorLogger(logger))
	r.Use(gin.Recovery())

	handlers := syncjob.NewHandlers(store, manager, runner.Drums(), logger)
	handlers.Register(r, middlewares.AuthMiddleware(utils.JwtSecret()), middlewares.RequireRoles(policy.AllowedRoles))

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "route not found"})
	})

	srv := &http.Server{
		Addr:    ":" + port,
		Handler: r,
	}
	serverErrCh := make(chan error, 1)
	go func() {
		serverErrCh <- srv.ListenAndServe()
	}()
	logger.WithFields(logrus.Fields{"port": port, "dispatch": policy.Dispatch}).Info("sheet sync service listening")

	select {
	case <-sigCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	case err := <-serverErrCh:
		if err != nil && err != http.ErrServerClosed {
			logger.WithFields(logrus.Fields{"field": "server"}).Error(err)
		}
	}
	// let inline passes finish so connections are not left half-synced
	manager.Wait()
}

func customErrorLogger(logger *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		cid, _ := utils.GetCorrelationIdFromContext(c.Request.Context())
		logger.WithFields(logrus.Fields{
			"status":         c.Writer.Status(),
			"method":         c.Request.Method,
			"path":           c.Request.URL.Path,
			"latency":        latency.String(),
			"correlation_id": cid,
		}).Info("request")
	}
}
