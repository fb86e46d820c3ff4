package main

import (
	"context"
	"encoding/base64"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"solrelay/internal/app"
	"solrelay/internal/clients"
	"solrelay/internal/config"
	"solrelay/internal/db"
	"solrelay/internal/handlers"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("load config")
	}

	gormDB, err := db.InitDB(cfg.Database)
	if err != nil {
		logger.WithError(err).Fatal("init database")
	}

	issuerKey, err := loadIssuerKey(cfg.Issuer)
	if err != nil {
		logger.WithError(err).Fatal("load issuer key")
	}

	container, err := app.NewServiceContainer(cfg, gormDB, logger, issuerKey)
	if err != nil {
		logger.WithError(err).Fatal("build service container")
	}
	container.StartWorkers()

	router := buildRouter(container)

	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("starting http server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("http server failed")
		}
	}()

	waitForShutdown(logger, srv, container)
}

func buildRouter(container *app.ServiceContainer) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	intakeHandler := handlers.NewIntakeHandler(container.IntakeService)
	webhookHandler := handlers.NewWebhookHandler(container.HeliusIngestor, container.QuickNodeIngestor)

	router.GET("/internal/healthz", handlers.HealthCheckHandler)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.POST("/v1/transfers", intakeHandler.Submit)
	router.POST("/v1/webhooks/helius", webhookHandler.Helius)
	router.POST("/v1/webhooks/quicknode", webhookHandler.QuickNode)

	return router
}

func waitForShutdown(logger *logrus.Logger, srv *http.Server, container *app.ServiceContainer) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("http server shutdown")
	}

	container.Cleanup()
}

// loadIssuerKey reads the issuer's Ed25519 key material from the
// configured environment variable (base64) or file, never logging the
// secret itself.
func loadIssuerKey(cfg config.IssuerConfig) (*clients.IssuerKey, error) {
	var raw string
	if cfg.PrivateKeyEnv != "" {
		raw = os.Getenv(cfg.PrivateKeyEnv)
	}
	if raw == "" && cfg.PrivateKeyPath != "" {
		data, err := os.ReadFile(cfg.PrivateKeyPath)
		if err != nil {
			return nil, err
		}
		raw = string(data)
	}

	seed, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, err
	}
	return clients.NewIssuerKey(seed)
}
