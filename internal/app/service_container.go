// Package app assembles the relayer's dependency graph. Unlike the
// teacher stack's package-level Container/sync.Once singleton, this
// ServiceContainer is a plain struct built once in cmd/server/main.go and
// threaded explicitly into every HTTP handler and background worker: no
// process-global mutable state.
package app

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"solrelay/internal/clients"
	"solrelay/internal/config"
	"solrelay/internal/repository"
	"solrelay/internal/services"
)

type ServiceContainer struct {
	DB     *gorm.DB
	Logger *logrus.Logger
	Config *config.Config

	TransferRepo    repository.TransferRepository
	BlocklistRepo   repository.BlocklistRepository
	RiskProfileRepo repository.RiskProfileRepository
	OutboxRepo      repository.OutboxRepository

	RiskClient  *clients.RiskClient
	ChainClient clients.ChainProvider
	IssuerKey   *clients.IssuerKey
	NATSClient  *clients.NATSClient

	SignatureVerifier *services.SignatureVerifier
	BlocklistCache    *services.BlocklistCache
	ComplianceGate    *services.ComplianceGate
	IntakeService     *services.IntakeService
	HeliusIngestor    *services.WebhookIngestor
	QuickNodeIngestor *services.WebhookIngestor

	SubmissionWorkers   []*services.SubmissionWorker
	ReconciliationCrank *services.ReconciliationCrank
}

// NewServiceContainer wires every component in dependency order. It does
// not start background workers; callers decide whether and how many to
// run via StartWorkers.
func NewServiceContainer(cfg *config.Config, db *gorm.DB, logger *logrus.Logger, issuerKey *clients.IssuerKey) (*ServiceContainer, error) {
	c := &ServiceContainer{DB: db, Logger: logger, Config: cfg, IssuerKey: issuerKey}

	c.TransferRepo = repository.NewTransferRepository(db)
	c.BlocklistRepo = repository.NewBlocklistRepository(db)
	c.RiskProfileRepo = repository.NewRiskProfileRepository(db)

	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS.URL, cfg.NATS.StreamName, cfg.NATS.Subject, logger)
		if err != nil {
			logger.WithError(err).Warn("nats client unavailable, lifecycle events will not be published")
		} else {
			c.NATSClient = natsClient
		}
	}
	c.OutboxRepo = repository.NewOutboxRepository(db, c.NATSClient, cfg.NATS.Subject)

	c.RiskClient = clients.NewRiskClient(cfg.Risk.BaseURL, cfg.Risk.Timeout)

	chainProvider, err := clients.NewChainProvider(cfg.Chain)
	if err != nil {
		return nil, fmt.Errorf("construct chain provider: %w", err)
	}
	c.ChainClient = chainProvider

	c.BlocklistCache = services.NewBlocklistCache(c.BlocklistRepo)
	if err := c.BlocklistCache.Hydrate(); err != nil {
		return nil, fmt.Errorf("hydrate blocklist cache: %w", err)
	}

	c.ComplianceGate = services.NewComplianceGate(c.BlocklistCache, c.RiskClient, c.RiskProfileRepo, cfg.Risk.RiskThreshold)
	c.SignatureVerifier = services.NewSignatureVerifier()
	c.IntakeService = services.NewIntakeService(c.SignatureVerifier, c.ComplianceGate, c.TransferRepo, c.OutboxRepo, logger)
	c.HeliusIngestor = services.NewWebhookIngestor(c.TransferRepo, c.OutboxRepo, logger, cfg.Webhook.HeliusSecret, cfg.Webhook.HeliusAuthMode)
	c.QuickNodeIngestor = services.NewWebhookIngestor(c.TransferRepo, c.OutboxRepo, logger, cfg.Webhook.QuickNodeSecret, cfg.Webhook.QuickNodeAuthMode)

	for i := 0; i < cfg.Worker.Replicas; i++ {
		worker := services.NewSubmissionWorker(
			c.TransferRepo,
			c.OutboxRepo,
			c.ChainClient,
			c.IssuerKey,
			logger,
			cfg.Worker.PollInterval,
			cfg.Worker.BatchSize,
			cfg.Worker.RetryBase,
			cfg.Worker.RetryCap,
			cfg.Chain.TipLamports,
		)
		c.SubmissionWorkers = append(c.SubmissionWorkers, worker)
	}

	c.ReconciliationCrank = services.NewReconciliationCrank(
		c.TransferRepo,
		c.OutboxRepo,
		c.ChainClient,
		logger,
		cfg.Worker.CrankInterval,
		cfg.Worker.CrankStaleAfter,
		cfg.Worker.BlockhashValidity,
		cfg.Worker.BatchSize,
	)

	return c, nil
}

// StartWorkers starts every submission worker replica and the
// reconciliation crank.
func (c *ServiceContainer) StartWorkers() {
	for _, w := range c.SubmissionWorkers {
		w.Start()
	}
	c.ReconciliationCrank.Start()
}

// Cleanup stops background workers and closes external connections. Each
// worker finishes its current record before returning, per the
// no-abandoned-claim shutdown contract.
func (c *ServiceContainer) Cleanup() {
	c.Logger.Info("shutting down service container")

	for _, w := range c.SubmissionWorkers {
		w.Stop()
	}
	c.ReconciliationCrank.Stop()

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}

	c.Logger.Info("service container shut down")
}
