// Package config loads relayer configuration from a YAML file with
// environment variable overrides, following the same RootConfig/env-layer
// split the rest of the backend stack uses.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	NATS     NATSConfig     `yaml:"nats"`
	Risk     RiskConfig     `yaml:"risk"`
	Chain    ChainConfig    `yaml:"chain"`
	Webhook  WebhookConfig  `yaml:"webhook"`
	Worker   WorkerConfig   `yaml:"worker"`
	Issuer   IssuerConfig   `yaml:"issuer"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	DBName          string        `yaml:"db_name"`
	SSLMode         string        `yaml:"ssl_mode"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	AcquireTimeout  time.Duration `yaml:"acquire_timeout"`
}

type NATSConfig struct {
	URL          string `yaml:"url"`
	StreamName   string `yaml:"stream_name"`
	ConsumerName string `yaml:"consumer_name"`
	Subject      string `yaml:"subject"`
}

type RiskConfig struct {
	BaseURL       string        `yaml:"base_url"` // empty => mock mode
	Timeout       time.Duration `yaml:"timeout"`
	RiskThreshold int           `yaml:"risk_threshold"` // default 6
}

// ProviderKind tags which ChainProvider capability variant is active.
type ProviderKind string

const (
	ProviderKindStandard  ProviderKind = "standard"
	ProviderKindHelius    ProviderKind = "helius"
	ProviderKindQuickNode ProviderKind = "quicknode"
)

type ChainConfig struct {
	Provider       ProviderKind  `yaml:"provider"`
	RPCEndpoint    string        `yaml:"rpc_endpoint"`
	APIKey         string        `yaml:"api_key"`
	TipAccounts    []string      `yaml:"tip_accounts"`
	TipLamports    uint64        `yaml:"tip_lamports"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	BundleEndpoint string        `yaml:"bundle_endpoint"` // quicknode provider only; defaults to rpc_endpoint
}

// WebhookAuthMode selects the authentication posture for the webhook
// ingestor. Strict is the default; lenient is an opt-in deviation modeled
// on the QuickNode-style provider that logs but does not reject on an
// auth mismatch.
type WebhookAuthMode string

const (
	WebhookAuthModeStrict  WebhookAuthMode = "strict"
	WebhookAuthModeLenient WebhookAuthMode = "lenient"
)

// WebhookConfig carries an independent secret and auth posture per
// provider route. Both routes default to strict; either one can be set
// to lenient on its own.
type WebhookConfig struct {
	HeliusSecret      string          `yaml:"helius_secret"`
	HeliusAuthMode    WebhookAuthMode `yaml:"helius_auth_mode"`
	QuickNodeSecret   string          `yaml:"quicknode_secret"`
	QuickNodeAuthMode WebhookAuthMode `yaml:"quicknode_auth_mode"`
}

type WorkerConfig struct {
	Replicas          int           `yaml:"replicas"`
	PollInterval      time.Duration `yaml:"poll_interval"`       // default 10s
	BatchSize         int           `yaml:"batch_size"`          // default 10
	RetryBase         time.Duration `yaml:"retry_base"`          // default 5s
	RetryCap          time.Duration `yaml:"retry_cap"`           // default 5m
	CrankInterval     time.Duration `yaml:"crank_interval"`      // default 60s
	CrankStaleAfter   time.Duration `yaml:"crank_stale_after"`   // default 90s
	StuckResetAfter   time.Duration `yaml:"stuck_reset_after"`   // default 10m
	BlockhashValidity time.Duration `yaml:"blockhash_validity"`  // default 90s
}

type IssuerConfig struct {
	PrivateKeyEnv  string `yaml:"private_key_env"`
	PrivateKeyPath string `yaml:"private_key_path"`
}

// Load reads the YAML file at path, applies environment variable
// overrides, and fills in documented defaults for anything left unset.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RELAYER_SERVER_PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("RELAYER_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("RELAYER_DB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = n
		}
	}
	if v := os.Getenv("RELAYER_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("RELAYER_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("RELAYER_DB_NAME"); v != "" {
		cfg.Database.DBName = v
	}
	if v := os.Getenv("RELAYER_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}
	if v := os.Getenv("RELAYER_RISK_BASE_URL"); v != "" {
		cfg.Risk.BaseURL = v
	}
	if v := os.Getenv("RELAYER_CHAIN_RPC_ENDPOINT"); v != "" {
		cfg.Chain.RPCEndpoint = v
	}
	if v := os.Getenv("RELAYER_CHAIN_API_KEY"); v != "" {
		cfg.Chain.APIKey = v
	}
	if v := os.Getenv("RELAYER_WEBHOOK_HELIUS_SECRET"); v != "" {
		cfg.Webhook.HeliusSecret = v
	}
	if v := os.Getenv("RELAYER_WEBHOOK_QUICKNODE_SECRET"); v != "" {
		cfg.Webhook.QuickNodeSecret = v
	}
	if v := os.Getenv("RELAYER_ISSUER_PRIVATE_KEY"); v != "" {
		cfg.Issuer.PrivateKeyEnv = v
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port == "" {
		cfg.Server.Port = "8080"
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = 10
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = 10
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 10 * time.Minute
	}
	if cfg.Database.AcquireTimeout == 0 {
		cfg.Database.AcquireTimeout = 3 * time.Second
	}
	if cfg.Risk.Timeout == 0 {
		cfg.Risk.Timeout = 5 * time.Second
	}
	if cfg.Risk.RiskThreshold == 0 {
		cfg.Risk.RiskThreshold = 6
	}
	if cfg.Chain.Provider == "" {
		cfg.Chain.Provider = ProviderKindStandard
	}
	if cfg.Chain.CallTimeout == 0 {
		cfg.Chain.CallTimeout = 8 * time.Second
	}
	if cfg.Chain.BundleEndpoint == "" {
		cfg.Chain.BundleEndpoint = cfg.Chain.RPCEndpoint
	}
	if len(cfg.Chain.TipAccounts) == 0 {
		cfg.Chain.TipAccounts = []string{
			"96gYZGLnJYVFmbjzopPSU6QiEV5fGqZNyN9nmNhvrZU5",
			"HFqU5x63VTqvQss8hp11i4wVV8bD44PvwucfZ2bU7gRe",
			"Cw8CFyM9FkoMi7K7Crf6HNQqf4uEMzpKw6QNghXLvLkY",
		}
	}
	if cfg.Webhook.HeliusAuthMode == "" {
		cfg.Webhook.HeliusAuthMode = WebhookAuthModeStrict
	}
	if cfg.Webhook.QuickNodeAuthMode == "" {
		cfg.Webhook.QuickNodeAuthMode = WebhookAuthModeStrict
	}
	if cfg.Worker.Replicas == 0 {
		cfg.Worker.Replicas = 1
	}
	if cfg.Worker.PollInterval == 0 {
		cfg.Worker.PollInterval = 10 * time.Second
	}
	if cfg.Worker.BatchSize == 0 {
		cfg.Worker.BatchSize = 10
	}
	if cfg.Worker.RetryBase == 0 {
		cfg.Worker.RetryBase = 5 * time.Second
	}
	if cfg.Worker.RetryCap == 0 {
		cfg.Worker.RetryCap = 5 * time.Minute
	}
	if cfg.Worker.CrankInterval == 0 {
		cfg.Worker.CrankInterval = 60 * time.Second
	}
	if cfg.Worker.CrankStaleAfter == 0 {
		cfg.Worker.CrankStaleAfter = 90 * time.Second
	}
	if cfg.Worker.StuckResetAfter == 0 {
		cfg.Worker.StuckResetAfter = 10 * time.Minute
	}
	if cfg.Worker.BlockhashValidity == 0 {
		cfg.Worker.BlockhashValidity = 90 * time.Second
	}
}

// DSN builds the postgres connection string gorm's driver expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode)
}
