package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/tourwallet/topup/internal/infra"
	"github.com/tourwallet/topup/internal/provider"
	"github.com/tourwallet/topup/internal/provider/casso"
	"github.com/tourwallet/topup/internal/provider/momo"
	"github.com/tourwallet/topup/internal/provider/payos"
	"github.com/tourwallet/topup/internal/reconcile"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `envconfig:"APP_NAME" default:"TourWallet TopUp"`
	Env            string        `envconfig:"APP_ENV" default:"development"`
	Port           string        `envconfig:"PORT" default:"8080"`
	LogLevel       string        `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat      string        `envconfig:"LOG_FORMAT" default:"json"`
	DatabaseURL    string        `envconfig:"DATABASE_URL" required:"true"`
	RedisURL       string        `envconfig:"REDIS_URL"`
	ShutdownPeriod time.Duration `envconfig:"SHUTDOWN_TIMEOUT" default:"10s"`
	IdempotencyTTL time.Duration `envconfig:"IDEMPOTENCY_TTL" default:"24h"`
	AutoMigrate    bool          `envconfig:"AUTO_MIGRATE" default:"false"`

	// OperatorTokenHash is the bcrypt hash of the operator API token.
	OperatorTokenHash string        `envconfig:"OPERATOR_TOKEN_HASH"`
	Currency          string        `envconfig:"CURRENCY" default:"VND"`
	NodeID            int64         `envconfig:"NODE_ID" default:"0"`
	IntentTimeout     time.Duration `envconfig:"INTENT_TIMEOUT" default:"24h"`
	WebhookRateLimit  int           `envconfig:"WEBHOOK_RATE_LIMIT" default:"600"`
	Providers         []string      `envconfig:"PROVIDERS" default:"momo,payos,casso"`
	RetryAttempts     int           `envconfig:"PROVIDER_RETRY_ATTEMPTS" default:"3"`

	NATS    infra.NATSConfig
	Momo    momo.Config
	PayOS   payos.Config
	Casso   casso.Config
	Poller  reconcile.PollerConfig
	Matcher reconcile.MatcherConfig
	Sweeper reconcile.SweeperConfig
}

// Load reads an optional .env file and then the process environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv populates a Config from the process environment only.
func FromEnv() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("process env: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints envconfig cannot express.
func (c Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return errors.New("DATABASE_URL must be set")
	}
	if c.NodeID < 0 || c.NodeID > 15 {
		return fmt.Errorf("NODE_ID must be between 0 and 15, got %d", c.NodeID)
	}
	if c.IntentTimeout <= 0 {
		return errors.New("INTENT_TIMEOUT must be positive")
	}
	kinds, err := c.EnabledProviders()
	if err != nil {
		return err
	}
	if len(kinds) == 0 {
		return errors.New("PROVIDERS must name at least one provider")
	}
	for _, kind := range kinds {
		switch kind {
		case provider.KindMobileWallet:
			if c.Momo.PartnerCode == "" || c.Momo.AccessKey == "" || c.Momo.SecretKey == "" {
				return errors.New("momo enabled but MOMO_PARTNER_CODE, MOMO_ACCESS_KEY or MOMO_SECRET_KEY is empty")
			}
		case provider.KindBankQR:
			if c.PayOS.ClientID == "" || c.PayOS.APIKey == "" || c.PayOS.ChecksumKey == "" {
				return errors.New("payos enabled but PAYOS_CLIENT_ID, PAYOS_API_KEY or PAYOS_CHECKSUM_KEY is empty")
			}
		case provider.KindBankAggregator:
			if c.Casso.APIKey == "" || c.Casso.WebhookToken == "" || c.Casso.AccountNumber == "" {
				return errors.New("casso enabled but CASSO_API_KEY, CASSO_WEBHOOK_TOKEN or CASSO_ACCOUNT_NUMBER is empty")
			}
		}
	}
	return nil
}

// EnabledProviders parses Providers into kinds, dropping duplicates.
func (c Config) EnabledProviders() ([]provider.Kind, error) {
	seen := map[provider.Kind]bool{}
	var kinds []provider.Kind
	for _, name := range c.Providers {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		kind, err := provider.ParseKind(name)
		if err != nil {
			return nil, fmt.Errorf("PROVIDERS: %w", err)
		}
		if !seen[kind] {
			seen[kind] = true
			kinds = append(kinds, kind)
		}
	}
	return kinds, nil
}

// Retry returns the outbound retry policy.
func (c Config) Retry() provider.RetryPolicy {
	policy := provider.DefaultRetryPolicy()
	if c.RetryAttempts > 0 {
		policy.MaxAttempts = c.RetryAttempts
	}
	return policy
}

// IsDev reports whether the service runs in a local environment.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
