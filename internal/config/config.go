package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App struct {
		Name string `envconfig:"APP_NAME" default:"splitpay"`
		Port int    `envconfig:"PORT" default:"8080"`
	}

	Log struct {
		Level  string `envconfig:"LOG_LEVEL" default:"info"`
		Format string `envconfig:"LOG_FORMAT" default:"text"`
	}

	DB struct {
		Host     string `envconfig:"DB_HOST" default:"localhost"`
		Port     int    `envconfig:"DB_PORT" default:"5432"`
		User     string `envconfig:"DB_USER" default:"postgres"`
		Password string `envconfig:"DB_PASSWORD" default:""`
		Name     string `envconfig:"DB_NAME" default:"splitpay"`
		SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`

		MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"20"`
		MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
		ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"30m"`
		// MigrateOnStart runs pending migrations before serving.
		MigrateOnStart bool `envconfig:"DB_MIGRATE_ON_START" default:"true"`
	}

	Server struct {
		Timeout     time.Duration `envconfig:"SERVER_TIMEOUT" default:"30s"`
		CORSOrigins []string      `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`
	}

	Provider struct {
		// WebhookSecret verifies the HS256 signature on provider callbacks.
		WebhookSecret   string        `envconfig:"PROVIDER_WEBHOOK_SECRET" required:"true"`
		SignatureMaxAge time.Duration `envconfig:"PROVIDER_SIGNATURE_MAX_AGE" default:"5m"`
		RefundURL       string        `envconfig:"PROVIDER_REFUND_URL"`
		RefundToken     string        `envconfig:"PROVIDER_REFUND_TOKEN"`
		RefundTimeout   time.Duration `envconfig:"PROVIDER_REFUND_TIMEOUT" default:"10s"`
	}

	Fees struct {
		BasisPoints int64 `envconfig:"FEE_BASIS_POINTS" default:"0"`
		Fixed       int64 `envconfig:"FEE_FIXED" default:"0"`
	}

	Settlement struct {
		Enabled  bool          `envconfig:"SETTLEMENT_ENABLED" default:"true"`
		Interval time.Duration `envconfig:"SETTLEMENT_INTERVAL" default:"24h"`
		Lookback time.Duration `envconfig:"SETTLEMENT_LOOKBACK" default:"168h"`
	}

	Sweep struct {
		Interval time.Duration `envconfig:"SWEEP_INTERVAL" default:"5m"`
		MaxAge   time.Duration `envconfig:"SWEEP_MAX_AGE" default:"30m"`
		Batch    int           `envconfig:"SWEEP_BATCH" default:"100"`
	}

	Refund struct {
		Interval    time.Duration `envconfig:"REFUND_RELAY_INTERVAL" default:"30s"`
		MaxAttempts int           `envconfig:"REFUND_MAX_ATTEMPTS" default:"8"`
		Batch       int           `envconfig:"REFUND_BATCH" default:"50"`
	}

	Statement struct {
		Dir string `envconfig:"STATEMENT_DIR" default:"./statements"`
	}
}

func (c *Config) ConnectionString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DB.User, c.DB.Password, c.DB.Host, c.DB.Port, c.DB.Name, c.DB.SSLMode)
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	switch {
	case c.Provider.WebhookSecret == "":
		return fmt.Errorf("invalid config: PROVIDER_WEBHOOK_SECRET is required")
	case c.Settlement.Interval <= 0 || c.Sweep.Interval <= 0 || c.Refund.Interval <= 0:
		return fmt.Errorf("invalid config: job intervals must be positive")
	case c.Settlement.Lookback < c.Settlement.Interval:
		return fmt.Errorf("invalid config: SETTLEMENT_LOOKBACK must cover at least one interval")
	case c.Refund.MaxAttempts < 1:
		return fmt.Errorf("invalid config: REFUND_MAX_ATTEMPTS must be at least 1")
	case c.Fees.BasisPoints < 0 || c.Fees.Fixed < 0:
		return fmt.Errorf("invalid config: fees cannot be negative")
	}

	return nil
}
