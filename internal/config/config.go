// Package config holds the Aggregate Manager's configuration, loaded from
// environment variables into a single struct parsed by caarlos0/env.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Config holds all application configuration.
type Config struct {
	// Mode selects the runtime mode: "api", "reconciler", or "all".
	Mode string `env:"ROADMAM_MODE" envDefault:"all"`

	// HTTP operational surface.
	Host string `env:"ROADMAM_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"ROADMAM_PORT" envDefault:"8080"`

	// Logging.
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Redis (optional — reconciler lock + activation dedup cache; disabled
	// when unset).
	RedisURL string `env:"REDIS_URL"`

	// Slack (optional — operator alerting; disabled when unset).
	SlackBotToken     string `env:"SLACK_BOT_TOKEN"`
	SlackAlertChannel string `env:"SLACK_ALERT_CHANNEL"`

	// OpenNaaS server connectivity.
	OpenNaaSServerAddress string `env:"OPENNAAS_SERVER_ADDRESS" envDefault:"localhost"`
	OpenNaaSServerPort    int    `env:"OPENNAAS_SERVER_PORT" envDefault:"443"`
	OpenNaaSUser          string `env:"OPENNAAS_USER"`
	OpenNaaSPassword      string `env:"OPENNAAS_PASSWORD"`
	OpenNaaSUseTLS        bool   `env:"OPENNAAS_USE_TLS" envDefault:"true"`

	// Persistence.
	DBDir         string `env:"OPENNAAS_DB_DIR" envDefault:"./data/roadm-am.db"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Reservation / reconciliation tuning.
	ReservationTimeoutMinutes int `env:"OPENNAAS_RESERVATION_TIMEOUT" envDefault:"60" validate:"gt=0"`
	UpdateTimeoutSeconds      int `env:"OPENNAAS_UPDATE_TIMEOUT" envDefault:"30" validate:"gt=0"`
	UpdateStep                int `env:"OPENNAAS_UPDATE_STEP" envDefault:"50" validate:"gt=0"`
	CheckExpireTimeoutSeconds int `env:"OPENNAAS_CHECK_EXPIRE_TIMEOUT" envDefault:"60" validate:"gt=0"`
	CheckCredentials          bool `env:"OPENNAAS_CHECK_CREDENTIALS" envDefault:"false"`

	// Audit horizon: rows not re-observed within this window are reaped by
	// the reconciler's clean sweep.
	AuditHorizon time.Duration `env:"OPENNAAS_AUDIT_HORIZON" envDefault:"24h"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the operational HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ReservationTimeout is ReservationTimeoutMinutes as a time.Duration.
func (c *Config) ReservationTimeout() time.Duration {
	return time.Duration(c.ReservationTimeoutMinutes) * time.Minute
}

// UpdateTimeout is UpdateTimeoutSeconds as a time.Duration.
func (c *Config) UpdateTimeout() time.Duration {
	return time.Duration(c.UpdateTimeoutSeconds) * time.Second
}

// CheckExpireTimeout is CheckExpireTimeoutSeconds as a time.Duration.
func (c *Config) CheckExpireTimeout() time.Duration {
	return time.Duration(c.CheckExpireTimeoutSeconds) * time.Second
}
