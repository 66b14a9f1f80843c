// internal/common/config/config.go
package config

import "fmt"

// Config is the main application configuration struct.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Database DatabaseConfig `mapstructure:"database"`
	Credits  CreditsConfig  `mapstructure:"credits"`
	Unlock   UnlockConfig   `mapstructure:"unlock"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// --- Core App/Infrastructure Config ---
type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
	Address     string `mapstructure:"address"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

// GetDSN returns the PostgreSQL connection string
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// --- Domain Configuration Sections ---

// CreditsConfig holds defaults for lazily created credit accounts and
// the purchasable plan catalog.
type CreditsConfig struct {
	DefaultFreeMail int64                 `mapstructure:"default_free_mail"`
	DefaultWorkMail int64                 `mapstructure:"default_work_mail"`
	Plans           map[string]PlanConfig `mapstructure:"plans"`
}

// PlanConfig describes one purchasable subscription plan.
type PlanConfig struct {
	Credits      int64 `mapstructure:"credits"`
	DurationDays int   `mapstructure:"duration_days"`
}

// UnlockConfig holds the unlock cost table and contact-cache settings.
// Costs are configuration, not law, but phone must stay priced above
// email.
type UnlockConfig struct {
	EmailCost       int64 `mapstructure:"email_cost"`
	PhoneCost       int64 `mapstructure:"phone_cost"`
	BothCost        int64 `mapstructure:"both_cost"`
	ContactCacheTTL int   `mapstructure:"contact_cache_ttl"` // seconds
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// MetricsConfig holds the prometheus endpoint settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
}
