package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	AppHost  string
	HTTPPort string
	AppEnv   string
	LogLevel string

	// TicketSecret signs ticket tokens; required.
	TicketSecret string
	// ChainSecret keys the issuance hash chain; defaults to TicketSecret.
	ChainSecret string
	Issuer      string
	APIKey      string
	StateFile   string

	KafkaBrokers string
	KafkaTopic   string

	// DB is optional: when DB_DATABASE is set, issuances are recorded in
	// Postgres for chain auditing.
	DB struct {
		Host     string
		Port     string
		User     string
		Password string
		Database string
		SSLMode  string
	}
}

func Load() (*Config, error) {
	_ = godotenv.Load(".env")
	_ = godotenv.Load("../.env")

	cfg := &Config{
		AppHost:      getEnv("APP_HOST", "0.0.0.0"),
		HTTPPort:     firstEnv("APP_PORT", "HTTP_PORT", "8098"),
		AppEnv:       getEnv("APP_ENV", "development"),
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		TicketSecret: getEnv("TICKET_SECRET", ""),
		ChainSecret:  getEnv("CHAIN_SECRET", ""),
		Issuer:       getEnv("TICKET_ISSUER", "aett"),
		APIKey:       getEnv("API_KEY", ""),
		StateFile:    getEnv("STATE_FILE", "aett-state.json"),
		KafkaBrokers: getEnv("KAFKA_BROKERS", ""),
		KafkaTopic:   getEnv("KAFKA_TOPIC", "ticket-events"),
	}
	if cfg.ChainSecret == "" {
		cfg.ChainSecret = cfg.TicketSecret
	}
	cfg.DB.Host = getEnv("DB_HOST", "localhost")
	cfg.DB.Port = getEnv("DB_PORT", "5432")
	cfg.DB.User = getEnv("DB_USER", "postgres")
	cfg.DB.Password = getEnv("DB_PASSWORD", "postgres")
	cfg.DB.Database = getEnv("DB_DATABASE", "")
	cfg.DB.SSLMode = getEnv("DB_SSLMODE", "disable")
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.TicketSecret == "" {
		return errors.New("config: TICKET_SECRET is required")
	}
	if c.AppEnv == "production" && c.APIKey == "" {
		return errors.New("config: in production API_KEY is required")
	}
	return nil
}

// AuditEnabled reports whether the Postgres issuance trail is configured.
func (c *Config) AuditEnabled() bool {
	return c.DB.Database != ""
}

func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) DatabaseURL() string {
	pass := url.QueryEscape(c.DB.Password)
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.DB.User, pass, c.DB.Host, c.DB.Port, c.DB.Database, c.DB.SSLMode)
}

func (c *Config) Addr() string {
	return c.AppHost + ":" + c.HTTPPort
}

func firstEnv(keysAndDef ...string) string {
	if len(keysAndDef) == 0 {
		return ""
	}
	def := keysAndDef[len(keysAndDef)-1]
	for _, k := range keysAndDef[:len(keysAndDef)-1] {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
