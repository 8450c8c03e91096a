package datafeed

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
)

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// DatabaseConfigFromEnv reports ok=false when DB_PASSWORD is unset, which
// leaves the service running without persistence.
func DatabaseConfigFromEnv() (DatabaseConfig, bool) {
	config := DatabaseConfig{
		Host:     getEnvOrDefault("DB_HOST", "localhost"),
		Port:     getEnvOrDefault("DB_PORT", "5432"),
		User:     getEnvOrDefault("DB_USER", "postgres"),
		Password: os.Getenv("DB_PASSWORD"), // Required - no default
		DBName:   getEnvOrDefault("DB_NAME", "quantterm"),
		SSLMode:  getEnvOrDefault("DB_SSLMODE", "disable"),
	}
	return config, config.Password != ""
}

func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func InitDatabase(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", config.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection: %w", err)
	}

	if err = db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err = InitializeSchema(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS forecast_log (
	id SERIAL PRIMARY KEY,
	market TEXT NOT NULL,
	symbol TEXT NOT NULL,
	currency TEXT NOT NULL,
	current_price NUMERIC(20, 6) NOT NULL,
	target_price NUMERIC(20, 6) NOT NULL,
	diff_pct DOUBLE PRECISION NOT NULL,
	signal TEXT NOT NULL,
	model TEXT NOT NULL,
	capital NUMERIC(20, 2) NOT NULL,
	profit NUMERIC(20, 2) NOT NULL,
	created_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_forecast_log_symbol ON forecast_log(symbol);
CREATE INDEX IF NOT EXISTS idx_forecast_log_created ON forecast_log(created_at);

CREATE TABLE IF NOT EXISTS settings (
	setting_key TEXT PRIMARY KEY,
	setting_value TEXT NOT NULL,
	setting_type TEXT NOT NULL DEFAULT 'string',
	updated_at TIMESTAMPTZ DEFAULT CURRENT_TIMESTAMP
);
`

// InitializeSchema creates the tables if they don't exist
func InitializeSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, schemaSQL)
	return err
}

func HealthCheck(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.PingContext(ctx)
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
