package settings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"

	"go.uber.org/zap"
)

const (
	KeyDefaultMarket   = "default_market"
	KeyDefaultCurrency = "default_currency"
	KeyDefaultCapital  = "default_capital"
	KeyAlpacaAPIKey    = "alpaca_api_key"
	KeyAlpacaAPISecret = "alpaca_api_secret"
)

// Store reads and writes rows of the settings table.
type Store struct {
	db     *sql.DB
	cipher *Cipher
	logger *zap.Logger
}

func NewStore(db *sql.DB, cipher *Cipher, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, cipher: cipher, logger: logger}
}

func (s *Store) get(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx,
		"SELECT setting_value FROM settings WHERE setting_key = $1", key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read setting %s: %w", key, err)
	}
	return value, true, nil
}

func (s *Store) set(ctx context.Context, key, value, settingType string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (setting_key, setting_value, setting_type, updated_at)
		VALUES ($1, $2, $3, CURRENT_TIMESTAMP)
		ON CONFLICT (setting_key) DO UPDATE
		SET setting_value = EXCLUDED.setting_value,
			setting_type = EXCLUDED.setting_type,
			updated_at = CURRENT_TIMESTAMP`,
		key, value, settingType)
	if err != nil {
		return fmt.Errorf("failed to write setting %s: %w", key, err)
	}
	return nil
}

func (s *Store) GetString(ctx context.Context, key, defaultValue string) (string, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return defaultValue, err
	}
	return v, nil
}

func (s *Store) SetString(ctx context.Context, key, value string) error {
	return s.set(ctx, key, value, "string")
}

func (s *Store) GetFloat(ctx context.Context, key string, defaultValue float64) (float64, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return defaultValue, err
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultValue, fmt.Errorf("setting %s is not a number: %w", key, err)
	}
	return f, nil
}

func (s *Store) SetFloat(ctx context.Context, key string, value float64) error {
	return s.set(ctx, key, strconv.FormatFloat(value, 'f', -1, 64), "number")
}

func (s *Store) GetSecret(ctx context.Context, key string) (string, error) {
	v, ok, err := s.get(ctx, key)
	if err != nil || !ok {
		return "", err
	}
	return s.cipher.Decrypt(v)
}

func (s *Store) SetSecret(ctx context.Context, key, value string) error {
	sealed, err := s.cipher.Encrypt(value)
	if err != nil {
		return fmt.Errorf("failed to encrypt %s: %w", key, err)
	}
	return s.set(ctx, key, sealed, "secret")
}

// Preferences returns the stored dashboard defaults, falling back field by
// field to fallback.
func (s *Store) Preferences(ctx context.Context, fallback Preferences) (Preferences, error) {
	var err error
	p := fallback
	if p.Market, err = s.GetString(ctx, KeyDefaultMarket, fallback.Market); err != nil {
		return fallback, err
	}
	if p.Currency, err = s.GetString(ctx, KeyDefaultCurrency, fallback.Currency); err != nil {
		return fallback, err
	}
	if p.Capital, err = s.GetFloat(ctx, KeyDefaultCapital, fallback.Capital); err != nil {
		return fallback, err
	}
	return p, nil
}

// LoadSettingsFromDatabase exports stored Alpaca keys so providers built
// afterwards pick them up.
func (s *Store) LoadSettingsFromDatabase(ctx context.Context) error {
	for key, env := range map[string]string{
		KeyAlpacaAPIKey:    "ALPACA_API_KEY",
		KeyAlpacaAPISecret: "ALPACA_API_SECRET",
	} {
		v, err := s.GetSecret(ctx, key)
		if err != nil {
			return err
		}
		if v != "" {
			os.Setenv(env, v)
			s.logger.Info("loaded setting from database", zap.String("env", env))
		}
	}
	return nil
}

// MaskSensitiveValue masks API keys for display
func MaskSensitiveValue(value string) string {
	if value == "" {
		return "Not set"
	}
	if len(value) <= 4 {
		return "****"
	}
	return value[:4] + "****...****"
}
