package datafeed

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fazecat/quantterm/Internal/types"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const maxHistoryLimit = 500

type ForecastStore struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewForecastStore(db *sql.DB, logger *zap.Logger) *ForecastStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ForecastStore{db: db, logger: logger}
}

func (s *ForecastStore) LogForecast(ctx context.Context, market string, view types.AssetView) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO forecast_log
			(market, symbol, currency, current_price, target_price, diff_pct, signal, model, capital, profit)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		market,
		view.Symbol,
		string(view.Currency),
		decimal.NewFromFloat(view.CurrentPrice).StringFixed(6),
		decimal.NewFromFloat(view.TargetPrice).StringFixed(6),
		view.Recommendation.DiffPct,
		string(view.Recommendation.Signal),
		view.Model,
		decimal.NewFromFloat(view.Capital).StringFixed(2),
		decimal.NewFromFloat(view.Profit).StringFixed(2),
	)
	if err != nil {
		return fmt.Errorf("failed to log forecast: %w", err)
	}

	s.logger.Debug("forecast logged",
		zap.String("symbol", view.Symbol),
		zap.String("signal", string(view.Recommendation.Signal)))
	return nil
}

// ForecastHistory returns the newest records first. An empty symbol means all.
func (s *ForecastStore) ForecastHistory(ctx context.Context, symbol string, limit int) ([]types.ForecastRecord, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("database not initialized")
	}
	if limit <= 0 || limit > maxHistoryLimit {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, market, symbol, currency, current_price, target_price, diff_pct, signal, model, capital, profit, created_at
		FROM forecast_log
		WHERE ($1 = '' OR symbol = $1)
		ORDER BY created_at DESC
		LIMIT $2`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch forecast history: %w", err)
	}
	defer rows.Close()

	var records []types.ForecastRecord
	for rows.Next() {
		var r types.ForecastRecord
		var current, target, capital, profit decimal.Decimal
		if err := rows.Scan(&r.ID, &r.Market, &r.Symbol, &r.Currency, &current, &target,
			&r.DiffPct, &r.Signal, &r.Model, &capital, &profit, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan forecast row: %w", err)
		}
		r.CurrentPrice = current.String()
		r.TargetPrice = target.String()
		r.Capital = capital.StringFixed(2)
		r.Profit = profit.StringFixed(2)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read forecast history: %w", err)
	}
	return records, nil
}
