package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// BotConfig is one bot's persisted trading configuration
type BotConfig struct {
	ID         string    `json:"id"`
	Symbol     string    `json:"symbol"`
	Timeframe  string    `json:"timeframe"`
	Budget     float64   `json:"budget"`
	ConfigJSON []byte    `json:"config_json"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// SaveBotConfig inserts or updates a bot configuration
func (d *DB) SaveBotConfig(ctx context.Context, cfg *BotConfig) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO bot_configs (id, symbol, timeframe, budget, config_json)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    timeframe = EXCLUDED.timeframe,
		    budget = EXCLUDED.budget,
		    config_json = EXCLUDED.config_json,
		    updated_at = now()`,
		cfg.ID, cfg.Symbol, cfg.Timeframe, cfg.Budget, cfg.ConfigJSON,
	)
	if err != nil {
		return fmt.Errorf("save bot config: %w", err)
	}
	return nil
}

// GetBotConfig returns one bot configuration, or nil when unknown
func (d *DB) GetBotConfig(ctx context.Context, id string) (*BotConfig, error) {
	row := d.Pool.QueryRow(ctx, `
		SELECT id, symbol, timeframe, budget, config_json, created_at, updated_at
		FROM bot_configs
		WHERE id = $1`,
		id,
	)

	var cfg BotConfig
	err := row.Scan(&cfg.ID, &cfg.Symbol, &cfg.Timeframe, &cfg.Budget,
		&cfg.ConfigJSON, &cfg.CreatedAt, &cfg.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bot config: %w", err)
	}
	return &cfg, nil
}

// ListBotConfigs returns all bot configurations
func (d *DB) ListBotConfigs(ctx context.Context) ([]BotConfig, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id, symbol, timeframe, budget, config_json, created_at, updated_at
		FROM bot_configs
		ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list bot configs: %w", err)
	}
	defer rows.Close()

	var configs []BotConfig
	for rows.Next() {
		var cfg BotConfig
		if err := rows.Scan(&cfg.ID, &cfg.Symbol, &cfg.Timeframe, &cfg.Budget,
			&cfg.ConfigJSON, &cfg.CreatedAt, &cfg.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan bot config: %w", err)
		}
		configs = append(configs, cfg)
	}
	return configs, rows.Err()
}

// DeleteBotConfig removes a bot configuration
func (d *DB) DeleteBotConfig(ctx context.Context, id string) error {
	_, err := d.Pool.Exec(ctx, `DELETE FROM bot_configs WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete bot config: %w", err)
	}
	return nil
}
