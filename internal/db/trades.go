package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Trade status values
const (
	TradeStatusOpen      = "open"
	TradeStatusCompleted = "completed"
)

// Trade is one persisted trade. Exit fields stay nil while the trade is
// open.
type Trade struct {
	ID         uuid.UUID  `json:"id"`
	ConfigID   string     `json:"config_id"`
	Symbol     string     `json:"symbol"`
	Side       string     `json:"side"`
	Status     string     `json:"status"`
	Quantity   float64    `json:"quantity"`
	EntryPrice float64    `json:"entry_price"`
	ExitPrice  *float64   `json:"exit_price,omitempty"`
	PnL        *float64   `json:"pnl,omitempty"`
	PnLPct     *float64   `json:"pnl_pct,omitempty"`
	Reason     *string    `json:"reason,omitempty"`
	OpenedAt   time.Time  `json:"opened_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// InsertTrade persists a newly opened trade
func (d *DB) InsertTrade(ctx context.Context, trade *Trade) error {
	_, err := d.Pool.Exec(ctx, `
		INSERT INTO trades (id, config_id, symbol, side, status, quantity, entry_price, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		trade.ID, trade.ConfigID, trade.Symbol, trade.Side, trade.Status,
		trade.Quantity, trade.EntryPrice, trade.OpenedAt,
	)
	if err != nil {
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// CloseTrade marks a trade completed with its exit details
func (d *DB) CloseTrade(ctx context.Context, id uuid.UUID, exitPrice, pnl, pnlPct float64, reason string, closedAt time.Time) error {
	tag, err := d.Pool.Exec(ctx, `
		UPDATE trades
		SET status = $2, exit_price = $3, pnl = $4, pnl_pct = $5, reason = $6, closed_at = $7
		WHERE id = $1`,
		id, TradeStatusCompleted, exitPrice, pnl, pnlPct, reason, closedAt,
	)
	if err != nil {
		return fmt.Errorf("close trade: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("close trade: no trade with id %s", id)
	}
	return nil
}

// GetOpenTrade returns the open trade for a bot and symbol, or nil when
// none is open
func (d *DB) GetOpenTrade(ctx context.Context, configID, symbol string) (*Trade, error) {
	row := d.Pool.QueryRow(ctx, `
		SELECT id, config_id, symbol, side, status, quantity, entry_price,
		       exit_price, pnl, pnl_pct, reason, opened_at, closed_at
		FROM trades
		WHERE config_id = $1 AND symbol = $2 AND status = $3
		ORDER BY opened_at DESC
		LIMIT 1`,
		configID, symbol, TradeStatusOpen,
	)

	trade, err := scanTrade(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get open trade: %w", err)
	}
	return trade, nil
}

// RecentTrades returns the latest closed trades for a bot, newest first
func (d *DB) RecentTrades(ctx context.Context, configID string, limit int) ([]Trade, error) {
	rows, err := d.Pool.Query(ctx, `
		SELECT id, config_id, symbol, side, status, quantity, entry_price,
		       exit_price, pnl, pnl_pct, reason, opened_at, closed_at
		FROM trades
		WHERE config_id = $1 AND status = $2
		ORDER BY closed_at DESC
		LIMIT $3`,
		configID, TradeStatusCompleted, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent trades: %w", err)
	}
	defer rows.Close()

	var trades []Trade
	for rows.Next() {
		trade, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		trades = append(trades, *trade)
	}
	return trades, rows.Err()
}

func scanTrade(row pgx.Row) (*Trade, error) {
	var t Trade
	err := row.Scan(
		&t.ID, &t.ConfigID, &t.Symbol, &t.Side, &t.Status, &t.Quantity,
		&t.EntryPrice, &t.ExitPrice, &t.PnL, &t.PnLPct, &t.Reason,
		&t.OpenedAt, &t.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
