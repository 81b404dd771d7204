// Package backtest replays historical candles through the decision pipeline
// against a simulated exchange. Runs are deterministic: the only timestamps
// are the candles' own, and identical inputs produce identical equity curves
// and trade lists.
package backtest

import (
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/engine"
	"github.com/pattarak/tradepilot/internal/exchange"
	"github.com/pattarak/tradepilot/internal/market"
)

// Config holds the simulated exchange and sizing parameters
type Config struct {
	InitialCapital    float64 `json:"initial_capital"`
	FeeRate           float64 `json:"fee_rate"`
	SlippageRate      float64 `json:"slippage_rate"`
	PositionSizeRatio float64 `json:"position_size_ratio"`
}

// DefaultConfig returns Binance-like defaults
func DefaultConfig() Config {
	return Config{
		InitialCapital:    10000,
		FeeRate:           0.001,
		SlippageRate:      0.0005,
		PositionSizeRatio: 0.95,
	}
}

// Signal is a strategy decision for the current candle
type Signal struct {
	Symbol     string        `json:"symbol"`
	Side       engine.Action `json:"side"`
	Confidence float64       `json:"confidence"`
	Reasoning  string        `json:"reasoning"`
}

// Trade is one simulated fill
type Trade struct {
	ID         int           `json:"id"`
	Timestamp  time.Time     `json:"timestamp"`
	Symbol     string        `json:"symbol"`
	Side       engine.Action `json:"side"`
	Quantity   float64       `json:"quantity"`
	Price      float64       `json:"price"` // fill price including slippage
	Commission float64       `json:"commission"`
	Value      float64       `json:"value"`
	Reasoning  string        `json:"reasoning,omitempty"`
}

// Position is the single open position
type Position struct {
	Symbol       string    `json:"symbol"`
	EntryTime    time.Time `json:"entry_time"`
	EntryPrice   float64   `json:"entry_price"`
	Quantity     float64   `json:"quantity"`
	CurrentPrice float64   `json:"current_price"`
	Commission   float64   `json:"commission"`
}

// ClosedPosition is a completed round trip
type ClosedPosition struct {
	Symbol      string        `json:"symbol"`
	EntryTime   time.Time     `json:"entry_time"`
	ExitTime    time.Time     `json:"exit_time"`
	EntryPrice  float64       `json:"entry_price"`
	ExitPrice   float64       `json:"exit_price"`
	Quantity    float64       `json:"quantity"`
	RealizedPL  float64       `json:"realized_pl"`
	ReturnPct   float64       `json:"return_pct"`
	HoldingTime time.Duration `json:"holding_time"`
	Commission  float64       `json:"commission"`
	Reason      string        `json:"reason,omitempty"`
}

// EquityPoint is the portfolio value at one candle
type EquityPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Equity    float64   `json:"equity"`
	Cash      float64   `json:"cash"`
	Holdings  float64   `json:"holdings"`
}

// Strategy generates at most one signal per candle
type Strategy interface {
	Initialize(e *Engine) error
	GenerateSignal(e *Engine) (*Signal, error)
	Finalize(e *Engine) error
}

// Engine drives the candle-by-candle simulation. At most one position is
// open at a time, matching the live trader.
type Engine struct {
	cfg    Config
	symbol string
	data   market.Series
	index  int

	Cash            float64
	Position        *Position
	Trades          []Trade
	ClosedPositions []ClosedPosition
	EquityCurve     []EquityPoint

	peakEquity     float64
	maxDrawdownPct float64

	log zerolog.Logger
}

// NewEngine creates a backtest engine
func NewEngine(cfg Config) *Engine {
	return &Engine{
		cfg:        cfg,
		Cash:       cfg.InitialCapital,
		peakEquity: cfg.InitialCapital,
		log:        config.NewLogger("backtest"),
	}
}

// Config returns the engine configuration
func (e *Engine) Config() Config {
	return e.cfg
}

// Symbol returns the loaded symbol
func (e *Engine) Symbol() string {
	return e.symbol
}

// LoadData loads the historical series, sorting a copy by timestamp
func (e *Engine) LoadData(symbol string, series market.Series) error {
	if len(series) == 0 {
		return fmt.Errorf("no candles provided for %s", symbol)
	}

	data := make(market.Series, len(series))
	copy(data, series)
	sort.Slice(data, func(i, j int) bool {
		return data[i].Timestamp.Before(data[j].Timestamp)
	})

	e.symbol = symbol
	e.data = data
	e.index = 0

	e.log.Info().
		Str("symbol", symbol).
		Int("candles", len(data)).
		Time("start", data[0].Timestamp).
		Time("end", data[len(data)-1].Timestamp).
		Msg("Loaded historical data")

	return nil
}

// Current returns the candle being simulated
func (e *Engine) Current() (market.Candle, bool) {
	if e.index >= len(e.data) {
		return market.Candle{}, false
	}
	return e.data[e.index], true
}

// History returns up to lookback bars ending at the current candle inclusive
func (e *Engine) History(lookback int) market.Series {
	if e.index >= len(e.data) {
		return nil
	}
	end := e.index + 1
	start := end - lookback
	if start < 0 {
		start = 0
	}
	return e.data[start:end]
}

// Equity returns cash plus the mark-to-market value of the open position
func (e *Engine) Equity() float64 {
	equity := e.Cash
	if e.Position != nil {
		equity += e.Position.CurrentPrice * e.Position.Quantity
	}
	return equity
}

// MaxDrawdownPct returns the peak-to-trough drawdown seen so far, in percent
func (e *Engine) MaxDrawdownPct() float64 {
	return e.maxDrawdownPct
}

// ExecuteSignal fills a signal against the simulated exchange at the current
// candle's close. BUY with an open position and SELL without one are refused.
func (e *Engine) ExecuteSignal(sig *Signal) error {
	candle, ok := e.Current()
	if !ok {
		return fmt.Errorf("no candle to execute against")
	}

	switch sig.Side {
	case engine.ActionBuy:
		return e.executeBuy(sig, candle)
	case engine.ActionSell:
		return e.executeSell(sig, candle)
	case engine.ActionHold, engine.ActionHalt:
		return nil
	default:
		return fmt.Errorf("unknown signal side: %s", sig.Side)
	}
}

func (e *Engine) executeBuy(sig *Signal, candle market.Candle) error {
	if e.Position != nil {
		return exchange.ErrAlreadyInPosition
	}

	fillPrice := candle.Close * (1 + e.cfg.SlippageRate)
	quantity := e.Cash * e.cfg.PositionSizeRatio / fillPrice
	if quantity <= 0 {
		return fmt.Errorf("invalid quantity: %f", quantity)
	}

	value := fillPrice * quantity
	commission := value * e.cfg.FeeRate
	totalCost := value + commission
	if totalCost > e.Cash {
		return exchange.ErrInsufficientFunds
	}

	e.Cash -= totalCost
	e.Position = &Position{
		Symbol:       sig.Symbol,
		EntryTime:    candle.Timestamp,
		EntryPrice:   fillPrice,
		Quantity:     quantity,
		CurrentPrice: candle.Close,
		Commission:   commission,
	}
	e.Trades = append(e.Trades, Trade{
		ID:         len(e.Trades) + 1,
		Timestamp:  candle.Timestamp,
		Symbol:     sig.Symbol,
		Side:       engine.ActionBuy,
		Quantity:   quantity,
		Price:      fillPrice,
		Commission: commission,
		Value:      value,
		Reasoning:  sig.Reasoning,
	})

	e.log.Debug().
		Float64("price", fillPrice).
		Float64("quantity", quantity).
		Msg("Simulated BUY")

	return nil
}

func (e *Engine) executeSell(sig *Signal, candle market.Candle) error {
	pos := e.Position
	if pos == nil {
		return exchange.ErrNoPosition
	}

	fillPrice := candle.Close * (1 - e.cfg.SlippageRate)
	value := fillPrice * pos.Quantity
	commission := value * e.cfg.FeeRate
	proceeds := value - commission

	entryValue := pos.EntryPrice * pos.Quantity
	realized := proceeds - entryValue - pos.Commission
	returnPct := realized / entryValue * 100

	e.Cash += proceeds
	e.Position = nil
	e.Trades = append(e.Trades, Trade{
		ID:         len(e.Trades) + 1,
		Timestamp:  candle.Timestamp,
		Symbol:     pos.Symbol,
		Side:       engine.ActionSell,
		Quantity:   pos.Quantity,
		Price:      fillPrice,
		Commission: commission,
		Value:      value,
		Reasoning:  sig.Reasoning,
	})
	e.ClosedPositions = append(e.ClosedPositions, ClosedPosition{
		Symbol:      pos.Symbol,
		EntryTime:   pos.EntryTime,
		ExitTime:    candle.Timestamp,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   fillPrice,
		Quantity:    pos.Quantity,
		RealizedPL:  realized,
		ReturnPct:   returnPct,
		HoldingTime: candle.Timestamp.Sub(pos.EntryTime),
		Commission:  pos.Commission + commission,
		Reason:      sig.Reasoning,
	})

	e.log.Debug().
		Float64("price", fillPrice).
		Float64("realized_pl", realized).
		Msg("Simulated SELL")

	return nil
}

// recordEquity marks the open position to the candle close and appends an
// equity point, tracking peak and drawdown
func (e *Engine) recordEquity(candle market.Candle) {
	if e.Position != nil {
		e.Position.CurrentPrice = candle.Close
	}

	equity := e.Equity()
	e.EquityCurve = append(e.EquityCurve, EquityPoint{
		Timestamp: candle.Timestamp,
		Equity:    equity,
		Cash:      e.Cash,
		Holdings:  equity - e.Cash,
	})

	if equity > e.peakEquity {
		e.peakEquity = equity
	}
	if e.peakEquity > 0 {
		drawdownPct := (e.peakEquity - equity) / e.peakEquity * 100
		if drawdownPct > e.maxDrawdownPct {
			e.maxDrawdownPct = drawdownPct
		}
	}
}

// Run replays every candle through the strategy. A remaining position is
// closed at the final candle.
func (e *Engine) Run(strategy Strategy) error {
	if len(e.data) == 0 {
		return fmt.Errorf("no data loaded")
	}

	if err := strategy.Initialize(e); err != nil {
		return fmt.Errorf("failed to initialize strategy: %w", err)
	}

	e.log.Info().
		Float64("initial_capital", e.cfg.InitialCapital).
		Float64("fee_rate", e.cfg.FeeRate).
		Float64("slippage_rate", e.cfg.SlippageRate).
		Msg("Starting backtest")

	for e.index = 0; e.index < len(e.data); e.index++ {
		e.recordEquity(e.data[e.index])

		sig, err := strategy.GenerateSignal(e)
		if err != nil {
			e.log.Warn().Err(err).Msg("Strategy error, skipping candle")
			continue
		}
		if sig == nil {
			continue
		}
		if err := e.ExecuteSignal(sig); err != nil {
			e.log.Warn().Err(err).Str("side", string(sig.Side)).Msg("Signal not executed")
		}
	}

	// Liquidate at the last candle so metrics include the open position
	if e.Position != nil {
		e.index = len(e.data) - 1
		err := e.executeSell(&Signal{
			Symbol:    e.Position.Symbol,
			Side:      engine.ActionSell,
			Reasoning: "End of backtest",
		}, e.data[e.index])
		if err != nil {
			e.log.Warn().Err(err).Msg("Failed to liquidate final position")
		}
		e.index = len(e.data)
	}

	if err := strategy.Finalize(e); err != nil {
		e.log.Warn().Err(err).Msg("Strategy finalize failed")
	}

	e.log.Info().
		Int("trades", len(e.Trades)).
		Float64("final_equity", e.Equity()).
		Msg("Backtest complete")

	return nil
}
