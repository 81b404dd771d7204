// Command backtest replays historical candles through the decision pipeline
// and prints a performance report.
package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/engine"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/pkg/backtest"
)

// exchange klines are capped per request
const maxFetchLimit = 1000

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (optional)")
		symbol     = flag.String("symbol", "BTC/USDT", "trading pair")
		timeframe  = flag.String("timeframe", "1h", "candle timeframe (1m, 5m, 15m, 1h, 4h, 1d)")
		days       = flag.Int("days", 30, "days of history to fetch from the exchange")
		csvPath    = flag.String("csv", "", "load candles from a CSV file instead of the exchange")
		capital    = flag.Float64("capital", 10000, "initial capital in quote currency")
		fee        = flag.Float64("fee", 0.001, "commission rate per fill")
		slippage   = flag.Float64("slippage", 0.0005, "slippage rate applied to fills")
		ratio      = flag.Float64("ratio", 0.95, "fraction of cash committed per position")
		enableMTF  = flag.Bool("mtf", false, "enable multi-timeframe confirmation (needs exchange access)")
		output     = flag.String("output", "", "also write the report to this file")
		verbose    = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}

	ctx := context.Background()
	client := market.NewClient(cfg.Exchange)

	series, err := loadCandles(ctx, client, *symbol, *timeframe, *days, *csvPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load candles")
	}
	log.Info().
		Str("symbol", *symbol).
		Str("timeframe", *timeframe).
		Int("candles", len(series)).
		Time("from", series[0].Timestamp).
		Time("to", series[len(series)-1].Timestamp).
		Msg("Loaded historical data")

	e := backtest.NewEngine(backtest.Config{
		InitialCapital:    *capital,
		FeeRate:           *fee,
		SlippageRate:      *slippage,
		PositionSizeRatio: *ratio,
	})
	if err := e.LoadData(*symbol, series); err != nil {
		log.Fatal().Err(err).Msg("Failed to load data into engine")
	}

	strategy := backtest.NewPipelineStrategy(engine.NewPipeline(client, cfg.Risk, *enableMTF))

	start := time.Now()
	if err := e.Run(strategy); err != nil {
		log.Fatal().Err(err).Msg("Backtest failed")
	}
	log.Info().Dur("elapsed", time.Since(start)).Msg("Backtest complete")

	metrics, err := backtest.CalculateMetrics(e)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to calculate metrics")
	}

	report := backtest.GenerateReport(metrics)
	fmt.Println(report)

	if *output != "" {
		if err := os.WriteFile(*output, []byte(report), 0o644); err != nil {
			log.Fatal().Err(err).Str("path", *output).Msg("Failed to write report")
		}
		log.Info().Str("path", *output).Msg("Report written")
	}
}

func loadCandles(ctx context.Context, client *market.Client, symbol, timeframe string, days int, csvPath string) (market.Series, error) {
	if csvPath != "" {
		return loadCSV(csvPath)
	}

	barDur, err := timeframeDuration(timeframe)
	if err != nil {
		return nil, err
	}
	limit := int(time.Duration(days) * 24 * time.Hour / barDur)
	if limit > maxFetchLimit {
		log.Warn().
			Int("requested", limit).
			Int("capped", maxFetchLimit).
			Msg("Candle request exceeds exchange limit; using most recent window")
		limit = maxFetchLimit
	}
	if limit < 2 {
		return nil, fmt.Errorf("window too short: %d days of %s bars", days, timeframe)
	}
	return client.FetchOHLCV(ctx, symbol, timeframe, limit)
}

func timeframeDuration(timeframe string) (time.Duration, error) {
	durations := map[string]time.Duration{
		"1m":  time.Minute,
		"5m":  5 * time.Minute,
		"15m": 15 * time.Minute,
		"30m": 30 * time.Minute,
		"1h":  time.Hour,
		"4h":  4 * time.Hour,
		"1d":  24 * time.Hour,
	}
	d, ok := durations[timeframe]
	if !ok {
		return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
	return d, nil
}

// loadCSV reads candles from a file with header
// timestamp,open,high,low,close,volume where timestamp is RFC3339 or unix
// milliseconds.
func loadCSV(path string) (market.Series, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("csv %s has no data rows", path)
	}

	series := make(market.Series, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) < 6 {
			return nil, fmt.Errorf("csv row %d: expected 6 columns, got %d", i+2, len(row))
		}
		ts, err := parseTimestamp(row[0])
		if err != nil {
			return nil, fmt.Errorf("csv row %d: %w", i+2, err)
		}
		values := make([]float64, 5)
		for j := 1; j < 6; j++ {
			v, err := strconv.ParseFloat(row[j], 64)
			if err != nil {
				return nil, fmt.Errorf("csv row %d column %d: %w", i+2, j+1, err)
			}
			values[j-1] = v
		}
		series = append(series, market.Candle{
			Timestamp: ts,
			Open:      values[0],
			High:      values[1],
			Low:       values[2],
			Close:     values[3],
			Volume:    values[4],
		})
	}

	sort.Slice(series, func(i, j int) bool { return series[i].Timestamp.Before(series[j].Timestamp) })
	return series, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms).UTC(), nil
	}
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return ts.UTC(), nil
}
