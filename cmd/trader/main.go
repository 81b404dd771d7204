// Command trader runs trading bots against a live or paper exchange.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/pattarak/tradepilot/internal/alerts"
	"github.com/pattarak/tradepilot/internal/config"
	"github.com/pattarak/tradepilot/internal/db"
	"github.com/pattarak/tradepilot/internal/engine"
	"github.com/pattarak/tradepilot/internal/events"
	"github.com/pattarak/tradepilot/internal/exchange"
	"github.com/pattarak/tradepilot/internal/market"
	"github.com/pattarak/tradepilot/internal/onchain"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to config file (optional)")
		symbols    = flag.String("symbols", "BTC/USDT", "comma-separated trading pairs, one bot each")
		budget     = flag.Float64("budget", 1000, "quote budget per bot")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	config.InitLogger(cfg.App.LogLevel, cfg.App.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, parseSymbols(*symbols), *budget); err != nil {
		log.Fatal().Err(err).Msg("Trader exited with error")
	}
}

func run(ctx context.Context, cfg *config.Config, symbols []string, budget float64) error {
	logger := config.NewLogger("main")
	logger.Info().
		Str("mode", cfg.Trading.Mode).
		Strs("symbols", symbols).
		Float64("budget", budget).
		Msg("Starting trader")

	provider, err := buildProvider(ctx, cfg)
	if err != nil {
		return err
	}

	var store engine.TradeStore
	if cfg.Database.Host != "" {
		database, err := db.New(ctx, cfg.Database.GetDSN())
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer database.Close()
		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("migrate database: %w", err)
		}
		store = database
	} else {
		logger.Warn().Msg("No database configured; trades will not be persisted")
	}

	var bus *events.Bus
	if cfg.NATS.Enabled {
		bus, err = events.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("connect event bus: %w", err)
		}
		defer bus.Close()
	}

	var notifier alerts.Notifier
	if cfg.Telegram.Enabled {
		notifier, err = alerts.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatIDs)
		if err != nil {
			return fmt.Errorf("telegram notifier: %w", err)
		}
	}

	var filter *onchain.Filter
	if cfg.Trading.EnableOnChain {
		filter = onchain.NewFilter(onchain.NewMockProvider(time.Now().UnixNano()))
	}

	if cfg.Monitoring.EnableMetrics {
		serveMetrics(cfg.Monitoring.PrometheusPort)
	}

	registry := engine.NewRegistry()
	for _, symbol := range symbols {
		exch, err := buildExchange(cfg, symbol, budget)
		if err != nil {
			return err
		}
		configID := botID(symbol)
		trader := engine.NewTrader(
			engine.BotOptions{
				ConfigID:          configID,
				Symbol:            symbol,
				Budget:            budget,
				PositionSizeRatio: cfg.Trading.PositionSizeRatio,
			},
			cfg,
			engine.Deps{
				Provider: provider,
				Exchange: exch,
				Pipeline: engine.NewPipeline(provider, cfg.Risk, cfg.Trading.EnableMTF),
				OnChain:  filter,
				Store:    store,
				Notifier: notifier,
				Bus:      bus,
			},
		)
		registry.Add(configID, trader)
		if err := trader.Start(ctx); err != nil {
			return fmt.Errorf("start bot %s: %w", configID, err)
		}
	}

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received, stopping bots")
	if err := registry.StopAll(); err != nil && !errors.Is(err, engine.ErrNotRunning) {
		return err
	}
	logger.Info().Msg("All bots stopped")
	return nil
}

// buildProvider returns the market data source, wrapped in the shared Redis
// cache when one is configured.
func buildProvider(ctx context.Context, cfg *config.Config) (market.Provider, error) {
	client := market.NewClient(cfg.Exchange)
	if !cfg.Redis.Enabled {
		return client, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.GetRedisAddr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return market.NewCachedProvider(client, rdb), nil
}

func buildExchange(cfg *config.Config, symbol string, budget float64) (exchange.Exchange, error) {
	switch cfg.Trading.Mode {
	case "paper", "":
		quote := quoteAsset(symbol)
		return exchange.NewPaperExchange(cfg.Fees, quote, budget), nil
	case "live":
		creds := exchange.BinanceCredentials{
			APIKey:    os.Getenv("TRADEPILOT_BINANCE_API_KEY"),
			SecretKey: os.Getenv("TRADEPILOT_BINANCE_SECRET_KEY"),
		}
		if creds.APIKey == "" || creds.SecretKey == "" {
			return nil, fmt.Errorf("live mode requires TRADEPILOT_BINANCE_API_KEY and TRADEPILOT_BINANCE_SECRET_KEY")
		}
		return exchange.NewBinanceExchange(creds, cfg.Exchange), nil
	default:
		return nil, fmt.Errorf("unknown trading mode %q", cfg.Trading.Mode)
	}
}

func serveMetrics(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)

	go func() {
		log.Info().Str("addr", addr).Msg("Serving Prometheus metrics")
		server := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Metrics server failed")
		}
	}()
}

func parseSymbols(list string) []string {
	var symbols []string
	for _, s := range strings.Split(list, ",") {
		if s = strings.TrimSpace(s); s != "" {
			symbols = append(symbols, strings.ToUpper(s))
		}
	}
	return symbols
}

func botID(symbol string) string {
	return "bot-" + strings.ToLower(strings.ReplaceAll(symbol, "/", "-"))
}

func quoteAsset(symbol string) string {
	if i := strings.Index(symbol, "/"); i >= 0 {
		return symbol[i+1:]
	}
	return "USDT"
}
