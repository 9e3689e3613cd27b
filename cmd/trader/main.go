package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/tempedge/config"
	"github.com/alejandrodnm/tempedge/internal/adapters/kalshi"
	"github.com/alejandrodnm/tempedge/internal/adapters/notify"
	"github.com/alejandrodnm/tempedge/internal/adapters/storage"
	"github.com/alejandrodnm/tempedge/internal/adapters/weather"
	"github.com/alejandrodnm/tempedge/internal/calibration"
	"github.com/alejandrodnm/tempedge/internal/engine"
	"github.com/alejandrodnm/tempedge/internal/executor"
	"github.com/alejandrodnm/tempedge/internal/ports"
	"github.com/alejandrodnm/tempedge/internal/risk"
	"github.com/alejandrodnm/tempedge/internal/trader"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to config file")
	once := flag.Bool("once", false, "run one trading cycle and exit")
	verbose := flag.Bool("verbose", false, "set log level to debug")
	logFormat := flag.String("format", "", "log format: text|json (overrides config)")
	table := flag.Bool("table", false, "print full per-city tables (default: compact 1-line)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", *configPath)
		os.Exit(1)
	}

	if *verbose {
		cfg.Log.Level = "debug"
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}
	setupLogger(cfg.Log)

	slog.Info("tempedge starting",
		"config", *configPath,
		"mode", cfg.Trading.Mode,
		"cities", len(cfg.Cities),
		"interval", cfg.CycleInterval(),
		"once", *once,
	)

	store, err := storage.NewStore(cfg.Storage.DSN)
	if err != nil {
		slog.Error("failed to open storage", "err", err, "dsn", cfg.Storage.DSN)
		os.Exit(1)
	}
	defer store.Close()

	signer, err := kalshi.NewSigner(cfg.Kalshi.KeyID, cfg.Kalshi.PrivateKeyPEM)
	if err != nil {
		slog.Error("failed to load kalshi credentials", "err", err)
		os.Exit(1)
	}

	// El modo paper lee market data real de producción pero simula las
	// órdenes; demo opera contra el entorno de pruebas de Kalshi.
	base := cfg.Kalshi.BaseURL
	if base == "" && cfg.Trading.Mode == "demo" {
		base = kalshi.DemoBaseURL
	}
	client := kalshi.NewClient(base, signer)

	series := make(map[string]string, len(cfg.Cities))
	stations := make(map[string]weather.Station, len(cfg.Cities))
	for code, city := range cfg.Cities {
		series[code] = city.KalshiSeries
		stations[code] = weather.Station{
			NBMStation: city.NBMStation,
			Lat:        city.Lat,
			Lon:        city.Lon,
		}
	}

	markets := kalshi.NewMarkets(client, series)

	var broker ports.Broker
	if cfg.Trading.Mode == "paper" {
		broker = kalshi.NewPaperBroker(cfg.Trading.StartingBalance)
	} else {
		broker, err = kalshi.NewBroker(client)
		if err != nil {
			slog.Error("failed to create broker", "err", err, "mode", cfg.Trading.Mode)
			os.Exit(1)
		}
	}

	nws := weather.NewNWSClient(cfg.Weather.NWSBase)
	provider := weather.NewProvider(cfg.Weather.NBMBase, nws, stations)

	riskMgr := risk.NewManager(risk.Limits{
		DailyStopLossPct: cfg.Risk.DailyStopLossPct,
		MaxOpenPositions: cfg.Risk.MaxOpenPositions,
		MaxCityPct:       cfg.Risk.MaxPositionPctPerCity,
	}, cfg.Trading.StartingBalance)

	eval := engine.NewEvaluator(engine.Gates{
		MinEdge:   cfg.Trading.MinEdge,
		FeeRate:   cfg.Trading.FeeRate,
		MaxSpread: cfg.Trading.MaxSpread,
		MinVolume: cfg.Trading.MinVolume,
		MinAsk:    cfg.Trading.MinAsk,
		MaxAsk:    cfg.Trading.MaxAsk,
	})

	exec := executor.New(broker, store, riskMgr, executor.Config{
		KellyMult:  cfg.Trading.KellyMultiplier,
		MaxCityPct: cfg.Risk.MaxPositionPctPerCity,
	})

	updater := calibration.NewUpdater(store, provider,
		cfg.Calibration.LookbackDays, cfg.Calibration.MinRecords)

	notifier := notify.NewConsole(*table)

	tr := trader.New(trader.Config{
		Cities:         cfg.CityCodes(),
		Interval:       cfg.CycleInterval(),
		MinEdge:        cfg.Trading.MinEdge,
		BracketMinEdge: cfg.Trading.BracketMinEdge,
		DryRun:         *once,
	}, trader.Deps{
		Forecast: provider,
		Markets:  markets,
		Broker:   broker,
		Store:    store,
		CalStore: store,
		Settler:  markets,
		Notifier: notifier,
		Risk:     riskMgr,
		Exec:     exec,
		Eval:     eval,
		Updater:  updater,
	})

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tr.Init(ctx)

	if err := tr.Run(ctx); err != nil {
		slog.Error("trader exited with error", "err", err)
		os.Exit(1)
	}

	slog.Info("tempedge stopped cleanly")
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
