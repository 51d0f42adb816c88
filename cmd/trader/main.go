package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/jhj/kis_autotrader/internal/config"
	"github.com/jhj/kis_autotrader/internal/domain"
	"github.com/jhj/kis_autotrader/internal/infrastructure/broker"
	"github.com/jhj/kis_autotrader/internal/infrastructure/logger"
	"github.com/jhj/kis_autotrader/internal/infrastructure/metrics"
	"github.com/jhj/kis_autotrader/internal/infrastructure/notifier"
	"github.com/jhj/kis_autotrader/internal/infrastructure/storage"
	"github.com/jhj/kis_autotrader/internal/usecase"
	"github.com/jhj/kis_autotrader/internal/web"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "trader: %v\n", err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:  "trader",
		Usage: "KIS equity auto-trader",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "config", Aliases: []string{"c"}, Usage: "path to config file", Value: "config/config.yaml"},
			&cli.BoolFlag{Name: "debug", Usage: "debug logging and the short open-market interval"},
		},
		Action: runTrader,
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "run the trading loop",
				Action: runTrader,
			},
			{
				Name:      "analyze",
				Usage:     "print the current signal for one symbol without trading",
				ArgsUsage: "<symbol>",
				Action:    runAnalyze,
			},
		},
	}
}

// app holds what both commands share: config, logger, broker and the signal engine.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	prom    *metrics.Prometheus
	broker  *broker.KISClient
	signals *usecase.SignalEngine
}

func setup(cmd *cli.Command) (*app, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := cfg.Logging.Level
	if cmd.Bool("debug") {
		level = "debug"
	}
	log, err := logger.NewFileLogger(cfg.Logging.File, level)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	prom := metrics.NewPrometheus()
	b := cfg.Broker
	client := broker.NewKISClient(broker.Config{
		AppKey:         cfg.KIS.AppKey,
		AppSecret:      cfg.KIS.AppSecret,
		BaseURL:        cfg.KIS.BaseURL,
		AccountNo:      cfg.KIS.AccountNo,
		RequestTimeout: b.RequestTimeout,
		MinInterval:    b.MinInterval,
		Retry: broker.RetryPolicy{
			MaxAttempts: b.MaxAttempts,
			BaseDelay:   b.BaseDelay,
			Multiplier:  b.Multiplier,
			MaxDelay:    b.MaxDelay,
		},
		FallbackAfterTimeouts: b.FallbackAfterTimeouts,
		RecoveryProbeInterval: b.RecoveryProbeInterval,
	}, storage.NewFileTokenStore(b.TokenFile), log, broker.WithObserver(prom))

	s := cfg.Strategy
	strategy, err := usecase.NewStrategy(s.Kind,
		usecase.HybridParams{MinBuyScore: s.MinBuyScore, MinSellScore: s.MinSellScore},
		usecase.MomentumParams{
			Period:          s.Momentum.Period,
			Threshold:       s.Momentum.Threshold,
			VolumeThreshold: s.Momentum.VolumeThreshold,
			MAShort:         s.Momentum.MAShort,
			MALong:          s.Momentum.MALong,
		})
	if err != nil {
		return nil, err
	}
	signals := usecase.NewSignalEngine(client, strategy, usecase.SignalEngineConfig{
		DailyCacheTTL: s.DailyCacheTTL,
		DailyLookback: s.DailyLookback,
		MinuteWindow:  s.MinuteWindow,
		RequireTiming: s.TimingRequired(),
	}, log)

	return &app{cfg: cfg, log: log, prom: prom, broker: client, signals: signals}, nil
}

func runTrader(ctx context.Context, cmd *cli.Command) error {
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()
	cfg, log := a.cfg, a.log

	log.Info("Starting trader",
		zap.Bool("paper", cfg.PaperTrading()),
		zap.String("strategy", cfg.Strategy.Kind),
		zap.Bool("debug", cmd.Bool("debug")))

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	journal, err := storage.NewSQLiteJournal(cfg.Storage.JournalDB)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer journal.Close()

	n := cfg.Notification
	var notify domain.Notifier = notifier.NewLogNotifier(log)
	if n.DiscordWebhook != "" {
		notify = notifier.Multi{
			notify,
			notifier.NewDiscordNotifier(n.DiscordWebhook, notifier.Filter{Trades: n.NotifyOnTrade, Errors: n.NotifyOnError}, log),
		}
	}

	pm := cfg.PositionManagement
	ledger, err := usecase.NewPositionLedger(ctx, storage.NewJSONLedgerStore(pm.LedgerFile), usecase.LedgerLimits{
		MaxPurchasesPerSymbol: pm.MaxPurchasesPerSymbol,
		MaxQuantityPerSymbol:  pm.MaxQuantityPerSymbol,
		MinHoldingPeriod:      pm.MinHoldingPeriod,
		PurchaseCooldown:      pm.PurchaseCooldown,
	}, log)
	if err != nil {
		return err
	}

	hub := web.NewHub(log)
	executor := usecase.NewOrderExecutor(a.broker, ledger, notify, usecase.ExecutorConfig{
		OrderTimeout:       cfg.Order.Timeout,
		PollInterval:       cfg.Order.PollInterval,
		PriceOffsetPct:     cfg.Order.PriceOffsetPct,
		PartialFillAllowed: cfg.Trading.AllowPartialFill(),
		MaxSellEscalations: cfg.Order.MaxSellEscalations,
		MarketFallback:     cfg.Order.AllowMarketFallback(),
	}, log, usecase.WithJournal(journal), usecase.WithEvents(hub), usecase.WithMetrics(a.prom))
	defer executor.Shutdown()

	state := usecase.NewTraderState()
	t := cfg.Trading
	guard := usecase.NewRiskGuard(ledger, executor, a.signals, notify, state, usecase.RiskConfig{
		StopLossPct:     t.StopLossPct,
		TakeProfitPct:   t.TakeProfitPct,
		SellSignalFloor: t.SellSignalFloor,
		DailyLossLimit:  t.DailyLossLimit,
	}, a.prom, log)

	schedule, err := usecase.NewMarketSchedule(cfg.Schedule.Open, cfg.Schedule.Close, cfg.Schedule.Holidays)
	if err != nil {
		return fmt.Errorf("schedule: %w", err)
	}
	summary := usecase.NewDailySummaryService(journal, notify, n.NotifyDailySummary, log)

	var watchlist usecase.WatchlistSource
	var loader *storage.WatchlistLoader
	if len(t.Symbols) > 0 {
		watchlist = usecase.StaticWatchlist(t.Symbols)
	} else {
		loader, err = storage.NewWatchlistLoader(cfg.Watchlist.File, cfg.Watchlist.MinReturnThreshold, t.MaxSymbols, log)
		if err != nil {
			return fmt.Errorf("load watchlist: %w", err)
		}
		loader.OnChange(func(_, items []domain.WatchItem) {
			symbols := make([]string, 0, len(items))
			for _, it := range items {
				symbols = append(symbols, it.Symbol)
			}
			hub.Publish(domain.Event{Type: "watchlist", Message: strings.Join(symbols, ",")})
		})
		watchlist = loader
	}

	interval := cfg.Schedule.CheckInterval
	if cmd.Bool("debug") {
		interval = cfg.Schedule.DebugInterval
	}
	loop := usecase.NewTradingLoop(a.broker, ledger, executor, guard, a.signals, watchlist, schedule, state, summary, a.prom,
		usecase.LoopConfig{
			Interval:        interval,
			ClosedInterval:  cfg.Schedule.ClosedInterval,
			PositionRefresh: cfg.Schedule.PositionRefresh,
			MinBuyStrength:  t.MinBuyStrength,
			MaxDailyTrades:  t.MaxDailyTrades,
			Sizing:          usecase.SizingConfig{MaxPositionRatio: t.MaxPositionRatio, MinInvestment: t.MinInvestment},
		}, log)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return loop.Run(gctx) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	if loader != nil && cfg.Watchlist.Watch {
		g.Go(func() error {
			if err := loader.Watch(gctx); err != nil {
				log.Warn("Watchlist watcher stopped", zap.Error(err))
			}
			return nil
		})
	}
	if cfg.Server.Enabled {
		server := web.NewServer(cfg.Server.Port, state, ledger, executor, journal, hub, a.prom.Handler(), log)
		g.Go(server.Start)
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("Trader stopped with error", zap.Error(err))
		return err
	}
	log.Info("Trader stopped")
	return nil
}

func runAnalyze(ctx context.Context, cmd *cli.Command) error {
	symbol := cmd.Args().First()
	if symbol == "" {
		return errors.New("usage: trader analyze <symbol>")
	}
	a, err := setup(cmd)
	if err != nil {
		return err
	}
	defer a.log.Sync()

	sig, err := a.signals.Evaluate(ctx, symbol)
	if err != nil {
		return fmt.Errorf("evaluate %s: %w", symbol, err)
	}
	name, err := a.broker.GetStockName(ctx, symbol)
	if err != nil {
		name = symbol
	}

	fmt.Printf("%s (%s) [%s]\n", name, symbol, sig.Strategy)
	fmt.Printf("  action:   %s\n", sig.Action)
	fmt.Printf("  strength: %.1f\n", sig.Strength)
	fmt.Printf("  price:    %d\n", sig.Price)
	if len(sig.Reasons) > 0 {
		fmt.Printf("  reasons:  %s\n", strings.Join(sig.Reasons, ", "))
	}
	return nil
}
