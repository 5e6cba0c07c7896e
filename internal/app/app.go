package app

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"coin-screener/internal/alerting"
	"coin-screener/internal/broadcast"
	"coin-screener/internal/config"
	"coin-screener/internal/fetcher"
	"coin-screener/internal/service"
	"coin-screener/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

func (a *App) newSource() fetcher.TickerSource {
	return fetcher.NewBinance(fetcher.BinanceOptions{
		BaseURL:    a.Config.Binance.BaseURL,
		QuoteAsset: a.Config.Binance.QuoteAsset,
		Timeout:    a.Config.Binance.RequestTimeout,
		UserAgent:  a.Config.Binance.UserAgent,
	}, a.Logger)
}

func (a *App) newNotifier() alerting.Notifier {
	if a.Config.Alerting.Telegram.Enabled {
		cfg := a.Config.Alerting.Telegram
		return alerting.NewTelegramNotifier(cfg.BotToken, cfg.ChatID, cfg.APIBase, 10*time.Second, a.Logger)
	}
	return nil
}

func (a *App) openStore(ctx context.Context) (*storage.Store, func(), error) {
	if a.Config.Database.DSN == "" {
		return nil, nil, nil
	}

	pool, err := storage.NewPool(ctx, a.Config.Database)
	if err != nil {
		return nil, nil, err
	}

	store := storage.NewStore(pool)
	closer := func() {
		store.Close()
	}
	return store, closer, nil
}

// Run executes the long-running screening service: the polling engine plus
// the persistence, alerting, and status subscribers.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	if store == nil {
		a.Logger.Warn().Msg("database.dsn not configured; persistence disabled")
	}
	if closeStore != nil {
		defer closeStore()
	}

	bus := broadcast.New(16, a.Logger)
	defer bus.Close()

	if store != nil {
		recorder := storage.NewRecorder(store, a.Config.Database.WriteTimeout, a.Logger)
		bus.Subscribe("recorder", recorder)
	}

	if a.Config.Alerting.Enabled {
		if notifier := a.newNotifier(); notifier != nil {
			watcher := alerting.NewMoveWatcher(
				notifier,
				decimal.NewFromFloat(a.Config.Alerting.ThresholdPct),
				a.Config.Alerting.Cooldown,
				a.Logger,
			)
			bus.Subscribe("move_watcher", watcher)
		} else {
			a.Logger.Warn().Msg("alerting enabled but no channel configured")
		}
	}

	bus.Subscribe("status", a.statusConsumer())

	engine := service.NewEngine(service.Options{
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
		TopN:         a.Config.Binance.TopN,
		QuoteAsset:   a.Config.Binance.QuoteAsset,
		FetchTimeout: a.Config.Binance.RequestTimeout,
	}, a.newSource(), bus, a.Logger)

	a.Logger.Info().Msg("starting screening service")
	if err := engine.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	engine.Stop()

	a.Logger.Info().Msg("screening service stopped")
	return nil
}

// statusConsumer replays the per-cycle heartbeat the desktop status bar used
// to show.
func (a *App) statusConsumer() broadcast.Consumer {
	logger := a.Logger.With().Str("component", "status").Logger()
	return broadcast.ConsumerFunc(func(result broadcast.CycleResult) error {
		if result.Failed() {
			logger.Warn().Err(result.Err).Uint64("seq", result.Seq).Msg("cycle failed; retrying next tick")
			return nil
		}
		logger.Info().
			Uint64("seq", result.Seq).
			Int("tracked", len(result.Metrics)).
			Int("scanned", result.Scanned).
			Int("rejected", result.Rejected).
			Msg("cycle complete")
		return nil
	})
}

// ReportOptions configure the ranking report command.
type ReportOptions struct {
	TopK int
}

// ShowOptions configure the show command.
type ShowOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting one symbol's history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// ScrapeOptions configure the one-off ticker export job.
type ScrapeOptions struct {
	OutPath string
	Limit   int
}
