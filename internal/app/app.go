package app

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"uah-rates-bot/internal/alerting"
	"uah-rates-bot/internal/bot"
	"uah-rates-bot/internal/config"
	"uah-rates-bot/internal/fetcher"
	"uah-rates-bot/internal/httpapi"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/scheduler"
	"uah-rates-bot/internal/service"
	"uah-rates-bot/internal/storage"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Out    io.Writer
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger(), Out: os.Stdout}
}

func (a *App) newAggregator() *fetcher.Aggregator {
	src := a.Config.Sources
	opts := func(url string) fetcher.Options {
		return fetcher.Options{BaseURL: url, Timeout: src.RequestTimeout, UserAgent: src.UserAgent}
	}
	sources := fetcher.NewDefaultSources(opts(src.NBUURL), opts(src.MonobankURL), opts(src.PrivatBankURL), a.Logger)
	return fetcher.NewAggregator(sources, a.Config.Location(), a.Logger)
}

func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	return storage.Open(ctx, a.Config.Storage, storage.WithHistoryLimit(a.Config.History.MaxEntries))
}

func (a *App) newRates(f fetcher.RatesFetcher, store storage.Store) *service.Rates {
	return service.NewRates(f, store, a.Config.History.ChangeWindow, a.Logger)
}

// newNotifier prefers the running bot, then a bare Bot API client, then the log.
func (a *App) newNotifier(b *bot.Bot) alerting.Notifier {
	tg := a.Config.Telegram
	switch {
	case b != nil:
		return b
	case tg.BotToken != "":
		return alerting.NewTelegramNotifier(tg.BotToken, tg.APIBase, a.Config.Alerting.SendTimeout, a.Logger)
	}
	a.Logger.Warn().Msg("telegram.bot_token not configured; alerts are only logged")
	return alerting.NewLogNotifier(a.Logger)
}

// Run executes the long-running bot service.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("close store")
		}
	}()

	agg := a.newAggregator()
	a.logStartupRates(ctx, agg)

	rates := a.newRates(agg, store)

	var tgBot *bot.Bot
	if a.Config.Telegram.Enabled {
		tgBot, err = bot.New(a.Config.Telegram.BotToken, a.Config.Telegram.APIBase, rates, bot.Options{
			AdminIDs:       a.Config.Telegram.AdminIDs,
			Location:       a.Config.Location(),
			MaxPoints:      a.Config.Export.MaxDataPoints,
			PollTimeout:    a.Config.Telegram.PollTimeout,
			RequestTimeout: a.Config.Alerting.SendTimeout,
		}, a.Logger)
		if err != nil {
			return err
		}
	}

	sched := a.Config.Scheduler
	g, gctx := errgroup.WithContext(ctx)

	ingestor := service.NewIngestor(scheduler.New(ingestSchedule(sched), a.Logger),
		agg, store, store, sched.AdvisoryLockKey, a.Logger)
	g.Go(func() error { return ingestor.Run(gctx) })

	if a.Config.Alerting.Enabled {
		evaluator := service.NewEvaluator(scheduler.New(alertSchedule(sched), a.Logger),
			agg, store, store, a.newNotifier(tgBot), a.Config.Alerting.SendTimeout, a.Logger)
		g.Go(func() error { return evaluator.Run(gctx) })
	} else {
		a.Logger.Warn().Msg("alerting disabled")
	}

	if tgBot != nil {
		g.Go(func() error { return tgBot.Run(gctx) })
	}

	if a.Config.HTTP.Enabled {
		srv := httpapi.New(rates, store, a.Logger)
		g.Go(func() error { return srv.Run(gctx, a.Config.HTTP.Addr) })
	}

	a.Logger.Info().
		Str("storage", a.Config.Storage.Driver).
		Bool("telegram", tgBot != nil).
		Bool("http", a.Config.HTTP.Enabled).
		Msg("starting rates service")

	err = g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("rates service stopped")
	return nil
}

func ingestSchedule(sched config.SchedulerConfig) scheduler.Options {
	return scheduler.Options{
		Name:         "ingest",
		Interval:     sched.IngestInterval,
		AlignToStart: sched.AlignToBucket,
		StartupDelay: sched.StartupDelay,
		Immediate:    true,
	}
}

// alertSchedule ignores bucket alignment: the first cycle runs a full alert
// interval after start.
func alertSchedule(sched config.SchedulerConfig) scheduler.Options {
	return scheduler.Options{
		Name:         "alerts",
		Interval:     sched.AlertInterval,
		StartupDelay: sched.StartupDelay,
	}
}

// logStartupRates performs one diagnostic fetch without touching history.
func (a *App) logStartupRates(ctx context.Context, f fetcher.RatesFetcher) {
	agg := f.FetchAll(ctx)
	event := a.Logger.Info()
	for _, currency := range model.Currencies {
		if sell, ok := agg.MonobankSell(currency); ok {
			event = event.Str(string(currency), sell.StringFixed(2))
		}
	}
	event.Msg("initial rates loaded")
}
