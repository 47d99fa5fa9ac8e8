package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"uah-rates-bot/internal/fetcher"
	"uah-rates-bot/internal/model"
	"uah-rates-bot/internal/scheduler"
	"uah-rates-bot/internal/storage"
)

// Ingestor periodically records monobank quotes into the history log.
type Ingestor struct {
	scheduler *scheduler.Scheduler
	rates     fetcher.RatesFetcher
	history   storage.HistoryStore
	locker    storage.AdvisoryLocker
	lockKey   int64
	logger    zerolog.Logger
}

// NewIngestor wires the ingestion loop. A nil locker disables single-writer locking.
func NewIngestor(sched *scheduler.Scheduler, rates fetcher.RatesFetcher, history storage.HistoryStore, locker storage.AdvisoryLocker, lockKey int64, logger zerolog.Logger) *Ingestor {
	return &Ingestor{
		scheduler: sched,
		rates:     rates,
		history:   history,
		locker:    locker,
		lockKey:   lockKey,
		logger:    logger.With().Str("component", "ingestor").Logger(),
	}
}

// Run blocks in the ingestion loop until ctx is cancelled.
func (i *Ingestor) Run(ctx context.Context) error {
	if i.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}
	return i.scheduler.Run(ctx, i.Tick)
}

// Tick performs one ingestion cycle.
func (i *Ingestor) Tick(ctx context.Context, bucket time.Time) error {
	unlock, proceed, err := i.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		i.logger.Debug().Time("bucket", bucket).Msg("skip tick because advisory lock held elsewhere")
		return nil
	}
	if unlock != nil {
		defer unlock()
	}

	agg := i.rates.FetchAll(ctx)
	recorded, err := i.Record(ctx, agg)
	i.logger.Info().Time("bucket", bucket).Int("recorded", recorded).Msg("rates ingested")
	return err
}

// Record appends every monobank quote present in agg. Currencies are
// recorded independently; failures are joined into the returned error.
func (i *Ingestor) Record(ctx context.Context, agg model.AggregateRates) (int, error) {
	var (
		recorded int
		errs     []error
	)
	for _, currency := range model.Currencies {
		q := agg.For(currency).Monobank
		if q == nil {
			continue
		}
		if _, err := i.history.AppendQuote(ctx, *q); err != nil {
			errs = append(errs, fmt.Errorf("append %s: %w", currency, err))
			continue
		}
		recorded++
	}
	return recorded, errors.Join(errs...)
}

func (i *Ingestor) acquireLock(ctx context.Context) (func(), bool, error) {
	if i.locker == nil {
		return nil, true, nil
	}
	unlock, ok, err := i.locker.TryAdvisoryLock(ctx, i.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	return unlock, ok, nil
}
