package wallet

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/metlabs/metlabs_back/internal/metrics"
)

const defaultSyncBatch = 100

// BalanceReader reads the native balance of an address in ETH.
type BalanceReader interface {
	BalanceOf(ctx context.Context, address string) (decimal.Decimal, error)
}

// BalanceSyncer refreshes the cached wallet balances from the chain.
type BalanceSyncer struct {
	repo   Repository
	reader BalanceReader
	logger *zap.Logger
	batch  int
	now    func() time.Time
}

func NewBalanceSyncer(repo Repository, reader BalanceReader, logger *zap.Logger) *BalanceSyncer {
	return &BalanceSyncer{repo: repo, reader: reader, logger: logger, batch: defaultSyncBatch, now: time.Now}
}

// SyncOnce refreshes up to one batch of owned wallets and returns how many
// were updated. A failing address is logged and skipped.
func (b *BalanceSyncer) SyncOnce(ctx context.Context) (int, error) {
	wallets, err := b.repo.ListOwned(ctx, b.batch)
	if err != nil {
		metrics.ObserveBalanceSync("error")
		return 0, err
	}

	updated := 0
	for _, w := range wallets {
		if ctx.Err() != nil {
			break
		}
		amount, err := b.reader.BalanceOf(ctx, w.Address)
		if err != nil {
			metrics.ObserveBalanceSync("error")
			b.logger.Warn("read wallet balance", zap.String("address", w.Address), zap.Error(err))
			continue
		}
		if err := b.repo.UpdateBalance(ctx, w.Address, amount, b.now()); err != nil {
			metrics.ObserveBalanceSync("error")
			b.logger.Warn("store wallet balance", zap.String("address", w.Address), zap.Error(err))
			continue
		}
		metrics.ObserveBalanceSync("success")
		updated++
	}
	b.logger.Debug("wallet balances refreshed", zap.Int("updated", updated), zap.Int("candidates", len(wallets)))
	return updated, ctx.Err()
}

// Schedule registers SyncOnce on the scheduler every interval. Runs never
// overlap; a run still in progress causes the next tick to be skipped.
func (b *BalanceSyncer) Schedule(s gocron.Scheduler, every time.Duration) (gocron.Job, error) {
	return s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), every)
			defer cancel()
			if _, err := b.SyncOnce(ctx); err != nil {
				b.logger.Warn("wallet balance sync", zap.Error(err))
			}
		}),
		gocron.WithName("wallet-balance-sync"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
}
