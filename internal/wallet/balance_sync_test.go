package wallet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metlabs/metlabs_back/internal/logging"
)

type stubReader struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	calls    int
}

func (r *stubReader) BalanceOf(_ context.Context, address string) (decimal.Decimal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	amount, ok := r.balances[address]
	if !ok {
		return decimal.Zero, errors.New("rpc unavailable")
	}
	return amount, nil
}

func (r *stubReader) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

func TestSyncOnceUpdatesOwnedWallets(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.Create(ctx, Wallet{ID: "w1", Address: addrA, OwnerID: "u1"}))
	require.NoError(t, repo.Create(ctx, Wallet{ID: "w2", Address: addrB, OwnerID: "u2"}))
	require.NoError(t, repo.Create(ctx, Wallet{ID: "w3", Address: "0x0000000000000000000000000000000000000001"}))

	reader := &stubReader{balances: map[string]decimal.Decimal{addrA: decimal.RequireFromString("1.5")}}
	syncer := NewBalanceSyncer(repo, reader, logging.Discard())

	updated, err := syncer.SyncOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 2, reader.callCount(), "orphan wallets are not refreshed")

	w, err := repo.FindByAddress(ctx, addrA)
	require.NoError(t, err)
	assert.True(t, w.Balance.Valid)
	assert.True(t, w.Balance.Amount.Equal(decimal.RequireFromString("1.5")))

	w, err = repo.FindByAddress(ctx, addrB)
	require.NoError(t, err)
	assert.False(t, w.Balance.Valid)
}

func TestScheduleRunsSync(t *testing.T) {
	repo := NewMemoryRepository()
	require.NoError(t, repo.Create(context.Background(), Wallet{ID: "w1", Address: addrA, OwnerID: "u1"}))
	reader := &stubReader{balances: map[string]decimal.Decimal{addrA: decimal.NewFromInt(2)}}
	syncer := NewBalanceSyncer(repo, reader, logging.Discard())

	sched, err := gocron.NewScheduler()
	require.NoError(t, err)
	_, err = syncer.Schedule(sched, 20*time.Millisecond)
	require.NoError(t, err)
	sched.Start()
	t.Cleanup(func() { _ = sched.Shutdown() })

	require.Eventually(t, func() bool {
		w, err := repo.FindByAddress(context.Background(), addrA)
		return err == nil && w.Balance.Valid
	}, 2*time.Second, 10*time.Millisecond)
}
