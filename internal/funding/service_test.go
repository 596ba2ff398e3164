package funding

import (
	"context"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metlabs/metlabs_back/internal/apperr"
	"github.com/metlabs/metlabs_back/internal/identity"
	"github.com/metlabs/metlabs_back/internal/ledger"
	"github.com/metlabs/metlabs_back/internal/logging"
	"github.com/metlabs/metlabs_back/internal/wallet"
)

const boundAddress = "0x52908400098527886E0F7030069857D2E4169EE7"

// spyGateway counts every call that reaches the ledger.
type spyGateway struct {
	*ledger.InMemory
	calls atomic.Int32
}

func (s *spyGateway) ConnectSigner(ctx context.Context) (ledger.Signer, error) {
	s.calls.Add(1)
	return s.InMemory.ConnectSigner(ctx)
}

func (s *spyGateway) Contract(ctx context.Context) (ledger.Contract, error) {
	s.calls.Add(1)
	return s.InMemory.Contract(ctx)
}

func (s *spyGateway) Submit(ctx context.Context, signer ledger.Signer, contract ledger.Contract, op ledger.Operation) (ledger.TxHandle, error) {
	s.calls.Add(1)
	return s.InMemory.Submit(ctx, signer, contract, op)
}

func setupFunding(t *testing.T) (*Service, *spyGateway) {
	t.Helper()
	ctx := context.Background()
	users := identity.NewMemoryRepository()
	require.NoError(t, users.Create(ctx, identity.User{ID: "u1", Name: "Ada", Email: "a@x.com", CreatedAt: time.Now()}))
	require.NoError(t, users.Create(ctx, identity.User{ID: "u2", Name: "Bob", Email: "b@x.com", CreatedAt: time.Now()}))

	wallets := wallet.NewService(wallet.NewMemoryRepository(), users, wallet.NewLocalLocker(), logging.Discard())
	_, err := wallets.Bind(ctx, "u1", boundAddress)
	require.NoError(t, err)

	gw := &spyGateway{InMemory: ledger.NewInMemory()}
	svc, err := NewService(gw, wallets, logging.Discard())
	require.NoError(t, err)
	return svc, gw
}

func TestDepositAndWithdraw(t *testing.T) {
	svc, gw := setupFunding(t)
	ctx := context.Background()

	dep, err := svc.Deposit(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, DepositMessage, dep.Message)
	assert.True(t, strings.HasPrefix(dep.TransactionHash, "0x"))
	assert.Equal(t, boundAddress, dep.WalletAddress)
	assert.Equal(t, int64(1), gw.Counter())

	wd, err := svc.Withdraw(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, WithdrawMessage, wd.Message)
	assert.NotEqual(t, dep.TransactionHash, wd.TransactionHash)
	assert.Equal(t, int64(0), gw.Counter())
}

func TestUnknownUserNeverReachesLedger(t *testing.T) {
	svc, gw := setupFunding(t)

	_, err := svc.Deposit(context.Background(), "nonexistent")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	_, err = svc.Withdraw(context.Background(), "nonexistent")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.Zero(t, gw.calls.Load())
	assert.Zero(t, gw.Submissions())
}

func TestUserWithoutWalletNeverReachesLedger(t *testing.T) {
	svc, gw := setupFunding(t)

	_, err := svc.Deposit(context.Background(), "u2")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Zero(t, gw.calls.Load())
}

func TestEmptyUserID(t *testing.T) {
	svc, _ := setupFunding(t)
	_, err := svc.Deposit(context.Background(), " ")
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestLedgerUnavailableIsConfigurationError(t *testing.T) {
	svc, gw := setupFunding(t)
	gw.SetUnavailable(true)

	_, err := svc.Deposit(context.Background(), "u1")
	assert.True(t, apperr.Is(err, apperr.KindConfiguration))
	assert.Zero(t, gw.Submissions())
}

func TestRevertIsTransactionFailed(t *testing.T) {
	svc, gw := setupFunding(t)

	_, err := svc.Withdraw(context.Background(), "u1")
	assert.True(t, apperr.Is(err, apperr.KindTransactionFailed))

	gw.RevertNext()
	_, err = svc.Deposit(context.Background(), "u1")
	assert.True(t, apperr.Is(err, apperr.KindTransactionFailed))
}

func TestConfirmationTimeout(t *testing.T) {
	svc, gw := setupFunding(t)
	gw.HoldConfirmations(true, 20*time.Millisecond)

	_, err := svc.Deposit(context.Background(), "u1")
	require.True(t, apperr.Is(err, apperr.KindTimeout), "got %v", err)

	var appErr *apperr.Error
	require.ErrorAs(t, err, &appErr)
	assert.Contains(t, appErr.PublicMessage(), "0x", "timeout must surface the transaction hash")
}

func TestCallerCancellationIsTimeout(t *testing.T) {
	svc, gw := setupFunding(t)
	gw.HoldConfirmations(true, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := svc.Deposit(ctx, "u1")
	assert.True(t, apperr.Is(err, apperr.KindTimeout))
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(nil, nil, logging.Discard())
	assert.Error(t, err)
}
