package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func submitAndWait(t *testing.T, l *InMemory, op Operation) (string, error) {
	t.Helper()
	ctx := context.Background()
	signer, err := l.ConnectSigner(ctx)
	if err != nil {
		t.Fatalf("connect signer: %v", err)
	}
	contract, err := l.Contract(ctx)
	if err != nil {
		t.Fatalf("contract: %v", err)
	}
	handle, err := l.Submit(ctx, signer, contract, op)
	if err != nil {
		return "", err
	}
	return l.AwaitConfirmation(ctx, handle)
}

func TestInMemory_IncreaseThenDecrease(t *testing.T) {
	l := NewInMemory()

	hash, err := submitAndWait(t, l, OpIncreaseBalance)
	if err != nil {
		t.Fatalf("increase: %v", err)
	}
	if len(hash) != 66 {
		t.Fatalf("expected 0x-prefixed 32 byte hash, got %q", hash)
	}
	if l.Counter() != 1 {
		t.Fatalf("expected counter 1, got %d", l.Counter())
	}

	if _, err := submitAndWait(t, l, OpDecreaseBalance); err != nil {
		t.Fatalf("decrease: %v", err)
	}
	if l.Counter() != 0 {
		t.Fatalf("expected counter 0, got %d", l.Counter())
	}
}

func TestInMemory_DecreaseBelowZeroReverts(t *testing.T) {
	l := NewInMemory()

	if _, err := submitAndWait(t, l, OpDecreaseBalance); !errors.Is(err, ErrReverted) {
		t.Fatalf("expected revert, got %v", err)
	}
	if l.Counter() != 0 {
		t.Fatalf("reverted transaction must not change state, got %d", l.Counter())
	}
}

func TestInMemory_UnknownOperation(t *testing.T) {
	l := NewInMemory()
	if _, err := submitAndWait(t, l, Operation("mint")); !errors.Is(err, ErrUnknownOperation) {
		t.Fatalf("expected unknown operation, got %v", err)
	}
	if l.Submissions() != 0 {
		t.Fatalf("unknown operation must not be submitted")
	}
}

func TestInMemory_Unavailable(t *testing.T) {
	l := NewInMemory()
	l.SetUnavailable(true)
	if _, err := l.ConnectSigner(context.Background()); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestInMemory_HeldConfirmationTimesOut(t *testing.T) {
	l := NewInMemory()
	l.HoldConfirmations(true, 20*time.Millisecond)

	start := time.Now()
	_, err := submitAndWait(t, l, OpIncreaseBalance)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("confirmation bound not honoured")
	}
}

func TestInMemory_ConcurrentSubmissionsHaveDistinctHashes(t *testing.T) {
	l := NewInMemory()
	const n = 20

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		hashes = make(map[string]struct{}, n)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			hash, err := submitAndWait(t, l, OpIncreaseBalance)
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			mu.Lock()
			hashes[hash] = struct{}{}
			mu.Unlock()
		}()
	}
	wg.Wait()

	if len(hashes) != n {
		t.Fatalf("expected %d distinct hashes, got %d", n, len(hashes))
	}
	if l.Counter() != n {
		t.Fatalf("expected counter %d, got %d", n, l.Counter())
	}
}

func TestInMemory_BalanceOf(t *testing.T) {
	l := NewInMemory()
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"
	l.SeedBalance(addr, decimal.RequireFromString("0.25"))

	got, err := l.BalanceOf(context.Background(), "0x52908400098527886e0f7030069857d2e4169ee7")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !got.Equal(decimal.RequireFromString("0.25")) {
		t.Fatalf("expected 0.25, got %s", got)
	}
}
