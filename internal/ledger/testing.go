package ledger

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// SeedBalance sets the native balance reported for address.
func (l *InMemory) SeedBalance(address string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.native[common.HexToAddress(address)] = amount
}

// SetUnavailable makes every call fail with ErrUnavailable.
func (l *InMemory) SetUnavailable(unavailable bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.unavailable = unavailable
}

// HoldConfirmations makes AwaitConfirmation wait until its bound elapses.
func (l *InMemory) HoldConfirmations(hold bool, timeout time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.hold = hold
	if timeout > 0 {
		l.confirmTimeout = timeout
	}
}

// RevertNext makes the next submitted transaction revert.
func (l *InMemory) RevertNext() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.revertNext = true
}

// Submissions reports how many transactions were submitted.
func (l *InMemory) Submissions() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.submissions
}

// Counter returns the contract-side balance counter of the in-memory signer.
func (l *InMemory) Counter() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.counters[inMemorySigner]
}
