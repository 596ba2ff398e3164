package wallet

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/metlabs/metlabs_back/internal/identity"
)

// Wallet is an on-chain address known to the system. OwnerID is empty for
// an orphaned wallet that no user has claimed.
type Wallet struct {
	ID        string
	Address   string
	OwnerID   string
	CreatedAt time.Time
	Balance   Balance
}

// Balance is the cached native balance of the address in ETH. Valid is
// false until the first successful refresh.
type Balance struct {
	Amount    decimal.Decimal
	Valid     bool
	CheckedAt time.Time
}

// Binding pairs a wallet with its owning user.
type Binding struct {
	Wallet Wallet
	Owner  identity.User
}
