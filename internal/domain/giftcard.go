package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// GiftCardStatus is the lifecycle state of a stored-value card.
type GiftCardStatus string

const (
	GiftCardStatusInactive  GiftCardStatus = "inactive"
	GiftCardStatusActive    GiftCardStatus = "active"
	GiftCardStatusDepleted  GiftCardStatus = "depleted"
	GiftCardStatusExpired   GiftCardStatus = "expired"
	GiftCardStatusCancelled GiftCardStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s GiftCardStatus) Terminal() bool {
	return s == GiftCardStatusExpired || s == GiftCardStatusCancelled
}

// Gift card transaction type tags.
const (
	CardTxActivation   = "activation"
	CardTxLoad         = "load"
	CardTxRedemption   = "redemption"
	CardTxExpiration   = "expiration"
	CardTxCancellation = "cancellation"
)

// GiftCard composes a ledger for value tracking with a status state machine
// driven by balance changes. The card never duplicates the running balance;
// it owns exactly one LedgerState.
type GiftCard struct {
	ID          string
	Code        string
	Status      GiftCardStatus
	Ledger      LedgerState
	ExpiresAt   *time.Time
	ActivatedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Balance reads the card's value from the underlying ledger.
func (g *GiftCard) Balance() decimal.Decimal {
	return g.Ledger.Balance
}

// OnBalanceChanged flips the card between Active and Depleted exactly at the
// zero-balance boundary. Other statuses are driven by explicit commands.
func (g *GiftCard) OnBalanceChanged(prev, next decimal.Decimal) {
	switch {
	case g.Status == GiftCardStatusActive && next.IsZero() && prev.IsPositive():
		g.Status = GiftCardStatusDepleted
	case g.Status == GiftCardStatusDepleted && next.IsPositive():
		g.Status = GiftCardStatusActive
	}
}

// LedgerState exposes the owned ledger to the ledger engine.
func (g *GiftCard) LedgerState() *LedgerState {
	return &g.Ledger
}

// Clone returns a deep copy of the card.
func (g *GiftCard) Clone() *GiftCard {
	out := *g
	out.Ledger = g.Ledger.Clone()
	if g.ExpiresAt != nil {
		t := *g.ExpiresAt
		out.ExpiresAt = &t
	}
	if g.ActivatedAt != nil {
		t := *g.ActivatedAt
		out.ActivatedAt = &t
	}
	return &out
}
