package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DrawerStatus is the lifecycle state of a cash drawer.
type DrawerStatus string

const (
	DrawerStatusClosed DrawerStatus = "closed"
	DrawerStatusOpen   DrawerStatus = "open"
)

// Drawer transaction type tags.
const (
	DrawerTxOpeningFloat = "opening_float"
	DrawerTxCashSale     = "cash_sale"
	DrawerTxRefund       = "refund"
	DrawerTxPayout       = "payout"
	DrawerTxDrop         = "drop"
	DrawerTxCloseCount   = "close_count"
)

// CashDrawer composes a ledger for the expected cash balance with an
// open/closed state machine. The expected balance is always read from the
// ledger, never tracked separately.
type CashDrawer struct {
	ID         string
	RegisterID string
	Status     DrawerStatus
	Ledger     LedgerState
	OpenedBy   string
	OpenedAt   *time.Time
	ClosedAt   *time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ExpectedBalance reads the expected cash amount from the underlying ledger.
func (d *CashDrawer) ExpectedBalance() decimal.Decimal {
	return d.Ledger.Balance
}

// OnBalanceChanged is part of the ledger owner contract. Drawer status is
// driven by the open and close commands, not by the balance, so there is no
// derived state to recompute here.
func (d *CashDrawer) OnBalanceChanged(prev, next decimal.Decimal) {}

// LedgerState exposes the owned ledger to the ledger engine.
func (d *CashDrawer) LedgerState() *LedgerState {
	return &d.Ledger
}

// Clone returns a deep copy of the drawer.
func (d *CashDrawer) Clone() *CashDrawer {
	out := *d
	out.Ledger = d.Ledger.Clone()
	if d.OpenedAt != nil {
		t := *d.OpenedAt
		out.OpenedAt = &t
	}
	if d.ClosedAt != nil {
		t := *d.ClosedAt
		out.ClosedAt = &t
	}
	return &out
}
