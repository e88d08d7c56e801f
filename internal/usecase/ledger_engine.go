package usecase

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillworks/opsledger/internal/domain"
)

// LedgerOwner is the composition contract for entities that track value in
// an owned ledger. The engine drives the ledger; the owner attaches its own
// status machine through the balance-change hook.
type LedgerOwner interface {
	LedgerState() *domain.LedgerState
	OnBalanceChanged(prev, next decimal.Decimal)
}

// MutationInput shapes a single credit or debit. Type is the owner's
// free-form transaction tag; a zero Amount is legal and records a
// zero-delta transaction, which owners use for non-balance-affecting events.
type MutationInput struct {
	Amount   decimal.Decimal
	Type     string
	Notes    string
	Metadata map[string]string
}

// LedgerEngine applies balance mutations to an owner's ledger. It holds no
// state of its own and no locks: atomicity comes from single-writer entity
// dispatch, and durability is the calling use case's responsibility.
type LedgerEngine struct {
	idGen IDGenerator
	now   func() time.Time
}

// NewLedgerEngine creates a new LedgerEngine.
func NewLedgerEngine(idGen IDGenerator) *LedgerEngine {
	return &LedgerEngine{
		idGen: idGen,
		now:   time.Now,
	}
}

// Initialize sets up the owner's ledger. Idempotent; returns false when the
// ledger was already initialized.
func (e *LedgerEngine) Initialize(owner LedgerOwner, ownerID string) bool {
	return owner.LedgerState().Initialize(ownerID)
}

// Credit adds Amount to the balance. Fails on negative amounts; there is no
// upper bound.
func (e *LedgerEngine) Credit(owner LedgerOwner, in MutationInput) (*domain.LedgerResult, error) {
	if err := owner.LedgerState().ValidateCredit(in.Amount); err != nil {
		return nil, err
	}
	return e.apply(owner, in.Amount, in), nil
}

// Debit removes Amount from the balance. Fails on negative amounts and on
// amounts exceeding the balance; a debit of exactly the balance succeeds and
// lands on zero.
func (e *LedgerEngine) Debit(owner LedgerOwner, in MutationInput) (*domain.LedgerResult, error) {
	if err := owner.LedgerState().ValidateDebit(in.Amount); err != nil {
		return nil, err
	}
	return e.apply(owner, in.Amount.Neg(), in), nil
}

// AdjustTo sets the balance to newBalance by recording the signed
// difference as an adjustment transaction.
func (e *LedgerEngine) AdjustTo(owner LedgerOwner, newBalance decimal.Decimal, reason string, metadata map[string]string) (*domain.LedgerResult, error) {
	if newBalance.IsNegative() {
		return nil, domain.ErrNegativeBalance
	}
	delta := newBalance.Sub(owner.LedgerState().Balance)
	return e.apply(owner, delta, MutationInput{
		Type:     domain.TransactionTypeAdjustment,
		Notes:    reason,
		Metadata: metadata,
	}), nil
}

// apply records the signed delta, then lets the owner react to the balance
// change before control returns to the caller.
func (e *LedgerEngine) apply(owner LedgerOwner, delta decimal.Decimal, in MutationInput) *domain.LedgerResult {
	ledger := owner.LedgerState()
	prev := ledger.Balance
	now := e.now().UTC()

	tx := ledger.Record(e.idGen.Generate(), delta, in.Type, in.Notes, in.Metadata, now)
	owner.OnBalanceChanged(prev, ledger.Balance)

	return &domain.LedgerResult{
		TxID:          tx.ID,
		Amount:        delta,
		BalanceBefore: prev,
		BalanceAfter:  ledger.Balance,
		Timestamp:     now,
	}
}
