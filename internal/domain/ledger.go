package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultTransactionRetention is the number of transactions a ledger keeps
// when no explicit retention is configured.
const DefaultTransactionRetention = 100

// Well-known transaction type tags. The type field is free-form; owners may
// record their own tags alongside these.
const (
	TransactionTypeAdjustment = "adjustment"
)

// Transaction is one immutable movement on a ledger. Amount is signed;
// BalanceAfter is a snapshot taken when the transaction was recorded, never
// recomputed.
type Transaction struct {
	ID           string
	Amount       decimal.Decimal
	BalanceAfter decimal.Decimal
	Type         string
	Notes        string
	Metadata     map[string]string
	CreatedAt    time.Time
}

// LedgerResult reports the outcome of a successful ledger mutation.
type LedgerResult struct {
	TxID          string
	Amount        decimal.Decimal
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	Timestamp     time.Time
}

// LedgerState holds a single owned balance with a bounded audit trail.
// All mutation goes through the ledger engine; concurrent access is ruled
// out by single-writer entity dispatch, so the state carries no locking.
type LedgerState struct {
	OwnerID      string
	Balance      decimal.Decimal
	Transactions []Transaction
	Version      int64
	// Retention bounds the transaction history; zero means
	// DefaultTransactionRetention.
	Retention int
}

// Initialized reports whether the ledger has been through Initialize.
func (l *LedgerState) Initialized() bool {
	return l.Version > 0
}

// Initialize sets up the ledger for ownerID. It is idempotent: a second call
// on a versioned ledger is a no-op and returns false.
func (l *LedgerState) Initialize(ownerID string) bool {
	if l.Initialized() {
		return false
	}
	l.OwnerID = ownerID
	l.Balance = decimal.Zero
	l.Version = 1
	return true
}

// ValidateCredit checks that amount can be credited.
func (l *LedgerState) ValidateCredit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	return nil
}

// ValidateDebit checks that amount can be debited. A debit of exactly the
// current balance is allowed and brings the balance to zero.
func (l *LedgerState) ValidateDebit(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return ErrNegativeAmount
	}
	if amount.GreaterThan(l.Balance) {
		return &InsufficientBalanceError{Available: l.Balance, Requested: amount}
	}
	return nil
}

// HasSufficientBalance reports whether amount could be debited right now.
func (l *LedgerState) HasSufficientBalance(amount decimal.Decimal) bool {
	return !amount.GreaterThan(l.Balance)
}

// Record appends a transaction for the signed delta, moves the balance,
// bumps the version and trims history to the retention cap. The mutation is
// atomic relative to other commands on the same entity because the hosting
// runtime serializes them.
func (l *LedgerState) Record(id string, delta decimal.Decimal, txType, notes string, metadata map[string]string, at time.Time) Transaction {
	next := l.Balance.Add(delta)
	tx := Transaction{
		ID:           id,
		Amount:       delta,
		BalanceAfter: next,
		Type:         txType,
		Notes:        notes,
		Metadata:     metadata,
		CreatedAt:    at,
	}
	l.Transactions = append(l.Transactions, tx)
	l.Balance = next
	l.Version++
	l.trim()
	return tx
}

// trim drops the oldest transactions once the retention cap is exceeded.
func (l *LedgerState) trim() {
	retention := l.Retention
	if retention <= 0 {
		retention = DefaultTransactionRetention
	}
	if len(l.Transactions) <= retention {
		return
	}
	trimmed := make([]Transaction, retention)
	copy(trimmed, l.Transactions[len(l.Transactions)-retention:])
	l.Transactions = trimmed
}

// RecentTransactions returns up to limit transactions, most recent first.
// A non-positive limit returns the full retained history.
func (l *LedgerState) RecentTransactions(limit int) []Transaction {
	n := len(l.Transactions)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]Transaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.Transactions[i])
	}
	return out
}

// Clone returns a deep copy of the ledger state. Hosts mutate a clone and
// swap it in only after the durability write succeeds.
func (l *LedgerState) Clone() LedgerState {
	out := *l
	out.Transactions = make([]Transaction, len(l.Transactions))
	copy(out.Transactions, l.Transactions)
	return out
}
