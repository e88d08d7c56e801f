package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestLedgerState_Initialize(t *testing.T) {
	l := &LedgerState{}

	if l.Initialized() {
		t.Error("fresh ledger should not report initialized")
	}

	if !l.Initialize("card-1") {
		t.Error("first Initialize should return true")
	}
	if l.OwnerID != "card-1" {
		t.Errorf("OwnerID = %q, want card-1", l.OwnerID)
	}
	if l.Version != 1 {
		t.Errorf("Version = %d, want 1", l.Version)
	}
	if !l.Balance.IsZero() {
		t.Errorf("Balance = %s, want 0", l.Balance)
	}

	if l.Initialize("card-2") {
		t.Error("second Initialize should be a no-op")
	}
	if l.OwnerID != "card-1" {
		t.Errorf("OwnerID changed to %q on repeat Initialize", l.OwnerID)
	}
}

func TestLedgerState_ValidateCredit(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		expectError bool
	}{
		{
			name:        "positive amount",
			amount:      decimal.NewFromInt(50),
			expectError: false,
		},
		{
			name:        "zero amount",
			amount:      decimal.Zero,
			expectError: false,
		},
		{
			name:        "negative amount",
			amount:      decimal.NewFromInt(-1),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &LedgerState{Balance: decimal.NewFromInt(100)}

			err := l.ValidateCredit(tt.amount)

			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestLedgerState_ValidateDebit(t *testing.T) {
	tests := []struct {
		name        string
		balance     decimal.Decimal
		amount      decimal.Decimal
		expectError bool
		wantErr     error
	}{
		{
			name:        "debit less than balance",
			balance:     decimal.NewFromInt(100),
			amount:      decimal.NewFromInt(50),
			expectError: false,
		},
		{
			name:        "debit exact balance",
			balance:     decimal.NewFromInt(100),
			amount:      decimal.NewFromInt(100),
			expectError: false,
		},
		{
			name:        "debit more than balance",
			balance:     decimal.NewFromInt(100),
			amount:      decimal.NewFromInt(150),
			expectError: true,
		},
		{
			name:        "negative amount",
			balance:     decimal.NewFromInt(100),
			amount:      decimal.NewFromInt(-10),
			expectError: true,
			wantErr:     ErrNegativeAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := &LedgerState{Balance: tt.balance}

			err := l.ValidateDebit(tt.amount)

			if tt.expectError && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.expectError && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLedgerState_ValidateDebit_InsufficientBalanceError(t *testing.T) {
	l := &LedgerState{Balance: decimal.NewFromInt(30)}

	err := l.ValidateDebit(decimal.NewFromInt(40))
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !IsInsufficientBalance(err) {
		t.Errorf("IsInsufficientBalance = false for %v", err)
	}

	var ib *InsufficientBalanceError
	if !errors.As(err, &ib) {
		t.Fatalf("error type = %T, want *InsufficientBalanceError", err)
	}
	if !ib.Available.Equal(decimal.NewFromInt(30)) {
		t.Errorf("Available = %s, want 30", ib.Available)
	}
	if !ib.Requested.Equal(decimal.NewFromInt(40)) {
		t.Errorf("Requested = %s, want 40", ib.Requested)
	}

	want := "Insufficient balance. Available: 30, Requested: 40"
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestLedgerState_Record(t *testing.T) {
	l := &LedgerState{}
	l.Initialize("drawer-1")
	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	tx := l.Record("tx-1", decimal.NewFromInt(100), "opening_float", "shift open", nil, at)

	if !tx.BalanceAfter.Equal(decimal.NewFromInt(100)) {
		t.Errorf("BalanceAfter = %s, want 100", tx.BalanceAfter)
	}
	if !l.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("Balance = %s, want 100", l.Balance)
	}
	if l.Version != 2 {
		t.Errorf("Version = %d, want 2", l.Version)
	}

	tx = l.Record("tx-2", decimal.NewFromInt(-40), "payout", "", nil, at.Add(time.Hour))

	if !tx.BalanceAfter.Equal(decimal.NewFromInt(60)) {
		t.Errorf("BalanceAfter = %s, want 60", tx.BalanceAfter)
	}
	if l.Version != 3 {
		t.Errorf("Version = %d, want 3", l.Version)
	}
	if len(l.Transactions) != 2 {
		t.Errorf("len(Transactions) = %d, want 2", len(l.Transactions))
	}
}

func TestLedgerState_Record_TrimsToRetention(t *testing.T) {
	l := &LedgerState{Retention: 5}
	l.Initialize("card-1")
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 8; i++ {
		l.Record(fmt.Sprintf("tx-%d", i), decimal.NewFromInt(1), "reload", "", nil, at.Add(time.Duration(i)*time.Minute))
	}

	if len(l.Transactions) != 5 {
		t.Fatalf("len(Transactions) = %d, want 5", len(l.Transactions))
	}
	// Oldest entries are dropped; tx-3 through tx-7 survive.
	if l.Transactions[0].ID != "tx-3" {
		t.Errorf("oldest retained = %s, want tx-3", l.Transactions[0].ID)
	}
	if l.Transactions[4].ID != "tx-7" {
		t.Errorf("newest retained = %s, want tx-7", l.Transactions[4].ID)
	}
	// Balance is untouched by trimming.
	if !l.Balance.Equal(decimal.NewFromInt(8)) {
		t.Errorf("Balance = %s, want 8", l.Balance)
	}
}

func TestLedgerState_RecentTransactions(t *testing.T) {
	l := &LedgerState{}
	l.Initialize("card-1")
	at := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		l.Record(fmt.Sprintf("tx-%d", i), decimal.NewFromInt(1), "reload", "", nil, at.Add(time.Duration(i)*time.Minute))
	}

	tests := []struct {
		name    string
		limit   int
		wantIDs []string
	}{
		{
			name:    "limit smaller than history",
			limit:   2,
			wantIDs: []string{"tx-3", "tx-2"},
		},
		{
			name:    "limit larger than history",
			limit:   10,
			wantIDs: []string{"tx-3", "tx-2", "tx-1", "tx-0"},
		},
		{
			name:    "zero limit returns all",
			limit:   0,
			wantIDs: []string{"tx-3", "tx-2", "tx-1", "tx-0"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := l.RecentTransactions(tt.limit)
			if len(got) != len(tt.wantIDs) {
				t.Fatalf("len = %d, want %d", len(got), len(tt.wantIDs))
			}
			for i, id := range tt.wantIDs {
				if got[i].ID != id {
					t.Errorf("got[%d].ID = %s, want %s", i, got[i].ID, id)
				}
			}
		})
	}
}

func TestLedgerState_Clone(t *testing.T) {
	l := &LedgerState{}
	l.Initialize("card-1")
	l.Record("tx-1", decimal.NewFromInt(50), "initial_load", "", nil, time.Now())

	clone := l.Clone()
	clone.Record("tx-2", decimal.NewFromInt(-20), "redemption", "", nil, time.Now())

	if len(l.Transactions) != 1 {
		t.Errorf("original len(Transactions) = %d after mutating clone, want 1", len(l.Transactions))
	}
	if !l.Balance.Equal(decimal.NewFromInt(50)) {
		t.Errorf("original Balance = %s after mutating clone, want 50", l.Balance)
	}
	if !clone.Balance.Equal(decimal.NewFromInt(30)) {
		t.Errorf("clone Balance = %s, want 30", clone.Balance)
	}
}
