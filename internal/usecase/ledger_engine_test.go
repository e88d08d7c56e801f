package usecase_test

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/usecase"
	"github.com/tillworks/opsledger/internal/usecase/mocks"
)

func newEngine() *usecase.LedgerEngine {
	return usecase.NewLedgerEngine(mocks.NewMockIDGenerator())
}

func newActiveCard(t *testing.T, engine *usecase.LedgerEngine, balance int64) *domain.GiftCard {
	t.Helper()
	card := &domain.GiftCard{ID: "card-1", Status: domain.GiftCardStatusActive}
	if !engine.Initialize(card, card.ID) {
		t.Fatal("initialize returned false on a fresh ledger")
	}
	if balance > 0 {
		if _, err := engine.Credit(card, usecase.MutationInput{
			Amount: decimal.NewFromInt(balance),
			Type:   domain.CardTxLoad,
		}); err != nil {
			t.Fatalf("seed balance: %v", err)
		}
	}
	return card
}

func TestLedgerEngine_Initialize(t *testing.T) {
	engine := newEngine()
	card := &domain.GiftCard{ID: "card-1"}

	if !engine.Initialize(card, "card-1") {
		t.Error("first Initialize should return true")
	}
	if engine.Initialize(card, "card-1") {
		t.Error("second Initialize should return false")
	}
	if card.Ledger.OwnerID != "card-1" {
		t.Errorf("OwnerID = %q, want card-1", card.Ledger.OwnerID)
	}
}

func TestLedgerEngine_Credit(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		expectError bool
		wantBalance decimal.Decimal
	}{
		{
			name:        "positive credit",
			amount:      decimal.NewFromInt(50),
			wantBalance: decimal.NewFromInt(150),
		},
		{
			name:        "zero-delta credit",
			amount:      decimal.Zero,
			wantBalance: decimal.NewFromInt(100),
		},
		{
			name:        "negative credit rejected",
			amount:      decimal.NewFromInt(-5),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine()
			card := newActiveCard(t, engine, 100)

			result, err := engine.Credit(card, usecase.MutationInput{Amount: tt.amount, Type: domain.CardTxLoad})

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				// A rejected mutation leaves the owner untouched.
				if !card.Balance().Equal(decimal.NewFromInt(100)) {
					t.Errorf("Balance = %s after rejection, want 100", card.Balance())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.BalanceAfter.Equal(tt.wantBalance) {
				t.Errorf("BalanceAfter = %s, want %s", result.BalanceAfter, tt.wantBalance)
			}
			if !card.Balance().Equal(tt.wantBalance) {
				t.Errorf("owner Balance = %s, want %s", card.Balance(), tt.wantBalance)
			}
		})
	}
}

func TestLedgerEngine_Debit(t *testing.T) {
	tests := []struct {
		name        string
		amount      decimal.Decimal
		expectError bool
		wantBalance decimal.Decimal
	}{
		{
			name:        "partial debit",
			amount:      decimal.NewFromInt(40),
			wantBalance: decimal.NewFromInt(60),
		},
		{
			name:        "debit exact balance",
			amount:      decimal.NewFromInt(100),
			wantBalance: decimal.Zero,
		},
		{
			name:        "overdraw rejected",
			amount:      decimal.NewFromInt(101),
			expectError: true,
		},
		{
			name:        "negative debit rejected",
			amount:      decimal.NewFromInt(-1),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine()
			card := newActiveCard(t, engine, 100)
			versionBefore := card.Ledger.Version

			result, err := engine.Debit(card, usecase.MutationInput{Amount: tt.amount, Type: domain.CardTxRedemption})

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if card.Ledger.Version != versionBefore {
					t.Error("rejected debit bumped the ledger version")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.BalanceAfter.Equal(tt.wantBalance) {
				t.Errorf("BalanceAfter = %s, want %s", result.BalanceAfter, tt.wantBalance)
			}
			if !result.Amount.Equal(tt.amount.Neg()) {
				t.Errorf("Amount = %s, want %s", result.Amount, tt.amount.Neg())
			}
		})
	}
}

func TestLedgerEngine_Debit_TriggersStatusHook(t *testing.T) {
	engine := newEngine()
	card := newActiveCard(t, engine, 100)

	if _, err := engine.Debit(card, usecase.MutationInput{Amount: decimal.NewFromInt(100), Type: domain.CardTxRedemption}); err != nil {
		t.Fatalf("debit: %v", err)
	}
	if card.Status != domain.GiftCardStatusDepleted {
		t.Errorf("Status = %s after draining, want depleted", card.Status)
	}

	if _, err := engine.Credit(card, usecase.MutationInput{Amount: decimal.NewFromInt(20), Type: domain.CardTxLoad}); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if card.Status != domain.GiftCardStatusActive {
		t.Errorf("Status = %s after reload, want active", card.Status)
	}
}

func TestLedgerEngine_AdjustTo(t *testing.T) {
	tests := []struct {
		name        string
		newBalance  decimal.Decimal
		expectError bool
		wantDelta   decimal.Decimal
	}{
		{
			name:       "adjust up",
			newBalance: decimal.NewFromInt(130),
			wantDelta:  decimal.NewFromInt(30),
		},
		{
			name:       "adjust down",
			newBalance: decimal.NewFromInt(75),
			wantDelta:  decimal.NewFromInt(-25),
		},
		{
			name:       "adjust to zero",
			newBalance: decimal.Zero,
			wantDelta:  decimal.NewFromInt(-100),
		},
		{
			name:        "negative target rejected",
			newBalance:  decimal.NewFromInt(-10),
			expectError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := newEngine()
			card := newActiveCard(t, engine, 100)

			result, err := engine.AdjustTo(card, tt.newBalance, "recount", nil)

			if tt.expectError {
				if err == nil {
					t.Error("expected error, got nil")
				}
				if !card.Balance().Equal(decimal.NewFromInt(100)) {
					t.Errorf("Balance = %s after rejection, want 100", card.Balance())
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !result.Amount.Equal(tt.wantDelta) {
				t.Errorf("Amount = %s, want %s", result.Amount, tt.wantDelta)
			}
			if !card.Balance().Equal(tt.newBalance) {
				t.Errorf("Balance = %s, want %s", card.Balance(), tt.newBalance)
			}

			// The recorded transaction carries the adjustment tag.
			txs := card.Ledger.RecentTransactions(1)
			if len(txs) != 1 || txs[0].Type != domain.TransactionTypeAdjustment {
				t.Errorf("last tx = %+v, want type adjustment", txs)
			}
		})
	}
}

func TestLedgerEngine_TransactionHistory(t *testing.T) {
	engine := newEngine()
	card := newActiveCard(t, engine, 100)

	if _, err := engine.Debit(card, usecase.MutationInput{
		Amount:   decimal.NewFromInt(30),
		Type:     domain.CardTxRedemption,
		Notes:    "order 42",
		Metadata: map[string]string{"order_id": "42"},
	}); err != nil {
		t.Fatalf("debit: %v", err)
	}

	txs := card.Ledger.RecentTransactions(0)
	if len(txs) != 2 {
		t.Fatalf("len(txs) = %d, want 2", len(txs))
	}
	last := txs[0]
	if last.Type != domain.CardTxRedemption {
		t.Errorf("Type = %s, want redemption", last.Type)
	}
	if last.Notes != "order 42" {
		t.Errorf("Notes = %q, want order 42", last.Notes)
	}
	if last.Metadata["order_id"] != "42" {
		t.Errorf("Metadata[order_id] = %q, want 42", last.Metadata["order_id"])
	}
	if !last.BalanceAfter.Equal(decimal.NewFromInt(70)) {
		t.Errorf("BalanceAfter = %s, want 70", last.BalanceAfter)
	}
}
