package domain

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestAccountType_Valid(t *testing.T) {
	tests := []struct {
		accountType AccountType
		want        bool
	}{
		{AccountTypeAsset, true},
		{AccountTypeLiability, true},
		{AccountTypeEquity, true},
		{AccountTypeRevenue, true},
		{AccountTypeExpense, true},
		{AccountType("inventory"), false},
		{AccountType(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.accountType), func(t *testing.T) {
			if got := tt.accountType.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAccountType_Deltas(t *testing.T) {
	amount := decimal.NewFromInt(25)

	tests := []struct {
		accountType AccountType
		debitNormal bool
		debitDelta  decimal.Decimal
		creditDelta decimal.Decimal
	}{
		{AccountTypeAsset, true, amount, amount.Neg()},
		{AccountTypeExpense, true, amount, amount.Neg()},
		{AccountTypeLiability, false, amount.Neg(), amount},
		{AccountTypeEquity, false, amount.Neg(), amount},
		{AccountTypeRevenue, false, amount.Neg(), amount},
	}

	for _, tt := range tests {
		t.Run(string(tt.accountType), func(t *testing.T) {
			if got := tt.accountType.DebitNormal(); got != tt.debitNormal {
				t.Errorf("DebitNormal() = %v, want %v", got, tt.debitNormal)
			}
			if got := tt.accountType.DebitDelta(amount); !got.Equal(tt.debitDelta) {
				t.Errorf("DebitDelta(25) = %s, want %s", got, tt.debitDelta)
			}
			if got := tt.accountType.CreditDelta(amount); !got.Equal(tt.creditDelta) {
				t.Errorf("CreditDelta(25) = %s, want %s", got, tt.creditDelta)
			}
		})
	}
}

func TestValidateCreate(t *testing.T) {
	tests := []struct {
		name        string
		accountType AccountType
		code        string
		accName     string
		wantErr     error
	}{
		{
			name:        "valid asset account",
			accountType: AccountTypeAsset,
			code:        "1000",
			accName:     "Cash on Hand",
		},
		{
			name:        "invalid type",
			accountType: AccountType("inventory"),
			code:        "1000",
			accName:     "Cash",
			wantErr:     ErrInvalidAccountType,
		},
		{
			name:        "blank code",
			accountType: AccountTypeRevenue,
			code:        "   ",
			accName:     "Sales",
			wantErr:     ErrEmptyAccountCode,
		},
		{
			name:        "blank name",
			accountType: AccountTypeRevenue,
			code:        "4000",
			accName:     "",
			wantErr:     ErrEmptyAccountName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateCreate(tt.accountType, tt.code, tt.accName)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("ValidateCreate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestAccountState_EntryEffect(t *testing.T) {
	at := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)

	t.Run("debit and credit follow normal balance", func(t *testing.T) {
		asset := &AccountState{Type: AccountTypeAsset}
		liability := &AccountState{Type: AccountTypeLiability}

		debit := &JournalEntry{Type: EntryTypeDebit, Amount: decimal.NewFromInt(50)}
		credit := &JournalEntry{Type: EntryTypeCredit, Amount: decimal.NewFromInt(30)}

		if got := asset.EntryEffect(debit); !got.Equal(decimal.NewFromInt(50)) {
			t.Errorf("asset debit effect = %s, want 50", got)
		}
		if got := asset.EntryEffect(credit); !got.Equal(decimal.NewFromInt(-30)) {
			t.Errorf("asset credit effect = %s, want -30", got)
		}
		if got := liability.EntryEffect(debit); !got.Equal(decimal.NewFromInt(-50)) {
			t.Errorf("liability debit effect = %s, want -50", got)
		}
		if got := liability.EntryEffect(credit); !got.Equal(decimal.NewFromInt(30)) {
			t.Errorf("liability credit effect = %s, want 30", got)
		}
	})

	t.Run("adjustment recovered from balance snapshots", func(t *testing.T) {
		s := &AccountState{Type: AccountTypeAsset}
		s.JournalEntries = []JournalEntry{
			{ID: "e-1", Type: EntryTypeDebit, Amount: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(100), CreatedAt: at},
			{ID: "e-2", Type: EntryTypeAdjustment, Amount: decimal.NewFromInt(20), BalanceAfter: decimal.NewFromInt(80), CreatedAt: at},
		}

		got := s.EntryEffect(&s.JournalEntries[1])
		if !got.Equal(decimal.NewFromInt(-20)) {
			t.Errorf("adjustment effect = %s, want -20", got)
		}
	})

	t.Run("opening entry with no predecessor", func(t *testing.T) {
		s := &AccountState{Type: AccountTypeAsset}
		s.JournalEntries = []JournalEntry{
			{ID: "e-1", Type: EntryTypeOpening, Amount: decimal.NewFromInt(100), BalanceAfter: decimal.NewFromInt(100), CreatedAt: at},
		}

		got := s.EntryEffect(&s.JournalEntries[0])
		if !got.Equal(decimal.NewFromInt(100)) {
			t.Errorf("opening effect = %s, want 100", got)
		}
	})
}

func TestNextPeriod(t *testing.T) {
	tests := []struct {
		year      int
		month     time.Month
		wantYear  int
		wantMonth time.Month
	}{
		{2025, time.March, 2025, time.April},
		{2025, time.December, 2026, time.January},
		{2025, time.January, 2025, time.February},
	}

	for _, tt := range tests {
		gotYear, gotMonth := NextPeriod(tt.year, tt.month)
		if gotYear != tt.wantYear || gotMonth != tt.wantMonth {
			t.Errorf("NextPeriod(%d, %s) = (%d, %s), want (%d, %s)",
				tt.year, tt.month, gotYear, gotMonth, tt.wantYear, tt.wantMonth)
		}
	}
}

func TestAccountState_BuildPeriodSummary(t *testing.T) {
	// February carries an ending balance of 70; March sees a debit, a
	// credit, a reversal and an adjustment. Only the debit and credit count
	// toward totals and activity.
	feb := time.Date(2025, 2, 20, 0, 0, 0, 0, time.UTC)
	mar := time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

	s := &AccountState{Type: AccountTypeAsset, Balance: decimal.NewFromInt(95)}
	s.JournalEntries = []JournalEntry{
		{ID: "e-1", Type: EntryTypeDebit, Amount: decimal.NewFromInt(70), BalanceAfter: decimal.NewFromInt(70), CreatedAt: feb},
		{ID: "e-2", Type: EntryTypeDebit, Status: EntryStatusReversed, Amount: decimal.NewFromInt(50), BalanceAfter: decimal.NewFromInt(120), CreatedAt: mar},
		{ID: "e-3", Type: EntryTypeCredit, Amount: decimal.NewFromInt(30), BalanceAfter: decimal.NewFromInt(90), CreatedAt: mar.Add(time.Hour)},
		{ID: "e-4", Type: EntryTypeReversal, Amount: decimal.NewFromInt(50), BalanceAfter: decimal.NewFromInt(40), CreatedAt: mar.Add(2 * time.Hour)},
		{ID: "e-5", Type: EntryTypeAdjustment, Amount: decimal.NewFromInt(55), BalanceAfter: decimal.NewFromInt(95), CreatedAt: mar.Add(3 * time.Hour)},
	}

	closedAt := time.Date(2025, 4, 1, 0, 0, 0, 0, time.UTC)
	summary := s.BuildPeriodSummary(2025, time.March, nil, "manager-1", closedAt)

	if !summary.OpeningBalance.Equal(decimal.NewFromInt(70)) {
		t.Errorf("OpeningBalance = %s, want 70", summary.OpeningBalance)
	}
	if !summary.TotalDebits.Equal(decimal.NewFromInt(50)) {
		t.Errorf("TotalDebits = %s, want 50", summary.TotalDebits)
	}
	if !summary.TotalCredits.Equal(decimal.NewFromInt(30)) {
		t.Errorf("TotalCredits = %s, want 30", summary.TotalCredits)
	}
	if summary.EntryCount != 2 {
		t.Errorf("EntryCount = %d, want 2", summary.EntryCount)
	}
	if !summary.ClosingBalance.Equal(decimal.NewFromInt(95)) {
		t.Errorf("ClosingBalance = %s, want 95", summary.ClosingBalance)
	}
	if summary.ClosedBy != "manager-1" {
		t.Errorf("ClosedBy = %q, want manager-1", summary.ClosedBy)
	}
}

func TestAccountState_BuildPeriodSummary_EmptyPeriod(t *testing.T) {
	s := &AccountState{Type: AccountTypeRevenue, Balance: decimal.Zero}

	summary := s.BuildPeriodSummary(2025, time.June, nil, "system", time.Now())

	if !summary.OpeningBalance.IsZero() {
		t.Errorf("OpeningBalance = %s, want 0", summary.OpeningBalance)
	}
	if summary.EntryCount != 0 {
		t.Errorf("EntryCount = %d, want 0", summary.EntryCount)
	}
	if !summary.TotalDebits.IsZero() || !summary.TotalCredits.IsZero() {
		t.Errorf("totals = %s/%s, want 0/0", summary.TotalDebits, summary.TotalCredits)
	}
}

func TestAccountState_PeriodClosed(t *testing.T) {
	s := &AccountState{
		PeriodSummaries: []PeriodSummary{
			{Year: 2025, Month: time.February},
		},
	}

	if !s.PeriodClosed(2025, time.February) {
		t.Error("PeriodClosed(2025, Feb) = false, want true")
	}
	if s.PeriodClosed(2025, time.March) {
		t.Error("PeriodClosed(2025, Mar) = true, want false")
	}
	if s.PeriodClosed(2024, time.February) {
		t.Error("PeriodClosed(2024, Feb) = true, want false")
	}
}

func TestAccountState_FindAndReplaceEntry(t *testing.T) {
	s := &AccountState{Type: AccountTypeAsset}
	s.JournalEntries = []JournalEntry{
		{ID: "e-1", Type: EntryTypeDebit, Status: EntryStatusPosted, Amount: decimal.NewFromInt(10)},
		{ID: "e-2", Type: EntryTypeCredit, Status: EntryStatusPosted, Amount: decimal.NewFromInt(5)},
	}

	if s.FindEntry("missing") != nil {
		t.Error("FindEntry(missing) should return nil")
	}

	entry := s.FindEntry("e-1")
	if entry == nil {
		t.Fatal("FindEntry(e-1) returned nil")
	}

	updated := *entry
	updated.Status = EntryStatusReversed
	updated.ReversalEntryID = "e-3"
	if !s.ReplaceEntry(updated) {
		t.Fatal("ReplaceEntry(e-1) returned false")
	}
	if s.JournalEntries[0].Status != EntryStatusReversed {
		t.Errorf("Status = %s, want reversed", s.JournalEntries[0].Status)
	}
	if s.JournalEntries[1].ID != "e-2" {
		t.Error("ReplaceEntry disturbed entry order")
	}

	if s.ReplaceEntry(JournalEntry{ID: "ghost"}) {
		t.Error("ReplaceEntry(ghost) returned true")
	}
}

func TestAccountState_PruneJournal(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	old := now.AddDate(-2, 0, 0)

	s := &AccountState{Type: AccountTypeAsset}
	// Two stale entries followed by enough recent ones to blow the cap.
	s.JournalEntries = append(s.JournalEntries,
		JournalEntry{ID: "old-1", Type: EntryTypeDebit, CreatedAt: old},
		JournalEntry{ID: "old-2", Type: EntryTypeDebit, CreatedAt: old},
	)
	for i := 0; i < DefaultJournalRetention; i++ {
		s.JournalEntries = append(s.JournalEntries, JournalEntry{
			ID:        fmt.Sprintf("recent-%d", i),
			Type:      EntryTypeDebit,
			CreatedAt: now.Add(time.Duration(i) * time.Minute),
		})
	}

	s.pruneJournal(now)

	if len(s.JournalEntries) != DefaultJournalRetention {
		t.Fatalf("len = %d, want %d", len(s.JournalEntries), DefaultJournalRetention)
	}
	if s.JournalEntries[0].ID != "recent-0" {
		t.Errorf("first retained = %s, want recent-0 (stale entries pruned first)", s.JournalEntries[0].ID)
	}
}

func TestAccountState_Clone(t *testing.T) {
	s := &AccountState{
		ID:      "acct-1",
		Type:    AccountTypeAsset,
		Balance: decimal.NewFromInt(100),
		JournalEntries: []JournalEntry{
			{ID: "e-1", Type: EntryTypeDebit, Status: EntryStatusPosted, Amount: decimal.NewFromInt(100)},
		},
		PeriodSummaries: []PeriodSummary{
			{Year: 2025, Month: time.February},
		},
	}

	clone := s.Clone()
	clone.JournalEntries[0].Status = EntryStatusReversed
	clone.PeriodSummaries[0].Year = 2024
	clone.Balance = decimal.Zero

	if s.JournalEntries[0].Status != EntryStatusPosted {
		t.Error("mutating clone journal leaked into original")
	}
	if s.PeriodSummaries[0].Year != 2025 {
		t.Error("mutating clone summaries leaked into original")
	}
	if !s.Balance.Equal(decimal.NewFromInt(100)) {
		t.Errorf("original Balance = %s, want 100", s.Balance)
	}
}
