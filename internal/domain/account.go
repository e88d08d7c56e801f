package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AccountType classifies an account in the chart of accounts and fixes its
// normal balance: Asset and Expense accounts grow on the debit side, the
// rest grow on the credit side.
type AccountType string

const (
	AccountTypeAsset     AccountType = "asset"
	AccountTypeLiability AccountType = "liability"
	AccountTypeEquity    AccountType = "equity"
	AccountTypeRevenue   AccountType = "revenue"
	AccountTypeExpense   AccountType = "expense"
)

// Valid reports whether t is one of the five account types.
func (t AccountType) Valid() bool {
	switch t {
	case AccountTypeAsset, AccountTypeLiability, AccountTypeEquity, AccountTypeRevenue, AccountTypeExpense:
		return true
	}
	return false
}

// DebitNormal reports whether a debit increases the balance of this type.
func (t AccountType) DebitNormal() bool {
	return t == AccountTypeAsset || t == AccountTypeExpense
}

// DebitDelta returns the signed balance change caused by debiting amount.
func (t AccountType) DebitDelta(amount decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return amount
	}
	return amount.Neg()
}

// CreditDelta returns the signed balance change caused by crediting amount.
func (t AccountType) CreditDelta(amount decimal.Decimal) decimal.Decimal {
	if t.DebitNormal() {
		return amount.Neg()
	}
	return amount
}

// EntryType tags a journal entry with the kind of movement it records.
type EntryType string

const (
	EntryTypeDebit      EntryType = "debit"
	EntryTypeCredit     EntryType = "credit"
	EntryTypeReversal   EntryType = "reversal"
	EntryTypeAdjustment EntryType = "adjustment"
	EntryTypeOpening    EntryType = "opening"
)

// EntryStatus tracks the Posted -> Reversed transition. An entry is reversed
// at most once; reversal entries themselves stay Posted forever.
type EntryStatus string

const (
	EntryStatusPosted   EntryStatus = "posted"
	EntryStatusReversed EntryStatus = "reversed"
)

// JournalEntry is one posted movement against an account. Amount is always
// positive; direction is carried by Type and the account's normal balance.
// Entries are immutable apart from the reversal linkage, which is applied by
// replacing the record wholesale.
type JournalEntry struct {
	ID            string
	Type          EntryType
	Status        EntryStatus
	Amount        decimal.Decimal
	BalanceAfter  decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   string
	PerformedBy   string
	// ReversalEntryID is set on the original entry, pointing at its reversal.
	ReversalEntryID string
	// ReversedEntryID is set on a reversal entry, pointing at the original.
	ReversedEntryID string
	CreatedAt       time.Time
}

// PeriodSummary finalizes one calendar month of account activity.
type PeriodSummary struct {
	Year           int
	Month          time.Month
	OpeningBalance decimal.Decimal
	ClosingBalance decimal.Decimal
	TotalDebits    decimal.Decimal
	TotalCredits   decimal.Decimal
	EntryCount     int
	ClosedAt       time.Time
	ClosedBy       string
}

const (
	// DefaultJournalRetention caps the journal entry sequence.
	DefaultJournalRetention = 500
	// JournalPruneAgeMonths: entries older than this are pruned first when
	// the journal exceeds its cap.
	JournalPruneAgeMonths = 12
)

// AccountState is the materialized state of an event-sourced account. It is
// never written directly by command handlers: it exists only as the left
// fold of the account's confirmed events.
type AccountState struct {
	ID          string
	Code        string
	Name        string
	Type        AccountType
	Description string
	System      bool
	Active      bool

	Balance         decimal.Decimal
	TotalDebits     decimal.Decimal
	TotalCredits    decimal.Decimal
	TotalEntryCount int64

	JournalEntries  []JournalEntry
	PeriodSummaries []PeriodSummary

	CurrentPeriodYear  int
	CurrentPeriodMonth time.Month

	// Version counts applied events; it doubles as the next event sequence
	// minus one.
	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Created reports whether the account has been through Create.
func (s *AccountState) Created() bool {
	return s.ID != ""
}

// ValidateCreate checks the identity fields of a create command.
func ValidateCreate(accountType AccountType, code, name string) error {
	if !accountType.Valid() {
		return ErrInvalidAccountType
	}
	if strings.TrimSpace(code) == "" {
		return ErrEmptyAccountCode
	}
	if strings.TrimSpace(name) == "" {
		return ErrEmptyAccountName
	}
	return nil
}

// FindEntry returns the journal entry with the given id, or nil.
func (s *AccountState) FindEntry(id string) *JournalEntry {
	for i := range s.JournalEntries {
		if s.JournalEntries[i].ID == id {
			return &s.JournalEntries[i]
		}
	}
	return nil
}

// ReplaceEntry swaps in a new immutable record for the entry with the same
// id, preserving insertion order. Returns false when the id is unknown.
func (s *AccountState) ReplaceEntry(entry JournalEntry) bool {
	for i := range s.JournalEntries {
		if s.JournalEntries[i].ID == entry.ID {
			s.JournalEntries[i] = entry
			return true
		}
	}
	return false
}

// EntryEffect returns the signed balance change the entry caused when it was
// posted. Debit and Credit entries derive it from the account's normal
// balance; Adjustment and Opening entries recover it from the preceding
// entry's balance snapshot (zero when the entry is the first).
func (s *AccountState) EntryEffect(entry *JournalEntry) decimal.Decimal {
	switch entry.Type {
	case EntryTypeDebit:
		return s.Type.DebitDelta(entry.Amount)
	case EntryTypeCredit:
		return s.Type.CreditDelta(entry.Amount)
	default:
		prev := decimal.Zero
		for i := range s.JournalEntries {
			if s.JournalEntries[i].ID == entry.ID {
				break
			}
			prev = s.JournalEntries[i].BalanceAfter
		}
		return entry.BalanceAfter.Sub(prev)
	}
}

// appendEntry adds a journal entry and maintains the running totals and the
// retention bound.
func (s *AccountState) appendEntry(entry JournalEntry) {
	s.JournalEntries = append(s.JournalEntries, entry)
	s.TotalEntryCount++
	switch entry.Type {
	case EntryTypeDebit:
		s.TotalDebits = s.TotalDebits.Add(entry.Amount)
	case EntryTypeCredit:
		s.TotalCredits = s.TotalCredits.Add(entry.Amount)
	}
	s.pruneJournal(entry.CreatedAt)
}

// pruneJournal enforces the journal cap. Entries older than twelve months go
// first; if the journal is still over cap the oldest remaining entries go
// next.
func (s *AccountState) pruneJournal(now time.Time) {
	if len(s.JournalEntries) <= DefaultJournalRetention {
		return
	}
	cutoff := now.AddDate(0, -JournalPruneAgeMonths, 0)

	kept := s.JournalEntries[:0]
	over := len(s.JournalEntries) - DefaultJournalRetention
	for _, e := range s.JournalEntries {
		if over > 0 && e.CreatedAt.Before(cutoff) {
			over--
			continue
		}
		kept = append(kept, e)
	}
	s.JournalEntries = kept

	if len(s.JournalEntries) > DefaultJournalRetention {
		excess := len(s.JournalEntries) - DefaultJournalRetention
		s.JournalEntries = append(s.JournalEntries[:0], s.JournalEntries[excess:]...)
	}
}

// PeriodClosed reports whether a summary already exists for (year, month).
func (s *AccountState) PeriodClosed(year int, month time.Month) bool {
	for _, p := range s.PeriodSummaries {
		if p.Year == year && p.Month == month {
			return true
		}
	}
	return false
}

// NextPeriod returns the calendar month after (year, month), wrapping
// December into January of the following year.
func NextPeriod(year int, month time.Month) (int, time.Month) {
	if month == time.December {
		return year + 1, time.January
	}
	return year, month + 1
}

// BuildPeriodSummary computes the summary for (year, month) from the
// journal. The opening balance is the balance snapshot of the latest entry
// strictly before the period start, zero when there is none. Debit and
// Credit entries inside the period contribute to the totals and the activity
// count; Opening, Adjustment and Reversal entries do not.
func (s *AccountState) BuildPeriodSummary(year int, month time.Month, closing *decimal.Decimal, closedBy string, now time.Time) PeriodSummary {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 1, 0)

	opening := decimal.Zero
	totalDebits := decimal.Zero
	totalCredits := decimal.Zero
	entryCount := 0

	for i := range s.JournalEntries {
		e := &s.JournalEntries[i]
		if e.CreatedAt.Before(start) {
			opening = e.BalanceAfter
			continue
		}
		if !e.CreatedAt.Before(end) {
			continue
		}
		switch e.Type {
		case EntryTypeDebit:
			totalDebits = totalDebits.Add(e.Amount)
			entryCount++
		case EntryTypeCredit:
			totalCredits = totalCredits.Add(e.Amount)
			entryCount++
		}
	}

	closingBalance := s.Balance
	if closing != nil {
		closingBalance = *closing
	}

	return PeriodSummary{
		Year:           year,
		Month:          month,
		OpeningBalance: opening,
		ClosingBalance: closingBalance,
		TotalDebits:    totalDebits,
		TotalCredits:   totalCredits,
		EntryCount:     entryCount,
		ClosedAt:       now,
		ClosedBy:       closedBy,
	}
}

// Clone returns a deep copy of the account state.
func (s *AccountState) Clone() *AccountState {
	out := *s
	out.JournalEntries = make([]JournalEntry, len(s.JournalEntries))
	copy(out.JournalEntries, s.JournalEntries)
	out.PeriodSummaries = make([]PeriodSummary, len(s.PeriodSummaries))
	copy(out.PeriodSummaries, s.PeriodSummaries)
	return &out
}
