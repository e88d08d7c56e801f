package domain

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account event types
const (
	EventTypeAccountCreated       = "account.created"
	EventTypeAccountDebited       = "account.debited"
	EventTypeAccountCredited      = "account.credited"
	EventTypeAccountEntryReversed = "account.entry_reversed"
	EventTypeAccountPeriodClosed  = "account.period_closed"
	EventTypeAccountDeactivated   = "account.deactivated"
	EventTypeAccountReactivated   = "account.reactivated"
)

// Aggregate types
const (
	AggregateTypeAccount  = "account"
	AggregateTypeGiftCard = "giftcard"
	AggregateTypeDrawer   = "drawer"
)

// Gift card / drawer notification event types
const (
	EventTypeCardIssued    = "giftcard.issued"
	EventTypeCardActivated = "giftcard.activated"
	EventTypeCardRedeemed  = "giftcard.redeemed"
	EventTypeCardReloaded  = "giftcard.reloaded"
	EventTypeCardExpired   = "giftcard.expired"
	EventTypeCardCancelled = "giftcard.cancelled"
	EventTypeDrawerOpened  = "drawer.opened"
	EventTypeDrawerSale    = "drawer.sale_recorded"
	EventTypeDrawerPayout  = "drawer.payout_recorded"
	EventTypeDrawerDrop    = "drawer.drop_recorded"
	EventTypeDrawerAdjust  = "drawer.adjusted"
	EventTypeDrawerClosed  = "drawer.closed"
)

// AccountEvent is one confirmed fact about an account. Events are
// self-contained: applying the full ordered stream to an empty AccountState
// reproduces the live entity's state exactly.
type AccountEvent interface {
	EventType() string
	Apply(s *AccountState)
}

// EventRecord is the persisted envelope for an account event. Sequence is
// strictly increasing per account with no gaps.
type EventRecord struct {
	ID        string
	AccountID string
	Sequence  int64
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// OutboxEvent is a notification queued for at-least-once delivery to
// collaborators. Consumers must deduplicate; delivery may repeat.
type OutboxEvent struct {
	ID            string
	AggregateID   string
	AggregateType string
	EventType     string
	Payload       map[string]any
	CreatedAt     time.Time
	PublishedAt   *time.Time
	Published     bool
}

// AccountCreated captures account identity, including the opening balance so
// that replay alone reproduces it.
type AccountCreated struct {
	AccountID      string          `json:"account_id"`
	Code           string          `json:"code"`
	Name           string          `json:"name"`
	AccountType    AccountType     `json:"account_type"`
	Description    string          `json:"description,omitempty"`
	System         bool            `json:"system,omitempty"`
	OpeningBalance decimal.Decimal `json:"opening_balance"`
	OpeningEntryID string          `json:"opening_entry_id,omitempty"`
	PeriodYear     int             `json:"period_year"`
	PeriodMonth    time.Month      `json:"period_month"`
	OccurredAt     time.Time       `json:"occurred_at"`
}

func (e AccountCreated) EventType() string { return EventTypeAccountCreated }

func (e AccountCreated) Apply(s *AccountState) {
	s.ID = e.AccountID
	s.Code = e.Code
	s.Name = e.Name
	s.Type = e.AccountType
	s.Description = e.Description
	s.System = e.System
	s.Active = true
	s.Balance = decimal.Zero
	s.TotalDebits = decimal.Zero
	s.TotalCredits = decimal.Zero
	s.CurrentPeriodYear = e.PeriodYear
	s.CurrentPeriodMonth = e.PeriodMonth
	s.CreatedAt = e.OccurredAt
	if e.OpeningEntryID != "" {
		s.appendEntry(JournalEntry{
			ID:           e.OpeningEntryID,
			Type:         EntryTypeOpening,
			Status:       EntryStatusPosted,
			Amount:       e.OpeningBalance.Abs(),
			BalanceAfter: e.OpeningBalance,
			Description:  "opening balance",
			CreatedAt:    e.OccurredAt,
		})
		s.Balance = e.OpeningBalance
	}
	s.finish(e.OccurredAt)
}

// AccountPosted is the shared shape of debit and credit events. EntryType
// distinguishes a plain posting from an adjustment recorded on the same
// side.
type AccountPosted struct {
	EntryID       string          `json:"entry_id"`
	Amount        decimal.Decimal `json:"amount"`
	NewBalance    decimal.Decimal `json:"new_balance"`
	EntryType     EntryType       `json:"entry_type"`
	Description   string          `json:"description,omitempty"`
	ReferenceType string          `json:"reference_type,omitempty"`
	ReferenceID   string          `json:"reference_id,omitempty"`
	PerformedBy   string          `json:"performed_by,omitempty"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

func (e AccountPosted) entry() JournalEntry {
	return JournalEntry{
		ID:            e.EntryID,
		Type:          e.EntryType,
		Status:        EntryStatusPosted,
		Amount:        e.Amount,
		BalanceAfter:  e.NewBalance,
		Description:   e.Description,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		PerformedBy:   e.PerformedBy,
		CreatedAt:     e.OccurredAt,
	}
}

// AccountDebited records a debit-side posting.
type AccountDebited struct {
	AccountPosted
}

func (e AccountDebited) EventType() string { return EventTypeAccountDebited }

func (e AccountDebited) Apply(s *AccountState) {
	s.appendEntry(e.entry())
	s.Balance = e.NewBalance
	s.finish(e.OccurredAt)
}

// AccountCredited records a credit-side posting.
type AccountCredited struct {
	AccountPosted
}

func (e AccountCredited) EventType() string { return EventTypeAccountCredited }

func (e AccountCredited) Apply(s *AccountState) {
	s.appendEntry(e.entry())
	s.Balance = e.NewBalance
	s.finish(e.OccurredAt)
}

// AccountEntryReversed records the exact negation of a prior entry. It both
// appends the reversal entry and flips the original's status, linking the
// two bidirectionally.
type AccountEntryReversed struct {
	ReversalID      string          `json:"reversal_id"`
	OriginalEntryID string          `json:"original_entry_id"`
	Amount          decimal.Decimal `json:"amount"`
	NewBalance      decimal.Decimal `json:"new_balance"`
	Reason          string          `json:"reason,omitempty"`
	ReversedBy      string          `json:"reversed_by,omitempty"`
	OccurredAt      time.Time       `json:"occurred_at"`
}

func (e AccountEntryReversed) EventType() string { return EventTypeAccountEntryReversed }

func (e AccountEntryReversed) Apply(s *AccountState) {
	if original := s.FindEntry(e.OriginalEntryID); original != nil {
		updated := *original
		updated.Status = EntryStatusReversed
		updated.ReversalEntryID = e.ReversalID
		s.ReplaceEntry(updated)
	}
	s.appendEntry(JournalEntry{
		ID:              e.ReversalID,
		Type:            EntryTypeReversal,
		Status:          EntryStatusPosted,
		Amount:          e.Amount,
		BalanceAfter:    e.NewBalance,
		Description:     e.Reason,
		PerformedBy:     e.ReversedBy,
		ReversedEntryID: e.OriginalEntryID,
		CreatedAt:       e.OccurredAt,
	})
	s.Balance = e.NewBalance
	s.finish(e.OccurredAt)
}

// AccountPeriodClosed finalizes one period and advances the open period by
// exactly one calendar month.
type AccountPeriodClosed struct {
	Summary    PeriodSummary `json:"summary"`
	NextYear   int           `json:"next_year"`
	NextMonth  time.Month    `json:"next_month"`
	OccurredAt time.Time     `json:"occurred_at"`
}

func (e AccountPeriodClosed) EventType() string { return EventTypeAccountPeriodClosed }

func (e AccountPeriodClosed) Apply(s *AccountState) {
	s.PeriodSummaries = append(s.PeriodSummaries, e.Summary)
	s.CurrentPeriodYear = e.NextYear
	s.CurrentPeriodMonth = e.NextMonth
	s.finish(e.OccurredAt)
}

// AccountDeactivated marks the account inactive. System accounts never emit
// this event.
type AccountDeactivated struct {
	Reason     string    `json:"reason,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AccountDeactivated) EventType() string { return EventTypeAccountDeactivated }

func (e AccountDeactivated) Apply(s *AccountState) {
	s.Active = false
	s.finish(e.OccurredAt)
}

// AccountReactivated marks the account active again.
type AccountReactivated struct {
	OccurredAt time.Time `json:"occurred_at"`
}

func (e AccountReactivated) EventType() string { return EventTypeAccountReactivated }

func (e AccountReactivated) Apply(s *AccountState) {
	s.Active = true
	s.finish(e.OccurredAt)
}

func (s *AccountState) finish(at time.Time) {
	s.Version++
	s.UpdatedAt = at
}

// EncodeAccountEvent serializes an event payload for the event log.
func EncodeAccountEvent(e AccountEvent) ([]byte, error) {
	return json.Marshal(e)
}

// DecodeAccountEvent deserializes an event payload by type tag.
func DecodeAccountEvent(eventType string, payload []byte) (AccountEvent, error) {
	var (
		e   AccountEvent
		err error
	)
	switch eventType {
	case EventTypeAccountCreated:
		var v AccountCreated
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountDebited:
		var v AccountDebited
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountCredited:
		var v AccountCredited
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountEntryReversed:
		var v AccountEntryReversed
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountPeriodClosed:
		var v AccountPeriodClosed
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountDeactivated:
		var v AccountDeactivated
		err = json.Unmarshal(payload, &v)
		e = v
	case EventTypeAccountReactivated:
		var v AccountReactivated
		err = json.Unmarshal(payload, &v)
		e = v
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownEventType, eventType)
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

// ReplayAccount folds an ordered event stream into a fresh account state.
func ReplayAccount(records []*EventRecord) (*AccountState, error) {
	state := &AccountState{}
	for _, rec := range records {
		event, err := DecodeAccountEvent(rec.Type, rec.Payload)
		if err != nil {
			return nil, fmt.Errorf("replay %s seq %d: %w", rec.AccountID, rec.Sequence, err)
		}
		event.Apply(state)
	}
	return state, nil
}
