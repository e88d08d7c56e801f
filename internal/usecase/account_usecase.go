package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/infrastructure/metrics"
)

// AccountUseCase hosts event-sourced double-entry accounts. The materialized
// state is derived: it exists only as the fold of the account's confirmed
// events, cached per key and rebuilt by replay on cold activation. Every
// command runs inside the single-writer slot for its account key, so the
// handlers themselves carry no locks.
type AccountUseCase struct {
	exec      Executor
	txManager TransactionManager
	events    EventStore
	snapshots SnapshotStore
	outbox    OutboxRepository
	idGen     IDGenerator
	retrier   Retrier
	metrics   *metrics.Metrics
	now       func() time.Time

	// mu guards the cache map only; the states themselves are touched only
	// inside the single-writer slot for their key.
	mu    sync.Mutex
	cache map[string]*domain.AccountState
}

// NewAccountUseCase creates a new AccountUseCase.
func NewAccountUseCase(
	exec Executor,
	txManager TransactionManager,
	events EventStore,
	snapshots SnapshotStore,
	outbox OutboxRepository,
	idGen IDGenerator,
	retrier Retrier,
	m *metrics.Metrics,
) *AccountUseCase {
	return &AccountUseCase{
		exec:      exec,
		txManager: txManager,
		events:    events,
		snapshots: snapshots,
		outbox:    outbox,
		idGen:     idGen,
		retrier:   retrier,
		metrics:   m,
		now:       time.Now,
		cache:     make(map[string]*domain.AccountState),
	}
}

// CreateAccountInput represents input for creating an account.
type CreateAccountInput struct {
	AccountID      string // optional; generated when empty
	Code           string
	Name           string
	Type           domain.AccountType
	Description    string
	System         bool
	OpeningBalance decimal.Decimal
	CreatedBy      string
}

// PostingInput represents input for posting a debit or credit.
type PostingInput struct {
	Amount        decimal.Decimal
	Description   string
	ReferenceType string
	ReferenceID   string
	PerformedBy   string
}

// PostingResult reports a confirmed posting.
type PostingResult struct {
	EntryID    string
	Amount     decimal.Decimal
	NewBalance decimal.Decimal
	EntryType  domain.EntryType
}

// ReversalResult reports a confirmed reversal.
type ReversalResult struct {
	ReversalID      string
	OriginalEntryID string
	Amount          decimal.Decimal
	NewBalance      decimal.Decimal
}

// CreateAccount creates an account once. A second create for the same id
// fails with ErrAccountExists. The opening balance is part of the durable
// AccountCreated event, so replay alone reproduces it.
func (uc *AccountUseCase) CreateAccount(ctx context.Context, input CreateAccountInput) (*domain.AccountState, error) {
	if err := domain.ValidateCreate(input.Type, input.Code, input.Name); err != nil {
		return nil, err
	}
	if input.OpeningBalance.IsNegative() {
		return nil, domain.ErrNegativeBalance
	}

	accountID := input.AccountID
	if accountID == "" {
		accountID = uc.idGen.Generate()
	}

	var created *domain.AccountState
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if state.Created() {
			return domain.ErrAccountExists
		}

		now := uc.now().UTC()
		event := domain.AccountCreated{
			AccountID:      accountID,
			Code:           input.Code,
			Name:           input.Name,
			AccountType:    input.Type,
			Description:    input.Description,
			System:         input.System,
			OpeningBalance: input.OpeningBalance,
			PeriodYear:     now.Year(),
			PeriodMonth:    now.Month(),
			OccurredAt:     now,
		}
		if !input.OpeningBalance.IsZero() {
			event.OpeningEntryID = uc.idGen.Generate()
		}

		next, err := uc.commit(ctx, state, event, map[string]any{
			"account_id":      accountID,
			"code":            input.Code,
			"account_type":    string(input.Type),
			"opening_balance": input.OpeningBalance.String(),
		})
		if err != nil {
			return err
		}

		created = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.AccountsCreated.Inc()
	}

	return created, nil
}

// PostDebit posts a debit. The balance moves up for debit-normal accounts
// (Asset, Expense) and down otherwise.
func (uc *AccountUseCase) PostDebit(ctx context.Context, accountID string, input PostingInput) (*PostingResult, error) {
	return uc.post(ctx, accountID, input, domain.EntryTypeDebit)
}

// PostCredit posts a credit, the mirror of PostDebit.
func (uc *AccountUseCase) PostCredit(ctx context.Context, accountID string, input PostingInput) (*PostingResult, error) {
	return uc.post(ctx, accountID, input, domain.EntryTypeCredit)
}

func (uc *AccountUseCase) post(ctx context.Context, accountID string, input PostingInput, side domain.EntryType) (*PostingResult, error) {
	if !input.Amount.IsPositive() {
		return nil, domain.ErrInvalidPostAmount
	}

	var result *PostingResult
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if err := requireActive(state); err != nil {
			return err
		}

		var delta decimal.Decimal
		if side == domain.EntryTypeDebit {
			delta = state.Type.DebitDelta(input.Amount)
		} else {
			delta = state.Type.CreditDelta(input.Amount)
		}

		now := uc.now().UTC()
		posted := domain.AccountPosted{
			EntryID:       uc.idGen.Generate(),
			Amount:        input.Amount,
			NewBalance:    state.Balance.Add(delta),
			EntryType:     side,
			Description:   input.Description,
			ReferenceType: input.ReferenceType,
			ReferenceID:   input.ReferenceID,
			PerformedBy:   input.PerformedBy,
			OccurredAt:    now,
		}

		var event domain.AccountEvent
		if side == domain.EntryTypeDebit {
			event = domain.AccountDebited{AccountPosted: posted}
		} else {
			event = domain.AccountCredited{AccountPosted: posted}
		}

		if _, err := uc.commit(ctx, state, event, map[string]any{
			"account_id":  accountID,
			"entry_id":    posted.EntryID,
			"entry_type":  string(side),
			"amount":      posted.Amount.String(),
			"new_balance": posted.NewBalance.String(),
		}); err != nil {
			return err
		}

		result = &PostingResult{
			EntryID:    posted.EntryID,
			Amount:     posted.Amount,
			NewBalance: posted.NewBalance,
			EntryType:  side,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesPosted.WithLabelValues(string(side)).Inc()
		amt, _ := input.Amount.Float64()
		uc.metrics.PostingAmount.Observe(amt)
	}

	return result, nil
}

// AdjustBalance sets the balance to newBalance by emitting the debit or
// credit event whose sign rule explains the difference. The resulting entry
// is tagged as an adjustment.
func (uc *AccountUseCase) AdjustBalance(ctx context.Context, accountID string, newBalance decimal.Decimal, reason, performedBy string) (*PostingResult, error) {
	var result *PostingResult
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if err := requireActive(state); err != nil {
			return err
		}
		if newBalance.Equal(state.Balance) {
			return domain.ErrNoBalanceChange
		}

		delta := newBalance.Sub(state.Balance)

		// An increase on a debit-normal account is a debit-side movement,
		// on a credit-normal account a credit-side movement; decreases are
		// the opposite.
		side := domain.EntryTypeDebit
		if delta.IsPositive() != state.Type.DebitNormal() {
			side = domain.EntryTypeCredit
		}

		now := uc.now().UTC()
		posted := domain.AccountPosted{
			EntryID:     uc.idGen.Generate(),
			Amount:      delta.Abs(),
			NewBalance:  newBalance,
			EntryType:   domain.EntryTypeAdjustment,
			Description: reason,
			PerformedBy: performedBy,
			OccurredAt:  now,
		}

		var event domain.AccountEvent
		if side == domain.EntryTypeDebit {
			event = domain.AccountDebited{AccountPosted: posted}
		} else {
			event = domain.AccountCredited{AccountPosted: posted}
		}

		if _, err := uc.commit(ctx, state, event, map[string]any{
			"account_id":  accountID,
			"entry_id":    posted.EntryID,
			"entry_type":  string(domain.EntryTypeAdjustment),
			"amount":      posted.Amount.String(),
			"new_balance": newBalance.String(),
			"reason":      reason,
		}); err != nil {
			return err
		}

		result = &PostingResult{
			EntryID:    posted.EntryID,
			Amount:     posted.Amount,
			NewBalance: newBalance,
			EntryType:  domain.EntryTypeAdjustment,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesPosted.WithLabelValues(string(domain.EntryTypeAdjustment)).Inc()
	}

	return result, nil
}

// ReverseEntry negates a prior entry exactly. The original entry transitions
// Posted -> Reversed once; reversals themselves can never be reversed.
func (uc *AccountUseCase) ReverseEntry(ctx context.Context, accountID, entryID, reason, reversedBy string) (*ReversalResult, error) {
	var result *ReversalResult
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if !state.Created() {
			return domain.ErrAccountNotFound
		}

		entry := state.FindEntry(entryID)
		if entry == nil {
			return domain.ErrEntryNotFound
		}
		if entry.Type == domain.EntryTypeReversal {
			return domain.ErrEntryIsReversal
		}
		if entry.Status == domain.EntryStatusReversed {
			return domain.ErrEntryAlreadyReversed
		}

		delta := state.EntryEffect(entry).Neg()
		now := uc.now().UTC()
		event := domain.AccountEntryReversed{
			ReversalID:      uc.idGen.Generate(),
			OriginalEntryID: entryID,
			Amount:          delta.Abs(),
			NewBalance:      state.Balance.Add(delta),
			Reason:          reason,
			ReversedBy:      reversedBy,
			OccurredAt:      now,
		}

		if _, err := uc.commit(ctx, state, event, map[string]any{
			"account_id":        accountID,
			"reversal_id":       event.ReversalID,
			"original_entry_id": entryID,
			"amount":            event.Amount.String(),
			"new_balance":       event.NewBalance.String(),
		}); err != nil {
			return err
		}

		result = &ReversalResult{
			ReversalID:      event.ReversalID,
			OriginalEntryID: entryID,
			Amount:          event.Amount,
			NewBalance:      event.NewBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.EntriesReversed.Inc()
	}

	return result, nil
}

// ClosePeriod finalizes the account's current open period and advances it by
// exactly one calendar month, wrapping December into January.
func (uc *AccountUseCase) ClosePeriod(ctx context.Context, accountID string, year int, month time.Month, closing *decimal.Decimal, closedBy string) (*domain.PeriodSummary, error) {
	var summary *domain.PeriodSummary
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if !state.Created() {
			return domain.ErrAccountNotFound
		}
		if state.PeriodClosed(year, month) {
			return domain.ErrPeriodAlreadyClosed
		}
		if year != state.CurrentPeriodYear || month != state.CurrentPeriodMonth {
			return domain.ErrPeriodNotCurrent
		}

		now := uc.now().UTC()
		nextYear, nextMonth := domain.NextPeriod(year, month)
		event := domain.AccountPeriodClosed{
			Summary:    state.BuildPeriodSummary(year, month, closing, closedBy, now),
			NextYear:   nextYear,
			NextMonth:  nextMonth,
			OccurredAt: now,
		}

		if _, err := uc.commit(ctx, state, event, map[string]any{
			"account_id":      accountID,
			"year":            year,
			"month":           int(month),
			"opening_balance": event.Summary.OpeningBalance.String(),
			"closing_balance": event.Summary.ClosingBalance.String(),
		}); err != nil {
			return err
		}

		s := event.Summary
		summary = &s
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.PeriodsClosed.Inc()
	}

	return summary, nil
}

// Deactivate marks the account inactive. System accounts cannot be
// deactivated. Deactivating an already-inactive account is a no-op.
func (uc *AccountUseCase) Deactivate(ctx context.Context, accountID, reason string) error {
	return uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if !state.Created() {
			return domain.ErrAccountNotFound
		}
		if state.System {
			return domain.ErrSystemAccount
		}
		if !state.Active {
			return nil
		}

		event := domain.AccountDeactivated{Reason: reason, OccurredAt: uc.now().UTC()}
		_, err := uc.commit(ctx, state, event, map[string]any{
			"account_id": accountID,
			"reason":     reason,
		})
		return err
	})
}

// Reactivate marks the account active again. A no-op on active accounts.
func (uc *AccountUseCase) Reactivate(ctx context.Context, accountID string) error {
	return uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if !state.Created() {
			return domain.ErrAccountNotFound
		}
		if state.Active {
			return nil
		}

		event := domain.AccountReactivated{OccurredAt: uc.now().UTC()}
		_, err := uc.commit(ctx, state, event, map[string]any{
			"account_id": accountID,
		})
		return err
	})
}

// GetAccount returns a copy of the account's materialized state.
func (uc *AccountUseCase) GetAccount(ctx context.Context, accountID string) (*domain.AccountState, error) {
	var out *domain.AccountState
	err := uc.withAccount(ctx, accountID, func(ctx context.Context, state *domain.AccountState) error {
		if !state.Created() {
			return domain.ErrAccountNotFound
		}
		out = state.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Replay folds the account's full event stream from the store into a fresh
// state, bypassing the cache. Used for replay verification.
func (uc *AccountUseCase) Replay(ctx context.Context, accountID string) (*domain.AccountState, error) {
	records, err := uc.events.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, domain.ErrAccountNotFound
	}
	if uc.metrics != nil {
		uc.metrics.AccountReplays.Inc()
	}
	return domain.ReplayAccount(records)
}

// withAccount runs fn inside the single-writer slot for the account key,
// with the materialized state loaded.
func (uc *AccountUseCase) withAccount(ctx context.Context, accountID string, fn func(ctx context.Context, state *domain.AccountState) error) error {
	return uc.exec.Do(ctx, "account/"+accountID, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()

		state, err := uc.load(ctx, accountID)
		if err != nil {
			return err
		}
		return fn(ctx, state)
	})
}

// load returns the cached state for accountID or rebuilds it by replaying
// the event log. An account with no events yet loads as an empty,
// not-created state.
func (uc *AccountUseCase) load(ctx context.Context, accountID string) (*domain.AccountState, error) {
	uc.mu.Lock()
	state, ok := uc.cache[accountID]
	uc.mu.Unlock()
	if ok {
		return state, nil
	}

	records, err := uc.events.ListByAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("load account %s: %w", accountID, err)
	}
	state, err = domain.ReplayAccount(records)
	if err != nil {
		return nil, err
	}
	if len(records) > 0 && uc.metrics != nil {
		uc.metrics.AccountReplays.Inc()
	}

	uc.mu.Lock()
	uc.cache[accountID] = state
	uc.mu.Unlock()
	return state, nil
}

// commit applies the event to a clone of state, then durably writes the
// event record, the wholesale snapshot and the outbox notification in one
// transaction. Only after the write succeeds does the clone become the
// cached state; a failed write leaves the previous state untouched, so no
// partially-applied command can ever be observed.
func (uc *AccountUseCase) commit(ctx context.Context, state *domain.AccountState, event domain.AccountEvent, payload map[string]any) (*domain.AccountState, error) {
	next := state.Clone()
	event.Apply(next)

	encoded, err := domain.EncodeAccountEvent(event)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", event.EventType(), err)
	}

	stateBytes, err := json.Marshal(next)
	if err != nil {
		return nil, fmt.Errorf("marshal account state: %w", err)
	}

	now := uc.now().UTC()
	accountID := next.ID

	record := &domain.EventRecord{
		ID:        uc.idGen.Generate(),
		AccountID: accountID,
		Sequence:  next.Version,
		Type:      event.EventType(),
		Payload:   encoded,
		CreatedAt: now,
	}

	outboxEvent := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   accountID,
		AggregateType: domain.AggregateTypeAccount,
		EventType:     event.EventType(),
		Payload:       payload,
		CreatedAt:     now,
	}

	err = runTx(ctx, uc.retrier, func() error {
		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := uc.events.Append(ctx, tx, record); err != nil {
			return err
		}
		if err := uc.snapshots.SaveTx(ctx, tx, &domain.Snapshot{
			Kind:      domain.SnapshotKindAccount,
			ID:        accountID,
			State:     stateBytes,
			Version:   next.Version,
			UpdatedAt: now,
		}); err != nil {
			return err
		}
		if err := uc.outbox.Create(ctx, tx, outboxEvent); err != nil {
			return err
		}
		return tx.Commit(ctx)
	})
	if err != nil {
		return nil, err
	}

	uc.mu.Lock()
	uc.cache[accountID] = next
	uc.mu.Unlock()

	if uc.metrics != nil {
		uc.metrics.EventAppends.Inc()
		uc.metrics.SnapshotWrites.WithLabelValues(domain.SnapshotKindAccount).Inc()
	}

	return next, nil
}

func requireActive(state *domain.AccountState) error {
	if !state.Created() {
		return domain.ErrAccountNotFound
	}
	if !state.Active {
		return domain.ErrAccountInactive
	}
	return nil
}
