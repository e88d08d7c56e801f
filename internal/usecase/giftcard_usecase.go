package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/infrastructure/metrics"
)

// GiftCardUseCase hosts stored-value cards. Cards persist as wholesale
// snapshots with an outbox notification per state change; the bounded
// transaction history inside the ledger is the card's audit trail.
type GiftCardUseCase struct {
	exec      Executor
	txManager TransactionManager
	snapshots SnapshotStore
	outbox    OutboxRepository
	engine    *LedgerEngine
	idGen     IDGenerator
	retrier   Retrier
	metrics   *metrics.Metrics
	now       func() time.Time

	mu    sync.Mutex
	cache map[string]*domain.GiftCard
}

// NewGiftCardUseCase creates a new GiftCardUseCase.
func NewGiftCardUseCase(
	exec Executor,
	txManager TransactionManager,
	snapshots SnapshotStore,
	outbox OutboxRepository,
	engine *LedgerEngine,
	idGen IDGenerator,
	retrier Retrier,
	m *metrics.Metrics,
) *GiftCardUseCase {
	return &GiftCardUseCase{
		exec:      exec,
		txManager: txManager,
		snapshots: snapshots,
		outbox:    outbox,
		engine:    engine,
		idGen:     idGen,
		retrier:   retrier,
		metrics:   m,
		now:       time.Now,
		cache:     make(map[string]*domain.GiftCard),
	}
}

// IssueCardInput represents input for issuing a gift card.
type IssueCardInput struct {
	CardID         string // optional; generated when empty
	Code           string
	InitialBalance decimal.Decimal
	ExpiresAt      *time.Time
}

// Issue creates a card in the Inactive state. A positive initial balance is
// loaded immediately but cannot be redeemed until the card is activated.
func (uc *GiftCardUseCase) Issue(ctx context.Context, input IssueCardInput) (*domain.GiftCard, error) {
	if input.InitialBalance.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}

	cardID := input.CardID
	if cardID == "" {
		cardID = uc.idGen.Generate()
	}

	var issued *domain.GiftCard
	err := uc.withCardSlot(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if card != nil {
			return domain.ErrCardExists
		}

		now := uc.now().UTC()
		next := &domain.GiftCard{
			ID:        cardID,
			Code:      input.Code,
			Status:    domain.GiftCardStatusInactive,
			ExpiresAt: input.ExpiresAt,
			CreatedAt: now,
			UpdatedAt: now,
		}
		uc.engine.Initialize(next, cardID)

		if input.InitialBalance.IsPositive() {
			if _, err := uc.engine.Credit(next, MutationInput{
				Amount: input.InitialBalance,
				Type:   domain.CardTxLoad,
				Notes:  "initial load",
			}); err != nil {
				return err
			}
		}

		if err := uc.commit(ctx, next, domain.EventTypeCardIssued, map[string]any{
			"card_id":         cardID,
			"code":            input.Code,
			"initial_balance": input.InitialBalance.String(),
		}); err != nil {
			return err
		}

		issued = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.CardsIssued.Inc()
	}

	return issued, nil
}

// Activate moves an Inactive card to Active and records a zero-delta
// activation transaction so the audit trail shows when redemption opened.
func (uc *GiftCardUseCase) Activate(ctx context.Context, cardID string) (*domain.GiftCard, error) {
	var activated *domain.GiftCard
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if card.Status != domain.GiftCardStatusInactive {
			return domain.ErrCardNotInactive
		}

		next := card.Clone()
		now := uc.now().UTC()
		next.Status = domain.GiftCardStatusActive
		next.ActivatedAt = &now

		if _, err := uc.engine.Credit(next, MutationInput{
			Type:  domain.CardTxActivation,
			Notes: "card activated",
		}); err != nil {
			return err
		}

		if err := uc.commit(ctx, next, domain.EventTypeCardActivated, map[string]any{
			"card_id": cardID,
			"balance": next.Balance().String(),
		}); err != nil {
			return err
		}

		activated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.recordStatus(activated.Status)
	return activated, nil
}

// Redeem debits value from an Active card. A redemption for exactly the
// remaining balance succeeds and flips the card to Depleted.
func (uc *GiftCardUseCase) Redeem(ctx context.Context, cardID string, amount decimal.Decimal, reference string) (*domain.LedgerResult, error) {
	var (
		result *domain.LedgerResult
		status domain.GiftCardStatus
	)
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if err := requireRedeemable(card, uc.now().UTC()); err != nil {
			return err
		}

		next := card.Clone()
		res, err := uc.engine.Debit(next, MutationInput{
			Amount: amount,
			Type:   domain.CardTxRedemption,
			Notes:  reference,
		})
		if err != nil {
			return err
		}

		if err := uc.commit(ctx, next, domain.EventTypeCardRedeemed, map[string]any{
			"card_id":     cardID,
			"amount":      amount.String(),
			"new_balance": res.BalanceAfter.String(),
		}); err != nil {
			return err
		}

		result = res
		status = next.Status
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.CardRedemptions.Inc()
		amt, _ := amount.Float64()
		uc.metrics.RedemptionAmount.Observe(amt)
	}
	if status == domain.GiftCardStatusDepleted {
		uc.recordStatus(status)
	}

	return result, nil
}

// Reload adds value to an Active or Depleted card. Reloading a Depleted card
// brings it back to Active.
func (uc *GiftCardUseCase) Reload(ctx context.Context, cardID string, amount decimal.Decimal) (*domain.LedgerResult, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrNegativeAmount
	}

	var (
		result    *domain.LedgerResult
		reentered bool
	)
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if card.Status != domain.GiftCardStatusActive && card.Status != domain.GiftCardStatusDepleted {
			return domain.ErrCardNotActive
		}

		next := card.Clone()
		wasDepleted := next.Status == domain.GiftCardStatusDepleted
		res, err := uc.engine.Credit(next, MutationInput{
			Amount: amount,
			Type:   domain.CardTxLoad,
			Notes:  "reload",
		})
		if err != nil {
			return err
		}

		if err := uc.commit(ctx, next, domain.EventTypeCardReloaded, map[string]any{
			"card_id":     cardID,
			"amount":      amount.String(),
			"new_balance": res.BalanceAfter.String(),
		}); err != nil {
			return err
		}

		result = res
		reentered = wasDepleted && next.Status == domain.GiftCardStatusActive
		return nil
	})
	if err != nil {
		return nil, err
	}

	if reentered {
		uc.recordStatus(domain.GiftCardStatusActive)
	}

	return result, nil
}

// Expire terminates the card, forcing any remaining value to zero with an
// expiration transaction. Terminal; the card accepts no further commands.
func (uc *GiftCardUseCase) Expire(ctx context.Context, cardID string) (*domain.GiftCard, error) {
	return uc.terminate(ctx, cardID, domain.GiftCardStatusExpired, domain.CardTxExpiration, domain.EventTypeCardExpired)
}

// Cancel terminates the card, forcing any remaining value to zero with a
// cancellation transaction. Terminal; the card accepts no further commands.
func (uc *GiftCardUseCase) Cancel(ctx context.Context, cardID string) (*domain.GiftCard, error) {
	return uc.terminate(ctx, cardID, domain.GiftCardStatusCancelled, domain.CardTxCancellation, domain.EventTypeCardCancelled)
}

func (uc *GiftCardUseCase) terminate(ctx context.Context, cardID string, status domain.GiftCardStatus, txType, eventType string) (*domain.GiftCard, error) {
	var terminated *domain.GiftCard
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if card.Status.Terminal() {
			return domain.ErrCardTerminal
		}

		next := card.Clone()
		forfeited := next.Balance()
		if forfeited.IsPositive() {
			if _, err := uc.engine.Debit(next, MutationInput{
				Amount: forfeited,
				Type:   txType,
			}); err != nil {
				return err
			}
		}
		next.Status = status

		if err := uc.commit(ctx, next, eventType, map[string]any{
			"card_id":          cardID,
			"forfeited_amount": forfeited.String(),
		}); err != nil {
			return err
		}

		terminated = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	uc.recordStatus(status)
	return terminated, nil
}

// GetCard returns a copy of the card.
func (uc *GiftCardUseCase) GetCard(ctx context.Context, cardID string) (*domain.GiftCard, error) {
	var out *domain.GiftCard
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		out = card.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Transactions returns up to limit card transactions, most recent first.
func (uc *GiftCardUseCase) Transactions(ctx context.Context, cardID string, limit int) ([]domain.Transaction, error) {
	var out []domain.Transaction
	err := uc.withCard(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		out = card.Ledger.RecentTransactions(limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// withCard runs fn with the loaded card inside its single-writer slot,
// failing when the card does not exist.
func (uc *GiftCardUseCase) withCard(ctx context.Context, cardID string, fn func(ctx context.Context, card *domain.GiftCard) error) error {
	return uc.withCardSlot(ctx, cardID, func(ctx context.Context, card *domain.GiftCard) error {
		if card == nil {
			return domain.ErrCardNotFound
		}
		return fn(ctx, card)
	})
}

// withCardSlot runs fn inside the single-writer slot for the card key. The
// card is nil when no durable state exists yet.
func (uc *GiftCardUseCase) withCardSlot(ctx context.Context, cardID string, fn func(ctx context.Context, card *domain.GiftCard) error) error {
	return uc.exec.Do(ctx, "giftcard/"+cardID, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()

		card, err := uc.load(ctx, cardID)
		if err != nil {
			return err
		}
		return fn(ctx, card)
	})
}

func (uc *GiftCardUseCase) load(ctx context.Context, cardID string) (*domain.GiftCard, error) {
	uc.mu.Lock()
	card, ok := uc.cache[cardID]
	uc.mu.Unlock()
	if ok {
		return card, nil
	}

	snap, err := uc.snapshots.Get(ctx, domain.SnapshotKindGiftCard, cardID)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load gift card %s: %w", cardID, err)
	}

	card = &domain.GiftCard{}
	if err := json.Unmarshal(snap.State, card); err != nil {
		return nil, fmt.Errorf("unmarshal gift card %s: %w", cardID, err)
	}

	uc.mu.Lock()
	uc.cache[cardID] = card
	uc.mu.Unlock()
	return card, nil
}

// commit durably writes the mutated clone and its outbox notification in one
// transaction, then swaps it into the cache. A failed write leaves the
// previous state untouched.
func (uc *GiftCardUseCase) commit(ctx context.Context, next *domain.GiftCard, eventType string, payload map[string]any) error {
	now := uc.now().UTC()
	next.UpdatedAt = now

	stateBytes, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal gift card: %w", err)
	}

	outboxEvent := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   next.ID,
		AggregateType: domain.AggregateTypeGiftCard,
		EventType:     eventType,
		Payload:       payload,
		CreatedAt:     now,
	}

	err = runTx(ctx, uc.retrier, func() error {
		tx, err := uc.txManager.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		if err := uc.snapshots.SaveTx(ctx, tx, &domain.Snapshot{
			Kind:      domain.SnapshotKindGiftCard,
			ID:        next.ID,
			State:     stateBytes,
			Version:   next.Ledger.Version,
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
		return err
	}

	uc.mu.Lock()
	uc.cache[next.ID] = next
	uc.mu.Unlock()

	if uc.metrics != nil {
		uc.metrics.SnapshotWrites.WithLabelValues(domain.SnapshotKindGiftCard).Inc()
	}

	return nil
}

func (uc *GiftCardUseCase) recordStatus(status domain.GiftCardStatus) {
	if uc.metrics != nil {
		uc.metrics.CardStatusChanges.WithLabelValues(string(status)).Inc()
	}
}

func requireRedeemable(card *domain.GiftCard, now time.Time) error {
	if card.Status != domain.GiftCardStatusActive {
		return domain.ErrCardNotActive
	}
	if card.ExpiresAt != nil && now.After(*card.ExpiresAt) {
		return domain.ErrCardNotActive
	}
	return nil
}
