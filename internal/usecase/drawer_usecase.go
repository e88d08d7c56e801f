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

// DrawerUseCase hosts cash drawer sessions. The drawer's expected balance
// lives in its owned ledger; the close command reconciles it against the
// counted amount and reports the over/short.
type DrawerUseCase struct {
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
	cache map[string]*domain.CashDrawer
}

// NewDrawerUseCase creates a new DrawerUseCase.
func NewDrawerUseCase(
	exec Executor,
	txManager TransactionManager,
	snapshots SnapshotStore,
	outbox OutboxRepository,
	engine *LedgerEngine,
	idGen IDGenerator,
	retrier Retrier,
	m *metrics.Metrics,
) *DrawerUseCase {
	return &DrawerUseCase{
		exec:      exec,
		txManager: txManager,
		snapshots: snapshots,
		outbox:    outbox,
		engine:    engine,
		idGen:     idGen,
		retrier:   retrier,
		metrics:   m,
		now:       time.Now,
		cache:     make(map[string]*domain.CashDrawer),
	}
}

// CloseDrawerResult reports a drawer reconciliation.
type CloseDrawerResult struct {
	DrawerID        string
	ExpectedBalance decimal.Decimal
	CountedBalance  decimal.Decimal
	OverShort       decimal.Decimal // counted minus expected
}

// Open starts a drawer session for a register with an opening cash float.
// Reopening a drawer that is already open fails.
func (uc *DrawerUseCase) Open(ctx context.Context, drawerID, registerID string, openingFloat decimal.Decimal, openedBy string) (*domain.CashDrawer, error) {
	if openingFloat.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}
	if drawerID == "" {
		drawerID = uc.idGen.Generate()
	}

	var opened *domain.CashDrawer
	err := uc.withDrawerSlot(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		now := uc.now().UTC()

		var next *domain.CashDrawer
		if drawer == nil {
			next = &domain.CashDrawer{
				ID:         drawerID,
				RegisterID: registerID,
				CreatedAt:  now,
			}
			uc.engine.Initialize(next, drawerID)
		} else {
			if drawer.Status == domain.DrawerStatusOpen {
				return domain.ErrDrawerOpen
			}
			next = drawer.Clone()
		}

		next.Status = domain.DrawerStatusOpen
		next.RegisterID = registerID
		next.OpenedBy = openedBy
		next.OpenedAt = &now
		next.ClosedAt = nil

		if openingFloat.IsPositive() {
			if _, err := uc.engine.Credit(next, MutationInput{
				Amount: openingFloat,
				Type:   domain.DrawerTxOpeningFloat,
				Notes:  "opening float",
			}); err != nil {
				return err
			}
		}

		if err := uc.commit(ctx, next, domain.EventTypeDrawerOpened, map[string]any{
			"drawer_id":     drawerID,
			"register_id":   registerID,
			"opening_float": openingFloat.String(),
			"opened_by":     openedBy,
		}); err != nil {
			return err
		}

		opened = next.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.DrawersOpened.Inc()
	}

	return opened, nil
}

// RecordSale adds cash received from a sale to the expected balance. A
// negative amount is recorded as a refund paid out of the drawer.
func (uc *DrawerUseCase) RecordSale(ctx context.Context, drawerID string, amount decimal.Decimal, reference string) (*domain.LedgerResult, error) {
	if amount.IsNegative() {
		return uc.mutate(ctx, drawerID, func(next *domain.CashDrawer) (*domain.LedgerResult, error) {
			return uc.engine.Debit(next, MutationInput{
				Amount: amount.Neg(),
				Type:   domain.DrawerTxRefund,
				Notes:  reference,
			})
		}, domain.EventTypeDrawerSale)
	}
	return uc.mutate(ctx, drawerID, func(next *domain.CashDrawer) (*domain.LedgerResult, error) {
		return uc.engine.Credit(next, MutationInput{
			Amount: amount,
			Type:   domain.DrawerTxCashSale,
			Notes:  reference,
		})
	}, domain.EventTypeDrawerSale)
}

// RecordPayout removes cash paid out of the drawer, for example a vendor
// payment or a till correction.
func (uc *DrawerUseCase) RecordPayout(ctx context.Context, drawerID string, amount decimal.Decimal, reason string) (*domain.LedgerResult, error) {
	return uc.mutate(ctx, drawerID, func(next *domain.CashDrawer) (*domain.LedgerResult, error) {
		return uc.engine.Debit(next, MutationInput{
			Amount: amount,
			Type:   domain.DrawerTxPayout,
			Notes:  reason,
		})
	}, domain.EventTypeDrawerPayout)
}

// Drop removes cash moved from the drawer to the safe mid-session.
func (uc *DrawerUseCase) Drop(ctx context.Context, drawerID string, amount decimal.Decimal, performedBy string) (*domain.LedgerResult, error) {
	return uc.mutate(ctx, drawerID, func(next *domain.CashDrawer) (*domain.LedgerResult, error) {
		return uc.engine.Debit(next, MutationInput{
			Amount:   amount,
			Type:     domain.DrawerTxDrop,
			Notes:    "cash drop",
			Metadata: map[string]string{"performed_by": performedBy},
		})
	}, domain.EventTypeDrawerDrop)
}

// AdjustBalance sets the expected balance directly, recording the difference
// as an adjustment. Used when a recount mid-session corrects the expectation.
func (uc *DrawerUseCase) AdjustBalance(ctx context.Context, drawerID string, newBalance decimal.Decimal, reason string) (*domain.LedgerResult, error) {
	return uc.mutate(ctx, drawerID, func(next *domain.CashDrawer) (*domain.LedgerResult, error) {
		return uc.engine.AdjustTo(next, newBalance, reason, nil)
	}, domain.EventTypeDrawerAdjust)
}

// ExpectedBalance reads the drawer's current expected cash amount.
func (uc *DrawerUseCase) ExpectedBalance(ctx context.Context, drawerID string) (decimal.Decimal, error) {
	var out decimal.Decimal
	err := uc.withDrawer(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		out = drawer.ExpectedBalance()
		return nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return out, nil
}

// GetDrawer returns a copy of the drawer.
func (uc *DrawerUseCase) GetDrawer(ctx context.Context, drawerID string) (*domain.CashDrawer, error) {
	var out *domain.CashDrawer
	err := uc.withDrawer(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		out = drawer.Clone()
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close ends the session against a physical count. The full expected amount
// leaves the ledger as a close count, so a closed drawer always reads zero;
// the over/short is counted minus expected.
func (uc *DrawerUseCase) Close(ctx context.Context, drawerID string, countedBalance decimal.Decimal, closedBy string) (*CloseDrawerResult, error) {
	if countedBalance.IsNegative() {
		return nil, domain.ErrNegativeAmount
	}

	var (
		result    *CloseDrawerResult
		overShort decimal.Decimal
	)
	err := uc.withDrawer(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		if drawer.Status != domain.DrawerStatusOpen {
			return domain.ErrDrawerClosed
		}

		next := drawer.Clone()
		now := uc.now().UTC()
		expected := next.ExpectedBalance()
		overShort = countedBalance.Sub(expected)

		if expected.IsPositive() {
			if _, err := uc.engine.Debit(next, MutationInput{
				Amount: expected,
				Type:   domain.DrawerTxCloseCount,
				Notes:  fmt.Sprintf("close count %s, over/short %s", countedBalance, overShort),
				Metadata: map[string]string{
					"counted":    countedBalance.String(),
					"over_short": overShort.String(),
					"closed_by":  closedBy,
				},
			}); err != nil {
				return err
			}
		}
		next.Status = domain.DrawerStatusClosed
		next.ClosedAt = &now

		if err := uc.commit(ctx, next, domain.EventTypeDrawerClosed, map[string]any{
			"drawer_id":  drawerID,
			"expected":   expected.String(),
			"counted":    countedBalance.String(),
			"over_short": overShort.String(),
			"closed_by":  closedBy,
		}); err != nil {
			return err
		}

		result = &CloseDrawerResult{
			DrawerID:        drawerID,
			ExpectedBalance: expected,
			CountedBalance:  countedBalance,
			OverShort:       overShort,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if uc.metrics != nil {
		uc.metrics.DrawersClosed.Inc()
		os, _ := overShort.Float64()
		uc.metrics.DrawerOverShort.Observe(os)
	}

	return result, nil
}

// mutate runs a ledger mutation on an open drawer and persists the result.
func (uc *DrawerUseCase) mutate(ctx context.Context, drawerID string, fn func(next *domain.CashDrawer) (*domain.LedgerResult, error), eventType string) (*domain.LedgerResult, error) {
	var result *domain.LedgerResult
	err := uc.withDrawer(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		if drawer.Status != domain.DrawerStatusOpen {
			return domain.ErrDrawerClosed
		}

		next := drawer.Clone()
		res, err := fn(next)
		if err != nil {
			return err
		}

		if err := uc.commit(ctx, next, eventType, map[string]any{
			"drawer_id":   drawerID,
			"tx_id":       res.TxID,
			"amount":      res.Amount.String(),
			"new_balance": res.BalanceAfter.String(),
		}); err != nil {
			return err
		}

		result = res
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (uc *DrawerUseCase) withDrawer(ctx context.Context, drawerID string, fn func(ctx context.Context, drawer *domain.CashDrawer) error) error {
	return uc.withDrawerSlot(ctx, drawerID, func(ctx context.Context, drawer *domain.CashDrawer) error {
		if drawer == nil {
			return domain.ErrDrawerNotFound
		}
		return fn(ctx, drawer)
	})
}

func (uc *DrawerUseCase) withDrawerSlot(ctx context.Context, drawerID string, fn func(ctx context.Context, drawer *domain.CashDrawer) error) error {
	return uc.exec.Do(ctx, "drawer/"+drawerID, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, DefaultCommandTimeout)
		defer cancel()

		drawer, err := uc.load(ctx, drawerID)
		if err != nil {
			return err
		}
		return fn(ctx, drawer)
	})
}

func (uc *DrawerUseCase) load(ctx context.Context, drawerID string) (*domain.CashDrawer, error) {
	uc.mu.Lock()
	drawer, ok := uc.cache[drawerID]
	uc.mu.Unlock()
	if ok {
		return drawer, nil
	}

	snap, err := uc.snapshots.Get(ctx, domain.SnapshotKindDrawer, drawerID)
	if err != nil {
		if errors.Is(err, domain.ErrSnapshotNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load drawer %s: %w", drawerID, err)
	}

	drawer = &domain.CashDrawer{}
	if err := json.Unmarshal(snap.State, drawer); err != nil {
		return nil, fmt.Errorf("unmarshal drawer %s: %w", drawerID, err)
	}

	uc.mu.Lock()
	uc.cache[drawerID] = drawer
	uc.mu.Unlock()
	return drawer, nil
}

func (uc *DrawerUseCase) commit(ctx context.Context, next *domain.CashDrawer, eventType string, payload map[string]any) error {
	now := uc.now().UTC()
	next.UpdatedAt = now

	stateBytes, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("marshal drawer: %w", err)
	}

	outboxEvent := &domain.OutboxEvent{
		ID:            uc.idGen.Generate(),
		AggregateID:   next.ID,
		AggregateType: domain.AggregateTypeDrawer,
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
			Kind:      domain.SnapshotKindDrawer,
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
		uc.metrics.SnapshotWrites.WithLabelValues(domain.SnapshotKindDrawer).Inc()
	}

	return nil
}
