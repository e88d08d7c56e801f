package usecase

import (
	"context"
	"time"

	"github.com/tillworks/opsledger/internal/domain"
)

// EventStore defines data access for the append-only account event log.
// Events for one account are strictly ordered by sequence; the full stream
// is replayed on cold activation.
type EventStore interface {
	Append(ctx context.Context, tx Transaction, record *domain.EventRecord) error
	ListByAccount(ctx context.Context, accountID string) ([]*domain.EventRecord, error)
}

// SnapshotStore defines data access for wholesale entity state. Every
// mutating operation writes the entity's full state; there are no
// partial-field updates.
type SnapshotStore interface {
	Save(ctx context.Context, snapshot *domain.Snapshot) error
	SaveTx(ctx context.Context, tx Transaction, snapshot *domain.Snapshot) error
	Get(ctx context.Context, kind, id string) (*domain.Snapshot, error)
}

// OutboxRepository defines data access for outbox events.
type OutboxRepository interface {
	Create(ctx context.Context, tx Transaction, event *domain.OutboxEvent) error
	GetUnpublished(ctx context.Context, limit int) ([]*domain.OutboxEvent, error)
	MarkPublished(ctx context.Context, id string, publishedAt time.Time) error
	DeletePublished(ctx context.Context, before time.Time) error
}

// CardIndex finds gift cards due for expiration. Backed by the snapshot
// table; the sweep re-checks every candidate under its entity slot, so a
// stale index read is harmless.
type CardIndex interface {
	ExpiredCards(ctx context.Context, cutoff time.Time, limit int) ([]string, error)
}

// Transaction represents a database transaction.
type Transaction interface {
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// TransactionManager handles transaction lifecycle.
type TransactionManager interface {
	Begin(ctx context.Context) (Transaction, error)
}

// IDGenerator generates unique IDs.
type IDGenerator interface {
	Generate() string
}

// Retrier retries transient storage failures with backoff. Commit bodies
// passed to Retry must be safe to re-run from the top.
type Retrier interface {
	Retry(ctx context.Context, operation func() error) error
}

// DedupeStore marks notification deliveries so that consumers of
// at-least-once events stay idempotent.
type DedupeStore interface {
	// MarkOnce records key and reports whether this was its first delivery.
	MarkOnce(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

// Executor serializes commands per entity key. Commands for the same key run
// one at a time in admission order; commands for different keys run in
// parallel. This is the single-writer contract every use case relies on
// instead of in-process locking.
type Executor interface {
	Do(ctx context.Context, key string, fn func(ctx context.Context) error) error
}
