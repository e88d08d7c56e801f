package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/usecase"
)

// EventRepository implements usecase.EventStore on the append-only
// account_events table. The unique (account_id, sequence) constraint rejects
// any write that would fork an account's history.
type EventRepository struct {
	pool *pgxpool.Pool
}

// NewEventRepository creates a new EventRepository.
func NewEventRepository(pool *pgxpool.Pool) *EventRepository {
	return &EventRepository{pool: pool}
}

// Append writes one event record within the given transaction.
func (r *EventRepository) Append(ctx context.Context, tx usecase.Transaction, record *domain.EventRecord) error {
	pgxTx := tx.(*Tx).PgxTx()
	_, err := pgxTx.Exec(ctx,
		`INSERT INTO account_events (id, account_id, sequence, type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		record.ID, record.AccountID, record.Sequence, record.Type, record.Payload, record.CreatedAt)
	return err
}

// ListByAccount returns the account's full event stream in sequence order.
func (r *EventRepository) ListByAccount(ctx context.Context, accountID string) ([]*domain.EventRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, account_id, sequence, type, payload, created_at
		 FROM account_events
		 WHERE account_id = $1
		 ORDER BY sequence`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*domain.EventRecord
	for rows.Next() {
		rec := &domain.EventRecord{}
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Sequence, &rec.Type, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
