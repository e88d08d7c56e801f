package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tillworks/opsledger/internal/domain"
	"github.com/tillworks/opsledger/internal/usecase"
)

// SnapshotRepository implements usecase.SnapshotStore. Snapshots are
// upserted wholesale keyed by (kind, id); there are no partial-field
// updates.
type SnapshotRepository struct {
	pool *pgxpool.Pool
}

// NewSnapshotRepository creates a new SnapshotRepository.
func NewSnapshotRepository(pool *pgxpool.Pool) *SnapshotRepository {
	return &SnapshotRepository{pool: pool}
}

const saveSnapshotSQL = `
INSERT INTO snapshots (kind, id, state, version, updated_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (kind, id) DO UPDATE
SET state = EXCLUDED.state,
    version = EXCLUDED.version,
    updated_at = EXCLUDED.updated_at`

// Save upserts a snapshot outside any transaction.
func (r *SnapshotRepository) Save(ctx context.Context, snapshot *domain.Snapshot) error {
	_, err := r.pool.Exec(ctx, saveSnapshotSQL,
		snapshot.Kind, snapshot.ID, snapshot.State, snapshot.Version, snapshot.UpdatedAt)
	return err
}

// SaveTx upserts a snapshot within the given transaction.
func (r *SnapshotRepository) SaveTx(ctx context.Context, tx usecase.Transaction, snapshot *domain.Snapshot) error {
	pgxTx := tx.(*Tx).PgxTx()
	_, err := pgxTx.Exec(ctx, saveSnapshotSQL,
		snapshot.Kind, snapshot.ID, snapshot.State, snapshot.Version, snapshot.UpdatedAt)
	return err
}

// Get retrieves a snapshot by kind and id.
func (r *SnapshotRepository) Get(ctx context.Context, kind, id string) (*domain.Snapshot, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT kind, id, state, version, updated_at FROM snapshots WHERE kind = $1 AND id = $2`,
		kind, id)

	snap := &domain.Snapshot{}
	err := row.Scan(&snap.Kind, &snap.ID, &snap.State, &snap.Version, &snap.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSnapshotNotFound
		}
		return nil, err
	}
	return snap, nil
}

// ExpiredCards implements usecase.CardIndex: gift cards past their expiry
// that are not yet in a terminal status.
func (r *SnapshotRepository) ExpiredCards(ctx context.Context, cutoff time.Time, limit int) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id FROM snapshots
		 WHERE kind = $1
		   AND state->>'ExpiresAt' IS NOT NULL
		   AND (state->>'ExpiresAt')::timestamptz < $2
		   AND state->>'Status' NOT IN ('expired', 'cancelled')
		 ORDER BY updated_at
		 LIMIT $3`,
		domain.SnapshotKindGiftCard, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
