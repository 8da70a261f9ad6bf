package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lunasched/lunasched/internal/domain"
	"github.com/lunasched/lunasched/internal/ledger"
)

// WindowStore is the Postgres-backed ledger.Store. Grounded on the
// teacher's idempotency-key unique-violation handling in
// ScheduleRepository.ClaimAndFire: Claim is a single insert guarded by a
// unique constraint on (job_name, window_key), so concurrent schedulers
// racing the same window can never both win.
type WindowStore struct {
	pool *pgxpool.Pool
}

// NewWindowStore returns a WindowStore backed by pool.
func NewWindowStore(pool *pgxpool.Pool) *WindowStore {
	return &WindowStore{pool: pool}
}

func (r *WindowStore) Claim(ctx context.Context, record domain.WindowRecord) (ledger.ClaimResult, error) {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO windows (job_name, window_key, fired_at, execution_id)
		VALUES ($1, $2, $3, $4)`,
		record.JobName, record.WindowKey, record.FiredAt, record.ExecutionID,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ledger.AlreadyFired, nil
		}
		return 0, fmt.Errorf("claim window: %w", err)
	}
	return ledger.Claimed, nil
}
