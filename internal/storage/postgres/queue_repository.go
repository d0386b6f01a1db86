package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smatracka/hotdrop/internal/domain"
)

type QueueRepository struct {
	pool *pgxpool.Pool
}

func NewQueueRepository(pool *pgxpool.Pool) *QueueRepository {
	return &QueueRepository{pool: pool}
}

func (r *QueueRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

func (r *QueueRepository) GetDrop(ctx context.Context, dropID string) (domain.Drop, error) {
	const query = `
SELECT id, seller_id, name, status, starts_at, ends_at, created_at
FROM drops
WHERE id = $1`

	var d domain.Drop
	err := r.queryRow(ctx, query, dropID).
		Scan(&d.ID, &d.SellerID, &d.Name, &d.Status, &d.StartsAt, &d.EndsAt, &d.CreatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Drop{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Drop{}, domain.ErrDropNotFound
		}
		return domain.Drop{}, wrapErr("get drop", err)
	}
	return d, nil
}

func (r *QueueRepository) GetQueue(ctx context.Context, dropID string) (domain.QueueState, error) {
	return r.getQueue(ctx, dropID, false)
}

// GetQueueForUpdate locks the queue row for the duration of the surrounding
// transaction; this is the single-writer-per-drop serialization point.
func (r *QueueRepository) GetQueueForUpdate(ctx context.Context, dropID string) (domain.QueueState, error) {
	return r.getQueue(ctx, dropID, true)
}

func (r *QueueRepository) getQueue(ctx context.Context, dropID string, forUpdate bool) (domain.QueueState, error) {
	query := `
SELECT drop_id, max_concurrent_users, active_users, waiting_queue, updated_at
FROM drop_queues
WHERE drop_id = $1`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	var s domain.QueueState
	err := r.queryRow(ctx, query, dropID).
		Scan(&s.DropID, &s.MaxConcurrentUsers, &s.ActiveUsers, &s.WaitingQueue, &s.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.QueueState{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.QueueState{}, domain.ErrQueueNotFound
		}
		return domain.QueueState{}, wrapErr("get queue", err)
	}
	if s.ActiveUsers == nil {
		s.ActiveUsers = []string{}
	}
	if s.WaitingQueue == nil {
		s.WaitingQueue = []string{}
	}
	return s, nil
}

func (r *QueueRepository) CreateQueue(ctx context.Context, state domain.QueueState) error {
	const stmt = `
INSERT INTO drop_queues (drop_id, max_concurrent_users, active_users, waiting_queue, updated_at)
VALUES ($1, $2, $3, $4, $5)`

	_, err := r.exec(ctx, stmt,
		state.DropID,
		state.MaxConcurrentUsers,
		state.ActiveUsers,
		state.WaitingQueue,
		state.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrQueueAlreadyExists
		}
		if isForeignKeyViolation(err) {
			return domain.ErrDropNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("create queue", err)
	}
	return nil
}

func (r *QueueRepository) SaveQueue(ctx context.Context, state domain.QueueState) error {
	const stmt = `
UPDATE drop_queues
SET max_concurrent_users = $2, active_users = $3, waiting_queue = $4, updated_at = $5
WHERE drop_id = $1`

	tag, err := r.exec(ctx, stmt,
		state.DropID,
		state.MaxConcurrentUsers,
		state.ActiveUsers,
		state.WaitingQueue,
		state.UpdatedAt,
	)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("save queue", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrQueueNotFound
	}
	return nil
}

func (r *QueueRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *QueueRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}
