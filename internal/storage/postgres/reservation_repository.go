package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smatracka/hotdrop/internal/domain"
)

type ReservationRepository struct {
	pool *pgxpool.Pool
}

func NewReservationRepository(pool *pgxpool.Pool) *ReservationRepository {
	return &ReservationRepository{pool: pool}
}

func (r *ReservationRepository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, r.pool, fn)
}

// ReserveStock increments a product's reserved counter only when enough
// sellable stock remains. The availability check and the increment are one
// conditional UPDATE, so concurrent reservations on a hot product can never
// push reserved past quantity.
func (r *ReservationRepository) ReserveStock(ctx context.Context, dropID, productID string, quantity int) error {
	const stmt = `
UPDATE products
SET reserved = reserved + $3
WHERE id = $1 AND drop_id = $2 AND quantity - reserved >= $3`

	tag, err := r.exec(ctx, stmt, productID, dropID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("reserve stock", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	err = r.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM products WHERE id = $1 AND drop_id = $2)`, productID, dropID).Scan(&exists)
	if err != nil {
		return wrapErr("reserve stock", err)
	}
	if !exists {
		return domain.ErrProductNotFound
	}
	return domain.ErrInsufficientStock
}

// ReleaseStock gives reserved quantity back to the sellable pool.
func (r *ReservationRepository) ReleaseStock(ctx context.Context, productID string, quantity int) error {
	const stmt = `
UPDATE products
SET reserved = reserved - $2
WHERE id = $1 AND reserved >= $2`

	tag, err := r.exec(ctx, stmt, productID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("release stock", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("release stock: product %s has fewer than %d reserved", productID, quantity)
	}
	return nil
}

// CommitStock converts reserved quantity into sold quantity.
func (r *ReservationRepository) CommitStock(ctx context.Context, productID string, quantity int) error {
	const stmt = `
UPDATE products
SET reserved = reserved - $2, sold = sold + $2, quantity = quantity - $2
WHERE id = $1 AND reserved >= $2`

	tag, err := r.exec(ctx, stmt, productID, quantity)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("commit stock", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("commit stock: product %s has fewer than %d reserved", productID, quantity)
	}
	return nil
}

func (r *ReservationRepository) CreateReservation(ctx context.Context, res domain.Reservation) error {
	lines, err := json.Marshal(res.Lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	const stmt = `
INSERT INTO cart_reservations (id, drop_id, user_id, lines, status, expires_at, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = r.exec(ctx, stmt,
		res.ID,
		res.DropID,
		res.UserID,
		lines,
		res.Status,
		res.ExpiresAt,
		res.CreatedAt,
		res.UpdatedAt,
	)
	if err != nil {
		if isForeignKeyViolation(err) {
			return domain.ErrDropNotFound
		}
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("create reservation", err)
	}
	return nil
}

func (r *ReservationRepository) GetReservation(ctx context.Context, id string) (domain.Reservation, error) {
	return r.getReservation(ctx, id, false)
}

func (r *ReservationRepository) GetReservationForUpdate(ctx context.Context, id string) (domain.Reservation, error) {
	return r.getReservation(ctx, id, true)
}

func (r *ReservationRepository) getReservation(ctx context.Context, id string, forUpdate bool) (domain.Reservation, error) {
	query := `
SELECT id, drop_id, user_id, lines, status, expires_at, created_at, updated_at
FROM cart_reservations
WHERE id = $1`
	if forUpdate {
		query += `
FOR UPDATE`
	}

	var res domain.Reservation
	var lines []byte
	err := r.queryRow(ctx, query, id).
		Scan(&res.ID, &res.DropID, &res.UserID, &lines, &res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.Reservation{}, domain.ErrInvalidID
		}
		if err == pgx.ErrNoRows {
			return domain.Reservation{}, domain.ErrReservationNotFound
		}
		return domain.Reservation{}, wrapErr("get reservation", err)
	}
	if err := json.Unmarshal(lines, &res.Lines); err != nil {
		return domain.Reservation{}, fmt.Errorf("unmarshal lines: %w", err)
	}
	return res, nil
}

func (r *ReservationRepository) SaveReservationLines(ctx context.Context, id string, lines []domain.ReservationLine, updatedAt time.Time) error {
	raw, err := json.Marshal(lines)
	if err != nil {
		return fmt.Errorf("marshal lines: %w", err)
	}

	const stmt = `
UPDATE cart_reservations
SET lines = $2, updated_at = $3
WHERE id = $1`

	tag, err := r.exec(ctx, stmt, id, raw, updatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return domain.ErrInvalidID
		}
		return wrapErr("save reservation lines", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrReservationNotFound
	}
	return nil
}

// TransitionStatus performs the compare-and-swap on status that settles the
// expire-vs-complete race: it reports false when the reservation was no
// longer in the expected source status.
func (r *ReservationRepository) TransitionStatus(ctx context.Context, id string, from, to domain.ReservationStatus, updatedAt time.Time) (bool, error) {
	const stmt = `
UPDATE cart_reservations
SET status = $3, updated_at = $4
WHERE id = $1 AND status = $2`

	tag, err := r.exec(ctx, stmt, id, from, to, updatedAt)
	if err != nil {
		if isInvalidUUID(err) {
			return false, domain.ErrInvalidID
		}
		return false, wrapErr("transition status", err)
	}
	return tag.RowsAffected() > 0, nil
}

func (r *ReservationRepository) ListExpiredIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	const query = `
SELECT id
FROM cart_reservations
WHERE status = 'active' AND expires_at <= $1
ORDER BY expires_at
LIMIT $2`

	rows, err := r.query(ctx, query, now, limit)
	if err != nil {
		return nil, wrapErr("list expired", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, wrapErr("scan expired id", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list expired", err)
	}
	return ids, nil
}

func (r *ReservationRepository) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return r.pool.Exec(ctx, sql, args...)
}

func (r *ReservationRepository) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return r.pool.QueryRow(ctx, sql, args...)
}

func (r *ReservationRepository) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return r.pool.Query(ctx, sql, args...)
}
