package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/smatracka/hotdrop/internal/domain"
)

// DropRepository is the read model the cache warmer and the reservation
// validation consult. Drop/product CRUD itself lives with an external
// collaborator; only the reads the core needs are here.
type DropRepository struct {
	pool *pgxpool.Pool
}

func NewDropRepository(pool *pgxpool.Pool) *DropRepository {
	return &DropRepository{pool: pool}
}

func (r *DropRepository) GetDrop(ctx context.Context, dropID string) (domain.Drop, error) {
	const query = `
SELECT id, seller_id, name, status, starts_at, ends_at, created_at
FROM drops
WHERE id = $1`

	var d domain.Drop
	err := r.pool.QueryRow(ctx, query, dropID).
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

func (r *DropRepository) ListProductsByDrop(ctx context.Context, dropID string) ([]domain.Product, error) {
	const query = `
SELECT id, drop_id, name, quantity, reserved, sold
FROM products
WHERE drop_id = $1
ORDER BY name`

	rows, err := r.pool.Query(ctx, query, dropID)
	if err != nil {
		return nil, wrapErr("list products", err)
	}
	defer rows.Close()

	return scanProducts(rows)
}

// ListWarmCandidates returns published drops that have not ended yet; drops
// already over are never warmed.
func (r *DropRepository) ListWarmCandidates(ctx context.Context, now time.Time) ([]domain.Drop, error) {
	const query = `
SELECT id, seller_id, name, status, starts_at, ends_at, created_at
FROM drops
WHERE status = 'published' AND ends_at > $1
ORDER BY starts_at`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, wrapErr("list warm candidates", err)
	}
	defer rows.Close()

	return scanDrops(rows)
}

func (r *DropRepository) ListSellerDrops(ctx context.Context, sellerID string, limit int) ([]domain.Drop, error) {
	const query = `
SELECT id, seller_id, name, status, starts_at, ends_at, created_at
FROM drops
WHERE seller_id = $1
ORDER BY starts_at DESC
LIMIT $2`

	rows, err := r.pool.Query(ctx, query, sellerID, limit)
	if err != nil {
		if isInvalidUUID(err) {
			return nil, domain.ErrInvalidID
		}
		return nil, wrapErr("list seller drops", err)
	}
	defer rows.Close()

	return scanDrops(rows)
}

func scanDrops(rows pgx.Rows) ([]domain.Drop, error) {
	drops := []domain.Drop{}
	for rows.Next() {
		var d domain.Drop
		if err := rows.Scan(&d.ID, &d.SellerID, &d.Name, &d.Status, &d.StartsAt, &d.EndsAt, &d.CreatedAt); err != nil {
			return nil, wrapErr("scan drop", err)
		}
		drops = append(drops, d)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate drops", err)
	}
	return drops, nil
}

func scanProducts(rows pgx.Rows) ([]domain.Product, error) {
	products := []domain.Product{}
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.DropID, &p.Name, &p.Quantity, &p.Reserved, &p.Sold); err != nil {
			return nil, wrapErr("scan product", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("iterate products", err)
	}
	return products, nil
}
