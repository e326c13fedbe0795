package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/mieledautore/shop-backend/internal/domain/product"
)

const (
	getProductByIDSQL = `SELECT id, name, description, price, stock, is_active, image_url
		FROM products WHERE id = $1`

	getProductsByIDsSQL = `SELECT id, name, description, price, stock, is_active, image_url
		FROM products WHERE id = ANY($1)`

	// The stock >= $2 predicate makes the decrement atomic: two concurrent
	// confirmations can never drive stock below zero.
	decrementStockSQL = `UPDATE products SET stock = stock - $2, updated_at = now()
		WHERE id = $1 AND stock >= $2
		RETURNING stock, name`

	deactivateProductSQL = `UPDATE products SET is_active = FALSE, updated_at = now()
		WHERE id = $1`
)

var _ product.Repository = (*ProductRepository)(nil)

// ProductRepository implements product.Repository backed by PostgreSQL.
type ProductRepository struct {
	pool *pgxpool.Pool
}

// NewProductRepository returns a ProductRepository that uses the given pool.
func NewProductRepository(pool *pgxpool.Pool) *ProductRepository {
	return &ProductRepository{pool: pool}
}

// GetByID returns a single product by its identifier.
func (r *ProductRepository) GetByID(ctx context.Context, id string) (*product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductByIDSQL, id)
	if err != nil {
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}

	p, err := pgx.CollectExactlyOneRow(rows, scanProduct)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, product.ErrNotFound
		}
		return nil, fmt.Errorf("getting product %q: %w", id, err)
	}
	return &p, nil
}

// GetByIDs returns products matching any of the given IDs. Missing IDs are
// simply absent from the result; callers decide how to treat them.
func (r *ProductRepository) GetByIDs(ctx context.Context, ids []string) ([]product.Product, error) {
	rows, err := r.pool.Query(ctx, getProductsByIDsSQL, ids)
	if err != nil {
		return nil, fmt.Errorf("getting products by ids: %w", err)
	}
	return pgx.CollectRows(rows, scanProduct)
}

// DecrementStock atomically subtracts qty from the product's stock. It returns
// product.ErrNotFound when the product is missing or has insufficient stock.
func (r *ProductRepository) DecrementStock(ctx context.Context, id string, qty int) (int, string, error) {
	var (
		remaining int
		name      string
	)
	err := r.pool.QueryRow(ctx, decrementStockSQL, id, qty).Scan(&remaining, &name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, "", product.ErrNotFound
		}
		return 0, "", fmt.Errorf("decrementing stock for product %q: %w", id, err)
	}
	return remaining, name, nil
}

// Deactivate marks a product as no longer purchasable.
func (r *ProductRepository) Deactivate(ctx context.Context, id string) error {
	if _, err := r.pool.Exec(ctx, deactivateProductSQL, id); err != nil {
		return fmt.Errorf("deactivating product %q: %w", id, err)
	}
	return nil
}

func scanProduct(row pgx.CollectableRow) (product.Product, error) {
	var (
		p     product.Product
		price decimal.Decimal
	)
	err := row.Scan(
		&p.ID, &p.Name, &p.Description, &price, &p.Stock, &p.Active, &p.ImageURL,
	)
	p.Price = price
	return p, err
}
