package product

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested product does not exist.
var ErrNotFound = errors.New("product not found")

// Product represents a catalog item available for purchase.
type Product struct {
	ID          string
	Name        string
	Description string
	Price       decimal.Decimal
	Stock       int
	Active      bool
	ImageURL    string
}

// Repository defines catalog operations used by the checkout pipeline and the
// payment reconciler.
type Repository interface {
	GetByID(ctx context.Context, id string) (*Product, error)
	GetByIDs(ctx context.Context, ids []string) ([]Product, error)

	// DecrementStock atomically subtracts qty from the product's stock,
	// refusing to go negative. It returns the remaining stock and the product
	// name, or ErrNotFound when the conditional update matched no row (missing
	// product or insufficient stock).
	DecrementStock(ctx context.Context, id string, qty int) (remaining int, name string, err error)

	// Deactivate marks a product as no longer purchasable.
	Deactivate(ctx context.Context, id string) error
}
