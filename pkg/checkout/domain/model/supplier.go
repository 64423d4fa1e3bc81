package model

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ProductSupplier links a product to one of its suppliers. Lower Priority is
// tried first; at most one row per product is primary.
type ProductSupplier struct {
	ID               uuid.UUID
	ProductID        uuid.UUID
	SupplierID       uuid.UUID
	Cost             decimal.Decimal
	IsPrimary        bool
	Priority         int
	MinOrderQuantity int
	IsActive         bool
}

type SupplierRepository interface {
	// ListActiveByProduct returns active rows ordered by ascending priority.
	ListActiveByProduct(ctx context.Context, productID uuid.UUID) ([]ProductSupplier, error)
}
