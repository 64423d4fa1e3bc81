package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrProductNotFound = errors.New("product not found")
	ErrPriceNotFound   = errors.New("no active price for product at this price level")
)

type Product struct {
	ID              uuid.UUID
	SKU             string
	Name            string
	CategoryID      uuid.UUID
	Cost            decimal.Decimal // last snapshotted purchase cost
	HasVirtualStock bool
	UpdatedAt       time.Time
}

type PriceLevel struct {
	ID               uuid.UUID
	Name             string
	Priority         int
	MarkupPercentage decimal.Decimal
}

// ProductPrice is unique per (ProductID, PriceLevelID).
type ProductPrice struct {
	ID           uuid.UUID
	ProductID    uuid.UUID
	PriceLevelID uuid.UUID
	Price        decimal.Decimal
	MinQuantity  int
	IsActive     bool
}

type ProductRepository interface {
	Find(ctx context.Context, id uuid.UUID) (*Product, error)
	UpdateCost(ctx context.Context, id uuid.UUID, cost decimal.Decimal, updatedAt time.Time) error
}

type PriceRepository interface {
	// FindActive returns ErrPriceNotFound when there is no active row for the pair.
	FindActive(ctx context.Context, productID, priceLevelID uuid.UUID) (*ProductPrice, error)
}
