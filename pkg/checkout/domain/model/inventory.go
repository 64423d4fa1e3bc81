package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrInsufficientStock = errors.New("insufficient stock")

type MovementType int

const (
	Purchase MovementType = iota
	Sale
	Return
	Adjustment
)

func (t MovementType) String() string {
	switch t {
	case Purchase:
		return "Purchase"
	case Sale:
		return "Sale"
	case Return:
		return "Return"
	case Adjustment:
		return "Adjustment"
	}
	return "Unknown"
}

// InventoryMovement is an append-only ledger entry. Quantity is signed:
// sales are negative, purchases and returns positive.
type InventoryMovement struct {
	ID          uuid.UUID
	ProductID   uuid.UUID
	Type        MovementType
	Quantity    int
	ReferenceID string
	CreatedAt   time.Time
}

// InventoryBalance caches the signed sum of a product's movements. Checkout
// does not refresh it; see the reconciler.
type InventoryBalance struct {
	ProductID         uuid.UUID
	AvailableQuantity int
	UpdatedAt         time.Time
}

type InventoryRepository interface {
	// FindBalance returns a zero balance when the product has none yet.
	FindBalance(ctx context.Context, productID uuid.UUID) (*InventoryBalance, error)
	StoreBalance(ctx context.Context, balance *InventoryBalance) error
	AppendMovement(ctx context.Context, movement *InventoryMovement) error
	SumMovements(ctx context.Context, productID uuid.UUID) (int, error)
	ListProductsWithMovements(ctx context.Context) ([]uuid.UUID, error)
}
