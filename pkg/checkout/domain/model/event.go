package model

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderPlaced struct {
	OrderID     uuid.UUID
	OrderNumber string
	UserID      uuid.UUID
	Total       decimal.Decimal
}

func (e OrderPlaced) Type() string { return "OrderPlaced" }

type OfferApplied struct {
	OfferID        uuid.UUID
	OrderID        uuid.UUID
	ProductID      uuid.UUID
	DiscountAmount decimal.Decimal
}

func (e OfferApplied) Type() string { return "OfferApplied" }

type ProductCostChanged struct {
	ProductID uuid.UUID
	OldCost   decimal.Decimal
	NewCost   decimal.Decimal
}

func (e ProductCostChanged) Type() string { return "ProductCostChanged" }

type OrderStatusChanged struct {
	OrderID   uuid.UUID
	OldStatus string
	NewStatus string
}

func (e OrderStatusChanged) Type() string { return "OrderStatusChanged" }

type InventoryReconciled struct {
	ProductID   uuid.UUID
	OldQuantity int
	NewQuantity int
}

func (e InventoryReconciled) Type() string { return "InventoryReconciled" }
