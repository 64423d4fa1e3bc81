package model

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	ErrOrderNotFound          = errors.New("order not found")
	ErrInvalidOrderStatus     = errors.New("invalid order status")
	ErrInvalidStateTransition = errors.New("order status transition is not allowed")
	ErrDuplicateOrder         = errors.New("order with this id or number already exists")
)

type OrderStatus int

const (
	Pending OrderStatus = iota
	Processing
	Shipped
	Delivered
	Cancelled
)

var orderStatusNames = map[OrderStatus]string{
	Pending:    "Pending",
	Processing: "Processing",
	Shipped:    "Shipped",
	Delivered:  "Delivered",
	Cancelled:  "Cancelled",
}

func (s OrderStatus) String() string {
	if name, ok := orderStatusNames[s]; ok {
		return name
	}
	return "Unknown"
}

// ParseOrderStatus accepts the exact status names only.
func ParseOrderStatus(s string) (OrderStatus, error) {
	for status, name := range orderStatusNames {
		if name == s {
			return status, nil
		}
	}
	return 0, ErrInvalidOrderStatus
}

func (s OrderStatus) IsTerminal() bool {
	return s == Delivered || s == Cancelled
}

// CanTransitionTo follows Pending -> Processing -> Shipped -> Delivered, with
// Cancelled reachable from every non-terminal status.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == Cancelled {
		return true
	}
	return next == s+1
}

type Order struct {
	ID                uuid.UUID
	OrderNumber       string
	UserID            uuid.UUID
	ShippingAddressID *uuid.UUID
	Status            OrderStatus
	Subtotal          decimal.Decimal
	Discount          decimal.Decimal
	Tax               decimal.Decimal
	ShippingCost      decimal.Decimal
	Total             decimal.Decimal
	Items             []OrderItem
	CreatedAt         time.Time
	UpdatedAt         time.Time
	CompletedAt       *time.Time
}

func (o *Order) TransitionTo(next OrderStatus, now time.Time) error {
	if !o.Status.CanTransitionTo(next) {
		return ErrInvalidStateTransition
	}
	o.Status = next
	o.UpdatedAt = now
	if next == Delivered {
		completedAt := now
		o.CompletedAt = &completedAt
	}
	return nil
}

type OrderItem struct {
	ID             uuid.UUID
	OrderID        uuid.UUID
	ProductID      uuid.UUID
	Quantity       int
	BasePrice      decimal.Decimal
	UnitPrice      decimal.Decimal // after stacked offers, not rounded to cents
	DiscountAmount decimal.Decimal // (BasePrice - UnitPrice) x Quantity
	Subtotal       decimal.Decimal
	AverageCost    decimal.Decimal
	Suppliers      []OrderItemSupplier
}

type OrderItemSupplier struct {
	ID          uuid.UUID
	OrderItemID uuid.UUID
	SupplierID  uuid.UUID
	Quantity    int
	UnitCost    decimal.Decimal
	TotalCost   decimal.Decimal
}

type OrderRepository interface {
	NextID() (uuid.UUID, error)
	// Create stores the header, items and supplier allocations.
	Create(ctx context.Context, order *Order) error
	Find(ctx context.Context, id uuid.UUID) (*Order, error)
	UpdateStatus(ctx context.Context, order *Order) error
}
