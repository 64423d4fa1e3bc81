package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"checkout/pkg/checkout/domain/model"
)

type InventoryGuard interface {
	// Check rejects quantities above the cached balance. Virtual-stock products
	// always pass. The balance is not refreshed by checkout, so it can lag the
	// movement ledger until the reconciler runs.
	Check(ctx context.Context, product *model.Product, quantity int) error
}

func NewInventoryGuard(repo model.InventoryRepository) InventoryGuard {
	return &inventoryGuard{repo: repo}
}

type inventoryGuard struct {
	repo model.InventoryRepository
}

func (g *inventoryGuard) Check(ctx context.Context, product *model.Product, quantity int) error {
	if product.HasVirtualStock {
		return nil
	}
	balance, err := g.repo.FindBalance(ctx, product.ID)
	if err != nil {
		return err
	}
	if balance.AvailableQuantity < quantity {
		return errors.Wrapf(model.ErrInsufficientStock, "product %s: requested %d, available %d",
			product.SKU, quantity, balance.AvailableQuantity)
	}
	return nil
}

type InventoryReconciler interface {
	// Reconcile recomputes the cached balance as the signed sum of movements.
	Reconcile(ctx context.Context, productID uuid.UUID) (*model.InventoryBalance, []Event, error)
}

func NewInventoryReconciler(repo model.InventoryRepository, clock Clock) InventoryReconciler {
	return &inventoryReconciler{repo: repo, clock: clock}
}

type inventoryReconciler struct {
	repo  model.InventoryRepository
	clock Clock
}

func (r *inventoryReconciler) Reconcile(ctx context.Context, productID uuid.UUID) (*model.InventoryBalance, []Event, error) {
	current, err := r.repo.FindBalance(ctx, productID)
	if err != nil {
		return nil, nil, err
	}
	sum, err := r.repo.SumMovements(ctx, productID)
	if err != nil {
		return nil, nil, err
	}

	balance := &model.InventoryBalance{
		ProductID:         productID,
		AvailableQuantity: sum,
		UpdatedAt:         r.clock(),
	}
	if err := r.repo.StoreBalance(ctx, balance); err != nil {
		return nil, nil, err
	}

	var events []Event
	if current.AvailableQuantity != sum {
		events = append(events, model.InventoryReconciled{
			ProductID:   productID,
			OldQuantity: current.AvailableQuantity,
			NewQuantity: sum,
		})
	}
	return balance, events, nil
}

type Clock func() time.Time

func UTCClock() time.Time {
	return time.Now().UTC()
}
