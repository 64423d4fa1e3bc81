package tests

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

func TestInventoryReconciler(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	product := f.addProduct("10.00", 10)
	f.store.AddMovement(model.InventoryMovement{ID: uuid.New(), ProductID: product.ID, Type: model.Purchase, Quantity: 10, ReferenceID: "PO-1"})

	_, err := f.checkout(item(product, 3))
	require.NoError(t, err)
	assert.Equal(t, 10, f.store.Balance(product.ID))

	reconcile := func() (*model.InventoryBalance, []service.Event) {
		var (
			balance *model.InventoryBalance
			events  []service.Event
		)
		err := f.store.Execute(ctx, func(repos service.Repositories) error {
			var err error
			balance, events, err = service.NewInventoryReconciler(repos.Inventory, f.clock).Reconcile(ctx, product.ID)
			return err
		})
		require.NoError(t, err)
		return balance, events
	}

	balance, events := reconcile()
	assert.Equal(t, 7, balance.AvailableQuantity)
	assert.Equal(t, 7, f.store.Balance(product.ID))
	require.Len(t, events, 1)
	reconciled, ok := events[0].(model.InventoryReconciled)
	require.True(t, ok)
	assert.Equal(t, 10, reconciled.OldQuantity)
	assert.Equal(t, 7, reconciled.NewQuantity)

	_, events = reconcile()
	assert.Empty(t, events, "nothing changed since the last run")
}

func TestPricingResolver(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	product := f.addProduct("12.50", 1)

	resolve := func(productID uuid.UUID, levelID *uuid.UUID) (string, error) {
		var price string
		err := f.store.Execute(ctx, func(repos service.Repositories) error {
			p, err := service.NewPricingResolver(repos.Prices).ResolvePrice(ctx, productID, levelID)
			price = p.StringFixed(2)
			return err
		})
		return price, err
	}

	price, err := resolve(product.ID, &f.level.ID)
	require.NoError(t, err)
	assert.Equal(t, "12.50", price)

	_, err = resolve(product.ID, nil)
	assert.ErrorIs(t, err, service.ErrPriceLevelMissing)

	otherLevel := uuid.New()
	_, err = resolve(product.ID, &otherLevel)
	assert.ErrorIs(t, err, model.ErrPriceNotFound)

	f.store.AddPrice(model.ProductPrice{ID: uuid.New(), ProductID: product.ID, PriceLevelID: f.level.ID, Price: dec("12.50"), IsActive: false})
	_, err = resolve(product.ID, &f.level.ID)
	assert.ErrorIs(t, err, model.ErrPriceNotFound)
}
