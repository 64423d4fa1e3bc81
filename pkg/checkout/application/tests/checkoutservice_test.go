package tests

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appservice "checkout/pkg/checkout/application/service"
	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
	"checkout/pkg/checkout/infrastructure/memory"
)

var errTransient = errors.New("deadlock found when trying to get lock")

var _ appservice.UnitOfWork = &flakyUnitOfWork{}

// flakyUnitOfWork fails the first failures transactions before running them.
// The next lateFailures transactions fail after their last inventory write.
type flakyUnitOfWork struct {
	store        *memory.Store
	failures     int
	lateFailures int
	err          error
	calls        int
}

func (u *flakyUnitOfWork) Execute(ctx context.Context, fn func(repos service.Repositories) error) error {
	u.calls++
	if u.calls <= u.failures {
		return u.err
	}
	return u.store.Execute(ctx, func(repos service.Repositories) error {
		if u.lateFailures > 0 {
			u.lateFailures--
			repos.Inventory = &failingInventory{InventoryRepository: repos.Inventory, err: u.err}
		}
		return fn(repos)
	})
}

// failingInventory stores the movement, then fails the transaction.
type failingInventory struct {
	model.InventoryRepository
	err error
}

func (r *failingInventory) AppendMovement(ctx context.Context, movement *model.InventoryMovement) error {
	if err := r.InventoryRepository.AppendMovement(ctx, movement); err != nil {
		return err
	}
	return r.err
}

var _ appservice.ConfirmationSender = &mockSender{}

type mockSender struct {
	sent   []*model.Order
	err    error
	panics bool
}

func (m *mockSender) SendOrderConfirmation(_ context.Context, order *model.Order, _ *model.User) error {
	if m.panics {
		panic("smtp client is nil")
	}
	m.sent = append(m.sent, order)
	return m.err
}

var _ service.EventDispatcher = &mockEventDispatcher{}

type mockEventDispatcher struct {
	events []service.Event
}

func (m *mockEventDispatcher) Dispatch(event service.Event) error {
	m.events = append(m.events, event)
	return nil
}

func (m *mockEventDispatcher) Reset() {
	m.events = nil
}

type fixture struct {
	store      *memory.Store
	uow        *flakyUnitOfWork
	sender     *mockSender
	dispatcher *mockEventDispatcher
	user       model.User
	product    model.Product
	offer      model.Offer
	checkout   appservice.CheckoutService
}

func setup(t *testing.T, maxAttempts uint64) *fixture {
	t.Helper()
	level := model.PriceLevel{ID: uuid.New(), Name: "Retail"}
	user := model.User{ID: uuid.New(), Email: "jane@example.com", FirstName: "Jane", PriceLevelID: &level.ID}
	product := model.Product{ID: uuid.New(), SKU: "MUG-01", Name: "Mug", CategoryID: uuid.New(), Cost: decimal.RequireFromString("4.00")}

	store := memory.NewStore()
	store.AddPriceLevel(level)
	store.AddUser(user)
	store.AddProduct(product)
	store.AddPrice(model.ProductPrice{ID: uuid.New(), ProductID: product.ID, PriceLevelID: level.ID, Price: decimal.RequireFromString("50.00"), IsActive: true})
	store.SetBalance(product.ID, 10)
	store.AddMovement(model.InventoryMovement{ID: uuid.New(), ProductID: product.ID, Type: model.Purchase, Quantity: 10, ReferenceID: "PO-1"})
	offer := model.Offer{
		ID:                 uuid.New(),
		Name:               "Ten off",
		Type:               model.Percentage,
		Status:             model.OfferActive,
		DiscountPercentage: decimal.NewFromInt(10),
		StartDate:          time.Now().Add(-time.Hour),
		EndDate:            time.Now().Add(time.Hour),
	}
	store.AddOffer(offer)

	f := &fixture{
		store:      store,
		uow:        &flakyUnitOfWork{store: store, err: errTransient},
		sender:     &mockSender{},
		dispatcher: &mockEventDispatcher{},
		user:       user,
		product:    product,
		offer:      offer,
	}
	isTransient := func(err error) bool { return errors.Is(err, errTransient) }
	f.checkout = appservice.NewCheckoutService(f.uow, f.sender, f.dispatcher, isTransient, appservice.Config{
		TaxRate:      decimal.RequireFromString("0.16"),
		MaxAttempts:  maxAttempts,
		RetryBackoff: time.Millisecond,
	})
	return f
}

func (f *fixture) request(quantity int) appservice.PlaceOrderRequest {
	return appservice.PlaceOrderRequest{Items: []appservice.PlaceOrderItem{{ProductID: f.product.ID, Quantity: quantity}}}
}

func TestPlaceOrder(t *testing.T) {
	f := setup(t, 3)

	order, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(2))

	require.NoError(t, err)
	assert.Equal(t, "104.40", order.Total.StringFixed(2))
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, order.ID, f.sender.sent[0].ID)

	require.NotEmpty(t, f.dispatcher.events)
	_, ok := f.dispatcher.events[0].(model.OrderPlaced)
	assert.True(t, ok)

	stored, err := f.checkout.GetOrder(context.Background(), order.ID)
	require.NoError(t, err)
	assert.Equal(t, order.OrderNumber, stored.OrderNumber)
}

func TestPlaceOrderValidation(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()

	_, err := f.checkout.PlaceOrder(ctx, f.user.ID, appservice.PlaceOrderRequest{})
	assert.ErrorIs(t, err, appservice.ErrInvalidRequest)

	_, err = f.checkout.PlaceOrder(ctx, f.user.ID, f.request(0))
	assert.ErrorIs(t, err, appservice.ErrInvalidRequest)

	_, err = f.checkout.PlaceOrder(ctx, f.user.ID, appservice.PlaceOrderRequest{Items: []appservice.PlaceOrderItem{{Quantity: 1}}})
	assert.ErrorIs(t, err, appservice.ErrInvalidRequest)

	_, err = f.checkout.PlaceOrder(ctx, uuid.Nil, f.request(1))
	assert.ErrorIs(t, err, appservice.ErrInvalidRequest)

	assert.Zero(t, f.uow.calls)
}

func TestPlaceOrderConfirmationIsBestEffort(t *testing.T) {
	t.Run("Sender error", func(t *testing.T) {
		f := setup(t, 1)
		f.sender.err = errors.New("smtp unavailable")

		order, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(1))

		require.NoError(t, err)
		assert.NotNil(t, order)
		assert.Len(t, f.store.Orders(), 1)
	})

	t.Run("Sender panic", func(t *testing.T) {
		f := setup(t, 1)
		f.sender.panics = true

		order, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(1))

		require.NoError(t, err)
		assert.NotNil(t, order)
		assert.NotEmpty(t, f.dispatcher.events)
	})
}

func TestPlaceOrderRetry(t *testing.T) {
	t.Run("Transient failures are retried", func(t *testing.T) {
		f := setup(t, 3)
		f.uow.failures = 2

		_, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(1))

		require.NoError(t, err)
		assert.Equal(t, 3, f.uow.calls)
		assert.Len(t, f.store.Orders(), 1)
	})

	t.Run("Writes of a failed attempt are discarded", func(t *testing.T) {
		f := setup(t, 3)
		f.uow.lateFailures = 1

		order, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(2))

		require.NoError(t, err)
		assert.Equal(t, 2, f.uow.calls)

		orders := f.store.Orders()
		require.Len(t, orders, 1)
		assert.Equal(t, order.ID, orders[0].ID)

		applications := f.store.Applications()
		require.Len(t, applications, 1)
		assert.Equal(t, order.ID, applications[0].OrderID)
		stored, ok := f.store.Offer(f.offer.ID)
		require.True(t, ok)
		assert.Equal(t, 1, stored.CurrentUses)

		var sales []model.InventoryMovement
		for _, movement := range f.store.Movements() {
			if movement.Type == model.Sale {
				sales = append(sales, movement)
			}
		}
		require.Len(t, sales, 1)
		assert.Equal(t, order.OrderNumber, sales[0].ReferenceID)
		assert.Equal(t, -2, sales[0].Quantity)
		require.Len(t, f.sender.sent, 1)
	})

	t.Run("Attempts are bounded", func(t *testing.T) {
		f := setup(t, 2)
		f.uow.failures = 5

		_, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(1))

		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 2, f.uow.calls)
		assert.Empty(t, f.store.Orders())
		assert.Empty(t, f.sender.sent)
	})

	t.Run("Single attempt", func(t *testing.T) {
		f := setup(t, 1)
		f.uow.failures = 1

		_, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(1))

		assert.ErrorIs(t, err, errTransient)
		assert.Equal(t, 1, f.uow.calls)
	})

	t.Run("Business errors are not retried", func(t *testing.T) {
		f := setup(t, 3)

		_, err := f.checkout.PlaceOrder(context.Background(), f.user.ID, f.request(11))

		assert.ErrorIs(t, err, model.ErrInsufficientStock)
		assert.Equal(t, 1, f.uow.calls)
		assert.Empty(t, f.store.Orders())
		assert.Empty(t, f.store.Applications())
		assert.Len(t, f.store.Movements(), 1, "only the seeded purchase")
	})
}

func TestUpdateOrderStatus(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()
	order, err := f.checkout.PlaceOrder(ctx, f.user.ID, f.request(1))
	require.NoError(t, err)
	f.dispatcher.Reset()

	_, err = f.checkout.UpdateOrderStatus(ctx, order.ID, "processing")
	assert.ErrorIs(t, err, model.ErrInvalidOrderStatus, "status names are case-sensitive")

	updated, err := f.checkout.UpdateOrderStatus(ctx, order.ID, "Processing")
	require.NoError(t, err)
	assert.Equal(t, model.Processing, updated.Status)
	require.Len(t, f.dispatcher.events, 1)

	_, err = f.checkout.UpdateOrderStatus(ctx, order.ID, "Delivered")
	assert.ErrorIs(t, err, model.ErrInvalidStateTransition)

	_, err = f.checkout.UpdateOrderStatus(ctx, order.ID, "lost")
	assert.ErrorIs(t, err, model.ErrInvalidOrderStatus)

	_, err = f.checkout.UpdateOrderStatus(ctx, uuid.New(), "Cancelled")
	assert.ErrorIs(t, err, model.ErrOrderNotFound)
}

func TestReconcileInventory(t *testing.T) {
	f := setup(t, 1)
	ctx := context.Background()
	_, err := f.checkout.PlaceOrder(ctx, f.user.ID, f.request(4))
	require.NoError(t, err)
	f.dispatcher.Reset()

	balance, err := f.checkout.ReconcileInventory(ctx, f.product.ID)
	require.NoError(t, err)
	assert.Equal(t, 6, balance.AvailableQuantity)
	require.Len(t, f.dispatcher.events, 1)

	count, err := f.checkout.ReconcileAllInventory(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	assert.Equal(t, 6, f.store.Balance(f.product.ID))

	_, err = f.checkout.ReconcileInventory(ctx, uuid.New())
	assert.ErrorIs(t, err, model.ErrProductNotFound)
}
