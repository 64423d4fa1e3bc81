package tests

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
	"checkout/pkg/checkout/infrastructure/memory"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func intPtr(v int) *int {
	return &v
}

type fixture struct {
	store   *memory.Store
	level   model.PriceLevel
	user    model.User
	now     time.Time
	taxRate decimal.Decimal
}

func setup(t *testing.T) *fixture {
	t.Helper()
	level := model.PriceLevel{ID: uuid.New(), Name: "Retail", Priority: 1}
	user := model.User{ID: uuid.New(), Email: "jane@example.com", FirstName: "Jane", PriceLevelID: &level.ID}

	store := memory.NewStore()
	store.AddPriceLevel(level)
	store.AddUser(user)

	return &fixture{
		store:   store,
		level:   level,
		user:    user,
		now:     time.Date(2024, time.March, 15, 10, 30, 0, 0, time.UTC),
		taxRate: dec("0.16"),
	}
}

func (f *fixture) clock() time.Time {
	return f.now
}

func (f *fixture) addProduct(price string, stock int) model.Product {
	product := model.Product{
		ID:         uuid.New(),
		SKU:        "SKU-" + uuid.NewString()[:6],
		Name:       "Widget",
		CategoryID: uuid.New(),
		Cost:       dec("20.00"),
	}
	f.store.AddProduct(product)
	f.store.AddPrice(model.ProductPrice{
		ID:           uuid.New(),
		ProductID:    product.ID,
		PriceLevelID: f.level.ID,
		Price:        dec(price),
		MinQuantity:  1,
		IsActive:     true,
	})
	f.store.SetBalance(product.ID, stock)
	return product
}

// addOffer stores an active 10% offer valid around f.now, adjusted by mutate.
func (f *fixture) addOffer(mutate func(o *model.Offer)) model.Offer {
	offer := model.Offer{
		ID:                 uuid.New(),
		Name:               "Spring sale",
		Type:               model.Percentage,
		Status:             model.OfferActive,
		DiscountPercentage: dec("10"),
		StartDate:          f.now.Add(-24 * time.Hour),
		EndDate:            f.now.Add(24 * time.Hour),
	}
	if mutate != nil {
		mutate(&offer)
	}
	f.store.AddOffer(offer)
	return offer
}

func (f *fixture) checkout(items ...service.CheckoutItem) (*service.CheckoutResult, error) {
	return f.checkoutAs(f.user.ID, items...)
}

func (f *fixture) checkoutAs(userID uuid.UUID, items ...service.CheckoutItem) (*service.CheckoutResult, error) {
	ctx := context.Background()
	var result *service.CheckoutResult
	err := f.store.Execute(ctx, func(repos service.Repositories) error {
		var err error
		result, err = service.NewOrderAssembler(repos, f.taxRate, f.clock).Assemble(ctx, userID, service.CheckoutRequest{Items: items})
		return err
	})
	return result, err
}

func item(product model.Product, quantity int) service.CheckoutItem {
	return service.CheckoutItem{ProductID: product.ID, Quantity: quantity}
}
