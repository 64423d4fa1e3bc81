package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
)

var ErrEmptyCart = errors.New("cannot check out an empty cart")

type Event interface {
	Type() string
}

type EventDispatcher interface {
	Dispatch(event Event) error
}

// Repositories is the set of stores one checkout transaction works against.
type Repositories struct {
	Users     model.UserRepository
	Products  model.ProductRepository
	Prices    model.PriceRepository
	Offers    model.OfferRepository
	Suppliers model.SupplierRepository
	Inventory model.InventoryRepository
	Orders    model.OrderRepository
}

type CheckoutItem struct {
	ProductID uuid.UUID
	Quantity  int
}

type CheckoutRequest struct {
	Items             []CheckoutItem
	ShippingAddressID *uuid.UUID
}

type CheckoutResult struct {
	Order  *model.Order
	User   *model.User
	Events []Event
}

type OrderAssembler interface {
	// Assemble turns a cart into a persisted order. Every write goes through
	// the given repositories, so the caller decides the transaction boundary.
	Assemble(ctx context.Context, userID uuid.UUID, request CheckoutRequest) (*CheckoutResult, error)
	ChangeStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, []Event, error)
}

func NewOrderAssembler(repos Repositories, taxRate decimal.Decimal, clock Clock) OrderAssembler {
	return &orderAssembler{
		repos:   repos,
		pricing: NewPricingResolver(repos.Prices),
		guard:   NewInventoryGuard(repos.Inventory),
		taxRate: taxRate,
		clock:   clock,
	}
}

type orderAssembler struct {
	repos   Repositories
	pricing PricingResolver
	guard   InventoryGuard
	taxRate decimal.Decimal
	clock   Clock
}

type pricedLine struct {
	product   *model.Product
	quantity  int
	basePrice decimal.Decimal
}

type costUpdate struct {
	product *model.Product
	cost    decimal.Decimal
}

func (a *orderAssembler) Assemble(ctx context.Context, userID uuid.UUID, request CheckoutRequest) (*CheckoutResult, error) {
	if len(request.Items) == 0 {
		return nil, ErrEmptyCart
	}

	user, err := a.repos.Users.Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user.PriceLevelID != nil {
		if _, err := a.repos.Users.FindPriceLevel(ctx, *user.PriceLevelID); err != nil {
			return nil, err
		}
	}

	now := a.clock()
	lines, cartTotal, err := a.priceLines(ctx, user, request.Items)
	if err != nil {
		return nil, err
	}

	offers, err := a.repos.Offers.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}

	orderID, err := a.repos.Orders.NextID()
	if err != nil {
		return nil, err
	}
	order := &model.Order{
		ID:                orderID,
		OrderNumber:       NewOrderNumber(now),
		UserID:            user.ID,
		ShippingAddressID: request.ShippingAddressID,
		Status:            model.Pending,
		Discount:          decimal.Zero,
		ShippingCost:      decimal.Zero,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	usage := newUsageTracker(a.repos.Offers)
	var (
		applications []*model.OfferApplication
		movements    []*model.InventoryMovement
		costUpdates  []costUpdate
		events       []Event
	)
	for _, line := range lines {
		item, lineApplications, err := a.assembleItem(ctx, order, user, line, cartTotal, offers, usage, now)
		if err != nil {
			return nil, err
		}
		order.Items = append(order.Items, *item)
		applications = append(applications, lineApplications...)

		if len(item.Suppliers) > 0 {
			costUpdates = append(costUpdates, costUpdate{product: line.product, cost: item.AverageCost})
		}

		movementID, err := a.repos.Orders.NextID()
		if err != nil {
			return nil, err
		}
		movements = append(movements, &model.InventoryMovement{
			ID:          movementID,
			ProductID:   line.product.ID,
			Type:        model.Sale,
			Quantity:    -line.quantity,
			ReferenceID: order.OrderNumber,
			CreatedAt:   now,
		})
	}

	a.computeTotals(order)

	if err := a.repos.Orders.Create(ctx, order); err != nil {
		return nil, err
	}
	for _, application := range applications {
		if err := a.repos.Offers.IncrementUses(ctx, application.OfferID); err != nil {
			return nil, err
		}
		if err := a.repos.Offers.StoreApplication(ctx, application); err != nil {
			return nil, err
		}
		events = append(events, model.OfferApplied{
			OfferID:        application.OfferID,
			OrderID:        order.ID,
			ProductID:      application.ProductID,
			DiscountAmount: application.DiscountAmount,
		})
	}
	for _, update := range costUpdates {
		if err := a.repos.Products.UpdateCost(ctx, update.product.ID, update.cost, now); err != nil {
			return nil, err
		}
		if !update.product.Cost.Equal(update.cost) {
			events = append(events, model.ProductCostChanged{
				ProductID: update.product.ID,
				OldCost:   update.product.Cost,
				NewCost:   update.cost,
			})
		}
	}
	for _, movement := range movements {
		if err := a.repos.Inventory.AppendMovement(ctx, movement); err != nil {
			return nil, err
		}
	}

	events = append([]Event{model.OrderPlaced{
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		UserID:      user.ID,
		Total:       order.Total,
	}}, events...)

	return &CheckoutResult{Order: order, User: user, Events: events}, nil
}

// priceLines resolves base prices and checks stock for every line before any
// write happens. The returned cart total is the pre-discount baseline used by
// min_cart_total rules on every line.
func (a *orderAssembler) priceLines(ctx context.Context, user *model.User, items []CheckoutItem) ([]pricedLine, decimal.Decimal, error) {
	lines := make([]pricedLine, 0, len(items))
	cartTotal := decimal.Zero
	for _, item := range items {
		if item.Quantity <= 0 {
			return nil, decimal.Zero, ErrInvalidQuantity
		}
		product, err := a.repos.Products.Find(ctx, item.ProductID)
		if err != nil {
			return nil, decimal.Zero, err
		}
		price, err := a.pricing.ResolvePrice(ctx, product.ID, user.PriceLevelID)
		if err != nil {
			return nil, decimal.Zero, fmt.Errorf("product %s: %w", product.SKU, err)
		}
		if err := a.guard.Check(ctx, product, item.Quantity); err != nil {
			return nil, decimal.Zero, err
		}

		cartTotal = cartTotal.Add(price.Mul(decimal.NewFromInt(int64(item.Quantity))))
		lines = append(lines, pricedLine{product: product, quantity: item.Quantity, basePrice: price})
	}
	return lines, cartTotal, nil
}

func (a *orderAssembler) assembleItem(
	ctx context.Context,
	order *model.Order,
	user *model.User,
	line pricedLine,
	cartTotal decimal.Decimal,
	offers []model.Offer,
	usage *usageTracker,
	now time.Time,
) (*model.OrderItem, []*model.OfferApplication, error) {
	fold, err := ApplyOffers(ctx, OffersFor(offers, line.product, now), LineContext{
		UserID:    user.ID,
		BasePrice: line.basePrice,
		Quantity:  line.quantity,
		CartTotal: cartTotal,
	}, usage)
	if err != nil {
		return nil, nil, err
	}
	for _, skipped := range fold.Skipped {
		entry := log.WithFields(log.Fields{
			"offerID":   skipped.OfferID,
			"productID": line.product.ID,
			"reason":    skipped.Reason.Error(),
		})
		if errors.Is(skipped.Reason, model.ErrUnknownOfferRuleType) {
			entry.Warn("offer rejected")
		} else {
			entry.Debug("offer skipped")
		}
	}

	itemID, err := a.repos.Orders.NextID()
	if err != nil {
		return nil, nil, err
	}
	quantity := decimal.NewFromInt(int64(line.quantity))
	item := &model.OrderItem{
		ID:             itemID,
		OrderID:        order.ID,
		ProductID:      line.product.ID,
		Quantity:       line.quantity,
		BasePrice:      line.basePrice,
		UnitPrice:      fold.FinalPrice,
		DiscountAmount: line.basePrice.Sub(fold.FinalPrice).Mul(quantity).Round(2),
		Subtotal:       fold.FinalPrice.Mul(quantity).Round(2),
		AverageCost:    line.product.Cost,
	}

	var applications []*model.OfferApplication
	for _, applied := range fold.Applied {
		applicationID, err := a.repos.Orders.NextID()
		if err != nil {
			return nil, nil, err
		}
		usage.Record(applied.Offer.ID)
		applications = append(applications, &model.OfferApplication{
			ID:             applicationID,
			OfferID:        applied.Offer.ID,
			OrderID:        order.ID,
			OrderItemID:    item.ID,
			ProductID:      line.product.ID,
			UserID:         user.ID,
			DiscountAmount: applied.Discount.Mul(quantity).Round(2),
			AppliedAt:      now,
		})
	}

	suppliers, err := a.repos.Suppliers.ListActiveByProduct(ctx, line.product.ID)
	if err != nil {
		return nil, nil, err
	}
	allocation, err := AllocateSuppliers(suppliers, line.quantity)
	if err != nil {
		return nil, nil, err
	}
	if allocation.HasSuppliers() {
		item.AverageCost = allocation.WeightedUnitCost
	}
	for _, allocated := range allocation.Lines {
		allocationID, err := a.repos.Orders.NextID()
		if err != nil {
			return nil, nil, err
		}
		item.Suppliers = append(item.Suppliers, model.OrderItemSupplier{
			ID:          allocationID,
			OrderItemID: item.ID,
			SupplierID:  allocated.SupplierID,
			Quantity:    allocated.Quantity,
			UnitCost:    allocated.UnitCost,
			TotalCost:   allocated.TotalCost,
		})
	}

	return item, applications, nil
}

func (a *orderAssembler) computeTotals(order *model.Order) {
	subtotal := decimal.Zero
	for _, item := range order.Items {
		subtotal = subtotal.Add(item.Subtotal)
	}
	order.Subtotal = subtotal.Round(2)
	order.Tax = order.Subtotal.Sub(order.Discount).Mul(a.taxRate).Round(2)
	order.Total = order.Subtotal.Add(order.Tax).Add(order.ShippingCost)
}

func (a *orderAssembler) ChangeStatus(ctx context.Context, orderID uuid.UUID, status model.OrderStatus) (*model.Order, []Event, error) {
	order, err := a.repos.Orders.Find(ctx, orderID)
	if err != nil {
		return nil, nil, err
	}

	oldStatus := order.Status
	if err := order.TransitionTo(status, a.clock()); err != nil {
		return nil, nil, err
	}
	if err := a.repos.Orders.UpdateStatus(ctx, order); err != nil {
		return nil, nil, err
	}

	return order, []Event{model.OrderStatusChanged{
		OrderID:   order.ID,
		OldStatus: oldStatus.String(),
		NewStatus: status.String(),
	}}, nil
}

// NewOrderNumber formats ORD-{yyyyMMdd}-{8 uppercase hex chars}.
func NewOrderNumber(now time.Time) string {
	id := uuid.New()
	return fmt.Sprintf("ORD-%s-%s", now.Format("20060102"), strings.ToUpper(fmt.Sprintf("%x", id[:4])))
}
