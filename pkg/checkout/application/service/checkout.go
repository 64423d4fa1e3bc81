package service

import (
	"context"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/model"
	"checkout/pkg/checkout/domain/service"
)

var ErrInvalidRequest = errors.New("invalid checkout request")

type UnitOfWork interface {
	// Execute runs fn in one transaction: committed when fn returns nil,
	// rolled back otherwise.
	Execute(ctx context.Context, fn func(repos service.Repositories) error) error
}

type ConfirmationSender interface {
	SendOrderConfirmation(ctx context.Context, order *model.Order, user *model.User) error
}

// TransientErrorClassifier tells which transaction failures are worth
// re-running from scratch.
type TransientErrorClassifier func(err error) bool

type PlaceOrderItem struct {
	ProductID uuid.UUID `json:"productId" validate:"required"`
	Quantity  int       `json:"quantity" validate:"gt=0"`
}

type PlaceOrderRequest struct {
	Items             []PlaceOrderItem `json:"items" validate:"required,min=1,dive"`
	ShippingAddressID *uuid.UUID       `json:"shippingAddressId,omitempty"`
}

type Config struct {
	TaxRate      decimal.Decimal
	MaxAttempts  uint64
	RetryBackoff time.Duration
}

type CheckoutService interface {
	PlaceOrder(ctx context.Context, userID uuid.UUID, request PlaceOrderRequest) (*model.Order, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*model.Order, error)
	ReconcileInventory(ctx context.Context, productID uuid.UUID) (*model.InventoryBalance, error)
	ReconcileAllInventory(ctx context.Context) (int, error)
}

func NewCheckoutService(
	uow UnitOfWork,
	sender ConfirmationSender,
	dispatcher service.EventDispatcher,
	isTransient TransientErrorClassifier,
	config Config,
) CheckoutService {
	if config.MaxAttempts == 0 {
		config.MaxAttempts = 1
	}
	return &checkoutService{
		uow:         uow,
		sender:      sender,
		dispatcher:  dispatcher,
		isTransient: isTransient,
		config:      config,
		validate:    validator.New(),
		clock:       service.UTCClock,
	}
}

type checkoutService struct {
	uow         UnitOfWork
	sender      ConfirmationSender
	dispatcher  service.EventDispatcher
	isTransient TransientErrorClassifier
	config      Config
	validate    *validator.Validate
	clock       service.Clock
}

func (s *checkoutService) PlaceOrder(ctx context.Context, userID uuid.UUID, request PlaceOrderRequest) (*model.Order, error) {
	if userID == uuid.Nil {
		return nil, errors.Wrap(ErrInvalidRequest, "missing customer")
	}
	if err := s.validate.Struct(request); err != nil {
		return nil, errors.Wrap(ErrInvalidRequest, err.Error())
	}

	checkoutRequest := service.CheckoutRequest{ShippingAddressID: request.ShippingAddressID}
	for _, item := range request.Items {
		checkoutRequest.Items = append(checkoutRequest.Items, service.CheckoutItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		})
	}

	var result *service.CheckoutResult
	err := s.inTransaction(ctx, "place order", func(repos service.Repositories) error {
		var err error
		result, err = service.NewOrderAssembler(repos, s.config.TaxRate, s.clock).Assemble(ctx, userID, checkoutRequest)
		return err
	})
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"orderID":     result.Order.ID,
		"orderNumber": result.Order.OrderNumber,
		"userID":      userID,
		"total":       result.Order.Total.StringFixed(2),
	}).Info("order placed")

	s.sendConfirmation(ctx, result.Order, result.User)
	s.dispatchEvents(result.Events)
	return result.Order, nil
}

func (s *checkoutService) GetOrder(ctx context.Context, orderID uuid.UUID) (*model.Order, error) {
	var order *model.Order
	err := s.uow.Execute(ctx, func(repos service.Repositories) error {
		var err error
		order, err = repos.Orders.Find(ctx, orderID)
		return err
	})
	return order, err
}

func (s *checkoutService) UpdateOrderStatus(ctx context.Context, orderID uuid.UUID, status string) (*model.Order, error) {
	next, err := model.ParseOrderStatus(status)
	if err != nil {
		return nil, err
	}

	var (
		order  *model.Order
		events []service.Event
	)
	err = s.inTransaction(ctx, "update order status", func(repos service.Repositories) error {
		var err error
		order, events, err = service.NewOrderAssembler(repos, s.config.TaxRate, s.clock).ChangeStatus(ctx, orderID, next)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvents(events)
	return order, nil
}

func (s *checkoutService) ReconcileInventory(ctx context.Context, productID uuid.UUID) (*model.InventoryBalance, error) {
	var (
		balance *model.InventoryBalance
		events  []service.Event
	)
	err := s.inTransaction(ctx, "reconcile inventory", func(repos service.Repositories) error {
		if _, err := repos.Products.Find(ctx, productID); err != nil {
			return err
		}
		var err error
		balance, events, err = service.NewInventoryReconciler(repos.Inventory, s.clock).Reconcile(ctx, productID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.dispatchEvents(events)
	return balance, nil
}

func (s *checkoutService) ReconcileAllInventory(ctx context.Context) (int, error) {
	var productIDs []uuid.UUID
	err := s.uow.Execute(ctx, func(repos service.Repositories) error {
		var err error
		productIDs, err = repos.Inventory.ListProductsWithMovements(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}

	for i, productID := range productIDs {
		if _, err := s.ReconcileInventory(ctx, productID); err != nil {
			return i, errors.Wrapf(err, "reconcile product %s", productID)
		}
	}
	return len(productIDs), nil
}

// inTransaction re-runs the whole transaction while it fails with a transient
// error, so every step inside must be safe to execute again from scratch.
func (s *checkoutService) inTransaction(ctx context.Context, operation string, fn func(repos service.Repositories) error) error {
	// WithMaxRetries treats zero as unlimited, so a single attempt needs StopBackOff.
	var policy backoff.BackOff = &backoff.StopBackOff{}
	if s.config.MaxAttempts > 1 {
		exponential := backoff.NewExponentialBackOff()
		if s.config.RetryBackoff > 0 {
			exponential.InitialInterval = s.config.RetryBackoff
		}
		policy = backoff.WithMaxRetries(exponential, s.config.MaxAttempts-1)
	}

	var finalErr error
	attempt := func() error {
		err := s.uow.Execute(ctx, fn)
		if err != nil && s.isTransient != nil && s.isTransient(err) {
			return err
		}
		finalErr = err
		return nil
	}
	notify := func(err error, next time.Duration) {
		log.WithError(err).WithFields(log.Fields{
			"operation": operation,
			"retryIn":   next.String(),
		}).Warn("transient failure, retrying transaction")
	}

	if err := backoff.RetryNotify(attempt, backoff.WithContext(policy, ctx), notify); err != nil {
		return err
	}
	return finalErr
}

func (s *checkoutService) sendConfirmation(ctx context.Context, order *model.Order, user *model.User) {
	defer func() {
		if r := recover(); r != nil {
			log.WithField("orderNumber", order.OrderNumber).Errorf("order confirmation panicked: %v", r)
		}
	}()
	if s.sender == nil {
		return
	}
	if err := s.sender.SendOrderConfirmation(ctx, order, user); err != nil {
		log.WithError(err).WithField("orderNumber", order.OrderNumber).Error("failed to send order confirmation")
	}
}

func (s *checkoutService) dispatchEvents(events []service.Event) {
	if s.dispatcher == nil {
		return
	}
	for _, event := range events {
		if err := s.dispatcher.Dispatch(event); err != nil {
			log.WithError(err).WithField("event", event.Type()).Error("failed to dispatch event")
		}
	}
}
