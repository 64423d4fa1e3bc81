package main

import (
	"context"
	"io"

	log "github.com/sirupsen/logrus"

	appservice "checkout/pkg/checkout/application/service"
	"checkout/pkg/checkout/domain/service"
	"checkout/pkg/checkout/infrastructure/events"
	"checkout/pkg/checkout/infrastructure/memory"
	"checkout/pkg/checkout/infrastructure/mysql"
	"checkout/pkg/checkout/infrastructure/notification"
)

type multiCloser []io.Closer

func (m multiCloser) Close() error {
	var firstErr error
	for i := len(m) - 1; i >= 0; i-- {
		if err := m[i].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func buildCheckoutService(ctx context.Context, c *config) (appservice.CheckoutService, io.Closer, error) {
	var (
		closers     multiCloser
		uow         appservice.UnitOfWork
		isTransient appservice.TransientErrorClassifier
	)

	switch c.Storage {
	case storageMemory:
		log.Warn("using in-memory storage, data is lost on exit")
		uow = memory.NewStore()
	default:
		db, err := mysql.Open(ctx, mysql.Config{
			DSN:             c.DatabaseDSN,
			MaxOpenConns:    c.DatabaseMaxOpenConns,
			MaxIdleConns:    c.DatabaseMaxIdleConns,
			ConnMaxLifetime: c.DatabaseConnMaxLifetime,
		})
		if err != nil {
			return nil, nil, err
		}
		closers = append(closers, db)
		uow = mysql.NewUnitOfWork(db)
		isTransient = mysql.IsTransient
	}

	var dispatcher service.EventDispatcher = events.LogDispatcher{}
	if c.AMQPURL != "" {
		amqpDispatcher, err := events.NewAMQPDispatcher(c.AMQPURL, c.AMQPExchange)
		if err != nil {
			_ = closers.Close()
			return nil, nil, err
		}
		closers = append(closers, amqpDispatcher)
		dispatcher = amqpDispatcher
	}

	checkoutService := appservice.NewCheckoutService(
		uow,
		notification.NewConfirmationNotifier(notification.LogSender{}),
		dispatcher,
		isTransient,
		appservice.Config{
			TaxRate:      c.TaxRate,
			MaxAttempts:  c.RetryMaxAttempts,
			RetryBackoff: c.RetryBackoff,
		},
	)
	return checkoutService, closers, nil
}
