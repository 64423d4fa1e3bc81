package mysql

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"checkout/pkg/checkout/domain/service"
)

type UnitOfWork struct {
	db *sqlx.DB
}

func NewUnitOfWork(db *sqlx.DB) *UnitOfWork {
	return &UnitOfWork{db: db}
}

func (u *UnitOfWork) Execute(ctx context.Context, fn func(repos service.Repositories) error) (err error) {
	tx, err := u.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				log.WithError(rbErr).Warn("rollback failed")
			}
		}
	}()

	if err = fn(repositories(tx)); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit transaction")
	}
	return nil
}

func repositories(tx sqlx.ExtContext) service.Repositories {
	return service.Repositories{
		Users:     &userRepository{db: tx},
		Products:  &productRepository{db: tx},
		Prices:    &priceRepository{db: tx},
		Offers:    &offerRepository{db: tx},
		Suppliers: &supplierRepository{db: tx},
		Inventory: &inventoryRepository{db: tx},
		Orders:    &orderRepository{db: tx},
	}
}
