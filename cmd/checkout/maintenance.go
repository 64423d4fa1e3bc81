package main

import (
	"github.com/google/uuid"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"checkout/pkg/checkout/infrastructure/mysql"
)

func runMigrate(_ *cli.Context) error {
	cfg, err := parseConfig()
	if err != nil {
		return err
	}
	if cfg.Storage != storageMySQL {
		return errors.Errorf("migrations are only available for %s storage", storageMySQL)
	}
	if err := mysql.Migrate(cfg.DatabaseDSN); err != nil {
		return err
	}
	log.Info("migrations applied")
	return nil
}

func runReconcileInventory(c *cli.Context) error {
	cfg, err := parseConfig()
	if err != nil {
		return err
	}
	checkoutService, closer, err := buildCheckoutService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer closer.Close()

	if product := c.String("product"); product != "" {
		productID, err := uuid.Parse(product)
		if err != nil {
			return errors.Wrap(err, "invalid product id")
		}
		balance, err := checkoutService.ReconcileInventory(c.Context, productID)
		if err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"productID":         balance.ProductID,
			"availableQuantity": balance.AvailableQuantity,
		}).Info("inventory reconciled")
		return nil
	}

	count, err := checkoutService.ReconcileAllInventory(c.Context)
	if err != nil {
		return err
	}
	log.WithField("products", count).Info("inventory reconciled")
	return nil
}
