package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const appName = "checkout"

func main() {
	log.SetFormatter(&log.JSONFormatter{})

	app := &cli.App{
		Name:  appName,
		Usage: "order checkout service",
		Commands: []*cli.Command{
			{
				Name:   "service",
				Usage:  "serve the REST API and gRPC health endpoint",
				Action: runService,
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: runMigrate,
			},
			{
				Name:  "reconcile-inventory",
				Usage: "recompute cached inventory balances from the movement ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "product",
						Usage: "reconcile a single product id instead of every product",
					},
				},
				Action: runReconcileInventory,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.WithError(err).Fatal("checkout failed")
	}
}
