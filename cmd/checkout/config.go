package main

import (
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	storageMySQL  = "mysql"
	storageMemory = "memory"
)

type config struct {
	ServeRESTAddress string `envconfig:"serve_rest_address" default:":8080"`
	ServeGRPCAddress string `envconfig:"serve_grpc_address" default:":8081"`
	LogLevel         string `envconfig:"log_level" default:"info"`

	Storage                 string        `envconfig:"storage" default:"mysql"`
	DatabaseDSN             string        `envconfig:"database_dsn" default:"checkout:checkout@tcp(localhost:3306)/checkout"`
	DatabaseMaxOpenConns    int           `envconfig:"database_max_open_conns" default:"20"`
	DatabaseMaxIdleConns    int           `envconfig:"database_max_idle_conns" default:"10"`
	DatabaseConnMaxLifetime time.Duration `envconfig:"database_conn_max_lifetime" default:"30m"`

	// TaxRate is the single source of the checkout tax rate.
	TaxRate          decimal.Decimal `envconfig:"tax_rate" default:"0.16"`
	RetryMaxAttempts uint64          `envconfig:"retry_max_attempts" default:"3"`
	RetryBackoff     time.Duration   `envconfig:"retry_backoff" default:"50ms"`

	AMQPURL      string `envconfig:"amqp_url"`
	AMQPExchange string `envconfig:"amqp_exchange" default:"checkout.events"`
}

func parseConfig() (*config, error) {
	c := &config{}
	if err := envconfig.Process(appName, c); err != nil {
		return nil, errors.Wrap(err, "failed to parse env")
	}
	if c.Storage != storageMySQL && c.Storage != storageMemory {
		return nil, errors.Errorf("unsupported storage %q", c.Storage)
	}
	if c.TaxRate.IsNegative() {
		return nil, errors.New("tax rate cannot be negative")
	}

	level, err := log.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "invalid log level")
	}
	log.SetLevel(level)
	return c, nil
}
