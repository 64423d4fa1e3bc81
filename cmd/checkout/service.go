package main

import (
	"context"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"checkout/pkg/checkout/infrastructure/transport"
)

const shutdownTimeout = 10 * time.Second

func runService(c *cli.Context) error {
	cfg, err := parseConfig()
	if err != nil {
		return err
	}

	checkoutService, closer, err := buildCheckoutService(c.Context, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := closer.Close(); err != nil {
			log.WithError(err).Warn("failed to release resources")
		}
	}()

	httpServer := &http.Server{
		Addr:              cfg.ServeRESTAddress,
		Handler:           transport.Router(checkoutService),
		ReadHeaderTimeout: 5 * time.Second,
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	grpcListener, err := net.Listen("tcp", cfg.ServeGRPCAddress)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", cfg.ServeGRPCAddress)
	}

	killSignalChan := getKillSignalChan()
	g, ctx := errgroup.WithContext(c.Context)

	g.Go(func() error {
		log.WithFields(log.Fields{"url": cfg.ServeRESTAddress}).Info("Starting REST server")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "rest server")
		}
		return nil
	})
	g.Go(func() error {
		log.WithFields(log.Fields{"url": cfg.ServeGRPCAddress}).Info("Starting gRPC health server")
		healthServer.SetServingStatus(appName, healthpb.HealthCheckResponse_SERVING)
		return errors.Wrap(grpcServer.Serve(grpcListener), "grpc server")
	})
	g.Go(func() error {
		waitForKillSignalChan(ctx, killSignalChan)

		healthServer.Shutdown()
		grpcServer.GracefulStop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func getKillSignalChan() chan os.Signal {
	osKillSignalChan := make(chan os.Signal, 1)
	signal.Notify(osKillSignalChan, os.Interrupt, syscall.SIGTERM)
	return osKillSignalChan
}

func waitForKillSignalChan(ctx context.Context, killSignalChan <-chan os.Signal) {
	select {
	case killSignal := <-killSignalChan:
		switch killSignal {
		case os.Interrupt:
			log.Info("Got SIGINT...")
		case syscall.SIGTERM:
			log.Info("Got SIGTERM...")
		}
	case <-ctx.Done():
		log.WithError(ctx.Err()).Info("Stopping servers")
	}
}
