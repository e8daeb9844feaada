// TripDesk Server
//
// Serves the turn service over gRPC and the JSON webhook gateway over HTTP.
// Settings come from TRIPDESK_* environment variables (a local .env file is
// read first); flags override the listen addresses.
//
// Usage:
//
//	go run ./cmd                                 # gRPC :50051, HTTP :8080
//	go run ./cmd -grpc-addr :9090 -http-addr ""  # gRPC only
//	go build -o tripdesk ./cmd && ./tripdesk
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/tripdesk/coreengine/config"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/grpc"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/httpapi"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/logging"
	"github.com/jeeves-cluster-organization/tripdesk/coreengine/observability"
	"github.com/jeeves-cluster-organization/tripdesk/travel/turn"
)

const shutdownTimeout = 15 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tripdesk: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// A missing .env is normal outside development.
	_ = godotenv.Load()

	cfg, err := config.Load(config.DefaultEnvPrefix)
	if err != nil {
		return err
	}

	grpcAddr := flag.String("grpc-addr", cfg.GRPCAddr, "gRPC listen address (empty disables)")
	httpAddr := flag.String("http-addr", cfg.HTTPAddr, "HTTP listen address (empty disables)")
	flag.Parse()

	logger := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		JSON:       cfg.LogFormat == "json",
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
	})
	logger.Info("tripdesk_starting",
		"version", observability.ServiceVersion,
		"grpc_addr", *grpcAddr,
		"http_addr", *httpAddr,
		"environment", cfg.Environment,
	)
	logger.Debug("config_loaded", "config", cfg.ToMap())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.TracingEndpoint != "" {
		shutdownTracer, err := observability.InitTracer(cfg.ServiceName, cfg.TracingEndpoint, cfg.Environment)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownTracer(flushCtx); err != nil {
				logger.Warn("tracer_shutdown_failed", "error", err.Error())
			}
		}()
	}

	stack, err := turn.Assemble(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := stack.Close(); err != nil {
			logger.Warn("session_store_close_failed", "error", err.Error())
		}
	}()

	if *grpcAddr == "" && *httpAddr == "" {
		return errors.New("nothing to serve: both listen addresses are empty")
	}

	g, gctx := errgroup.WithContext(ctx)
	if *grpcAddr != "" {
		server := grpc.NewGracefulServer(grpc.NewTurnServer(stack.Service, logger), *grpcAddr).
			WithShutdownTimeout(shutdownTimeout)
		g.Go(func() error { return server.Start(gctx) })
	}
	if *httpAddr != "" {
		gin.SetMode(gin.ReleaseMode)
		gateway := httpapi.NewServer(stack.Service, stack.Bus, logger)
		g.Go(func() error { return gateway.Run(gctx, *httpAddr, shutdownTimeout) })
	}

	logger.Info("tripdesk_ready")
	err = g.Wait()
	logger.Info("tripdesk_stopped")
	return err
}
