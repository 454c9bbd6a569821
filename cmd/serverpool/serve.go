package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kandev/serverpool/internal/api"
	"github.com/kandev/serverpool/internal/common/logger"
	"github.com/kandev/serverpool/internal/events"
	gateway "github.com/kandev/serverpool/internal/gateway/websocket"
	"github.com/kandev/serverpool/internal/pool"
	"github.com/kandev/serverpool/internal/tracing"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the pool and its control server (default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(parent context.Context) error {
	// 1. Load configuration
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	// 2. Initialize logger
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		OutputPath: cfg.Logging.OutputPath,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = log.Sync() }()
	logger.SetDefault(log)

	log.Info("starting serverpool",
		zap.String("control_addr", cfg.Server.Addr()),
		zap.Int("base_port", cfg.Pool.BasePort),
		zap.String("dispose_mode", cfg.Pool.DisposeMode),
		zap.Bool("tracing", tracing.Enabled()))

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// 3. Event bus
	provided, closeBus, err := events.Provide(cfg, log)
	if err != nil {
		return err
	}
	defer closeBus()

	activitySub, err := events.SubscribeActivityLogger(provided.Bus, log)
	if err != nil {
		return fmt.Errorf("failed to subscribe activity logger: %w", err)
	}
	defer func() { _ = activitySub.Unsubscribe() }()

	// 4. Pool manager
	manager := pool.NewManager(cfg.Pool, provided.Bus, log)

	// 5. WebSocket gateway and control server
	gw := gateway.NewGateway(manager, provided.Bus, log)
	gw.Start(ctx)

	control := api.NewControlServer(cfg, manager, gw, log)

	ln, err := net.Listen("tcp", cfg.Server.Addr())
	if err != nil {
		return fmt.Errorf("failed to bind control server on %s: %w", cfg.Server.Addr(), err)
	}

	httpServer := &http.Server{
		Handler:      control.Router(),
		ReadTimeout:  cfg.Server.ReadTimeoutDuration(),
		WriteTimeout: cfg.Server.WriteTimeoutDuration(),
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("control server listening", zap.String("address", ln.Addr().String()))
		if err := httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	// 6. Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	var runErr error
	select {
	case sig := <-quit:
		log.Info("received signal, shutting down", zap.String("signal", sig.String()))
	case <-ctx.Done():
		log.Info("context cancelled, shutting down")
	case err, ok := <-serveErr:
		if ok {
			log.Error("control server error", zap.Error(err))
			runErr = err
		}
	}

	// 7. Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down control server", zap.Error(err))
	}
	cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		log.Error("error shutting down instances", zap.Error(err))
	}
	if err := tracing.Shutdown(shutdownCtx); err != nil {
		log.Warn("error flushing traces", zap.Error(err))
	}

	log.Info("serverpool stopped")
	return runErr
}
