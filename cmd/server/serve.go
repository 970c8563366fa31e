package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/rl1809/record-store/internal/adapter/handler"
)

func serveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and gRPC APIs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), *configPath)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, logger, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(parent), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := initTelemetry(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	// Worker runs on its own context so that it drains after the
	// listeners have stopped accepting work.
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	// A worker that stops on its own takes the APIs down with it, so jobs
	// are never accepted with nothing consuming them.
	var (
		wg        sync.WaitGroup
		workerErr error
	)
	if cfg.Worker.Embedded {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.runWorker(workerCtx); err != nil {
				logger.Error("tracklist worker error", slog.Any("error", err))
				workerErr = fmt.Errorf("tracklist worker: %w", err)
				stop()
			}
		}()
	}

	grpcServer := grpc.NewServer()
	handler.RegisterOrderServiceServer(grpcServer, handler.NewGRPCHandler(a.orders))

	lis, err := net.Listen("tcp", cfg.GRPC.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.GRPC.Addr, err)
	}

	go func() {
		logger.Info("gRPC server listening", slog.String("addr", cfg.GRPC.Addr))
		if err := grpcServer.Serve(lis); err != nil {
			logger.Error("gRPC server error", slog.Any("error", err))
		}
	}()

	httpHandler := handler.NewHTTPHandler(a.orders, a.catalog, a.sync, logger)
	httpServer := &http.Server{
		Addr:    cfg.HTTP.Addr,
		Handler: handler.NewRouter(httpHandler, cfg.Telemetry.ServiceName),
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTP.Addr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server error", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP shutdown", slog.Any("error", err))
	}
	logger.Info("HTTP server stopped")

	grpcServer.GracefulStop()
	logger.Info("gRPC server stopped")

	stopWorker()
	wg.Wait()

	if err := shutdownTelemetry(shutdownCtx); err != nil {
		logger.Error("telemetry shutdown", slog.Any("error", err))
	}
	return workerErr
}

func contextOrBackground(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
