package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/soheilhy/cmux"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"

	"github.com/nyashahama/geoanalyzer/internal/config"
)

// serve runs the HTTP API and the gRPC health service until ctx is
// cancelled. Without GRPC_PORT both share PORT: cmux routes HTTP/2 requests
// carrying content-type application/grpc to gRPC and everything else to HTTP.
func serve(ctx context.Context, cfg *config.Config, handler http.Handler, grpcServer *grpc.Server, hs *health.Server, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:     handler,
		ReadTimeout: 15 * time.Second,
		// No WriteTimeout: the event stream and ?wait=true analyses are
		// long-lived. Other routes are bounded by the Timeout middleware.
		IdleTimeout: 120 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	serverErr := make(chan error, 3)
	var mux cmux.CMux

	if cfg.GRPCPort == "" {
		mux = cmux.New(lis)
		grpcL := mux.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
		httpL := mux.Match(cmux.Any())

		go func() { serverErr <- serveGRPC(grpcServer, grpcL) }()
		go func() { serverErr <- serveHTTP(srv, httpL) }()
		go func() {
			if err := mux.Serve(); err != nil && !errors.Is(err, net.ErrClosed) {
				serverErr <- fmt.Errorf("cmux: %w", err)
			}
		}()
		logger.Info("server listening", "addr", lis.Addr().String(), "grpc", "shared")
	} else {
		grpcL, err := net.Listen("tcp", ":"+cfg.GRPCPort)
		if err != nil {
			lis.Close()
			return fmt.Errorf("listen grpc: %w", err)
		}
		go func() { serverErr <- serveGRPC(grpcServer, grpcL) }()
		go func() { serverErr <- serveHTTP(srv, lis) }()
		logger.Info("server listening", "addr", lis.Addr().String(), "grpc_addr", grpcL.Addr().String())
	}

	// Block until either a signal arrives or a server dies unexpectedly.
	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			grpcServer.Stop()
			_ = srv.Close()
			return fmt.Errorf("server error: %w", err)
		}
	}

	// Report NOT_SERVING first so health checkers stop routing here.
	hs.Shutdown()

	// Give in-flight HTTP requests up to 20 seconds to finish.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	stopGRPC(shutdownCtx, grpcServer)
	if mux != nil {
		mux.Close()
	}

	logger.Info("shutdown complete")
	return nil
}

func serveHTTP(srv *http.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http: %w", err)
	}
	return nil
}

func serveGRPC(srv *grpc.Server, lis net.Listener) error {
	if err := srv.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("grpc: %w", err)
	}
	return nil
}

// stopGRPC drains gRPC streams, falling back to a hard stop when ctx expires.
func stopGRPC(ctx context.Context, srv *grpc.Server) {
	done := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		srv.Stop()
	}
}
