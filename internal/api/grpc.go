package api

import (
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// AnalysisService is the health-check service name for the analysis pipeline.
// It reports NOT_SERVING when no AI provider is configured; the process-wide
// "" service is SERVING whenever the server is up.
const AnalysisService = "geoanalyzer.Analysis"

// NewGRPCServer returns a gRPC server exposing the standard health service
// and reflection. Callers call Shutdown on the returned health server before
// stopping the gRPC server so load balancers drain first.
func NewGRPCServer(aiConfigured bool, logger *slog.Logger) (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()

	hs.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	status := healthpb.HealthCheckResponse_SERVING
	if !aiConfigured {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		logger.Warn("grpc health: no AI provider configured", "service", AnalysisService)
	}
	hs.SetServingStatus(AnalysisService, status)

	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}
