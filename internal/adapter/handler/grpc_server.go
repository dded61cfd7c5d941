package handler

import (
	"context"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
	"google.golang.org/grpc/status"

	"github.com/rl1809/inventory/internal/metrics"
)

// NewGRPCServer returns a server exposing grpc.health.v1.Health, backed by
// the monitor's health server, and reflection.
func NewGRPCServer(monitor *HealthMonitor, logger *zap.Logger) *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(
			recoveryInterceptor(logger),
			loggingInterceptor(logger),
			metricsInterceptor,
		),
		grpc.MaxRecvMsgSize(4*1024*1024),
		grpc.MaxSendMsgSize(4*1024*1024),
	)

	grpc_health_v1.RegisterHealthServer(srv, monitor.GRPC())
	reflection.Register(srv)
	return srv
}

func recoveryInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp interface{}, err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("grpc panic recovered",
					zap.String("method", info.FullMethod),
					zap.Any("panic", r),
					zap.ByteString("stack", debug.Stack()),
				)
				err = status.Errorf(codes.Internal, "internal server error")
			}
		}()
		return handler(ctx, req)
	}
}

func loggingInterceptor(logger *zap.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Debug("grpc request",
			zap.String("method", info.FullMethod),
			zap.Duration("duration", time.Since(start)),
			zap.String("code", status.Code(err).String()),
		)
		return resp, err
	}
}

func metricsInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	metrics.GRPCHandled.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	metrics.GRPCDuration.WithLabelValues(info.FullMethod).Observe(time.Since(start).Seconds())
	return resp, err
}

// HealthMonitor periodically runs dependency checks and publishes the result
// to both /health and the gRPC health service.
type HealthMonitor struct {
	checks  map[string]func(context.Context) error
	grpc    *health.Server
	logger  *zap.Logger
	healthy atomic.Bool
}

func NewHealthMonitor(checks map[string]func(context.Context) error, logger *zap.Logger) *HealthMonitor {
	m := &HealthMonitor{
		checks: checks,
		grpc:   health.NewServer(),
		logger: logger,
	}
	m.healthy.Store(true)
	return m
}

func (m *HealthMonitor) GRPC() *health.Server {
	return m.grpc
}

func (m *HealthMonitor) Healthy() bool {
	return m.healthy.Load()
}

// Check runs every dependency check once and updates the serving status.
func (m *HealthMonitor) Check(ctx context.Context) bool {
	healthy := true
	for name, check := range m.checks {
		cctx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := check(cctx)
		cancel()
		if err != nil {
			healthy = false
			m.logger.Warn("health check failed", zap.String("dependency", name), zap.Error(err))
		}
	}

	m.healthy.Store(healthy)
	st := grpc_health_v1.HealthCheckResponse_SERVING
	if !healthy {
		st = grpc_health_v1.HealthCheckResponse_NOT_SERVING
	}
	m.grpc.SetServingStatus("", st)
	return healthy
}

// Run checks immediately and then on every tick until ctx is done.
func (m *HealthMonitor) Run(ctx context.Context, interval time.Duration) {
	m.Check(ctx)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Check(ctx)
		}
	}
}

// Shutdown marks the service as not serving so load balancers drain it.
func (m *HealthMonitor) Shutdown() {
	m.healthy.Store(false)
	m.grpc.Shutdown()
}
