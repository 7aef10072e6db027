// Package grpcops serves the gRPC health and reflection endpoints of the beacon server.
//
// Serving status follows the database: a failing ping flips every registered
// service to NOT_SERVING until the next successful one.
package grpcops

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health-check name of the record store.
const ServiceName = "beacon.v1.RecordStore"

// DefaultInterval is the database probe period.
const DefaultInterval = 10 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Ops owns the ops gRPC server.
type Ops struct {
	srv      *grpc.Server
	health   *health.Server
	db       Pinger
	interval time.Duration
	log      *zap.Logger
}

// New builds the ops server. Extra options (e.g. TLS credentials) are passed through.
func New(db Pinger, interval time.Duration, log *zap.Logger, opts ...grpc.ServerOption) *Ops {
	if log == nil {
		log = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}
	opts = append(opts,
		grpc.ChainUnaryInterceptor(RecoverUnary(log), LoggingUnary(log)),
		grpc.ChainStreamInterceptor(RecoverStream(log), LoggingStream(log)),
	)
	s := grpc.NewServer(opts...)
	hs := health.NewServer()
	healthpb.RegisterHealthServer(s, hs)

	o := &Ops{srv: s, health: hs, db: db, interval: interval, log: log}
	o.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return o
}

// EnableReflection registers server reflection. Call before serving.
func (o *Ops) EnableReflection() { reflection.Register(o.srv) }

// Server exposes the underlying grpc.Server for Serve/GracefulStop.
func (o *Ops) Server() *grpc.Server { return o.srv }

// Probe pings the database once and updates serving status.
func (o *Ops) Probe(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, o.interval)
	defer cancel()
	if err := o.db.Ping(ctx); err != nil {
		o.log.Warn("database ping failed", zap.Error(err))
		o.set(healthpb.HealthCheckResponse_NOT_SERVING)
		return false
	}
	o.set(healthpb.HealthCheckResponse_SERVING)
	return true
}

// Watch probes immediately and then every interval until ctx is done.
func (o *Ops) Watch(ctx context.Context) {
	o.Probe(ctx)
	t := time.NewTicker(o.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			o.Probe(ctx)
		}
	}
}

// Shutdown marks everything NOT_SERVING ahead of stopping the server.
func (o *Ops) Shutdown() { o.health.Shutdown() }

func (o *Ops) set(st healthpb.HealthCheckResponse_ServingStatus) {
	o.health.SetServingStatus("", st)
	o.health.SetServingStatus(ServiceName, st)
}
