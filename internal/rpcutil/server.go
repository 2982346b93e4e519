// Package rpcutil carries the gRPC server/client plumbing shared by the
// signer service: a logging-instrumented server with health checking, and
// a JSON-over-gRPC codec so hand-written service descriptors can be used
// without a protoc code-generation step.
package rpcutil

import (
	"context"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware/v2"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/paynet-mint/node/internal/obs"
)

// slogAdapter satisfies the middleware logging.Logger interface on top of
// obs.Logger, so RPC access logs flow through the same handler as every
// other component's logs.
type slogAdapter struct {
	l obs.Logger
}

func (a slogAdapter) Log(_ context.Context, level logging.Level, msg string, fields ...any) {
	switch level {
	case logging.LevelDebug:
		a.l.Debugf("%s %v", msg, fields)
	case logging.LevelWarn:
		a.l.Warnf("%s %v", msg, fields)
	case logging.LevelError:
		a.l.Errorf("%s %v", msg, fields)
	default:
		a.l.Infof("%s %v", msg, fields)
	}
}

// NewServer builds a *grpc.Server with request logging and gRPC health
// checking wired in, matching the teacher's rpc server's shape of a
// thin wrapper around grpc.NewServer with interceptors and a registered
// health service.
func NewServer(logger obs.Logger, opts ...grpc.ServerOption) (*grpc.Server, *health.Server) {
	loggingOpts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
		logging.WithDurationField(func(d time.Duration) logging.Fields {
			return logging.Fields{"duration_ms", d.Milliseconds()}
		}),
	}

	serverOpts := append([]grpc.ServerOption{
		grpcmiddleware.WithUnaryServerChain(
			logging.UnaryServerInterceptor(slogAdapter{l: logger}, loggingOpts...),
		),
	}, opts...)

	srv := grpc.NewServer(serverOpts...)

	healthSrv := health.NewServer()
	healthpb.RegisterHealthServer(srv, healthSrv)

	return srv, healthSrv
}
