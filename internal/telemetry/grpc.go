package telemetry

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/logging"
	"github.com/grpc-ecosystem/go-grpc-middleware/v2/interceptors/recovery"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// GRPCServerOptions logs every operator call, counts it by method and code, and turns handler
// panics into Internal errors.
func GRPCServerOptions() []grpc.ServerOption {
	opts := []logging.Option{
		logging.WithLogOnEvents(logging.StartCall, logging.FinishCall),
	}

	return []grpc.ServerOption{
		grpc.ChainUnaryInterceptor(
			logging.UnaryServerInterceptor(grpcServerLogger(slog.Default()), opts...),
			countCalls,
			recovery.UnaryServerInterceptor(recovery.WithRecoveryHandlerContext(recoverPanic)),
		),
	}
}

func grpcServerLogger(l *slog.Logger) logging.Logger {
	return logging.LoggerFunc(func(ctx context.Context, lvl logging.Level, msg string, fields ...any) {
		l.Log(ctx, slog.Level(lvl), msg, fields...)
	})
}

func countCalls(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	resp, err := handler(ctx, req)
	GRPCCalls.WithLabelValues(info.FullMethod, status.Code(err).String()).Inc()
	return resp, err
}

func recoverPanic(ctx context.Context, p any) error {
	slog.ErrorContext(ctx, "grpc server: handler panic",
		"error", fmt.Errorf("%v, stack: %s", p, debug.Stack()),
	)
	return status.Error(codes.Internal, "internal error")
}
