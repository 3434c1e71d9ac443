package server

import (
	"context"
	"log/slog"
	"runtime/debug"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// UnaryLogger logs every unary call with its status code and latency.
// Client errors are logged at warn, server errors at error.
func UnaryLogger(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		code := status.Code(err)
		attrs := []any{"method", info.FullMethod, "code", code.String(), "elapsed", time.Since(start)}
		switch code {
		case codes.OK:
			log.Debug("grpc call", attrs...)
		case codes.InvalidArgument, codes.NotFound, codes.AlreadyExists, codes.Canceled:
			log.Warn("grpc call", append(attrs, "err", err)...)
		default:
			log.Error("grpc call", append(attrs, "err", err)...)
		}
		return resp, err
	}
}

// UnaryRecover turns a handler panic into codes.Internal.
func UnaryRecover(log *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (resp any, err error) {
		defer func() {
			if r := recover(); r != nil {
				log.Error("grpc handler panic", "method", info.FullMethod, "panic", r, "stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal error")
			}
		}()
		return handler(ctx, req)
	}
}
