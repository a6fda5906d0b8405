package grpc

import (
	"context"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

// RequestRecorder receives per-request measurements
type RequestRecorder interface {
	RecordRequest(method, code string, durationSeconds float64)
}

// LoggingInterceptor logs all gRPC requests and records them in metrics
func LoggingInterceptor(log *zap.Logger, recorder RequestRecorder) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		elapsed := time.Since(start)

		code := status.Code(err)
		if recorder != nil {
			recorder.RecordRequest(info.FullMethod, code.String(), elapsed.Seconds())
		}

		if err != nil {
			log.Error("gRPC request failed",
				zap.String("method", info.FullMethod),
				zap.String("code", code.String()),
				zap.Duration("duration", elapsed),
				zap.Error(err),
			)
		} else {
			log.Info("gRPC request completed",
				zap.String("method", info.FullMethod),
				zap.Duration("duration", elapsed),
			)
		}

		return resp, err
	}
}
