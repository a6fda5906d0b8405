package grpc

import (
	"context"
	"testing"

	"github.com/reviewstore/services/reviews/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestLoggingInterceptorRecordsRequests(t *testing.T) {
	recorder := &countingRecorder{}
	interceptor := LoggingInterceptor(logger.NewLogger("test", "error"), recorder)
	ctx := context.Background()

	resp, err := interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/reviews.Test/Ok"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return "resp", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)

	_, err = interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/reviews.Test/Missing"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, status.Error(codes.NotFound, "customer not found")
		})
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = interceptor(ctx, "req", &grpc.UnaryServerInfo{FullMethod: "/reviews.Test/Broken"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return nil, assert.AnError
		})
	assert.ErrorIs(t, err, assert.AnError)

	assert.Equal(t, []string{
		"/reviews.Test/Ok OK",
		"/reviews.Test/Missing NotFound",
		"/reviews.Test/Broken Unknown",
	}, recorder.recorded())
}

func TestLoggingInterceptorWithoutRecorder(t *testing.T) {
	interceptor := LoggingInterceptor(logger.NewLogger("test", "error"), nil)

	resp, err := interceptor(context.Background(), "req", &grpc.UnaryServerInfo{FullMethod: "/reviews.Test/Ok"},
		func(ctx context.Context, req interface{}) (interface{}, error) {
			return "resp", nil
		})
	require.NoError(t, err)
	assert.Equal(t, "resp", resp)
}
