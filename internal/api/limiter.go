package api

import (
	"context"
	"strings"

	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// RateLimitInterceptor rejects burst searches beyond the limiter's rate with
// ResourceExhausted. Other services, health checks included, pass through.
func RateLimitInterceptor(limiter *rate.Limiter) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, "/"+ServiceName+"/") && !limiter.Allow() {
			return nil, status.Error(codes.ResourceExhausted, "burst search rate limit exceeded")
		}
		return handler(ctx, req)
	}
}
