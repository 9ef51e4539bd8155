package service

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type redisCommander interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// RateLimitService enforces fixed-window request quotas in Redis. The limiter
// fails open: when Redis is unreachable the request passes and the outage is
// logged, so a cache wobble never locks anyone out of auth or uploads.
type RateLimitService struct {
	client redisCommander
	window time.Duration
	logger *zap.Logger
}

// NewRateLimitService wires the limiter. A nil client disables limiting.
func NewRateLimitService(client redisCommander, window time.Duration, logger *zap.Logger) *RateLimitService {
	if window <= 0 {
		window = time.Minute
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RateLimitService{
		client: client,
		window: window,
		logger: logger,
	}
}

// Allow counts one hit for the key in the current window and reports whether
// the caller is still under the limit. The returned error is informational;
// when it is set the request was allowed anyway.
func (s *RateLimitService) Allow(ctx context.Context, key string, limit int) (bool, error) {
	if s.client == nil || limit <= 0 {
		return true, nil
	}

	windowSecs := int64(s.window / time.Second)
	if windowSecs < 1 {
		windowSecs = 1
	}
	bucket := fmt.Sprintf("ratelimit:%s:%d", key, time.Now().Unix()/windowSecs)

	count, err := s.client.Incr(ctx, bucket).Result()
	if err != nil {
		s.logger.Warn("rate limiter unavailable, failing open", zap.Error(err))
		return true, err
	}
	if count == 1 {
		if err := s.client.Expire(ctx, bucket, s.window).Err(); err != nil {
			s.logger.Warn("failed to expire rate limit bucket", zap.String("bucket", bucket), zap.Error(err))
		}
	}
	return count <= int64(limit), nil
}
