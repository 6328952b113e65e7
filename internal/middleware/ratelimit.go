package middleware

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"shopledger/internal/config"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const rateLimitPrefix = "ratelimit:"

// RateLimit allows cfg.RequestsPerWindow requests per client IP per fixed
// window, counted in redis. Requests pass when redis is unreachable.
func RateLimit(client *redis.Client, cfg config.RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := clientIP(r)
			key := rateLimitPrefix + clientID
			ctx := r.Context()

			count, err := client.Incr(ctx, key).Result()
			if err != nil {
				logger.Error("Failed to count request for rate limiting",
					zap.String("key", key),
					zap.Error(err),
				)
				next.ServeHTTP(w, r)
				return
			}
			if count == 1 {
				client.Expire(ctx, key, cfg.Window)
			}

			limit := strconv.Itoa(cfg.RequestsPerWindow)
			w.Header().Set("X-RateLimit-Limit", limit)

			if count > int64(cfg.RequestsPerWindow) {
				ttl, err := client.TTL(ctx, key).Result()
				if err != nil || ttl < 0 {
					ttl = cfg.Window
				}
				retry := max(int(ttl.Round(time.Second).Seconds()), 1)

				logger.Warn("Rate limit exceeded",
					zap.String("client", clientID),
					zap.Int64("count", count),
					zap.Int("limit", cfg.RequestsPerWindow),
				)

				w.Header().Set("X-RateLimit-Remaining", "0")
				w.Header().Set("Retry-After", strconv.Itoa(retry))
				RespondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(int64(cfg.RequestsPerWindow)-count, 10))
			next.ServeHTTP(w, r)
		})
	}
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
