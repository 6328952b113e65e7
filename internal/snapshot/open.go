package snapshot

import (
	"context"
	"fmt"

	"shopledger/internal/config"
	"shopledger/internal/kvstore"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Open builds the backend named by cfg.Snapshot.Driver.
func Open(ctx context.Context, cfg *config.Config, scalars *kvstore.Store, logger *zap.Logger) (Backend, error) {
	switch Driver(cfg.Snapshot.Driver) {
	case DriverLocal, "":
		return NewLocalBackend(scalars), nil

	case DriverRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to reach redis snapshot backend: %w", err)
		}
		logger.Info("Using redis snapshot backend", zap.String("addr", cfg.Redis.Addr()))
		return NewRedisBackend(client), nil

	case DriverS3:
		backend, err := NewS3Backend(ctx, S3Config{
			Bucket:    cfg.S3.Bucket,
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			PathStyle: cfg.S3.PathStyle,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("Using s3 snapshot backend", zap.String("bucket", cfg.S3.Bucket))
		return backend, nil

	default:
		return nil, fmt.Errorf("unknown snapshot driver %q", cfg.Snapshot.Driver)
	}
}
