// Package snapshot stores full-state bundles per identity so a shop can be
// backed up and restored. Push overwrites, Pull returns the last push; there
// is no merge.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"shopledger/internal/domain"
	"shopledger/internal/scheduler"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var (
	ErrInvalidIdentity = errors.New("identity has no email")
	ErrCorruptBundle   = errors.New("stored snapshot is not a valid bundle")
)

type Driver string

const (
	DriverLocal Driver = "local"
	DriverRedis Driver = "redis"
	DriverS3    Driver = "s3"
)

// Backend is the byte storage behind the service.
type Backend interface {
	Put(ctx context.Context, key string, data []byte) error
	// Get reports false, with a nil error, when nothing is stored under key.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Driver() Driver
	Close() error
}

// ScopeKey is the storage key of an identity's bundle.
func ScopeKey(prefix string, identity domain.Identity) string {
	return prefix + identity.NormalizedEmail()
}

type Options struct {
	// Latency is waited before every push.
	Latency   time.Duration
	KeyPrefix string
	// Clock stamps bundles and times the latency wait. Defaults to the wall clock.
	Clock scheduler.Clock
}

type Service struct {
	backend Backend
	opts    Options
	logger  *zap.Logger
}

// NewService creates a new instance of Service.
func NewService(backend Backend, opts Options, logger *zap.Logger) *Service {
	if opts.Clock == nil {
		opts.Clock = scheduler.RealClock{}
	}
	return &Service{backend: backend, opts: opts, logger: logger}
}

// Driver names the backend in use.
func (s *Service) Driver() Driver {
	return s.backend.Driver()
}

// Push stamps bundle with the current time and stores it for identity,
// replacing any earlier bundle. The stamped bundle is returned.
func (s *Service) Push(ctx context.Context, identity domain.Identity, bundle domain.Bundle) (domain.Bundle, error) {
	if !identity.Valid() {
		return domain.Bundle{}, ErrInvalidIdentity
	}

	bundle = bundle.Clone()
	bundle.LastUpdated = s.opts.Clock.Now().UnixMilli()

	data, err := json.Marshal(bundle)
	if err != nil {
		return domain.Bundle{}, fmt.Errorf("failed to encode snapshot: %w", err)
	}

	if s.opts.Latency > 0 {
		elapsed := make(chan struct{})
		timer := s.opts.Clock.AfterFunc(s.opts.Latency, func() { close(elapsed) })
		select {
		case <-ctx.Done():
			timer.Stop()
			return domain.Bundle{}, ctx.Err()
		case <-elapsed:
		}
	}

	key := ScopeKey(s.opts.KeyPrefix, identity)
	if err := s.backend.Put(ctx, key, data); err != nil {
		return domain.Bundle{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	s.logger.Info("Snapshot pushed",
		zap.String("driver", string(s.backend.Driver())),
		zap.String("key", key),
		zap.Int("bytes", len(data)),
	)
	return bundle, nil
}

// Pull returns the last bundle pushed for identity.
func (s *Service) Pull(ctx context.Context, identity domain.Identity) (domain.Bundle, bool, error) {
	if !identity.Valid() {
		return domain.Bundle{}, false, ErrInvalidIdentity
	}

	key := ScopeKey(s.opts.KeyPrefix, identity)
	data, ok, err := s.backend.Get(ctx, key)
	if err != nil {
		return domain.Bundle{}, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	if !ok {
		return domain.Bundle{}, false, nil
	}

	var bundle domain.Bundle
	if err := json.Unmarshal(data, &bundle); err != nil {
		return domain.Bundle{}, false, fmt.Errorf("%w: %v", ErrCorruptBundle, err)
	}
	return bundle, true, nil
}

// Close releases the backend.
func (s *Service) Close() error {
	return s.backend.Close()
}
