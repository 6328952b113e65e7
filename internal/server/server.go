package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"shopledger/internal/config"
	"shopledger/internal/database"
	"shopledger/internal/kvstore"
	custommiddleware "shopledger/internal/middleware"
	"shopledger/internal/repository"
	"shopledger/internal/service"
	"shopledger/internal/snapshot"
	"shopledger/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config      *config.Config
	logger      *zap.Logger
	db          database.Service
	scalars     *kvstore.Store
	snapshots   *snapshot.Service
	coordinator *service.Coordinator
	limiter     *redis.Client
}

// New opens every store, loads the inventory and builds the router. The
// caller owns the returned server and must Close it.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Server, error) {
	s := &Server{config: cfg, logger: logger}

	var err error
	s.db, err = database.New(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	s.scalars, err = kvstore.Open(cfg.Scalar.Path, logger)
	if err != nil {
		s.Close()
		return nil, err
	}

	backend, err := snapshot.Open(ctx, cfg, s.scalars, logger)
	if err != nil {
		s.Close()
		return nil, err
	}
	s.snapshots = snapshot.NewService(backend, snapshot.Options{
		Latency:   cfg.Snapshot.Latency,
		KeyPrefix: cfg.Snapshot.KeyPrefix,
	}, logger)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	store := repository.NewStore(s.db.DB(), s.db.Driver(), logger)
	s.coordinator = service.NewCoordinator(store, s.scalars, s.snapshots, logger, service.Options{
		Debounce:    cfg.Snapshot.Debounce,
		PushTimeout: cfg.Snapshot.PushTimeout,
		Metrics:     service.NewMetrics(registry),
	})
	if err := s.coordinator.Initialize(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to load inventory: %w", err)
	}

	if cfg.RateLimit.Enabled {
		s.limiter = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr(),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      s.routes(registry),
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}
	return s, nil
}

func (s *Server) routes(registry *prometheus.Registry) http.Handler {
	router := chi.NewRouter()

	for _, mw := range custommiddleware.DefaultStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.RequestLogger(s.logger))
	router.Use(custommiddleware.Recover(s.logger))
	router.Use(custommiddleware.Instrument(custommiddleware.NewHTTPMetrics(registry)))
	router.Use(custommiddleware.CORS(s.config.Server))

	router.Get("/health", s.health)
	router.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry}))

	router.Group(func(r chi.Router) {
		if s.limiter != nil {
			r.Use(custommiddleware.RateLimit(s.limiter, s.config.RateLimit, s.logger))
		}
		transport.NewHandler(s.coordinator, s.logger).RegisterRoutes(r)
	})

	return router
}

type healthResponse struct {
	Status   string            `json:"status"`
	Loaded   bool              `json:"loaded"`
	Snapshot string            `json:"snapshotDriver"`
	Database map[string]string `json:"database"`
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	db := s.db.Health(r.Context())

	status, code := "ok", http.StatusOK
	if db["status"] != "up" || !s.coordinator.Loaded() {
		status, code = "degraded", http.StatusServiceUnavailable
	}

	custommiddleware.RespondWithJSON(w, code, healthResponse{
		Status:   status,
		Loaded:   s.coordinator.Loaded(),
		Snapshot: string(s.snapshots.Driver()),
		Database: db,
	})
}

// Close releases everything New opened, in reverse order. It is safe on a
// partly built server.
func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	var errs []error
	if s.coordinator != nil {
		errs = append(errs, s.coordinator.Close())
	}
	if s.limiter != nil {
		errs = append(errs, s.limiter.Close())
	}
	if s.snapshots != nil {
		errs = append(errs, s.snapshots.Close())
	}
	if s.scalars != nil {
		errs = append(errs, s.scalars.Close())
	}
	if s.db != nil {
		errs = append(errs, s.db.Close())
	}

	s.logger.Sync()
	return errors.Join(errs...)
}
