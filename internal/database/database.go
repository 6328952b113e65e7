package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"shopledger/internal/config"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// ErrStoreUnavailable means the structured store could not be opened. The
// process cannot run without it.
var ErrStoreUnavailable = errors.New("structured store unavailable")

type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// ParseDriver maps a configuration value to a Driver.
func ParseDriver(s string) (Driver, error) {
	switch Driver(s) {
	case DriverSQLite, "":
		return DriverSQLite, nil
	case DriverPostgres:
		return DriverPostgres, nil
	default:
		return "", fmt.Errorf("unknown database driver %q", s)
	}
}

// Service owns the database handle for the structured store.
type Service interface {
	DB() *sql.DB
	Driver() Driver
	// Health reports connection pool statistics keyed by name.
	Health(ctx context.Context) map[string]string
	Close() error
}

type service struct {
	db     *sql.DB
	driver Driver
	logger *zap.Logger
}

// New opens the configured database, verifies it answers and brings its
// schema up to date.
func New(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (Service, error) {
	driver, err := ParseDriver(cfg.Driver)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var db *sql.DB
	switch driver {
	case DriverPostgres:
		db, err = sql.Open("pgx", cfg.DSN())
		if err == nil {
			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(30 * time.Minute)
		}
	default:
		db, err = openSQLite(cfg.Path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	if err := RunMigrations(ctx, db, driver, logger); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	return &service{db: db, driver: driver, logger: logger}, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	// A single connection serializes access: readers queue behind a
	// running transaction instead of seeing SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	return db, nil
}

func (s *service) DB() *sql.DB {
	return s.db
}

func (s *service) Driver() Driver {
	return s.driver
}

func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		s.logger.Warn("Database health check failed", zap.Error(err))
		return stats
	}

	stats["status"] = "up"
	stats["driver"] = string(s.driver)

	dbStats := s.db.Stats()
	stats["open_connections"] = strconv.Itoa(dbStats.OpenConnections)
	stats["in_use"] = strconv.Itoa(dbStats.InUse)
	stats["idle"] = strconv.Itoa(dbStats.Idle)
	stats["wait_count"] = strconv.FormatInt(dbStats.WaitCount, 10)

	if version, err := SchemaVersion(ctx, s.db, s.driver); err == nil {
		stats["schema_version"] = strconv.FormatInt(version, 10)
	}

	return stats
}

func (s *service) Close() error {
	s.logger.Info("Closing database connection", zap.String("driver", string(s.driver)))
	return s.db.Close()
}
