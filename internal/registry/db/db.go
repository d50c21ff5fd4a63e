// Package db implements the GORM-backed persistence of the registry,
// including the row-locked counter store used by numbering.
package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	dbmodels "github.com/gartstein/ymm/internal/registry/db/models"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

type Repository struct {
	db          *gorm.DB
	lockTimeout time.Duration
}

type Config struct {
	Driver      string
	Host        string
	Port        int
	User        string
	Password    string
	DBName      string
	SSLMode     string
	SQLitePath  string
	LockTimeout time.Duration
	MaxConns    int
}

// DSN renders the PostgreSQL connection string.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

// NewRepository connects to the configured database and migrates the schema.
func NewRepository(cfg *Config) (*Repository, error) {
	var dialector gorm.Dialector
	switch cfg.Driver {
	case DriverPostgres, "":
		dialector = postgres.Open(cfg.DSN())
	case DriverSQLite:
		dialector = sqlite.Open(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	gdb, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access connection pool: %w", err)
	}
	if cfg.Driver == DriverSQLite {
		// SQLite has no row locks; one connection serializes writers.
		sqlDB.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxConns)
	}

	repo := &Repository{db: gdb, lockTimeout: cfg.LockTimeout}
	if err := repo.Migrate(context.Background()); err != nil {
		return nil, err
	}
	return repo, nil
}

// Migrate creates or updates every table and seeds the counter singleton.
func (r *Repository) Migrate(ctx context.Context) error {
	tables := []interface{}{
		&models.Customer{},
		&models.Contract{},
		&models.Document{},
		&models.Report{},
		&models.YearLock{},
		&models.AppSetting{},
		&models.AuditLog{},
	}
	tables = append(tables, dbmodels.All()...)

	if err := r.db.WithContext(ctx).AutoMigrate(tables...); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	if _, err := r.LockReportGlobalCounter(ctx); err != nil {
		return fmt.Errorf("failed to seed report counter: %w", err)
	}
	return nil
}

// Dialect returns the name of the underlying SQL dialect.
func (r *Repository) Dialect() string {
	return r.db.Dialector.Name()
}

// WithTransaction runs fn inside a database transaction. Every statement fn
// issues through the repository it receives is part of that transaction.
// Lock waits are bounded on PostgreSQL; contention surfaces as ErrCounterContention.
func (r *Repository) WithTransaction(ctx context.Context, fn func(repo *Repository) error) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if r.lockTimeout > 0 && tx.Dialector.Name() == DriverPostgres {
			stmt := fmt.Sprintf("SET LOCAL lock_timeout = %d", r.lockTimeout.Milliseconds())
			if err := tx.Exec(stmt).Error; err != nil {
				return err
			}
		}
		return fn(&Repository{db: tx, lockTimeout: r.lockTimeout})
	})
	return classify(err)
}

func (r *Repository) Exec(ctx context.Context, query string, params ...interface{}) error {
	result := r.db.WithContext(ctx).Exec(query, params...)
	if result.Error != nil {
		return result.Error
	}
	return nil
}

// Ping checks that the database answers.
func (r *Repository) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

func (r *Repository) Close() error {
	db, err := r.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}

// notFound maps gorm.ErrRecordNotFound to the registry sentinel.
func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", e.ErrNotFound, what)
	}
	return err
}

// duplicate maps unique violations to the registry sentinel.
func duplicate(err error, what string) error {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: %s", e.ErrDuplicate, what)
	}
	return err
}

func paginate(q *gorm.DB, limit, offset int) *gorm.DB {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset > 0 {
		q = q.Offset(offset)
	}
	return q.Limit(limit)
}
