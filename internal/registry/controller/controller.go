// Package controller implements the registry's business rules: numbering
// of documents and reports, year locks, chronology, deletion rollback and
// contract status, orchestrating repository transactions and events.
package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type EventProducer interface {
	Produce(eventType events.EventType, key string, actor string, payload interface{})
}

// Repository defines the storage the service needs outside of transactions.
// All writes go through WithTransaction.
type Repository interface {
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	ListCustomers(ctx context.Context, filter models.CustomerFilter) ([]models.Customer, error)
	GetContract(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	ListContracts(ctx context.Context, filter models.ContractFilter) ([]models.Contract, error)
	GetDocument(ctx context.Context, id uuid.UUID) (*models.Document, error)
	ListDocuments(ctx context.Context, filter models.DocumentFilter) ([]models.Document, error)
	GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error)
	ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error)
	ListYearLocks(ctx context.Context) ([]models.YearLock, error)
	ListCounters(ctx context.Context, year int) (*db.CounterSnapshot, error)
	ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error)
	WithTransaction(ctx context.Context, fn func(repo *db.Repository) error) error
}

// Options carries the office-level settings of the service.
type Options struct {
	// DefaultWorkingYear seeds the settings row when it does not exist yet.
	DefaultWorkingYear int
	// Now is the clock; time.Now when nil.
	Now func() time.Time
}

// Service provides the registry operations. It is safe for concurrent use;
// serialization of numbers is left to the database row locks.
type Service struct {
	repo     Repository
	engine   *numbering.Engine
	producer EventProducer
	opts     Options
	logger   *zap.Logger
}

// NewService constructs a Service with a repository, the numbering engine,
// an event producer, and a logger.
func NewService(repo Repository, engine *numbering.Engine, producer EventProducer, opts Options, logger *zap.Logger) *Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if producer == nil {
		producer = events.NopProducer{}
	}
	return &Service{
		repo:     repo,
		engine:   engine,
		producer: producer,
		opts:     opts,
		logger:   logger.Named("registry_service"),
	}
}

func (s *Service) now() time.Time {
	return s.opts.Now().UTC()
}

// audit appends an audit row inside tx.
func (s *Service) audit(ctx context.Context, tx *db.Repository, model string, id string, action models.AuditAction, actor models.Actor) error {
	return tx.CreateAuditLog(ctx, &models.AuditLog{
		Model:     model,
		ObjectID:  id,
		Action:    action,
		Actor:     actor.Username,
		Timestamp: s.now(),
	})
}

// ListAuditLogs returns the most recent audit rows matching filter.
func (s *Service) ListAuditLogs(ctx context.Context, filter models.AuditFilter) ([]models.AuditLog, error) {
	entries, err := s.repo.ListAuditLogs(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit logs: %w", err)
	}
	return entries, nil
}

var domainErrors = []error{
	e.ErrNotFound,
	e.ErrDuplicate,
	e.ErrInvalidInput,
	e.ErrForbidden,
	e.ErrUnauthenticated,
	e.ErrYearLocked,
	e.ErrNotMostRecent,
	e.ErrChronologyViolation,
	e.ErrManualOverrideForbidden,
	e.ErrCounterContention,
}

// wrap adds context to infrastructure failures and returns registry
// errors as they are, so their messages reach the caller unchanged.
func wrap(msg string, err error) error {
	for _, target := range domainErrors {
		if errors.Is(err, target) {
			return err
		}
	}
	return fmt.Errorf("%s: %w", msg, err)
}

func requireAuthenticated(actor models.Actor) error {
	if actor.Username == "" {
		return fmt.Errorf("%w: login required", e.ErrUnauthenticated)
	}
	return nil
}

func requireStaff(actor models.Actor, what string) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if !actor.Privileged() {
		return fmt.Errorf("%w: only staff may %s", e.ErrForbidden, what)
	}
	return nil
}

func requireSuperuser(actor models.Actor, what string) error {
	if err := requireAuthenticated(actor); err != nil {
		return err
	}
	if !actor.IsSuperuser {
		return fmt.Errorf("%w: only administrators may %s", e.ErrForbidden, what)
	}
	return nil
}

// dateOnly truncates t to midnight UTC of its calendar day.
func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
