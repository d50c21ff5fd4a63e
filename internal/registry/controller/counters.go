package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"go.uber.org/zap"
)

const counterModel = "Counter"

// CounterKind selects which counter an adjustment targets.
type CounterKind string

const (
	CounterDocument     CounterKind = "document"
	CounterReportYear   CounterKind = "report_year"
	CounterReportGlobal CounterKind = "report_global"
)

// CounterAdjustment sets a counter to an exact value. DocType is used by
// document counters only; Year is optional for the global report counter.
type CounterAdjustment struct {
	Kind       CounterKind    `json:"kind"`
	DocType    models.DocType `json:"doc_type,omitempty"`
	Year       int            `json:"year,omitempty"`
	LastSerial int            `json:"last_serial"`
}

func (a CounterAdjustment) key() string {
	switch a.Kind {
	case CounterDocument:
		return fmt.Sprintf("%s/%s/%d", a.Kind, a.DocType, a.Year)
	case CounterReportYear:
		return fmt.Sprintf("%s/%d", a.Kind, a.Year)
	}
	return string(a.Kind)
}

func (s *Service) ListCounters(ctx context.Context, year int) (*db.CounterSnapshot, error) {
	snap, err := s.repo.ListCounters(ctx, year)
	if err != nil {
		return nil, wrap("failed to list counters", err)
	}
	return snap, nil
}

// AdjustCounter overwrites a counter for data migration and corrections.
// Per-year counters can only be changed for years before the cutoff. The
// global report counter may also be seeded in the cutoff year as long as no
// report of that year exists yet.
func (s *Service) AdjustCounter(ctx context.Context, actor models.Actor, adj CounterAdjustment) (*CounterAdjustment, error) {
	if err := requireStaff(actor, "adjust counters"); err != nil {
		return nil, err
	}
	if adj.LastSerial < 0 {
		return nil, fmt.Errorf("%w: last serial must not be negative", e.ErrInvalidInput)
	}
	cutoff := s.engine.CutoffYear()

	switch adj.Kind {
	case CounterDocument, CounterReportYear:
		if adj.Kind == CounterDocument && !adj.DocType.Valid() {
			return nil, fmt.Errorf("%w: unknown document type %q", e.ErrInvalidInput, adj.DocType)
		}
		if adj.Year <= 0 {
			return nil, fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
		}
		if adj.Year >= cutoff {
			return nil, fmt.Errorf("%w: counters of %d and later are managed automatically", e.ErrManualOverrideForbidden, cutoff)
		}
	case CounterReportGlobal:
		if adj.Year < 0 {
			return nil, fmt.Errorf("%w: year must not be negative", e.ErrInvalidInput)
		}
		if adj.Year > cutoff {
			return nil, fmt.Errorf("%w: the global report counter cannot be set for years after %d", e.ErrManualOverrideForbidden, cutoff)
		}
	default:
		return nil, fmt.Errorf("%w: unknown counter kind %q", e.ErrInvalidInput, adj.Kind)
	}

	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if adj.Year > 0 {
			if err := s.checkYearUnlocked(ctx, tx, adj.Year); err != nil {
				return err
			}
		}

		switch adj.Kind {
		case CounterDocument:
			counter, err := tx.LockDocumentCounter(ctx, adj.DocType, adj.Year)
			if err != nil {
				return err
			}
			counter.LastSerial = adj.LastSerial
			if err := tx.SaveDocumentCounter(ctx, counter); err != nil {
				return err
			}
		case CounterReportYear:
			counter, err := tx.LockReportYearCounter(ctx, adj.Year)
			if err != nil {
				return err
			}
			counter.LastSerial = adj.LastSerial
			if err := tx.SaveReportYearCounter(ctx, counter); err != nil {
				return err
			}
		case CounterReportGlobal:
			counter, err := tx.LockReportGlobalCounter(ctx)
			if err != nil {
				return err
			}
			if adj.Year == cutoff {
				exists, err := tx.ReportsExistForYear(ctx, adj.Year)
				if err != nil {
					return err
				}
				if exists {
					return fmt.Errorf("%w: reports of %d already exist", e.ErrManualOverrideForbidden, adj.Year)
				}
			}
			counter.LastSerial = adj.LastSerial
			if err := tx.SaveReportGlobalCounter(ctx, counter); err != nil {
				return err
			}
		}
		return s.audit(ctx, tx, counterModel, adj.key(), models.ActionAdjust, actor)
	})
	if err != nil {
		return nil, wrap("failed to adjust counter", err)
	}

	s.logger.Warn("counter adjusted",
		zap.String("counter", adj.key()),
		zap.Int("last_serial", adj.LastSerial),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.CounterAdjusted, adj.key(), actor.Username, adj)
	return &adj, nil
}
