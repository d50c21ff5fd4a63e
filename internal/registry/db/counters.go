package db

import (
	"context"
	"fmt"

	dbmodels "github.com/gartstein/ymm/internal/registry/db/models"
	"github.com/gartstein/ymm/internal/registry/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// The Lock* methods get-or-create a counter row and take a row lock on it
// (SELECT ... FOR UPDATE) that is held until the surrounding transaction
// ends. They must be called on a repository obtained from WithTransaction.

func (r *Repository) LockDocumentCounter(ctx context.Context, docType models.DocType, year int) (*dbmodels.DocumentCounter, error) {
	seed := dbmodels.DocumentCounter{DocType: string(docType), Year: year}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure document counter %s/%d: %w", docType, year, err)
	}

	var counter dbmodels.DocumentCounter
	err := r.forUpdate(ctx).
		Where("doc_type = ? AND year = ?", string(docType), year).
		First(&counter).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock document counter %s/%d: %w", docType, year, err)
	}
	return &counter, nil
}

func (r *Repository) LockReportYearCounter(ctx context.Context, year int) (*dbmodels.ReportCounterYearAll, error) {
	seed := dbmodels.ReportCounterYearAll{Year: year}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure report year counter %d: %w", year, err)
	}

	var counter dbmodels.ReportCounterYearAll
	if err := r.forUpdate(ctx).Where("year = ?", year).First(&counter).Error; err != nil {
		return nil, fmt.Errorf("failed to lock report year counter %d: %w", year, err)
	}
	return &counter, nil
}

func (r *Repository) LockReportGlobalCounter(ctx context.Context) (*dbmodels.ReportCounterGlobal, error) {
	seed := dbmodels.ReportCounterGlobal{ID: dbmodels.GlobalCounterID}
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return nil, fmt.Errorf("failed to ensure global report counter: %w", err)
	}

	var counter dbmodels.ReportCounterGlobal
	if err := r.forUpdate(ctx).Where("id = ?", dbmodels.GlobalCounterID).First(&counter).Error; err != nil {
		return nil, fmt.Errorf("failed to lock global report counter: %w", err)
	}
	return &counter, nil
}

func (r *Repository) SaveDocumentCounter(ctx context.Context, counter *dbmodels.DocumentCounter) error {
	return r.saveCounter(ctx, counter)
}

func (r *Repository) SaveReportYearCounter(ctx context.Context, counter *dbmodels.ReportCounterYearAll) error {
	return r.saveCounter(ctx, counter)
}

func (r *Repository) SaveReportGlobalCounter(ctx context.Context, counter *dbmodels.ReportCounterGlobal) error {
	return r.saveCounter(ctx, counter)
}

func (r *Repository) saveCounter(ctx context.Context, counter interface{}) error {
	if err := r.db.WithContext(ctx).Model(counter).Select("last_serial").Updates(counter).Error; err != nil {
		return fmt.Errorf("failed to save counter: %w", err)
	}
	return nil
}

// MaxDocumentSerial returns the highest serial present in the scope,
// archived documents included. Zero when the scope is empty.
func (r *Repository) MaxDocumentSerial(ctx context.Context, docType models.DocType, year int) (int, error) {
	return r.maxOf(ctx, &models.Document{}, "serial", "doc_type = ? AND year = ?", string(docType), year)
}

// MaxActiveDocumentSerial is MaxDocumentSerial restricted to non-archived documents.
func (r *Repository) MaxActiveDocumentSerial(ctx context.Context, docType models.DocType, year int) (int, error) {
	return r.maxOf(ctx, &models.Document{}, "serial",
		"doc_type = ? AND year = ? AND is_archived = ?", string(docType), year, false)
}

func (r *Repository) MaxReportYearSerial(ctx context.Context, year int) (int, error) {
	return r.maxOf(ctx, &models.Report{}, "year_serial_all", "year = ?", year)
}

func (r *Repository) MaxActiveReportYearSerial(ctx context.Context, year int) (int, error) {
	return r.maxOf(ctx, &models.Report{}, "year_serial_all", "year = ? AND is_archived = ?", year, false)
}

func (r *Repository) MaxReportCumulative(ctx context.Context) (int, error) {
	return r.maxOf(ctx, &models.Report{}, "type_cumulative", "")
}

func (r *Repository) MaxActiveReportCumulative(ctx context.Context) (int, error) {
	return r.maxOf(ctx, &models.Report{}, "type_cumulative", "is_archived = ?", false)
}

func (r *Repository) maxOf(ctx context.Context, model interface{}, column, where string, args ...interface{}) (int, error) {
	q := r.db.WithContext(ctx).Model(model).Select(fmt.Sprintf("COALESCE(MAX(%s), 0)", column))
	if where != "" {
		q = q.Where(where, args...)
	}
	var max int
	if err := q.Row().Scan(&max); err != nil {
		return 0, fmt.Errorf("failed to read max %s: %w", column, err)
	}
	return max, nil
}

func (r *Repository) forUpdate(ctx context.Context) *gorm.DB {
	return r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"})
}

// CounterSnapshot is a read-only view of every counter row.
type CounterSnapshot struct {
	Global    dbmodels.ReportCounterGlobal
	Years     []dbmodels.ReportCounterYearAll
	Documents []dbmodels.DocumentCounter
	Legacy    []dbmodels.ReportCounterTypeCum
}

// ListCounters reads all counters without locking. A non-zero year narrows
// the per-year rows.
func (r *Repository) ListCounters(ctx context.Context, year int) (*CounterSnapshot, error) {
	var snap CounterSnapshot
	q := r.db.WithContext(ctx)

	if err := q.Where("id = ?", dbmodels.GlobalCounterID).Limit(1).Find(&snap.Global).Error; err != nil {
		return nil, fmt.Errorf("failed to read global report counter: %w", err)
	}

	years := q.Order("year DESC")
	docs := q.Order("year DESC, doc_type")
	if year > 0 {
		years = years.Where("year = ?", year)
		docs = docs.Where("year = ?", year)
	}
	if err := years.Find(&snap.Years).Error; err != nil {
		return nil, fmt.Errorf("failed to read report year counters: %w", err)
	}
	if err := docs.Find(&snap.Documents).Error; err != nil {
		return nil, fmt.Errorf("failed to read document counters: %w", err)
	}
	if err := q.Order("report_type").Find(&snap.Legacy).Error; err != nil {
		return nil, fmt.Errorf("failed to read legacy report counters: %w", err)
	}
	return &snap, nil
}
