package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *Repository) CreateReport(ctx context.Context, report *models.Report) error {
	if err := r.db.WithContext(ctx).Create(report).Error; err != nil {
		return duplicate(err, fmt.Sprintf("report number %s already exists", report.ReportNo))
	}
	return nil
}

func (r *Repository) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	var report models.Report
	if err := r.db.WithContext(ctx).First(&report, "id = ?", id).Error; err != nil {
		return nil, notFound(err, "report")
	}
	return &report, nil
}

// SaveReport writes every column of an existing report.
func (r *Repository) SaveReport(ctx context.Context, report *models.Report) error {
	result := r.db.WithContext(ctx).Model(report).Select("*").Omit("id", "created_at", "created_by").Updates(report)
	if result.Error != nil {
		return duplicate(result.Error, "report")
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteReport(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&models.Report{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return e.ErrNotFound
	}
	return nil
}

func (r *Repository) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	q := r.db.WithContext(ctx).Model(&models.Report{})
	if !filter.IncludeArchived {
		q = q.Where("is_archived = ?", false)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.ContractID != nil {
		q = q.Where("contract_id = ?", *filter.ContractID)
	}
	if filter.ReportType != "" {
		q = q.Where("report_type = ?", string(filter.ReportType))
	}
	if filter.Year > 0 {
		q = q.Where("year = ?", filter.Year)
	}

	var reports []models.Report
	err := paginate(q.Order("type_cumulative DESC"), filter.Limit, filter.Offset).Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	return reports, nil
}

// ReportsExistForYear reports whether any report, archived or not, carries the year.
func (r *Repository) ReportsExistForYear(ctx context.Context, year int) (bool, error) {
	var exists bool
	err := r.db.WithContext(ctx).
		Raw("SELECT EXISTS (SELECT 1 FROM reports WHERE year = ?)", year).
		Scan(&exists).Error
	if err != nil {
		return false, fmt.Errorf("failed to check reports of %d: %w", year, err)
	}
	return exists, nil
}

// ReportYearSerials returns every per-year serial of the year in ascending order.
func (r *Repository) ReportYearSerials(ctx context.Context, year int, activeOnly bool) ([]int, error) {
	q := r.db.WithContext(ctx).Model(&models.Report{}).Where("year = ?", year)
	if activeOnly {
		q = q.Where("is_archived = ?", false)
	}
	var serials []int
	if err := q.Order("year_serial_all").Pluck("year_serial_all", &serials).Error; err != nil {
		return nil, fmt.Errorf("failed to read report serials: %w", err)
	}
	return serials, nil
}

// ReportCumulatives returns every cumulative serial in ascending order.
func (r *Repository) ReportCumulatives(ctx context.Context, activeOnly bool) ([]int, error) {
	q := r.db.WithContext(ctx).Model(&models.Report{})
	if activeOnly {
		q = q.Where("is_archived = ?", false)
	}
	var serials []int
	if err := q.Order("type_cumulative").Pluck("type_cumulative", &serials).Error; err != nil {
		return nil, fmt.Errorf("failed to read report cumulatives: %w", err)
	}
	return serials, nil
}

// ReportYears returns the distinct years holding reports.
func (r *Repository) ReportYears(ctx context.Context) ([]int, error) {
	var years []int
	err := r.db.WithContext(ctx).Model(&models.Report{}).Distinct("year").Order("year").Pluck("year", &years).Error
	if err != nil {
		return nil, fmt.Errorf("failed to read report years: %w", err)
	}
	return years, nil
}

// FindReportDatedAfter returns an active report of the year whose received
// date is after date and whose year serial is below belowSerial (no bound
// when belowSerial is zero or less). Nil when none exists.
func (r *Repository) FindReportDatedAfter(ctx context.Context, year int, date time.Time, belowSerial int) (*models.Report, error) {
	q := r.db.WithContext(ctx).
		Where("year = ? AND is_archived = ?", year, false).
		Where("received_date > ?", date)
	if belowSerial > 0 {
		q = q.Where("year_serial_all < ?", belowSerial)
	}
	return firstReport(q.Order("received_date DESC, year_serial_all DESC"))
}

// FindReportDatedBefore returns an active report of the year whose received
// date is before date and whose year serial is above aboveSerial.
func (r *Repository) FindReportDatedBefore(ctx context.Context, year int, date time.Time, aboveSerial int) (*models.Report, error) {
	q := r.db.WithContext(ctx).
		Where("year = ? AND is_archived = ?", year, false).
		Where("received_date < ? AND year_serial_all > ?", date, aboveSerial)
	return firstReport(q.Order("received_date, year_serial_all"))
}

func firstReport(q *gorm.DB) (*models.Report, error) {
	var report models.Report
	if err := q.First(&report).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &report, nil
}

// CountActiveReportsForContract counts non-archived reports linked to the contract.
func (r *Repository) CountActiveReportsForContract(ctx context.Context, contractID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Report{}).
		Where("contract_id = ? AND is_archived = ?", contractID, false).
		Count(&count).Error
	return count, err
}

// ReportNumberRow is the numbering projection of a report.
type ReportNumberRow struct {
	Year           int
	TypeCumulative int
	YearSerialAll  int
	ReportNo       string
}

// ReportNumbers returns the numbering columns of every report of the year,
// archived ones included. A zero year returns all years.
func (r *Repository) ReportNumbers(ctx context.Context, year int) ([]ReportNumberRow, error) {
	q := r.db.WithContext(ctx).Model(&models.Report{}).Select("year", "type_cumulative", "year_serial_all", "report_no")
	if year > 0 {
		q = q.Where("year = ?", year)
	}
	var rows []ReportNumberRow
	if err := q.Order("type_cumulative").Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to read report numbers: %w", err)
	}
	return rows, nil
}
