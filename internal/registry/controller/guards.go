package controller

import (
	"context"
	"fmt"
	"time"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

// checkYearUnlocked fails with ErrYearLocked when the year is locked.
func (s *Service) checkYearUnlocked(ctx context.Context, tx *db.Repository, year int) error {
	locked, err := tx.IsYearLocked(ctx, year)
	if err != nil {
		return err
	}
	if locked {
		return fmt.Errorf("%w: %d is closed for changes", e.ErrYearLocked, year)
	}
	return nil
}

// checkWorkingYear accepts only received dates inside the configured working year.
func (s *Service) checkWorkingYear(ctx context.Context, tx *db.Repository, received time.Time) error {
	settings, err := tx.EnsureSettings(ctx, s.defaultSettings())
	if err != nil {
		return err
	}
	if received.Year() != settings.WorkingYear {
		return fmt.Errorf("%w: received date %s is outside working year %d",
			e.ErrInvalidInput, received.Format(dateLayout), settings.WorkingYear)
	}
	return nil
}

// checkDocumentChronology keeps serial order and date order aligned inside
// a (doc_type, year) scope. An automatic number is appended at the end, so
// only later-dated records matter; a manual serial is checked on both sides.
func (s *Service) checkDocumentChronology(ctx context.Context, tx *db.Repository, doc *models.Document, manual bool) error {
	below := 0
	if manual {
		below = doc.Serial
	}
	later, err := tx.FindDocumentDatedAfter(ctx, doc.DocType, doc.Year, doc.ReceivedDate, below)
	if err != nil {
		return err
	}
	if later != nil {
		return fmt.Errorf("%w: %s is dated %s, after %s",
			e.ErrChronologyViolation, later.DocNo, later.ReceivedDate.Format(dateLayout), doc.ReceivedDate.Format(dateLayout))
	}
	if !manual {
		return nil
	}

	earlier, err := tx.FindDocumentDatedBefore(ctx, doc.DocType, doc.Year, doc.ReceivedDate, doc.Serial)
	if err != nil {
		return err
	}
	if earlier != nil {
		return fmt.Errorf("%w: %s has a higher serial but is dated %s, before %s",
			e.ErrChronologyViolation, earlier.DocNo, earlier.ReceivedDate.Format(dateLayout), doc.ReceivedDate.Format(dateLayout))
	}
	return nil
}

// checkReportChronology is checkDocumentChronology for reports; the scope is
// the year across all report types, ordered by the per-year serial.
func (s *Service) checkReportChronology(ctx context.Context, tx *db.Repository, report *models.Report, manual bool) error {
	below := 0
	if manual {
		below = report.YearSerialAll
	}
	later, err := tx.FindReportDatedAfter(ctx, report.Year, report.ReceivedDate, below)
	if err != nil {
		return err
	}
	if later != nil {
		return fmt.Errorf("%w: %s is dated %s, after %s",
			e.ErrChronologyViolation, later.ReportNo, later.ReceivedDate.Format(dateLayout), report.ReceivedDate.Format(dateLayout))
	}
	if !manual {
		return nil
	}

	earlier, err := tx.FindReportDatedBefore(ctx, report.Year, report.ReceivedDate, report.YearSerialAll)
	if err != nil {
		return err
	}
	if earlier != nil {
		return fmt.Errorf("%w: %s has a higher serial but is dated %s, before %s",
			e.ErrChronologyViolation, earlier.ReportNo, earlier.ReceivedDate.Format(dateLayout), report.ReceivedDate.Format(dateLayout))
	}
	return nil
}

// checkLinks verifies that the customer exists and that a linked contract
// belongs to the same customer.
func checkLinks(ctx context.Context, tx *db.Repository, customerID uuid.UUID, contractID *uuid.UUID) error {
	if _, err := tx.GetCustomer(ctx, customerID); err != nil {
		return err
	}
	if contractID == nil {
		return nil
	}
	contract, err := tx.GetContract(ctx, *contractID)
	if err != nil {
		return err
	}
	if contract.CustomerID != customerID {
		return fmt.Errorf("%w: contract belongs to another customer", e.ErrInvalidInput)
	}
	return nil
}

func validateRecordFields(direction models.Direction, delivery models.DeliveryMethod, year int, received time.Time) error {
	if !direction.Valid() {
		return fmt.Errorf("%w: unknown direction %q", e.ErrInvalidInput, direction)
	}
	if !delivery.Valid() {
		return fmt.Errorf("%w: unknown delivery method %q", e.ErrInvalidInput, delivery)
	}
	if year <= 0 {
		return fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
	}
	if received.IsZero() {
		return fmt.Errorf("%w: received date is required", e.ErrInvalidInput)
	}
	if received.Year() != year {
		return fmt.Errorf("%w: received date %s does not fall in %d", e.ErrInvalidInput, received.Format(dateLayout), year)
	}
	return nil
}

func validatePeriod(startMonth, startYear, endMonth, endYear *int) error {
	for _, m := range []*int{startMonth, endMonth} {
		if m != nil && (*m < 1 || *m > 12) {
			return fmt.Errorf("%w: period month must be between 1 and 12", e.ErrInvalidInput)
		}
	}
	if startMonth != nil && startYear != nil && endMonth != nil && endYear != nil {
		if *endYear*12+*endMonth < *startYear*12+*startMonth {
			return fmt.Errorf("%w: period ends before it starts", e.ErrInvalidInput)
		}
	}
	return nil
}
