package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/events"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const reportModel = "Report"

// CreateReport numbers and stores a new report and syncs the status of its
// contract. Manual numbering is requested by setting both TypeCumulative and
// YearSerialAll.
func (s *Service) CreateReport(ctx context.Context, actor models.Actor, report *models.Report) (*models.Report, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if report.TypeCumulative < 0 || report.YearSerialAll < 0 {
		return nil, fmt.Errorf("%w: serials must be positive", e.ErrInvalidInput)
	}
	if (report.TypeCumulative > 0) != (report.YearSerialAll > 0) {
		return nil, fmt.Errorf("%w: manual numbering needs both the cumulative and the year serial", e.ErrInvalidInput)
	}
	manual := report.TypeCumulative > 0
	if manual {
		if !actor.Privileged() {
			return nil, fmt.Errorf("%w: only staff may assign numbers manually", e.ErrManualOverrideForbidden)
		}
		if err := s.engine.CheckManualYear(report.Year); err != nil {
			return nil, err
		}
	}
	if !report.ReportType.Valid() {
		return nil, fmt.Errorf("%w: unknown report type %q", e.ErrInvalidInput, report.ReportType)
	}
	if report.Direction == "" {
		report.Direction = models.DirectionIncoming
	}
	if err := validateRecordFields(report.Direction, report.DeliveryMethod, report.Year, report.ReceivedDate); err != nil {
		return nil, err
	}
	if err := validatePeriod(report.PeriodStartMonth, report.PeriodStartYear, report.PeriodEndMonth, report.PeriodEndYear); err != nil {
		return nil, err
	}
	report.ReceivedDate = dateOnly(report.ReceivedDate)

	var flipped []uuid.UUID
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		if err := s.checkYearUnlocked(ctx, tx, report.Year); err != nil {
			return err
		}
		if !manual {
			if err := s.checkWorkingYear(ctx, tx, report.ReceivedDate); err != nil {
				return err
			}
		}
		if err := checkLinks(ctx, tx, report.CustomerID, report.ContractID); err != nil {
			return err
		}
		if err := lockReportCounters(ctx, tx, report.Year); err != nil {
			return err
		}
		if err := s.checkReportChronology(ctx, tx, report, manual); err != nil {
			return err
		}

		var (
			num numbering.ReportNumber
			err error
		)
		if manual {
			num, err = s.engine.ReserveReportNumber(ctx, tx, report.ReportType, report.Year, report.TypeCumulative, report.YearSerialAll)
		} else {
			num, err = s.engine.AssignReportNumber(ctx, tx, report.ReportType, report.Year)
		}
		if err != nil {
			return err
		}

		report.ID = uuid.New()
		report.TypeCumulative = num.TypeCumulative
		report.YearSerialAll = num.YearSerial
		report.ReportNo = num.ReportNo
		report.ManuallyNumbered = manual
		report.CreatedBy = actor.Username
		report.UpdatedBy = actor.Username
		report.IsArchived = false
		if err := tx.CreateReport(ctx, report); err != nil {
			return err
		}
		if flipped, err = s.syncContracts(ctx, tx, report.ContractID); err != nil {
			return err
		}
		return s.audit(ctx, tx, reportModel, report.ID.String(), models.ActionCreate, actor)
	})
	if err != nil {
		return nil, wrap("failed to create report", err)
	}

	s.logger.Info("report numbered",
		zap.String("report_no", report.ReportNo),
		zap.Bool("manual", manual),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.ReportNumbered, report.ID.String(), actor.Username, report)
	s.publishContractChanges(ctx, flipped, actor.Username)
	return report, nil
}

func (s *Service) GetReport(ctx context.Context, id uuid.UUID) (*models.Report, error) {
	report, err := s.repo.GetReport(ctx, id)
	if err != nil {
		return nil, wrap("failed to get report", err)
	}
	return report, nil
}

func (s *Service) ListReports(ctx context.Context, filter models.ReportFilter) ([]models.Report, error) {
	reports, err := s.repo.ListReports(ctx, filter)
	if err != nil {
		return nil, wrap("failed to list reports", err)
	}
	return reports, nil
}

// UpdateReport changes the descriptive fields of a report. Re-linking to
// another contract syncs both the old and the new contract.
func (s *Service) UpdateReport(ctx context.Context, actor models.Actor, update *models.ReportUpdate) (*models.Report, error) {
	if err := requireAuthenticated(actor); err != nil {
		return nil, err
	}
	if update.ID == uuid.Nil {
		return nil, fmt.Errorf("%w: invalid report ID", e.ErrInvalidInput)
	}

	var (
		updated *models.Report
		flipped []uuid.UUID
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		report, err := tx.GetReport(ctx, update.ID)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, report.Year); err != nil {
			return err
		}
		if err := rejectReportNumberingChange(report, update); err != nil {
			return err
		}

		previous := report.ContractID
		applyReportUpdate(report, update)
		if err := validateRecordFields(report.Direction, report.DeliveryMethod, report.Year, report.ReceivedDate); err != nil {
			return err
		}
		if err := validatePeriod(report.PeriodStartMonth, report.PeriodStartYear, report.PeriodEndMonth, report.PeriodEndYear); err != nil {
			return err
		}
		if err := checkLinks(ctx, tx, report.CustomerID, report.ContractID); err != nil {
			return err
		}

		report.UpdatedBy = actor.Username
		if err := tx.SaveReport(ctx, report); err != nil {
			return err
		}
		if flipped, err = s.syncContracts(ctx, tx, previous, report.ContractID); err != nil {
			return err
		}
		updated = report
		return s.audit(ctx, tx, reportModel, report.ID.String(), models.ActionUpdate, actor)
	})
	if err != nil {
		return nil, wrap("failed to update report", err)
	}

	s.producer.Produce(events.ReportUpdated, updated.ID.String(), actor.Username, updated)
	s.publishContractChanges(ctx, flipped, actor.Username)
	return updated, nil
}

// ArchiveReport soft-deletes a report. Its numbers stay taken; the linked
// contract may fall back to OPEN.
func (s *Service) ArchiveReport(ctx context.Context, actor models.Actor, id uuid.UUID) (*models.Report, error) {
	if err := requireStaff(actor, "archive reports"); err != nil {
		return nil, err
	}

	var (
		archived *models.Report
		flipped  []uuid.UUID
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		report, err := tx.GetReport(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, report.Year); err != nil {
			return err
		}
		archived = report
		if report.IsArchived {
			return nil
		}
		report.IsArchived = true
		report.UpdatedBy = actor.Username
		if err := tx.SaveReport(ctx, report); err != nil {
			return err
		}
		if flipped, err = s.syncContracts(ctx, tx, report.ContractID); err != nil {
			return err
		}
		return s.audit(ctx, tx, reportModel, report.ID.String(), models.ActionArchive, actor)
	})
	if err != nil {
		return nil, wrap("failed to archive report", err)
	}

	s.producer.Produce(events.ReportArchived, archived.ID.String(), actor.Username, archived)
	s.publishContractChanges(ctx, flipped, actor.Username)
	return archived, nil
}

// DeleteReport removes a report that holds both the latest year serial of
// its year and the latest cumulative serial, then rewinds both counters.
func (s *Service) DeleteReport(ctx context.Context, actor models.Actor, id uuid.UUID) error {
	if err := requireSuperuser(actor, "delete reports"); err != nil {
		return err
	}

	var (
		deleted *models.Report
		flipped []uuid.UUID
	)
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		report, err := tx.GetReport(ctx, id)
		if err != nil {
			return err
		}
		if err := s.checkYearUnlocked(ctx, tx, report.Year); err != nil {
			return err
		}

		if err := lockReportCounters(ctx, tx, report.Year); err != nil {
			return err
		}
		latestYear, err := tx.MaxActiveReportYearSerial(ctx, report.Year)
		if err != nil {
			return err
		}
		latestCumulative, err := tx.MaxActiveReportCumulative(ctx)
		if err != nil {
			return err
		}
		if report.IsArchived || latestYear != report.YearSerialAll || latestCumulative != report.TypeCumulative {
			return fmt.Errorf("%w: %s is not the latest report", e.ErrNotMostRecent, report.ReportNo)
		}

		if err := tx.DeleteReport(ctx, report.ID); err != nil {
			return err
		}
		if err := s.engine.RewindReportCounters(ctx, tx, report.Year, report.TypeCumulative, report.YearSerialAll); err != nil {
			return err
		}
		if flipped, err = s.syncContracts(ctx, tx, report.ContractID); err != nil {
			return err
		}
		deleted = report
		return s.audit(ctx, tx, reportModel, report.ID.String(), models.ActionDelete, actor)
	})
	if err != nil {
		return wrap("failed to delete report", err)
	}

	s.logger.Info("report deleted",
		zap.String("report_no", deleted.ReportNo),
		zap.String("actor", actor.Username),
	)
	s.producer.Produce(events.ReportDeleted, deleted.ID.String(), actor.Username, deleted)
	s.publishContractChanges(ctx, flipped, actor.Username)
	return nil
}

// lockReportCounters takes both report counter rows in the order the
// numbering engine uses, global then year.
func lockReportCounters(ctx context.Context, tx *db.Repository, year int) error {
	if _, err := tx.LockReportGlobalCounter(ctx); err != nil {
		return err
	}
	_, err := tx.LockReportYearCounter(ctx, year)
	return err
}

func rejectReportNumberingChange(report *models.Report, u *models.ReportUpdate) error {
	changed := (u.ReportType != nil && *u.ReportType != report.ReportType) ||
		(u.Year != nil && *u.Year != report.Year) ||
		(u.TypeCumulative != nil && *u.TypeCumulative != report.TypeCumulative) ||
		(u.YearSerialAll != nil && *u.YearSerialAll != report.YearSerialAll) ||
		(u.ReportNo != nil && *u.ReportNo != report.ReportNo) ||
		(u.ReceivedDate != nil && !dateOnly(*u.ReceivedDate).Equal(dateOnly(report.ReceivedDate)))
	if changed {
		return fmt.Errorf("%w: report number, type, year and received date cannot be changed", e.ErrInvalidInput)
	}
	return nil
}

func applyReportUpdate(report *models.Report, u *models.ReportUpdate) {
	if u.CustomerID != nil {
		report.CustomerID = *u.CustomerID
	}
	if u.ContractID != nil {
		if *u.ContractID == uuid.Nil {
			report.ContractID = nil
		} else {
			id := *u.ContractID
			report.ContractID = &id
		}
	}
	if u.Direction != nil {
		report.Direction = *u.Direction
	}
	setString(&report.ReferenceNo, u.ReferenceNo)
	setString(&report.Sender, u.Sender)
	setString(&report.Recipient, u.Recipient)
	setString(&report.Subject, u.Subject)
	setString(&report.Description, u.Description)
	if u.DeliveryMethod != nil {
		report.DeliveryMethod = *u.DeliveryMethod
	}
	setString(&report.DeliveryKargoName, u.DeliveryKargoName)
	setString(&report.DeliveryOtherDesc, u.DeliveryOtherDesc)
	setString(&report.DeliveryEmail, u.DeliveryEmail)
	setInt(&report.PeriodStartMonth, u.PeriodStartMonth)
	setInt(&report.PeriodStartYear, u.PeriodStartYear)
	setInt(&report.PeriodEndMonth, u.PeriodEndMonth)
	setInt(&report.PeriodEndYear, u.PeriodEndYear)
	setString(&report.CardNote, u.CardNote)
}
