package numbering

import (
	"context"
	"fmt"

	dbmodels "github.com/gartstein/ymm/internal/registry/db/models"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DefaultCutoffYear is the first year numbered only by the engine itself.
const DefaultCutoffYear = 2026

// CounterStore is the transactional view of the counters the engine needs.
// Implementations must hold the row lock taken by a Lock* call until the
// surrounding transaction ends.
type CounterStore interface {
	LockDocumentCounter(ctx context.Context, docType models.DocType, year int) (*dbmodels.DocumentCounter, error)
	SaveDocumentCounter(ctx context.Context, counter *dbmodels.DocumentCounter) error
	MaxDocumentSerial(ctx context.Context, docType models.DocType, year int) (int, error)
	MaxActiveDocumentSerial(ctx context.Context, docType models.DocType, year int) (int, error)

	LockReportYearCounter(ctx context.Context, year int) (*dbmodels.ReportCounterYearAll, error)
	SaveReportYearCounter(ctx context.Context, counter *dbmodels.ReportCounterYearAll) error
	MaxReportYearSerial(ctx context.Context, year int) (int, error)
	MaxActiveReportYearSerial(ctx context.Context, year int) (int, error)

	LockReportGlobalCounter(ctx context.Context) (*dbmodels.ReportCounterGlobal, error)
	SaveReportGlobalCounter(ctx context.Context, counter *dbmodels.ReportCounterGlobal) error
	MaxReportCumulative(ctx context.Context) (int, error)
	MaxActiveReportCumulative(ctx context.Context) (int, error)
}

// Engine assigns, reserves and rewinds serials. It keeps no state of its
// own; every call works on the CounterStore it is handed.
type Engine struct {
	licenseNo  string
	cutoffYear int
	tracer     trace.Tracer
	logger     *zap.Logger
}

func NewEngine(licenseNo string, cutoffYear int, logger *zap.Logger) *Engine {
	if licenseNo == "" {
		licenseNo = DefaultLicenseNo
	}
	if cutoffYear <= 0 {
		cutoffYear = DefaultCutoffYear
	}
	return &Engine{
		licenseNo:  licenseNo,
		cutoffYear: cutoffYear,
		tracer:     otel.Tracer("ymm/numbering"),
		logger:     logger.Named("numbering"),
	}
}

func (en *Engine) LicenseNo() string { return en.licenseNo }

func (en *Engine) CutoffYear() int { return en.cutoffYear }

// CheckManualYear rejects manual numbering for the cutoff year and later.
func (en *Engine) CheckManualYear(year int) error {
	if year >= en.cutoffYear {
		return fmt.Errorf("%w: numbers for %d and later are assigned automatically", e.ErrManualOverrideForbidden, en.cutoffYear)
	}
	return nil
}

// AssignDocumentNumber issues the next serial of (docType, year).
func (en *Engine) AssignDocumentNumber(ctx context.Context, store CounterStore, docType models.DocType, year int) (num DocumentNumber, err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.AssignDocumentNumber", trace.WithAttributes(
		attribute.String("doc_type", string(docType)),
		attribute.Int("year", year),
	))
	defer func() { endSpan(span, err) }()

	if err := validateDocumentScope(docType, year); err != nil {
		return DocumentNumber{}, err
	}

	counter, err := store.LockDocumentCounter(ctx, docType, year)
	if err != nil {
		return DocumentNumber{}, err
	}
	live, err := store.MaxDocumentSerial(ctx, docType, year)
	if err != nil {
		return DocumentNumber{}, err
	}

	counter.LastSerial = max(counter.LastSerial, live) + 1
	if err := store.SaveDocumentCounter(ctx, counter); err != nil {
		return DocumentNumber{}, err
	}

	num = DocumentNumber{
		DocNo:  FormatDocumentNo(en.licenseNo, docType, year, counter.LastSerial),
		Serial: counter.LastSerial,
	}
	en.logger.Debug("document number assigned", zap.String("doc_no", num.DocNo))
	return num, nil
}

// ReserveDocumentNumber accepts an operator supplied serial for a year
// before the cutoff and advances the counter so that automatic numbering
// never reissues it.
func (en *Engine) ReserveDocumentNumber(ctx context.Context, store CounterStore, docType models.DocType, year, serial int) (num DocumentNumber, err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.ReserveDocumentNumber", trace.WithAttributes(
		attribute.String("doc_type", string(docType)),
		attribute.Int("year", year),
		attribute.Int("serial", serial),
	))
	defer func() { endSpan(span, err) }()

	if err := validateDocumentScope(docType, year); err != nil {
		return DocumentNumber{}, err
	}
	if err := en.CheckManualYear(year); err != nil {
		return DocumentNumber{}, err
	}
	if serial < 1 {
		return DocumentNumber{}, fmt.Errorf("%w: serial must be positive", e.ErrInvalidInput)
	}

	counter, err := store.LockDocumentCounter(ctx, docType, year)
	if err != nil {
		return DocumentNumber{}, err
	}
	if serial > counter.LastSerial {
		counter.LastSerial = serial
		if err := store.SaveDocumentCounter(ctx, counter); err != nil {
			return DocumentNumber{}, err
		}
	}

	num = DocumentNumber{
		DocNo:  FormatDocumentNo(en.licenseNo, docType, year, serial),
		Serial: serial,
	}
	en.logger.Info("document number reserved manually", zap.String("doc_no", num.DocNo))
	return num, nil
}

// AssignReportNumber issues the next cumulative serial and the next serial
// of the year. Both counters are locked for the rest of the transaction,
// always in the order global then year.
func (en *Engine) AssignReportNumber(ctx context.Context, store CounterStore, reportType models.ReportType, year int) (num ReportNumber, err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.AssignReportNumber", trace.WithAttributes(
		attribute.String("report_type", string(reportType)),
		attribute.Int("year", year),
	))
	defer func() { endSpan(span, err) }()

	if err := validateReportScope(reportType, year); err != nil {
		return ReportNumber{}, err
	}

	global, err := store.LockReportGlobalCounter(ctx)
	if err != nil {
		return ReportNumber{}, err
	}
	yearCounter, err := store.LockReportYearCounter(ctx, year)
	if err != nil {
		return ReportNumber{}, err
	}

	liveCumulative, err := store.MaxReportCumulative(ctx)
	if err != nil {
		return ReportNumber{}, err
	}
	liveYear, err := store.MaxReportYearSerial(ctx, year)
	if err != nil {
		return ReportNumber{}, err
	}

	global.LastSerial = max(global.LastSerial, liveCumulative) + 1
	yearCounter.LastSerial = max(yearCounter.LastSerial, liveYear) + 1
	if err := store.SaveReportGlobalCounter(ctx, global); err != nil {
		return ReportNumber{}, err
	}
	if err := store.SaveReportYearCounter(ctx, yearCounter); err != nil {
		return ReportNumber{}, err
	}

	num = ReportNumber{
		ReportNo:       FormatReportNo(en.licenseNo, global.LastSerial, year, yearCounter.LastSerial),
		TypeCumulative: global.LastSerial,
		YearSerial:     yearCounter.LastSerial,
	}
	en.logger.Debug("report number assigned", zap.String("report_no", num.ReportNo))
	return num, nil
}

// ReserveReportNumber is the report counterpart of ReserveDocumentNumber.
func (en *Engine) ReserveReportNumber(ctx context.Context, store CounterStore, reportType models.ReportType, year, typeCumulative, yearSerial int) (num ReportNumber, err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.ReserveReportNumber", trace.WithAttributes(
		attribute.String("report_type", string(reportType)),
		attribute.Int("year", year),
		attribute.Int("type_cumulative", typeCumulative),
		attribute.Int("year_serial", yearSerial),
	))
	defer func() { endSpan(span, err) }()

	if err := validateReportScope(reportType, year); err != nil {
		return ReportNumber{}, err
	}
	if err := en.CheckManualYear(year); err != nil {
		return ReportNumber{}, err
	}
	if typeCumulative < 1 || yearSerial < 1 {
		return ReportNumber{}, fmt.Errorf("%w: serials must be positive", e.ErrInvalidInput)
	}

	global, err := store.LockReportGlobalCounter(ctx)
	if err != nil {
		return ReportNumber{}, err
	}
	yearCounter, err := store.LockReportYearCounter(ctx, year)
	if err != nil {
		return ReportNumber{}, err
	}
	if typeCumulative > global.LastSerial {
		global.LastSerial = typeCumulative
		if err := store.SaveReportGlobalCounter(ctx, global); err != nil {
			return ReportNumber{}, err
		}
	}
	if yearSerial > yearCounter.LastSerial {
		yearCounter.LastSerial = yearSerial
		if err := store.SaveReportYearCounter(ctx, yearCounter); err != nil {
			return ReportNumber{}, err
		}
	}

	num = ReportNumber{
		ReportNo:       FormatReportNo(en.licenseNo, typeCumulative, year, yearSerial),
		TypeCumulative: typeCumulative,
		YearSerial:     yearSerial,
	}
	en.logger.Info("report number reserved manually", zap.String("report_no", num.ReportNo))
	return num, nil
}

// RewindDocumentCounter lowers the counter of the scope after its highest
// document was deleted. The counter only moves when it still covers the
// deleted serial; it is then set to the highest remaining active serial.
func (en *Engine) RewindDocumentCounter(ctx context.Context, store CounterStore, docType models.DocType, year, deletedSerial int) (err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.RewindDocumentCounter", trace.WithAttributes(
		attribute.String("doc_type", string(docType)),
		attribute.Int("year", year),
		attribute.Int("deleted_serial", deletedSerial),
	))
	defer func() { endSpan(span, err) }()

	counter, err := store.LockDocumentCounter(ctx, docType, year)
	if err != nil {
		return err
	}
	if counter.LastSerial < deletedSerial {
		return nil
	}
	remaining, err := store.MaxActiveDocumentSerial(ctx, docType, year)
	if err != nil {
		return err
	}
	en.logger.Info("document counter rewound",
		zap.String("doc_type", string(docType)),
		zap.Int("year", year),
		zap.Int("from", counter.LastSerial),
		zap.Int("to", remaining),
	)
	counter.LastSerial = remaining
	return store.SaveDocumentCounter(ctx, counter)
}

// RewindReportCounters applies the RewindDocumentCounter rule to the global
// and the per-year report counters.
func (en *Engine) RewindReportCounters(ctx context.Context, store CounterStore, year, deletedCumulative, deletedYearSerial int) (err error) {
	ctx, span := en.tracer.Start(ctx, "numbering.RewindReportCounters", trace.WithAttributes(
		attribute.Int("year", year),
		attribute.Int("deleted_cumulative", deletedCumulative),
		attribute.Int("deleted_year_serial", deletedYearSerial),
	))
	defer func() { endSpan(span, err) }()

	global, err := store.LockReportGlobalCounter(ctx)
	if err != nil {
		return err
	}
	yearCounter, err := store.LockReportYearCounter(ctx, year)
	if err != nil {
		return err
	}

	if global.LastSerial >= deletedCumulative {
		remaining, err := store.MaxActiveReportCumulative(ctx)
		if err != nil {
			return err
		}
		global.LastSerial = remaining
		if err := store.SaveReportGlobalCounter(ctx, global); err != nil {
			return err
		}
	}
	if yearCounter.LastSerial >= deletedYearSerial {
		remaining, err := store.MaxActiveReportYearSerial(ctx, year)
		if err != nil {
			return err
		}
		yearCounter.LastSerial = remaining
		if err := store.SaveReportYearCounter(ctx, yearCounter); err != nil {
			return err
		}
	}
	en.logger.Info("report counters rewound",
		zap.Int("year", year),
		zap.Int("cumulative", global.LastSerial),
		zap.Int("year_serial", yearCounter.LastSerial),
	)
	return nil
}

func validateDocumentScope(docType models.DocType, year int) error {
	if !docType.Valid() {
		return fmt.Errorf("%w: unknown document type %q", e.ErrInvalidInput, docType)
	}
	if year <= 0 {
		return fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
	}
	return nil
}

func validateReportScope(reportType models.ReportType, year int) error {
	if !reportType.Valid() {
		return fmt.Errorf("%w: unknown report type %q", e.ErrInvalidInput, reportType)
	}
	if year <= 0 {
		return fmt.Errorf("%w: year must be positive", e.ErrInvalidInput)
	}
	return nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
