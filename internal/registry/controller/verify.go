package controller

import (
	"context"
	"fmt"

	"github.com/gartstein/ymm/internal/registry/db"
	"github.com/gartstein/ymm/internal/registry/numbering"
	"go.uber.org/zap"
)

// IssueKind classifies a numbering inconsistency found by VerifySequences.
type IssueKind string

const (
	IssueGap           IssueKind = "gap"
	IssueCounterBehind IssueKind = "counter_behind"
	IssueFormat        IssueKind = "format"
)

// SequenceIssue is one inconsistency in a numbering scope.
type SequenceIssue struct {
	Kind   IssueKind `json:"kind"`
	Scope  string    `json:"scope"`
	Detail string    `json:"detail"`
}

// VerifyResult summarizes a verification run. OK is true when no issue was found.
type VerifyResult struct {
	Scopes int             `json:"scopes"`
	Issues []SequenceIssue `json:"issues"`
	OK     bool            `json:"ok"`
}

// VerifySequences checks that every numbering scope is gapless, that every
// counter covers the highest serial present and that stored numbers match
// their columns. A zero year checks all years. It reads one consistent
// snapshot and changes nothing.
func (s *Service) VerifySequences(ctx context.Context, year int) (*VerifyResult, error) {
	result := &VerifyResult{}
	err := s.repo.WithTransaction(ctx, func(tx *db.Repository) error {
		snap, err := tx.ListCounters(ctx, year)
		if err != nil {
			return err
		}
		if err := s.verifyDocuments(ctx, tx, year, snap, result); err != nil {
			return err
		}
		return s.verifyReports(ctx, tx, year, snap, result)
	})
	if err != nil {
		return nil, wrap("failed to verify sequences", err)
	}

	result.OK = len(result.Issues) == 0
	if !result.OK {
		s.logger.Warn("numbering inconsistencies found",
			zap.Int("year", year),
			zap.Int("issues", len(result.Issues)),
		)
	}
	return result, nil
}

func (s *Service) verifyDocuments(ctx context.Context, tx *db.Repository, year int, snap *db.CounterSnapshot, result *VerifyResult) error {
	counters := make(map[string]int, len(snap.Documents))
	for _, c := range snap.Documents {
		counters[fmt.Sprintf("%s/%d", c.DocType, c.Year)] = c.LastSerial
	}

	scopes, err := tx.DocumentScopes(ctx, year)
	if err != nil {
		return err
	}
	for _, sc := range scopes {
		name := fmt.Sprintf("%s/%d", sc.DocType, sc.Year)
		serials, err := tx.DocumentSerials(ctx, sc.DocType, sc.Year, false)
		if err != nil {
			return err
		}
		result.Scopes++
		result.Issues = append(result.Issues, gaps(name, serials)...)
		if top := last(serials); counters[name] < top {
			result.Issues = append(result.Issues, SequenceIssue{
				Kind:   IssueCounterBehind,
				Scope:  name,
				Detail: fmt.Sprintf("counter %d is below serial %d", counters[name], top),
			})
		}
	}

	rows, err := tx.DocumentNumbers(ctx, year)
	if err != nil {
		return err
	}
	for _, row := range rows {
		want := numbering.FormatDocumentNo(s.engine.LicenseNo(), row.DocType, row.Year, row.Serial)
		if _, err := numbering.ParseDocumentNo(row.DocNo); err != nil || row.DocNo != want {
			result.Issues = append(result.Issues, SequenceIssue{
				Kind:   IssueFormat,
				Scope:  fmt.Sprintf("%s/%d", row.DocType, row.Year),
				Detail: fmt.Sprintf("%q should be %q", row.DocNo, want),
			})
		}
	}
	return nil
}

func (s *Service) verifyReports(ctx context.Context, tx *db.Repository, year int, snap *db.CounterSnapshot, result *VerifyResult) error {
	counters := make(map[int]int, len(snap.Years))
	for _, c := range snap.Years {
		counters[c.Year] = c.LastSerial
	}

	years, err := tx.ReportYears(ctx)
	if err != nil {
		return err
	}
	for _, y := range years {
		if year > 0 && y != year {
			continue
		}
		name := fmt.Sprintf("reports/%d", y)
		serials, err := tx.ReportYearSerials(ctx, y, false)
		if err != nil {
			return err
		}
		result.Scopes++
		result.Issues = append(result.Issues, gaps(name, serials)...)
		if top := last(serials); counters[y] < top {
			result.Issues = append(result.Issues, SequenceIssue{
				Kind:   IssueCounterBehind,
				Scope:  name,
				Detail: fmt.Sprintf("counter %d is below serial %d", counters[y], top),
			})
		}
	}

	cumulatives, err := tx.ReportCumulatives(ctx, false)
	if err != nil {
		return err
	}
	if len(cumulatives) > 0 {
		result.Scopes++
		result.Issues = append(result.Issues, gaps("reports/cumulative", cumulatives)...)
		if top := last(cumulatives); snap.Global.LastSerial < top {
			result.Issues = append(result.Issues, SequenceIssue{
				Kind:   IssueCounterBehind,
				Scope:  "reports/cumulative",
				Detail: fmt.Sprintf("counter %d is below serial %d", snap.Global.LastSerial, top),
			})
		}
	}

	rows, err := tx.ReportNumbers(ctx, year)
	if err != nil {
		return err
	}
	for _, row := range rows {
		want := numbering.FormatReportNo(s.engine.LicenseNo(), row.TypeCumulative, row.Year, row.YearSerialAll)
		if _, err := numbering.ParseReportNo(row.ReportNo); err != nil || row.ReportNo != want {
			result.Issues = append(result.Issues, SequenceIssue{
				Kind:   IssueFormat,
				Scope:  fmt.Sprintf("reports/%d", row.Year),
				Detail: fmt.Sprintf("%q should be %q", row.ReportNo, want),
			})
		}
	}
	return nil
}

// gaps reports every missing serial between 1 and the highest one present.
// serials must be sorted ascending.
func gaps(scope string, serials []int) []SequenceIssue {
	var issues []SequenceIssue
	next := 1
	for _, n := range serials {
		if n > next {
			detail := fmt.Sprintf("serial %d is missing", next)
			if n-next > 1 {
				detail = fmt.Sprintf("serials %d-%d are missing", next, n-1)
			}
			issues = append(issues, SequenceIssue{Kind: IssueGap, Scope: scope, Detail: detail})
		}
		if n >= next {
			next = n + 1
		}
	}
	return issues
}

func last(serials []int) int {
	if len(serials) == 0 {
		return 0
	}
	return serials[len(serials)-1]
}
