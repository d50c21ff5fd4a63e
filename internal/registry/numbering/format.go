// Package numbering issues the official document and report numbers of the
// office. Numbers are gapless per scope: every assignment runs inside the
// caller's transaction while the scope's counter row is locked.
package numbering

import (
	"fmt"
	"regexp"
	"strconv"

	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
)

// DefaultLicenseNo is the office licence number embedded in every number.
const DefaultLicenseNo = "06105087"

var (
	documentNoPattern = regexp.MustCompile(`^YMM-(\d+)/([A-Z]{3})/(\d{4})-(\d{3,})$`)
	reportNoPattern   = regexp.MustCompile(`^YMM-(\d+)-(\d+)/(\d{4})-(\d{3,})$`)
)

// DocumentNumber is an issued document number and its serial.
type DocumentNumber struct {
	DocNo  string
	Serial int
}

// ReportNumber is an issued report number with both of its serials.
type ReportNumber struct {
	ReportNo       string
	TypeCumulative int
	YearSerial     int
}

// FormatDocumentNo renders YMM-<licence>/<doc_type>/<year>-<serial:03d>.
func FormatDocumentNo(licenseNo string, docType models.DocType, year, serial int) string {
	return fmt.Sprintf("YMM-%s/%s/%d-%03d", licenseNo, docType, year, serial)
}

// FormatReportNo renders YMM-<licence>-<cumulative>/<year>-<year_serial:03d>.
func FormatReportNo(licenseNo string, typeCumulative, year, yearSerial int) string {
	return fmt.Sprintf("YMM-%s-%d/%d-%03d", licenseNo, typeCumulative, year, yearSerial)
}

// ParsedDocumentNo is the decomposition of a document number.
type ParsedDocumentNo struct {
	LicenseNo string
	DocType   models.DocType
	Year      int
	Serial    int
}

func ParseDocumentNo(s string) (*ParsedDocumentNo, error) {
	m := documentNoPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: malformed document number %q", e.ErrInvalidInput, s)
	}
	docType := models.DocType(m[2])
	if !docType.Valid() {
		return nil, fmt.Errorf("%w: unknown document type in %q", e.ErrInvalidInput, s)
	}
	year, _ := strconv.Atoi(m[3])
	serial, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("%w: serial out of range in %q", e.ErrInvalidInput, s)
	}
	return &ParsedDocumentNo{LicenseNo: m[1], DocType: docType, Year: year, Serial: serial}, nil
}

// ParsedReportNo is the decomposition of a report number.
type ParsedReportNo struct {
	LicenseNo      string
	TypeCumulative int
	Year           int
	YearSerial     int
}

func ParseReportNo(s string) (*ParsedReportNo, error) {
	m := reportNoPattern.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("%w: malformed report number %q", e.ErrInvalidInput, s)
	}
	cumulative, err := strconv.Atoi(m[2])
	if err != nil {
		return nil, fmt.Errorf("%w: cumulative out of range in %q", e.ErrInvalidInput, s)
	}
	year, _ := strconv.Atoi(m[3])
	yearSerial, err := strconv.Atoi(m[4])
	if err != nil {
		return nil, fmt.Errorf("%w: serial out of range in %q", e.ErrInvalidInput, s)
	}
	return &ParsedReportNo{LicenseNo: m[1], TypeCumulative: cumulative, Year: year, YearSerial: yearSerial}, nil
}
