package handlers

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/gartstein/ymm/internal/registry/controller"
	"github.com/gartstein/ymm/internal/registry/db"
	e "github.com/gartstein/ymm/internal/registry/errors"
	"github.com/gartstein/ymm/internal/registry/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

var validate = validator.New(validator.WithRequiredStructEnabled())

// customerRequest is the JSON body of customer create and update calls.
type customerRequest struct {
	Name          *string `json:"name" validate:"omitempty,max=255"`
	IdentityType  *string `json:"identity_type" validate:"omitempty,oneof=VKN TCKN"`
	TaxNo         *string `json:"tax_no" validate:"omitempty,len=0|len=10"`
	NationalID    *string `json:"national_id" validate:"omitempty,len=0|len=11"`
	TaxOffice     *string `json:"tax_office" validate:"omitempty,max=255"`
	Address       *string `json:"address"`
	Phone         *string `json:"phone" validate:"omitempty,max=64"`
	Email         *string `json:"email" validate:"omitempty,len=0|email"`
	ContactPerson *string `json:"contact_person" validate:"omitempty,max=255"`
	ContactEmail  *string `json:"contact_email" validate:"omitempty,len=0|email"`
	ContactPhone  *string `json:"contact_phone" validate:"omitempty,max=64"`
	CardNote      *string `json:"card_note"`
}

// recordRequest holds the fields documents and reports share.
type recordRequest struct {
	CustomerID        *string `json:"customer_id" validate:"omitempty,uuid"`
	ContractID        *string `json:"contract_id" validate:"omitempty,uuid"`
	Year              *int    `json:"year" validate:"omitempty,min=1"`
	ReceivedDate      *string `json:"received_date" validate:"omitempty,datetime=2006-01-02"`
	Direction         *string `json:"direction" validate:"omitempty,oneof=GELEN GIDEN DAHILI"`
	ReferenceNo       *string `json:"reference_no" validate:"omitempty,max=64"`
	Sender            *string `json:"sender" validate:"omitempty,max=255"`
	Recipient         *string `json:"recipient" validate:"omitempty,max=255"`
	Subject           *string `json:"subject" validate:"omitempty,max=255"`
	Description       *string `json:"description"`
	DeliveryMethod    *string `json:"delivery_method" validate:"omitempty,len=0|oneof=KARGO EPOSTA ELDEN EBYS DIGER"`
	DeliveryKargoName *string `json:"delivery_kargo_name" validate:"omitempty,max=255"`
	DeliveryOtherDesc *string `json:"delivery_other_desc" validate:"omitempty,max=255"`
	DeliveryEmail     *string `json:"delivery_email" validate:"omitempty,len=0|email"`
	CardNote          *string `json:"card_note"`
	// Unlink clears the contract on update.
	Unlink bool `json:"unlink_contract"`
}

type documentRequest struct {
	recordRequest
	DocType *string `json:"doc_type" validate:"omitempty,oneof=GLE GDE KIT DGR"`
	Serial  *int    `json:"serial" validate:"omitempty,min=0"`
	DocNo   *string `json:"doc_no"`
}

type periodRequest struct {
	PeriodStartMonth *int `json:"period_start_month" validate:"omitempty,min=1,max=12"`
	PeriodStartYear  *int `json:"period_start_year" validate:"omitempty,min=1"`
	PeriodEndMonth   *int `json:"period_end_month" validate:"omitempty,min=1,max=12"`
	PeriodEndYear    *int `json:"period_end_year" validate:"omitempty,min=1"`
}

type reportRequest struct {
	recordRequest
	periodRequest
	ReportType     *string `json:"report_type" validate:"omitempty,oneof=TT KDV OAR DGR"`
	TypeCumulative *int    `json:"type_cumulative" validate:"omitempty,min=0"`
	YearSerialAll  *int    `json:"year_serial_all" validate:"omitempty,min=0"`
	ReportNo       *string `json:"report_no"`
}

type contractRequest struct {
	periodRequest
	CustomerID   *string `json:"customer_id" validate:"omitempty,uuid"`
	ContractNo   *string `json:"contract_no" validate:"omitempty,max=64"`
	ContractDate *string `json:"contract_date" validate:"omitempty,datetime=2006-01-02"`
	ContractType *string `json:"contract_type" validate:"omitempty,max=64"`
	CardNote     *string `json:"card_note"`
}

type counterRequest struct {
	Kind       string `json:"kind" validate:"required,oneof=document report_year report_global"`
	DocType    string `json:"doc_type" validate:"omitempty,oneof=GLE GDE KIT DGR"`
	Year       int    `json:"year" validate:"min=0"`
	LastSerial *int   `json:"last_serial" validate:"required,min=0"`
}

type yearLockRequest struct {
	Year   int  `json:"year" validate:"required,min=1"`
	Locked bool `json:"locked"`
}

type settingsRequest struct {
	WorkingYear   *int `json:"working_year" validate:"omitempty,min=1"`
	ReferenceYear *int `json:"reference_year" validate:"omitempty,min=1"`
}

// counterView is one row of the counter listing.
type counterView struct {
	Kind       string `json:"kind"`
	DocType    string `json:"doc_type,omitempty"`
	ReportType string `json:"report_type,omitempty"`
	Year       int    `json:"year,omitempty"`
	LastSerial int    `json:"last_serial"`
}

// validateRequest runs the struct tags of req and reports failures as invalid input.
func validateRequest(req interface{}) error {
	if err := validate.Struct(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			f := verrs[0]
			return fmt.Errorf("%w: field %s failed %q", e.ErrInvalidInput, f.Field(), f.Tag())
		}
		return fmt.Errorf("%w: %v", e.ErrInvalidInput, err)
	}
	return nil
}

func parseID(raw string, what string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid %s id %q", e.ErrInvalidInput, what, raw)
	}
	return id, nil
}

func optionalID(raw *string) *uuid.UUID {
	if raw == nil || *raw == "" {
		return nil
	}
	id := uuid.MustParse(*raw)
	return &id
}

func parseDate(raw *string) (*time.Time, error) {
	if raw == nil || *raw == "" {
		return nil, nil
	}
	d, err := time.Parse(dateLayout, *raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid date %q", e.ErrInvalidInput, *raw)
	}
	return &d, nil
}

func str(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func num(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func (r *customerRequest) toModel() *models.Customer {
	return &models.Customer{
		Name:          str(r.Name),
		IdentityType:  models.IdentityType(str(r.IdentityType)),
		TaxNo:         r.TaxNo,
		NationalID:    r.NationalID,
		TaxOffice:     str(r.TaxOffice),
		Address:       str(r.Address),
		Phone:         str(r.Phone),
		Email:         str(r.Email),
		ContactPerson: str(r.ContactPerson),
		ContactEmail:  str(r.ContactEmail),
		ContactPhone:  str(r.ContactPhone),
		CardNote:      str(r.CardNote),
	}
}

func (r *customerRequest) toUpdate(id uuid.UUID) *models.CustomerUpdate {
	update := &models.CustomerUpdate{
		ID:            id,
		Name:          r.Name,
		TaxNo:         r.TaxNo,
		NationalID:    r.NationalID,
		TaxOffice:     r.TaxOffice,
		Address:       r.Address,
		Phone:         r.Phone,
		Email:         r.Email,
		ContactPerson: r.ContactPerson,
		ContactEmail:  r.ContactEmail,
		ContactPhone:  r.ContactPhone,
		CardNote:      r.CardNote,
	}
	if r.IdentityType != nil {
		it := models.IdentityType(*r.IdentityType)
		update.IdentityType = &it
	}
	return update
}

// received resolves the received date and the year of a new record. The
// year defaults to the year of the received date.
func (r *recordRequest) received() (time.Time, int, error) {
	if r.ReceivedDate == nil || r.CustomerID == nil {
		return time.Time{}, 0, fmt.Errorf("%w: customer_id and received_date are required", e.ErrInvalidInput)
	}
	d, err := parseDate(r.ReceivedDate)
	if err != nil {
		return time.Time{}, 0, err
	}
	year := d.Year()
	if r.Year != nil {
		year = *r.Year
	}
	return *d, year, nil
}

// contractLink returns the contract pointer of an update: nil leaves the
// link alone and uuid.Nil clears it.
func (r *recordRequest) contractLink() *uuid.UUID {
	if r.Unlink {
		nilID := uuid.Nil
		return &nilID
	}
	return optionalID(r.ContractID)
}

func (r *documentRequest) toModel() (*models.Document, error) {
	if r.DocType == nil {
		return nil, fmt.Errorf("%w: doc_type is required", e.ErrInvalidInput)
	}
	received, year, err := r.received()
	if err != nil {
		return nil, err
	}
	direction := models.Direction(str(r.Direction))
	return &models.Document{
		CustomerID:        uuid.MustParse(*r.CustomerID),
		ContractID:        optionalID(r.ContractID),
		DocType:           models.DocType(*r.DocType),
		Year:              year,
		Serial:            num(r.Serial),
		Direction:         direction,
		ReceivedDate:      received,
		ReferenceNo:       str(r.ReferenceNo),
		Sender:            str(r.Sender),
		Recipient:         str(r.Recipient),
		Subject:           str(r.Subject),
		Description:       str(r.Description),
		DeliveryMethod:    models.DeliveryMethod(str(r.DeliveryMethod)),
		DeliveryKargoName: str(r.DeliveryKargoName),
		DeliveryOtherDesc: str(r.DeliveryOtherDesc),
		DeliveryEmail:     str(r.DeliveryEmail),
		CardNote:          str(r.CardNote),
	}, nil
}

func (r *documentRequest) toUpdate(id uuid.UUID) (*models.DocumentUpdate, error) {
	received, err := parseDate(r.ReceivedDate)
	if err != nil {
		return nil, err
	}
	update := &models.DocumentUpdate{
		ID:                id,
		CustomerID:        optionalID(r.CustomerID),
		ContractID:        r.contractLink(),
		ReferenceNo:       r.ReferenceNo,
		Sender:            r.Sender,
		Recipient:         r.Recipient,
		Subject:           r.Subject,
		Description:       r.Description,
		DeliveryKargoName: r.DeliveryKargoName,
		DeliveryOtherDesc: r.DeliveryOtherDesc,
		DeliveryEmail:     r.DeliveryEmail,
		CardNote:          r.CardNote,
		Year:              r.Year,
		Serial:            r.Serial,
		DocNo:             r.DocNo,
		ReceivedDate:      received,
	}
	if r.Direction != nil {
		d := models.Direction(*r.Direction)
		update.Direction = &d
	}
	if r.DeliveryMethod != nil {
		m := models.DeliveryMethod(*r.DeliveryMethod)
		update.DeliveryMethod = &m
	}
	if r.DocType != nil {
		t := models.DocType(*r.DocType)
		update.DocType = &t
	}
	return update, nil
}

func (r *reportRequest) toModel() (*models.Report, error) {
	if r.ReportType == nil {
		return nil, fmt.Errorf("%w: report_type is required", e.ErrInvalidInput)
	}
	received, year, err := r.received()
	if err != nil {
		return nil, err
	}
	return &models.Report{
		CustomerID:        uuid.MustParse(*r.CustomerID),
		ContractID:        optionalID(r.ContractID),
		ReportType:        models.ReportType(*r.ReportType),
		Year:              year,
		TypeCumulative:    num(r.TypeCumulative),
		YearSerialAll:     num(r.YearSerialAll),
		Direction:         models.Direction(str(r.Direction)),
		ReceivedDate:      received,
		ReferenceNo:       str(r.ReferenceNo),
		Sender:            str(r.Sender),
		Recipient:         str(r.Recipient),
		Subject:           str(r.Subject),
		Description:       str(r.Description),
		DeliveryMethod:    models.DeliveryMethod(str(r.DeliveryMethod)),
		DeliveryKargoName: str(r.DeliveryKargoName),
		DeliveryOtherDesc: str(r.DeliveryOtherDesc),
		DeliveryEmail:     str(r.DeliveryEmail),
		PeriodStartMonth:  r.PeriodStartMonth,
		PeriodStartYear:   r.PeriodStartYear,
		PeriodEndMonth:    r.PeriodEndMonth,
		PeriodEndYear:     r.PeriodEndYear,
		CardNote:          str(r.CardNote),
	}, nil
}

func (r *reportRequest) toUpdate(id uuid.UUID) (*models.ReportUpdate, error) {
	received, err := parseDate(r.ReceivedDate)
	if err != nil {
		return nil, err
	}
	update := &models.ReportUpdate{
		ID:                id,
		CustomerID:        optionalID(r.CustomerID),
		ContractID:        r.contractLink(),
		ReferenceNo:       r.ReferenceNo,
		Sender:            r.Sender,
		Recipient:         r.Recipient,
		Subject:           r.Subject,
		Description:       r.Description,
		DeliveryKargoName: r.DeliveryKargoName,
		DeliveryOtherDesc: r.DeliveryOtherDesc,
		DeliveryEmail:     r.DeliveryEmail,
		PeriodStartMonth:  r.PeriodStartMonth,
		PeriodStartYear:   r.PeriodStartYear,
		PeriodEndMonth:    r.PeriodEndMonth,
		PeriodEndYear:     r.PeriodEndYear,
		CardNote:          r.CardNote,
		Year:              r.Year,
		TypeCumulative:    r.TypeCumulative,
		YearSerialAll:     r.YearSerialAll,
		ReportNo:          r.ReportNo,
		ReceivedDate:      received,
	}
	if r.Direction != nil {
		d := models.Direction(*r.Direction)
		update.Direction = &d
	}
	if r.DeliveryMethod != nil {
		m := models.DeliveryMethod(*r.DeliveryMethod)
		update.DeliveryMethod = &m
	}
	if r.ReportType != nil {
		t := models.ReportType(*r.ReportType)
		update.ReportType = &t
	}
	return update, nil
}

func (r *contractRequest) toModel() (*models.Contract, error) {
	if r.CustomerID == nil {
		return nil, fmt.Errorf("%w: customer_id is required", e.ErrInvalidInput)
	}
	date, err := parseDate(r.ContractDate)
	if err != nil {
		return nil, err
	}
	return &models.Contract{
		CustomerID:       uuid.MustParse(*r.CustomerID),
		ContractNo:       str(r.ContractNo),
		ContractDate:     date,
		ContractType:     str(r.ContractType),
		PeriodStartMonth: r.PeriodStartMonth,
		PeriodStartYear:  r.PeriodStartYear,
		PeriodEndMonth:   r.PeriodEndMonth,
		PeriodEndYear:    r.PeriodEndYear,
		CardNote:         str(r.CardNote),
	}, nil
}

func (r *contractRequest) toUpdate(id uuid.UUID) (*models.ContractUpdate, error) {
	date, err := parseDate(r.ContractDate)
	if err != nil {
		return nil, err
	}
	return &models.ContractUpdate{
		ID:               id,
		ContractNo:       r.ContractNo,
		ContractDate:     date,
		ContractType:     r.ContractType,
		PeriodStartMonth: r.PeriodStartMonth,
		PeriodStartYear:  r.PeriodStartYear,
		PeriodEndMonth:   r.PeriodEndMonth,
		PeriodEndYear:    r.PeriodEndYear,
		CardNote:         r.CardNote,
	}, nil
}

func (r *counterRequest) toAdjustment() controller.CounterAdjustment {
	return controller.CounterAdjustment{
		Kind:       controller.CounterKind(r.Kind),
		DocType:    models.DocType(r.DocType),
		Year:       r.Year,
		LastSerial: *r.LastSerial,
	}
}

func (r *settingsRequest) toUpdate() controller.SettingsUpdate {
	return controller.SettingsUpdate{
		WorkingYear:   r.WorkingYear,
		ReferenceYear: r.ReferenceYear,
	}
}

// snapshotToViews flattens a counter snapshot: the global report counter
// first, then per-year report counters, document counters and legacy rows.
func snapshotToViews(snap *db.CounterSnapshot) []counterView {
	views := make([]counterView, 0, 1+len(snap.Years)+len(snap.Documents)+len(snap.Legacy))
	views = append(views, counterView{
		Kind:       string(controller.CounterReportGlobal),
		LastSerial: snap.Global.LastSerial,
	})
	for _, c := range snap.Years {
		views = append(views, counterView{
			Kind:       string(controller.CounterReportYear),
			Year:       c.Year,
			LastSerial: c.LastSerial,
		})
	}
	for _, c := range snap.Documents {
		views = append(views, counterView{
			Kind:       string(controller.CounterDocument),
			DocType:    c.DocType,
			Year:       c.Year,
			LastSerial: c.LastSerial,
		})
	}
	for _, c := range snap.Legacy {
		views = append(views, counterView{
			Kind:       "report_type_legacy",
			ReportType: c.ReportType,
			LastSerial: c.LastSerial,
		})
	}
	return views
}

// listQuery is the common query string of list endpoints.
type listQuery struct {
	CustomerID      string `validate:"omitempty,uuid"`
	ContractID      string `validate:"omitempty,uuid"`
	Type            string `validate:"omitempty,alpha,max=3"`
	Status          string `validate:"omitempty,oneof=OPEN DONE"`
	Search          string `validate:"max=255"`
	Model           string `validate:"max=128"`
	ObjectID        string `validate:"max=64"`
	Year            int    `validate:"min=0"`
	IncludeArchived bool
	Limit           int `validate:"min=0,max=500"`
	Offset          int `validate:"min=0"`
}

func parseListQuery(values url.Values) (*listQuery, error) {
	q := &listQuery{
		CustomerID: values.Get("customer_id"),
		ContractID: values.Get("contract_id"),
		Type:       values.Get("type"),
		Status:     values.Get("status"),
		Search:     values.Get("search"),
		Model:      values.Get("model"),
		ObjectID:   values.Get("object_id"),
	}
	ints := []struct {
		key string
		dst *int
	}{
		{"year", &q.Year},
		{"limit", &q.Limit},
		{"offset", &q.Offset},
	}
	for _, p := range ints {
		raw := values.Get(p.key)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be a number", e.ErrInvalidInput, p.key)
		}
		*p.dst = v
	}
	if raw := values.Get("include_archived"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: include_archived must be a boolean", e.ErrInvalidInput)
		}
		q.IncludeArchived = v
	}
	if err := validateRequest(q); err != nil {
		return nil, err
	}
	return q, nil
}

func (q *listQuery) customerID() *uuid.UUID { return optionalID(&q.CustomerID) }

func (q *listQuery) contractID() *uuid.UUID { return optionalID(&q.ContractID) }
