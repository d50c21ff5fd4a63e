package models

import (
	"time"

	"github.com/google/uuid"
)

// Report is a formal report numbered by an all-time cumulative serial and a
// per-year serial shared by every report type.
type Report struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CustomerID        uuid.UUID      `json:"customer_id" gorm:"type:uuid;not null;index"`
	ContractID        *uuid.UUID     `json:"contract_id,omitempty" gorm:"type:uuid;index"`
	ReportType        ReportType     `json:"report_type" gorm:"size:3;not null"`
	Year              int            `json:"year" gorm:"not null;uniqueIndex:uq_reports_year_serial,priority:1"`
	TypeCumulative    int            `json:"type_cumulative" gorm:"not null;uniqueIndex"`
	YearSerialAll     int            `json:"year_serial_all" gorm:"not null;uniqueIndex:uq_reports_year_serial,priority:2"`
	ReportNo          string         `json:"report_no" gorm:"size:64;not null;uniqueIndex"`
	Direction         Direction      `json:"direction" gorm:"size:8;not null;default:GELEN"`
	ReceivedDate      time.Time      `json:"received_date" gorm:"type:date;not null"`
	ReferenceNo       string         `json:"reference_no" gorm:"size:64"`
	Sender            string         `json:"sender" gorm:"size:255"`
	Recipient         string         `json:"recipient" gorm:"size:255"`
	Subject           string         `json:"subject" gorm:"size:255"`
	Description       string         `json:"description"`
	DeliveryMethod    DeliveryMethod `json:"delivery_method" gorm:"size:16"`
	DeliveryKargoName string         `json:"delivery_kargo_name" gorm:"size:255"`
	DeliveryOtherDesc string         `json:"delivery_other_desc" gorm:"size:255"`
	DeliveryEmail     string         `json:"delivery_email" gorm:"size:254"`
	PeriodStartMonth  *int           `json:"period_start_month,omitempty"`
	PeriodStartYear   *int           `json:"period_start_year,omitempty"`
	PeriodEndMonth    *int           `json:"period_end_month,omitempty"`
	PeriodEndYear     *int           `json:"period_end_year,omitempty"`
	CardNote          string         `json:"card_note"`
	ManuallyNumbered  bool           `json:"manually_numbered" gorm:"not null;default:false"`
	Audit
}

// ReportUpdate holds the mutable fields of a report. The numbering fields
// are carried only so that attempts to change them can be rejected.
type ReportUpdate struct {
	ID                uuid.UUID
	CustomerID        *uuid.UUID
	ContractID        *uuid.UUID // uuid.Nil unlinks
	Direction         *Direction
	ReferenceNo       *string
	Sender            *string
	Recipient         *string
	Subject           *string
	Description       *string
	DeliveryMethod    *DeliveryMethod
	DeliveryKargoName *string
	DeliveryOtherDesc *string
	DeliveryEmail     *string
	PeriodStartMonth  *int
	PeriodStartYear   *int
	PeriodEndMonth    *int
	PeriodEndYear     *int
	CardNote          *string

	ReportType     *ReportType
	Year           *int
	TypeCumulative *int
	YearSerialAll  *int
	ReportNo       *string
	ReceivedDate   *time.Time
}

// ReportFilter narrows a report listing.
type ReportFilter struct {
	CustomerID      *uuid.UUID
	ContractID      *uuid.UUID
	ReportType      ReportType
	Year            int
	IncludeArchived bool
	Limit           int
	Offset          int
}
