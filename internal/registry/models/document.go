package models

import (
	"time"

	"github.com/google/uuid"
)

// Document is a piece of correspondence numbered per (doc_type, year).
type Document struct {
	ID                uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CustomerID        uuid.UUID      `json:"customer_id" gorm:"type:uuid;not null;index"`
	ContractID        *uuid.UUID     `json:"contract_id,omitempty" gorm:"type:uuid;index"`
	DocType           DocType        `json:"doc_type" gorm:"size:3;not null;uniqueIndex:uq_documents_scope,priority:1"`
	Year              int            `json:"year" gorm:"not null;uniqueIndex:uq_documents_scope,priority:2"`
	Serial            int            `json:"serial" gorm:"not null;uniqueIndex:uq_documents_scope,priority:3"`
	DocNo             string         `json:"doc_no" gorm:"size:64;not null;uniqueIndex"`
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
	CardNote          string         `json:"card_note"`
	ManuallyNumbered  bool           `json:"manually_numbered" gorm:"not null;default:false"`
	Audit
}

// DocumentUpdate holds the mutable fields of a document. The numbering
// fields are carried only so that attempts to change them can be rejected.
type DocumentUpdate struct {
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
	CardNote          *string

	DocType      *DocType
	Year         *int
	Serial       *int
	DocNo        *string
	ReceivedDate *time.Time
}

// DocumentFilter narrows a document listing.
type DocumentFilter struct {
	CustomerID      *uuid.UUID
	ContractID      *uuid.UUID
	DocType         DocType
	Year            int
	IncludeArchived bool
	Limit           int
	Offset          int
}
