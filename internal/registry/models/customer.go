package models

import "github.com/google/uuid"

// Customer is a client of the office. Exactly one of TaxNo and NationalID is
// set, matching IdentityType.
type Customer struct {
	ID            uuid.UUID    `json:"id" gorm:"type:uuid;primaryKey"`
	Name          string       `json:"name" gorm:"size:255;not null"`
	IdentityType  IdentityType `json:"identity_type" gorm:"size:4;not null"`
	TaxNo         *string      `json:"tax_no,omitempty" gorm:"size:10;uniqueIndex"`
	NationalID    *string      `json:"national_id,omitempty" gorm:"size:11;uniqueIndex"`
	TaxOffice     string       `json:"tax_office" gorm:"size:255"`
	Address       string       `json:"address"`
	Phone         string       `json:"phone" gorm:"size:64"`
	Email         string       `json:"email" gorm:"size:254"`
	ContactPerson string       `json:"contact_person" gorm:"size:255"`
	ContactEmail  string       `json:"contact_email" gorm:"size:254"`
	ContactPhone  string       `json:"contact_phone" gorm:"size:64"`
	CardNote      string       `json:"card_note"`
	Audit
}

// CustomerUpdate holds the fields that may change on a customer.
// Pointer types are used to allow partial updates.
type CustomerUpdate struct {
	ID            uuid.UUID
	Name          *string
	IdentityType  *IdentityType
	TaxNo         *string
	NationalID    *string
	TaxOffice     *string
	Address       *string
	Phone         *string
	Email         *string
	ContactPerson *string
	ContactEmail  *string
	ContactPhone  *string
	CardNote      *string
}

// CustomerFilter narrows a customer listing.
type CustomerFilter struct {
	Search          string
	IncludeArchived bool
	Limit           int
	Offset          int
}
