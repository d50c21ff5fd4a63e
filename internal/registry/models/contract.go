package models

import (
	"time"

	"github.com/google/uuid"
)

// Contract is an engagement with a customer. Status is maintained by the
// registry: DONE while at least one non-archived report is linked, OPEN otherwise.
type Contract struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	CustomerID       uuid.UUID      `json:"customer_id" gorm:"type:uuid;not null;index"`
	ContractNo       string         `json:"contract_no" gorm:"size:64"`
	ContractDate     *time.Time     `json:"contract_date,omitempty" gorm:"type:date"`
	ContractType     string         `json:"contract_type" gorm:"size:64"`
	PeriodStartMonth *int           `json:"period_start_month,omitempty"`
	PeriodStartYear  *int           `json:"period_start_year,omitempty"`
	PeriodEndMonth   *int           `json:"period_end_month,omitempty"`
	PeriodEndYear    *int           `json:"period_end_year,omitempty"`
	Status           ContractStatus `json:"status" gorm:"size:8;not null;default:OPEN;index"`
	CardNote         string         `json:"card_note"`
	Audit
}

// ContractUpdate holds the fields that may change on a contract. Status is
// absent on purpose: it is derived from linked reports.
type ContractUpdate struct {
	ID               uuid.UUID
	ContractNo       *string
	ContractDate     *time.Time
	ContractType     *string
	PeriodStartMonth *int
	PeriodStartYear  *int
	PeriodEndMonth   *int
	PeriodEndYear    *int
	CardNote         *string
}

// ContractFilter narrows a contract listing.
type ContractFilter struct {
	CustomerID      *uuid.UUID
	Status          ContractStatus
	IncludeArchived bool
	Limit           int
	Offset          int
}
