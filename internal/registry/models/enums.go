// Package models defines the domain records of the registry: customers,
// documents, reports, contracts, year locks, settings and audit rows.
// The structs double as GORM models.
package models

// DocType is the category of a document and part of its numbering scope.
type DocType string

const (
	DocTypeGLE DocType = "GLE"
	DocTypeGDE DocType = "GDE"
	DocTypeKIT DocType = "KIT"
	DocTypeDGR DocType = "DGR"
)

// DocTypes lists the fixed document type enumeration in display order.
var DocTypes = []DocType{DocTypeGLE, DocTypeGDE, DocTypeKIT, DocTypeDGR}

func (t DocType) Valid() bool {
	switch t {
	case DocTypeGLE, DocTypeGDE, DocTypeKIT, DocTypeDGR:
		return true
	}
	return false
}

// ReportType is the category of a report. It does not partition report numbering.
type ReportType string

const (
	ReportTypeTT  ReportType = "TT"
	ReportTypeKDV ReportType = "KDV"
	ReportTypeOAR ReportType = "OAR"
	ReportTypeDGR ReportType = "DGR"
)

// ReportTypes lists the fixed report type enumeration in display order.
var ReportTypes = []ReportType{ReportTypeTT, ReportTypeKDV, ReportTypeOAR, ReportTypeDGR}

func (t ReportType) Valid() bool {
	switch t {
	case ReportTypeTT, ReportTypeKDV, ReportTypeOAR, ReportTypeDGR:
		return true
	}
	return false
}

// Direction tells whether a record was received, sent or is internal.
type Direction string

const (
	DirectionIncoming Direction = "GELEN"
	DirectionOutgoing Direction = "GIDEN"
	DirectionInternal Direction = "DAHILI"
)

func (d Direction) Valid() bool {
	switch d {
	case DirectionIncoming, DirectionOutgoing, DirectionInternal:
		return true
	}
	return false
}

// DeliveryMethod is how a record was delivered. The empty value means unknown.
type DeliveryMethod string

const (
	DeliveryCargo   DeliveryMethod = "KARGO"
	DeliveryEmail   DeliveryMethod = "EPOSTA"
	DeliveryByHand  DeliveryMethod = "ELDEN"
	DeliveryEBYS    DeliveryMethod = "EBYS"
	DeliveryOther   DeliveryMethod = "DIGER"
	DeliveryUnknown DeliveryMethod = ""
)

func (m DeliveryMethod) Valid() bool {
	switch m {
	case DeliveryUnknown, DeliveryCargo, DeliveryEmail, DeliveryByHand, DeliveryEBYS, DeliveryOther:
		return true
	}
	return false
}

// IdentityType selects which identifier a customer carries.
type IdentityType string

const (
	// IdentityVKN is a 10 digit tax number.
	IdentityVKN IdentityType = "VKN"
	// IdentityTCKN is an 11 digit national identity number.
	IdentityTCKN IdentityType = "TCKN"
)

func (t IdentityType) Valid() bool {
	return t == IdentityVKN || t == IdentityTCKN
}

// ContractStatus is derived from the reports linked to a contract.
type ContractStatus string

const (
	ContractOpen ContractStatus = "OPEN"
	ContractDone ContractStatus = "DONE"
)
