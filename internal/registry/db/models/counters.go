// Package models contains the counter rows backing the numbering engine.
// They are persistence details and never leave the db and numbering layers.
package models

// GlobalCounterID is the primary key of the single ReportCounterGlobal row.
const GlobalCounterID = 1

// DocumentCounter holds the last serial issued for a (doc_type, year) scope.
type DocumentCounter struct {
	ID         uint   `gorm:"primaryKey"`
	DocType    string `gorm:"size:3;not null;uniqueIndex:uq_document_counter_scope,priority:1"`
	Year       int    `gorm:"not null;uniqueIndex:uq_document_counter_scope,priority:2"`
	LastSerial int    `gorm:"not null;default:0;check:last_serial >= 0"`
}

// ReportCounterYearAll holds the last per-year report serial, shared by all report types.
type ReportCounterYearAll struct {
	ID         uint `gorm:"primaryKey"`
	Year       int  `gorm:"not null;uniqueIndex"`
	LastSerial int  `gorm:"not null;default:0;check:last_serial >= 0"`
}

func (ReportCounterYearAll) TableName() string {
	return "report_counter_year_all"
}

// ReportCounterGlobal holds the all-time cumulative report serial.
type ReportCounterGlobal struct {
	ID         uint `gorm:"primaryKey;autoIncrement:false"`
	LastSerial int  `gorm:"not null;default:0;check:last_serial >= 0"`
}

func (ReportCounterGlobal) TableName() string {
	return "report_counter_global"
}

// ReportCounterTypeCum is the legacy per-type cumulative counter. It is kept
// for schema compatibility and reporting only; numbering never writes it.
type ReportCounterTypeCum struct {
	ID         uint   `gorm:"primaryKey"`
	ReportType string `gorm:"size:3;not null;uniqueIndex"`
	LastSerial int    `gorm:"not null;default:0"`
}

func (ReportCounterTypeCum) TableName() string {
	return "report_counter_type_cum"
}

// All returns the counter models for migration.
func All() []interface{} {
	return []interface{}{
		&DocumentCounter{},
		&ReportCounterYearAll{},
		&ReportCounterGlobal{},
		&ReportCounterTypeCum{},
	}
}
