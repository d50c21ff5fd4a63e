package models

import "time"

// SettingsID is the primary key of the single AppSetting row.
const SettingsID = 1

// AppSetting is the office-wide settings singleton. WorkingYear is the only
// year new auto-numbered records may be dated in.
type AppSetting struct {
	ID            uint      `json:"-" gorm:"primaryKey;autoIncrement:false"`
	WorkingYear   int       `json:"working_year" gorm:"not null"`
	ReferenceYear int       `json:"reference_year" gorm:"not null"`
	UpdatedBy     string    `json:"updated_by" gorm:"size:150"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// YearLock freezes all records and counters of a year while IsLocked is set.
type YearLock struct {
	Year     int        `json:"year" gorm:"primaryKey;autoIncrement:false"`
	IsLocked bool       `json:"is_locked" gorm:"not null;default:false"`
	LockedAt *time.Time `json:"locked_at,omitempty"`
	LockedBy *string    `json:"locked_by,omitempty" gorm:"size:150"`
}
