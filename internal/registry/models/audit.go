package models

import "time"

// Audit carries the bookkeeping columns shared by all user-editable records.
type Audit struct {
	CreatedBy  string    `json:"created_by" gorm:"size:150"`
	UpdatedBy  string    `json:"updated_by" gorm:"size:150"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	IsArchived bool      `json:"is_archived" gorm:"not null;default:false;index"`
}

// AuditAction names the kind of mutation an AuditLog row records.
type AuditAction string

const (
	ActionCreate  AuditAction = "create"
	ActionUpdate  AuditAction = "update"
	ActionArchive AuditAction = "archive"
	ActionDelete  AuditAction = "delete"
	ActionLock    AuditAction = "lock"
	ActionUnlock  AuditAction = "unlock"
	ActionAdjust  AuditAction = "adjust"
)

// AuditLog is an append-only trail row written in the same transaction as the mutation.
type AuditLog struct {
	ID        uint        `json:"id" gorm:"primaryKey"`
	Model     string      `json:"model" gorm:"size:128;not null;index:idx_audit_object,priority:1"`
	ObjectID  string      `json:"object_id" gorm:"size:64;not null;index:idx_audit_object,priority:2"`
	Action    AuditAction `json:"action" gorm:"size:32;not null"`
	Actor     string      `json:"actor" gorm:"size:150"`
	Timestamp time.Time   `json:"timestamp" gorm:"not null;index"`
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	Model    string
	ObjectID string
	Limit    int
}
