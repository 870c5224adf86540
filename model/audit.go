package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records progress mutations made through the API (source "api")
// and the coordinator events they produced (source "event").
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36;not null" json:"trace_id"`
	UserID     string         `gorm:"index:idx_audit_user;size:64" json:"user_id"`
	Source     string         `gorm:"size:16;not null;default:api" json:"source"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Subject    string         `gorm:"index:idx_audit_subject;size:64" json:"subject,omitempty"`
	Request    datatypes.JSON `json:"request,omitempty"`
	Response   datatypes.JSON `json:"response,omitempty"`
	Error      string         `gorm:"type:text" json:"error,omitempty"`
	IP         string         `gorm:"size:45" json:"ip,omitempty"`
	DurationMs int            `json:"duration_ms"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
