package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records one calculator mutation.
type AuditLog struct {
	ID         int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID    string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	SessionID  string         `gorm:"index:idx_audit_session;size:36;not null" json:"session_id"`
	Action     string         `gorm:"size:64;not null" json:"action"`
	Version    uint64         `json:"version"`
	Detail     datatypes.JSON `json:"detail"`
	Outcome    string         `gorm:"size:16" json:"outcome"`
	Difference float64        `json:"difference"`
	Error      string         `gorm:"type:text" json:"error"`
	IP         string         `gorm:"size:45" json:"ip"`
	CreatedAt  time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
