package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records moderation and group-administration actions.
type AuditLog struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID      string         `gorm:"index:idx_audit_trace;size:64" json:"trace_id"`
	ActorID      int64          `gorm:"index:idx_audit_actor;not null" json:"actor_id"`
	Action       string         `gorm:"size:64;not null" json:"action"`
	TargetUserID *int64         `gorm:"index:idx_audit_target" json:"target_user_id"`
	GroupID      *int64         `json:"group_id"`
	Detail       datatypes.JSON `json:"detail"`
	Error        string         `gorm:"type:text" json:"error"`
	CreatedAt    time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
