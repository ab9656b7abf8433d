package model

import "time"

const (
	ReportPending  = "pending"
	ReportApproved = "approved"
	ReportRejected = "rejected"
)

// Report is a complaint filed by one user against another.
type Report struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ReporterID int64     `gorm:"index:idx_report_reporter;not null" json:"reporter_id"`
	ReportedID int64     `gorm:"index:idx_report_reported;not null" json:"reported_id"`
	Reason     string    `gorm:"type:text;not null" json:"reason"`
	Status     string    `gorm:"size:16;default:'pending';index:idx_report_status;not null" json:"status"`
	AdminNotes string    `gorm:"type:text" json:"admin_notes"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}
