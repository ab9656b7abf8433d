package model

import "time"

// Site-wide account roles.
const (
	RoleUser      = "user"
	RoleAdmin     = "admin"
	RoleTechAdmin = "techadmin"
)

// User is a registered account together with its public profile fields.
type User struct {
	ID           int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string     `gorm:"uniqueIndex;size:32;not null" json:"username"`
	PasswordHash string     `gorm:"size:72;not null" json:"-"`
	Role         string     `gorm:"size:16;default:'user';not null" json:"role"`
	Banned       bool       `gorm:"default:false;not null" json:"banned"`
	FullName     string     `gorm:"size:64" json:"full_name"`
	Bio          string     `gorm:"type:text" json:"bio"`
	Location     string     `gorm:"size:64" json:"location"`
	CreatedAt    time.Time  `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time `json:"last_login_at"`
}

// ValidRole reports whether r is a known site role.
func ValidRole(r string) bool {
	return r == RoleUser || r == RoleAdmin || r == RoleTechAdmin
}
