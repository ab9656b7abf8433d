package postgres

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Dialector returns the PostgreSQL dialector for dsn.
func Dialector(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{DSN: dsn})
}
