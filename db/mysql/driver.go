package mysql

import (
	"strings"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// Dialector returns the MySQL dialector for dsn. parseTime=true is appended
// when missing since the models scan DATETIME columns into time.Time.
func Dialector(dsn string) gorm.Dialector {
	return mysql.Open(withParseTime(dsn))
}

func withParseTime(dsn string) string {
	if strings.Contains(dsn, "parseTime=") {
		return dsn
	}
	if strings.Contains(dsn, "?") {
		return dsn + "&parseTime=true"
	}
	return dsn + "?parseTime=true"
}
