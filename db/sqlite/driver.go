package sqlite

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Dialector returns the SQLite dialector for path. A plain file path has its
// parent directory created so a fresh checkout can start with the default
// ./data/social.db.
func Dialector(path string) (gorm.Dialector, error) {
	if isFilePath(path) {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, err
		}
	}
	return sqlite.Open(path), nil
}

// SinglePool pins the pool to one connection. SQLite serialises writers, and
// ":memory:" databases only exist on the handle that created them.
func SinglePool(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	sqlDB.SetMaxOpenConns(1)
	return nil
}

func isFilePath(path string) bool {
	return path != "" && path != ":memory:" && !strings.HasPrefix(path, "file:")
}
