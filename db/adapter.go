package db

import (
	"fmt"

	"github.com/kasuganosora/socialgraph/config"
	dbmysql "github.com/kasuganosora/socialgraph/db/mysql"
	dbpostgres "github.com/kasuganosora/socialgraph/db/postgres"
	dbsqlite "github.com/kasuganosora/socialgraph/db/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode. Statements are
// logged through log; a nil log silences gorm entirely.
func Open(cfg config.DatabaseConfig, log *zap.Logger) (*gorm.DB, error) {
	var (
		dial gorm.Dialector
		err  error
	)
	switch cfg.Mode {
	case ModeSQLite:
		dial, err = dbsqlite.Dialector(cfg.SQLitePath)
	case ModeMySQL:
		dial = dbmysql.Dialector(cfg.MySQLDSN)
	case ModePostgres:
		dial = dbpostgres.Dialector(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}
	if err != nil {
		return nil, fmt.Errorf("db: %s: %w", cfg.Mode, err)
	}

	db, err := gorm.Open(dial, &gorm.Config{
		Logger: newZapLogger(log, cfg.SlowQuery, cfg.LogQueries),
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Mode, err)
	}

	if cfg.Mode == ModeSQLite {
		err = dbsqlite.SinglePool(db)
	} else {
		err = configurePool(db, cfg)
	}
	if err != nil {
		return nil, err
	}
	return db, nil
}

func configurePool(db *gorm.DB, cfg config.DatabaseConfig) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	if cfg.MaxOpen > 0 {
		sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	}
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxLife > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLife)
	}
	return nil
}
