package testutil

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/kasuganosora/socialgraph/cache"
	"github.com/kasuganosora/socialgraph/config"
	dbadapter "github.com/kasuganosora/socialgraph/db"
	"github.com/kasuganosora/socialgraph/model"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// SetupTestDB creates a private in-memory SQLite DB and runs AutoMigrate.
// Each call gets its own database name so tests can run in parallel.
func SetupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_busy_timeout=5000", uuid.NewString())
	db, err := dbadapter.Open(config.DatabaseConfig{
		Mode:       dbadapter.ModeSQLite,
		SQLitePath: dsn,
	}, nil)
	require.NoError(t, err, "SetupTestDB: Open")
	require.NoError(t, model.AutoMigrate(db), "SetupTestDB: AutoMigrate")
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return db
}

// SetupTestCache creates LocalCache and LocalPubSub (no Redis required).
func SetupTestCache(t *testing.T) (cache.Cache, cache.PubSub) {
	t.Helper()
	cfg := cache.CacheConfig{} // empty RedisAddr → LocalCache
	c, err := cache.NewCache(cfg)
	require.NoError(t, err, "SetupTestCache: NewCache")
	ps, err := cache.NewPubSub(cfg)
	require.NoError(t, err, "SetupTestCache: NewPubSub")
	return c, ps
}

// Logger returns a development logger for tests.
func Logger(t *testing.T) *zap.Logger {
	t.Helper()
	l, err := zap.NewDevelopment()
	require.NoError(t, err)
	return l
}

// CreateUser inserts a user row directly, bypassing password hashing.
func CreateUser(t *testing.T, db *gorm.DB, username string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", Role: model.RoleUser}
	require.NoError(t, db.Create(u).Error)
	return u
}

// CreateUserWithRole inserts a user row with the given site role.
func CreateUserWithRole(t *testing.T, db *gorm.DB, username, role string) *model.User {
	t.Helper()
	u := &model.User{Username: username, PasswordHash: "x", Role: role}
	require.NoError(t, db.Create(u).Error)
	return u
}
