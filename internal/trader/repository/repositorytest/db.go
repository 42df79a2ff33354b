// Package repositorytest provides an in-memory database carrying the production indexes.
package repositorytest

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	"golang-news-trader/internal/trader/repository"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var seq atomic.Int64

// NewDB opens a private shared-cache sqlite database and migrates it. A single
// connection serialises writers the way row locks would in postgres.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	dsn := fmt.Sprintf("file:%s_%d?mode=memory&cache=shared", name, seq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Silent),
		TranslateError: true,
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, repository.AutoMigrate(db))
	return db
}
