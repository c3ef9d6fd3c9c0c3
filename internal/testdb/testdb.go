// Package testdb opens throwaway SQLite databases for package tests.
package testdb

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/Skotchmaster/ticket_reservation/internal/models"
	pkgdb "github.com/Skotchmaster/ticket_reservation/pkg/db"
)

// New returns a migrated in-memory database private to t.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := pkgdb.Open(context.Background(), pkgdb.DriverSQLite, dsn)
	require.NoError(t, err, "failed to connect to in-memory db")
	require.NoError(t, db.AutoMigrate(models.All()...), "failed to migrate tables")

	t.Cleanup(func() { _ = pkgdb.Close(db) })
	return db
}
