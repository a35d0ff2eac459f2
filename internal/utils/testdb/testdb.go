// Package testdb opens throwaway SQLite databases with the feature-phone
// tables already created.
package testdb

import (
	"context"
	"testing"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	dbclient "malasakit/pkg/database/client"
	"malasakit/schema"
)

// Open returns a driver over a private in-memory database that is closed
// when the test ends.
func Open(t testing.TB) *entsql.Driver {
	t.Helper()

	drv, err := dbclient.Open("test", &dbclient.Config{
		Driver: dbclient.DriverSQLite,
		DSN:    "file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1",
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { drv.Close() })

	if err := schema.Create(context.Background(), drv); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return drv
}
