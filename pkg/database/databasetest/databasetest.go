// Package databasetest opens throwaway sqlite databases for package tests.
package databasetest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/jordanlanch/directorist-affiliate/pkg/database"
)

// Open returns a migrated in-memory client that is closed when the test ends
func Open(t testing.TB) *database.Client {
	t.Helper()

	client, err := database.NewSQLiteClient("file:" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1")
	if err != nil {
		t.Fatalf("failed opening sqlite database: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}
