package storage

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// Set TASKMATE_TEST_DATABASE_URL to a disposable database to run these.
func TestPostgresStorage(t *testing.T) {
	dsn := os.Getenv("TASKMATE_TEST_DATABASE_URL")
	if dsn == "" || testing.Short() {
		t.Skip("TASKMATE_TEST_DATABASE_URL not set")
	}

	store, err := OpenPostgres(context.Background(), dsn, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	runStorageContract(t, func(t *testing.T) Storage {
		return store
	})
}
