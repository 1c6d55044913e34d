package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container test skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:17-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "camera",
				"POSTGRES_PASSWORD": "camera",
				"POSTGRES_DB":       "camera",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)
	return fmt.Sprintf("postgres://camera:camera@%s:%s/camera?sslmode=disable", host, port.Port())
}

func TestPostgresBackendAgainstServer(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	backend, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	defer backend.Close()

	svc := New(backend, 3, nil)
	for i := 1; i <= 5; i++ {
		_, err := svc.Save(ctx, json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
	}

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.JSONEq(t, `{"n":5}`, string(entries[0].Payload))

	count, err := svc.DeleteAt(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	require.NoError(t, svc.DeleteByID(ctx, entries[2].ID))

	// Reopening must not re-run applied migrations.
	again, err := OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	again.Close()
}
