package mirror

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parallelcamera/internal/config"
	"parallelcamera/internal/services"
)

func openTestSQLite(t *testing.T) *SQLiteBackend {
	t.Helper()
	backend, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "mirror.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })
	return backend
}

// backendsUnderTest returns every backend that runs without external services.
func backendsUnderTest(t *testing.T) map[string]Backend {
	return map[string]Backend{
		"sqlite": openTestSQLite(t),
		"nats":   newNATSBackend(newMemoryKV()),
	}
}

func record(n int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"description":"capture %d"}`, n))
}

func descriptions(t *testing.T, entries []Entry) []string {
	t.Helper()
	out := make([]string, len(entries))
	for i, e := range entries {
		var payload struct {
			Description string `json:"description"`
		}
		require.NoError(t, json.Unmarshal(e.Payload, &payload))
		out[i] = payload.Description
	}
	return out
}

func TestServiceSaveListsNewestFirst(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			now := time.UnixMilli(1_700_000_000_000)
			svc := New(backend, 10, nil, WithClock(func() time.Time { return now }))

			for i := 1; i <= 3; i++ {
				count, err := svc.Save(ctx, record(i))
				require.NoError(t, err)
				assert.Equal(t, i, count)
			}

			entries, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"capture 3", "capture 2", "capture 1"}, descriptions(t, entries))
			for _, e := range entries {
				assert.NotEmpty(t, e.ID)
				assert.Equal(t, now.UnixMilli(), e.Timestamp)
			}
			assert.NotEqual(t, entries[0].ID, entries[1].ID)
		})
	}
}

func TestServiceTrimsToLimit(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := New(backend, 3, nil)

			var count int
			var err error
			for i := 1; i <= 5; i++ {
				count, err = svc.Save(ctx, record(i))
				require.NoError(t, err)
			}
			assert.Equal(t, 3, count)

			entries, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"capture 5", "capture 4", "capture 3"}, descriptions(t, entries))
		})
	}
}

func TestServiceDeleteAt(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := New(backend, 10, nil)
			for i := 1; i <= 3; i++ {
				_, err := svc.Save(ctx, record(i))
				require.NoError(t, err)
			}

			count, err := svc.DeleteAt(ctx, 1)
			require.NoError(t, err)
			assert.Equal(t, 2, count)

			for _, index := range []int{-1, 2, 99} {
				count, err = svc.DeleteAt(ctx, index)
				require.NoError(t, err)
				assert.Equal(t, 2, count, "index %d should be a no-op", index)
			}

			entries, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"capture 3", "capture 1"}, descriptions(t, entries))
		})
	}
}

func TestServiceDeleteByID(t *testing.T) {
	for name, backend := range backendsUnderTest(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			svc := New(backend, 10, nil)
			for i := 1; i <= 2; i++ {
				_, err := svc.Save(ctx, record(i))
				require.NoError(t, err)
			}
			entries, err := svc.List(ctx)
			require.NoError(t, err)

			require.NoError(t, svc.DeleteByID(ctx, entries[1].ID))
			err = svc.DeleteByID(ctx, entries[1].ID)
			assert.ErrorIs(t, err, services.ErrNotFound)
			assert.ErrorIs(t, svc.DeleteByID(ctx, "  "), services.ErrValidation)

			remaining, err := svc.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"capture 2"}, descriptions(t, remaining))
		})
	}
}

func TestServiceRejectsInvalidPayload(t *testing.T) {
	svc := New(openTestSQLite(t), 10, nil)
	ctx := context.Background()

	for _, payload := range []string{"", "   ", "null", "{not json"} {
		_, err := svc.Save(ctx, json.RawMessage(payload))
		assert.ErrorIs(t, err, services.ErrValidation, "payload %q", payload)
	}
	entries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.NotNil(t, entries)
}

func TestServiceDefaultsLimit(t *testing.T) {
	svc := New(openTestSQLite(t), 0, nil)
	assert.Equal(t, DefaultLimit, svc.Limit())
	assert.Equal(t, "sqlite", svc.Backend())
	assert.NoError(t, svc.Ping(context.Background()))
}

func TestSQLiteReopenKeepsEntries(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mirror.db")

	first, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	_, err = New(first, 10, nil).Save(ctx, record(1))
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := OpenSQLite(ctx, path)
	require.NoError(t, err)
	defer second.Close()
	entries, err := second.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSQLiteConcurrentSavesRespectLimit(t *testing.T) {
	ctx := context.Background()
	svc := New(openTestSQLite(t), 5, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Save(ctx, record(n))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	entries, err := svc.List(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 5)
}

func TestOpenSelectsBackend(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.Paths.LogDir = filepath.Join(t.TempDir(), "logs")

	svc, err := Open(context.Background(), &cfg, nil)
	require.NoError(t, err)
	defer svc.Close()
	assert.Equal(t, "sqlite", svc.Backend())
	assert.FileExists(t, cfg.MirrorPath())

	cfg.Mirror.Backend = "redis"
	_, err = Open(context.Background(), &cfg, nil)
	assert.ErrorIs(t, err, services.ErrConfiguration)
}
