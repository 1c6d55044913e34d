package testsupport

import (
	"context"
	"testing"

	"parallelcamera/internal/config"
	"parallelcamera/internal/store"
)

// SampleImage is a tiny data URI usable wherever an encoded image is required.
const SampleImage = "data:image/png;base64,iVBORw0KGgoAAAANSUhEUgAAAAEAAAABCAYAAAAfFcSJAAAADUlEQVR42mNk+M9QDwADhgGAWjR9awAAAABJRU5ErkJggg=="

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...store.Option) *store.Store {
	t.Helper()

	st, err := store.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// NewCharacter creates a character for tests and returns the stored record.
func NewCharacter(t testing.TB, st *store.Store, name string) *store.CharacterRecord {
	t.Helper()

	ctx := context.Background()
	id, err := st.CreateCharacter(ctx, store.CharacterRecord{
		Name:           name,
		ReferenceImage: SampleImage,
	})
	if err != nil {
		t.Fatalf("store.CreateCharacter: %v", err)
	}
	rec, err := st.GetCharacter(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("store.GetCharacter(%d): %v", id, err)
	}
	return rec
}

// HistoryRecord returns a valid realistic-mode record with the given timestamp.
func HistoryRecord(description string, timestamp int64) store.HistoryRecord {
	return store.HistoryRecord{
		Description:    description,
		GeneratedImage: SampleImage,
		OriginalImage:  SampleImage,
		Mode:           store.ModeRealistic,
		Timestamp:      timestamp,
	}
}
