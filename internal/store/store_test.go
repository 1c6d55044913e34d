package store_test

import (
	"context"
	"errors"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
	"parallelcamera/internal/testsupport"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(ms int64) *fakeClock {
	return &fakeClock{now: time.UnixMilli(ms)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestOpenCreatesLatestSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	info, err := st.Info(context.Background())
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.SchemaVersion != store.LatestSchemaVersion {
		t.Fatalf("expected schema version %d, got %d", store.LatestSchemaVersion, info.SchemaVersion)
	}
	if info.Path != cfg.StorePath() {
		t.Fatalf("expected path %q, got %q", cfg.StorePath(), info.Path)
	}
	if info.HistoryCount != 0 || info.CharacterCount != 0 {
		t.Fatalf("expected empty collections, got %+v", info)
	}
}

func TestOpenIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	first, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("first Open: %v", err)
	}
	if _, err := first.InsertHistory(ctx, testsupport.HistoryRecord("kept", 10)); err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}
	first.Close()

	second := testsupport.MustOpenStore(t, cfg)
	count, err := second.Count(ctx, store.CollectionHistory)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 record after reopen, got %d", count)
	}
}

func TestOpenFailsWhenDirectoryUnavailable(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	cfg.Paths.DataDir = filepath.Join(blocker, "data")

	_, err := store.Open(cfg)
	if !errors.Is(err, services.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestListHistoryOrdersByTimestampDescending(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryLimit(0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	timestamps := []int64{500, 100, 900, 300, 700, 200, 800, 400, 600}
	rng := rand.New(rand.NewSource(42))
	rng.Shuffle(len(timestamps), func(i, j int) { timestamps[i], timestamps[j] = timestamps[j], timestamps[i] })
	for _, ts := range timestamps {
		if _, err := st.InsertHistory(ctx, testsupport.HistoryRecord("scene", ts)); err != nil {
			t.Fatalf("InsertHistory(%d): %v", ts, err)
		}
	}

	records, err := st.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(records) != len(timestamps) {
		t.Fatalf("expected %d records, got %d", len(timestamps), len(records))
	}
	for i := 1; i < len(records); i++ {
		if records[i-1].Timestamp <= records[i].Timestamp {
			t.Fatalf("records not strictly descending at %d: %d then %d", i, records[i-1].Timestamp, records[i].Timestamp)
		}
	}
}

func TestInsertHistoryAssignsUniqueRetrievableIDs(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	seen := make(map[int64]struct{})
	for i := 0; i < 10; i++ {
		rec := testsupport.HistoryRecord("scene", int64(1000+i))
		rec.Location = &store.Location{Latitude: 31.2, Longitude: 121.5}
		id, err := st.InsertHistory(ctx, rec)
		if err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
		if _, dup := seen[id]; dup {
			t.Fatalf("duplicate id %d", id)
		}
		seen[id] = struct{}{}

		fetched, err := st.GetHistory(ctx, id)
		if err != nil {
			t.Fatalf("GetHistory: %v", err)
		}
		if fetched == nil || fetched.ID != id || fetched.Timestamp != rec.Timestamp {
			t.Fatalf("unexpected record for id %d: %#v", id, fetched)
		}
		if fetched.Location == nil || fetched.Location.Latitude != 31.2 || fetched.Location.Longitude != 121.5 {
			t.Fatalf("location not round-tripped: %#v", fetched.Location)
		}
	}
}

func TestInsertHistoryDefaultsTimestamp(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := newFakeClock(1_700_000_000_000)
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()

	id, err := st.InsertHistory(ctx, testsupport.HistoryRecord("scene", 0))
	if err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}
	rec, err := st.GetHistory(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if rec.Timestamp != 1_700_000_000_000 {
		t.Fatalf("expected default timestamp, got %d", rec.Timestamp)
	}
}

func TestGetHistoryMissingReturnsNil(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)

	rec, err := st.GetHistory(context.Background(), 4242)
	if err != nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil record, got %#v", rec)
	}
}

func TestInsertHistoryValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name   string
		mutate func(*store.HistoryRecord)
		field  string
	}{
		{"missing description", func(r *store.HistoryRecord) { r.Description = " " }, "description"},
		{"missing generated image", func(r *store.HistoryRecord) { r.GeneratedImage = "" }, "generatedImage"},
		{"missing original image", func(r *store.HistoryRecord) { r.OriginalImage = "" }, "originalImage"},
		{"bad mode", func(r *store.HistoryRecord) { r.Mode = "sepia" }, "mode"},
		{"creative element outside creative", func(r *store.HistoryRecord) { r.CreativeElement = "a whale" }, "creativeElement"},
		{"user prompt outside meta", func(r *store.HistoryRecord) { r.UserPrompt = "in a cafe" }, "userPrompt"},
		{"latitude out of range", func(r *store.HistoryRecord) { r.Location = &store.Location{Latitude: 91} }, "location.latitude"},
		{"longitude out of range", func(r *store.HistoryRecord) { r.Location = &store.Location{Longitude: -181} }, "location.longitude"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := testsupport.HistoryRecord("scene", 1)
			tc.mutate(&rec)
			_, err := st.InsertHistory(ctx, rec)
			var verr *services.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, verr.Fields)
			}
		})
	}

	count, err := st.Count(ctx, store.CollectionHistory)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 0 {
		t.Fatalf("invalid records must not be stored, got %d", count)
	}
}

func TestInsertHistoryTrimsToLimit(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryLimit(3))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for ts := int64(1); ts <= 5; ts++ {
		if _, err := st.InsertHistory(ctx, testsupport.HistoryRecord("scene", ts*100)); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}
	records, err := st.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	want := []int64{500, 400, 300}
	for i, rec := range records {
		if rec.Timestamp != want[i] {
			t.Fatalf("record %d: expected timestamp %d, got %d", i, want[i], rec.Timestamp)
		}
	}
}

func TestInsertHistoryUncappedWhenLimitZero(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithHistoryLimit(0))
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for ts := int64(1); ts <= 60; ts++ {
		if _, err := st.InsertHistory(ctx, testsupport.HistoryRecord("scene", ts)); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}
	count, err := st.Count(ctx, store.CollectionHistory)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 60 {
		t.Fatalf("expected 60 records, got %d", count)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	keep, err := st.InsertHistory(ctx, testsupport.HistoryRecord("keep", 1))
	if err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}
	drop, err := st.InsertHistory(ctx, testsupport.HistoryRecord("drop", 2))
	if err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}

	removed, err := st.DeleteHistory(ctx, drop)
	if err != nil || !removed {
		t.Fatalf("first delete: removed=%v err=%v", removed, err)
	}
	before, err := st.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}

	removed, err = st.DeleteHistory(ctx, drop)
	if err != nil {
		t.Fatalf("second delete should not fail: %v", err)
	}
	if removed {
		t.Fatal("second delete should report removed=false")
	}
	after, err := st.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(before) != 1 || len(after) != 1 || after[0].ID != keep {
		t.Fatalf("collection changed by repeated delete: before=%v after=%v", before, after)
	}
}

func TestSchemaUpgradeIsAdditive(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	ctx := context.Background()

	v1, err := store.Open(cfg, store.WithSchemaVersion(1))
	if err != nil {
		t.Fatalf("Open v1: %v", err)
	}
	if v1.SchemaVersion() != 1 {
		t.Fatalf("expected schema version 1, got %d", v1.SchemaVersion())
	}
	var original []store.HistoryRecord
	for i := int64(1); i <= 3; i++ {
		rec := testsupport.HistoryRecord("before upgrade", i*10)
		if _, err := v1.InsertHistory(ctx, rec); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}
	if original, err = v1.ListHistory(ctx); err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if _, err := v1.Count(ctx, store.CollectionCharacters); err == nil {
		t.Fatal("expected characters collection to be absent at version 1")
	}
	v1.Close()

	v2 := testsupport.MustOpenStore(t, cfg, store.WithSchemaVersion(2))
	if v2.SchemaVersion() != 2 {
		t.Fatalf("expected schema version 2, got %d", v2.SchemaVersion())
	}
	upgraded, err := v2.ListHistory(ctx)
	if err != nil {
		t.Fatalf("ListHistory after upgrade: %v", err)
	}
	if len(upgraded) != len(original) {
		t.Fatalf("history size changed: %d -> %d", len(original), len(upgraded))
	}
	for i := range original {
		if original[i] != upgraded[i] {
			t.Fatalf("record %d changed: %#v -> %#v", i, original[i], upgraded[i])
		}
	}
	count, err := v2.Count(ctx, store.CollectionCharacters)
	if err != nil {
		t.Fatalf("Count characters: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected empty characters collection, got %d", count)
	}
}

func TestOpenAtLowerVersionDoesNotDowngrade(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	latest, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	latest.Close()

	st := testsupport.MustOpenStore(t, cfg, store.WithSchemaVersion(1))
	if st.SchemaVersion() != store.LatestSchemaVersion {
		t.Fatalf("expected schema to stay at %d, got %d", store.LatestSchemaVersion, st.SchemaVersion())
	}
	if _, err := st.Count(context.Background(), store.CollectionCharacters); err != nil {
		t.Fatalf("characters collection should remain usable: %v", err)
	}
}

func TestOpenRejectsUnknownVersion(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	if _, err := store.Open(cfg, store.WithSchemaVersion(store.LatestSchemaVersion+1)); err == nil {
		t.Fatal("expected error for unknown schema version")
	}
}

func TestClearRequiresConfirmation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		if _, err := st.InsertHistory(ctx, testsupport.HistoryRecord("scene", i)); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}

	if _, err := st.Clear(ctx, store.CollectionHistory, "yes"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if count, _ := st.Count(ctx, store.CollectionHistory); count != 3 {
		t.Fatalf("records must survive rejected clear, got %d", count)
	}

	removed, err := st.Clear(ctx, store.CollectionHistory, store.ClearConfirmation)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if removed != 3 {
		t.Fatalf("expected 3 removed, got %d", removed)
	}
	if count, _ := st.Count(ctx, store.CollectionHistory); count != 0 {
		t.Fatalf("expected empty collection, got %d", count)
	}
}

func TestCountRejectsUnknownCollection(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if _, err := st.Count(context.Background(), store.Collection("photos; DROP TABLE history")); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestHistoryStatsAndByMode(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	realistic := testsupport.HistoryRecord("a park", 100)
	creative := testsupport.HistoryRecord("a street", 200)
	creative.Mode = store.ModeCreative
	creative.CreativeElement = "a jellyfish"
	meta := testsupport.HistoryRecord("a cafe", 300)
	meta.Mode = store.ModeMeta
	meta.UserPrompt = "sitting down"
	for _, rec := range []store.HistoryRecord{realistic, creative, meta, testsupport.HistoryRecord("a bench", 400)} {
		if _, err := st.InsertHistory(ctx, rec); err != nil {
			t.Fatalf("InsertHistory: %v", err)
		}
	}

	stats, err := st.HistoryStats(ctx)
	if err != nil {
		t.Fatalf("HistoryStats: %v", err)
	}
	want := store.HistoryStats{Total: 4, Realistic: 2, Creative: 1, Meta: 1, Oldest: 100, Newest: 400}
	if stats != want {
		t.Fatalf("unexpected stats: got %+v want %+v", stats, want)
	}

	byMode, err := st.HistoryByMode(ctx, store.ModeRealistic)
	if err != nil {
		t.Fatalf("HistoryByMode: %v", err)
	}
	if len(byMode) != 2 || byMode[0].Timestamp != 400 || byMode[1].Timestamp != 100 {
		t.Fatalf("unexpected realistic records: %+v", byMode)
	}
	if _, err := st.HistoryByMode(ctx, "sepia"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for unknown mode, got %v", err)
	}

	recent, err := st.RecentHistory(ctx, 2)
	if err != nil {
		t.Fatalf("RecentHistory: %v", err)
	}
	if len(recent) != 2 || recent[0].Timestamp != 400 || recent[1].Timestamp != 300 {
		t.Fatalf("unexpected recent records: %+v", recent)
	}
	if recent[1].UserPrompt != "sitting down" {
		t.Fatalf("expected user prompt to round-trip, got %q", recent[1].UserPrompt)
	}
}

func TestHistoryStatsEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	stats, err := st.HistoryStats(context.Background())
	if err != nil {
		t.Fatalf("HistoryStats: %v", err)
	}
	if stats != (store.HistoryStats{}) {
		t.Fatalf("expected zero stats, got %+v", stats)
	}
}

func TestParseMode(t *testing.T) {
	mode, err := store.ParseMode(" Creative ")
	if err != nil || mode != store.ModeCreative {
		t.Fatalf("ParseMode: %v %v", mode, err)
	}
	if _, err := store.ParseMode("vintage"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
