package store_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"parallelcamera/internal/services"
	"parallelcamera/internal/store"
	"parallelcamera/internal/testsupport"
)

func TestCreateCharacterNormalizesAndInitializesUsage(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := newFakeClock(5_000)
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()

	id, err := st.CreateCharacter(ctx, store.CharacterRecord{
		Name:           "  Mochi  ",
		ReferenceImage: testsupport.SampleImage,
		Description:    " a grey cat ",
	})
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	rec, err := st.GetCharacter(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if rec.Name != "Mochi" || rec.Description != "a grey cat" {
		t.Fatalf("expected trimmed fields, got %#v", rec)
	}
	if rec.UsageCount != 0 || rec.LastUsedAt != nil {
		t.Fatalf("expected fresh usage, got count=%d last=%v", rec.UsageCount, rec.LastUsedAt)
	}
	if rec.CreatedAt != 5_000 {
		t.Fatalf("expected createdAt 5000, got %d", rec.CreatedAt)
	}
}

func TestCreateCharacterValidation(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	cases := []struct {
		name  string
		rec   store.CharacterRecord
		field string
	}{
		{"empty name", store.CharacterRecord{Name: "   ", ReferenceImage: testsupport.SampleImage}, "name"},
		{"long name", store.CharacterRecord{Name: strings.Repeat("a", 21), ReferenceImage: testsupport.SampleImage}, "name"},
		{"long description", store.CharacterRecord{Name: "Mochi", ReferenceImage: testsupport.SampleImage, Description: strings.Repeat("x", 51)}, "description"},
		{"missing image", store.CharacterRecord{Name: "Mochi"}, "referenceImage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := st.CreateCharacter(ctx, tc.rec)
			var verr *services.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Fields[0].Field != tc.field {
				t.Fatalf("expected field %q, got %+v", tc.field, verr.Fields)
			}
		})
	}
}

func TestCharacterNameCountsComposedRunes(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	// Twenty decomposed "é" are forty code points but twenty characters once composed.
	decomposed := strings.Repeat("e\u0301", 20)
	id, err := st.CreateCharacter(ctx, store.CharacterRecord{Name: decomposed, ReferenceImage: testsupport.SampleImage})
	if err != nil {
		t.Fatalf("CreateCharacter: %v", err)
	}
	rec, err := st.GetCharacter(ctx, id)
	if err != nil || rec == nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if rec.Name != strings.Repeat("\u00e9", 20) {
		t.Fatalf("expected NFC name, got %q", rec.Name)
	}

	if _, err := st.CreateCharacter(ctx, store.CharacterRecord{Name: "小明同学", ReferenceImage: testsupport.SampleImage}); err != nil {
		t.Fatalf("CJK name should be valid: %v", err)
	}
}

func TestListCharactersNewestFirst(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := newFakeClock(1_000)
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()

	for _, name := range []string{"first", "second", "third"} {
		testsupport.NewCharacter(t, st, name)
		clock.Advance(time.Second)
	}
	records, err := st.ListCharacters(ctx)
	if err != nil {
		t.Fatalf("ListCharacters: %v", err)
	}
	if len(records) != 3 || records[0].Name != "third" || records[2].Name != "first" {
		t.Fatalf("unexpected order: %+v", records)
	}
}

func TestUpdateCharacterMergesPatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	original := testsupport.NewCharacter(t, st, "Mochi")
	desc := "likes boxes"
	updated, err := st.UpdateCharacter(ctx, original.ID, store.CharacterPatch{Description: &desc})
	if err != nil {
		t.Fatalf("UpdateCharacter: %v", err)
	}
	if updated.Name != "Mochi" || updated.Description != desc {
		t.Fatalf("unexpected merge result: %#v", updated)
	}
	if updated.ReferenceImage != original.ReferenceImage || updated.CreatedAt != original.CreatedAt {
		t.Fatalf("immutable fields changed: %#v", updated)
	}

	name := " Momo "
	if _, err := st.UpdateCharacter(ctx, original.ID, store.CharacterPatch{Name: &name}); err != nil {
		t.Fatalf("UpdateCharacter name: %v", err)
	}
	stored, err := st.GetCharacter(ctx, original.ID)
	if err != nil || stored == nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if stored.Name != "Momo" || stored.Description != desc {
		t.Fatalf("unexpected stored record: %#v", stored)
	}
}

func TestUpdateCharacterErrors(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	name := "Ghost"
	if _, err := st.UpdateCharacter(ctx, 999, store.CharacterPatch{Name: &name}); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	rec := testsupport.NewCharacter(t, st, "Mochi")
	empty := ""
	if _, err := st.UpdateCharacter(ctx, rec.ID, store.CharacterPatch{Name: &empty}); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	stored, _ := st.GetCharacter(ctx, rec.ID)
	if stored == nil || stored.Name != "Mochi" {
		t.Fatalf("rejected update must not change the record: %#v", stored)
	}
}

func TestIncrementUsageIsMonotonic(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	clock := newFakeClock(10_000)
	st := testsupport.MustOpenStore(t, cfg, store.WithClock(clock.Now))
	ctx := context.Background()

	rec := testsupport.NewCharacter(t, st, "Mochi")
	const k = 5
	var last int64
	for i := 0; i < k; i++ {
		clock.Advance(time.Minute)
		last = clock.Now().UnixMilli()
		if err := st.IncrementUsage(ctx, rec.ID); err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}

	updated, err := st.GetCharacter(ctx, rec.ID)
	if err != nil || updated == nil {
		t.Fatalf("GetCharacter: %v", err)
	}
	if updated.UsageCount != rec.UsageCount+k {
		t.Fatalf("expected usage %d, got %d", rec.UsageCount+k, updated.UsageCount)
	}
	if updated.LastUsedAt == nil || *updated.LastUsedAt != last {
		t.Fatalf("expected lastUsedAt %d, got %v", last, updated.LastUsedAt)
	}
}

func TestIncrementUsageConcurrent(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	rec := testsupport.NewCharacter(t, st, "Mochi")
	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- st.IncrementUsage(ctx, rec.ID)
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("IncrementUsage: %v", err)
		}
	}
	updated, _ := st.GetCharacter(ctx, rec.ID)
	if updated == nil || updated.UsageCount != workers {
		t.Fatalf("expected usage %d, got %#v", workers, updated)
	}
}

func TestIncrementUsageMissing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	if err := st.IncrementUsage(context.Background(), 77); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMostUsedAndStats(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	empty, err := st.CharacterStats(ctx)
	if err != nil {
		t.Fatalf("CharacterStats: %v", err)
	}
	if empty.TotalCount != 0 || empty.TotalUsage != 0 || empty.MostUsed != nil {
		t.Fatalf("expected empty stats, got %+v", empty)
	}

	a := testsupport.NewCharacter(t, st, "A")
	b := testsupport.NewCharacter(t, st, "B")
	c := testsupport.NewCharacter(t, st, "C")
	bump := func(id int64, times int) {
		for i := 0; i < times; i++ {
			if err := st.IncrementUsage(ctx, id); err != nil {
				t.Fatalf("IncrementUsage: %v", err)
			}
		}
	}
	bump(a.ID, 2)
	bump(b.ID, 3)
	bump(c.ID, 3)

	top, err := st.MostUsed(ctx, 2)
	if err != nil {
		t.Fatalf("MostUsed: %v", err)
	}
	if len(top) != 2 || top[0].ID != b.ID || top[1].ID != c.ID {
		t.Fatalf("expected B then C (tie broken by id), got %+v", top)
	}
	all, err := st.MostUsed(ctx, 0)
	if err != nil {
		t.Fatalf("MostUsed all: %v", err)
	}
	if len(all) != 3 || all[2].ID != a.ID {
		t.Fatalf("unexpected full ranking: %+v", all)
	}

	stats, err := st.CharacterStats(ctx)
	if err != nil {
		t.Fatalf("CharacterStats: %v", err)
	}
	if stats.TotalCount != 3 || stats.TotalUsage != 8 {
		t.Fatalf("unexpected totals: %+v", stats)
	}
	if stats.MostUsed == nil || stats.MostUsed.ID != b.ID {
		t.Fatalf("expected B as most used, got %+v", stats.MostUsed)
	}
}

func TestSearchCharactersIgnoresCase(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	testsupport.NewCharacter(t, st, "Captain Mochi")
	testsupport.NewCharacter(t, st, "Momo")
	testsupport.NewCharacter(t, st, "Bao")

	found, err := st.SearchCharacters(ctx, "MO")
	if err != nil {
		t.Fatalf("SearchCharacters: %v", err)
	}
	if len(found) != 2 {
		t.Fatalf("expected 2 matches, got %+v", found)
	}
	all, err := st.SearchCharacters(ctx, "  ")
	if err != nil || len(all) != 3 {
		t.Fatalf("blank query should return all: %v %+v", err, all)
	}
}

func TestDeleteCharacterKeepsHistorySnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	ctx := context.Background()

	char := testsupport.NewCharacter(t, st, "Mochi")
	rec := testsupport.HistoryRecord("scene", 1)
	rec.CharacterName = char.Name
	historyID, err := st.InsertHistory(ctx, rec)
	if err != nil {
		t.Fatalf("InsertHistory: %v", err)
	}

	removed, err := st.DeleteCharacter(ctx, char.ID)
	if err != nil || !removed {
		t.Fatalf("DeleteCharacter: removed=%v err=%v", removed, err)
	}
	removed, err = st.DeleteCharacter(ctx, char.ID)
	if err != nil || removed {
		t.Fatalf("second DeleteCharacter: removed=%v err=%v", removed, err)
	}

	stored, err := st.GetHistory(ctx, historyID)
	if err != nil || stored == nil {
		t.Fatalf("GetHistory: %v", err)
	}
	if stored.CharacterName != "Mochi" {
		t.Fatalf("expected name snapshot to survive, got %q", stored.CharacterName)
	}
}
