package camera

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/sydlexius/camwatch/internal/database"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	return NewStore(db)
}

func TestStore_UpsertAndGet(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	m := &Metadata{
		Code:        "001010",
		Name:        "Praça",
		Category:    "Centro",
		Description: "north side",
		Coordinates: &Coordinates{Lat: -9.9, Lng: -67.8},
		AccessLevel: AccessRestricted,
	}
	if err := s.Upsert(ctx, m, "admin@example.com"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	got, err := s.Get(ctx, "001010")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name != "Praça" || got.AccessLevel != AccessRestricted || got.UpdatedBy != "admin@example.com" {
		t.Errorf("unexpected record: %+v", got)
	}
	if got.Coordinates == nil || got.Coordinates.Lat != -9.9 {
		t.Errorf("coordinates = %+v", got.Coordinates)
	}
	if got.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	// Whole-record replace clears coordinates.
	m2 := &Metadata{Code: "001010", Name: "Praça 2", Category: "Centro"}
	if err := s.Upsert(ctx, m2, "other@example.com"); err != nil {
		t.Fatalf("second Upsert: %v", err)
	}
	got, _ = s.Get(ctx, "001010")
	if got.Coordinates != nil {
		t.Errorf("expected coordinates cleared, got %+v", got.Coordinates)
	}
	if got.AccessLevel != AccessPublic {
		t.Errorf("zero level should be stored as 1, got %d", got.AccessLevel)
	}

	hist, err := s.History(ctx, "001010", 10)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(hist) != 2 || hist[0].ChangedBy != "other@example.com" {
		t.Errorf("history = %+v", hist)
	}
}

func TestStore_GetNotFound(t *testing.T) {
	s := setupStore(t)
	if _, err := s.Get(context.Background(), "000001"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestStore_ImportJSON(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	input := `[
		{"codigo": "001000", "nome": "Terminal", "categoria": "Transporte", "coords": [-9.97, -67.81], "level": 2},
		{"codigo": 1001},
		{"code": "001002", "name": "Ponte", "accessLevel": 9},
		{"nome": "sem codigo"},
		{"codigo": "12x"}
	]`
	res, err := s.ImportJSON(ctx, strings.NewReader(input), ImportOptions{By: "import"})
	if err != nil {
		t.Fatalf("ImportJSON: %v", err)
	}
	if res.Imported != 3 || res.Skipped != 2 {
		t.Errorf("result = %+v, want 3 imported, 2 skipped", res)
	}

	idx, err := s.Index(ctx)
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if m := idx["001000"]; m.Name != "Terminal" || m.AccessLevel != 2 || m.Coordinates == nil {
		t.Errorf("001000 = %+v", m)
	}
	if m := idx["001001"]; m.Name != "Camera 001001" || m.Category != DefaultCategory || m.AccessLevel != 1 {
		t.Errorf("001001 defaults = %+v", m)
	}
	if m := idx["001002"]; m.AccessLevel != 1 {
		t.Errorf("invalid level should default to 1, got %d", m.AccessLevel)
	}

	n, err := s.Count(ctx)
	if err != nil || n != 3 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestStore_ImportJSONOwnerKeepsOtherEdits(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()
	seed := `[{"codigo": "001000", "nome": "Praça"}, {"codigo": "001001", "nome": "Ponte"}]`
	opts := ImportOptions{By: "seed:cameras.json", Owner: "seed:"}

	if _, err := s.ImportJSON(ctx, strings.NewReader(seed), opts); err != nil {
		t.Fatalf("first import: %v", err)
	}
	edit := Metadata{Code: "001000", Name: "Praça (restrita)", Category: "Centro", AccessLevel: AccessPrivate}
	if err := s.Upsert(ctx, &edit, "admin@example.com"); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	reseed := `[{"codigo": "001000", "nome": "Praça"}, {"codigo": "001001", "nome": "Ponte nova"}, {"codigo": "001002"}]`
	res, err := s.ImportJSON(ctx, strings.NewReader(reseed), opts)
	if err != nil {
		t.Fatalf("second import: %v", err)
	}
	if res.Imported != 2 || res.Kept != 1 {
		t.Errorf("result = %+v, want 2 imported, 1 kept", res)
	}

	m, err := s.Get(ctx, "001000")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if m.Name != "Praça (restrita)" || m.AccessLevel != AccessPrivate || m.UpdatedBy != "admin@example.com" {
		t.Errorf("admin edit reverted: %+v", m)
	}
	if m, _ := s.Get(ctx, "001001"); m == nil || m.Name != "Ponte nova" {
		t.Errorf("seed-owned row not refreshed: %+v", m)
	}

	// Without an owner the import replaces everything.
	if _, err := s.ImportJSON(ctx, strings.NewReader(reseed), ImportOptions{By: "seed:cameras.json"}); err != nil {
		t.Fatalf("overwrite import: %v", err)
	}
	if m, _ := s.Get(ctx, "001000"); m == nil || m.AccessLevel != AccessPublic {
		t.Errorf("overwrite import kept edit: %+v", m)
	}
}

func TestStore_ImportJSONRejectsNonArray(t *testing.T) {
	s := setupStore(t)
	if _, err := s.ImportJSON(context.Background(), strings.NewReader(`{"codigo":"001000"}`), ImportOptions{By: "x"}); err == nil {
		t.Error("expected error for non-array input")
	}
}

func TestStore_ListEmpty(t *testing.T) {
	s := setupStore(t)
	list, err := s.List(context.Background())
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d", len(list))
	}
}
