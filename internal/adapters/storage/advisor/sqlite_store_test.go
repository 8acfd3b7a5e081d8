package advisor

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "modernc.org/sqlite"

	"percentuais/internal/adapters/storage"
	domain "percentuais/internal/domain/advisor"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := storage.InitDB(db); err != nil {
		t.Fatalf("failed to init schema: %v", err)
	}
	return db
}

func TestSaveAndFind(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	a := domain.Advisor{ID: "adv-1", Initials: "BR", Name: "Bruno", Email: "bruno@x.com", Branch: "Centro"}
	if err := store.Save(ctx, a); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := store.FindByNameAndBranch(ctx, "Bruno", "Centro")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "adv-1" || got.Initials != "BR" {
		t.Errorf("wrong row: %+v", got)
	}

	_, err = store.FindByNameAndBranch(ctx, "Bruno", "Norte")
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSave_UpsertOnNameAndBranch(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	if err := store.Save(ctx, domain.Advisor{ID: "adv-1", Name: "Bruno", Branch: "Centro"}); err != nil {
		t.Fatal(err)
	}
	// Same identity, updated contact details.
	if err := store.Save(ctx, domain.Advisor{ID: "adv-x", Name: "Bruno", Branch: "Centro", Email: "new@x.com"}); err != nil {
		t.Fatal(err)
	}

	got, err := store.FindByNameAndBranch(ctx, "Bruno", "Centro")
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != "adv-1" {
		t.Errorf("upsert must keep the original id, got %s", got.ID)
	}
	if got.Email != "new@x.com" {
		t.Errorf("email not updated: %s", got.Email)
	}
}

func TestListByBranch(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()

	_ = store.Save(ctx, domain.Advisor{ID: "adv-2", Name: "Carla", Branch: "Centro"})
	_ = store.Save(ctx, domain.Advisor{ID: "adv-1", Name: "Bruno", Branch: "Centro"})
	_ = store.Save(ctx, domain.Advisor{ID: "adv-3", Name: "Duda", Branch: "Norte"})

	got, err := store.ListByBranch(ctx, "Centro")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 advisors, got %d", len(got))
	}
	if got[0].Name != "Bruno" || got[1].Name != "Carla" {
		t.Errorf("expected name order, got %s then %s", got[0].Name, got[1].Name)
	}
}

func TestUpdatePercentage_AbsoluteAndIdempotent(t *testing.T) {
	store := NewSQLiteStore(openTestDB(t))
	ctx := context.Background()
	_ = store.Save(ctx, domain.Advisor{ID: "adv-1", Name: "Bruno", Branch: "Centro"})

	if err := store.UpdatePercentage(ctx, "adv-1", "RV", 3500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// Replaying the same absolute write leaves the value unchanged.
	if err := store.UpdatePercentage(ctx, "adv-1", "RV", 3500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := store.UpdatePercentage(ctx, "adv-1", "RF", 2000); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	percs, err := store.Percentages(ctx, "adv-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(percs) != 2 {
		t.Fatalf("expected 2 products, got %d", len(percs))
	}
	// Ordered by product: RF then RV.
	if percs[0].Product != "RF" || percs[0].Value != 2000 {
		t.Errorf("RF row: %+v", percs[0])
	}
	if percs[1].Product != "RV" || percs[1].Value != 3500 {
		t.Errorf("RV row: %+v", percs[1])
	}

	// Overwrite one product; the other is untouched.
	if err := store.UpdatePercentage(ctx, "adv-1", "RV", 3800); err != nil {
		t.Fatal(err)
	}
	percs, _ = store.Percentages(ctx, "adv-1")
	if percs[1].Value != 3800 {
		t.Errorf("RV after overwrite = %d, want 3800", percs[1].Value)
	}
	if percs[0].Value != 2000 {
		t.Errorf("RF clobbered: %d", percs[0].Value)
	}
}
