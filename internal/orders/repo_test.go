package orders

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

func TestRepositorySaveAndExists(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	repo := NewRepository(store)

	exists, err := repo.Exists(ctx, "ord_1")
	if err != nil {
		t.Fatalf("exists: %v", err)
	}
	if exists {
		t.Fatal("expected order to be absent")
	}

	order := &Order{
		UserID:       "u1",
		PolarOrderID: "ord_1",
		Amount:       1200,
		Currency:     "USD",
		PaidAt:       instant.New(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)),
		Processed:    true,
	}
	if err := repo.Save(ctx, order); err != nil {
		t.Fatalf("save: %v", err)
	}
	if order.ID != "ord_1" {
		t.Fatalf("expected id ord_1, got %s", order.ID)
	}

	exists, err = repo.Exists(ctx, "ord_1")
	if err != nil || !exists {
		t.Fatalf("expected order to exist, exists=%v err=%v", exists, err)
	}

	got, err := repo.FindByID(ctx, "ord_1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.Amount != 1200 || !got.Processed || got.UserID != "u1" {
		t.Fatalf("unexpected order %+v", got)
	}
	if !got.PaidAt.Valid() {
		t.Fatal("expected paidAt to round-trip")
	}
}

func TestRepositorySaveMergesExistingFields(t *testing.T) {
	ctx := context.Background()
	store := docstore.NewMemoryStore()
	if err := store.Set(ctx, Collection, "ord_1", map[string]any{"note": "manual"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := NewRepository(store).Save(ctx, &Order{PolarOrderID: "ord_1", Amount: 5}); err != nil {
		t.Fatalf("save: %v", err)
	}
	doc, err := store.Get(ctx, Collection, "ord_1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if doc.Data["note"] != "manual" {
		t.Fatalf("merge should keep unrelated fields, got %v", doc.Data)
	}
}

func TestRepositorySaveRequiresProviderID(t *testing.T) {
	if err := NewRepository(docstore.NewMemoryStore()).Save(context.Background(), &Order{}); err == nil {
		t.Fatal("expected error without provider order id")
	}
}

func TestFormatAmount(t *testing.T) {
	cases := []struct {
		amount   int64
		currency string
		want     string
	}{
		{1200, "USD", "12.00 USD"},
		{1999, "eur", "19.99 EUR"},
		{500, "JPY", "500 JPY"},
		{7, "", "0.07"},
	}
	for _, tc := range cases {
		if got := FormatAmount(tc.amount, tc.currency); got != tc.want {
			t.Fatalf("FormatAmount(%d, %q) = %q, want %q", tc.amount, tc.currency, got, tc.want)
		}
	}
}
